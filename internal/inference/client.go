// Package inference is a thin client for an OpenAI-compatible chat-completions
// endpoint, issuing one "caption this image" request at a time. Retries, if
// any, are the orchestrator's concern; this layer performs none.
package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// DefaultMaxTokens bounds caption length when the caller does not override it.
const DefaultMaxTokens = 300

const defaultRequestTimeout = 5 * time.Minute

// Client issues caption requests against one endpoint base URL.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	reqTimeout time.Duration
}

// NewClient constructs a caption client. model is the identifier sent with
// each request, conventionally the base name of the loaded model file.
// reqTimeout <= 0 applies a generous default sized for multi-second generation.
func NewClient(baseURL, model string, reqTimeout time.Duration) *Client {
	if reqTimeout <= 0 {
		reqTimeout = defaultRequestTimeout
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
	}
	// Intentionally Timeout=0: every request carries a context deadline.
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Transport: tr, Timeout: 0},
		reqTimeout: reqTimeout,
	}
}

// chatCompletionRequest is the payload for /v1/chat/completions.
type chatCompletionRequest struct {
	Model     string        `json:"model,omitempty"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

// chatCompletionResponse is the minimal subset we read back.
type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ListModels probes GET /v1/models so a run can fail fast with one clear error
// instead of failing per image.
func (c *Client) ListModels(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return ErrConnection(err.Error())
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ErrConnection(err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ErrConnection("models probe: " + resp.Status)
	}
	return nil
}

// Caption sends one user turn carrying the prompt and the image as an embedded
// base64 data URI, and returns the first choice's trimmed message text.
func (c *Client) Caption(ctx context.Context, image []byte, prompt string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if c.reqTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.reqTimeout)
		defer cancel()
	}

	payload := chatCompletionRequest{
		Model: c.model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &imageURL{
					URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image),
				}},
			},
		}},
		MaxTokens: maxTokens,
	}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", ErrConnection(err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", httpError{status: resp.Status, body: string(b)}
	}
	var out chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
