// Package ctl implements the capctl command line client for the captiond API.
package ctl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"captiond/pkg/types"
)

// Client is a thin JSON client for the daemon API.
type Client struct {
	BaseURL string
	http    *http.Client
}

// NewClient targets the daemon at baseURL, e.g. http://127.0.0.1:8090.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// apiError carries the daemon's JSON error payload.
type apiError struct {
	Status int
	Msg    string
}

func (e apiError) Error() string { return fmt.Sprintf("%s (HTTP %d)", e.Msg, e.Status) }

func (c *Client) do(method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", c.BaseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var er types.ErrorResponse
		if jerr := json.NewDecoder(resp.Body).Decode(&er); jerr == nil && er.Error != "" {
			return apiError{Status: resp.StatusCode, Msg: er.Error}
		}
		return apiError{Status: resp.StatusCode, Msg: http.StatusText(resp.StatusCode)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) get(path string, out any) error  { return c.do(http.MethodGet, path, nil, out) }
func (c *Client) post(path string, body, out any) error {
	return c.do(http.MethodPost, path, body, out)
}
func (c *Client) put(path string, body, out any) error {
	return c.do(http.MethodPut, path, body, out)
}
func (c *Client) delete(path string) error { return c.do(http.MethodDelete, path, nil, nil) }
