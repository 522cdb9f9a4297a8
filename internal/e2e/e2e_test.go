package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"captiond/internal/app"
	"captiond/internal/httpapi"
	"captiond/pkg/types"
)

// newInferenceStub emulates the OpenAI-compatible surface of llama-server:
// a models probe and a chat completion that always captions "a studio photo".
func newInferenceStub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"id":"model.gguf"}]}`))
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"a studio photo"}}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// newDaemon builds the full HTTP stack backed by a real app instance.
func newDaemon(t *testing.T) *httptest.Server {
	t.Helper()
	a := app.New(app.Options{
		SettingsPath:   filepath.Join(t.TempDir(), "settings.json"),
		ModelsDir:      t.TempDir(),
		CaptionTimeout: time.Minute,
	})
	srv := httptest.NewServer(httpapi.NewMux(a))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, target string, body any, out any) int {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, target, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	} else {
		io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode
}

// TestE2E_BatchRunOverHTTP drives a whole run through the public API: point the
// settings at a stub inference endpoint, queue a folder, start the batch, and
// watch it complete.
func TestE2E_BatchRunOverHTTP(t *testing.T) {
	stub := newInferenceStub(t)
	daemon := newDaemon(t)

	u, err := url.Parse(stub.URL)
	if err != nil {
		t.Fatalf("parse stub url: %v", err)
	}

	// aim the daemon at the stub endpoint
	var s types.Settings
	if code := doJSON(t, http.MethodGet, daemon.URL+"/settings", nil, &s); code != http.StatusOK {
		t.Fatalf("get settings = %d", code)
	}
	s.Port = u.Port()
	s.ModelFile = "/models/model.gguf"
	if code := doJSON(t, http.MethodPut, daemon.URL+"/settings", s, nil); code != http.StatusOK {
		t.Fatalf("put settings = %d", code)
	}

	// a folder with two images, one already captioned
	dir := t.TempDir()
	for _, n := range []string{"0001.png", "0002.jpg"} {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("img"), 0o644); err != nil {
			t.Fatalf("write image: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "0001.txt"), []byte("kept"), 0o644); err != nil {
		t.Fatalf("write caption: %v", err)
	}

	if code := doJSON(t, http.MethodPost, daemon.URL+"/queue/", types.EnqueueRequest{FolderPath: dir}, nil); code != http.StatusCreated {
		t.Fatalf("enqueue = %d", code)
	}

	var startResp map[string]bool
	if code := doJSON(t, http.MethodPost, daemon.URL+"/batch/start", types.StartBatchRequest{}, &startResp); code != http.StatusAccepted {
		t.Fatalf("batch start = %d", code)
	}
	if !startResp["started"] {
		t.Fatalf("run did not start")
	}

	deadline := time.Now().Add(10 * time.Second)
	var p types.BatchProgressResponse
	for {
		if code := doJSON(t, http.MethodGet, daemon.URL+"/batch/progress", nil, &p); code != http.StatusOK {
			t.Fatalf("progress = %d", code)
		}
		if !p.Running {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("run did not finish: %+v", p)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if p.Percent != 100 {
		t.Fatalf("final percent = %v", p.Percent)
	}

	// existing caption untouched, new one written by the stub
	if b, err := os.ReadFile(filepath.Join(dir, "0001.txt")); err != nil || string(b) != "kept" {
		t.Fatalf("pre-existing caption changed: %q err=%v", b, err)
	}
	if b, err := os.ReadFile(filepath.Join(dir, "0002.txt")); err != nil || string(b) != "a studio photo" {
		t.Fatalf("caption not written: %q err=%v", b, err)
	}

	// the status log recorded the completion
	var status types.StatusResponse
	doJSON(t, http.MethodGet, daemon.URL+"/status", nil, &status)
	found := false
	for _, l := range status.Lines {
		if l.Message == "batch run complete" {
			found = true
		}
	}
	if !found {
		t.Fatalf("completion line missing: %+v", status.Lines)
	}

	// queue item ended Done with full progress
	var q types.QueueResponse
	doJSON(t, http.MethodGet, daemon.URL+"/queue/", nil, &q)
	if len(q.Items) != 1 || q.Items[0].Status != types.ItemDone || q.Items[0].Done != 2 {
		t.Fatalf("unexpected queue state: %+v", q.Items)
	}
}

// TestE2E_UnreachableEndpoint verifies the run refuses to start when the
// configured endpoint is down, mapping to 502.
func TestE2E_UnreachableEndpoint(t *testing.T) {
	daemon := newDaemon(t)

	var s types.Settings
	doJSON(t, http.MethodGet, daemon.URL+"/settings", nil, &s)
	s.Port = "1" // nothing listens here
	doJSON(t, http.MethodPut, daemon.URL+"/settings", s, nil)

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.png"), []byte("img"), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	doJSON(t, http.MethodPost, daemon.URL+"/queue/", types.EnqueueRequest{FolderPath: dir}, nil)

	if code := doJSON(t, http.MethodPost, daemon.URL+"/batch/start", types.StartBatchRequest{}, nil); code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", code)
	}
	if _, err := os.Stat(filepath.Join(dir, "a.txt")); !os.IsNotExist(err) {
		t.Fatalf("no caption should have been written")
	}
}

// TestE2E_EmptyQueueNothingToDo exercises the nothing-to-do path end to end.
func TestE2E_EmptyQueueNothingToDo(t *testing.T) {
	stub := newInferenceStub(t)
	daemon := newDaemon(t)

	u, _ := url.Parse(stub.URL)
	var s types.Settings
	doJSON(t, http.MethodGet, daemon.URL+"/settings", nil, &s)
	s.Port = u.Port()
	doJSON(t, http.MethodPut, daemon.URL+"/settings", s, nil)

	var resp map[string]bool
	if code := doJSON(t, http.MethodPost, daemon.URL+"/batch/start", types.StartBatchRequest{}, &resp); code != http.StatusOK {
		t.Fatalf("start = %d", code)
	}
	if resp["started"] {
		t.Fatalf("expected started=false for empty queue")
	}

	var p types.BatchProgressResponse
	doJSON(t, http.MethodGet, daemon.URL+"/batch/progress", nil, &p)
	if p.Label != "No folders in queue" {
		t.Fatalf("label = %q", p.Label)
	}
}
