package ctl

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"captiond/pkg/types"
)

func TestClientDecodesErrorPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"server already running","code":409}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	err := c.post("/server/start", types.StartServerRequest{}, nil)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "server already running") || !strings.Contains(err.Error(), "409") {
		t.Fatalf("error lacks payload detail: %v", err)
	}
}

func TestClientDecodesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/server/status" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"state":"running","pid":42}`))
	}))
	defer srv.Close()

	var resp types.ServerStatusResponse
	if err := NewClient(srv.URL).get("/server/status", &resp); err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.State != types.ServerRunning || resp.PID != 42 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestClientUnreachableDaemon(t *testing.T) {
	c := NewClient("http://127.0.0.1:1")
	err := c.get("/status", nil)
	if err == nil || !strings.Contains(err.Error(), "daemon unreachable") {
		t.Fatalf("expected unreachable error, got %v", err)
	}
}

func TestClientTrimsTrailingSlash(t *testing.T) {
	c := NewClient("http://127.0.0.1:8090/")
	if c.BaseURL != "http://127.0.0.1:8090" {
		t.Fatalf("base url = %q", c.BaseURL)
	}
}
