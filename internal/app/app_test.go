package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"captiond/internal/batch"
	"captiond/internal/config"
	"captiond/internal/inference"
	"captiond/pkg/types"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	return New(Options{
		SettingsPath:   filepath.Join(t.TempDir(), "settings.json"),
		ModelsDir:      t.TempDir(),
		CaptionTimeout: time.Minute,
	})
}

type stubCaptioner struct {
	probeErr error
	caption  string
}

func (s *stubCaptioner) ListModels(ctx context.Context) error { return s.probeErr }

func (s *stubCaptioner) Caption(ctx context.Context, image []byte, prompt string, maxTokens int) (string, error) {
	return s.caption, nil
}

func TestEnqueueDefaultsToLastPrompt(t *testing.T) {
	a := newTestApp(t)
	item, err := a.Enqueue("/data/a", "")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if item.Prompt != config.DefaultPrompt {
		t.Fatalf("prompt = %q, want the default", item.Prompt)
	}

	if !a.SetPrompt(item.ID, "studio lighting") {
		t.Fatalf("set prompt failed")
	}
	item2, err := a.Enqueue("/data/b", "")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if item2.Prompt != "studio lighting" {
		t.Fatalf("prompt = %q, want the last-used prompt", item2.Prompt)
	}
}

func TestEnqueueRequiresFolder(t *testing.T) {
	a := newTestApp(t)
	if _, err := a.Enqueue("", "p"); err == nil {
		t.Fatalf("expected error for empty folder")
	}
}

func TestSetPromptPersistsLastPrompt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	a := New(Options{SettingsPath: path, CaptionTimeout: time.Minute})
	item, _ := a.Enqueue("/data/a", "")
	a.SetPrompt(item.ID, "close-up portrait")

	reopened := config.OpenStore(path)
	if got := reopened.Get().LastPrompt; got != "close-up portrait" {
		t.Fatalf("persisted last prompt = %q", got)
	}
}

func TestStartServerFillsFromSettings(t *testing.T) {
	a := newTestApp(t)
	a.settings.Update(func(s *types.Settings) {
		s.ServerBinary = "/nope/llama-server"
		s.ModelFile = "/nope/m.gguf"
		s.Port = "12345"
	})
	cfg := a.fillServerConfig(types.ServerConfig{})
	if cfg.BinaryPath != "/nope/llama-server" || cfg.ModelPath != "/nope/m.gguf" {
		t.Fatalf("paths not filled: %+v", cfg)
	}
	if cfg.Port != 12345 || cfg.ContextSize != 8192 || cfg.GPULayers != 99 || cfg.BatchSize != 512 {
		t.Fatalf("numeric defaults not filled: %+v", cfg)
	}

	// explicit values win over settings
	cfg = a.fillServerConfig(types.ServerConfig{Port: 9999})
	if cfg.Port != 9999 {
		t.Fatalf("explicit port overridden: %+v", cfg)
	}
}

func TestStartServerRejectsMissingBinary(t *testing.T) {
	a := newTestApp(t)
	_, err := a.StartServer(types.ServerConfig{
		BinaryPath: "/no/such/llama-server",
		ModelPath:  "/no/such/m.gguf",
	})
	if err == nil {
		t.Fatalf("expected launch error")
	}
	if st := a.ServerStatus(); st.State != types.ServerStopped {
		t.Fatalf("state after failed start = %v", st.State)
	}
}

func TestStartBatchRunsQueue(t *testing.T) {
	a := newTestApp(t)
	a.newCaptioner = func(baseURL, model string) batch.Captioner {
		return &stubCaptioner{caption: "a test caption"}
	}

	dir := t.TempDir()
	img := filepath.Join(dir, "0001.png")
	if err := os.WriteFile(img, []byte("png"), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	if _, err := a.Enqueue(dir, ""); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	started, err := a.StartBatch(false)
	if err != nil || !started {
		t.Fatalf("start batch: started=%v err=%v", started, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.orch.WaitDone(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "0001.txt"))
	if err != nil {
		t.Fatalf("caption not written: %v", err)
	}
	if string(b) != "a test caption" {
		t.Fatalf("caption = %q", b)
	}
	if p := a.BatchProgress(); p.Running || p.Percent != 100 {
		t.Fatalf("progress after run: %+v", p)
	}
}

func TestStartBatchUnreachableEndpoint(t *testing.T) {
	a := newTestApp(t)
	a.newCaptioner = func(baseURL, model string) batch.Captioner {
		return &stubCaptioner{probeErr: inference.ErrConnection("connection refused")}
	}
	if _, err := a.Enqueue(t.TempDir(), ""); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	started, err := a.StartBatch(false)
	if started || !inference.IsConnectionError(err) {
		t.Fatalf("started=%v err=%v", started, err)
	}
}

func TestDequeueUnknown(t *testing.T) {
	a := newTestApp(t)
	if a.Dequeue(99) {
		t.Fatalf("expected false for unknown id")
	}
}
