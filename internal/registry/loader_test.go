package registry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestScanFiltersGGUF(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		"a.gguf",
		"b.GGUF", // case-insensitive
		"not-model.txt",
		"model.bin",
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("x"), 0o644); err != nil {
			t.Fatalf("write temp file: %v", err)
		}
	}
	models, err := NewGGUFScanner().Scan(dir)
	if err != nil {
		t.Fatalf("scan error: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(models))
	}
	for _, m := range models {
		if !strings.HasSuffix(strings.ToLower(m.ID), ".gguf") {
			t.Fatalf("id not gguf: %s", m.ID)
		}
		if m.SizeBytes != 1 {
			t.Fatalf("size not recorded: %+v", m)
		}
	}
}

func TestScanMissingDir(t *testing.T) {
	if _, err := LoadDir("/no/such/models/dir"); err == nil {
		t.Fatalf("expected error for missing dir")
	}
}

func TestDetectBinaryNoneFound(t *testing.T) {
	orig, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(orig) })
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	if got := DetectBinary(); got != "" {
		t.Fatalf("expected no binary, got %q", got)
	}
}

func TestDetectBinaryFindsConventionalPath(t *testing.T) {
	orig, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(orig) })
	dir := t.TempDir()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	p := filepath.Join(dir, "build", "bin")
	if err := os.MkdirAll(p, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(p, "llama-server"), []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := DetectBinary(); got != "./build/bin/llama-server" {
		t.Fatalf("detect = %q", got)
	}
}
