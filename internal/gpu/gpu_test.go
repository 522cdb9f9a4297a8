package gpu

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// fakeSMI writes an executable script standing in for nvidia-smi.
func fakeSMI(t *testing.T, script string) *Tool {
	t.Helper()
	p := filepath.Join(t.TempDir(), "nvidia-smi")
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return &Tool{SMIPath: p}
}

func TestVRAMInfo(t *testing.T) {
	tool := fakeSMI(t, `echo "4096, 16384"`)
	got, err := tool.VRAMInfo(context.Background())
	if err != nil {
		t.Fatalf("vram: %v", err)
	}
	if got.UsedMB != 4096 || got.TotalMB != 16384 || got.FreeMB != 12288 {
		t.Fatalf("unexpected reading: %+v", got)
	}
}

func TestVRAMInfoBadOutput(t *testing.T) {
	tool := fakeSMI(t, `echo "garbage"`)
	if _, err := tool.VRAMInfo(context.Background()); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestVRAMInfoMissingBinary(t *testing.T) {
	tool := &Tool{SMIPath: "/no/such/nvidia-smi"}
	if _, err := tool.VRAMInfo(context.Background()); err == nil {
		t.Fatalf("expected error for missing binary")
	}
}

func TestKillComputeProcessesParsesPids(t *testing.T) {
	// pid list with one unparsable entry and one unsignalable pid
	tool := fakeSMI(t, "echo \"999999\"\necho \"not-a-pid\"")
	killed, err := tool.KillComputeProcesses(context.Background())
	if err != nil {
		t.Fatalf("kill: %v", err)
	}
	if killed != 0 {
		t.Fatalf("expected 0 signaled, got %d", killed)
	}
}
