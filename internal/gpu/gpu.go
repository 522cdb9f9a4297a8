// Package gpu shells out to nvidia-smi for VRAM readings and for terminating
// stray compute processes. A missing nvidia-smi is reported, never fatal.
package gpu

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"captiond/pkg/types"
)

// Tool wraps the nvidia-smi binary. SMIPath is overridable for tests.
type Tool struct {
	SMIPath string
}

// New returns a Tool using nvidia-smi from PATH.
func New() *Tool { return &Tool{SMIPath: "nvidia-smi"} }

// VRAMInfo queries used/total GPU memory and derives the free amount.
func (t *Tool) VRAMInfo(ctx context.Context) (types.VRAMInfo, error) {
	out, err := exec.CommandContext(ctx, t.SMIPath,
		"--query-gpu=memory.used,memory.total",
		"--format=csv,noheader,nounits").Output()
	if err != nil {
		return types.VRAMInfo{}, fmt.Errorf("nvidia-smi: %w", err)
	}
	parts := strings.Split(strings.TrimSpace(string(out)), ",")
	if len(parts) != 2 {
		return types.VRAMInfo{}, fmt.Errorf("nvidia-smi: unexpected output %q", out)
	}
	used, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return types.VRAMInfo{}, fmt.Errorf("nvidia-smi: parse used: %w", err)
	}
	total, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return types.VRAMInfo{}, fmt.Errorf("nvidia-smi: parse total: %w", err)
	}
	return types.VRAMInfo{UsedMB: used, FreeMB: total - used, TotalMB: total}, nil
}

// KillComputeProcesses sends SIGTERM to every GPU compute process and returns
// how many were signaled. Processes that cannot be signaled are skipped.
func (t *Tool) KillComputeProcesses(ctx context.Context) (int, error) {
	out, err := exec.CommandContext(ctx, t.SMIPath,
		"--query-compute-apps=pid",
		"--format=csv,noheader").Output()
	if err != nil {
		return 0, fmt.Errorf("nvidia-smi: %w", err)
	}
	killed := 0
	for _, f := range strings.Fields(strings.TrimSpace(string(out))) {
		pid, err := strconv.Atoi(f)
		if err != nil {
			continue
		}
		if err := syscall.Kill(pid, syscall.SIGTERM); err == nil {
			killed++
		}
	}
	return killed, nil
}
