// Package status provides the append-only run log consumed by observers.
// Lines are sequenced so pollers can read incrementally with Since.
package status

import (
	"fmt"
	"sync"
	"time"

	"captiond/pkg/types"
)

// Reporter stores timestamped status lines in order of arrival. The only
// deletion is an explicit Clear, issued by the orchestrator at run start.
type Reporter struct {
	mu      sync.RWMutex
	nextSeq int64
	lines   []types.StatusLine
	maxKeep int
}

// NewReporter creates a reporter retaining at most maxKeep lines (<=0 uses 2000).
func NewReporter(maxKeep int) *Reporter {
	if maxKeep <= 0 {
		maxKeep = 2000
	}
	return &Reporter{maxKeep: maxKeep}
}

// Log appends one line and assigns its sequence and timestamp.
func (r *Reporter) Log(msg string) types.StatusLine {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextSeq++
	line := types.StatusLine{
		Seq:         r.nextSeq,
		TimestampMS: time.Now().UnixMilli(),
		Message:     msg,
	}
	r.lines = append(r.lines, line)
	if len(r.lines) > r.maxKeep {
		trim := len(r.lines) - r.maxKeep
		r.lines = append([]types.StatusLine(nil), r.lines[trim:]...)
	}
	return line
}

// Logf appends a formatted line.
func (r *Reporter) Logf(format string, a ...any) types.StatusLine {
	return r.Log(fmt.Sprintf(format, a...))
}

// Since returns lines with sequence strictly greater than seq.
func (r *Reporter) Since(seq int64) []types.StatusLine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.lines) == 0 {
		return nil
	}
	out := make([]types.StatusLine, 0, len(r.lines))
	for _, l := range r.lines {
		if l.Seq > seq {
			out = append(out, l)
		}
	}
	return out
}

// Clear drops all retained lines. Sequence numbers keep increasing so cursors
// held by observers stay valid across a clear.
func (r *Reporter) Clear() {
	r.mu.Lock()
	r.lines = nil
	r.mu.Unlock()
}
