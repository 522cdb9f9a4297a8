package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"captiond/internal/common/fsutil"
	"captiond/internal/config"
	"captiond/internal/inference"
	"captiond/internal/status"
	"captiond/pkg/types"
)

// ErrRunActive is returned when a second batch run is started while one is live.
var ErrRunActive = errors.New("batch run already active")

// Captioner is the slice of the inference client the orchestrator needs.
type Captioner interface {
	ListModels(ctx context.Context) error
	Caption(ctx context.Context, image []byte, prompt string, maxTokens int) (string, error)
}

// Orchestrator walks the queue on a background goroutine, capturing one image
// at a time. At most one run is active; cancellation is cooperative and takes
// effect at image and folder boundaries, never mid-request.
type Orchestrator struct {
	queue    *Queue
	reporter *status.Reporter

	mu      sync.Mutex
	running bool
	stop    bool
	percent float64
	label   string
	doneCh  chan struct{}
}

// NewOrchestrator wires the orchestrator to its queue and status sink.
func NewOrchestrator(q *Queue, r *status.Reporter) *Orchestrator {
	return &Orchestrator{queue: q, reporter: r, label: "Idle"}
}

// Start begins a run over the current queue. It probes the endpoint first and
// fails with a connection error before any state changes. An empty queue is
// reported as "nothing to do" and is not an error; started is false in that
// case. On success the call returns immediately and processing continues on a
// background goroutine.
func (o *Orchestrator) Start(client Captioner, overwrite bool) (started bool, err error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return false, ErrRunActive
	}
	o.running = true
	o.mu.Unlock()

	probeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = client.ListModels(probeCtx)
	cancel()
	if err != nil {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
		return false, err
	}

	o.reporter.Clear()

	ids := o.queue.ids()
	if len(ids) == 0 {
		o.mu.Lock()
		o.running = false
		o.label = "No folders in queue"
		o.mu.Unlock()
		o.reporter.Log("no folders in queue")
		return false, nil
	}

	o.mu.Lock()
	o.stop = false
	o.percent = 0
	o.label = "Starting..."
	o.doneCh = make(chan struct{})
	o.mu.Unlock()

	go o.run(client, overwrite, ids)
	return true, nil
}

// RequestStop asks the current run to halt at the next image or folder
// boundary. In-flight inference is allowed to complete.
func (o *Orchestrator) RequestStop() {
	o.mu.Lock()
	if o.running {
		o.stop = true
		o.label = "Stopping..."
	}
	o.mu.Unlock()
}

// Running reports whether a run is active.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Progress returns the overall percentage and the current progress label.
func (o *Orchestrator) Progress() (float64, string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.percent, o.label
}

// WaitDone blocks until the current run finishes or ctx is done.
func (o *Orchestrator) WaitDone(ctx context.Context) error {
	o.mu.Lock()
	ch := o.doneCh
	running := o.running
	o.mu.Unlock()
	if !running || ch == nil {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) stopped() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stop
}

func (o *Orchestrator) setProgress(pct float64, label string) {
	o.mu.Lock()
	// progress never regresses within a run
	if pct > o.percent {
		o.percent = pct
	}
	if label != "" && !o.stop {
		o.label = label
	}
	o.mu.Unlock()
}

// run processes folders in queue order. Per-image failures are logged and
// counted as not-done, but never abort the folder or the run.
func (o *Orchestrator) run(client Captioner, overwrite bool, ids []int) {
	defer func() {
		o.mu.Lock()
		o.running = false
		o.label = "Idle"
		close(o.doneCh)
		o.mu.Unlock()
	}()

	totalFolders := len(ids)
	cancelled := false

	for idx, id := range ids {
		if o.stopped() {
			cancelled = true
			break
		}
		item, ok := o.queue.Get(id)
		if !ok {
			// removed while pending; keep the denominator stable
			o.setProgress(float64(idx+1)/float64(totalFolders)*100, "")
			continue
		}

		// late binding: the prompt is read when the folder starts
		prompt := item.Prompt
		if prompt == "" {
			prompt = config.DefaultPrompt
		}

		o.queue.setStatus(id, types.ItemProcessing)
		o.reporter.Logf("scanning %s", item.FolderPath)

		imgs, err := DiscoverImages(item.FolderPath)
		if err != nil {
			o.reporter.Logf("✗ %s: %v", item.FolderPath, err)
			o.queue.setStatus(id, types.ItemError)
			o.setProgress(float64(idx+1)/float64(totalFolders)*100, "")
			continue
		}
		totalImgs := len(imgs)
		o.queue.setProgress(id, 0, totalImgs)

		done := 0
		for _, img := range imgs {
			if o.stopped() {
				break
			}
			if o.captionOne(client, img, prompt, overwrite) {
				done++
			}
			pct := (float64(idx) + frac(done, totalImgs)) / float64(totalFolders) * 100
			o.setProgress(pct, progressLabel(item.FolderPath, done, totalImgs))
			o.queue.setProgress(id, done, totalImgs)
		}

		if o.stopped() {
			cancelled = true
			o.queue.setStatus(id, types.ItemStopped)
			o.reporter.Logf("stopped in %s (%d/%d)", item.FolderPath, done, totalImgs)
			break
		}
		o.queue.setStatus(id, types.ItemDone)
		o.setProgress(float64(idx+1)/float64(totalFolders)*100, "")
		o.reporter.Logf("finished %s (%d/%d)", item.FolderPath, done, totalImgs)
	}

	if cancelled {
		runsTotal.WithLabelValues("stopped").Inc()
		o.reporter.Log("batch run stopped")
	} else {
		o.setProgress(100, "")
		runsTotal.WithLabelValues("completed").Inc()
		o.reporter.Log("batch run complete")
	}
}

// captionOne handles a single image: skip when already captioned and overwrite
// is off, otherwise request a caption and persist it. Reports whether the
// image counts as done.
func (o *Orchestrator) captionOne(client Captioner, img, prompt string, overwrite bool) bool {
	name := filepath.Base(img)
	capPath := CaptionPath(img)

	// scan-time snapshot: existence is checked once, here, and not re-checked
	if !overwrite && fsutil.FileExists(capPath) {
		imagesSkippedTotal.Inc()
		return true
	}

	data, err := os.ReadFile(img)
	if err != nil {
		imagesFailedTotal.Inc()
		o.reporter.Logf("✗ %s: %v", name, err)
		return false
	}

	began := time.Now()
	text, err := client.Caption(context.Background(), data, prompt, inference.DefaultMaxTokens)
	if err != nil {
		imagesFailedTotal.Inc()
		o.reporter.Logf("✗ %s: %v", name, err)
		return false
	}
	captionDuration.Observe(time.Since(began).Seconds())

	if err := os.WriteFile(capPath, []byte(text), 0o644); err != nil {
		imagesFailedTotal.Inc()
		o.reporter.Logf("✗ %s: %v", name, err)
		return false
	}
	imagesCaptionedTotal.Inc()
	o.reporter.Logf("✓ %s", name)
	return true
}

func frac(done, total int) float64 {
	if total == 0 {
		return 1
	}
	return float64(done) / float64(total)
}

func progressLabel(folder string, done, total int) string {
	return fmt.Sprintf("%s %d/%d", filepath.Base(folder), done, total)
}
