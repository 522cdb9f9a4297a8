// Package app wires the supervisor, queue, orchestrator, and stores into the
// single service consumed by the HTTP layer. All cross-component policy lives
// here: settings fallbacks, endpoint derivation, and shutdown ordering.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"captiond/internal/batch"
	"captiond/internal/captions"
	"captiond/internal/config"
	"captiond/internal/gpu"
	"captiond/internal/inference"
	"captiond/internal/registry"
	"captiond/internal/status"
	"captiond/internal/supervisor"
	"captiond/pkg/types"
)

// App owns every long-lived component of the daemon.
type App struct {
	sup      *supervisor.Supervisor
	queue    *batch.Queue
	orch     *batch.Orchestrator
	reporter *status.Reporter
	settings *config.Store
	gpu      *gpu.Tool

	modelsDir      string
	captionTimeout time.Duration

	// newCaptioner builds the per-run inference client; overridable in tests.
	newCaptioner func(baseURL, model string) batch.Captioner
}

// Options carries construction parameters from main.
type Options struct {
	SettingsPath   string
	ModelsDir      string
	CaptionTimeout time.Duration
}

// New builds the daemon service.
func New(opts Options) *App {
	settings := config.OpenStore(opts.SettingsPath)
	q := batch.NewQueue()
	r := status.NewReporter(0)
	a := &App{
		sup:            supervisor.New(),
		queue:          q,
		orch:           batch.NewOrchestrator(q, r),
		reporter:       r,
		settings:       settings,
		gpu:            gpu.New(),
		modelsDir:      opts.ModelsDir,
		captionTimeout: opts.CaptionTimeout,
	}
	a.newCaptioner = func(baseURL, model string) batch.Captioner {
		return inference.NewClient(baseURL, model, a.captionTimeout)
	}
	a.sup.SetPublisher(reporterPublisher{r})
	// first launch: fill in the server binary when a build is present
	if s := settings.Get(); s.ServerBinary == "" {
		if bin := registry.DetectBinary(); bin != "" {
			settings.Update(func(st *types.Settings) { st.ServerBinary = bin })
		}
	}
	return a
}

// StartServer launches the inference server. Zero-valued fields of cfg fall
// back to the persisted settings, and the values actually used are persisted
// back so the next launch repeats them.
func (a *App) StartServer(cfg types.ServerConfig) (types.ServerStatusResponse, error) {
	cfg = a.fillServerConfig(cfg)
	if _, err := a.sup.Start(cfg); err != nil {
		return a.ServerStatus(), err
	}
	a.settings.Update(func(st *types.Settings) {
		st.ServerBinary = cfg.BinaryPath
		st.ModelFile = cfg.ModelPath
		st.ProjectorFile = cfg.ProjectorPath
		st.Port = strconv.Itoa(cfg.Port)
		st.Context = strconv.Itoa(cfg.ContextSize)
		st.GPULayers = strconv.Itoa(cfg.GPULayers)
	})
	return a.ServerStatus(), nil
}

// StopServer signals the server's process group; it never waits for exit.
func (a *App) StopServer() error { return a.sup.Stop() }

// ServerStatus reports the supervisor state.
func (a *App) ServerStatus() types.ServerStatusResponse {
	state, handle := a.sup.Status()
	resp := types.ServerStatusResponse{State: state}
	if state == types.ServerRunning || state == types.ServerStarting {
		resp.PID = handle.PID
		resp.BaseURL = a.sup.BaseURL() + "/v1"
	}
	return resp
}

// ServerLogs returns the retained tail of the server's combined output.
func (a *App) ServerLogs() []string { return a.sup.Logs() }

// Queue returns the work items in insertion order.
func (a *App) Queue() []types.WorkItem { return a.queue.Items() }

// Enqueue appends a folder. An empty prompt defaults to the last-used prompt.
func (a *App) Enqueue(folderPath, prompt string) (types.WorkItem, error) {
	if folderPath == "" {
		return types.WorkItem{}, fmt.Errorf("folder_path is required")
	}
	if prompt == "" {
		prompt = a.settings.Get().LastPrompt
	}
	return a.queue.Add(folderPath, prompt), nil
}

// Dequeue removes an item unless it is processing.
func (a *App) Dequeue(id int) bool { return a.queue.Remove(id) }

// SetPrompt updates an item's prompt and remembers it as the last-used prompt.
func (a *App) SetPrompt(id int, prompt string) bool {
	if !a.queue.SetPrompt(id, prompt) {
		return false
	}
	a.settings.Update(func(st *types.Settings) { st.LastPrompt = prompt })
	return true
}

// StartBatch begins a run against the current inference endpoint.
func (a *App) StartBatch(overwrite bool) (bool, error) {
	s := a.settings.Get()
	client := a.newCaptioner(a.endpointBaseURL(s), filepath.Base(s.ModelFile))
	return a.orch.Start(client, overwrite)
}

// StopBatch requests a cooperative stop of the current run.
func (a *App) StopBatch() { a.orch.RequestStop() }

// BatchProgress reports the run indicator.
func (a *App) BatchProgress() types.BatchProgressResponse {
	pct, label := a.orch.Progress()
	return types.BatchProgressResponse{
		Running: a.orch.Running(),
		Percent: pct,
		Label:   label,
	}
}

// StatusSince returns status lines newer than seq.
func (a *App) StatusSince(seq int64) []types.StatusLine { return a.reporter.Since(seq) }

// DetectBinary probes the conventional llama-server build locations.
func (a *App) DetectBinary() string { return registry.DetectBinary() }

// Models lists GGUF files in the configured models directory.
func (a *App) Models() ([]types.Model, error) {
	if a.modelsDir == "" {
		return nil, nil
	}
	return registry.LoadDir(a.modelsDir)
}

// Settings returns the persisted configuration.
func (a *App) Settings() types.Settings { return a.settings.Get() }

// UpdateSettings overwrites every field and persists immediately.
func (a *App) UpdateSettings(s types.Settings) types.Settings {
	return a.settings.Update(func(st *types.Settings) { *st = s })
}

// ListCaptions lists the images of a folder with their caption state.
func (a *App) ListCaptions(dir string) ([]types.CaptionResponse, error) {
	return captions.ListImages(dir)
}

// LoadCaption reads one image's caption.
func (a *App) LoadCaption(imagePath string) (types.CaptionResponse, error) {
	return captions.Load(imagePath)
}

// SaveCaption writes one image's caption.
func (a *App) SaveCaption(imagePath, text string) error {
	return captions.Save(imagePath, text)
}

// MoveKeyword moves image/caption pairs matching a caption keyword.
func (a *App) MoveKeyword(req types.MoveRequest) (types.MoveResponse, error) {
	return captions.MoveKeywordPairs(req.SourceDir, req.Keyword, req.TargetDir)
}

// VRAM queries GPU memory via nvidia-smi.
func (a *App) VRAM(ctx context.Context) (types.VRAMInfo, error) { return a.gpu.VRAMInfo(ctx) }

// KillGPU terminates GPU compute processes.
func (a *App) KillGPU(ctx context.Context) (int, error) { return a.gpu.KillComputeProcesses(ctx) }

// Shutdown stops the batch run and the server process, waiting briefly for the
// process group to be reaped so no orphans outlive the daemon.
func (a *App) Shutdown(ctx context.Context) {
	a.orch.RequestStop()
	if err := a.sup.Stop(); err == nil {
		_ = a.sup.WaitExit(ctx)
	}
	_ = a.orch.WaitDone(ctx)
}

// fillServerConfig substitutes persisted settings for zero-valued fields.
func (a *App) fillServerConfig(cfg types.ServerConfig) types.ServerConfig {
	s := a.settings.Get()
	if cfg.BinaryPath == "" {
		cfg.BinaryPath = s.ServerBinary
	}
	if cfg.ModelPath == "" {
		cfg.ModelPath = s.ModelFile
	}
	if cfg.ProjectorPath == "" {
		cfg.ProjectorPath = s.ProjectorFile
	}
	if cfg.Port == 0 {
		cfg.Port = atoiOr(s.Port, atoiOr(config.DefaultPort, 11434))
	}
	if cfg.ContextSize == 0 {
		cfg.ContextSize = atoiOr(s.Context, atoiOr(config.DefaultContext, 8192))
	}
	if cfg.GPULayers == 0 {
		cfg.GPULayers = atoiOr(s.GPULayers, atoiOr(config.DefaultGPU, 99))
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = atoiOr(config.DefaultBatch, 512)
	}
	return cfg
}

// endpointBaseURL prefers the supervised server, falling back to the
// configured port for an externally managed one.
func (a *App) endpointBaseURL(s types.Settings) string {
	if url := a.sup.BaseURL(); url != "" {
		return url
	}
	return "http://127.0.0.1:" + s.Port
}

// reporterPublisher surfaces server lifecycle events as status lines.
type reporterPublisher struct{ r *status.Reporter }

func (p reporterPublisher) Publish(e supervisor.Event) {
	switch e.Name {
	case "server_start":
		p.r.Logf("server started (pid %v, port %v)", e.Fields["pid"], e.Fields["port"])
	case "server_exit":
		if msg, ok := e.Fields["error"]; ok {
			p.r.Logf("server exited: %v", msg)
			return
		}
		p.r.Log("server exited")
	case "server_stop_requested":
		p.r.Log("server stop requested")
	}
}

func atoiOr(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
