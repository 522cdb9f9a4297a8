// Package supervisor owns the external inference-server process: launch from
// an immutable config, stream its combined output, and tear down the whole
// process group without ever blocking the caller.
package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"captiond/internal/common/fsutil"
	"captiond/pkg/types"
)

const (
	defaultKillGrace = 5 * time.Second
	maxTailLines     = 500
	lineChanDepth    = 256
)

// Handle identifies one launched server process.
type Handle struct {
	PID  int
	PGID int
}

// Supervisor manages at most one inference-server process at a time.
type Supervisor struct {
	mu        sync.Mutex
	state     types.ServerState
	gen       int
	cfg       types.ServerConfig
	cmd       *exec.Cmd
	handle    Handle
	lines     chan string
	tail      []string
	waitCh    chan struct{}
	publisher EventPublisher

	httpClient *http.Client
	killGrace  time.Duration
}

// New constructs a Supervisor in the Stopped state.
func New() *Supervisor {
	return &Supervisor{
		state:      types.ServerStopped,
		publisher:  noopPublisher{},
		httpClient: &http.Client{},
		killGrace:  defaultKillGrace,
	}
}

// SetPublisher installs an EventPublisher for lifecycle events.
func (s *Supervisor) SetPublisher(p EventPublisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p == nil {
		s.publisher = noopPublisher{}
		return
	}
	s.publisher = p
}

// SetKillGrace overrides how long Stop waits in the background before
// escalating from SIGTERM to SIGKILL.
func (s *Supervisor) SetKillGrace(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d > 0 {
		s.killGrace = d
	}
}

// args derives the llama-server command line one-to-one from the config.
func args(cfg types.ServerConfig) []string {
	a := []string{
		"-m", cfg.ModelPath,
		"--port", strconv.Itoa(cfg.Port),
		"--ctx-size", strconv.Itoa(cfg.ContextSize),
		"-ngl", strconv.Itoa(cfg.GPULayers),
		"-b", strconv.Itoa(cfg.BatchSize),
	}
	if cfg.ProjectorPath != "" {
		a = append(a, "--mmproj", cfg.ProjectorPath)
	}
	return a
}

// Start launches the server binary described by cfg. The process leads a new
// process group so it and any children can be signaled as a unit. Fails fast
// with a launch error before spawning when the binary or model is missing.
func (s *Supervisor) Start(cfg types.ServerConfig) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != types.ServerStopped {
		return Handle{}, ErrAlreadyRunning
	}
	if !fsutil.FileExists(cfg.BinaryPath) {
		return Handle{}, ErrLaunch("server binary not found: " + cfg.BinaryPath)
	}
	if !fsutil.FileExists(cfg.ModelPath) {
		return Handle{}, ErrLaunch("model file not found: " + cfg.ModelPath)
	}
	if cfg.ProjectorPath != "" && !fsutil.FileExists(cfg.ProjectorPath) {
		return Handle{}, ErrLaunch("projector file not found: " + cfg.ProjectorPath)
	}

	cmd := exec.Command(cfg.BinaryPath, args(cfg)...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return Handle{}, ErrLaunch("stdout pipe: " + err.Error())
	}
	cmd.Stderr = cmd.Stdout

	s.state = types.ServerStarting
	if err := cmd.Start(); err != nil {
		s.state = types.ServerStopped
		return Handle{}, ErrLaunch("spawn: " + err.Error())
	}

	pid := cmd.Process.Pid
	pgid, err := syscall.Getpgid(pid)
	if err != nil {
		// the child was created with Setpgid, so it leads its own group
		pgid = pid
	}
	s.gen++
	s.cfg = cfg
	s.cmd = cmd
	s.handle = Handle{PID: pid, PGID: pgid}
	s.lines = make(chan string, lineChanDepth)
	s.tail = nil
	s.waitCh = make(chan struct{})
	s.state = types.ServerRunning
	s.publisher.Publish(Event{Name: "server_start", Fields: map[string]any{
		"pid": pid, "port": cfg.Port, "model": cfg.ModelPath,
	}})

	go s.watch(s.gen, cmd, pipe, s.lines, s.waitCh)
	return s.handle, nil
}

// watch drains the combined output pipe line by line, then reaps the process.
// EOF on the pipe is the single source of truth for "process exited".
func (s *Supervisor) watch(gen int, cmd *exec.Cmd, pipe io.Reader, lines chan string, waitCh chan struct{}) {
	sc := bufio.NewScanner(pipe)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		s.mu.Lock()
		s.tail = append(s.tail, line)
		if len(s.tail) > maxTailLines {
			s.tail = append([]string(nil), s.tail[len(s.tail)-maxTailLines:]...)
		}
		s.mu.Unlock()
		// one subscriber per handle; drop rather than block when it lags
		select {
		case lines <- line:
		default:
		}
	}
	err := cmd.Wait()
	close(lines)

	s.mu.Lock()
	if s.gen == gen {
		s.state = types.ServerStopped
		s.cmd = nil
	}
	pub := s.publisher
	s.mu.Unlock()

	fields := map[string]any{"pid": cmd.Process.Pid}
	if err != nil {
		fields["error"] = err.Error()
	}
	pub.Publish(Event{Name: "server_exit", Fields: fields})
	close(waitCh)
}

// Stop signals the whole process group and returns immediately. The process is
// reaped on the watcher goroutine; a background timer escalates to SIGKILL if
// the group ignores SIGTERM past the grace period.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if s.state != types.ServerRunning && s.state != types.ServerStarting {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.state = types.ServerStopping
	pgid := s.handle.PGID
	waitCh := s.waitCh
	grace := s.killGrace
	pub := s.publisher
	s.mu.Unlock()

	_ = syscall.Kill(-pgid, syscall.SIGTERM)
	pub.Publish(Event{Name: "server_stop_requested", Fields: map[string]any{"pgid": pgid}})

	go func() {
		select {
		case <-waitCh:
		case <-time.After(grace):
			_ = syscall.Kill(-pgid, syscall.SIGKILL)
		}
	}()
	return nil
}

// Output returns the line stream of the most recent process, or nil before the
// first launch. The channel is closed when the process exits, so subscribing
// after exit observes an immediately-drained stream rather than a hang.
// One subscriber per handle.
func (s *Supervisor) Output() <-chan string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines
}

// Logs returns a snapshot of the retained output tail.
func (s *Supervisor) Logs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.tail))
	copy(out, s.tail)
	return out
}

// Status reports the current state and, when live, the process handle.
func (s *Supervisor) Status() (types.ServerState, Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == types.ServerStopped {
		return s.state, Handle{}
	}
	return s.state, s.handle
}

// BaseURL returns the HTTP endpoint of the supervised server.
func (s *Supervisor) BaseURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	port := s.cfg.Port
	if port == 0 {
		return ""
	}
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}

// Healthy checks whether the server at baseURL responds OK to /v1/models.
func (s *Supervisor) Healthy(ctx context.Context, baseURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/models", nil)
	if err != nil {
		return false
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// WaitExit blocks until the current process is reaped or ctx is done.
// Intended for tests and for the daemon's own shutdown path, never for the
// control flow that issued Stop.
func (s *Supervisor) WaitExit(ctx context.Context) error {
	s.mu.Lock()
	waitCh := s.waitCh
	state := s.state
	s.mu.Unlock()
	if state == types.ServerStopped || waitCh == nil {
		return nil
	}
	select {
	case <-waitCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
