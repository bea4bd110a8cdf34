package encoder

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"counselmeet-backend/pkg/constants"
	apperrors "counselmeet-backend/pkg/errors"
	"counselmeet-backend/pkg/logger"
	"counselmeet-backend/pkg/metrics"
)

// Purpose distinguishes the encoder runs a room may have at the same time
type Purpose string

const (
	PurposeRecording Purpose = "recording"
	PurposeStreaming Purpose = "streaming"
)

// State of a supervised process: starting -> running -> stopping -> completed | failed
type State string

const (
	StateStarting  State = "starting"
	StateRunning   State = "running"
	StateStopping  State = "stopping"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// StartConfig describes the encoder run to launch
type StartConfig struct {
	Purpose Purpose
	// Target is the push destination for streaming runs
	Target string
}

// StartResult is returned once the process is confirmed running
type StartResult struct {
	ID         string
	OutputPath string
	StartedAt  time.Time
}

// ExitStatus is the final state of a supervised process
type ExitStatus struct {
	ID         string
	RoomID     string
	Purpose    Purpose
	State      State
	ExitCode   int
	OutputPath string
	StartedAt  time.Time
	EndedAt    time.Time
	Stderr     string
}

// ProcessInfo is a snapshot of a live process
type ProcessInfo struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"room_id"`
	Purpose    Purpose   `json:"purpose"`
	State      State     `json:"state"`
	PID        int       `json:"pid"`
	OutputPath string    `json:"output_path"`
	StartedAt  time.Time `json:"started_at"`
}

// Config for a Supervisor
type Config struct {
	OutputDir string
	// ExitBuffer sizes the exit notification channel
	ExitBuffer int
	// StderrTail is how many stderr bytes are kept per process
	StderrTail int
}

type processKey struct {
	roomID  string
	purpose Purpose
}

type process struct {
	id         string
	roomID     string
	purpose    Purpose
	outputPath string
	startedAt  time.Time

	// guarded by Supervisor.mu
	cmd    *exec.Cmd
	state  State
	killed bool

	done   chan struct{}
	status ExitStatus
	stderr *stderrTail
}

// Supervisor owns external encoder processes, at most one per room and purpose
type Supervisor struct {
	mu       sync.Mutex
	procs    map[processKey]*process
	lastExit map[processKey]ExitStatus

	builder   CommandBuilder
	outputDir string
	tailSize  int

	exits     chan ExitStatus
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewSupervisor creates a supervisor launching commands from builder
func NewSupervisor(builder CommandBuilder, cfg Config) *Supervisor {
	if cfg.ExitBuffer <= 0 {
		cfg.ExitBuffer = 64
	}
	if cfg.StderrTail <= 0 {
		cfg.StderrTail = constants.EncoderStderrTail
	}
	return &Supervisor{
		procs:     make(map[processKey]*process),
		lastExit:  make(map[processKey]ExitStatus),
		builder:   builder,
		outputDir: cfg.OutputDir,
		tailSize:  cfg.StderrTail,
		exits:     make(chan ExitStatus, cfg.ExitBuffer),
		closed:    make(chan struct{}),
	}
}

// Exits delivers the final status of every process that exits
func (s *Supervisor) Exits() <-chan ExitStatus {
	return s.exits
}

// Start spawns an encoder for the room and returns once it is running.
// ctx bounds the wait for spawn confirmation.
func (s *Supervisor) Start(ctx context.Context, roomID string, cfg StartConfig) (*StartResult, error) {
	if roomID == "" {
		return nil, apperrors.InvalidInputError("room id is required")
	}
	if cfg.Purpose != PurposeRecording && cfg.Purpose != PurposeStreaming {
		return nil, apperrors.InvalidConfigurationError("unknown encoder purpose")
	}
	if cfg.Purpose == PurposeStreaming && cfg.Target == "" {
		return nil, apperrors.InvalidConfigurationError("stream target is required")
	}

	key := processKey{roomID: roomID, purpose: cfg.Purpose}
	p := &process{
		id:      uuid.New().String(),
		roomID:  roomID,
		purpose: cfg.Purpose,
		state:   StateStarting,
		done:    make(chan struct{}),
	}
	if cfg.Purpose == PurposeRecording {
		p.outputPath = filepath.Join(s.outputDir, roomID, p.id+".mp4")
	} else {
		p.outputPath = cfg.Target
	}
	p.stderr = newStderrTail(s.tailSize,
		zap.String("room_id", roomID),
		zap.String("purpose", string(cfg.Purpose)),
		zap.String("process_id", p.id))

	s.mu.Lock()
	select {
	case <-s.closed:
		s.mu.Unlock()
		return nil, apperrors.ServiceUnavailableError("encoder supervisor is shut down")
	default:
	}
	if _, exists := s.procs[key]; exists {
		s.mu.Unlock()
		return nil, apperrors.AlreadyActiveError("an encoder is already running for this room")
	}
	s.procs[key] = p
	delete(s.lastExit, key)
	s.mu.Unlock()

	if cfg.Purpose == PurposeRecording {
		if err := os.MkdirAll(filepath.Dir(p.outputPath), 0o750); err != nil {
			s.release(key, p)
			metrics.EncoderSpawnFailuresTotal.WithLabelValues(string(cfg.Purpose), "output_dir").Inc()
			return nil, apperrors.ProcessSpawnFailedError(err)
		}
	}

	cmd, err := s.builder.Build(Spec{
		ProcessID:  p.id,
		RoomID:     roomID,
		Purpose:    cfg.Purpose,
		OutputPath: p.outputPath,
		Target:     cfg.Target,
	})
	if err != nil {
		s.release(key, p)
		metrics.EncoderSpawnFailuresTotal.WithLabelValues(string(cfg.Purpose), "build").Inc()
		return nil, apperrors.ProcessSpawnFailedError(err)
	}
	cmd.Stderr = p.stderr

	started := make(chan error, 1)
	go func() { started <- cmd.Start() }()

	select {
	case err := <-started:
		if err != nil {
			s.release(key, p)
			metrics.EncoderSpawnFailuresTotal.WithLabelValues(string(cfg.Purpose), "exec").Inc()
			logger.Warn("Encoder failed to start",
				zap.String("room_id", roomID),
				zap.String("purpose", string(cfg.Purpose)),
				zap.Error(err))
			return nil, apperrors.ProcessSpawnFailedError(err)
		}
	case <-ctx.Done():
		// The spawn may still succeed; reap it in the background and keep the slot until then.
		go func() {
			if err := <-started; err == nil {
				_ = cmd.Process.Kill()
				_ = cmd.Wait()
			}
			s.release(key, p)
		}()
		metrics.EncoderSpawnFailuresTotal.WithLabelValues(string(cfg.Purpose), "timeout").Inc()
		return nil, apperrors.TimeoutError("encoder did not confirm start in time")
	}

	s.mu.Lock()
	p.cmd = cmd
	p.state = StateRunning
	p.startedAt = time.Now()
	s.mu.Unlock()

	metrics.EncoderProcessesActive.WithLabelValues(string(cfg.Purpose)).Inc()
	logger.Info("Encoder started",
		zap.String("room_id", roomID),
		zap.String("purpose", string(cfg.Purpose)),
		zap.String("process_id", p.id),
		zap.Int("pid", cmd.Process.Pid))

	s.wg.Add(1)
	go s.wait(key, p)

	return &StartResult{ID: p.id, OutputPath: p.outputPath, StartedAt: p.startedAt}, nil
}

// Stop asks the room's encoder to exit gracefully and waits for it.
// If the process already exited, its final status is returned.
// When ctx expires first a Timeout error is returned and the process is left stopping.
func (s *Supervisor) Stop(ctx context.Context, roomID string, purpose Purpose) (*ExitStatus, error) {
	key := processKey{roomID: roomID, purpose: purpose}

	s.mu.Lock()
	p, ok := s.procs[key]
	if !ok {
		last, known := s.lastExit[key]
		s.mu.Unlock()
		if known {
			return &last, nil
		}
		return nil, apperrors.NoActiveProcessError()
	}
	switch p.state {
	case StateStarting:
		s.mu.Unlock()
		return nil, apperrors.ConflictError("encoder is still starting")
	case StateRunning:
		p.state = StateStopping
		if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
			logger.Warn("Failed to signal encoder",
				zap.String("room_id", roomID),
				zap.String("process_id", p.id),
				zap.Error(err))
		}
	}
	s.mu.Unlock()

	select {
	case <-p.done:
		status := p.status
		return &status, nil
	case <-ctx.Done():
		return nil, apperrors.TimeoutError("encoder did not exit before the stop deadline")
	}
}

// Kill terminates the room's encoder immediately; its exit is reported as failed
func (s *Supervisor) Kill(roomID string, purpose Purpose) error {
	key := processKey{roomID: roomID, purpose: purpose}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.procs[key]
	if !ok || p.cmd == nil {
		return apperrors.NoActiveProcessError()
	}
	p.killed = true
	p.state = StateStopping
	return p.cmd.Process.Kill()
}

// ListActive returns the live processes ordered by start time
func (s *Supervisor) ListActive() []ProcessInfo {
	s.mu.Lock()
	out := make([]ProcessInfo, 0, len(s.procs))
	for _, p := range s.procs {
		info := ProcessInfo{
			ID:         p.id,
			RoomID:     p.roomID,
			Purpose:    p.purpose,
			State:      p.state,
			OutputPath: p.outputPath,
			StartedAt:  p.startedAt,
		}
		if p.cmd != nil && p.cmd.Process != nil {
			info.PID = p.cmd.Process.Pid
		}
		out = append(out, info)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Shutdown stops every live process, killing those that outlive ctx
func (s *Supervisor) Shutdown(ctx context.Context) {
	for _, info := range s.ListActive() {
		if info.State == StateStarting {
			continue
		}
		if _, err := s.Stop(ctx, info.RoomID, info.Purpose); err != nil {
			logger.Warn("Encoder did not stop gracefully, killing",
				zap.String("room_id", info.RoomID),
				zap.String("purpose", string(info.Purpose)),
				zap.Error(err))
			_ = s.Kill(info.RoomID, info.Purpose)
		}
	}

	s.closeOnce.Do(func() { close(s.closed) })

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (s *Supervisor) wait(key processKey, p *process) {
	defer s.wg.Done()

	waitErr := p.cmd.Wait()
	endedAt := time.Now()

	s.mu.Lock()
	state := StateCompleted
	if waitErr != nil && (p.killed || p.state != StateStopping || !interruptedByStop(p.cmd.ProcessState)) {
		state = StateFailed
	}
	exitCode := -1
	if p.cmd.ProcessState != nil {
		exitCode = p.cmd.ProcessState.ExitCode()
	}
	p.state = state
	p.status = ExitStatus{
		ID:         p.id,
		RoomID:     p.roomID,
		Purpose:    p.purpose,
		State:      state,
		ExitCode:   exitCode,
		OutputPath: p.outputPath,
		StartedAt:  p.startedAt,
		EndedAt:    endedAt,
		Stderr:     p.stderr.String(),
	}
	if s.procs[key] == p {
		delete(s.procs, key)
	}
	s.lastExit[key] = p.status
	status := p.status
	s.mu.Unlock()
	close(p.done)

	metrics.EncoderProcessesActive.WithLabelValues(string(p.purpose)).Dec()
	metrics.EncoderProcessExitsTotal.WithLabelValues(string(p.purpose), string(state)).Inc()

	fields := []zap.Field{
		zap.String("room_id", p.roomID),
		zap.String("purpose", string(p.purpose)),
		zap.String("process_id", p.id),
		zap.Int("exit_code", exitCode),
		zap.String("state", string(state)),
	}
	if state == StateFailed {
		logger.Warn("Encoder exited with failure", append(fields, zap.String("stderr", status.Stderr))...)
	} else {
		logger.Info("Encoder exited", fields...)
	}

	select {
	case s.exits <- status:
	case <-s.closed:
	}
}

func (s *Supervisor) release(key processKey, p *process) {
	s.mu.Lock()
	if s.procs[key] == p {
		delete(s.procs, key)
	}
	s.mu.Unlock()
}

// interruptedByStop reports whether an exit is the expected outcome of our
// interrupt: death by SIGINT/SIGTERM or ffmpeg's 255 exit on interrupt.
func interruptedByStop(ps *os.ProcessState) bool {
	if ps == nil {
		return false
	}
	if ps.ExitCode() == 255 {
		return true
	}
	ws, ok := ps.Sys().(syscall.WaitStatus)
	if !ok || !ws.Signaled() {
		return false
	}
	return ws.Signal() == syscall.SIGINT || ws.Signal() == syscall.SIGTERM
}
