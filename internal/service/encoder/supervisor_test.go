package encoder

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "counselmeet-backend/pkg/errors"
)

func shellBuilder(script string) CommandBuilder {
	return CommandFunc(func(spec Spec) (*exec.Cmd, error) {
		return exec.Command("sh", "-c", script), nil
	})
}

func newTestSupervisor(t *testing.T, builder CommandBuilder) *Supervisor {
	t.Helper()
	s := NewSupervisor(builder, Config{OutputDir: t.TempDir()})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Shutdown(ctx)
	})
	return s
}

func waitExit(t *testing.T, s *Supervisor) ExitStatus {
	t.Helper()
	select {
	case status := <-s.Exits():
		return status
	case <-time.After(5 * time.Second):
		t.Fatal("no exit notification")
		return ExitStatus{}
	}
}

func TestSupervisor_StartAndGracefulStop(t *testing.T) {
	s := newTestSupervisor(t, shellBuilder("exec sleep 30"))

	res, err := s.Start(context.Background(), "room-1", StartConfig{Purpose: PurposeRecording})
	require.NoError(t, err)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, filepath.Join(s.outputDir, "room-1", res.ID+".mp4"), res.OutputPath)
	assert.DirExists(t, filepath.Dir(res.OutputPath))

	active := s.ListActive()
	require.Len(t, active, 1)
	assert.Equal(t, StateRunning, active[0].State)
	assert.Equal(t, "room-1", active[0].RoomID)
	assert.NotZero(t, active[0].PID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	status, err := s.Stop(ctx, "room-1", PurposeRecording)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, status.State)
	assert.Equal(t, res.ID, status.ID)
	assert.Empty(t, s.ListActive())

	exit := waitExit(t, s)
	assert.Equal(t, res.ID, exit.ID)
	assert.Equal(t, StateCompleted, exit.State)
}

func TestSupervisor_AlreadyActive(t *testing.T) {
	s := newTestSupervisor(t, shellBuilder("exec sleep 30"))

	_, err := s.Start(context.Background(), "room-1", StartConfig{Purpose: PurposeRecording})
	require.NoError(t, err)

	_, err = s.Start(context.Background(), "room-1", StartConfig{Purpose: PurposeRecording})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeAlreadyActive))

	// A different purpose for the same room is independent.
	_, err = s.Start(context.Background(), "room-1", StartConfig{Purpose: PurposeStreaming, Target: "rtmp://example/live"})
	assert.NoError(t, err)
	assert.Len(t, s.ListActive(), 2)
}

func TestSupervisor_NonZeroExitIsReportedAsFailed(t *testing.T) {
	s := newTestSupervisor(t, shellBuilder("echo 'input stream not found' >&2; exit 3"))

	res, err := s.Start(context.Background(), "room-1", StartConfig{Purpose: PurposeRecording})
	require.NoError(t, err)

	exit := waitExit(t, s)
	assert.Equal(t, res.ID, exit.ID)
	assert.Equal(t, StateFailed, exit.State)
	assert.Equal(t, 3, exit.ExitCode)
	assert.Contains(t, exit.Stderr, "input stream not found")

	// Stop after exit returns the known final state.
	status, err := s.Stop(context.Background(), "room-1", PurposeRecording)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, status.State)
	assert.Equal(t, 3, status.ExitCode)
}

func TestSupervisor_CleanExitIsCompleted(t *testing.T) {
	s := newTestSupervisor(t, shellBuilder("exit 0"))

	_, err := s.Start(context.Background(), "room-1", StartConfig{Purpose: PurposeRecording})
	require.NoError(t, err)

	exit := waitExit(t, s)
	assert.Equal(t, StateCompleted, exit.State)
	assert.Equal(t, 0, exit.ExitCode)
}

func TestSupervisor_SpawnFailure(t *testing.T) {
	builder := CommandFunc(func(spec Spec) (*exec.Cmd, error) {
		return exec.Command("/nonexistent/encoder-binary"), nil
	})
	s := newTestSupervisor(t, builder)

	_, err := s.Start(context.Background(), "room-1", StartConfig{Purpose: PurposeRecording})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeProcessSpawnFailed))
	assert.Empty(t, s.ListActive())

	// The slot is released so a later start is not blocked.
	s.builder = shellBuilder("exec sleep 30")
	_, err = s.Start(context.Background(), "room-1", StartConfig{Purpose: PurposeRecording})
	assert.NoError(t, err)
}

func TestSupervisor_StopTimeoutThenKill(t *testing.T) {
	s := newTestSupervisor(t, shellBuilder("trap '' INT; while true; do sleep 0.1; done"))

	_, err := s.Start(context.Background(), "room-1", StartConfig{Purpose: PurposeRecording})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err = s.Stop(ctx, "room-1", PurposeRecording)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeTimeout))

	active := s.ListActive()
	require.Len(t, active, 1)
	assert.Equal(t, StateStopping, active[0].State)

	require.NoError(t, s.Kill("room-1", PurposeRecording))
	exit := waitExit(t, s)
	assert.Equal(t, StateFailed, exit.State)
}

func TestSupervisor_StopUnknown(t *testing.T) {
	s := newTestSupervisor(t, shellBuilder("exit 0"))

	_, err := s.Stop(context.Background(), "missing", PurposeRecording)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNoActiveProcess))
}

func TestSupervisor_StreamingRequiresTarget(t *testing.T) {
	s := newTestSupervisor(t, shellBuilder("exit 0"))

	_, err := s.Start(context.Background(), "room-1", StartConfig{Purpose: PurposeStreaming})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidConfiguration))
}

func TestFFmpegBuilder_ExpandsTemplates(t *testing.T) {
	b := &FFmpegBuilder{
		Binary:           "ffmpeg",
		InputURLTemplate: "rtmp://ingest/live/{room_id}",
		RecordingArgs:    []string{"-i", "{input}", "{output}"},
		StreamArgs:       []string{"-i", "{input}", "-f", "flv", "{target}"},
	}

	cmd, err := b.Build(Spec{RoomID: "r1", Purpose: PurposeRecording, OutputPath: "/rec/r1/a.mp4"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ffmpeg", "-i", "rtmp://ingest/live/r1", "/rec/r1/a.mp4"}, cmd.Args)

	cmd, err = b.Build(Spec{RoomID: "r1", Purpose: PurposeStreaming, Target: "rtmp://yt/key"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ffmpeg", "-i", "rtmp://ingest/live/r1", "-f", "flv", "rtmp://yt/key"}, cmd.Args)

	_, err = b.Build(Spec{RoomID: "r1", Purpose: PurposeStreaming})
	assert.Error(t, err)
}

func TestStderrTail_KeepsLastBytes(t *testing.T) {
	tail := newStderrTail(8)
	_, _ = tail.Write([]byte("0123456789\nabc"))
	assert.Equal(t, "6789\nabc", tail.String())
}
