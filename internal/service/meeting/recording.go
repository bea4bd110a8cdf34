package meeting

import (
	"context"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"counselmeet-backend/internal/domain"
	"counselmeet-backend/internal/service/encoder"
	"counselmeet-backend/pkg/audit"
	apperrors "counselmeet-backend/pkg/errors"
	"counselmeet-backend/pkg/logger"
	"counselmeet-backend/pkg/metrics"
)

// RecordingOutput is returned when a recording starts
type RecordingOutput struct {
	RecordingID string    `json:"recording_id"`
	OutputPath  string    `json:"output_path"`
	StartedAt   time.Time `json:"started_at"`
}

// StopRecordingOutput summarizes a finalized recording
type StopRecordingOutput struct {
	RecordingID     string                 `json:"recording_id"`
	OutputPath      string                 `json:"output_path"`
	DurationSeconds int64                  `json:"duration_seconds"`
	FileSize        int64                  `json:"file_size"`
	Status          domain.RecordingStatus `json:"status"`
}

// StreamOutput is returned when a live stream starts
type StreamOutput struct {
	StreamID  string    `json:"stream_id"`
	StartedAt time.Time `json:"started_at"`
}

// StartRecording spawns an encoder for the room; only a host may call it
func (s *Service) StartRecording(ctx context.Context, roomID, requesterID string) (*RecordingOutput, error) {
	r, err := s.getRoom(roomID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.info.Status == domain.RoomStatusEnded {
		r.mu.Unlock()
		return nil, apperrors.RoomEndedError()
	}
	host, err := r.requireHost(requesterID)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	// Without an encoder supervisor nothing can record
	if !r.info.Settings.AllowRecording || s.supervisor == nil {
		r.mu.Unlock()
		return nil, apperrors.RecordingDisabledError()
	}
	if r.recording != nil || r.recordingPending {
		r.mu.Unlock()
		return nil, apperrors.RecordingAlreadyActiveError()
	}
	r.recordingPending = true
	startedBy := host.DisplayName
	r.mu.Unlock()

	startCtx, cancel := context.WithTimeout(ctx, s.cfg.StartTimeout)
	res, startErr := s.supervisor.Start(startCtx, roomID, encoder.StartConfig{Purpose: encoder.PurposeRecording})
	cancel()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordingPending = false

	if startErr != nil {
		metrics.MeetingRecordingsTotal.WithLabelValues("spawn_failed").Inc()
		return nil, mapStartError(startErr, apperrors.RecordingAlreadyActiveError)
	}
	if r.info.Status == domain.RoomStatusEnded {
		s.stopAsync(roomID, encoder.PurposeRecording)
		return nil, apperrors.RoomEndedError()
	}

	rec := &domain.Recording{
		ID:         res.ID,
		RoomID:     roomID,
		OutputPath: res.OutputPath,
		StartedAt:  res.StartedAt.UTC(),
		StartedBy:  startedBy,
		Status:     domain.RecordingStatusRecording,
	}
	r.recording = rec
	r.recordings = append(r.recordings, rec)
	metrics.MeetingRecordingsTotal.WithLabelValues("started").Inc()

	s.emit(r, r.activeIDs(""), EventRecordingStarted, RecordingPayload{
		RecordingID: rec.ID,
		StartedBy:   startedBy,
		Status:      rec.Status,
	})
	s.systemMessage(r, "Recording started by "+startedBy, "")
	s.persistRecording(*rec)
	s.auditEvent(audit.EventRecordingStarted, roomID, startedBy, map[string]any{"recording_id": rec.ID})

	logger.FromContext(ctx).Info("Recording started",
		zap.String("room_id", roomID),
		zap.String("recording_id", rec.ID))

	// The encoder may have died before the room lock was retaken.
	if status, ok := r.orphanExits[rec.ID]; ok {
		delete(r.orphanExits, rec.ID)
		s.onRecordingExit(r, rec, status)
	}

	return &RecordingOutput{RecordingID: rec.ID, OutputPath: rec.OutputPath, StartedAt: rec.StartedAt}, nil
}

// StopRecording stops the encoder gracefully, waits for its exit and finalizes the recording
func (s *Service) StopRecording(ctx context.Context, roomID, requesterID string) (*StopRecordingOutput, error) {
	r, err := s.getRoom(roomID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if _, err := r.requireHost(requesterID); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	rec := r.recording
	if rec == nil || r.recordingStopping || s.supervisor == nil {
		r.mu.Unlock()
		return nil, apperrors.NoActiveRecordingError()
	}
	r.recordingStopping = true
	r.mu.Unlock()

	stopCtx, cancel := context.WithTimeout(ctx, s.cfg.StopTimeout)
	status, stopErr := s.supervisor.Stop(stopCtx, roomID, encoder.PurposeRecording)
	cancel()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordingStopping = false

	if r.recording != rec {
		// Finalized while we waited, e.g. the room ended. The size recorded then
		// predates the encoder's final flush.
		s.settleFinalized(r, rec, status, stopErr)
		return stopOutput(rec), nil
	}

	now := s.now()
	if stopErr != nil {
		reason := "encoder stop failed"
		if apperrors.HasCode(stopErr, apperrors.ErrCodeTimeout) {
			reason = "encoder did not exit in time"
			if err := s.supervisor.Kill(roomID, encoder.PurposeRecording); err != nil {
				logger.Warn("Failed to kill encoder", zap.String("room_id", roomID), zap.Error(err))
			}
		}
		s.finalizeRecording(r, rec, now, domain.RecordingStatusFailed, reason)
		s.emit(r, r.activeIDs(""), EventRecordingFailed, RecordingPayload{
			RecordingID: rec.ID,
			Status:      rec.Status,
			Reason:      reason,
		})
		s.systemMessage(r, "Recording failed", "")
		if apperrors.HasCode(stopErr, apperrors.ErrCodeTimeout) {
			return nil, stopErr
		}
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to stop recording", stopErr)
	}

	s.finishRecording(r, rec, *status)
	s.systemMessage(r, "Recording stopped", "")

	logger.FromContext(ctx).Info("Recording stopped",
		zap.String("room_id", roomID),
		zap.String("recording_id", rec.ID),
		zap.String("status", string(rec.Status)),
		zap.Int64("duration_seconds", rec.DurationSeconds))

	return stopOutput(rec), nil
}

// settleFinalized refreshes a recording that was finalized while its stop was in
// flight, now that the encoder has exited. r.mu must be held.
func (s *Service) settleFinalized(r *room, rec *domain.Recording, status *encoder.ExitStatus, stopErr error) {
	if stopErr != nil {
		if apperrors.HasCode(stopErr, apperrors.ErrCodeTimeout) {
			if err := s.supervisor.Kill(r.id, encoder.PurposeRecording); err != nil {
				logger.Warn("Failed to kill encoder", zap.String("room_id", r.id), zap.Error(err))
			}
		}
		return
	}
	rec.FileSize = fileSize(rec.OutputPath)
	s.persistRecording(*rec)
	if status != nil && status.State == encoder.StateCompleted && rec.Status == domain.RecordingStatusCompleted {
		s.upload(rec)
	}
}

func stopOutput(rec *domain.Recording) *StopRecordingOutput {
	return &StopRecordingOutput{
		RecordingID:     rec.ID,
		OutputPath:      rec.OutputPath,
		DurationSeconds: rec.DurationSeconds,
		FileSize:        rec.FileSize,
		Status:          rec.Status,
	}
}

// finishRecording finalizes from an encoder exit and tells the room. r.mu must be held.
func (s *Service) finishRecording(r *room, rec *domain.Recording, status encoder.ExitStatus) {
	endedAt := status.EndedAt.UTC()
	if endedAt.IsZero() {
		endedAt = s.now()
	}
	if status.State == encoder.StateCompleted {
		s.finalizeRecording(r, rec, endedAt, domain.RecordingStatusCompleted, "")
		s.emit(r, r.activeIDs(""), EventRecordingStopped, RecordingPayload{
			RecordingID:     rec.ID,
			Status:          rec.Status,
			DurationSeconds: rec.DurationSeconds,
			FileSize:        rec.FileSize,
		})
		s.upload(rec)
		return
	}
	s.finalizeRecording(r, rec, endedAt, domain.RecordingStatusFailed, exitReason(status))
	s.emit(r, r.activeIDs(""), EventRecordingFailed, RecordingPayload{
		RecordingID: rec.ID,
		Status:      rec.Status,
		Reason:      rec.FailureReason,
	})
}

// onRecordingExit handles an encoder exit nobody asked for. r.mu must be held.
func (s *Service) onRecordingExit(r *room, rec *domain.Recording, status encoder.ExitStatus) {
	s.finishRecording(r, rec, status)
	if rec.Status == domain.RecordingStatusFailed {
		s.systemMessage(r, "Recording failed", "")
	} else {
		s.systemMessage(r, "Recording stopped", "")
	}
}

// finalizeRecording stamps the terminal state. r.mu must be held.
func (s *Service) finalizeRecording(r *room, rec *domain.Recording, endedAt time.Time, status domain.RecordingStatus, reason string) {
	rec.EndedAt = &endedAt
	rec.DurationSeconds = int64(endedAt.Sub(rec.StartedAt).Seconds())
	if rec.DurationSeconds < 0 {
		rec.DurationSeconds = 0
	}
	rec.FileSize = fileSize(rec.OutputPath)
	rec.Status = status
	rec.FailureReason = reason
	if r.recording == rec {
		r.recording = nil
	}

	metrics.MeetingRecordingsTotal.WithLabelValues(string(status)).Inc()
	if status == domain.RecordingStatusCompleted {
		metrics.MeetingRecordingDuration.Observe(float64(rec.DurationSeconds))
	}
	s.persistRecording(*rec)
	s.auditEvent(audit.RecordingEvent(string(status)), r.id, rec.StartedBy, map[string]any{
		"recording_id":     rec.ID,
		"duration_seconds": rec.DurationSeconds,
	})
}

func (s *Service) upload(rec *domain.Recording) {
	if s.uploader == nil || rec.FileSize == 0 {
		return
	}
	snapshot := *rec
	s.enqueue("recording_upload", func(ctx context.Context) error {
		key, err := s.uploader.Upload(ctx, &snapshot)
		if err != nil {
			return err
		}
		s.setObjectKey(snapshot.RoomID, snapshot.ID, key)
		snapshot.ObjectKey = key
		if s.store != nil {
			return s.store.SaveRecording(ctx, &snapshot)
		}
		return nil
	})
}

func (s *Service) setObjectKey(roomID, recordingID, key string) {
	r, err := s.getRoom(roomID)
	if err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.recordings {
		if rec.ID == recordingID {
			rec.ObjectKey = key
			return
		}
	}
}

// StartStream pushes the room to a live streaming target; only a host may call it
func (s *Service) StartStream(ctx context.Context, roomID, requesterID, target string) (*StreamOutput, error) {
	if target == "" {
		target = s.cfg.DefaultStreamTarget
	}
	if target == "" {
		return nil, apperrors.InvalidConfigurationError("no stream target configured")
	}

	r, err := s.getRoom(roomID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.info.Status == domain.RoomStatusEnded {
		r.mu.Unlock()
		return nil, apperrors.RoomEndedError()
	}
	host, err := r.requireHost(requesterID)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	if !r.info.Settings.AllowRecording || r.info.SecurityLevel == domain.SecurityConfidential || s.supervisor == nil {
		r.mu.Unlock()
		return nil, apperrors.StreamingDisabledError()
	}
	if r.stream != nil || r.streamPending {
		r.mu.Unlock()
		return nil, apperrors.StreamAlreadyActiveError()
	}
	r.streamPending = true
	startedBy := host.DisplayName
	r.mu.Unlock()

	startCtx, cancel := context.WithTimeout(ctx, s.cfg.StartTimeout)
	res, startErr := s.supervisor.Start(startCtx, roomID, encoder.StartConfig{Purpose: encoder.PurposeStreaming, Target: target})
	cancel()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.streamPending = false

	if startErr != nil {
		return nil, mapStartError(startErr, apperrors.StreamAlreadyActiveError)
	}
	if r.info.Status == domain.RoomStatusEnded {
		s.stopAsync(roomID, encoder.PurposeStreaming)
		return nil, apperrors.RoomEndedError()
	}

	r.stream = &domain.LiveStream{
		ID:        res.ID,
		RoomID:    roomID,
		Target:    target,
		StartedAt: res.StartedAt.UTC(),
		StartedBy: startedBy,
	}
	s.emit(r, r.activeIDs(""), EventStreamStarted, StreamPayload{StreamID: res.ID, StartedBy: startedBy})
	s.systemMessage(r, "Live stream started by "+startedBy, "")
	s.auditEvent(audit.EventStreamStarted, roomID, startedBy, map[string]any{"stream_id": res.ID})

	if status, ok := r.orphanExits[res.ID]; ok {
		delete(r.orphanExits, res.ID)
		s.onStreamExit(r, status)
	}

	return &StreamOutput{StreamID: res.ID, StartedAt: res.StartedAt.UTC()}, nil
}

// StopStream ends the live stream; only a host may call it
func (s *Service) StopStream(ctx context.Context, roomID, requesterID string) error {
	r, err := s.getRoom(roomID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if _, err := r.requireHost(requesterID); err != nil {
		r.mu.Unlock()
		return err
	}
	stream := r.stream
	if stream == nil || r.streamStopping || s.supervisor == nil {
		r.mu.Unlock()
		return apperrors.NoActiveStreamError()
	}
	r.streamStopping = true
	r.mu.Unlock()

	stopCtx, cancel := context.WithTimeout(ctx, s.cfg.StopTimeout)
	_, stopErr := s.supervisor.Stop(stopCtx, roomID, encoder.PurposeStreaming)
	cancel()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.streamStopping = false

	if r.stream != stream {
		return nil
	}
	r.stream = nil

	reason := ""
	if stopErr != nil {
		reason = "encoder did not exit cleanly"
		if apperrors.HasCode(stopErr, apperrors.ErrCodeTimeout) {
			_ = s.supervisor.Kill(roomID, encoder.PurposeStreaming)
		}
	}
	s.emit(r, r.activeIDs(""), EventStreamStopped, StreamPayload{StreamID: stream.ID, Reason: reason})
	s.systemMessage(r, "Live stream stopped", "")
	s.auditEvent(audit.EventStreamStopped, roomID, "", map[string]any{"stream_id": stream.ID})

	if apperrors.HasCode(stopErr, apperrors.ErrCodeTimeout) {
		return stopErr
	}
	return nil
}

// onStreamExit clears a stream whose encoder died. r.mu must be held.
func (s *Service) onStreamExit(r *room, status encoder.ExitStatus) {
	if r.stream == nil || r.stream.ID != status.ID {
		return
	}
	r.stream = nil
	s.emit(r, r.activeIDs(""), EventStreamStopped, StreamPayload{StreamID: status.ID, Reason: exitReason(status)})
	s.systemMessage(r, "Live stream stopped", "")
}

// handleExit reconciles room state with an encoder exit
func (s *Service) handleExit(status encoder.ExitStatus) {
	if status.Purpose == encoder.PurposeRecording && s.completeFinalizing(status) {
		return
	}

	r, err := s.getRoom(status.RoomID)
	if err != nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch status.Purpose {
	case encoder.PurposeRecording:
		rec := r.recording
		switch {
		case rec != nil && rec.ID == status.ID:
			if r.recordingStopping {
				return
			}
			logger.Warn("Encoder exited during recording",
				zap.String("room_id", r.id),
				zap.String("recording_id", rec.ID),
				zap.String("state", string(status.State)),
				zap.Int("exit_code", status.ExitCode))
			s.onRecordingExit(r, rec, status)
		case r.recordingPending:
			r.orphanExits[status.ID] = status
		}
	case encoder.PurposeStreaming:
		switch {
		case r.stream != nil && r.stream.ID == status.ID:
			if r.streamStopping {
				return
			}
			s.onStreamExit(r, status)
		case r.streamPending:
			r.orphanExits[status.ID] = status
		}
	}
}

// completeFinalizing fills in recordings that were force-finalized when their room ended
func (s *Service) completeFinalizing(status encoder.ExitStatus) bool {
	s.finalizingMu.Lock()
	rec, ok := s.finalizing[status.ID]
	delete(s.finalizing, status.ID)
	s.finalizingMu.Unlock()
	if !ok {
		return false
	}

	var snapshot domain.Recording
	if r, err := s.getRoom(rec.RoomID); err == nil {
		r.mu.Lock()
		rec.FileSize = fileSize(rec.OutputPath)
		snapshot = *rec
		r.mu.Unlock()
	} else {
		rec.FileSize = fileSize(rec.OutputPath)
		snapshot = *rec
	}

	s.persistRecording(snapshot)
	if status.State == encoder.StateCompleted {
		s.upload(&snapshot)
	}
	return true
}

func mapStartError(err error, alreadyActive func() *apperrors.AppError) error {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrCodeAlreadyActive:
		return alreadyActive()
	case apperrors.ErrCodeTimeout, apperrors.ErrCodeProcessSpawnFailed:
		return err
	}
	return apperrors.ProcessSpawnFailedError(err)
}

func exitReason(status encoder.ExitStatus) string {
	if status.State == encoder.StateCompleted {
		return ""
	}
	if status.ExitCode >= 0 {
		return "encoder exited with code " + strconv.Itoa(status.ExitCode)
	}
	return "encoder was terminated"
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
