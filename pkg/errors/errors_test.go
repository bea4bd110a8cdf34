package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeMatching(t *testing.T) {
	err := fmt.Errorf("stop recording: %w", TimeoutError("encoder did not exit"))

	assert.True(t, HasCode(err, ErrCodeTimeout))
	assert.Equal(t, ErrCodeTimeout, CodeOf(err))
	assert.True(t, stderrors.Is(err, &AppError{Code: ErrCodeTimeout}))
	assert.False(t, stderrors.Is(err, &AppError{Code: ErrCodeRoomFull}))
	assert.Equal(t, ErrorCode(""), CodeOf(stderrors.New("plain")))
}

func TestStatusCodes(t *testing.T) {
	tests := []struct {
		err    *AppError
		status int
	}{
		{RoomNotFoundError(), http.StatusNotFound},
		{RoomEndedError(), http.StatusGone},
		{RoomLockedError(), http.StatusLocked},
		{RoomFullError(), http.StatusConflict},
		{NotAuthorizedError("host only"), http.StatusForbidden},
		{RecordingAlreadyActiveError(), http.StatusConflict},
		{TimeoutError("slow"), http.StatusGatewayTimeout},
		{InvalidConfigurationError("bad"), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(string(tt.err.Code), func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.StatusCode)
		})
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stderrors.New("exec: not found")
	err := ProcessSpawnFailedError(cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "PROCESS_SPAWN_FAILED")
	assert.Same(t, err, GetAppError(fmt.Errorf("wrapped: %w", err)))
}
