package encoder

import (
	"bytes"
	"sync"

	"go.uber.org/zap"

	"counselmeet-backend/pkg/logger"
)

// stderrTail keeps the last limit bytes an encoder wrote to stderr and
// debug-logs complete lines as they arrive.
type stderrTail struct {
	mu      sync.Mutex
	buf     []byte
	partial []byte
	limit   int
	fields  []zap.Field
}

func newStderrTail(limit int, fields ...zap.Field) *stderrTail {
	return &stderrTail{limit: limit, fields: fields}
}

func (t *stderrTail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}

	t.partial = append(t.partial, p...)
	for {
		i := bytes.IndexByte(t.partial, '\n')
		if i < 0 {
			break
		}
		if line := bytes.TrimSpace(t.partial[:i]); len(line) > 0 {
			logger.Debug("Encoder output", append(t.fields[:len(t.fields):len(t.fields)], zap.ByteString("line", line))...)
		}
		t.partial = t.partial[i+1:]
	}
	if len(t.partial) > t.limit {
		t.partial = t.partial[len(t.partial)-t.limit:]
	}

	return len(p), nil
}

func (t *stderrTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
