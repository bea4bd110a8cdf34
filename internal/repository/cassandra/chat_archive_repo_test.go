package cassandra

import (
	"errors"
	"testing"

	"github.com/gocql/gocql"
	"github.com/stretchr/testify/assert"

	"counselmeet-backend/internal/domain"
)

func TestReverse(t *testing.T) {
	msgs := []*domain.ChatMessage{{ID: "3"}, {ID: "2"}, {ID: "1"}}
	reverse(msgs)
	assert.Equal(t, "1", msgs[0].ID)
	assert.Equal(t, "3", msgs[2].ID)

	reverse(nil)
}

func TestErrorType(t *testing.T) {
	assert.Equal(t, "timeout", errorType(&gocql.RequestErrWriteTimeout{}))
	assert.Equal(t, "unavailable", errorType(&gocql.RequestErrUnavailable{}))
	assert.Equal(t, "connection", errorType(gocql.ErrNoConnections))
	assert.Equal(t, "other", errorType(errors.New("boom")))
}
