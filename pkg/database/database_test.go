package database

import (
	"context"
	"testing"
	"time"

	"github.com/gocql/gocql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConsistency(t *testing.T) {
	c, err := ParseConsistency("")
	require.NoError(t, err)
	assert.Equal(t, gocql.LocalQuorum, c)

	c, err = ParseConsistency("quorum")
	require.NoError(t, err)
	assert.Equal(t, gocql.Quorum, c)

	_, err = ParseConsistency("sometimes")
	assert.Error(t, err)
}

func TestBackoff(t *testing.T) {
	retry := RetryConfig{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 5 * time.Second}

	assert.Equal(t, time.Second, backoff(retry, 1))
	assert.Equal(t, 2*time.Second, backoff(retry, 2))
	assert.Equal(t, 4*time.Second, backoff(retry, 3))
	assert.Equal(t, 5*time.Second, backoff(retry, 4))
}

func TestConnectCockroachWithRetry_InvalidDSN(t *testing.T) {
	retry := RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

	_, err := ConnectCockroachWithRetry(context.Background(), &CockroachConfig{DSN: "::not a dsn"}, retry)
	assert.Error(t, err)
}
