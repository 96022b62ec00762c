package sqlite

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var fastRetryConfig = retryConfig{
	maxRetries: 3,
	baseDelay:  time.Millisecond,
	maxDelay:   5 * time.Millisecond,
}

func TestIsTransientSQLiteErr(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{name: "busy", err: fmt.Errorf("SQLITE_BUSY: database is locked"), transient: true},
		{name: "locked", err: fmt.Errorf("SQLITE_LOCKED: database table is locked"), transient: true},
		{name: "short read", err: fmt.Errorf("SQLITE_IOERR (522)"), transient: true},
		{name: "locked text only", err: fmt.Errorf("database is locked (517)"), transient: true},
		{name: "nil", err: nil, transient: false},
		{name: "unique violation", err: fmt.Errorf("UNIQUE constraint failed: state_versions.workflow_id, state_versions.version"), transient: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.transient, isTransientSQLiteErr(tt.err))
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(fmt.Errorf("constraint failed: UNIQUE constraint failed: state_versions.workflow_id (1555)")))
	assert.False(t, isUniqueViolation(fmt.Errorf("SQLITE_BUSY: database is locked")))
	assert.False(t, isUniqueViolation(nil))
}

func TestRetryOpSucceedsFirstAttempt(t *testing.T) {
	calls := 0

	err := retryOp(fastRetryConfig, isTransientSQLiteErr, func() error {
		calls++

		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryOpRecoversFromTransientErrors(t *testing.T) {
	calls := 0

	err := retryOp(fastRetryConfig, isTransientSQLiteErr, func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("SQLITE_BUSY: database is locked")
		}

		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryOpStopsOnNonRetryableError(t *testing.T) {
	calls := 0
	boom := errors.New("no such table: state_versions")

	err := retryOp(fastRetryConfig, isTransientSQLiteErr, func() error {
		calls++

		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRetryOpExhaustsRetries(t *testing.T) {
	calls := 0

	err := retryOp(fastRetryConfig, isTransientSQLiteErr, func() error {
		calls++

		return fmt.Errorf("SQLITE_BUSY: database is locked")
	})

	assert.Error(t, err)
	assert.Equal(t, fastRetryConfig.maxRetries+1, calls)
}

func TestBackoffDelayIsCapped(t *testing.T) {
	for attempt := range 10 {
		delay := backoffDelay(fastRetryConfig, attempt)
		assert.GreaterOrEqual(t, delay, fastRetryConfig.baseDelay)
		assert.Less(t, delay, fastRetryConfig.maxDelay+fastRetryConfig.baseDelay)
	}
}
