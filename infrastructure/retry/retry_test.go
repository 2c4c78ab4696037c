package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	}
}

func TestDo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		failures     int
		err          error
		wantAttempts int
		wantErr      bool
		errContains  string
	}{
		{
			name:         "success on first attempt",
			wantAttempts: 1,
		},
		{
			name:         "success after transient failures",
			failures:     2,
			err:          errors.New("connection reset by peer"),
			wantAttempts: 3,
		},
		{
			name:         "exhausts attempts",
			failures:     5,
			err:          nats.ErrTimeout,
			wantAttempts: 3,
			wantErr:      true,
			errContains:  "failed after 3 attempts",
		},
		{
			name:         "permanent error stops immediately",
			failures:     5,
			err:          errors.New("invalid receipt"),
			wantAttempts: 1,
			wantErr:      true,
			errContains:  "invalid receipt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			attempts := 0
			err := Do(context.Background(), fastConfig(), func() error {
				attempts++
				if attempts <= tt.failures {
					return tt.err
				}
				return nil
			})

			assert.Equal(t, tt.wantAttempts, attempts)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxAttempts: 3, BaseBackoff: time.Hour, MaxBackoff: time.Hour}

	attempts := 0
	err := Do(ctx, cfg, func() error {
		attempts++
		cancel()
		return errors.New("timeout waiting for ack")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"cancelled", context.Canceled, false},
		{"deadline wrapped", fmt.Errorf("publish: %w", context.DeadlineExceeded), false},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", fmt.Errorf("update: %w", &pgconn.PgError{Code: "40P01"}), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"nats timeout", nats.ErrTimeout, true},
		{"nats no responders", nats.ErrNoResponders, true},
		{"nats closed", nats.ErrConnectionClosed, false},
		{"connection refused text", errors.New("dial tcp: connection refused"), true},
		{"business error", errors.New("insufficient balance"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestCalculateBackoff(t *testing.T) {
	t.Parallel()

	for attempt := 1; attempt <= 10; attempt++ {
		backoff := calculateBackoff(100*time.Millisecond, time.Second, attempt)
		assert.LessOrEqual(t, backoff, time.Second)
		assert.GreaterOrEqual(t, backoff, 50*time.Millisecond)
	}
}
