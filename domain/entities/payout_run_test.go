package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPayoutRun_CanBeRetried(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     PayoutRunStatus
		isDryRun   bool
		recipients int
		retryCount int
		maxRetries int
		want       bool
	}{
		{name: "partially completed with retries left", status: PayoutRunStatusPartiallyCompleted, recipients: 3, maxRetries: 3, want: true},
		{name: "failed with retries left", status: PayoutRunStatusFailed, recipients: 3, retryCount: 2, maxRetries: 3, want: true},
		{name: "failed before any recipient", status: PayoutRunStatusFailed, maxRetries: 3, want: false},
		{name: "retries exhausted", status: PayoutRunStatusFailed, recipients: 3, retryCount: 3, maxRetries: 3, want: false},
		{name: "completed run", status: PayoutRunStatusCompleted, recipients: 3, maxRetries: 3, want: false},
		{name: "in progress run", status: PayoutRunStatusInProgress, recipients: 3, maxRetries: 3, want: false},
		{name: "dry run", status: PayoutRunStatusPartiallyCompleted, isDryRun: true, recipients: 3, maxRetries: 3, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			run := &PayoutRun{
				Status:          tt.status,
				IsDryRun:        tt.isDryRun,
				TotalRecipients: tt.recipients,
				RetryCount:      tt.retryCount,
				MaxRetries:      tt.maxRetries,
			}
			assert.Equal(t, tt.want, run.CanBeRetried())
		})
	}
}

func TestPayoutRun_OutcomeStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		recipients int
		successful int
		failed     int
		want       PayoutRunStatus
	}{
		{name: "every recipient paid", recipients: 3, successful: 3, want: PayoutRunStatusCompleted},
		{name: "one failure", recipients: 3, successful: 2, failed: 1, want: PayoutRunStatusPartiallyCompleted},
		{name: "unsettled recipient", recipients: 3, successful: 2, want: PayoutRunStatusPartiallyCompleted},
		{name: "every recipient failed", recipients: 2, failed: 2, want: PayoutRunStatusPartiallyCompleted},
		{name: "no recipients", want: PayoutRunStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			run := &PayoutRun{
				TotalRecipients:   tt.recipients,
				SuccessfulPayouts: tt.successful,
				FailedPayouts:     tt.failed,
			}
			assert.Equal(t, tt.want, run.OutcomeStatus())
		})
	}
}

func TestPayoutRun_IsTerminal(t *testing.T) {
	t.Parallel()

	for status, want := range map[PayoutRunStatus]bool{
		PayoutRunStatusPending:            false,
		PayoutRunStatusInProgress:         false,
		PayoutRunStatusCompleted:          true,
		PayoutRunStatusPartiallyCompleted: true,
		PayoutRunStatusFailed:             true,
		PayoutRunStatusCancelled:          true,
	} {
		run := &PayoutRun{Status: status}
		assert.Equal(t, want, run.IsTerminal(), status)
		assert.Equal(t, !want, run.CanBeCancelled(), status)
	}
}
