package entities

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestDistribution_Approve(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name             string
		status           DistributionStatus
		workflow         ApprovalWorkflow
		approvals        []string
		wantTransitioned bool
		wantStatus       DistributionStatus
		wantApprovers    []string
		wantErr          error
	}{
		{
			name:             "auto approve transitions immediately",
			status:           DistributionStatusPending,
			workflow:         DefaultApprovalWorkflow(),
			approvals:        []string{"alice"},
			wantTransitioned: true,
			wantStatus:       DistributionStatusApproved,
		},
		{
			name:             "multi-party waits for quorum",
			status:           DistributionStatusPending,
			workflow:         ApprovalWorkflow{RequiresApproval: true, RequiredApprovals: 2},
			approvals:        []string{"alice"},
			wantTransitioned: false,
			wantStatus:       DistributionStatusPending,
			wantApprovers:    []string{"alice"},
		},
		{
			name:             "duplicate approver does not count twice",
			status:           DistributionStatusPending,
			workflow:         ApprovalWorkflow{RequiresApproval: true, RequiredApprovals: 2},
			approvals:        []string{"alice", "alice"},
			wantTransitioned: false,
			wantStatus:       DistributionStatusPending,
			wantApprovers:    []string{"alice"},
		},
		{
			name:             "quorum reached transitions",
			status:           DistributionStatusPending,
			workflow:         ApprovalWorkflow{RequiresApproval: true},
			approvals:        []string{"alice", "bob"},
			wantTransitioned: true,
			wantStatus:       DistributionStatusApproved,
			wantApprovers:    []string{"alice", "bob"},
		},
		{
			name:             "requires approval with auto approve transitions immediately",
			status:           DistributionStatusPending,
			workflow:         ApprovalWorkflow{RequiresApproval: true, AutoApprove: true, RequiredApprovals: 3},
			approvals:        []string{"alice"},
			wantTransitioned: true,
			wantStatus:       DistributionStatusApproved,
		},
		{
			name:       "approved distribution cannot be approved again",
			status:     DistributionStatusApproved,
			workflow:   DefaultApprovalWorkflow(),
			approvals:  []string{"alice"},
			wantStatus: DistributionStatusApproved,
			wantErr:    ErrInvalidTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := &Distribution{ID: 1, Status: tt.status, ApprovalWorkflow: tt.workflow}

			var transitioned bool
			var err error
			for _, approver := range tt.approvals {
				transitioned, err = d.Approve(approver, now)
			}

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.ErrorIs(t, err, ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTransitioned, transitioned)
			assert.Equal(t, tt.wantStatus, d.Status)
			if tt.wantApprovers != nil {
				assert.Equal(t, tt.wantApprovers, d.ApprovalWorkflow.Approvers)
			}
			if tt.wantTransitioned {
				require.NotNil(t, d.ApprovedAt)
				assert.Equal(t, now, *d.ApprovedAt)
				assert.Equal(t, tt.approvals[len(tt.approvals)-1], d.ApprovedBy)
			}
		})
	}
}

func TestDistribution_Approve_RequiresApprover(t *testing.T) {
	t.Parallel()

	d := &Distribution{Status: DistributionStatusPending}
	_, err := d.Approve("", time.Now())
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, DistributionStatusPending, d.Status)
}

func TestDistribution_Cancel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  DistributionStatus
		wantErr bool
	}{
		{name: "pending can be cancelled", status: DistributionStatusPending},
		{name: "approved can be cancelled", status: DistributionStatusApproved},
		{name: "executed cannot be cancelled", status: DistributionStatusExecuted, wantErr: true},
		{name: "cancelled cannot be cancelled", status: DistributionStatusCancelled, wantErr: true},
		{name: "failed cannot be cancelled", status: DistributionStatusFailed, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			now := time.Now()
			d := &Distribution{Status: tt.status}
			err := d.Cancel("asset delisted", "ops", now)

			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTransition)
				assert.Equal(t, tt.status, d.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, DistributionStatusCancelled, d.Status)
			assert.Equal(t, "asset delisted", d.CancellationReason)
			assert.Equal(t, "ops", d.CancelledBy)
			assert.Equal(t, &now, d.CancelledAt)
		})
	}
}

func TestDistribution_CancelRefusedWhileExecuting(t *testing.T) {
	t.Parallel()

	claimed := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	d := &Distribution{ID: 7, Status: DistributionStatusApproved, ExecutionClaimedAt: &claimed}
	require.True(t, d.IsExecuting())

	err := d.Cancel("asset delisted", "ops", claimed.Add(time.Minute))
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, DistributionStatusApproved, d.Status)
	assert.Empty(t, d.CancelledBy)
}

func TestDistribution_MarkExecuted(t *testing.T) {
	t.Parallel()

	now := time.Now()
	d := &Distribution{
		ID:          5,
		Status:      DistributionStatusApproved,
		TotalAmount: decimal.NewFromInt(1000),
	}
	run := &PayoutRun{
		ID:               9,
		SuccessfulGross:  decimal.NewFromInt(1000),
		SuccessfulAmount: decimal.NewFromInt(850),
		TotalWithholding: decimal.NewFromInt(100),
		TotalFees:        decimal.NewFromInt(50),
	}

	require.NoError(t, d.MarkExecuted(now, run))
	assert.Equal(t, DistributionStatusExecuted, d.Status)
	assert.True(t, d.DistributedAmount.Equal(decimal.NewFromInt(1000)))
	assert.True(t, d.NetAmount.Equal(decimal.NewFromInt(850)))
	assert.True(t, d.WithheldAmount.Equal(decimal.NewFromInt(100)))
	assert.True(t, d.FeeAmount.Equal(decimal.NewFromInt(50)))
	require.NotNil(t, d.LastPayoutRunID)
	assert.Equal(t, int64(9), *d.LastPayoutRunID)
	assert.True(t, d.IsTerminal())

	pending := &Distribution{Status: DistributionStatusPending, TotalAmount: decimal.NewFromInt(1000)}
	assert.ErrorIs(t, pending.MarkExecuted(now, run), ErrInvalidTransition)
}

func TestDistribution_MarkExecuted_RejectsOverDistribution(t *testing.T) {
	t.Parallel()

	d := &Distribution{Status: DistributionStatusApproved, TotalAmount: decimal.NewFromInt(100)}
	err := d.MarkExecuted(time.Now(), &PayoutRun{SuccessfulGross: decimal.NewFromInt(101)})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, DistributionStatusApproved, d.Status)
}

func TestDistribution_MarkFailed(t *testing.T) {
	t.Parallel()

	d := &Distribution{Status: DistributionStatusApproved}
	require.NoError(t, d.MarkFailed("no eligible wallets"))
	assert.Equal(t, DistributionStatusFailed, d.Status)
	assert.Equal(t, "no eligible wallets", d.ExecutionError)

	assert.ErrorIs(t, d.MarkFailed("again"), ErrInvalidTransition)
}

func TestDistribution_IsRecurringSeries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		frequency   DistributionFrequency
		isRecurring bool
		want        bool
	}{
		{name: "one time", frequency: FrequencyOneTime, want: false},
		{name: "one time flagged recurring", frequency: FrequencyOneTime, isRecurring: true, want: true},
		{name: "monthly", frequency: FrequencyMonthly, want: true},
		{name: "recurring", frequency: FrequencyRecurring, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := &Distribution{Frequency: tt.frequency, IsRecurring: tt.isRecurring}
			assert.Equal(t, tt.want, d.IsRecurringSeries())
		})
	}
}

func TestDistribution_NextRecurringDate(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 31, 9, 30, 0, 0, time.UTC) // Saturday

	tests := []struct {
		name       string
		frequency  DistributionFrequency
		recurrence RecurrenceSettings
		want       time.Time
	}{
		{
			name:      "daily",
			frequency: FrequencyDaily,
			want:      time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC),
		},
		{
			name:      "weekly",
			frequency: FrequencyWeekly,
			want:      time.Date(2026, 2, 7, 9, 30, 0, 0, time.UTC),
		},
		{
			name:      "quarterly",
			frequency: FrequencyQuarterly,
			want:      time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC),
		},
		{
			name:      "yearly",
			frequency: FrequencyYearly,
			want:      time.Date(2027, 1, 31, 9, 30, 0, 0, time.UTC),
		},
		{
			name:       "monthly overflow pinned back to day of month",
			frequency:  FrequencyMonthly,
			recurrence: RecurrenceSettings{DayOfMonth: intPtr(31)},
			want:       time.Date(2026, 3, 31, 9, 30, 0, 0, time.UTC),
		},
		{
			name:       "recurring uses configured interval",
			frequency:  FrequencyRecurring,
			recurrence: RecurrenceSettings{Interval: FrequencyWeekly},
			want:       time.Date(2026, 2, 7, 9, 30, 0, 0, time.UTC),
		},
		{
			name:      "recurring defaults to monthly",
			frequency: FrequencyRecurring,
			want:      time.Date(2026, 3, 3, 9, 30, 0, 0, time.UTC),
		},
		{
			name:       "weekly moved forward to monday",
			frequency:  FrequencyWeekly,
			recurrence: RecurrenceSettings{DayOfWeek: intPtr(1)},
			want:       time.Date(2026, 2, 9, 9, 30, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := &Distribution{ScheduledDate: base, Frequency: tt.frequency, Recurrence: tt.recurrence}
			assert.Equal(t, tt.want, d.NextRecurringDate())
		})
	}
}

func TestDistribution_NextRecurringDate_DayOfMonthClamp(t *testing.T) {
	t.Parallel()

	d := &Distribution{
		ScheduledDate: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		Frequency:     FrequencyMonthly,
		Recurrence:    RecurrenceSettings{DayOfMonth: intPtr(31)},
	}
	assert.Equal(t, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), d.NextRecurringDate())
}

func TestDistribution_NewRecurringChild(t *testing.T) {
	t.Parallel()

	parent := &Distribution{
		ID:               7,
		AssetID:          "asset-1",
		AssetName:        "Solar Farm",
		Type:             DistributionTypeDividend,
		Frequency:        FrequencyMonthly,
		Status:           DistributionStatusExecuted,
		TotalAmount:      decimal.NewFromInt(5000),
		NetAmount:        decimal.NewFromInt(4000),
		StablecoinType:   StablecoinUSDC,
		ExchangeRate:     decimal.NewFromInt(1),
		ApprovalWorkflow: ApprovalWorkflow{RequiresApproval: true, Approvers: []string{"alice", "bob"}},
		Metadata:         map[string]interface{}{"assetType": "REIT"},
	}
	next := parent.NextRecurringDate()

	child := parent.NewRecurringChild(next)

	assert.Equal(t, DistributionStatusPending, child.Status)
	assert.Equal(t, next, child.ScheduledDate)
	require.NotNil(t, child.ParentDistributionID)
	assert.Equal(t, int64(7), *child.ParentDistributionID)
	assert.True(t, child.TotalAmount.Equal(parent.TotalAmount))
	assert.True(t, child.NetAmount.IsZero())
	assert.Empty(t, child.ApprovalWorkflow.Approvers)
	assert.Equal(t, "REIT", child.AssetType())

	child.Metadata["assetType"] = "BOND"
	assert.Equal(t, "REIT", parent.AssetType())
}
