package entities

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// DistributionStatus represents the lifecycle state of a distribution
type DistributionStatus string

const (
	DistributionStatusPending   DistributionStatus = "PENDING"
	DistributionStatusApproved  DistributionStatus = "APPROVED"
	DistributionStatusExecuted  DistributionStatus = "EXECUTED"
	DistributionStatusCancelled DistributionStatus = "CANCELLED"
	DistributionStatusFailed    DistributionStatus = "FAILED"
)

// DistributionType represents the kind of proceeds being distributed
type DistributionType string

const (
	DistributionTypeDividend        DistributionType = "DIVIDEND"
	DistributionTypeInterest        DistributionType = "INTEREST"
	DistributionTypeCapitalGain     DistributionType = "CAPITAL_GAIN"
	DistributionTypeReturnOfCapital DistributionType = "RETURN_OF_CAPITAL"
	DistributionTypeSpecial         DistributionType = "SPECIAL"
)

// IsValid reports whether t is a known distribution type
func (t DistributionType) IsValid() bool {
	switch t {
	case DistributionTypeDividend, DistributionTypeInterest, DistributionTypeCapitalGain,
		DistributionTypeReturnOfCapital, DistributionTypeSpecial:
		return true
	}
	return false
}

// DistributionFrequency represents how often a distribution recurs
type DistributionFrequency string

const (
	FrequencyOneTime   DistributionFrequency = "ONE_TIME"
	FrequencyDaily     DistributionFrequency = "DAILY"
	FrequencyWeekly    DistributionFrequency = "WEEKLY"
	FrequencyMonthly   DistributionFrequency = "MONTHLY"
	FrequencyQuarterly DistributionFrequency = "QUARTERLY"
	FrequencyYearly    DistributionFrequency = "YEARLY"
	FrequencyRecurring DistributionFrequency = "RECURRING"
)

// IsValid reports whether f is a known frequency
func (f DistributionFrequency) IsValid() bool {
	switch f {
	case FrequencyOneTime, FrequencyDaily, FrequencyWeekly, FrequencyMonthly,
		FrequencyQuarterly, FrequencyYearly, FrequencyRecurring:
		return true
	}
	return false
}

// StablecoinType identifies the settlement currency
type StablecoinType string

const (
	StablecoinUSDC StablecoinType = "USDC"
	StablecoinHKD  StablecoinType = "HKD_STABLECOIN"
)

// IsValid reports whether s is a supported stablecoin
func (s StablecoinType) IsValid() bool {
	return s == StablecoinUSDC || s == StablecoinHKD
}

// DefaultRequiredApprovals applies when a multi-party workflow does not set a quorum
const DefaultRequiredApprovals = 2

// ApprovalWorkflow controls how a distribution moves from PENDING to APPROVED
type ApprovalWorkflow struct {
	RequiresApproval  bool     `json:"requires_approval"`
	AutoApprove       bool     `json:"auto_approve"`
	RequiredApprovals int      `json:"required_approvals,omitempty"`
	Approvers         []string `json:"approvers,omitempty"`
}

// DefaultApprovalWorkflow approves on the first approval call
func DefaultApprovalWorkflow() ApprovalWorkflow {
	return ApprovalWorkflow{RequiresApproval: false, AutoApprove: true}
}

// RequiresMultiPartySignOff reports whether approvals accumulate before the transition
func (w ApprovalWorkflow) RequiresMultiPartySignOff() bool {
	return w.RequiresApproval && !w.AutoApprove
}

// Quorum returns the number of distinct approvers needed
func (w ApprovalWorkflow) Quorum() int {
	if w.RequiredApprovals <= 0 {
		return DefaultRequiredApprovals
	}
	return w.RequiredApprovals
}

// RecurrenceSettings overrides the date arithmetic of recurring distributions
type RecurrenceSettings struct {
	Interval   DistributionFrequency `json:"interval,omitempty"`
	DayOfWeek  *int                  `json:"day_of_week,omitempty"`  // 0 = Sunday
	DayOfMonth *int                  `json:"day_of_month,omitempty"` // 1..31, clamped to month length
}

// Distribution is one payout event of an asset's proceeds to its holders
type Distribution struct {
	ID                   int64                  `db:"id"`
	AssetID              string                 `db:"asset_id"`
	AssetName            string                 `db:"asset_name"`
	Type                 DistributionType       `db:"distribution_type"`
	Frequency            DistributionFrequency  `db:"frequency"`
	Status               DistributionStatus     `db:"status"`
	ScheduledDate        time.Time              `db:"scheduled_date"`
	ExecutedDate         *time.Time             `db:"executed_date"`
	TotalAmount          decimal.Decimal        `db:"total_amount"`
	DistributedAmount    decimal.Decimal        `db:"distributed_amount"` // Gross actually paid out
	WithheldAmount       decimal.Decimal        `db:"withheld_amount"`
	FeeAmount            decimal.Decimal        `db:"fee_amount"`
	NetAmount            decimal.Decimal        `db:"net_amount"`
	StablecoinType       StablecoinType         `db:"stablecoin_type"`
	ExchangeRate         decimal.Decimal        `db:"exchange_rate"`
	ApprovalWorkflow     ApprovalWorkflow       `db:"-"` // Stored as JSONB
	ApprovedBy           string                 `db:"approved_by"`
	ApprovedAt           *time.Time             `db:"approved_at"`
	CancellationReason   string                 `db:"cancellation_reason"`
	CancelledBy          string                 `db:"cancelled_by"`
	CancelledAt          *time.Time             `db:"cancelled_at"`
	ExecutionError       string                 `db:"execution_error"`
	ExecutionClaimedAt   *time.Time             `db:"execution_claimed_at"`
	IsRecurring          bool                   `db:"is_recurring"`
	Recurrence           RecurrenceSettings     `db:"-"` // Stored as JSONB
	ParentDistributionID *int64                 `db:"parent_distribution_id"`
	LastPayoutRunID      *int64                 `db:"last_payout_run_id"`
	Metadata             map[string]interface{} `db:"-"` // Stored as JSONB
	Notes                string                 `db:"notes"`
	CreatedBy            string                 `db:"created_by"`
	CreatedAt            time.Time              `db:"created_at"`
	UpdatedAt            time.Time              `db:"updated_at"`
}

var distributionTransitions = map[DistributionStatus][]DistributionStatus{
	DistributionStatusPending:  {DistributionStatusApproved, DistributionStatusCancelled},
	DistributionStatusApproved: {DistributionStatusExecuted, DistributionStatusCancelled, DistributionStatusFailed},
}

// CanTransitionTo reports whether the state machine allows moving to next
func (d *Distribution) CanTransitionTo(next DistributionStatus) bool {
	return slices.Contains(distributionTransitions[d.Status], next)
}

// IsTerminal returns true once the distribution can no longer change state
func (d *Distribution) IsTerminal() bool {
	return len(distributionTransitions[d.Status]) == 0
}

// IsDue returns true if an approved distribution's scheduled date has been reached
func (d *Distribution) IsDue(now time.Time) bool {
	return d.Status == DistributionStatusApproved && !d.ScheduledDate.After(now)
}

// IsExecuting reports whether an executor holds the distribution
func (d *Distribution) IsExecuting() bool {
	return d.Status == DistributionStatusApproved && d.ExecutionClaimedAt != nil
}

// Approve records an approval. It returns true when the distribution moved to APPROVED
// and false when the approval was only accumulated towards the quorum.
func (d *Distribution) Approve(approverID string, now time.Time) (bool, error) {
	if d.Status != DistributionStatusPending {
		return false, fmt.Errorf("%w: distribution %d is %s, not PENDING", ErrInvalidTransition, d.ID, d.Status)
	}
	if approverID == "" {
		return false, NewValidationError("approver id is required")
	}

	if d.ApprovalWorkflow.RequiresMultiPartySignOff() {
		if !slices.Contains(d.ApprovalWorkflow.Approvers, approverID) {
			d.ApprovalWorkflow.Approvers = append(d.ApprovalWorkflow.Approvers, approverID)
		}
		if len(d.ApprovalWorkflow.Approvers) < d.ApprovalWorkflow.Quorum() {
			return false, nil
		}
	}

	d.Status = DistributionStatusApproved
	d.ApprovedBy = approverID
	d.ApprovedAt = &now
	return true, nil
}

// Cancel moves a PENDING or APPROVED distribution to CANCELLED
func (d *Distribution) Cancel(reason, actor string, now time.Time) error {
	if !d.CanTransitionTo(DistributionStatusCancelled) {
		return fmt.Errorf("%w: distribution %d is %s and cannot be cancelled", ErrInvalidTransition, d.ID, d.Status)
	}
	if d.IsExecuting() {
		return fmt.Errorf("%w: distribution %d is being executed and cannot be cancelled", ErrInvalidTransition, d.ID)
	}
	d.Status = DistributionStatusCancelled
	d.CancellationReason = reason
	d.CancelledBy = actor
	d.CancelledAt = &now
	return nil
}

// MarkExecuted applies the totals of a finished payout run
func (d *Distribution) MarkExecuted(now time.Time, run *PayoutRun) error {
	if !d.CanTransitionTo(DistributionStatusExecuted) {
		return fmt.Errorf("%w: distribution %d is %s and cannot be executed", ErrInvalidTransition, d.ID, d.Status)
	}
	if run.SuccessfulGross.GreaterThan(d.TotalAmount) {
		return NewValidationError("distributed amount %s exceeds total %s", run.SuccessfulGross, d.TotalAmount)
	}
	d.Status = DistributionStatusExecuted
	d.ExecutedDate = &now
	d.DistributedAmount = run.SuccessfulGross
	d.WithheldAmount = run.TotalWithholding
	d.FeeAmount = run.TotalFees
	d.NetAmount = run.SuccessfulAmount
	d.ExecutionError = ""
	runID := run.ID
	d.LastPayoutRunID = &runID
	return nil
}

// MarkFailed moves an APPROVED distribution to FAILED with the given reason
func (d *Distribution) MarkFailed(reason string) error {
	if !d.CanTransitionTo(DistributionStatusFailed) {
		return fmt.Errorf("%w: distribution %d is %s and cannot fail", ErrInvalidTransition, d.ID, d.Status)
	}
	d.Status = DistributionStatusFailed
	d.ExecutionError = reason
	return nil
}

// AssetType returns the asset classification carried in metadata, if any
func (d *Distribution) AssetType() string {
	return metadataString(d.Metadata, "assetType")
}

// IsRecurringSeries reports whether an executed distribution spawns follow-ups
func (d *Distribution) IsRecurringSeries() bool {
	return d.IsRecurring || (d.Frequency != "" && d.Frequency != FrequencyOneTime)
}

// RecurrenceInterval resolves the interval used to compute the next date
func (d *Distribution) RecurrenceInterval() DistributionFrequency {
	interval := d.Frequency
	if interval == "" || interval == FrequencyRecurring || interval == FrequencyOneTime {
		interval = d.Recurrence.Interval
	}
	switch interval {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyYearly:
		return interval
	}
	return FrequencyMonthly
}

// NextRecurringDate computes the scheduled date of the follow-up instance
func (d *Distribution) NextRecurringDate() time.Time {
	next := addInterval(d.ScheduledDate, d.RecurrenceInterval())

	if dow := d.Recurrence.DayOfWeek; dow != nil && *dow >= 0 && *dow <= 6 {
		delta := (*dow - int(next.Weekday()) + 7) % 7
		next = next.AddDate(0, 0, delta)
	}
	if dom := d.Recurrence.DayOfMonth; dom != nil && *dom >= 1 {
		day := min(*dom, daysIn(next.Year(), next.Month(), next.Location()))
		next = time.Date(next.Year(), next.Month(), day,
			next.Hour(), next.Minute(), next.Second(), next.Nanosecond(), next.Location())
	}
	return next
}

// NewRecurringChild builds the PENDING follow-up of an executed recurring distribution
func (d *Distribution) NewRecurringChild(scheduled time.Time) *Distribution {
	parentID := d.ID
	workflow := d.ApprovalWorkflow
	workflow.Approvers = nil
	return &Distribution{
		AssetID:              d.AssetID,
		AssetName:            d.AssetName,
		Type:                 d.Type,
		Frequency:            d.Frequency,
		Status:               DistributionStatusPending,
		ScheduledDate:        scheduled,
		TotalAmount:          d.TotalAmount,
		DistributedAmount:    decimal.Zero,
		WithheldAmount:       decimal.Zero,
		FeeAmount:            decimal.Zero,
		NetAmount:            decimal.Zero,
		StablecoinType:       d.StablecoinType,
		ExchangeRate:         d.ExchangeRate,
		ApprovalWorkflow:     workflow,
		IsRecurring:          d.IsRecurring,
		Recurrence:           d.Recurrence,
		ParentDistributionID: &parentID,
		Metadata:             copyMetadata(d.Metadata),
		Notes:                d.Notes,
		CreatedBy:            d.CreatedBy,
	}
}

// addInterval adds one interval; months roll over like time.AddDate
func addInterval(t time.Time, interval DistributionFrequency) time.Time {
	switch interval {
	case FrequencyDaily:
		return t.AddDate(0, 0, 1)
	case FrequencyWeekly:
		return t.AddDate(0, 0, 7)
	case FrequencyQuarterly:
		return t.AddDate(0, 3, 0)
	case FrequencyYearly:
		return t.AddDate(1, 0, 0)
	default:
		return t.AddDate(0, 1, 0)
	}
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// DistributionStats aggregates distributions for reporting
type DistributionStats struct {
	Total             int64                           `json:"total"`
	ByStatus          map[DistributionStatus]int64    `json:"by_status"`
	ByType            map[DistributionType]int64      `json:"by_type"`
	ByFrequency       map[DistributionFrequency]int64 `json:"by_frequency"`
	TotalAmount       decimal.Decimal                 `json:"total_amount"`
	DistributedAmount decimal.Decimal                 `json:"distributed_amount"`
	WithheldAmount    decimal.Decimal                 `json:"withheld_amount"`
	FeeAmount         decimal.Decimal                 `json:"fee_amount"`
	NetAmount         decimal.Decimal                 `json:"net_amount"`
}

// DistributionFilter narrows distribution searches
type DistributionFilter struct {
	AssetID string
	Status  DistributionStatus
	Type    DistributionType
	From    *time.Time // scheduled_date lower bound, inclusive
	To      *time.Time // scheduled_date upper bound, inclusive
	Limit   int
	Offset  int
}
