package events

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeDistributionCreated   EventType = "distribution.created"
	EventTypeDistributionApproved  EventType = "distribution.approved"
	EventTypeDistributionCancelled EventType = "distribution.cancelled"
	EventTypeDistributionExecuted  EventType = "distribution.executed"
	EventTypeDistributionFailed    EventType = "distribution.failed"
	EventTypePayoutRunCompleted    EventType = "payout.run_completed"
	EventTypeReceiptFailed         EventType = "payout.receipt_failed"
	EventTypeFeeCollected          EventType = "fee.collected"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// DistributionCreatedEvent is emitted when a distribution is scheduled
type DistributionCreatedEvent struct {
	DistributionID       int64           `json:"distribution_id"`
	AssetID              string          `json:"asset_id"`
	DistributionType     string          `json:"distribution_type"`
	TotalAmount          decimal.Decimal `json:"total_amount"`
	ScheduledDate        time.Time       `json:"scheduled_date"`
	ParentDistributionID *int64          `json:"parent_distribution_id,omitempty"`
}

func (e DistributionCreatedEvent) Type() EventType {
	return EventTypeDistributionCreated
}

// DistributionApprovedEvent is emitted when a distribution reaches APPROVED
type DistributionApprovedEvent struct {
	DistributionID int64    `json:"distribution_id"`
	AssetID        string   `json:"asset_id"`
	ApprovedBy     string   `json:"approved_by"`
	Approvers      []string `json:"approvers,omitempty"`
}

func (e DistributionApprovedEvent) Type() EventType {
	return EventTypeDistributionApproved
}

// DistributionCancelledEvent is emitted when a distribution is cancelled
type DistributionCancelledEvent struct {
	DistributionID int64  `json:"distribution_id"`
	AssetID        string `json:"asset_id"`
	Reason         string `json:"reason"`
	CancelledBy    string `json:"cancelled_by"`
}

func (e DistributionCancelledEvent) Type() EventType {
	return EventTypeDistributionCancelled
}

// DistributionExecutedEvent is emitted when a distribution's payouts finished
type DistributionExecutedEvent struct {
	DistributionID    int64           `json:"distribution_id"`
	AssetID           string          `json:"asset_id"`
	PayoutRunID       int64           `json:"payout_run_id"`
	DistributedAmount decimal.Decimal `json:"distributed_amount"`
	NetAmount         decimal.Decimal `json:"net_amount"`
	WithheldAmount    decimal.Decimal `json:"withheld_amount"`
	FeeAmount         decimal.Decimal `json:"fee_amount"`
}

func (e DistributionExecutedEvent) Type() EventType {
	return EventTypeDistributionExecuted
}

// DistributionFailedEvent is emitted when a distribution could not be executed
type DistributionFailedEvent struct {
	DistributionID int64  `json:"distribution_id"`
	AssetID        string `json:"asset_id"`
	Error          string `json:"error"`
}

func (e DistributionFailedEvent) Type() EventType {
	return EventTypeDistributionFailed
}

// PayoutRunCompletedEvent is emitted when a payout run reaches a terminal status
type PayoutRunCompletedEvent struct {
	PayoutRunID       int64           `json:"payout_run_id"`
	DistributionID    int64           `json:"distribution_id"`
	Status            string          `json:"status"`
	IsDryRun          bool            `json:"is_dry_run"`
	RetryCount        int             `json:"retry_count"`
	TotalRecipients   int             `json:"total_recipients"`
	SuccessfulPayouts int             `json:"successful_payouts"`
	FailedPayouts     int             `json:"failed_payouts"`
	SuccessfulAmount  decimal.Decimal `json:"successful_amount"`
	FailedAmount      decimal.Decimal `json:"failed_amount"`
}

func (e PayoutRunCompletedEvent) Type() EventType {
	return EventTypePayoutRunCompleted
}

// ReceiptFailedEvent is emitted when one investor's transfer fails
type ReceiptFailedEvent struct {
	ReceiptID     int64           `json:"receipt_id"`
	PayoutRunID   int64           `json:"payout_run_id"`
	InvestorID    string          `json:"investor_id"`
	WalletAddress string          `json:"wallet_address"`
	NetAmount     decimal.Decimal `json:"net_amount"`
	Reason        string          `json:"reason"`
}

func (e ReceiptFailedEvent) Type() EventType {
	return EventTypeReceiptFailed
}

// FeeCollectedEvent is emitted when a fee capture is marked collected
type FeeCollectedEvent struct {
	FeeCaptureID int64           `json:"fee_capture_id"`
	InvestorID   string          `json:"investor_id"`
	AssetID      string          `json:"asset_id"`
	Amount       decimal.Decimal `json:"amount"`
	PayoutRunID  *int64          `json:"payout_run_id,omitempty"`
}

func (e FeeCollectedEvent) Type() EventType {
	return EventTypeFeeCollected
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	wg       sync.WaitGroup
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type")
}

// SubscribeAll adds a handler for every event type
func (b *Bus) SubscribeAll(handler Handler, eventTypes ...EventType) {
	if len(eventTypes) == 0 {
		eventTypes = AllEventTypes()
	}
	for _, et := range eventTypes {
		b.Subscribe(et, handler)
	}
}

// Publish emits the event without a caller context
func (b *Bus) Publish(event Event) error {
	b.Emit(context.Background(), event)
	return nil
}

// Emit publishes an event to all registered handlers
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	log.WithFields(log.Fields{
		"eventType":    event.Type(),
		"handlerCount": len(handlers),
	}).Debug("Emitting event to handlers")

	// Call handlers asynchronously to avoid blocking
	for i, handler := range handlers {
		b.wg.Add(1)
		go func(h Handler, handlerIndex int) {
			defer b.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType":    event.Type(),
						"handlerIndex": handlerIndex,
						"panic":        r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler, i)
	}
}

// Wait blocks until every handler started so far has returned
func (b *Bus) Wait() {
	b.wg.Wait()
}

// AllEventTypes lists every event type the settlement engine emits
func AllEventTypes() []EventType {
	return []EventType{
		EventTypeDistributionCreated,
		EventTypeDistributionApproved,
		EventTypeDistributionCancelled,
		EventTypeDistributionExecuted,
		EventTypeDistributionFailed,
		EventTypePayoutRunCompleted,
		EventTypeReceiptFailed,
		EventTypeFeeCollected,
	}
}

// TransactionalBus holds events raised inside a unit of work until it commits.
// Flushes to the underlying event bus.
type TransactionalBus struct {
	real    *Bus
	mu      sync.Mutex
	pending []Event // stashed until Flush
}

func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

func (b *TransactionalBus) Publish(e Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	log.WithFields(log.Fields{
		"eventType":    e.Type(),
		"pendingCount": len(b.pending),
	}).Debug("Adding event to transactional bus pending queue")
	b.pending = append(b.pending, e)
	return nil
}

// Flush is called after a successful commit
func (b *TransactionalBus) Flush(ctx context.Context) error {
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	log.WithField("pendingEventCount", len(pending)).Debug("Flushing pending events to event bus")

	// Handlers outlive the transaction, so they get a detached context
	eventCtx := context.WithoutCancel(ctx)
	for _, ev := range pending {
		b.real.Emit(eventCtx, ev)
	}
	return nil
}

// Discard is called after a rollback
func (b *TransactionalBus) Discard() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = nil
}

// Pending returns the number of events waiting for Flush
func (b *TransactionalBus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
