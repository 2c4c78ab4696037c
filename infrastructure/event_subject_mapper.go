package infrastructure

import (
	"fmt"

	"settlement/events"
)

// SettlementStream is the JetStream stream that stores settlement events
const SettlementStream = "settlement_events"

// EventSubjectMapper handles mapping between settlement events and NATS subjects
type EventSubjectMapper struct{}

// NewEventSubjectMapper creates a new event subject mapper
func NewEventSubjectMapper() *EventSubjectMapper {
	return &EventSubjectMapper{}
}

// MapEventToSubject converts an event to its NATS subject
func (m *EventSubjectMapper) MapEventToSubject(event events.Event) string {
	switch event.Type() {
	case events.EventTypeDistributionCreated:
		return "settlement.distribution.created"
	case events.EventTypeDistributionApproved:
		return "settlement.distribution.approved"
	case events.EventTypeDistributionCancelled:
		return "settlement.distribution.cancelled"
	case events.EventTypeDistributionExecuted:
		return "settlement.distribution.executed"
	case events.EventTypeDistributionFailed:
		return "settlement.distribution.failed"
	case events.EventTypePayoutRunCompleted:
		return "settlement.payout.run_completed"
	case events.EventTypeReceiptFailed:
		return "settlement.payout.receipt_failed"
	case events.EventTypeFeeCollected:
		return "settlement.fee.collected"
	default:
		return fmt.Sprintf("settlement.unknown.%s", event.Type())
	}
}

// GetAllSubjects returns the subject filters of the settlement stream
func (m *EventSubjectMapper) GetAllSubjects() []string {
	return []string{
		"settlement.distribution.*",
		"settlement.payout.*",
		"settlement.fee.*",
	}
}
