package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"settlement/events"
	"settlement/infrastructure/retry"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
)

const sourceService = "settlement"

// EventEnvelope wraps every event published to NATS
type EventEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Timestamp     time.Time       `json:"timestamp"`
	SourceService string          `json:"source_service"`
	Payload       json.RawMessage `json:"payload"`
}

// PublishObserver is told about every forwarded event
type PublishObserver interface {
	RecordEventPublished(eventType string, success bool)
}

// NATSEventForwarder republishes in-process bus events to NATS subjects
type NATSEventForwarder struct {
	publisher      MessagePublisher
	subjectMapper  *EventSubjectMapper
	clock          clockwork.Clock
	retryConfig    retry.Config
	publishTimeout time.Duration
	observer       PublishObserver
}

// NewNATSEventForwarder creates a new forwarder
func NewNATSEventForwarder(publisher MessagePublisher, subjectMapper *EventSubjectMapper, clock clockwork.Clock) *NATSEventForwarder {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &NATSEventForwarder{
		publisher:      publisher,
		subjectMapper:  subjectMapper,
		clock:          clock,
		retryConfig:    retry.DefaultConfig(),
		publishTimeout: 5 * time.Second,
	}
}

// WithRetryConfig overrides the publish retry policy
func (f *NATSEventForwarder) WithRetryConfig(cfg retry.Config) *NATSEventForwarder {
	f.retryConfig = cfg
	return f
}

// WithObserver reports every publish outcome to o
func (f *NATSEventForwarder) WithObserver(o PublishObserver) *NATSEventForwarder {
	f.observer = o
	return f
}

// Attach subscribes the forwarder to every settlement event on the bus
func (f *NATSEventForwarder) Attach(bus *events.Bus) {
	bus.SubscribeAll(f.handle)
	log.WithField("subjects", f.subjectMapper.GetAllSubjects()).Info("Forwarding settlement events to NATS")
}

func (f *NATSEventForwarder) handle(ctx context.Context, event events.Event) {
	// The bus context may belong to a request that already returned
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.publishTimeout)
	defer cancel()

	err := f.Forward(ctx, event)
	if f.observer != nil {
		f.observer.RecordEventPublished(string(event.Type()), err == nil)
	}
	if err != nil {
		log.WithError(err).WithField("event_type", event.Type()).Error("Failed to forward event to NATS")
	}
}

// Forward wraps the event in an envelope and publishes it to its subject
func (f *NATSEventForwarder) Forward(ctx context.Context, event events.Event) error {
	envelope, err := f.Envelope(event)
	if err != nil {
		return err
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	subject := f.subjectMapper.MapEventToSubject(event)
	err = retry.Do(ctx, f.retryConfig, func() error {
		return f.publisher.Publish(ctx, subject, data)
	})
	if err != nil {
		return fmt.Errorf("failed to publish event %s to NATS: %w", envelope.EventID, err)
	}

	log.WithFields(log.Fields{
		"event_type": envelope.EventType,
		"event_id":   envelope.EventID,
		"subject":    subject,
	}).Debug("Successfully published event to NATS")
	return nil
}

// Envelope builds the envelope of an event
func (f *NATSEventForwarder) Envelope(event events.Event) (*EventEnvelope, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}
	return &EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     string(event.Type()),
		Timestamp:     f.clock.Now().UTC(),
		SourceService: sourceService,
		Payload:       payload,
	}, nil
}
