package outbox

import (
	"fmt"
	"strings"

	"github.com/medicart/medicart-api/pkg/config"
	"github.com/medicart/medicart-api/pkg/db/models"
	"github.com/medicart/medicart-api/pkg/enums"
)

// NonRetryableError signals the publisher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// ResolvedEvent is an outbox row paired with its destination topic.
type ResolvedEvent struct {
	Topic    string
	Envelope PayloadEnvelope
}

// TopicRegistry routes aggregates to Pub/Sub topics.
type TopicRegistry struct {
	topics map[enums.OutboxAggregateType]string
}

func NewTopicRegistry(cfg config.PubSubConfig) (*TopicRegistry, error) {
	topics := map[enums.OutboxAggregateType]string{
		enums.AggregateOrder:         strings.TrimSpace(cfg.OrdersTopic),
		enums.AggregateDeliveryAgent: strings.TrimSpace(cfg.DeliveryTopic),
		enums.AggregatePrescription:  strings.TrimSpace(cfg.PrescriptionsTopic),
	}
	for agg, topic := range topics {
		if topic == "" {
			return nil, fmt.Errorf("topic for %s events is required", agg)
		}
	}
	return &TopicRegistry{topics: topics}, nil
}

// Topics lists every configured topic.
func (r *TopicRegistry) Topics() []string {
	out := make([]string, 0, len(r.topics))
	for _, topic := range r.topics {
		out = append(out, topic)
	}
	return out
}

func (r *TopicRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	if !event.EventType.IsValid() {
		return nil, NonRetryableError{Err: fmt.Errorf("unknown event type %q", event.EventType)}
	}
	topic, ok := r.topics[event.AggregateType]
	if !ok {
		return nil, NonRetryableError{Err: fmt.Errorf("no topic for aggregate %q", event.AggregateType)}
	}
	env, err := DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, NonRetryableError{Err: fmt.Errorf("decode envelope: %w", err)}
	}
	return &ResolvedEvent{Topic: topic, Envelope: env}, nil
}
