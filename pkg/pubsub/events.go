package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
)

const (
	envelopeVersion       = 1
	defaultPublishTimeout = 15 * time.Second

	AttrEventType = "event_type"
	AttrTenantID  = "tenant_id"
)

// Envelope is the stable body of every published event.
type Envelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	EventType  string          `json:"eventType"`
	TenantID   string          `json:"tenantId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

type publisher interface {
	Publish(context.Context, *pubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// EventPublisher wraps payloads in an Envelope and waits for the server ack.
type EventPublisher struct {
	pub     publisher
	timeout time.Duration
	clock   func() time.Time
	newID   func() string
}

func newEventPublisher(p publisher) *EventPublisher {
	return &EventPublisher{
		pub:     p,
		timeout: defaultPublishTimeout,
		clock:   time.Now,
		newID:   func() string { return uuid.NewString() },
	}
}

// Publish sends one event and returns the server-assigned message id.
func (e *EventPublisher) Publish(ctx context.Context, eventType, tenantID string, data any) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encoding %s payload: %w", eventType, err)
	}
	body, err := json.Marshal(Envelope{
		Version:    envelopeVersion,
		EventID:    e.newID(),
		EventType:  eventType,
		TenantID:   tenantID,
		OccurredAt: e.clock().UTC(),
		Data:       raw,
	})
	if err != nil {
		return "", fmt.Errorf("encoding %s envelope: %w", eventType, err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	result := e.pub.Publish(publishCtx, &pubsub.Message{
		Data: body,
		Attributes: map[string]string{
			AttrEventType: eventType,
			AttrTenantID:  tenantID,
		},
	})
	if result == nil {
		return "", errors.New("publish result is nil")
	}
	id, err := result.Get(publishCtx)
	if err != nil {
		return "", fmt.Errorf("publishing %s: %w", eventType, err)
	}
	return id, nil
}

// Stop flushes pending messages.
func (e *EventPublisher) Stop() {
	if p, ok := e.pub.(*gcpPublisher); ok && p.Publisher != nil {
		p.Publisher.Stop()
	}
}

type gcpPublisher struct {
	*pubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *pubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*pubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
