package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// NotificationPublisher publishes payroll events to NATS JetStream for
// consumption by downstream notification services.
//
// Subject convention: notifications.payroll.<event_type>
// Event types: archived, reset
//
// All publish operations are non-fatal — errors are logged but never
// propagated to the caller, so notification failures never interrupt payroll
// operations. A nil publisher is a valid no-op.
type NotificationPublisher struct {
	js  jetstream.JetStream
	log zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventID      string         `json:"event_id"`
	EventType    string         `json:"event_type"`
	AccountID    string         `json:"account_id"`
	ActorEmail   string         `json:"actor_email"`
	ResourceType string         `json:"resource_type,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher backed by the given NATS
// connection.
func NewNotificationPublisher(nc *nats.Conn, log zerolog.Logger) (*NotificationPublisher, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("notifications: jetstream init: %w", err)
	}
	return &NotificationPublisher{js: js, log: log}, nil
}

// PublishPayrollEvent publishes a payroll event.
// Subject: notifications.payroll.<eventType>
func (p *NotificationPublisher) PublishPayrollEvent(ctx context.Context, eventType, accountID, actorEmail, entryID string, payload map[string]any) {
	if p == nil || p.js == nil {
		return
	}

	event := &NotificationEvent{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		AccountID:  accountID,
		ActorEmail: actorEmail,
		Payload:    payload,
	}
	if entryID != "" {
		event.ResourceType = "archive_entry"
		event.ResourceID = entryID
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("notifications.payroll.%s", eventType)
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("account_id", accountID).
			Msg("notification: publish failed")
	}
}
