// Package events publishes lesson lifecycle events to NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	LessonRequestCreated  = "lesson_request.created"
	LessonRequestSent     = "lesson_request.sent"
	LessonRequestAccepted = "lesson_request.accepted"
	LessonRequestRejected = "lesson_request.rejected"
	LessonRequestCanceled = "lesson_request.canceled"
	LessonCanceled        = "lesson.canceled"
	LessonUpdated         = "lesson.updated"
)

// Event is the payload every lifecycle message carries.
type Event struct {
	EventType  string     `json:"event_type"`
	RequestID  *uuid.UUID `json:"lesson_request_id,omitempty"`
	LessonID   *uuid.UUID `json:"lesson_id,omitempty"`
	UserID     uuid.UUID  `json:"user_id"`
	OccurredAt time.Time  `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NatsPublisher публикует события в subject <prefix>.<event_type>
type NatsPublisher struct {
	conn   *nats.Conn
	prefix string
	logger *zap.Logger
}

func NewNatsPublisher(natsURL, prefix string, logger *zap.Logger) (*NatsPublisher, error) {
	nc, err := nats.Connect(natsURL, nats.Name("mentor_scheduler"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	return &NatsPublisher{conn: nc, prefix: prefix, logger: logger}, nil
}

func (p *NatsPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := p.prefix + "." + event.EventType
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	p.logger.Debug("Published event", zap.String("subject", subject))
	return nil
}

// Close дожидается отправки буфера и закрывает соединение
func (p *NatsPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn("Failed to drain nats connection", zap.Error(err))
	}
}

// NopPublisher используется, когда NATS не настроен
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
