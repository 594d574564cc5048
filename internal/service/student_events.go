package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/students-api/internal/dto"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Student event types.
const (
	StudentCreatedEvent = "student.created"
	StudentUpdatedEvent = "student.updated"
	StudentDeletedEvent = "student.deleted"
)

// StudentEvent is broadcast after every successful student mutation.
type StudentEvent struct {
	ID            string               `json:"id"`
	Type          string               `json:"type"`
	StudentID     uint                 `json:"student_id"`
	Student       *dto.StudentResponse `json:"student,omitempty"`
	CorrelationID string               `json:"correlation_id,omitempty"`
	OccurredAt    time.Time            `json:"occurred_at"`
}

func newStudentEvent(eventType string, studentID uint, student *dto.StudentResponse, correlationID string) StudentEvent {
	return StudentEvent{
		ID:            uuid.NewString(),
		Type:          eventType,
		StudentID:     studentID,
		Student:       student,
		CorrelationID: correlationID,
		OccurredAt:    time.Now().UTC(),
	}
}

// StudentEventPublisher fans student events out to the configured brokers.
type StudentEventPublisher interface {
	Publish(ctx context.Context, event StudentEvent) error
}

// eventSink is one broker destination for serialised events.
type eventSink struct {
	name    string
	publish func(ctx context.Context, payload []byte) error
}

type brokerEventPublisher struct {
	sinks []eventSink
}

// NewStudentEventPublisher publishes to Redis pub/sub and NATS. Either client may be nil.
func NewStudentEventPublisher(redisClient *redis.Client, natsConn *nats.Conn, channelBase string) StudentEventPublisher {
	if channelBase == "" {
		return &brokerEventPublisher{}
	}

	var sinks []eventSink
	if redisClient != nil {
		channel := channelBase + ":students"
		sinks = append(sinks, eventSink{name: "redis", publish: func(ctx context.Context, payload []byte) error {
			return redisClient.Publish(ctx, channel, payload).Err()
		}})
	}
	if natsConn != nil {
		subject := strings.ReplaceAll(channelBase, ":", ".") + ".students"
		sinks = append(sinks, eventSink{name: "nats", publish: func(_ context.Context, payload []byte) error {
			return natsConn.Publish(subject, payload)
		}})
	}

	return &brokerEventPublisher{sinks: sinks}
}

// Publish delivers event to every sink; a failing broker does not stop the others.
func (p *brokerEventPublisher) Publish(ctx context.Context, event StudentEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode student event: %w", err)
	}

	var errs []error
	for _, sink := range p.sinks {
		if err := sink.publish(ctx, payload); err != nil {
			errs = append(errs, fmt.Errorf("publish to %s: %w", sink.name, err))
		}
	}
	return errors.Join(errs...)
}
