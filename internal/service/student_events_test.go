package service

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestStudentEventPublisherKeepsPublishingAfterBrokerFailure(t *testing.T) {
	var delivered [][]byte
	publisher := &brokerEventPublisher{sinks: []eventSink{
		{name: "redis", publish: func(context.Context, []byte) error { return errors.New("connection refused") }},
		{name: "nats", publish: func(_ context.Context, payload []byte) error {
			delivered = append(delivered, payload)
			return nil
		}},
	}}

	err := publisher.Publish(context.Background(), newStudentEvent(StudentCreatedEvent, 7, nil, "corr-1"))
	require.ErrorContains(t, err, "publish to redis: connection refused")
	require.Len(t, delivered, 1)

	var event StudentEvent
	require.NoError(t, json.Unmarshal(delivered[0], &event))
	require.Equal(t, uint(7), event.StudentID)
}

func TestStudentEventPublisherJoinsEveryFailure(t *testing.T) {
	publisher := &brokerEventPublisher{sinks: []eventSink{
		{name: "redis", publish: func(context.Context, []byte) error { return errors.New("redis down") }},
		{name: "nats", publish: func(context.Context, []byte) error { return errors.New("nats down") }},
	}}

	err := publisher.Publish(context.Background(), newStudentEvent(StudentDeletedEvent, 1, nil, ""))
	require.ErrorContains(t, err, "redis down")
	require.ErrorContains(t, err, "nats down")
}

func TestStudentEventPublisherReportsUnreachableRedis(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	redisClient := redis.NewClient(&redis.Options{Addr: server.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = redisClient.Close() })
	server.Close()

	publisher := NewStudentEventPublisher(redisClient, nil, "campus")
	err = publisher.Publish(context.Background(), newStudentEvent(StudentUpdatedEvent, 3, nil, ""))
	require.ErrorContains(t, err, "publish to redis")

	require.NoError(t, NewStudentEventPublisher(nil, nil, "campus").Publish(context.Background(), newStudentEvent(StudentUpdatedEvent, 3, nil, "")))
}
