package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisChannel is the Pub/Sub channel RedisSink publishes to.
const RedisChannel = "savings_events"

// LogSink writes each event to the logger.
type LogSink struct {
	Logger logrus.FieldLogger
}

func (LogSink) Name() string { return "log" }

func (s LogSink) Deliver(_ context.Context, ev Event) error {
	s.Logger.WithFields(logrus.Fields{
		"event_id":    ev.ID,
		"event_type":  ev.Type,
		"owner_id":    ev.OwnerID,
		"saving_id":   ev.SavingID,
		"amount":      ev.Amount.String(),
		"occurred_at": ev.OccurredAt,
	}).Info(ev.Description)
	return nil
}

// RedisSink publishes events as JSON on a Redis Pub/Sub channel.
type RedisSink struct {
	client  *redis.Client
	channel string
}

func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{client: client, channel: RedisChannel}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Deliver(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

// NATSSink publishes events on savings.events.<type>.
type NATSSink struct {
	conn   *nats.Conn
	prefix string
}

func NewNATSSink(conn *nats.Conn) *NATSSink {
	return &NATSSink{conn: conn, prefix: "savings.events"}
}

func (s *NATSSink) Name() string { return "nats" }

// Subject returns the subject an event type is published on.
func (s *NATSSink) Subject(t Type) string {
	return s.prefix + "." + string(t)
}

func (s *NATSSink) Deliver(_ context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := s.conn.Publish(s.Subject(ev.Type), payload); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}
