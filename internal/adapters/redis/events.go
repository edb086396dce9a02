package redisad

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"tour_booking/internal/adapters/observability"
	"tour_booking/internal/domain"
)

const DefaultEventsChannel = "booking-events"

// Publisher sends booking lifecycle events to a pub/sub channel as JSON.
type Publisher struct {
	c       *redis.Client
	channel string
}

func NewPublisher(c *redis.Client, channel string) *Publisher {
	if channel == "" {
		channel = DefaultEventsChannel
	}
	return &Publisher{c: c, channel: channel}
}

func (p *Publisher) Publish(ctx context.Context, ev domain.BookingEvent) (err error) {
	defer func() { observability.ObserveEvent("redis", string(ev.Type), err) }()

	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode booking event: %w", err)
	}
	if err := p.c.Publish(ctx, p.channel, b).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	return nil
}
