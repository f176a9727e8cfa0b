// Package redis holds the Redis-backed bar cache and trigger event publisher.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"trading-alerts/internal/model"
)

const (
	// TriggerChannel is the pub/sub channel trigger events go to.
	TriggerChannel = "alerts:triggered"
	// TriggerStream keeps a trimmed history of trigger events.
	TriggerStream = "stream:alerts:triggered"

	triggerStreamMaxLen = 10000
	lastTriggerTTL      = 7 * 24 * time.Hour
)

// Config configures the Redis connection.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Client wraps a go-redis client.
type Client struct {
	client *goredis.Client
	log    *logrus.Entry
}

// New connects and pings the server.
func New(cfg Config, log *logrus.Entry) (*Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log = log.WithField("component", "redis")
	log.WithField("addr", cfg.Addr).Info("connected")
	return &Client{client: client, log: log}, nil
}

// Ping checks the connection, for health probes.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// GetBars reads a cached bar window. A miss returns ok=false.
func (c *Client) GetBars(ctx context.Context, key string) ([]model.Bar, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis GET %s: %w", key, err)
	}
	var bars []model.Bar
	if err := json.Unmarshal(raw, &bars); err != nil {
		return nil, false, fmt.Errorf("redis decode %s: %w", key, err)
	}
	return bars, true, nil
}

// SetBars caches a bar window for ttl.
func (c *Client) SetBars(ctx context.Context, key string, bars []model.Bar, ttl time.Duration) error {
	raw, err := json.Marshal(bars)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis SET %s: %w", key, err)
	}
	return nil
}

// PublishTrigger writes the event to the trigger stream, records it as the
// alert's latest trigger and publishes it, in one pipeline.
func (c *Client) PublishTrigger(ctx context.Context, ev model.TriggerEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	payload := string(data)

	pipe := c.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: TriggerStream,
		MaxLen: triggerStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": payload},
	})
	pipe.Set(ctx, LastTriggerKey(ev.AlertID), payload, lastTriggerTTL)
	pipe.Publish(ctx, TriggerChannel, payload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis trigger pipeline for %s: %w", ev.AlertID, err)
	}
	return nil
}

// LastTrigger returns the most recent trigger event recorded for an alert.
func (c *Client) LastTrigger(ctx context.Context, alertID string) (model.TriggerEvent, bool, error) {
	var ev model.TriggerEvent
	raw, err := c.client.Get(ctx, LastTriggerKey(alertID)).Bytes()
	if err == goredis.Nil {
		return ev, false, nil
	}
	if err != nil {
		return ev, false, fmt.Errorf("redis GET last trigger: %w", err)
	}
	if err := json.Unmarshal(raw, &ev); err != nil {
		return ev, false, err
	}
	return ev, true, nil
}

// LastTriggerKey is the key holding an alert's latest trigger event.
func LastTriggerKey(alertID string) string {
	return "alert:last_trigger:" + alertID
}

// Close closes the client.
func (c *Client) Close() error {
	return c.client.Close()
}
