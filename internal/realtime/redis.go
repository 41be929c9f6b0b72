package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures a RedisTransport.
type RedisOptions struct {
	// Prefix namespaces the channels: <prefix>:events, <prefix>:jobs:<id>
	// and <prefix>:control.
	Prefix string
	// PingInterval is how long the receive loop idles before probing the
	// connection.
	PingInterval time.Duration
	// ReconnectDelay is the pause after a failed receive.
	ReconnectDelay time.Duration
}

// RedisTransport carries push frames over Redis Pub/Sub.
type RedisTransport struct {
	client *redis.Client
	opts   RedisOptions

	mu     sync.Mutex
	pubsub *redis.PubSub
	jobs   map[string]bool
}

// NewRedisTransport wraps an existing Redis client.
func NewRedisTransport(client *redis.Client, opts RedisOptions) *RedisTransport {
	if opts.Prefix == "" {
		opts.Prefix = "cronbat"
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 15 * time.Second
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 2 * time.Second
	}
	return &RedisTransport{client: client, opts: opts, jobs: make(map[string]bool)}
}

// NewRedisClient parses a redis:// URL into a client.
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// EventsChannel carries global events.
func (t *RedisTransport) EventsChannel() string { return t.opts.Prefix + ":events" }

// JobChannel carries the per-job events of jobID.
func (t *RedisTransport) JobChannel(jobID string) string { return t.opts.Prefix + ":jobs:" + jobID }

// ControlChannel carries client requests such as subscribe_to_job.
func (t *RedisTransport) ControlChannel() string { return t.opts.Prefix + ":control" }

// Listen subscribes to the event channels and reports frames to h until
// ctx is done. go-redis re-dials and re-subscribes on the next receive
// after a broken connection; the resulting subscription confirmation is
// reported as a connect.
func (t *RedisTransport) Listen(ctx context.Context, h Handler) error {
	channels := []string{t.EventsChannel()}
	t.mu.Lock()
	for id := range t.jobs {
		channels = append(channels, t.JobChannel(id))
	}
	ps := t.client.Subscribe(ctx, channels...)
	t.pubsub = ps
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.pubsub = nil
		t.mu.Unlock()
		_ = ps.Close()
	}()

	connected := false
	for {
		msg, err := ps.ReceiveTimeout(ctx, t.opts.PingInterval)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if isTimeout(err) {
				if perr := ps.Ping(ctx); perr != nil && connected {
					connected = false
					h.HandleDisconnect(perr)
				}
				continue
			}
			if connected {
				connected = false
				h.HandleDisconnect(err)
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(t.opts.ReconnectDelay):
			}
			continue
		}

		switch m := msg.(type) {
		case *redis.Subscription:
			if !connected && m.Kind == "subscribe" {
				connected = true
				h.HandleConnect()
			}
		case *redis.Pong:
			if !connected {
				connected = true
				h.HandleConnect()
			}
		case *redis.Message:
			ev, err := DecodeFrame([]byte(m.Payload))
			if err != nil {
				slog.Warn("dropping push frame", "channel", m.Channel, "error", err)
				continue
			}
			h.HandleEvent(ev)
		}
	}
}

// Subscribe listens on the job's channel and publishes subscribe_to_job.
func (t *RedisTransport) Subscribe(ctx context.Context, jobID string) error {
	t.mu.Lock()
	t.jobs[jobID] = true
	ps := t.pubsub
	t.mu.Unlock()

	if ps != nil {
		if err := ps.Subscribe(ctx, t.JobChannel(jobID)); err != nil {
			return fmt.Errorf("subscribe %s: %w", t.JobChannel(jobID), err)
		}
	}

	payload, err := EncodeSubscribe(jobID)
	if err != nil {
		return fmt.Errorf("encode subscribe: %w", err)
	}
	if err := t.client.Publish(ctx, t.ControlChannel(), payload).Err(); err != nil {
		return fmt.Errorf("publish subscribe_to_job: %w", err)
	}
	return nil
}

// Ping checks Redis connectivity.
func (t *RedisTransport) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

var _ Transport = (*RedisTransport)(nil)
