// Package bridge relays hub fan-out events between instances over redis
// pub/sub, so a client connected to one instance still sees events for
// operations accepted on another. The relay carries notifications only;
// the accepting instance has already persisted the mutation.
package bridge

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chathub/pkg/hub"
	"chathub/pkg/logger"
)

const defaultChannel = "chathub-events"

type Relay struct {
	client  *redis.Client
	channel string
}

// New connects a relay to redis. channel may be empty for the default.
func New(addr, password string, db int, channel string) *Relay {
	if channel == "" {
		channel = defaultChannel
	}
	return &Relay{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		channel: channel,
	}
}

// Ping verifies the redis connection.
func (r *Relay) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Publish sends an envelope to sibling instances. Publish failures are
// logged and swallowed: local delivery already happened and the hub
// never blocks on the relay.
func (r *Relay) Publish(env hub.RemoteEnvelope) {
	data, err := json.Marshal(env)
	if err != nil {
		logger.Log.Error("relay_marshal_failed", zap.Error(err))
		return
	}
	if err := r.client.Publish(context.Background(), r.channel, data).Err(); err != nil {
		logger.Log.Warn("relay_publish_failed", zap.Error(err))
	}
}

// Start subscribes and feeds remote envelopes into the hub until ctx is
// canceled.
func (r *Relay) Start(ctx context.Context, h *hub.Hub) {
	sub := r.client.Subscribe(ctx, r.channel)
	go func() {
		defer func() { _ = sub.Close() }()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env hub.RemoteEnvelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					logger.Log.Warn("relay_bad_envelope", zap.Error(err))
					continue
				}
				h.DeliverRemote(env)
			}
		}
	}()
	logger.Log.Info("relay_started", zap.String("channel", r.channel))
}

// Close releases the redis connection.
func (r *Relay) Close() error {
	return r.client.Close()
}
