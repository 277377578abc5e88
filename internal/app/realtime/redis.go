package realtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"

	"github.com/kanbanlab/boardsync/pkg/logger"
)

const channelPrefix = "boardsync.board."

// Bridge extends the snapshot fan-out across process boundaries through
// redis pub/sub. Commands publish to a per-board channel; every instance
// subscribes and feeds received snapshots into its local hub, so a session
// connected to one instance sees commands handled on another.
type Bridge struct {
	client redis.UniversalClient
	hub    *Hub
	log    *logger.Logger
}

var _ Publisher = (*Bridge)(nil)

// NewBridge constructs a bridge over an established redis client.
func NewBridge(client redis.UniversalClient, hub *Hub, log *logger.Logger) *Bridge {
	if log == nil {
		log = logger.NewDefault("redis-bridge")
	}
	return &Bridge{client: client, hub: hub, log: log}
}

// Publish pushes the payload to the board's channel. Local delivery happens
// when the subscription loop receives it back, same as for remote instances.
func (b *Bridge) Publish(ctx context.Context, boardID string, payload []byte) error {
	if err := b.client.Publish(ctx, channelPrefix+boardID, payload).Err(); err != nil {
		return fmt.Errorf("publish board %s: %w", boardID, err)
	}
	return nil
}

// Run subscribes to all board channels and forwards messages to the local
// hub until the context is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	pubsub := b.client.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	b.log.Info("redis bridge subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			boardID := strings.TrimPrefix(msg.Channel, channelPrefix)
			if err := b.hub.Publish(ctx, boardID, []byte(msg.Payload)); err != nil {
				b.log.WithError(err).Warn("local delivery failed")
			}
		}
	}
}
