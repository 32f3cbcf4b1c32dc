package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vaani-voice/backend/pkg/rtcproto"
)

const (
	channelPrefix  = "rtc:room:"
	publishTimeout = 5 * time.Second
)

// redisPayload is the message published to Redis for cross-instance fan-out.
type redisPayload struct {
	Envelope rtcproto.Envelope `json:"envelope"`
	Exclude  string            `json:"exclude,omitempty"`
	At       int64             `json:"at"`
}

// RedisPubSub implements Publisher and Subscriber with Redis pub/sub.
type RedisPubSub struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPubSub creates a Redis bridge for room events.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPubSub{client: client, logger: logger}
}

// PublishRoomEvent publishes env on the room channel.
func (r *RedisPubSub) PublishRoomEvent(room string, env rtcproto.Envelope, exclude string) error {
	body, err := json.Marshal(redisPayload{Envelope: env, Exclude: exclude, At: time.Now().Unix()})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return r.client.Publish(ctx, channelPrefix+room, body).Err()
}

// SubscribeRoom subscribes to the room channel and calls handler for each event.
// The returned cancel stops the subscription.
func (r *RedisPubSub) SubscribeRoom(room string, handler func(env rtcproto.Envelope, exclude string)) (cancel func(), err error) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(ctx, channelPrefix+room)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancelCtx()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var p redisPayload
				if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
					r.logger.Debug("bad room payload", zap.String("room", room), zap.Error(err))
					continue
				}
				handler(p.Envelope, p.Exclude)
			}
		}
	}()
	return cancelCtx, nil
}
