// Package fanout relays room events between instances over Redis pub/sub.
// Each instance publishes what it delivered locally on "relay:<room>:events"
// and delivers what other instances published to its own members.
package fanout

import (
	"context"
	"encoding/json"
	"fmt"

	"roomrelay/internal/relay"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix  = "relay:"
	channelSuffix  = ":events"
	channelPattern = channelPrefix + "*" + channelSuffix
)

// LocalDeliverer hands a payload to the members connected to this instance.
type LocalDeliverer interface {
	DeliverLocal(ctx context.Context, roomID string, payload []byte, exclude string) relay.DeliveryReport
}

// envelope is what travels over Redis. The room id is carried explicitly so
// room ids containing ':' survive the trip.
type envelope struct {
	Origin  string          `json:"origin"`
	RoomID  string          `json:"room_id"`
	Exclude string          `json:"exclude,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

type RedisFanout struct {
	rdb        *redis.Client
	instanceID string
}

func New(rdb *redis.Client, instanceID string) *RedisFanout {
	return &RedisFanout{rdb: rdb, instanceID: instanceID}
}

func channelFor(roomID string) string { return channelPrefix + roomID + channelSuffix }

// Publish implements relay.Publisher.
func (f *RedisFanout) Publish(ctx context.Context, roomID, exclude string, payload []byte) error {
	msg, err := f.encode(roomID, exclude, payload)
	if err != nil {
		return err
	}
	if err := f.rdb.Publish(ctx, channelFor(roomID), msg).Err(); err != nil {
		return fmt.Errorf("fanout: publish %s: %w", roomID, err)
	}
	return nil
}

func (f *RedisFanout) encode(roomID, exclude string, payload []byte) (string, error) {
	msg, err := json.Marshal(envelope{
		Origin:  f.instanceID,
		RoomID:  roomID,
		Exclude: exclude,
		Payload: payload,
	})
	if err != nil {
		return "", fmt.Errorf("fanout: encode envelope: %w", err)
	}
	return string(msg), nil
}

// Run pattern-subscribes to every room channel and feeds foreign envelopes to
// local until ctx is cancelled. Start it once at boot.
func (f *RedisFanout) Run(ctx context.Context, local LocalDeliverer) {
	pubsub := f.rdb.PSubscribe(ctx, channelPattern)
	defer pubsub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-pubsub.Channel():
			if !ok {
				return
			}
			f.handle(ctx, local, m.Payload)
		}
	}
}

func (f *RedisFanout) handle(ctx context.Context, local LocalDeliverer, raw string) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		zap.L().Warn("fanout.decode", zap.Error(err))
		return
	}
	if env.Origin == f.instanceID {
		return // already delivered locally before publishing
	}
	if env.RoomID == "" || len(env.Payload) == 0 {
		zap.L().Warn("fanout.empty_envelope", zap.String("origin", env.Origin))
		return
	}

	report := local.DeliverLocal(ctx, env.RoomID, env.Payload, env.Exclude)
	zap.L().Debug("fanout.delivered",
		zap.String("origin", env.Origin),
		zap.String("room_id", env.RoomID),
		zap.Int("delivered", report.Delivered),
	)
}
