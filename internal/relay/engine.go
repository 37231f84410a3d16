package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultSendTimeout = 10 * time.Second

// Publisher forwards an already-delivered payload to other relay instances.
type Publisher interface {
	Publish(ctx context.Context, roomID, exclude string, payload []byte) error
}

// DeliveryReport summarises one broadcast. Reaped only lists identities whose
// failed handle was still registered and got removed.
type DeliveryReport struct {
	Delivered int
	Reaped    []string
}

// Engine builds events and fans them out to the members of a room.
type Engine struct {
	registry    *Registry
	publisher   Publisher
	sendTimeout time.Duration
	now         func() time.Time
	newID       func() string
}

type Option func(*Engine)

// WithPublisher enables cross-instance forwarding after local delivery.
func WithPublisher(p Publisher) Option { return func(e *Engine) { e.publisher = p } }

// WithSendTimeout bounds every single member send. A timeout counts as failure.
func WithSendTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.sendTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func WithIDGenerator(gen func() string) Option { return func(e *Engine) { e.newID = gen } }

func NewEngine(reg *Registry, opts ...Option) *Engine {
	e := &Engine{
		registry:    reg,
		sendTimeout: defaultSendTimeout,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AnnounceJoin tells everyone in roomID except identity that identity joined.
func (e *Engine) AnnounceJoin(ctx context.Context, identity, roomID string) Event {
	ev := Event{Type: EventUserJoined, UserID: identity, RoomID: roomID, Timestamp: e.now()}
	e.Deliver(ctx, ev, roomID, identity)
	return ev
}

// AnnounceLeave tells the whole room that identity left. identity is normally
// unregistered already, so nobody is excluded.
func (e *Engine) AnnounceLeave(ctx context.Context, identity, roomID string) Event {
	ev := Event{Type: EventUserLeft, UserID: identity, RoomID: roomID, Timestamp: e.now()}
	e.Deliver(ctx, ev, roomID, "")
	return ev
}

// RelayMessage stamps content with a fresh message id and sends it to every
// member of roomID but the sender.
func (e *Engine) RelayMessage(ctx context.Context, sender, roomID, content string) Event {
	ev := Event{
		Type:      EventMessage,
		MessageID: e.newID(),
		UserID:    sender,
		RoomID:    roomID,
		Content:   content,
		Timestamp: e.now(),
	}
	e.Deliver(ctx, ev, roomID, sender)
	return ev
}

// Deliver serialises ev, delivers it to the local members of roomID and then
// hands it to the publisher, if any.
func (e *Engine) Deliver(ctx context.Context, ev Event, roomID, exclude string) DeliveryReport {
	payload, err := json.Marshal(ev)
	if err != nil {
		zap.L().Error("relay.marshal_event", zap.String("type", string(ev.Type)), zap.Error(err))
		return DeliveryReport{}
	}

	report := e.DeliverLocal(ctx, roomID, payload, exclude)

	if e.publisher != nil {
		if err := e.publisher.Publish(ctx, roomID, exclude, payload); err != nil {
			zap.L().Warn("relay.publish", zap.String("room_id", roomID), zap.Error(err))
		}
	}
	return report
}

// DeliverLocal sends payload to each member of the room snapshot in turn. A
// failing member does not stop the loop; failed members are reaped once all
// sends were attempted. Reaping announces nothing.
func (e *Engine) DeliverLocal(ctx context.Context, roomID string, payload []byte, exclude string) DeliveryReport {
	members := e.registry.Snapshot(roomID, exclude)

	var (
		report DeliveryReport
		failed []Member
	)
	for _, m := range members {
		if err := e.send(ctx, m.Conn, payload); err != nil {
			zap.L().Debug("relay.send_failed",
				zap.String("user_id", m.Identity),
				zap.String("room_id", roomID),
				zap.Error(err),
			)
			failed = append(failed, m)
			continue
		}
		report.Delivered++
	}

	for _, m := range failed {
		if removed, _ := e.registry.Release(m.Identity, m.Conn); removed {
			report.Reaped = append(report.Reaped, m.Identity)
		}
	}
	if len(report.Reaped) > 0 {
		zap.L().Info("relay.reaped", zap.String("room_id", roomID), zap.Strings("user_ids", report.Reaped))
	}
	return report
}

func (e *Engine) send(ctx context.Context, c Conn, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, e.sendTimeout)
	defer cancel()
	return c.Send(ctx, payload)
}
