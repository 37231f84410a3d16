package relay

import (
	"context"

	"go.uber.org/zap"
)

// Recorder receives join and leave events after they were announced.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, Event) error { return nil }

// Sessions is the narrow surface the transport drives: one OnConnect, any
// number of OnInboundPayload calls, one OnDisconnect per connection.
type Sessions struct {
	registry *Registry
	engine   *Engine
	recorder Recorder
	router   *Router
}

func NewSessions(reg *Registry, eng *Engine, rec Recorder) *Sessions {
	if rec == nil {
		rec = nopRecorder{}
	}
	s := &Sessions{
		registry: reg,
		engine:   eng,
		recorder: rec,
		router:   NewRouter(),
	}
	s.registerHandlers()
	return s
}

func (s *Sessions) registerHandlers() {
	Handle(s.router, string(EventMessage), func(ctx context.Context, p Peer, req MessageRequest) error {
		s.engine.RelayMessage(ctx, p.Identity, p.RoomID, *req.Content)
		return nil
	})
}

// OnConnect registers the handle and announces the join to the rest of the room.
func (s *Sessions) OnConnect(ctx context.Context, identity, roomID string, conn Conn) {
	if prev, ok := s.registry.RoomOf(identity); ok {
		zap.L().Warn("relay.identity_replaced", zap.String("user_id", identity), zap.String("previous_room_id", prev))
	}
	s.registry.Register(identity, conn, roomID)
	zap.L().Info("relay.connected", zap.String("user_id", identity), zap.String("room_id", roomID))

	ev := s.engine.AnnounceJoin(ctx, identity, roomID)
	s.record(ctx, ev)
}

// OnInboundPayload handles one client frame. A non-nil error means the frame was
// malformed and the caller must end the session.
func (s *Sessions) OnInboundPayload(ctx context.Context, identity, roomID string, raw []byte) error {
	return s.router.Dispatch(ctx, Peer{Identity: identity, RoomID: roomID}, raw)
}

// OnDisconnect unregisters conn and announces the leave to roomID. When
// identity has meanwhile reconnected under another handle in the same room,
// the newer session is left alone and nothing is announced; a reconnect into
// a different room still owes roomID its user_left.
func (s *Sessions) OnDisconnect(ctx context.Context, identity, roomID string, conn Conn) {
	removed, currentRoom := s.registry.Release(identity, conn)
	if !removed && currentRoom == roomID {
		zap.L().Debug("relay.stale_disconnect", zap.String("user_id", identity), zap.String("room_id", roomID))
		return
	}
	zap.L().Info("relay.disconnected",
		zap.String("user_id", identity),
		zap.String("room_id", roomID),
		zap.Bool("superseded", currentRoom != ""),
	)

	ev := s.engine.AnnounceLeave(ctx, identity, roomID)
	s.record(ctx, ev)
}

func (s *Sessions) record(ctx context.Context, ev Event) {
	if err := s.recorder.Record(ctx, ev); err != nil {
		zap.L().Warn("relay.record", zap.String("type", string(ev.Type)), zap.Error(err))
	}
}

// Stats exposes the registry readout for the HTTP edge.
func (s *Sessions) Stats() Stats { return s.registry.Stats() }
