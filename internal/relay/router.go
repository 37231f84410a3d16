package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrMalformedPayload ends the sender's session.
var ErrMalformedPayload = errors.New("malformed payload")

// Peer identifies the session an inbound payload arrived on.
type Peer struct {
	Identity string
	RoomID   string
}

// inboundHeader is the discriminant every client frame carries.
type inboundHeader struct {
	Type string `json:"type"`
}

// MessageRequest is what a client sends to talk in its room. Content may be
// empty but must be present.
type MessageRequest struct {
	Type    string  `json:"type"`
	Content *string `json:"content" validate:"required"`
}

// internal (untyped) handler signature.
type rawHandler func(ctx context.Context, p Peer, raw []byte) error

// Router maps the inbound "type" field to a typed handler.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]rawHandler
	validate *validator.Validate
}

func NewRouter() *Router {
	return &Router{
		handlers: make(map[string]rawHandler),
		validate: validator.New(),
	}
}

// Handle binds an inbound type to a strongly-typed handler. The whole frame is
// decoded into Req and validated before h runs.
func Handle[Req any](r *Router, typ string, h func(ctx context.Context, p Peer, req Req) error) {
	if typ == "" {
		panic("relay router: empty type")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[typ] = func(ctx context.Context, p Peer, raw []byte) error {
		var req Req
		if err := json.Unmarshal(raw, &req); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		if err := r.validate.Struct(req); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		return h(ctx, p, req)
	}
}

// Dispatch decodes raw and runs the matching handler. Unknown types are
// ignored; undecodable frames yield ErrMalformedPayload.
func (r *Router) Dispatch(ctx context.Context, p Peer, raw []byte) error {
	var hdr inboundHeader
	if err := json.Unmarshal(raw, &hdr); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	r.mu.RLock()
	h, ok := r.handlers[hdr.Type]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return h(ctx, p, raw)
}
