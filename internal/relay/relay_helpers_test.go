package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

var errBroken = errors.New("broken pipe")

// fakeConn records payloads; when broken every send fails, when blocking every
// send waits for its context.
type fakeConn struct {
	mu       sync.Mutex
	frames   [][]byte
	broken   bool
	blocking bool
}

func (c *fakeConn) Send(ctx context.Context, payload []byte) error {
	if c.blocking {
		<-ctx.Done()
		return ctx.Err()
	}
	if c.broken {
		return errBroken
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, append([]byte(nil), payload...))
	return nil
}

func (c *fakeConn) events(t *testing.T) []Event {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Event, 0, len(c.frames))
	for _, f := range c.frames {
		var ev Event
		require.NoError(t, json.Unmarshal(f, &ev))
		out = append(out, ev)
	}
	return out
}

type fakePublisher struct {
	mu    sync.Mutex
	calls []publishCall
	err   error
}

type publishCall struct {
	roomID, exclude string
	payload         []byte
}

func (p *fakePublisher) Publish(_ context.Context, roomID, exclude string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, publishCall{roomID: roomID, exclude: exclude, payload: payload})
	return p.err
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *fakeRecorder) Record(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}
