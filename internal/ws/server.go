package ws

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"roomrelay/internal/relay"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait         = 10 * time.Second
	defaultPongWait   = 60 * time.Second
	defaultPingPeriod = 30 * time.Second // must be < pongWait
	defaultReadLimit  = 4096
)

// SessionHandler is the core surface driven by every connection.
type SessionHandler interface {
	OnConnect(ctx context.Context, identity, roomID string, conn relay.Conn)
	OnInboundPayload(ctx context.Context, identity, roomID string, raw []byte) error
	OnDisconnect(ctx context.Context, identity, roomID string, conn relay.Conn)
}

type Options struct {
	MaxMessageSize int64
	PingPeriod     time.Duration
	PongWait       time.Duration
	AllowedOrigins []string // "*" allows any origin
}

type WsServer struct {
	sessions SessionHandler
	upgrader websocket.Upgrader
	opts     Options

	// mu guards draining and live, and orders wg.Add before Shutdown's Wait.
	mu       sync.Mutex
	draining bool
	live     map[*clientConn]struct{}
	wg       sync.WaitGroup
}

func NewWsServer(sessions SessionHandler, opts Options) *WsServer {
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = defaultReadLimit
	}
	if opts.PongWait <= 0 {
		opts.PongWait = defaultPongWait
	}
	if opts.PingPeriod <= 0 || opts.PingPeriod >= opts.PongWait {
		opts.PingPeriod = opts.PongWait * 9 / 10
	}

	return &WsServer{
		sessions: sessions,
		opts:     opts,
		live:     make(map[*clientConn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
	}
}

// ---------------------------------------------------------------------------
//  Public: Gin entry‑point
// ---------------------------------------------------------------------------

// Handle upgrades GET /ws/:user_id/:room_id and runs the session until the
// socket closes or the client sends a malformed frame.
func (s *WsServer) Handle(ginCtx *gin.Context) {
	userID := ginCtx.Param("user_id")
	roomID := ginCtx.Param("room_id")
	if userID == "" || roomID == "" {
		ginCtx.JSON(http.StatusBadRequest, gin.H{"error": "user_id and room_id are required"})
		return
	}
	if s.isDraining() {
		ginCtx.JSON(http.StatusServiceUnavailable, gin.H{"error": "server is shutting down"})
		return
	}

	rawConn, err := s.upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws.accept", zap.String("user_id", userID), zap.Error(err))
		return
	}
	rawConn.SetReadLimit(s.opts.MaxMessageSize)

	conn := newClientConn(rawConn)
	if !s.track(conn) {
		conn.closeWith(websocket.CloseGoingAway, "server shutting down")
		return
	}

	s.sessions.OnConnect(context.Background(), userID, roomID, conn)

	done := make(chan struct{})
	go s.reader(userID, roomID, conn, done)
	go s.pinger(conn, done)
}

// Shutdown refuses new upgrades, closes every live socket and waits for their
// sessions to finish or ctx to expire.
func (s *WsServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.draining = true
	conns := make([]*clientConn, 0, len(s.live))
	for c := range s.live {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.closeWith(websocket.CloseGoingAway, "server shutting down")
	}

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ---------------------------------------------------------------------------
//  Private helpers
// ---------------------------------------------------------------------------

func (s *WsServer) isDraining() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draining
}

// track adds conn to the live set unless Shutdown already started.
func (s *WsServer) track(conn *clientConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draining {
		return false
	}
	s.live[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *WsServer) untrack(conn *clientConn) {
	s.mu.Lock()
	delete(s.live, conn)
	s.mu.Unlock()
	s.wg.Done()
}

type readOutcome int

const (
	framePayload readOutcome = iota
	frameClosed
)

// next blocks for the next client frame. Any read error, including a clean
// close, ends the stream.
func (s *WsServer) next(conn *clientConn, userID string) (readOutcome, []byte) {
	_, data, err := conn.rawConn.ReadMessage()
	if err == nil {
		return framePayload, data
	}

	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		zap.L().Info("ws.read_limit", zap.String("user_id", userID), zap.Int64("limit", s.opts.MaxMessageSize))
	case websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		zap.L().Info("ws.read", zap.String("user_id", userID), zap.Error(err))
	default:
		zap.L().Debug("ws.closed", zap.String("user_id", userID), zap.Error(err))
	}
	return frameClosed, nil
}

func (s *WsServer) reader(userID, roomID string, conn *clientConn, done chan struct{}) {
	defer func() {
		close(done)
		_ = conn.rawConn.Close()
		s.sessions.OnDisconnect(context.Background(), userID, roomID, conn)
		s.untrack(conn)
	}()

	_ = conn.rawConn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	conn.rawConn.SetPongHandler(func(string) error {
		return conn.rawConn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	for {
		outcome, data := s.next(conn, userID)
		if outcome == frameClosed {
			return
		}

		if err := s.sessions.OnInboundPayload(context.Background(), userID, roomID, data); err != nil {
			zap.L().Info("ws.malformed_payload", zap.String("user_id", userID), zap.Error(err))
			conn.closeWith(websocket.CloseUnsupportedData, "malformed payload")
			return
		}
	}
}

func (s *WsServer) pinger(conn *clientConn, done <-chan struct{}) {
	ticker := time.NewTicker(s.opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				_ = conn.rawConn.Close()
				return
			}
		}
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		o = strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if o != "" {
			set[o] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // non-browser client
		}
		_, ok := set[strings.ToLower(strings.TrimRight(origin, "/"))]
		return ok
	}
}
