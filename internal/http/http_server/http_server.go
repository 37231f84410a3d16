package http_server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"roomrelay/internal/http/statshandler"
	"roomrelay/internal/ws"

	"github.com/abrar71/swaggerfilesv2" // swagger embed files
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type httpServer struct {
	listenPort uint16
	srv        http.Server
	ln         net.Listener
	stats      statshandler.StatsSource
	wsSrv      *ws.WsServer
}

func NewHttpServer(listenPort uint16, wsSrv *ws.WsServer, stats statshandler.StatsSource) *httpServer {
	return &httpServer{
		listenPort: listenPort,
		wsSrv:      wsSrv,
		stats:      stats,
	}
}

// Routes builds the gin engine. Exposed separately from Start for tests.
func (h *httpServer) Routes() *gin.Engine {
	routerEngine := gin.New()

	routerEngine.Use(ginzap.Ginzap(zap.L(), time.RFC3339, true))
	routerEngine.Use(ginzap.RecoveryWithZap(zap.L(), true))

	// Swagger UI and API specs (api_specs is produced by `go tool swag init`)
	routerEngine.StaticFS("/swagger-apis", http.FS(swaggerfilesv2.FS))
	routerEngine.Static("/api-specs", "api_specs")

	// Static test page
	routerEngine.StaticFile("/", "public/index.html")

	// websocket endpoint
	routerEngine.GET("/ws/:user_id/:room_id", h.wsSrv.Handle)

	// health + stats
	statshandler.New(h.stats).Register(routerEngine)

	return routerEngine
}

// Start blocks serving until Dispose is called.
func (h *httpServer) Start() error {
	var err error
	listenAddr := fmt.Sprintf(":%d", h.listenPort)
	h.ln, err = net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}
	zap.L().Info("http.listening", zap.String("addr", listenAddr))

	h.srv = http.Server{
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := h.srv.Serve(h.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Dispose stops accepting requests, closes live websockets so their sessions
// announce the leave, then waits for in-flight HTTP requests.
func (h *httpServer) Dispose(ctx context.Context) error {
	if err := h.wsSrv.Shutdown(ctx); err != nil {
		zap.L().Warn("http_dispose.ws", zap.Error(err))
	}

	if err := h.srv.Shutdown(ctx); err != nil {
		zap.L().Error("http_dispose", zap.Error(err))
		return err
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		zap.L().Error("http_dispose", zap.Error(errors.New("shutdown timed out")))
	}
	return nil
}
