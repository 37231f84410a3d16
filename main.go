package main

import (
	"context"
	"os"

	"roomrelay/internal/config"
	"roomrelay/internal/database/db_client"
	"roomrelay/internal/http/http_server"
	"roomrelay/internal/journal"
	"roomrelay/internal/redis/fanout"
	"roomrelay/internal/redis/redis_client"
	"roomrelay/internal/relay"
	"roomrelay/internal/ws"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	Log, _ = zap.NewDevelopment()
)

//go:generate go tool swag init --parseInternal --outputTypes json,yaml -o api_specs

//	@title			roomrelay
//	@version		1.0
//	@description	Room-scoped websocket relay. Connect with GET /ws/{user_id}/{room_id}.
//	@BasePath		/
func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	Log.Debug("Configuration loaded successfully", zap.Any("config", cfg))

	instanceID := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Core: registry + broadcast engine
	registry := relay.NewRegistry()
	engineOpts := []relay.Option{relay.WithSendTimeout(cfg.WsSendTimeout)}

	// 3. Redis fan-out between instances (optional)
	var rf *fanout.RedisFanout
	if cfg.RedisEnabled {
		redisClient, err := redis_client.NewRedisClient(ctx, cfg.RedisHost, int(cfg.RedisPort))
		if err != nil {
			Log.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer redisClient.Close()

		rf = fanout.New(redisClient, instanceID)
		engineOpts = append(engineOpts, relay.WithPublisher(rf))
		Log.Info("Redis fan-out enabled", zap.String("instance_id", instanceID))
	}
	engine := relay.NewEngine(registry, engineOpts...)
	if rf != nil {
		go rf.Run(ctx, engine)
	}

	// 4. Postgres presence journal (optional)
	var recorder relay.Recorder
	if cfg.PostgresEnabled {
		pgDb, err := db_client.Open(ctx, cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDb)
		if err != nil {
			Log.Fatal("pg-open", zap.Error(err))
		}
		defer pgDb.Close()

		pj := journal.New(pgDb, instanceID)
		if err := pj.EnsureSchema(ctx); err != nil {
			Log.Fatal("pg-schema", zap.Error(err))
		}
		recorder = pj
	}

	// 5. Sessions + websocket edge
	sessions := relay.NewSessions(registry, engine, recorder)
	wsSrv := ws.NewWsServer(sessions, ws.Options{
		MaxMessageSize: cfg.WsMaxMessageSize,
		PingPeriod:     cfg.WsPingPeriod,
		PongWait:       cfg.WsPongWait,
		AllowedOrigins: cfg.WsAllowedOrigins,
	})

	// 6. HTTP + WS server
	httpServer := http_server.NewHttpServer(cfg.HttpServerPort, wsSrv, sessions)
	go func() {
		if err := httpServer.Start(); err != nil {
			Log.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// 7. Graceful shutdown on SIGINT/SIGTERM
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http-server": func(ctx context.Context) error {
				defer cancel()
				return httpServer.Dispose(ctx)
			},
		},
	)

	exitCode := <-wait
	Log.Info("Shutdown completed", zap.Int("exit_code", exitCode))
	if exitCode != 0 {
		_ = Log.Sync()
		os.Exit(exitCode)
	}
}
