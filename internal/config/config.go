package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	HttpServerPort  uint16        `env:"HTTP_SERVER_PORT" envDefault:"8000" validate:"min=1000,max=65535"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"  validate:"gt=0"`

	WsMaxMessageSize int64         `env:"WS_MAX_MESSAGE_SIZE" envDefault:"4096" validate:"min=64"`
	WsSendTimeout    time.Duration `env:"WS_SEND_TIMEOUT"     envDefault:"10s"  validate:"gt=0"`
	WsPingPeriod     time.Duration `env:"WS_PING_PERIOD"      envDefault:"30s"  validate:"gt=0,ltfield=WsPongWait"`
	WsPongWait       time.Duration `env:"WS_PONG_WAIT"        envDefault:"60s"  validate:"gt=0"`
	WsAllowedOrigins []string      `env:"WS_ALLOWED_ORIGINS"  envDefault:"*"    validate:"min=1"`

	RedisEnabled bool   `env:"REDIS_ENABLED" envDefault:"false"`
	RedisHost    string `env:"REDIS_HOST"    envDefault:"localhost" validate:"required_if=RedisEnabled true"`
	RedisPort    uint16 `env:"REDIS_PORT"    envDefault:"6379"      validate:"min=1000,max=65535"`

	PostgresEnabled  bool   `env:"POSTGRES_ENABLED"  envDefault:"false"`
	PostgresHost     string `env:"POSTGRES_HOST"     envDefault:"localhost"`
	PostgresPort     string `env:"POSTGRES_PORT"     envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER"     envDefault:"relay_user"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"relay_password"`
	PostgresDb       string `env:"POSTGRES_DB"       envDefault:"relay_db"`
}

func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	err := godotenv.Load(".env")
	if err != nil {
		zap.L().Debug(".env file not found", zap.Error(err))
	}

	cfg := &Config{}
	// Parse config from environment variables
	if err = env.Parse(cfg); err != nil {
		zap.L().Error("config_load_failed", zap.Error(err))
		return nil, err
	}

	// Validate the config
	validate := validator.New()
	err = validate.Struct(cfg)
	if err != nil {
		zap.L().Error("config_validation_failed", zap.Error(err))
		return nil, err
	}
	return cfg, nil
}
