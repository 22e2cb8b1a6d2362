// internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/tabletop/internal/session"
)

const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Config is the process configuration, read from the environment.
type Config struct {
	Port           string   `env:"PORT" envDefault:"8080"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://*,https://*"`

	RedisAddr  string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisDB    int           `env:"REDIS_DB" envDefault:"0"`
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"24h"`

	ResultBackend    string `env:"RESULT_BACKEND" envDefault:"postgres"`
	DatabaseURL      string `env:"DATABASE_URL"`
	PostgresUser     string `env:"POSTGRES_USER"`
	PostgresPassword string `env:"POSTGRES_PASSWORD"`
	PGHost           string `env:"PG_HOST" envDefault:"localhost"`
	PGPort           string `env:"PG_PORT" envDefault:"5432"`
	PGDatabase       string `env:"PG_DATABASE" envDefault:"tabletop"`
	SQLitePath       string `env:"SQLITE_PATH" envDefault:"tabletop.db"`

	TurnTimeout        time.Duration `env:"TURN_TIMEOUT" envDefault:"30s"`
	BotMoveDelay       time.Duration `env:"BOT_MOVE_DELAY" envDefault:"1s"`
	CompletionRetry    time.Duration `env:"COMPLETION_RETRY" envDefault:"5s"`
	BotPolicy          string        `env:"BOT_POLICY" envDefault:"first_legal"`
	MaxConflictRetries int           `env:"MAX_CONFLICT_RETRIES" envDefault:"3"`
	SheddingMaxTurns   int           `env:"SHEDDING_MAX_TURNS" envDefault:"400"`
	RaceMaxTurns       int           `env:"RACE_MAX_TURNS" envDefault:"0"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	HistorianQueue     string `env:"HISTORIAN_QUEUE_NAME" envDefault:"tabletop_actions"`
	FinishChannel      string `env:"FINISH_EVENT_CHANNEL" envDefault:"tabletop_finished"`
	HistorianBatchSize int    `env:"HISTORIAN_BATCH_SIZE" envDefault:"20"`
	HistorianFlushMS   int    `env:"HISTORIAN_FLUSH_MS" envDefault:"500"`

	// TokenExpireTime is a Go duration, or "never"/"0" for tokens without exp.
	TokenExpireTime   string `env:"TOKEN_EXPIRE_TIME" envDefault:"never"`
	JWTPrivateKeyPath string `env:"JWT_PRIVATE_KEY_PATH"`
	JWTPublicKeyPath  string `env:"JWT_PUBLIC_KEY_PATH"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks values env tags cannot express.
func (c Config) Validate() error {
	switch c.ResultBackend {
	case BackendPostgres, BackendSQLite:
	default:
		return fmt.Errorf("RESULT_BACKEND must be %q or %q, got %q", BackendPostgres, BackendSQLite, c.ResultBackend)
	}
	if c.MaxConflictRetries < 0 {
		return fmt.Errorf("MAX_CONFLICT_RETRIES must not be negative")
	}
	if c.HistorianBatchSize <= 0 || c.HistorianFlushMS <= 0 {
		return fmt.Errorf("historian batch size and flush interval must be positive")
	}
	if (c.JWTPrivateKeyPath == "") != (c.JWTPublicKeyPath == "") {
		return fmt.Errorf("JWT_PRIVATE_KEY_PATH and JWT_PUBLIC_KEY_PATH must be set together")
	}
	return nil
}

// PostgresURL returns DATABASE_URL, or builds one from the POSTGRES_*/PG_* parts.
func (c Config) PostgresURL() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   c.PGHost + ":" + c.PGPort,
		Path:   "/" + c.PGDatabase,
	}
	if c.PostgresUser != "" {
		u.User = url.UserPassword(c.PostgresUser, c.PostgresPassword)
	}
	return u.String()
}

// Level returns the logrus level named by LOG_LEVEL.
func (c Config) Level() (logrus.Level, error) {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return lvl, nil
}

// HistorianFlush is HISTORIAN_FLUSH_MS as a duration.
func (c Config) HistorianFlush() time.Duration {
	return time.Duration(c.HistorianFlushMS) * time.Millisecond
}

// SessionOptions maps the lifecycle tunables onto session.Options.
func (c Config) SessionOptions() session.Options {
	return session.Options{
		TurnTimeout:        c.TurnTimeout,
		BotMoveDelay:       c.BotMoveDelay,
		CompletionRetry:    c.CompletionRetry,
		BotPolicy:          c.BotPolicy,
		MaxConflictRetries: c.MaxConflictRetries,
		RaceMaxTurns:       c.RaceMaxTurns,
		SheddingMaxTurns:   c.SheddingMaxTurns,
	}
}
