package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	LogLevel string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// Storage selection: DatabaseURL wins, then BadgerDir, then in-memory.
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
	BadgerDir   string

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool

	SessionTTL           time.Duration
	SessionSweepInterval time.Duration

	SubscriberQueue int

	WSOriginRequired    bool
	WSAllowedOrigins    []string
	WSHeartbeatInterval time.Duration
	WSHeartbeatTimeout  time.Duration
	WSDevInsecure       bool

	MaxBodyBytes   int64
	PostRateEvents int
	PostRateWindow time.Duration
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("PARLEY_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel: EnvString("PARLEY_LOG_LEVEL", "info"),

		ReadHeaderTimeout: EnvDuration("PARLEY_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("PARLEY_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("PARLEY_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("PARLEY_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("PARLEY_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("PARLEY_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("PARLEY_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("PARLEY_DB_MIN_CONNS", 0),
		BadgerDir:   EnvString("PARLEY_BADGER_DIR", ""),

		ReadinessRequireDB: EnvBool("PARLEY_READINESS_REQUIRE_DB", false),

		SessionTTL:           EnvDuration("PARLEY_SESSION_TTL", 7*24*time.Hour),
		SessionSweepInterval: EnvDuration("PARLEY_SESSION_SWEEP_INTERVAL", time.Minute),

		SubscriberQueue: EnvInt("PARLEY_SUBSCRIBER_QUEUE", 64),

		WSOriginRequired:    EnvBool("PARLEY_WS_ORIGIN_REQUIRED", true),
		WSAllowedOrigins:    EnvCSV("PARLEY_WS_ALLOWED_ORIGINS", "http://localhost,http://127.0.0.1"),
		WSHeartbeatInterval: EnvDuration("PARLEY_WS_HEARTBEAT_INTERVAL", 25*time.Second),
		WSHeartbeatTimeout:  EnvDuration("PARLEY_WS_HEARTBEAT_TIMEOUT", 5*time.Second),
		WSDevInsecure:       EnvBool("PARLEY_WS_DEV_INSECURE", false),

		MaxBodyBytes:   int64(EnvInt("PARLEY_HTTP_MAX_BODY_BYTES", 1<<20)),
		PostRateEvents: EnvInt("PARLEY_POST_RATE_EVENTS", 30),
		PostRateWindow: EnvDuration("PARLEY_POST_RATE_WINDOW", 10*time.Second),
	}
}
