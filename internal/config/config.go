package config

import "time"

// Config is the root configuration for a messaging client.
type Config struct {
	User     UserConfig     `yaml:"user" envPrefix:"USER_"`
	Realtime RealtimeConfig `yaml:"realtime" envPrefix:"REALTIME_"`
	API      APIConfig      `yaml:"api" envPrefix:"API_"`
	Logging  LoggingConfig  `yaml:"logging" envPrefix:"LOG_"`
	Archive  ArchiveConfig  `yaml:"archive" envPrefix:"ARCHIVE_"`
	Database DBConfig       `yaml:"database" envPrefix:"DB_"`
}

// UserConfig identifies the local user.
type UserConfig struct {
	ID        string `yaml:"id" env:"ID"`
	Token     string `yaml:"token" env:"TOKEN"`           // Session token (JWT or opaque)
	TokenFile string `yaml:"token_file" env:"TOKEN_FILE"` // Read the token from a file instead
}

// RealtimeConfig holds session manager settings.
type RealtimeConfig struct {
	URL                string        `yaml:"url" env:"URL"`
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout" env:"HANDSHAKE_TIMEOUT"`
	AckTimeout         time.Duration `yaml:"ack_timeout" env:"ACK_TIMEOUT"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay" env:"RECONNECT_BASE_DELAY"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay" env:"RECONNECT_MAX_DELAY"` // 0 = no clamp

	// 0 selects the default; -1 disables reconnection.
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts" env:"MAX_RECONNECT_ATTEMPTS"`

	PingInterval time.Duration `yaml:"ping_interval" env:"PING_INTERVAL"`
	PingTimeout  time.Duration `yaml:"ping_timeout" env:"PING_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	BufferSize   int           `yaml:"buffer_size" env:"BUFFER_SIZE"`
}

// APIConfig holds REST API settings.
type APIConfig struct {
	BaseURL    string        `yaml:"base_url" env:"BASE_URL"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxRetries int           `yaml:"max_retries" env:"MAX_RETRIES"`
}

// LoggingConfig selects the log handler and destination.
type LoggingConfig struct {
	Level  string        `yaml:"level" env:"LEVEL"`   // debug, info, warn, error
	Format string        `yaml:"format" env:"FORMAT"` // text, json
	Output string        `yaml:"output" env:"OUTPUT"` // stdout, stderr, file
	File   LogFileConfig `yaml:"file" envPrefix:"FILE_"`
}

// LogFileConfig configures rotated file output.
type LogFileConfig struct {
	Path       string `yaml:"path" env:"PATH"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" env:"MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"max_age_days" env:"MAX_AGE_DAYS"`
	Compress   bool   `yaml:"compress" env:"COMPRESS"`
}

// ArchiveConfig holds message archive settings.
type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled" env:"ENABLED"`
	BatchSize     int           `yaml:"batch_size" env:"BATCH_SIZE"`
	FlushInterval time.Duration `yaml:"flush_interval" env:"FLUSH_INTERVAL"`
	BufferSize    int           `yaml:"buffer_size" env:"BUFFER_SIZE"`

	// Backfill re-reads recent history of joined conversations so messages
	// missed while disconnected still reach the archive.
	BackfillInterval    time.Duration `yaml:"backfill_interval" env:"BACKFILL_INTERVAL"`
	BackfillPageSize    int           `yaml:"backfill_page_size" env:"BACKFILL_PAGE_SIZE"`
	BackfillConcurrency int           `yaml:"backfill_concurrency" env:"BACKFILL_CONCURRENCY"`
}

// DBConfig holds the archive database connection.
type DBConfig struct {
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	Name     string `yaml:"name" env:"NAME"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	SSLMode  string `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxConns int    `yaml:"max_conns" env:"MAX_CONNS"`
	MinConns int    `yaml:"min_conns" env:"MIN_CONNS"`
}
