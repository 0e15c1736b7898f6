package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
// User credentials are not checked here; they may come from flags.
func (c *Config) Validate() error {
	if err := validateURL("realtime.url", c.Realtime.URL, "ws", "wss"); err != nil {
		return err
	}
	if c.Realtime.HandshakeTimeout < 0 {
		return errors.New("realtime.handshake_timeout must be >= 0")
	}
	if c.Realtime.AckTimeout < 0 {
		return errors.New("realtime.ack_timeout must be >= 0")
	}
	if c.Realtime.ReconnectBaseDelay < 0 {
		return errors.New("realtime.reconnect_base_delay must be >= 0")
	}
	if c.Realtime.ReconnectMaxDelay < 0 {
		return errors.New("realtime.reconnect_max_delay must be >= 0")
	}
	if c.Realtime.ReconnectMaxDelay > 0 && c.Realtime.ReconnectMaxDelay < c.Realtime.ReconnectBaseDelay {
		return fmt.Errorf("realtime.reconnect_max_delay (%s) cannot be below reconnect_base_delay (%s)",
			c.Realtime.ReconnectMaxDelay, c.Realtime.ReconnectBaseDelay)
	}
	if c.Realtime.MaxReconnectAttempts < -1 {
		return errors.New("realtime.max_reconnect_attempts must be >= -1")
	}
	if c.Realtime.BufferSize < 1 {
		return errors.New("realtime.buffer_size must be >= 1")
	}

	if err := validateURL("api.base_url", c.API.BaseURL, "http", "https"); err != nil {
		return err
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}

	if err := c.Logging.validate(); err != nil {
		return err
	}

	if c.Archive.Enabled {
		if c.Archive.BatchSize < 1 {
			return errors.New("archive.batch_size must be >= 1")
		}
		if c.Archive.BufferSize < 1 {
			return errors.New("archive.buffer_size must be >= 1")
		}
		if c.Archive.FlushInterval <= 0 {
			return errors.New("archive.flush_interval must be > 0")
		}
		if c.Archive.BackfillInterval < 0 {
			return errors.New("archive.backfill_interval must be >= 0")
		}
		if c.Archive.BackfillPageSize < 1 {
			return errors.New("archive.backfill_page_size must be >= 1")
		}
		if c.Archive.BackfillConcurrency < 1 {
			return errors.New("archive.backfill_concurrency must be >= 1")
		}
		if err := c.Database.validate("database"); err != nil {
			return err
		}
	}

	return nil
}

func (l *LoggingConfig) validate() error {
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", l.Level)
	}
	switch l.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", l.Format)
	}
	switch l.Output {
	case "stdout", "stderr":
	case "file":
		if l.File.Path == "" {
			return errors.New("logging.file.path is required when logging.output is file")
		}
	default:
		return fmt.Errorf("logging.output %q must be stdout, stderr or file", l.Output)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

func validateURL(field, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s %q must be a %s URL", field, raw, strings.Join(schemes, " or "))
}
