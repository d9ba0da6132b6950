package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	// DatabasePath is the SQLite file holding users, conversations and
	// participant membership.
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	// RedisAddr points at the Redis instance backing the message log and
	// unread counters. When empty the server falls back to the in-memory
	// log, which does not survive restarts.
	RedisAddr     string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" yaml:"redis_db"`

	// MessageRetention is the sliding retention window for a conversation's
	// message log. Every new message pushes the whole log's expiry forward
	// by this much.
	MessageRetention time.Duration `mapstructure:"message_retention" yaml:"message_retention"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		DatabasePath:      "talkwire.db",
		RedisAddr:         "",
		RedisDB:           0,
		MessageRetention:  24 * time.Hour,
		JWTSecret:         "",
		JWTIssuer:         "talkwire",
		JWTAudience:       "talkwire",
		JWTTTL:            24 * time.Hour,
	}
}
