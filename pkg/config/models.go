package config

import "time"

type Config struct {
	Server    ServerConfig
	Transport TransportConfig
	Redis     RedisConfig
	Database  DatabaseConfig
	LogLevel  string `mapstructure:"logLevel"`
}

type ServerConfig struct {
	Address         string
	Auth            AuthConfig
	ConnectionLimit ConnectionLimitConfig `mapstructure:"connectionLimit"`
}

type AuthConfig struct {
	// Secret is the HS256 signing secret shared with the identity provider.
	Secret string `mapstructure:"secret"`
	// IssuerBaseURL is the identity provider's base URL; the expected token
	// issuer is derived from it.
	IssuerBaseURL string `mapstructure:"issuerBaseURL"`
}

type ConnectionLimitConfig struct {
	MaxPerUser int    `mapstructure:"maxPerUser"`
	Mode       string `mapstructure:"mode"` // "reject" or "cycle"
}

type TransportConfig struct {
	ReadTimeout time.Duration `mapstructure:"readTimeout"`
}

type RedisConfig struct {
	// URL of the pub/sub broker. Empty selects single-instance mode.
	URL string `mapstructure:"url"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}
