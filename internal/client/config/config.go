// Package config handles configuration for the applock CLI: defaults, an
// optional JSON file, APPLOCK_* environment variables and command-line
// flags, applied in that order.
package config

import "time"

const EnvPrefix = "APPLOCK_"

// Config holds runtime settings for the CLI.
//
// The remote side is enabled only when PrincipalID is set. Session tokens
// are never read from flags or files, only from the environment or the
// local database. The S3 audit sink is enabled when AuditBucket is set.
type Config struct {
	ServerEndpointAddr string        `env:"SERVER_ADDR"`
	DatabasePath       string        `env:"DATABASE_PATH"`
	PrincipalID        string        `env:"PRINCIPAL_ID"`
	AccessToken        string        `env:"ACCESS_TOKEN"`
	RefreshToken       string        `env:"REFRESH_TOKEN"`
	MonitorInterval    time.Duration `env:"MONITOR_INTERVAL"`
	RemoteRetries      uint64        `env:"REMOTE_RETRIES"`
	LogLevel           string        `env:"LOG_LEVEL"`

	AuditBucket   string `env:"AUDIT_BUCKET"`
	AuditRegion   string `env:"AUDIT_REGION"`
	AuditEndpoint string `env:"AUDIT_ENDPOINT"`
	AuditUser     string `env:"AUDIT_USER"`
	AuditPassword string `env:"AUDIT_PASSWORD"`
}

// LoadDefaults populates c with defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.DatabasePath = "applock.db"
	c.MonitorInterval = 10 * time.Second
	c.RemoteRetries = 5
	c.LogLevel = "warn"
	c.AuditRegion = "us-east-1"
}

// RemoteEnabled reports whether a principal is configured.
func (c *Config) RemoteEnabled() bool {
	return c.PrincipalID != ""
}

// AuditS3Enabled reports whether events go to a bucket.
func (c *Config) AuditS3Enabled() bool {
	return c.AuditBucket != ""
}

// LoadConfig builds a Config from defaults, the JSON file named by
// -c/-config, the environment and flags. args excludes the program name.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}
