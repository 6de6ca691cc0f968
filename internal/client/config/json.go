package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/applock/internal/flagx"
	"github.com/dmitrijs2005/applock/internal/timex"
)

// JsonConfig is the on-disk shape of the CLI config file. Absent fields
// keep their current value. Tokens are deliberately not accepted here.
type JsonConfig struct {
	ServerEndpointAddr *string         `json:"server_endpoint_addr"`
	DatabasePath       *string         `json:"database_path"`
	PrincipalID        *string         `json:"principal_id"`
	MonitorInterval    *timex.Duration `json:"monitor_interval"`
	RemoteRetries      *uint64         `json:"remote_retries"`
	LogLevel           *string         `json:"log_level"`
	AuditBucket        *string         `json:"audit_bucket"`
	AuditRegion        *string         `json:"audit_region"`
	AuditEndpoint      *string         `json:"audit_endpoint"`
	AuditUser          *string         `json:"audit_user"`
	AuditPassword      *string         `json:"audit_password"`
}

func parseJson(cfg *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	for dst, v := range map[*string]*string{
		&cfg.ServerEndpointAddr: c.ServerEndpointAddr,
		&cfg.DatabasePath:       c.DatabasePath,
		&cfg.PrincipalID:        c.PrincipalID,
		&cfg.LogLevel:           c.LogLevel,
		&cfg.AuditBucket:        c.AuditBucket,
		&cfg.AuditRegion:        c.AuditRegion,
		&cfg.AuditEndpoint:      c.AuditEndpoint,
		&cfg.AuditUser:          c.AuditUser,
		&cfg.AuditPassword:      c.AuditPassword,
	} {
		if v != nil {
			*dst = *v
		}
	}
	if c.MonitorInterval != nil {
		cfg.MonitorInterval = c.MonitorInterval.Duration
	}
	if c.RemoteRetries != nil {
		cfg.RemoteRetries = *c.RemoteRetries
	}
	return nil
}
