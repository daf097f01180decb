// Package config loads and validates redlet-server's YAML configuration:
// read the file, unmarshal, apply defaults, validate, derive.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nishisan-dev/redlet/internal/auth"
)

// ServerConfig is the complete redlet-server configuration.
type ServerConfig struct {
	Server      ServerListen      `yaml:"server"`
	TLS         TLSServer         `yaml:"tls"`
	Auth        AuthConfig        `yaml:"auth"`
	Replication ReplicationConfig `yaml:"replication"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Snapshot    SnapshotConfig    `yaml:"snapshot"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Logging     LoggingInfo       `yaml:"logging"`
}

// ServerListen is the client-facing TCP listen address.
type ServerListen struct {
	Listen string `yaml:"listen"`
}

// TLSServer holds the optional mTLS certificate paths for the listener
// and for outbound follower connections. Empty CACert disables TLS.
type TLSServer struct {
	CACert     string `yaml:"ca_cert"`
	ServerCert string `yaml:"server_cert"`
	ServerKey  string `yaml:"server_key"`
}

func (t TLSServer) enabled() bool { return t.CACert != "" }

// AuthConfig configures the single optional shared auth secret. Secret is
// the plaintext value read from YAML; it never persists past validate(),
// which hashes it into SecretHash and zeroes Secret.
type AuthConfig struct {
	Secret     string `yaml:"secret"`
	SecretHash string `yaml:"-"`
}

// ReplicationConfig selects whether this instance boots as a leader (empty
// ReplicaOf) or dials out as a follower.
type ReplicationConfig struct {
	ReplicaOf  string `yaml:"replica_of"`
	ListenPort int    `yaml:"listen_port"`
}

// SchedulerConfig controls the fixed-cadence sweep that evicts expired
// keys and times out blocked clients.
type SchedulerConfig struct {
	SweepIntervalMs int           `yaml:"sweep_interval_ms"` // default 100
	SweepInterval   time.Duration `yaml:"-"`
}

// SnapshotConfig selects the snapshot-hook backend and its cron cadence.
type SnapshotConfig struct {
	Backend  string     `yaml:"backend"` // none|bbolt|s3 (default none)
	Schedule string     `yaml:"schedule"` // cron expression, e.g. "@every 5m"
	BBolt    BBoltConfig `yaml:"bbolt"`
	S3       S3Config    `yaml:"s3"`
}

// BBoltConfig is the local embedded snapshot store's file path.
type BBoltConfig struct {
	Path string `yaml:"path"` // default "redlet-snapshot.db"
}

// S3Config is the S3 snapshot archival sink's destination. AccessKey and
// SecretKey are optional; when empty the SDK's default credential chain
// (env, shared config, instance role) is used instead.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// RateLimitConfig is the optional per-connection command-rate limiter.
type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled"`
	CommandsPerSec int  `yaml:"commands_per_sec"` // default 0 (unlimited) when disabled
}

// LoggingInfo selects log level, format and an optional file path, the
// three knobs internal/logging.NewLogger accepts.
type LoggingInfo struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	FilePath string `yaml:"file_path"`
}

// LoadServerConfig reads and validates the YAML configuration file at path.
func LoadServerConfig(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading server config: %w", err)
	}

	var cfg ServerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing server config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating server config: %w", err)
	}

	return &cfg, nil
}

func (c *ServerConfig) validate() error {
	if c.Server.Listen == "" {
		c.Server.Listen = "127.0.0.1:6380"
	}

	if c.TLS.enabled() {
		if c.TLS.ServerCert == "" {
			return fmt.Errorf("tls.server_cert is required when tls.ca_cert is set")
		}
		if c.TLS.ServerKey == "" {
			return fmt.Errorf("tls.server_key is required when tls.ca_cert is set")
		}
	}

	if c.Auth.Secret != "" {
		hash, err := auth.Hash(c.Auth.Secret)
		if err != nil {
			return fmt.Errorf("auth.secret: %w", err)
		}
		c.Auth.SecretHash = hash
		c.Auth.Secret = ""
	}

	if c.Replication.ListenPort <= 0 {
		c.Replication.ListenPort = defaultListenPort(c.Server.Listen)
	}

	if c.Scheduler.SweepIntervalMs <= 0 {
		c.Scheduler.SweepIntervalMs = 100
	}
	c.Scheduler.SweepInterval = time.Duration(c.Scheduler.SweepIntervalMs) * time.Millisecond

	c.Snapshot.Backend = strings.ToLower(strings.TrimSpace(c.Snapshot.Backend))
	switch c.Snapshot.Backend {
	case "", "none":
		c.Snapshot.Backend = "none"
	case "bbolt":
		if c.Snapshot.BBolt.Path == "" {
			c.Snapshot.BBolt.Path = "redlet-snapshot.db"
		}
	case "s3":
		if c.Snapshot.S3.Bucket == "" {
			return fmt.Errorf("snapshot.s3.bucket is required when snapshot.backend is s3")
		}
		if c.Snapshot.S3.Region == "" {
			return fmt.Errorf("snapshot.s3.region is required when snapshot.backend is s3")
		}
	default:
		return fmt.Errorf("snapshot.backend must be none, bbolt or s3, got %q", c.Snapshot.Backend)
	}
	if c.Snapshot.Backend != "none" && c.Snapshot.Schedule == "" {
		c.Snapshot.Schedule = "@every 5m"
	}

	if c.RateLimit.Enabled && c.RateLimit.CommandsPerSec <= 0 {
		c.RateLimit.CommandsPerSec = 1000
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	return nil
}

// defaultListenPort extracts the numeric port from a "host:port" listen
// address, used as the REPLCONF listening-port default when the operator
// doesn't set replication.listen_port explicitly.
func defaultListenPort(listen string) int {
	idx := strings.LastIndex(listen, ":")
	if idx < 0 {
		return 6380
	}
	port, err := strconv.Atoi(listen[idx+1:])
	if err != nil {
		return 6380
	}
	return port
}
