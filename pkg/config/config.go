// Package config loads and validates this server's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mcp-snowflake/server/pkg/snowflake"
)

// Config is the top-level configuration document.
type Config struct {
	Snowflake snowflake.Config `yaml:"snowflake"`
	Registry  RegistryConfig   `yaml:"registry"`
	Audit     AuditConfig      `yaml:"audit"`
	AdminAPI  AdminAPIConfig   `yaml:"admin_api"`
	Server    ServerConfig     `yaml:"server"`
}

// RegistryConfig holds the query registry settings. Only
// MaxConcurrentBlockingOps reaches the registry, as the bound of its
// BlockingExecutor. DefaultTTL, DefaultMaxInlineRows, DefaultPollInterval
// and PruneInterval are parsed and defaulted here but not passed on: the
// registry uses its own built-in TTL, inline-row cap and poll interval,
// and nothing prunes expired queries on a schedule.
type RegistryConfig struct {
	DefaultTTL               time.Duration `yaml:"default_ttl"`
	DefaultMaxInlineRows     int           `yaml:"default_max_inline_rows"`
	DefaultPollInterval      time.Duration `yaml:"default_poll_interval"`
	MaxConcurrentBlockingOps int64         `yaml:"max_concurrent_blocking_ops"`
	PruneInterval            time.Duration `yaml:"prune_interval"`
}

// AuditConfig controls whether query registry operations are persisted
// to the audit trail, and where.
type AuditConfig struct {
	Enabled     bool   `yaml:"enabled"`
	DatabaseURL string `yaml:"database_url"`
}

// AdminAPIConfig controls the optional admin REST API, which reads
// registry and audit state and can cancel queries.
type AdminAPIConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddr    string `yaml:"listen_addr"`
	JWTIssuer     string `yaml:"jwt_issuer"`
	JWTSigningKey string `yaml:"jwt_signing_key"`
	RoleClaimPath string `yaml:"role_claim_path"`
}

// ServerConfig controls the MCP server identity and transport.
type ServerConfig struct {
	Name      string `yaml:"name"`
	Version   string `yaml:"version"`
	Transport string `yaml:"transport"` // "stdio" or "sse"
	Address   string `yaml:"address"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads, expands, parses, and validates the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-supplied, not user input
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]
		return os.Getenv(name)
	})
}

func applyDefaults(cfg *Config) {
	if cfg.Registry.DefaultTTL <= 0 {
		cfg.Registry.DefaultTTL = 24 * time.Hour
	}
	if cfg.Registry.DefaultMaxInlineRows <= 0 {
		cfg.Registry.DefaultMaxInlineRows = 1000
	}
	if cfg.Registry.DefaultPollInterval <= 0 {
		cfg.Registry.DefaultPollInterval = time.Second
	}
	if cfg.Registry.MaxConcurrentBlockingOps <= 0 {
		cfg.Registry.MaxConcurrentBlockingOps = 16
	}
	if cfg.Registry.PruneInterval <= 0 {
		cfg.Registry.PruneInterval = 5 * time.Minute
	}
	if cfg.Server.Transport == "" {
		cfg.Server.Transport = "stdio"
	}
	if cfg.Server.Name == "" {
		cfg.Server.Name = "mcp-snowflake"
	}
	if cfg.AdminAPI.ListenAddr == "" {
		cfg.AdminAPI.ListenAddr = ":8089"
	}
	if cfg.AdminAPI.RoleClaimPath == "" {
		cfg.AdminAPI.RoleClaimPath = "roles"
	}
}

// Validate checks the config for internal consistency, collecting every
// problem it finds rather than stopping at the first.
func (c *Config) Validate() error {
	var errs []string

	if err := c.Snowflake.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Server.Transport != "stdio" && c.Server.Transport != "sse" {
		errs = append(errs, fmt.Sprintf("server.transport must be 'stdio' or 'sse', got %q", c.Server.Transport))
	}
	if c.Server.Transport == "sse" && c.Server.Address == "" {
		errs = append(errs, "server.address is required when transport is 'sse'")
	}
	if c.Audit.Enabled && c.Audit.DatabaseURL == "" {
		errs = append(errs, "audit.database_url is required when audit.enabled is true")
	}
	if c.AdminAPI.Enabled && c.AdminAPI.JWTSigningKey == "" {
		errs = append(errs, "admin_api.jwt_signing_key is required when admin_api.enabled is true")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
