// Package snowflake provides the registry.Driver implementation that
// talks to a real Snowflake account over database/sql and gosnowflake.
package snowflake

import (
	"fmt"
	"time"

	"github.com/snowflakedb/gosnowflake"
)

// Config holds the connection parameters for one Snowflake account. It is
// loaded from YAML by pkg/config and mirrors the fields
// SnowflakeConnectionProvider accepted in the original implementation.
type Config struct {
	Account       string `yaml:"account"`
	User          string `yaml:"user"`
	Password      string `yaml:"password"`
	Warehouse     string `yaml:"warehouse"`
	Database      string `yaml:"database"`
	Schema        string `yaml:"schema"`
	Role          string `yaml:"role"`
	Authenticator string `yaml:"authenticator"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func (c Config) applyDefaults() Config {
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 2
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = time.Hour
	}
	return c
}

// Validate checks that the required fields for opening a connection are
// present.
func (c Config) Validate() error {
	var missing []string
	if c.Account == "" {
		missing = append(missing, "account")
	}
	if c.User == "" {
		missing = append(missing, "user")
	}
	if c.Password == "" && c.Authenticator == "" {
		missing = append(missing, "password or authenticator")
	}
	if len(missing) > 0 {
		return fmt.Errorf("snowflake config missing required fields: %v", missing)
	}
	return nil
}

func (c Config) dsn() (string, error) {
	gcfg := &gosnowflake.Config{
		Account:       c.Account,
		User:          c.User,
		Password:      c.Password,
		Warehouse:     c.Warehouse,
		Database:      c.Database,
		Schema:        c.Schema,
		Role:          c.Role,
		Authenticator: authenticatorType(c.Authenticator),
	}
	dsn, err := gosnowflake.DSN(gcfg)
	if err != nil {
		return "", fmt.Errorf("building snowflake dsn: %w", err)
	}
	return dsn, nil
}

func authenticatorType(name string) gosnowflake.AuthType {
	switch name {
	case "externalbrowser":
		return gosnowflake.AuthTypeExternalBrowser
	case "oauth":
		return gosnowflake.AuthTypeOAuth
	case "jwt", "keypair":
		return gosnowflake.AuthTypeJwt
	case "username_password_mfa":
		return gosnowflake.AuthTypeUsernamePasswordMFA
	default:
		return gosnowflake.AuthTypeSnowflake
	}
}
