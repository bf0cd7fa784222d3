package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsAndExpandsEnv(t *testing.T) {
	t.Setenv("SNOWFLAKE_PASSWORD", "secret")

	path := writeTempConfig(t, `
snowflake:
  account: acc
  user: u
  password: ${SNOWFLAKE_PASSWORD}
server:
  transport: stdio
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Snowflake.Password != "secret" {
		t.Fatalf("expected env var expansion, got %q", cfg.Snowflake.Password)
	}
	if cfg.Registry.DefaultMaxInlineRows != 1000 {
		t.Fatalf("expected default max inline rows 1000, got %d", cfg.Registry.DefaultMaxInlineRows)
	}
	if cfg.Server.Name != "mcp-snowflake" {
		t.Fatalf("expected default server name mcp-snowflake, got %q", cfg.Server.Name)
	}
}

func TestLoadRejectsInvalidTransport(t *testing.T) {
	path := writeTempConfig(t, `
snowflake:
  account: acc
  user: u
  password: p
server:
  transport: carrier-pigeon
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an invalid transport")
	}
}

func TestLoadRequiresAuditDatabaseURLWhenEnabled(t *testing.T) {
	path := writeTempConfig(t, `
snowflake:
  account: acc
  user: u
  password: p
audit:
  enabled: true
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error when audit is enabled without a database url")
	}
}
