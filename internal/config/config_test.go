package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeConfig(t, `
database:
  dsn: postgres://quid@localhost/quid
nats:
  url: nats://localhost:4222
escrow:
  account: vault
  max_title_length: 80
log:
  level: debug
  format: json
`)
	if err := LoadConfig(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg := AppConfig
	if cfg.Database.DSN != "postgres://quid@localhost/quid" || cfg.NATS.URL != "nats://localhost:4222" {
		t.Fatalf("unexpected connection settings: %+v", cfg)
	}
	if cfg.Escrow.Account != "vault" || cfg.Escrow.MaxTitleLength != 80 {
		t.Fatalf("unexpected escrow settings: %+v", cfg.Escrow)
	}
	if cfg.Escrow.MaxDescriptionLength != 4096 || cfg.Escrow.MaxContentIDLength != 256 {
		t.Fatalf("expected defaults for unset limits: %+v", cfg.Escrow)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("unexpected log settings: %+v", cfg.Log)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeConfig(t, `
escrow:
  account: vault
`)
	t.Setenv("QUID_ESCROW_ACCOUNT", "env-vault")
	t.Setenv("QUID_DATABASE_DSN", "postgres://env")
	t.Setenv("QUID_ESCROW_AUDIT_CONCURRENCY", "9")

	if err := LoadConfig(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if AppConfig.Escrow.Account != "env-vault" {
		t.Fatalf("expected env override, got %q", AppConfig.Escrow.Account)
	}
	if AppConfig.Database.DSN != "postgres://env" || AppConfig.Escrow.AuditConcurrency != 9 {
		t.Fatalf("unexpected overrides: %+v", AppConfig)
	}
}

func TestDotEnvFillsUnsetVariables(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("QUID_NATS_URL=nats://dotenv:4222\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	// t.Setenv registers cleanup; unset so godotenv may fill it
	t.Setenv("QUID_NATS_URL", "")
	os.Unsetenv("QUID_NATS_URL")

	if err := LoadConfig(filepath.Join(dir, "missing.yaml")); err != nil {
		t.Fatalf("load: %v", err)
	}
	if AppConfig.NATS.URL != "nats://dotenv:4222" {
		t.Fatalf("expected .env value, got %q", AppConfig.NATS.URL)
	}
}

func TestMissingFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	if err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err != nil {
		t.Fatalf("load: %v", err)
	}
	want := Default()
	if *AppConfig != *want {
		t.Fatalf("expected defaults %+v, got %+v", want, AppConfig)
	}
	if AppConfig.Escrow.Account != "quid-escrow" || AppConfig.NATS.SubjectPrefix != "quid.escrow" {
		t.Fatalf("unexpected defaults: %+v", AppConfig)
	}
}

func TestInvalidConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeConfig(t, "log:\n  format: xml\n")
	if err := LoadConfig(path); err == nil {
		t.Fatalf("expected invalid log format to be rejected")
	}

	bad := writeConfig(t, "escrow: [unclosed\n")
	if err := LoadConfig(bad); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLimitsBoundedByColumns(t *testing.T) {
	t.Chdir(t.TempDir())
	cases := []struct {
		name string
		yaml string
	}{
		{"title wider than column", "escrow:\n  max_title_length: 201\n"},
		{"content id wider than column", "escrow:\n  max_content_id_length: 512\n"},
		{"escrow account too long", "escrow:\n  account: " + strings.Repeat("e", 129) + "\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := LoadConfig(writeConfig(t, tc.yaml)); err == nil {
				t.Fatalf("expected %s to be rejected", tc.name)
			}
		})
	}

	if err := LoadConfig(writeConfig(t, "escrow:\n  max_title_length: 200\n")); err != nil {
		t.Fatalf("title length at the column width should load: %v", err)
	}
}
