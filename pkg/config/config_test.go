package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "database_url: postgres://file/db\nlisten_addr: \":9000\"\nsession:\n  ttl_hours: 1\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("SERVICE_PORT", "")
	t.Setenv("LOG_LEVEL", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://env/db" {
		t.Fatalf("env must win over file, got %s", cfg.DatabaseURL)
	}
	if cfg.ListenAddr != ":9000" {
		t.Fatalf("file value lost, got %s", cfg.ListenAddr)
	}
	if cfg.Session.TTLHours != 1 {
		t.Fatalf("nested value lost, got %d", cfg.Session.TTLHours)
	}
	if cfg.Pool.MaxConns != 10 {
		t.Fatalf("default not kept, got %d", cfg.Pool.MaxConns)
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected an error without a database url")
	}
}
