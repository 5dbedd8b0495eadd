package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

// FUNCTIONAL VALIDATION TEST: setup wires configuration into a ready application
func TestSetup_FromConfigFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	path := writeConfig(t, `{
		"http": {"host": "127.0.0.1", "port": 18080},
		"database": {"path": "`+filepath.ToSlash(dbPath)+`"}
	}`)

	application, err := setup(path)
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	defer application.Stop(context.Background())

	if application.Addr() != "127.0.0.1:18080" {
		t.Errorf("Expected configured address, got %s", application.Addr())
	}
	if application.Ledger() == nil {
		t.Error("Ledger should be enabled by default")
	}
}

func TestSetup_RejectsInvalidConfiguration(t *testing.T) {
	path := writeConfig(t, `{"websocket": {"ping_interval": "10m"}}`)

	if _, err := setup(path); err == nil {
		t.Error("setup should reject invalid configuration")
	}
}

func TestSetup_MissingConfigFile(t *testing.T) {
	if _, err := setup(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("setup should fail when the named config file is missing")
	}
}

func TestSetup_EnvironmentOnly(t *testing.T) {
	t.Setenv("SUPPORTCHAT_DATABASE_ENABLED", "false")
	t.Setenv("SUPPORTCHAT_HTTP_PORT", "18081")

	application, err := setup("")
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	defer application.Stop(context.Background())

	if application.Ledger() != nil {
		t.Error("Ledger should be disabled by environment")
	}
}
