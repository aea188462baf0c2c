package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := Default()
	cfg.AuthSecret = "s3cret"
	cfg.ListenAddr = ":9090"
	cfg.HandshakeGrace = Duration{5 * time.Second}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want %q", loaded.ListenAddr, ":9090")
	}
	if loaded.HandshakeGrace.Duration != 5*time.Second {
		t.Errorf("HandshakeGrace = %v, want 5s", loaded.HandshakeGrace.Duration)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("auth_secret = \"x\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SendBuffer != 256 {
		t.Errorf("SendBuffer = %d, want 256", cfg.SendBuffer)
	}
	if cfg.FanoutWorkers != 8 {
		t.Errorf("FanoutWorkers = %d, want 8", cfg.FanoutWorkers)
	}
	if cfg.BackplaneRedisChannel != "chatd:presence" {
		t.Errorf("BackplaneRedisChannel = %q, want chatd:presence", cfg.BackplaneRedisChannel)
	}
}

func TestLoadRejectsMissingSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("listen_addr = \":8080\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for missing auth_secret")
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load("/nonexistent/config.toml"); err == nil {
		t.Error("Load() expected error for missing file")
	}
}
