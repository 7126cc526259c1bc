package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadJSONConfig(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"telegram": {"token": "t", "poll_timeout": "5s"},
		"scheduler": {"enabled": true, "workers": 2, "timezone": "UTC"},
		"storage": {"driver": "file", "path": "tasks.json"},
		"plugins": {"todo": {"enabled": true, "config": {"notify_interval": "30m"}}}
	}`)

	cfg, err := NewConfigManager(path).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "t" || !cfg.Scheduler.Enabled || cfg.Storage.Driver != "file" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if !cfg.Plugins["todo"].Enabled {
		t.Fatal("todo plugin should be enabled")
	}
}

func TestLoadYAMLConfig(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
telegram:
  token: t
scheduler:
  enabled: true
  workers: 1
storage:
  driver: sqlite
  path: tasks.db
plugins:
  todo:
    enabled: true
`)

	cfg, err := NewConfigManager(path).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Scheduler.Workers != 1 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestPluginConfigRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"plugins": {"todo": {"enabled": true, "timeout": "10s"}}
	}`)

	if _, err := NewConfigManager(path).Load(); err == nil {
		t.Fatal("unknown plugin key must be rejected")
	}
}

func TestValidatorRejectsLoad(t *testing.T) {
	path := writeConfig(t, "config.json", `{"scheduler": {"workers": -1}}`)

	m := NewConfigManager(path)
	wantErr := errors.New("workers out of range")
	m.SetValidator(func(context.Context, *Config) error { return wantErr })

	if _, err := m.Load(); !errors.Is(err, wantErr) {
		t.Fatalf("err = %v", err)
	}
	if m.Get() != nil {
		t.Fatal("rejected config must not be committed")
	}
}
