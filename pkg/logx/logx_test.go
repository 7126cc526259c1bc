package logx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func fileConfig(path string) Config {
	return Config{
		Level:   "debug",
		Console: false,
		File:    FileConfig{Enabled: true, Path: path},
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

func TestServiceApplySwapsSinks(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "one.log")
	p2 := filepath.Join(dir, "two.log")

	svc, log := New(fileConfig(p1))
	defer svc.Close()

	log.Info("before swap", String("k", "v"))
	if got := readFile(t, p1); !strings.Contains(got, "before swap") {
		t.Fatalf("first sink missing entry: %q", got)
	}

	svc.Apply(fileConfig(p2))

	// The logger handed out by New stays bound to the service, so the same
	// value must now write to the new sink.
	log.Info("after swap")
	if got := readFile(t, p2); !strings.Contains(got, "after swap") {
		t.Fatalf("second sink missing entry: %q", got)
	}
	if got := readFile(t, p1); strings.Contains(got, "after swap") {
		t.Fatalf("old sink still receiving entries: %q", got)
	}
}

func TestServiceDerivedLoggerStaysLive(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "one.log")
	p2 := filepath.Join(dir, "two.log")

	svc, log := New(fileConfig(p1))
	defer svc.Close()

	child := log.With(String("component", "storage"))
	svc.Apply(fileConfig(p2))

	child.Info("tick")
	got := readFile(t, p2)
	if !strings.Contains(got, "tick") || !strings.Contains(got, "storage") {
		t.Fatalf("derived logger did not follow the swap: %q", got)
	}
}

func TestServiceApplyRespectsLevel(t *testing.T) {
	p := filepath.Join(t.TempDir(), "out.log")

	cfg := fileConfig(p)
	cfg.Level = "warn"
	svc, log := New(cfg)
	defer svc.Close()

	log.Debug("quiet")
	log.Warn("loud")

	got := readFile(t, p)
	if strings.Contains(got, "quiet") {
		t.Fatalf("debug entry leaked past warn level: %q", got)
	}
	if !strings.Contains(got, "loud") {
		t.Fatalf("warn entry missing: %q", got)
	}
}
