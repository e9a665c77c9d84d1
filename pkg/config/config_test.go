package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const minimalYAML = `environment: test
kafka:
  brokers:
    - localhost:9092
postgres:
  dsn: postgres://localhost/trading
barfeed:
  websocket_url: wss://feed.example/ws
`

func loadMinimal(t *testing.T) *Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return c
}

func TestReconcileDefaults(t *testing.T) {
	c := loadMinimal(t)
	// The cycle runs every two minutes and flags an open trade whose MFE
	// has not moved within the same window.
	if c.Reconcile.Schedule != "*/2 * * * *" {
		t.Fatalf("schedule = %q", c.Reconcile.Schedule)
	}
	if c.Reconcile.StaleMfeAfter != 2*time.Minute {
		t.Fatalf("stale_mfe_after = %s", c.Reconcile.StaleMfeAfter)
	}
}

func TestMetricsDefaults(t *testing.T) {
	c := loadMinimal(t)
	if !c.Metrics.Enabled {
		t.Fatal("metrics disabled by default")
	}
	if c.Metrics.Path != "/metrics" {
		t.Fatalf("metrics path = %q", c.Metrics.Path)
	}
}
