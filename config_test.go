package vectorlite

import (
	"path/filepath"
	"testing"

	"os"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadOptionsFromYAML_AppliesMetricAndStrategy(t *testing.T) {
	path := writeConfig(t, "metric: l2\nstrategy: hnsw\ncapacity: 64\n")
	opts, err := LoadOptionsFromYAML(path)
	if err != nil {
		t.Fatalf("LoadOptionsFromYAML: %v", err)
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.metric != MetricL2 {
		t.Fatalf("metric = %v, want L2", cfg.metric)
	}
	if cfg.strategy != StrategyHNSW {
		t.Fatalf("strategy = %v, want HNSW", cfg.strategy)
	}
	if cfg.capacity != 64 {
		t.Fatalf("capacity = %d, want 64", cfg.capacity)
	}
}

func TestLoadOptionsFromYAML_EmptyFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "")
	opts, err := LoadOptionsFromYAML(path)
	if err != nil {
		t.Fatalf("LoadOptionsFromYAML: %v", err)
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.metric != MetricCosine || cfg.strategy != StrategyBruteForce {
		t.Fatalf("cfg = %+v, want defaults", cfg)
	}
}

func TestLoadOptionsFromYAML_UnknownMetricErrors(t *testing.T) {
	path := writeConfig(t, "metric: manhattan\n")
	if _, err := LoadOptionsFromYAML(path); err == nil {
		t.Fatal("expected error for unknown metric")
	}
}

func TestLoadOptionsFromYAML_MissingFileErrors(t *testing.T) {
	if _, err := LoadOptionsFromYAML(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
