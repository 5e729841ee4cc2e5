package app

import (
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.MetricsAddr == "" {
		t.Error("MetricsAddr should not be empty")
	}

	// Test default values
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("expected MetricsAddr :9090, got %s", cfg.MetricsAddr)
	}

	if cfg.StorageDriver != StorageDriverMemory {
		t.Errorf("expected memory storage driver, got %s", cfg.StorageDriver)
	}
}

func TestConfig(t *testing.T) {
	cfg := Config{
		MetricsAddr:   ":9091",
		StorageDriver: StorageDriverPostgres,
	}

	if cfg.MetricsAddr != ":9091" {
		t.Errorf("expected MetricsAddr :9091, got %s", cfg.MetricsAddr)
	}

	if cfg.StorageDriver != StorageDriverPostgres {
		t.Errorf("expected postgres storage driver, got %s", cfg.StorageDriver)
	}
}
