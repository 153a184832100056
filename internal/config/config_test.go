package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/skilllite/skilllite/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.Default()

	if cfg.Models.Planning == "" || cfg.Models.Execution == "" {
		t.Fatalf("default models should be populated: %+v", cfg.Models)
	}
	if cfg.Agent.Mode != config.AgentModeTaskPlanning {
		t.Fatalf("expected default agent mode %q, got %q", config.AgentModeTaskPlanning, cfg.Agent.Mode)
	}
	if cfg.Sandbox.Mode != config.DefaultSandboxMode {
		t.Fatalf("unexpected default sandbox mode: %s", cfg.Sandbox.Mode)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load returned error for a missing file: %v", err)
	}
	if cfg.Agent.Mode != config.AgentModeTaskPlanning {
		t.Fatalf("expected defaults untouched, got agent mode %q", cfg.Agent.Mode)
	}
}

func TestLoadOverridesAgentMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "skilllite.yaml")
	yaml := "agent:\n  mode: simple\nmodels:\n  planning: custom/planning\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Agent.Mode != config.AgentModeSimple {
		t.Fatalf("expected overridden agent mode %q, got %q", config.AgentModeSimple, cfg.Agent.Mode)
	}
	if cfg.Models.Planning != "custom/planning" {
		t.Fatalf("expected overridden planning model, got %s", cfg.Models.Planning)
	}
	if cfg.Models.Execution != config.DefaultExecutionModel {
		t.Fatalf("expected execution model to stay at default, got %s", cfg.Models.Execution)
	}
}
