package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIPort != "8080" || cfg.TopKFinal != 8 || !cfg.HydeEnabled {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.FallbackMinScore != 0.30 || cfg.FallbackAcceptRatio != 1.2 {
		t.Fatalf("unexpected fallback defaults: %+v", cfg)
	}
	if cfg.FallbackOverridesPolicy {
		t.Fatalf("fallback override must default off")
	}
}

func TestLoadYAMLFileThenEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("top_k_final: 12\nboost_dual: 1.4\nhyde_enabled: false\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CONFIG_PATH", path)
	t.Setenv("TOP_K_FINAL", "6")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.TopKFinal != 6 {
		t.Fatalf("env must override file, got %d", cfg.TopKFinal)
	}
	if cfg.BoostDual != 1.4 {
		t.Fatalf("file must override default, got %v", cfg.BoostDual)
	}
	if cfg.HydeEnabled {
		t.Fatalf("file must be able to disable hyde")
	}
	if cfg.TopKInitial != 20 {
		t.Fatalf("untouched values keep defaults, got %d", cfg.TopKInitial)
	}
}

func TestLoadMissingConfigFileFails(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestEnvParsingIgnoresGarbage(t *testing.T) {
	t.Setenv("TOP_K_FINAL", "not-a-number")
	t.Setenv("FALLBACK_MIN_SCORE", "0.42")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.TopKFinal != 8 {
		t.Fatalf("unparsable int must keep default, got %d", cfg.TopKFinal)
	}
	if cfg.FallbackMinScore != 0.42 {
		t.Fatalf("expected env float override, got %v", cfg.FallbackMinScore)
	}
}
