package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/lattice-ir/lattice/internal/compiler/errors"
	"github.com/lattice-ir/lattice/internal/compiler/pass"
)

func TestLoad(t *testing.T) {
	// Test loading with no config file (should use defaults)
	tmpDir := t.TempDir()
	oldWd, _ := os.Getwd()
	os.Chdir(tmpDir)
	defer os.Chdir(oldWd)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error loading defaults, got %v", err)
	}

	if cfg.Passes.MaxIterations != pass.DefaultMaxIterations {
		t.Errorf("expected default max iterations %d, got %d", pass.DefaultMaxIterations, cfg.Passes.MaxIterations)
	}
	if !cfg.Passes.PerPassValidation {
		t.Error("expected per-pass validation on by default")
	}
	if cfg.Passes.Order != "top_down" {
		t.Errorf("expected default order 'top_down', got %s", cfg.Passes.Order)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.Log.Level)
	}
	if cfg.Tracing.Enabled {
		t.Error("expected tracing off by default")
	}
	if cfg.Tracing.Exporter != "stdout" {
		t.Errorf("expected default exporter 'stdout', got %s", cfg.Tracing.Exporter)
	}
}

func TestLoadWithConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	oldWd, _ := os.Getwd()
	os.Chdir(tmpDir)
	defer os.Chdir(oldWd)

	configContent := `
passes:
  max_iterations: 4
  per_pass_validation: false
  disabled: [MultiplyFusion]
  order: bottom_up
fold:
  max_elements: 64
log:
  level: debug
  development: true
tracing:
  enabled: true
  exporter: none
`
	os.WriteFile("lattice.yml", []byte(configContent), 0644)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error loading config, got %v", err)
	}

	if cfg.Passes.MaxIterations != 4 {
		t.Errorf("expected max iterations 4, got %d", cfg.Passes.MaxIterations)
	}
	if cfg.Passes.PerPassValidation {
		t.Error("expected per-pass validation off")
	}
	if len(cfg.Passes.Disabled) != 1 || cfg.Passes.Disabled[0] != "MultiplyFusion" {
		t.Errorf("expected [MultiplyFusion] disabled, got %v", cfg.Passes.Disabled)
	}
	if cfg.Fold.MaxElements != 64 {
		t.Errorf("expected max elements 64, got %d", cfg.Fold.MaxElements)
	}
	if !cfg.Log.Development || cfg.Log.Level != "debug" {
		t.Errorf("expected development debug logging, got %+v", cfg.Log)
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.Exporter != "none" {
		t.Errorf("expected tracing enabled without exporter, got %+v", cfg.Tracing)
	}

	opts := cfg.PipelineOptions(nil, nil)
	if opts.Order != pass.BottomUp {
		t.Errorf("expected bottom-up order, got %s", opts.Order)
	}
	if opts.MaxIterations != 4 || opts.FoldMaxElements != 64 || opts.PerPassValidation {
		t.Errorf("unexpected pipeline options %+v", opts)
	}
}

func TestLoadExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	os.WriteFile(path, []byte("passes:\n  max_iterations: 2\n"), 0644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Passes.MaxIterations != 2 {
		t.Errorf("expected max iterations 2, got %d", cfg.Passes.MaxIterations)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for a missing explicit config file")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	tmpDir := t.TempDir()
	oldWd, _ := os.Getwd()
	os.Chdir(tmpDir)
	defer os.Chdir(oldWd)

	t.Setenv("LATTICE_PASSES_MAX_ITERATIONS", "7")
	t.Setenv("LATTICE_LOG_LEVEL", "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Passes.MaxIterations != 7 {
		t.Errorf("expected max iterations 7 from environment, got %d", cfg.Passes.MaxIterations)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("expected log level 'warn' from environment, got %s", cfg.Log.Level)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"zero iterations", "passes:\n  max_iterations: 0\n", errors.InvalidConfig},
		{"bad order", "passes:\n  order: sideways\n", errors.InvalidConfig},
		{"bad fold limit", "fold:\n  max_elements: -1\n", errors.InvalidConfig},
		{"unknown pass", "passes:\n  disabled: [Nope]\n", errors.UnknownType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "lattice.yml")
			os.WriteFile(path, []byte(tt.content), 0644)

			_, err := Load(path)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !stderrors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if !errors.IsFatal(err) {
				t.Errorf("expected a fatal configuration error, got %v", err)
			}
		})
	}
}

func TestFindConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	oldWd, _ := os.Getwd()
	defer os.Chdir(oldWd)

	os.WriteFile(filepath.Join(tmpDir, "lattice.yml"), []byte(""), 0644)
	subDir := filepath.Join(tmpDir, "graphs", "nested")
	os.MkdirAll(subDir, 0755)
	os.Chdir(subDir)

	found, err := FindConfigFile()
	if err != nil {
		t.Fatalf("expected to find config file, got error: %v", err)
	}

	// On macOS, /tmp is symlinked to /private/tmp, so resolve both paths
	resolvedFound, _ := filepath.EvalSymlinks(found)
	resolvedWant, _ := filepath.EvalSymlinks(filepath.Join(tmpDir, "lattice.yml"))
	if resolvedFound != resolvedWant {
		t.Errorf("expected %s, got %s", resolvedWant, resolvedFound)
	}
}

func TestFindConfigFileMissing(t *testing.T) {
	tmpDir := t.TempDir()
	oldWd, _ := os.Getwd()
	os.Chdir(tmpDir)
	defer os.Chdir(oldWd)

	if _, err := FindConfigFile(); err == nil {
		t.Error("expected error when no config file exists, got nil")
	}
}
