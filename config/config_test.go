package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sccp.toml")
	src := `
[solver]
mode = "function"
track_globals = false
`
	if err := os.WriteFile(path, []byte(src), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Solver.Mode != "function" {
		t.Errorf("mode = %q", cfg.Solver.Mode)
	}
	if cfg.Solver.TrackGlobals {
		t.Error("track_globals not overridden")
	}
	// settings absent from the file keep their defaults
	if !cfg.Solver.TrackReturns || !cfg.Solver.TrackArguments {
		t.Error("defaults lost during merge")
	}
	if cfg.Solver.Debug {
		t.Error("debug enabled by default")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
