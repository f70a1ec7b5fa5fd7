package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Config selects the propagation mode and the interprocedural facts the
// solver is allowed to rely on.
type Config struct {
	Solver SolverConfig `toml:"solver"`
}

type SolverConfig struct {
	// Mode is "program" for whole-program propagation or "function" for
	// function-local, CFG-preserving propagation.
	Mode string `toml:"mode"`
	// TrackReturns folds call results of functions whose returns the
	// solver can observe completely.
	TrackReturns bool `toml:"track_returns"`
	// TrackArguments derives parameter facts from visible call sites.
	TrackArguments bool `toml:"track_arguments"`
	// TrackGlobals proves non-escaping scalar globals constant.
	TrackGlobals bool `toml:"track_globals"`
	// Debug writes the solver's lattice transitions to standard error.
	Debug bool `toml:"debug"`
}

var DefaultConfig = Config{
	Solver: SolverConfig{
		Mode:           "program",
		TrackReturns:   true,
		TrackArguments: true,
		TrackGlobals:   true,
	},
}

type config struct {
	cfg  Config
	meta toml.MetaData
}

func (cfg config) Merge(ocfg config) config {
	if ocfg.meta.IsDefined("solver", "mode") {
		cfg.cfg.Solver.Mode = ocfg.cfg.Solver.Mode
	}
	if ocfg.meta.IsDefined("solver", "track_returns") {
		cfg.cfg.Solver.TrackReturns = ocfg.cfg.Solver.TrackReturns
	}
	if ocfg.meta.IsDefined("solver", "track_arguments") {
		cfg.cfg.Solver.TrackArguments = ocfg.cfg.Solver.TrackArguments
	}
	if ocfg.meta.IsDefined("solver", "track_globals") {
		cfg.cfg.Solver.TrackGlobals = ocfg.cfg.Solver.TrackGlobals
	}
	if ocfg.meta.IsDefined("solver", "debug") {
		cfg.cfg.Solver.Debug = ocfg.cfg.Solver.Debug
	}
	return cfg
}

// Load reads path and overlays it on the defaults. Settings absent from the
// file keep their default values.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()

	base := config{cfg: DefaultConfig}
	var over config
	meta, err := toml.DecodeReader(f, &over.cfg)
	if err != nil {
		return Config{}, err
	}
	over.meta = meta
	return base.Merge(over).cfg, nil
}
