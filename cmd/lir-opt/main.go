// lir-opt: parse a textual IR program, run constant propagation over it and
// print the optimized result.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/lir-project/lir/config"
	"github.com/lir-project/lir/ir"
	"github.com/lir-project/lir/sccp"
	"github.com/lir-project/lir/version"
)

// flags
var (
	fConfig  string
	fMode    string
	fDebug   bool
	fStats   bool
	fVersion bool
)

func init() {
	flag.StringVar(&fConfig, "config", "", "Path to a TOML configuration file")
	flag.StringVar(&fMode, "mode", "", "Propagation mode: program or function")
	flag.BoolVar(&fDebug, "debug", false, "Trace lattice transitions on stderr")
	flag.BoolVar(&fStats, "stats", false, "Print rewrite statistics on stderr")
	flag.BoolVar(&fVersion, "version", false, "Print version and exit")
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: lir-opt [flags] file.lir\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if fVersion {
		version.Print()
		os.Exit(0)
	}
	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}

	cfg := config.DefaultConfig
	if fConfig != "" {
		var err error
		cfg, err = config.Load(fConfig)
		if err != nil {
			fmt.Fprintln(os.Stderr, "lir-opt:", err)
			os.Exit(1)
		}
	}
	if fMode != "" {
		cfg.Solver.Mode = fMode
	}
	if fDebug {
		cfg.Solver.Debug = true
	}

	src, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "lir-opt:", err)
		os.Exit(1)
	}
	prog, err := ir.ParseProgram(string(src))
	if err != nil {
		fmt.Fprintf(os.Stderr, "lir-opt: %s: %s\n", flag.Arg(0), err)
		os.Exit(1)
	}

	var stats sccp.Stats
	switch cfg.Solver.Mode {
	case "function":
		for _, fn := range prog.Functions {
			var fstats sccp.Stats
			if cfg.Solver.Debug {
				fstats = sccp.RunDebug(fn, os.Stderr)
			} else {
				fstats = sccp.Run(fn)
			}
			stats = addStats(stats, fstats)
		}
	case "program":
		opts := sccp.Options{
			TrackReturns:   cfg.Solver.TrackReturns,
			TrackArguments: cfg.Solver.TrackArguments,
			TrackGlobals:   cfg.Solver.TrackGlobals,
		}
		if cfg.Solver.Debug {
			opts.Debug = os.Stderr
		}
		stats = sccp.RunProgram(prog, opts)
	default:
		fmt.Fprintf(os.Stderr, "lir-opt: unknown mode %q\n", cfg.Solver.Mode)
		os.Exit(2)
	}

	ir.WriteProgram(os.Stdout, prog)

	if fStats {
		fmt.Fprintf(os.Stderr, "replaced %d instructions, rerouted %d results, removed %d instructions\n",
			stats.InstructionsReplaced, stats.UsesRerouted, stats.InstructionsRemoved)
		fmt.Fprintf(os.Stderr, "folded %d branches, removed %d blocks, %d globals, %d dead functions\n",
			stats.BranchesFolded, stats.BlocksRemoved, stats.GlobalsRemoved, stats.DeadFunctions)
		fmt.Fprintf(os.Stderr, "replaced %d arguments, zapped %d returns\n",
			stats.ArgumentsReplaced, stats.ReturnsZapped)
	}
}

func addStats(a, b sccp.Stats) sccp.Stats {
	a.InstructionsReplaced += b.InstructionsReplaced
	a.UsesRerouted += b.UsesRerouted
	a.InstructionsRemoved += b.InstructionsRemoved
	a.ArgumentsReplaced += b.ArgumentsReplaced
	a.BranchesFolded += b.BranchesFolded
	a.BlocksRemoved += b.BlocksRemoved
	a.ReturnsZapped += b.ReturnsZapped
	a.GlobalsRemoved += b.GlobalsRemoved
	a.DeadFunctions += b.DeadFunctions
	return a
}
