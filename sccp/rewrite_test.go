package sccp

import (
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/tools/txtar"

	"github.com/lir-project/lir/ir"
)

// TestRewriteProgram runs whole-program propagation over the testdata
// corpus. Each archive holds an input program and the expected rewritten
// form.
func TestRewriteProgram(t *testing.T) {
	files, err := filepath.Glob("testdata/*.txt")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) == 0 {
		t.Fatal("no testdata archives")
	}
	for _, file := range files {
		file := file
		t.Run(strings.TrimSuffix(filepath.Base(file), ".txt"), func(t *testing.T) {
			ar, err := txtar.ParseFile(file)
			if err != nil {
				t.Fatal(err)
			}
			var input, want string
			for _, f := range ar.Files {
				switch f.Name {
				case "input":
					input = string(f.Data)
				case "output":
					want = string(f.Data)
				default:
					t.Fatalf("unexpected archive file %q", f.Name)
				}
			}
			prog, err := ir.ParseProgram(input)
			if err != nil {
				t.Fatal(err)
			}
			RunProgram(prog, Options{
				TrackReturns:   true,
				TrackArguments: true,
				TrackGlobals:   true,
			})
			var b strings.Builder
			ir.WriteProgram(&b, prog)
			if got := b.String(); got != want {
				t.Errorf("got:\n%s\nwant:\n%s", got, want)
			}
		})
	}
}

func TestRunProgramStats(t *testing.T) {
	prog := ir.MustParse(`
local func @five() int {
b0:
	%c = const int 5
	ret %c
}

func @main() int {
b0:
	%r = call int @five()
	ret %r
}
`)
	stats := RunProgram(prog, Options{TrackReturns: true, TrackArguments: true})
	if stats.UsesRerouted != 1 {
		t.Errorf("UsesRerouted = %d, want 1", stats.UsesRerouted)
	}
	if stats.ReturnsZapped != 1 {
		t.Errorf("ReturnsZapped = %d, want 1", stats.ReturnsZapped)
	}
}
