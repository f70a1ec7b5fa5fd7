package sccp

import (
	"io"

	"golang.org/x/exp/slices"

	"github.com/lir-project/lir/ir"
)

// Stats counts the rewrites applied by Run and RunProgram.
type Stats struct {
	InstructionsReplaced int // pure instructions rewritten to constant or undef leaves
	UsesRerouted         int // side-effecting instructions whose result uses moved to a constant
	InstructionsRemoved  int // dead instructions deleted
	ArgumentsReplaced    int // parameters of tracked functions proven constant
	BranchesFolded       int // conditional terminators reduced to jumps
	BlocksRemoved        int // unreachable blocks deleted
	ReturnsZapped        int // returns of functions whose result is known at every call site
	GlobalsRemoved       int // tracked globals proven constant and deleted
	DeadFunctions        int // local functions never called, removed from the program
}

// Options configures RunProgram.
type Options struct {
	// TrackReturns merges the return states of local, non-address-taken
	// functions so their call sites can fold.
	TrackReturns bool
	// TrackArguments derives parameter states of local, non-address-taken
	// functions from their call sites.
	TrackArguments bool
	// TrackGlobals proves local, non-escaping scalar globals constant.
	TrackGlobals bool
	// Debug receives a trace of the solver's lattice transitions.
	Debug io.Writer
}

// Run propagates constants within a single function and prunes the dead code
// this uncovers. The CFG shape is preserved: unreachable blocks are emptied,
// not unlinked, and terminators are left in place.
func Run(fn *ir.Function) Stats {
	return RunDebug(fn, nil)
}

// RunDebug is Run with a solver trace.
func RunDebug(fn *ir.Function, debug io.Writer) Stats {
	var stats Stats
	if fn.IsDeclaration() {
		return stats
	}
	s := NewSolver(fn.Prog)
	s.SetDebug(debug)
	s.MarkBlockExecutable(fn.Entry())
	s.MarkParamsOverdefined(fn)
	s.Solve()
	for s.ResolveUndefs(fn) {
		s.Solve()
	}

	for _, b := range fn.Blocks {
		if !s.IsBlockExecutable(b) {
			clearDeadBlock(fn, b, &stats)
			continue
		}
		constifyBlock(s, fn, b, &stats)
	}
	sweepDeadLeaves(fn, &stats)
	fn.Compact()
	return stats
}

// RunProgram propagates constants across the whole program and rewrites it:
// call sites of functions with known returns fold, proven-constant arguments
// and globals are substituted, infeasible branches become jumps and
// unreachable blocks are deleted outright.
func RunProgram(prog *ir.Program, opts Options) Stats {
	var stats Stats
	s := NewSolver(prog)
	s.SetDebug(opts.Debug)

	markAddressTaken(prog)
	if opts.TrackGlobals {
		for _, g := range prog.Globals {
			if trackableGlobal(prog, g) {
				s.TrackGlobal(g)
			}
		}
	}
	for _, fn := range prog.Functions {
		if fn.IsDeclaration() {
			continue
		}
		if trackableFunc(fn) {
			if opts.TrackReturns {
				s.TrackReturnsOf(fn)
			}
			if opts.TrackArguments {
				s.TrackArgumentsOf(fn)
				continue
			}
		}
		// Roots: callable from outside, so assume arbitrary arguments.
		s.MarkBlockExecutable(fn.Entry())
		s.MarkParamsOverdefined(fn)
	}

	s.Solve()
	for {
		resolved := false
		for _, fn := range prog.Functions {
			if fn.IsDeclaration() {
				continue
			}
			for s.ResolveUndefs(fn) {
				resolved = true
				s.Solve()
			}
		}
		if !resolved {
			break
		}
	}

	var dead []*ir.Function
	for _, fn := range prog.Functions {
		hadBody := !fn.IsDeclaration()
		rewriteFunction(s, fn, &stats)
		if hadBody && fn.IsDeclaration() {
			dead = append(dead, fn)
		}
	}
	for _, fn := range dead {
		prog.RemoveFunction(fn)
	}
	deleteConstantGlobals(s, prog, &stats)
	return stats
}

func rewriteFunction(s *Solver, fn *ir.Function, stats *Stats) {
	if fn.IsDeclaration() {
		return
	}
	if !s.IsBlockExecutable(fn.Entry()) {
		// Never called from any live call site.
		if fn.Linkage == ir.Local {
			stats.BlocksRemoved += len(fn.Blocks)
			stats.DeadFunctions++
			fn.Blocks = nil
		}
		return
	}

	// Substitute proven-constant parameters before touching the body, so
	// the constants land at the top of the entry block.
	for _, p := range fn.Params {
		lv := s.LatticeValueFor(p)
		if !lv.isConstant() || len(p.Referrers()) == 0 {
			continue
		}
		pos := firstInstr(fn.Entry())
		nc := constLeafAt(fn, pos, p.Typ, lv.constVal())
		fn.ReplaceAll(p, nc)
		stats.ArgumentsReplaced++
	}

	zapReturns(s, fn, stats)

	for _, b := range fn.Blocks {
		if !s.IsBlockExecutable(b) {
			continue
		}
		constifyBlock(s, fn, b, stats)
		foldTerminator(s, fn, b, stats)
	}

	// Unreachable blocks are deleted unless a live terminator still points
	// at them (folding can decline, see foldTerminator). Those stay,
	// emptied, transitively: a kept dead block keeps its successors too.
	kept := map[*ir.BasicBlock]bool{}
	for _, b := range fn.Blocks {
		if s.IsBlockExecutable(b) {
			kept[b] = true
		}
	}
	for changed := true; changed; {
		changed = false
		for _, b := range fn.Blocks {
			if kept[b] {
				continue
			}
			for _, pred := range b.Preds {
				if kept[pred] {
					kept[b] = true
					changed = true
					break
				}
			}
		}
	}

	var removed []*ir.BasicBlock
	for _, b := range fn.Blocks {
		if s.IsBlockExecutable(b) {
			continue
		}
		clearDeadBlock(fn, b, stats)
		if kept[b] {
			continue
		}
		if term := b.Control(); term != nil {
			fn.Kill(term)
		}
		for _, succ := range uniqueBlocks(b.Succs) {
			if kept[succ] {
				succ.RemovePred(b)
			}
		}
		removed = append(removed, b)
	}
	for _, b := range removed {
		fn.RemoveBlock(b)
		stats.BlocksRemoved++
	}
	sweepDeadLeaves(fn, stats)
	fn.Compact()
}

// sweepDeadLeaves deletes constant and undef leaves nothing refers to
// anymore. Substitution leaves most of them behind: resetting a user to its
// folded value drops the uses of its former operands.
func sweepDeadLeaves(fn *ir.Function, stats *Stats) {
	for _, b := range fn.Blocks {
		for i := len(b.Instrs) - 1; i >= 0; i-- {
			v := b.Instrs[i]
			if v == nil {
				continue
			}
			switch v.Op {
			case ir.OpConst, ir.OpNull, ir.OpUndef, ir.OpGlobalAddr, ir.OpFuncAddr:
			default:
				continue
			}
			if len(v.Referrers()) == 0 {
				fn.Kill(v)
				stats.InstructionsRemoved++
			}
		}
	}
}

// constifyBlock rewrites every instruction whose lattice state is a single
// value. Pure producers become leaves in place; instructions that must stay
// for their side effects get their uses rerouted to a fresh constant.
// Instructions still undefined after resolution can never execute with a
// meaningful value and become undef leaves.
func constifyBlock(s *Solver, fn *ir.Function, b *ir.BasicBlock, stats *Stats) {
	for _, v := range b.Instrs {
		if v == nil || v.Op.IsTerminator() && v.Op != ir.OpInvoke {
			continue
		}
		if v.Typ.IsVoid() || v.Typ.IsTuple() {
			continue
		}
		if v.IsConstant() || v.Op == ir.OpUndef {
			// already a leaf
			continue
		}
		lv := s.LatticeValueFor(v)
		if lv.isOverdefined() {
			continue
		}

		if v.Op.IsCallSite() || v.Op == ir.OpLoad && v.Volatile {
			if !lv.isConstant() {
				continue
			}
			if len(v.Referrers()) > 0 {
				nc := constLeafAt(fn, v, v.Typ, lv.constVal())
				fn.ReplaceAll(v, nc)
				stats.UsesRerouted++
			}
			continue
		}

		if len(v.Referrers()) == 0 {
			fn.Kill(v)
			stats.InstructionsRemoved++
			continue
		}
		if lv.isConstant() {
			resetToConst(fn, v, lv.constVal())
		} else {
			fn.ResetLeaf(v, ir.OpUndef)
		}
		stats.InstructionsReplaced++
	}
}

// clearDeadBlock deletes the contents of an unreachable block, back to
// front. Values still referenced from elsewhere (phis across an infeasible
// edge) become undef leaves instead.
func clearDeadBlock(fn *ir.Function, b *ir.BasicBlock, stats *Stats) {
	for i := len(b.Instrs) - 1; i >= 0; i-- {
		v := b.Instrs[i]
		if v == nil || v.Op.IsTerminator() {
			continue
		}
		if len(v.Referrers()) > 0 {
			fn.ResetLeaf(v, ir.OpUndef)
			continue
		}
		fn.Kill(v)
		stats.InstructionsRemoved++
	}
}

// foldTerminator reduces a conditional terminator with exactly one feasible
// successor to a jump, unlinking the dead edges. Terminators whose successor
// lists contain duplicate blocks are left alone; removing one of several
// parallel edges would desynchronize the phi operand order.
func foldTerminator(s *Solver, fn *ir.Function, b *ir.BasicBlock, stats *Stats) {
	term := b.Control()
	switch term.Op {
	case ir.OpIf, ir.OpSwitch:
	default:
		return
	}
	feas := s.feasibleSuccessors(term)
	keep := -1
	for i, ok := range feas {
		if !ok {
			continue
		}
		if keep >= 0 {
			return // more than one feasible successor
		}
		keep = i
	}
	if keep < 0 || hasDuplicates(b.Succs) {
		return
	}
	target := b.Succs[keep]
	dead := make([]*ir.BasicBlock, 0, len(b.Succs)-1)
	for i, succ := range b.Succs {
		if i != keep {
			dead = append(dead, succ)
		}
	}
	fn.ResetLeaf(term, ir.OpJump)
	b.Succs = []*ir.BasicBlock{target}
	for _, succ := range dead {
		succ.RemovePred(b)
	}
	stats.BranchesFolded++
}

// zapReturns rewrites the return operands of a function whose tracked return
// state is a proven constant. Every live call site already sees the
// constant, so the operand only keeps the computation that produced it
// alive.
func zapReturns(s *Solver, fn *ir.Function, stats *Stats) {
	lv, ok := s.trackedRetVals[fn]
	if !ok || !lv.isConstant() {
		return
	}
	for _, b := range fn.Blocks {
		if !s.IsBlockExecutable(b) {
			continue
		}
		term := b.Control()
		if term.Op != ir.OpReturn || len(term.Args) == 0 || term.Args[0].Op == ir.OpUndef {
			continue
		}
		u := fn.EmitBefore(term, ir.OpUndef, fn.Results)
		fn.SetArg(term, 0, u)
		stats.ReturnsZapped++
	}
}

// deleteConstantGlobals removes tracked globals that survived solving: every
// load from them has been folded, so only the stores keep them alive.
func deleteConstantGlobals(s *Solver, prog *ir.Program, stats *Stats) {
	globals := make([]*ir.Global, 0, len(s.trackedGlobals))
	for g := range s.trackedGlobals {
		globals = append(globals, g)
	}
	slices.SortFunc(globals, func(a, b *ir.Global) bool { return a.Name < b.Name })

	for _, g := range globals {
		addrs := globalAddrs(prog, g)
		removable := true
		for _, addr := range addrs {
			for _, u := range addr.Referrers() {
				if u.Op == ir.OpStore && u.Args[1] == addr {
					continue
				}
				removable = false
			}
			if !removable {
				break
			}
		}
		if !removable {
			continue
		}
		for _, addr := range addrs {
			fn := addr.Parent()
			for _, u := range addr.Referrers() {
				fn.Kill(u)
				stats.InstructionsRemoved++
			}
			fn.Kill(addr)
			stats.InstructionsRemoved++
			// Killed stores may have been the last use of a constant.
			sweepDeadLeaves(fn, stats)
			fn.Compact()
		}
		prog.RemoveGlobal(g)
		stats.GlobalsRemoved++
	}
}

// eligibility analyses

// markAddressTaken recomputes Function.AddressTaken across the program. A
// function's address is taken when any funcref instruction names it.
func markAddressTaken(prog *ir.Program) {
	for _, fn := range prog.Functions {
		fn.AddressTaken = false
	}
	for _, fn := range prog.Functions {
		for _, b := range fn.Blocks {
			for _, v := range b.Instrs {
				if v != nil && v.Op == ir.OpFuncAddr {
					v.Callee.AddressTaken = true
				}
			}
		}
	}
}

// trackableFunc reports whether every call site of fn is visible to the
// solver.
func trackableFunc(fn *ir.Function) bool {
	return fn.Linkage == ir.Local && !fn.AddressTaken && !fn.IsDeclaration()
}

// trackableGlobal reports whether g's value can be tracked: a local, mutable
// scalar whose address is only ever used directly by loads and stores.
func trackableGlobal(prog *ir.Program, g *ir.Global) bool {
	if g.Linkage != ir.Local || g.Immutable {
		return false
	}
	if !g.Typ.IsInteger() && !g.Typ.IsBool() {
		return false
	}
	for _, addr := range globalAddrs(prog, g) {
		for _, u := range addr.Referrers() {
			switch {
			case u.Op == ir.OpLoad && u.Args[0] == addr && !u.Volatile:
			case u.Op == ir.OpStore && u.Args[1] == addr && u.Args[0] != addr:
			default:
				return false // the address escapes
			}
		}
	}
	return true
}

func globalAddrs(prog *ir.Program, g *ir.Global) []*ir.Value {
	var addrs []*ir.Value
	for _, fn := range prog.Functions {
		for _, b := range fn.Blocks {
			for _, v := range b.Instrs {
				if v != nil && v.Op == ir.OpGlobalAddr && v.Global == g {
					addrs = append(addrs, v)
				}
			}
		}
	}
	return addrs
}

// small helpers

func firstInstr(b *ir.BasicBlock) *ir.Value {
	for _, v := range b.Instrs {
		if v != nil {
			return v
		}
	}
	panic("empty block")
}

// constLeafAt materializes c as a leaf instruction immediately before pos.
func constLeafAt(fn *ir.Function, pos *ir.Value, typ *ir.Type, c Const) *ir.Value {
	var v *ir.Value
	switch {
	case c.IsLiteral():
		v = fn.EmitBefore(pos, ir.OpConst, typ)
		v.Aux = c.Val
	case c.Null:
		v = fn.EmitBefore(pos, ir.OpNull, typ)
	case c.Global != nil:
		v = fn.EmitBefore(pos, ir.OpGlobalAddr, typ)
		v.Global = c.Global
	default:
		v = fn.EmitBefore(pos, ir.OpFuncAddr, typ)
		v.Callee = c.Fn
	}
	return v
}

// resetToConst rewrites v in place into the leaf form of c.
func resetToConst(fn *ir.Function, v *ir.Value, c Const) {
	switch {
	case c.IsLiteral():
		fn.ResetLeaf(v, ir.OpConst)
		v.Aux = c.Val
	case c.Null:
		fn.ResetLeaf(v, ir.OpNull)
	case c.Global != nil:
		fn.ResetLeaf(v, ir.OpGlobalAddr)
		v.Global = c.Global
	default:
		fn.ResetLeaf(v, ir.OpFuncAddr)
		v.Callee = c.Fn
	}
}

func hasDuplicates(blocks []*ir.BasicBlock) bool {
	for i, b := range blocks {
		for _, o := range blocks[i+1:] {
			if b == o {
				return true
			}
		}
	}
	return false
}

func uniqueBlocks(blocks []*ir.BasicBlock) []*ir.BasicBlock {
	var out []*ir.BasicBlock
	for _, b := range blocks {
		if !slices.Contains(out, b) {
			out = append(out, b)
		}
	}
	return out
}
