// Package sccp implements sparse conditional constant propagation over the
// ir package's SSA form, in both a single-function and a whole-program
// (interprocedural) variant.
//
// The solver is optimistic: every value starts undefined and is only lowered
// when evidence forces it. Blocks and edges start unreachable and are only
// marked executable when a feasible path to them is found. The two directions
// feed each other until a fixed point.
package sccp

import (
	"fmt"
	"go/constant"
	"go/token"
	"io"

	"github.com/lir-project/lir/fold"
	"github.com/lir-project/lir/ir"
)

// maxPhiEdges caps the number of incoming edges a phi is analyzed with.
// Pathological CFGs (large switches feeding a join) make repeated phi scans
// quadratic; beyond the cap the phi is simply overdefined.
const maxPhiEdges = 64

type edge struct {
	from, to *ir.BasicBlock
}

// field addresses one element of a tuple-typed value's lattice state.
type field struct {
	v   *ir.Value
	idx int
}

// retField addresses one element of a tuple-returning function's tracked
// return state.
type retField struct {
	fn  *ir.Function
	idx int
}

// Solver computes lattice states for every reachable value of a program.
// Configure tracking with the Track methods, seed roots with
// MarkBlockExecutable and MarkParamsOverdefined, then alternate Solve and
// ResolveUndefs until the latter reports no progress.
type Solver struct {
	prog *ir.Program

	valueState       map[*ir.Value]latticeValue
	structValueState map[field]latticeValue

	executableBlocks   map[*ir.BasicBlock]bool
	knownFeasibleEdges map[edge]bool

	// Interprocedural tracking. trackedRetVals carries the merged return
	// state of scalar-returning functions, trackedTupleRetVals the
	// per-element states of tuple-returning ones. Globals fall out of
	// trackedGlobals permanently once overdefined.
	trackedRetVals      map[*ir.Function]latticeValue
	trackedTupleRetVals map[retField]latticeValue
	tupleRetTracked     map[*ir.Function]bool
	trackedArguments    map[*ir.Function]bool
	trackedGlobals      map[*ir.Global]latticeValue
	trackedGlobalLoads  map[*ir.Global][]*ir.Value

	callSites map[*ir.Function][]*ir.Value

	// usersOfOverdefinedPHIs records instructions whose constant state was
	// derived from phi incoming pairs rather than the phis' own (already
	// overdefined) states. When such a phi is revisited for a newly
	// feasible edge, these users must be reevaluated even though the phi's
	// state cannot change anymore.
	usersOfOverdefinedPHIs map[*ir.Value][]*ir.Value

	blockWorklist            []*ir.BasicBlock
	instrWorklist            []*ir.Value
	overdefinedInstrWorklist []*ir.Value

	debug io.Writer
}

func NewSolver(prog *ir.Program) *Solver {
	s := &Solver{
		prog:                   prog,
		valueState:             map[*ir.Value]latticeValue{},
		structValueState:       map[field]latticeValue{},
		executableBlocks:       map[*ir.BasicBlock]bool{},
		knownFeasibleEdges:     map[edge]bool{},
		trackedRetVals:         map[*ir.Function]latticeValue{},
		trackedTupleRetVals:    map[retField]latticeValue{},
		tupleRetTracked:        map[*ir.Function]bool{},
		trackedArguments:       map[*ir.Function]bool{},
		trackedGlobals:         map[*ir.Global]latticeValue{},
		trackedGlobalLoads:     map[*ir.Global][]*ir.Value{},
		callSites:              map[*ir.Function][]*ir.Value{},
		usersOfOverdefinedPHIs: map[*ir.Value][]*ir.Value{},
	}
	for _, fn := range prog.Functions {
		for _, b := range fn.Blocks {
			for _, v := range b.Instrs {
				if v == nil {
					continue
				}
				if v.Op.IsCallSite() && v.Callee != nil {
					s.callSites[v.Callee] = append(s.callSites[v.Callee], v)
				}
			}
		}
	}
	return s
}

// SetDebug directs a trace of lattice transitions to w.
func (s *Solver) SetDebug(w io.Writer) { s.debug = w }

func (s *Solver) logf(format string, args ...interface{}) {
	if s.debug != nil {
		fmt.Fprintf(s.debug, format, args...)
	}
}

// TrackReturnsOf asks the solver to compute the merged return state of fn
// instead of treating calls to it as opaque.
func (s *Solver) TrackReturnsOf(fn *ir.Function) {
	switch {
	case fn.Results.IsVoid():
	case fn.Results.IsTuple():
		s.tupleRetTracked[fn] = true
		for i := range fn.Results.Fields {
			s.trackedTupleRetVals[retField{fn, i}] = latticeValue{}
		}
	default:
		s.trackedRetVals[fn] = latticeValue{}
	}
}

// TrackArgumentsOf asks the solver to derive fn's parameter states from its
// call sites instead of assuming arbitrary callers.
func (s *Solver) TrackArgumentsOf(fn *ir.Function) {
	s.trackedArguments[fn] = true
}

// TrackGlobal asks the solver to prove g holds a single value over the whole
// program. The state is seeded from the initializer; an undefined
// initializer seeds optimistically.
func (s *Solver) TrackGlobal(g *ir.Global) {
	var lv latticeValue
	if !g.InitUndef {
		init := g.Init
		if init == nil {
			z, ok := fold.Zero(g.Typ)
			if !ok {
				return
			}
			init = z
		}
		lv.markConstant(literal(init))
	}
	s.trackedGlobals[g] = lv
}

// GlobalState returns the proven lattice state of a tracked global. The
// second result is false once the global has been shown to hold multiple
// values.
func (s *Solver) GlobalState(g *ir.Global) (latticeValue, bool) {
	lv, ok := s.trackedGlobals[g]
	return lv, ok
}

// ReturnState returns the tracked merged return state of fn.
func (s *Solver) ReturnState(fn *ir.Function) (latticeValue, bool) {
	lv, ok := s.trackedRetVals[fn]
	return lv, ok
}

// IsBlockExecutable reports whether the solver found a feasible path to b.
func (s *Solver) IsBlockExecutable(b *ir.BasicBlock) bool {
	return s.executableBlocks[b]
}

// MarkBlockExecutable marks b reachable and queues it for evaluation.
func (s *Solver) MarkBlockExecutable(b *ir.BasicBlock) {
	if s.executableBlocks[b] {
		return
	}
	s.logf("marking block executable: %s in %s\n", b, b.Parent())
	s.executableBlocks[b] = true
	s.blockWorklist = append(s.blockWorklist, b)
}

// MarkParamsOverdefined pessimizes all parameters of fn. Applied to root
// functions whose callers are unknown.
func (s *Solver) MarkParamsOverdefined(fn *ir.Function) {
	for _, p := range fn.Params {
		if p.Typ.IsTuple() {
			for i := range p.Typ.Fields {
				s.markStructOverdefined(p, i)
			}
		}
		s.markOverdefined(p)
	}
}

// state transitions

func (s *Solver) getValueState(v *ir.Value) latticeValue {
	if lv, ok := s.valueState[v]; ok {
		return lv
	}
	var lv latticeValue
	switch v.Op {
	case ir.OpConst:
		lv.markConstant(literal(v.Aux))
	case ir.OpNull:
		lv.markConstant(nullConst())
	case ir.OpGlobalAddr:
		lv.markConstant(globalConst(v.Global))
	case ir.OpFuncAddr:
		lv.markConstant(funcConst(v.Callee))
	}
	s.valueState[v] = lv
	return lv
}

func (s *Solver) getStructValueState(v *ir.Value, idx int) latticeValue {
	return s.structValueState[field{v, idx}]
}

// LatticeValueFor exposes the solved state of v for rewriting and tests.
func (s *Solver) LatticeValueFor(v *ir.Value) latticeValue {
	return s.getValueState(v)
}

func (s *Solver) markConstant(v *ir.Value, c Const) {
	lv := s.getValueState(v)
	if !lv.markConstant(c) {
		return
	}
	s.valueState[v] = lv
	if lv.isOverdefined() {
		// A proof contradicting a forced assumption lowered v instead.
		s.logf("markOverdefined: %s in %s\n", v.Name(), v.Parent())
		s.overdefinedInstrWorklist = append(s.overdefinedInstrWorklist, v)
		return
	}
	s.logf("markConstant: %s = %s in %s\n", v.Name(), c, v.Parent())
	s.instrWorklist = append(s.instrWorklist, v)
}

func (s *Solver) markForcedConstant(v *ir.Value, c Const) {
	lv := s.getValueState(v)
	lv.markForcedConstant(c)
	s.valueState[v] = lv
	s.logf("markForcedConstant: %s = %s in %s\n", v.Name(), c, v.Parent())
	s.instrWorklist = append(s.instrWorklist, v)
}

func (s *Solver) markOverdefined(v *ir.Value) {
	lv := s.getValueState(v)
	if !lv.markOverdefined() {
		return
	}
	s.valueState[v] = lv
	s.logf("markOverdefined: %s in %s\n", v.Name(), v.Parent())
	s.overdefinedInstrWorklist = append(s.overdefinedInstrWorklist, v)
}

// merge lowers dst by other, returning whether dst changed. other being
// undefined never changes dst; conflicting constants lower to overdefined.
func merge(dst *latticeValue, other latticeValue) bool {
	if dst.isOverdefined() || other.isUndefined() {
		return false
	}
	if other.isOverdefined() {
		return dst.markOverdefined()
	}
	if dst.isUndefined() {
		return dst.markConstant(other.constVal())
	}
	if !dst.constVal().Equal(other.constVal()) {
		return dst.markOverdefined()
	}
	if dst.kind == forcedConstant {
		return dst.markConstant(other.constVal())
	}
	return false
}

func (s *Solver) mergeInValue(v *ir.Value, other latticeValue) {
	lv := s.getValueState(v)
	if lv.isOverdefined() || other.isUndefined() {
		return
	}
	if other.isOverdefined() {
		s.markOverdefined(v)
		return
	}
	if lv.isUndefined() || lv.kind == forcedConstant && lv.constVal().Equal(other.constVal()) {
		s.markConstant(v, other.constVal())
		return
	}
	if !lv.constVal().Equal(other.constVal()) {
		s.markOverdefined(v)
	}
}

func (s *Solver) markStructConstant(v *ir.Value, idx int, c Const) {
	key := field{v, idx}
	lv := s.structValueState[key]
	if !lv.markConstant(c) {
		return
	}
	s.structValueState[key] = lv
	s.logf("markConstant: %s.%d = %s in %s\n", v.Name(), idx, c, v.Parent())
	s.instrWorklist = append(s.instrWorklist, v)
}

func (s *Solver) markStructOverdefined(v *ir.Value, idx int) {
	key := field{v, idx}
	lv := s.structValueState[key]
	if !lv.markOverdefined() {
		return
	}
	s.structValueState[key] = lv
	s.logf("markOverdefined: %s.%d in %s\n", v.Name(), idx, v.Parent())
	s.overdefinedInstrWorklist = append(s.overdefinedInstrWorklist, v)
}

func (s *Solver) mergeStructValue(v *ir.Value, idx int, other latticeValue) {
	lv := s.structValueState[field{v, idx}]
	if lv.isOverdefined() || other.isUndefined() {
		return
	}
	if other.isOverdefined() {
		s.markStructOverdefined(v, idx)
		return
	}
	if lv.isUndefined() {
		s.markStructConstant(v, idx, other.constVal())
		return
	}
	if !lv.constVal().Equal(other.constVal()) {
		s.markStructOverdefined(v, idx)
	}
}

// CFG reachability

func (s *Solver) markEdgeExecutable(from, to *ir.BasicBlock) {
	e := edge{from, to}
	if s.knownFeasibleEdges[e] {
		return
	}
	s.knownFeasibleEdges[e] = true
	s.logf("marking edge executable: %s -> %s in %s\n", from, to, from.Parent())
	if !s.executableBlocks[to] {
		s.MarkBlockExecutable(to)
		return
	}
	// The target was already evaluated; only its phis can learn something
	// from the new edge.
	for _, phi := range to.Phis() {
		s.visitPhi(phi)
	}
}

// isEdgeFeasible reports whether the edge from->to has been proven
// traversable. The destination must already be executable; asking about an
// unreached block is a contract violation.
func (s *Solver) isEdgeFeasible(from, to *ir.BasicBlock) bool {
	if !s.executableBlocks[to] {
		panic(fmt.Sprintf("isEdgeFeasible: destination %s is not executable", to))
	}
	return s.knownFeasibleEdges[edge{from, to}]
}

// feasibleSuccessors computes which successor edges of terminator v are
// known to be takeable. An undefined controlling value yields no feasible
// successors; undef resolution breaks such stalemates later.
func (s *Solver) feasibleSuccessors(v *ir.Value) []bool {
	b := v.Block()
	succs := make([]bool, len(b.Succs))
	switch v.Op {
	case ir.OpJump:
		succs[0] = true
	case ir.OpIf:
		lv := s.getValueState(v.Args[0])
		switch {
		case lv.isConstant():
			if constant.BoolVal(lv.constVal().Val) {
				succs[0] = true
			} else {
				succs[1] = true
			}
		case lv.isOverdefined():
			succs[0], succs[1] = true, true
		}
	case ir.OpSwitch:
		lv := s.getValueState(v.Args[0])
		switch {
		case lv.isConstant():
			succs[0] = true // default, unless a case matches
			for i, c := range v.Cases {
				if constant.Compare(lv.constVal().Val, token.EQL, c) {
					succs[0] = false
					succs[1+i] = true
					break
				}
			}
		case lv.isOverdefined():
			for i := range succs {
				succs[i] = true
			}
		}
	case ir.OpInvoke, ir.OpIndirectJmp:
		for i := range succs {
			succs[i] = true
		}
	case ir.OpReturn, ir.OpUnreachable:
	default:
		panic(fmt.Sprintf("feasibleSuccessors: not a terminator: %s", v.Op))
	}
	return succs
}

// instruction transfer functions

func (s *Solver) visit(v *ir.Value) {
	// Referrer lists and the call-site index span the whole program;
	// instructions are only evaluated once their block is reachable.
	if !s.executableBlocks[v.Block()] {
		return
	}
	switch v.Op {
	case ir.OpConst, ir.OpNull, ir.OpGlobalAddr, ir.OpFuncAddr, ir.OpUndef:
		// leaves; getValueState seeds them
	case ir.OpParam:
		// driven by call sites or MarkParamsOverdefined
	case ir.OpPhi:
		s.visitPhi(v)
	case ir.OpBinOp:
		s.visitBinOp(v)
	case ir.OpCmp:
		s.visitCmp(v)
	case ir.OpCast:
		s.visitCast(v)
	case ir.OpSelect:
		s.visitSelect(v)
	case ir.OpLoad:
		s.visitLoad(v)
	case ir.OpStore:
		s.visitStore(v)
	case ir.OpFieldAddr:
		s.visitFieldAddr(v)
	case ir.OpCall:
		s.visitCallSite(v)
	case ir.OpInvoke:
		s.visitCallSite(v)
		s.visitTerminator(v)
	case ir.OpExtract:
		s.visitExtract(v)
	case ir.OpMakeTuple:
		s.visitMakeTuple(v)
	case ir.OpReturn:
		s.visitReturn(v)
	case ir.OpJump, ir.OpIf, ir.OpSwitch, ir.OpIndirectJmp, ir.OpUnreachable:
		s.visitTerminator(v)
	case ir.OpAlloc, ir.OpVarArg, ir.OpUnknown:
		s.markOverdefined(v)
	default:
		s.markOverdefined(v)
	}
}

func (s *Solver) visitPhi(v *ir.Value) {
	if s.getValueState(v).isOverdefined() {
		// Our state is final, but instructions whose constants were
		// derived from our incoming pairs must see newly feasible edges.
		for _, u := range s.usersOfOverdefinedPHIs[v] {
			s.visit(u)
		}
		return
	}
	if len(v.Args) > maxPhiEdges {
		s.markOverdefined(v)
		return
	}
	b := v.Block()
	var agreed *Const
	for i, arg := range v.Args {
		if !s.isEdgeFeasible(b.Preds[i], b) {
			continue
		}
		lv := s.getValueState(arg)
		if lv.isUndefined() {
			continue
		}
		if lv.isOverdefined() {
			s.markOverdefined(v)
			return
		}
		c := lv.constVal()
		if agreed == nil {
			cc := c
			agreed = &cc
			continue
		}
		if !agreed.Equal(c) {
			s.markOverdefined(v)
			return
		}
	}
	if agreed != nil {
		s.markConstant(v, *agreed)
	}
}

// absorbing returns the element that decides tok regardless of the other
// operand: zero for and, all ones for or.
func absorbing(tok token.Token, typ *ir.Type) (constant.Value, bool) {
	if typ.IsBool() {
		return constant.MakeBool(tok == token.OR), true
	}
	if !typ.IsInteger() {
		return nil, false
	}
	if tok == token.AND {
		return fold.Zero(typ)
	}
	return fold.AllOnes(typ)
}

func (s *Solver) visitBinOp(v *ir.Value) {
	if s.getValueState(v).isOverdefined() {
		return
	}
	a := s.getValueState(v.Args[0])
	b := s.getValueState(v.Args[1])
	if a.isConstant() && b.isConstant() {
		ca, cb := a.constVal(), b.constVal()
		if ca.IsLiteral() && cb.IsLiteral() {
			if r, ok := fold.BinOp(v.Token, v.Typ, ca.Val, cb.Val); ok {
				s.markConstant(v, literal(r))
				return
			}
		}
		s.markOverdefined(v)
		return
	}
	if !a.isOverdefined() && !b.isOverdefined() {
		// an operand is still undefined; wait for it
		return
	}
	if v.Token == token.AND || v.Token == token.OR {
		other := a
		if a.isOverdefined() {
			other = b
		}
		if other.isUndefined() {
			// the undefined side may yet resolve to the absorbing
			// element, which would make us constant
			return
		}
		if other.isConstant() && other.constVal().IsLiteral() {
			if z, ok := absorbing(v.Token, v.Typ); ok && constant.Compare(other.constVal().Val, token.EQL, z) {
				s.markConstant(v, literal(z))
				return
			}
		}
	}
	if s.tryPhiPairFold(v) {
		return
	}
	s.dropPhiPairUser(v)
	s.markOverdefined(v)
}

func (s *Solver) visitCmp(v *ir.Value) {
	if s.getValueState(v).isOverdefined() {
		return
	}
	a := s.getValueState(v.Args[0])
	b := s.getValueState(v.Args[1])
	if a.isConstant() && b.isConstant() {
		ca, cb := a.constVal(), b.constVal()
		if ca.IsLiteral() && cb.IsLiteral() {
			if r, ok := fold.Cmp(v.Token, v.Args[0].Typ, ca.Val, cb.Val); ok {
				s.markConstant(v, literal(r))
				return
			}
		} else if v.Token == token.EQL || v.Token == token.NEQ {
			// Address payloads: distinct globals and functions occupy
			// distinct storage, and neither is null.
			eq := ca.Equal(cb)
			s.markConstant(v, literal(constant.MakeBool(eq == (v.Token == token.EQL))))
			return
		}
		s.markOverdefined(v)
		return
	}
	if !a.isOverdefined() && !b.isOverdefined() {
		return
	}
	if s.tryPhiPairFold(v) {
		return
	}
	s.dropPhiPairUser(v)
	s.markOverdefined(v)
}

// tryPhiPairFold handles a binop or compare whose operands are two phis of
// the same block. Even when both phis are overdefined, the operation can be
// constant if it folds to the same value along every feasible edge, since
// the phis select their incoming values in lockstep.
func (s *Solver) tryPhiPairFold(v *ir.Value) bool {
	p1, p2 := v.Args[0], v.Args[1]
	if p1.Op != ir.OpPhi || p2.Op != ir.OpPhi || p1.Block() != p2.Block() || p1 == p2 {
		return false
	}
	b := p1.Block()
	if len(p1.Args) > maxPhiEdges {
		return false
	}
	var result *Const
	for i := range p1.Args {
		if !s.isEdgeFeasible(b.Preds[i], b) {
			continue
		}
		in1 := s.getValueState(p1.Args[i])
		in2 := s.getValueState(p2.Args[i])
		if in1.isOverdefined() || in2.isOverdefined() {
			return false
		}
		if !in1.isConstant() || !in2.isConstant() {
			continue
		}
		c1, c2 := in1.constVal(), in2.constVal()
		if !c1.IsLiteral() || !c2.IsLiteral() {
			return false
		}
		var folded constant.Value
		var ok bool
		if v.Op == ir.OpBinOp {
			folded, ok = fold.BinOp(v.Token, v.Typ, c1.Val, c2.Val)
		} else {
			folded, ok = fold.Cmp(v.Token, p1.Typ, c1.Val, c2.Val)
		}
		if !ok {
			return false
		}
		fc := literal(folded)
		if result == nil {
			result = &fc
		} else if !result.Equal(fc) {
			return false
		}
	}
	if result == nil {
		return false
	}
	s.markConstant(v, *result)
	s.registerPhiUser(p1, v)
	s.registerPhiUser(p2, v)
	return true
}

func (s *Solver) registerPhiUser(phi, user *ir.Value) {
	for _, u := range s.usersOfOverdefinedPHIs[phi] {
		if u == user {
			return
		}
	}
	s.usersOfOverdefinedPHIs[phi] = append(s.usersOfOverdefinedPHIs[phi], user)
}

func (s *Solver) dropPhiPairUser(user *ir.Value) {
	for _, arg := range user.Args {
		if arg.Op != ir.OpPhi {
			continue
		}
		users := s.usersOfOverdefinedPHIs[arg]
		for i, u := range users {
			if u == user {
				s.usersOfOverdefinedPHIs[arg] = append(users[:i:i], users[i+1:]...)
				break
			}
		}
	}
}

func (s *Solver) visitCast(v *ir.Value) {
	if s.getValueState(v).isOverdefined() {
		return
	}
	in := s.getValueState(v.Args[0])
	switch {
	case in.isUndefined():
	case in.isConstant():
		c := in.constVal()
		if c.IsLiteral() {
			if r, ok := fold.Cast(v.Cast, v.Args[0].Typ, v.Typ, c.Val); ok {
				s.markConstant(v, literal(r))
				return
			}
		}
		s.markOverdefined(v)
	default:
		s.markOverdefined(v)
	}
}

func (s *Solver) visitSelect(v *ir.Value) {
	cond := s.getValueState(v.Args[0])
	if cond.isUndefined() {
		return
	}
	if cond.isConstant() {
		chosen := v.Args[2]
		if constant.BoolVal(cond.constVal().Val) {
			chosen = v.Args[1]
		}
		s.mergeInValue(v, s.getValueState(chosen))
		return
	}
	// Unknown condition: meet both arms. select ?, C, C is still C.
	s.mergeInValue(v, s.getValueState(v.Args[1]))
	s.mergeInValue(v, s.getValueState(v.Args[2]))
}

func (s *Solver) visitLoad(v *ir.Value) {
	if v.Volatile {
		s.markOverdefined(v)
		return
	}
	if s.getValueState(v).isOverdefined() {
		return
	}
	ptr := s.getValueState(v.Args[0])
	if ptr.isUndefined() {
		return
	}
	if ptr.isConstant() {
		c := ptr.constVal()
		if c.Null {
			// The load traps, so any result is as good as another; use
			// the zero value to keep downstream folding going.
			if z, ok := fold.Zero(v.Typ); ok {
				s.markConstant(v, literal(z))
				return
			}
			s.markOverdefined(v)
			return
		}
		if g := c.Global; g != nil {
			if glv, ok := s.trackedGlobals[g]; ok {
				s.noteTrackedGlobalLoad(g, v)
				s.mergeInValue(v, glv)
				return
			}
			if r, ok := fold.Load(g, v.Typ); ok {
				s.markConstant(v, literal(r))
				return
			}
			if g.Immutable && g.InitUndef {
				// reads a cell that was never given a value
				return
			}
		}
	}
	s.markOverdefined(v)
}

func (s *Solver) noteTrackedGlobalLoad(g *ir.Global, v *ir.Value) {
	for _, ld := range s.trackedGlobalLoads[g] {
		if ld == v {
			return
		}
	}
	s.trackedGlobalLoads[g] = append(s.trackedGlobalLoads[g], v)
}

func (s *Solver) visitStore(v *ir.Value) {
	if len(s.trackedGlobals) == 0 {
		return
	}
	ptr := v.Args[1]
	if ptr.Op != ir.OpGlobalAddr {
		return
	}
	g := ptr.Global
	lv, ok := s.trackedGlobals[g]
	if !ok {
		return
	}
	if !merge(&lv, s.getValueState(v.Args[0])) {
		return
	}
	if lv.isOverdefined() {
		// The global takes multiple values; stop tracking it and
		// pessimize every load that relied on the tracked state.
		s.logf("markOverdefined: tracked global %s\n", g)
		delete(s.trackedGlobals, g)
		for _, ld := range s.trackedGlobalLoads[g] {
			s.markOverdefined(ld)
		}
		delete(s.trackedGlobalLoads, g)
		return
	}
	s.logf("tracked global %s = %s\n", g, lv)
	s.trackedGlobals[g] = lv
	for _, ld := range s.trackedGlobalLoads[g] {
		s.visit(ld)
	}
}

func (s *Solver) visitFieldAddr(v *ir.Value) {
	// Interior pointers have no constant payload representation; all we
	// can do is wait out an undefined base.
	if s.getValueState(v.Args[0]).isUndefined() {
		return
	}
	s.markOverdefined(v)
}

func (s *Solver) visitExtract(v *ir.Value) {
	if !v.Args[0].Typ.IsTuple() {
		s.markOverdefined(v)
		return
	}
	s.mergeInValue(v, s.getStructValueState(v.Args[0], v.Field))
}

func (s *Solver) visitMakeTuple(v *ir.Value) {
	for i, arg := range v.Args {
		s.mergeStructValue(v, i, s.getValueState(arg))
	}
}

func (s *Solver) visitReturn(v *ir.Value) {
	if len(v.Args) == 0 {
		return
	}
	fn := v.Block().Parent()
	ret := v.Args[0]
	if lv, ok := s.trackedRetVals[fn]; ok {
		if merge(&lv, s.getValueState(ret)) {
			s.trackedRetVals[fn] = lv
			s.logf("tracked return of %s = %s\n", fn, lv)
			for _, cs := range s.callSites[fn] {
				s.visit(cs)
			}
		}
	}
	if s.tupleRetTracked[fn] {
		for i := range fn.Results.Fields {
			key := retField{fn, i}
			lv := s.trackedTupleRetVals[key]
			if merge(&lv, s.getStructValueState(ret, i)) {
				s.trackedTupleRetVals[key] = lv
				for _, cs := range s.callSites[fn] {
					s.visit(cs)
				}
			}
		}
	}
}

func (s *Solver) visitTerminator(v *ir.Value) {
	b := v.Block()
	for i, ok := range s.feasibleSuccessors(v) {
		if ok {
			s.markEdgeExecutable(b, b.Succs[i])
		}
	}
}

func (s *Solver) visitCallSite(v *ir.Value) {
	callee := v.Callee

	// Propagate arguments into callees whose call sites we fully know.
	if callee != nil && s.trackedArguments[callee] && !callee.IsDeclaration() {
		s.MarkBlockExecutable(callee.Entry())
		for i, param := range callee.Params {
			if i >= len(v.Args) {
				break
			}
			if param.ByVal && !callee.ReadOnly {
				// the callee may scribble on its copy
				s.markOverdefined(param)
				continue
			}
			if param.Typ.IsTuple() {
				for fi := range param.Typ.Fields {
					s.mergeStructValue(param, fi, s.getStructValueState(v.Args[i], fi))
				}
				continue
			}
			s.mergeInValue(param, s.getValueState(v.Args[i]))
		}
	}

	if v.Typ.IsVoid() {
		return
	}
	if s.getValueState(v).isOverdefined() {
		return
	}

	if callee == nil || callee.IsDeclaration() {
		if callee != nil && fold.CanCall(callee) {
			var args []constant.Value
			for _, a := range v.Args {
				alv := s.getValueState(a)
				if alv.isUndefined() {
					// wait for all arguments
					return
				}
				if !alv.isConstant() || !alv.constVal().IsLiteral() {
					s.markOverdefined(v)
					return
				}
				args = append(args, alv.constVal().Val)
			}
			if r, ok := fold.Call(callee, args); ok {
				s.markConstant(v, literal(r))
				return
			}
		}
		s.markOverdefined(v)
		return
	}

	if v.Typ.IsTuple() {
		if s.tupleRetTracked[callee] {
			for i := range v.Typ.Fields {
				s.mergeStructValue(v, i, s.trackedTupleRetVals[retField{callee, i}])
			}
			return
		}
		for i := range v.Typ.Fields {
			s.markStructOverdefined(v, i)
		}
		s.markOverdefined(v)
		return
	}
	if rlv, ok := s.trackedRetVals[callee]; ok {
		s.mergeInValue(v, rlv)
		return
	}
	s.markOverdefined(v)
}

// Solve runs the three worklists to a fixed point. Overdefined transitions
// are drained first: values fall to overdefined quickly and pushing that
// front eagerly keeps the optimistic queues short.
func (s *Solver) Solve() {
	for len(s.blockWorklist)+len(s.instrWorklist)+len(s.overdefinedInstrWorklist) > 0 {
		for len(s.overdefinedInstrWorklist) > 0 {
			v := s.overdefinedInstrWorklist[len(s.overdefinedInstrWorklist)-1]
			s.overdefinedInstrWorklist = s.overdefinedInstrWorklist[:len(s.overdefinedInstrWorklist)-1]
			s.logf("popped off OI-WL: %s\n", v.Name())
			for _, u := range v.Referrers() {
				s.visit(u)
			}
		}
		for len(s.instrWorklist) > 0 {
			v := s.instrWorklist[len(s.instrWorklist)-1]
			s.instrWorklist = s.instrWorklist[:len(s.instrWorklist)-1]
			s.logf("popped off I-WL: %s\n", v.Name())
			for _, u := range v.Referrers() {
				s.visit(u)
			}
		}
		for len(s.blockWorklist) > 0 {
			b := s.blockWorklist[len(s.blockWorklist)-1]
			s.blockWorklist = s.blockWorklist[:len(s.blockWorklist)-1]
			s.logf("popped off BB-WL: %s in %s\n", b, b.Parent())
			for _, v := range b.Instrs {
				if v != nil {
					s.visit(v)
				}
			}
		}
	}
}
