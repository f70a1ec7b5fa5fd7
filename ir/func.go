package ir

// This file implements the Function and Program types, including the value
// arena and the referrers multimap that replace per-value back-pointer lists.

import (
	"fmt"
	"go/constant"
	"go/token"
)

// Function is an ordered set of BasicBlocks; Blocks[0] is the entry block. A
// Function with no blocks is a declaration.
type Function struct {
	Name         string
	Linkage      Linkage
	AddressTaken bool
	// ReadOnly marks a function that never writes through its pointer or
	// aggregate arguments. Affects by-value aggregate parameter tracking.
	ReadOnly bool

	Params  []*Value
	Results *Type
	Blocks  []*BasicBlock

	Prog *Program

	instrs    []*Value // arena; Value.id indexes this
	referrers [][]int  // producer id -> consumer ids
}

// Program is a set of Functions and Globals under analysis together.
type Program struct {
	Functions []*Function
	Globals   []*Global
}

// Global is a typed storage cell with an optional initializer. An
// initializer of nil together with InitUndef=false means zero-initialized.
type Global struct {
	Name      string
	Typ       *Type // the cell's element type; its address has type *Typ
	Linkage   Linkage
	Init      constant.Value
	InitUndef bool // initializer is the undefined literal
	// Immutable cells never change after initialization; loads from them
	// may be folded from the initializer image.
	Immutable bool
}

func (g *Global) String() string { return "@" + g.Name }

func (p *Program) FuncNamed(name string) *Function {
	for _, fn := range p.Functions {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}

func (p *Program) GlobalNamed(name string) *Global {
	for _, g := range p.Globals {
		if g.Name == name {
			return g
		}
	}
	return nil
}

// RemoveGlobal deletes g from the program.
func (p *Program) RemoveGlobal(g *Global) {
	j := 0
	for _, og := range p.Globals {
		if og != g {
			p.Globals[j] = og
			j++
		}
	}
	for i := j; i < len(p.Globals); i++ {
		p.Globals[i] = nil
	}
	p.Globals = p.Globals[:j]
}

// RemoveFunction deletes f from the program. The caller must already have
// removed all calls to and references of f.
func (p *Program) RemoveFunction(f *Function) {
	j := 0
	for _, of := range p.Functions {
		if of != f {
			p.Functions[j] = of
			j++
		}
	}
	for i := j; i < len(p.Functions); i++ {
		p.Functions[i] = nil
	}
	p.Functions = p.Functions[:j]
}

// NewFunction creates an empty function and adds it to the program.
func (p *Program) NewFunction(name string, linkage Linkage, results *Type) *Function {
	fn := &Function{Name: name, Linkage: linkage, Results: results, Prog: p}
	p.Functions = append(p.Functions, fn)
	return fn
}

func (f *Function) String() string { return "@" + f.Name }

// IsDeclaration reports whether f has no body.
func (f *Function) IsDeclaration() bool { return len(f.Blocks) == 0 }

// Entry returns the entry block, or nil for a declaration.
func (f *Function) Entry() *BasicBlock {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// NumValues returns the arena size, counting tombstones.
func (f *Function) NumValues() int { return len(f.instrs) }

// ValueByID returns the arena entry for id, or nil if it was deleted.
func (f *Function) ValueByID(id int) *Value {
	v := f.instrs[id]
	if v != nil && v.Op == OpInvalid {
		return nil
	}
	return v
}

// NewBlock appends a new, empty basic block.
func (f *Function) NewBlock(name string) *BasicBlock {
	b := &BasicBlock{Index: len(f.Blocks), Name: name, parent: f}
	f.Blocks = append(f.Blocks, b)
	return b
}

// NewParam appends a formal parameter.
func (f *Function) NewParam(name string, typ *Type) *Value {
	v := f.alloc(OpParam, typ)
	v.name = name
	f.Params = append(f.Params, v)
	return v
}

// alloc reserves an arena slot for a new value.
func (f *Function) alloc(op Op, typ *Type) *Value {
	v := &Value{id: len(f.instrs), Op: op, Typ: typ, fn: f}
	f.instrs = append(f.instrs, v)
	f.referrers = append(f.referrers, nil)
	return v
}

// Emit appends a new instruction to block b and records its operand uses.
func (f *Function) Emit(b *BasicBlock, op Op, typ *Type, args ...*Value) *Value {
	v := f.alloc(op, typ)
	v.block = b
	b.Instrs = append(b.Instrs, v)
	for _, arg := range args {
		f.addUse(arg, v)
	}
	v.Args = args
	return v
}

// EmitBefore inserts a new instruction into pos's block, immediately before
// pos. Used when a replacement constant must dominate an instruction that is
// itself kept.
func (f *Function) EmitBefore(pos *Value, op Op, typ *Type) *Value {
	v := f.alloc(op, typ)
	b := pos.block
	v.block = b
	for i, instr := range b.Instrs {
		if instr == pos {
			b.Instrs = append(b.Instrs, nil)
			copy(b.Instrs[i+1:], b.Instrs[i:])
			b.Instrs[i] = v
			return v
		}
	}
	panic(fmt.Sprintf("%s not in block %s", pos.Name(), b))
}

// SetArg replaces user's i'th operand, keeping the referrers multimap
// consistent on both sides.
func (f *Function) SetArg(user *Value, i int, v *Value) {
	if old := user.Args[i]; old != nil {
		f.removeUse(old, user)
	}
	user.Args[i] = v
	f.addUse(v, user)
}

func (f *Function) addUse(def, user *Value) {
	if def == nil {
		return
	}
	f.referrers[def.id] = append(f.referrers[def.id], user.id)
}

// removeUse removes one occurrence of user from def's referrer list.
func (f *Function) removeUse(def, user *Value) {
	refs := f.referrers[def.id]
	for i, id := range refs {
		if id == user.id {
			refs[i] = refs[len(refs)-1]
			f.referrers[def.id] = refs[:len(refs)-1]
			return
		}
	}
}

func (f *Function) referrersOf(v *Value) []*Value {
	ids := f.referrers[v.id]
	out := make([]*Value, 0, len(ids))
	seen := make(map[int]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if u := f.instrs[id]; u != nil && u.Op != OpInvalid {
			out = append(out, u)
		}
	}
	return out
}

// ReplaceAll redirects every use of old to new, updating the referrers
// multimap on both sides.
func (f *Function) ReplaceAll(old, new *Value) {
	if old == new {
		return
	}
	for _, user := range f.referrersOf(old) {
		for i, arg := range user.Args {
			if arg == old {
				user.Args[i] = new
				f.addUse(new, user)
			}
		}
	}
	f.referrers[old.id] = nil
}

// Kill tombstones v: detaches its operands, clears its referrer entry and
// removes it from its block. Dangling references from already-killed users
// are tolerated (the referrers map is the source of truth for liveness).
func (f *Function) Kill(v *Value) {
	for _, arg := range v.Args {
		if arg != nil {
			f.removeUse(arg, v)
		}
	}
	v.Args = nil
	f.referrers[v.id] = nil
	if v.block != nil {
		v.block.killInstr(v)
		v.block = nil
	}
	v.Op = OpInvalid
	f.instrs[v.id] = nil
}

// ResetLeaf rewrites v in place into a leaf of the given op, detaching its
// operands but keeping it in its block. The caller fills in the leaf payload
// (Aux, Global, Callee) afterwards.
func (f *Function) ResetLeaf(v *Value, op Op) {
	for _, arg := range v.Args {
		if arg != nil {
			f.removeUse(arg, v)
		}
	}
	v.Op = op
	v.Args = nil
	v.Aux = nil
	v.Callee = nil
	v.Global = nil
	v.Cases = nil
	v.Token = 0
	v.Cast = CastInvalid
	v.Volatile = false
}

// ResetToUndef rewrites v in place into a detached undefined literal,
// preserving its identity for any remaining users.
func (f *Function) ResetToUndef(v *Value) {
	for _, arg := range v.Args {
		if arg != nil {
			f.removeUse(arg, v)
		}
	}
	if v.block != nil {
		v.block.killInstr(v)
		v.block = nil
	}
	v.Op = OpUndef
	v.Args = nil
	v.Aux = nil
	v.Callee = nil
	v.Global = nil
	v.Cases = nil
}

// Compact removes instruction gaps from every block.
func (f *Function) Compact() {
	for _, b := range f.Blocks {
		b.compact()
	}
}

// RemoveBlock deletes b from f.Blocks and renumbers the remaining blocks.
// The caller must already have unlinked b from the CFG.
func (f *Function) RemoveBlock(b *BasicBlock) {
	j := 0
	for _, ob := range f.Blocks {
		if ob != b {
			ob.Index = j
			f.Blocks[j] = ob
			j++
		}
	}
	for i := j; i < len(f.Blocks); i++ {
		f.Blocks[i] = nil
	}
	f.Blocks = f.Blocks[:j]
}

// Convenience constructors used by the parser and tests.

func (f *Function) NewConst(b *BasicBlock, typ *Type, val constant.Value) *Value {
	v := f.Emit(b, OpConst, typ)
	v.Aux = val
	return v
}

func (f *Function) NewIntConst(b *BasicBlock, typ *Type, val int64) *Value {
	return f.NewConst(b, typ, constant.MakeInt64(val))
}

func (f *Function) NewBoolConst(b *BasicBlock, val bool) *Value {
	return f.NewConst(b, BoolType, constant.MakeBool(val))
}

func (f *Function) NewUndef(b *BasicBlock, typ *Type) *Value {
	return f.Emit(b, OpUndef, typ)
}

func (f *Function) NewBinOp(b *BasicBlock, tok token.Token, typ *Type, x, y *Value) *Value {
	v := f.Emit(b, OpBinOp, typ, x, y)
	v.Token = tok
	return v
}

func (f *Function) NewCmp(b *BasicBlock, tok token.Token, x, y *Value) *Value {
	v := f.Emit(b, OpCmp, BoolType, x, y)
	v.Token = tok
	return v
}

func (f *Function) NewPhi(b *BasicBlock, typ *Type, edges ...*Value) *Value {
	return f.Emit(b, OpPhi, typ, edges...)
}

func (f *Function) NewGlobalAddr(b *BasicBlock, g *Global) *Value {
	v := f.Emit(b, OpGlobalAddr, PointerTo(g.Typ))
	v.Global = g
	return v
}

func (f *Function) NewCall(b *BasicBlock, callee *Function, args ...*Value) *Value {
	var typ *Type
	if callee != nil {
		typ = callee.Results
	}
	v := f.Emit(b, OpCall, typ, args...)
	v.Callee = callee
	return v
}

// Name returns the printed name of v.
func (v *Value) Name() string {
	if v.name != "" {
		return "%" + v.name
	}
	return fmt.Sprintf("%%v%d", v.id)
}

// SetName sets the printed name of v.
func (v *Value) SetName(name string) { v.name = name }

// SanityCheck panics if the function's CFG or def-use structure is
// inconsistent. Intended for tests and parser output validation.
func (f *Function) SanityCheck() {
	for _, b := range f.Blocks {
		if b.parent != f {
			panic(fmt.Sprintf("%s: block %s has wrong parent", f, b))
		}
		term := b.Control()
		if term == nil {
			panic(fmt.Sprintf("%s: block %s has no terminator", f, b))
		}
		for _, v := range b.Instrs {
			if v == nil {
				continue
			}
			if v.Op.IsTerminator() && v != term {
				panic(fmt.Sprintf("%s: terminator %s in the middle of block %s", f, v.Name(), b))
			}
			if v.Op == OpPhi && len(v.Args) != len(b.Preds) {
				panic(fmt.Sprintf("%s: phi %s has %d edges, block %s has %d preds",
					f, v.Name(), len(v.Args), b, len(b.Preds)))
			}
		}
		for _, succ := range b.Succs {
			succ.predIndex(b) // panics if the reverse edge is missing
		}
		for _, pred := range b.Preds {
			if pred.succIndex(b) < 0 {
				panic(fmt.Sprintf("%s: pred %s of %s lacks the successor edge", f, pred, b))
			}
		}
	}
}
