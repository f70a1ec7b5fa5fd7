// Package ir defines an SSA-form intermediate representation: a Program of
// Functions, each a graph of BasicBlocks holding Values, plus Globals.
//
// Unlike IRs that thread raw back-pointers through every use, each Function
// owns an arena of its Values (the Value ID is its arena index) and a
// referrers multimap from producer ID to consumer IDs. Deleting a Value is a
// tombstone in the arena; the block instruction slices are compacted
// separately.
package ir

import (
	"go/constant"
	"go/token"
)

type Op uint8

const (
	OpInvalid Op = iota

	// Leaf values.
	OpConst      // literal constant (Aux)
	OpNull       // null pointer
	OpUndef      // the undefined literal
	OpParam      // formal parameter
	OpGlobalAddr // address of a Global (Global field)
	OpFuncAddr   // address of a Function (Callee field)

	// Computation.
	OpPhi       // one Arg per predecessor of the parent block
	OpBinOp     // Token is one of ADD SUB MUL QUO REM AND OR XOR SHL SHR
	OpCmp       // Token is one of EQL NEQ LSS LEQ GTR GEQ
	OpCast      // Cast field selects the conversion
	OpSelect    // Args[0] condition, Args[1] true arm, Args[2] false arm
	OpLoad      // Args[0] pointer
	OpStore     // Args[0] value, Args[1] pointer; no result
	OpFieldAddr // address computation: Args[0] pointer + constant offsets
	OpAlloc     // stack/heap allocation; result is a fresh pointer
	OpVarArg    // variadic argument fetch
	OpCall      // direct (Callee) or indirect (Args[0]) call
	OpExtract   // Args[0] tuple, Field index
	OpMakeTuple // aggregate construction, one Arg per field

	// Terminators.
	OpJump        // one successor
	OpIf          // Args[0] condition; Succs[0] then, Succs[1] else
	OpSwitch      // Args[0] discriminant; Succs[0] default, Succs[1+i] ~ Cases[i]
	OpInvoke      // call that may unwind; Succs[0] normal, Succs[1] exceptional
	OpIndirectJmp // Args[0] target address; all Succs listed
	OpReturn      // zero or one Arg
	OpUnreachable

	// Anything the builder did not recognize. The solver treats it as an
	// information sink.
	OpUnknown
)

var opNames = [...]string{
	OpInvalid:     "invalid",
	OpConst:       "const",
	OpNull:        "null",
	OpUndef:       "undef",
	OpParam:       "param",
	OpGlobalAddr:  "global",
	OpFuncAddr:    "funcref",
	OpPhi:         "phi",
	OpBinOp:       "binop",
	OpCmp:         "cmp",
	OpCast:        "cast",
	OpSelect:      "select",
	OpLoad:        "load",
	OpStore:       "store",
	OpFieldAddr:   "fieldaddr",
	OpAlloc:       "alloc",
	OpVarArg:      "vararg",
	OpCall:        "call",
	OpExtract:     "extract",
	OpMakeTuple:   "tuple",
	OpJump:        "jmp",
	OpIf:          "br",
	OpSwitch:      "switch",
	OpInvoke:      "invoke",
	OpIndirectJmp: "ijmp",
	OpReturn:      "ret",
	OpUnreachable: "unreachable",
	OpUnknown:     "unknown",
}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "op?"
}

// IsTerminator reports whether op may only appear as the final instruction
// of a basic block.
func (op Op) IsTerminator() bool {
	switch op {
	case OpJump, OpIf, OpSwitch, OpInvoke, OpIndirectJmp, OpReturn, OpUnreachable:
		return true
	}
	return false
}

// IsCallSite reports whether op invokes a function.
func (op Op) IsCallSite() bool {
	return op == OpCall || op == OpInvoke
}

type CastKind uint8

const (
	CastInvalid CastKind = iota
	CastZeroExt
	CastSignExt
	CastTrunc
)

var castNames = [...]string{CastInvalid: "cast?", CastZeroExt: "zext", CastSignExt: "sext", CastTrunc: "trunc"}

func (c CastKind) String() string { return castNames[c] }

type Linkage uint8

const (
	// Exported definitions are observable outside the Program; other
	// definitions may legally replace them at link time.
	Exported Linkage = iota
	// Local definitions are visible only within the Program.
	Local
)

// Value is a single instruction (and, when Type is non-void, the SSA value it
// produces). Its ID is the index in the parent Function's arena.
type Value struct {
	id  int
	Op  Op
	Typ *Type

	Args []*Value

	Aux      constant.Value   // OpConst payload
	Token    token.Token      // OpBinOp, OpCmp operator
	Cast     CastKind         // OpCast conversion
	Cases    []constant.Value // OpSwitch case values, aligned with Succs[1:]
	Global   *Global          // OpGlobalAddr target
	Callee   *Function        // OpFuncAddr target; OpCall/OpInvoke direct callee (nil = indirect)
	Field    int              // OpExtract field index; OpFieldAddr offset
	Volatile bool             // OpLoad
	ByVal    bool             // OpParam: aggregate passed by value

	name  string
	fn    *Function
	block *BasicBlock
}

func (v *Value) ID() int            { return v.id }
func (v *Value) Type() *Type        { return v.Typ }
func (v *Value) Block() *BasicBlock { return v.block }

// Parent returns the function whose arena owns v.
func (v *Value) Parent() *Function { return v.fn }

// IsConstant reports whether v is a leaf with a fixed, known identity. The
// undefined literal is not a constant.
func (v *Value) IsConstant() bool {
	switch v.Op {
	case OpConst, OpNull, OpGlobalAddr, OpFuncAddr:
		return true
	}
	return false
}

// Referrers returns the live consumers of v, in arena order.
func (v *Value) Referrers() []*Value {
	fn := v.Parent()
	if fn == nil {
		return nil
	}
	return fn.referrersOf(v)
}
