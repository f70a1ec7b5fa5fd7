package sccp

import (
	"fmt"
	"go/constant"
	"go/token"

	"github.com/lir-project/lir/ir"
)

// Const is the payload of a constant lattice element. Exactly one of the
// fields is meaningful: a literal value, a null pointer, the address of a
// global, or the address of a function.
type Const struct {
	Val    constant.Value
	Null   bool
	Global *ir.Global
	Fn     *ir.Function
}

func literal(v constant.Value) Const  { return Const{Val: v} }
func nullConst() Const                { return Const{Null: true} }
func globalConst(g *ir.Global) Const  { return Const{Global: g} }
func funcConst(fn *ir.Function) Const { return Const{Fn: fn} }

func (c Const) IsLiteral() bool { return c.Val != nil }

func (c Const) Equal(o Const) bool {
	if c.Null != o.Null || c.Global != o.Global || c.Fn != o.Fn {
		return false
	}
	if (c.Val == nil) != (o.Val == nil) {
		return false
	}
	if c.Val == nil {
		return true
	}
	return constant.Compare(c.Val, token.EQL, o.Val)
}

func (c Const) String() string {
	switch {
	case c.Val != nil:
		return c.Val.ExactString()
	case c.Null:
		return "null"
	case c.Global != nil:
		return c.Global.String()
	case c.Fn != nil:
		return c.Fn.String()
	}
	return "<empty>"
}

type latticeKind uint8

const (
	// undefined values have not been shown to take any value yet. The
	// solver is optimistic: everything starts here.
	undefined latticeKind = iota
	// forcedConstant is a constant assumption imposed on an undefined
	// value by undef resolution. Unlike a proven constant it may later be
	// contradicted, in which case the value falls to overdefined.
	forcedConstant
	// constantVal values have exactly one proven runtime value.
	constantVal
	// overdefined values may take multiple runtime values.
	overdefined
)

// latticeValue is one element of the four-point lattice. The zero value is
// undefined, which lets the solver's state maps start optimistic for free.
type latticeValue struct {
	kind latticeKind
	c    Const
}

func (lv latticeValue) isUndefined() bool   { return lv.kind == undefined }
func (lv latticeValue) isOverdefined() bool { return lv.kind == overdefined }

// isConstant reports whether lv carries a single value, forced or proven.
func (lv latticeValue) isConstant() bool {
	return lv.kind == constantVal || lv.kind == forcedConstant
}

func (lv latticeValue) constVal() Const {
	if !lv.isConstant() {
		panic("latticeValue: not a constant")
	}
	return lv.c
}

// markOverdefined lowers lv to the bottom element. It reports whether the
// state changed.
func (lv *latticeValue) markOverdefined() bool {
	if lv.kind == overdefined {
		return false
	}
	lv.kind = overdefined
	lv.c = Const{}
	return true
}

// markConstant raises lv to a proven constant. Re-proving the same constant
// is a no-op; proving a different one than an earlier proof is a solver bug
// and panics. A forced constant is confirmed if the proof agrees with the
// assumption; a proof contradicting the assumption drops lv to overdefined,
// the lattice's only sideways move.
func (lv *latticeValue) markConstant(c Const) bool {
	switch lv.kind {
	case undefined:
		lv.kind = constantVal
		lv.c = c
		return true
	case constantVal:
		if !lv.c.Equal(c) {
			panic(fmt.Sprintf("marking constant %s over conflicting constant %s", c, lv.c))
		}
		return false
	case forcedConstant:
		if !lv.c.Equal(c) {
			lv.kind = overdefined
			lv.c = Const{}
			return true
		}
		lv.kind = constantVal
		return true
	}
	panic("marking constant over overdefined")
}

// markForcedConstant imposes an assumed constant on an undefined value.
func (lv *latticeValue) markForcedConstant(c Const) bool {
	if lv.kind != undefined {
		panic("forcing a constant on a non-undefined value")
	}
	lv.kind = forcedConstant
	lv.c = c
	return true
}

func (lv latticeValue) String() string {
	switch lv.kind {
	case undefined:
		return "undefined"
	case forcedConstant:
		return fmt.Sprintf("forcedconstant<%s>", lv.c)
	case constantVal:
		return fmt.Sprintf("constant<%s>", lv.c)
	}
	return "overdefined"
}
