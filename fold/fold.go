// Package fold evaluates instructions over compile-time constant operands.
//
// All integer arithmetic is performed exactly in math/big and then wrapped to
// the width and signedness of the result type, so i8 and u8 share bit
// patterns but canonicalize differently. Operations whose result is not
// defined for the given operands (division by zero, oversized shifts) refuse
// to fold rather than invent a value.
package fold

import (
	"go/constant"
	"go/token"
	"math/big"

	"github.com/lir-project/lir/ir"
)

var one = big.NewInt(1)

// bigOf extracts the exact integer behind c.
func bigOf(c constant.Value) *big.Int {
	switch v := constant.Val(c).(type) {
	case int64:
		return big.NewInt(v)
	case *big.Int:
		return new(big.Int).Set(v)
	case bool:
		if v {
			return big.NewInt(1)
		}
		return new(big.Int)
	}
	panic("not an integer constant")
}

// wrap reduces z to the canonical value of type typ: the bit pattern
// z mod 2**bits, read back under the type's signedness.
func wrap(z *big.Int, typ *ir.Type) constant.Value {
	bits := typ.Bits
	mod := new(big.Int).Lsh(one, uint(bits))
	z = new(big.Int).Mod(z, mod) // Mod is Euclidean, result in [0, mod)
	if typ.Signed && z.Bit(bits-1) == 1 {
		z.Sub(z, mod)
	}
	return constant.Make(z)
}

// bitsOf reinterprets the canonical value of c as its raw bit pattern in
// [0, 2**bits).
func bitsOf(c constant.Value, typ *ir.Type) *big.Int {
	z := bigOf(c)
	if z.Sign() < 0 {
		z.Add(z, new(big.Int).Lsh(one, uint(typ.Bits)))
	}
	return z
}

// signedOf reinterprets the canonical value of c as a signed integer of the
// type's width, regardless of the type's own signedness.
func signedOf(c constant.Value, typ *ir.Type) *big.Int {
	z := bitsOf(c, typ)
	if z.Bit(typ.Bits-1) == 1 {
		z.Sub(z, new(big.Int).Lsh(one, uint(typ.Bits)))
	}
	return z
}

// BinOp folds a binary arithmetic or bitwise instruction. It reports false
// when the operation cannot be folded safely: division or remainder by zero,
// signed division overflow, and shifts by at least the operand width.
func BinOp(tok token.Token, typ *ir.Type, x, y constant.Value) (constant.Value, bool) {
	if typ.IsBool() {
		return boolBinOp(tok, x, y)
	}
	if !typ.IsInteger() {
		return nil, false
	}
	a, b := bigOf(x), bigOf(y)
	z := new(big.Int)
	switch tok {
	case token.ADD:
		z.Add(a, b)
	case token.SUB:
		z.Sub(a, b)
	case token.MUL:
		z.Mul(a, b)
	case token.QUO, token.REM:
		if b.Sign() == 0 {
			return nil, false
		}
		if typ.Signed {
			// The lone overflowing case: minInt / -1.
			min := new(big.Int).Lsh(one, uint(typ.Bits-1))
			min.Neg(min)
			if a.Cmp(min) == 0 && b.Cmp(big.NewInt(-1)) == 0 {
				return nil, false
			}
		}
		if tok == token.QUO {
			z.Quo(a, b)
		} else {
			z.Rem(a, b)
		}
	case token.AND:
		z.And(a, b)
	case token.OR:
		z.Or(a, b)
	case token.XOR:
		z.Xor(a, b)
	case token.SHL, token.SHR:
		amt := bitsOf(y, typ)
		if !amt.IsUint64() || amt.Uint64() >= uint64(typ.Bits) {
			return nil, false
		}
		n := uint(amt.Uint64())
		if tok == token.SHL {
			z.Lsh(a, n)
		} else if typ.Signed {
			z.Rsh(a, n) // arithmetic on the canonical signed value
		} else {
			z.Rsh(bitsOf(x, typ), n)
		}
	default:
		return nil, false
	}
	return wrap(z, typ), true
}

func boolBinOp(tok token.Token, x, y constant.Value) (constant.Value, bool) {
	a, b := constant.BoolVal(x), constant.BoolVal(y)
	switch tok {
	case token.AND:
		return constant.MakeBool(a && b), true
	case token.OR:
		return constant.MakeBool(a || b), true
	case token.XOR:
		return constant.MakeBool(a != b), true
	}
	return nil, false
}

// Cmp folds a comparison of two constants of operand type typ.
func Cmp(tok token.Token, typ *ir.Type, x, y constant.Value) (constant.Value, bool) {
	if typ.IsBool() {
		a, b := constant.BoolVal(x), constant.BoolVal(y)
		switch tok {
		case token.EQL:
			return constant.MakeBool(a == b), true
		case token.NEQ:
			return constant.MakeBool(a != b), true
		}
		return nil, false
	}
	if !typ.IsInteger() {
		return nil, false
	}
	// Canonical values already carry the type's signedness, so a plain
	// big.Int comparison orders them correctly.
	c := bigOf(x).Cmp(bigOf(y))
	var r bool
	switch tok {
	case token.EQL:
		r = c == 0
	case token.NEQ:
		r = c != 0
	case token.LSS:
		r = c < 0
	case token.LEQ:
		r = c <= 0
	case token.GTR:
		r = c > 0
	case token.GEQ:
		r = c >= 0
	default:
		return nil, false
	}
	return constant.MakeBool(r), true
}

// Cast folds a width or signedness conversion.
func Cast(kind ir.CastKind, from, to *ir.Type, x constant.Value) (constant.Value, bool) {
	if !to.IsInteger() {
		return nil, false
	}
	var z *big.Int
	switch {
	case from.IsBool():
		z = bigOf(x)
	case from.IsInteger():
		switch kind {
		case ir.CastZeroExt, ir.CastTrunc:
			z = bitsOf(x, from)
		case ir.CastSignExt:
			z = signedOf(x, from)
		default:
			return nil, false
		}
	default:
		return nil, false
	}
	return wrap(z, to), true
}

// Load folds a load from a global whose cell can never change: an immutable
// global with a known initializer, where zero-initialized counts as known.
// Loads from globals with undefined initializers are not handled here; the
// caller decides what an undefined cell means.
func Load(g *ir.Global, typ *ir.Type) (constant.Value, bool) {
	if !g.Immutable || g.InitUndef {
		return nil, false
	}
	if g.Init != nil {
		return g.Init, true
	}
	return Zero(typ)
}

// Zero returns the zero value of typ, if it has one.
func Zero(typ *ir.Type) (constant.Value, bool) {
	switch {
	case typ.IsBool():
		return constant.MakeBool(false), true
	case typ.IsInteger():
		return constant.MakeInt64(0), true
	}
	return nil, false
}

/// AllOnes returns the canonical all-bits-set value of an integer type: -1
// for signed types, the maximum for unsigned ones.
func AllOnes(typ *ir.Type) (constant.Value, bool) {
	if !typ.IsInteger() {
		return nil, false
	}
	return wrap(big.NewInt(-1), typ), true
}

// intrinsics maps names of known pure functions to their evaluators. A
// declared-only callee whose name appears here can be folded when all its
// arguments are constant.
var intrinsics = map[string]func(typ *ir.Type, args []constant.Value) (constant.Value, bool){
	"abs": func(typ *ir.Type, args []constant.Value) (constant.Value, bool) {
		if len(args) != 1 {
			return nil, false
		}
		z := bigOf(args[0])
		return wrap(z.Abs(z), typ), true
	},
	"min": func(typ *ir.Type, args []constant.Value) (constant.Value, bool) {
		return extremum(typ, args, -1)
	},
	"max": func(typ *ir.Type, args []constant.Value) (constant.Value, bool) {
		return extremum(typ, args, 1)
	},
	"ctpop": func(typ *ir.Type, args []constant.Value) (constant.Value, bool) {
		if len(args) != 1 {
			return nil, false
		}
		z := bitsOf(args[0], typ)
		n := 0
		for i := 0; i < z.BitLen(); i++ {
			if z.Bit(i) == 1 {
				n++
			}
		}
		return constant.MakeInt64(int64(n)), true
	},
}

func extremum(typ *ir.Type, args []constant.Value, dir int) (constant.Value, bool) {
	if len(args) == 0 {
		return nil, false
	}
	best := bigOf(args[0])
	for _, a := range args[1:] {
		if z := bigOf(a); z.Cmp(best) == dir {
			best = z
		}
	}
	return wrap(best, typ), true
}

// CanCall reports whether calls to fn can be folded given constant
// arguments. Only declared-only functions with registered pure evaluators
// qualify; functions with bodies are handled by interprocedural return
// tracking instead.
func CanCall(fn *ir.Function) bool {
	if fn == nil || !fn.IsDeclaration() {
		return false
	}
	_, ok := intrinsics[fn.Name]
	return ok
}

// Call folds a call to a registered pure function.
func Call(fn *ir.Function, args []constant.Value) (constant.Value, bool) {
	eval, ok := intrinsics[fn.Name]
	if !ok {
		return nil, false
	}
	typ := fn.Results
	if typ == nil || !(typ.IsInteger() || typ.IsBool()) {
		return nil, false
	}
	return eval(typ, args)
}
