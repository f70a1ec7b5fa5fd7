package fold

import (
	"go/constant"
	"go/token"
	"testing"

	"github.com/lir-project/lir/ir"
)

func num(v int64) constant.Value { return constant.MakeInt64(v) }

func TestBinOp(t *testing.T) {
	i8 := ir.MakeInt(8, true)
	u8 := ir.MakeInt(8, false)
	cases := []struct {
		tok  token.Token
		typ  *ir.Type
		x, y int64
		want int64
		ok   bool
	}{
		{token.ADD, ir.IntType, 2, 3, 5, true},
		{token.SUB, ir.IntType, 2, 3, -1, true},
		{token.MUL, ir.IntType, -4, 3, -12, true},
		{token.ADD, i8, 127, 1, -128, true},  // wraps
		{token.ADD, u8, 255, 1, 0, true},     // wraps
		{token.MUL, u8, 16, 16, 0, true},     // wraps
		{token.QUO, ir.IntType, 7, 2, 3, true},
		{token.QUO, ir.IntType, -7, 2, -3, true}, // truncates toward zero
		{token.REM, ir.IntType, -7, 2, -1, true},
		{token.QUO, ir.IntType, 1, 0, 0, false},
		{token.REM, ir.IntType, 1, 0, 0, false},
		{token.QUO, i8, -128, -1, 0, false}, // overflow
		{token.AND, u8, 0b1100, 0b1010, 0b1000, true},
		{token.OR, u8, 0b1100, 0b1010, 0b1110, true},
		{token.XOR, u8, 0b1100, 0b1010, 0b0110, true},
		{token.AND, i8, -1, 0b1010, 0b1010, true},
		{token.SHL, u8, 1, 3, 8, true},
		{token.SHL, u8, 1, 8, 0, false}, // shift >= width
		{token.SHR, u8, 128, 1, 64, true},
		{token.SHR, i8, -128, 1, -64, true}, // arithmetic
		{token.SHL, i8, 1, 7, -128, true},
	}
	for _, c := range cases {
		got, ok := BinOp(c.tok, c.typ, num(c.x), num(c.y))
		if ok != c.ok {
			t.Errorf("%s %s %d, %d: ok = %v, want %v", c.tok, c.typ, c.x, c.y, ok, c.ok)
			continue
		}
		if !ok {
			continue
		}
		if v, _ := constant.Int64Val(got); v != c.want {
			t.Errorf("%s %s %d, %d = %d, want %d", c.tok, c.typ, c.x, c.y, v, c.want)
		}
	}
}

func TestBoolBinOp(t *testing.T) {
	tr, fa := constant.MakeBool(true), constant.MakeBool(false)
	if got, ok := BinOp(token.AND, ir.BoolType, tr, fa); !ok || constant.BoolVal(got) {
		t.Errorf("true and false = %v", got)
	}
	if got, ok := BinOp(token.OR, ir.BoolType, tr, fa); !ok || !constant.BoolVal(got) {
		t.Errorf("true or false = %v", got)
	}
	if got, ok := BinOp(token.XOR, ir.BoolType, tr, tr); !ok || constant.BoolVal(got) {
		t.Errorf("true xor true = %v", got)
	}
}

func TestCmp(t *testing.T) {
	i8 := ir.MakeInt(8, true)
	u8 := ir.MakeInt(8, false)
	cases := []struct {
		tok  token.Token
		typ  *ir.Type
		x, y int64
		want bool
	}{
		{token.EQL, ir.IntType, 3, 3, true},
		{token.NEQ, ir.IntType, 3, 3, false},
		{token.LSS, i8, -1, 1, true},
		{token.LSS, u8, 255, 1, false}, // 255 is large unsigned
		{token.GEQ, ir.IntType, 5, 5, true},
		{token.GTR, ir.IntType, -10, -20, true},
	}
	for _, c := range cases {
		got, ok := Cmp(c.tok, c.typ, num(c.x), num(c.y))
		if !ok {
			t.Errorf("%s %s %d, %d did not fold", c.tok, c.typ, c.x, c.y)
			continue
		}
		if constant.BoolVal(got) != c.want {
			t.Errorf("%s %s %d, %d = %v, want %v", c.tok, c.typ, c.x, c.y, constant.BoolVal(got), c.want)
		}
	}
}

func TestCast(t *testing.T) {
	i8 := ir.MakeInt(8, true)
	u8 := ir.MakeInt(8, false)
	i16 := ir.MakeInt(16, true)
	cases := []struct {
		kind     ir.CastKind
		from, to *ir.Type
		x, want  int64
	}{
		{ir.CastZeroExt, i8, i16, -1, 255},
		{ir.CastSignExt, i8, i16, -1, -1},
		{ir.CastSignExt, u8, i16, 255, -1}, // reinterprets the bit pattern
		{ir.CastTrunc, i16, u8, 257, 1},
		{ir.CastTrunc, i16, i8, 255, -1},
		{ir.CastZeroExt, ir.BoolType, ir.IntType, 1, 1},
	}
	for _, c := range cases {
		var in constant.Value
		if c.from.IsBool() {
			in = constant.MakeBool(c.x != 0)
		} else {
			in = num(c.x)
		}
		got, ok := Cast(c.kind, c.from, c.to, in)
		if !ok {
			t.Errorf("%s %s -> %s did not fold", c.kind, c.from, c.to)
			continue
		}
		if v, _ := constant.Int64Val(got); v != c.want {
			t.Errorf("%s %s %d -> %s = %d, want %d", c.kind, c.from, c.x, c.to, v, c.want)
		}
	}
}

func TestLoad(t *testing.T) {
	g := &ir.Global{Name: "g", Typ: ir.IntType, Immutable: true, Init: num(7)}
	if got, ok := Load(g, ir.IntType); !ok {
		t.Error("immutable initialized global did not fold")
	} else if v, _ := constant.Int64Val(got); v != 7 {
		t.Errorf("got %d, want 7", v)
	}

	zeroed := &ir.Global{Name: "z", Typ: ir.IntType, Immutable: true}
	if got, ok := Load(zeroed, ir.IntType); !ok {
		t.Error("zero-initialized immutable global did not fold")
	} else if v, _ := constant.Int64Val(got); v != 0 {
		t.Errorf("got %d, want 0", v)
	}

	mut := &ir.Global{Name: "m", Typ: ir.IntType, Init: num(7)}
	if _, ok := Load(mut, ir.IntType); ok {
		t.Error("mutable global folded")
	}
	undef := &ir.Global{Name: "u", Typ: ir.IntType, Immutable: true, InitUndef: true}
	if _, ok := Load(undef, ir.IntType); ok {
		t.Error("undef-initialized global folded")
	}
}

func TestCall(t *testing.T) {
	prog := &ir.Program{}
	abs := prog.NewFunction("abs", ir.Exported, ir.IntType)
	if !CanCall(abs) {
		t.Fatal("abs not recognized as foldable")
	}
	if got, ok := Call(abs, []constant.Value{num(-5)}); !ok {
		t.Error("abs(-5) did not fold")
	} else if v, _ := constant.Int64Val(got); v != 5 {
		t.Errorf("abs(-5) = %d", v)
	}

	max := prog.NewFunction("max", ir.Exported, ir.IntType)
	if got, ok := Call(max, []constant.Value{num(3), num(9), num(-2)}); !ok {
		t.Error("max did not fold")
	} else if v, _ := constant.Int64Val(got); v != 9 {
		t.Errorf("max = %d", v)
	}

	opaque := prog.NewFunction("opaque", ir.Exported, ir.IntType)
	if CanCall(opaque) {
		t.Error("unknown external recognized as foldable")
	}
	bodied := prog.NewFunction("bodied", ir.Local, ir.IntType)
	bodied.NewBlock("b0")
	if CanCall(bodied) {
		t.Error("function with a body recognized as foldable")
	}
}
