package ir

import (
	"go/constant"
	"go/token"
	"testing"
)

func TestReplaceAll(t *testing.T) {
	prog := MustParse(`
func @f(%x int) int {
b0:
	%a = add int %x, %x
	%b = mul int %a, %a
	ret %b
}
`)
	fn := prog.FuncNamed("f")
	a := fn.Blocks[0].Instrs[0]
	c := fn.NewIntConst(fn.Blocks[0], IntType, 4)
	fn.ReplaceAll(a, c)

	b := fn.Blocks[0].Instrs[1]
	if b.Args[0] != c || b.Args[1] != c {
		t.Errorf("mul operands not replaced: %s", b)
	}
	if len(fn.referrersOf(a)) != 0 {
		t.Errorf("stale referrers on replaced value: %v", fn.referrersOf(a))
	}
	refs := fn.referrersOf(c)
	if len(refs) != 1 || refs[0] != b {
		t.Errorf("constant referrers = %v, want [%s]", refs, b.Name())
	}
}

func TestKillAndCompact(t *testing.T) {
	prog := MustParse(`
func @f() int {
b0:
	%a = const int 1
	%b = const int 2
	%c = add int %a, %b
	ret %a
}
`)
	fn := prog.FuncNamed("f")
	blk := fn.Blocks[0]
	c := blk.Instrs[2]
	fn.Kill(c)

	if blk.Instrs[2] != nil {
		t.Errorf("killed instruction still present")
	}
	a := blk.Instrs[0]
	for _, ref := range fn.referrersOf(a) {
		if ref == c {
			t.Errorf("dead instruction still registered as referrer of %s", a.Name())
		}
	}

	fn.Compact()
	if len(blk.Instrs) != 3 {
		t.Errorf("after compaction len(Instrs) = %d, want 3", len(blk.Instrs))
	}
	for _, v := range blk.Instrs {
		if v == nil {
			t.Errorf("nil slot left after compaction")
		}
	}
}

func TestRemovePred(t *testing.T) {
	prog := MustParse(`
func @f(%c bool) int {
b0:
	%a = const int 1
	%b = const int 2
	br %c, b1, b2
b1:
	jmp b3
b2:
	jmp b3
b3:
	%x = phi int [b1: %a, b2: %b]
	ret %x
}
`)
	fn := prog.FuncNamed("f")
	b1, b3 := fn.Blocks[1], fn.Blocks[3]
	b3.RemovePred(b1)

	if len(b3.Preds) != 1 || b3.Preds[0] != fn.Blocks[2] {
		t.Fatalf("preds after removal: %v", b3.Preds)
	}
	phi := b3.Instrs[0]
	if len(phi.Args) != 1 || phi.Args[0].Name() != "%b" {
		t.Errorf("phi after removal: %s", phi)
	}
	a := fn.Blocks[0].Instrs[0]
	for _, ref := range fn.referrersOf(a) {
		if ref == phi {
			t.Errorf("phi still registered as user of dropped edge value")
		}
	}
}

func TestResetLeaf(t *testing.T) {
	prog := MustParse(`
func @f(%x int) int {
b0:
	%a = add int %x, %x
	%b = mul int %a, %a
	ret %b
}
`)
	fn := prog.FuncNamed("f")
	a := fn.Blocks[0].Instrs[0]
	x := fn.Params[0]
	fn.ResetLeaf(a, OpConst)
	a.Aux = constant.MakeInt64(8)

	if len(a.Args) != 0 {
		t.Errorf("leaf keeps operands: %s", a)
	}
	for _, ref := range fn.referrersOf(x) {
		if ref == a {
			t.Errorf("leaf still registered as user of old operand")
		}
	}
	if a.Block() != fn.Blocks[0] {
		t.Errorf("leaf moved out of its block")
	}
	if a.String() != "%a = const int 8" {
		t.Errorf("leaf prints as %q", a)
	}
}

func TestRemoveBlock(t *testing.T) {
	prog := MustParse(`
func @f() int {
b0:
	%a = const int 1
	jmp b2
b1:
	%dead = const int 9
	jmp b2
b2:
	ret %a
}
`)
	fn := prog.FuncNamed("f")
	b1 := fn.Blocks[1]
	b2 := fn.Blocks[2]
	b2.RemovePred(b1)
	fn.RemoveBlock(b1)

	if len(fn.Blocks) != 2 {
		t.Fatalf("len(Blocks) = %d, want 2", len(fn.Blocks))
	}
	if fn.Blocks[1] != b2 || b2.Index != 1 {
		t.Errorf("surviving block not renumbered: index %d", b2.Index)
	}
	fn.SanityCheck()
}

func TestConstHelpers(t *testing.T) {
	fn := (&Program{}).NewFunction("t", Local, IntType)
	blk := fn.NewBlock("b0")
	c := fn.NewIntConst(blk, IntType, -3)
	if c.Op != OpConst || constant.Compare(c.Aux, token.NEQ, constant.MakeInt64(-3)) {
		t.Errorf("NewIntConst: %s %s", c.Op, c.Aux)
	}
	b := fn.NewBoolConst(blk, true)
	if b.Typ != BoolType || constant.BoolVal(b.Aux) != true {
		t.Errorf("NewBoolConst: %s", b)
	}
	u := fn.NewUndef(blk, IntType)
	if u.Op != OpUndef || u.Block() != blk {
		t.Errorf("NewUndef: %s", u)
	}
	fn.ResetToUndef(c)
	if c.Block() != nil {
		t.Errorf("ResetToUndef left value attached to a block")
	}
}

func TestTypeString(t *testing.T) {
	cases := []struct {
		typ  *Type
		want string
	}{
		{IntType, "int"},
		{BoolType, "bool"},
		{MakeInt(8, false), "u8"},
		{MakeInt(16, true), "i16"},
		{PointerTo(nil), "ptr"},
		{PointerTo(MakeInt(32, true)), "*i32"},
		{TupleOf(IntType, BoolType), "(int, bool)"},
		{VoidType, "void"},
	}
	for _, c := range cases {
		if got := c.typ.String(); got != c.want {
			t.Errorf("got %q, want %q", got, c.want)
		}
	}
}
