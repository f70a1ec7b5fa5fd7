package ir

import (
	"strings"
	"testing"
)

func TestParseRoundTrip(t *testing.T) {
	// Inputs are written exactly the way WriteProgram prints, so a
	// parse/print cycle must reproduce them byte for byte.
	cases := []string{
		`global @g int = 7

func @f(%x int) int {
b0:
	%c = const int 5
	%s = add int %x, %c
	ret %s
}
`,
		`local immutable global @tbl i32 = -1
global @u bool = undef

local func @pick(%c bool, %a int, %b int) int {
b0:
	%r = select int %c, %a, %b
	ret %r
}
`,
		`func @loop(%n int) int {
b0:
	%zero = const int 0
	%one = const int 1
	jmp b1
b1: ; preds: b0, b2
	%i = phi int [b0: %zero, b2: %next]
	%done = ge %i, %n
	br %done, b3, b2
b2: ; preds: b1
	%next = add int %i, %one
	jmp b1
b3: ; preds: b1
	ret %i
}
`,
		`extern func @ext(%v0 int) int

func @caller() int {
b0:
	%a = const int 3
	%r = call int @ext(%a)
	ret %r
}
`,
		`func @multi() (int, bool) {
b0:
	%a = const int 1
	%b = const bool true
	%t = tuple (int, bool) %a, %b
	ret %t
}

func @use() int {
b0:
	%t = call (int, bool) @multi()
	%v = extract %t, 0
	ret %v
}
`,
		`func @dispatch(%x int) int {
b0:
	switch %x, default b1 [0: b2, 5: b3]
b1: ; preds: b0
	%a = const int 10
	ret %a
b2: ; preds: b0
	%b = const int 20
	ret %b
b3: ; preds: b0
	%c = const int 30
	ret %c
}
`,
		`global @mem i32

func @io(%p *i32) {
b0:
	%v = load volatile i32 %p
	%gp = global @mem
	store %v, %gp
	ret
}
`,
	}
	for _, src := range cases {
		prog, err := ParseProgram(src)
		if err != nil {
			t.Errorf("parse failed: %s\ninput:\n%s", err, src)
			continue
		}
		var b strings.Builder
		WriteProgram(&b, prog)
		if b.String() != src {
			t.Errorf("round trip mismatch\ninput:\n%s\noutput:\n%s", src, b.String())
		}
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		src  string
		want string
	}{
		{"frobnicate\n", "unexpected"},
		{"func @f() {\nb0:\n\tret\n", "unterminated"},
		{"func @f() {\nb0:\n\t%x = bogus int\n\tret\n}\n", "unknown instruction"},
		{"func @f() {\nb0:\n\t%x = add int %y, %y\n\tret\n}\n", "unknown value"},
		{"func @f() {\nb0:\n\tret\nb0:\n\tret\n}\n", "duplicate block"},
		{"func @f() {\nb0:\n\t%x = const int 1\n\t%x = const int 2\n\tret\n}\n", "redefinition"},
		{"func @f() {\nb0:\n\tjmp b9\n}\n", "unknown block"},
		{"func @f() int {\nb0:\n\t%r = call int @nope()\n\tret %r\n}\n", "unknown function"},
		{"func @f() {\nb0:\n\t%x = const wat 1\n\tret\n}\n", "bad type"},
	}
	for _, c := range cases {
		_, err := ParseProgram(c.src)
		if err == nil {
			t.Errorf("expected error containing %q, got none\ninput:\n%s", c.want, c.src)
			continue
		}
		if !strings.Contains(err.Error(), c.want) {
			t.Errorf("expected error containing %q, got %q", c.want, err)
		}
	}
}

func TestParsePhiOrdering(t *testing.T) {
	// Phi edges may be written in any order; they are stored in
	// predecessor order.
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
	%x = phi int [b2: %b, b1: %a]
	ret %x
}
`)
	fn := prog.FuncNamed("f")
	var phi *Value
	for _, v := range fn.Blocks[3].Instrs {
		if v.Op == OpPhi {
			phi = v
		}
	}
	if phi == nil {
		t.Fatal("no phi found")
	}
	for i, pred := range phi.Block().Preds {
		want := "a"
		if pred.Name == "b2" {
			want = "b"
		}
		if got := phi.Args[i].Name(); got != "%"+want {
			t.Errorf("edge from %s: got %s, want %%%s", pred, got, want)
		}
	}
}

func TestParseTypes(t *testing.T) {
	cases := []struct {
		src  string
		want string
	}{
		{"int", "int"},
		{"bool", "bool"},
		{"i32", "i32"},
		{"u8", "u8"},
		{"ptr", "ptr"},
		{"*i32", "*i32"},
		{"**bool", "**bool"},
		{"(int, bool)", "(int, bool)"},
		{"(i8, *u16)", "(i8, *u16)"},
	}
	for _, c := range cases {
		toks, err := tokenize(c.src)
		if err != nil {
			t.Fatal(err)
		}
		lx := &lexer{toks: toks}
		typ, err := parseType(lx)
		if err != nil {
			t.Errorf("%q: %s", c.src, err)
			continue
		}
		if typ.String() != c.want {
			t.Errorf("%q: got %s", c.src, typ)
		}
	}
}
