package ir

// A reader for the textual IR form produced by WriteProgram. Functions and
// globals may be referenced before their declaration; within a function,
// values and blocks may be referenced before their definition (SSA phis
// routinely do).

import (
	"fmt"
	"go/constant"
	"go/token"
	"strconv"
	"strings"
)

var binOpTokens = map[string]token.Token{
	"add": token.ADD,
	"sub": token.SUB,
	"mul": token.MUL,
	"div": token.QUO,
	"rem": token.REM,
	"and": token.AND,
	"or":  token.OR,
	"xor": token.XOR,
	"shl": token.SHL,
	"shr": token.SHR,
}

var cmpTokens = map[string]token.Token{
	"eq": token.EQL,
	"ne": token.NEQ,
	"lt": token.LSS,
	"le": token.LEQ,
	"gt": token.GTR,
	"ge": token.GEQ,
}

var castKinds = map[string]CastKind{
	"zext":  CastZeroExt,
	"sext":  CastSignExt,
	"trunc": CastTrunc,
}

// ParseProgram parses the textual IR in src.
func ParseProgram(src string) (*Program, error) {
	p := &parser{prog: &Program{}}
	if err := p.run(src); err != nil {
		return nil, err
	}
	return p.prog, nil
}

// MustParse is ParseProgram for tests and fixed inputs; it panics on error.
func MustParse(src string) *Program {
	prog, err := ParseProgram(src)
	if err != nil {
		panic(err)
	}
	return prog
}

type parser struct {
	prog *Program
}

type funcBody struct {
	fn    *Function
	lines []string
	start int // 1-based line number of the first body line
}

func (p *parser) run(src string) error {
	raw := strings.Split(src, "\n")
	lines := make([]string, len(raw))
	for i, l := range raw {
		if idx := strings.IndexByte(l, ';'); idx >= 0 {
			l = l[:idx]
		}
		lines[i] = strings.TrimSpace(l)
	}

	// First collect all top-level declarations so bodies can refer to
	// functions and globals in any order.
	var bodies []funcBody
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if line == "" {
			continue
		}
		toks, err := tokenize(line)
		if err != nil {
			return lineErr(i, err)
		}
		lx := &lexer{toks: toks}

		linkage := Exported
		immutable := false
		extern := false
		for {
			switch lx.peek() {
			case "local":
				lx.next()
				linkage = Local
				continue
			case "immutable":
				lx.next()
				immutable = true
				continue
			case "extern":
				lx.next()
				extern = true
				continue
			}
			break
		}

		switch lx.peek() {
		case "global":
			lx.next()
			if err := p.parseGlobal(lx, linkage, immutable); err != nil {
				return lineErr(i, err)
			}
		case "func":
			lx.next()
			fn, hasBody, err := p.parseFuncHeader(lx, linkage, extern)
			if err != nil {
				return lineErr(i, err)
			}
			if hasBody {
				depth := 1
				start := i + 1
				j := start
				for ; j < len(lines); j++ {
					if lines[j] == "}" {
						depth--
						if depth == 0 {
							break
						}
					}
				}
				if depth != 0 {
					return lineErr(i, fmt.Errorf("unterminated body of %s", fn))
				}
				bodies = append(bodies, funcBody{fn: fn, lines: lines[start:j], start: start + 1})
				i = j
			}
		default:
			return lineErr(i, fmt.Errorf("unexpected %q at top level", lx.peek()))
		}
	}

	for _, body := range bodies {
		if err := p.parseBody(body); err != nil {
			return err
		}
	}
	return nil
}

func lineErr(idx int, err error) error {
	return fmt.Errorf("line %d: %w", idx+1, err)
}

func (p *parser) parseGlobal(lx *lexer, linkage Linkage, immutable bool) error {
	name, err := lx.expectAt()
	if err != nil {
		return err
	}
	typ, err := parseType(lx)
	if err != nil {
		return err
	}
	g := &Global{Name: name, Typ: typ, Linkage: linkage, Immutable: immutable}
	if lx.peek() == "=" {
		lx.next()
		if lx.peek() == "undef" {
			lx.next()
			g.InitUndef = true
		} else {
			c, err := parseLiteral(lx, typ)
			if err != nil {
				return err
			}
			g.Init = c
		}
	}
	if p.prog.GlobalNamed(name) != nil {
		return fmt.Errorf("duplicate global @%s", name)
	}
	p.prog.Globals = append(p.prog.Globals, g)
	return lx.done()
}

func (p *parser) parseFuncHeader(lx *lexer, linkage Linkage, extern bool) (*Function, bool, error) {
	name, err := lx.expectAt()
	if err != nil {
		return nil, false, err
	}
	if p.prog.FuncNamed(name) != nil {
		return nil, false, fmt.Errorf("duplicate function @%s", name)
	}
	fn := p.prog.NewFunction(name, linkage, VoidType)
	if err := lx.expect("("); err != nil {
		return nil, false, err
	}
	for lx.peek() != ")" {
		if len(fn.Params) > 0 {
			if err := lx.expect(","); err != nil {
				return nil, false, err
			}
		}
		var pname string
		if strings.HasPrefix(lx.peek(), "%") {
			pname = strings.TrimPrefix(lx.next(), "%")
		}
		ptyp, err := parseType(lx)
		if err != nil {
			return nil, false, err
		}
		param := fn.NewParam(pname, ptyp)
		if lx.peek() == "byval" {
			lx.next()
			param.ByVal = true
		}
	}
	lx.next() // ")"
	if lx.peek() == "readonly" {
		lx.next()
		fn.ReadOnly = true
	}
	if lx.peek() != "" && lx.peek() != "{" {
		rt, err := parseType(lx)
		if err != nil {
			return nil, false, err
		}
		fn.Results = rt
	}
	if lx.peek() == "readonly" {
		lx.next()
		fn.ReadOnly = true
	}
	if extern {
		return fn, false, lx.done()
	}
	if err := lx.expect("{"); err != nil {
		return nil, false, err
	}
	return fn, true, lx.done()
}

type pendingPhi struct {
	phi   *Value
	preds []string
	args  []string
}

func (p *parser) parseBody(body funcBody) error {
	fn := body.fn
	blocks := map[string]*BasicBlock{}
	values := map[string]*Value{}
	for _, param := range fn.Params {
		if param.name != "" {
			values["%"+param.name] = param
		}
	}

	// Pass A: create blocks and result-value shells, so later lines can be
	// resolved against earlier ones and vice versa.
	for i, line := range body.lines {
		if line == "" {
			continue
		}
		if label, ok := labelOf(line); ok {
			if blocks[label] != nil {
				return lineErr(body.start+i-1, fmt.Errorf("duplicate block %s", label))
			}
			b := fn.NewBlock(label)
			blocks[label] = b
			continue
		}
		if name, ok := resultOf(line); ok {
			if values[name] != nil {
				return lineErr(body.start+i-1, fmt.Errorf("redefinition of %s", name))
			}
			shell := fn.alloc(OpInvalid, nil)
			shell.name = strings.TrimPrefix(name, "%")
			values[name] = shell
		}
	}
	if len(fn.Blocks) == 0 {
		return fmt.Errorf("function %s has an empty body", fn)
	}

	// Pass B: parse every instruction in place.
	var cur *BasicBlock
	var phis []pendingPhi
	for i, line := range body.lines {
		if line == "" {
			continue
		}
		if label, ok := labelOf(line); ok {
			cur = blocks[label]
			continue
		}
		if cur == nil {
			return lineErr(body.start+i-1, fmt.Errorf("instruction outside a block"))
		}
		toks, err := tokenize(line)
		if err != nil {
			return lineErr(body.start+i-1, err)
		}
		lx := &lexer{toks: toks}
		pp, err := p.parseInstr(fn, cur, lx, blocks, values)
		if err != nil {
			return lineErr(body.start+i-1, err)
		}
		if pp != nil {
			phis = append(phis, *pp)
		}
	}

	// Pass C: now that the CFG is complete, wire phi edges in predecessor
	// order.
	for _, pp := range phis {
		b := pp.phi.block
		pp.phi.Args = make([]*Value, len(b.Preds))
		for k, predName := range pp.preds {
			pred := blocks[predName]
			if pred == nil {
				return fmt.Errorf("%s: phi %s references unknown block %s", fn, pp.phi.Name(), predName)
			}
			idx := b.predIndex(pred)
			arg := values[pp.args[k]]
			if arg == nil {
				return fmt.Errorf("%s: phi %s references unknown value %s", fn, pp.phi.Name(), pp.args[k])
			}
			pp.phi.Args[idx] = arg
			fn.addUse(arg, pp.phi)
		}
		for _, arg := range pp.phi.Args {
			if arg == nil {
				return fmt.Errorf("%s: phi %s is missing an edge (%d preds, %d edges)",
					fn, pp.phi.Name(), len(b.Preds), len(pp.preds))
			}
		}
	}

	// Pass D: derive types that depend on operand types.
	for _, b := range fn.Blocks {
		for _, v := range b.Instrs {
			if v != nil && v.Op == OpExtract {
				t := v.Args[0].Typ
				if !t.IsTuple() || v.Field >= len(t.Fields) {
					return fmt.Errorf("%s: extract %s from non-tuple or out of range", fn, v.Name())
				}
				v.Typ = t.Fields[v.Field]
			}
		}
	}

	fn.SanityCheck()
	return nil
}

// parseInstr parses one instruction line into block b. It returns a pending
// phi record for phis, whose edges are resolved after the CFG is built.
func (p *parser) parseInstr(fn *Function, b *BasicBlock, lx *lexer, blocks map[string]*BasicBlock, values map[string]*Value) (*pendingPhi, error) {
	var v *Value
	if name, ok := resultOf(strings.Join(lx.toks, " ")); ok && strings.HasPrefix(lx.peek(), "%") {
		v = values[name]
		lx.next() // %name
		if err := lx.expect("="); err != nil {
			return nil, err
		}
	}

	place := func(op Op, typ *Type, args ...*Value) *Value {
		if v == nil {
			v = fn.alloc(op, typ)
		} else {
			v.Op = op
			v.Typ = typ
		}
		v.block = b
		b.Instrs = append(b.Instrs, v)
		v.Args = args
		for _, arg := range args {
			fn.addUse(arg, v)
		}
		return v
	}

	arg := func() (*Value, error) {
		name, err := lx.expectPercent()
		if err != nil {
			return nil, err
		}
		av := values[name]
		if av == nil {
			return nil, fmt.Errorf("unknown value %s", name)
		}
		return av, nil
	}

	blockRef := func() (*BasicBlock, error) {
		name := lx.next()
		if name == "" {
			return nil, fmt.Errorf("expected block label")
		}
		blk := blocks[name]
		if blk == nil {
			return nil, fmt.Errorf("unknown block %s", name)
		}
		return blk, nil
	}

	op := lx.next()
	switch {
	case op == "const":
		typ, err := parseType(lx)
		if err != nil {
			return nil, err
		}
		c, err := parseLiteral(lx, typ)
		if err != nil {
			return nil, err
		}
		place(OpConst, typ)
		v.Aux = c

	case op == "null":
		typ, err := parseType(lx)
		if err != nil {
			return nil, err
		}
		place(OpNull, typ)

	case op == "undef":
		typ, err := parseType(lx)
		if err != nil {
			return nil, err
		}
		place(OpUndef, typ)

	case op == "global":
		name, err := lx.expectAt()
		if err != nil {
			return nil, err
		}
		g := p.prog.GlobalNamed(name)
		if g == nil {
			return nil, fmt.Errorf("unknown global @%s", name)
		}
		place(OpGlobalAddr, PointerTo(g.Typ))
		v.Global = g

	case op == "funcref":
		name, err := lx.expectAt()
		if err != nil {
			return nil, err
		}
		callee := p.prog.FuncNamed(name)
		if callee == nil {
			return nil, fmt.Errorf("unknown function @%s", name)
		}
		place(OpFuncAddr, PointerTo(nil))
		v.Callee = callee

	case op == "phi":
		typ, err := parseType(lx)
		if err != nil {
			return nil, err
		}
		place(OpPhi, typ)
		if err := lx.expect("["); err != nil {
			return nil, err
		}
		pp := &pendingPhi{phi: v}
		for lx.peek() != "]" {
			if len(pp.preds) > 0 {
				if err := lx.expect(","); err != nil {
					return nil, err
				}
			}
			pred := lx.next()
			if err := lx.expect(":"); err != nil {
				return nil, err
			}
			aname, err := lx.expectPercent()
			if err != nil {
				return nil, err
			}
			pp.preds = append(pp.preds, pred)
			pp.args = append(pp.args, aname)
		}
		lx.next() // "]"
		return pp, lx.done()

	case binOpTokens[op] != 0:
		typ, err := parseType(lx)
		if err != nil {
			return nil, err
		}
		x, err := arg()
		if err != nil {
			return nil, err
		}
		if err := lx.expect(","); err != nil {
			return nil, err
		}
		y, err := arg()
		if err != nil {
			return nil, err
		}
		place(OpBinOp, typ, x, y)
		v.Token = binOpTokens[op]

	case cmpTokens[op] != 0:
		x, err := arg()
		if err != nil {
			return nil, err
		}
		if err := lx.expect(","); err != nil {
			return nil, err
		}
		y, err := arg()
		if err != nil {
			return nil, err
		}
		place(OpCmp, BoolType, x, y)
		v.Token = cmpTokens[op]

	case castKinds[op] != 0:
		typ, err := parseType(lx)
		if err != nil {
			return nil, err
		}
		x, err := arg()
		if err != nil {
			return nil, err
		}
		place(OpCast, typ, x)
		v.Cast = castKinds[op]

	case op == "select":
		typ, err := parseType(lx)
		if err != nil {
			return nil, err
		}
		var ops [3]*Value
		for i := 0; i < 3; i++ {
			if i > 0 {
				if err := lx.expect(","); err != nil {
					return nil, err
				}
			}
			o, err := arg()
			if err != nil {
				return nil, err
			}
			ops[i] = o
		}
		place(OpSelect, typ, ops[0], ops[1], ops[2])

	case op == "load":
		volatile := false
		if lx.peek() == "volatile" {
			lx.next()
			volatile = true
		}
		typ, err := parseType(lx)
		if err != nil {
			return nil, err
		}
		ptr, err := arg()
		if err != nil {
			return nil, err
		}
		place(OpLoad, typ, ptr)
		v.Volatile = volatile

	case op == "store":
		val, err := arg()
		if err != nil {
			return nil, err
		}
		if err := lx.expect(","); err != nil {
			return nil, err
		}
		ptr, err := arg()
		if err != nil {
			return nil, err
		}
		place(OpStore, VoidType, val, ptr)

	case op == "fieldaddr":
		typ, err := parseType(lx)
		if err != nil {
			return nil, err
		}
		ptr, err := arg()
		if err != nil {
			return nil, err
		}
		if err := lx.expect(","); err != nil {
			return nil, err
		}
		idx, err := lx.expectInt()
		if err != nil {
			return nil, err
		}
		place(OpFieldAddr, typ, ptr)
		v.Field = idx

	case op == "alloc":
		typ, err := parseType(lx)
		if err != nil {
			return nil, err
		}
		place(OpAlloc, PointerTo(typ))

	case op == "vararg":
		typ, err := parseType(lx)
		if err != nil {
			return nil, err
		}
		place(OpVarArg, typ)

	case op == "call", op == "invoke":
		typ := VoidType
		if v != nil {
			t, err := parseType(lx)
			if err != nil {
				return nil, err
			}
			typ = t
		}
		var callee *Function
		var args []*Value
		if strings.HasPrefix(lx.peek(), "@") {
			name, _ := lx.expectAt()
			callee = p.prog.FuncNamed(name)
			if callee == nil {
				return nil, fmt.Errorf("unknown function @%s", name)
			}
		} else {
			target, err := arg()
			if err != nil {
				return nil, err
			}
			args = append(args, target)
		}
		if err := lx.expect("("); err != nil {
			return nil, err
		}
		n := 0
		for lx.peek() != ")" {
			if n > 0 {
				if err := lx.expect(","); err != nil {
					return nil, err
				}
			}
			a, err := arg()
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			n++
		}
		lx.next() // ")"
		kind := OpCall
		if op == "invoke" {
			kind = OpInvoke
		}
		place(kind, typ, args...)
		v.Callee = callee
		if kind == OpInvoke {
			for i := 0; i < 2; i++ {
				if err := lx.expect(","); err != nil {
					return nil, err
				}
				succ, err := blockRef()
				if err != nil {
					return nil, err
				}
				b.AddEdgeTo(succ)
			}
		}

	case op == "extract":
		x, err := arg()
		if err != nil {
			return nil, err
		}
		if err := lx.expect(","); err != nil {
			return nil, err
		}
		idx, err := lx.expectInt()
		if err != nil {
			return nil, err
		}
		place(OpExtract, nil, x) // type derived in pass D
		v.Field = idx

	case op == "tuple":
		typ, err := parseType(lx)
		if err != nil {
			return nil, err
		}
		if !typ.IsTuple() {
			return nil, fmt.Errorf("tuple instruction needs a tuple type, got %s", typ)
		}
		var args []*Value
		for i := range typ.Fields {
			if i > 0 {
				if err := lx.expect(","); err != nil {
					return nil, err
				}
			}
			a, err := arg()
			if err != nil {
				return nil, err
			}
			args = append(args, a)
		}
		place(OpMakeTuple, typ, args...)

	case op == "jmp":
		succ, err := blockRef()
		if err != nil {
			return nil, err
		}
		place(OpJump, VoidType)
		b.AddEdgeTo(succ)

	case op == "br":
		cond, err := arg()
		if err != nil {
			return nil, err
		}
		for i := 0; i < 2; i++ {
			if err := lx.expect(","); err != nil {
				return nil, err
			}
			succ, err := blockRef()
			if err != nil {
				return nil, err
			}
			b.AddEdgeTo(succ)
		}
		place(OpIf, VoidType, cond)

	case op == "switch":
		disc, err := arg()
		if err != nil {
			return nil, err
		}
		if err := lx.expect(","); err != nil {
			return nil, err
		}
		if err := lx.expect("default"); err != nil {
			return nil, err
		}
		def, err := blockRef()
		if err != nil {
			return nil, err
		}
		place(OpSwitch, VoidType, disc)
		b.AddEdgeTo(def)
		if err := lx.expect("["); err != nil {
			return nil, err
		}
		for lx.peek() != "]" {
			if len(v.Cases) > 0 {
				if err := lx.expect(","); err != nil {
					return nil, err
				}
			}
			c, err := parseLiteral(lx, disc.Typ)
			if err != nil {
				return nil, err
			}
			if err := lx.expect(":"); err != nil {
				return nil, err
			}
			succ, err := blockRef()
			if err != nil {
				return nil, err
			}
			v.Cases = append(v.Cases, c)
			b.AddEdgeTo(succ)
		}
		lx.next() // "]"

	case op == "ijmp":
		target, err := arg()
		if err != nil {
			return nil, err
		}
		if err := lx.expect(","); err != nil {
			return nil, err
		}
		if err := lx.expect("["); err != nil {
			return nil, err
		}
		place(OpIndirectJmp, VoidType, target)
		n := 0
		for lx.peek() != "]" {
			if n > 0 {
				if err := lx.expect(","); err != nil {
					return nil, err
				}
			}
			succ, err := blockRef()
			if err != nil {
				return nil, err
			}
			b.AddEdgeTo(succ)
			n++
		}
		lx.next() // "]"

	case op == "ret":
		if lx.peek() == "" {
			place(OpReturn, VoidType)
		} else {
			x, err := arg()
			if err != nil {
				return nil, err
			}
			place(OpReturn, VoidType, x)
		}

	case op == "unreachable":
		place(OpUnreachable, VoidType)

	case op == "unknown":
		typ, err := parseType(lx)
		if err != nil {
			return nil, err
		}
		var args []*Value
		for lx.peek() != "" {
			if len(args) > 0 {
				if err := lx.expect(","); err != nil {
					return nil, err
				}
			}
			a, err := arg()
			if err != nil {
				return nil, err
			}
			args = append(args, a)
		}
		place(OpUnknown, typ, args...)

	default:
		return nil, fmt.Errorf("unknown instruction %q", op)
	}

	return nil, lx.done()
}

func labelOf(line string) (string, bool) {
	if strings.HasSuffix(line, ":") && !strings.ContainsAny(line, " \t") {
		return strings.TrimSuffix(line, ":"), true
	}
	return "", false
}

func resultOf(line string) (string, bool) {
	if !strings.HasPrefix(line, "%") {
		return "", false
	}
	idx := strings.Index(line, "=")
	if idx < 0 {
		return "", false
	}
	return strings.TrimSpace(line[:idx]), true
}

// lexer hands out pre-split tokens of one line.
type lexer struct {
	toks []string
	pos  int
}

func (lx *lexer) peek() string {
	if lx.pos >= len(lx.toks) {
		return ""
	}
	return lx.toks[lx.pos]
}

func (lx *lexer) next() string {
	t := lx.peek()
	if t != "" {
		lx.pos++
	}
	return t
}

func (lx *lexer) expect(tok string) error {
	if got := lx.next(); got != tok {
		return fmt.Errorf("expected %q, got %q", tok, got)
	}
	return nil
}

func (lx *lexer) expectAt() (string, error) {
	t := lx.next()
	if !strings.HasPrefix(t, "@") || len(t) == 1 {
		return "", fmt.Errorf("expected @name, got %q", t)
	}
	return t[1:], nil
}

func (lx *lexer) expectPercent() (string, error) {
	t := lx.next()
	if !strings.HasPrefix(t, "%") || len(t) == 1 {
		return "", fmt.Errorf("expected %%name, got %q", t)
	}
	return t, nil
}

func (lx *lexer) expectInt() (int, error) {
	t := lx.next()
	n, err := strconv.Atoi(t)
	if err != nil {
		return 0, fmt.Errorf("expected integer, got %q", t)
	}
	return n, nil
}

func (lx *lexer) done() error {
	if lx.pos != len(lx.toks) {
		return fmt.Errorf("trailing tokens starting at %q", lx.peek())
	}
	return nil
}

func tokenize(line string) ([]string, error) {
	var toks []string
	i := 0
	for i < len(line) {
		c := line[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case strings.IndexByte("()[]{},:=*", c) >= 0:
			toks = append(toks, string(c))
			i++
		default:
			j := i
			for j < len(line) && strings.IndexByte(" \t()[]{},:=", line[j]) < 0 {
				j++
			}
			toks = append(toks, line[i:j])
			i = j
		}
	}
	return toks, nil
}

func parseType(lx *lexer) (*Type, error) {
	t := lx.next()
	switch {
	case t == "void":
		return VoidType, nil
	case t == "bool":
		return BoolType, nil
	case t == "int":
		return IntType, nil
	case t == "ptr":
		return PointerTo(nil), nil
	case t == "*":
		elem, err := parseType(lx)
		if err != nil {
			return nil, err
		}
		return PointerTo(elem), nil
	case t == "(":
		var fields []*Type
		for lx.peek() != ")" {
			if len(fields) > 0 {
				if err := lx.expect(","); err != nil {
					return nil, err
				}
			}
			f, err := parseType(lx)
			if err != nil {
				return nil, err
			}
			fields = append(fields, f)
		}
		lx.next() // ")"
		return TupleOf(fields...), nil
	case len(t) > 1 && (t[0] == 'i' || t[0] == 'u'):
		bits, err := strconv.Atoi(t[1:])
		if err != nil || bits <= 0 || bits > 64 {
			return nil, fmt.Errorf("bad type %q", t)
		}
		return MakeInt(bits, t[0] == 'i'), nil
	}
	return nil, fmt.Errorf("bad type %q", t)
}

func parseLiteral(lx *lexer, typ *Type) (constant.Value, error) {
	t := lx.next()
	switch {
	case t == "true":
		return constant.MakeBool(true), nil
	case t == "false":
		return constant.MakeBool(false), nil
	default:
		neg := false
		if t == "-" {
			neg = true
			t = lx.next()
		}
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad literal %q", t)
		}
		if neg {
			n = -n
		}
		return constant.MakeInt64(n), nil
	}
}
