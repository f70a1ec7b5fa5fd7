package ir

// Printing of the textual IR form. The output of WriteProgram round-trips
// through Parse.

import (
	"fmt"
	"go/token"
	"io"
	"strings"
)

var binOpMnemonics = map[token.Token]string{
	token.ADD: "add",
	token.SUB: "sub",
	token.MUL: "mul",
	token.QUO: "div",
	token.REM: "rem",
	token.AND: "and",
	token.OR:  "or",
	token.XOR: "xor",
	token.SHL: "shl",
	token.SHR: "shr",
}

var cmpMnemonics = map[token.Token]string{
	token.EQL: "eq",
	token.NEQ: "ne",
	token.LSS: "lt",
	token.LEQ: "le",
	token.GTR: "gt",
	token.GEQ: "ge",
}

func operand(v *Value) string {
	if v == nil {
		return "<nil>"
	}
	return v.Name()
}

func operands(vs []*Value) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = operand(v)
	}
	return strings.Join(parts, ", ")
}

// String returns the printed instruction form of v, without a trailing
// newline.
func (v *Value) String() string {
	switch v.Op {
	case OpInvalid:
		return "<deleted>"
	case OpConst:
		return fmt.Sprintf("%s = const %s %s", v.Name(), v.Typ, v.Aux.ExactString())
	case OpNull:
		return fmt.Sprintf("%s = null %s", v.Name(), v.Typ)
	case OpUndef:
		return fmt.Sprintf("%s = undef %s", v.Name(), v.Typ)
	case OpParam:
		return fmt.Sprintf("%s = param %s", v.Name(), v.Typ)
	case OpGlobalAddr:
		return fmt.Sprintf("%s = global %s", v.Name(), v.Global)
	case OpFuncAddr:
		return fmt.Sprintf("%s = funcref %s", v.Name(), v.Callee)
	case OpPhi:
		var parts []string
		for i, pred := range v.block.Preds {
			parts = append(parts, fmt.Sprintf("%s: %s", pred, operand(v.Args[i])))
		}
		return fmt.Sprintf("%s = phi %s [%s]", v.Name(), v.Typ, strings.Join(parts, ", "))
	case OpBinOp:
		return fmt.Sprintf("%s = %s %s %s, %s", v.Name(), binOpMnemonics[v.Token], v.Typ, operand(v.Args[0]), operand(v.Args[1]))
	case OpCmp:
		return fmt.Sprintf("%s = %s %s, %s", v.Name(), cmpMnemonics[v.Token], operand(v.Args[0]), operand(v.Args[1]))
	case OpCast:
		return fmt.Sprintf("%s = %s %s %s", v.Name(), v.Cast, v.Typ, operand(v.Args[0]))
	case OpSelect:
		return fmt.Sprintf("%s = select %s %s, %s, %s", v.Name(), v.Typ, operand(v.Args[0]), operand(v.Args[1]), operand(v.Args[2]))
	case OpLoad:
		vol := ""
		if v.Volatile {
			vol = "volatile "
		}
		return fmt.Sprintf("%s = load %s%s %s", v.Name(), vol, v.Typ, operand(v.Args[0]))
	case OpStore:
		return fmt.Sprintf("store %s, %s", operand(v.Args[0]), operand(v.Args[1]))
	case OpFieldAddr:
		return fmt.Sprintf("%s = fieldaddr %s %s, %d", v.Name(), v.Typ, operand(v.Args[0]), v.Field)
	case OpAlloc:
		return fmt.Sprintf("%s = alloc %s", v.Name(), v.Typ.Elem)
	case OpVarArg:
		return fmt.Sprintf("%s = vararg %s", v.Name(), v.Typ)
	case OpCall, OpInvoke:
		var callee string
		args := v.Args
		if v.Callee != nil {
			callee = v.Callee.String()
		} else {
			callee = operand(v.Args[0])
			args = v.Args[1:]
		}
		var b strings.Builder
		if !v.Typ.IsVoid() {
			fmt.Fprintf(&b, "%s = ", v.Name())
		}
		fmt.Fprintf(&b, "%s", v.Op)
		if !v.Typ.IsVoid() {
			fmt.Fprintf(&b, " %s", v.Typ)
		}
		fmt.Fprintf(&b, " %s(%s)", callee, operands(args))
		if v.Op == OpInvoke {
			fmt.Fprintf(&b, ", %s, %s", v.block.Succs[0], v.block.Succs[1])
		}
		return b.String()
	case OpExtract:
		return fmt.Sprintf("%s = extract %s, %d", v.Name(), operand(v.Args[0]), v.Field)
	case OpMakeTuple:
		return fmt.Sprintf("%s = tuple %s %s", v.Name(), v.Typ, operands(v.Args))
	case OpJump:
		return fmt.Sprintf("jmp %s", v.block.Succs[0])
	case OpIf:
		return fmt.Sprintf("br %s, %s, %s", operand(v.Args[0]), v.block.Succs[0], v.block.Succs[1])
	case OpSwitch:
		var parts []string
		for i, c := range v.Cases {
			parts = append(parts, fmt.Sprintf("%s: %s", c.ExactString(), v.block.Succs[1+i]))
		}
		return fmt.Sprintf("switch %s, default %s [%s]", operand(v.Args[0]), v.block.Succs[0], strings.Join(parts, ", "))
	case OpIndirectJmp:
		var parts []string
		for _, s := range v.block.Succs {
			parts = append(parts, s.String())
		}
		return fmt.Sprintf("ijmp %s, [%s]", operand(v.Args[0]), strings.Join(parts, ", "))
	case OpReturn:
		if len(v.Args) == 0 {
			return "ret"
		}
		return fmt.Sprintf("ret %s", operand(v.Args[0]))
	case OpUnreachable:
		return "unreachable"
	case OpUnknown:
		return fmt.Sprintf("%s = unknown %s %s", v.Name(), v.Typ, operands(v.Args))
	}
	panic(fmt.Sprintf("cannot print op %d", v.Op))
}

// WriteFunction writes the textual form of f to w.
func WriteFunction(w io.Writer, f *Function) {
	var b strings.Builder
	if f.Linkage == Local {
		b.WriteString("local ")
	}
	if f.IsDeclaration() {
		b.WriteString("extern ")
	}
	b.WriteString("func ")
	b.WriteString(f.String())
	b.WriteByte('(')
	for i, p := range f.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s %s", p.Name(), p.Typ)
		if p.ByVal {
			b.WriteString(" byval")
		}
	}
	b.WriteByte(')')
	if !f.Results.IsVoid() {
		fmt.Fprintf(&b, " %s", f.Results)
	}
	if f.IsDeclaration() {
		fmt.Fprintln(w, b.String())
		return
	}
	fmt.Fprintf(w, "%s {\n", b.String())
	for _, blk := range f.Blocks {
		fmt.Fprintf(w, "%s:", blk)
		if len(blk.Preds) > 0 {
			var preds []string
			for _, p := range blk.Preds {
				preds = append(preds, p.String())
			}
			fmt.Fprintf(w, " ; preds: %s", strings.Join(preds, ", "))
		}
		fmt.Fprintln(w)
		for _, v := range blk.Instrs {
			if v == nil {
				continue
			}
			fmt.Fprintf(w, "\t%s\n", v)
		}
	}
	fmt.Fprintln(w, "}")
}

// WriteProgram writes the textual form of the whole program to w.
func WriteProgram(w io.Writer, p *Program) {
	for _, g := range p.Globals {
		var b strings.Builder
		if g.Linkage == Local {
			b.WriteString("local ")
		}
		if g.Immutable {
			b.WriteString("immutable ")
		}
		fmt.Fprintf(&b, "global %s %s", g, g.Typ)
		if g.InitUndef {
			b.WriteString(" = undef")
		} else if g.Init != nil {
			fmt.Fprintf(&b, " = %s", g.Init.ExactString())
		}
		fmt.Fprintln(w, b.String())
	}
	for i, f := range p.Functions {
		if i > 0 || len(p.Globals) > 0 {
			fmt.Fprintln(w)
		}
		WriteFunction(w, f)
	}
}
