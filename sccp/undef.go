package sccp

import (
	"go/constant"
	"go/token"

	"github.com/lir-project/lir/fold"
	"github.com/lir-project/lir/ir"
)

// ResolveUndefs breaks the stalemates the optimistic solver leaves behind:
// reachable instructions stuck at undefined because an operand never
// resolved, and branches whose condition never resolved, which keep their
// successors unreachable. It applies at most one repair, returning whether it
// did; the caller re-Solves and calls again until no repair is needed.
//
// Each repair commits an assumed value via markForcedConstant. The
// assumption must be one the instruction could genuinely produce, otherwise
// later evidence contradicts it and the value falls to overdefined instead
// of converging.
func (s *Solver) ResolveUndefs(fn *ir.Function) bool {
	for _, b := range fn.Blocks {
		if !s.executableBlocks[b] {
			continue
		}
		for _, v := range b.Instrs {
			if v == nil || v.Typ.IsVoid() {
				continue
			}
			if v.Typ.IsTuple() {
				// No repair rules produce tuple values; lower any
				// leftover undefined elements directly.
				changed := false
				for i := range v.Typ.Fields {
					if s.getStructValueState(v, i).isUndefined() {
						s.markStructOverdefined(v, i)
						changed = true
					}
				}
				if changed {
					return true
				}
				continue
			}
			if !s.getValueState(v).isUndefined() {
				continue
			}
			if s.resolveInstr(v) {
				return true
			}
		}
		if s.resolveTerminator(b) {
			return true
		}
	}
	return false
}

func (s *Solver) resolveInstr(v *ir.Value) bool {
	switch v.Op {
	case ir.OpUndef, ir.OpParam, ir.OpPhi:
		// Undef literals stay undefined; their users carry the rules.
		// Parameters resolve through call sites, phis through their
		// inputs and the branch repairs below.
		return false

	case ir.OpCast:
		// Converting undefined bits may as well produce zero.
		return s.forceZero(v)

	case ir.OpBinOp:
		a := s.getValueState(v.Args[0])
		b := s.getValueState(v.Args[1])
		switch v.Token {
		case token.MUL, token.AND:
			// undef * X and undef & X are zero, since X could be.
			// Both sides undefined stays undefined.
			if a.isUndefined() && b.isUndefined() {
				return false
			}
			return s.forceZero(v)
		case token.OR:
			if a.isUndefined() && b.isUndefined() {
				return false
			}
			return s.forceAllOnes(v)
		case token.XOR:
			// undef ^ undef is zero; one-sided undef stays undefined.
			if a.isUndefined() && b.isUndefined() {
				return s.forceZero(v)
			}
			return false
		case token.QUO, token.REM:
			// X / undef stays undefined: the divisor could be zero and
			// the operation never produce a value. undef / X is zero.
			if b.isUndefined() {
				return false
			}
			return s.forceZero(v)
		case token.SHL, token.SHR:
			if v.Token == token.SHR && v.Typ.IsInteger() && v.Typ.Signed {
				// Arithmetic shift: an undefined amount may as well be
				// zero, which passes a constant operand through intact.
				// An undefined shifted value stays undefined.
				if a.isUndefined() {
					return false
				}
				if a.isConstant() {
					s.markForcedConstant(v, a.constVal())
					return true
				}
				s.markOverdefined(v)
				return true
			}
			// X shifted by undef stays undefined: the amount could be
			// out of range. undef shifted by a known amount is zero.
			if b.isUndefined() {
				return false
			}
			return s.forceZero(v)
		default:
			// add and sub propagate undefined
			return false
		}

	case ir.OpSelect:
		cond := s.getValueState(v.Args[0])
		a1 := s.getValueState(v.Args[1])
		a2 := s.getValueState(v.Args[2])
		if a1.isUndefined() && a2.isUndefined() {
			return false
		}
		var arm latticeValue
		if cond.isUndefined() {
			// Free to pick either arm; prefer a defined one, but two
			// disagreeing constants give the select no single value.
			switch {
			case a1.isConstant() && a2.isConstant():
				if !a1.constVal().Equal(a2.constVal()) {
					s.markOverdefined(v)
					return true
				}
				arm = a1
			case a1.isConstant():
				arm = a1
			default:
				arm = a2
			}
		} else {
			arm = a1
			if arm.isUndefined() {
				arm = a2
			}
		}
		if arm.isConstant() {
			s.markForcedConstant(v, arm.constVal())
		} else {
			s.markOverdefined(v)
		}
		return true

	case ir.OpLoad:
		// A load still undefined here read an undefined cell; letting it
		// stay undefined is fine, its users decide.
		return false

	case ir.OpExtract:
		// resolves when its source tuple's elements do
		return false

	case ir.OpCall, ir.OpInvoke:
		// Undefined arguments held back folding; there is no principled
		// assumed result for an arbitrary callee.
		s.markOverdefined(v)
		return true

	default:
		s.markOverdefined(v)
		return true
	}
}

func (s *Solver) resolveTerminator(b *ir.BasicBlock) bool {
	term := b.Control()
	switch term.Op {
	case ir.OpIf:
		cond := term.Args[0]
		if !s.getValueState(cond).isUndefined() {
			return false
		}
		// A branch on undefined keeps both successors unreachable
		// forever. Commit the condition to false.
		s.markForcedConstant(cond, literal(constant.MakeBool(false)))
		return true
	case ir.OpSwitch:
		disc := term.Args[0]
		if !s.getValueState(disc).isUndefined() {
			return false
		}
		if len(term.Cases) == 0 {
			s.markEdgeExecutable(b, b.Succs[0])
			return true
		}
		// Commit the discriminant to the first case value.
		s.markForcedConstant(disc, literal(term.Cases[0]))
		return true
	}
	return false
}

func (s *Solver) forceZero(v *ir.Value) bool {
	z, ok := fold.Zero(v.Typ)
	if !ok {
		s.markOverdefined(v)
		return true
	}
	s.markForcedConstant(v, literal(z))
	return true
}

func (s *Solver) forceAllOnes(v *ir.Value) bool {
	if v.Typ.IsBool() {
		s.markForcedConstant(v, literal(constant.MakeBool(true)))
		return true
	}
	z, ok := fold.AllOnes(v.Typ)
	if !ok {
		s.markOverdefined(v)
		return true
	}
	s.markForcedConstant(v, literal(z))
	return true
}
