package ir

import "fmt"

// BasicBlock is an ordered sequence of Values ending in exactly one
// terminator. Preds and Succs describe the control-flow graph; for OpIf,
// OpSwitch, OpInvoke and OpIndirectJmp terminators the successor order is
// significant (see the Op documentation).
type BasicBlock struct {
	Index  int
	Name   string
	Instrs []*Value
	Preds  []*BasicBlock
	Succs  []*BasicBlock

	parent *Function
	gaps   int // number of nil'd entries in Instrs
}

// Parent returns the function that contains block b.
func (b *BasicBlock) Parent() *Function { return b.parent }

func (b *BasicBlock) String() string {
	if b.Name != "" {
		return b.Name
	}
	return fmt.Sprintf("b%d", b.Index)
}

// Control returns the block's terminator, or nil if the block is empty or
// still under construction.
func (b *BasicBlock) Control() *Value {
	for i := len(b.Instrs) - 1; i >= 0; i-- {
		if v := b.Instrs[i]; v != nil {
			if v.Op.IsTerminator() {
				return v
			}
			return nil
		}
	}
	return nil
}

// Phis returns the prefix of b.Instrs containing all the block's phis.
func (b *BasicBlock) Phis() []*Value {
	for i, v := range b.Instrs {
		if v == nil || v.Op != OpPhi {
			return b.Instrs[:i]
		}
	}
	return b.Instrs
}

// predIndex returns the i such that b.Preds[i] == c or panics if there is
// none.
func (b *BasicBlock) predIndex(c *BasicBlock) int {
	for i, pred := range b.Preds {
		if pred == c {
			return i
		}
	}
	panic(fmt.Sprintf("no edge %s -> %s", c, b))
}

// succIndex returns the i such that b.Succs[i] == c, or -1.
func (b *BasicBlock) succIndex(c *BasicBlock) int {
	for i, succ := range b.Succs {
		if succ == c {
			return i
		}
	}
	return -1
}

// HasEdgeTo reports whether c is a successor of b.
func (b *BasicBlock) HasEdgeTo(c *BasicBlock) bool { return b.succIndex(c) >= 0 }

// AddEdgeTo adds a control-flow edge b -> c.
func (b *BasicBlock) AddEdgeTo(c *BasicBlock) {
	b.Succs = append(b.Succs, c)
	c.Preds = append(c.Preds, b)
}

// RemovePred removes all occurrences of p in b's predecessor list and strikes
// the matching phi edges. The phi edge order must be preserved.
func (b *BasicBlock) RemovePred(p *BasicBlock) {
	phis := b.Phis()

	j := 0
	for i, pred := range b.Preds {
		if pred != p {
			b.Preds[j] = b.Preds[i]
			for _, phi := range phis {
				phi.Args[j] = phi.Args[i]
			}
			j++
		} else {
			for _, phi := range phis {
				if dropped := phi.Args[i]; dropped != nil {
					b.parent.removeUse(dropped, phi)
				}
			}
		}
	}
	for i := j; i < len(b.Preds); i++ {
		b.Preds[i] = nil
		for _, phi := range phis {
			phi.Args[i] = nil
		}
	}
	b.Preds = b.Preds[:j]
	for _, phi := range phis {
		phi.Args = phi.Args[:j]
	}
}

// replaceSucc replaces all occurrences of p in b's successor list with q.
func (b *BasicBlock) replaceSucc(p, q *BasicBlock) {
	for i, succ := range b.Succs {
		if succ == p {
			b.Succs[i] = q
		}
	}
}

// killInstr tombstones v's slot in b.Instrs. The caller is responsible for
// detaching v's operands (Function.kill does both).
func (b *BasicBlock) killInstr(v *Value) {
	for i, instr := range b.Instrs {
		if instr == v {
			b.Instrs[i] = nil
			b.gaps++
			return
		}
	}
	panic(fmt.Sprintf("%s not in block %s", v.Name(), b))
}

// compact squeezes the nil gaps out of b.Instrs.
func (b *BasicBlock) compact() {
	if b.gaps == 0 {
		return
	}
	j := 0
	for _, v := range b.Instrs {
		if v != nil {
			b.Instrs[j] = v
			j++
		}
	}
	for i := j; i < len(b.Instrs); i++ {
		b.Instrs[i] = nil
	}
	b.Instrs = b.Instrs[:j]
	b.gaps = 0
}
