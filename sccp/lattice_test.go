package sccp

import (
	"go/constant"
	"testing"
)

func intConst(v int64) Const { return literal(constant.MakeInt64(v)) }

func TestLatticeTransitions(t *testing.T) {
	var lv latticeValue
	if !lv.isUndefined() {
		t.Fatalf("zero value is %s, want undefined", lv)
	}

	if !lv.markConstant(intConst(4)) {
		t.Errorf("markConstant on undefined reported no change")
	}
	if !lv.isConstant() || !lv.constVal().Equal(intConst(4)) {
		t.Errorf("after markConstant: %s", lv)
	}
	if lv.markConstant(intConst(4)) {
		t.Errorf("re-proving the same constant reported a change")
	}

	if !lv.markOverdefined() {
		t.Errorf("markOverdefined on constant reported no change")
	}
	if lv.markOverdefined() {
		t.Errorf("markOverdefined on overdefined reported a change")
	}
}

func TestLatticeForcedConstant(t *testing.T) {
	var lv latticeValue
	lv.markForcedConstant(intConst(0))
	if !lv.isConstant() {
		t.Fatalf("forced constant is %s, want constant", lv)
	}

	// Confirming a forced constant promotes it to a proven one.
	if !lv.markConstant(intConst(0)) {
		t.Errorf("confirming a forced constant reported no change")
	}
	if lv.kind != constantVal {
		t.Errorf("after confirmation: %s", lv)
	}

	// A contradicted forced constant falls to overdefined via merge.
	var forced latticeValue
	forced.markForcedConstant(intConst(0))
	if !merge(&forced, latticeValue{kind: constantVal, c: intConst(7)}) {
		t.Errorf("contradicting a forced constant reported no change")
	}
	if !forced.isOverdefined() {
		t.Errorf("contradicted forced constant is %s, want overdefined", forced)
	}

	// The same contradiction through a direct proof, not a merge.
	var proven latticeValue
	proven.markForcedConstant(intConst(0))
	if !proven.markConstant(intConst(7)) {
		t.Errorf("proving over a contradicting forced constant reported no change")
	}
	if !proven.isOverdefined() {
		t.Errorf("disproven forced constant is %s, want overdefined", proven)
	}
}

func TestLatticeConflictPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("proving conflicting constants did not panic")
		}
	}()
	var lv latticeValue
	lv.markConstant(intConst(1))
	lv.markConstant(intConst(2))
}

func TestMerge(t *testing.T) {
	over := latticeValue{kind: overdefined}
	c3 := latticeValue{kind: constantVal, c: intConst(3)}
	c4 := latticeValue{kind: constantVal, c: intConst(4)}

	tests := []struct {
		name    string
		dst     latticeValue
		other   latticeValue
		changed bool
		want    latticeValue
	}{
		{"undef+const", latticeValue{}, c3, true, c3},
		{"undef+undef", latticeValue{}, latticeValue{}, false, latticeValue{}},
		{"const+same", c3, c3, false, c3},
		{"const+different", c3, c4, true, over},
		{"const+undef", c3, latticeValue{}, false, c3},
		{"const+over", c3, over, true, over},
		{"over+const", over, c3, false, over},
	}
	for _, tt := range tests {
		dst := tt.dst
		if changed := merge(&dst, tt.other); changed != tt.changed {
			t.Errorf("%s: changed = %v, want %v", tt.name, changed, tt.changed)
		}
		if dst.String() != tt.want.String() {
			t.Errorf("%s: got %s, want %s", tt.name, dst, tt.want)
		}
	}
}

func TestConstEqual(t *testing.T) {
	if !intConst(5).Equal(intConst(5)) {
		t.Errorf("5 != 5")
	}
	if intConst(5).Equal(intConst(6)) {
		t.Errorf("5 == 6")
	}
	if !nullConst().Equal(nullConst()) {
		t.Errorf("null != null")
	}
	if nullConst().Equal(intConst(0)) {
		t.Errorf("null == 0")
	}
}
