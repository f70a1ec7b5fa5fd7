package ir

// This file defines the closed type set used by the IR. It is deliberately
// small: the analyses in this repository only need to distinguish booleans,
// sized integers, pointers and tuples.

import (
	"fmt"
	"strings"
)

type Kind uint8

const (
	Void Kind = iota
	Bool
	Int
	Pointer
	Tuple
)

type Type struct {
	Kind   Kind
	Bits   int  // Int only
	Signed bool // Int only
	Elem   *Type   // Pointer only
	Fields []*Type // Tuple only
}

var (
	VoidType = &Type{Kind: Void}
	BoolType = &Type{Kind: Bool}
	// IntType is the default 64-bit signed integer.
	IntType = &Type{Kind: Int, Bits: 64, Signed: true}
)

func MakeInt(bits int, signed bool) *Type {
	return &Type{Kind: Int, Bits: bits, Signed: signed}
}

func PointerTo(elem *Type) *Type {
	return &Type{Kind: Pointer, Elem: elem}
}

func TupleOf(fields ...*Type) *Type {
	return &Type{Kind: Tuple, Fields: fields}
}

func (t *Type) IsInteger() bool { return t != nil && t.Kind == Int }
func (t *Type) IsBool() bool    { return t != nil && t.Kind == Bool }
func (t *Type) IsPointer() bool { return t != nil && t.Kind == Pointer }
func (t *Type) IsTuple() bool   { return t != nil && t.Kind == Tuple }
func (t *Type) IsVoid() bool    { return t == nil || t.Kind == Void }

func (t *Type) Equal(o *Type) bool {
	if t == o {
		return true
	}
	if t == nil || o == nil || t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case Int:
		return t.Bits == o.Bits && t.Signed == o.Signed
	case Pointer:
		if t.Elem == nil || o.Elem == nil {
			return t.Elem == o.Elem
		}
		return t.Elem.Equal(o.Elem)
	case Tuple:
		if len(t.Fields) != len(o.Fields) {
			return false
		}
		for i := range t.Fields {
			if !t.Fields[i].Equal(o.Fields[i]) {
				return false
			}
		}
		return true
	}
	return true
}

func (t *Type) String() string {
	if t == nil {
		return "void"
	}
	switch t.Kind {
	case Void:
		return "void"
	case Bool:
		return "bool"
	case Int:
		if t.Signed {
			if t.Bits == 64 {
				return "int"
			}
			return fmt.Sprintf("i%d", t.Bits)
		}
		return fmt.Sprintf("u%d", t.Bits)
	case Pointer:
		if t.Elem == nil {
			return "ptr"
		}
		return "*" + t.Elem.String()
	case Tuple:
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			parts[i] = f.String()
		}
		return "(" + strings.Join(parts, ", ") + ")"
	}
	panic(fmt.Sprintf("unknown type kind %d", t.Kind))
}
