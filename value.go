package lisp

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Value. The VM stack, environment slots and
// code operands are all plain Values; Kind lets callers switch on the active
// variant without a type assertion.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindSymbol
	KindCons
	KindVector
	KindClosure
	KindReturnAddress
	KindObject
	kindEOF // internal: parser end-of-input sentinel, never seen by compiler/VM
)

// Value is the uniform runtime representation: nil, bool, int, float and
// string are held inline; symbol, cons, vector, closure, return-address and
// opaque host objects are held by reference in ref.
type Value struct {
	kind Kind
	b    bool
	i    int32
	f    float32
	s    string
	ref  interface{}
}

var Nil = Value{kind: KindNil}

// eofValue is returned by Parser.ParseNext when no complete form is
// available yet; it is never a legal value anywhere else in the pipeline.
var eofValue = Value{kind: kindEOF}

func Bool(b bool) Value    { return Value{kind: KindBool, b: b} }
func Int(i int32) Value    { return Value{kind: KindInt, i: i} }
func Float(f float32) Value { return Value{kind: KindFloat, f: f} }
func String(s string) Value { return Value{kind: KindString, s: s} }

func SymbolValue(s *Symbol) Value   { return Value{kind: KindSymbol, ref: s} }
func ConsValue(c *Cons) Value       { return Value{kind: KindCons, ref: c} }
func VectorValue(v *Vector) Value   { return Value{kind: KindVector, ref: v} }
func ClosureValue(c *Closure) Value { return Value{kind: KindClosure, ref: c} }
func ReturnAddressValue(r *ReturnAddress) Value {
	return Value{kind: KindReturnAddress, ref: r}
}
func ObjectValue(o interface{}) Value { return Value{kind: KindObject, ref: o} }

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNil() bool { return v.kind == KindNil }
func (v Value) IsEOF() bool { return v.kind == kindEOF }

func (v Value) AsBool() bool    { return v.b }
func (v Value) AsInt() int32    { return v.i }
func (v Value) AsFloat() float32 { return v.f }
func (v Value) AsString() string { return v.s }
func (v Value) AsSymbol() *Symbol { s, _ := v.ref.(*Symbol); return s }
func (v Value) AsCons() *Cons     { c, _ := v.ref.(*Cons); return c }
func (v Value) AsVector() *Vector { vec, _ := v.ref.(*Vector); return vec }
func (v Value) AsClosure() *Closure { c, _ := v.ref.(*Closure); return c }
func (v Value) AsReturnAddress() *ReturnAddress {
	r, _ := v.ref.(*ReturnAddress)
	return r
}
func (v Value) AsObject() interface{} { return v.ref }

// Truthy implements the spec's truthiness cast: only #f and nil are false.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNil:
		return false
	case KindBool:
		return v.b
	default:
		return true
	}
}

// Equal implements the spec's equality contract: same variant; strings by
// content; numbers by bit pattern within variant; references by identity.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNil:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return math.Float32bits(v.f) == math.Float32bits(o.f)
	case KindString:
		return v.s == o.s
	default:
		return v.ref == o.ref
	}
}

// Cons is the pair (first . rest). A nil-terminated chain of Cons is a List;
// a chain whose final rest is non-nil and non-cons is a dotted pair.
type Cons struct {
	First Value
	Rest  Value
}

// Vector is a mutable, indexable sequence of Values.
type Vector struct {
	Items []Value
}

// List builds a proper nil-terminated list from items, right to left.
func List(items ...Value) Value {
	out := Nil
	for i := len(items) - 1; i >= 0; i-- {
		out = ConsValue(&Cons{First: items[i], Rest: out})
	}
	return out
}

// DottedList builds (items[0] items[1] ... . tail).
func DottedList(tail Value, items ...Value) Value {
	out := tail
	for i := len(items) - 1; i >= 0; i-- {
		out = ConsValue(&Cons{First: items[i], Rest: out})
	}
	return out
}

// ListLength returns the number of Cons cells in a proper or dotted chain
// and whether the chain ended nil-terminated (proper).
func ListLength(v Value) (n int, proper bool) {
	for v.Kind() == KindCons {
		n++
		v = v.AsCons().Rest
	}
	return n, v.IsNil()
}

// ListToSlice collects a proper list's elements. The tail (nil for a proper
// list, the dotted final value otherwise) is returned separately.
func ListToSlice(v Value) (items []Value, tail Value) {
	for v.Kind() == KindCons {
		c := v.AsCons()
		items = append(items, c.First)
		v = c.Rest
	}
	return items, v
}

// String renders v in the bit-exact round-trippable printer format from
// spec section 6 ("Value printer").
func (v Value) String() string {
	var sb strings.Builder
	writeValue(&sb, v)
	return sb.String()
}

func writeValue(sb *strings.Builder, v Value) {
	switch v.kind {
	case KindNil:
		sb.WriteString("()")
	case KindBool:
		if v.b {
			sb.WriteString("#t")
		} else {
			sb.WriteString("#f")
		}
	case KindInt:
		sb.WriteString(strconv.FormatInt(int64(v.i), 10))
	case KindFloat:
		writeFloat(sb, v.f)
	case KindString:
		writeStringLiteral(sb, v.s)
	case KindSymbol:
		sb.WriteString(v.AsSymbol().String())
	case KindCons:
		writeCons(sb, v.AsCons())
	case KindVector:
		writeVector(sb, v.AsVector())
	case KindClosure:
		writeClosure(sb, v.AsClosure())
	case KindReturnAddress:
		r := v.AsReturnAddress()
		sb.WriteString(fmt.Sprintf("[%s/%d]", r.Label, r.PC))
	case KindObject:
		sb.WriteString(fmt.Sprintf("[Native %T %v]", v.ref, v.ref))
	default:
		sb.WriteString("()")
	}
}

func writeFloat(sb *strings.Builder, f float32) {
	s := strconv.FormatFloat(float64(f), 'g', -1, 32)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	sb.WriteString(s)
}

func writeStringLiteral(sb *strings.Builder, s string) {
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('"')
}

func writeCons(sb *strings.Builder, c *Cons) {
	sb.WriteByte('(')
	writeValue(sb, c.First)
	rest := c.Rest
	for rest.Kind() == KindCons {
		rc := rest.AsCons()
		sb.WriteByte(' ')
		writeValue(sb, rc.First)
		rest = rc.Rest
	}
	if !rest.IsNil() {
		sb.WriteString(" . ")
		writeValue(sb, rest)
	}
	sb.WriteByte(')')
}

func writeVector(sb *strings.Builder, vec *Vector) {
	sb.WriteString("[Vector")
	for _, it := range vec.Items {
		sb.WriteByte(' ')
		writeValue(sb, it)
	}
	sb.WriteByte(']')
}

func writeClosure(sb *strings.Builder, c *Closure) {
	if c.Name != "" {
		fmt.Fprintf(sb, "[Closure/%s]", c.Name)
		return
	}
	sb.WriteString("[Closure]")
}
