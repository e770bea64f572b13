package api

import "math"

// Value is the tagged union described by spec §3: exactly one of the
// payload fields below is meaningful, selected by Kind. Numeric payloads
// are carried as raw bits so conversions are bit-exact; v128's second
// 64 bits live in hi.
type Value struct {
	Kind ValueType

	lo uint64 // i32 (zero-extended), i64, f32 bits, f64 bits, v128 low 64 bits
	hi uint64 // v128 high 64 bits

	ref      uint32 // funcref: store function address
	refValid bool   // false means the null funcref

	extern any // externref: host-opaque id, nil means the null externref
}

func I32Value(v int32) Value  { return Value{Kind: ValueTypeI32, lo: uint64(uint32(v))} }
func U32Value(v uint32) Value { return Value{Kind: ValueTypeI32, lo: uint64(v)} }
func I64Value(v int64) Value  { return Value{Kind: ValueTypeI64, lo: uint64(v)} }
func U64Value(v uint64) Value { return Value{Kind: ValueTypeI64, lo: v} }

func F32Value(v float32) Value {
	return Value{Kind: ValueTypeF32, lo: uint64(math.Float32bits(v))}
}

func F64Value(v float64) Value {
	return Value{Kind: ValueTypeF64, lo: math.Float64bits(v)}
}

func V128Value(lo, hi uint64) Value {
	return Value{Kind: ValueTypeV128, lo: lo, hi: hi}
}

// NullFuncRef is the default value of the funcref type.
func NullFuncRef() Value { return Value{Kind: ValueTypeFuncref} }

func FuncRefValue(addr uint32) Value {
	return Value{Kind: ValueTypeFuncref, ref: addr, refValid: true}
}

// NullExternRef is the default value of the externref type.
func NullExternRef() Value { return Value{Kind: ValueTypeExternref} }

func ExternRefValue(id any) Value {
	return Value{Kind: ValueTypeExternref, extern: id}
}

// DefaultValue returns the zero value for t: 0 for numerics, null for
// reference types.
func DefaultValue(t ValueType) Value {
	switch t {
	case ValueTypeFuncref:
		return NullFuncRef()
	case ValueTypeExternref:
		return NullExternRef()
	default:
		return Value{Kind: t}
	}
}

func (v Value) I32() int32     { return int32(uint32(v.lo)) }
func (v Value) U32() uint32    { return uint32(v.lo) }
func (v Value) I64() int64     { return int64(v.lo) }
func (v Value) U64() uint64    { return v.lo }
func (v Value) F32() float32   { return math.Float32frombits(uint32(v.lo)) }
func (v Value) F64() float64   { return math.Float64frombits(v.lo) }
func (v Value) V128() (lo, hi uint64) { return v.lo, v.hi }

// FuncRef returns the store address and whether it is non-null.
func (v Value) FuncRef() (addr uint32, ok bool) { return v.ref, v.refValid }

// ExternRef returns the host-opaque id and whether it is non-null.
func (v Value) ExternRef() (id any, ok bool) { return v.extern, v.extern != nil }

// IsNullRef reports whether v is a funcref/externref with no referent.
func (v Value) IsNullRef() bool {
	switch v.Kind {
	case ValueTypeFuncref:
		return !v.refValid
	case ValueTypeExternref:
		return v.extern == nil
	default:
		return false
	}
}

// LooselyEqual implements spec §3's float equality: two floats are loosely
// equal if both are NaN, or their bit patterns match exactly. Non-float
// kinds compare their raw bits/refs directly.
func LooselyEqual(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case ValueTypeF32:
		af, bf := a.F32(), b.F32()
		if isNaN32(af) && isNaN32(bf) {
			return true
		}
		return a.lo == b.lo
	case ValueTypeF64:
		af, bf := a.F64(), b.F64()
		if math.IsNaN(af) && math.IsNaN(bf) {
			return true
		}
		return a.lo == b.lo
	case ValueTypeFuncref:
		return a.refValid == b.refValid && (!a.refValid || a.ref == b.ref)
	case ValueTypeExternref:
		return a.extern == b.extern
	default:
		return a.lo == b.lo && a.hi == b.hi
	}
}

func isNaN32(f float32) bool { return f != f }
