package tinywasm

import (
	"github.com/wippyai/tinywasm-go/api"
	"github.com/wippyai/tinywasm-go/internal/coro"
	"github.com/wippyai/tinywasm-go/internal/wasmruntime"
)

// Primitive is the set of Go types the typed facade maps onto wasm value
// types (spec §4.5: "tuples of primitive value types map to/from the
// untyped vector with per-position type checks"). References and v128 stay
// on the untyped Function/HostModuleBuilder surface.
type Primitive interface {
	~int32 | ~int64 | ~float32 | ~float64
}

func kindOf[T Primitive]() api.ValueType {
	var zero T
	switch any(zero).(type) {
	case int32:
		return api.ValueTypeI32
	case int64:
		return api.ValueTypeI64
	case float32:
		return api.ValueTypeF32
	default:
		return api.ValueTypeF64
	}
}

func valueOf[T Primitive](v T) api.Value {
	switch x := any(v).(type) {
	case int32:
		return api.I32Value(x)
	case int64:
		return api.I64Value(x)
	case float32:
		return api.F32Value(x)
	default:
		return api.F64Value(any(v).(float64))
	}
}

// valueTo converts an untyped api.Value back to T, surfacing
// InvalidHostFnReturn (spec §4.5) when the value's actual Kind does not
// match T's wasm value type.
func valueTo[T Primitive](v api.Value) (T, error) {
	want := kindOf[T]()
	if v.Kind != want {
		var zero T
		return zero, wasmruntime.InvalidHostFnReturnErr(want.String(), v.Kind.String())
	}
	switch want {
	case api.ValueTypeI32:
		return any(v.I32()).(T), nil
	case api.ValueTypeI64:
		return any(v.I64()).(T), nil
	case api.ValueTypeF32:
		return any(v.F32()).(T), nil
	default:
		return any(v.F64()).(T), nil
	}
}

// RegisterTyped0 registers a host function taking no params and returning
// one primitive result, built atop NewFunction's untyped vector (Go
// disallows generic methods, so the typed facade lives as free functions).
func RegisterTyped0[R Primitive](b *HostModuleBuilder, name string, fn func(ctx *HostContext) (R, error)) *HostModuleBuilder {
	return b.NewFunction(name, nil, []api.ValueType{kindOf[R]()}, func(ctx *HostContext, params []api.Value) ([]api.Value, error) {
		r, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return []api.Value{valueOf(r)}, nil
	})
}

// RegisterTyped0Void registers a host function taking no params and
// returning nothing but an error.
func RegisterTyped0Void(b *HostModuleBuilder, name string, fn func(ctx *HostContext) error) *HostModuleBuilder {
	return b.NewFunction(name, nil, nil, func(ctx *HostContext, params []api.Value) ([]api.Value, error) {
		return nil, fn(ctx)
	})
}

// RegisterTyped1 registers a host function of one primitive param and one
// primitive result.
func RegisterTyped1[P0, R Primitive](b *HostModuleBuilder, name string, fn func(ctx *HostContext, p0 P0) (R, error)) *HostModuleBuilder {
	return b.NewFunction(name, []api.ValueType{kindOf[P0]()}, []api.ValueType{kindOf[R]()}, func(ctx *HostContext, params []api.Value) ([]api.Value, error) {
		p0, err := valueTo[P0](params[0])
		if err != nil {
			return nil, err
		}
		r, err := fn(ctx, p0)
		if err != nil {
			return nil, err
		}
		return []api.Value{valueOf(r)}, nil
	})
}

// RegisterTyped1Void registers a host function of one primitive param and
// no result but an error.
func RegisterTyped1Void[P0 Primitive](b *HostModuleBuilder, name string, fn func(ctx *HostContext, p0 P0) error) *HostModuleBuilder {
	return b.NewFunction(name, []api.ValueType{kindOf[P0]()}, nil, func(ctx *HostContext, params []api.Value) ([]api.Value, error) {
		p0, err := valueTo[P0](params[0])
		if err != nil {
			return nil, err
		}
		return nil, fn(ctx, p0)
	})
}

// RegisterTyped2 registers a host function of two primitive params and one
// primitive result.
func RegisterTyped2[P0, P1, R Primitive](b *HostModuleBuilder, name string, fn func(ctx *HostContext, p0 P0, p1 P1) (R, error)) *HostModuleBuilder {
	return b.NewFunction(name, []api.ValueType{kindOf[P0](), kindOf[P1]()}, []api.ValueType{kindOf[R]()}, func(ctx *HostContext, params []api.Value) ([]api.Value, error) {
		p0, err := valueTo[P0](params[0])
		if err != nil {
			return nil, err
		}
		p1, err := valueTo[P1](params[1])
		if err != nil {
			return nil, err
		}
		r, err := fn(ctx, p0, p1)
		if err != nil {
			return nil, err
		}
		return []api.Value{valueOf(r)}, nil
	})
}

// RegisterTyped2Void registers a host function of two primitive params and
// no result but an error.
func RegisterTyped2Void[P0, P1 Primitive](b *HostModuleBuilder, name string, fn func(ctx *HostContext, p0 P0, p1 P1) error) *HostModuleBuilder {
	return b.NewFunction(name, []api.ValueType{kindOf[P0](), kindOf[P1]()}, nil, func(ctx *HostContext, params []api.Value) ([]api.Value, error) {
		p0, err := valueTo[P0](params[0])
		if err != nil {
			return nil, err
		}
		p1, err := valueTo[P1](params[1])
		if err != nil {
			return nil, err
		}
		return nil, fn(ctx, p0, p1)
	})
}

// CallTyped0 calls an exported function of no args, unpacking its single
// primitive result (spec §4.5's typed facade, call side).
func CallTyped0[R Primitive](f *Function) (R, *SuspendedCall, coro.SuspendReason, error) {
	var zero R
	results, sc, reason, err := f.Call()
	if err != nil || sc != nil {
		return zero, sc, reason, err
	}
	r, err := valueTo[R](results[0])
	return r, nil, coro.SuspendReason{}, err
}

// CallTyped0Void calls an exported function of no args and no result.
func CallTyped0Void(f *Function) (*SuspendedCall, coro.SuspendReason, error) {
	_, sc, reason, err := f.Call()
	return sc, reason, err
}

// CallTyped1 calls an exported function of one primitive arg, unpacking its
// single primitive result.
func CallTyped1[P0, R Primitive](f *Function, p0 P0) (R, *SuspendedCall, coro.SuspendReason, error) {
	var zero R
	results, sc, reason, err := f.Call(valueOf(p0))
	if err != nil || sc != nil {
		return zero, sc, reason, err
	}
	r, err := valueTo[R](results[0])
	return r, nil, coro.SuspendReason{}, err
}

// CallTyped1Void calls an exported function of one primitive arg and no
// result.
func CallTyped1Void[P0 Primitive](f *Function, p0 P0) (*SuspendedCall, coro.SuspendReason, error) {
	_, sc, reason, err := f.Call(valueOf(p0))
	return sc, reason, err
}

// CallTyped2 calls an exported function of two primitive args, unpacking
// its single primitive result.
func CallTyped2[P0, P1, R Primitive](f *Function, p0 P0, p1 P1) (R, *SuspendedCall, coro.SuspendReason, error) {
	var zero R
	results, sc, reason, err := f.Call(valueOf(p0), valueOf(p1))
	if err != nil || sc != nil {
		return zero, sc, reason, err
	}
	r, err := valueTo[R](results[0])
	return r, nil, coro.SuspendReason{}, err
}

// CallTyped2Void calls an exported function of two primitive args and no
// result.
func CallTyped2Void[P0, P1 Primitive](f *Function, p0 P0, p1 P1) (*SuspendedCall, coro.SuspendReason, error) {
	_, sc, reason, err := f.Call(valueOf(p0), valueOf(p1))
	return sc, reason, err
}
