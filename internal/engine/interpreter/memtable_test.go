package interpreter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wippyai/tinywasm-go/api"
	"github.com/wippyai/tinywasm-go/internal/wasm"
	"github.com/wippyai/tinywasm-go/internal/wasmruntime"
)

// TestOpMemoryInitTrapsAfterDataDrop exercises spec §3/§4.2: a dropped
// passive data segment behaves as zero-length for memory.init's bounds
// check, so a non-empty copy after data.drop must trap rather than copy
// stale bytes.
func TestOpMemoryInitTrapsAfterDataDrop(t *testing.T) {
	store := wasm.NewStore(nil)
	typeAddr := store.AddType(&wasm.FuncType{})
	memAddr := store.AddMemory(&wasm.MemoryInstance{Data: make([]byte, wasm.PageSize)})
	dataAddr := store.AddData(&wasm.DataInstance{Init: []byte{1, 2, 3, 4}})

	body := wasm.NewFunctionBody([]wasm.Instruction{
		{Op: wasm.OpDataDrop, Index: 0},
		{Op: wasm.OpI32Const, I32: 0}, // dst
		{Op: wasm.OpI32Const, I32: 0}, // src offset
		{Op: wasm.OpI32Const, I32: 1}, // n
		{Op: wasm.OpMemoryInit, Index: 0},
		{Op: wasm.OpEnd},
	})
	fn := &wasm.FunctionInstance{Kind: wasm.FuncKindWasm, Body: body, TypeAddr: typeAddr}
	mi := &wasm.ModuleInstance{Memories: []uint32{memAddr}, Datas: []uint32{dataAddr}}

	_, sr, _, err := Invoke(store, mi, fn, nil)
	require.Nil(t, sr)
	trap, ok := err.(*wasmruntime.Trap)
	require.True(t, ok)
	require.Equal(t, wasmruntime.TrapMemoryOutOfBounds, trap.Kind)
}

// TestOpMemoryInitWithZeroLengthAfterDropSucceeds confirms the dropped-as-
// zero-length rule only traps when n>0: a zero-length init is always a
// no-op, dropped or not.
func TestOpMemoryInitWithZeroLengthAfterDropSucceeds(t *testing.T) {
	store := wasm.NewStore(nil)
	typeAddr := store.AddType(&wasm.FuncType{})
	memAddr := store.AddMemory(&wasm.MemoryInstance{Data: make([]byte, wasm.PageSize)})
	dataAddr := store.AddData(&wasm.DataInstance{Init: []byte{1, 2, 3, 4}})

	body := wasm.NewFunctionBody([]wasm.Instruction{
		{Op: wasm.OpDataDrop, Index: 0},
		{Op: wasm.OpI32Const, I32: 0},
		{Op: wasm.OpI32Const, I32: 0},
		{Op: wasm.OpI32Const, I32: 0},
		{Op: wasm.OpMemoryInit, Index: 0},
		{Op: wasm.OpEnd},
	})
	fn := &wasm.FunctionInstance{Kind: wasm.FuncKindWasm, Body: body, TypeAddr: typeAddr}
	mi := &wasm.ModuleInstance{Memories: []uint32{memAddr}, Datas: []uint32{dataAddr}}

	_, sr, _, err := Invoke(store, mi, fn, nil)
	require.NoError(t, err)
	require.Nil(t, sr)
}

// TestOpTableInitTrapsAfterElemDrop mirrors the memory.init case for
// table.init against a dropped element segment.
func TestOpTableInitTrapsAfterElemDrop(t *testing.T) {
	store := wasm.NewStore(nil)
	typeAddr := store.AddType(&wasm.FuncType{})
	tableAddr := store.AddTable(&wasm.TableInstance{ElemType: api.ValueTypeFuncref, Elements: make([]api.Value, 4)})
	elemAddr := store.AddElement(&wasm.ElementInstance{
		ElemType:       api.ValueTypeFuncref,
		Init:           []uint32{0},
		FuncIndexValid: []bool{true},
	})

	body := wasm.NewFunctionBody([]wasm.Instruction{
		{Op: wasm.OpElemDrop, Index: 0},
		{Op: wasm.OpI32Const, I32: 0}, // dst
		{Op: wasm.OpI32Const, I32: 0}, // src offset
		{Op: wasm.OpI32Const, I32: 1}, // n
		{Op: wasm.OpTableInit, Index: 0, Index2: 0},
		{Op: wasm.OpEnd},
	})
	fn := &wasm.FunctionInstance{Kind: wasm.FuncKindWasm, Body: body, TypeAddr: typeAddr}
	mi := &wasm.ModuleInstance{Tables: []uint32{tableAddr}, Elements: []uint32{elemAddr}}

	_, sr, _, err := Invoke(store, mi, fn, nil)
	require.Nil(t, sr)
	trap, ok := err.(*wasmruntime.Trap)
	require.True(t, ok)
	require.Equal(t, wasmruntime.TrapTableOutOfBounds, trap.Kind)
}

// TestDoCallHostImmediateReturnTypeMismatchSurfacesInvalidHostFnReturn
// exercises checkHostResults directly against an immediate-flavor host
// function whose closure returns the wrong Kind for its declared result.
func TestDoCallHostImmediateReturnTypeMismatchSurfacesInvalidHostFnReturn(t *testing.T) {
	store := wasm.NewStore(nil)
	sig := &wasm.FuncType{Results: []api.ValueType{api.ValueTypeI32}}
	fn := &wasm.FunctionInstance{
		Kind:      wasm.FuncKindHost,
		Flavor:    wasm.HostFlavorImmediate,
		Signature: sig,
		Immediate: func(ctx *wasm.FuncContext, params []api.Value) ([]api.Value, error) {
			return []api.Value{api.F64Value(1)}, nil
		},
	}
	addr := store.AddFunction(fn)
	mi := &wasm.ModuleInstance{}
	mi.ID = store.AddModuleInstance(mi)
	fn.OwnerInstance = mi.ID

	fs := &FrameStack{}
	_, _, err := doCall(store, fs, addr)
	require.Error(t, err)
	embErr, ok := err.(*wasmruntime.EmbedderError)
	require.True(t, ok)
	require.Equal(t, wasmruntime.InvalidHostFnReturn, embErr.Kind)
}
