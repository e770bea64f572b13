package interpreter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wippyai/tinywasm-go/api"
	"github.com/wippyai/tinywasm-go/internal/coro"
	"github.com/wippyai/tinywasm-go/internal/wasm"
	"github.com/wippyai/tinywasm-go/internal/wasmruntime"
)

func TestInvokeSimpleArithmetic(t *testing.T) {
	store := wasm.NewStore(nil)
	typeAddr := store.AddType(&wasm.FuncType{Results: []api.ValueType{api.ValueTypeI32}})

	body := wasm.NewFunctionBody([]wasm.Instruction{
		{Op: wasm.OpI32Const, I32: 2},
		{Op: wasm.OpI32Const, I32: 3},
		{Op: wasm.OpI32Add},
		{Op: wasm.OpEnd},
	})
	fn := &wasm.FunctionInstance{Kind: wasm.FuncKindWasm, Body: body, TypeAddr: typeAddr}
	mi := &wasm.ModuleInstance{}

	results, sr, _, err := Invoke(store, mi, fn, nil)
	require.NoError(t, err)
	require.Nil(t, sr)
	require.Len(t, results, 1)
	require.Equal(t, int32(5), results[0].I32())
}

// sumToFiveFn builds a loop that increments local 0 until it reaches 5,
// then returns it: a back-edge-bearing function used to exercise the
// suspend poll and Resume path.
func sumToFiveFn(store *wasm.Store) *wasm.FunctionInstance {
	typeAddr := store.AddType(&wasm.FuncType{
		Params:  []api.ValueType{api.ValueTypeI32},
		Results: []api.ValueType{api.ValueTypeI32},
	})
	body := wasm.NewFunctionBody([]wasm.Instruction{
		{Op: wasm.OpLoop},                 // 0
		{Op: wasm.OpLocalGet, Index: 0},   // 1
		{Op: wasm.OpI32Const, I32: 1},     // 2
		{Op: wasm.OpI32Add},               // 3
		{Op: wasm.OpLocalTee, Index: 0},   // 4
		{Op: wasm.OpI32Const, I32: 5},     // 5
		{Op: wasm.OpI32LtS},               // 6
		{Op: wasm.OpBrIf, Index: 0},       // 7
		{Op: wasm.OpLocalGet, Index: 0},   // 8
		{Op: wasm.OpEnd},                  // 9 closes loop
		{Op: wasm.OpEnd},                  // 10 function end
	})
	return &wasm.FunctionInstance{
		Kind:     wasm.FuncKindWasm,
		Body:     body,
		Locals:   []api.ValueType{api.ValueTypeI32},
		TypeAddr: typeAddr,
	}
}

func TestInvokeLoopBackEdgeCompletesWithoutSuspend(t *testing.T) {
	store := wasm.NewStore(nil)
	fn := sumToFiveFn(store)
	mi := &wasm.ModuleInstance{}

	results, sr, _, err := Invoke(store, mi, fn, []api.Value{api.I32Value(0)})
	require.NoError(t, err)
	require.Nil(t, sr)
	require.Equal(t, int32(5), results[0].I32())
}

func TestInvokeSuspendsOnStopFlagAndResumes(t *testing.T) {
	store := wasm.NewStore(nil)
	fn := sumToFiveFn(store)
	mi := &wasm.ModuleInstance{}

	store.Suspend.SetStopFlag(true)
	results, sr, reason, err := Invoke(store, mi, fn, []api.Value{api.I32Value(0)})
	require.NoError(t, err)
	require.Nil(t, results)
	require.NotNil(t, sr)
	require.Equal(t, coro.KindFlag, reason.Kind)
	require.False(t, reason.RequiresResumeArgument())
	require.Equal(t, store.ID, sr.StoreID())

	store.Suspend.SetStopFlag(false)
	results, sr2, _, err := Resume(store, sr, nil)
	require.NoError(t, err)
	require.Nil(t, sr2)
	require.Equal(t, int32(5), results[0].I32())
}

func TestResumeRejectsCrossStoreRuntime(t *testing.T) {
	storeA := wasm.NewStore(nil)
	fn := sumToFiveFn(storeA)
	mi := &wasm.ModuleInstance{}

	storeA.Suspend.SetStopFlag(true)
	_, sr, _, err := Invoke(storeA, mi, fn, []api.Value{api.I32Value(0)})
	require.NoError(t, err)
	require.NotNil(t, sr)

	storeB := wasm.NewStore(nil)
	_, _, _, err = Resume(storeB, sr, nil)
	require.Error(t, err)
	embErr, ok := err.(*wasmruntime.EmbedderError)
	require.True(t, ok)
	require.Equal(t, wasmruntime.InvalidStore, embErr.Kind)
}

func TestResumeRejectsResumeArgumentForNonYieldSuspension(t *testing.T) {
	store := wasm.NewStore(nil)
	fn := sumToFiveFn(store)
	mi := &wasm.ModuleInstance{}

	store.Suspend.SetStopFlag(true)
	_, sr, reason, err := Invoke(store, mi, fn, []api.Value{api.I32Value(0)})
	require.NoError(t, err)
	require.NotNil(t, sr)
	require.False(t, reason.RequiresResumeArgument())

	_, _, _, err = Resume(store, sr, int32(1))
	require.Error(t, err)
	embErr, ok := err.(*wasmruntime.EmbedderError)
	require.True(t, ok)
	require.Equal(t, wasmruntime.InvalidResumeArgument, embErr.Kind)
}

func TestResumeRejectsAlreadyFinishedRuntime(t *testing.T) {
	store := wasm.NewStore(nil)
	fn := sumToFiveFn(store)
	mi := &wasm.ModuleInstance{}

	store.Suspend.SetStopFlag(true)
	_, sr, _, err := Invoke(store, mi, fn, []api.Value{api.I32Value(0)})
	require.NoError(t, err)
	require.NotNil(t, sr)

	store.Suspend.SetStopFlag(false)
	results, sr2, _, err := Resume(store, sr, nil)
	require.NoError(t, err)
	require.Nil(t, sr2)
	require.Equal(t, int32(5), results[0].I32())

	_, _, _, err = Resume(store, sr, nil)
	require.Error(t, err)
	embErr, ok := err.(*wasmruntime.EmbedderError)
	require.True(t, ok)
	require.Equal(t, wasmruntime.InvalidResume, embErr.Kind)
}

// fakeYieldState is a HostCoroState that finishes on its first resume,
// doubling whatever int32 argument it is given.
type fakeYieldState struct{}

func (s *fakeYieldState) Resume(ctx any, arg any) (coro.ResumeResult[[]api.Value], error) {
	n := arg.(int32)
	return coro.Done[[]api.Value]([]api.Value{api.I32Value(n * 2)}), nil
}

func TestInvokeHostCoroutineYieldAndResumeWithArgument(t *testing.T) {
	store := wasm.NewStore(nil)

	hostTypeAddr := store.AddType(&wasm.FuncType{Results: []api.ValueType{api.ValueTypeI32}})
	hostFn := &wasm.FunctionInstance{
		Kind:      wasm.FuncKindHost,
		Flavor:    wasm.HostFlavorCoro,
		Signature: store.Types[hostTypeAddr],
		Coro: func(ctx *wasm.FuncContext, params []api.Value) (coro.PotentialCoroCallResult[[]api.Value, coro.HostCoroState], error) {
			return coro.Suspended[[]api.Value, coro.HostCoroState](coro.Yield("need a number"), &fakeYieldState{}), nil
		},
	}
	hostAddr := store.AddFunction(hostFn)

	mi := &wasm.ModuleInstance{Funcs: []uint32{hostAddr}}
	mi.ID = store.AddModuleInstance(mi)
	hostFn.OwnerInstance = mi.ID

	callerTypeAddr := store.AddType(&wasm.FuncType{Results: []api.ValueType{api.ValueTypeI32}})
	body := wasm.NewFunctionBody([]wasm.Instruction{
		{Op: wasm.OpCall, Index: 0},
		{Op: wasm.OpEnd},
	})
	caller := &wasm.FunctionInstance{Kind: wasm.FuncKindWasm, Body: body, TypeAddr: callerTypeAddr}

	results, sr, reason, err := Invoke(store, mi, caller, nil)
	require.NoError(t, err)
	require.Nil(t, results)
	require.NotNil(t, sr)
	require.Equal(t, coro.KindYield, reason.Kind)
	require.True(t, reason.RequiresResumeArgument())
	require.Equal(t, "need a number", reason.Payload)

	results, sr2, _, err := Resume(store, sr, int32(21))
	require.NoError(t, err)
	require.Nil(t, sr2)
	require.Len(t, results, 1)
	require.Equal(t, int32(42), results[0].I32())
}

func TestResumeRejectsMissingResumeArgumentForYield(t *testing.T) {
	store := wasm.NewStore(nil)

	hostTypeAddr := store.AddType(&wasm.FuncType{Results: []api.ValueType{api.ValueTypeI32}})
	hostFn := &wasm.FunctionInstance{
		Kind:      wasm.FuncKindHost,
		Flavor:    wasm.HostFlavorCoro,
		Signature: store.Types[hostTypeAddr],
		Coro: func(ctx *wasm.FuncContext, params []api.Value) (coro.PotentialCoroCallResult[[]api.Value, coro.HostCoroState], error) {
			return coro.Suspended[[]api.Value, coro.HostCoroState](coro.Yield("need a number"), &fakeYieldState{}), nil
		},
	}
	hostAddr := store.AddFunction(hostFn)

	mi := &wasm.ModuleInstance{Funcs: []uint32{hostAddr}}
	mi.ID = store.AddModuleInstance(mi)
	hostFn.OwnerInstance = mi.ID

	callerTypeAddr := store.AddType(&wasm.FuncType{Results: []api.ValueType{api.ValueTypeI32}})
	body := wasm.NewFunctionBody([]wasm.Instruction{
		{Op: wasm.OpCall, Index: 0},
		{Op: wasm.OpEnd},
	})
	caller := &wasm.FunctionInstance{Kind: wasm.FuncKindWasm, Body: body, TypeAddr: callerTypeAddr}

	_, sr, reason, err := Invoke(store, mi, caller, nil)
	require.NoError(t, err)
	require.NotNil(t, sr)
	require.True(t, reason.RequiresResumeArgument())

	_, _, _, err = Resume(store, sr, nil)
	require.Error(t, err)
	embErr, ok := err.(*wasmruntime.EmbedderError)
	require.True(t, ok)
	require.Equal(t, wasmruntime.InvalidResumeArgument, embErr.Kind)
}

func TestInvokeTrapsOnUnreachable(t *testing.T) {
	store := wasm.NewStore(nil)
	typeAddr := store.AddType(&wasm.FuncType{})
	body := wasm.NewFunctionBody([]wasm.Instruction{
		{Op: wasm.OpUnreachable},
		{Op: wasm.OpEnd},
	})
	fn := &wasm.FunctionInstance{Kind: wasm.FuncKindWasm, Body: body, TypeAddr: typeAddr}
	mi := &wasm.ModuleInstance{}

	_, sr, _, err := Invoke(store, mi, fn, nil)
	require.Nil(t, sr)
	trap, ok := err.(*wasmruntime.Trap)
	require.True(t, ok)
	require.Equal(t, wasmruntime.TrapUnreachable, trap.Kind)
}

func TestInvokeTrapsOnDivisionByZero(t *testing.T) {
	store := wasm.NewStore(nil)
	typeAddr := store.AddType(&wasm.FuncType{Results: []api.ValueType{api.ValueTypeI32}})
	body := wasm.NewFunctionBody([]wasm.Instruction{
		{Op: wasm.OpI32Const, I32: 1},
		{Op: wasm.OpI32Const, I32: 0},
		{Op: wasm.OpI32DivS},
		{Op: wasm.OpEnd},
	})
	fn := &wasm.FunctionInstance{Kind: wasm.FuncKindWasm, Body: body, TypeAddr: typeAddr}
	mi := &wasm.ModuleInstance{}

	_, sr, _, err := Invoke(store, mi, fn, nil)
	require.Nil(t, sr)
	trap, ok := err.(*wasmruntime.Trap)
	require.True(t, ok)
	require.Equal(t, wasmruntime.TrapDivisionByZero, trap.Kind)
}

func TestInvokeTrapsOnMemoryOutOfBounds(t *testing.T) {
	store := wasm.NewStore(nil)
	typeAddr := store.AddType(&wasm.FuncType{Results: []api.ValueType{api.ValueTypeI32}})
	memAddr := store.AddMemory(&wasm.MemoryInstance{Data: make([]byte, wasm.PageSize)})
	body := wasm.NewFunctionBody([]wasm.Instruction{
		{Op: wasm.OpI32Const, I32: int32(wasm.PageSize - 2)},
		{Op: wasm.OpI32Load},
		{Op: wasm.OpEnd},
	})
	fn := &wasm.FunctionInstance{Kind: wasm.FuncKindWasm, Body: body, TypeAddr: typeAddr}
	mi := &wasm.ModuleInstance{Memories: []uint32{memAddr}}

	_, sr, _, err := Invoke(store, mi, fn, nil)
	require.Nil(t, sr)
	trap, ok := err.(*wasmruntime.Trap)
	require.True(t, ok)
	require.Equal(t, wasmruntime.TrapMemoryOutOfBounds, trap.Kind)
}

func TestInvokeCallIndirectTypeMismatch(t *testing.T) {
	store := wasm.NewStore(nil)

	calleeTypeAddr := store.AddType(&wasm.FuncType{Results: []api.ValueType{api.ValueTypeI64}})
	calleeBody := wasm.NewFunctionBody([]wasm.Instruction{{Op: wasm.OpI64Const, I64: 1}, {Op: wasm.OpEnd}})
	calleeAddr := store.AddFunction(&wasm.FunctionInstance{Kind: wasm.FuncKindWasm, Body: calleeBody, TypeAddr: calleeTypeAddr})

	tableAddr := store.AddTable(&wasm.TableInstance{
		ElemType: api.ValueTypeFuncref,
		Elements: []api.Value{api.FuncRefValue(calleeAddr)},
	})

	expectedTypeAddr := store.AddType(&wasm.FuncType{Results: []api.ValueType{api.ValueTypeI32}})
	callerTypeAddr := store.AddType(&wasm.FuncType{Results: []api.ValueType{api.ValueTypeI32}})
	body := wasm.NewFunctionBody([]wasm.Instruction{
		{Op: wasm.OpI32Const, I32: 0}, // table index
		{Op: wasm.OpCallIndirect, Index: 0, Index2: 0},
		{Op: wasm.OpEnd},
	})
	fn := &wasm.FunctionInstance{Kind: wasm.FuncKindWasm, Body: body, TypeAddr: callerTypeAddr}
	mi := &wasm.ModuleInstance{
		Types:  []uint32{expectedTypeAddr},
		Tables: []uint32{tableAddr},
	}

	_, sr, _, err := Invoke(store, mi, fn, nil)
	require.Nil(t, sr)
	trap, ok := err.(*wasmruntime.Trap)
	require.True(t, ok)
	require.Equal(t, wasmruntime.TrapIndirectCallTypeMismatch, trap.Kind)
}

func TestInvokeCallIndirectUndefinedElement(t *testing.T) {
	store := wasm.NewStore(nil)
	tableAddr := store.AddTable(&wasm.TableInstance{ElemType: api.ValueTypeFuncref, Elements: []api.Value{}})
	expectedTypeAddr := store.AddType(&wasm.FuncType{})
	callerTypeAddr := store.AddType(&wasm.FuncType{})
	body := wasm.NewFunctionBody([]wasm.Instruction{
		{Op: wasm.OpI32Const, I32: 0},
		{Op: wasm.OpCallIndirect, Index: 0, Index2: 0},
		{Op: wasm.OpEnd},
	})
	fn := &wasm.FunctionInstance{Kind: wasm.FuncKindWasm, Body: body, TypeAddr: callerTypeAddr}
	mi := &wasm.ModuleInstance{Types: []uint32{expectedTypeAddr}, Tables: []uint32{tableAddr}}

	_, sr, _, err := Invoke(store, mi, fn, nil)
	require.Nil(t, sr)
	trap, ok := err.(*wasmruntime.Trap)
	require.True(t, ok)
	require.Equal(t, wasmruntime.TrapUndefinedElement, trap.Kind)
}

func TestInvokeCallIndirectUninitializedElement(t *testing.T) {
	store := wasm.NewStore(nil)
	tableAddr := store.AddTable(&wasm.TableInstance{
		ElemType: api.ValueTypeFuncref,
		Elements: []api.Value{api.NullFuncRef()},
	})
	expectedTypeAddr := store.AddType(&wasm.FuncType{})
	callerTypeAddr := store.AddType(&wasm.FuncType{})
	body := wasm.NewFunctionBody([]wasm.Instruction{
		{Op: wasm.OpI32Const, I32: 0},
		{Op: wasm.OpCallIndirect, Index: 0, Index2: 0},
		{Op: wasm.OpEnd},
	})
	fn := &wasm.FunctionInstance{Kind: wasm.FuncKindWasm, Body: body, TypeAddr: callerTypeAddr}
	mi := &wasm.ModuleInstance{Types: []uint32{expectedTypeAddr}, Tables: []uint32{tableAddr}}

	_, sr, _, err := Invoke(store, mi, fn, nil)
	require.Nil(t, sr)
	trap, ok := err.(*wasmruntime.Trap)
	require.True(t, ok)
	require.Equal(t, wasmruntime.TrapUninitializedElement, trap.Kind)
}

func TestInvokeCallIndirectSucceedsOnMatchingType(t *testing.T) {
	store := wasm.NewStore(nil)

	calleeTypeAddr := store.AddType(&wasm.FuncType{Results: []api.ValueType{api.ValueTypeI32}})
	calleeBody := wasm.NewFunctionBody([]wasm.Instruction{{Op: wasm.OpI32Const, I32: 99}, {Op: wasm.OpEnd}})
	calleeAddr := store.AddFunction(&wasm.FunctionInstance{Kind: wasm.FuncKindWasm, Body: calleeBody, TypeAddr: calleeTypeAddr})

	tableAddr := store.AddTable(&wasm.TableInstance{
		ElemType: api.ValueTypeFuncref,
		Elements: []api.Value{api.FuncRefValue(calleeAddr)},
	})

	expectedTypeAddr := store.AddType(&wasm.FuncType{Results: []api.ValueType{api.ValueTypeI32}})
	callerTypeAddr := store.AddType(&wasm.FuncType{Results: []api.ValueType{api.ValueTypeI32}})
	body := wasm.NewFunctionBody([]wasm.Instruction{
		{Op: wasm.OpI32Const, I32: 0},
		{Op: wasm.OpCallIndirect, Index: 0, Index2: 0},
		{Op: wasm.OpEnd},
	})
	fn := &wasm.FunctionInstance{Kind: wasm.FuncKindWasm, Body: body, TypeAddr: callerTypeAddr}
	mi := &wasm.ModuleInstance{Types: []uint32{expectedTypeAddr}, Tables: []uint32{tableAddr}}
	mi.ID = store.AddModuleInstance(mi)

	results, sr, _, err := Invoke(store, mi, fn, nil)
	require.NoError(t, err)
	require.Nil(t, sr)
	require.Equal(t, int32(99), results[0].I32())
}
