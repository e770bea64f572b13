package interpreter_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	tinywasm "github.com/wippyai/tinywasm-go"
	"github.com/wippyai/tinywasm-go/api"
	"github.com/wippyai/tinywasm-go/internal/wasm"
)

// TestHostFunctionReentersStoreThroughFunctionHandle: a host function
// looks up a tinywasm.Function handle through HostContext.Instance() and
// calls back into the same store mid-invocation. The callback's own
// Store() must match the store it was invoked against, and the re-entrant
// call must observe and mutate the same module state as the outer call.
func TestHostFunctionReentersStoreThroughFunctionHandle(t *testing.T) {
	store := tinywasm.NewStore(nil)

	incBody := wasm.NewFunctionBody([]wasm.Instruction{
		{Op: wasm.OpGlobalGet, Index: 0},
		{Op: wasm.OpI32Const, I32: 1},
		{Op: wasm.OpI32Add},
		{Op: wasm.OpGlobalSet, Index: 0},
		{Op: wasm.OpGlobalGet, Index: 0},
		{Op: wasm.OpEnd},
	})

	var reenteredStore *tinywasm.Store
	var reenteredResult int32
	env := store.NewHostModuleBuilder("env").
		NewFunction("callback", nil, []api.ValueType{api.ValueTypeI32}, func(ctx *tinywasm.HostContext, params []api.Value) ([]api.Value, error) {
			inst, ok := ctx.Instance()
			if !ok {
				return nil, nil
			}
			inc, ok := inst.ExportedFunction("inc")
			if !ok {
				return nil, nil
			}
			reenteredStore = inc.Store()
			results, sc, _, err := inc.Call()
			if err != nil {
				return nil, err
			}
			if sc != nil {
				return nil, nil
			}
			reenteredResult = results[0].I32()
			return []api.Value{results[0]}, nil
		}).
		Build()

	imports := &tinywasm.MapImports{}
	env.AddTo(imports)

	callerBody := wasm.NewFunctionBody([]wasm.Instruction{
		{Op: wasm.OpCall, Index: 0},
		{Op: wasm.OpEnd},
	})
	m := &wasm.Module{
		Types: []*wasm.FuncType{
			{Results: []api.ValueType{api.ValueTypeI32}},
		},
		Imports: []wasm.Import{
			{Module: "env", Name: "callback", Type: api.ExternTypeFunc, FuncTypeIndex: 0},
		},
		Globals: []*wasm.Global{
			{Type: wasm.GlobalType{ValType: api.ValueTypeI32, Mutable: true}, Init: wasm.ConstExpr{Op: wasm.OpI32Const, I32: 0}},
		},
		Functions: []*wasm.Function{
			{TypeIndex: 0, Body: incBody},
			{TypeIndex: 0, Body: callerBody},
		},
		Exports: []wasm.Export{
			{Name: "inc", Type: api.ExternTypeFunc, Index: 1},
			{Name: "run", Type: api.ExternTypeFunc, Index: 2},
		},
	}

	inst, _, _, err := tinywasm.Instantiate(store, "m", tinywasm.NewModule(m), imports)
	require.NoError(t, err)

	run, ok := inst.ExportedFunction("run")
	require.True(t, ok)
	results, sc, _, err := run.Call()
	require.NoError(t, err)
	require.Nil(t, sc)
	require.Equal(t, int32(1), results[0].I32())
	require.Equal(t, int32(1), reenteredResult)
	require.Equal(t, store, reenteredStore)
}
