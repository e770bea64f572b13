package main

import (
	"go.uber.org/zap"

	"github.com/wippyai/tinywasm-go/api"
	"github.com/wippyai/tinywasm-go/internal/instantiate"
	"github.com/wippyai/tinywasm-go/internal/wasm"
)

// demoLinkedModule builds and instantiates a tiny hardcoded module image in
// lieu of a binary decoder (out of scope per spec §1): one function,
// exported as "_start", that returns the constant i32 42. It exists so
// `tinywasmrun run` has something to execute standalone; an embedder
// wiring in a real decoder replaces this with module bytes -> *wasm.Module.
func demoLinkedModule(logger *zap.Logger) (*wasm.Store, *wasm.ModuleInstance, *wasm.FunctionInstance, error) {
	body := wasm.NewFunctionBody([]wasm.Instruction{
		{Op: wasm.OpI32Const, I32: 42},
		{Op: wasm.OpEnd},
	})

	module := &wasm.Module{
		Types: []*wasm.FuncType{{Results: []wasm.ValueType{api.ValueTypeI32}}},
		Functions: []*wasm.Function{
			{TypeIndex: 0, Body: body},
		},
		Exports: []wasm.Export{
			{Name: "_start", Type: api.ExternTypeFunc, Index: 0},
		},
		Name: "demo",
	}

	store := wasm.NewStore(logger.Sugar())
	result, err := instantiate.Instantiate(store, "demo", module, &instantiate.MapImports{})
	if err != nil {
		return nil, nil, nil, err
	}
	mi := result.Value() // no start function, so Done() is always true here

	fn := store.Functions[mi.Funcs[0]]
	return store, mi, fn, nil
}
