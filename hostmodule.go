package tinywasm

import (
	"github.com/wippyai/tinywasm-go/api"
	"github.com/wippyai/tinywasm-go/internal/coro"
	"github.com/wippyai/tinywasm-go/internal/wasm"
)

// HostModuleBuilder accumulates host-defined functions under one module
// name, following wazero's fluent NewHostModuleBuilder/builder.go pattern:
// each New*Function call appends to the receiver and returns it, and
// nothing is registered in the Store until Build.
type HostModuleBuilder struct {
	store *Store
	name  string
	fns   []hostFuncDef
}

type hostFuncDef struct {
	name      string
	sig       *wasm.FuncType
	flavor    wasm.HostFlavor
	immediate wasm.HostImmediateFunc
	coroFn    wasm.HostCoroFunc
}

func (s *Store) NewHostModuleBuilder(name string) *HostModuleBuilder {
	return &HostModuleBuilder{store: s, name: name}
}

// NewFunction registers an immediate host function (spec §4.3 "computes
// params -> results synchronously").
func (b *HostModuleBuilder) NewFunction(name string, params, results []api.ValueType, fn func(ctx *HostContext, params []api.Value) ([]api.Value, error)) *HostModuleBuilder {
	b.fns = append(b.fns, hostFuncDef{
		name:   name,
		sig:    &wasm.FuncType{Params: params, Results: results},
		flavor: wasm.HostFlavorImmediate,
		immediate: func(ctx *wasm.FuncContext, params []api.Value) ([]api.Value, error) {
			return fn(&HostContext{ctx: ctx}, params)
		},
	})
	return b
}

// NewCoroFunction registers a host function that may suspend (spec §4.3
// "the coroutine flavor"). fn returns either a final result or a
// coro.Suspended carrying opaque resumable state.
func (b *HostModuleBuilder) NewCoroFunction(name string, params, results []api.ValueType, fn func(ctx *HostContext, params []api.Value) (coro.PotentialCoroCallResult[[]api.Value, coro.HostCoroState], error)) *HostModuleBuilder {
	b.fns = append(b.fns, hostFuncDef{
		name:   name,
		sig:    &wasm.FuncType{Params: params, Results: results},
		flavor: wasm.HostFlavorCoro,
		coroFn: func(ctx *wasm.FuncContext, params []api.Value) (coro.PotentialCoroCallResult[[]api.Value, coro.HostCoroState], error) {
			return fn(&HostContext{ctx: ctx}, params)
		},
	})
	return b
}

// Build allocates every accumulated function in the store and returns a
// HostModule whose exports an Imports resolver can serve.
func (b *HostModuleBuilder) Build() *HostModule {
	exports := make(map[string]wasm.ExternVal, len(b.fns))
	for _, f := range b.fns {
		fi := &wasm.FunctionInstance{
			Kind:      wasm.FuncKindHost,
			Flavor:    f.flavor,
			Signature: f.sig,
			Immediate: f.immediate,
			Coro:      f.coroFn,
			Name:      f.name,
		}
		addr := b.store.s.AddFunction(fi)
		exports[f.name] = wasm.ExternVal{Type: api.ExternTypeFunc, Addr: addr}
	}
	return &HostModule{name: b.name, exports: exports}
}

// HostModule is a built set of host functions, ready to be registered into
// an Imports table under its name.
type HostModule struct {
	name    string
	exports map[string]wasm.ExternVal
}

func (h *HostModule) Name() string { return h.name }

// AddTo registers this host module's exports into m.Extra so an
// instantiation's Imports.Resolve can find them (spec §6 "host module" as
// an import source alongside other module instances).
func (h *HostModule) AddTo(m *MapImports) {
	if m.Extra == nil {
		m.Extra = make(map[string]map[string]wasm.ExternVal)
	}
	m.Extra[h.name] = h.exports
}

// HostContext is what a host function callback receives: the store it is
// running against, exposed narrowly (the calling instance's memory and
// the instance itself, not raw addresses) per spec §6.
type HostContext struct {
	ctx *wasm.FuncContext
}

// Memory returns the calling module instance's first memory, or ok=false
// if it declares none (spec §6 "host functions read/write memory via
// store accessors").
func (h *HostContext) Memory() (api.Memory, bool) {
	if len(h.ctx.ModuleInstance.Memories) == 0 {
		return nil, false
	}
	addr := h.ctx.ModuleInstance.Memories[0]
	return &memoryView{mem: h.ctx.Store.Memories[addr]}, true
}

// Instance returns the embedder handle onto the module instance that is
// calling this host function, letting a callback look up and re-enter one
// of its own exports (spec §6): a host callback can hold a Function handle
// obtained this way and invoke it later, including reentrantly.
func (h *HostContext) Instance() (*Instance, bool) {
	if h.ctx.ModuleInstance == nil {
		return nil, false
	}
	return &Instance{store: &Store{s: h.ctx.Store}, mi: h.ctx.ModuleInstance}, true
}
