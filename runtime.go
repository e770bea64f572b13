// Package tinywasm is the embedder API surface of spec §6: a RuntimeConfig
// builder, a Store wrapper, host-module construction, and typed/untyped
// function handles whose Call/Resume methods expose the coroutine protocol
// of spec §4.3 directly, without the caller touching internal/coro.
//
// Grounded on wazero's root config.go/builder.go fluent builder style and
// runtime.go's Runtime/Store/Function surface.
package tinywasm

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/tinywasm-go/api"
	"github.com/wippyai/tinywasm-go/internal/coro"
	"github.com/wippyai/tinywasm-go/internal/engine/interpreter"
	"github.com/wippyai/tinywasm-go/internal/instantiate"
	"github.com/wippyai/tinywasm-go/internal/wasm"
)

// RuntimeConfig configures a Store before it is built. Immutable and
// clone-on-With*, matching wazero's config.go.
type RuntimeConfig struct {
	logger *zap.SugaredLogger
}

func NewRuntimeConfig() *RuntimeConfig { return &RuntimeConfig{} }

// WithLogger attaches a zap logger that NewStore installs as the store's
// Log; the instantiation and interpreter packages do not write to it.
// Returns a copy.
func (c *RuntimeConfig) WithLogger(l *zap.Logger) *RuntimeConfig {
	cp := *c
	if l != nil {
		cp.logger = l.Sugar()
	}
	return &cp
}

// Store is the embedder-facing handle onto one spec §3 Store: every module
// instantiated against it shares one address space, one suspend-condition
// set, and one diagnostic identity.
type Store struct {
	s *wasm.Store
}

func NewStore(config *RuntimeConfig) *Store {
	var log *zap.SugaredLogger
	if config != nil {
		log = config.logger
	}
	return &Store{s: wasm.NewStore(log)}
}

// SetStopFlag arms/disarms the atomic stop-flag suspend condition (spec
// §3/§5), safe to call concurrently with a running invocation.
func (s *Store) SetStopFlag(v bool) { s.s.Suspend.SetStopFlag(v) }

// SetDeadline arms a wall-clock deadline suspend condition, or clears it
// when t is nil.
func (s *Store) SetDeadline(t *time.Time) { s.s.Suspend.SetDeadline(t) }

// SetPollCallback arms a polling-callback suspend condition, or clears it
// when cb is nil.
func (s *Store) SetPollCallback(cb func() bool) { s.s.Suspend.SetCallback(cb) }

// Module is a decoded module image ready to instantiate (spec §2.2). The
// binary decoder that produces one is out of this module's scope (spec
// §1); embedders construct a *wasm.Module directly or via a front end not
// included here, then wrap it with NewModule.
type Module struct {
	m *wasm.Module
}

func NewModule(m *wasm.Module) *Module { return &Module{m: m} }

// Instance is the embedder handle onto one spec §3 Module Instance: export
// lookup plus direct memory/global access per spec §6.
type Instance struct {
	store *Store
	mi    *wasm.ModuleInstance
}

// InstantiatingInstance is returned instead of *Instance when the module's
// start function suspends mid-run (spec §4.4).
type InstantiatingInstance struct {
	store *Store
	im    *instantiate.InstantiatingModule
}

// Imports is the embedder-supplied import resolver (spec §4.4 phase 1); see
// instantiate.MapImports for the common case of linking against already
// instantiated modules and directly-supplied host values.
type Imports = instantiate.Imports
type MapImports = instantiate.MapImports

// Instantiate runs spec §4.4 against store. On success it returns either a
// finished *Instance or, if the start function suspended, an
// *InstantiatingInstance plus the suspend reason.
func Instantiate(store *Store, name string, module *Module, imports Imports) (*Instance, *InstantiatingInstance, coro.SuspendReason, error) {
	result, err := instantiate.Instantiate(store.s, name, module.m, imports)
	if err != nil {
		return nil, nil, coro.SuspendReason{}, err
	}
	if result.Done() {
		return &Instance{store: store, mi: result.Value()}, nil, coro.SuspendReason{}, nil
	}
	return nil, &InstantiatingInstance{store: store, im: result.State()}, result.Reason(), nil
}

// Resume continues a suspended start function.
func (ii *InstantiatingInstance) Resume(arg any) (*Instance, *InstantiatingInstance, coro.SuspendReason, error) {
	result, err := instantiate.ResumeInstantiate(ii.store.s, ii.im, arg)
	if err != nil {
		return nil, nil, coro.SuspendReason{}, err
	}
	if result.Done() {
		return &Instance{store: ii.store, mi: result.Value()}, nil, coro.SuspendReason{}, nil
	}
	ii.im = result.State()
	return nil, ii, result.Reason(), nil
}

// ExportedFunction resolves name to a callable handle, or ok=false if the
// export is missing or not a function (spec §4.5).
func (i *Instance) ExportedFunction(name string) (*Function, bool) {
	ev, ok := i.mi.ExportedValue(name)
	if !ok || ev.Type != api.ExternTypeFunc {
		return nil, false
	}
	return &Function{store: i.store, addr: ev.Addr}, true
}

// Function is an untyped callable handle (spec §4.5): Call accepts and
// returns []api.Value, checked against the function's declared signature.
type Function struct {
	store *Store
	addr  uint32
}

// SuspendedCall is returned instead of a result slice when an invocation
// pauses mid-execution (spec §4.2/§4.3).
type SuspendedCall struct {
	store *Store
	sr    *interpreter.SuspendedRuntime
}

// Store returns the Store this function was resolved against, letting a
// host callback close over its Function handle and reach back into the
// same store to look up and call other exports re-entrantly (spec §6).
func (f *Function) Store() *Store { return f.store }

// Call invokes the function with args, type-checked against its declared
// parameter signature; a mismatched count or type is returned as a plain
// error before the call runs, neither a trap nor a *wasmruntime.EmbedderError.
func (f *Function) Call(args ...api.Value) ([]api.Value, *SuspendedCall, coro.SuspendReason, error) {
	fn := f.store.s.Functions[f.addr]
	sig := fn.Signature
	if fn.Kind == wasm.FuncKindWasm {
		sig = f.store.s.Types[fn.TypeAddr]
	}
	if err := checkArgs(sig, args); err != nil {
		return nil, nil, coro.SuspendReason{}, err
	}

	results, sr, reason, err := interpreter.Invoke(f.store.s, f.store.s.ModuleInstances[fn.OwnerInstance], fn, args)
	if err != nil {
		return nil, nil, coro.SuspendReason{}, err
	}
	if sr != nil {
		return nil, &SuspendedCall{store: f.store, sr: sr}, reason, nil
	}
	return results, nil, coro.SuspendReason{}, nil
}

// Resume continues a suspended call. arg is forwarded to the pending host
// coroutine if one is waiting; it must be non-nil iff the suspend reason
// was Yield (spec §4.3).
func (sc *SuspendedCall) Resume(arg any) ([]api.Value, *SuspendedCall, coro.SuspendReason, error) {
	results, sr, reason, err := interpreter.Resume(sc.store.s, sc.sr, arg)
	if err != nil {
		return nil, nil, coro.SuspendReason{}, err
	}
	if sr != nil {
		sc.sr = sr
		return nil, sc, reason, nil
	}
	return results, nil, coro.SuspendReason{}, nil
}

func checkArgs(sig *wasm.FuncType, args []api.Value) error {
	if len(args) != len(sig.Params) {
		return fmt.Errorf("tinywasm: call argument count mismatch: want %d, got %d", len(sig.Params), len(args))
	}
	for i, want := range sig.Params {
		if args[i].Kind != want {
			return fmt.Errorf("tinywasm: call argument %d type mismatch: want %s, got %s", i, want, args[i].Kind)
		}
	}
	return nil
}
