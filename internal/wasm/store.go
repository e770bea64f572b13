package wasm

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/tinywasm-go/api"
	"github.com/wippyai/tinywasm-go/internal/coro"
)

// FuncKind distinguishes a wasm-defined function body from a host-supplied
// callable (spec §3 "Function instance").
type FuncKind byte

const (
	FuncKindWasm FuncKind = iota
	FuncKindHost
)

// HostFlavor distinguishes the two host callable ABI shapes of spec §4.3 /
// the design notes' "Host function ABI variants".
type HostFlavor byte

const (
	HostFlavorImmediate HostFlavor = iota
	HostFlavorCoro
)

// FuncContext is what every host callable receives: the store it is
// running against and the module instance of the frame that called it.
type FuncContext struct {
	Store          *Store
	ModuleInstance *ModuleInstance
}

// HostImmediateFunc computes params -> results synchronously.
type HostImmediateFunc func(ctx *FuncContext, params []api.Value) ([]api.Value, error)

// HostCoroFunc computes params -> either results, or a suspension carrying
// opaque resumable state (spec §4.3).
type HostCoroFunc func(ctx *FuncContext, params []api.Value) (coro.PotentialCoroCallResult[[]api.Value, coro.HostCoroState], error)

// FunctionInstance is either a wasm-bodied function or a host callable
// (spec §3 "Function instance").
type FunctionInstance struct {
	Kind FuncKind

	// Wasm fields.
	Body      *FunctionBody
	Locals    []ValueType
	TypeAddr  uint32 // index into Store.Types

	// Host fields.
	Flavor       HostFlavor
	Signature    *FuncType
	Immediate    HostImmediateFunc
	Coro         HostCoroFunc

	OwnerInstance uint32 // Store.ModuleInstances index
	Name          string // diagnostics only
}

// TableInstance is spec §3's mutable table: element type, contents as
// optional references, and an optional growth ceiling.
type TableInstance struct {
	ElemType ValueType
	Min      uint32
	Max      *uint32
	Elements []api.Value // each is a reference-typed Value (funcref/externref)
}

// MemoryInstance is spec §3's linear byte buffer.
type MemoryInstance struct {
	Data []byte
	Max  *uint32 // in pages; nil means no declared maximum
}

const PageSize = 65536

func (m *MemoryInstance) Pages() uint32 { return uint32(len(m.Data) / PageSize) }

// GlobalInstance is spec §3's typed, optionally mutable cell.
type GlobalInstance struct {
	Type    ValueType
	Mutable bool
	Value   api.Value
}

// ElementInstance is a droppable initializer for table.init (spec §3
// "Element / Data instance").
type ElementInstance struct {
	ElemType       ValueType
	Init           []uint32
	FuncIndexValid []bool
	Dropped        bool
}

// DataInstance is a droppable initializer for memory.init.
type DataInstance struct {
	Init    []byte
	Dropped bool
}

// ModuleInstance is the per-instantiation handle of spec §3: an instance
// id plus the translation tables from module-local indices to absolute
// store addresses, and the name-keyed export table.
type ModuleInstance struct {
	ID   uint32
	Name string

	Types      []uint32 // module-local type index -> Store.Types address
	Funcs      []uint32 // module-local func index -> Store.Functions address
	Tables     []uint32
	Memories   []uint32
	Globals    []uint32
	Elements   []uint32
	Datas      []uint32

	Exports map[string]ExternVal
}

// ExportedValue resolves a name to an ExternVal, or ok=false.
func (mi *ModuleInstance) ExportedValue(name string) (ExternVal, bool) {
	v, ok := mi.Exports[name]
	return v, ok
}

// SuspendConditions packages the at-most-three poll triggers of spec §3:
// an atomic stop flag, an absolute deadline, and a polling callback.
// At most one store-wide set is active at a time; all three are checked
// in the order atomic flag, deadline, callback (spec §4.2).
type SuspendConditions struct {
	stopFlag atomic.Bool

	mu       sync.RWMutex
	deadline *time.Time
	callback func() (breakLoop bool)
}

func (c *SuspendConditions) SetStopFlag(v bool) { c.stopFlag.Store(v) }

// StopFlag reads the flag with acquire ordering (spec §5: "the executor
// reads it with acquire ordering"). sync/atomic.Bool.Load already provides
// the acquire semantics Go's memory model guarantees for atomics.
func (c *SuspendConditions) StopFlag() bool { return c.stopFlag.Load() }

func (c *SuspendConditions) SetDeadline(t *time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadline = t
}

func (c *SuspendConditions) SetCallback(cb func() bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callback = cb
}

// Poll consults the three conditions in order and returns the first
// tripped reason, or ok=false if none tripped.
func (c *SuspendConditions) Poll(now func() time.Time) (coro.SuspendReason, bool) {
	if c.StopFlag() {
		return coro.Flag(), true
	}
	c.mu.RLock()
	deadline := c.deadline
	cb := c.callback
	c.mu.RUnlock()
	if deadline != nil && now != nil && !now().Before(*deadline) {
		return coro.Deadline(), true
	}
	if cb != nil && cb() {
		return coro.Callback(), true
	}
	return coro.SuspendReason{}, false
}

// Store is the shared runtime state of spec §3: process-unique identity,
// insertion-only pools, the module-instance registry, and suspend
// conditions. Addresses are stable indices — store entries are never
// removed (spec §1 non-goal: "garbage collection of store contents").
type Store struct {
	ID uint64 // process-monotonic identity, rejects cross-store resume

	DiagID uuid.UUID // log-correlation id only, never used in trap/equality logic

	mu sync.Mutex

	Types     []*FuncType
	Functions []*FunctionInstance
	Tables    []*TableInstance
	Memories  []*MemoryInstance
	Globals   []*GlobalInstance
	Elements  []*ElementInstance
	Datas     []*DataInstance

	ModuleInstances []*ModuleInstance

	Suspend *SuspendConditions

	Log *zap.SugaredLogger
}

var storeIDCounter uint64

func nextStoreID() uint64 { return atomic.AddUint64(&storeIDCounter, 1) }

// NewStore constructs an empty store. A nil logger installs zap's no-op
// logger so callers never need a nil check on the hot path.
func NewStore(log *zap.SugaredLogger) *Store {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Store{
		ID:      nextStoreID(),
		DiagID:  uuid.New(),
		Suspend: &SuspendConditions{},
		Log:     log,
	}
}

func (s *Store) Lock()   { s.mu.Lock() }
func (s *Store) Unlock() { s.mu.Unlock() }

func (s *Store) AddType(t *FuncType) uint32 {
	s.Types = append(s.Types, t)
	return uint32(len(s.Types) - 1)
}

func (s *Store) AddFunction(f *FunctionInstance) uint32 {
	s.Functions = append(s.Functions, f)
	return uint32(len(s.Functions) - 1)
}

func (s *Store) AddTable(t *TableInstance) uint32 {
	s.Tables = append(s.Tables, t)
	return uint32(len(s.Tables) - 1)
}

func (s *Store) AddMemory(m *MemoryInstance) uint32 {
	s.Memories = append(s.Memories, m)
	return uint32(len(s.Memories) - 1)
}

func (s *Store) AddGlobal(g *GlobalInstance) uint32 {
	s.Globals = append(s.Globals, g)
	return uint32(len(s.Globals) - 1)
}

func (s *Store) AddElement(e *ElementInstance) uint32 {
	s.Elements = append(s.Elements, e)
	return uint32(len(s.Elements) - 1)
}

func (s *Store) AddData(d *DataInstance) uint32 {
	s.Datas = append(s.Datas, d)
	return uint32(len(s.Datas) - 1)
}

// AddModuleInstance registers mi and assigns it a never-reused id (spec
// §3 lifecycle: "their ids are never reused within one store").
func (s *Store) AddModuleInstance(mi *ModuleInstance) uint32 {
	mi.ID = uint32(len(s.ModuleInstances))
	s.ModuleInstances = append(s.ModuleInstances, mi)
	return mi.ID
}
