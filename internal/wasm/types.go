// Package wasm holds the decoded module image (spec §3 "Module Instance")
// and the Store (spec §3 "Store"): the components everything else in this
// module is built on. It does not parse the WebAssembly binary format —
// per spec §1, the binary decoder is an external collaborator and only its
// output schema matters here.
package wasm

import "github.com/wippyai/tinywasm-go/api"

type ValueType = api.ValueType

// FuncType is a function signature: parameter types followed by result
// types. WebAssembly 1.0 permits at most one result.
type FuncType struct {
	Params  []ValueType
	Results []ValueType
}

func (t *FuncType) Equals(o *FuncType) bool {
	if t == o {
		return true
	}
	if len(t.Params) != len(o.Params) || len(t.Results) != len(o.Results) {
		return false
	}
	for i, p := range t.Params {
		if p != o.Params[i] {
			return false
		}
	}
	for i, r := range t.Results {
		if r != o.Results[i] {
			return false
		}
	}
	return true
}

func (t *FuncType) String() string {
	s := "("
	for i, p := range t.Params {
		if i > 0 {
			s += ", "
		}
		s += p.String()
	}
	s += ") -> ("
	for i, r := range t.Results {
		if i > 0 {
			s += ", "
		}
		s += r.String()
	}
	return s + ")"
}

// ExternVal is the result of an export lookup (spec §3).
type ExternVal struct {
	Type   api.ExternType
	Addr   uint32
}

// Import describes one module-declared import; resolved during
// instantiation (spec §4.4 phase 1).
type Import struct {
	Module, Name string
	Type         api.ExternType
	// FuncTypeIndex indexes Module.Types when Type == ExternTypeFunc.
	FuncTypeIndex uint32
	TableType     *TableType
	MemoryType    *MemoryType
	GlobalType    *GlobalType
}

type GlobalType struct {
	ValType ValueType
	Mutable bool
}

type TableType struct {
	ElemType ValueType // ValueTypeFuncref or ValueTypeExternref
	Min      uint32
	Max      *uint32
}

type MemoryType struct {
	Min uint32
	Max *uint32
}

// Export maps a name to a module-local index within one of the four index
// spaces (function, table, memory, global).
type Export struct {
	Name  string
	Type  api.ExternType
	Index uint32
}

// Global is a module-defined global together with its constant initializer
// (evaluated during instantiation, spec §4.4 phase 3).
type Global struct {
	Type contentType
	Init ConstExpr
}

type contentType = GlobalType

// ConstExpr is the restricted instruction sequence permitted for global
// initializers, active element/data offsets: i*.const, f*.const, ref.null,
// ref.func, or global.get of an imported immutable global.
type ConstExpr struct {
	Op     Opcode
	I32    int32
	I64    int64
	F32    float32
	F64    float64
	Index  uint32 // ref.func target, or global.get source
}

// ElementMode distinguishes passive/active/declared element segments.
type ElementMode byte

const (
	ElementModeActive ElementMode = iota
	ElementModePassive
	ElementModeDeclared
)

// Element is a module-declared element segment (spec §3 "Element / Data
// instance").
type Element struct {
	Mode       ElementMode
	TableIndex uint32   // valid when Mode == ElementModeActive
	Offset     ConstExpr
	ElemType   ValueType
	// Init is, for function-index elements, the func index per entry;
	// FuncIndexValid marks which entries are non-null funcrefs.
	Init           []uint32
	FuncIndexValid []bool
}

// DataMode distinguishes passive/active data segments.
type DataMode byte

const (
	DataModeActive DataMode = iota
	DataModePassive
)

// Data is a module-declared data segment.
type Data struct {
	Mode        DataMode
	MemoryIndex uint32
	Offset      ConstExpr
	Init        []byte
}

// Function is a module-declared (non-imported) function: its signature
// index, locals, and resolved instruction stream.
type Function struct {
	TypeIndex uint32
	Locals    []ValueType
	Body      *FunctionBody
}

// Module is the decoded, validated module image (spec §3 "Module
// Instance" + §2.2 "Module image"): function types, bodies, tables,
// memories, globals, elements, data, imports, exports, optional start.
type Module struct {
	Types     []*FuncType
	Imports   []Import
	Functions []*Function // module-defined functions only, imports excluded
	Tables    []*TableType
	Memories  []*MemoryType
	Globals   []*Global
	Elements  []*Element
	Datas     []*Data
	Exports   []Export
	// StartFuncIndex, if StartValid, is the module-local function index
	// (imports-first numbering) run once at instantiation.
	StartFuncIndex uint32
	StartValid     bool

	// Name identifies the module for diagnostics; distinct from the name
	// it is instantiated under (an embedder may instantiate a module
	// multiple times under different names).
	Name string
}

// ExportByName returns the module-local export entry, or ok=false.
func (m *Module) ExportByName(name string) (Export, bool) {
	for _, e := range m.Exports {
		if e.Name == name {
			return e, true
		}
	}
	return Export{}, false
}

// ImportFuncCount returns how many of m.Imports are functions; used to
// translate between module-local function indices (imports first) and
// Functions slice offsets.
func (m *Module) ImportFuncCount() uint32 {
	var n uint32
	for _, im := range m.Imports {
		if im.Type == api.ExternTypeFunc {
			n++
		}
	}
	return n
}
