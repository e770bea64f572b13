// Package instantiate implements spec §4.4's instantiation algorithm:
// resolve imports against an Imports table, allocate function/table/
// memory/global instances, evaluate constant expressions, populate
// element and data segments, and (suspendably) invoke the start
// function.
//
// Grounded on wazero's internal/wasm instance-building pass (module.go's
// BuildMemoryInstance / BuildGlobalInstance / BuildTableInstance family)
// and on tinywasm's crates/tinywasm/src/instance.rs instantiation order
// (imports resolved before definitions, elements/data populated before
// start runs).
package instantiate

import (
	"fmt"

	"github.com/wippyai/tinywasm-go/api"
	"github.com/wippyai/tinywasm-go/internal/coro"
	"github.com/wippyai/tinywasm-go/internal/engine/interpreter"
	"github.com/wippyai/tinywasm-go/internal/wasm"
	"github.com/wippyai/tinywasm-go/internal/wasmruntime"
)

// Imports resolves one (module, name) import to a concrete store address.
// The embedder builds this table (spec §4.4 phase 1); it is consulted in
// import-declaration order, which fixes the module-local index spaces.
type Imports interface {
	Resolve(moduleName, name string, want api.ExternType) (wasm.ExternVal, bool)
}

// MapImports is the common-case Imports implementation: a registry of
// already-instantiated modules' exports, keyed by module name, plus
// directly-supplied host values (spec §6 "host module" builder).
type MapImports struct {
	Modules map[string]*wasm.ModuleInstance
	Extra   map[string]map[string]wasm.ExternVal // moduleName -> name -> value, for values with no owning ModuleInstance
}

func (m *MapImports) Resolve(moduleName, name string, want api.ExternType) (wasm.ExternVal, bool) {
	if mi, ok := m.Modules[moduleName]; ok {
		if v, ok := mi.ExportedValue(name); ok && v.Type == want {
			return v, true
		}
	}
	if ns, ok := m.Extra[moduleName]; ok {
		if v, ok := ns[name]; ok && v.Type == want {
			return v, true
		}
	}
	return wasm.ExternVal{}, false
}

// InstantiatingModule carries the partially-built instance across a
// suspended start function (spec §4.4 "the start function runs through
// the same coroutine protocol as any other invocation").
type InstantiatingModule struct {
	module *wasm.Module
	mi     *wasm.ModuleInstance
	sr     *interpreter.SuspendedRuntime
}

// Instantiate runs spec §4.4's five phases against store, returning either
// a finished ModuleInstance or a suspension (when the start function
// yields, hits a deadline, or observes the stop flag/callback). A non-nil
// error is a linking failure or a trap raised while running the start
// function; the coro result is only meaningful when err is nil.
func Instantiate(store *wasm.Store, name string, module *wasm.Module, imports Imports) (coro.PotentialCoroCallResult[*wasm.ModuleInstance, *InstantiatingModule], error) {
	var zero coro.PotentialCoroCallResult[*wasm.ModuleInstance, *InstantiatingModule]

	mi, err := link(store, name, module, imports)
	if err != nil {
		return zero, err
	}
	if err := evaluateGlobals(store, module, mi); err != nil {
		return zero, err
	}
	if err := populateElements(store, module, mi); err != nil {
		return zero, err
	}
	if err := populateData(store, module, mi); err != nil {
		return zero, err
	}

	if !module.StartValid {
		return coro.Return[*wasm.ModuleInstance, *InstantiatingModule](mi), nil
	}

	startAddr := mi.Funcs[module.StartFuncIndex]
	fn := store.Functions[startAddr]
	_, sr, reason, err := interpreter.Invoke(store, mi, fn, nil)
	if err != nil {
		return zero, err
	}
	if sr != nil {
		return coro.Suspended[*wasm.ModuleInstance, *InstantiatingModule](reason, &InstantiatingModule{module: module, mi: mi, sr: sr}), nil
	}
	return coro.Return[*wasm.ModuleInstance, *InstantiatingModule](mi), nil
}

// ResumeInstantiate continues a start function that previously suspended.
func ResumeInstantiate(store *wasm.Store, im *InstantiatingModule, arg any) (coro.PotentialCoroCallResult[*wasm.ModuleInstance, *InstantiatingModule], error) {
	var zero coro.PotentialCoroCallResult[*wasm.ModuleInstance, *InstantiatingModule]

	_, sr, reason, err := interpreter.Resume(store, im.sr, arg)
	if err != nil {
		return zero, err
	}
	if sr != nil {
		im.sr = sr
		return coro.Suspended[*wasm.ModuleInstance, *InstantiatingModule](reason, im), nil
	}
	return coro.Return[*wasm.ModuleInstance, *InstantiatingModule](im.mi), nil
}

// link implements spec §4.4 phases 1-2: resolve every import, then
// allocate store entries for every module-defined function/table/memory/
// global, building the module instance's index-translation tables.
func link(store *wasm.Store, name string, module *wasm.Module, imports Imports) (*wasm.ModuleInstance, error) {
	mi := &wasm.ModuleInstance{
		Name:    name,
		Exports: make(map[string]wasm.ExternVal),
	}
	mi.Types = make([]uint32, len(module.Types))
	for i, t := range module.Types {
		mi.Types[i] = store.AddType(t)
	}

	for _, im := range module.Imports {
		var want api.ExternType = im.Type
		ev, ok := imports.Resolve(im.Module, im.Name, want)
		if !ok {
			return nil, wasmruntime.NewUnknownImport(im.Module, im.Name)
		}
		if err := checkImportCompat(store, mi, im, ev); err != nil {
			return nil, err
		}
		switch im.Type {
		case api.ExternTypeFunc:
			mi.Funcs = append(mi.Funcs, ev.Addr)
		case api.ExternTypeTable:
			mi.Tables = append(mi.Tables, ev.Addr)
		case api.ExternTypeMemory:
			mi.Memories = append(mi.Memories, ev.Addr)
		case api.ExternTypeGlobal:
			mi.Globals = append(mi.Globals, ev.Addr)
		}
	}

	for _, fn := range module.Functions {
		typeAddr := mi.Types[fn.TypeIndex]
		addr := store.AddFunction(&wasm.FunctionInstance{
			Kind:          wasm.FuncKindWasm,
			Body:          fn.Body,
			Locals:        fn.Locals,
			TypeAddr:      typeAddr,
			OwnerInstance: 0, // patched below once mi is registered
		})
		mi.Funcs = append(mi.Funcs, addr)
	}
	for _, t := range module.Tables {
		addr := store.AddTable(&wasm.TableInstance{
			ElemType: t.ElemType,
			Min:      t.Min,
			Max:      t.Max,
			Elements: make([]api.Value, t.Min),
		})
		for i := range store.Tables[addr].Elements {
			store.Tables[addr].Elements[i] = api.DefaultValue(t.ElemType)
		}
		mi.Tables = append(mi.Tables, addr)
	}
	for _, m := range module.Memories {
		addr := store.AddMemory(&wasm.MemoryInstance{
			Data: make([]byte, uint64(m.Min)*wasm.PageSize),
			Max:  m.Max,
		})
		mi.Memories = append(mi.Memories, addr)
	}
	for _, g := range module.Globals {
		addr := store.AddGlobal(&wasm.GlobalInstance{
			Type:    g.Type.ValType,
			Mutable: g.Type.Mutable,
		})
		mi.Globals = append(mi.Globals, addr)
	}

	id := store.AddModuleInstance(mi)
	for _, addr := range mi.Funcs[module.ImportFuncCount():] {
		store.Functions[addr].OwnerInstance = id
	}
	// Imported functions keep the owner instance of whichever module
	// originally defined them (set when that module was instantiated);
	// only module-defined functions are patched here.

	for _, e := range module.Exports {
		mi.Exports[e.Name] = wasm.ExternVal{Type: e.Type, Addr: indexToAddr(mi, e)}
	}

	return mi, nil
}

// funcSignatureOf returns fn's FuncType regardless of whether it is a wasm
// or host function.
func funcSignatureOf(store *wasm.Store, fn *wasm.FunctionInstance) *wasm.FuncType {
	if fn.Kind == wasm.FuncKindWasm {
		return store.Types[fn.TypeAddr]
	}
	return fn.Signature
}

func indexToAddr(mi *wasm.ModuleInstance, e wasm.Export) uint32 {
	switch e.Type {
	case api.ExternTypeFunc:
		return mi.Funcs[e.Index]
	case api.ExternTypeTable:
		return mi.Tables[e.Index]
	case api.ExternTypeMemory:
		return mi.Memories[e.Index]
	case api.ExternTypeGlobal:
		return mi.Globals[e.Index]
	}
	return 0
}

func checkImportCompat(store *wasm.Store, mi *wasm.ModuleInstance, im wasm.Import, ev wasm.ExternVal) error {
	switch im.Type {
	case api.ExternTypeFunc:
		want := store.Types[mi.Types[im.FuncTypeIndex]]
		fn := store.Functions[ev.Addr]
		got := funcSignatureOf(store, fn)
		if !want.Equals(got) {
			return wasmruntime.NewIncompatibleImportType(im.Module, im.Name)
		}
	case api.ExternTypeTable:
		tbl := store.Tables[ev.Addr]
		if im.TableType != nil && tbl.ElemType != im.TableType.ElemType {
			return wasmruntime.NewIncompatibleImportType(im.Module, im.Name)
		}
	case api.ExternTypeMemory:
		mem := store.Memories[ev.Addr]
		if im.MemoryType != nil && mem.Pages() < im.MemoryType.Min {
			return wasmruntime.NewIncompatibleImportType(im.Module, im.Name)
		}
	case api.ExternTypeGlobal:
		g := store.Globals[ev.Addr]
		if im.GlobalType != nil && (g.Type != im.GlobalType.ValType || g.Mutable != im.GlobalType.Mutable) {
			return wasmruntime.NewIncompatibleImportType(im.Module, im.Name)
		}
	}
	return nil
}

// evaluateGlobals implements spec §4.4 phase 3: evaluate every
// module-defined global's constant initializer in declaration order (so
// a later global may reference an imported global, never a
// module-defined one, per the WebAssembly 1.0 restriction).
func evaluateGlobals(store *wasm.Store, module *wasm.Module, mi *wasm.ModuleInstance) error {
	importedGlobalCount := len(mi.Globals) - len(module.Globals)
	for i, g := range module.Globals {
		addr := mi.Globals[importedGlobalCount+i]
		v, err := evalConst(store, mi, g.Init)
		if err != nil {
			return err
		}
		store.Globals[addr].Value = v
	}
	return nil
}

func evalConst(store *wasm.Store, mi *wasm.ModuleInstance, c wasm.ConstExpr) (api.Value, error) {
	switch c.Op {
	case wasm.OpI32Const:
		return api.I32Value(c.I32), nil
	case wasm.OpI64Const:
		return api.I64Value(c.I64), nil
	case wasm.OpF32Const:
		return api.F32Value(c.F32), nil
	case wasm.OpF64Const:
		return api.F64Value(c.F64), nil
	case wasm.OpRefNull:
		return api.NullFuncRef(), nil
	case wasm.OpRefFunc:
		return api.FuncRefValue(mi.Funcs[c.Index]), nil
	case wasm.OpGlobalGet:
		addr := mi.Globals[c.Index]
		return store.Globals[addr].Value, nil
	default:
		return api.Value{}, fmt.Errorf("invalid constant expression opcode %v", c.Op)
	}
}

// populateElements implements spec §4.4 phase 4a: register every element
// segment (resolving function indices to store addresses) and copy active
// segments into their target table.
func populateElements(store *wasm.Store, module *wasm.Module, mi *wasm.ModuleInstance) error {
	mi.Elements = make([]uint32, len(module.Elements))
	for i, e := range module.Elements {
		resolved := make([]uint32, len(e.Init))
		for j, fidx := range e.Init {
			if e.FuncIndexValid[j] {
				resolved[j] = mi.Funcs[fidx]
			}
		}
		addr := store.AddElement(&wasm.ElementInstance{
			ElemType:       e.ElemType,
			Init:           resolved,
			FuncIndexValid: e.FuncIndexValid,
			Dropped:        e.Mode == wasm.ElementModeDeclared,
		})
		mi.Elements[i] = addr

		if e.Mode != wasm.ElementModeActive {
			continue
		}
		offsetVal, err := evalConst(store, mi, e.Offset)
		if err != nil {
			return err
		}
		offset := offsetVal.U32()
		tbl := store.Tables[mi.Tables[e.TableIndex]]
		if uint64(offset)+uint64(len(resolved)) > uint64(len(tbl.Elements)) {
			return wasmruntime.TableOutOfBounds(uint64(offset), uint64(len(resolved)), uint64(len(tbl.Elements)))
		}
		for j := range resolved {
			if e.FuncIndexValid[j] {
				tbl.Elements[int(offset)+j] = api.FuncRefValue(resolved[j])
			} else {
				tbl.Elements[int(offset)+j] = api.NullFuncRef()
			}
		}
	}
	return nil
}

// populateData implements spec §4.4 phase 4b: register every data segment
// and copy active segments into their target memory.
func populateData(store *wasm.Store, module *wasm.Module, mi *wasm.ModuleInstance) error {
	mi.Datas = make([]uint32, len(module.Datas))
	for i, d := range module.Datas {
		addr := store.AddData(&wasm.DataInstance{Init: d.Init})
		mi.Datas[i] = addr

		if d.Mode != wasm.DataModeActive {
			continue
		}
		offsetVal, err := evalConst(store, mi, d.Offset)
		if err != nil {
			return err
		}
		offset := offsetVal.U32()
		mem := store.Memories[mi.Memories[d.MemoryIndex]]
		if uint64(offset)+uint64(len(d.Init)) > uint64(len(mem.Data)) {
			return wasmruntime.MemoryOutOfBounds(uint64(offset), uint64(len(d.Init)), uint64(len(mem.Data)))
		}
		copy(mem.Data[offset:], d.Init)
	}
	return nil
}
