package interpreter

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/wippyai/tinywasm-go/api"
	"github.com/wippyai/tinywasm-go/internal/coro"
	"github.com/wippyai/tinywasm-go/internal/wasm"
	"github.com/wippyai/tinywasm-go/internal/wasmruntime"
)

// doCall performs one function call: a wasm-bodied callee pushes a new
// CallFrame and returns immediately (not suspended); a host callee runs
// synchronously (immediate flavor) or may yield (coro flavor), in which
// case fs.PendingHostCoro is armed and the caller must propagate the
// suspension up to the embedder (spec §4.3).
func doCall(store *wasm.Store, fs *FrameStack, calleeAddr uint32) (coro.SuspendReason, bool, error) {
	fn := store.Functions[calleeAddr]
	owner := store.ModuleInstances[fn.OwnerInstance]

	switch fn.Kind {
	case wasm.FuncKindWasm:
		sig := store.Types[fn.TypeAddr]
		args := fs.Values.PopResults(sig.Params)
		locals := make([]api.Value, len(fn.Locals))
		copy(locals, args)
		for i := len(args); i < len(fn.Locals); i++ {
			locals[i] = api.DefaultValue(fn.Locals[i])
		}
		frame := &CallFrame{
			Body:        fn.Body,
			Module:      owner,
			Locals:      locals,
			EntryHeight: fs.Values.Len(),
			LabelBase:   len(fs.Labels),
			ResultTypes: sig.Results,
		}
		if err := fs.PushFrame(frame); err != nil {
			return coro.SuspendReason{}, false, err
		}
		return coro.SuspendReason{}, false, nil

	case wasm.FuncKindHost:
		caller := owner
		if len(fs.Frames) > 0 {
			caller = fs.CurrentFrame().Module
		}
		ctx := &wasm.FuncContext{Store: store, ModuleInstance: caller}
		args := fs.Values.PopResults(fn.Signature.Params)
		switch fn.Flavor {
		case wasm.HostFlavorImmediate:
			results, err := fn.Immediate(ctx, args)
			if err != nil {
				return coro.SuspendReason{}, false, err
			}
			if err := checkHostResults(fn.Signature.Results, results); err != nil {
				return coro.SuspendReason{}, false, err
			}
			fs.Values.PushResults(results)
			return coro.SuspendReason{}, false, nil
		case wasm.HostFlavorCoro:
			result, err := fn.Coro(ctx, args)
			if err != nil {
				return coro.SuspendReason{}, false, err
			}
			if result.Done() {
				if err := checkHostResults(fn.Signature.Results, result.Value()); err != nil {
					return coro.SuspendReason{}, false, err
				}
				fs.Values.PushResults(result.Value())
				return coro.SuspendReason{}, false, nil
			}
			fs.PendingHostCoro = result.State()
			return result.Reason(), true, nil
		}
	}
	return coro.SuspendReason{}, false, wasmruntime.Unsupported("unknown function kind")
}

// checkHostResults validates a host function's actual return vector against
// its declared FuncType.Results (spec §4.5): the untyped Function handle
// trusts nothing about what embedder code hands back, so a length or
// per-position type mismatch surfaces as InvalidHostFnReturn rather than
// corrupting the value stack.
func checkHostResults(want []api.ValueType, got []api.Value) error {
	if len(want) != len(got) {
		return wasmruntime.InvalidHostFnReturnErr(resultKindsString(want), fmt.Sprintf("%d value(s)", len(got)))
	}
	for i, w := range want {
		if got[i].Kind != w {
			return wasmruntime.InvalidHostFnReturnErr(resultKindsString(want), got[i].Kind.String())
		}
	}
	return nil
}

func resultKindsString(kinds []api.ValueType) string {
	if len(kinds) == 0 {
		return "()"
	}
	s := "("
	for i, k := range kinds {
		if i > 0 {
			s += ", "
		}
		s += k.String()
	}
	return s + ")"
}

// funcSignature returns fn's FuncType regardless of whether it is a wasm
// or host function, for indirect-call type checking.
func funcSignature(store *wasm.Store, fn *wasm.FunctionInstance) *wasm.FuncType {
	if fn.Kind == wasm.FuncKindWasm {
		return store.Types[fn.TypeAddr]
	}
	return fn.Signature
}

// resolveIndirectCallee implements call_indirect's table lookup and type
// check (spec §4.2 "IndirectCallTypeMismatch" / "UndefinedElement" /
// "UninitializedElement").
func resolveIndirectCallee(store *wasm.Store, fs *FrameStack, frame *CallFrame, instr wasm.Instruction) (uint32, error) {
	idx := fs.Values.PopU32()
	tbl := tableOf(store, frame, instr.Index2)
	if int(idx) >= len(tbl.Elements) {
		return 0, wasmruntime.UndefinedElement(idx)
	}
	addr, ok := tbl.Elements[idx].FuncRef()
	if !ok {
		return 0, wasmruntime.UninitializedElement(idx)
	}
	fn := store.Functions[addr]
	typeAddr := frame.Module.Types[instr.Index]
	expected := store.Types[typeAddr]
	actual := funcSignature(store, fn)
	if !expected.Equals(actual) {
		return 0, wasmruntime.IndirectCallTypeMismatch(expected.String(), actual.String())
	}
	return addr, nil
}

func memoryOf(store *wasm.Store, frame *CallFrame) *wasm.MemoryInstance {
	return store.Memories[frame.Module.Memories[0]]
}

func tableOf(store *wasm.Store, frame *CallFrame, tableIndex uint32) *wasm.TableInstance {
	return store.Tables[frame.Module.Tables[tableIndex]]
}

func boundsCheck(mem *wasm.MemoryInstance, offset, length uint64) error {
	end := offset + length
	if end < offset || end > uint64(len(mem.Data)) {
		return wasmruntime.MemoryOutOfBounds(offset, length, uint64(len(mem.Data)))
	}
	return nil
}

var storeOps = map[wasm.Opcode]bool{
	wasm.OpI32Store: true, wasm.OpI64Store: true, wasm.OpF32Store: true, wasm.OpF64Store: true,
	wasm.OpI32Store8: true, wasm.OpI32Store16: true,
	wasm.OpI64Store8: true, wasm.OpI64Store16: true, wasm.OpI64Store32: true,
}

func loadVal(mem *wasm.MemoryInstance, eff uint64, op wasm.Opcode) (api.Value, error) {
	switch op {
	case wasm.OpI32Load:
		if err := boundsCheck(mem, eff, 4); err != nil {
			return api.Value{}, err
		}
		return api.U32Value(binary.LittleEndian.Uint32(mem.Data[eff:])), nil
	case wasm.OpI64Load:
		if err := boundsCheck(mem, eff, 8); err != nil {
			return api.Value{}, err
		}
		return api.U64Value(binary.LittleEndian.Uint64(mem.Data[eff:])), nil
	case wasm.OpF32Load:
		if err := boundsCheck(mem, eff, 4); err != nil {
			return api.Value{}, err
		}
		return api.F32Value(math.Float32frombits(binary.LittleEndian.Uint32(mem.Data[eff:]))), nil
	case wasm.OpF64Load:
		if err := boundsCheck(mem, eff, 8); err != nil {
			return api.Value{}, err
		}
		return api.F64Value(math.Float64frombits(binary.LittleEndian.Uint64(mem.Data[eff:]))), nil
	case wasm.OpI32Load8S:
		if err := boundsCheck(mem, eff, 1); err != nil {
			return api.Value{}, err
		}
		return api.I32Value(int32(int8(mem.Data[eff]))), nil
	case wasm.OpI32Load8U:
		if err := boundsCheck(mem, eff, 1); err != nil {
			return api.Value{}, err
		}
		return api.U32Value(uint32(mem.Data[eff])), nil
	case wasm.OpI32Load16S:
		if err := boundsCheck(mem, eff, 2); err != nil {
			return api.Value{}, err
		}
		return api.I32Value(int32(int16(binary.LittleEndian.Uint16(mem.Data[eff:])))), nil
	case wasm.OpI32Load16U:
		if err := boundsCheck(mem, eff, 2); err != nil {
			return api.Value{}, err
		}
		return api.U32Value(uint32(binary.LittleEndian.Uint16(mem.Data[eff:]))), nil
	case wasm.OpI64Load8S:
		if err := boundsCheck(mem, eff, 1); err != nil {
			return api.Value{}, err
		}
		return api.I64Value(int64(int8(mem.Data[eff]))), nil
	case wasm.OpI64Load8U:
		if err := boundsCheck(mem, eff, 1); err != nil {
			return api.Value{}, err
		}
		return api.U64Value(uint64(mem.Data[eff])), nil
	case wasm.OpI64Load16S:
		if err := boundsCheck(mem, eff, 2); err != nil {
			return api.Value{}, err
		}
		return api.I64Value(int64(int16(binary.LittleEndian.Uint16(mem.Data[eff:])))), nil
	case wasm.OpI64Load16U:
		if err := boundsCheck(mem, eff, 2); err != nil {
			return api.Value{}, err
		}
		return api.U64Value(uint64(binary.LittleEndian.Uint16(mem.Data[eff:]))), nil
	case wasm.OpI64Load32S:
		if err := boundsCheck(mem, eff, 4); err != nil {
			return api.Value{}, err
		}
		return api.I64Value(int64(int32(binary.LittleEndian.Uint32(mem.Data[eff:])))), nil
	case wasm.OpI64Load32U:
		if err := boundsCheck(mem, eff, 4); err != nil {
			return api.Value{}, err
		}
		return api.U64Value(uint64(binary.LittleEndian.Uint32(mem.Data[eff:]))), nil
	}
	return api.Value{}, wasmruntime.Unsupported("unknown load opcode")
}

func storeVal(mem *wasm.MemoryInstance, eff uint64, op wasm.Opcode, val api.Value) error {
	switch op {
	case wasm.OpI32Store:
		if err := boundsCheck(mem, eff, 4); err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(mem.Data[eff:], val.U32())
	case wasm.OpI64Store:
		if err := boundsCheck(mem, eff, 8); err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(mem.Data[eff:], val.U64())
	case wasm.OpF32Store:
		if err := boundsCheck(mem, eff, 4); err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(mem.Data[eff:], math.Float32bits(val.F32()))
	case wasm.OpF64Store:
		if err := boundsCheck(mem, eff, 8); err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(mem.Data[eff:], math.Float64bits(val.F64()))
	case wasm.OpI32Store8:
		if err := boundsCheck(mem, eff, 1); err != nil {
			return err
		}
		mem.Data[eff] = byte(val.U32())
	case wasm.OpI32Store16:
		if err := boundsCheck(mem, eff, 2); err != nil {
			return err
		}
		binary.LittleEndian.PutUint16(mem.Data[eff:], uint16(val.U32()))
	case wasm.OpI64Store8:
		if err := boundsCheck(mem, eff, 1); err != nil {
			return err
		}
		mem.Data[eff] = byte(val.U64())
	case wasm.OpI64Store16:
		if err := boundsCheck(mem, eff, 2); err != nil {
			return err
		}
		binary.LittleEndian.PutUint16(mem.Data[eff:], uint16(val.U64()))
	case wasm.OpI64Store32:
		if err := boundsCheck(mem, eff, 4); err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(mem.Data[eff:], uint32(val.U64()))
	default:
		return wasmruntime.Unsupported("unknown store opcode")
	}
	return nil
}

const maxPages = 65536 // wasm32: 4GiB / 64KiB page

func execMemoryOp(store *wasm.Store, fs *FrameStack, frame *CallFrame, instr wasm.Instruction) error {
	mem := memoryOf(store, frame)

	switch instr.Op {
	case wasm.OpMemorySize:
		fs.Values.Push(api.U32Value(mem.Pages()))
		return nil
	case wasm.OpMemoryGrow:
		delta := fs.Values.PopU32()
		old := mem.Pages()
		newPages := uint64(old) + uint64(delta)
		if newPages > maxPages || (mem.Max != nil && newPages > uint64(*mem.Max)) {
			fs.Values.Push(api.I32Value(-1))
			return nil
		}
		mem.Data = append(mem.Data, make([]byte, uint64(delta)*wasm.PageSize)...)
		fs.Values.Push(api.I32Value(int32(old)))
		return nil
	case wasm.OpMemoryFill:
		n := fs.Values.PopU32()
		val := byte(fs.Values.PopU32())
		dst := fs.Values.PopU32()
		if err := boundsCheck(mem, uint64(dst), uint64(n)); err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			mem.Data[dst+i] = val
		}
		return nil
	case wasm.OpMemoryCopy:
		n := fs.Values.PopU32()
		src := fs.Values.PopU32()
		dst := fs.Values.PopU32()
		if err := boundsCheck(mem, uint64(src), uint64(n)); err != nil {
			return err
		}
		if err := boundsCheck(mem, uint64(dst), uint64(n)); err != nil {
			return err
		}
		copy(mem.Data[dst:uint64(dst)+uint64(n)], mem.Data[src:uint64(src)+uint64(n)])
		return nil
	case wasm.OpMemoryInit:
		n := fs.Values.PopU32()
		srcOff := fs.Values.PopU32()
		dst := fs.Values.PopU32()
		dataAddr := frame.Module.Datas[instr.Index]
		data := store.Datas[dataAddr]
		srcLen := uint64(len(data.Init))
		if data.Dropped {
			srcLen = 0
		}
		if uint64(srcOff)+uint64(n) > srcLen {
			return wasmruntime.MemoryOutOfBounds(uint64(srcOff), uint64(n), srcLen)
		}
		if err := boundsCheck(mem, uint64(dst), uint64(n)); err != nil {
			return err
		}
		copy(mem.Data[dst:uint64(dst)+uint64(n)], data.Init[srcOff:uint64(srcOff)+uint64(n)])
		return nil
	case wasm.OpDataDrop:
		dataAddr := frame.Module.Datas[instr.Index]
		store.Datas[dataAddr].Dropped = true
		return nil
	}

	// load/store
	if storeOps[instr.Op] {
		val := fs.Values.Pop()
		addr := fs.Values.PopU32()
		return storeVal(mem, uint64(addr)+uint64(instr.Mem.Offset), instr.Op, val)
	}
	addr := fs.Values.PopU32()
	v, err := loadVal(mem, uint64(addr)+uint64(instr.Mem.Offset), instr.Op)
	if err != nil {
		return err
	}
	fs.Values.Push(v)
	return nil
}

func execTableOp(store *wasm.Store, fs *FrameStack, frame *CallFrame, instr wasm.Instruction) error {
	switch instr.Op {
	case wasm.OpTableGet:
		idx := fs.Values.PopU32()
		tbl := tableOf(store, frame, instr.Index)
		if int(idx) >= len(tbl.Elements) {
			return wasmruntime.TableOutOfBounds(uint64(idx), 1, uint64(len(tbl.Elements)))
		}
		fs.Values.Push(tbl.Elements[idx])
	case wasm.OpTableSet:
		val := fs.Values.Pop()
		idx := fs.Values.PopU32()
		tbl := tableOf(store, frame, instr.Index)
		if int(idx) >= len(tbl.Elements) {
			return wasmruntime.TableOutOfBounds(uint64(idx), 1, uint64(len(tbl.Elements)))
		}
		tbl.Elements[idx] = val
	case wasm.OpTableSize:
		tbl := tableOf(store, frame, instr.Index)
		fs.Values.Push(api.U32Value(uint32(len(tbl.Elements))))
	case wasm.OpTableGrow:
		val := fs.Values.Pop()
		n := fs.Values.PopU32()
		tbl := tableOf(store, frame, instr.Index)
		old := len(tbl.Elements)
		newLen := uint64(old) + uint64(n)
		if (tbl.Max != nil && newLen > uint64(*tbl.Max)) || newLen > math.MaxUint32 {
			fs.Values.Push(api.I32Value(-1))
			return nil
		}
		grown := make([]api.Value, n)
		for i := range grown {
			grown[i] = val
		}
		tbl.Elements = append(tbl.Elements, grown...)
		fs.Values.Push(api.I32Value(int32(old)))
	case wasm.OpTableFill:
		n := fs.Values.PopU32()
		val := fs.Values.Pop()
		idx := fs.Values.PopU32()
		tbl := tableOf(store, frame, instr.Index)
		if uint64(idx)+uint64(n) > uint64(len(tbl.Elements)) {
			return wasmruntime.TableOutOfBounds(uint64(idx), uint64(n), uint64(len(tbl.Elements)))
		}
		for i := uint32(0); i < n; i++ {
			tbl.Elements[idx+i] = val
		}
	case wasm.OpTableCopy:
		n := fs.Values.PopU32()
		src := fs.Values.PopU32()
		dst := fs.Values.PopU32()
		dstTbl := tableOf(store, frame, instr.Index)
		srcTbl := tableOf(store, frame, instr.Index2)
		if uint64(src)+uint64(n) > uint64(len(srcTbl.Elements)) {
			return wasmruntime.TableOutOfBounds(uint64(src), uint64(n), uint64(len(srcTbl.Elements)))
		}
		if uint64(dst)+uint64(n) > uint64(len(dstTbl.Elements)) {
			return wasmruntime.TableOutOfBounds(uint64(dst), uint64(n), uint64(len(dstTbl.Elements)))
		}
		tmp := make([]api.Value, n)
		copy(tmp, srcTbl.Elements[src:uint64(src)+uint64(n)])
		copy(dstTbl.Elements[dst:uint64(dst)+uint64(n)], tmp)
	case wasm.OpTableInit:
		n := fs.Values.PopU32()
		srcOff := fs.Values.PopU32()
		dst := fs.Values.PopU32()
		elemAddr := frame.Module.Elements[instr.Index]
		elem := store.Elements[elemAddr]
		tbl := tableOf(store, frame, instr.Index2)
		srcLen := uint64(len(elem.Init))
		if elem.Dropped {
			srcLen = 0
		}
		if uint64(srcOff)+uint64(n) > srcLen {
			return wasmruntime.TableOutOfBounds(uint64(srcOff), uint64(n), srcLen)
		}
		if uint64(dst)+uint64(n) > uint64(len(tbl.Elements)) {
			return wasmruntime.TableOutOfBounds(uint64(dst), uint64(n), uint64(len(tbl.Elements)))
		}
		for i := uint32(0); i < n; i++ {
			if elem.FuncIndexValid[srcOff+i] {
				tbl.Elements[dst+i] = api.FuncRefValue(elem.Init[srcOff+i])
			} else {
				tbl.Elements[dst+i] = api.NullFuncRef()
			}
		}
	case wasm.OpElemDrop:
		elemAddr := frame.Module.Elements[instr.Index]
		store.Elements[elemAddr].Dropped = true
	}
	return nil
}
