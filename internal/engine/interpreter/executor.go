package interpreter

import (
	"math"
	"math/bits"
	"time"

	"github.com/google/uuid"

	"github.com/wippyai/tinywasm-go/api"
	"github.com/wippyai/tinywasm-go/internal/buildoptions"
	"github.com/wippyai/tinywasm-go/internal/coro"
	"github.com/wippyai/tinywasm-go/internal/wasm"
	"github.com/wippyai/tinywasm-go/internal/wasmruntime"
)

// SuspendedRuntime is the reified, paused invocation of spec §9's design
// note: a plain owned struct carrying the value/label/frame stacks, any
// pending host coroutine, the originating module and store identity. The
// executor is a short-lived view reconstructed from this state on each
// resume — there is no stackful coroutine or fiber underneath.
type SuspendedRuntime struct {
	ID      uuid.UUID
	storeID uint64
	module  *wasm.ModuleInstance
	fs      *FrameStack
	results []wasm.ValueType

	// lastReason is the SuspendReason that produced this pause, used to
	// enforce the resume-argument contract (spec §4.3: required for a
	// yield, forbidden otherwise) on the next Resume call.
	lastReason coro.SuspendReason
	// finished marks a SuspendedRuntime whose continuation has already
	// run to completion through Resume; any further Resume against it
	// is rejected rather than re-entering a drained frame stack (spec
	// §5 "Rejection of resume on a finished runtime").
	finished bool
}

// StoreID is exposed so embedders can diagnose cross-store resume
// attempts before calling Resume (spec §5 "Rejection of cross-store
// resume").
func (sr *SuspendedRuntime) StoreID() uint64 { return sr.storeID }

// Invoke drives a fresh call to fn with args, returning either final
// results or a SuspendedRuntime plus the reason it paused (spec §4.2
// "Running -> Finished / PausedAtHostCoro / PausedByCondition").
func Invoke(store *wasm.Store, module *wasm.ModuleInstance, fn *wasm.FunctionInstance, argVals []api.Value) ([]api.Value, *SuspendedRuntime, coro.SuspendReason, error) {
	sig := store.Types[fn.TypeAddr]

	locals := make([]api.Value, len(fn.Locals))
	copy(locals, argVals)
	for i := len(argVals); i < len(fn.Locals); i++ {
		locals[i] = api.DefaultValue(fn.Locals[i])
	}
	frame := &CallFrame{Body: fn.Body, Module: module, Locals: locals, ResultTypes: sig.Results}

	fs := &FrameStack{}
	if err := fs.PushFrame(frame); err != nil {
		return nil, nil, coro.SuspendReason{}, err
	}

	return runToSuspendOrFinish(store, module, fs, sig.Results)
}

// Resume continues a SuspendedRuntime (spec §4.2 "PausedAt* -> Running").
// arg must be non-nil after a yield and nil after any other reason; Resume
// checks this itself and returns InvalidResumeArgument otherwise. If a host
// coroutine is pending, arg is forwarded into it.
func Resume(store *wasm.Store, sr *SuspendedRuntime, arg any) ([]api.Value, *SuspendedRuntime, coro.SuspendReason, error) {
	if store.ID != sr.storeID {
		return nil, nil, coro.SuspendReason{}, wasmruntime.NewEmbedderError(wasmruntime.InvalidStore, "resume against a different store than the one that suspended this runtime")
	}
	if sr.finished {
		return nil, nil, coro.SuspendReason{}, wasmruntime.NewEmbedderError(wasmruntime.InvalidResume, "resume called on a SuspendedRuntime that has already finished")
	}
	if sr.lastReason.RequiresResumeArgument() {
		if arg == nil {
			return nil, nil, coro.SuspendReason{}, wasmruntime.NewEmbedderError(wasmruntime.InvalidResumeArgument, "resume argument required to satisfy a yield suspension")
		}
	} else if arg != nil {
		return nil, nil, coro.SuspendReason{}, wasmruntime.NewEmbedderError(wasmruntime.InvalidResumeArgument, "resume argument forbidden for a non-yield suspension")
	}

	if sr.fs.PendingHostCoro != nil {
		state := sr.fs.PendingHostCoro.(coro.HostCoroState)
		frame := sr.fs.CurrentFrame()
		ctx := &wasm.FuncContext{Store: store, ModuleInstance: frame.Module}
		result, err := state.Resume(ctx, arg)
		if err != nil {
			sr.fs.PendingHostCoro = nil
			sr.finished = true
			return nil, nil, coro.SuspendReason{}, err
		}
		if !result.Finished() {
			// state re-arms itself for the next resume; still pending.
			sr.lastReason = result.Reason()
			return nil, sr, result.Reason(), nil
		}
		sr.fs.PendingHostCoro = nil
		sr.fs.Values.PushResults(result.Value())
	}

	values, next, reason, err := runToSuspendOrFinish(store, sr.module, sr.fs, sr.results)
	if next == nil {
		sr.finished = true
	}
	return values, next, reason, err
}

func runToSuspendOrFinish(store *wasm.Store, module *wasm.ModuleInstance, fs *FrameStack, results []wasm.ValueType) ([]api.Value, *SuspendedRuntime, coro.SuspendReason, error) {
	reason, suspended, err := run(store, fs)
	if err != nil {
		return nil, nil, coro.SuspendReason{}, err
	}
	if suspended {
		return nil, &SuspendedRuntime{ID: uuid.New(), storeID: store.ID, module: module, fs: fs, results: results, lastReason: reason}, reason, nil
	}
	return fs.Values.PopResults(results), nil, coro.SuspendReason{}, nil
}

// run is the single-frame-at-a-time dispatch loop of spec §4.2. It
// advances fs until the outermost frame returns (ok=false) or a suspend
// condition trips / a host coroutine yields (ok=true, reason set).
func run(store *wasm.Store, fs *FrameStack) (coro.SuspendReason, bool, error) {
	pollCountdown := buildoptions.SuspendPollInterval

	for len(fs.Frames) > 0 {
		frame := fs.CurrentFrame()
		if frame.PC >= len(frame.Body.Instructions) {
			done := doReturn(store, fs)
			if done {
				return coro.SuspendReason{}, false, nil
			}
			continue
		}

		instr := frame.Body.Instructions[frame.PC]
		frame.PC++
		backEdge := false
		var trapErr error

		switch instr.Op {
		case wasm.OpUnreachable:
			trapErr = wasmruntime.NewTrap(wasmruntime.TrapUnreachable)
		case wasm.OpNop:
		case wasm.OpUnsupported:
			trapErr = wasmruntime.Unsupported(instr.Name)

		case wasm.OpBlock:
			fs.PushLabel(Label{Target: instr.EndPC, Arity: instr.Block.Arity(), ResultType: instr.Block.Result, StackHeight: fs.Values.Len()})
		case wasm.OpLoop:
			fs.PushLabel(Label{Target: frame.PC, Arity: 0, StackHeight: fs.Values.Len(), IsLoop: true})
		case wasm.OpIf:
			cond := fs.Values.PopI32()
			fs.PushLabel(Label{Target: instr.EndPC, Arity: instr.Block.Arity(), ResultType: instr.Block.Result, StackHeight: fs.Values.Len()})
			if cond == 0 {
				if instr.ElsePC != 0 {
					frame.PC = instr.ElsePC + 1
				} else {
					frame.PC = instr.EndPC
					fs.PopLabel()
				}
			}
		case wasm.OpElse:
			lbl := fs.PopLabel()
			frame.PC = lbl.Target
		case wasm.OpEnd:
			if len(fs.Labels) == frame.LabelBase {
				if doReturn(store, fs) {
					return coro.SuspendReason{}, false, nil
				}
				continue
			}
			fs.PopLabel()

		case wasm.OpBr:
			backEdge = doBranch(fs, int(instr.Index))
		case wasm.OpBrIf:
			if fs.Values.PopI32() != 0 {
				backEdge = doBranch(fs, int(instr.Index))
			}
		case wasm.OpBrTable:
			idx := fs.Values.PopU32()
			n := len(instr.Targets)
			depth := instr.Targets[n-1]
			if int(idx) < n-1 {
				depth = instr.Targets[idx]
			}
			backEdge = doBranch(fs, int(depth))
		case wasm.OpReturn:
			if doReturn(store, fs) {
				return coro.SuspendReason{}, false, nil
			}
			backEdge = true

		case wasm.OpCall:
			calleeAddr := frame.Module.Funcs[instr.Index]
			reason, suspended, err := doCall(store, fs, calleeAddr)
			if err != nil {
				return coro.SuspendReason{}, false, err
			}
			if suspended {
				return reason, true, nil
			}
			backEdge = true
		case wasm.OpCallIndirect:
			calleeAddr, resolveErr := resolveIndirectCallee(store, fs, frame, instr)
			if resolveErr != nil {
				trapErr = resolveErr
				break
			}
			reason, suspended, err := doCall(store, fs, calleeAddr)
			if err != nil {
				return coro.SuspendReason{}, false, err
			}
			if suspended {
				return reason, true, nil
			}
			backEdge = true

		case wasm.OpDrop:
			fs.Values.Pop()
		case wasm.OpSelect:
			fs.Values.Select()

		case wasm.OpLocalGet:
			fs.Values.Push(frame.Locals[instr.Index])
		case wasm.OpLocalSet:
			frame.Locals[instr.Index] = fs.Values.Pop()
		case wasm.OpLocalTee:
			frame.Locals[instr.Index] = fs.Values.Peek()
		case wasm.OpGlobalGet:
			addr := frame.Module.Globals[instr.Index]
			fs.Values.Push(store.Globals[addr].Value)
		case wasm.OpGlobalSet:
			addr := frame.Module.Globals[instr.Index]
			store.Globals[addr].Value = fs.Values.Pop()

		case wasm.OpI32Const:
			fs.Values.Push(api.I32Value(instr.I32))
		case wasm.OpI64Const:
			fs.Values.Push(api.I64Value(instr.I64))
		case wasm.OpF32Const:
			fs.Values.Push(api.F32Value(instr.F32))
		case wasm.OpF64Const:
			fs.Values.Push(api.F64Value(instr.F64))

		case wasm.OpRefNull:
			fs.Values.Push(api.DefaultValue(instr.Block.Result))
		case wasm.OpRefIsNull:
			v := fs.Values.Pop()
			if v.IsNullRef() {
				fs.Values.Push(api.I32Value(1))
			} else {
				fs.Values.Push(api.I32Value(0))
			}
		case wasm.OpRefFunc:
			fs.Values.Push(api.FuncRefValue(frame.Module.Funcs[instr.Index]))

		case wasm.OpMemorySize, wasm.OpMemoryGrow, wasm.OpMemoryFill, wasm.OpMemoryCopy, wasm.OpMemoryInit, wasm.OpDataDrop,
			wasm.OpI32Load, wasm.OpI64Load, wasm.OpF32Load, wasm.OpF64Load,
			wasm.OpI32Load8S, wasm.OpI32Load8U, wasm.OpI32Load16S, wasm.OpI32Load16U,
			wasm.OpI64Load8S, wasm.OpI64Load8U, wasm.OpI64Load16S, wasm.OpI64Load16U, wasm.OpI64Load32S, wasm.OpI64Load32U,
			wasm.OpI32Store, wasm.OpI64Store, wasm.OpF32Store, wasm.OpF64Store,
			wasm.OpI32Store8, wasm.OpI32Store16, wasm.OpI64Store8, wasm.OpI64Store16, wasm.OpI64Store32:
			trapErr = execMemoryOp(store, fs, frame, instr)

		case wasm.OpTableGet, wasm.OpTableSet, wasm.OpTableSize, wasm.OpTableGrow, wasm.OpTableFill, wasm.OpTableCopy, wasm.OpTableInit, wasm.OpElemDrop:
			trapErr = execTableOp(store, fs, frame, instr)

		case wasm.OpV128Const:
			fs.Values.Push(api.V128Value(instr.V128Lo, instr.V128Hi))
		case wasm.OpV128Not:
			fs.Values.ReplaceTopSame(func(v api.Value) api.Value { lo, hi := v.V128(); return api.V128Value(^lo, ^hi) })
		case wasm.OpV128And:
			fs.Values.CalculateSame(func(a, b api.Value) api.Value {
				alo, ahi := a.V128(); blo, bhi := b.V128()
				return api.V128Value(alo&blo, ahi&bhi)
			})
		case wasm.OpV128AndNot:
			fs.Values.CalculateSame(func(a, b api.Value) api.Value {
				alo, ahi := a.V128(); blo, bhi := b.V128()
				return api.V128Value(alo&^blo, ahi&^bhi)
			})
		case wasm.OpV128Or:
			fs.Values.CalculateSame(func(a, b api.Value) api.Value {
				alo, ahi := a.V128(); blo, bhi := b.V128()
				return api.V128Value(alo|blo, ahi|bhi)
			})
		case wasm.OpV128Xor:
			fs.Values.CalculateSame(func(a, b api.Value) api.Value {
				alo, ahi := a.V128(); blo, bhi := b.V128()
				return api.V128Value(alo^blo, ahi^bhi)
			})
		case wasm.OpV128Bitselect:
			c := fs.Values.Pop()
			b := fs.Values.Pop()
			a := fs.Values.Pop()
			clo, chi := c.V128()
			alo, ahi := a.V128()
			blo, bhi := b.V128()
			fs.Values.Push(api.V128Value((alo&clo)|(blo&^clo), (ahi&chi)|(bhi&^chi)))

		default:
			trapErr = execNumericOp(&fs.Values, instr.Op)
		}

		if trapErr != nil {
			return coro.SuspendReason{}, false, trapErr
		}

		pollCountdown--
		if backEdge || pollCountdown <= 0 {
			pollCountdown = buildoptions.SuspendPollInterval
			if reason, tripped := store.Suspend.Poll(time.Now); tripped {
				return reason, true, nil
			}
		}
	}
	return coro.SuspendReason{}, false, nil
}

// doBranch implements spec §4.2's br/br_if/br_table semantics: pop to the
// depth-th enclosing label's entry height, push that label's result
// values, and jump to its target. Returns true for a loop (back-edge)
// branch so the caller can treat it as an immediate poll point.
func doBranch(fs *FrameStack, depth int) bool {
	label := fs.LabelAt(depth)
	var result api.Value
	hasResult := label.Arity == 1
	if hasResult {
		result = fs.Values.Pop()
	}
	fs.Values.Truncate(label.StackHeight)
	if hasResult {
		fs.Values.Push(result)
	}
	if !label.IsLoop {
		fs.Labels = fs.Labels[:len(fs.Labels)-1-depth]
	} else {
		fs.Labels = fs.Labels[:len(fs.Labels)-depth]
	}
	fs.CurrentFrame().PC = label.Target
	return label.IsLoop
}

// doReturn implements the frame-exit reshuffle of spec §4.1, used both for
// an explicit "return" and falling off the end of the function body.
// Reports whether the entire invocation just finished (the frame stack is
// now empty).
func doReturn(store *wasm.Store, fs *FrameStack) bool {
	frame := fs.CurrentFrame()
	fs.ReturnFrame(frame.ResultTypes)
	return len(fs.Frames) == 0
}

// execNumericOp dispatches the scalar arithmetic/comparison/conversion
// opcodes, using the pop/op/push fuse helpers from stack.go (spec §4.1's
// calculate/calculate_same/replace_top_same).
func execNumericOp(s *ValueStack, op wasm.Opcode) error {
	switch op {
	// i32
	case wasm.OpI32Eqz:
		s.ReplaceTopSame(func(v api.Value) api.Value { return boolI32(v.I32() == 0) })
	case wasm.OpI32Eq:
		s.Calculate(func(a, b api.Value) api.Value { return boolI32(a.I32() == b.I32()) })
	case wasm.OpI32Ne:
		s.Calculate(func(a, b api.Value) api.Value { return boolI32(a.I32() != b.I32()) })
	case wasm.OpI32LtS:
		s.Calculate(func(a, b api.Value) api.Value { return boolI32(a.I32() < b.I32()) })
	case wasm.OpI32LtU:
		s.Calculate(func(a, b api.Value) api.Value { return boolI32(a.U32() < b.U32()) })
	case wasm.OpI32GtS:
		s.Calculate(func(a, b api.Value) api.Value { return boolI32(a.I32() > b.I32()) })
	case wasm.OpI32GtU:
		s.Calculate(func(a, b api.Value) api.Value { return boolI32(a.U32() > b.U32()) })
	case wasm.OpI32LeS:
		s.Calculate(func(a, b api.Value) api.Value { return boolI32(a.I32() <= b.I32()) })
	case wasm.OpI32LeU:
		s.Calculate(func(a, b api.Value) api.Value { return boolI32(a.U32() <= b.U32()) })
	case wasm.OpI32GeS:
		s.Calculate(func(a, b api.Value) api.Value { return boolI32(a.I32() >= b.I32()) })
	case wasm.OpI32GeU:
		s.Calculate(func(a, b api.Value) api.Value { return boolI32(a.U32() >= b.U32()) })
	case wasm.OpI32Clz:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.I32Value(int32(bits.LeadingZeros32(v.U32()))) })
	case wasm.OpI32Ctz:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.I32Value(int32(bits.TrailingZeros32(v.U32()))) })
	case wasm.OpI32Popcnt:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.I32Value(int32(bits.OnesCount32(v.U32()))) })
	case wasm.OpI32Add:
		s.CalculateSame(func(a, b api.Value) api.Value { return api.I32Value(a.I32() + b.I32()) })
	case wasm.OpI32Sub:
		s.CalculateSame(func(a, b api.Value) api.Value { return api.I32Value(a.I32() - b.I32()) })
	case wasm.OpI32Mul:
		s.CalculateSame(func(a, b api.Value) api.Value { return api.I32Value(a.I32() * b.I32()) })
	case wasm.OpI32DivS:
		return binOpErr(s, func(a, b api.Value) (api.Value, error) {
			r, err := divS32(a.I32(), b.I32())
			return api.I32Value(r), err
		})
	case wasm.OpI32DivU:
		return binOpErr(s, func(a, b api.Value) (api.Value, error) {
			r, err := divU32(a.U32(), b.U32())
			return api.U32Value(r), err
		})
	case wasm.OpI32RemS:
		return binOpErr(s, func(a, b api.Value) (api.Value, error) {
			r, err := remS32(a.I32(), b.I32())
			return api.I32Value(r), err
		})
	case wasm.OpI32RemU:
		return binOpErr(s, func(a, b api.Value) (api.Value, error) {
			r, err := remU32(a.U32(), b.U32())
			return api.U32Value(r), err
		})
	case wasm.OpI32And:
		s.CalculateSame(func(a, b api.Value) api.Value { return api.U32Value(a.U32() & b.U32()) })
	case wasm.OpI32Or:
		s.CalculateSame(func(a, b api.Value) api.Value { return api.U32Value(a.U32() | b.U32()) })
	case wasm.OpI32Xor:
		s.CalculateSame(func(a, b api.Value) api.Value { return api.U32Value(a.U32() ^ b.U32()) })
	case wasm.OpI32Shl:
		s.CalculateSame(func(a, b api.Value) api.Value { return api.U32Value(a.U32() << (b.U32() & 31)) })
	case wasm.OpI32ShrS:
		s.CalculateSame(func(a, b api.Value) api.Value { return api.I32Value(a.I32() >> (b.U32() & 31)) })
	case wasm.OpI32ShrU:
		s.CalculateSame(func(a, b api.Value) api.Value { return api.U32Value(a.U32() >> (b.U32() & 31)) })
	case wasm.OpI32Rotl:
		s.CalculateSame(func(a, b api.Value) api.Value { return api.U32Value(rotl32(a.U32(), b.U32())) })
	case wasm.OpI32Rotr:
		s.CalculateSame(func(a, b api.Value) api.Value { return api.U32Value(rotr32(a.U32(), b.U32())) })

	// i64
	case wasm.OpI64Eqz:
		s.ReplaceTopSame(func(v api.Value) api.Value { return boolI32(v.I64() == 0) })
	case wasm.OpI64Eq:
		s.Calculate(func(a, b api.Value) api.Value { return boolI32(a.I64() == b.I64()) })
	case wasm.OpI64Ne:
		s.Calculate(func(a, b api.Value) api.Value { return boolI32(a.I64() != b.I64()) })
	case wasm.OpI64LtS:
		s.Calculate(func(a, b api.Value) api.Value { return boolI32(a.I64() < b.I64()) })
	case wasm.OpI64LtU:
		s.Calculate(func(a, b api.Value) api.Value { return boolI32(a.U64() < b.U64()) })
	case wasm.OpI64GtS:
		s.Calculate(func(a, b api.Value) api.Value { return boolI32(a.I64() > b.I64()) })
	case wasm.OpI64GtU:
		s.Calculate(func(a, b api.Value) api.Value { return boolI32(a.U64() > b.U64()) })
	case wasm.OpI64LeS:
		s.Calculate(func(a, b api.Value) api.Value { return boolI32(a.I64() <= b.I64()) })
	case wasm.OpI64LeU:
		s.Calculate(func(a, b api.Value) api.Value { return boolI32(a.U64() <= b.U64()) })
	case wasm.OpI64GeS:
		s.Calculate(func(a, b api.Value) api.Value { return boolI32(a.I64() >= b.I64()) })
	case wasm.OpI64GeU:
		s.Calculate(func(a, b api.Value) api.Value { return boolI32(a.U64() >= b.U64()) })
	case wasm.OpI64Clz:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.I64Value(int64(bits.LeadingZeros64(v.U64()))) })
	case wasm.OpI64Ctz:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.I64Value(int64(bits.TrailingZeros64(v.U64()))) })
	case wasm.OpI64Popcnt:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.I64Value(int64(bits.OnesCount64(v.U64()))) })
	case wasm.OpI64Add:
		s.CalculateSame(func(a, b api.Value) api.Value { return api.I64Value(a.I64() + b.I64()) })
	case wasm.OpI64Sub:
		s.CalculateSame(func(a, b api.Value) api.Value { return api.I64Value(a.I64() - b.I64()) })
	case wasm.OpI64Mul:
		s.CalculateSame(func(a, b api.Value) api.Value { return api.I64Value(a.I64() * b.I64()) })
	case wasm.OpI64DivS:
		return binOpErr(s, func(a, b api.Value) (api.Value, error) {
			r, err := divS64(a.I64(), b.I64())
			return api.I64Value(r), err
		})
	case wasm.OpI64DivU:
		return binOpErr(s, func(a, b api.Value) (api.Value, error) {
			r, err := divU64(a.U64(), b.U64())
			return api.U64Value(r), err
		})
	case wasm.OpI64RemS:
		return binOpErr(s, func(a, b api.Value) (api.Value, error) {
			r, err := remS64(a.I64(), b.I64())
			return api.I64Value(r), err
		})
	case wasm.OpI64RemU:
		return binOpErr(s, func(a, b api.Value) (api.Value, error) {
			r, err := remU64(a.U64(), b.U64())
			return api.U64Value(r), err
		})
	case wasm.OpI64And:
		s.CalculateSame(func(a, b api.Value) api.Value { return api.U64Value(a.U64() & b.U64()) })
	case wasm.OpI64Or:
		s.CalculateSame(func(a, b api.Value) api.Value { return api.U64Value(a.U64() | b.U64()) })
	case wasm.OpI64Xor:
		s.CalculateSame(func(a, b api.Value) api.Value { return api.U64Value(a.U64() ^ b.U64()) })
	case wasm.OpI64Shl:
		s.CalculateSame(func(a, b api.Value) api.Value { return api.U64Value(a.U64() << (b.U64() & 63)) })
	case wasm.OpI64ShrS:
		s.CalculateSame(func(a, b api.Value) api.Value { return api.I64Value(a.I64() >> (b.U64() & 63)) })
	case wasm.OpI64ShrU:
		s.CalculateSame(func(a, b api.Value) api.Value { return api.U64Value(a.U64() >> (b.U64() & 63)) })
	case wasm.OpI64Rotl:
		s.CalculateSame(func(a, b api.Value) api.Value { return api.U64Value(rotl64(a.U64(), b.U64())) })
	case wasm.OpI64Rotr:
		s.CalculateSame(func(a, b api.Value) api.Value { return api.U64Value(rotr64(a.U64(), b.U64())) })

	// f32
	case wasm.OpF32Eq:
		s.Calculate(func(a, b api.Value) api.Value { return boolI32(a.F32() == b.F32()) })
	case wasm.OpF32Ne:
		s.Calculate(func(a, b api.Value) api.Value { return boolI32(a.F32() != b.F32()) })
	case wasm.OpF32Lt:
		s.Calculate(func(a, b api.Value) api.Value { return boolI32(a.F32() < b.F32()) })
	case wasm.OpF32Gt:
		s.Calculate(func(a, b api.Value) api.Value { return boolI32(a.F32() > b.F32()) })
	case wasm.OpF32Le:
		s.Calculate(func(a, b api.Value) api.Value { return boolI32(a.F32() <= b.F32()) })
	case wasm.OpF32Ge:
		s.Calculate(func(a, b api.Value) api.Value { return boolI32(a.F32() >= b.F32()) })
	case wasm.OpF32Abs:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.F32Value(float32(math.Abs(float64(v.F32())))) })
	case wasm.OpF32Neg:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.F32Value(-v.F32()) })
	case wasm.OpF32Ceil:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.F32Value(float32(math.Ceil(float64(v.F32())))) })
	case wasm.OpF32Floor:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.F32Value(float32(math.Floor(float64(v.F32())))) })
	case wasm.OpF32Trunc:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.F32Value(float32(math.Trunc(float64(v.F32())))) })
	case wasm.OpF32Nearest:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.F32Value(nearest32(v.F32())) })
	case wasm.OpF32Sqrt:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.F32Value(float32(math.Sqrt(float64(v.F32())))) })
	case wasm.OpF32Add:
		s.CalculateSame(func(a, b api.Value) api.Value { return api.F32Value(a.F32() + b.F32()) })
	case wasm.OpF32Sub:
		s.CalculateSame(func(a, b api.Value) api.Value { return api.F32Value(a.F32() - b.F32()) })
	case wasm.OpF32Mul:
		s.CalculateSame(func(a, b api.Value) api.Value { return api.F32Value(a.F32() * b.F32()) })
	case wasm.OpF32Div:
		s.CalculateSame(func(a, b api.Value) api.Value { return api.F32Value(a.F32() / b.F32()) })
	case wasm.OpF32Min:
		s.CalculateSame(func(a, b api.Value) api.Value { return api.F32Value(wasmMin32(a.F32(), b.F32())) })
	case wasm.OpF32Max:
		s.CalculateSame(func(a, b api.Value) api.Value { return api.F32Value(wasmMax32(a.F32(), b.F32())) })
	case wasm.OpF32Copysign:
		s.CalculateSame(func(a, b api.Value) api.Value {
			return api.F32Value(float32(math.Copysign(float64(a.F32()), float64(b.F32()))))
		})

	// f64
	case wasm.OpF64Eq:
		s.Calculate(func(a, b api.Value) api.Value { return boolI32(a.F64() == b.F64()) })
	case wasm.OpF64Ne:
		s.Calculate(func(a, b api.Value) api.Value { return boolI32(a.F64() != b.F64()) })
	case wasm.OpF64Lt:
		s.Calculate(func(a, b api.Value) api.Value { return boolI32(a.F64() < b.F64()) })
	case wasm.OpF64Gt:
		s.Calculate(func(a, b api.Value) api.Value { return boolI32(a.F64() > b.F64()) })
	case wasm.OpF64Le:
		s.Calculate(func(a, b api.Value) api.Value { return boolI32(a.F64() <= b.F64()) })
	case wasm.OpF64Ge:
		s.Calculate(func(a, b api.Value) api.Value { return boolI32(a.F64() >= b.F64()) })
	case wasm.OpF64Abs:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.F64Value(math.Abs(v.F64())) })
	case wasm.OpF64Neg:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.F64Value(-v.F64()) })
	case wasm.OpF64Ceil:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.F64Value(math.Ceil(v.F64())) })
	case wasm.OpF64Floor:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.F64Value(math.Floor(v.F64())) })
	case wasm.OpF64Trunc:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.F64Value(math.Trunc(v.F64())) })
	case wasm.OpF64Nearest:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.F64Value(nearest64(v.F64())) })
	case wasm.OpF64Sqrt:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.F64Value(math.Sqrt(v.F64())) })
	case wasm.OpF64Add:
		s.CalculateSame(func(a, b api.Value) api.Value { return api.F64Value(a.F64() + b.F64()) })
	case wasm.OpF64Sub:
		s.CalculateSame(func(a, b api.Value) api.Value { return api.F64Value(a.F64() - b.F64()) })
	case wasm.OpF64Mul:
		s.CalculateSame(func(a, b api.Value) api.Value { return api.F64Value(a.F64() * b.F64()) })
	case wasm.OpF64Div:
		s.CalculateSame(func(a, b api.Value) api.Value { return api.F64Value(a.F64() / b.F64()) })
	case wasm.OpF64Min:
		s.CalculateSame(func(a, b api.Value) api.Value { return api.F64Value(wasmMin64(a.F64(), b.F64())) })
	case wasm.OpF64Max:
		s.CalculateSame(func(a, b api.Value) api.Value { return api.F64Value(wasmMax64(a.F64(), b.F64())) })
	case wasm.OpF64Copysign:
		s.CalculateSame(func(a, b api.Value) api.Value { return api.F64Value(math.Copysign(a.F64(), b.F64())) })

	// conversions
	case wasm.OpI32WrapI64:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.I32Value(int32(v.I64())) })
	case wasm.OpI32TruncF32S:
		return unOpErr(s, func(v api.Value) (api.Value, error) { r, err := truncToI32S(float64(v.F32())); return api.I32Value(r), err })
	case wasm.OpI32TruncF32U:
		return unOpErr(s, func(v api.Value) (api.Value, error) { r, err := truncToI32U(float64(v.F32())); return api.U32Value(r), err })
	case wasm.OpI32TruncF64S:
		return unOpErr(s, func(v api.Value) (api.Value, error) { r, err := truncToI32S(v.F64()); return api.I32Value(r), err })
	case wasm.OpI32TruncF64U:
		return unOpErr(s, func(v api.Value) (api.Value, error) { r, err := truncToI32U(v.F64()); return api.U32Value(r), err })
	case wasm.OpI64ExtendI32S:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.I64Value(int64(v.I32())) })
	case wasm.OpI64ExtendI32U:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.I64Value(int64(v.U32())) })
	case wasm.OpI64TruncF32S:
		return unOpErr(s, func(v api.Value) (api.Value, error) { r, err := truncToI64S(float64(v.F32())); return api.I64Value(r), err })
	case wasm.OpI64TruncF32U:
		return unOpErr(s, func(v api.Value) (api.Value, error) { r, err := truncToI64U(float64(v.F32())); return api.U64Value(r), err })
	case wasm.OpI64TruncF64S:
		return unOpErr(s, func(v api.Value) (api.Value, error) { r, err := truncToI64S(v.F64()); return api.I64Value(r), err })
	case wasm.OpI64TruncF64U:
		return unOpErr(s, func(v api.Value) (api.Value, error) { r, err := truncToI64U(v.F64()); return api.U64Value(r), err })
	case wasm.OpF32ConvertI32S:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.F32Value(float32(v.I32())) })
	case wasm.OpF32ConvertI32U:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.F32Value(float32(v.U32())) })
	case wasm.OpF32ConvertI64S:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.F32Value(float32(v.I64())) })
	case wasm.OpF32ConvertI64U:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.F32Value(float32(v.U64())) })
	case wasm.OpF32DemoteF64:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.F32Value(float32(v.F64())) })
	case wasm.OpF64ConvertI32S:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.F64Value(float64(v.I32())) })
	case wasm.OpF64ConvertI32U:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.F64Value(float64(v.U32())) })
	case wasm.OpF64ConvertI64S:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.F64Value(float64(v.I64())) })
	case wasm.OpF64ConvertI64U:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.F64Value(float64(v.U64())) })
	case wasm.OpF64PromoteF32:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.F64Value(float64(v.F32())) })
	case wasm.OpI32ReinterpretF32:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.U32Value(math.Float32bits(v.F32())) })
	case wasm.OpI64ReinterpretF64:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.U64Value(math.Float64bits(v.F64())) })
	case wasm.OpF32ReinterpretI32:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.F32Value(math.Float32frombits(v.U32())) })
	case wasm.OpF64ReinterpretI64:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.F64Value(math.Float64frombits(v.U64())) })
	case wasm.OpI32Extend8S:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.I32Value(int32(int8(v.I32()))) })
	case wasm.OpI32Extend16S:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.I32Value(int32(int16(v.I32()))) })
	case wasm.OpI64Extend8S:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.I64Value(int64(int8(v.I64()))) })
	case wasm.OpI64Extend16S:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.I64Value(int64(int16(v.I64()))) })
	case wasm.OpI64Extend32S:
		s.ReplaceTopSame(func(v api.Value) api.Value { return api.I64Value(int64(int32(v.I64()))) })

	default:
		return wasmruntime.Unsupported("unknown opcode")
	}
	return nil
}

func boolI32(b bool) api.Value {
	if b {
		return api.I32Value(1)
	}
	return api.I32Value(0)
}

func unOpErr(s *ValueStack, f func(api.Value) (api.Value, error)) error {
	v := s.Pop()
	r, err := f(v)
	if err != nil {
		return err
	}
	s.Push(r)
	return nil
}

func binOpErr(s *ValueStack, f func(a, b api.Value) (api.Value, error)) error {
	b := s.Pop()
	a := s.Pop()
	r, err := f(a, b)
	if err != nil {
		return err
	}
	s.Push(r)
	return nil
}
