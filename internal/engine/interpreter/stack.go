// Package interpreter implements the stack machinery (spec §4.1) and the
// instruction dispatch loop (spec §4.2) — the executor that advances one
// call frame at a time, with branch/return/call transitions, memory/table
// access with trap checks, and the suspend-check poll point.
//
// Grounded on wazero's internal/engine/interpreter callEngine (push/pop/
// peek/drop helpers, a slice-backed operand stack and a frame stack) and
// on the older top-level wasm.VirtualMachine/NativeFunctionContext byte-PC
// model, generalized here to carry reifiable suspended state instead of
// running to completion in one Go call.
package interpreter

import (
	"fmt"

	"github.com/wippyai/tinywasm-go/api"
	"github.com/wippyai/tinywasm-go/internal/buildoptions"
	"github.com/wippyai/tinywasm-go/internal/wasm"
	"github.com/wippyai/tinywasm-go/internal/wasmruntime"
)

// ValueStack is the heterogeneous, typed operand stack of spec §4.1.
type ValueStack struct {
	values []api.Value
}

func (s *ValueStack) Push(v api.Value) { s.values = append(s.values, v) }

func (s *ValueStack) Pop() api.Value {
	top := len(s.values) - 1
	v := s.values[top]
	s.values = s.values[:top]
	return v
}

func (s *ValueStack) Peek() api.Value { return s.values[len(s.values)-1] }

func (s *ValueStack) Len() int { return len(s.values) }

// Truncate drops the stack back to height entries.
func (s *ValueStack) Truncate(height int) { s.values = s.values[:height] }

// PopResults pops len(types) values and returns them in declared (not
// stack) order — the top of the stack is types[len(types)-1].
func (s *ValueStack) PopResults(types []api.ValueType) []api.Value {
	n := len(types)
	if n == 0 {
		return nil
	}
	out := make([]api.Value, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = s.Pop()
	}
	return out
}

// PushResults pushes vs in declared order.
func (s *ValueStack) PushResults(vs []api.Value) {
	for _, v := range vs {
		s.Push(v)
	}
}

func (s *ValueStack) PopI32() int32 { return s.Pop().I32() }
func (s *ValueStack) PopU32() uint32 { return s.Pop().U32() }
func (s *ValueStack) PopI64() int64 { return s.Pop().I64() }
func (s *ValueStack) PopU64() uint64 { return s.Pop().U64() }
func (s *ValueStack) PopF32() float32 { return s.Pop().F32() }
func (s *ValueStack) PopF64() float64 { return s.Pop().F64() }

// Select implements the "select" instruction: pop cond, b, a in that
// stack order and push a if cond != 0, else b.
func (s *ValueStack) Select() {
	cond := s.PopI32()
	b := s.Pop()
	a := s.Pop()
	if cond != 0 {
		s.Push(a)
	} else {
		s.Push(b)
	}
}

// ReplaceTopSame fuses pop/op/push for a unary operator whose result
// replaces the operand in place.
func (s *ValueStack) ReplaceTopSame(f func(api.Value) api.Value) {
	top := len(s.values) - 1
	s.values[top] = f(s.values[top])
}

// CalculateSame fuses pop/op/push for a binary operator: pops b then a
// (a was pushed first), pushes f(a, b).
func (s *ValueStack) CalculateSame(f func(a, b api.Value) api.Value) {
	b := s.Pop()
	a := s.Pop()
	s.Push(f(a, b))
}

// Calculate is CalculateSame's general form: the result Kind need not
// match the operand Kind (used by comparisons, which always yield i32).
func (s *ValueStack) Calculate(f func(a, b api.Value) api.Value) {
	s.CalculateSame(f)
}

// Label is one entry of spec §4.1's block stack: where a branch to this
// label jumps, how many values it preserves, and the operand-stack height
// to truncate to.
type Label struct {
	Target      int // program counter a branch jumps to
	Arity       int // 0 or 1 in WebAssembly 1.0
	ResultType  api.ValueType
	StackHeight int // value-stack height at label entry
	IsLoop      bool
}

// CallFrame is one entry of spec §4.1's call-frame stack.
type CallFrame struct {
	Body       *wasm.FunctionBody
	Module     *wasm.ModuleInstance
	Locals     []api.Value
	PC         int
	LabelBase  int // index into the shared label stack where this frame's labels begin
	EntryHeight int // value-stack height when this frame was entered

	// ResultTypes is the owning function's declared result signature,
	// cached here so a return (or falling off the end of the body) can
	// reshuffle the value stack without a Store lookup.
	ResultTypes []api.ValueType
}

var callStackCeiling = buildoptions.CallStackCeiling

// FrameStack is the call-frame stack of spec §4.1, sharing one Label
// stack and one ValueStack across every active frame of an invocation.
type FrameStack struct {
	Frames []*CallFrame
	Labels []Label
	Values ValueStack

	// PendingHostCoro is the "hole" the executor carries when a host
	// coroutine has yielded: it must be resumed before normal instruction
	// execution continues (spec §4.3). It holds a coro.HostCoroState,
	// stored as `any` and type-asserted by Resume.
	PendingHostCoro any
}

func (fs *FrameStack) PushFrame(f *CallFrame) error {
	if len(fs.Frames) >= callStackCeiling {
		return wasmruntime.NewTrap(wasmruntime.TrapCallStackOverflow)
	}
	fs.Frames = append(fs.Frames, f)
	return nil
}

func (fs *FrameStack) PopFrame() *CallFrame {
	top := len(fs.Frames) - 1
	f := fs.Frames[top]
	fs.Frames = fs.Frames[:top]
	return f
}

func (fs *FrameStack) CurrentFrame() *CallFrame { return fs.Frames[len(fs.Frames)-1] }

func (fs *FrameStack) PushLabel(l Label) { fs.Labels = append(fs.Labels, l) }

func (fs *FrameStack) PopLabel() Label {
	top := len(fs.Labels) - 1
	l := fs.Labels[top]
	fs.Labels = fs.Labels[:top]
	return l
}

// LabelAt returns the depth-th enclosing label (0 = innermost) of the
// current frame.
func (fs *FrameStack) LabelAt(depth int) Label {
	return fs.Labels[len(fs.Labels)-1-depth]
}

// TruncateLabels drops label-stack entries back to the given length.
func (fs *FrameStack) TruncateLabels(n int) { fs.Labels = fs.Labels[:n] }

// ReturnFrame implements spec §4.1's frame-exit reshuffle: pop the
// declared result count into a scratch buffer, truncate the value stack
// to the frame's entry height, push the results back, then pop the frame
// and its labels.
func (fs *FrameStack) ReturnFrame(resultTypes []api.ValueType) {
	results := fs.Values.PopResults(resultTypes)
	frame := fs.CurrentFrame()
	if buildoptions.IstTest && fs.Values.Len() != frame.EntryHeight {
		panic(fmt.Sprintf("tinywasm: frame exit stack height invariant violated: have %d, want %d", fs.Values.Len(), frame.EntryHeight))
	}
	fs.Values.Truncate(frame.EntryHeight)
	fs.Values.PushResults(results)
	fs.TruncateLabels(frame.LabelBase)
	fs.PopFrame()
}
