package wasm

// Opcode identifies one decoded instruction. The set covers WebAssembly
// 1.0 plus the handful of bitwise v128 operators spec §1 calls out as the
// only in-scope SIMD surface; any other SIMD opcode is rejected with
// wasmruntime.Unsupported rather than silently skipped (spec §9 resolves
// the source's "open question" this way).
type Opcode uint16

const (
	OpUnreachable Opcode = iota
	OpNop
	OpBlock
	OpLoop
	OpIf
	OpElse
	OpEnd
	OpBr
	OpBrIf
	OpBrTable
	OpReturn
	OpCall
	OpCallIndirect

	OpDrop
	OpSelect

	OpLocalGet
	OpLocalSet
	OpLocalTee
	OpGlobalGet
	OpGlobalSet

	OpTableGet
	OpTableSet
	OpTableSize
	OpTableGrow
	OpTableFill
	OpTableCopy
	OpTableInit
	OpElemDrop

	OpI32Load
	OpI64Load
	OpF32Load
	OpF64Load
	OpI32Load8S
	OpI32Load8U
	OpI32Load16S
	OpI32Load16U
	OpI64Load8S
	OpI64Load8U
	OpI64Load16S
	OpI64Load16U
	OpI64Load32S
	OpI64Load32U
	OpI32Store
	OpI64Store
	OpF32Store
	OpF64Store
	OpI32Store8
	OpI32Store16
	OpI64Store8
	OpI64Store16
	OpI64Store32
	OpMemorySize
	OpMemoryGrow
	OpMemoryFill
	OpMemoryCopy
	OpMemoryInit
	OpDataDrop

	OpI32Const
	OpI64Const
	OpF32Const
	OpF64Const

	// i32 ops
	OpI32Eqz
	OpI32Eq
	OpI32Ne
	OpI32LtS
	OpI32LtU
	OpI32GtS
	OpI32GtU
	OpI32LeS
	OpI32LeU
	OpI32GeS
	OpI32GeU
	OpI32Clz
	OpI32Ctz
	OpI32Popcnt
	OpI32Add
	OpI32Sub
	OpI32Mul
	OpI32DivS
	OpI32DivU
	OpI32RemS
	OpI32RemU
	OpI32And
	OpI32Or
	OpI32Xor
	OpI32Shl
	OpI32ShrS
	OpI32ShrU
	OpI32Rotl
	OpI32Rotr

	// i64 ops
	OpI64Eqz
	OpI64Eq
	OpI64Ne
	OpI64LtS
	OpI64LtU
	OpI64GtS
	OpI64GtU
	OpI64LeS
	OpI64LeU
	OpI64GeS
	OpI64GeU
	OpI64Clz
	OpI64Ctz
	OpI64Popcnt
	OpI64Add
	OpI64Sub
	OpI64Mul
	OpI64DivS
	OpI64DivU
	OpI64RemS
	OpI64RemU
	OpI64And
	OpI64Or
	OpI64Xor
	OpI64Shl
	OpI64ShrS
	OpI64ShrU
	OpI64Rotl
	OpI64Rotr

	// f32 ops
	OpF32Eq
	OpF32Ne
	OpF32Lt
	OpF32Gt
	OpF32Le
	OpF32Ge
	OpF32Abs
	OpF32Neg
	OpF32Ceil
	OpF32Floor
	OpF32Trunc
	OpF32Nearest
	OpF32Sqrt
	OpF32Add
	OpF32Sub
	OpF32Mul
	OpF32Div
	OpF32Min
	OpF32Max
	OpF32Copysign

	// f64 ops
	OpF64Eq
	OpF64Ne
	OpF64Lt
	OpF64Gt
	OpF64Le
	OpF64Ge
	OpF64Abs
	OpF64Neg
	OpF64Ceil
	OpF64Floor
	OpF64Trunc
	OpF64Nearest
	OpF64Sqrt
	OpF64Add
	OpF64Sub
	OpF64Mul
	OpF64Div
	OpF64Min
	OpF64Max
	OpF64Copysign

	// conversions
	OpI32WrapI64
	OpI32TruncF32S
	OpI32TruncF32U
	OpI32TruncF64S
	OpI32TruncF64U
	OpI64ExtendI32S
	OpI64ExtendI32U
	OpI64TruncF32S
	OpI64TruncF32U
	OpI64TruncF64S
	OpI64TruncF64U
	OpF32ConvertI32S
	OpF32ConvertI32U
	OpF32ConvertI64S
	OpF32ConvertI64U
	OpF32DemoteF64
	OpF64ConvertI32S
	OpF64ConvertI32U
	OpF64ConvertI64S
	OpF64ConvertI64U
	OpF64PromoteF32
	OpI32ReinterpretF32
	OpI64ReinterpretF64
	OpF32ReinterpretI32
	OpF64ReinterpretI64
	OpI32Extend8S
	OpI32Extend16S
	OpI64Extend8S
	OpI64Extend16S
	OpI64Extend32S

	// reference types
	OpRefNull
	OpRefIsNull
	OpRefFunc

	// v128 bitwise subset (spec §1 non-goal: "SIMD proposal beyond a
	// handful of bitwise operators").
	OpV128Const
	OpV128Not
	OpV128And
	OpV128AndNot
	OpV128Or
	OpV128Xor
	OpV128Bitselect

	// Any opcode outside this set decodes to OpUnsupported with Instruction.Name set.
	OpUnsupported
)

// MemArg is the offset/align pair carried by memory load/store
// instructions.
type MemArg struct {
	Offset uint32
	Align  uint32
}

// BlockType is WebAssembly 1.0's restricted block signature: either no
// result or exactly one. (Full multi-value block types are a post-1.0
// feature and out of scope.)
type BlockType struct {
	HasResult bool
	Result    ValueType
	// ParamCount is 0 in WebAssembly 1.0 (blocks never take parameters);
	// kept as a field so label arity plumbing generalizes without reshaping
	// the struct if multi-value blocks are added later.
	ParamCount int
}

func (b BlockType) Arity() int {
	if b.HasResult {
		return 1
	}
	return 0
}

// Instruction is one decoded opcode plus whichever operand fields it uses.
type Instruction struct {
	Op Opcode

	// Name carries the textual opcode for OpUnsupported diagnostics.
	Name string

	// Index operands: local/global/func/type/table/elem/data index
	// depending on Op.
	Index  uint32
	Index2 uint32 // call_indirect's table index; table.{copy,init}'s 2nd index

	Mem MemArg

	I32 int32
	I64 int64
	F32 float32
	F64 float64

	V128Lo, V128Hi uint64

	Block BlockType
	// EndPC/ElsePC are filled in by NewFunctionBody: EndPC is the
	// instruction index one past the matching `end`; ElsePC is the index
	// of the matching `else`, or 0 if none.
	EndPC  int
	ElsePC int

	// Targets holds br_table's (depth-per-case..., defaultDepth) — the
	// last element is the default.
	Targets []uint32
}

// FunctionBody is a function's resolved instruction stream: ready for the
// executor to walk with a bare program counter, no further structural
// scanning required.
type FunctionBody struct {
	Instructions []Instruction
}

// NewFunctionBody resolves block/loop/if/else/end nesting in raw into jump
// targets and returns the ready-to-execute body. raw is assumed to be
// already validated (balanced block structure) per spec §1's decoder
// contract.
func NewFunctionBody(raw []Instruction) *FunctionBody {
	type open struct {
		pc     int
		elsePC int
	}
	var stack []open
	for pc := range raw {
		switch raw[pc].Op {
		case OpBlock, OpLoop, OpIf:
			stack = append(stack, open{pc: pc})
		case OpElse:
			top := &stack[len(stack)-1]
			top.elsePC = pc
			raw[pc].EndPC = 0 // unused: the matching `end` patches only the if's EndPC
		case OpEnd:
			if len(stack) == 0 {
				continue // function-level end
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			raw[top.pc].EndPC = pc + 1
			if top.elsePC != 0 {
				raw[top.pc].ElsePC = top.elsePC
			}
		}
	}
	return &FunctionBody{Instructions: raw}
}
