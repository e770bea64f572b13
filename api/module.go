package api

// Memory is the embedder's restricted view onto a module instance's linear
// memory (spec §3 "Memory instance", §6 "Read/write memory and global
// values directly via store accessors"). Offsets are always little-endian
// per spec §4.2.
type Memory interface {
	// Size returns the current size in bytes (pages * 65536).
	Size() uint32

	// Grow increases memory by deltaPages (64 KiB each). It returns the
	// previous size in pages and true on success, or false if the delta
	// would exceed the configured maximum or the allocator refuses — this
	// mirrors the "memory.grow" instruction, which is not a trap on
	// failure.
	Grow(deltaPages uint32) (previousPages uint32, ok bool)

	// ReadByte, ReadUint32Le and ReadFloat64Le read a value at offset, or
	// return false if the access is out of bounds.
	ReadByte(offset uint32) (byte, bool)
	ReadUint32Le(offset uint32) (uint32, bool)
	ReadUint64Le(offset uint32) (uint64, bool)
	ReadFloat32Le(offset uint32) (float32, bool)
	ReadFloat64Le(offset uint32) (float64, bool)

	// Read returns a byteLength view of the underlying buffer starting at
	// offset, or false if out of bounds. The slice aliases live memory.
	Read(offset, byteLength uint32) ([]byte, bool)

	WriteByte(offset uint32, v byte) bool
	WriteUint32Le(offset uint32, v uint32) bool
	WriteUint64Le(offset uint32, v uint64) bool
	WriteFloat32Le(offset uint32, v float32) bool
	WriteFloat64Le(offset uint32, v float64) bool
	Write(offset uint32, v []byte) bool
}

// Global is a WebAssembly global exported from an instantiated module.
type Global interface {
	Type() ValueType
	Get() Value
}

// MutableGlobal is a Global whose value may be updated. Set panics if the
// global is not mutable; callers that do not control the schema should
// check via a type assertion first (spec §3 "Global mutation is permitted
// iff mutable = true").
type MutableGlobal interface {
	Global
	Set(v Value)
}
