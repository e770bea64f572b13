package tinywasm

import (
	"encoding/binary"
	"math"

	"github.com/wippyai/tinywasm-go/internal/wasm"
)

// memoryView adapts a *wasm.MemoryInstance to the embedder-facing
// api.Memory interface (spec §6), bounds-checking every access rather than
// trapping: out-of-range reads/writes return ok=false, mirroring wazero's
// api.Memory contract.
type memoryView struct {
	mem *wasm.MemoryInstance
}

func (m *memoryView) Size() uint32 { return uint32(len(m.mem.Data)) }

func (m *memoryView) Grow(deltaPages uint32) (uint32, bool) {
	old := m.mem.Pages()
	newPages := uint64(old) + uint64(deltaPages)
	if newPages > maxPages || (m.mem.Max != nil && newPages > uint64(*m.mem.Max)) {
		return 0, false
	}
	m.mem.Data = append(m.mem.Data, make([]byte, uint64(deltaPages)*wasm.PageSize)...)
	return old, true
}

const maxPages = 65536

func (m *memoryView) fits(offset, length uint32) bool {
	end := uint64(offset) + uint64(length)
	return end <= uint64(len(m.mem.Data))
}

func (m *memoryView) ReadByte(offset uint32) (byte, bool) {
	if !m.fits(offset, 1) {
		return 0, false
	}
	return m.mem.Data[offset], true
}

func (m *memoryView) ReadUint32Le(offset uint32) (uint32, bool) {
	if !m.fits(offset, 4) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(m.mem.Data[offset:]), true
}

func (m *memoryView) ReadUint64Le(offset uint32) (uint64, bool) {
	if !m.fits(offset, 8) {
		return 0, false
	}
	return binary.LittleEndian.Uint64(m.mem.Data[offset:]), true
}

func (m *memoryView) ReadFloat32Le(offset uint32) (float32, bool) {
	v, ok := m.ReadUint32Le(offset)
	return math.Float32frombits(v), ok
}

func (m *memoryView) ReadFloat64Le(offset uint32) (float64, bool) {
	v, ok := m.ReadUint64Le(offset)
	return math.Float64frombits(v), ok
}

func (m *memoryView) Read(offset, byteLength uint32) ([]byte, bool) {
	if !m.fits(offset, byteLength) {
		return nil, false
	}
	return m.mem.Data[offset : offset+byteLength], true
}

func (m *memoryView) WriteByte(offset uint32, v byte) bool {
	if !m.fits(offset, 1) {
		return false
	}
	m.mem.Data[offset] = v
	return true
}

func (m *memoryView) WriteUint32Le(offset uint32, v uint32) bool {
	if !m.fits(offset, 4) {
		return false
	}
	binary.LittleEndian.PutUint32(m.mem.Data[offset:], v)
	return true
}

func (m *memoryView) WriteUint64Le(offset uint32, v uint64) bool {
	if !m.fits(offset, 8) {
		return false
	}
	binary.LittleEndian.PutUint64(m.mem.Data[offset:], v)
	return true
}

func (m *memoryView) WriteFloat32Le(offset uint32, v float32) bool {
	return m.WriteUint32Le(offset, math.Float32bits(v))
}

func (m *memoryView) WriteFloat64Le(offset uint32, v float64) bool {
	return m.WriteUint64Le(offset, math.Float64bits(v))
}

func (m *memoryView) Write(offset uint32, v []byte) bool {
	if !m.fits(offset, uint32(len(v))) {
		return false
	}
	copy(m.mem.Data[offset:], v)
	return true
}
