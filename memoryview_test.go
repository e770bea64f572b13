package tinywasm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wippyai/tinywasm-go/internal/wasm"
)

func newTestMemoryView(pages uint32, max *uint32) *memoryView {
	return &memoryView{mem: &wasm.MemoryInstance{
		Data: make([]byte, pages*wasm.PageSize),
		Max:  max,
	}}
}

func TestMemoryViewSizeAndGrow(t *testing.T) {
	m := newTestMemoryView(1, nil)
	require.Equal(t, uint32(wasm.PageSize), m.Size())

	old, ok := m.Grow(2)
	require.True(t, ok)
	require.Equal(t, uint32(1), old)
	require.Equal(t, uint32(3*wasm.PageSize), m.Size())
}

func TestMemoryViewGrowRespectsDeclaredMax(t *testing.T) {
	max := uint32(2)
	m := newTestMemoryView(2, &max)

	_, ok := m.Grow(1)
	require.False(t, ok)
}

func TestMemoryViewReadWriteRoundTrip(t *testing.T) {
	m := newTestMemoryView(1, nil)

	require.True(t, m.WriteByte(0, 0xAB))
	b, ok := m.ReadByte(0)
	require.True(t, ok)
	require.Equal(t, byte(0xAB), b)

	require.True(t, m.WriteUint64Le(8, 0x1122334455667788))
	v64, ok := m.ReadUint64Le(8)
	require.True(t, ok)
	require.Equal(t, uint64(0x1122334455667788), v64)

	require.True(t, m.WriteFloat32Le(16, 3.5))
	f32, ok := m.ReadFloat32Le(16)
	require.True(t, ok)
	require.Equal(t, float32(3.5), f32)

	require.True(t, m.WriteFloat64Le(24, 2.25))
	f64, ok := m.ReadFloat64Le(24)
	require.True(t, ok)
	require.Equal(t, 2.25, f64)

	require.True(t, m.Write(32, []byte{1, 2, 3}))
	buf, ok := m.Read(32, 3)
	require.True(t, ok)
	require.Equal(t, []byte{1, 2, 3}, buf)
}

func TestMemoryViewOutOfBoundsAccessesFail(t *testing.T) {
	m := newTestMemoryView(1, nil)
	size := m.Size()

	_, ok := m.ReadByte(size)
	require.False(t, ok)
	require.False(t, m.WriteByte(size, 1))

	_, ok = m.ReadUint32Le(size - 2)
	require.False(t, ok)
	require.False(t, m.WriteUint32Le(size-2, 1))

	_, ok = m.Read(size-1, 4)
	require.False(t, ok)
	require.False(t, m.Write(size-1, []byte{1, 2, 3, 4}))
}
