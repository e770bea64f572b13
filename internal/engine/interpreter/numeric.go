package interpreter

import (
	"math"
	"math/bits"

	"github.com/wippyai/tinywasm-go/internal/moremath"
	"github.com/wippyai/tinywasm-go/internal/wasmruntime"
)

// divS32 implements i32.div_s: traps DivisionByZero on zero divisor and
// IntegerOverflow on INT_MIN / -1 (spec §4.2).
func divS32(a, b int32) (int32, error) {
	if b == 0 {
		return 0, wasmruntime.NewTrap(wasmruntime.TrapDivisionByZero)
	}
	if a == math.MinInt32 && b == -1 {
		return 0, wasmruntime.NewTrap(wasmruntime.TrapIntegerOverflow)
	}
	return a / b, nil
}

func divU32(a, b uint32) (uint32, error) {
	if b == 0 {
		return 0, wasmruntime.NewTrap(wasmruntime.TrapDivisionByZero)
	}
	return a / b, nil
}

// remS32 implements i32.rem_s: INT_MIN % -1 yields 0 rather than trapping
// (spec §4.2, §8).
func remS32(a, b int32) (int32, error) {
	if b == 0 {
		return 0, wasmruntime.NewTrap(wasmruntime.TrapDivisionByZero)
	}
	if a == math.MinInt32 && b == -1 {
		return 0, nil
	}
	return a % b, nil
}

func remU32(a, b uint32) (uint32, error) {
	if b == 0 {
		return 0, wasmruntime.NewTrap(wasmruntime.TrapDivisionByZero)
	}
	return a % b, nil
}

func divS64(a, b int64) (int64, error) {
	if b == 0 {
		return 0, wasmruntime.NewTrap(wasmruntime.TrapDivisionByZero)
	}
	if a == math.MinInt64 && b == -1 {
		return 0, wasmruntime.NewTrap(wasmruntime.TrapIntegerOverflow)
	}
	return a / b, nil
}

func divU64(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, wasmruntime.NewTrap(wasmruntime.TrapDivisionByZero)
	}
	return a / b, nil
}

func remS64(a, b int64) (int64, error) {
	if b == 0 {
		return 0, wasmruntime.NewTrap(wasmruntime.TrapDivisionByZero)
	}
	if a == math.MinInt64 && b == -1 {
		return 0, nil
	}
	return a % b, nil
}

func remU64(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, wasmruntime.NewTrap(wasmruntime.TrapDivisionByZero)
	}
	return a % b, nil
}

func rotl32(v uint32, n uint32) uint32 { return bits.RotateLeft32(v, int(n&31)) }
func rotr32(v uint32, n uint32) uint32 { return bits.RotateLeft32(v, -int(n&31)) }
func rotl64(v uint64, n uint64) uint64 { return bits.RotateLeft64(v, int(n&63)) }
func rotr64(v uint64, n uint64) uint64 { return bits.RotateLeft64(v, -int(n&63)) }

// truncToI32S implements f*.trunc_i32_s: traps InvalidConversionToInt on
// NaN, infinity, or out-of-range (spec §4.2).
func truncToI32S(f float64) (int32, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < math.MinInt32 || f >= math.MaxInt32+1 {
		return 0, wasmruntime.NewTrap(wasmruntime.TrapInvalidConversionToInt)
	}
	return int32(math.Trunc(f)), nil
}

func truncToI32U(f float64) (uint32, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= -1 || f >= math.MaxUint32+1 {
		return 0, wasmruntime.NewTrap(wasmruntime.TrapInvalidConversionToInt)
	}
	return uint32(math.Trunc(f)), nil
}

func truncToI64S(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, wasmruntime.NewTrap(wasmruntime.TrapInvalidConversionToInt)
	}
	return int64(math.Trunc(f)), nil
}

func truncToI64U(f float64) (uint64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= -1 || f >= math.MaxUint64 {
		return 0, wasmruntime.NewTrap(wasmruntime.TrapInvalidConversionToInt)
	}
	return uint64(math.Trunc(f)), nil
}

var (
	wasmMin64 = moremath.WasmCompatMin
	wasmMax64 = moremath.WasmCompatMax
)

func wasmMin32(a, b float32) float32 { return float32(wasmMin64(float64(a), float64(b))) }
func wasmMax32(a, b float32) float32 { return float32(wasmMax64(float64(a), float64(b))) }

func nearest32(f float32) float32 { return moremath.WasmCompatNearestF32(f) }
func nearest64(f float64) float64 { return moremath.WasmCompatNearestF64(f) }
