// Package coro implements the coroutine protocol of spec §4.3: the two
// outcome shapes (PotentialCoroCallResult, ResumeResult) that let any
// invocation — including a host callback — pause mid-execution and resume
// later, without threads or stack unwinding.
//
// Grounded on tinywasm's crates/tinywasm/src/coro.rs Rust enums, expressed
// here as Go generic structs rather than a closed sum type: each result
// carries a done flag alongside its payload instead of being matched as an
// enum variant, which is the idiomatic Go shape for "one of two outcomes"
// once generics are available.
package coro

import "github.com/wippyai/tinywasm-go/api"

// SuspendKind is the closed set of reasons an invocation can pause (spec
// §4.3 table).
type SuspendKind byte

const (
	// KindYield arises only from a host coroutine yielding; its Payload is
	// host-opaque and a resume argument is required.
	KindYield SuspendKind = iota
	// KindDeadline fires when the store's configured deadline has passed;
	// no resume argument is accepted.
	KindDeadline
	// KindFlag fires when the store's atomic stop flag is observed set; no
	// resume argument is accepted.
	KindFlag
	// KindCallback fires when the store's polling callback returns break;
	// no resume argument is accepted.
	KindCallback
)

func (k SuspendKind) String() string {
	switch k {
	case KindYield:
		return "yield"
	case KindDeadline:
		return "deadline"
	case KindFlag:
		return "flag"
	case KindCallback:
		return "callback"
	default:
		return "unknown"
	}
}

// SuspendReason is returned alongside a suspended state whenever an
// invocation pauses.
type SuspendReason struct {
	Kind    SuspendKind
	Payload any // only meaningful when Kind == KindYield
}

func Yield(payload any) SuspendReason   { return SuspendReason{Kind: KindYield, Payload: payload} }
func Deadline() SuspendReason           { return SuspendReason{Kind: KindDeadline} }
func Flag() SuspendReason               { return SuspendReason{Kind: KindFlag} }
func Callback() SuspendReason           { return SuspendReason{Kind: KindCallback} }

// RequiresResumeArgument reports whether resuming past this reason must be
// given a non-nil argument (true only for KindYield).
func (r SuspendReason) RequiresResumeArgument() bool { return r.Kind == KindYield }

// PotentialCoroCallResult is the outcome of any call that might pause: a
// final value of type R, or a suspension carrying the opaque resumable
// state S. Used as the first result of instantiate_coro, call_coro, and
// the host coroutine ABI.
type PotentialCoroCallResult[R, S any] struct {
	done   bool
	value  R
	reason SuspendReason
	state  S
}

func Return[R, S any](v R) PotentialCoroCallResult[R, S] {
	return PotentialCoroCallResult[R, S]{done: true, value: v}
}

func Suspended[R, S any](reason SuspendReason, state S) PotentialCoroCallResult[R, S] {
	return PotentialCoroCallResult[R, S]{reason: reason, state: state}
}

func (r PotentialCoroCallResult[R, S]) Done() bool           { return r.done }
func (r PotentialCoroCallResult[R, S]) Value() R             { return r.value }
func (r PotentialCoroCallResult[R, S]) Reason() SuspendReason { return r.reason }
func (r PotentialCoroCallResult[R, S]) State() S             { return r.state }

// ResumeResult is the outcome of a subsequent resume call: the suspended
// state is implicitly "self", so only a final value or a new suspend
// reason is carried.
type ResumeResult[R any] struct {
	done   bool
	value  R
	reason SuspendReason
}

func Done[R any](v R) ResumeResult[R] {
	return ResumeResult[R]{done: true, value: v}
}

func Paused[R any](reason SuspendReason) ResumeResult[R] {
	return ResumeResult[R]{reason: reason}
}

func (r ResumeResult[R]) Finished() bool        { return r.done }
func (r ResumeResult[R]) Value() R              { return r.value }
func (r ResumeResult[R]) Reason() SuspendReason { return r.reason }

// HostCoroState is the "hole" the executor carries on a call frame when a
// host coroutine has yielded: an opaque box that must be resumed before
// normal instruction execution continues. ctx is always a
// *wasm.FuncContext in practice, passed as any to keep this package free
// of a dependency on internal/wasm (spec design note: "heterogeneous host
// payloads... keep the erasure minimal").
type HostCoroState interface {
	Resume(ctx any, arg any) (ResumeResult[[]api.Value], error)
}
