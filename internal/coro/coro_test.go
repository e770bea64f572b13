package coro_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wippyai/tinywasm-go/api"
	"github.com/wippyai/tinywasm-go/internal/coro"
)

func TestSuspendReasonRequiresResumeArgument(t *testing.T) {
	require.True(t, coro.Yield("payload").RequiresResumeArgument())
	require.False(t, coro.Deadline().RequiresResumeArgument())
	require.False(t, coro.Flag().RequiresResumeArgument())
	require.False(t, coro.Callback().RequiresResumeArgument())
}

func TestSuspendKindString(t *testing.T) {
	require.Equal(t, "yield", coro.KindYield.String())
	require.Equal(t, "deadline", coro.KindDeadline.String())
	require.Equal(t, "flag", coro.KindFlag.String())
	require.Equal(t, "callback", coro.KindCallback.String())
}

func TestPotentialCoroCallResultReturn(t *testing.T) {
	r := coro.Return[int, string](42)
	require.True(t, r.Done())
	require.Equal(t, 42, r.Value())
}

func TestPotentialCoroCallResultSuspended(t *testing.T) {
	reason := coro.Yield("wait for me")
	r := coro.Suspended[int, string](reason, "saved-state")
	require.False(t, r.Done())
	require.Equal(t, reason, r.Reason())
	require.Equal(t, "saved-state", r.State())
}

func TestResumeResult(t *testing.T) {
	done := coro.Done[int](7)
	require.True(t, done.Finished())
	require.Equal(t, 7, done.Value())

	paused := coro.Paused[int](coro.Flag())
	require.False(t, paused.Finished())
	require.Equal(t, coro.KindFlag, paused.Reason().Kind)
}

// fakeHostCoroState is a minimal HostCoroState that finishes on its first
// resume, just to confirm the interface shape is usable from outside the
// package.
type fakeHostCoroState struct{}

func (s *fakeHostCoroState) Resume(ctx any, arg any) (coro.ResumeResult[[]api.Value], error) {
	return coro.Done[[]api.Value]([]api.Value{api.I32Value(1)}), nil
}

func TestHostCoroStateInterfaceSatisfied(t *testing.T) {
	var state coro.HostCoroState = &fakeHostCoroState{}
	result, err := state.Resume(nil, nil)
	require.NoError(t, err)
	require.True(t, result.Finished())
	require.Equal(t, int32(1), result.Value()[0].I32())
}
