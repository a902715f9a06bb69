package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError_IsMatchesSentinels(t *testing.T) {
	require.ErrorIs(t, E(CodeNotFound, "load", "missing", nil), ErrNotFound)
	require.ErrorIs(t, E(CodeNotLoaded, "execute", "", nil), ErrNotLoaded)
	require.ErrorIs(t, E(CodeDeadlineExceeded, "search", "", context.DeadlineExceeded), ErrTransport)
	require.ErrorIs(t, E(CodeDeadlineExceeded, "search", "", context.DeadlineExceeded), context.DeadlineExceeded)
	require.ErrorIs(t, E(CodeUnauthenticated, "search", "bad key", nil), ErrTransport)
	require.NotErrorIs(t, E(CodeInternal, "x", "", nil), ErrTransport)
}

func TestWrap(t *testing.T) {
	require.Nil(t, Wrap(CodeInternal, "op", nil))

	base := errors.New("boom")
	wrapped := Wrap(CodeUnavailable, "search", base)
	require.Equal(t, CodeUnavailable, wrapped.Code)
	require.ErrorIs(t, wrapped, base)
	require.Equal(t, "search: UNAVAILABLE: boom", wrapped.Error())

	inner := E(CodeNotFound, "", "gone", nil)
	rewrapped := Wrap(CodeInternal, "load", fmt.Errorf("context: %w", inner))
	require.Equal(t, CodeNotFound, rewrapped.Code)
	require.Equal(t, "load", rewrapped.Op)
}

func TestCodeFrom(t *testing.T) {
	code, ok := CodeFrom(fmt.Errorf("wrapped: %w", ErrUnknownTool))
	require.True(t, ok)
	require.Equal(t, CodeUnknownTool, code)

	code, ok = CodeFrom(E(CodeCanceled, "load", "", context.Canceled))
	require.True(t, ok)
	require.Equal(t, CodeCanceled, code)

	_, ok = CodeFrom(errors.New("plain"))
	require.False(t, ok)
}

func TestExecutionResult(t *testing.T) {
	ok := Succeeded(map[string]any{"n": 1.0})
	require.NoError(t, ok.Err())

	failed := FailedFrom(E(CodeNotLoaded, "execute", "metadata for op_1 is not cached", nil), CodeExecutionFailed)
	require.False(t, failed.Success)
	require.ErrorIs(t, failed.Err(), ErrNotLoaded)
	require.Equal(t, "metadata for op_1 is not cached", failed.Error.Message)
	require.Equal(t, "NOT_LOADED: metadata for op_1 is not cached", failed.Err().Error())

	remote := Failed("", "upstream said no")
	require.Equal(t, CodeExecutionFailed, remote.Error.Code)
	require.NotErrorIs(t, remote.Err(), ErrTransport)
}
