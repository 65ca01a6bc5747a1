package mediaengine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	err := NewError(ErrNotFound, "conference %s not found", "abc")
	require.Equal(t, "NotFound: conference abc not found", err.Error())
	require.Equal(t, "NotFound", err.WireError())
}

func TestErrorFormattingNoMessage(t *testing.T) {
	err := &Error{Kind: ErrEngineUnavailable}
	require.Equal(t, "EngineUnavailable", err.Error())
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Wrap(ErrEngine, cause)
	require.ErrorIs(t, err, cause)
	require.Equal(t, cause, errors.Unwrap(err))
}

func TestKindOf(t *testing.T) {
	require.Equal(t, ErrCapacityExceeded, KindOf(NewError(ErrCapacityExceeded, "full")))

	wrapped := fmt.Errorf("joining: %w", NewError(ErrInvalidState, "DuplicateParticipant"))
	require.Equal(t, ErrInvalidState, KindOf(wrapped))

	require.Equal(t, ErrEngine, KindOf(errors.New("opaque failure")))
}
