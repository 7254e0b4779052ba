package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewMatchesKindAndIdentity(t *testing.T) {
	errLimit := New(ErrConflict, "deferral limit reached")
	wrapped := fmt.Errorf("defer pick: %w", errLimit)

	require.ErrorIs(t, wrapped, errLimit)
	require.ErrorIs(t, wrapped, ErrConflict)
	require.NotErrorIs(t, wrapped, ErrNotFound)
	require.Equal(t, "defer pick: deferral limit reached", wrapped.Error())
}

func TestTransition(t *testing.T) {
	err := Transition("plan", "planning", "birthed")
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Contains(t, err.Error(), "planning to birthed")
}

func TestAsValidation(t *testing.T) {
	err := fmt.Errorf("create contact: %w", Invalid("email", "must be a valid email"))

	list, ok := AsValidation(err)
	require.True(t, ok)
	require.Equal(t, map[string]interface{}{"email": "must be a valid email"}, list.Fields())

	list, ok = AsValidation(ValidationError{Field: "name", Message: "is required"})
	require.True(t, ok)
	require.Len(t, list, 1)

	_, ok = AsValidation(errors.New("boom"))
	require.False(t, ok)
}

func TestMessage(t *testing.T) {
	sentinel := New(ErrConflict, "pick has no deferrals left")
	msg, ok := Message(fmt.Errorf("defer pick: %w", sentinel))
	require.True(t, ok)
	require.Equal(t, "pick has no deferrals left", msg)

	_, ok = Message(fmt.Errorf("get contact: %w", ErrNotFound))
	require.False(t, ok)
}
