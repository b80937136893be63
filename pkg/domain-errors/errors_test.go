package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("direct code", func(t *testing.T) {
		err := New(CodeLocked, "cannot modify a locked session")
		assert.True(t, HasCode(err, CodeLocked))
		assert.False(t, HasCode(err, CodeNotFound))
	})

	t.Run("wrapped code survives fmt wrapping", func(t *testing.T) {
		inner := New(CodeInvalidState, "only in-progress sessions may be paused")
		err := fmt.Errorf("pause session: %w", inner)
		assert.True(t, HasCode(err, CodeInvalidState))
	})

	t.Run("nested domain errors expose both codes", func(t *testing.T) {
		inner := New(CodeNotFound, "session not found")
		outer := Wrap(inner, CodeInternal, "load session")
		assert.True(t, HasCode(outer, CodeInternal))
		assert.True(t, HasCode(outer, CodeNotFound))
	})

	t.Run("nil and plain errors carry no code", func(t *testing.T) {
		assert.False(t, HasCode(nil, CodeInternal))
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
	})
}

func TestWrapPreservesChain(t *testing.T) {
	sentinel := errors.New("connection refused")
	err := Wrap(sentinel, CodeInternal, "save session")
	require.Error(t, err)
	assert.True(t, errors.Is(err, sentinel))
	assert.Contains(t, err.Error(), "save session")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, CodeInternal, "noop"))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeTimeout, CodeOf(New(CodeTimeout, "verification timed out")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}
