package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "genba/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs".
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseSessionID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseSessionID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseSessionID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseSessionID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, SessionID(validUUID), id)
	})
}

func TestParse_AllKinds(t *testing.T) {
	u := uuid.New().String()

	sid, err := ParseStepID(u)
	require.NoError(t, err)
	assert.Equal(t, u, sid.String())

	cid, err := ParseCheckID(u)
	require.NoError(t, err)
	assert.Equal(t, u, cid.String())

	uid, err := ParseUserID(u)
	require.NoError(t, err)
	assert.Equal(t, u, uid.String())

	pid, err := ParseSOPID(u)
	require.NoError(t, err)
	assert.Equal(t, u, pid.String())
}

func TestTextRoundTrip(t *testing.T) {
	id := NewSessionID()
	b, err := id.MarshalText()
	require.NoError(t, err)

	var out SessionID
	require.NoError(t, out.UnmarshalText(b))
	assert.Equal(t, id, out)
}

// TestTypeDistinction verifies the compiler enforces type safety.
// If this compiles, the invariant holds.
func TestTypeDistinction(t *testing.T) {
	sessionID := SessionID(uuid.New())
	stepID := StepID(uuid.New())

	// These would fail to compile if types were interchangeable:
	// var _ SessionID = stepID   // compile error
	// var _ StepID = sessionID   // compile error

	assert.NotEqual(t, uuid.UUID(sessionID), uuid.UUID(stepID))
}

func TestIsNil(t *testing.T) {
	assert.True(t, StepID{}.IsNil())
	assert.False(t, NewStepID().IsNil())
}
