package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "prodir/pkg/domain-errors"
)

// TestParseProfileID_Invariants validates the parsing invariant:
// "profile IDs must be valid, non-empty, non-nil UUIDs"
func TestParseProfileID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseProfileID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidArgument))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseProfileID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidArgument))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseProfileID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidArgument))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		valid := uuid.New()
		id, err := ParseProfileID(valid.String())
		require.NoError(t, err)
		assert.Equal(t, ProfileID(valid), id)
	})
}

func TestProfileID_JSONRoundTrip(t *testing.T) {
	id := NewProfileID()
	b, err := json.Marshal(struct {
		ID ProfileID `json:"id"`
	}{ID: id})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"`+id.String()+`"}`, string(b))

	var out struct {
		ID ProfileID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, id, out.ID)
}

func TestRoles(t *testing.T) {
	t.Run("parse accepts only the closed set", func(t *testing.T) {
		for _, r := range []Role{RoleUser, RoleAdmin, RoleDirectorAdmin, RoleSuperAdmin} {
			parsed, err := ParseRole(string(r))
			require.NoError(t, err)
			assert.Equal(t, r, parsed)
		}
		_, err := ParseRole("approved")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidArgument))
		_, err = ParseRole("SuperAdmin")
		assert.Error(t, err, "roles are case-sensitive")
	})

	t.Run("moderators", func(t *testing.T) {
		assert.False(t, Role("root").IsModerator())
		assert.False(t, RoleUser.IsModerator())
		assert.True(t, RoleAdmin.IsModerator())
	})
}
