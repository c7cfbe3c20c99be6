package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Register(t *testing.T) {
	tests := []struct {
		name     string
		joinName string
		wantErr  error
		wantName string
	}{
		{name: "plain name", joinName: "alice", wantName: "alice"},
		{name: "name is trimmed", joinName: "  bob  ", wantName: "bob"},
		{name: "empty name rejected", joinName: "", wantErr: ErrNameRequired},
		{name: "whitespace-only name rejected", joinName: "   \t ", wantErr: ErrNameRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()

			sess, err := reg.Register("conn-1", tt.joinName)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, sess)
				assert.Empty(t, reg.Roster(), "rejected join must not change the roster")
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantName, sess.Name)
			assert.Equal(t, "conn-1", sess.ConnID)
			assert.False(t, sess.JoinedAt.IsZero())
			assert.Equal(t, []string{tt.wantName}, reg.Roster())
		})
	}
}

func TestRegistry_RegisterOverwriteKeepsRosterPosition(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Register("conn-1", "alice")
	require.NoError(t, err)
	_, err = reg.Register("conn-2", "bob")
	require.NoError(t, err)

	// conn-1 re-joins under a new name; its roster slot must not move.
	sess, err := reg.Register("conn-1", "alice2")
	require.NoError(t, err)
	assert.Equal(t, "alice2", sess.Name)
	assert.Equal(t, []string{"alice2", "bob"}, reg.Roster())
	assert.Equal(t, 2, reg.Len(), "overwrite must not create a second session")
}

func TestRegistry_Unregister(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Register("conn-1", "alice")
	require.NoError(t, err)

	sess, ok := reg.Unregister("conn-1")
	require.True(t, ok)
	assert.Equal(t, "alice", sess.Name)
	assert.Empty(t, reg.Roster())

	_, ok = reg.LookupByName("alice")
	assert.False(t, ok, "unregistered name must not resolve")

	// A connection that never joined unregisters as a no-op.
	sess, ok = reg.Unregister("conn-never-joined")
	assert.False(t, ok)
	assert.Nil(t, sess)
}

func TestRegistry_RosterTracksJoinsAndLeaves(t *testing.T) {
	reg := NewRegistry()

	conns := []string{"c1", "c2", "c3", "c4"}
	names := []string{"amy", "bob", "cleo", "dan"}
	for i, id := range conns {
		_, err := reg.Register(id, names[i])
		require.NoError(t, err)
	}
	assert.Equal(t, names, reg.Roster(), "roster preserves insertion order")

	_, ok := reg.Unregister("c2")
	require.True(t, ok)
	assert.Equal(t, []string{"amy", "cleo", "dan"}, reg.Roster())
	assert.Equal(t, 3, reg.Len())
}

func TestRegistry_LookupByNameFirstMatchWins(t *testing.T) {
	reg := NewRegistry()

	// Duplicate display names are allowed; resolution is first-joined-wins.
	_, err := reg.Register("c1", "sam")
	require.NoError(t, err)
	_, err = reg.Register("c2", "sam")
	require.NoError(t, err)

	connID, ok := reg.LookupByName("sam")
	require.True(t, ok)
	assert.Equal(t, "c1", connID)

	// Once the first leaves, the second becomes the match.
	_, ok = reg.Unregister("c1")
	require.True(t, ok)
	connID, ok = reg.LookupByName("sam")
	require.True(t, ok)
	assert.Equal(t, "c2", connID)

	_, ok = reg.LookupByName("nobody")
	assert.False(t, ok)
}

func TestRegistry_SetTyping(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Register("c1", "amy")
	require.NoError(t, err)

	sess, ok := reg.SetTyping("c1", true)
	require.True(t, ok)
	assert.True(t, sess.Typing)

	sess, ok = reg.SetTyping("c1", false)
	require.True(t, ok)
	assert.False(t, sess.Typing)

	_, ok = reg.SetTyping("c-unjoined", true)
	assert.False(t, ok)
}
