package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatlink/chatlink/internal/backend"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	t.Setenv("CHATLINK_KEYRING_DISABLED", "1")

	s, err := Open(filepath.Join(t.TempDir(), "chatlink.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTokenRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Token(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetToken(ctx, "tok-1"))
	token, err := s.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)

	// A new login overwrites, never merges.
	require.NoError(t, s.SetToken(ctx, "tok-2"))
	token, err = s.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", token)
}

func TestSelectionRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	org := &backend.Organization{ID: 3, Name: "Acme", MemberCount: 5}
	agent := &backend.Agent{ID: 7, Name: "Support Bot", Model: "gpt-4o", OrganizationID: 3}

	require.NoError(t, s.SetSelectedOrg(ctx, org))
	require.NoError(t, s.SetSelectedAgent(ctx, agent))

	gotOrg, err := s.SelectedOrg(ctx)
	require.NoError(t, err)
	assert.Equal(t, org, gotOrg)

	gotAgent, err := s.SelectedAgent(ctx)
	require.NoError(t, err)
	assert.Equal(t, agent, gotAgent)
}

func TestClearRemovesEverything(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetToken(ctx, "tok"))
	require.NoError(t, s.SetSelectedOrg(ctx, &backend.Organization{ID: 1, Name: "Acme"}))
	require.NoError(t, s.SetSelectedAgent(ctx, &backend.Agent{ID: 2, Name: "Bot"}))

	require.NoError(t, s.Clear(ctx))

	_, err := s.Token(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.SelectedOrg(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.SelectedAgent(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReopenKeepsState(t *testing.T) {
	t.Setenv("CHATLINK_KEYRING_DISABLED", "1")
	path := filepath.Join(t.TempDir(), "chatlink.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SetToken(ctx, "tok"))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	token, err := s.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok", token)
}
