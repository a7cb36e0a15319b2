package jsonfile_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadline/leadline/adapters/clock"
	"github.com/leadline/leadline/adapters/idgen"
	"github.com/leadline/leadline/adapters/jsonfile"
	"github.com/leadline/leadline/ports"
)

func TestUserStore_CreateAndLookup(t *testing.T) {
	dir := t.TempDir()
	clk := clock.NewFake(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	s := jsonfile.NewUserStore(dir, clk, idgen.NewSequential("t"), zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, ports.User{
		Username: "Alice",
		PassHash: []byte("hash"),
		Role:     "user",
		Plan:     "pro",
	}))

	u, err := s.GetByUsername(ctx, "alice") // Case-insensitive.
	require.NoError(t, err)
	assert.Equal(t, "Alice", u.Username)
	assert.Equal(t, "pro", u.Plan)
	assert.NotEmpty(t, u.ID)
	assert.False(t, u.CreatedAt.IsZero())

	err = s.Create(ctx, ports.User{Username: "ALICE"})
	require.ErrorIs(t, err, ports.ErrExists)

	_, err = s.GetByUsername(ctx, "bob")
	require.ErrorIs(t, err, ports.ErrNotFound)
}

func TestUserStore_ListStripsPasswordHashes(t *testing.T) {
	dir := t.TempDir()
	s := jsonfile.NewUserStore(dir, clock.Real{}, idgen.UUID{}, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, ports.User{Username: "alice", PassHash: []byte("secret")}))

	users, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Nil(t, users[0].PassHash)

	// The hash is still stored, just not listed.
	u, err := s.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), u.PassHash)
}

func TestUserStore_Mutations(t *testing.T) {
	dir := t.TempDir()
	s := jsonfile.NewUserStore(dir, clock.Real{}, idgen.UUID{}, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, ports.User{Username: "alice", Plan: "free"}))

	require.NoError(t, s.SetPlan(ctx, "alice", "biz"))
	require.NoError(t, s.SetRole(ctx, "alice", "owner"))
	require.NoError(t, s.ResetPassword(ctx, "alice", []byte("new")))

	u, err := s.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "biz", u.Plan)
	assert.Equal(t, "owner", u.Role)
	assert.Equal(t, []byte("new"), u.PassHash)

	require.NoError(t, s.Delete(ctx, "alice"))
	_, err = s.GetByUsername(ctx, "alice")
	require.ErrorIs(t, err, ports.ErrNotFound)

	require.ErrorIs(t, s.SetPlan(ctx, "ghost", "pro"), ports.ErrNotFound)
}

func TestEventStore_RecentNewestFirst(t *testing.T) {
	s := jsonfile.NewEventStore(t.TempDir(), zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, ports.Event{
			ID:   fmt.Sprintf("e%d", i),
			Kind: "contact",
		}))
	}

	events, err := s.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "e4", events[0].ID)
	assert.Equal(t, "e2", events[2].ID)

	all, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestMessageStore_BySession(t *testing.T) {
	s := jsonfile.NewMessageStore(t.TempDir(), zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Append(ctx, ports.Message{
			ID: fmt.Sprintf("m%d", i), SessionID: "s1", Role: "visitor", Text: "hi",
		}))
	}
	require.NoError(t, s.Append(ctx, ports.Message{ID: "other", SessionID: "s2"}))

	msgs, err := s.BySession(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "m2", msgs[1].ID)
}

func TestPrefStore_SetGet(t *testing.T) {
	s := jsonfile.NewPrefStore(t.TempDir(), zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "u1", "theme", "dark"))
	require.NoError(t, s.Set(ctx, "u1", "tz", "America/Los_Angeles"))
	require.NoError(t, s.Set(ctx, "u2", "theme", "light"))

	prefs, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"theme": "dark", "tz": "America/Los_Angeles"}, prefs)

	empty, err := s.Get(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
