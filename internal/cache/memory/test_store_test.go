package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	t "repopilot/internal/types"
)

func TestStore_RoundTrip(te *testing.T) {
	s, err := New(0)
	require.NoError(te, err)
	defer s.Close()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "fp1")
	require.NoError(te, err)
	require.False(te, ok)

	entry := t.CacheEntry{Fingerprint: "fp1", Explanation: "does things", Model: "fake"}
	winner, inserted, err := s.PutIfAbsent(ctx, entry)
	require.NoError(te, err)
	require.True(te, inserted)
	require.Equal(te, entry, winner)

	got, ok, err := s.Get(ctx, "fp1")
	require.NoError(te, err)
	require.True(te, ok)
	require.Equal(te, entry, got)
}

func TestStore_PutIfAbsentKeepsFirstWriter(te *testing.T) {
	s, err := New(0)
	require.NoError(te, err)
	ctx := context.Background()

	first := t.CacheEntry{Fingerprint: "fp", Explanation: "first"}
	second := t.CacheEntry{Fingerprint: "fp", Explanation: "second"}
	_, _, err = s.PutIfAbsent(ctx, first)
	require.NoError(te, err)

	winner, inserted, err := s.PutIfAbsent(ctx, second)
	require.NoError(te, err)
	require.False(te, inserted)
	require.Equal(te, "first", winner.Explanation)
}

func TestStore_EvictsBeyondCapacity(te *testing.T) {
	s, err := New(2)
	require.NoError(te, err)
	ctx := context.Background()

	for _, fp := range []t.Fingerprint{"a", "b", "c"} {
		_, _, err := s.PutIfAbsent(ctx, t.CacheEntry{Fingerprint: fp})
		require.NoError(te, err)
	}
	_, ok, err := s.Get(ctx, "a")
	require.NoError(te, err)
	require.False(te, ok, "oldest entry is evicted")
	_, ok, _ = s.Get(ctx, "c")
	require.True(te, ok)
}
