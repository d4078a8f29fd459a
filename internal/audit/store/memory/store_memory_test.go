package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panelmerge/internal/audit"
)

func seedEvents(t *testing.T, store *Store) time.Time {
	t.Helper()
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	actorA, actorB := int64(1), int64(2)

	events := []audit.Event{
		{ID: "e1", Action: audit.ActionLogin, ActorID: &actorA, Timestamp: base},
		{ID: "e2", Action: audit.ActionPanelCreate, ActorID: &actorA, Timestamp: base.Add(1 * time.Minute)},
		{ID: "e3", Action: audit.ActionLogin, ActorID: &actorB, Timestamp: base.Add(2 * time.Minute)},
		{ID: "e4", Action: audit.ActionPanelDelete, ActorID: &actorB, Timestamp: base.Add(3 * time.Minute)},
	}
	for _, e := range events {
		require.NoError(t, store.Append(context.Background(), e))
	}
	return base
}

func ids(events []audit.Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.ID)
	}
	return out
}

func TestListNewestFirst(t *testing.T) {
	store := New()
	seedEvents(t, store)

	events, err := store.List(context.Background(), audit.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"e4", "e3", "e2", "e1"}, ids(events))
}

func TestListFilters(t *testing.T) {
	store := New()
	base := seedEvents(t, store)
	ctx := context.Background()

	t.Run("by action", func(t *testing.T) {
		events, err := store.List(ctx, audit.Filter{Action: audit.ActionLogin})
		require.NoError(t, err)
		assert.Equal(t, []string{"e3", "e1"}, ids(events))
	})

	t.Run("by actor", func(t *testing.T) {
		actor := int64(2)
		events, err := store.List(ctx, audit.Filter{ActorID: &actor})
		require.NoError(t, err)
		assert.Equal(t, []string{"e4", "e3"}, ids(events))
	})

	t.Run("by time window", func(t *testing.T) {
		events, err := store.List(ctx, audit.Filter{
			Since: base.Add(1 * time.Minute),
			Until: base.Add(2 * time.Minute),
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"e3", "e2"}, ids(events))
	})

	t.Run("limit caps results", func(t *testing.T) {
		events, err := store.List(ctx, audit.Filter{Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"e4", "e3"}, ids(events))
	})

	t.Run("combined filters", func(t *testing.T) {
		events, err := store.List(ctx, audit.Filter{Action: audit.ActionLogin, Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"e3"}, ids(events))
	})
}

func TestLenAndClear(t *testing.T) {
	store := New()
	seedEvents(t, store)

	assert.Equal(t, 4, store.Len())
	store.Clear()
	assert.Equal(t, 0, store.Len())
}
