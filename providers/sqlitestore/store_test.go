package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hengadev/classify"
	"github.com/hengadev/classify/settings"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreRevisions(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	assert.Equal(t, "sqlite", store.Kind())

	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	_, err := store.Load(ctx, "app.json")
	assert.ErrorIs(t, err, settings.ErrNotFound)

	first, err := store.SaveRevision(ctx, "app.json", []byte(`{"v":1}`))
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, "app.json", []byte(`{"v":2}`)))
	require.NoError(t, store.Save(ctx, "other.json", []byte(`{}`)))

	_, err = uuid.Parse(first.ID)
	assert.NoError(t, err)
	assert.Equal(t, 1, first.Seq)
	assert.Equal(t, 7, first.Size)

	data, err := store.Load(ctx, "app.json")
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(data))

	revs, err := store.Revisions(ctx, "app.json")
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.Equal(t, 2, revs[0].Seq)
	assert.Equal(t, first.ID, revs[1].ID)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 1, 0, 0, time.UTC), revs[1].CreatedAt)

	old, err := store.LoadRevision(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, `{"v":1}`, string(old))

	_, err = store.LoadRevision(ctx, uuid.NewString())
	assert.ErrorIs(t, err, settings.ErrNotFound)
	_, err = store.LoadRevision(ctx, "not-a-uuid")
	assert.True(t, classify.IsConfigurationError(err))
}

func TestStorePruneAndDelete(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	for _, doc := range []string{"1", "2", "3", "4"} {
		require.NoError(t, store.Save(ctx, "app.json", []byte(doc)))
	}
	require.NoError(t, store.Save(ctx, "keep.json", []byte("k")))

	n, err := store.Prune(ctx, "app.json", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	revs, err := store.Revisions(ctx, "app.json")
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.Equal(t, []int{4, 3}, []int{revs[0].Seq, revs[1].Seq})

	_, err = store.Prune(ctx, "app.json", 0)
	assert.True(t, classify.IsConfigurationError(err))

	require.NoError(t, store.Delete(ctx, "app.json"))
	require.NoError(t, store.Delete(ctx, "app.json"))
	_, err = store.Load(ctx, "app.json")
	assert.ErrorIs(t, err, settings.ErrNotFound)

	data, err := store.Load(ctx, "keep.json")
	require.NoError(t, err)
	assert.Equal(t, "k", string(data))

	require.NoError(t, store.Save(ctx, "app.json", nil))
	data, err = store.Load(ctx, "app.json")
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestOpenFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "settings.db")

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, "a.json", []byte("{}")))
	require.NoError(t, store.Close())

	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()
	data, err := store.Load(ctx, "a.json")
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	_, err = New(nil)
	assert.True(t, classify.IsConfigurationError(err))
}

func TestManagerOnSQLite(t *testing.T) {
	type limits struct {
		MaxConns int
		Timeout  time.Duration
	}
	ctx := context.Background()
	store := openTestStore(t)
	m, err := settings.NewManager(store, "limits.json",
		settings.WithDefaults(func() limits { return limits{MaxConns: 10} }))
	require.NoError(t, err)

	got, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, got.MaxConns)

	require.NoError(t, m.Save(ctx, limits{MaxConns: 20, Timeout: time.Second}))
	require.NoError(t, m.Save(ctx, limits{MaxConns: 30, Timeout: time.Second}))
	got, err = m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, limits{MaxConns: 30, Timeout: time.Second}, got)

	revs, err := store.Revisions(ctx, "limits.json")
	require.NoError(t, err)
	assert.Len(t, revs, 2)
}
