package disk

import (
	"errors"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/collab/pkg/collab"
	"github.com/hashicorp-forge/collab/pkg/persistence"
	"github.com/hashicorp-forge/collab/pkg/persistence/filelog"
	"github.com/hashicorp-forge/collab/pkg/replica"
)

// stores returns one empty store per backend.
func stores(t *testing.T) map[string]persistence.DocStore {
	t.Helper()

	db, err := persistence.Connect(persistence.Config{Path: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	logs, err := filelog.New(afero.NewMemMapFs(), "/logs", nil)
	require.NoError(t, err)

	return map[string]persistence.DocStore{
		"sql":     persistence.NewCollabKV(db, nil),
		"filelog": logs,
	}
}

func open(t *testing.T, clientID uint64, cid string, plugin collab.Plugin) *collab.Collab {
	t.Helper()

	c := collab.NewBuilder(clientID, cid).
		WithPlugin(plugin).
		WithLogger(hclog.NewNullLogger()).
		Build()
	require.NoError(t, c.Initialize())
	return c
}

func TestPlugin_ReopenRestoresState(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			first := open(t, 1, "doc-1", NewPlugin(store, nil))
			require.NoError(t, first.Insert("title", "draft"))
			_, err := first.InsertJSONWithPath(nil, "blocks", map[string]any{
				"b1": map[string]any{"text": "hello"},
			})
			require.NoError(t, err)
			require.NoError(t, first.Insert("title", "final"))
			first.Close()

			// A fresh plugin instance sees only what is in the store.
			second := open(t, 2, "doc-1", NewPlugin(store, nil))
			assert.Equal(t, first.ToJSON(), second.ToJSON())

			// Changes on the reopened document are appended to the same log.
			require.NoError(t, second.Insert("reviewed", true))
			third := open(t, 3, "doc-1", NewPlugin(store, nil))
			reviewed, ok := third.Get("reviewed")
			require.True(t, ok)
			assert.Equal(t, true, reviewed)
		})
	}
}

func TestPlugin_InitSeedsNewLog(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			live := collab.NewBuilder(1, "seeded").Build()
			require.NoError(t, live.Insert("a", 1))

			// Plugins attached to an existing document persist its state on init.
			live.AddPlugin(NewPlugin(store, nil))
			require.NoError(t, live.Initialize())
			assert.True(t, store.IsExist("seeded"))

			reopened := open(t, 2, "seeded", NewPlugin(store, nil))
			assert.Equal(t, map[string]any{"a": int64(1)}, reopened.ToJSON())
		})
	}
}

// blindStore reports every document as missing, as IsExist does when the
// backend cannot be reached.
type blindStore struct {
	persistence.DocStore
}

func (blindStore) IsExist(string) bool { return false }

func TestPlugin_FailedExistenceCheckLoadsLog(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			first := open(t, 1, "doc-1", NewPlugin(store, nil))
			require.NoError(t, first.Insert("title", "kept"))
			first.Close()

			second := open(t, 2, "doc-1", NewPlugin(blindStore{store}, nil))
			assert.Equal(t, map[string]any{"title": "kept"}, second.ToJSON())

			// The reopened document keeps appending to the same log.
			require.NoError(t, second.Insert("owner", "ann"))
			third := open(t, 3, "doc-1", NewPlugin(store, nil))
			assert.Equal(t, map[string]any{"title": "kept", "owner": "ann"}, third.ToJSON())
		})
	}
}

func TestPlugin_DeleteSingleDocument(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			plugin := NewPlugin(store, nil)
			open(t, 1, "1", plugin)
			assertNumOfDocs(t, store, 1)

			require.NoError(t, store.DeleteDoc("1"))
			assertNumOfDocs(t, store, 0)
		})
	}
}

func TestPlugin_DeleteMultipleDocuments(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			plugin := NewPlugin(store, nil)
			for _, cid := range []string{"1", "2", "3"} {
				open(t, 1, cid, plugin)
			}

			require.NoError(t, store.DeleteDoc("1"))
			require.NoError(t, store.DeleteDoc("2"))
			assertNumOfDocs(t, store, 1)
		})
	}
}

func TestPlugin_FlushEvery(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			c := open(t, 1, "compacted", NewPlugin(store, nil, WithFlushEvery(3)))
			for i := 0; i < 4; i++ {
				require.NoError(t, c.Insert("n", i))
			}

			// Three appends were folded into one snapshot, then one more appended.
			updates, err := store.GetUpdates("compacted")
			require.NoError(t, err)
			assert.Len(t, updates, 2)

			reopened := open(t, 2, "compacted", NewPlugin(store, nil))
			assert.Equal(t, c.ToJSON(), reopened.ToJSON())
		})
	}
}

func TestPlugin_StoreFailures(t *testing.T) {
	store := &failingStore{DocStore: stores(t)["filelog"], pushErr: errors.New("disk full")}
	c := open(t, 1, "doc", NewPlugin(store, nil))

	err := c.Insert("a", 1)
	var pluginErr *collab.PluginError
	require.True(t, errors.As(err, &pluginErr))
	assert.Equal(t, "DidReceiveUpdate", pluginErr.Hook)
	assert.ErrorIs(t, err, store.pushErr)

	// The change itself stands.
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, int64(1), v)
}

func TestPlugin_LoadFailureRollsBackInit(t *testing.T) {
	store := stores(t)["filelog"]
	require.NoError(t, store.PushUpdate("broken", []byte{0x0a, 0x05, 0x01}))

	c := collab.NewBuilder(1, "broken").WithPlugin(NewPlugin(store, nil)).Build()
	err := c.Initialize()

	var perr *persistence.Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "load", perr.Op)
	assert.ErrorIs(t, err, replica.ErrMalformedUpdate)
	assert.Empty(t, c.ToJSON())
}

func assertNumOfDocs(t *testing.T, store persistence.DocStore, expected int64) {
	t.Helper()

	n, err := store.NumberOfDocs()
	require.NoError(t, err)
	assert.Equal(t, expected, n)
}

type failingStore struct {
	persistence.DocStore
	pushErr error
}

func (s *failingStore) PushUpdate(string, []byte) error {
	return s.pushErr
}
