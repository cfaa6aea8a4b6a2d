// Package storetest holds the behavior every persistence.DocStore must
// share, for use from store tests.
package storetest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/collab/pkg/persistence"
	"github.com/hashicorp-forge/collab/pkg/replica"
)

// Edit commits f on doc and returns the resulting update.
func Edit(t *testing.T, doc *replica.Doc, f func(attrs *replica.Map, txn *replica.TxnMut)) []byte {
	t.Helper()

	var update []byte
	sub := doc.ObserveUpdates(func(_ *replica.TxnMut, u []byte) error {
		update = u
		return nil
	})
	defer sub.Unsubscribe()

	txn := doc.TransactMut()
	f(doc.Root(), txn)
	require.NoError(t, txn.Commit())
	return update
}

// Set returns an edit inserting key into the root map.
func Set(t *testing.T, key string, v any) func(*replica.Map, *replica.TxnMut) {
	return func(attrs *replica.Map, txn *replica.TxnMut) {
		_, err := attrs.Insert(txn, key, v)
		require.NoError(t, err)
	}
}

// Load replays the stored log of cid into a fresh document and returns its
// root map.
func Load(t *testing.T, store persistence.DocStore, cid string) map[string]any {
	t.Helper()

	doc := replica.NewDoc(99)
	txn := doc.TransactMut()
	require.NoError(t, store.LoadDoc(cid, txn))
	require.NoError(t, txn.Commit())

	read := doc.Transact()
	defer read.Release()
	return doc.Root().ToJSON(read)
}

// Run exercises the persistence.DocStore contract against an empty store.
func Run(t *testing.T, store persistence.DocStore) {
	t.Run("CreateSeedsSnapshot", func(t *testing.T) {
		doc := replica.NewDoc(1)
		Edit(t, doc, Set(t, "title", "seeded"))

		assert.False(t, store.IsExist("seeded"))
		txn := doc.TransactMut()
		require.NoError(t, store.InsertOrCreateNewDoc("seeded", txn))
		txn.Rollback()
		assert.True(t, store.IsExist("seeded"))

		updates, err := store.GetUpdates("seeded")
		require.NoError(t, err)
		assert.Len(t, updates, 1)
		assert.Equal(t, map[string]any{"title": "seeded"}, Load(t, store, "seeded"))
	})

	t.Run("CreateEmptyDocHasNoUpdates", func(t *testing.T) {
		doc := replica.NewDoc(1)
		txn := doc.TransactMut()
		require.NoError(t, store.InsertOrCreateNewDoc("empty", txn))
		txn.Rollback()

		assert.True(t, store.IsExist("empty"))
		updates, err := store.GetUpdates("empty")
		require.NoError(t, err)
		assert.Empty(t, updates)
	})

	t.Run("CreateTwiceKeepsFirst", func(t *testing.T) {
		first := replica.NewDoc(1)
		Edit(t, first, Set(t, "v", "first"))
		txn := first.TransactMut()
		require.NoError(t, store.InsertOrCreateNewDoc("twice", txn))
		txn.Rollback()

		second := replica.NewDoc(2)
		Edit(t, second, Set(t, "v", "second"))
		txn = second.TransactMut()
		require.NoError(t, store.InsertOrCreateNewDoc("twice", txn))
		txn.Rollback()

		assert.Equal(t, map[string]any{"v": "first"}, Load(t, store, "twice"))
	})

	t.Run("CreateExistingLoadsLog", func(t *testing.T) {
		first := replica.NewDoc(1)
		Edit(t, first, Set(t, "owner", "first"))
		txn := first.TransactMut()
		require.NoError(t, store.InsertOrCreateNewDoc("existing", txn))
		txn.Rollback()

		second := replica.NewDoc(2)
		txn = second.TransactMut()
		defer txn.Rollback()
		require.NoError(t, store.InsertOrCreateNewDoc("existing", txn))
		owner, ok := second.Root().Get(txn, "owner")
		assert.True(t, ok)
		assert.Equal(t, "first", owner)
	})

	t.Run("PushUpdatesInOrder", func(t *testing.T) {
		doc := replica.NewDoc(1)
		var pushed [][]byte
		for i := 1; i <= 5; i++ {
			u := Edit(t, doc, Set(t, "count", i))
			require.NoError(t, store.PushUpdate("log", u))
			pushed = append(pushed, u)
		}

		updates, err := store.GetUpdates("log")
		require.NoError(t, err)
		assert.Equal(t, pushed, updates)
		assert.Equal(t, map[string]any{"count": int64(5)}, Load(t, store, "log"))
	})

	t.Run("PushEmptyUpdateIsIgnored", func(t *testing.T) {
		require.NoError(t, store.PushUpdate("ignored", nil))
		assert.False(t, store.IsExist("ignored"))
	})

	t.Run("FlushCompactsLog", func(t *testing.T) {
		doc := replica.NewDoc(1)
		for _, k := range []string{"a", "b", "c"} {
			require.NoError(t, store.PushUpdate("compact", Edit(t, doc, Set(t, k, k))))
		}

		read := doc.Transact()
		require.NoError(t, store.Flush("compact", read))
		read.Release()

		updates, err := store.GetUpdates("compact")
		require.NoError(t, err)
		assert.Len(t, updates, 1)
		assert.Equal(t, map[string]any{"a": "a", "b": "b", "c": "c"}, Load(t, store, "compact"))

		// The log continues after the snapshot.
		require.NoError(t, store.PushUpdate("compact", Edit(t, doc, Set(t, "d", "d"))))
		updates, err = store.GetUpdates("compact")
		require.NoError(t, err)
		assert.Len(t, updates, 2)
	})

	t.Run("MissingDocument", func(t *testing.T) {
		_, err := store.GetUpdates("missing")
		assert.ErrorIs(t, err, persistence.ErrDocNotFound)

		doc := replica.NewDoc(1)
		txn := doc.TransactMut()
		err = store.LoadDoc("missing", txn)
		txn.Rollback()

		var perr *persistence.Error
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, "load", perr.Op)
		assert.Equal(t, "missing", perr.CID)
		assert.ErrorIs(t, err, persistence.ErrDocNotFound)

		assert.ErrorIs(t, store.DeleteDoc("missing"), persistence.ErrDocNotFound)
	})

	t.Run("DeleteAndCount", func(t *testing.T) {
		before, err := store.NumberOfDocs()
		require.NoError(t, err)

		doc := replica.NewDoc(1)
		for _, cid := range []string{"del-1", "del-2", "del-3"} {
			require.NoError(t, store.PushUpdate(cid, Edit(t, doc, Set(t, cid, true))))
		}
		count, err := store.NumberOfDocs()
		require.NoError(t, err)
		assert.Equal(t, before+3, count)

		require.NoError(t, store.DeleteDoc("del-1"))
		require.NoError(t, store.DeleteDoc("del-2"))
		count, err = store.NumberOfDocs()
		require.NoError(t, err)
		assert.Equal(t, before+1, count)
		assert.False(t, store.IsExist("del-1"))
		assert.True(t, store.IsExist("del-3"))

		// A deleted document starts a fresh log.
		require.NoError(t, store.PushUpdate("del-1", Edit(t, doc, Set(t, "again", true))))
		updates, err := store.GetUpdates("del-1")
		require.NoError(t, err)
		assert.Len(t, updates, 1)
	})

	t.Run("ListDocs", func(t *testing.T) {
		infos, err := store.ListDocs()
		require.NoError(t, err)

		byCID := make(map[string]persistence.DocInfo, len(infos))
		for _, info := range infos {
			byCID[info.CID] = info
		}
		assert.Contains(t, byCID, "seeded")
		assert.Equal(t, 5, byCID["log"].Updates)
		assert.Equal(t, 0, byCID["empty"].Updates)
	})
}
