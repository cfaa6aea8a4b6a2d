package collab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/collab/pkg/replica"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		in   string
		want Path
	}{
		{in: "", want: nil},
		{in: "/", want: nil},
		{in: "blocks", want: Path{"blocks"}},
		{in: "/blocks/b1/", want: Path{"blocks", "b1"}},
		{in: "a//b", want: Path{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePath(tt.in))
		})
	}
	assert.Equal(t, "blocks/b1", NewPath("blocks", "b1").String())
}

func TestPathMissIsSideEffectFree(t *testing.T) {
	counter := &recordingPlugin{}
	c := NewBuilder(1, "doc-1").WithPlugin(counter).Build()
	require.NoError(t, c.Initialize())

	require.NoError(t, c.WithTransactMut(func(txn *replica.TxnMut) error {
		blocks, err := c.CreateMapWithTxn(txn, "blocks")
		if err != nil {
			return err
		}
		if err := blocks.InsertWithTxn(txn, "title", "hello"); err != nil {
			return err
		}
		_, err = blocks.InsertArrayWithTxn(txn, "list", "a")
		return err
	}))
	require.Equal(t, 1, counter.count())
	before := c.ToJSON()

	misses := []Path{
		nil,
		{},
		{"missing"},
		{"blocks", "missing"},
		{"blocks", "title"},
		{"blocks", "title", "deeper"},
		{"blocks", "list"},
		{"missing", "a", "b"},
	}
	for _, p := range misses {
		t.Run(p.String(), func(t *testing.T) {
			_, ok := c.GetMapWithPath(p)
			assert.False(t, ok)

			ok, err := c.InsertWithPath(append(p[:len(p):len(p)], "x", "y"), 1)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}

	for _, p := range []Path{nil, {"missing"}, {"blocks", "title"}, {"blocks", "missing", "list"}} {
		_, ok := c.GetArrayWithPath(p)
		assert.False(t, ok, "array %q", p.String())

		_, ok = c.ToJSONWithPath(p[:len(p):len(p)])
		if len(p) == 2 && p[1] == "title" {
			assert.True(t, ok)
			continue
		}
		assert.False(t, ok, "json %q", p.String())
	}

	_, ok, err := c.RemoveWithPath(Path{"blocks", "missing"})
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = c.RemoveWithPath(nil)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok = c.Observe(Path{"missing"}, func(*replica.TxnMut, *replica.MapEvent) {})
	assert.False(t, ok)

	assert.Equal(t, before, c.ToJSON())
	assert.Equal(t, 1, counter.count())
}

func TestGetValueWithTxn(t *testing.T) {
	c := NewBuilder(1, "doc-1").Build()
	_, err := c.GetOrCreateMap(Path{"a", "b"})
	require.NoError(t, err)
	ok, err := c.InsertWithPath(Path{"a", "b", "n"}, 7)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, c.WithTransact(func(txn *replica.Txn) error {
		v, ok := c.GetValueWithTxn(txn, Path{"a", "b", "n"})
		assert.True(t, ok)
		assert.Equal(t, int64(7), v)

		v, ok = c.GetValueWithTxn(txn, Path{"a"})
		assert.True(t, ok)
		assert.IsType(t, &replica.Map{}, v)

		_, ok = c.GetValueWithTxn(txn, nil)
		assert.False(t, ok)
		return nil
	}))
}

func TestGetOrCreateMap(t *testing.T) {
	counter := &recordingPlugin{}
	c := NewBuilder(1, "doc-1").WithPlugin(counter).Build()

	_, err := c.GetOrCreateMap(nil)
	assert.ErrorIs(t, err, ErrEmptyPath)

	m, err := c.GetOrCreateMap(Path{"views", "v1"})
	require.NoError(t, err)
	require.NoError(t, m.Insert("name", "first"))
	assert.Equal(t, 2, counter.count())

	again, err := c.GetOrCreateMap(Path{"views", "v1"})
	require.NoError(t, err)
	assert.Equal(t, m.Inner(), again.Inner())
	assert.Equal(t, 2, counter.count(), "existing maps are not recreated")

	require.NoError(t, c.Insert("scalar", "x"))
	_, err = c.GetOrCreateMap(Path{"scalar", "child"})
	assert.ErrorIs(t, err, ErrNotAMap)
	assert.Equal(t, "x", mustGet(t, c, "scalar"))
}

func TestRemoveWithPathKeepsEmptyAncestors(t *testing.T) {
	c := NewBuilder(1, "doc-1").Build()
	ok, err := c.InsertJSONWithPath(nil, "a", map[string]any{
		"b": map[string]any{"c": "leaf"},
	})
	require.NoError(t, err)
	require.True(t, ok)

	v, ok, err := c.RemoveWithPath(Path{"a", "b"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, map[string]any{"c": "leaf"}, v)

	a, ok := c.GetMapWithPath(Path{"a"})
	require.True(t, ok)
	assert.Equal(t, 0, a.Len())
}

func mustGet(t *testing.T, c *Collab, key string) any {
	t.Helper()
	v, ok := c.Get(key)
	require.True(t, ok, "missing key %q", key)
	return v
}
