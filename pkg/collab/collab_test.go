package collab

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/collab/pkg/replica"
)

func TestBlocksScenario(t *testing.T) {
	c := NewBuilder(1, "doc-1").Build()
	require.NoError(t, c.Initialize())

	require.NoError(t, c.WithTransactMut(func(txn *replica.TxnMut) error {
		blocks, err := c.CreateMapWithTxn(txn, "blocks")
		if err != nil {
			return err
		}
		return blocks.InsertWithTxn(txn, "b1", map[string]any{"text": "hello"})
	}))

	s, ok := c.ToJSONWithPath(Path{"blocks", "b1"})
	require.True(t, ok)
	assert.JSONEq(t, `{"text":"hello"}`, s)

	_, ok, err := c.RemoveWithPath(Path{"blocks", "b1"})
	require.NoError(t, err)
	require.True(t, ok)

	_, ok = c.GetMapWithPath(Path{"blocks", "b1"})
	assert.False(t, ok)

	blocks, ok := c.GetMapWithPath(Path{"blocks"})
	require.True(t, ok)
	assert.Equal(t, 0, blocks.Len())
	assert.Equal(t, "{}", blocks.ToJSON())
}

type block struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Children []string          `json:"children"`
	Data     map[string]string `json:"data"`
	Depth    int               `json:"depth"`
	Ratio    float64           `json:"ratio"`
	Visible  bool              `json:"visible"`
}

func TestJSONRoundTrip(t *testing.T) {
	c := NewBuilder(1, "doc-1").Build()
	_, err := c.GetOrCreateMap(Path{"blocks"})
	require.NoError(t, err)

	want := block{
		ID:       "b1",
		Type:     "text",
		Children: []string{"b2", "b3"},
		Data:     map[string]string{"align": "left"},
		Depth:    2,
		Ratio:    0.25,
		Visible:  true,
	}
	ok, err := c.InsertJSONWithPath(Path{"blocks"}, "b1", want)
	require.NoError(t, err)
	require.True(t, ok)

	got, ok, err := GetJSONWithPath[block](c, Path{"blocks", "b1"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	// Nested content is stored as containers, not as encoded strings.
	children, ok := c.GetArrayWithPath(Path{"blocks", "b1", "children"})
	require.True(t, ok)
	assert.Equal(t, 2, children.Len())
	data, ok := c.GetMapWithPath(Path{"blocks", "b1", "data"})
	require.True(t, ok)
	align, ok := data.GetStr("align")
	assert.True(t, ok)
	assert.Equal(t, "left", align)

	depth, ok := mustMap(t, c, "blocks", "b1").GetInt64("depth")
	assert.True(t, ok)
	assert.Equal(t, int64(2), depth)
}

func TestGetJSONWithPathErrors(t *testing.T) {
	c := NewBuilder(1, "doc-1").Build()
	require.NoError(t, c.Insert("name", "not a block"))

	_, ok, err := GetJSONWithPath[block](c, Path{"missing"})
	assert.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = GetJSONWithPath[block](c, Path{"name"})
	assert.True(t, ok)
	var serErr *SerializationError
	require.True(t, errors.As(err, &serErr))
	assert.Equal(t, Path{"name"}, serErr.Path)

	ok, err = c.InsertJSONWithPath(nil, "bad", make(chan int))
	assert.False(t, ok)
	require.True(t, errors.As(err, &serErr))
	assert.Equal(t, Path{"bad"}, serErr.Path)
}

func TestInsertJSONWithPathMissingMap(t *testing.T) {
	counter := &recordingPlugin{}
	c := NewBuilder(1, "doc-1").WithPlugin(counter).Build()

	ok, err := c.InsertJSONWithPath(Path{"missing"}, "k", "v")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, counter.count())
}

func TestInsertWithPathCreatesContainers(t *testing.T) {
	c := NewBuilder(1, "doc-1").Build()
	_, err := c.GetOrCreateMap(Path{"blocks"})
	require.NoError(t, err)

	ok, err := c.InsertWithPath(Path{"blocks", "b1"}, map[string]any{
		"text": "hello",
		"tags": []any{"a", "b"},
	})
	require.NoError(t, err)
	require.True(t, ok)

	b1, ok := c.GetMapWithPath(Path{"blocks", "b1"})
	require.True(t, ok)
	text, ok := b1.GetStr("text")
	assert.True(t, ok)
	assert.Equal(t, "hello", text)

	tags, ok := c.GetArrayWithPath(Path{"blocks", "b1", "tags"})
	require.True(t, ok)
	assert.Equal(t, 2, tags.Len())
}

func TestJSONNumbersKeepPrecision(t *testing.T) {
	type counters struct {
		Max   uint64  `json:"max"`
		Min   int64   `json:"min"`
		Ratio float64 `json:"ratio"`
	}

	c := NewBuilder(1, "doc-1").Build()
	want := counters{Max: math.MaxUint64, Min: math.MinInt64, Ratio: 0.5}
	ok, err := c.InsertJSONWithPath(nil, "n", want)
	require.NoError(t, err)
	require.True(t, ok)

	got, ok, err := GetJSONWithPath[counters](c, Path{"n"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	_, err = c.InsertJSONWithPath(nil, "big", json.RawMessage(`{"v": 18446744073709551616}`))
	var serErr *SerializationError
	require.True(t, errors.As(err, &serErr))
	assert.ErrorIs(t, err, ErrNumberOverflow)
	_, ok = c.Get("big")
	assert.False(t, ok)
}

func TestNonFiniteFloatsRejected(t *testing.T) {
	c := NewBuilder(1, "doc-1").Build()

	err := c.Insert("nan", math.NaN())
	assert.ErrorIs(t, err, replica.ErrUnsupportedValue)
	_, err = c.InsertWithPath(Path{"inf"}, map[string]any{"v": math.Inf(1)})
	assert.ErrorIs(t, err, replica.ErrUnsupportedValue)
	assert.Empty(t, c.ToJSON())
}

func TestCollabStringAndMarshalJSON(t *testing.T) {
	c := NewBuilder(1, "doc-1").Build()
	require.NoError(t, c.Insert("title", "hello"))
	require.NoError(t, c.Insert("count", 2))

	assert.JSONEq(t, `{"attributes":{"title":"hello","count":2}}`, c.String())

	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"attributes":{"title":"hello","count":2}}`, string(data))

	empty := NewBuilder(1, "doc-2").Build()
	assert.JSONEq(t, `{"attributes":{}}`, empty.String())
}

func TestAttributeAccessors(t *testing.T) {
	c := NewBuilder(1, "doc-1").Build()
	require.NoError(t, c.Insert("nested", map[string]any{"a": []any{1, "two"}}))

	v, ok := c.Get("nested")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"a": []any{int64(1), "two"}}, v)

	prev, ok, err := c.Remove("nested")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, v, prev)

	_, ok = c.Get("nested")
	assert.False(t, ok)

	assert.Error(t, c.Insert("bad", struct{}{}))
	assert.Empty(t, c.ToJSON())
}

func TestObservePath(t *testing.T) {
	c := NewBuilder(1, "doc-1").Build()
	_, err := c.GetOrCreateMap(Path{"blocks"})
	require.NoError(t, err)

	var changed [][]string
	sub, ok := c.Observe(Path{"blocks"}, func(_ *replica.TxnMut, ev *replica.MapEvent) {
		changed = append(changed, ev.Keys)
	})
	require.True(t, ok)

	var attrsChanged int
	c.ObserveAttrs(func(*replica.TxnMut, *replica.MapEvent) { attrsChanged++ })

	ok, err = c.InsertWithPath(Path{"blocks", "b1"}, "x")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = c.InsertWithPath(Path{"blocks", "b2"}, "y")
	require.NoError(t, err)
	require.True(t, ok)

	sub.Unsubscribe()
	_, err = c.InsertWithPath(Path{"blocks", "b3"}, "z")
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"b1"}, {"b2"}}, changed)
	assert.Equal(t, 0, attrsChanged)
}

func TestApplyJSONPatch(t *testing.T) {
	counter := &recordingPlugin{}
	c := NewBuilder(1, "doc-1").WithPlugin(counter).Build()
	_, err := c.InsertJSONWithPath(nil, "blocks", map[string]any{
		"b1": map[string]any{"text": "hello", "depth": 1},
		"b2": map[string]any{"text": "bye"},
	})
	require.NoError(t, err)
	b1, ok := c.GetMapWithPath(Path{"blocks", "b1"})
	require.True(t, ok)
	var b1Keys [][]string
	b1.Observe(func(_ *replica.TxnMut, ev *replica.MapEvent) {
		b1Keys = append(b1Keys, ev.Keys)
	})

	ok, err = c.ApplyJSONPatch(Path{"blocks"}, []byte(`[
		{"op": "replace", "path": "/b1/text", "value": "hello world"},
		{"op": "remove", "path": "/b2"},
		{"op": "add", "path": "/b3", "value": {"text": "new", "tags": ["x"]}}
	]`))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, counter.count(), "a patch commits one transaction")

	assert.Equal(t, map[string]any{
		"b1": map[string]any{"text": "hello world", "depth": int64(1)},
		"b3": map[string]any{"text": "new", "tags": []any{"x"}},
	}, mustMap(t, c, "blocks").ToJSONValue())

	// Unchanged keys and nested maps are kept in place.
	after, ok := c.GetMapWithPath(Path{"blocks", "b1"})
	require.True(t, ok)
	assert.Same(t, b1.Inner(), after.Inner())

	assert.Equal(t, [][]string{{"text"}}, b1Keys, "only the replaced key is written")

	ok, err = c.ApplyJSONPatch(Path{"missing"}, []byte(`[]`))
	require.NoError(t, err)
	assert.False(t, ok)

	var serErr *SerializationError
	_, err = c.ApplyJSONPatch(nil, []byte(`not a patch`))
	assert.True(t, errors.As(err, &serErr))

	_, err = c.ApplyJSONPatch(nil, []byte(`[{"op": "remove", "path": "/nope"}]`))
	assert.True(t, errors.As(err, &serErr))
	assert.Equal(t, 2, counter.count())
}

func TestArrayRefWrapper(t *testing.T) {
	c := NewBuilder(1, "doc-1").Build()
	list, err := Mutate(c.Context(), func(txn *replica.TxnMut) (*ArrayRefWrapper, error) {
		root, err := c.CreateMapWithTxn(txn, "root")
		if err != nil {
			return nil, err
		}
		return root.InsertArrayWithTxn(txn, "list", "a", "c")
	})
	require.NoError(t, err)

	require.NoError(t, list.WithTransactMut(func(txn *replica.TxnMut) error {
		if err := list.InsertWithTxn(txn, 1, "b"); err != nil {
			return err
		}
		item, err := list.PushMapWithTxn(txn)
		if err != nil {
			return err
		}
		return item.InsertWithTxn(txn, "k", true)
	}))

	assert.Equal(t, 4, list.Len())
	assert.JSONEq(t, `["a","b","c",{"k":true}]`, list.ToJSON())

	v, ok := list.Get(3)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"k": true}, v)

	require.NoError(t, c.WithTransact(func(txn *replica.Txn) error {
		item, ok := list.GetMapWithTxn(txn, 3)
		require.True(t, ok)
		b, ok := item.GetWithTxn(txn, "k")
		assert.True(t, ok)
		assert.Equal(t, true, b)

		_, ok = list.GetMapWithTxn(txn, 0)
		assert.False(t, ok)
		return nil
	}))

	require.NoError(t, list.Remove(0))
	assert.ErrorIs(t, list.Remove(10), ErrIndexOutOfRange)
	assert.ErrorIs(t, list.WithTransactMut(func(txn *replica.TxnMut) error {
		return list.InsertWithTxn(txn, -1, "x")
	}), ErrIndexOutOfRange)

	assert.Equal(t, []any{"b", "c", map[string]any{"k": true}}, list.ToJSONValue())

	var events []*replica.ArrayEvent
	list.Observe(func(_ *replica.TxnMut, ev *replica.ArrayEvent) { events = append(events, ev) })
	require.NoError(t, list.Push("d"))
	require.Len(t, events, 1)
	assert.Equal(t, 1, events[0].Inserted)
}

func TestMapRefWrapperAccessors(t *testing.T) {
	c := NewBuilder(1, "doc-1").Build()
	m, err := c.GetOrCreateMap(Path{"settings"})
	require.NoError(t, err)

	require.NoError(t, m.WithTransactMut(func(txn *replica.TxnMut) error {
		if err := m.InsertWithTxn(txn, "name", "collab"); err != nil {
			return err
		}
		if err := m.InsertWithTxn(txn, "enabled", true); err != nil {
			return err
		}
		if _, err := m.InsertMapWithTxn(txn, "child"); err != nil {
			return err
		}
		return m.InsertJSONWithTxn(txn, "json", struct {
			N int `json:"n"`
		}{N: 3})
	}))

	assert.Equal(t, []string{"child", "enabled", "json", "name"}, m.Keys())

	name, ok := m.GetStr("name")
	assert.True(t, ok)
	assert.Equal(t, "collab", name)
	_, ok = m.GetStr("enabled")
	assert.False(t, ok)

	enabled, ok := m.GetBool("enabled")
	assert.True(t, ok)
	assert.True(t, enabled)

	_, ok = m.GetMap("child")
	assert.True(t, ok)
	_, ok = m.GetArray("child")
	assert.False(t, ok)

	n, ok := mustMap(t, c, "settings", "json").GetInt64("n")
	assert.True(t, ok)
	assert.Equal(t, int64(3), n)

	prev, ok, err := m.Remove("name")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "collab", prev)
	assert.Equal(t, "doc-1", m.Context().CID())
}

func TestNewDocumentID(t *testing.T) {
	a := NewDocumentID()
	b := NewDocumentID()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

func mustMap(t *testing.T, c *Collab, path ...string) *MapRefWrapper {
	t.Helper()
	m, ok := c.GetMapWithPath(Path(path))
	require.True(t, ok, "missing map %q", Path(path).String())
	return m
}
