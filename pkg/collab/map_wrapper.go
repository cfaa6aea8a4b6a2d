package collab

import (
	"github.com/hashicorp-forge/collab/pkg/replica"
)

// MapRefWrapper is a handle to a map in a document. Calls without a
// transaction argument open their own; mutations commit and notify plugins
// before returning.
type MapRefWrapper struct {
	m   *replica.Map
	ctx *Context
}

// NewMapRefWrapper wraps m, using ctx for transactions.
func NewMapRefWrapper(m *replica.Map, ctx *Context) *MapRefWrapper {
	return &MapRefWrapper{m: m, ctx: ctx}
}

// Inner returns the wrapped map.
func (w *MapRefWrapper) Inner() *replica.Map {
	return w.m
}

// Context returns the transaction context of the handle.
func (w *MapRefWrapper) Context() *Context {
	return w.ctx
}

// WithTransactMut runs f in a mutating transaction on the handle's document.
func (w *MapRefWrapper) WithTransactMut(f func(txn *replica.TxnMut) error) error {
	return w.ctx.WithTransactMut(f)
}

// Get returns the JSON projection of the value under key.
func (w *MapRefWrapper) Get(key string) (any, bool) {
	txn := w.ctx.doc.Transact()
	defer txn.Release()

	v, ok := w.m.Get(txn, key)
	if !ok {
		return nil, false
	}
	return plainValue(txn, v), true
}

// GetWithTxn returns the raw value under key.
func (w *MapRefWrapper) GetWithTxn(txn replica.ReadTxn, key string) (any, bool) {
	return w.m.Get(txn, key)
}

// GetStr returns the string under key.
func (w *MapRefWrapper) GetStr(key string) (string, bool) {
	txn := w.ctx.doc.Transact()
	defer txn.Release()
	return w.GetStrWithTxn(txn, key)
}

// GetStrWithTxn returns the string under key.
func (w *MapRefWrapper) GetStrWithTxn(txn replica.ReadTxn, key string) (string, bool) {
	v, ok := w.m.Get(txn, key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetInt64 returns the integer under key.
func (w *MapRefWrapper) GetInt64(key string) (int64, bool) {
	txn := w.ctx.doc.Transact()
	defer txn.Release()
	return w.GetInt64WithTxn(txn, key)
}

// GetInt64WithTxn returns the integer under key.
func (w *MapRefWrapper) GetInt64WithTxn(txn replica.ReadTxn, key string) (int64, bool) {
	v, ok := w.m.Get(txn, key)
	if !ok {
		return 0, false
	}
	i, ok := v.(int64)
	return i, ok
}

// GetBool returns the boolean under key.
func (w *MapRefWrapper) GetBool(key string) (bool, bool) {
	txn := w.ctx.doc.Transact()
	defer txn.Release()

	v, ok := w.m.Get(txn, key)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// GetMapWithTxn returns the nested map under key.
func (w *MapRefWrapper) GetMapWithTxn(txn replica.ReadTxn, key string) (*MapRefWrapper, bool) {
	v, ok := w.m.Get(txn, key)
	if !ok {
		return nil, false
	}
	m, ok := v.(*replica.Map)
	if !ok {
		return nil, false
	}
	return NewMapRefWrapper(m, w.ctx), true
}

// GetMap returns the nested map under key.
func (w *MapRefWrapper) GetMap(key string) (*MapRefWrapper, bool) {
	txn := w.ctx.doc.Transact()
	defer txn.Release()
	return w.GetMapWithTxn(txn, key)
}

// GetArrayWithTxn returns the nested array under key.
func (w *MapRefWrapper) GetArrayWithTxn(txn replica.ReadTxn, key string) (*ArrayRefWrapper, bool) {
	v, ok := w.m.Get(txn, key)
	if !ok {
		return nil, false
	}
	a, ok := v.(*replica.Array)
	if !ok {
		return nil, false
	}
	return NewArrayRefWrapper(a, w.ctx), true
}

// GetArray returns the nested array under key.
func (w *MapRefWrapper) GetArray(key string) (*ArrayRefWrapper, bool) {
	txn := w.ctx.doc.Transact()
	defer txn.Release()
	return w.GetArrayWithTxn(txn, key)
}

// Insert stores value under key. Plain maps and slices become nested
// containers.
func (w *MapRefWrapper) Insert(key string, value any) error {
	return w.ctx.WithTransactMut(func(txn *replica.TxnMut) error {
		return w.InsertWithTxn(txn, key, value)
	})
}

// InsertWithTxn stores value under key.
func (w *MapRefWrapper) InsertWithTxn(txn *replica.TxnMut, key string, value any) error {
	content, err := toPrelim(value)
	if err != nil {
		return err
	}
	_, err = w.m.Insert(txn, key, content)
	return err
}

// InsertMapWithTxn creates an empty map under key, replacing any value.
func (w *MapRefWrapper) InsertMapWithTxn(txn *replica.TxnMut, key string) (*MapRefWrapper, error) {
	m, err := w.m.InsertMap(txn, key)
	if err != nil {
		return nil, err
	}
	return NewMapRefWrapper(m, w.ctx), nil
}

// InsertArrayWithTxn creates an array holding values under key.
func (w *MapRefWrapper) InsertArrayWithTxn(txn *replica.TxnMut, key string, values ...any) (*ArrayRefWrapper, error) {
	content, err := arrayPrelim(values)
	if err != nil {
		return nil, err
	}
	v, err := w.m.Insert(txn, key, content)
	if err != nil {
		return nil, err
	}
	return NewArrayRefWrapper(v.(*replica.Array), w.ctx), nil
}

// InsertJSONWithTxn serializes value to JSON and stores the result under key:
// objects become nested maps and arrays nested arrays.
func (w *MapRefWrapper) InsertJSONWithTxn(txn *replica.TxnMut, key string, value any) error {
	content, err := jsonPrelim(value)
	if err != nil {
		return &SerializationError{Path: NewPath(key), Err: err}
	}
	_, err = w.m.Insert(txn, key, content)
	return err
}

// Remove deletes key and returns the JSON projection of its old value.
func (w *MapRefWrapper) Remove(key string) (any, bool, error) {
	type removed struct {
		value any
		ok    bool
	}
	r, err := Mutate(w.ctx, func(txn *replica.TxnMut) (removed, error) {
		v, ok, err := w.RemoveWithTxn(txn, key)
		return removed{value: v, ok: ok}, err
	})
	return r.value, r.ok, err
}

// RemoveWithTxn deletes key and returns the JSON projection of its old value.
func (w *MapRefWrapper) RemoveWithTxn(txn *replica.TxnMut, key string) (any, bool, error) {
	v, ok := w.m.Get(txn, key)
	if !ok {
		return nil, false, nil
	}
	projected := plainValue(txn, v)
	if _, _, err := w.m.Remove(txn, key); err != nil {
		return nil, false, err
	}
	return projected, true, nil
}

// Keys returns the keys in ascending order.
func (w *MapRefWrapper) Keys() []string {
	txn := w.ctx.doc.Transact()
	defer txn.Release()
	return w.m.Keys(txn)
}

// Len returns the number of keys.
func (w *MapRefWrapper) Len() int {
	txn := w.ctx.doc.Transact()
	defer txn.Release()
	return w.m.Len(txn)
}

// ToJSONValue returns a snapshot of the map as plain Go data.
func (w *MapRefWrapper) ToJSONValue() map[string]any {
	txn := w.ctx.doc.Transact()
	defer txn.Release()
	return w.m.ToJSON(txn)
}

// ToJSONValueWithTxn returns the map as plain Go data.
func (w *MapRefWrapper) ToJSONValueWithTxn(txn replica.ReadTxn) map[string]any {
	return w.m.ToJSON(txn)
}

// ToJSON returns a snapshot of the map as a JSON object.
func (w *MapRefWrapper) ToJSON() string {
	return marshalString(w.ToJSONValue())
}

// Observe registers f for changes to this map's keys. Changes inside nested
// containers are not reported.
func (w *MapRefWrapper) Observe(f replica.MapObserver) *replica.Subscription {
	return w.m.Observe(f)
}
