package replica

import (
	"fmt"
	"sort"

	"github.com/automerge/automerge-go"
)

// Map is a replicated string-keyed map.
type Map struct {
	doc       *Doc
	path      []any
	observers *observers[MapObserver]
}

// Get returns the value stored under key. Nested containers are returned as
// *Map or *Array.
func (m *Map) Get(txn ReadTxn, key string) (any, bool) {
	am := m.doc.amMap(m.path)
	if am == nil {
		return nil, false
	}
	v, err := am.Get(key)
	if err != nil || v.IsVoid() {
		return nil, false
	}
	return m.doc.wrap(m.child(key), v), true
}

// Insert stores v under key and returns the integrated value, which is the
// new *Map or *Array when v is a prelim.
func (m *Map) Insert(txn *TxnMut, key string, v any) (any, error) {
	if err := txn.checkOpen(m.doc); err != nil {
		return nil, err
	}
	am := m.doc.amMap(m.path)
	if am == nil {
		return nil, fmt.Errorf("%w: %s", ErrDetached, m)
	}

	stored, content, err := toValue(v)
	if err != nil {
		return nil, err
	}
	if err := am.Set(key, stored); err != nil {
		return nil, fmt.Errorf("set %q in %s: %w", key, m, err)
	}
	txn.edited()
	txn.mapChanged(m, key)

	if err := fill(stored, content); err != nil {
		return nil, err
	}
	return m.doc.wrapStored(m.child(key), stored), nil
}

// InsertMap creates an empty nested map under key.
func (m *Map) InsertMap(txn *TxnMut, key string) (*Map, error) {
	v, err := m.Insert(txn, key, MapPrelim{})
	if err != nil {
		return nil, err
	}
	return v.(*Map), nil
}

// InsertArray creates an empty nested array under key.
func (m *Map) InsertArray(txn *TxnMut, key string) (*Array, error) {
	v, err := m.Insert(txn, key, ArrayPrelim{})
	if err != nil {
		return nil, err
	}
	return v.(*Array), nil
}

// Remove deletes key and returns the value it held, as plain data for nested
// containers. Removing a missing key is a no-op and produces no operation.
func (m *Map) Remove(txn *TxnMut, key string) (any, bool, error) {
	if err := txn.checkOpen(m.doc); err != nil {
		return nil, false, err
	}
	am := m.doc.amMap(m.path)
	if am == nil {
		return nil, false, nil
	}
	prev, err := am.Get(key)
	if err != nil || prev.IsVoid() {
		return nil, false, nil
	}
	out := prev.Interface()

	if err := am.Delete(key); err != nil {
		return nil, false, fmt.Errorf("delete %q in %s: %w", key, m, err)
	}
	txn.edited()
	txn.mapChanged(m, key)
	return out, true, nil
}

// Keys returns the live keys in ascending order.
func (m *Map) Keys(txn ReadTxn) []string {
	am := m.doc.amMap(m.path)
	if am == nil {
		return []string{}
	}
	keys, err := am.Keys()
	if err != nil {
		return []string{}
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of live keys.
func (m *Map) Len(txn ReadTxn) int {
	am := m.doc.amMap(m.path)
	if am == nil {
		return 0
	}
	return am.Len()
}

// ToJSON returns the map content as plain Go data: nested maps become
// map[string]any and arrays become []any.
func (m *Map) ToJSON(txn ReadTxn) map[string]any {
	v := m.doc.lookup(m.path)
	if v == nil || v.Kind() != automerge.KindMap {
		return map[string]any{}
	}
	return v.Interface().(map[string]any)
}

// Observe registers f to receive the keys changed by each transaction, local
// or integrated.
func (m *Map) Observe(f MapObserver) *Subscription {
	return m.observers.add(f)
}

// String identifies the map for logging.
func (m *Map) String() string {
	return fmt.Sprintf("map(%s)", pathKey(m.path))
}

func (m *Map) child(key string) []any {
	return appendPath(m.path, key)
}
