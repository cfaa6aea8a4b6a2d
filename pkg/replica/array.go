package replica

import (
	"fmt"

	"github.com/automerge/automerge-go"
)

// Array is a replicated ordered sequence.
type Array struct {
	doc       *Doc
	path      []any
	observers *observers[ArrayObserver]
}

// Len returns the number of live elements.
func (a *Array) Len(txn ReadTxn) int {
	al := a.doc.amList(a.path)
	if al == nil {
		return 0
	}
	return al.Len()
}

// Get returns the element at index.
func (a *Array) Get(txn ReadTxn, index int) (any, bool) {
	al := a.doc.amList(a.path)
	if al == nil || index < 0 || index >= al.Len() {
		return nil, false
	}
	v, err := al.Get(index)
	if err != nil || v.IsVoid() {
		return nil, false
	}
	return a.doc.wrap(a.child(index), v), true
}

// Insert places v at index, shifting later elements right, and returns the
// integrated value.
func (a *Array) Insert(txn *TxnMut, index int, v any) (any, error) {
	if err := txn.checkOpen(a.doc); err != nil {
		return nil, err
	}
	al := a.doc.amList(a.path)
	if al == nil {
		return nil, fmt.Errorf("%w: %s", ErrDetached, a)
	}

	n := al.Len()
	if index < 0 || index > n {
		return nil, fmt.Errorf("index %d out of range [0, %d]", index, n)
	}

	stored, content, err := toValue(v)
	if err != nil {
		return nil, err
	}
	if err := al.Insert(index, stored); err != nil {
		return nil, fmt.Errorf("insert at %d in %s: %w", index, a, err)
	}
	txn.edited()
	txn.arrayChanged(a, 1, 0)

	if err := fill(stored, content); err != nil {
		return nil, err
	}
	return a.doc.wrapStored(a.child(index), stored), nil
}

// Push appends v.
func (a *Array) Push(txn *TxnMut, v any) (any, error) {
	return a.Insert(txn, a.Len(txn), v)
}

// PushMap appends an empty nested map.
func (a *Array) PushMap(txn *TxnMut) (*Map, error) {
	v, err := a.Push(txn, MapPrelim{})
	if err != nil {
		return nil, err
	}
	return v.(*Map), nil
}

// Remove deletes length elements starting at index.
func (a *Array) Remove(txn *TxnMut, index, length int) error {
	if err := txn.checkOpen(a.doc); err != nil {
		return err
	}
	al := a.doc.amList(a.path)
	n := 0
	if al != nil {
		n = al.Len()
	}
	if index < 0 || length < 0 || index+length > n {
		return fmt.Errorf("range [%d, %d) out of bounds [0, %d)", index, index+length, n)
	}

	for i := 0; i < length; i++ {
		if err := al.Delete(index); err != nil {
			return fmt.Errorf("delete at %d in %s: %w", index, a, err)
		}
		txn.edited()
	}
	if length > 0 {
		txn.arrayChanged(a, 0, length)
	}
	return nil
}

// ToJSON returns the live elements as plain Go data.
func (a *Array) ToJSON(txn ReadTxn) []any {
	v := a.doc.lookup(a.path)
	if v == nil || v.Kind() != automerge.KindList {
		return []any{}
	}
	return v.Interface().([]any)
}

// Observe registers f to receive a summary of each transaction's changes.
func (a *Array) Observe(f ArrayObserver) *Subscription {
	return a.observers.add(f)
}

// String identifies the array for logging.
func (a *Array) String() string {
	return fmt.Sprintf("array(%s)", pathKey(a.path))
}

func (a *Array) child(index int) []any {
	return appendPath(a.path, index)
}
