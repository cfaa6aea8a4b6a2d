package collab

import (
	"fmt"

	"github.com/hashicorp-forge/collab/pkg/replica"
)

// ArrayRefWrapper is a handle to an array in a document.
type ArrayRefWrapper struct {
	a   *replica.Array
	ctx *Context
}

// NewArrayRefWrapper wraps a, using ctx for transactions.
func NewArrayRefWrapper(a *replica.Array, ctx *Context) *ArrayRefWrapper {
	return &ArrayRefWrapper{a: a, ctx: ctx}
}

// Inner returns the wrapped array.
func (w *ArrayRefWrapper) Inner() *replica.Array {
	return w.a
}

// Context returns the transaction context of the handle.
func (w *ArrayRefWrapper) Context() *Context {
	return w.ctx
}

// WithTransactMut runs f in a mutating transaction on the handle's document.
func (w *ArrayRefWrapper) WithTransactMut(f func(txn *replica.TxnMut) error) error {
	return w.ctx.WithTransactMut(f)
}

// Push appends value.
func (w *ArrayRefWrapper) Push(value any) error {
	return w.ctx.WithTransactMut(func(txn *replica.TxnMut) error {
		return w.PushWithTxn(txn, value)
	})
}

// PushWithTxn appends value.
func (w *ArrayRefWrapper) PushWithTxn(txn *replica.TxnMut, value any) error {
	content, err := toPrelim(value)
	if err != nil {
		return err
	}
	_, err = w.a.Push(txn, content)
	return err
}

// PushMapWithTxn appends an empty map and returns a handle to it.
func (w *ArrayRefWrapper) PushMapWithTxn(txn *replica.TxnMut) (*MapRefWrapper, error) {
	m, err := w.a.PushMap(txn)
	if err != nil {
		return nil, err
	}
	return NewMapRefWrapper(m, w.ctx), nil
}

// InsertWithTxn places value at index.
func (w *ArrayRefWrapper) InsertWithTxn(txn *replica.TxnMut, index int, value any) error {
	if index < 0 || index > w.a.Len(txn) {
		return fmt.Errorf("insert at %d: %w", index, ErrIndexOutOfRange)
	}
	content, err := toPrelim(value)
	if err != nil {
		return err
	}
	_, err = w.a.Insert(txn, index, content)
	return err
}

// Remove deletes the element at index.
func (w *ArrayRefWrapper) Remove(index int) error {
	return w.ctx.WithTransactMut(func(txn *replica.TxnMut) error {
		return w.RemoveWithTxn(txn, index)
	})
}

// RemoveWithTxn deletes the element at index.
func (w *ArrayRefWrapper) RemoveWithTxn(txn *replica.TxnMut, index int) error {
	if index < 0 || index >= w.a.Len(txn) {
		return fmt.Errorf("remove at %d: %w", index, ErrIndexOutOfRange)
	}
	return w.a.Remove(txn, index, 1)
}

// Get returns the JSON projection of the element at index.
func (w *ArrayRefWrapper) Get(index int) (any, bool) {
	txn := w.ctx.doc.Transact()
	defer txn.Release()

	v, ok := w.a.Get(txn, index)
	if !ok {
		return nil, false
	}
	return plainValue(txn, v), true
}

// GetWithTxn returns the raw element at index.
func (w *ArrayRefWrapper) GetWithTxn(txn replica.ReadTxn, index int) (any, bool) {
	return w.a.Get(txn, index)
}

// GetMapWithTxn returns the map at index.
func (w *ArrayRefWrapper) GetMapWithTxn(txn replica.ReadTxn, index int) (*MapRefWrapper, bool) {
	v, ok := w.a.Get(txn, index)
	if !ok {
		return nil, false
	}
	m, ok := v.(*replica.Map)
	if !ok {
		return nil, false
	}
	return NewMapRefWrapper(m, w.ctx), true
}

// Len returns the number of elements.
func (w *ArrayRefWrapper) Len() int {
	txn := w.ctx.doc.Transact()
	defer txn.Release()
	return w.a.Len(txn)
}

// LenWithTxn returns the number of elements.
func (w *ArrayRefWrapper) LenWithTxn(txn replica.ReadTxn) int {
	return w.a.Len(txn)
}

// ToJSONValue returns a snapshot of the array as plain Go data.
func (w *ArrayRefWrapper) ToJSONValue() []any {
	txn := w.ctx.doc.Transact()
	defer txn.Release()
	return w.a.ToJSON(txn)
}

// ToJSONValueWithTxn returns the array as plain Go data.
func (w *ArrayRefWrapper) ToJSONValueWithTxn(txn replica.ReadTxn) []any {
	return w.a.ToJSON(txn)
}

// ToJSON returns a snapshot of the array as a JSON array.
func (w *ArrayRefWrapper) ToJSON() string {
	return marshalString(w.ToJSONValue())
}

// Observe registers f for insertions and removals.
func (w *ArrayRefWrapper) Observe(f replica.ArrayObserver) *replica.Subscription {
	return w.a.Observe(f)
}
