package document

import (
	"github.com/hashicorp-forge/collab/pkg/collab"
	"github.com/hashicorp-forge/collab/pkg/replica"
)

// TextMap holds the text content of blocks keyed by text id. Content is
// stored as an opaque string, typically a serialized delta.
type TextMap struct {
	m *collab.MapRefWrapper
}

// Set stores text under id.
func (tm *TextMap) Set(id, text string) error {
	return tm.m.Insert(id, text)
}

// SetWithTxn stores text under id.
func (tm *TextMap) SetWithTxn(txn *replica.TxnMut, id, text string) error {
	return tm.m.InsertWithTxn(txn, id, text)
}

// Get returns the text stored under id.
func (tm *TextMap) Get(id string) (string, bool) {
	return tm.m.GetStr(id)
}

// Remove deletes the text under id.
func (tm *TextMap) Remove(id string) (bool, error) {
	_, ok, err := tm.m.Remove(id)
	return ok, err
}

// Len returns the number of texts.
func (tm *TextMap) Len() int {
	return tm.m.Len()
}
