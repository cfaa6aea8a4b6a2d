package folder

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/hashicorp-forge/collab/pkg/collab"
	"github.com/hashicorp-forge/collab/pkg/replica"
)

// TrashInfo describes a deleted view.
type TrashInfo struct {
	ID        string `json:"id" mapstructure:"id"`
	Name      string `json:"name" mapstructure:"name"`
	CreatedAt int64  `json:"created_at" mapstructure:"created_at"`
}

// Validate checks the entry's required fields.
func (t TrashInfo) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.ID, validation.Required),
	)
}

// Trash is the list of deleted views, oldest first.
type Trash struct {
	a *collab.ArrayRefWrapper
}

// Add appends entries, skipping ids already in the trash.
func (t *Trash) Add(entries ...TrashInfo) error {
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	return t.a.WithTransactMut(func(txn *replica.TxnMut) error {
		for _, e := range entries {
			if t.indexOf(txn, e.ID) >= 0 {
				continue
			}
			err := t.a.PushWithTxn(txn, map[string]any{
				"id":         e.ID,
				"name":       e.Name,
				"created_at": e.CreatedAt,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Remove deletes the entries with the given ids. Unknown ids are ignored.
func (t *Trash) Remove(ids ...string) error {
	return t.a.WithTransactMut(func(txn *replica.TxnMut) error {
		for _, id := range ids {
			if i := t.indexOf(txn, id); i >= 0 {
				if err := t.a.RemoveWithTxn(txn, i); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// GetAll returns every entry.
func (t *Trash) GetAll() ([]TrashInfo, error) {
	raw := t.a.ToJSONValue()
	out := make([]TrashInfo, 0, len(raw))
	for i, item := range raw {
		var info TrashInfo
		if err := decode(item, &info); err != nil {
			return nil, fmt.Errorf("trash entry %d: %w", i, err)
		}
		out = append(out, info)
	}
	return out, nil
}

// Len returns the number of entries.
func (t *Trash) Len() int {
	return t.a.Len()
}

func (t *Trash) indexOf(txn replica.ReadTxn, id string) int {
	for i := 0; i < t.a.LenWithTxn(txn); i++ {
		m, ok := t.a.GetMapWithTxn(txn, i)
		if !ok {
			continue
		}
		if got, _ := m.GetStrWithTxn(txn, "id"); got == id {
			return i
		}
	}
	return -1
}
