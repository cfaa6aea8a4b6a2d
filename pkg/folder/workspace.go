package folder

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/mapstructure"

	"github.com/hashicorp-forge/collab/pkg/collab"
	"github.com/hashicorp-forge/collab/pkg/replica"
)

// Belonging is a view that belongs to a workspace.
type Belonging struct {
	ID   string `json:"id" mapstructure:"id"`
	Name string `json:"name" mapstructure:"name"`
}

// Workspace is a named set of views.
type Workspace struct {
	ID         string      `json:"id" mapstructure:"id"`
	Name       string      `json:"name" mapstructure:"name"`
	Belongings []Belonging `json:"belongings" mapstructure:"belongings"`
	CreatedAt  int64       `json:"created_at" mapstructure:"created_at"`
}

// Validate checks the workspace's required fields.
func (w Workspace) Validate() error {
	return validation.ValidateStruct(&w,
		validation.Field(&w.ID, validation.Required),
		validation.Field(&w.Name, validation.Required),
	)
}

func (w Workspace) content() map[string]any {
	belongings := make([]any, 0, len(w.Belongings))
	for _, b := range w.Belongings {
		belongings = append(belongings, belongingContent(b))
	}
	return map[string]any{
		"id":         w.ID,
		"name":       w.Name,
		"belongings": belongings,
		"created_at": w.CreatedAt,
	}
}

func belongingContent(b Belonging) map[string]any {
	return map[string]any{"id": b.ID, "name": b.Name}
}

// Workspaces is the ordered list of a folder's workspaces.
type Workspaces struct {
	a *collab.ArrayRefWrapper
}

// Create appends w. Workspace ids must be unique.
func (ws *Workspaces) Create(w Workspace) error {
	if err := w.Validate(); err != nil {
		return err
	}
	return ws.a.WithTransactMut(func(txn *replica.TxnMut) error {
		if _, i := ws.find(txn, w.ID); i >= 0 {
			return fmt.Errorf("workspace %q already exists", w.ID)
		}
		return ws.a.PushWithTxn(txn, w.content())
	})
}

// GetAll returns every workspace in order.
func (ws *Workspaces) GetAll() ([]Workspace, error) {
	raw := ws.a.ToJSONValue()
	out := make([]Workspace, 0, len(raw))
	for i, item := range raw {
		var w Workspace
		if err := decode(item, &w); err != nil {
			return nil, fmt.Errorf("workspace %d: %w", i, err)
		}
		out = append(out, w)
	}
	return out, nil
}

// Get returns the workspace with id.
func (ws *Workspaces) Get(id string) (*Workspace, bool, error) {
	var raw map[string]any
	_ = ws.a.Context().WithTransact(func(txn *replica.Txn) error {
		if m, i := ws.find(txn, id); i >= 0 {
			raw = m.ToJSONValueWithTxn(txn)
		}
		return nil
	})
	if raw == nil {
		return nil, false, nil
	}

	var w Workspace
	if err := decode(raw, &w); err != nil {
		return nil, true, fmt.Errorf("workspace %q: %w", id, err)
	}
	return &w, true, nil
}

// Edit returns a handle for updating the workspace with id.
func (ws *Workspaces) Edit(id string) (*WorkspaceMap, bool) {
	var m *collab.MapRefWrapper
	_ = ws.a.Context().WithTransact(func(txn *replica.Txn) error {
		m, _ = ws.find(txn, id)
		return nil
	})
	if m == nil {
		return nil, false
	}
	return &WorkspaceMap{m: m}, true
}

// Delete removes the workspace at index.
func (ws *Workspaces) Delete(index int) error {
	return ws.a.Remove(index)
}

// Len returns the number of workspaces.
func (ws *Workspaces) Len() int {
	return ws.a.Len()
}

// find returns the map and index of the workspace with id, or -1.
func (ws *Workspaces) find(txn replica.ReadTxn, id string) (*collab.MapRefWrapper, int) {
	for i := 0; i < ws.a.LenWithTxn(txn); i++ {
		m, ok := ws.a.GetMapWithTxn(txn, i)
		if !ok {
			continue
		}
		if got, _ := m.GetStrWithTxn(txn, "id"); got == id {
			return m, i
		}
	}
	return nil, -1
}

// WorkspaceMap is an editable workspace.
type WorkspaceMap struct {
	m *collab.MapRefWrapper
}

// Update applies the changes made by f in one transaction. If any change
// fails, none is applied.
func (wm *WorkspaceMap) Update(f func(u *WorkspaceUpdate)) error {
	return wm.m.WithTransactMut(func(txn *replica.TxnMut) error {
		u := &WorkspaceUpdate{txn: txn, m: wm.m}
		f(u)
		return u.errs.ErrorOrNil()
	})
}

// WorkspaceUpdate collects changes to one workspace.
type WorkspaceUpdate struct {
	txn  *replica.TxnMut
	m    *collab.MapRefWrapper
	errs *multierror.Error
}

// SetName renames the workspace.
func (u *WorkspaceUpdate) SetName(name string) *WorkspaceUpdate {
	if name == "" {
		u.errs = multierror.Append(u.errs, fmt.Errorf("name cannot be blank"))
		return u
	}
	if err := u.m.InsertWithTxn(u.txn, "name", name); err != nil {
		u.errs = multierror.Append(u.errs, err)
	}
	return u
}

// AddBelonging appends b to the workspace's belongings.
func (u *WorkspaceUpdate) AddBelonging(b Belonging) *WorkspaceUpdate {
	belongings, ok := u.m.GetArrayWithTxn(u.txn, "belongings")
	if !ok {
		if _, err := u.m.InsertArrayWithTxn(u.txn, "belongings", belongingContent(b)); err != nil {
			u.errs = multierror.Append(u.errs, err)
		}
		return u
	}
	if err := belongings.PushWithTxn(u.txn, belongingContent(b)); err != nil {
		u.errs = multierror.Append(u.errs, err)
	}
	return u
}

// DeleteBelongings removes the belonging at index.
func (u *WorkspaceUpdate) DeleteBelongings(index int) *WorkspaceUpdate {
	belongings, ok := u.m.GetArrayWithTxn(u.txn, "belongings")
	if !ok {
		u.errs = multierror.Append(u.errs, fmt.Errorf("belonging %d: %w", index, collab.ErrIndexOutOfRange))
		return u
	}
	if err := belongings.RemoveWithTxn(u.txn, index); err != nil {
		u.errs = multierror.Append(u.errs, err)
	}
	return u
}

func decode(raw any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(raw)
}
