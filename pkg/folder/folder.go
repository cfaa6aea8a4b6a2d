// Package folder stores a user's workspaces and trash in a collab.Collab.
package folder

import (
	"github.com/hashicorp-forge/collab/pkg/collab"
	"github.com/hashicorp-forge/collab/pkg/replica"
)

const (
	rootName             = "folder"
	workspacesName       = "workspaces"
	trashName            = "trash"
	currentWorkspaceName = "current_workspace"
)

// Folder is the folder of one user.
type Folder struct {
	inner      *collab.Collab
	root       *collab.MapRefWrapper
	Workspaces *Workspaces
	Trash      *Trash
}

// Data is a snapshot of a folder.
type Data struct {
	CurrentWorkspace string      `json:"current_workspace"`
	Workspaces       []Workspace `json:"workspaces"`
	Trash            []TrashInfo `json:"trash"`
}

// Create opens the folder stored in c, creating its containers if they do
// not exist yet.
func Create(c *collab.Collab) (*Folder, error) {
	var root *collab.MapRefWrapper
	var workspaces, trash *collab.ArrayRefWrapper
	err := c.WithTransactMut(func(txn *replica.TxnMut) error {
		var ok bool
		var err error

		if root, ok = c.GetMapWithTxn(txn, collab.NewPath(rootName)); !ok {
			if root, err = c.CreateMapWithTxn(txn, rootName); err != nil {
				return err
			}
		}
		if workspaces, ok = root.GetArrayWithTxn(txn, workspacesName); !ok {
			if workspaces, err = root.InsertArrayWithTxn(txn, workspacesName); err != nil {
				return err
			}
		}
		if trash, ok = root.GetArrayWithTxn(txn, trashName); !ok {
			if trash, err = root.InsertArrayWithTxn(txn, trashName); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Folder{
		inner:      c,
		root:       root,
		Workspaces: &Workspaces{a: workspaces},
		Trash:      &Trash{a: trash},
	}, nil
}

// Collab returns the underlying document.
func (f *Folder) Collab() *collab.Collab {
	return f.inner
}

// SetCurrentWorkspace records id as the workspace in use.
func (f *Folder) SetCurrentWorkspace(id string) error {
	return f.root.Insert(currentWorkspaceName, id)
}

// CurrentWorkspace returns the id of the workspace in use.
func (f *Folder) CurrentWorkspace() (string, bool) {
	return f.root.GetStr(currentWorkspaceName)
}

// Data returns a snapshot of the folder.
func (f *Folder) Data() (*Data, error) {
	workspaces, err := f.Workspaces.GetAll()
	if err != nil {
		return nil, err
	}
	trash, err := f.Trash.GetAll()
	if err != nil {
		return nil, err
	}
	current, _ := f.CurrentWorkspace()
	return &Data{
		CurrentWorkspace: current,
		Workspaces:       workspaces,
		Trash:            trash,
	}, nil
}
