package folder

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/collab/pkg/collab"
)

func createFolder(t *testing.T, uid string) *Folder {
	t.Helper()

	c := collab.NewBuilder(1, uid).Build()
	require.NoError(t, c.Initialize())
	f, err := Create(c)
	require.NoError(t, err)
	return f
}

func TestCreateWorkspace(t *testing.T) {
	f := createFolder(t, "1")

	o := Workspace{
		ID:         "1",
		Name:       "My first workspace",
		Belongings: []Belonging{{ID: "1"}, {ID: "2"}},
		CreatedAt:  123,
	}
	require.NoError(t, f.Workspaces.Create(o))

	all, err := f.Workspaces.GetAll()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, o, all[0])
}

func TestCreateWorkspace_DuplicateID(t *testing.T) {
	f := createFolder(t, "1")
	require.NoError(t, f.Workspaces.Create(Workspace{ID: "1", Name: "first"}))

	err := f.Workspaces.Create(Workspace{ID: "1", Name: "second"})
	assert.EqualError(t, err, `workspace "1" already exists`)
	assert.Equal(t, 1, f.Workspaces.Len())
}

func TestCreateWorkspace_Validation(t *testing.T) {
	f := createFolder(t, "1")
	assert.Error(t, f.Workspaces.Create(Workspace{ID: "1"}))
	assert.Error(t, f.Workspaces.Create(Workspace{Name: "nameless"}))
	assert.Equal(t, 0, f.Workspaces.Len())
}

func TestUpdateWorkspace(t *testing.T) {
	f := createFolder(t, "1")
	require.NoError(t, f.Workspaces.Create(Workspace{
		ID:         "1",
		Name:       "My first workspace",
		Belongings: []Belonging{{ID: "1"}, {ID: "2"}},
		CreatedAt:  123,
	}))

	wm, ok := f.Workspaces.Edit("1")
	require.True(t, ok)
	err := wm.Update(func(u *WorkspaceUpdate) {
		u.SetName("New workspace").DeleteBelongings(0)
	})
	require.NoError(t, err)

	w, ok, err := f.Workspaces.Get("1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "New workspace", w.Name)
	require.Len(t, w.Belongings, 1)
	assert.Equal(t, "2", w.Belongings[0].ID)
}

func TestUpdateWorkspace_FailureAppliesNothing(t *testing.T) {
	f := createFolder(t, "1")
	require.NoError(t, f.Workspaces.Create(Workspace{ID: "1", Name: "original"}))

	wm, ok := f.Workspaces.Edit("1")
	require.True(t, ok)
	err := wm.Update(func(u *WorkspaceUpdate) {
		u.SetName("renamed").AddBelonging(Belonging{ID: "v1"}).DeleteBelongings(5)
	})
	assert.ErrorIs(t, err, collab.ErrIndexOutOfRange)

	w, _, err := f.Workspaces.Get("1")
	require.NoError(t, err)
	assert.Equal(t, "original", w.Name)
	assert.Empty(t, w.Belongings)
}

func TestEditMissingWorkspace(t *testing.T) {
	f := createFolder(t, "1")
	_, ok := f.Workspaces.Edit("missing")
	assert.False(t, ok)

	_, ok, err := f.Workspaces.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetAllWorkspaces(t *testing.T) {
	f := createFolder(t, "1")
	for i := 0; i < 10; i++ {
		require.NoError(t, f.Workspaces.Create(Workspace{
			ID:        fmt.Sprint(i),
			Name:      fmt.Sprintf("My %d workspace", i),
			CreatedAt: 123,
		}))
	}

	all, err := f.Workspaces.GetAll()
	require.NoError(t, err)
	assert.Len(t, all, 10)
}

func TestDeleteWorkspace(t *testing.T) {
	f := createFolder(t, "1")
	for i := 0; i < 10; i++ {
		require.NoError(t, f.Workspaces.Create(Workspace{
			ID:        fmt.Sprint(i),
			Name:      fmt.Sprintf("My %d workspace", i),
			CreatedAt: 123,
		}))
	}

	require.NoError(t, f.Workspaces.Delete(0))
	all, err := f.Workspaces.GetAll()
	require.NoError(t, err)
	assert.Len(t, all, 9)
	assert.Equal(t, "1", all[0].ID)

	assert.ErrorIs(t, f.Workspaces.Delete(9), collab.ErrIndexOutOfRange)
}

func TestTrash(t *testing.T) {
	f := createFolder(t, "1")

	require.NoError(t, f.Trash.Add(
		TrashInfo{ID: "v1", Name: "Old notes", CreatedAt: 1},
		TrashInfo{ID: "v2", Name: "Drafts", CreatedAt: 2},
		TrashInfo{ID: "v1", Name: "Old notes", CreatedAt: 1},
	))
	assert.Equal(t, 2, f.Trash.Len())

	require.NoError(t, f.Trash.Remove("v1", "unknown"))
	all, err := f.Trash.GetAll()
	require.NoError(t, err)
	assert.Equal(t, []TrashInfo{{ID: "v2", Name: "Drafts", CreatedAt: 2}}, all)

	assert.Error(t, f.Trash.Add(TrashInfo{Name: "no id"}))
}

func TestFolderData(t *testing.T) {
	f := createFolder(t, "1")
	require.NoError(t, f.Workspaces.Create(Workspace{ID: "w1", Name: "Work"}))
	require.NoError(t, f.SetCurrentWorkspace("w1"))

	data, err := f.Data()
	require.NoError(t, err)
	assert.Equal(t, "w1", data.CurrentWorkspace)
	require.Len(t, data.Workspaces, 1)
	assert.Equal(t, "Work", data.Workspaces[0].Name)
	assert.Empty(t, data.Trash)

	// Reopening keeps the content.
	reopened, err := Create(f.Collab())
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Workspaces.Len())
}
