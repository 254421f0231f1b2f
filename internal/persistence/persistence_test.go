package persistence

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shmel1k/mcmgr/internal/registry"
)

func TestFileStore_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "manager"))

	reg := registry.New(registry.DefaultLimits())
	n := registry.DefaultNode("mycluster")
	n.JVMRoute = "node1"
	_, err := reg.InsertUpdateNode(n, -1, true)
	require.NoError(t, err)

	snap := SnapshotFrom(reg)
	require.Len(t, snap.Nodes, 1)

	require.NoError(t, store.Save(context.Background(), snap))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded.Nodes, 1)
	assert.Equal(t, "node1", loaded.Nodes[0].JVMRoute)
}

func TestFileStore_LoadMissingFileReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "absent"))

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Nodes)
}

func TestRestore_RehydratesRegistry(t *testing.T) {
	reg := registry.New(registry.DefaultLimits())
	n := registry.DefaultNode("mycluster")
	n.ID = 3
	n.JVMRoute = "node1"

	Restore(reg, Snapshot{Nodes: []registry.Node{n}})

	got, ok := reg.ReadNode(3)
	require.True(t, ok)
	assert.Equal(t, "node1", got.JVMRoute)
}

func TestFileStore_SaveCreatesBaseDir(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "nested", "manager"))

	require.NoError(t, store.Save(context.Background(), Snapshot{}))
	_, err := os.Stat(filepath.Join(dir, "nested", "manager.snapshot"))
	require.NoError(t, err)
}
