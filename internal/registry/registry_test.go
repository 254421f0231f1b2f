package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertUpdateNode_AllocatesFreeSlot(t *testing.T) {
	reg := New(DefaultLimits())
	n := DefaultNode("mycluster")
	n.JVMRoute = "node1"
	id, err := reg.InsertUpdateNode(n, -1, true)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, id, 0)

	got, ok := reg.ReadNode(id)
	require.True(t, ok)
	assert.Equal(t, "node1", got.JVMRoute)
}

func TestInsertUpdateNode_CapacityExhausted(t *testing.T) {
	reg := New(Limits{MaxNode: 1, MaxHost: 1, MaxContext: 1, MaxBalancer: 1, MaxDomain: 1})
	n := DefaultNode("mycluster")
	n.JVMRoute = "a"
	_, err := reg.InsertUpdateNode(n, -1, true)
	require.NoError(t, err)

	n2 := DefaultNode("mycluster")
	n2.JVMRoute = "b"
	_, err = reg.InsertUpdateNode(n2, -1, true)
	require.Error(t, err)
	var regErr *Error
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, KindMem, regErr.Kind)
}

func TestCascadeDeleteNode_RemovesHostsAndContexts(t *testing.T) {
	reg := New(DefaultLimits())
	n := DefaultNode("mycluster")
	n.JVMRoute = "node1"
	id, err := reg.InsertUpdateNode(n, -1, true)
	require.NoError(t, err)

	_, err = reg.InsertUpdateHost(Host{NodeID: id, VHostID: 1, Alias: "example.com"})
	require.NoError(t, err)
	_, err = reg.InsertUpdateContext(Context{NodeID: id, VHostID: 1, Path: "/app", Status: StatusStopped})
	require.NoError(t, err)

	reg.CascadeDeleteNode(id)

	for _, hid := range reg.HostIDs() {
		h, _ := reg.ReadHost(hid)
		assert.NotEqual(t, id, h.NodeID)
	}
	for _, cid := range reg.ContextIDs() {
		c, _ := reg.ReadContext(cid)
		assert.NotEqual(t, id, c.NodeID)
	}
}

func TestVersionMonotonicity(t *testing.T) {
	reg := New(DefaultLimits())
	before := reg.Version()
	reg.LockNodes()
	reg.IncVersion()
	reg.UnlockNodes()
	after := reg.Version()
	assert.Greater(t, after, before)
}

func TestNextVHostID_DensityInvariant(t *testing.T) {
	reg := New(DefaultLimits())
	n := DefaultNode("mycluster")
	n.JVMRoute = "node1"
	id, err := reg.InsertUpdateNode(n, -1, true)
	require.NoError(t, err)

	v1 := reg.NextVHostID(id)
	assert.Equal(t, 1, v1)
	_, err = reg.InsertUpdateHost(Host{NodeID: id, VHostID: v1, Alias: "a.example.com"})
	require.NoError(t, err)

	v2 := reg.NextVHostID(id)
	assert.Equal(t, 2, v2)
	_, err = reg.InsertUpdateHost(Host{NodeID: id, VHostID: v2, Alias: "b.example.com"})
	require.NoError(t, err)

	v3 := reg.NextVHostID(id)
	assert.Equal(t, 3, v3)
}

func TestTombstoneThenFindByRoute(t *testing.T) {
	reg := New(DefaultLimits())
	n := DefaultNode("mycluster")
	n.JVMRoute = "node1"
	id, err := reg.InsertUpdateNode(n, -1, true)
	require.NoError(t, err)

	reg.TombstoneNode(id)

	_, ok := reg.FindNodeByRoute("node1")
	assert.False(t, ok, "tombstoned node must not be found as live")

	got, ok := reg.ReadNode(id)
	require.True(t, ok)
	assert.Equal(t, RemovedRoute, got.JVMRoute)
	assert.True(t, got.Removed)
}

func TestReapTombstones_ReturnsFreedCount(t *testing.T) {
	reg := New(DefaultLimits())
	n := DefaultNode("mycluster")
	n.JVMRoute = "node1"
	id, err := reg.InsertUpdateNode(n, -1, true)
	require.NoError(t, err)
	reg.TombstoneNode(id)

	for i := 0; i < RemoveCheckThreshold; i++ {
		assert.Equal(t, 0, reg.ReapTombstones())
	}
	assert.Equal(t, 1, reg.ReapTombstones(), "must report the one node slot it freed")
	assert.Equal(t, 0, reg.ReapTombstones(), "already-freed slots must not be counted again")
}

func TestOccupancy_ReflectsInsertedRows(t *testing.T) {
	reg := New(DefaultLimits())
	n := DefaultNode("mycluster")
	n.JVMRoute = "node1"
	_, err := reg.InsertUpdateNode(n, -1, true)
	require.NoError(t, err)

	var nodeOcc TableOccupancy
	for _, o := range reg.Occupancy() {
		if o.Table == "node" {
			nodeOcc = o
		}
	}
	assert.Equal(t, 1, nodeOcc.Used)
	assert.Equal(t, DefaultLimits().MaxNode, nodeOcc.Capacity)
}

func TestFindLiveNodeByIdentity_ExcludesSelf(t *testing.T) {
	reg := New(DefaultLimits())
	n := DefaultNode("mycluster")
	n.JVMRoute = "node1"
	id, err := reg.InsertUpdateNode(n, -1, true)
	require.NoError(t, err)

	_, ok := reg.FindLiveNodeByIdentity(n.Identity(), id)
	assert.False(t, ok, "must not match its own row")

	n2 := DefaultNode("mycluster")
	n2.JVMRoute = "node2"
	id2, err := reg.InsertUpdateNode(n2, -1, true)
	require.NoError(t, err)

	found, ok := reg.FindLiveNodeByIdentity(n.Identity(), id)
	require.True(t, ok, "a different node with the same worker identity must be found")
	assert.Equal(t, id2, found.ID)
}
