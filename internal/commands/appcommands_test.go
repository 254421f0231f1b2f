package commands

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shmel1k/mcmgr/internal/registry"
)

func setupNodeWithContext(t *testing.T) (*registry.Registry, registry.Node) {
	t.Helper()
	reg := registry.New(registry.DefaultLimits())
	cfg, _ := newConfig(reg)
	_, err := cfg.Process(mustParse(t, "JVMRoute=node1&Host=10.0.0.1&Port=8009&Type=ajp&Alias=example.com&Context=/app"))
	require.Nil(t, err)
	node, ok := reg.FindNodeByRoute("node1")
	require.True(t, ok)
	return reg, node
}

// Scenario 4: enable/stop/remove cycle, with STOP-APP-RSP's mixed-case
// JvmRoute field preserved verbatim.
func TestAppCommand_EnableStopRemoveCycle(t *testing.T) {
	reg, node := setupNodeWithContext(t)
	logger := zerolog.Nop()

	enable := NewEnable(reg, logger)
	_, err := enable.Process(mustParse(t, "JVMRoute=node1&Alias=example.com&Context=/app"), ScopeContext)
	require.Nil(t, err)

	ctx, ok := reg.FindContext(node.ID, 1, "/app")
	require.True(t, ok)
	assert.Equal(t, registry.StatusEnabled, ctx.Status)

	stop := NewStop(reg, logger)
	body, err2 := stop.Process(mustParse(t, "JVMRoute=node1&Alias=example.com&Context=/app"), ScopeContext)
	require.Nil(t, err2)
	assert.Equal(t, "Type=STOP-APP-RSP&JvmRoute=node1&Alias=example.com&Context=/app&Requests=0\n", string(body))

	ctx, ok = reg.FindContext(node.ID, 1, "/app")
	require.True(t, ok)
	assert.Equal(t, registry.StatusStopped, ctx.Status)

	remove := NewRemove(reg, logger)
	_, err3 := remove.Process(mustParse(t, "JVMRoute=node1&Alias=example.com&Context=/app"), ScopeContext)
	require.Nil(t, err3)

	_, stillThere := reg.FindContext(node.ID, 1, "/app")
	assert.False(t, stillThere)
}

func TestAppCommand_RemoveUnknownNodeIsIdempotent(t *testing.T) {
	reg := registry.New(registry.DefaultLimits())
	remove := NewRemove(reg, zerolog.Nop())
	body, err := remove.Process(mustParse(t, "JVMRoute=ghost"), ScopeNode)
	require.Nil(t, err)
	assert.Empty(t, body)
}

func TestAppCommand_NodeScopeRemovesAllHostsAndContexts(t *testing.T) {
	reg, node := setupNodeWithContext(t)
	remove := NewRemove(reg, zerolog.Nop())

	_, err := remove.Process(mustParse(t, "JVMRoute=node1"), ScopeNode)
	require.Nil(t, err)

	_, stillLive := reg.FindNodeByRoute("node1")
	assert.False(t, stillLive)

	for _, hid := range reg.HostIDs() {
		h, _ := reg.ReadHost(hid)
		assert.NotEqual(t, node.ID, h.NodeID)
	}
}

func TestAppCommand_AliasWithoutContextIsSyntax(t *testing.T) {
	reg, _ := setupNodeWithContext(t)
	enable := NewEnable(reg, zerolog.Nop())
	_, err := enable.Process(mustParse(t, "JVMRoute=node1&Alias=example.com"), ScopeContext)
	require.NotNil(t, err)
	assert.Equal(t, registry.KindSyntax, err.Kind)
}

func TestAppCommand_MultipleAliasesRejected(t *testing.T) {
	reg, _ := setupNodeWithContext(t)
	enable := NewEnable(reg, zerolog.Nop())
	_, err := enable.Process(mustParse(t, "JVMRoute=node1&Alias=a.com&Alias=b.com&Context=/app"), ScopeContext)
	require.NotNil(t, err)
	assert.Equal(t, registry.KindSyntax, err.Kind)
}

func TestAppCommand_UnknownNodeIsMem(t *testing.T) {
	reg := registry.New(registry.DefaultLimits())
	enable := NewEnable(reg, zerolog.Nop())
	_, err := enable.Process(mustParse(t, "JVMRoute=ghost&Alias=example.com&Context=/app"), ScopeContext)
	require.NotNil(t, err)
	assert.Equal(t, registry.KindMem, err.Kind)
}
