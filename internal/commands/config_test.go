package commands

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shmel1k/mcmgr/internal/mcmp"
	"github.com/shmel1k/mcmgr/internal/reconciler"
	"github.com/shmel1k/mcmgr/internal/registry"
)

func newConfig(reg *registry.Registry) (*Config, *reconciler.InMemory) {
	wt := reconciler.NewInMemory()
	return &Config{
		Reg:      reg,
		Workers:  wt,
		Tunables: DefaultTunables(),
		Logger:   zerolog.Nop(),
	}, wt
}

func mustParse(t *testing.T, body string) []mcmp.Pair {
	t.Helper()
	p, err := mcmp.Parse([]byte(body))
	require.NoError(t, err)
	return p
}

// Scenario 1: fresh CONFIG.
func TestConfig_FreshRegistration(t *testing.T) {
	reg := registry.New(registry.DefaultLimits())
	cfg, _ := newConfig(reg)

	before := reg.Version()
	body, err := cfg.Process(mustParse(t, "JVMRoute=node1&Host=10.0.0.1&Port=8009&Type=ajp&Alias=example.com&Context=/app"))
	require.Nil(t, err)
	assert.Empty(t, body)

	node, ok := reg.FindNodeByRoute("node1")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1", node.Host)
	assert.Equal(t, "8009", node.Port)
	assert.Equal(t, "ajp", node.Type)

	host, ok := reg.FindHost(node.ID, "example.com")
	require.True(t, ok)
	assert.Equal(t, 1, host.VHostID)

	ctx, ok := reg.FindContext(node.ID, 1, "/app")
	require.True(t, ok)
	assert.Equal(t, registry.StatusStopped, ctx.Status)

	assert.Greater(t, reg.Version(), before)
}

// A Balancer value containing uppercase is lowercased and a warning is
// logged, matching the native manager's behavior.
func TestConfig_UppercaseBalancerNameLoggedAndLowercased(t *testing.T) {
	reg := registry.New(registry.DefaultLimits())
	var buf bytes.Buffer
	cfg, _ := newConfig(reg)
	cfg.Logger = zerolog.New(&buf)

	_, err := cfg.Process(mustParse(t, "JVMRoute=node1&Host=10.0.0.1&Port=8009&Type=ajp&Balancer=MyCluster&Alias=example.com&Context=/app"))
	require.Nil(t, err)

	node, ok := reg.FindNodeByRoute("node1")
	require.True(t, ok)
	assert.Equal(t, "mycluster", node.Balancer)
	assert.Contains(t, buf.String(), "lowercasing")
}

// CONFIG's Domain field must populate the Domain table, not just the
// node's Domain string, so NodesInDomain and the Domain table itself
// both reflect the LB-group membership.
func TestConfig_DomainFieldPopulatesDomainTable(t *testing.T) {
	reg := registry.New(registry.DefaultLimits())
	cfg, _ := newConfig(reg)

	_, err := cfg.Process(mustParse(t, "JVMRoute=node1&Host=10.0.0.1&Port=8009&Type=ajp&Domain=mydomain&Alias=example.com&Context=/app"))
	require.Nil(t, err)

	node, ok := reg.FindNodeByRoute("node1")
	require.True(t, ok)
	assert.Equal(t, "mydomain", node.Domain)

	var found bool
	for _, id := range reg.DomainIDs() {
		d, ok := reg.ReadDomain(id)
		require.True(t, ok)
		if d.Name == "mydomain" && d.JVMRoute == "node1" && d.Balancer == node.Balancer {
			found = true
		}
	}
	assert.True(t, found, "CONFIG must upsert a Domain row for Domain=mydomain")
}

// Scenario 2: duplicate JVMRoute, different endpoint -> tombstone + MEM.
func TestConfig_DuplicateRouteDifferentEndpoint(t *testing.T) {
	reg := registry.New(registry.DefaultLimits())
	cfg, _ := newConfig(reg)

	_, err := cfg.Process(mustParse(t, "JVMRoute=node1&Host=10.0.0.1&Port=8009&Type=ajp"))
	require.Nil(t, err)

	before := reg.Version()
	_, err2 := cfg.Process(mustParse(t, "JVMRoute=node1&Host=10.0.0.2&Port=8009&Type=ajp"))
	require.NotNil(t, err2)
	assert.Equal(t, registry.KindMem, err2.Kind)
	assert.Greater(t, reg.Version(), before)

	_, stillLive := reg.FindNodeByRoute("node1")
	assert.False(t, stillLive)
}

// Scenario 3: slot reuse by matching-endpoint CONFIG.
func TestConfig_SlotReuseOnMatchingEndpoint(t *testing.T) {
	reg := registry.New(registry.DefaultLimits())
	cfg, _ := newConfig(reg)

	_, err := cfg.Process(mustParse(t, "JVMRoute=node1&Host=10.0.0.1&Port=8009&Type=ajp"))
	require.Nil(t, err)
	original, ok := reg.FindNodeByRoute("node1")
	require.True(t, ok)
	originalID := original.ID

	_, err2 := cfg.Process(mustParse(t, "JVMRoute=node1&Host=10.0.0.2&Port=8009&Type=ajp"))
	require.NotNil(t, err2) // tombstones node1's old row

	_, err3 := cfg.Process(mustParse(t, "JVMRoute=node2&Host=10.0.0.1&Port=8009&Type=ajp"))
	require.Nil(t, err3)

	rehydrated, ok := reg.FindNodeByRoute("node2")
	require.True(t, ok)
	assert.Equal(t, originalID, rehydrated.ID)
	assert.False(t, rehydrated.Removed)
}

// Scenario 5: bad decode -> SYNTAX, no mutation.
func TestConfig_BadDecodeIsSyntaxError(t *testing.T) {
	_, err := mcmp.Parse([]byte("JVMRoute=node1&Alias=%3Cscript%3E&Context=/app"))
	require.Error(t, err)
}

// Scenario 6: capacity exhaustion.
func TestConfig_CapacityExhaustion(t *testing.T) {
	reg := registry.New(registry.Limits{MaxNode: 1, MaxHost: 20, MaxContext: 100, MaxBalancer: 20, MaxDomain: 20})
	cfg, _ := newConfig(reg)

	_, err := cfg.Process(mustParse(t, "JVMRoute=A&Host=10.0.0.1&Port=8009&Type=ajp"))
	require.Nil(t, err)
	before := reg.Version()

	_, err2 := cfg.Process(mustParse(t, "JVMRoute=B&Host=10.0.0.2&Port=8010&Type=ajp"))
	require.NotNil(t, err2)
	assert.Equal(t, registry.KindMem, err2.Kind)

	a, ok := reg.FindNodeByRoute("A")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1", a.Host)
	assert.Equal(t, before, reg.Version(), "a failed insert must not bump the version")
}

func TestConfig_MissingJVMRouteIsSyntax(t *testing.T) {
	reg := registry.New(registry.DefaultLimits())
	cfg, _ := newConfig(reg)
	_, err := cfg.Process(mustParse(t, "Host=10.0.0.1&Port=8009"))
	require.NotNil(t, err)
	assert.Equal(t, registry.KindSyntax, err.Kind)
}

func TestConfig_AliasWithoutContextIsSyntax(t *testing.T) {
	reg := registry.New(registry.DefaultLimits())
	cfg, _ := newConfig(reg)
	_, err := cfg.Process(mustParse(t, "JVMRoute=node1&Alias=example.com"))
	require.NotNil(t, err)
	assert.Equal(t, registry.KindSyntax, err.Kind)
}

func TestConfig_WorkerIdentityConflict(t *testing.T) {
	reg := registry.New(registry.DefaultLimits())
	cfg, _ := newConfig(reg)

	_, err := cfg.Process(mustParse(t, "JVMRoute=node1&Host=10.0.0.1&Port=8009&Type=ajp"))
	require.Nil(t, err)

	_, err2 := cfg.Process(mustParse(t, "JVMRoute=node2&Host=10.0.0.1&Port=8009&Type=ajp"))
	require.NotNil(t, err2)
	assert.Equal(t, registry.KindMem, err2.Kind)
}

func TestConfig_WebSocketTunnelling(t *testing.T) {
	reg := registry.New(registry.DefaultLimits())
	cfg, _ := newConfig(reg)
	cfg.Tunables.EnableWSTunnel = true

	_, err := cfg.Process(mustParse(t, "JVMRoute=node1&Host=10.0.0.1&Port=8080&Type=http"))
	require.Nil(t, err)

	node, ok := reg.FindNodeByRoute("node1")
	require.True(t, ok)
	assert.Equal(t, "ws", node.Type)
	assert.Equal(t, "websocket", node.Upgrade)
}
