package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shmel1k/mcmgr/internal/registry"
)

const testNonce = "4d8f8f15-0d1e-4f1a-8f4b-12f3a4567890"

func registryWithNode(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New(registry.DefaultLimits())
	n := registry.DefaultNode("mycluster")
	n.JVMRoute = "node1"
	n.Host = "10.0.0.1"
	n.Port = "8009"
	n.Type = "ajp"
	id, err := reg.InsertUpdateNode(n, -1, true)
	require.NoError(t, err)
	_, err = reg.InsertUpdateHost(registry.Host{NodeID: id, VHostID: 1, Alias: "example.com"})
	require.NoError(t, err)
	_, err = reg.InsertUpdateContext(registry.Context{NodeID: id, VHostID: 1, Path: "/app", Status: registry.StatusEnabled})
	require.NoError(t, err)
	return reg
}

func TestStatusPage_ListsNodeAndContext(t *testing.T) {
	reg := registryWithNode(t)
	h := NewStatusPageHandler(zerolog.Nop(), reg, testNonce, true, true, "/mod_cluster-manager")

	req := httptest.NewRequest(http.MethodGet, "/mod_cluster-manager", nil)
	rec := httptest.NewRecorder()
	h.Status(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "node1")
	assert.Contains(t, body, "example.com")
	assert.Contains(t, body, "/app")
	assert.Contains(t, body, "nonce="+testNonce)
	assert.Contains(t, body, `href="/mod_cluster-manager/cmd?nonce=`, "command links must target the /cmd endpoint, not the status page")
}

func TestStatusPage_CommandRejectsBadNonce(t *testing.T) {
	reg := registryWithNode(t)
	h := NewStatusPageHandler(zerolog.Nop(), reg, testNonce, true, true, "/mod_cluster-manager")

	req := httptest.NewRequest(http.MethodGet, "/mod_cluster-manager/cmd?nonce=wrong&JVMRoute=node1&cmd=REMOVE-APP", nil)
	rec := httptest.NewRecorder()
	h.Command(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	_, ok := reg.FindNodeByRoute("node1")
	assert.True(t, ok, "a bad nonce must not mutate state")
}

func TestStatusPage_CommandWithGoodNonceStops(t *testing.T) {
	reg := registryWithNode(t)
	h := NewStatusPageHandler(zerolog.Nop(), reg, testNonce, true, true, "/mod_cluster-manager")

	url := "/mod_cluster-manager/cmd?nonce=" + testNonce + "&JVMRoute=node1&Alias=example.com&Context=/app&cmd=STOP-APP"
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	h.Command(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	ctx, ok := reg.FindContext(0, 1, "/app")
	require.True(t, ok)
	assert.Equal(t, registry.StatusStopped, ctx.Status)
}

func TestStatusPage_CommandRangeDomainScopesAcrossNode(t *testing.T) {
	reg := registryWithNode(t)
	n, ok := reg.FindNodeByRoute("node1")
	require.True(t, ok)
	n.Domain = "mydomain"
	_, err := reg.InsertUpdateNode(n, n.ID, false)
	require.NoError(t, err)

	h := NewStatusPageHandler(zerolog.Nop(), reg, testNonce, true, true, "/mod_cluster-manager")

	url := "/mod_cluster-manager/cmd?nonce=" + testNonce + "&JVMRoute=mydomain&Range=DOMAIN&cmd=STOP-APP"
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	h.Command(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	ctx, ok := reg.FindContext(0, 1, "/app")
	require.True(t, ok)
	assert.Equal(t, registry.StatusStopped, ctx.Status, "Range=DOMAIN must resolve JVMRoute as a domain name and apply to every member node")
}

func TestStatusPage_CommandDisabledWhenLinksOff(t *testing.T) {
	reg := registryWithNode(t)
	h := NewStatusPageHandler(zerolog.Nop(), reg, testNonce, false, false, "/mod_cluster-manager")

	req := httptest.NewRequest(http.MethodGet, "/mod_cluster-manager/cmd?JVMRoute=node1&cmd=REMOVE-APP", nil)
	rec := httptest.NewRecorder()
	h.Command(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
