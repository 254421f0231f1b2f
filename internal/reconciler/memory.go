package reconciler

import (
	"sync"

	"github.com/shmel1k/mcmgr/internal/registry"
)

// InMemory is a WorkerTable double good enough to embed in a single
// process: it tracks workers by a (balancer, scheme, host, port) key the
// way the native mod_proxy balancer does, without needing a real
// downstream proxy. cmd/mcmgr and the tests both use this one; it is
// the only WorkerTable in this repository.
type InMemory struct {
	mu      sync.Mutex
	workers map[string]WorkerHandle
	nextID  int
	// upOverride, when non-nil, forces NodeIsUp/HostIsUp results for
	// deterministic tests instead of doing a real health probe.
	upOverride *bool
}

func NewInMemory() *InMemory {
	return &InMemory{workers: make(map[string]WorkerHandle)}
}

func key(balancer, scheme, host, port string) string {
	return balancer + "|" + scheme + "|" + host + "|" + port
}

func (m *InMemory) GetWorkerID(balancer, scheme, host, port string) (WorkerHandle, int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.workers[key(balancer, scheme, host, port)]
	return h, h.ID, ok
}

func (m *InMemory) GetFreeID(tableSize int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	used := make(map[int]bool, len(m.workers))
	for _, h := range m.workers {
		used[h.ID] = true
	}
	for id := 0; id < tableSize; id++ {
		if !used[id] {
			return id
		}
	}
	return -1
}

// RegisterWorker inserts or overwrites a worker entry, used by tests and
// by CONFIG's own bookkeeping when a brand-new node is admitted.
func (m *InMemory) RegisterWorker(balancer string, node registry.Node) WorkerHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := WorkerHandle{ID: node.ID, Scheme: node.Type, Host: node.Host, Port: node.Port, Route: node.JVMRoute}
	m.workers[key(balancer, node.Type, node.Host, node.Port)] = h
	return h
}

func (m *InMemory) ReenableWorker(handle WorkerHandle, node registry.Node) {
	m.mu.Lock()
	defer m.mu.Unlock()
	handle.Scheme = node.Type
	handle.Host = node.Host
	handle.Port = node.Port
	handle.Route = node.JVMRoute
	m.workers[key(node.Balancer, node.Type, node.Host, node.Port)] = handle
}

// SetUp forces every later probe result to the value of up, for tests. A later SetUp
// call replaces the forced value; nothing clears the override, so the
// default probe does not come back.
func (m *InMemory) SetUp(up bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := up
	m.upOverride = &v
}

func (m *InMemory) NodeIsUp(id int, load int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upOverride != nil {
		return *m.upOverride
	}
	return load != -1
}

func (m *InMemory) HostIsUp(scheme, host, port string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upOverride != nil {
		return *m.upOverride
	}
	return true
}
