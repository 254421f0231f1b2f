// Package reconciler defines the interface between the MCMP registry and
// the proxy's native worker table. It is consumed by the CONFIG command
// processor and implemented, in this repository, by an in-memory
// double: the routing plane this manager feeds is an external
// collaborator, so the seam is an explicit interface rather than a
// concrete type.
package reconciler

import "github.com/shmel1k/mcmgr/internal/registry"

// WorkerHandle is an opaque reference to a proxy worker record. The real
// proxy keeps a `proxy_worker_shared` struct behind this; here it is
// just enough state for ReenableWorker to rewrite.
type WorkerHandle struct {
	ID       int
	Scheme   string
	Host     string
	Port     string
	Route    string
}

// WorkerTable is the reconciler contract.
type WorkerTable interface {
	// GetWorkerID locates an existing proxy worker matching
	// (balancer, scheme, host, port) and returns its handle and node-
	// slot id. ok is false if no such worker exists.
	GetWorkerID(balancer, scheme, host, port string) (handle WorkerHandle, id int, ok bool)

	// GetFreeID allocates a slot index in the proxy's worker table,
	// honouring tableSize as the upper bound. Returns -1 if full.
	GetFreeID(tableSize int) int

	// ReenableWorker rewrites the worker's scheme/host/port/route to
	// match the given node, splicing the node back into the live
	// routing plane after a slot reuse.
	ReenableWorker(handle WorkerHandle, node registry.Node)

	// RegisterWorker records a brand-new worker so later lookups of
	// the same (balancer, scheme, host, port) tuple resolve to it.
	RegisterWorker(balancer string, node registry.Node) WorkerHandle

	// NodeIsUp probes liveness of an already-registered node
	// (STATUS's Load-aware ping/pong).
	NodeIsUp(id int, load int) bool

	// HostIsUp probes an arbitrary scheme://host:port endpoint (PING
	// with Scheme+Host+Port and no JVMRoute).
	HostIsUp(scheme, host, port string) bool
}
