// Package registry implements the manager's shared tables:
// fixed-capacity node/host/context/balancer/session/domain tables,
// a monotonic version counter, and the two named locks that guard them.
//
// There is a single process and address space here, so "shared memory"
// collapses to ordinary Go memory behind mutexes; the allocate/read/
// find/remove/ids-used/max-size contract and the lock-ordering discipline
// are kept identical to the native implementation so the reconciliation
// logic built on top needs no knowledge of the difference.
package registry

import (
	"sync"
	"sync/atomic"
)

// Limits configures the fixed capacities of each table. Defaults mirror
// DEFMAXNODE/DEFMAXHOST/DEFMAXCONTEXT from mod_manager.c.
type Limits struct {
	MaxNode      int
	MaxHost      int
	MaxContext   int
	MaxBalancer  int
	MaxSessionID int
	MaxDomain    int
}

// DefaultLimits matches the native manager's compiled-in defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxNode:      20,
		MaxHost:      20,
		MaxContext:   100,
		MaxBalancer:  20,
		MaxSessionID: 0, // disabled by default: performance/security impact
		MaxDomain:    20,
	}
}

// Registry is the facade over the six tables. It enforces the
// cross-table invariants (cascade delete, vhost-id density) and exposes
// the locked-section primitives consumed by the MCMP command processors.
type Registry struct {
	// nodeMu is "node-shm": guards nodes, hosts, contexts, balancers and
	// domains. Held across any multi-table mutation.
	nodeMu sync.Mutex
	// contextMu is "context-shm": a finer lock used only when a reader
	// needs context-table consistency without taking the node lock.
	contextMu sync.Mutex

	version uint64

	nodes      *table[Node]
	hosts      *table[Host]
	contexts   *table[Context]
	balancers  *table[Balancer]
	sessionIDs *table[SessionID]
	domains    *table[Domain]
}

func New(limits Limits) *Registry {
	return &Registry{
		nodes:      newTable[Node](limits.MaxNode),
		hosts:      newTable[Host](limits.MaxHost),
		contexts:   newTable[Context](limits.MaxContext),
		balancers:  newTable[Balancer](limits.MaxBalancer),
		sessionIDs: newTable[SessionID](limits.MaxSessionID),
		domains:    newTable[Domain](limits.MaxDomain),
	}
}

// LockNodes acquires the node-shm lock. Every multi-table mutation and
// every JVMRoute lookup that precedes a mutation must hold it.
func (r *Registry) LockNodes()   { r.nodeMu.Lock() }
func (r *Registry) UnlockNodes() { r.nodeMu.Unlock() }

// LockContexts acquires context-shm. Only used when the node lock is not
// already held (e.g. the reconciler's watchdog touching context state
// alone).
func (r *Registry) LockContexts()   { r.contextMu.Lock() }
func (r *Registry) UnlockContexts() { r.contextMu.Unlock() }

// IncVersion bumps the monotonic version counter. Callers must hold
// nodeMu; every mutation to the node/host/context graph must call this
// before releasing the lock so readers can detect staleness.
func (r *Registry) IncVersion() uint64 {
	return atomic.AddUint64(&r.version, 1)
}

// Version returns the current version counter value. Safe to call
// without holding any lock: readers compare against their own
// last-observed value.
func (r *Registry) Version() uint64 {
	return atomic.LoadUint64(&r.version)
}

// ---- Node table ----

func (r *Registry) MaxNodes() int { return r.nodes.maxSize() }

// InsertUpdateNode implements insert_update_node. If
// id is -1 a free slot is allocated; otherwise the slot is overwritten in
// place. The slot id used is returned and is also stored as the row's ID. clean controls whether WorkerStats is reset (true, brand-new
// node) or preserved from n.Stats (false, reused slot).
func (r *Registry) InsertUpdateNode(n Node, id int, clean bool) (int, error) {
	if id == -1 {
		id = r.nodes.allocate()
		if id == -1 {
			return -1, Mem(MsgNodeUpsertFailedFmt, n.JVMRoute)
		}
	}
	if clean {
		n.Stats = WorkerStats{}
	}
	n.ID = id
	if !r.nodes.set(id, n) {
		return -1, Mem(MsgNodeUpsertFailedFmt, n.JVMRoute)
	}
	return id, nil
}

func (r *Registry) ReadNode(id int) (Node, bool) {
	return r.nodes.get(id)
}

// FindNodeByRoute returns the live node (removed == false) whose
// JVMRoute matches, if any.
func (r *Registry) FindNodeByRoute(route string) (Node, bool) {
	n, _, ok := r.nodes.find(func(n Node) bool {
		return !n.Removed && n.JVMRoute == route
	})
	return n, ok
}

// FindNodeByHostPort returns any node — live or tombstoned — bound to
// the given host:port, used by CONFIG step 4 to detect slot reuse
// candidates.
func (r *Registry) FindNodeByHostPort(host, port string) (Node, bool) {
	n, _, ok := r.nodes.find(func(n Node) bool {
		return n.Host == host && n.Port == port
	})
	return n, ok
}

// FindLiveNodeByIdentity returns a *different* live node sharing the
// worker-identity tuple, enforcing the uniqueness invariant.
func (r *Registry) FindLiveNodeByIdentity(key IdentityKey, excludeID int) (Node, bool) {
	n, _, ok := r.nodes.find(func(n Node) bool {
		return !n.Removed && n.ID != excludeID && n.Identity() == key
	})
	return n, ok
}

func (r *Registry) NodeIDs() []int { return r.nodes.idsUsed() }

func (r *Registry) EachNode(fn func(id int, n Node)) { r.nodes.each(fn) }

// TombstoneNode marks a node removed and overwrites its JVMRoute with
// the REMOVED sentinel, holding its slot for reuse.
func (r *Registry) TombstoneNode(id int) {
	n, ok := r.nodes.get(id)
	if !ok {
		return
	}
	n.JVMRoute = RemovedRoute
	n.Removed = true
	n.NumRemoveCheck = 0
	r.nodes.set(id, n)
}

// RemoveNode frees the node slot outright (terminal FREED state).
func (r *Registry) RemoveNode(id int) {
	r.nodes.remove(id)
}

// CascadeDeleteNode removes every host and context owned by the node,
// atomically under the caller's node lock.
func (r *Registry) CascadeDeleteNode(nodeID int) {
	for _, id := range r.hosts.idsUsed() {
		h, ok := r.hosts.get(id)
		if ok && h.NodeID == nodeID {
			r.hosts.remove(id)
		}
	}
	for _, id := range r.contexts.idsUsed() {
		c, ok := r.contexts.get(id)
		if ok && c.NodeID == nodeID {
			r.contexts.remove(id)
		}
	}
}

// ---- Balancer table ----

func (r *Registry) InsertUpdateBalancer(b Balancer) error {
	existing, id, ok := r.balancers.find(func(x Balancer) bool { return x.Name == b.Name })
	if ok {
		b.ID = id
		r.balancers.set(id, b)
		return nil
	}
	_ = existing
	newID := r.balancers.allocate()
	if newID == -1 {
		return Mem(MsgBalancerUpsertFailedFmt, b.Name)
	}
	b.ID = newID
	r.balancers.set(newID, b)
	return nil
}

func (r *Registry) FindBalancer(name string) (Balancer, bool) {
	b, _, ok := r.balancers.find(func(x Balancer) bool { return x.Name == name })
	return b, ok
}

func (r *Registry) BalancerIDs() []int { return r.balancers.idsUsed() }

func (r *Registry) ReadBalancer(id int) (Balancer, bool) { return r.balancers.get(id) }

// ---- Host table ----

func (r *Registry) InsertUpdateHost(h Host) (int, error) {
	existing, id, ok := r.hosts.find(func(x Host) bool {
		return x.NodeID == h.NodeID && x.Alias == h.Alias
	})
	if ok {
		h.ID = id
		h.VHostID = existing.VHostID
		if h.VHostID == 0 {
			h.VHostID = 1
		}
		r.hosts.set(id, h)
		return id, nil
	}
	newID := r.hosts.allocate()
	if newID == -1 {
		return -1, Mem(MsgHostUpsertFailedFmt, h.Alias)
	}
	h.ID = newID
	r.hosts.set(newID, h)
	return newID, nil
}

func (r *Registry) ReadHost(id int) (Host, bool) { return r.hosts.get(id) }

func (r *Registry) FindHost(nodeID int, alias string) (Host, bool) {
	h, _, ok := r.hosts.find(func(x Host) bool { return x.NodeID == nodeID && x.Alias == alias })
	return h, ok
}

func (r *Registry) RemoveHost(id int) { r.hosts.remove(id) }

func (r *Registry) HostIDs() []int { return r.hosts.idsUsed() }

func (r *Registry) EachHost(fn func(id int, h Host)) { r.hosts.each(fn) }

// NextVHostID implements the vhost-id density rule: within a single
// node, new aliases get max(existing vhost-id for that node)+1.
func (r *Registry) NextVHostID(nodeID int) int {
	max := 0
	for _, id := range r.hosts.idsUsed() {
		h, _ := r.hosts.get(id)
		if h.NodeID == nodeID && h.VHostID > max {
			max = h.VHostID
		}
	}
	return max + 1
}

// ---- Context table ----

func (r *Registry) InsertUpdateContext(c Context) (int, error) {
	existing, id, ok := r.contexts.find(func(x Context) bool {
		return x.NodeID == c.NodeID && x.VHostID == c.VHostID && x.Path == c.Path
	})
	if ok {
		c.ID = id
		c.NumRequests = existing.NumRequests
		r.contexts.set(id, c)
		return id, nil
	}
	newID := r.contexts.allocate()
	if newID == -1 {
		return -1, Mem(MsgContextUpsertFailedFmt, c.Path)
	}
	c.ID = newID
	r.contexts.set(newID, c)
	return newID, nil
}

func (r *Registry) ReadContext(id int) (Context, bool) { return r.contexts.get(id) }

func (r *Registry) FindContext(nodeID, vhostID int, path string) (Context, bool) {
	c, _, ok := r.contexts.find(func(x Context) bool {
		return x.NodeID == nodeID && x.VHostID == vhostID && x.Path == path
	})
	return c, ok
}

func (r *Registry) RemoveContext(id int) { r.contexts.remove(id) }

func (r *Registry) ContextIDs() []int { return r.contexts.idsUsed() }

func (r *Registry) EachContext(fn func(id int, c Context)) { r.contexts.each(fn) }

func (r *Registry) MaxContexts() int { return r.contexts.maxSize() }
func (r *Registry) MaxHosts() int    { return r.hosts.maxSize() }

// ---- SessionID table ----

func (r *Registry) InsertSessionID(s SessionID) (int, error) {
	_, id, ok := r.sessionIDs.find(func(x SessionID) bool { return x.Value == s.Value })
	if ok {
		s.ID = id
		r.sessionIDs.set(id, s)
		return id, nil
	}
	newID := r.sessionIDs.allocate()
	if newID == -1 {
		return -1, Mem("MEM: Can't update or insert session id %q", s.Value)
	}
	s.ID = newID
	r.sessionIDs.set(newID, s)
	return newID, nil
}

func (r *Registry) SessionIDIDs() []int { return r.sessionIDs.idsUsed() }
func (r *Registry) ReadSessionID(id int) (SessionID, bool) { return r.sessionIDs.get(id) }

// ---- Domain table ----

func (r *Registry) InsertDomain(d Domain) (int, error) {
	_, id, ok := r.domains.find(func(x Domain) bool {
		return x.Name == d.Name && x.Balancer == d.Balancer && x.JVMRoute == d.JVMRoute
	})
	if ok {
		d.ID = id
		r.domains.set(id, d)
		return id, nil
	}
	newID := r.domains.allocate()
	if newID == -1 {
		return -1, Mem("MEM: Can't update or insert domain %q", d.Name)
	}
	d.ID = newID
	r.domains.set(newID, d)
	return newID, nil
}

func (r *Registry) DomainIDs() []int { return r.domains.idsUsed() }
func (r *Registry) ReadDomain(id int) (Domain, bool) { return r.domains.get(id) }

// NodesInDomain returns the ids of every node whose JVMRoute is
// registered under the given LB group, used by ENABLE/DISABLE/STOP/
// REMOVE-APP in domain scope.
func (r *Registry) NodesInDomain(domain string) []int {
	var ids []int
	r.nodes.each(func(id int, n Node) {
		if !n.Removed && n.Domain == domain {
			ids = append(ids, id)
		}
	})
	return ids
}

// ReapTombstones frees any tombstoned node whose remove-check counter
// has advanced past the threshold and that no longer owns any host or
// context, completing the TOMBSTONED -> FREED transition. It returns
// the number of node slots freed. Must be called under the node lock.
func (r *Registry) ReapTombstones() int {
	freed := 0
	for _, id := range r.nodes.idsUsed() {
		n, ok := r.nodes.get(id)
		if !ok || !n.Removed {
			continue
		}
		n.NumRemoveCheck++
		r.nodes.set(id, n)
		if n.NumRemoveCheck <= RemoveCheckThreshold {
			continue
		}
		if r.nodeHasDependents(id) {
			continue
		}
		r.nodes.remove(id)
		freed++
	}
	return freed
}

func (r *Registry) nodeHasDependents(nodeID int) bool {
	_, _, hostFound := r.hosts.find(func(h Host) bool { return h.NodeID == nodeID })
	if hostFound {
		return true
	}
	_, _, ctxFound := r.contexts.find(func(c Context) bool { return c.NodeID == nodeID })
	return ctxFound
}

// TableOccupancy is the used/capacity pair for one table, keyed by its
// name for metrics reporting.
type TableOccupancy struct {
	Table    string
	Used     int
	Capacity int
}

// Occupancy snapshots every table's used-slot count against its
// configured capacity.
func (r *Registry) Occupancy() []TableOccupancy {
	return []TableOccupancy{
		{Table: "node", Used: len(r.nodes.idsUsed()), Capacity: r.nodes.maxSize()},
		{Table: "host", Used: len(r.hosts.idsUsed()), Capacity: r.hosts.maxSize()},
		{Table: "context", Used: len(r.contexts.idsUsed()), Capacity: r.contexts.maxSize()},
		{Table: "balancer", Used: len(r.balancers.idsUsed()), Capacity: r.balancers.maxSize()},
		{Table: "session_id", Used: len(r.sessionIDs.idsUsed()), Capacity: r.sessionIDs.maxSize()},
		{Table: "domain", Used: len(r.domains.idsUsed()), Capacity: r.domains.maxSize()},
	}
}
