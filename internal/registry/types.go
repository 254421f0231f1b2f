package registry

import "time"

// Field-width caps. mod_cluster derives these from mod_clustersize.h,
// which is not part of this distribution; the values below are chosen
// generously enough to hold any realistic JBoss/Tomcat configuration
// while keeping the tables a predictable, fixed size.
const (
	BalancerNameSize = 40
	JVMRouteSize     = 64
	DomainSize       = 40
	HostSize         = 128
	PortSize         = 7
	TypeSize         = 8
	UpgradeSize      = 16
	AJPSecretSize    = 64
	AliasSize        = 128
	ContextSize      = 256
	CookieNameSize   = 30
	PathKeySize      = 30
	SessionIDSize    = 128

	// MaxMessageSize is the native MAXMESSSIZE. The receiver does not
	// read it: its body limit is Receiver.MaxMessageSize, 8192 when unset.
	MaxMessageSize = 1024

	// RemovedRoute is the sentinel JVMRoute written into a tombstoned
	// node's slot.
	RemovedRoute = "REMOVED"

	// RemoveCheckThreshold is how many ReapTombstones passes a
	// tombstoned node survives before its slot can be freed (once it
	// also has no hosts or contexts left).
	RemoveCheckThreshold = 10
)

// FlushPolicy mirrors enum flush_packets in proxy.h.
type FlushPolicy int

const (
	FlushOff FlushPolicy = iota
	FlushOn
	FlushAuto
)

// ContextStatus is the context lifecycle state.
type ContextStatus int

const (
	StatusEnabled ContextStatus = iota + 1
	StatusDisabled
	StatusStopped
	StatusRemoved
)

func (s ContextStatus) String() string {
	switch s {
	case StatusEnabled:
		return "ENABLED"
	case StatusDisabled:
		return "DISABLED"
	case StatusStopped:
		return "STOPPED"
	default:
		return "REMOVED"
	}
}

// WorkerStats is the reused-slot payload spliced from an existing proxy
// worker into a node row when CONFIG re-binds the same endpoint to a new
// JVMRoute. Copying it by value is the entire splice.
type WorkerStats struct {
	UpdateTimeLB   time.Time
	NumFailureIdle int
	OldElected     uint64
	OldRead        int64
	LastCleanTry   time.Time
}

// Node is a back-end worker, keyed by its table slot ID and by the
// unique JVMRoute routing token.
type Node struct {
	ID int

	Balancer string
	JVMRoute string
	Domain   string // LB group / failover scope
	Host     string
	Port     string
	Type     string // ajp, http, https, ws, wss
	Upgrade  string
	AJPSecret string

	Reversed bool
	Removed  bool

	FlushPackets FlushPolicy
	FlushWait    time.Duration
	Ping         time.Duration
	Smax         int
	TTL          time.Duration
	Timeout      time.Duration

	ResponseFieldSize int

	LastUpdate      time.Time
	NumRemoveCheck  int
	Stats           WorkerStats
}

// IdentityKey is the worker-identity tuple used for the cross-table
// uniqueness invariant.
type IdentityKey struct {
	Balancer string
	Type     string
	Host     string
	Port     string
	Reversed bool
	Smax     int
	TTL      time.Duration
}

func (n *Node) Identity() IdentityKey {
	return IdentityKey{
		Balancer: n.Balancer,
		Type:     n.Type,
		Host:     n.Host,
		Port:     n.Port,
		Reversed: n.Reversed,
		Smax:     n.Smax,
		TTL:      n.TTL,
	}
}

// SameIdentity reports whether two nodes are "identity-equivalent" per
// the CONFIG upsert rule: same balancer/host/port/type/reversed/smax/ttl.
func (n *Node) SameIdentity(other *Node) bool {
	return n.Identity() == other.Identity()
}

// Balancer is a sticky-session policy group.
type Balancer struct {
	ID   int
	Name string

	StickySession       bool
	StickySessionCookie  string
	StickySessionPath    string
	StickySessionRemove  bool
	StickySessionForce   bool

	Timeout     time.Duration
	MaxAttempts int
}

// Host is a virtual-host alias owned by a node.
type Host struct {
	ID     int
	NodeID int
	VHostID int
	Alias  string
}

// Context is a URI path prefix on a (node, vhost).
type Context struct {
	ID         int
	NodeID     int
	VHostID    int
	Path       string
	Status     ContextStatus
	NumRequests int
}

// SessionID is an observed session-id -> JVMRoute mapping, kept only for
// UI display.
type SessionID struct {
	ID       int
	Value    string
	JVMRoute string
}

// Domain is an LB-group membership row: which (balancer, JVMRoute) pairs
// belong to a given failover domain.
type Domain struct {
	ID       int
	Name     string
	Balancer string
	JVMRoute string
}

func defaultBalancer(name string) Balancer {
	return Balancer{
		Name:                name,
		StickySession:       true,
		StickySessionCookie: "JSESSIONID",
		StickySessionPath:   "jsessionid",
		StickySessionForce:  true,
		MaxAttempts:         1,
	}
}

// DefaultNode returns a Node pre-filled with the CONFIG verb's default
// field values, used when a directive omits an optional parameter.
func DefaultNode(defaultBalancerName string) Node {
	return Node{
		ID:       -1,
		Balancer: defaultBalancerName,
		Host:     "localhost",
		Port:     "8009",
		Type:     "ajp",
		FlushPackets: FlushOff,
		Ping:         10 * time.Second,
		Smax:         -1,
		TTL:          60 * time.Second,
	}
}
