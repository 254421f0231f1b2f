// Package commands implements the MCMP verb processors: CONFIG,
// ENABLE-APP, DISABLE-APP, STOP-APP, REMOVE-APP, STATUS, PING, INFO,
// DUMP, VERSION. Each processor validates its fields, acquires the
// registry lock, mutates, and returns a response body or a
// *registry.Error.
package commands

import (
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/shmel1k/mcmgr/internal/mcmp"
	"github.com/shmel1k/mcmgr/internal/reconciler"
	"github.com/shmel1k/mcmgr/internal/registry"
)

// Tunables mirrors the configuration-directive surface that CONFIG
// consults.
type Tunables struct {
	DefaultBalancer   string
	EnableWSTunnel    bool
	WSUpgradeHeader   string
	AJPSecret         string
	ResponseFieldSize int
}

func DefaultTunables() Tunables {
	return Tunables{DefaultBalancer: "mycluster", WSUpgradeHeader: "websocket"}
}

// Config is the CONFIG command processor.
type Config struct {
	Reg      *registry.Registry
	Workers  reconciler.WorkerTable
	Tunables Tunables
	Logger   zerolog.Logger
}

type vhostGroup struct {
	aliasRaw   string
	contextRaw string
}

// Process implements the CONFIG transactional body.
func (c *Config) Process(pairs []mcmp.Pair) ([]byte, *registry.Error) {
	node := registry.DefaultNode(c.Tunables.DefaultBalancer)
	bal := registry.Balancer{
		Name:                c.Tunables.DefaultBalancer,
		StickySession:       true,
		StickySessionCookie: "JSESSIONID",
		StickySessionPath:   "jsessionid",
		StickySessionForce:  true,
		MaxAttempts:         1,
	}

	var groups []vhostGroup
	var cur *vhostGroup

	for i := 0; i < len(pairs); i++ {
		key, val := pairs[i].Key, pairs[i].Value

		if err := applyBalancerField(key, val, &bal, &node, c.Logger); err != nil {
			return nil, err
		}
		if err := applyNodeField(key, val, &node); err != nil {
			return nil, err
		}

		switch {
		case strings.EqualFold(key, "Alias"):
			if cur != nil && cur.aliasRaw != "" && cur.contextRaw == "" {
				return nil, registry.Syntax(registry.MsgAliasWithoutCtx)
			}
			groups = append(groups, vhostGroup{aliasRaw: val})
			cur = &groups[len(groups)-1]
		case strings.EqualFold(key, "Context"):
			if cur == nil || cur.contextRaw != "" {
				return nil, registry.Syntax(registry.MsgCtxWithoutAlias)
			}
			cur.contextRaw = val
		}
	}

	if node.JVMRoute == "" {
		return nil, registry.Syntax(registry.MsgJVMRouteEmpty)
	}
	for _, g := range groups {
		if g.aliasRaw != "" && g.contextRaw == "" {
			return nil, registry.Syntax(registry.MsgAliasWithoutCtx)
		}
	}

	if c.Tunables.EnableWSTunnel {
		switch node.Type {
		case "http":
			node.Type = "ws"
		case "https":
			node.Type = "wss"
		}
		if node.Type == "ws" || node.Type == "wss" {
			if c.Tunables.WSUpgradeHeader != "" {
				node.Upgrade = c.Tunables.WSUpgradeHeader
			} else {
				node.Upgrade = "websocket"
			}
		}
	}
	if node.Type == "ajp" && c.Tunables.AJPSecret != "" {
		node.AJPSecret = c.Tunables.AJPSecret
	}
	if c.Tunables.ResponseFieldSize != 0 && node.Type != "ajp" {
		node.ResponseFieldSize = c.Tunables.ResponseFieldSize
	}

	reg := c.Reg
	reg.LockNodes()
	defer reg.UnlockNodes()

	if err := reg.InsertUpdateBalancer(bal); err != nil {
		return nil, err.(*registry.Error)
	}

	var reusedSlot = -1
	id := -1

	if existing, ok := reg.FindNodeByRoute(node.JVMRoute); ok {
		if !existing.SameIdentity(&node) {
			mess := registry.Mem(registry.MsgNodeStillExistsFmt, existing.JVMRoute)
			reg.TombstoneNode(existing.ID)
			reg.CascadeDeleteNode(existing.ID)
			reg.IncVersion()
			c.Logger.Warn().Str("jvm_route", existing.JVMRoute).Msg("config: existing node not identity-equivalent, tombstoned")
			return nil, mess
		}
		id = existing.ID
		node.ID = existing.ID
	}

	if other, ok := reg.FindLiveNodeByIdentity(node.Identity(), id); ok {
		_ = other
		return nil, registry.Mem(registry.MsgWorkerConflict)
	}

	clean := true

	if handle, workerID, ok := c.Workers.GetWorkerID(node.Balancer, node.Type, node.Host, node.Port); ok {
		if id != -1 && workerID == id {
			// Same node already known to the worker table; proceed normally.
		} else {
			clean = false
			id = workerID
			if existing, ok := reg.ReadNode(workerID); ok {
				node.Stats = existing.Stats
			}
			reusedSlot = workerID
			_ = handle
		}
	} else if id == -1 {
		if found, ok := reg.FindNodeByHostPort(node.Host, node.Port); ok && found.Removed {
			id = found.ID
			reusedSlot = found.ID
		}
	}

	if id == -1 {
		id = c.Workers.GetFreeID(reg.MaxNodes())
	}

	assignedID, err := reg.InsertUpdateNode(node, id, clean)
	if err != nil {
		if reusedSlot != -1 {
			reg.TombstoneNode(reusedSlot)
		}
		return nil, err.(*registry.Error)
	}
	node.ID = assignedID

	if !clean {
		if handle, _, ok := c.Workers.GetWorkerID(node.Balancer, node.Type, node.Host, node.Port); ok {
			c.Workers.ReenableWorker(handle, node)
		}
	} else {
		c.Workers.RegisterWorker(node.Balancer, node)
	}

	if node.Domain != "" {
		if _, err := reg.InsertDomain(registry.Domain{Name: node.Domain, Balancer: node.Balancer, JVMRoute: node.JVMRoute}); err != nil {
			return nil, err.(*registry.Error)
		}
	}

	reg.IncVersion()

	for _, g := range groups {
		vid := reg.NextVHostID(node.ID)
		for _, alias := range splitComma(g.aliasRaw) {
			alias = strings.ToLower(strings.TrimSpace(alias))
			if len(alias) > registry.AliasSize {
				return nil, registry.Syntax(registry.MsgFieldTooBig)
			}
			if _, err := reg.InsertUpdateHost(registry.Host{NodeID: node.ID, VHostID: vid, Alias: alias}); err != nil {
				return nil, err.(*registry.Error)
			}
		}
		for _, path := range splitComma(g.contextRaw) {
			path = strings.TrimSpace(path)
			if len(path) > registry.ContextSize {
				return nil, registry.Syntax(registry.MsgFieldTooBig)
			}
			if _, err := reg.InsertUpdateContext(registry.Context{
				NodeID:  node.ID,
				VHostID: vid,
				Path:    path,
				Status:  registry.StatusStopped,
			}); err != nil {
				return nil, err.(*registry.Error)
			}
		}
	}

	return nil, nil
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func applyBalancerField(key, val string, bal *registry.Balancer, node *registry.Node, logger zerolog.Logger) *registry.Error {
	switch {
	case strings.EqualFold(key, "Balancer"):
		if len(val) > registry.BalancerNameSize {
			return registry.Syntax(registry.MsgBalancerTooBig)
		}
		name := val
		if strings.ToLower(name) != name {
			logger.Warn().Str("balancer", val).Msg("config: balancer name contains uppercase, lowercasing")
			name = strings.ToLower(name)
		}
		node.Balancer = name
		bal.Name = name
	case strings.EqualFold(key, "StickySession"):
		bal.StickySession = !strings.EqualFold(val, "no")
	case strings.EqualFold(key, "StickySessionCookie"):
		if len(val) > registry.CookieNameSize {
			return registry.Syntax(registry.MsgFieldTooBig)
		}
		bal.StickySessionCookie = val
	case strings.EqualFold(key, "StickySessionPath"):
		if len(val) > registry.PathKeySize {
			return registry.Syntax(registry.MsgFieldTooBig)
		}
		bal.StickySessionPath = val
	case strings.EqualFold(key, "StickySessionRemove"):
		bal.StickySessionRemove = strings.EqualFold(val, "yes")
	case strings.EqualFold(key, "StickySessionForce"):
		bal.StickySessionForce = !strings.EqualFold(val, "no")
	case strings.EqualFold(key, "WaitWorker"):
		secs, _ := strconv.Atoi(val)
		bal.Timeout = time.Duration(secs) * time.Second
	case strings.EqualFold(key, "Maxattempts"):
		n, _ := strconv.Atoi(val)
		bal.MaxAttempts = n
	}
	return nil
}

func applyNodeField(key, val string, node *registry.Node) *registry.Error {
	switch {
	case strings.EqualFold(key, "JVMRoute"):
		if len(val) > registry.JVMRouteSize {
			return registry.Syntax(registry.MsgJVMRouteTooBig)
		}
		node.JVMRoute = val
	case strings.EqualFold(key, "Domain"):
		if len(val) > registry.DomainSize {
			return registry.Syntax(registry.MsgDomainTooBig)
		}
		node.Domain = val
	case strings.EqualFold(key, "Host"):
		h := stripIPv6Zone(val)
		if len(h) > registry.HostSize {
			return registry.Syntax(registry.MsgHostTooBig)
		}
		node.Host = h
	case strings.EqualFold(key, "Port"):
		if len(val) > registry.PortSize {
			return registry.Syntax(registry.MsgPortTooBig)
		}
		node.Port = val
	case strings.EqualFold(key, "Type"):
		if len(val) > registry.TypeSize {
			return registry.Syntax(registry.MsgTypeTooBig)
		}
		node.Type = val
	case strings.EqualFold(key, "Reversed"):
		node.Reversed = strings.EqualFold(val, "yes")
	case strings.EqualFold(key, "flushpackets"):
		switch strings.ToLower(val) {
		case "on":
			node.FlushPackets = registry.FlushOn
		case "auto":
			node.FlushPackets = registry.FlushAuto
		default:
			node.FlushPackets = registry.FlushOff
		}
	case strings.EqualFold(key, "flushwait"):
		ms, _ := strconv.Atoi(val)
		node.FlushWait = time.Duration(ms) * time.Millisecond
	case strings.EqualFold(key, "ping"):
		secs, _ := strconv.Atoi(val)
		node.Ping = time.Duration(secs) * time.Second
	case strings.EqualFold(key, "smax"):
		n, _ := strconv.Atoi(val)
		node.Smax = n
	case strings.EqualFold(key, "ttl"):
		secs, _ := strconv.Atoi(val)
		node.TTL = time.Duration(secs) * time.Second
	case strings.EqualFold(key, "Timeout"):
		secs, _ := strconv.Atoi(val)
		node.Timeout = time.Duration(secs) * time.Second
	}
	return nil
}

// stripIPv6Zone removes a %zone suffix from a bracketed IPv6 literal,
// e.g. "[fe80::1%eth0]" -> "[fe80::1]".
func stripIPv6Zone(host string) string {
	if !strings.HasPrefix(host, "[") {
		return host
	}
	pct := strings.IndexByte(host, '%')
	if pct < 0 {
		return host
	}
	end := strings.IndexByte(host[pct:], ']')
	if end < 0 {
		return host
	}
	return host[:pct] + host[pct+end:]
}
