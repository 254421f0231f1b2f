package commands

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/shmel1k/mcmgr/internal/mcmp"
	"github.com/shmel1k/mcmgr/internal/registry"
)

// Scope selects how an *-APP verb applies.
type Scope int

const (
	ScopeContext Scope = iota
	ScopeNode
	ScopeDomain
)

// AppCommand implements ENABLE-APP, DISABLE-APP, STOP-APP and
// REMOVE-APP. All four share validation and scope resolution; only the
// target ContextStatus (and REMOVE-APP's extra node tombstoning) differ.
type AppCommand struct {
	Reg    *registry.Registry
	Logger zerolog.Logger
	Status registry.ContextStatus // StatusRemoved means REMOVE-APP
}

func NewEnable(reg *registry.Registry, logger zerolog.Logger) *AppCommand {
	return &AppCommand{Reg: reg, Logger: logger, Status: registry.StatusEnabled}
}
func NewDisable(reg *registry.Registry, logger zerolog.Logger) *AppCommand {
	return &AppCommand{Reg: reg, Logger: logger, Status: registry.StatusDisabled}
}
func NewStop(reg *registry.Registry, logger zerolog.Logger) *AppCommand {
	return &AppCommand{Reg: reg, Logger: logger, Status: registry.StatusStopped}
}
func NewRemove(reg *registry.Registry, logger zerolog.Logger) *AppCommand {
	return &AppCommand{Reg: reg, Logger: logger, Status: registry.StatusRemoved}
}

// Process applies the verb. scope is resolved by the caller: the
// receiver maps the request path (trailing "/*" or "*" -> ScopeNode,
// otherwise ScopeContext), and the status page maps its Range query
// param (DOMAIN -> ScopeDomain, NODE -> ScopeNode).
func (a *AppCommand) Process(pairs []mcmp.Pair, scope Scope) ([]byte, *registry.Error) {
	route, _ := mcmp.Lookup(pairs, "JVMRoute")
	if route == "" {
		return nil, registry.Syntax(registry.MsgJVMRouteEmpty)
	}
	if len(route) > registry.JVMRouteSize {
		return nil, registry.Syntax(registry.MsgJVMRouteTooBig)
	}

	aliases := mcmp.Values(pairs, "Alias")
	contexts := mcmp.Values(pairs, "Context")
	if len(aliases) > 1 {
		return nil, registry.Syntax(registry.MsgOneAliasOnly)
	}
	if len(contexts) > 1 {
		return nil, registry.Syntax(registry.MsgOneContextOnly)
	}
	var alias, context string
	if len(aliases) == 1 {
		alias = strings.ToLower(aliases[0])
	}
	if len(contexts) == 1 {
		context = contexts[0]
	}
	if scope == ScopeContext {
		if alias != "" && context == "" {
			return nil, registry.Syntax(registry.MsgAliasWithoutCtx)
		}
		if alias == "" && context != "" {
			return nil, registry.Syntax(registry.MsgCtxWithoutAlias)
		}
	}

	reg := a.Reg
	reg.LockNodes()
	defer reg.UnlockNodes()

	if scope == ScopeDomain {
		var body []byte
		for _, id := range reg.NodesInDomain(route) {
			node, ok := reg.ReadNode(id)
			if !ok {
				continue
			}
			b, err := a.applyToNode(node, ScopeNode, alias, context)
			if err != nil {
				return nil, err
			}
			body = append(body, b...)
		}
		return body, nil
	}

	node, ok := reg.FindNodeByRoute(route)
	if !ok {
		if a.Status == registry.StatusRemoved {
			return nil, nil // idempotent: already gone
		}
		return nil, registry.Mem(registry.MsgNodeReadFailedFmt, route)
	}

	return a.applyToNode(node, scope, alias, context)
}

func (a *AppCommand) applyToNode(node registry.Node, scope Scope, alias, context string) ([]byte, *registry.Error) {
	reg := a.Reg

	if scope == ScopeNode {
		for _, hid := range reg.HostIDs() {
			h, ok := reg.ReadHost(hid)
			if !ok || h.NodeID != node.ID {
				continue
			}
			for _, cid := range reg.ContextIDs() {
				ctx, ok := reg.ReadContext(cid)
				if !ok || ctx.NodeID != node.ID || ctx.VHostID != h.VHostID {
					continue
				}
				if a.Status == registry.StatusRemoved {
					reg.RemoveContext(cid)
				} else {
					ctx.Status = a.Status
					_, _ = reg.InsertUpdateContext(ctx)
				}
			}
			if a.Status == registry.StatusRemoved {
				reg.RemoveHost(hid)
			}
		}
		if a.Status == registry.StatusRemoved {
			reg.TombstoneNode(node.ID)
		}
		reg.IncVersion()
		return nil, nil
	}

	// Context scope: resolve the vhost for the single Alias.
	host, ok := reg.FindHost(node.ID, alias)
	if !ok {
		if a.Status == registry.StatusRemoved {
			return nil, nil
		}
		vid := reg.NextVHostID(node.ID)
		if _, err := reg.InsertUpdateHost(registry.Host{NodeID: node.ID, VHostID: vid, Alias: alias}); err != nil {
			return nil, err.(*registry.Error)
		}
		host, _ = reg.FindHost(node.ID, alias)
	}

	if a.Status == registry.StatusEnabled {
		a.warnIfContextOnOtherBalancer(node, context)
	}

	var respBody []byte
	for _, path := range splitComma(context) {
		path = strings.TrimSpace(path)
		existing, found := reg.FindContext(node.ID, host.VHostID, path)
		if a.Status == registry.StatusRemoved {
			if found {
				reg.RemoveContext(existing.ID)
			}
			continue
		}
		existing.NodeID = node.ID
		existing.VHostID = host.VHostID
		existing.Path = path
		existing.Status = a.Status
		ctxID, err := reg.InsertUpdateContext(existing)
		if err != nil {
			return nil, err.(*registry.Error)
		}
		if a.Status == registry.StatusStopped {
			saved, _ := reg.ReadContext(ctxID)
			// STOP-APP-RSP preserves the source's "JvmRoute=" mixed
			// casing, unlike every other response body which uses
			// "JVMRoute=".
			respBody = append(respBody, []byte(fmt.Sprintf(
				"Type=STOP-APP-RSP&JvmRoute=%s&Alias=%s&Context=%s&Requests=%d\n",
				node.JVMRoute, alias, path, saved.NumRequests))...)
		}
	}

	if a.Status == registry.StatusRemoved {
		removeHostIfEmpty(reg, node.ID, host)
	}

	reg.IncVersion()
	return respBody, nil
}

func removeHostIfEmpty(reg *registry.Registry, nodeID int, host registry.Host) {
	for _, cid := range reg.ContextIDs() {
		c, ok := reg.ReadContext(cid)
		if ok && c.NodeID == nodeID && c.VHostID == host.VHostID {
			return
		}
	}
	reg.RemoveHost(host.ID)
}

// warnIfContextOnOtherBalancer logs a non-fatal warning when the same
// context path is live on a node belonging to a different balancer — a
// common misconfiguration.
func (a *AppCommand) warnIfContextOnOtherBalancer(node registry.Node, context string) {
	reg := a.Reg
	for _, path := range splitComma(context) {
		path = strings.TrimSpace(path)
		for _, cid := range reg.ContextIDs() {
			c, ok := reg.ReadContext(cid)
			if !ok || c.Path != path {
				continue
			}
			other, ok := reg.ReadNode(c.NodeID)
			if !ok || other.ID == node.ID {
				continue
			}
			if other.Balancer != node.Balancer {
				a.Logger.Warn().
					Str("context", path).
					Str("balancer_a", node.Balancer).
					Str("balancer_b", other.Balancer).
					Msg("enable-app: same context is live on a different balancer")
			}
		}
	}
}
