package commands

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shmel1k/mcmgr/internal/mcmp"
	"github.com/shmel1k/mcmgr/internal/reconciler"
	"github.com/shmel1k/mcmgr/internal/registry"
)

// BootTime is substituted for the native scoreboard's
// ap_scoreboard_image->global->restart_time and reported as the `id`
// field on STATUS-RSP/PING-RSP so senders can detect a manager restart.
type BootTime struct {
	t time.Time
}

func NewBootTime(t time.Time) BootTime { return BootTime{t: t} }

func (b BootTime) Unix() int64 { return b.t.Unix() }

// Status implements the STATUS verb.
type Status struct {
	Reg      *registry.Registry
	Workers  reconciler.WorkerTable
	BootTime BootTime
}

func (s *Status) Process(pairs []mcmp.Pair) ([]byte, *registry.Error) {
	route, hasRoute := mcmp.Lookup(pairs, "JVMRoute")
	load := -1
	for _, p := range pairs {
		switch {
		case strings.EqualFold(p.Key, "JVMRoute"):
			// handled above
		case strings.EqualFold(p.Key, "Load"):
			load, _ = strconv.Atoi(p.Value)
		default:
			return nil, registry.Syntax(registry.MsgInvalidField, p.Key)
		}
	}
	if !hasRoute || route == "" {
		return nil, registry.Syntax(registry.MsgJVMRouteEmpty)
	}
	if load < -1 || load > 100 {
		return nil, registry.Syntax("SYNTAX: Load must be in [-1, 100]")
	}

	s.Reg.LockNodes()
	node, ok := s.Reg.FindNodeByRoute(route)
	s.Reg.UnlockNodes()
	if !ok {
		return nil, registry.Mem(registry.MsgNodeReadFailedFmt, route)
	}

	state := "OK"
	if !s.Workers.NodeIsUp(node.ID, load) {
		state = "NOTOK"
	}

	body := fmt.Sprintf("Type=STATUS-RSP&JVMRoute=%s&State=%s&id=%d\n", route, state, s.BootTime.Unix())
	return []byte(body), nil
}

// Ping implements the PING verb's three modes.
type Ping struct {
	Reg      *registry.Registry
	Workers  reconciler.WorkerTable
	BootTime BootTime
}

func (p *Ping) Process(pairs []mcmp.Pair) ([]byte, *registry.Error) {
	route, hasRoute := mcmp.Lookup(pairs, "JVMRoute")
	scheme, hasScheme := mcmp.Lookup(pairs, "Scheme")
	host, hasHost := mcmp.Lookup(pairs, "Host")
	port, hasPort := mcmp.Lookup(pairs, "Port")

	state := "OK"
	switch {
	case hasRoute && route != "":
		p.Reg.LockNodes()
		node, ok := p.Reg.FindNodeByRoute(route)
		p.Reg.UnlockNodes()
		if !ok {
			return nil, registry.Mem(registry.MsgNodeReadFailedFmt, route)
		}
		if !p.Workers.NodeIsUp(node.ID, 1) {
			state = "NOTOK"
		}
	case hasScheme || hasHost || hasPort:
		if !p.Workers.HostIsUp(scheme, host, port) {
			state = "NOTOK"
		}
	default:
		// Liveness of the manager itself: we are answering, so OK.
	}

	body := fmt.Sprintf("Type=PING-RSP&State=%s&id=%d\n", state, p.BootTime.Unix())
	return []byte(body), nil
}
