package httpapi

import (
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/shmel1k/mcmgr/internal/commands"
	"github.com/shmel1k/mcmgr/internal/mcmp"
	"github.com/shmel1k/mcmgr/internal/registry"
)

const (
	msgInvalidParams = "one or more parameters are invalid"
)

// StatusPageHandler serves the HTML status page and its nonce-guarded
// command links.
type StatusPageHandler interface {
	Status(http.ResponseWriter, *http.Request)
	Command(http.ResponseWriter, *http.Request)
}

type statusPageHandler struct {
	reg            *registry.Registry
	logger         zerolog.Logger
	nonce          string
	requireNonce   bool
	enableCommands bool
	managerPath    string
}

// NewStatusPageHandler wires the status page to reg. nonce is the
// startup-generated UUID every command link must echo back. managerPath
// is the mount point RegisterStatusPage registers Status/Command under
// (the links must target managerPath+"/cmd", not the status page itself).
func NewStatusPageHandler(logger zerolog.Logger, reg *registry.Registry, nonce string, requireNonce, enableCommands bool, managerPath string) StatusPageHandler {
	return &statusPageHandler{
		reg:            reg,
		logger:         logger,
		nonce:          nonce,
		requireNonce:   requireNonce,
		enableCommands: enableCommands,
		managerPath:    managerPath,
	}
}

func (h *statusPageHandler) Status(w http.ResponseWriter, _ *http.Request) {
	var sb strings.Builder
	sb.WriteString("<html><head><title>mod_cluster Status</title></head><body>\n")
	fmt.Fprintf(&sb, "<h1>mod_cluster manager</h1>\n<p>version counter: %d</p>\n", h.reg.Version())

	h.reg.EachNode(func(id int, n registry.Node) {
		if n.Removed {
			return
		}
		fmt.Fprintf(&sb, "<h2>Node %s (balancer %s, %s://%s:%s)</h2>\n<ul>\n",
			html.EscapeString(n.JVMRoute), html.EscapeString(n.Balancer), n.Type, n.Host, n.Port)

		h.reg.EachHost(func(_ int, host registry.Host) {
			if host.NodeID != id {
				return
			}
			fmt.Fprintf(&sb, "<li>Alias %s\n<ul>\n", html.EscapeString(host.Alias))
			h.reg.EachContext(func(_ int, ctx registry.Context) {
				if ctx.NodeID != id || ctx.VHostID != host.VHostID {
					return
				}
				fmt.Fprintf(&sb, "<li>%s [%s] %s</li>\n",
					html.EscapeString(ctx.Path), ctx.Status,
					h.commandLinks(n.JVMRoute, host.Alias, ctx.Path))
			})
			sb.WriteString("</ul></li>\n")
		})
		sb.WriteString("</ul>\n")
	})

	sb.WriteString("</body></html>\n")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(sb.String()))
}

func (h *statusPageHandler) commandLinks(route, alias, context string) string {
	if !h.enableCommands {
		return ""
	}
	base := fmt.Sprintf("%s/cmd?nonce=%s&JVMRoute=%s&Alias=%s&Context=%s",
		h.managerPath, h.nonce, route, alias, context)
	return fmt.Sprintf(
		`<a href="%s&cmd=ENABLE-APP">enable</a> `+
			`<a href="%s&cmd=DISABLE-APP">disable</a> `+
			`<a href="%s&cmd=STOP-APP">stop</a> `+
			`<a href="%s&cmd=REMOVE-APP">remove</a>`,
		base, base, base, base)
}

// Command executes a UI-initiated *-APP verb. With nonce checking on, a
// request whose nonce does not match gets 400 and changes nothing; with
// it off, the nonce parameter is not looked at.
func (h *statusPageHandler) Command(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if h.requireNonce && q.Get("nonce") != h.nonce {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if !h.enableCommands {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	route := q.Get("JVMRoute")
	if route == "" {
		h.writeResponse(w, newBadRequestResponse(msgInvalidParams))
		return
	}
	alias := q.Get("Alias")
	context := q.Get("Context")

	pairs := []mcmp.Pair{{Key: "JVMRoute", Value: route}}
	if alias != "" {
		pairs = append(pairs, mcmp.Pair{Key: "Alias", Value: alias})
	}
	if context != "" {
		pairs = append(pairs, mcmp.Pair{Key: "Context", Value: context})
	}

	var cmd *commands.AppCommand
	switch q.Get("cmd") {
	case "ENABLE-APP":
		cmd = commands.NewEnable(h.reg, h.logger)
	case "DISABLE-APP":
		cmd = commands.NewDisable(h.reg, h.logger)
	case "STOP-APP":
		cmd = commands.NewStop(h.reg, h.logger)
	case "REMOVE-APP":
		cmd = commands.NewRemove(h.reg, h.logger)
	default:
		h.writeResponse(w, newBadRequestResponse(msgInvalidParams))
		return
	}

	scope := commands.ScopeContext
	switch q.Get("Range") {
	case "DOMAIN":
		scope = commands.ScopeDomain
	case "NODE":
		scope = commands.ScopeNode
	}

	_, err := cmd.Process(pairs, scope)
	if err != nil {
		h.writeResponse(w, newInternalErrResponse(err.Message, err))
		return
	}
	http.Redirect(w, r, h.managerPath, http.StatusSeeOther)
}

func (h *statusPageHandler) writeResponse(w http.ResponseWriter, resp response) {
	if resp.err != nil {
		h.logger.Err(resp.err).Msg(string(resp.data))
	}
	w.WriteHeader(resp.statusCode)
}
