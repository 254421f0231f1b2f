// Package receiver dispatches MCMP verbs: the sender
// overloads HTTP request methods with verb names, so routing happens on
// r.Method, not on the path. The path only ever carries the *-APP scope
// suffix ("/*" or "*" elevates a context-scope command to node scope).
package receiver

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/shmel1k/mcmgr/internal/commands"
	"github.com/shmel1k/mcmgr/internal/mcmp"
	"github.com/shmel1k/mcmgr/internal/metrics"
	"github.com/shmel1k/mcmgr/internal/reconciler"
	"github.com/shmel1k/mcmgr/internal/registry"
)

const protocolVersion = "0.2.1"

// Receiver owns the processors for every MCMP verb and answers requests
// the way mod_manager's manager_trans_handler does: parse, dispatch,
// translate the *registry.Error into headers.
type Receiver struct {
	Reg      *registry.Registry
	Workers  reconciler.WorkerTable
	Tunables commands.Tunables
	BootTime commands.BootTime
	Logger   zerolog.Logger

	MaxMessageSize int64
}

func resolveScope(path string) commands.Scope {
	if path == "*" || strings.HasSuffix(path, "/*") {
		return commands.ScopeNode
	}
	return commands.ScopeContext
}

func (rc *Receiver) readBody(r *http.Request) ([]byte, *registry.Error) {
	limit := rc.MaxMessageSize
	if limit <= 0 {
		limit = 8192
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, registry.Syntax(registry.MsgParseError)
	}
	if int64(len(body)) > limit {
		return nil, registry.Syntax(registry.MsgParseError)
	}
	return body, nil
}

func (rc *Receiver) process(w http.ResponseWriter, r *http.Request) {
	body, rerr := rc.readBody(r)
	if rerr == nil {
		// An empty body carries no fields (PING liveness, DUMP, the
		// unimplemented verbs); each processor judges missing fields.
		var pairs []mcmp.Pair
		if len(body) > 0 {
			var perr error
			pairs, perr = mcmp.Parse(body)
			if perr != nil {
				rerr = registry.Syntax("%s", perr.Error())
			}
		}
		if rerr == nil {
			rerr = rc.dispatch(r, pairs, w)
		}
	}
	if rerr != nil {
		rc.writeError(w, rerr)
	}
}

// dispatch runs the verb-specific processor and, on success, writes the
// response body itself (since some verbs answer empty, others don't).
func (rc *Receiver) dispatch(r *http.Request, pairs []mcmp.Pair, w http.ResponseWriter) *registry.Error {
	scope := resolveScope(r.URL.Path)
	accept := commands.FormatFromAccept(r.Header.Get("Accept"))

	switch r.Method {
	case "CONFIG":
		cfg := &commands.Config{Reg: rc.Reg, Workers: rc.Workers, Tunables: rc.Tunables, Logger: rc.Logger}
		body, err := cfg.Process(pairs)
		return rc.finish(w, body, err)
	case "ENABLE-APP":
		body, err := commands.NewEnable(rc.Reg, rc.Logger).Process(pairs, scope)
		return rc.finish(w, body, err)
	case "DISABLE-APP":
		body, err := commands.NewDisable(rc.Reg, rc.Logger).Process(pairs, scope)
		return rc.finish(w, body, err)
	case "STOP-APP":
		body, err := commands.NewStop(rc.Reg, rc.Logger).Process(pairs, scope)
		return rc.finish(w, body, err)
	case "REMOVE-APP":
		body, err := commands.NewRemove(rc.Reg, rc.Logger).Process(pairs, scope)
		return rc.finish(w, body, err)
	case "STATUS":
		s := &commands.Status{Reg: rc.Reg, Workers: rc.Workers, BootTime: rc.BootTime}
		body, err := s.Process(pairs)
		return rc.finish(w, body, err)
	case "PING":
		p := &commands.Ping{Reg: rc.Reg, Workers: rc.Workers, BootTime: rc.BootTime}
		body, err := p.Process(pairs)
		return rc.finish(w, body, err)
	case "DUMP":
		body := (&commands.Dump{Reg: rc.Reg}).Process(accept)
		return rc.finish(w, body, nil)
	case "INFO":
		body := (&commands.Info{Reg: rc.Reg}).Process(accept)
		return rc.finish(w, body, nil)
	case "VERSION":
		body := commands.Version{}.Process(accept)
		return rc.finish(w, body, nil)
	case "ERROR", "ADDID", "REMOVEID", "QUERY":
		// Recognised but unimplemented; answer success with no effect
		// rather than rejecting the sender outright.
		return rc.finish(w, nil, nil)
	default:
		return registry.Syntax(registry.MsgCommandUnsupFmt, r.Method)
	}
}

func (rc *Receiver) finish(w http.ResponseWriter, body []byte, err *registry.Error) *registry.Error {
	if err != nil {
		return err
	}
	w.Header().Set("Version", protocolVersion)
	w.WriteHeader(http.StatusOK)
	if len(body) > 0 {
		_, _ = w.Write(body)
	}
	return nil
}

func (rc *Receiver) writeError(w http.ResponseWriter, err *registry.Error) {
	w.Header().Set("Version", protocolVersion)
	w.Header().Set("Type", err.Kind.String())
	w.Header().Set("Mess", err.Message)
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = fmt.Fprintf(w, "Type=ERROR&Mess=%s\n", err.Message)
}

// Handler adapts the Receiver to an http.Handler for direct mounting.
func (rc *Receiver) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		txn := metrics.StartRequest(r.Method)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		rc.process(rec, r)
		txn.End()
		if rec.status >= http.StatusInternalServerError {
			metrics.NewErrorResponse(rec.Header().Get("Type"))
		}
		rc.Logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("mcmp request handled")
	})
}

// statusRecorder captures the response status for metrics/logging
// without buffering the body.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
