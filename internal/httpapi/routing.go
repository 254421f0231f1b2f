package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shmel1k/mcmgr/internal/receiver"
)

func RegisterDebugHandlers(r *mux.Router, version, commit, buildDate string) {
	r.Handle("/debug/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.Handle("/debug/health", HealthHandler()).Methods(http.MethodGet)
	r.Handle("/debug/about", AboutHandler(version, commit, buildDate)).Methods(http.MethodGet)
}

// RegisterStatusPage wires the HTML UI and its nonce-guarded command
// links at managerPath (default "/mod_cluster-manager").
func RegisterStatusPage(r *mux.Router, managerPath string, h StatusPageHandler) {
	r.HandleFunc(managerPath, h.Status).Methods(http.MethodGet)
	r.HandleFunc(managerPath+"/cmd", h.Command).Methods(http.MethodGet)
}

// RegisterMCMPHandlers mounts the registration protocol receiver on
// every path; verb dispatch happens on request method, not on path.
func RegisterMCMPHandlers(r *mux.Router, rc *receiver.Receiver) {
	r.PathPrefix("/").Handler(rc.Handler())
}
