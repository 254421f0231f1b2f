// Package metrics exposes the manager's Prometheus instrumentation for
// MCMP request handling and table occupancy.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	requestsTotal    = "requests_total"
	requestDurations = "request_durations"
	errorsTotal      = "errors_total"
	tableUsed        = "table_used_slots"
	tableCapacity    = "table_capacity"
	versionCounter   = "version_counter"
	reapedNodesTotal = "reaped_nodes_total"
)

var (
	requestsCnt = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "mcmp",
		Name:      requestsTotal,
		Help:      "Total number of MCMP requests handled, by verb",
	}, []string{"verb"})

	requestDurationsSum = prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Subsystem:  "mcmp",
		Name:       requestDurations,
		Help:       "MCMP request handling latencies in seconds, by verb",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	}, []string{"verb"})

	errorsCnt = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "mcmp",
		Name:      errorsTotal,
		Help:      "Total number of MCMP error responses, by kind",
	}, []string{"kind"})

	tableUsedGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "registry",
		Name:      tableUsed,
		Help:      "Number of occupied slots in a registry table",
	}, []string{"table"})

	tableCapacityGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "registry",
		Name:      tableCapacity,
		Help:      "Configured capacity of a registry table",
	}, []string{"table"})

	versionGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Subsystem: "registry",
		Name:      versionCounter,
		Help:      "Current registry mutation-version counter",
	})

	reapedNodesCnt = prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: "registry",
		Name:      reapedNodesTotal,
		Help:      "Total number of tombstoned node slots reaped back to FREED",
	})
)

func init() {
	prometheus.MustRegister(requestsCnt)
	prometheus.MustRegister(requestDurationsSum)
	prometheus.MustRegister(errorsCnt)
	prometheus.MustRegister(tableUsedGauge)
	prometheus.MustRegister(tableCapacityGauge)
	prometheus.MustRegister(versionGauge)
	prometheus.MustRegister(reapedNodesCnt)
}

type Transaction interface {
	Start() Transaction
	End()
}

type timeTransaction struct {
	labels  []string
	summary *prometheus.SummaryVec
	timer   *prometheus.Timer
}

func (txn *timeTransaction) Start() Transaction {
	txn.timer = prometheus.NewTimer(txn.summary.WithLabelValues(txn.labels...))
	return txn
}

func (txn *timeTransaction) End() {
	txn.timer.ObserveDuration()
}

// StartRequest begins a latency observation for one MCMP verb; call
// End() when the handler finishes.
func StartRequest(verb string) Transaction {
	requestsCnt.WithLabelValues(verb).Inc()
	txn := &timeTransaction{
		summary: requestDurationsSum,
		labels:  []string{verb},
	}
	return txn.Start()
}

func NewErrorResponse(kind string) {
	errorsCnt.WithLabelValues(kind).Inc()
}

func SetTableOccupancy(table string, used, capacity int) {
	tableUsedGauge.WithLabelValues(table).Set(float64(used))
	tableCapacityGauge.WithLabelValues(table).Set(float64(capacity))
}

func SetVersion(v uint64) {
	versionGauge.Set(float64(v))
}

func NewReapedNode() {
	reapedNodesCnt.Inc()
}
