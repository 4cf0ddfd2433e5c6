// Package metrics exports Prometheus collectors for ledger verification
// and tip forwarding.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/Klingon-tech/klingnet-ledger/internal/chain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Verification results.
const (
	ResultValid           = "valid"
	ResultInvalid         = "invalid"
	ResultTruncated       = "truncated"
	ResultGenesisNotFound = "genesis_not_found"
	ResultGenesisMismatch = "genesis_mismatch"
	ResultError           = "error"
)

// Forward results.
const (
	ForwardOK      = "ok"
	ForwardMissing = "missing"
	ForwardError   = "error"
)

// Metrics holds the ledger collectors. A nil *Metrics records nothing.
type Metrics struct {
	verifications  *prometheus.CounterVec
	blocksVerified prometheus.Counter
	faults         *prometheus.CounterVec
	forwards       *prometheus.CounterVec
	verifyDuration prometheus.Histogram
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_verifications_total",
			Help: "Total chain verifications by result.",
		}, []string{"result"}),
		blocksVerified: f.NewCounter(prometheus.CounterOpts{
			Name: "ledger_blocks_verified_total",
			Help: "Total blocks examined by chain verification.",
		}),
		faults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_block_faults_total",
			Help: "Total faulty blocks found by chain verification, by kind.",
		}, []string{"kind"}),
		forwards: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_forwards_total",
			Help: "Total tip forward attempts by result.",
		}, []string{"result"}),
		verifyDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_verify_duration_seconds",
			Help:    "Chain verification duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// ObserveVerify records one finished verification walk.
func (m *Metrics) ObserveVerify(out *chain.Outcome, err error, took time.Duration) {
	if m == nil {
		return
	}
	m.verifyDuration.Observe(took.Seconds())
	m.verifications.WithLabelValues(VerifyResult(out, err)).Inc()
	if out == nil {
		return
	}
	m.blocksVerified.Add(float64(out.Visited))
	for _, f := range out.Faults {
		m.faults.WithLabelValues(FaultKind(f.Kind)).Inc()
	}
}

// ObserveForward records one forward attempt.
func (m *Metrics) ObserveForward(err error) {
	if m == nil {
		return
	}
	switch {
	case err == nil:
		m.forwards.WithLabelValues(ForwardOK).Inc()
	case errors.Is(err, chain.ErrForwardTargetMissing):
		m.forwards.WithLabelValues(ForwardMissing).Inc()
	default:
		m.forwards.WithLabelValues(ForwardError).Inc()
	}
}

// VerifyResult maps a verification result to its label value.
func VerifyResult(out *chain.Outcome, err error) string {
	switch {
	case errors.Is(err, chain.ErrChainNotValid):
		return ResultInvalid
	case errors.Is(err, chain.ErrGenesisNotFound):
		return ResultGenesisNotFound
	case errors.Is(err, chain.ErrGenesisMismatch):
		return ResultGenesisMismatch
	case err != nil:
		return ResultError
	case out != nil && out.Truncated:
		return ResultTruncated
	}
	return ResultValid
}

// FaultKind maps a block fault kind to its label value.
func FaultKind(kind error) string {
	switch kind {
	case chain.ErrBlockNotFound:
		return "missing"
	case chain.ErrMalformedBlock:
		return "malformed"
	case chain.ErrInvalidBlock:
		return "invalid"
	case chain.ErrHashMismatch:
		return "hash_mismatch"
	case chain.ErrChainCycle:
		return "cycle"
	}
	return "other"
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
