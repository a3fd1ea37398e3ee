// Package observability implements Retrieval Observability (§4.I): every
// retrieval outcome is appended to a JSONL file under the workspace and to
// the Knowledge Store, and exposed as Prometheus histograms/counters. Recording
// never throws to the caller — observability failures are logged, not
// propagated, since a query result must never fail because its own
// telemetry couldn't be written.
package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nateschmiedehaus/librarian/internal/logging"
	"github.com/nateschmiedehaus/librarian/internal/model"
)

// RetrievalLogFile is the JSONL sink's path, relative to the workspace
// root (§4.I).
const RetrievalLogFile = ".librarian/retrieval_confidence_log.jsonl"

// StoreAppender is the narrow store surface Observability writes through,
// mirroring the JSONL file so both sinks agree (§4.I).
type StoreAppender interface {
	AppendRetrievalConfidenceLog(ctx context.Context, rec model.RetrievalLogRecord) error
}

// Recorder appends retrieval outcomes to the JSONL log, the Knowledge
// Store, and Prometheus metrics.
type Recorder struct {
	store StoreAppender

	mu      sync.Mutex
	file    *os.File
	logPath string

	confidence   prometheus.Histogram
	entropy      prometheus.Histogram
	escalations  *prometheus.CounterVec
	queriesTotal *prometheus.CounterVec
}

// NewRecorder opens (creating if needed) the JSONL log under
// workspaceRoot/.librarian/ and registers Prometheus collectors against
// reg. A nil registry skips metrics registration, useful in tests that
// don't want global-registry side effects.
func NewRecorder(workspaceRoot string, store StoreAppender, reg prometheus.Registerer) (*Recorder, error) {
	logPath := filepath.Join(workspaceRoot, RetrievalLogFile)
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, fmt.Errorf("observability: creating log directory: %w", err)
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("observability: opening retrieval log: %w", err)
	}

	r := &Recorder{
		store:   store,
		file:    f,
		logPath: logPath,
		confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "librarian_retrieval_confidence",
			Help:    "Total confidence of assembled retrieval results.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		entropy: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "librarian_retrieval_entropy",
			Help:    "Shannon entropy of retrieval result confidences.",
			Buckets: prometheus.DefBuckets,
		}),
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "librarian_escalations_total",
			Help: "Count of escalations by from_depth/to_depth/reason.",
		}, []string{"from_depth", "to_depth", "reason"}),
		queriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "librarian_queries_total",
			Help: "Count of queries by routed strategy.",
		}, []string{"strategy"}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{r.confidence, r.entropy, r.escalations, r.queriesTotal} {
			if err := reg.Register(c); err != nil {
				if _, dup := err.(prometheus.AlreadyRegisteredError); !dup {
					f.Close()
					return nil, fmt.Errorf("observability: registering metric: %w", err)
				}
			}
		}
	}

	return r, nil
}

// Record appends one retrieval outcome to the JSONL file, the Knowledge
// Store, and Prometheus. Every failure is logged and swallowed: telemetry
// must never fail a query.
func (r *Recorder) Record(ctx context.Context, rec model.RetrievalLogRecord) {
	log := logging.Get(logging.CategoryObservability)

	rec.ConfidenceScore = roundTo4(rec.ConfidenceScore)

	r.mu.Lock()
	data, err := json.Marshal(rec)
	if err != nil {
		r.mu.Unlock()
		log.Error("observability: marshaling retrieval log record: %v", err)
		return
	}
	if _, err := r.file.Write(append(data, '\n')); err != nil {
		log.Error("observability: writing retrieval log line: %v", err)
	}
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.AppendRetrievalConfidenceLog(ctx, rec); err != nil {
			log.Error("observability: appending retrieval log to store: %v", err)
		}
	}

	r.confidence.Observe(rec.ConfidenceScore)
	r.entropy.Observe(rec.RetrievalEntropy)
	strategy := rec.RoutedStrategy
	if strategy == "" {
		strategy = "unspecified"
	}
	r.queriesTotal.WithLabelValues(strategy).Inc()

	if rec.FromDepth != "" || rec.ToDepth != "" {
		r.escalations.WithLabelValues(rec.FromDepth, rec.ToDepth, rec.EscalationReason).Inc()
	}
}

// Close flushes and closes the JSONL file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}

func roundTo4(f float64) float64 {
	return float64(int64(f*10000+0.5)) / 10000
}
