// Package metrics implements the per-(engine, operation) counters,
// gauges, and histograms spec §4.9 calls for, plus the engine-specific
// tagged-union fields (LSM, B+Tree, hash, red-black tree, array) each
// backend contributes. It is grounded on the teacher's pkg/metrics — same
// promauto-built CounterVec/HistogramVec/GaugeVec shape, same
// Record-a-named-event method style — but an injected Registry replaces
// the teacher's process-wide defaultRegistry/sync.Once singleton (DESIGN
// NOTES §9: "no implicit globals").
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// defaultLatencyBucketsMs mirrors the teacher's storage-operation buckets,
// expressed in milliseconds per spec §4.9 ("configurable bucket edges in
// milliseconds") rather than the teacher's seconds.
var defaultLatencyBucketsMs = []float64{0.1, 0.5, 1, 5, 10, 50, 100, 500, 1000}

// Options configures a Registry.
type Options struct {
	Namespace          string
	LatencyBucketsMs   []float64
}

// DefaultOptions returns the namespace and bucket edges used when Options
// is left zero.
func DefaultOptions() Options {
	return Options{Namespace: "concordkv", LatencyBucketsMs: defaultLatencyBucketsMs}
}

// Registry holds every metric ConcordKV exports, across every engine
// type. Unlike the teacher's Registry, this one is always explicitly
// constructed and passed where needed — there is no package-level
// default instance to reach for.
type Registry struct {
	prom *prometheus.Registry

	operationsTotal   *prometheus.CounterVec // labels: engine, operation, status
	operationDuration *prometheus.HistogramVec
	memoryBytes       *prometheus.GaugeVec // label: engine
	cacheHitRate      *prometheus.GaugeVec // label: engine

	lsmCompactions   *prometheus.GaugeVec
	lsmFlushes       *prometheus.GaugeVec
	lsmLevels        *prometheus.GaugeVec
	lsmMemtableBytes *prometheus.GaugeVec
	lsmSSTableCount  *prometheus.GaugeVec

	btreeSplits *prometheus.GaugeVec
	btreeMerges *prometheus.GaugeVec
	btreeHeight *prometheus.GaugeVec

	hashCollisions *prometheus.GaugeVec
	hashLoadFactor *prometheus.GaugeVec
	hashRehashes   *prometheus.GaugeVec

	rbRotations  *prometheus.GaugeVec
	rbRebalances *prometheus.GaugeVec
	rbDepth      *prometheus.GaugeVec

	arrResizes     *prometheus.GaugeVec
	arrCapacity    *prometheus.GaugeVec
	arrUtilization *prometheus.GaugeVec
}

// NewRegistry builds a Registry with every metric registered against a
// fresh prometheus.Registry.
func NewRegistry(opts Options) *Registry {
	if opts.Namespace == "" {
		opts = DefaultOptions()
	}
	if len(opts.LatencyBucketsMs) == 0 {
		opts.LatencyBucketsMs = defaultLatencyBucketsMs
	}

	prom := prometheus.NewRegistry()
	f := promauto.With(prom)
	ns := opts.Namespace

	r := &Registry{
		prom: prom,
		operationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "operations_total", Help: "Total engine operations by outcome.",
		}, []string{"engine", "operation", "status"}),
		operationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Name: "operation_duration_ms", Help: "Engine operation latency in milliseconds.",
			Buckets: opts.LatencyBucketsMs,
		}, []string{"engine", "operation"}),
		memoryBytes: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "engine_memory_bytes", Help: "Approximate in-memory bytes used by an engine.",
		}, []string{"engine"}),
		cacheHitRate: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "cache_hit_rate", Help: "Cache hit rate in [0,1] for an engine's backing cache.",
		}, []string{"engine"}),

		lsmCompactions: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "lsm_compactions_total", Help: "Completed LSM compactions.",
		}, []string{"engine"}),
		lsmFlushes: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "lsm_flushes_total", Help: "Completed MemTable flushes.",
		}, []string{"engine"}),
		lsmLevels: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "lsm_levels", Help: "Number of populated LSM levels.",
		}, []string{"engine"}),
		lsmMemtableBytes: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "lsm_memtable_bytes", Help: "Active MemTable approximate size.",
		}, []string{"engine"}),
		lsmSSTableCount: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "lsm_sstable_count", Help: "Total SSTable files across all levels.",
		}, []string{"engine"}),

		btreeSplits: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "btree_splits_total", Help: "Node splits performed.",
		}, []string{"engine"}),
		btreeMerges: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "btree_merges_total", Help: "Node merges performed.",
		}, []string{"engine"}),
		btreeHeight: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "btree_height", Help: "Current tree height.",
		}, []string{"engine"}),

		hashCollisions: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "hash_collisions_total", Help: "Observed bucket collisions.",
		}, []string{"engine"}),
		hashLoadFactor: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "hash_load_factor", Help: "Entries per bucket.",
		}, []string{"engine"}),
		hashRehashes: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "hash_rehashes_total", Help: "Completed rehash passes.",
		}, []string{"engine"}),

		rbRotations: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "rbtree_rotations_total", Help: "Rotations performed.",
		}, []string{"engine"}),
		rbRebalances: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "rbtree_rebalances_total", Help: "Fixup passes performed.",
		}, []string{"engine"}),
		rbDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "rbtree_depth", Help: "Current tree depth.",
		}, []string{"engine"}),

		arrResizes: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "array_resizes_total", Help: "Backing store compactions performed.",
		}, []string{"engine"}),
		arrCapacity: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "array_capacity", Help: "Backing slice capacity.",
		}, []string{"engine"}),
		arrUtilization: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "array_utilization", Help: "Live entries over backing slice length.",
		}, []string{"engine"}),
	}
	return r
}

// RecordOperation records one engine operation's outcome and latency
// (spec §4.9: "counters (reads, writes, deletes, updates, errors,
// timeouts, not-found)... histograms (read/write/delete latency)").
func (r *Registry) RecordOperation(engineName, operation, status string, d time.Duration) {
	r.operationsTotal.WithLabelValues(engineName, operation, status).Inc()
	r.operationDuration.WithLabelValues(engineName, operation).Observe(float64(d.Microseconds()) / 1000)
}

// SetMemoryBytes and SetCacheHitRate update the two gauges common to
// every engine.
func (r *Registry) SetMemoryBytes(engineName string, bytes int64) {
	r.memoryBytes.WithLabelValues(engineName).Set(float64(bytes))
}

func (r *Registry) SetCacheHitRate(engineName string, rate float64) {
	r.cacheHitRate.WithLabelValues(engineName).Set(rate)
}

// Prometheus returns the underlying registry, for wiring into promhttp.
func (r *Registry) Prometheus() *prometheus.Registry { return r.prom }
