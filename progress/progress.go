// Package progress implements the process-wide counter set, periodic
// heartbeat, cross-node aggregation, and final run-report assembly
// (§4.9).
//
// Grounded on prometheus/client_golang for the lock-free counters (a
// prometheus.Counter is already a lock-free atomic add under the hood,
// the same property the teacher's hot-path code buys by hand with
// sync/atomic elsewhere) and nats-io/nats.go for cross-node heartbeat
// publication, generalizing the teacher's TCP-socket ingestion shape
// (ingestor.TCPIngestor) from "accept a stream of HTTP log batches" to
// "publish/subscribe a stream of per-node heartbeat envelopes."
package progress

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultHeartbeatInterval is §4.9's default heartbeat cadence.
const DefaultHeartbeatInterval = 60 * time.Second

// Counters is the process-wide counter set a node's workers update as
// they process documents.
type Counters struct {
	Seen      prometheus.Counter
	Parsed    prometheus.Counter
	CachedHit prometheus.Counter
	Duplicate prometheus.Counter
	Failed    prometheus.Counter
	BytesIn   prometheus.Counter
	BytesOut  prometheus.Counter

	mu           sync.Mutex
	failureClass map[string]uint64
}

// NewCounters builds a fresh, unregistered counter set. Pass a non-nil
// registry to NewCountersWithRegistry to also expose them on a
// prometheus /metrics endpoint.
func NewCounters() *Counters {
	mk := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vellum",
			Subsystem: "progress",
			Name:      name,
			Help:      help,
		})
	}
	return &Counters{
		Seen:         mk("documents_seen_total", "documents observed by the dispatcher"),
		Parsed:       mk("documents_parsed_total", "documents successfully parsed"),
		CachedHit:    mk("documents_cached_hit_total", "documents resolved from cache"),
		Duplicate:    mk("documents_duplicate_total", "documents recognized as an exact duplicate of an earlier document"),
		Failed:       mk("documents_failed_total", "documents that failed terminally"),
		BytesIn:      mk("bytes_in_total", "input bytes read"),
		BytesOut:     mk("bytes_out_total", "output bytes written"),
		failureClass: make(map[string]uint64),
	}
}

// NewCountersWithRegistry builds a counter set and registers it on reg so
// it is scraped on the node's /metrics surface.
func NewCountersWithRegistry(reg prometheus.Registerer) (*Counters, error) {
	c := NewCounters()
	for _, coll := range []prometheus.Collector{c.Seen, c.Parsed, c.CachedHit, c.Duplicate, c.Failed, c.BytesIn, c.BytesOut} {
		if err := reg.Register(coll); err != nil {
			return nil, fmt.Errorf("progress: register counter: %w", err)
		}
	}
	return c, nil
}

// RecordFailure increments Failed and tallies the failure by class name
// for the run-report's per-failure-class breakdown.
func (c *Counters) RecordFailure(class string) {
	c.Failed.Inc()
	c.mu.Lock()
	c.failureClass[class]++
	c.mu.Unlock()
}

// Snapshot is a point-in-time read of the counter values, the unit that
// travels in a heartbeat envelope and feeds the final run-report.
type Snapshot struct {
	NodeID          string            `json:"node_id"`
	UnixNano        int64             `json:"unix_nano"`
	Seen            uint64            `json:"seen"`
	Parsed          uint64            `json:"parsed"`
	CachedHit       uint64            `json:"cached_hit"`
	Duplicate       uint64            `json:"duplicate"`
	Failed          uint64            `json:"failed"`
	BytesIn         uint64            `json:"bytes_in"`
	BytesOut        uint64            `json:"bytes_out"`
	FailuresByClass map[string]uint64 `json:"failures_by_class"`
}

func (c *Counters) snapshot(nodeID string, now time.Time) Snapshot {
	c.mu.Lock()
	classes := make(map[string]uint64, len(c.failureClass))
	for k, v := range c.failureClass {
		classes[k] = v
	}
	c.mu.Unlock()

	return Snapshot{
		NodeID:          nodeID,
		UnixNano:        now.UnixNano(),
		Seen:            counterValue(c.Seen),
		Parsed:          counterValue(c.Parsed),
		CachedHit:       counterValue(c.CachedHit),
		Duplicate:       counterValue(c.Duplicate),
		Failed:          counterValue(c.Failed),
		BytesIn:         counterValue(c.BytesIn),
		BytesOut:        counterValue(c.BytesOut),
		FailuresByClass: classes,
	}
}

func counterValue(c prometheus.Counter) uint64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil || m.Counter == nil {
		return 0
	}
	return uint64(m.Counter.GetValue())
}

// Reporter periodically publishes this node's counter snapshot to NATS
// and, on the driver node, subscribes to every node's snapshots to
// assemble the final run-report.
type Reporter struct {
	nodeID   string
	counters *Counters
	nc       *nats.Conn
	subject  string
	interval time.Duration

	mu      sync.Mutex
	latest  map[string]Snapshot
	started time.Time
}

// NewReporter connects to the NATS server at natsURL (may be empty, in
// which case the reporter runs purely locally with no cross-node
// aggregation — a single-node run has nothing to aggregate).
func NewReporter(nodeID string, counters *Counters, natsURL, subject string, interval time.Duration) (*Reporter, error) {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	r := &Reporter{
		nodeID:   nodeID,
		counters: counters,
		subject:  subject,
		interval: interval,
		latest:   make(map[string]Snapshot),
		started:  time.Now(),
	}
	if natsURL == "" {
		return r, nil
	}
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("progress: connect to nats at %s: %w", natsURL, err)
	}
	r.nc = nc
	return r, nil
}

// Subscribe starts collecting every node's heartbeat (driver-side
// aggregation). No-op if the reporter has no NATS connection.
func (r *Reporter) Subscribe() error {
	if r.nc == nil {
		return nil
	}
	_, err := r.nc.Subscribe(r.subject, func(msg *nats.Msg) {
		var snap Snapshot
		if err := json.Unmarshal(msg.Data, &snap); err != nil {
			return
		}
		r.mu.Lock()
		r.latest[snap.NodeID] = snap
		r.mu.Unlock()
	})
	if err != nil {
		return fmt.Errorf("progress: subscribe to %s: %w", r.subject, err)
	}
	return nil
}

// Run publishes a heartbeat every interval until stop fires. Intended to run in its own goroutine for the lifetime of a run.
func (r *Reporter) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			r.publish(now)
		}
	}
}

func (r *Reporter) publish(now time.Time) {
	snap := r.counters.snapshot(r.nodeID, now)
	r.mu.Lock()
	r.latest[r.nodeID] = snap
	r.mu.Unlock()

	if r.nc == nil {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	_ = r.nc.Publish(r.subject, data)
}

// RunReport is the single record emitted at run end (§6).
type RunReport struct {
	StartUnixNano     int64               `json:"start_unix_nano"`
	EndUnixNano       int64               `json:"end_unix_nano"`
	Seen              uint64              `json:"seen"`
	Parsed            uint64              `json:"parsed"`
	CachedHit         uint64              `json:"cached_hit"`
	Duplicate         uint64              `json:"duplicate"`
	Failed            uint64              `json:"failed"`
	ThroughputDocsSec float64             `json:"throughput_docs_sec"`
	PerNode           map[string]Snapshot `json:"per_node"`
	FailuresByClass   map[string]uint64   `json:"failures_by_class"`
}

// Report assembles the final RunReport from every node snapshot seen so
// far (local-only if this reporter never connected to NATS).
func (r *Reporter) Report(end time.Time) RunReport {
	r.mu.Lock()
	perNode := make(map[string]Snapshot, len(r.latest))
	var seen, parsed, cachedHit, duplicate, failed uint64
	classes := make(map[string]uint64)
	for id, snap := range r.latest {
		perNode[id] = snap
		seen += snap.Seen
		parsed += snap.Parsed
		cachedHit += snap.CachedHit
		duplicate += snap.Duplicate
		failed += snap.Failed
		for k, v := range snap.FailuresByClass {
			classes[k] += v
		}
	}
	r.mu.Unlock()

	elapsed := end.Sub(r.started).Seconds()
	var throughput float64
	if elapsed > 0 {
		throughput = float64(parsed) / elapsed
	}

	return RunReport{
		StartUnixNano:     r.started.UnixNano(),
		EndUnixNano:       end.UnixNano(),
		Seen:              seen,
		Parsed:            parsed,
		CachedHit:         cachedHit,
		Duplicate:         duplicate,
		Failed:            failed,
		ThroughputDocsSec: throughput,
		PerNode:           perNode,
		FailuresByClass:   classes,
	}
}

// Close closes the NATS connection, if any, without draining it.
func (r *Reporter) Close() {
	if r.nc != nil {
		r.nc.Close()
	}
}
