package progress

import (
	"testing"
	"time"
)

func TestCountersRecordFailureTalliesByClass(t *testing.T) {
	c := NewCounters()
	c.RecordFailure("io")
	c.RecordFailure("io")
	c.RecordFailure("parse")

	snap := c.snapshot("node-a", time.Now())
	if snap.Failed != 3 {
		t.Fatalf("Failed = %d, want 3", snap.Failed)
	}
	if snap.FailuresByClass["io"] != 2 {
		t.Fatalf("FailuresByClass[io] = %d, want 2", snap.FailuresByClass["io"])
	}
	if snap.FailuresByClass["parse"] != 1 {
		t.Fatalf("FailuresByClass[parse] = %d, want 1", snap.FailuresByClass["parse"])
	}
}

func TestCounterValueReflectsIncrements(t *testing.T) {
	c := NewCounters()
	c.Seen.Add(5)
	c.Parsed.Inc()

	snap := c.snapshot("node-a", time.Now())
	if snap.Seen != 5 {
		t.Fatalf("Seen = %d, want 5", snap.Seen)
	}
	if snap.Parsed != 1 {
		t.Fatalf("Parsed = %d, want 1", snap.Parsed)
	}
}

func TestReporterWithoutNATSStillReportsLocally(t *testing.T) {
	c := NewCounters()
	c.Seen.Add(10)
	c.Parsed.Add(8)
	c.CachedHit.Add(2)

	r, err := NewReporter("node-a", c, "", "vellum.progress", 0)
	if err != nil {
		t.Fatalf("NewReporter() error = %v", err)
	}
	defer r.Close()

	r.publish(time.Now())
	report := r.Report(time.Now().Add(time.Second))

	if report.Seen != 10 || report.Parsed != 8 || report.CachedHit != 2 {
		t.Fatalf("RunReport = %+v, unexpected totals", report)
	}
	if len(report.PerNode) != 1 {
		t.Fatalf("PerNode has %d entries, want 1 (local-only run)", len(report.PerNode))
	}
}

func TestSubscribeIsNoopWithoutNATS(t *testing.T) {
	c := NewCounters()
	r, err := NewReporter("node-a", c, "", "vellum.progress", 0)
	if err != nil {
		t.Fatalf("NewReporter() error = %v", err)
	}
	defer r.Close()

	if err := r.Subscribe(); err != nil {
		t.Fatalf("Subscribe() error = %v, want nil when no NATS connection is configured", err)
	}
}
