package limit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestManagerUnconfiguredWorkflowAlwaysAdmits(t *testing.T) {
	m := NewManager(Config{Workflow: "configured", MaxConcurrentRuns: 1})

	for range 10 {
		if !m.Acquire("other") {
			t.Fatal("unconfigured workflow should always admit")
		}
	}
	for range 10 {
		m.Release("other")
	}
}

func TestManagerMaxConcurrentRuns(t *testing.T) {
	m := NewManager(Config{Workflow: "agent", MaxConcurrentRuns: 2})

	if !m.Acquire("agent") {
		t.Fatal("first Acquire should succeed")
	}
	if !m.Acquire("agent") {
		t.Fatal("second Acquire should succeed")
	}
	if m.Acquire("agent") {
		t.Fatal("third Acquire should fail at cap 2")
	}

	m.Release("agent")
	if !m.Acquire("agent") {
		t.Fatal("Acquire should succeed after Release")
	}
}

func TestManagerActiveRuns(t *testing.T) {
	m := NewManager(Config{Workflow: "agent", MaxConcurrentRuns: 5})

	for i := range 3 {
		if !m.Acquire("agent") {
			t.Fatalf("Acquire %d should succeed", i)
		}
	}
	if got := m.ActiveRuns("agent"); got != 3 {
		t.Fatalf("ActiveRuns = %d, want 3", got)
	}

	m.Release("agent")
	m.Release("agent")
	if got := m.ActiveRuns("agent"); got != 1 {
		t.Fatalf("ActiveRuns = %d, want 1", got)
	}
}

func TestManagerStartRateThrottles(t *testing.T) {
	m := NewManager(Config{Workflow: "limited", StartRate: 1.0, StartBurst: 1})

	if !m.Acquire("limited") {
		t.Fatal("first Acquire should succeed within burst")
	}
	m.Release("limited")

	if m.Acquire("limited") {
		t.Fatal("second Acquire should fail with an empty token bucket")
	}

	time.Sleep(1100 * time.Millisecond)
	if !m.Acquire("limited") {
		t.Fatal("Acquire should succeed after token refill")
	}
	m.Release("limited")
}

func TestManagerStartBurstAllows(t *testing.T) {
	m := NewManager(Config{Workflow: "bursty", StartRate: 10.0, StartBurst: 3})

	for i := range 3 {
		if !m.Acquire("bursty") {
			t.Fatalf("Acquire %d should succeed within burst", i)
		}
		m.Release("bursty")
	}
}

func TestManagerSetConfig(t *testing.T) {
	m := NewManager(Config{Workflow: "dyn", MaxConcurrentRuns: 1})

	m.Acquire("dyn")
	if m.Acquire("dyn") {
		t.Fatal("should be blocked at cap 1")
	}

	m.SetConfig(Config{Workflow: "dyn", MaxConcurrentRuns: 3})

	if !m.Acquire("dyn") {
		t.Fatal("should succeed after raising the cap")
	}
	if got := m.ActiveRuns("dyn"); got != 2 {
		t.Fatalf("ActiveRuns = %d, want 2 (active carries over reconfig)", got)
	}
}

func TestManagerReleaseUnderflow(t *testing.T) {
	m := NewManager(Config{Workflow: "agent", MaxConcurrentRuns: 5})

	m.Release("agent")
	if got := m.ActiveRuns("agent"); got != 0 {
		t.Fatalf("ActiveRuns = %d, want 0 after stray Release", got)
	}
}

func TestManagerConcurrentAccess(t *testing.T) {
	m := NewManager(Config{Workflow: "busy", MaxConcurrentRuns: 50})

	var admitted atomic.Int64
	var wg sync.WaitGroup

	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Acquire("busy") {
				admitted.Add(1)
				time.Sleep(time.Millisecond)
				m.Release("busy")
			}
		}()
	}

	wg.Wait()

	if admitted.Load() == 0 {
		t.Fatal("expected some admissions to succeed")
	}
	if got := m.ActiveRuns("busy"); got != 0 {
		t.Fatalf("ActiveRuns = %d, want 0 after all goroutines", got)
	}
}
