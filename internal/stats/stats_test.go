package stats

import (
	"sync"
	"testing"

	"icc.tech/pktbridge/internal/core"
)

func TestCountersPerInterface(t *testing.T) {
	c := NewCollector([]string{"eth0", "eth1"})

	c.Received("eth0")
	c.Received("eth0")
	c.Forwarded("eth0")
	c.Dropped("eth0", core.ReasonDefault)
	c.Transmitted("eth1")
	c.TransmitError("eth1")

	snap := c.Snapshot()

	eth0 := snap.Interfaces["eth0"]
	if eth0.Received != 2 || eth0.Forwarded != 1 || eth0.Dropped != 1 {
		t.Errorf("Unexpected eth0 counters: %+v", eth0)
	}
	eth1 := snap.Interfaces["eth1"]
	if eth1.Transmitted != 1 || eth1.TransmitErrors != 1 {
		t.Errorf("Unexpected eth1 counters: %+v", eth1)
	}
	if eth1.Received != 0 {
		t.Errorf("eth1 should have no ingress traffic, got %+v", eth1)
	}
}

func TestRuleMatchCounts(t *testing.T) {
	c := NewCollector(nil)

	c.RuleMatch("ssdp")
	c.RuleMatch("ssdp")
	c.RuleMatch("default")

	snap := c.Snapshot()
	if snap.Rules["ssdp"] != 2 {
		t.Errorf("Expected 2 ssdp matches, got %d", snap.Rules["ssdp"])
	}
	if snap.Rules["default"] != 1 {
		t.Errorf("Expected 1 default match, got %d", snap.Rules["default"])
	}
}

func TestUnregisteredInterface(t *testing.T) {
	c := NewCollector([]string{"eth0"})

	c.Received("eth9")
	if got := c.Snapshot().Interfaces["eth9"].Received; got != 1 {
		t.Errorf("Expected lazily registered counter, got %d", got)
	}
}

func TestConcurrentIncrements(t *testing.T) {
	c := NewCollector([]string{"eth0"})

	const workers = 8
	const perWorker = 1000

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				c.Received("eth0")
				c.Forwarded("eth0")
				c.RuleMatch("r")
			}
		}()
	}

	// Snapshots taken mid-flight must not block or corrupt counters.
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			default:
				c.Snapshot()
			}
		}
	}()

	wg.Wait()
	close(done)

	snap := c.Snapshot()
	if got := snap.Interfaces["eth0"].Received; got != workers*perWorker {
		t.Errorf("Expected %d received, got %d", workers*perWorker, got)
	}
	if got := snap.Rules["r"]; got != workers*perWorker {
		t.Errorf("Expected %d rule matches, got %d", workers*perWorker, got)
	}
}
