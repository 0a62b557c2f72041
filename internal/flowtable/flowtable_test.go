package flowtable

import (
	"net/netip"
	"testing"

	"icc.tech/pktbridge/internal/core"
)

func flowHeader(dstPort uint16) core.Header {
	return core.Header{
		Ingress:   "eth0",
		EtherType: 0x0800,
		Protocol:  17,
		SrcIP:     netip.MustParseAddr("10.0.0.1"),
		DstIP:     netip.MustParseAddr("10.0.0.2"),
		SrcPort:   40000,
		DstPort:   dstPort,
	}
}

func TestLookupAfterInsert(t *testing.T) {
	tbl, err := New(16)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	h := flowHeader(1900)
	want := core.Decision{Action: core.ActionForward, Egress: []string{"eth1"}, Rule: 0}

	if _, ok := tbl.Lookup(h, 1); ok {
		t.Fatal("Expected miss on empty table")
	}
	tbl.Insert(h, want, 1)

	got, ok := tbl.Lookup(h, 1)
	if !ok {
		t.Fatal("Expected hit after insert")
	}
	if got.Action != want.Action || got.Rule != want.Rule {
		t.Errorf("Expected %+v, got %+v", want, got)
	}
}

func TestGenerationMismatchMisses(t *testing.T) {
	tbl, err := New(16)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	h := flowHeader(1900)
	tbl.Insert(h, core.Decision{Action: core.ActionDrop, Reason: core.ReasonRule}, 1)

	if _, ok := tbl.Lookup(h, 2); ok {
		t.Fatal("Expected miss for newer generation")
	}
	// The stale entry is evicted, not just skipped.
	if tbl.Len() != 0 {
		t.Errorf("Expected stale entry evicted, table has %d entries", tbl.Len())
	}
}

func TestClear(t *testing.T) {
	tbl, err := New(16)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for port := uint16(1); port <= 8; port++ {
		tbl.Insert(flowHeader(port), core.Decision{Action: core.ActionDrop}, 1)
	}
	if tbl.Len() != 8 {
		t.Fatalf("Expected 8 entries, got %d", tbl.Len())
	}

	tbl.Clear()
	if tbl.Len() != 0 {
		t.Errorf("Expected empty table after Clear, got %d entries", tbl.Len())
	}
	if _, ok := tbl.Lookup(flowHeader(1), 1); ok {
		t.Error("Expected miss after Clear")
	}
}

func TestLRUEviction(t *testing.T) {
	tbl, err := New(4)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for port := uint16(1); port <= 5; port++ {
		tbl.Insert(flowHeader(port), core.Decision{Action: core.ActionDrop}, 1)
	}
	if tbl.Len() != 4 {
		t.Fatalf("Expected capacity-bounded table of 4, got %d", tbl.Len())
	}
	if _, ok := tbl.Lookup(flowHeader(1), 1); ok {
		t.Error("Expected oldest flow evicted")
	}
	if _, ok := tbl.Lookup(flowHeader(5), 1); !ok {
		t.Error("Expected newest flow present")
	}
}

func TestDisabledTable(t *testing.T) {
	tbl, err := New(0)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	h := flowHeader(1900)
	tbl.Insert(h, core.Decision{Action: core.ActionForward}, 1)
	if _, ok := tbl.Lookup(h, 1); ok {
		t.Error("Disabled table must never hit")
	}
	if tbl.Len() != 0 {
		t.Errorf("Disabled table reports %d entries", tbl.Len())
	}
	tbl.Clear() // must not panic
}

func TestHitMissCounters(t *testing.T) {
	tbl, err := New(16)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	h := flowHeader(1900)
	tbl.Lookup(h, 1)
	tbl.Insert(h, core.Decision{Action: core.ActionDrop}, 1)
	tbl.Lookup(h, 1)
	tbl.Lookup(h, 1)

	hits, misses := tbl.Stats()
	if hits != 2 || misses != 1 {
		t.Errorf("Expected 2 hits / 1 miss, got %d / %d", hits, misses)
	}
}
