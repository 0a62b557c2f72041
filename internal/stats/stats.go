// Package stats implements per-interface and per-rule traffic counters.
package stats

import (
	"sync"
	"sync/atomic"

	"icc.tech/pktbridge/internal/core"
	"icc.tech/pktbridge/internal/metrics"
)

// ifaceCounters holds the monotonic counters for one interface. The first
// four are attributed to the ingress role, the last two to the egress role.
type ifaceCounters struct {
	received       atomic.Uint64
	forwarded      atomic.Uint64
	dropped        atomic.Uint64
	errored        atomic.Uint64
	transmitted    atomic.Uint64
	transmitErrors atomic.Uint64
}

// Collector accumulates frame outcomes. Increment paths are lock-free for
// interfaces registered at construction; Snapshot never blocks the data
// path. Counters also feed the Prometheus vectors in internal/metrics.
type Collector struct {
	mu     sync.RWMutex
	ifaces map[string]*ifaceCounters
	rules  sync.Map // rule name -> *atomic.Uint64
}

// NewCollector pre-registers counters for the given interface names so the
// hot path never takes the write lock.
func NewCollector(ifaceNames []string) *Collector {
	c := &Collector{ifaces: make(map[string]*ifaceCounters, len(ifaceNames))}
	for _, name := range ifaceNames {
		c.ifaces[name] = &ifaceCounters{}
	}
	return c
}

func (c *Collector) counters(iface string) *ifaceCounters {
	c.mu.RLock()
	ctr, ok := c.ifaces[iface]
	c.mu.RUnlock()
	if ok {
		return ctr
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if ctr, ok = c.ifaces[iface]; !ok {
		ctr = &ifaceCounters{}
		c.ifaces[iface] = ctr
	}
	return ctr
}

// Received counts a frame accepted from the capture ring on iface.
func (c *Collector) Received(iface string) {
	c.counters(iface).received.Add(1)
	metrics.FramesReceivedTotal.WithLabelValues(iface).Inc()
}

// Forwarded counts a frame handed to at least one egress queue,
// attributed to its ingress interface.
func (c *Collector) Forwarded(iface string) {
	c.counters(iface).forwarded.Add(1)
	metrics.FramesForwardedTotal.WithLabelValues(iface).Inc()
}

// Dropped counts a deliberately discarded frame on its ingress interface.
func (c *Collector) Dropped(iface string, reason core.DropReason) {
	c.counters(iface).dropped.Add(1)
	metrics.FramesDroppedTotal.WithLabelValues(iface, string(reason)).Inc()
}

// Errored counts a frame lost to a decode or enqueue failure on its
// ingress interface.
func (c *Collector) Errored(iface string) {
	c.counters(iface).errored.Add(1)
	metrics.FrameErrorsTotal.WithLabelValues(iface).Inc()
}

// Transmitted counts a frame successfully written out iface.
func (c *Collector) Transmitted(iface string) {
	c.counters(iface).transmitted.Add(1)
	metrics.FramesTransmittedTotal.WithLabelValues(iface).Inc()
}

// TransmitError counts a failed write on iface.
func (c *Collector) TransmitError(iface string) {
	c.counters(iface).transmitErrors.Add(1)
	metrics.TransmitErrorsTotal.WithLabelValues(iface).Inc()
}

// RuleMatch counts a classification outcome under the rule's name
// ("default" for the default action).
func (c *Collector) RuleMatch(rule string) {
	v, ok := c.rules.Load(rule)
	if !ok {
		v, _ = c.rules.LoadOrStore(rule, &atomic.Uint64{})
	}
	v.(*atomic.Uint64).Add(1)
	metrics.RuleMatchesTotal.WithLabelValues(rule).Inc()
}

// InterfaceStats is a point-in-time copy of one interface's counters.
type InterfaceStats struct {
	Received       uint64 `json:"received"`
	Forwarded      uint64 `json:"forwarded"`
	Dropped        uint64 `json:"dropped"`
	Errored        uint64 `json:"errored"`
	Transmitted    uint64 `json:"transmitted"`
	TransmitErrors uint64 `json:"transmit_errors"`
}

// Snapshot is a consistent-enough copy of all counters. Individual counters
// are read atomically; the set as a whole is not a single atomic cut, which
// is fine for monitoring.
type Snapshot struct {
	Interfaces map[string]InterfaceStats `json:"interfaces"`
	Rules      map[string]uint64         `json:"rules"`
}

// Snapshot copies all counters without stalling increments.
func (c *Collector) Snapshot() Snapshot {
	snap := Snapshot{
		Interfaces: make(map[string]InterfaceStats),
		Rules:      make(map[string]uint64),
	}

	c.mu.RLock()
	for name, ctr := range c.ifaces {
		snap.Interfaces[name] = InterfaceStats{
			Received:       ctr.received.Load(),
			Forwarded:      ctr.forwarded.Load(),
			Dropped:        ctr.dropped.Load(),
			Errored:        ctr.errored.Load(),
			Transmitted:    ctr.transmitted.Load(),
			TransmitErrors: ctr.transmitErrors.Load(),
		}
	}
	c.mu.RUnlock()

	c.rules.Range(func(k, v any) bool {
		snap.Rules[k.(string)] = v.(*atomic.Uint64).Load()
		return true
	})

	return snap
}
