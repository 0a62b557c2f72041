// Package engine implements the forwarding data path.
package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"icc.tech/pktbridge/internal/config"
	"icc.tech/pktbridge/internal/core"
	"icc.tech/pktbridge/internal/core/decoder"
	"icc.tech/pktbridge/internal/flowtable"
	"icc.tech/pktbridge/internal/iface"
	"icc.tech/pktbridge/internal/log"
	"icc.tech/pktbridge/internal/metrics"
	"icc.tech/pktbridge/internal/rules"
	"icc.tech/pktbridge/internal/stats"
)

// egressQueue decouples one egress interface from every ingress worker.
// A single writer goroutine drains the channel so frames from any given
// ingress leave in arrival order.
type egressQueue struct {
	handle iface.Handle
	ch     chan *core.Frame
}

// Config assembles an engine from its already-opened parts.
type Config struct {
	Handles map[string]iface.Handle // All attached interfaces by name
	Ingress []string                // Names of interfaces to read from
	Egress  []string                // Names of interfaces that accept forwards
	RuleSet *rules.RuleSet
	Flows   *flowtable.Table
	Stats   *stats.Collector
	Engine  config.EngineConfig
}

// Engine runs one receive worker per ingress interface and one writer per
// egress interface. Classification is a read-only snapshot lookup, so the
// data path never takes a lock.
type Engine struct {
	handles map[string]iface.Handle
	ingress []iface.Handle
	egress  map[string]*egressQueue
	ruleset atomic.Pointer[rules.RuleSet]
	flows   *flowtable.Table
	stats   *stats.Collector
	cfg     config.EngineConfig

	ctx       context.Context
	cancel    context.CancelFunc
	wgIngress sync.WaitGroup
	wgEgress  sync.WaitGroup
	running   atomic.Bool
	abort     atomic.Bool // Set when the shutdown drain budget is exhausted
}

// New wires up an engine. It does not start any goroutines.
func New(cfg Config) *Engine {
	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		handles: cfg.Handles,
		egress:  make(map[string]*egressQueue, len(cfg.Egress)),
		flows:   cfg.Flows,
		stats:   cfg.Stats,
		cfg:     cfg.Engine,
		ctx:     ctx,
		cancel:  cancel,
	}
	e.ruleset.Store(cfg.RuleSet)
	metrics.RuleSetGeneration.Set(float64(cfg.RuleSet.Generation()))

	for _, name := range cfg.Ingress {
		e.ingress = append(e.ingress, cfg.Handles[name])
	}
	for _, name := range cfg.Egress {
		e.egress[name] = &egressQueue{
			handle: cfg.Handles[name],
			ch:     make(chan *core.Frame, cfg.Engine.QueueDepth),
		}
	}

	return e
}

// Start launches the egress writers, then the ingress workers.
func (e *Engine) Start() error {
	if !e.running.CompareAndSwap(false, true) {
		return core.ErrAlreadyOpen
	}

	for name, q := range e.egress {
		e.wgEgress.Add(1)
		go e.egressLoop(name, q)
	}
	for _, h := range e.ingress {
		e.wgIngress.Add(1)
		go e.ingressLoop(h)
	}

	log.Infof("engine started: %d ingress, %d egress", len(e.ingress), len(e.egress))
	return nil
}

// Stop halts intake, then drains the egress queues within the shutdown
// timeout. Frames still queued past the budget are discarded and counted
// as transmit errors.
func (e *Engine) Stop() error {
	if !e.running.CompareAndSwap(true, false) {
		return core.ErrEngineStopped
	}

	e.cancel()
	e.wgIngress.Wait()

	for _, q := range e.egress {
		close(q.ch)
	}

	done := make(chan struct{})
	go func() {
		e.wgEgress.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(e.cfg.ShutdownTimeout):
		log.Warnf("egress drain exceeded %v, discarding queued frames", e.cfg.ShutdownTimeout)
		e.abort.Store(true)
		<-done
	}

	log.Info("engine stopped")
	return nil
}

// Reload swaps the active rule set and clears the decision cache. In-flight
// frames finish under whichever snapshot they were classified against;
// every later frame sees only the new one.
func (e *Engine) Reload(rs *rules.RuleSet) {
	e.ruleset.Store(rs)
	if e.flows != nil {
		e.flows.Clear()
	}
	metrics.RuleSetGeneration.Set(float64(rs.Generation()))
	log.Infof("rule set reloaded: generation %d, %d rules", rs.Generation(), rs.Len())
}

// RuleSet returns the active rule set snapshot.
func (e *Engine) RuleSet() *rules.RuleSet {
	return e.ruleset.Load()
}

// ingressLoop receives, classifies and dispatches frames from one interface
// until the engine stops. Every received frame reaches exactly one terminal
// outcome: forwarded, dropped or errored.
func (e *Engine) ingressLoop(h iface.Handle) {
	defer e.wgIngress.Done()

	name := h.Name()
	logger := log.WithField("interface", name)

	for {
		if e.ctx.Err() != nil {
			return
		}

		data, ci, err := h.Receive()
		if err != nil {
			if errors.Is(err, iface.ErrTimeout) {
				continue
			}
			if e.ctx.Err() != nil || errors.Is(err, core.ErrHandleClosed) {
				return
			}
			logger.WithError(err).Warn("receive failed")
			time.Sleep(10 * time.Millisecond)
			continue
		}

		e.stats.Received(name)
		e.process(h, data, ci.Timestamp, ci.Length)
	}
}

// process classifies one frame and either dispatches or drops it.
// data is a zero-copy view into the capture ring; it is copied only when
// the frame is actually forwarded.
func (e *Engine) process(h iface.Handle, data []byte, ts time.Time, wireLen int) {
	name := h.Name()

	hdr, err := decoder.ParseHeader(data, name)
	if err != nil {
		e.stats.Errored(name)
		return
	}

	rs := e.ruleset.Load()
	gen := rs.Generation()

	d, cached := e.lookup(hdr, gen)
	if !cached {
		d = rs.Classify(hdr)
		if e.flows != nil {
			e.flows.Insert(hdr, d, gen)
			metrics.FlowTableSize.Set(float64(e.flows.Len()))
		}
	}
	e.stats.RuleMatch(rs.RuleName(d.Rule))

	if d.Action == core.ActionDrop {
		e.stats.Dropped(name, d.Reason)
		return
	}

	// One copy, shared read-only across all target queues.
	frame := &core.Frame{
		Data:      append([]byte(nil), data...),
		Header:    hdr,
		Ingress:   name,
		Timestamp: ts,
		WireLen:   wireLen,
	}

	delivered := 0
	for _, target := range d.Egress {
		q, ok := e.egress[target]
		if !ok {
			continue
		}
		select {
		case q.ch <- frame:
			delivered++
		default:
			// Queue full: the slow egress loses this frame, intake
			// never blocks.
			metrics.FramesDroppedTotal.WithLabelValues(target, "queue-overflow").Inc()
		}
	}

	if delivered > 0 {
		e.stats.Forwarded(name)
	} else {
		e.stats.Errored(name)
	}
}

func (e *Engine) lookup(hdr core.Header, gen uint64) (core.Decision, bool) {
	if e.flows == nil {
		return core.Decision{}, false
	}
	d, ok := e.flows.Lookup(hdr, gen)
	if ok {
		metrics.FlowTableHitsTotal.Inc()
	} else {
		metrics.FlowTableMissesTotal.Inc()
	}
	return d, ok
}

// egressLoop writes queued frames out one interface, in queue order.
func (e *Engine) egressLoop(name string, q *egressQueue) {
	defer e.wgEgress.Done()

	depth := metrics.EgressQueueDepth.WithLabelValues(name)
	for frame := range q.ch {
		depth.Set(float64(len(q.ch)))
		if e.abort.Load() {
			e.stats.TransmitError(name)
			continue
		}
		e.transmit(name, q.handle, frame)
	}
}

// transmit writes one frame, retrying a bounded number of times when the
// device queue is full. Any other failure is terminal for the frame.
func (e *Engine) transmit(name string, h iface.Handle, frame *core.Frame) {
	err := h.Send(frame.Data)
	for attempt := 0; attempt < e.cfg.SendRetries && errors.Is(err, core.ErrQueueFull); attempt++ {
		time.Sleep(e.cfg.RetryBackoff)
		err = h.Send(frame.Data)
	}

	if err != nil {
		e.stats.TransmitError(name)
		log.WithField("interface", name).WithError(err).Debug("transmit failed")
		return
	}
	e.stats.Transmitted(name)
}

// Snapshot combines traffic counters with flow table and kernel-side state.
type Snapshot struct {
	stats.Snapshot
	FlowTable  FlowTableStats         `json:"flow_table"`
	Kernel     map[string]iface.Stats `json:"kernel"`
	Generation uint64                 `json:"ruleset_generation"`
	Rules      int                    `json:"rules_loaded"`
}

// FlowTableStats is the decision cache's point-in-time state.
type FlowTableStats struct {
	Size   int    `json:"size"`
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

// Snapshot collects counters without pausing the data path.
func (e *Engine) Snapshot() Snapshot {
	rs := e.ruleset.Load()
	snap := Snapshot{
		Snapshot:   e.stats.Snapshot(),
		Kernel:     make(map[string]iface.Stats, len(e.handles)),
		Generation: rs.Generation(),
		Rules:      rs.Len(),
	}

	if e.flows != nil {
		hits, misses := e.flows.Stats()
		snap.FlowTable = FlowTableStats{Size: e.flows.Len(), Hits: hits, Misses: misses}
	}

	for name, h := range e.handles {
		if s, err := h.Stats(); err == nil {
			snap.Kernel[name] = s
		}
	}

	return snap
}
