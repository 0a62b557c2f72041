// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesReceivedTotal counts frames received per ingress interface
	FramesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pktbridge_frames_received_total",
			Help: "Total number of frames received",
		},
		[]string{"interface"},
	)

	// FramesForwardedTotal counts frames forwarded per ingress interface
	FramesForwardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pktbridge_frames_forwarded_total",
			Help: "Total number of frames forwarded to at least one egress queue",
		},
		[]string{"interface"},
	)

	// FramesDroppedTotal counts dropped frames per ingress interface and reason
	FramesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pktbridge_frames_dropped_total",
			Help: "Total number of frames dropped",
		},
		[]string{"interface", "reason"},
	)

	// FrameErrorsTotal counts frames that failed to decode or enqueue
	FrameErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pktbridge_frame_errors_total",
			Help: "Total number of frames counted as errors",
		},
		[]string{"interface"},
	)

	// FramesTransmittedTotal counts frames written out per egress interface
	FramesTransmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pktbridge_frames_transmitted_total",
			Help: "Total number of frames transmitted",
		},
		[]string{"interface"},
	)

	// TransmitErrorsTotal counts failed transmissions per egress interface
	TransmitErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pktbridge_transmit_errors_total",
			Help: "Total number of failed frame transmissions",
		},
		[]string{"interface"},
	)

	// RuleMatchesTotal counts classification outcomes per rule name
	RuleMatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pktbridge_rule_matches_total",
			Help: "Total number of frames matched per rule",
		},
		[]string{"rule"},
	)

	// EgressQueueDepth tracks the current depth of each egress queue
	EgressQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pktbridge_egress_queue_depth",
			Help: "Current number of frames waiting in the egress queue",
		},
		[]string{"interface"},
	)

	// FlowTableSize tracks the current number of cached flows
	FlowTableSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pktbridge_flow_table_size",
			Help: "Current number of flows in the decision cache",
		},
	)

	// FlowTableHitsTotal counts decision cache hits
	FlowTableHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pktbridge_flow_table_hits_total",
			Help: "Total number of decision cache hits",
		},
	)

	// FlowTableMissesTotal counts decision cache misses
	FlowTableMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pktbridge_flow_table_misses_total",
			Help: "Total number of decision cache misses",
		},
	)

	// RuleSetGeneration exposes the generation of the active rule set
	RuleSetGeneration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pktbridge_ruleset_generation",
			Help: "Generation counter of the active rule set",
		},
	)
)
