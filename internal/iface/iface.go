// Package iface attaches to network interfaces for raw frame receive and send.
package iface

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/gopacket"

	"icc.tech/pktbridge/internal/core"
)

// ErrTimeout reports that no frame arrived within the poll timeout.
// It is the normal idle outcome, not a failure.
var ErrTimeout = errors.New("pktbridge: receive timed out")

// Stats are kernel-side capture counters for one interface.
type Stats struct {
	KernelReceived uint64 `json:"kernel_received"`
	KernelDrops    uint64 `json:"kernel_drops"`
}

// Handle is an open attachment to one network interface. Receive and Send
// may be called from different goroutines; neither is safe for concurrent
// use with itself.
type Handle interface {
	// Name returns the interface name the handle is bound to.
	Name() string

	// Receive blocks up to the poll timeout for the next frame. The
	// returned slice is only valid until the next Receive call; callers
	// that keep the frame must copy it. Idle polls return ErrTimeout.
	Receive() ([]byte, gopacket.CaptureInfo, error)

	// Send writes one complete frame to the wire. A full device queue
	// returns core.ErrQueueFull; an oversize frame core.ErrOversize; a
	// downed link core.ErrLinkDown.
	Send(data []byte) error

	// LinkUp reports the last observed administrative link state.
	LinkUp() bool

	// Stats returns kernel-side receive and drop counters.
	Stats() (Stats, error)

	// Close detaches from the interface. Subsequent calls fail with
	// core.ErrHandleClosed.
	Close() error
}

// Options configures an attachment.
type Options struct {
	Name         string
	Promiscuous  bool
	SnapLen      int
	BufferSizeMB int
	PollTimeout  time.Duration
	Filter       string // Optional kernel BPF prefilter expression
}

// Open attaches to an interface using the named backend. The monitor, when
// non-nil, supplies live link state; without one LinkUp always reports true.
func Open(backend string, opts Options, monitor *Monitor) (Handle, error) {
	switch backend {
	case "afpacket":
		return openAFPacket(opts, monitor)
	case "pcap":
		return openPcap(opts, monitor)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", core.ErrConfigInvalid, backend)
	}
}
