package iface

import (
	"errors"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"

	"icc.tech/pktbridge/internal/core"
)

// pcapHandle attaches through libpcap. It covers both directions:
// OpenLive for receive, WritePacketData for send.
type pcapHandle struct {
	name   string
	handle *pcap.Handle
	link   *linkState
	closed bool
}

func openPcap(opts Options, monitor *Monitor) (Handle, error) {
	inactive, err := pcap.NewInactiveHandle(opts.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrNoSuchInterface, opts.Name, err)
	}
	defer inactive.CleanUp()

	if err := inactive.SetSnapLen(opts.SnapLen); err != nil {
		return nil, err
	}
	if err := inactive.SetPromisc(opts.Promiscuous); err != nil {
		return nil, err
	}
	if err := inactive.SetTimeout(opts.PollTimeout); err != nil {
		return nil, err
	}

	handle, err := inactive.Activate()
	if err != nil {
		return nil, fmt.Errorf("failed to activate %s: %w", opts.Name, err)
	}

	if opts.Filter != "" {
		if err := handle.SetBPFFilter(opts.Filter); err != nil {
			handle.Close()
			return nil, fmt.Errorf("failed to set BPF filter on %s: %w", opts.Name, err)
		}
	}

	link, err := watchLink(monitor, opts.Name)
	if err != nil {
		handle.Close()
		return nil, err
	}

	return &pcapHandle{name: opts.Name, handle: handle, link: link}, nil
}

func (h *pcapHandle) Name() string { return h.name }

func (h *pcapHandle) Receive() ([]byte, gopacket.CaptureInfo, error) {
	if h.closed {
		return nil, gopacket.CaptureInfo{}, core.ErrHandleClosed
	}
	data, ci, err := h.handle.ZeroCopyReadPacketData()
	if err != nil {
		if errors.Is(err, pcap.NextErrorTimeoutExpired) {
			return nil, ci, ErrTimeout
		}
		return nil, ci, err
	}
	return data, ci, nil
}

func (h *pcapHandle) Send(data []byte) error {
	if h.closed {
		return core.ErrHandleClosed
	}
	if !h.link.up() {
		return fmt.Errorf("send on %s: %w", h.name, core.ErrLinkDown)
	}
	if err := h.handle.WritePacketData(data); err != nil {
		return mapSendErrno(h.name, err)
	}
	return nil
}

func (h *pcapHandle) LinkUp() bool { return h.link.up() }

func (h *pcapHandle) Stats() (Stats, error) {
	if h.closed {
		return Stats{}, core.ErrHandleClosed
	}
	s, err := h.handle.Stats()
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		KernelReceived: uint64(s.PacketsReceived),
		KernelDrops:    uint64(s.PacketsDropped) + uint64(s.PacketsIfDropped),
	}, nil
}

func (h *pcapHandle) Close() error {
	if h.closed {
		return core.ErrHandleClosed
	}
	h.closed = true
	h.handle.Close()
	return nil
}
