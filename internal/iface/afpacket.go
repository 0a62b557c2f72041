package iface

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"

	"github.com/google/gopacket"
	"github.com/google/gopacket/afpacket"
	"golang.org/x/sys/unix"

	"icc.tech/pktbridge/internal/core"
)

// afpacketHandle pairs a TPacket v3 ring for receive with a raw AF_PACKET
// socket for send. The ring only captures; transmission goes through a
// separate non-blocking socket so a full device queue surfaces as EAGAIN
// instead of stalling.
type afpacketHandle struct {
	name    string
	ifindex int
	tpacket *afpacket.TPacket
	sendFD  int
	link    *linkState
	closed  bool

	// SocketStatsV3 resets on read; accumulate across calls.
	kernelReceived atomic.Uint64
	kernelDrops    atomic.Uint64
}

func openAFPacket(opts Options, monitor *Monitor) (Handle, error) {
	netIface, err := net.InterfaceByName(opts.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrNoSuchInterface, opts.Name)
	}

	frameSize, blockSize, numBlocks, err := computeRing(opts.SnapLen, opts.BufferSizeMB)
	if err != nil {
		return nil, fmt.Errorf("interface %s: %w", opts.Name, err)
	}

	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(opts.Name),
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.OptPollTimeout(opts.PollTimeout),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		if errors.Is(err, unix.EPERM) || errors.Is(err, unix.EACCES) {
			return nil, fmt.Errorf("%w: %s", core.ErrPermissionDenied, opts.Name)
		}
		return nil, fmt.Errorf("failed to create capture ring on %s: %w", opts.Name, err)
	}

	if opts.Filter != "" {
		rawBpf, err := compileBPF(opts.Filter, opts.SnapLen)
		if err != nil {
			tp.Close()
			return nil, fmt.Errorf("interface %s: %w", opts.Name, err)
		}
		if err := tp.SetBPF(rawBpf); err != nil {
			tp.Close()
			return nil, fmt.Errorf("failed to attach BPF filter on %s: %w", opts.Name, err)
		}
	}

	fd, err := openSendSocket(netIface.Index, opts.Promiscuous)
	if err != nil {
		tp.Close()
		return nil, fmt.Errorf("interface %s: %w", opts.Name, err)
	}

	link, err := watchLink(monitor, opts.Name)
	if err != nil {
		tp.Close()
		unix.Close(fd)
		return nil, err
	}

	return &afpacketHandle{
		name:    opts.Name,
		ifindex: netIface.Index,
		tpacket: tp,
		sendFD:  fd,
		link:    link,
	}, nil
}

// computeRing derives TPacket ring geometry from the snap length and the
// requested buffer budget.
func computeRing(snapLen, bufferSizeMB int) (frameSize, blockSize, numBlocks int, err error) {
	pageSize := os.Getpagesize()
	if snapLen < pageSize {
		frameSize = pageSize / (pageSize / snapLen)
	} else {
		frameSize = (snapLen/pageSize + 1) * pageSize
	}
	blockSize = frameSize * 128
	numBlocks = bufferSizeMB * 1024 * 1024 / blockSize

	if numBlocks < 1 {
		return 0, 0, 0, fmt.Errorf("buffer size %dMB too small for frame size %d", bufferSizeMB, frameSize)
	}
	return frameSize, blockSize, numBlocks, nil
}

// openSendSocket creates the transmit socket: protocol 0 so it never
// receives, non-blocking so congestion maps to EAGAIN.
func openSendSocket(ifindex int, promiscuous bool) (int, error) {
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, 0)
	if err != nil {
		if errors.Is(err, unix.EPERM) || errors.Is(err, unix.EACCES) {
			return -1, core.ErrPermissionDenied
		}
		return -1, fmt.Errorf("failed to create send socket: %w", err)
	}

	if err := unix.Bind(fd, &unix.SockaddrLinklayer{Ifindex: ifindex}); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("failed to bind send socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("failed to set send socket non-blocking: %w", err)
	}

	// Promiscuous mode is held by socket membership; the kernel restores
	// the interface when the socket closes.
	if promiscuous {
		mreq := unix.PacketMreq{Ifindex: int32(ifindex), Type: unix.PACKET_MR_PROMISC}
		if err := unix.SetsockoptPacketMreq(fd, unix.SOL_PACKET, unix.PACKET_ADD_MEMBERSHIP, &mreq); err != nil {
			unix.Close(fd)
			return -1, fmt.Errorf("failed to enable promiscuous mode: %w", err)
		}
	}

	return fd, nil
}

func (h *afpacketHandle) Name() string { return h.name }

func (h *afpacketHandle) Receive() ([]byte, gopacket.CaptureInfo, error) {
	if h.closed {
		return nil, gopacket.CaptureInfo{}, core.ErrHandleClosed
	}
	data, ci, err := h.tpacket.ZeroCopyReadPacketData()
	if err != nil {
		if errors.Is(err, afpacket.ErrTimeout) {
			return nil, ci, ErrTimeout
		}
		return nil, ci, err
	}
	return data, ci, nil
}

func (h *afpacketHandle) Send(data []byte) error {
	if h.closed {
		return core.ErrHandleClosed
	}
	if !h.link.up() {
		return fmt.Errorf("send on %s: %w", h.name, core.ErrLinkDown)
	}
	if err := unix.Sendto(h.sendFD, data, 0, &unix.SockaddrLinklayer{Ifindex: h.ifindex}); err != nil {
		return mapSendErrno(h.name, err)
	}
	return nil
}

func (h *afpacketHandle) LinkUp() bool { return h.link.up() }

func (h *afpacketHandle) Stats() (Stats, error) {
	if h.closed {
		return Stats{}, core.ErrHandleClosed
	}
	_, v3, err := h.tpacket.SocketStats()
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		KernelReceived: h.kernelReceived.Add(uint64(v3.Packets())),
		KernelDrops:    h.kernelDrops.Add(uint64(v3.Drops())),
	}, nil
}

func (h *afpacketHandle) Close() error {
	if h.closed {
		return core.ErrHandleClosed
	}
	h.closed = true
	h.tpacket.Close()
	return unix.Close(h.sendFD)
}
