package iface

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"icc.tech/pktbridge/internal/core"
)

// mapSendErrno translates a transmit errno into the module's error
// taxonomy so callers can distinguish retryable congestion from
// configuration and link faults.
func mapSendErrno(name string, err error) error {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return fmt.Errorf("send on %s: %w", name, err)
	}

	switch errno {
	case unix.ENOBUFS, unix.EAGAIN:
		return fmt.Errorf("send on %s: %w", name, core.ErrQueueFull)
	case unix.EMSGSIZE:
		return fmt.Errorf("send on %s: %w", name, core.ErrOversize)
	case unix.ENETDOWN:
		return fmt.Errorf("send on %s: %w", name, core.ErrLinkDown)
	case unix.EPERM, unix.EACCES:
		return fmt.Errorf("send on %s: %w", name, core.ErrPermissionDenied)
	case unix.EBADF:
		return fmt.Errorf("send on %s: %w", name, core.ErrHandleClosed)
	default:
		return fmt.Errorf("send on %s: %w", name, err)
	}
}
