// Package core defines sentinel errors.
package core

import "errors"

var (
	// Frame decoding errors
	ErrFrameTooShort    = errors.New("pktbridge: frame too short")
	ErrUnsupportedProto = errors.New("pktbridge: unsupported protocol")

	// Interface handle errors
	ErrNoSuchInterface  = errors.New("pktbridge: no such interface")
	ErrPermissionDenied = errors.New("pktbridge: permission denied")
	ErrAlreadyOpen      = errors.New("pktbridge: interface already open")
	ErrLinkDown         = errors.New("pktbridge: link down")
	ErrQueueFull        = errors.New("pktbridge: transmit queue full")
	ErrOversize         = errors.New("pktbridge: frame exceeds interface MTU")
	ErrHandleClosed     = errors.New("pktbridge: handle closed")

	// Configuration errors
	ErrConfigInvalid = errors.New("pktbridge: invalid configuration")

	// Engine errors
	ErrEngineStopped = errors.New("pktbridge: engine stopped")

	// Daemon errors
	ErrDaemonNotRunning = errors.New("pktbridge: daemon not running")
)
