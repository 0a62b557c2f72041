package iface

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/vishvananda/netlink"

	"icc.tech/pktbridge/internal/core"
	"icc.tech/pktbridge/internal/log"
)

// linkState is the last observed carrier state of one interface.
// A nil inner pointer means no monitor is attached: always up.
type linkState struct {
	state *atomic.Bool
}

func (l *linkState) up() bool {
	if l == nil || l.state == nil {
		return true
	}
	return l.state.Load()
}

// watchLink registers name with the monitor, or returns an always-up state
// when running without one.
func watchLink(monitor *Monitor, name string) (*linkState, error) {
	if monitor == nil {
		return &linkState{}, nil
	}
	return monitor.watch(name)
}

// Monitor tracks interface carrier state through netlink link updates.
// One monitor serves every handle in the process.
type Monitor struct {
	mu    sync.Mutex
	links map[string]*linkState
	done  chan struct{}
}

// NewMonitor creates a stopped monitor; call Start before opening handles.
func NewMonitor() *Monitor {
	return &Monitor{links: make(map[string]*linkState)}
}

// Start subscribes to netlink link updates and applies them until Stop.
func (m *Monitor) Start() error {
	updates := make(chan netlink.LinkUpdate, 64)
	m.done = make(chan struct{})

	if err := netlink.LinkSubscribe(updates, m.done); err != nil {
		return fmt.Errorf("failed to subscribe to link updates: %w", err)
	}

	go func() {
		for update := range updates {
			attrs := update.Link.Attrs()
			if attrs == nil {
				continue
			}
			m.mu.Lock()
			ls, ok := m.links[attrs.Name]
			m.mu.Unlock()
			if !ok {
				continue
			}

			up := attrs.OperState == netlink.OperUp || attrs.OperState == netlink.OperUnknown
			if ls.state.Swap(up) != up {
				log.WithField("interface", attrs.Name).Infof("link state changed: up=%v", up)
			}
		}
	}()

	return nil
}

// watch registers an interface and seeds its state from the kernel.
func (m *Monitor) watch(name string) (*linkState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ls, ok := m.links[name]; ok {
		return ls, nil
	}

	link, err := netlink.LinkByName(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrNoSuchInterface, name)
	}

	ls := &linkState{state: &atomic.Bool{}}
	attrs := link.Attrs()
	ls.state.Store(attrs.OperState == netlink.OperUp || attrs.OperState == netlink.OperUnknown)
	m.links[name] = ls
	return ls, nil
}

// Stop ends the netlink subscription.
func (m *Monitor) Stop() {
	if m.done != nil {
		close(m.done)
		m.done = nil
	}
}
