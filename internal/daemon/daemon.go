// Package daemon implements the daemon lifecycle manager.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"icc.tech/pktbridge/internal/command"
	"icc.tech/pktbridge/internal/config"
	"icc.tech/pktbridge/internal/core"
	"icc.tech/pktbridge/internal/engine"
	"icc.tech/pktbridge/internal/flowtable"
	"icc.tech/pktbridge/internal/iface"
	"icc.tech/pktbridge/internal/log"
	"icc.tech/pktbridge/internal/metrics"
	"icc.tech/pktbridge/internal/rules"
	"icc.tech/pktbridge/internal/stats"
)

// Daemon manages the pktbridge process lifecycle: interface attachment,
// the forwarding engine, the control socket and the metrics server.
type Daemon struct {
	config     *config.Config
	configPath string

	handles       map[string]iface.Handle
	monitor       *iface.Monitor
	engine        *engine.Engine
	cmdHandler    *command.Handler
	udsServer     *command.UDSServer
	metricsServer *metrics.Server // nil if metrics disabled

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownChan chan struct{}
	sigChan      chan os.Signal
}

// New loads configuration and creates a stopped daemon.
func New(configPath string) (*Daemon, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	d := &Daemon{
		config:       cfg,
		configPath:   configPath,
		handles:      make(map[string]iface.Handle),
		shutdownChan: make(chan struct{}),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d, nil
}

// Start initializes and starts all daemon components.
func (d *Daemon) Start() error {
	// 1. Logging first so every later step reports through it.
	if err := log.Init(d.config.Log); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	log.Infof("starting pktbridge daemon: config=%s socket=%s", d.configPath, d.config.Control.Socket)

	// 2. PID file
	if err := d.writePIDFile(); err != nil {
		return err
	}

	// 3. Metrics server
	if err := d.startMetrics(); err != nil {
		return err
	}

	// 4. Compile the rule set before touching any interface: a bad rule
	// file must fail fast with nothing attached.
	rs, err := d.compileRules()
	if err != nil {
		return err
	}

	// 5. Link state monitor, then interface attachment
	d.monitor = iface.NewMonitor()
	if err := d.monitor.Start(); err != nil {
		log.WithError(err).Warn("link monitoring unavailable, assuming links up")
		d.monitor = nil
	}

	if err := d.openHandles(); err != nil {
		d.closeHandles()
		return err
	}

	// 6. Forwarding engine
	flows, err := flowtable.New(d.config.FlowTable.Capacity)
	if err != nil {
		d.closeHandles()
		return fmt.Errorf("failed to create flow table: %w", err)
	}

	ingress, egress := d.interfaceRoles()
	d.engine = engine.New(engine.Config{
		Handles: d.handles,
		Ingress: ingress,
		Egress:  egress,
		RuleSet: rs,
		Flows:   flows,
		Stats:   stats.NewCollector(d.config.InterfaceNames()),
		Engine:  d.config.Engine,
	})
	if err := d.engine.Start(); err != nil {
		d.closeHandles()
		return fmt.Errorf("failed to start engine: %w", err)
	}

	// 7. Control socket
	d.cmdHandler = command.NewHandler(d.engine, d)
	d.cmdHandler.SetShutdownFunc(func() {
		log.Info("shutdown triggered via control command")
		close(d.shutdownChan)
	})
	d.udsServer = command.NewUDSServer(d.config.Control.Socket, d.cmdHandler)
	if err := d.udsServer.Start(d.ctx); err != nil {
		d.engine.Stop()
		d.closeHandles()
		return fmt.Errorf("failed to start control socket: %w", err)
	}

	log.Info("daemon started")
	return nil
}

// Run blocks until shutdown is triggered by SIGTERM/SIGINT or the shutdown
// command. SIGHUP reloads the rule set in place.
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				log.Infof("received signal %v, shutting down", sig)
				d.Stop()
				return nil
			case syscall.SIGHUP:
				log.Info("received SIGHUP, reloading rules")
				if err := d.Reload(); err != nil {
					log.WithError(err).Error("rule reload failed, keeping active rule set")
				}
			}

		case <-d.shutdownChan:
			d.Stop()
			return nil

		case <-d.ctx.Done():
			d.Stop()
			return d.ctx.Err()
		}
	}
}

// Stop shuts components down in reverse dependency order: control surface
// first, then the data path, then the interfaces under it.
func (d *Daemon) Stop() {
	log.Info("initiating graceful shutdown")

	if d.udsServer != nil {
		d.udsServer.Stop()
	}
	if d.engine != nil {
		if err := d.engine.Stop(); err != nil && err != core.ErrEngineStopped {
			log.WithError(err).Error("error stopping engine")
		}
	}
	d.closeHandles()
	if d.monitor != nil {
		d.monitor.Stop()
	}
	if d.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		d.metricsServer.Stop(shutdownCtx)
		cancel()
	}

	d.cancel()
	if d.sigChan != nil {
		signal.Stop(d.sigChan)
	}
	d.removePIDFile()

	log.Info("daemon stopped")
}

// Reload recompiles the rule configuration and swaps it into the engine.
// Compilation is all-or-nothing: on any error the active rule set stays.
func (d *Daemon) Reload() error {
	cfg, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}

	specs, err := cfg.EffectiveRules()
	if err != nil {
		return err
	}
	rs, err := rules.Compile(specs, cfg.DefaultAction, d.config.Topology())
	if err != nil {
		return err
	}

	d.engine.Reload(rs)
	return nil
}

func (d *Daemon) compileRules() (*rules.RuleSet, error) {
	specs, err := d.config.EffectiveRules()
	if err != nil {
		return nil, err
	}
	return rules.Compile(specs, d.config.DefaultAction, d.config.Topology())
}

func (d *Daemon) openHandles() error {
	for i := range d.config.Interfaces {
		ic := &d.config.Interfaces[i]
		h, err := iface.Open(ic.Backend, iface.Options{
			Name:         ic.Name,
			Promiscuous:  ic.Promiscuous,
			SnapLen:      ic.SnapLen,
			BufferSizeMB: ic.BufferSizeMB,
			PollTimeout:  d.config.Engine.PollTimeout,
			Filter:       ic.BPF,
		}, d.monitor)
		if err != nil {
			return fmt.Errorf("failed to attach %s: %w", ic.Name, err)
		}
		d.handles[ic.Name] = h
		log.WithField("interface", ic.Name).Infof("attached via %s", ic.Backend)
	}
	return nil
}

func (d *Daemon) closeHandles() {
	for name, h := range d.handles {
		if err := h.Close(); err != nil && err != core.ErrHandleClosed {
			log.WithField("interface", name).WithError(err).Error("error detaching")
		}
	}
}

func (d *Daemon) interfaceRoles() (ingress, egress []string) {
	for i := range d.config.Interfaces {
		ic := &d.config.Interfaces[i]
		if ic.IsIngress() {
			ingress = append(ingress, ic.Name)
		}
		if ic.IsEgress() {
			egress = append(egress, ic.Name)
		}
	}
	return ingress, egress
}

func (d *Daemon) startMetrics() error {
	if !d.config.Metrics.Enabled {
		log.Info("metrics server disabled")
		return nil
	}
	d.metricsServer = metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path)
	return d.metricsServer.Start(d.ctx)
}

func (d *Daemon) writePIDFile() error {
	if d.config.Control.PIDFile == "" {
		return nil
	}
	data := []byte(strconv.Itoa(os.Getpid()) + "\n")
	if err := os.WriteFile(d.config.Control.PIDFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write PID file %s: %w", d.config.Control.PIDFile, err)
	}
	return nil
}

func (d *Daemon) removePIDFile() {
	if d.config.Control.PIDFile == "" {
		return
	}
	if err := os.Remove(d.config.Control.PIDFile); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Error("failed to remove PID file")
	}
}
