// Package daemon implements the ERS node lifecycle (C8): connect to
// DocDB with bounded retry, open the store and registry, announce this
// node over Discovery, fold join/leave events and a periodic timer into
// replication reconciliation, and serve the HTTP control surface until
// told to stop.
package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ers-go/ers/discovery"
	"github.com/ers-go/ers/docdb"
	"github.com/ers-go/ers/federated"
	"github.com/ers-go/ers/peer"
	"github.com/ers-go/ers/registry"
	"github.com/ers-go/ers/replication"
	"github.com/ers-go/ers/store"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ReconcileInterval is how often the daemon re-runs replication
// reconciliation even without a Discovery event, covering peers that
// went stale without a clean leave and tasks some other process
// disturbed.
const ReconcileInterval = 5 * time.Minute

// Config gathers everything New and Run need to bring up a node.
type Config struct {
	Host       string
	Prefix     string
	Port       int
	Kind       peer.Kind
	PIDFile    string
	FixedPeers []peer.Peer

	DocDBDialTries int // bounded connect retry before treating unavailability as fatal

	Discovery discovery.Provider
	Query     *federated.Query // nil disables federation
	Log       *logrus.Entry
}

// Daemon owns every long-lived resource a running node holds.
type Daemon struct {
	cfg   Config
	log   *logrus.Entry
	store *store.Store
	peers *peer.Registry
	repl  *replication.Controller
	reg   *registry.Registry

	server       *http.Server
	stopAnnounce func()
	cron         *cron.Cron

	events   chan discovery.Event
	shutdown chan struct{}
	done     chan struct{}
}

// RequestShutdown asks Run to begin graceful shutdown, as if a
// SIGTERM had arrived -- the control surface's /control/shutdown
// endpoint calls this.
func (d *Daemon) RequestShutdown() {
	select {
	case d.shutdown <- struct{}{}:
	default:
	}
}

// TriggerReconcile enqueues an immediate reconciliation pass without
// waiting for the next cron tick -- the control surface's
// /control/refresh endpoint calls this.
func (d *Daemon) TriggerReconcile(ctx context.Context) {
	select {
	case d.events <- discovery.Event{}:
	case <-ctx.Done():
	case <-d.done:
	}
}

// Connect dials DocDB with exponential backoff, giving up after tries
// attempts and returning docdb.ErrUnavailable -- the daemon's only fatal
// startup condition.
func Connect(ctx context.Context, dial func(context.Context) (docdb.DB, error), tries int) (docdb.DB, error) {
	if tries <= 0 {
		tries = 5
	}
	var db docdb.DB
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(tries-1))
	err := backoff.Retry(func() error {
		d, dialErr := dial(ctx)
		if dialErr != nil {
			return dialErr
		}
		if pingErr := d.Ping(ctx); pingErr != nil {
			d.Close()
			return pingErr
		}
		db = d
		return nil
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return nil, fmt.Errorf("daemon: connect to docdb: %w: %w", docdb.ErrUnavailable, err)
	}
	return db, nil
}

// New wires a Daemon's components together. db must already be
// connected (see Connect).
func New(db docdb.DB, cfg Config) (*Daemon, error) {
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	// Tags every log line from this run with a fresh instance id so a
	// restarted daemon's lines never interleave with the run before it
	// in an aggregated log view.
	log = log.WithField("instance", uuid.NewString())

	ctx := context.Background()
	s, err := store.Open(ctx, db, cfg.Prefix)
	if err != nil {
		return nil, err
	}

	peers := peer.New(cfg.FixedPeers)
	if saved, loadErr := s.LoadPeers(ctx); loadErr == nil {
		for _, ps := range saved {
			peers.Join(peer.Peer{URN: ps.URN, Host: ps.Host, Port: ps.Port, Prefix: cfg.Prefix, Kind: peer.Kind(ps.Kind), Fixed: ps.Fixed})
		}
	} else {
		log.WithError(loadErr).Warn("could not load persisted peer state, starting with fixed peers only")
	}

	repl, err := replication.NewController(db, replication.Config{
		Prefix: cfg.Prefix,
		Host:   cfg.Host,
		Log:    log.WithField("subsystem", "replication"),
	})
	if err != nil {
		return nil, err
	}

	var q registry.Query
	if cfg.Query != nil {
		q = cfg.Query
	}
	reg := registry.New(s, peers, q, cfg.Host)

	return &Daemon{
		cfg:      cfg,
		log:      log,
		store:    s,
		peers:    peers,
		repl:     repl,
		reg:      reg,
		events:   make(chan discovery.Event, 32),
		shutdown: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}, nil
}

// Registry exposes the wired Registry API, the handle cli/ and
// control.go build their surfaces over.
func (d *Daemon) Registry() *registry.Registry { return d.reg }

// Run brings up Discovery, the control HTTP server and the periodic
// reconciliation cron, then blocks until ctx is canceled or a
// SIGINT/SIGTERM/SIGQUIT arrives, at which point it shuts everything
// down in reverse order.
func (d *Daemon) Run(ctx context.Context, controlAddr string) error {
	if err := checkNotRunning(d.cfg.PIDFile); err != nil {
		return err
	}
	if err := writePIDFile(d.cfg.PIDFile); err != nil {
		return fmt.Errorf("daemon: write pidfile: %w", err)
	}
	defer removePIDFile(d.cfg.PIDFile)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if d.cfg.Discovery != nil {
		name := BuildServiceName(d.cfg.Host, d.cfg.Prefix, d.cfg.Kind)
		stop, err := d.cfg.Discovery.Announce(runCtx, name, d.cfg.Port)
		if err != nil {
			return fmt.Errorf("daemon: announce: %w", err)
		}
		d.stopAnnounce = stop

		watch, err := d.cfg.Discovery.Watch(runCtx)
		if err != nil {
			stop()
			return fmt.Errorf("daemon: watch: %w", err)
		}
		go d.pump(watch)
	}

	d.cron = cron.New()
	if _, err := d.cron.AddFunc("@every "+ReconcileInterval.String(), func() {
		select {
		case d.events <- discovery.Event{}: // zero-value event == "tick", handled in loop()
		case <-runCtx.Done():
		}
	}); err != nil {
		return fmt.Errorf("daemon: schedule reconciliation: %w", err)
	}
	d.cron.Start()

	go d.loop(runCtx)

	d.server = newControlServer(controlAddr, d)
	serveErr := make(chan error, 1)
	go func() {
		d.log.WithField("addr", controlAddr).Info("control server listening")
		if err := d.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)

	select {
	case <-runCtx.Done():
	case <-sig:
		d.log.Info("received shutdown signal")
	case <-d.shutdown:
		d.log.Info("received shutdown request")
	case err := <-serveErr:
		d.log.WithError(err).Error("control server failed")
	}

	return d.shutdownAll()
}

func (d *Daemon) shutdownAll() error {
	cancel, cancelFn := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelFn()

	if d.cron != nil {
		d.cron.Stop()
	}
	if d.stopAnnounce != nil {
		d.stopAnnounce()
	}
	close(d.done)
	if d.server != nil {
		if err := d.server.Shutdown(cancel); err != nil {
			d.log.WithError(err).Error("control server shutdown error")
		}
	}
	if err := d.repl.Close(); err != nil {
		d.log.WithError(err).Error("replication controller close error")
	}
	d.log.Info("daemon stopped")
	return nil
}

// pump relays Discovery events into the single event-processing
// goroutine's inbox, translating join/leave into peer.Registry calls
// happens in loop so every mutation of peers happens on one goroutine.
func (d *Daemon) pump(watch <-chan discovery.Event) {
	for ev := range watch {
		select {
		case d.events <- ev:
		case <-d.done:
			return
		}
	}
}

// loop is the daemon's single event-processing goroutine: every
// Discovery join/leave and every cron tick funnels through here so
// peer.Registry mutation and replication.Controller.Reconcile never run
// concurrently with each other.
func (d *Daemon) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.events:
			d.handleEvent(ctx, ev)
		}
	}
}

func (d *Daemon) handleEvent(ctx context.Context, ev discovery.Event) {
	changed := true
	switch {
	case ev.ServiceName == "" && ev.Host == "":
		// Cron tick: reconcile unconditionally.
	case ev.Type == discovery.EventJoin:
		host, prefix, kind, ok := ParseServiceName(ev.ServiceName)
		if !ok || prefix != d.cfg.Prefix {
			return
		}
		urn := peer.Peer{URN: fmt.Sprintf("urn:ers:host:%s", host), Host: host, Port: ev.Port, Prefix: prefix, Kind: kind}
		changed = d.peers.Join(urn)
	case ev.Type == discovery.EventLeave:
		host, prefix, _, ok := ParseServiceName(ev.ServiceName)
		if !ok || prefix != d.cfg.Prefix {
			return
		}
		changed = d.peers.Leave(fmt.Sprintf("urn:ers:host:%s", host))
	}

	if !changed {
		return
	}

	if err := d.persistPeers(ctx); err != nil {
		d.log.WithError(err).Error("persisting peer state failed")
	}

	self := peer.Peer{URN: fmt.Sprintf("urn:ers:host:%s", d.cfg.Host), Host: d.cfg.Host, Port: d.cfg.Port, Prefix: d.cfg.Prefix, Kind: d.cfg.Kind}
	if err := d.repl.Reconcile(ctx, self, d.peers.Snapshot()); err != nil {
		d.log.WithError(err).Error("reconciliation failed")
	}
}

// persistPeers saves the current peer set to the state database so a
// restart recovers discovered peers without waiting for them to
// re-announce.
func (d *Daemon) persistPeers(ctx context.Context) error {
	snapshot := d.peers.Snapshot()
	out := make([]store.PeerState, 0, len(snapshot))
	for _, p := range snapshot {
		out = append(out, store.PeerState{URN: p.URN, Host: p.Host, Port: p.Port, Kind: string(p.Kind), Fixed: p.Fixed})
	}
	return d.store.SavePeers(ctx, out)
}
