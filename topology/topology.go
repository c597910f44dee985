// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package topology contains types that handle the discovery and monitoring of
// a MongoDB deployment. A Topology owns the state machine that turns hello
// responses and application errors into a consistent description of the
// deployment, and optionally the monitors that poll each known server.
package topology

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ikmak/mongo-sdam/address"
	"github.com/ikmak/mongo-sdam/description"
	"github.com/ikmak/mongo-sdam/internal/logger"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	disconnected int64 = iota
	connected
	disconnecting
)

// ErrSubscribeAfterClosed is returned when a user attempts to subscribe to a
// closed Server or Topology.
var ErrSubscribeAfterClosed = errors.New("cannot subscribe after closeConnection")

// Topology represents a MongoDB deployment.
type Topology struct {
	state int64 // must be accessed with atomic

	id          uuid.UUID
	cfg         *config
	metrics     *metrics
	generations *poolGenerationMap

	desc atomic.Value // holds a description.Topology

	mu       sync.Mutex // guards fsm, monitors and retired
	fsm      *fsm
	monitors map[address.Address]*serverMonitor
	retired  map[*serverMonitor]struct{} // stopped but not yet returned

	subLock             sync.Mutex
	subscribers         map[uint64]chan description.Topology
	currentSubscriberID uint64
	subscriptionsClosed bool
}

// New creates a new topology. The topology starts out with every seed as an
// Unknown server and does no I/O until Connect is called.
func New(opts ...Option) (*Topology, error) {
	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "invalid topology options")
	}

	t := &Topology{
		id:          uuid.New(),
		cfg:         cfg,
		generations: newPoolGenerationMap(),
		fsm:         newFSM(),
		monitors:    make(map[address.Address]*serverMonitor),
		retired:     make(map[*serverMonitor]struct{}),
		subscribers: make(map[uint64]chan description.Topology),
	}
	t.metrics = newMetrics(cfg.registerer, t.id)

	if cfg.replicaSetName != "" {
		t.fsm.SetName = strings.ToLower(cfg.replicaSetName)
		t.fsm.Kind = description.ReplicaSetNoPrimary
	}
	if cfg.directConnection {
		t.fsm.Kind = description.Single
	}

	for _, seed := range cfg.seedList {
		addr := seed.Canonicalize()
		t.fsm.seeds = append(t.fsm.seeds, addr)
		t.fsm.addServer(addr)
	}
	t.fsm.finish()

	t.desc.Store(t.fsm.Topology)
	t.metrics.knownServers.Set(float64(len(t.fsm.Servers)))

	return t, nil
}

// ID returns the identifier carried on every event and log message of this
// topology.
func (t *Topology) ID() uuid.UUID {
	return t.id
}

// Connect starts one monitor per known server. Without a Checker no monitor
// is started and the topology is driven only by UpdateServerDescription and
// HandleError.
func (t *Topology) Connect(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if !atomic.CompareAndSwapInt64(&t.state, disconnected, connected) {
		return ErrTopologyConnected
	}

	t.subLock.Lock()
	t.subscriptionsClosed = false
	t.subLock.Unlock()

	t.publishTopologyOpeningEvent()
	t.logTopologyMessage(logger.LevelDebug, logger.TopologyOpening)

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, s := range t.fsm.Servers {
		t.startMonitor(s.Addr)
	}

	desc := t.fsm.Topology
	t.publishTopologyDescriptionChangedEvent(description.Topology{}, desc)

	return nil
}

// Disconnect stops every monitor and closes all subscriptions. It waits for
// the monitors to return until ctx is done.
func (t *Topology) Disconnect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt64(&t.state, connected, disconnecting) {
		return ErrTopologyClosed
	}

	t.mu.Lock()
	active := make([]*serverMonitor, 0, len(t.monitors))
	for addr, m := range t.monitors {
		active = append(active, m)
		delete(t.monitors, addr)
	}
	retired := make([]*serverMonitor, 0, len(t.retired))
	for m := range t.retired {
		retired = append(retired, m)
	}
	t.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, m := range active {
		m := m
		g.Go(func() error {
			err := m.disconnect(gctx)
			t.publishServerClosedEvent(m.addr)
			return err
		})
	}
	for _, m := range retired {
		m := m
		g.Go(func() error { return m.disconnect(gctx) })
	}
	err := g.Wait()

	t.subLock.Lock()
	for id, ch := range t.subscribers {
		close(ch)
		delete(t.subscribers, id)
	}
	t.subscriptionsClosed = true
	t.subLock.Unlock()

	t.publishTopologyClosedEvent()
	t.logTopologyMessage(logger.LevelDebug, logger.TopologyClosed)

	atomic.StoreInt64(&t.state, disconnected)
	return err
}

// Describe returns a description of the topology. The description is an
// immutable snapshot that is never half-updated.
func (t *Topology) Describe() description.Topology {
	td, _ := t.desc.Load().(description.Topology)
	return td
}

// Primary returns the server currently recorded as the primary.
func (t *Topology) Primary() (description.Server, bool) {
	return t.Describe().Primary()
}

// Generation returns the current connection pool generation recorded for
// addr. Connections checked out under an older generation produce errors that
// HandleError treats as stale.
func (t *Topology) Generation(addr address.Address) uint64 {
	return t.generations.getGeneration(addr.Canonicalize())
}

// Subscription is a subscription to updates to the description of the
// Topology that created this Subscription.
type Subscription struct {
	C <-chan description.Topology

	t  *Topology
	id uint64
}

// Subscribe returns a Subscription on which all updated description.Topologys
// will be sent. The channel of the subscription will have a buffer size of
// one, and will be pre-populated with the current description.Topology.
func (t *Topology) Subscribe() (*Subscription, error) {
	t.subLock.Lock()
	defer t.subLock.Unlock()
	if t.subscriptionsClosed {
		return nil, ErrSubscribeAfterClosed
	}

	// Populate under subLock so an update published concurrently is either
	// seen here or delivered by notifySubscribers.
	ch := make(chan description.Topology, 1)
	ch <- t.Describe()
	id := t.currentSubscriberID
	t.subscribers[id] = ch
	t.currentSubscriberID++

	return &Subscription{C: ch, t: t, id: id}, nil
}

// Unsubscribe unsubscribes this Subscription from updates and closes the
// subscription channel.
func (s *Subscription) Unsubscribe() error {
	s.t.subLock.Lock()
	defer s.t.subLock.Unlock()
	if s.t.subscriptionsClosed {
		return nil
	}

	ch, ok := s.t.subscribers[s.id]
	if !ok {
		return nil
	}

	close(ch)
	delete(s.t.subscribers, s.id)
	return nil
}

// RequestImmediateCheck will send heartbeats to all the servers in the
// topology right away, instead of waiting for the heartbeat timeout.
func (t *Topology) RequestImmediateCheck() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, m := range t.monitors {
		m.requestImmediateCheck()
	}
}

// SelectPrimary blocks until the topology records a writable server or until
// ctx or the server selection timeout expires. A writable server is the
// replica set primary, the single server of a Single topology, or any mongos
// of a Sharded topology.
func (t *Topology) SelectPrimary(ctx context.Context) (description.Server, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if t.cfg.serverSelectionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.serverSelectionTimeout)
		defer cancel()
	}

	sub, err := t.Subscribe()
	if err != nil {
		return description.Server{}, err
	}
	defer func() { _ = sub.Unsubscribe() }()

	start := time.Now()
	for {
		var desc description.Topology
		var ok bool
		select {
		case <-ctx.Done():
			desc = t.Describe()
			wrapped := ctx.Err()
			if errors.Is(wrapped, context.DeadlineExceeded) {
				wrapped = ErrServerSelectionTimeout
			}
			t.logServerSelectionFailed(desc, wrapped)
			return description.Server{}, ServerSelectionError{Desc: desc, Wrapped: wrapped}
		case desc, ok = <-sub.C:
			if !ok {
				return description.Server{}, ErrTopologyClosed
			}
		}

		if desc.CompatibilityErr != nil {
			t.logServerSelectionFailed(desc, desc.CompatibilityErr)
			return description.Server{}, ServerSelectionError{Desc: desc, Wrapped: desc.CompatibilityErr}
		}

		if s, ok := selectWritable(desc); ok {
			t.logServerMessage(logger.LevelDebug, logger.ComponentServerSelection, logger.ServerSelectionSucceeded, s.Addr,
				logger.KeyDurationMS, time.Since(start).Milliseconds())
			return s, nil
		}

		t.RequestImmediateCheck()
	}
}

func selectWritable(desc description.Topology) (description.Server, bool) {
	switch desc.Kind {
	case description.Single:
		for _, s := range desc.Servers {
			if s.Kind != description.Unknown && s.Kind != description.PossiblePrimary {
				return s, true
			}
		}
	case description.Sharded:
		for _, s := range desc.Servers {
			if s.Kind == description.Mongos {
				return s, true
			}
		}
	default:
		return desc.Primary()
	}
	return description.Server{}, false
}

// UpdateServerDescription applies a decoded hello response from addr. The
// response is ignored if addr is no longer part of the topology or if it is
// stale. An error is returned only when the response has no transition in
// the state machine; the topology is left unchanged in that case.
func (t *Topology) UpdateServerDescription(addr address.Address, hello description.Hello) error {
	return t.apply(description.NewServer(addr, hello))
}

// HandleError applies an error observed by an application connection. Errors
// that signal a state change mark the server Unknown. Stale errors and errors
// for servers no longer in the topology are absorbed and nil is returned.
// Any other error is passed through unchanged.
func (t *Topology) HandleError(appErr ApplicationError) error {
	appErr.Address = appErr.Address.Canonicalize()

	t.mu.Lock()
	defer t.mu.Unlock()

	server, ok := t.fsm.Server(appErr.Address)
	if !ok {
		t.metrics.applicationErrors.WithLabelValues(outcomeIgnored).Inc()
		return nil
	}

	if t.generations.stale(appErr.Address, appErr.Generation) {
		t.metrics.applicationErrors.WithLabelValues(outcomeStale).Inc()
		t.logServerMessage(logger.LevelDebug, logger.ComponentTopology, logger.TopologyStaleError, appErr.Address,
			logger.KeyReason, "stale generation", logger.KeyError, appErr.Error())
		return nil
	}

	tv := appErr.topologyVersion()
	if description.CompareTopologyVersion(server.TopologyVersion, tv) >= 0 {
		t.metrics.applicationErrors.WithLabelValues(outcomeStale).Inc()
		t.logServerMessage(logger.LevelDebug, logger.ComponentTopology, logger.TopologyStaleError, appErr.Address,
			logger.KeyReason, "stale topology version", logger.KeyError, appErr.Error())
		return nil
	}

	var reset, clearPool bool
	switch {
	case isStateChange(appErr.Response):
		reset = true
		clearPool = isShutdown(appErr.Response) || appErr.MaxWireVersion < 8
	case appErr.When == BeforeHandshake && (appErr.Kind == NetworkError || appErr.Kind == TimeoutError):
		reset = true
		clearPool = true
	}

	if !reset {
		t.metrics.applicationErrors.WithLabelValues(outcomePassthrough).Inc()
		return appErr
	}

	t.metrics.applicationErrors.WithLabelValues(outcomeReset).Inc()
	if clearPool {
		generation := t.generations.clear(appErr.Address)
		t.metrics.poolClears.Inc()
		t.publishPoolClearedEvent(appErr.Address, generation)
	}

	t.logServerMessage(logger.LevelInfo, logger.ComponentTopology, logger.TopologyServerReset, appErr.Address,
		logger.KeyError, appErr.Error())

	return t.applyLocked(description.NewServerFromError(appErr.Address, appErr, tv))
}

// handleMonitorError feeds a failed check into HandleError as a network or
// timeout error that happened before the handshake completed.
func (t *Topology) handleMonitorError(addr address.Address, err error) {
	kind := NetworkError
	if isTimeout(err) {
		kind = TimeoutError
	}

	_ = t.HandleError(ApplicationError{
		Address:    addr,
		Kind:       kind,
		When:       BeforeHandshake,
		Generation: t.generations.getGeneration(addr),
		Wrapped:    err,
	})
}

func (t *Topology) apply(s description.Server) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.applyLocked(s)
}

// applyLocked runs s through the state machine, publishes the new snapshot
// and reconciles the monitors. t.mu must be held.
func (t *Topology) applyLocked(s description.Server) error {
	prev := t.fsm.Topology
	oldServer, known := prev.Server(s.Addr)

	if !known {
		t.metrics.updates.WithLabelValues(outcomeIgnored).Inc()
		return nil
	}
	if s.LastError == nil && description.CompareTopologyVersion(oldServer.TopologyVersion, s.TopologyVersion) >= 0 {
		t.metrics.updates.WithLabelValues(outcomeStale).Inc()
		t.logServerMessage(logger.LevelDebug, logger.ComponentTopology, logger.TopologyStaleResponse, s.Addr)
		return nil
	}

	current, updated, err := t.fsm.apply(s)
	if err != nil {
		t.metrics.updates.WithLabelValues(outcomeInvariant).Inc()
		t.logServerMessage(logger.LevelInfo, logger.ComponentTopology, logger.TopologyInvariantViolation, s.Addr,
			logger.KeyError, err.Error())
		return err
	}
	t.metrics.updates.WithLabelValues(outcomeApplied).Inc()

	t.desc.Store(current)
	t.reconcileMonitors(prev, current)
	t.recordTopology(current)

	if !oldServer.Equal(updated) {
		t.publishServerDescriptionChangedEvent(oldServer, updated)
	}
	if !prev.Equal(current) {
		t.publishTopologyDescriptionChangedEvent(prev, current)
		t.logTopologyChange(prev, current)
		t.notifySubscribers(current)
	}

	return nil
}

// reconcileMonitors starts monitors for added servers and stops those of
// removed servers. A stopped monitor stays in retired until its goroutine
// returns, so Disconnect can still wait for it.
func (t *Topology) reconcileMonitors(prev, current description.Topology) {
	diff := diffTopology(prev, current)

	for _, s := range diff.Removed {
		t.generations.remove(s.Addr)
		if m, ok := t.monitors[s.Addr]; ok {
			m.stop()
			delete(t.monitors, s.Addr)
			t.retire(m)
		}
		t.publishServerClosedEvent(s.Addr)
		t.logServerMessage(logger.LevelDebug, logger.ComponentTopology, logger.TopologyServerClosed, s.Addr)
	}

	for _, s := range diff.Added {
		t.startMonitor(s.Addr)
	}
}

// retire tracks a stopped monitor until its goroutine returns. t.mu must be
// held.
func (t *Topology) retire(m *serverMonitor) {
	t.retired[m] = struct{}{}
	go func() {
		<-m.done

		t.mu.Lock()
		delete(t.retired, m)
		t.mu.Unlock()
	}()
}

// startMonitor starts polling addr if the topology is connected and has a
// Checker. t.mu must be held.
func (t *Topology) startMonitor(addr address.Address) {
	t.publishServerOpeningEvent(addr)
	t.logServerMessage(logger.LevelDebug, logger.ComponentTopology, logger.TopologyServerOpening, addr)

	if t.cfg.checker == nil || atomic.LoadInt64(&t.state) != connected {
		return
	}
	if _, ok := t.monitors[addr]; ok {
		return
	}

	m := newServerMonitor(t, addr)
	t.monitors[addr] = m
	m.connect()
}

func (t *Topology) recordTopology(current description.Topology) {
	t.metrics.knownServers.Set(float64(len(current.Servers)))
	if _, ok := current.Primary(); ok {
		t.metrics.hasPrimary.Set(1)
	} else {
		t.metrics.hasPrimary.Set(0)
	}
}

// notifySubscribers replaces whatever is buffered in each subscriber channel
// with current.
func (t *Topology) notifySubscribers(current description.Topology) {
	t.subLock.Lock()
	defer t.subLock.Unlock()

	for _, ch := range t.subscribers {
		select {
		case <-ch:
			// drain the channel if not empty
		default:
			// do nothing if chan already empty
		}
		ch <- current
	}
}

func (t *Topology) logTopologyChange(prev, current description.Topology) {
	prevPrimary, hadPrimary := prev.Primary()
	newPrimary, hasPrimary := current.Primary()

	level := logger.LevelDebug
	if prev.Kind != current.Kind || hadPrimary != hasPrimary || prevPrimary.Addr != newPrimary.Addr {
		level = logger.LevelInfo
	}

	t.logTopologyMessage(level, logger.TopologyDescriptionChanged,
		logger.KeyPreviousDescription, prev.String(),
		logger.KeyNewDescription, current.String(),
		logger.KeyTopologyType, current.Kind.String(),
		logger.KeySetName, current.SetName)
}

func (t *Topology) logTopologyMessage(level logger.Level, msg string, keysAndValues ...interface{}) {
	log := t.cfg.logger
	if !log.LevelComponentEnabled(level, logger.ComponentTopology) {
		return
	}

	kvs := logger.KeyValues{logger.KeyTopologyID, t.id.String(), logger.KeyMessage, msg}
	log.Print(level, logger.ComponentTopology, msg, append(kvs, keysAndValues...)...)
}

func (t *Topology) logServerMessage(level logger.Level, component logger.Component, msg string, addr address.Address, keysAndValues ...interface{}) {
	log := t.cfg.logger
	if !log.LevelComponentEnabled(level, component) {
		return
	}

	kvs := logger.KeyValues{logger.KeyTopologyID, t.id.String(), logger.KeyMessage, msg}
	kvs = append(kvs, logger.SerializeServer(addr, keysAndValues...)...)
	log.Print(level, component, msg, kvs...)
}

func (t *Topology) logServerSelectionFailed(desc description.Topology, err error) {
	log := t.cfg.logger
	if !log.LevelComponentEnabled(logger.LevelInfo, logger.ComponentServerSelection) {
		return
	}

	log.Print(logger.LevelInfo, logger.ComponentServerSelection, logger.ServerSelectionFailed,
		logger.KeyTopologyID, t.id.String(),
		logger.KeyMessage, logger.ServerSelectionFailed,
		logger.KeyFailure, err.Error(),
		logger.KeyTopologyType, desc.Kind.String())
}
