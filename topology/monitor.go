// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/ikmak/mongo-sdam/address"
	"github.com/ikmak/mongo-sdam/description"
	"github.com/ikmak/mongo-sdam/internal/logger"
	"github.com/pkg/errors"
)

//go:generate mockgen -destination mock_checker_test.go -package topology github.com/ikmak/mongo-sdam/topology Checker

// Checker performs the hello round trip against a single server. It owns the
// connection and handshake; the topology only sees the decoded response.
type Checker interface {
	Check(ctx context.Context, addr address.Address) (description.Hello, error)
}

// CheckerFunc adapts an ordinary function to the Checker interface.
type CheckerFunc func(ctx context.Context, addr address.Address) (description.Hello, error)

// Check calls f(ctx, addr).
func (f CheckerFunc) Check(ctx context.Context, addr address.Address) (description.Hello, error) {
	return f(ctx, addr)
}

// serverMonitor polls one server and reports every result to the topology.
type serverMonitor struct {
	addr     address.Address
	topo     *Topology
	checker  Checker
	rtt      *rttStats
	interval time.Duration
	minWait  time.Duration
	backoff  *backoff.ExponentialBackOff

	checkNow chan struct{}
	done     chan struct{}
	ctx      context.Context
	cancelFn context.CancelFunc
	stopOnce sync.Once

	// failures counts consecutive failed checks. Only the monitor goroutine
	// touches it.
	failures int
}

func newServerMonitor(topo *Topology, addr address.Address) *serverMonitor {
	ctx, cancel := context.WithCancel(context.Background())

	b := backoff.NewExponentialBackOff()
	if topo.cfg.minHeartbeatInterval > 0 {
		b.InitialInterval = topo.cfg.minHeartbeatInterval
	}
	b.MaxInterval = topo.cfg.heartbeatInterval
	b.MaxElapsedTime = 0

	return &serverMonitor{
		addr:     addr,
		topo:     topo,
		checker:  topo.cfg.checker,
		rtt:      newRTTStats(),
		interval: topo.cfg.heartbeatInterval,
		minWait:  topo.cfg.minHeartbeatInterval,
		backoff:  b,
		checkNow: make(chan struct{}, 1),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancelFn: cancel,
	}
}

func (m *serverMonitor) connect() {
	go m.start()
}

// stop signals the monitor goroutine to exit without waiting for it. It is
// safe to call while holding the topology lock.
func (m *serverMonitor) stop() {
	m.stopOnce.Do(m.cancelFn)
}

// disconnect stops the monitor and waits until its goroutine has returned or
// ctx is done.
func (m *serverMonitor) disconnect(ctx context.Context) error {
	m.stop()

	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "waiting for monitor of %s", m.addr)
	}
}

// requestImmediateCheck will cause the monitor to send a heartbeat to the
// server right away, instead of waiting for the heartbeat timeout.
func (m *serverMonitor) requestImmediateCheck() {
	select {
	case m.checkNow <- struct{}{}:
	default:
	}
}

func (m *serverMonitor) start() {
	defer close(m.done)

	heartbeatTimer := time.NewTimer(0)
	defer heartbeatTimer.Stop()

	var lastCheck time.Time
	for {
		select {
		case <-heartbeatTimer.C:
		case <-m.checkNow:
		case <-m.ctx.Done():
			return
		}

		// Wait if the last check was less than minWait ago.
		if wait := m.minWait - time.Since(lastCheck); !lastCheck.IsZero() && wait > 0 {
			rateLimitTimer := time.NewTimer(wait)
			select {
			case <-rateLimitTimer.C:
			case <-m.ctx.Done():
				rateLimitTimer.Stop()
				return
			}
		}

		next := m.check()
		lastCheck = time.Now()

		if !heartbeatTimer.Stop() {
			select {
			case <-heartbeatTimer.C:
			default:
			}
		}
		heartbeatTimer.Reset(next)
	}
}

// check runs one heartbeat and returns how long to wait before the next one.
// A failure right after a success is retried once immediately; later
// failures back off.
func (m *serverMonitor) check() time.Duration {
	hello, dur, err := m.heartbeat()
	if err != nil && m.failures == 0 && m.ctx.Err() == nil {
		hello, dur, err = m.heartbeat()
	}
	if m.ctx.Err() != nil {
		return m.interval
	}

	if err != nil {
		m.failures++
		m.rtt.reset()
		m.topo.handleMonitorError(m.addr, err)

		next := m.backoff.NextBackOff()
		if next == backoff.Stop || next > m.interval {
			next = m.interval
		}
		return next
	}

	m.failures = 0
	m.backoff.Reset()

	desc := description.NewServer(m.addr, hello).SetAverageRTT(m.rtt.addSample(dur))
	m.logRTT()
	_ = m.topo.apply(desc)
	return m.interval
}

func (m *serverMonitor) logRTT() {
	m.topo.logServerMessage(logger.LevelDebug, logger.ComponentTopology, logger.TopologyServerRTTUpdated, m.addr,
		logger.KeyAverageRTTMS, m.rtt.getRTT().Milliseconds(),
		logger.KeyMinRTTMS, m.rtt.getMinRTT().Milliseconds(),
		logger.KeyRTT90MS, m.rtt.getRTT90().Milliseconds())
}

func (m *serverMonitor) heartbeat() (description.Hello, time.Duration, error) {
	m.topo.publishServerHeartbeatStartedEvent(m.addr)

	start := time.Now()
	hello, err := m.checker.Check(m.ctx, m.addr)
	dur := time.Since(start)

	if err != nil {
		m.topo.publishServerHeartbeatFailedEvent(m.addr, dur, err)
		return hello, dur, err
	}

	m.topo.publishServerHeartbeatSucceededEvent(m.addr, dur, description.NewServer(m.addr, hello))
	return hello, dur, nil
}

// isTimeout reports whether err is a deadline or network timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
