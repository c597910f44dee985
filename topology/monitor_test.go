// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/ikmak/mongo-sdam/address"
	"github.com/ikmak/mongo-sdam/description"
	"github.com/ikmak/mongo-sdam/event"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitFor reads descriptions from sub until cond holds or the timeout expires.
func waitFor(t *testing.T, sub *Subscription, cond func(description.Topology) bool) description.Topology {
	t.Helper()

	timer := time.NewTimer(5 * time.Second)
	defer timer.Stop()

	for {
		select {
		case desc, ok := <-sub.C:
			require.True(t, ok, "subscription closed")
			if cond(desc) {
				return desc
			}
		case <-timer.C:
			t.Fatal("timed out waiting for the topology")
		}
	}
}

func hasPrimary(desc description.Topology) bool {
	_, ok := desc.Primary()
	return ok
}

func TestMonitorSuccess(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	checker := NewMockChecker(ctrl)
	checker.EXPECT().
		Check(gomock.Any(), address.Address("a:27017")).
		Return(primaryHello("rs", 1, objectID(1), "a:27017"), nil).
		MinTimes(1)

	var started, succeeded int32
	monitor := &event.ServerMonitor{
		ServerHeartbeatStarted: func(*event.ServerHeartbeatStartedEvent) {
			atomic.AddInt32(&started, 1)
		},
		ServerHeartbeatSucceeded: func(e *event.ServerHeartbeatSucceededEvent) {
			assert.Equal(t, description.RSPrimary, e.Reply.Kind)
			atomic.AddInt32(&succeeded, 1)
		},
	}

	topo, err := New(
		WithSeedList("a"),
		WithReplicaSetName("rs"),
		WithChecker(checker),
		WithHeartbeatInterval(time.Hour),
		WithServerMonitor(monitor),
	)
	noerr(t, err)

	sub, err := topo.Subscribe()
	noerr(t, err)

	noerr(t, topo.Connect(context.Background()))
	defer func() { noerr(t, topo.Disconnect(context.Background())) }()

	desc := waitFor(t, sub, hasPrimary)
	primary, _ := desc.Primary()
	assert.True(t, primary.AverageRTTSet)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&started), int32(1))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&succeeded), int32(1))
}

func TestMonitorFailureRetriesOnceThenResets(t *testing.T) {
	t.Parallel()

	errNetwork := errors.New("connection refused")

	ctrl := gomock.NewController(t)
	checker := NewMockChecker(ctrl)
	gomock.InOrder(
		checker.EXPECT().Check(gomock.Any(), gomock.Any()).Return(primaryHello("rs", 1, objectID(1), "a:27017"), nil),
		checker.EXPECT().Check(gomock.Any(), gomock.Any()).Return(description.Hello{}, errNetwork).MinTimes(2),
	)

	var mu sync.Mutex
	var failed int
	failedAtReset := -1
	resetOnce := make(chan struct{})
	monitor := &event.ServerMonitor{
		ServerHeartbeatFailed: func(e *event.ServerHeartbeatFailedEvent) {
			mu.Lock()
			defer mu.Unlock()
			assert.ErrorIs(t, e.Failure, errNetwork)
			failed++
		},
		PoolCleared: func(*event.PoolClearedEvent) {
			mu.Lock()
			defer mu.Unlock()
			if failedAtReset < 0 {
				failedAtReset = failed
				close(resetOnce)
			}
		},
	}

	topo, err := New(
		WithSeedList("a"),
		WithReplicaSetName("rs"),
		WithChecker(checker),
		WithHeartbeatInterval(time.Hour),
		WithMinHeartbeatInterval(10*time.Millisecond),
		WithServerMonitor(monitor),
	)
	noerr(t, err)

	sub, err := topo.Subscribe()
	noerr(t, err)

	noerr(t, topo.Connect(context.Background()))
	defer func() { noerr(t, topo.Disconnect(context.Background())) }()

	waitFor(t, sub, hasPrimary)
	topo.RequestImmediateCheck()

	select {
	case <-resetOnce:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the server to be reset")
	}

	mu.Lock()
	assert.Equal(t, 2, failedAtReset, "a failure right after a success is retried once before the reset")
	mu.Unlock()

	desc := waitFor(t, sub, func(d description.Topology) bool { return !hasPrimary(d) })
	a, ok := desc.Server("a:27017")
	require.True(t, ok)
	assert.Equal(t, description.Unknown, a.Kind)
	assert.ErrorIs(t, a.LastError, errNetwork)
	assert.GreaterOrEqual(t, topo.Generation("a:27017"), uint64(1))
}

func TestMonitorFollowsMembership(t *testing.T) {
	t.Parallel()

	var dropB int32
	var mu sync.Mutex
	checked := make(map[address.Address]int)

	checker := CheckerFunc(func(ctx context.Context, addr address.Address) (description.Hello, error) {
		mu.Lock()
		checked[addr]++
		mu.Unlock()

		switch addr {
		case "a:27017":
			if atomic.LoadInt32(&dropB) == 1 {
				return primaryHello("rs", 1, objectID(1), "a:27017"), nil
			}
			return primaryHello("rs", 1, objectID(1), "a:27017", "b:27017"), nil
		case "b:27017":
			return secondaryHello("rs", "a:27017", "b:27017"), nil
		}
		return description.Hello{}, errors.Errorf("unexpected check of %s", addr)
	})

	var closedMu sync.Mutex
	var closed []address.Address
	monitor := &event.ServerMonitor{
		ServerClosed: func(e *event.ServerClosedEvent) {
			closedMu.Lock()
			defer closedMu.Unlock()
			closed = append(closed, e.Address)
		},
	}

	topo, err := New(
		WithSeedList("a"),
		WithReplicaSetName("rs"),
		WithChecker(checker),
		WithHeartbeatInterval(time.Hour),
		WithMinHeartbeatInterval(0),
		WithServerMonitor(monitor),
	)
	noerr(t, err)

	sub, err := topo.Subscribe()
	noerr(t, err)
	noerr(t, topo.Connect(context.Background()))

	waitFor(t, sub, func(d description.Topology) bool {
		b, ok := d.Server("b:27017")
		return ok && b.Kind == description.RSSecondary
	})

	atomic.StoreInt32(&dropB, 1)
	topo.RequestImmediateCheck()
	waitFor(t, sub, func(d description.Topology) bool {
		_, ok := d.Server("b:27017")
		return !ok
	})

	closedMu.Lock()
	assert.Contains(t, closed, address.Address("b:27017"))
	closedMu.Unlock()

	require.Eventually(t, func() bool {
		topo.mu.Lock()
		defer topo.mu.Unlock()
		return len(topo.retired) == 0
	}, 5*time.Second, 5*time.Millisecond, "a removed server's monitor is released once it returns")

	noerr(t, topo.Disconnect(context.Background()))

	mu.Lock()
	after := checked["a:27017"] + checked["b:27017"]
	mu.Unlock()
	assert.GreaterOrEqual(t, after, 3)

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, after, checked["a:27017"]+checked["b:27017"], "no checks after disconnect")
	mu.Unlock()
}

func TestMonitorDisconnectTimeout(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	block := make(chan struct{})
	defer close(block)

	var enterOnce sync.Once
	checker := CheckerFunc(func(context.Context, address.Address) (description.Hello, error) {
		enterOnce.Do(func() { close(entered) })
		<-block
		return description.Hello{}, errors.New("unblocked")
	})

	topo, err := New(WithSeedList("a"), WithChecker(checker))
	noerr(t, err)
	noerr(t, topo.Connect(context.Background()))

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the first check")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = topo.Disconnect(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
