// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"time"

	"github.com/ikmak/mongo-sdam/address"
	"github.com/ikmak/mongo-sdam/description"
	"github.com/ikmak/mongo-sdam/event"
	"github.com/ikmak/mongo-sdam/internal/logger"
)

// publishes a ServerDescriptionChangedEvent to indicate the server description has changed
func (t *Topology) publishServerDescriptionChangedEvent(prev description.Server, current description.Server) {
	serverDescriptionChanged := &event.ServerDescriptionChangedEvent{
		Address:             current.Addr,
		TopologyID:          t.id,
		PreviousDescription: prev,
		NewDescription:      current,
	}

	if t.cfg.serverMonitor != nil && t.cfg.serverMonitor.ServerDescriptionChanged != nil {
		t.cfg.serverMonitor.ServerDescriptionChanged(serverDescriptionChanged)
	}
}

// publishes a ServerOpeningEvent to indicate the server is being initialized
func (t *Topology) publishServerOpeningEvent(addr address.Address) {
	serverOpening := &event.ServerOpeningEvent{
		Address:    addr,
		TopologyID: t.id,
	}

	if t.cfg.serverMonitor != nil && t.cfg.serverMonitor.ServerOpening != nil {
		t.cfg.serverMonitor.ServerOpening(serverOpening)
	}
}

// publishes a ServerClosedEvent to indicate the server has been removed
func (t *Topology) publishServerClosedEvent(addr address.Address) {
	serverClosed := &event.ServerClosedEvent{
		Address:    addr,
		TopologyID: t.id,
	}

	if t.cfg.serverMonitor != nil && t.cfg.serverMonitor.ServerClosed != nil {
		t.cfg.serverMonitor.ServerClosed(serverClosed)
	}
}

// publishes a TopologyDescriptionChangedEvent to indicate the topology description has changed
func (t *Topology) publishTopologyDescriptionChangedEvent(prev description.Topology, current description.Topology) {
	topologyDescriptionChanged := &event.TopologyDescriptionChangedEvent{
		TopologyID:          t.id,
		PreviousDescription: prev,
		NewDescription:      current,
	}

	if t.cfg.serverMonitor != nil && t.cfg.serverMonitor.TopologyDescriptionChanged != nil {
		t.cfg.serverMonitor.TopologyDescriptionChanged(topologyDescriptionChanged)
	}
}

// publishes a TopologyOpeningEvent to indicate the topology is being initialized
func (t *Topology) publishTopologyOpeningEvent() {
	topologyOpening := &event.TopologyOpeningEvent{
		TopologyID: t.id,
	}

	if t.cfg.serverMonitor != nil && t.cfg.serverMonitor.TopologyOpening != nil {
		t.cfg.serverMonitor.TopologyOpening(topologyOpening)
	}
}

// publishes a TopologyClosedEvent to indicate the topology has been closed
func (t *Topology) publishTopologyClosedEvent() {
	topologyClosed := &event.TopologyClosedEvent{
		TopologyID: t.id,
	}

	if t.cfg.serverMonitor != nil && t.cfg.serverMonitor.TopologyClosed != nil {
		t.cfg.serverMonitor.TopologyClosed(topologyClosed)
	}
}

func (t *Topology) publishServerHeartbeatStartedEvent(addr address.Address) {
	serverHeartbeatStarted := &event.ServerHeartbeatStartedEvent{
		Address: addr,
	}

	if t.cfg.serverMonitor != nil && t.cfg.serverMonitor.ServerHeartbeatStarted != nil {
		t.cfg.serverMonitor.ServerHeartbeatStarted(serverHeartbeatStarted)
	}
}

func (t *Topology) publishServerHeartbeatSucceededEvent(addr address.Address, duration time.Duration, desc description.Server) {
	t.metrics.heartbeats.WithLabelValues(outcomeSucceeded).Observe(duration.Seconds())
	t.logServerMessage(logger.LevelDebug, logger.ComponentTopology, logger.TopologyServerHeartbeatSucceed, addr,
		logger.KeyDurationMS, duration.Milliseconds())

	serverHeartbeatSucceeded := &event.ServerHeartbeatSucceededEvent{
		Address:  addr,
		Duration: duration,
		Reply:    desc,
	}

	if t.cfg.serverMonitor != nil && t.cfg.serverMonitor.ServerHeartbeatSucceeded != nil {
		t.cfg.serverMonitor.ServerHeartbeatSucceeded(serverHeartbeatSucceeded)
	}
}

func (t *Topology) publishServerHeartbeatFailedEvent(addr address.Address, duration time.Duration, err error) {
	t.metrics.heartbeats.WithLabelValues(outcomeFailed).Observe(duration.Seconds())
	t.logServerMessage(logger.LevelDebug, logger.ComponentTopology, logger.TopologyServerHeartbeatFailed, addr,
		logger.KeyDurationMS, duration.Milliseconds(),
		logger.KeyFailure, err.Error())

	serverHeartbeatFailed := &event.ServerHeartbeatFailedEvent{
		Address:  addr,
		Duration: duration,
		Failure:  err,
	}

	if t.cfg.serverMonitor != nil && t.cfg.serverMonitor.ServerHeartbeatFailed != nil {
		t.cfg.serverMonitor.ServerHeartbeatFailed(serverHeartbeatFailed)
	}
}

func (t *Topology) publishPoolClearedEvent(addr address.Address, generation uint64) {
	poolCleared := &event.PoolClearedEvent{
		Address:    addr,
		TopologyID: t.id,
		Generation: generation,
	}

	if t.cfg.serverMonitor != nil && t.cfg.serverMonitor.PoolCleared != nil {
		t.cfg.serverMonitor.PoolCleared(poolCleared)
	}
}
