// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package event defines the callbacks a topology invokes as its view of the
// deployment changes.
package event

import (
	"time"

	"github.com/google/uuid"
	"github.com/ikmak/mongo-sdam/address"
	"github.com/ikmak/mongo-sdam/description"
)

// ServerDescriptionChangedEvent represents a server description change.
type ServerDescriptionChangedEvent struct {
	Address             address.Address
	TopologyID          uuid.UUID
	PreviousDescription description.Server
	NewDescription      description.Server
}

// ServerOpeningEvent is an event generated when the server is initialized.
type ServerOpeningEvent struct {
	Address    address.Address
	TopologyID uuid.UUID
}

// ServerClosedEvent is an event generated when the server is closed.
type ServerClosedEvent struct {
	Address    address.Address
	TopologyID uuid.UUID
}

// TopologyDescriptionChangedEvent represents a topology description change.
type TopologyDescriptionChangedEvent struct {
	TopologyID          uuid.UUID
	PreviousDescription description.Topology
	NewDescription      description.Topology
}

// TopologyOpeningEvent is an event generated when the topology is initialized.
type TopologyOpeningEvent struct {
	TopologyID uuid.UUID
}

// TopologyClosedEvent is an event generated when the topology is closed.
type TopologyClosedEvent struct {
	TopologyID uuid.UUID
}

// ServerHeartbeatStartedEvent is an event generated when the hello command is started.
type ServerHeartbeatStartedEvent struct {
	Address address.Address
	Awaited bool
}

// ServerHeartbeatSucceededEvent is an event generated when the hello succeeds.
type ServerHeartbeatSucceededEvent struct {
	Address  address.Address
	Duration time.Duration
	Reply    description.Server
	Awaited  bool
}

// ServerHeartbeatFailedEvent is an event generated when the hello fails.
type ServerHeartbeatFailedEvent struct {
	Address  address.Address
	Duration time.Duration
	Failure  error
	Awaited  bool
}

// PoolClearedEvent is generated when an application error bumps the
// connection generation of a server.
type PoolClearedEvent struct {
	Address    address.Address
	TopologyID uuid.UUID
	Generation uint64
}

// ServerMonitor represents a monitor that is triggered for different server events. The topology
// reports changes in its representation of the deployment, and heartbeats are sent to individual
// servers to check their current status.
type ServerMonitor struct {
	ServerDescriptionChanged   func(*ServerDescriptionChangedEvent)
	ServerOpening              func(*ServerOpeningEvent)
	ServerClosed               func(*ServerClosedEvent)
	TopologyDescriptionChanged func(*TopologyDescriptionChangedEvent)
	TopologyOpening            func(*TopologyOpeningEvent)
	TopologyClosed             func(*TopologyClosedEvent)
	ServerHeartbeatStarted     func(*ServerHeartbeatStartedEvent)
	ServerHeartbeatSucceeded   func(*ServerHeartbeatSucceededEvent)
	ServerHeartbeatFailed      func(*ServerHeartbeatFailedEvent)
	PoolCleared                func(*PoolClearedEvent)
}
