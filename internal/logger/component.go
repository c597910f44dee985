// Copyright (C) MongoDB, Inc. 2023-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package logger

import (
	"net"
	"os"
	"strconv"

	"github.com/ikmak/mongo-sdam/address"
)

// Log keys shared by the topology and its monitors.
const (
	KeyAverageRTTMS        = "averageRTTMS"
	KeyAwaited             = "awaited"
	KeyDurationMS          = "durationMS"
	KeyError               = "error"
	KeyFailure             = "failure"
	KeyMessage             = "message"
	KeyMinRTTMS            = "minRTTMS"
	KeyNewDescription      = "newDescription"
	KeyPreviousDescription = "previousDescription"
	KeyReason              = "reason"
	KeyRTT90MS             = "rtt90MS"
	KeyServerHost          = "serverHost"
	KeyServerPort          = "serverPort"
	KeySetName             = "setName"
	KeyTopologyID          = "topologyId"
	KeyTopologyType        = "topologyType"
)

// KeyValues is a list of key-value pairs.
type KeyValues []interface{}

// Add adds a key-value pair to an instance of a KeyValues list.
func (kvs *KeyValues) Add(key string, value interface{}) {
	*kvs = append(*kvs, key, value)
}

// Topology log messages.
const (
	TopologyOpening                = "Starting topology monitoring"
	TopologyClosed                 = "Stopped topology monitoring"
	TopologyDescriptionChanged     = "Topology description changed"
	TopologyServerOpening          = "Starting server monitoring"
	TopologyServerClosed           = "Stopped server monitoring"
	TopologyServerHeartbeatFailed  = "Server heartbeat failed"
	TopologyServerHeartbeatSucceed = "Server heartbeat succeeded"
	TopologyServerRTTUpdated       = "Server round trip time updated"
	TopologyStaleResponse          = "Discarded stale server response"
	TopologyStaleError             = "Ignored stale application error"
	TopologyServerReset            = "Server marked unknown"
	TopologyInvariantViolation     = "Topology update aborted"
	ServerSelectionFailed          = "Server selection failed"
	ServerSelectionSucceeded       = "Server selection succeeded"
)

// Component is an enumeration representing the "components" which can be
// logged against. A LogLevel can be configured on a per-component basis.
type Component int

const (
	// ComponentAll enables logging for all components.
	ComponentAll Component = iota

	// ComponentTopology enables topology logging.
	ComponentTopology

	// ComponentServerSelection enables server selection logging.
	ComponentServerSelection

	// ComponentConnection enables connection services logging.
	ComponentConnection
)

const (
	mongoDBLogAllEnvVar             = "MONGODB_LOG_ALL"
	mongoDBLogTopologyEnvVar        = "MONGODB_LOG_TOPOLOGY"
	mongoDBLogServerSelectionEnvVar = "MONGODB_LOG_SERVER_SELECTION"
	mongoDBLogConnectionEnvVar      = "MONGODB_LOG_CONNECTION"
)

var componentEnvVarMap = map[string]Component{
	mongoDBLogAllEnvVar:             ComponentAll,
	mongoDBLogTopologyEnvVar:        ComponentTopology,
	mongoDBLogServerSelectionEnvVar: ComponentServerSelection,
	mongoDBLogConnectionEnvVar:      ComponentConnection,
}

// EnvHasComponentVariables returns true if the environment contains any of the
// component environment variables.
func EnvHasComponentVariables() bool {
	for envVar := range componentEnvVarMap {
		if os.Getenv(envVar) != "" {
			return true
		}
	}

	return false
}

// SerializeServer prefixes kvs with the host and port of addr. Unix socket
// addresses have no port.
func SerializeServer(addr address.Address, kvs ...interface{}) KeyValues {
	out := KeyValues{}
	out.Add(KeyServerHost, addr.Host())

	if addr.Network() != "unix" {
		if _, portStr, err := net.SplitHostPort(addr.String()); err == nil {
			if port, err := strconv.ParseInt(portStr, 10, 32); err == nil {
				out.Add(KeyServerPort, int(port))
			}
		}
	}

	return append(out, kvs...)
}
