// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package description

import (
	"encoding/json"
	"fmt"

	"github.com/ikmak/mongo-sdam/address"
	"github.com/ikmak/mongo-sdam/bson/primitive"
)

// Topology contains information about a MongoDB cluster. A Topology is an
// immutable snapshot: callers may read it from any goroutine.
type Topology struct {
	Servers               []Server
	SetName               string
	Kind                  TopologyKind
	SessionTimeoutMinutes *int64
	MaxSetVersion         *uint32
	MaxElectionID         *primitive.ObjectID
	CompatibilityErr      error
}

// Server returns the server for the given address. Returns false if the server
// could not be found.
func (t Topology) Server(addr address.Address) (Server, bool) {
	addr = addr.Canonicalize()
	for _, server := range t.Servers {
		if server.Addr == addr {
			return server, true
		}
	}
	return Server{}, false
}

// Primary returns the server currently recorded as the writable primary.
func (t Topology) Primary() (Server, bool) {
	for _, server := range t.Servers {
		if server.Kind == RSPrimary {
			return server, true
		}
	}
	return Server{}, false
}

// Compatible reports whether every known server's wire version range overlaps
// the supported range.
func (t Topology) Compatible() bool {
	return t.CompatibilityErr == nil
}

// String implements the Stringer interface.
func (t Topology) String() string {
	var serversStr string
	for _, s := range t.Servers {
		serversStr += "{ " + s.String() + " }, "
	}
	return fmt.Sprintf("Type: %s, Servers: [%s]", t.Kind, serversStr)
}

type topologyJSON struct {
	Servers                      map[address.Address]Server `json:"servers"`
	SetName                      *string                    `json:"setName"`
	TopologyType                 TopologyKind               `json:"topologyType"`
	LogicalSessionTimeoutMinutes *int64                     `json:"logicalSessionTimeoutMinutes"`
	Compatible                   bool                       `json:"compatible"`
	MaxSetVersion                *uint32                    `json:"maxSetVersion"`
	MaxElectionID                *primitive.ObjectID        `json:"maxElectionId"`
}

// MarshalJSON emits the describe() snapshot in the shape asserted by the
// conformance fixtures, with explicit nulls for absent fields.
func (t Topology) MarshalJSON() ([]byte, error) {
	servers := make(map[address.Address]Server, len(t.Servers))
	for _, s := range t.Servers {
		servers[s.Addr] = s
	}
	return json.Marshal(topologyJSON{
		Servers:                      servers,
		SetName:                      optionalString(t.SetName),
		TopologyType:                 t.Kind,
		LogicalSessionTimeoutMinutes: t.SessionTimeoutMinutes,
		Compatible:                   t.Compatible(),
		MaxSetVersion:                t.MaxSetVersion,
		MaxElectionID:                t.MaxElectionID,
	})
}

// Equal compares two topology descriptions and returns true if they are equal.
func (t Topology) Equal(other Topology) bool {
	if t.Kind != other.Kind || t.SetName != other.SetName {
		return false
	}
	if !uint32PtrEqual(t.MaxSetVersion, other.MaxSetVersion) ||
		!objectIDPtrEqual(t.MaxElectionID, other.MaxElectionID) ||
		!int64PtrEqual(t.SessionTimeoutMinutes, other.SessionTimeoutMinutes) {
		return false
	}
	if t.Compatible() != other.Compatible() {
		return false
	}
	if len(t.Servers) != len(other.Servers) {
		return false
	}

	for _, s := range t.Servers {
		o, ok := other.Server(s.Addr)
		if !ok || !s.Equal(o) {
			return false
		}
	}

	return true
}
