// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"sort"

	"github.com/ikmak/mongo-sdam/address"
	"github.com/ikmak/mongo-sdam/bson/primitive"
	"github.com/ikmak/mongo-sdam/description"
	"github.com/ikmak/mongo-sdam/internal/ptrutil"
	"github.com/pkg/errors"
)

var (
	// SupportedWireVersions is the range of wire versions supported by the topology.
	SupportedWireVersions = description.NewVersionRange(MinSupportedMongoDBWireVersion, MaxSupportedMongoDBWireVersion)
)

const (
	// MinSupportedMongoDBVersion is the version string for the lowest MongoDB version supported.
	MinSupportedMongoDBVersion = "2.6"
	// MinSupportedMongoDBWireVersion is the lowest wire version supported.
	MinSupportedMongoDBWireVersion int32 = 2
	// MaxSupportedMongoDBWireVersion is the highest wire version supported.
	MaxSupportedMongoDBWireVersion int32 = 9
)

var (
	errStalePrimary = errors.New("was a primary, but its set version or election id is stale")
	errNewPrimary   = errors.New("was a primary, but a new primary was discovered")
)

type fsm struct {
	description.Topology
	seeds []address.Address
}

func newFSM() *fsm {
	return &fsm{}
}

// clone returns a copy of the fsm whose server slice can be mutated without
// touching f.
func (f *fsm) clone() *fsm {
	servers := make([]description.Server, len(f.Servers))
	copy(servers, f.Servers)

	next := *f
	next.Servers = servers
	return &next
}

// selectFSMSessionTimeout returns the minimum session timeout across the
// data-bearing servers. It returns nil if any of them lacks a timeout or if
// there are none.
func selectFSMSessionTimeout(servers []description.Server) *int64 {
	var min *int64
	found := false
	for _, s := range servers {
		if !s.DataBearing() {
			continue
		}
		if s.SessionTimeoutMinutes == nil {
			return nil
		}
		if !found {
			min = ptrutil.Ptr(*s.SessionTimeoutMinutes)
			found = true
			continue
		}
		min = ptrutil.MinInt64(min, s.SessionTimeoutMinutes)
	}
	return min
}

// apply should operate on immutable descriptions so we don't have to lock for
// the entire time we're applying the server description. On success the fsm
// holds the new topology and the returned server is what the topology now
// records for s.Addr (s itself if the address is no longer known). On error
// the fsm is left exactly as it was.
func (f *fsm) apply(s description.Server) (description.Topology, description.Server, error) {
	next := f.clone()
	if err := next.transition(s); err != nil {
		return f.Topology, s, err
	}

	next.finish()
	*f = *next

	if found, ok := f.findServer(s.Addr); ok {
		return f.Topology, found.server, nil
	}
	return f.Topology, s, nil
}

// transition runs the ordered update steps against f.
func (f *fsm) transition(s description.Server) error {
	old, ok := f.findServer(s.Addr)
	if !ok {
		return nil
	}

	if s.LastError != nil {
		f.setServer(old.index, s)
		if f.Kind.IsReplicaSet() {
			f.checkIfHasPrimary()
		}
		return nil
	}

	if description.CompareTopologyVersion(old.server.TopologyVersion, s.TopologyVersion) >= 0 {
		return nil
	}

	f.setServer(old.index, s)

	switch f.Kind {
	case description.TopologyKindUnknown:
		return f.applyToUnknown(s)
	case description.Sharded:
		return f.applyToSharded(s)
	case description.ReplicaSetNoPrimary:
		return f.applyToReplicaSetNoPrimary(s)
	case description.ReplicaSetWithPrimary:
		return f.applyToReplicaSetWithPrimary(s)
	case description.Single:
		return f.applyToSingle(s)
	}

	return newInvariantError(f.Kind, s, "unhandled topology kind")
}

// finish recomputes the aggregate fields derived from the server list.
func (f *fsm) finish() {
	sort.SliceStable(f.Servers, func(i, j int) bool {
		return f.Servers[i].Addr < f.Servers[j].Addr
	})
	f.SessionTimeoutMinutes = selectFSMSessionTimeout(f.Servers)
	f.CompatibilityErr = compatibilityErr(f.Servers)
}

func compatibilityErr(servers []description.Server) error {
	for _, server := range servers {
		if server.Kind == description.Unknown || server.Kind == description.PossiblePrimary {
			continue
		}
		if server.WireVersion == nil {
			continue
		}
		if server.WireVersion.Min > SupportedWireVersions.Max {
			return errors.Errorf(
				"server at %s requires wire version %d, but this topology only supports up to %d",
				server.Addr.String(),
				server.WireVersion.Min,
				SupportedWireVersions.Max,
			)
		}
		if server.WireVersion.Max < SupportedWireVersions.Min {
			return errors.Errorf(
				"server at %s reports wire version %d, but this topology requires at least %d (MongoDB %s)",
				server.Addr.String(),
				server.WireVersion.Max,
				SupportedWireVersions.Min,
				MinSupportedMongoDBVersion,
			)
		}
	}
	return nil
}

func (f *fsm) applyToReplicaSetNoPrimary(s description.Server) error {
	switch s.Kind {
	case description.Standalone, description.Mongos:
		f.removeServerByAddr(s.Addr)
	case description.RSPrimary:
		f.updateRSFromPrimary(s)
	case description.RSSecondary, description.RSArbiter, description.RSOther:
		f.updateRSWithoutPrimary(s)
	case description.Unknown, description.RSGhost:
	default:
		return newInvariantError(f.Kind, s, "unexpected server kind")
	}

	return nil
}

func (f *fsm) applyToReplicaSetWithPrimary(s description.Server) error {
	switch s.Kind {
	case description.Standalone, description.Mongos:
		f.removeServerByAddr(s.Addr)
		f.checkIfHasPrimary()
	case description.RSPrimary:
		f.updateRSFromPrimary(s)
	case description.RSSecondary, description.RSArbiter, description.RSOther:
		f.updateRSWithPrimaryFromMember(s)
	case description.Unknown, description.RSGhost:
		f.checkIfHasPrimary()
	default:
		return newInvariantError(f.Kind, s, "unexpected server kind")
	}

	return nil
}

func (f *fsm) applyToSharded(s description.Server) error {
	switch s.Kind {
	case description.Mongos, description.Unknown:
	case description.Standalone, description.RSPrimary, description.RSSecondary, description.RSArbiter,
		description.RSOther, description.RSGhost:
		f.removeServerByAddr(s.Addr)
	default:
		return newInvariantError(f.Kind, s, "unexpected server kind")
	}

	return nil
}

func (f *fsm) applyToSingle(s description.Server) error {
	switch s.Kind {
	case description.Unknown, description.RSGhost:
	case description.Standalone, description.Mongos:
		if f.SetName != "" {
			s = description.NewServerFromError(s.Addr, errors.Errorf("server is a %s but the topology expects replica set %q", s.Kind, f.SetName), s.TopologyVersion)
			f.replaceServer(s)
		}
		f.collapseTo(s.Addr)
	case description.RSPrimary, description.RSSecondary, description.RSArbiter, description.RSOther:
		if f.SetName != "" && f.SetName != s.SetName {
			s = description.NewServerFromError(s.Addr, errors.Errorf("server reports set name %q but the topology expects %q", s.SetName, f.SetName), s.TopologyVersion)
			f.replaceServer(s)
		}
		f.collapseTo(s.Addr)
	default:
		return newInvariantError(f.Kind, s, "unexpected server kind")
	}

	return nil
}

func (f *fsm) applyToUnknown(s description.Server) error {
	switch s.Kind {
	case description.Mongos:
		f.setKind(description.Sharded)
	case description.RSPrimary:
		f.updateRSFromPrimary(s)
	case description.RSSecondary, description.RSArbiter, description.RSOther:
		f.setKind(description.ReplicaSetNoPrimary)
		f.updateRSWithoutPrimary(s)
	case description.Standalone:
		f.updateUnknownWithStandalone(s)
	case description.Unknown, description.RSGhost:
	default:
		return newInvariantError(f.Kind, s, "unexpected server kind")
	}

	return nil
}

func (f *fsm) checkIfHasPrimary() {
	if _, ok := f.findPrimary(); ok {
		f.setKind(description.ReplicaSetWithPrimary)
	} else {
		f.setKind(description.ReplicaSetNoPrimary)
	}
}

// isStalePrimary reports whether the recorded election maxima are greater
// than the pair reported by s, comparing setVersion first.
func (f *fsm) isStalePrimary(s description.Server) bool {
	if s.SetVersion == nil || s.ElectionID == nil || f.MaxSetVersion == nil {
		return false
	}
	switch ptrutil.CompareUint32(f.MaxSetVersion, s.SetVersion) {
	case 1:
		return true
	case 0:
		return f.MaxElectionID != nil && f.MaxElectionID.Compare(*s.ElectionID) > 0
	}
	return false
}

// setMaxElection is the only writer of MaxSetVersion and MaxElectionID. The
// (setVersion, electionId) pair it records never moves backward.
func (f *fsm) setMaxElection(setVersion *uint32, electionID *primitive.ObjectID) {
	if setVersion == nil {
		return
	}

	switch ptrutil.CompareUint32(setVersion, f.MaxSetVersion) {
	case 1, 2:
		f.MaxSetVersion = ptrutil.Ptr(*setVersion)
		if electionID != nil {
			f.MaxElectionID = ptrutil.Ptr(*electionID)
		}
	case 0:
		if electionID != nil && (f.MaxElectionID == nil || electionID.Compare(*f.MaxElectionID) > 0) {
			f.MaxElectionID = ptrutil.Ptr(*electionID)
		}
	}
}

func (f *fsm) updateRSFromPrimary(s description.Server) {
	if f.SetName == "" {
		f.SetName = s.SetName
	} else if f.SetName != s.SetName {
		f.removeServerByAddr(s.Addr)
		f.checkIfHasPrimary()
		return
	}

	if f.isStalePrimary(s) {
		f.replaceServer(description.NewServerFromError(s.Addr, errStalePrimary, s.TopologyVersion))
		f.checkIfHasPrimary()
		return
	}

	f.setMaxElection(s.SetVersion, s.ElectionID)

	for i, server := range f.Servers {
		if server.Kind == description.RSPrimary && server.Addr != s.Addr {
			f.setServer(i, description.NewServerFromError(server.Addr, errNewPrimary, nil))
		}
	}

	f.addMembers(s)

	for j := len(f.Servers) - 1; j >= 0; j-- {
		if !s.HasMember(f.Servers[j].Addr) {
			f.removeServer(j)
		}
	}

	f.checkIfHasPrimary()
}

func (f *fsm) updateRSWithPrimaryFromMember(s description.Server) {
	if f.SetName != s.SetName {
		f.removeServerByAddr(s.Addr)
		f.checkIfHasPrimary()
		return
	}

	if s.CanonicalAddr != "" && s.Addr != s.CanonicalAddr {
		f.removeServerByAddr(s.Addr)
		f.checkIfHasPrimary()
		return
	}

	// The member was the primary; it is now handled as in ReplicaSetNoPrimary.
	if _, ok := f.findPrimary(); !ok {
		f.setKind(description.ReplicaSetNoPrimary)
		f.updateRSWithoutPrimary(s)
	}
}

func (f *fsm) updateRSWithoutPrimary(s description.Server) {
	if f.SetName == "" {
		f.SetName = s.SetName
	} else if f.SetName != s.SetName {
		f.removeServerByAddr(s.Addr)
		return
	}

	f.addMembers(s)
	f.markPossiblePrimary(s.Primary)

	if s.CanonicalAddr != "" && s.Addr != s.CanonicalAddr {
		f.removeServerByAddr(s.Addr)
	}
}

func (f *fsm) updateUnknownWithStandalone(s description.Server) {
	if len(f.seeds) > 1 {
		f.removeServerByAddr(s.Addr)
		return
	}

	f.setKind(description.Single)
}

// markPossiblePrimary applies a member's primary hint: a known Unknown server
// at that address becomes PossiblePrimary.
func (f *fsm) markPossiblePrimary(addr address.Address) {
	if addr == "" {
		return
	}
	if found, ok := f.findServer(addr); ok && found.server.Kind == description.Unknown {
		server := description.NewDefaultServer(addr)
		server.Kind = description.PossiblePrimary
		server.TopologyVersion = found.server.TopologyVersion
		f.setServer(found.index, server)
	}
}

func (f *fsm) addMembers(s description.Server) {
	for _, member := range s.Members() {
		if _, ok := f.findServer(member); !ok {
			f.addServer(member)
		}
	}
}

// collapseTo removes every server except addr.
func (f *fsm) collapseTo(addr address.Address) {
	for j := len(f.Servers) - 1; j >= 0; j-- {
		if f.Servers[j].Addr != addr {
			f.removeServer(j)
		}
	}
}

func (f *fsm) addServer(addr address.Address) {
	f.Servers = append(f.Servers, description.NewDefaultServer(addr.Canonicalize()))
}

func (f *fsm) findPrimary() (int, bool) {
	for i, s := range f.Servers {
		if s.Kind == description.RSPrimary {
			return i, true
		}
	}

	return 0, false
}

type foundServer struct {
	index  int
	server description.Server
}

func (f *fsm) findServer(addr address.Address) (foundServer, bool) {
	canon := addr.Canonicalize()
	for i, s := range f.Servers {
		if canon == s.Addr {
			return foundServer{index: i, server: s}, true
		}
	}

	return foundServer{}, false
}

func (f *fsm) removeServer(i int) {
	f.Servers = append(f.Servers[:i], f.Servers[i+1:]...)
}

func (f *fsm) removeServerByAddr(addr address.Address) {
	if found, ok := f.findServer(addr); ok {
		f.removeServer(found.index)
	}
}

func (f *fsm) replaceServer(s description.Server) bool {
	if found, ok := f.findServer(s.Addr); ok {
		f.setServer(found.index, s)
		return true
	}
	return false
}

func (f *fsm) setServer(i int, s description.Server) {
	f.Servers[i] = s
}

func (f *fsm) setKind(k description.TopologyKind) {
	f.Kind = k
}
