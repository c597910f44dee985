// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package description

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ikmak/mongo-sdam/address"
	"github.com/ikmak/mongo-sdam/bson/primitive"
	"github.com/pkg/errors"
)

// UnsetRTT is the unset value for a round trip time.
const UnsetRTT = -1 * time.Millisecond

// Server contains information about a node in a cluster. This is created from
// a hello command. A Server is a value: the topology replaces it wholesale on
// every update and never mutates one in place.
type Server struct {
	Addr address.Address

	AverageRTT            time.Duration
	AverageRTTSet         bool
	CanonicalAddr         address.Address
	ElectionID            *primitive.ObjectID
	LastError             error
	LastUpdateTime        time.Time
	Hosts                 []address.Address
	Arbiters              []address.Address
	Passives              []address.Address
	Primary               address.Address
	SessionTimeoutMinutes *int64
	SetName               string
	SetVersion            *uint32
	Kind                  ServerKind
	TopologyVersion       *TopologyVersion
	WireVersion           *VersionRange
}

// NewDefaultServer creates a new unknown server description with the given address.
func NewDefaultServer(addr address.Address) Server {
	return Server{Addr: addr.Canonicalize()}
}

// NewServerFromError creates a new unknown server description with the given
// parameters. The topologyVersion is carried forward so later stale responses
// can still be rejected.
func NewServerFromError(addr address.Address, err error, tv *TopologyVersion) Server {
	return Server{
		Addr:            addr.Canonicalize(),
		LastError:       err,
		TopologyVersion: tv,
	}
}

// NewServer creates a new server description from the given hello response.
// All addresses in the response are canonicalized and the set name is lower
// cased before classification.
func NewServer(addr address.Address, hello Hello) Server {
	addr = addr.Canonicalize()

	if hello.OK != 1 {
		return NewServerFromError(addr, errors.Errorf("server at %s replied with ok: %v", addr, hello.OK), hello.TopologyVersion)
	}

	desc := Server{
		Addr:                  addr,
		CanonicalAddr:         address.Address(hello.Me).Canonicalize(),
		ElectionID:            hello.ElectionID,
		LastUpdateTime:        time.Now().UTC(),
		Hosts:                 canonicalize(hello.Hosts),
		Arbiters:              canonicalize(hello.Arbiters),
		Passives:              canonicalize(hello.Passives),
		Primary:               address.Address(hello.Primary).Canonicalize(),
		SessionTimeoutMinutes: hello.LogicalSessionTimeoutMinutes,
		SetName:               strings.ToLower(hello.SetName),
		SetVersion:            hello.SetVersion,
		TopologyVersion:       hello.TopologyVersion,
		WireVersion: &VersionRange{
			Min: hello.MinWireVersion,
			Max: hello.MaxWireVersion,
		},
	}
	desc.Kind = classify(hello, desc.SetName)

	return desc
}

// classify maps a normalized hello response to a server kind. The checks run
// in priority order; the first match wins.
func classify(hello Hello, setName string) ServerKind {
	switch {
	case hello.ArbiterOnly && setName != "":
		return RSArbiter
	case setName == "" && !hello.IsReplicaSet && hello.Msg != "isdbgrid":
		return Standalone
	case hello.IsReplicaSet:
		return RSGhost
	case hello.IsPrimary() && setName != "":
		return RSPrimary
	case setName != "" && (hello.Hidden || (!hello.IsPrimary() && !hello.Secondary && !hello.ArbiterOnly)):
		return RSOther
	case hello.Secondary && setName != "":
		return RSSecondary
	case hello.Msg == "isdbgrid":
		return Mongos
	}
	return Unknown
}

func canonicalize(hosts []string) []address.Address {
	if len(hosts) == 0 {
		return nil
	}
	addrs := make([]address.Address, 0, len(hosts))
	for _, h := range hosts {
		addrs = append(addrs, address.Address(h).Canonicalize())
	}
	return addrs
}

// Members returns every address the server reports as part of its replica
// set: hosts, then passives, then arbiters.
func (s Server) Members() []address.Address {
	members := make([]address.Address, 0, len(s.Hosts)+len(s.Passives)+len(s.Arbiters))
	members = append(members, s.Hosts...)
	members = append(members, s.Passives...)
	members = append(members, s.Arbiters...)
	return members
}

// HasMember reports whether addr is one of the server's reported members.
func (s Server) HasMember(addr address.Address) bool {
	for _, m := range s.Members() {
		if m == addr {
			return true
		}
	}
	return false
}

// DataBearing reports whether the server's session timeout contributes to the
// topology's logicalSessionTimeoutMinutes.
func (s Server) DataBearing() bool {
	switch s.Kind {
	case RSPrimary, RSSecondary, Mongos, Standalone:
		return true
	}
	return false
}

// SetAverageRTT sets the average round trip time for this server description.
func (s Server) SetAverageRTT(rtt time.Duration) Server {
	s.AverageRTT = rtt
	s.AverageRTTSet = rtt != UnsetRTT
	return s
}

// String implements the Stringer interface.
func (s Server) String() string {
	str := fmt.Sprintf("Addr: %s, Type: %s", s.Addr, s.Kind)
	if s.WireVersion != nil && s.Kind != Unknown {
		str += fmt.Sprintf(", Wire Version: %s", s.WireVersion)
	}
	if s.SetName != "" {
		str += fmt.Sprintf(", Set Name: %s", s.SetName)
	}
	if s.AverageRTTSet {
		str += fmt.Sprintf(", Average RTT: %d", s.AverageRTT)
	}
	if s.LastError != nil {
		str += fmt.Sprintf(", Last error: %s", s.LastError)
	}
	return str
}

type serverJSON struct {
	Address                      address.Address     `json:"address"`
	Type                         ServerKind          `json:"type"`
	SetName                      *string             `json:"setName"`
	SetVersion                   *uint32             `json:"setVersion"`
	ElectionID                   *primitive.ObjectID `json:"electionId"`
	TopologyVersion              *TopologyVersion    `json:"topologyVersion"`
	MinWireVersion               *int32              `json:"minWireVersion"`
	MaxWireVersion               *int32              `json:"maxWireVersion"`
	Me                           *address.Address    `json:"me"`
	Primary                      *address.Address    `json:"primary"`
	Hosts                        []address.Address   `json:"hosts"`
	Arbiters                     []address.Address   `json:"arbiters"`
	Passives                     []address.Address   `json:"passives"`
	LogicalSessionTimeoutMinutes *int64              `json:"logicalSessionTimeoutMinutes"`
}

// MarshalJSON emits the snapshot shape asserted by the conformance fixtures.
// Absent fields are explicit nulls, never omitted.
func (s Server) MarshalJSON() ([]byte, error) {
	out := serverJSON{
		Address:                      s.Addr,
		Type:                         s.Kind,
		SetName:                      optionalString(s.SetName),
		SetVersion:                   s.SetVersion,
		ElectionID:                   s.ElectionID,
		TopologyVersion:              s.TopologyVersion,
		Hosts:                        nonNil(s.Hosts),
		Arbiters:                     nonNil(s.Arbiters),
		Passives:                     nonNil(s.Passives),
		LogicalSessionTimeoutMinutes: s.SessionTimeoutMinutes,
	}
	if s.WireVersion != nil {
		out.MinWireVersion = &s.WireVersion.Min
		out.MaxWireVersion = &s.WireVersion.Max
	}
	if s.CanonicalAddr != "" {
		out.Me = &s.CanonicalAddr
	}
	if s.Primary != "" {
		out.Primary = &s.Primary
	}
	return json.Marshal(out)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nonNil(addrs []address.Address) []address.Address {
	if addrs == nil {
		return []address.Address{}
	}
	return addrs
}

// Equal compares two server descriptions and returns true if they are equal.
// RTT and update times are not compared.
func (s Server) Equal(other Server) bool {
	if s.CanonicalAddr.String() != other.CanonicalAddr.String() {
		return false
	}

	if !sliceAddressEqual(s.Arbiters, other.Arbiters) {
		return false
	}

	if !sliceAddressEqual(s.Hosts, other.Hosts) {
		return false
	}

	if !sliceAddressEqual(s.Passives, other.Passives) {
		return false
	}

	if s.Primary != other.Primary {
		return false
	}

	if s.SetName != other.SetName {
		return false
	}

	if s.Kind != other.Kind {
		return false
	}

	if (s.LastError == nil) != (other.LastError == nil) {
		return false
	}
	if s.LastError != nil && s.LastError.Error() != other.LastError.Error() {
		return false
	}

	if !versionRangeEqual(s.WireVersion, other.WireVersion) {
		return false
	}

	if !uint32PtrEqual(s.SetVersion, other.SetVersion) {
		return false
	}

	if !objectIDPtrEqual(s.ElectionID, other.ElectionID) {
		return false
	}

	if !int64PtrEqual(s.SessionTimeoutMinutes, other.SessionTimeoutMinutes) {
		return false
	}

	return topologyVersionEqual(s.TopologyVersion, other.TopologyVersion)
}

func sliceAddressEqual(s1, s2 []address.Address) bool {
	if len(s1) != len(s2) {
		return false
	}

	for i := range s1 {
		if s1[i] != s2[i] {
			return false
		}
	}

	return true
}

func versionRangeEqual(a, b *VersionRange) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func uint32PtrEqual(a, b *uint32) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func objectIDPtrEqual(a, b *primitive.ObjectID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func topologyVersionEqual(a, b *TopologyVersion) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
