// Copyright (C) MongoDB, Inc. 2023-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"testing"

	"github.com/ikmak/mongo-sdam/address"
	"github.com/ikmak/mongo-sdam/bson/primitive"
	"github.com/ikmak/mongo-sdam/description"
	"github.com/ikmak/mongo-sdam/internal/ptrutil"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var propHosts = []string{"a:27017", "b:27017", "c:27017", "d:27017"}

// Roles of a generated input.
const (
	rolePrimary = iota
	roleSecondary
	roleArbiter
	roleGhost
	roleStandalone
	roleMongos
	roleFailedCheck
	roleNotPrimaryError
	roleCount
)

// sdamInput is one randomly generated hello response or application error.
type sdamInput struct {
	Addr       int
	Role       int
	SetName    string
	SetVersion uint32
	ElectionID byte
	Hosts      []int
	Primary    int // index into propHosts, -1 for none
	MeMismatch bool
	MinWire    int32
	MaxWire    int32
	Timeout    int64 // 0 means absent
}

func (in sdamInput) addr() address.Address {
	return address.Address(propHosts[in.Addr])
}

func (in sdamInput) hello() description.Hello {
	h := description.Hello{
		OK:             1,
		MinWireVersion: in.MinWire,
		MaxWireVersion: in.MaxWire,
	}
	if in.Timeout > 0 {
		h.LogicalSessionTimeoutMinutes = ptrutil.Ptr(in.Timeout)
	}

	switch in.Role {
	case roleStandalone:
		h.IsWritablePrimary = true
		return h
	case roleMongos:
		h.IsWritablePrimary = true
		h.Msg = "isdbgrid"
		return h
	case roleGhost:
		h.IsReplicaSet = true
		return h
	case roleFailedCheck:
		h.OK = 0
		return h
	}

	h.SetName = in.SetName
	for _, i := range in.Hosts {
		h.Hosts = append(h.Hosts, propHosts[i])
	}
	if in.Primary >= 0 {
		h.Primary = propHosts[in.Primary]
	}
	if in.MeMismatch {
		h.Me = propHosts[(in.Addr+1)%len(propHosts)]
	}

	switch in.Role {
	case rolePrimary:
		h.IsWritablePrimary = true
		h.SetVersion = ptrutil.Ptr(in.SetVersion)
		h.ElectionID = objectID(in.ElectionID)
	case roleSecondary:
		h.Secondary = true
	case roleArbiter:
		h.ArbiterOnly = true
	}
	return h
}

// apply feeds the input to topo.
func (in sdamInput) apply(topo *Topology) error {
	if in.Role == roleNotPrimaryError {
		_ = topo.HandleError(ApplicationError{
			Address:        in.addr(),
			Kind:           CommandError,
			When:           AfterHandshake,
			MaxWireVersion: in.MaxWire,
			Generation:     topo.Generation(in.addr()),
			Response:       &description.ErrorDocument{Code: 10107},
		})
		return nil
	}
	return topo.UpdateServerDescription(in.addr(), in.hello())
}

func genSDAMInput() gopter.Gen {
	wireVersions := []int32{9, 9, 8, 6, 1}

	return func(genParams *gopter.GenParameters) *gopter.GenResult {
		rng := genParams.Rng
		in := sdamInput{
			Addr:       rng.Intn(len(propHosts)),
			Role:       rng.Intn(roleCount),
			SetName:    "rs",
			SetVersion: uint32(rng.Intn(3) + 1),
			ElectionID: byte(rng.Intn(3) + 1),
			Primary:    rng.Intn(len(propHosts)+1) - 1,
			MeMismatch: rng.Intn(10) == 0,
			MaxWire:    wireVersions[rng.Intn(len(wireVersions))],
		}
		if rng.Intn(6) == 0 {
			in.SetName = "other"
		}
		if rng.Intn(10) == 0 {
			in.MinWire = 12
			in.MaxWire = 13
		}
		if rng.Intn(4) != 0 {
			in.Timeout = int64(rng.Intn(30) + 1)
		}
		for i := range propHosts {
			if i == in.Addr && rng.Intn(5) != 0 || rng.Intn(2) == 0 {
				in.Hosts = append(in.Hosts, i)
			}
		}

		return gopter.NewGenResult(in, gopter.NoShrinker)
	}
}

func genSDAMInputs() gopter.Gen {
	return gen.SliceOfN(30, genSDAMInput())
}

func newPropTopology(replicaSet bool) *Topology {
	opts := []Option{WithSeedList(propHosts[:3]...)}
	if replicaSet {
		opts = append(opts, WithReplicaSetName("rs"))
	}
	topo, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return topo
}

func comparePair(sv1 *uint32, eid1 *primitive.ObjectID, sv2 *uint32, eid2 *primitive.ObjectID) int {
	if c := ptrutil.CompareUint32(sv1, sv2); c != 0 {
		return c
	}
	switch {
	case eid1 == nil && eid2 == nil:
		return 0
	case eid1 == nil:
		return -1
	case eid2 == nil:
		return 1
	}
	return eid1.Compare(*eid2)
}

func countPrimaries(desc description.Topology) int {
	n := 0
	for _, s := range desc.Servers {
		if s.Kind == description.RSPrimary {
			n++
		}
	}
	return n
}

func expectedSessionTimeout(desc description.Topology) *int64 {
	var min *int64
	for _, s := range desc.Servers {
		if !s.DataBearing() {
			continue
		}
		if s.SessionTimeoutMinutes == nil {
			return nil
		}
		if min == nil || *s.SessionTimeoutMinutes < *min {
			min = ptrutil.Ptr(*s.SessionTimeoutMinutes)
		}
	}
	return min
}

func expectedCompatible(desc description.Topology) bool {
	for _, s := range desc.Servers {
		if s.Kind == description.Unknown || s.Kind == description.PossiblePrimary || s.WireVersion == nil {
			continue
		}
		if s.WireVersion.Max < SupportedWireVersions.Min || s.WireVersion.Min > SupportedWireVersions.Max {
			return false
		}
	}
	return true
}

func TestTopologyProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	for _, replicaSet := range []bool{false, true} {
		replicaSet := replicaSet
		suffix := " (no set name)"
		if replicaSet {
			suffix = " (set name rs)"
		}

		properties.Property("every snapshot is consistent"+suffix, prop.ForAll(
			func(inputs []sdamInput) bool {
				topo := newPropTopology(replicaSet)
				prev := topo.Describe()

				for _, in := range inputs {
					if err := in.apply(topo); err != nil {
						return false
					}
					desc := topo.Describe()

					if countPrimaries(desc) > 1 {
						return false
					}
					if (desc.Kind == description.ReplicaSetWithPrimary) != (countPrimaries(desc) == 1) &&
						desc.Kind.IsReplicaSet() {
						return false
					}
					if comparePair(desc.MaxSetVersion, desc.MaxElectionID, prev.MaxSetVersion, prev.MaxElectionID) < 0 {
						return false
					}
					if desc.Compatible() != expectedCompatible(desc) {
						return false
					}
					if !int64PtrsEqual(desc.SessionTimeoutMinutes, expectedSessionTimeout(desc)) {
						return false
					}
					if desc.Kind.IsReplicaSet() {
						for _, s := range desc.Servers {
							if s.Kind == description.Standalone || s.Kind == description.Mongos {
								return false
							}
							if s.Kind.IsReplicaSetMember() && s.SetName != desc.SetName {
								return false
							}
						}
					}
					prev = desc
				}
				return true
			},
			genSDAMInputs(),
		))

		properties.Property("replaying a response is a no-op"+suffix, prop.ForAll(
			func(inputs []sdamInput) bool {
				topo := newPropTopology(replicaSet)

				for _, in := range inputs {
					_ = in.apply(topo)
					if in.Role == roleNotPrimaryError {
						continue
					}

					once := topo.Describe()
					_ = in.apply(topo)
					if !once.Equal(topo.Describe()) {
						return false
					}
				}
				return true
			},
			genSDAMInputs(),
		))

		properties.Property("responses with an older topologyVersion are discarded"+suffix, prop.ForAll(
			func(inputs []sdamInput, last sdamInput, counter int64, behind int64) bool {
				topo := newPropTopology(replicaSet)
				for _, in := range inputs {
					_ = in.apply(topo)
				}

				pid := *objectID(9)
				fresh := last.hello()
				fresh.TopologyVersion = &description.TopologyVersion{ProcessID: pid, Counter: counter}
				_ = topo.UpdateServerDescription(last.addr(), fresh)
				want := topo.Describe()

				stale := description.Hello{OK: 1, IsWritablePrimary: true, SetName: "rs", Hosts: propHosts, MaxWireVersion: 9}
				stale.TopologyVersion = &description.TopologyVersion{ProcessID: pid, Counter: counter - behind}
				_ = topo.UpdateServerDescription(last.addr(), stale)

				return want.Equal(topo.Describe())
			},
			genSDAMInputs(),
			genSDAMInput(),
			gen.Int64Range(0, 100),
			gen.Int64Range(0, 5),
		))
	}

	properties.TestingRun(t)
}

func int64PtrsEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
