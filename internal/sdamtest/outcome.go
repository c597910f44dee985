// Copyright (C) MongoDB, Inc. 2023-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package sdamtest

import (
	"fmt"
	"sort"

	"github.com/google/go-cmp/cmp"
	"github.com/ikmak/mongo-sdam/address"
	"github.com/ikmak/mongo-sdam/description"
)

// GenerationFunc returns the pool generation of a server.
type GenerationFunc func(addr address.Address) uint64

// Compare checks desc against the outcome and returns one message per
// mismatch. Keys left out of the outcome are not checked. gen may be nil when
// the outcome asserts no pool generations.
func (o Outcome) Compare(desc description.Topology, gen GenerationFunc) []string {
	var mismatches []string
	mismatch := func(format string, args ...interface{}) {
		mismatches = append(mismatches, fmt.Sprintf(format, args...))
	}

	if o.TopologyType != "" {
		var want description.TopologyKind
		if err := want.UnmarshalText([]byte(o.TopologyType)); err != nil {
			mismatch("topologyType: %v", err)
		} else if want != desc.Kind {
			mismatch("topologyType: want %s, got %s", want, desc.Kind)
		}
	}

	if o.SetName.Set {
		var want string
		if o.SetName.Value != nil {
			want = *o.SetName.Value
		}
		if want != desc.SetName {
			mismatch("setName: want %q, got %q", want, desc.SetName)
		}
	}
	if o.LogicalSessionTimeoutMinutes.Set {
		if diff := cmp.Diff(o.LogicalSessionTimeoutMinutes.Value, desc.SessionTimeoutMinutes); diff != "" {
			mismatch("logicalSessionTimeoutMinutes (-want +got):\n%s", diff)
		}
	}
	if o.MaxSetVersion.Set {
		if diff := cmp.Diff(o.MaxSetVersion.Value, desc.MaxSetVersion); diff != "" {
			mismatch("maxSetVersion (-want +got):\n%s", diff)
		}
	}
	if o.MaxElectionID.Set {
		if diff := cmp.Diff(o.MaxElectionID.Value, desc.MaxElectionID); diff != "" {
			mismatch("maxElectionId (-want +got):\n%s", diff)
		}
	}
	if o.Compatible != nil && *o.Compatible != desc.Compatible() {
		mismatch("compatible: want %v, got %v (%v)", *o.Compatible, desc.Compatible(), desc.CompatibilityErr)
	}

	if o.Servers == nil {
		return mismatches
	}

	want := make(map[address.Address]OutcomeServer, len(o.Servers))
	for addr, s := range o.Servers {
		want[address.Address(addr).Canonicalize()] = s
	}

	if diff := cmp.Diff(sortedAddrs(want), serverAddrs(desc)); diff != "" {
		mismatch("servers (-want +got):\n%s", diff)
	}

	for addr, ws := range want {
		got, ok := desc.Server(addr)
		if !ok {
			continue
		}
		for _, m := range ws.compare(got, gen) {
			mismatch("server %s: %s", addr, m)
		}
	}

	sort.Strings(mismatches)
	return mismatches
}

func (o OutcomeServer) compare(got description.Server, gen GenerationFunc) []string {
	var mismatches []string
	mismatch := func(format string, args ...interface{}) {
		mismatches = append(mismatches, fmt.Sprintf(format, args...))
	}

	if o.Type != "" {
		want, err := description.ParseServerKind(o.Type)
		if err != nil {
			mismatch("type: %v", err)
		} else if want != got.Kind {
			mismatch("type: want %s, got %s", want, got.Kind)
		}
	}

	if o.SetName.Set {
		var want string
		if o.SetName.Value != nil {
			want = *o.SetName.Value
		}
		if want != got.SetName {
			mismatch("setName: want %q, got %q", want, got.SetName)
		}
	}
	if o.SetVersion.Set {
		if diff := cmp.Diff(o.SetVersion.Value, got.SetVersion); diff != "" {
			mismatch("setVersion (-want +got):\n%s", diff)
		}
	}
	if o.ElectionID.Set {
		if diff := cmp.Diff(o.ElectionID.Value, got.ElectionID); diff != "" {
			mismatch("electionId (-want +got):\n%s", diff)
		}
	}
	if o.TopologyVersion.Set {
		if diff := cmp.Diff(o.TopologyVersion.Value, got.TopologyVersion); diff != "" {
			mismatch("topologyVersion (-want +got):\n%s", diff)
		}
	}
	if o.Pool != nil {
		var generation uint64
		if gen != nil {
			generation = gen(got.Addr)
		}
		if o.Pool.Generation != generation {
			mismatch("pool generation: want %d, got %d", o.Pool.Generation, generation)
		}
	}

	return mismatches
}

func sortedAddrs(m map[address.Address]OutcomeServer) []address.Address {
	addrs := make([]address.Address, 0, len(m))
	for addr := range m {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

func serverAddrs(desc description.Topology) []address.Address {
	addrs := make([]address.Address, 0, len(desc.Servers))
	for _, s := range desc.Servers {
		addrs = append(addrs, s.Addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}
