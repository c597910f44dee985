// Copyright (C) MongoDB, Inc. 2023-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package sdamtest

import (
	"testing"

	"github.com/ikmak/mongo-sdam/address"
	"github.com/ikmak/mongo-sdam/bson/primitive"
	"github.com/ikmak/mongo-sdam/description"
	"github.com/ikmak/mongo-sdam/internal/ptrutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplay(t *testing.T) {
	t.Parallel()

	s, err := Parse([]byte(yamlScenario), ".yml")
	require.NoError(t, err)

	results, err := Replay(s)
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.False(t, res.Failed(), "mismatches: %v", res.Mismatches)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Passthrough)
	assert.Equal(t, description.ReplicaSetWithPrimary, res.Topology.Kind)

	b, ok := res.Topology.Server("b:27017")
	require.True(t, ok, "a state change error resets the server, it does not remove it")
	assert.Equal(t, description.Unknown, b.Kind)
	assert.Error(t, b.LastError)
}

func TestReplayReportsMismatches(t *testing.T) {
	t.Parallel()

	s, err := Parse([]byte(`
description: "wrong expectations"
uri: "mongodb://a"
phases:
  - responses:
      - - "a:27017"
        - ok: 1
          isWritablePrimary: true
          minWireVersion: 0
          maxWireVersion: 6
    outcome:
      servers:
        "a:27017":
          type: "RSPrimary"
        "b:27017":
          type: "Unknown"
      topologyType: "Sharded"
      compatible: false
`), ".yml")
	require.NoError(t, err)

	results, err := Replay(s)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Failed())
	assert.Len(t, results[0].Mismatches, 4, "mismatches: %v", results[0].Mismatches)
}

func TestReplayInvalidSeed(t *testing.T) {
	t.Parallel()

	_, err := Replay(Scenario{Description: "no seeds"})
	assert.Error(t, err)
}

func TestOutcomeCompare(t *testing.T) {
	t.Parallel()

	sv := ptrutil.Ptr(uint32(3))
	desc := description.Topology{
		Kind:          description.ReplicaSetNoPrimary,
		SetName:       "rs",
		MaxSetVersion: sv,
		Servers: []description.Server{
			{Addr: "a:27017", Kind: description.RSSecondary, SetName: "rs", SetVersion: sv},
		},
	}
	gen := func(address.Address) uint64 { return 4 }

	testCases := []struct {
		name       string
		outcome    Outcome
		mismatches int
	}{
		{"empty outcome", Outcome{}, 0},
		{
			"matching",
			Outcome{
				TopologyType:  "ReplicaSetNoPrimary",
				SetName:       Optional[string]{Set: true, Value: ptrutil.Ptr("rs")},
				MaxSetVersion: Optional[uint32]{Set: true, Value: ptrutil.Ptr(uint32(3))},
				MaxElectionID: Optional[primitive.ObjectID]{Set: true},
				Servers: map[string]OutcomeServer{
					"a": {Type: "RSSecondary", SetVersion: Optional[uint32]{Set: true, Value: ptrutil.Ptr(uint32(3))}, Pool: &OutcomePool{Generation: 4}},
				},
			},
			0,
		},
		{"unknown topology type", Outcome{TopologyType: "Ring"}, 1},
		{"null set name", Outcome{SetName: Optional[string]{Set: true}}, 1},
		{"session timeout", Outcome{LogicalSessionTimeoutMinutes: Optional[int64]{Set: true, Value: ptrutil.Ptr(int64(1))}}, 1},
		{"compatible", Outcome{Compatible: ptrutil.Ptr(false)}, 1},
		{"missing server", Outcome{Servers: map[string]OutcomeServer{}}, 1},
		{
			"server fields",
			Outcome{Servers: map[string]OutcomeServer{
				"a:27017": {
					Type:            "RSPrimary",
					SetName:         Optional[string]{Set: true},
					TopologyVersion: Optional[description.TopologyVersion]{Set: true, Value: &description.TopologyVersion{Counter: 1}},
					Pool:            &OutcomePool{Generation: 1},
				},
			}},
			4,
		},
		{"unknown server type", Outcome{Servers: map[string]OutcomeServer{"a:27017": {Type: "Primary"}}}, 1},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := tc.outcome.Compare(desc, gen)
			assert.Len(t, got, tc.mismatches, "mismatches: %v", got)
		})
	}
}
