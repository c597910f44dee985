// Copyright (C) MongoDB, Inc. 2023-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package sdamtest

import (
	"github.com/ikmak/mongo-sdam/address"
	"github.com/ikmak/mongo-sdam/description"
	"github.com/ikmak/mongo-sdam/topology"
	"github.com/pkg/errors"
)

// PhaseResult is the state of the topology after one phase was applied.
type PhaseResult struct {
	Phase       int
	Description string
	Topology    description.Topology

	// Mismatches lists every difference from the phase's outcome.
	Mismatches []string
	// Errors holds the responses the state machine refused.
	Errors []error
	// Passthrough holds the application errors HandleError returned to the
	// caller instead of absorbing.
	Passthrough []error
}

// Failed reports whether the phase did not produce its outcome.
func (r PhaseResult) Failed() bool {
	return len(r.Mismatches) > 0
}

// Replay runs every phase of s against a new Topology built from the
// scenario's URI. opts are appended to the options derived from the URI. The
// topology is never connected, so no monitor runs.
func Replay(s Scenario, opts ...topology.Option) ([]PhaseResult, error) {
	base := []topology.Option{
		topology.WithSeedList(s.Seeds...),
		topology.WithReplicaSetName(s.ReplicaSet),
		topology.WithDirectConnection(s.DirectConnection),
	}

	topo, err := topology.New(append(base, opts...)...)
	if err != nil {
		return nil, errors.Wrapf(err, "creating topology for %q", s.Description)
	}

	results := make([]PhaseResult, 0, len(s.Phases))
	for i, phase := range s.Phases {
		res := PhaseResult{Phase: i, Description: phase.Description}

		for _, r := range phase.Responses {
			if err := topo.UpdateServerDescription(address.Address(r.Address), r.Hello); err != nil {
				res.Errors = append(res.Errors, err)
			}
		}

		for _, ae := range phase.ApplicationErrors {
			addr := address.Address(ae.Address).Canonicalize()
			generation := topo.Generation(addr)
			if ae.Generation != nil {
				generation = *ae.Generation
			}

			err := topo.HandleError(topology.ApplicationError{
				Address:        addr,
				MaxWireVersion: ae.MaxWireVersion,
				Kind:           ae.Type,
				When:           ae.When,
				Generation:     generation,
				Response:       ae.Response,
			})
			if err != nil {
				res.Passthrough = append(res.Passthrough, err)
			}
		}

		res.Topology = topo.Describe()
		res.Mismatches = phase.Outcome.Compare(res.Topology, topo.Generation)
		results = append(results, res)
	}

	return results, nil
}
