// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"sync"

	"github.com/ikmak/mongo-sdam/address"
)

// poolGenerationMap tracks the connection pool generation of each known server. A
// generation is bumped whenever an error invalidates every connection opened
// to that server so far. Errors reported by connections from an older
// generation are stale.
type poolGenerationMap struct {
	generationMap map[address.Address]uint64

	sync.Mutex
}

func newPoolGenerationMap() *poolGenerationMap {
	return &poolGenerationMap{
		generationMap: make(map[address.Address]uint64),
	}
}

// clear bumps the generation of addr and returns the new generation.
func (p *poolGenerationMap) clear(addr address.Address) uint64 {
	p.Lock()
	defer p.Unlock()

	p.generationMap[addr]++
	return p.generationMap[addr]
}

func (p *poolGenerationMap) stale(addr address.Address, knownGeneration uint64) bool {
	p.Lock()
	defer p.Unlock()

	return knownGeneration < p.generationMap[addr]
}

func (p *poolGenerationMap) getGeneration(addr address.Address) uint64 {
	p.Lock()
	defer p.Unlock()

	return p.generationMap[addr]
}

// remove forgets addr so the map does not grow unboundedly as servers leave
// the topology.
func (p *poolGenerationMap) remove(addr address.Address) {
	p.Lock()
	defer p.Unlock()

	delete(p.generationMap, addr)
}
