// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"fmt"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
)

const (
	rttAlphaValue = 0.2
	rttSamples    = 10
)

// rttStats tracks the round trip times of a server's heartbeats: an
// exponentially weighted moving average plus the mean, minimum and 90th
// percentile over the last rttSamples checks.
type rttStats struct {
	mu            sync.RWMutex // mu guards every field below
	samples       []time.Duration
	offset        int
	count         int
	averageRTT    time.Duration
	averageRTTSet bool
}

func newRTTStats() *rttStats {
	return &rttStats{
		samples: make([]time.Duration, rttSamples),
	}
}

// reset clears every sample. It is called when a check fails.
func (r *rttStats) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.samples {
		r.samples[i] = 0
	}
	r.offset = 0
	r.count = 0
	r.averageRTT = 0
	r.averageRTTSet = false
}

// addSample records rtt and returns the updated moving average.
func (r *rttStats) addSample(rtt time.Duration) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.samples[r.offset] = rtt
	r.offset = (r.offset + 1) % len(r.samples)
	if r.count < len(r.samples) {
		r.count++
	}

	if !r.averageRTTSet {
		r.averageRTT = rtt
		r.averageRTTSet = true
		return r.averageRTT
	}

	r.averageRTT = time.Duration(rttAlphaValue*float64(rtt) + (1-rttAlphaValue)*float64(r.averageRTT))
	return r.averageRTT
}

func (r *rttStats) floatSamples() stats.Float64Data {
	out := make(stats.Float64Data, 0, r.count)
	for i := 0; i < r.count; i++ {
		out = append(out, float64(r.samples[i]))
	}
	return out
}

// getRTT returns the exponentially weighted moving average round-trip time.
func (r *rttStats) getRTT() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.averageRTT
}

// getMeanRTT returns the arithmetic mean of the sample window.
func (r *rttStats) getMeanRTT() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.count == 0 {
		return 0
	}
	mean, err := stats.Mean(r.floatSamples())
	if err != nil {
		return 0
	}
	return time.Duration(mean)
}

// getMinRTT returns the minimum round-trip time of the sample window.
func (r *rttStats) getMinRTT() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.count == 0 {
		return 0
	}
	min, err := stats.Min(r.floatSamples())
	if err != nil {
		return 0
	}
	return time.Duration(min)
}

// getRTT90 returns the 90th percentile round-trip time of the sample window.
// It returns 0 until the window is full.
func (r *rttStats) getRTT90() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.count < len(r.samples) {
		return 0
	}
	p, err := stats.Percentile(r.floatSamples(), 90.0)
	if err != nil {
		panic(fmt.Errorf("topology: error calculating 90th percentile RTT: %v", err))
	}
	return time.Duration(p)
}
