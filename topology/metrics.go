// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	outcomeApplied     = "applied"
	outcomeStale       = "stale"
	outcomeIgnored     = "ignored"
	outcomeInvariant   = "invariant"
	outcomeReset       = "reset"
	outcomePassthrough = "passthrough"
	outcomeSucceeded   = "succeeded"
	outcomeFailed      = "failed"
)

type metrics struct {
	updates           *prometheus.CounterVec
	applicationErrors *prometheus.CounterVec
	heartbeats        *prometheus.HistogramVec
	poolClears        prometheus.Counter
	knownServers      prometheus.Gauge
	hasPrimary        prometheus.Gauge
}

// newMetrics creates the topology collectors. A nil registerer leaves them
// unregistered; they still count so tests can read them.
func newMetrics(reg prometheus.Registerer, id uuid.UUID) *metrics {
	labels := prometheus.Labels{"topology_id": id.String()}
	factory := promauto.With(reg)

	return &metrics{
		updates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "sdam_server_description_updates_total",
				Help:        "Server descriptions applied to the topology, by outcome",
				ConstLabels: labels,
			},
			[]string{"outcome"}, // applied, stale, ignored, invariant
		),
		applicationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "sdam_application_errors_total",
				Help:        "Application errors handled by the topology, by outcome",
				ConstLabels: labels,
			},
			[]string{"outcome"}, // reset, stale, ignored, passthrough
		),
		heartbeats: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "sdam_heartbeat_duration_seconds",
				Help:        "Duration of server checks in seconds",
				ConstLabels: labels,
				Buckets:     []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
			},
			[]string{"outcome"}, // succeeded, failed
		),
		poolClears: factory.NewCounter(
			prometheus.CounterOpts{
				Name:        "sdam_pool_clears_total",
				Help:        "Connection generation bumps caused by application errors",
				ConstLabels: labels,
			},
		),
		knownServers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "sdam_known_servers",
				Help:        "Number of servers in the topology description",
				ConstLabels: labels,
			},
		),
		hasPrimary: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "sdam_has_primary",
				Help:        "Whether the topology currently records a primary (1=yes, 0=no)",
				ConstLabels: labels,
			},
		),
	}
}
