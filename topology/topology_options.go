// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"time"

	"github.com/ikmak/mongo-sdam/address"
	"github.com/ikmak/mongo-sdam/event"
	"github.com/ikmak/mongo-sdam/internal/logger"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	defaultServerSelectionTimeout = 30 * time.Second
	defaultHeartbeatInterval      = 10 * time.Second
	defaultMinHeartbeatInterval   = 500 * time.Millisecond
)

var defaultSeedList = []address.Address{"localhost:27017"}

// Option configures a topology.
type Option func(*config) error

type config struct {
	seedList               []address.Address
	replicaSetName         string
	directConnection       bool
	heartbeatInterval      time.Duration
	minHeartbeatInterval   time.Duration
	serverSelectionTimeout time.Duration
	checker                Checker
	logger                 *logger.Logger
	serverMonitor          *event.ServerMonitor
	registerer             prometheus.Registerer
}

func newConfig(opts ...Option) (*config, error) {
	cfg := &config{
		seedList:               defaultSeedList,
		heartbeatInterval:      defaultHeartbeatInterval,
		minHeartbeatInterval:   defaultMinHeartbeatInterval,
		serverSelectionTimeout: defaultServerSelectionTimeout,
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.directConnection && len(cfg.seedList) != 1 {
		return nil, errors.Errorf("a direct connection requires exactly one seed, got %d", len(cfg.seedList))
	}
	if cfg.minHeartbeatInterval > cfg.heartbeatInterval {
		cfg.minHeartbeatInterval = cfg.heartbeatInterval
	}

	return cfg, nil
}

// WithSeedList configures a topology's seed list. Seeds are canonicalized and
// duplicates are dropped.
func WithSeedList(seeds ...string) Option {
	return func(c *config) error {
		if len(seeds) == 0 {
			return errors.New("seed list must not be empty")
		}

		seen := make(map[address.Address]struct{}, len(seeds))
		list := make([]address.Address, 0, len(seeds))
		for _, seed := range seeds {
			addr := address.Address(seed).Canonicalize()
			if addr == "" {
				return errors.Errorf("invalid seed %q", seed)
			}
			if _, ok := seen[addr]; ok {
				continue
			}
			seen[addr] = struct{}{}
			list = append(list, addr)
		}
		c.seedList = list
		return nil
	}
}

// WithReplicaSetName configures a topology's replica set name.
func WithReplicaSetName(name string) Option {
	return func(c *config) error {
		c.replicaSetName = name
		return nil
	}
}

// WithDirectConnection configures a topology to talk to its single seed only.
func WithDirectConnection(direct bool) Option {
	return func(c *config) error {
		c.directConnection = direct
		return nil
	}
}

// WithHeartbeatInterval configures a topology's heartbeat interval.
func WithHeartbeatInterval(interval time.Duration) Option {
	return func(c *config) error {
		if interval <= 0 {
			return errors.Errorf("heartbeat interval must be positive, got %s", interval)
		}
		c.heartbeatInterval = interval
		return nil
	}
}

// WithMinHeartbeatInterval configures the minimum time between two checks of
// the same server.
func WithMinHeartbeatInterval(interval time.Duration) Option {
	return func(c *config) error {
		if interval < 0 {
			return errors.Errorf("minimum heartbeat interval must not be negative, got %s", interval)
		}
		c.minHeartbeatInterval = interval
		return nil
	}
}

// WithServerSelectionTimeout configures a topology's server selection timeout.
// A server selection timeout of 0 means there is no timeout for server selection.
func WithServerSelectionTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		c.serverSelectionTimeout = timeout
		return nil
	}
}

// WithChecker configures the Checker used by the server monitors. Without a
// Checker the topology never polls and is driven only by
// UpdateServerDescription and HandleError.
func WithChecker(checker Checker) Option {
	return func(c *config) error {
		c.checker = checker
		return nil
	}
}

// WithLogger configures the topology's logger.
func WithLogger(log *logger.Logger) Option {
	return func(c *config) error {
		c.logger = log
		return nil
	}
}

// WithServerMonitor configures the callbacks invoked for SDAM events.
func WithServerMonitor(monitor *event.ServerMonitor) Option {
	return func(c *config) error {
		c.serverMonitor = monitor
		return nil
	}
}

// WithRegisterer configures where the topology's metrics are registered. The
// default is to not register them.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *config) error {
		c.registerer = reg
		return nil
	}
}
