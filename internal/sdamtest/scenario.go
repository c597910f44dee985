// Copyright (C) MongoDB, Inc. 2023-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package sdamtest

import (
	"bytes"
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ikmak/mongo-sdam/bson/primitive"
	"github.com/ikmak/mongo-sdam/description"
	"github.com/ikmak/mongo-sdam/topology"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Scenario is one scenario file. Seeds, ReplicaSet and DirectConnection are
// parsed out of URI when the file is loaded.
type Scenario struct {
	Description string  `json:"description"`
	URI         string  `json:"uri"`
	Phases      []Phase `json:"phases"`

	Seeds            []string `json:"-"`
	ReplicaSet       string   `json:"-"`
	DirectConnection bool     `json:"-"`
	Path             string   `json:"-"`
}

// Phase is a batch of inputs applied in order, followed by the topology they
// are expected to produce.
type Phase struct {
	Description       string             `json:"description"`
	Responses         []Response         `json:"responses"`
	ApplicationErrors []ApplicationError `json:"applicationErrors"`
	Outcome           Outcome            `json:"outcome"`
}

// Response is a hello reply from Address. In a file it is written as a two
// element array: [address, reply].
type Response struct {
	Address string
	Hello   description.Hello
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Response) UnmarshalJSON(b []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(b, &tuple); err != nil {
		return errors.Wrap(err, "response must be an [address, reply] array")
	}
	if len(tuple) != 2 {
		return errors.Errorf("response must have 2 elements, got %d", len(tuple))
	}
	if err := json.Unmarshal(tuple[0], &r.Address); err != nil {
		return errors.Wrap(err, "invalid response address")
	}
	if err := json.Unmarshal(tuple[1], &r.Hello); err != nil {
		return errors.Wrapf(err, "invalid reply from %s", r.Address)
	}
	return nil
}

// ApplicationError is an error reported by an application connection. A nil
// Generation means the current pool generation of Address.
type ApplicationError struct {
	Address        string                     `json:"address"`
	Generation     *uint64                    `json:"generation"`
	MaxWireVersion int32                      `json:"maxWireVersion"`
	When           topology.ErrorWhen         `json:"when"`
	Type           topology.ErrorKind         `json:"type"`
	Response       *description.ErrorDocument `json:"response"`
}

// Optional distinguishes a key that is absent from a file (Set is false) from
// one that is present with a null value (Set is true, Value is nil).
type Optional[T any] struct {
	Set   bool
	Value *T
}

// UnmarshalJSON implements json.Unmarshaler. It is only called for keys that
// are present.
func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		o.Value = nil
		return nil
	}

	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// Outcome is the expected state of the topology after a phase. Only the keys
// present in the file are checked.
type Outcome struct {
	Servers                      map[string]OutcomeServer     `json:"servers"`
	TopologyType                 string                       `json:"topologyType"`
	SetName                      Optional[string]             `json:"setName"`
	LogicalSessionTimeoutMinutes Optional[int64]              `json:"logicalSessionTimeoutMinutes"`
	MaxSetVersion                Optional[uint32]             `json:"maxSetVersion"`
	MaxElectionID                Optional[primitive.ObjectID] `json:"maxElectionId"`
	Compatible                   *bool                        `json:"compatible"`
}

// OutcomeServer is the expected description of one server.
type OutcomeServer struct {
	Type            string                                `json:"type"`
	SetName         Optional[string]                      `json:"setName"`
	SetVersion      Optional[uint32]                      `json:"setVersion"`
	ElectionID      Optional[primitive.ObjectID]          `json:"electionId"`
	TopologyVersion Optional[description.TopologyVersion] `json:"topologyVersion"`
	Pool            *OutcomePool                          `json:"pool"`
}

// OutcomePool is the expected connection pool state of one server.
type OutcomePool struct {
	Generation uint64 `json:"generation"`
}

// Load reads a JSON or YAML scenario file.
func Load(path string) (Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, errors.Wrapf(err, "reading %s", path)
	}

	s, err := Parse(b, filepath.Ext(path))
	if err != nil {
		return Scenario{}, errors.Wrapf(err, "parsing %s", path)
	}
	s.Path = path
	return s, nil
}

// Parse decodes a scenario. ext selects the format: ".yml" and ".yaml" are
// YAML, anything else is JSON.
func Parse(b []byte, ext string) (Scenario, error) {
	switch strings.ToLower(ext) {
	case ".yml", ".yaml":
		var doc interface{}
		if err := yaml.Unmarshal(b, &doc); err != nil {
			return Scenario{}, errors.Wrap(err, "invalid YAML")
		}
		var err error
		if b, err = json.Marshal(doc); err != nil {
			return Scenario{}, errors.Wrap(err, "YAML document is not representable as JSON")
		}
	}

	var s Scenario
	if err := json.Unmarshal(b, &s); err != nil {
		return Scenario{}, errors.Wrap(err, "invalid scenario")
	}
	if err := s.parseURI(); err != nil {
		return Scenario{}, err
	}
	return s, nil
}

// parseURI extracts the seed list and the options the topology cares about
// from a mongodb:// URI. Every other option is ignored.
func (s *Scenario) parseURI() error {
	const scheme = "mongodb://"

	if !strings.HasPrefix(s.URI, scheme) {
		return errors.Errorf("uri %q must start with %s", s.URI, scheme)
	}
	rest := strings.TrimPrefix(s.URI, scheme)

	hosts, query := rest, ""
	if i := strings.IndexAny(rest, "/?"); i >= 0 {
		hosts, query = rest[:i], strings.TrimLeft(rest[i:], "/")
		query = strings.TrimPrefix(query, "?")
	}
	if hosts == "" {
		return errors.Errorf("uri %q has no hosts", s.URI)
	}
	s.Seeds = strings.Split(hosts, ",")

	values, err := url.ParseQuery(query)
	if err != nil {
		return errors.Wrapf(err, "invalid options in uri %q", s.URI)
	}
	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		switch strings.ToLower(key) {
		case "replicaset":
			s.ReplicaSet = vals[0]
		case "directconnection":
			direct, err := strconv.ParseBool(vals[0])
			if err != nil {
				return errors.Wrapf(err, "invalid directConnection in uri %q", s.URI)
			}
			s.DirectConnection = direct
		}
	}
	return nil
}
