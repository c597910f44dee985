// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package description

import (
	"github.com/pkg/errors"
)

// ServerKind represents the type of a single server.
type ServerKind uint32

// These constants are the possible types of servers.
const (
	Unknown ServerKind = iota
	Standalone
	Mongos
	PossiblePrimary
	RSPrimary
	RSSecondary
	RSArbiter
	RSOther
	RSGhost
	LoadBalanced
)

var serverKindNames = map[ServerKind]string{
	Unknown:         "Unknown",
	Standalone:      "Standalone",
	Mongos:          "Mongos",
	PossiblePrimary: "PossiblePrimary",
	RSPrimary:       "RSPrimary",
	RSSecondary:     "RSSecondary",
	RSArbiter:       "RSArbiter",
	RSOther:         "RSOther",
	RSGhost:         "RSGhost",
	LoadBalanced:    "LoadBalanced",
}

// String returns a stringified version of the kind or "Unknown" if the kind is invalid.
func (kind ServerKind) String() string {
	if name, ok := serverKindNames[kind]; ok {
		return name
	}
	return "Unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (kind ServerKind) MarshalText() ([]byte, error) {
	return []byte(kind.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (kind *ServerKind) UnmarshalText(b []byte) error {
	k, err := ParseServerKind(string(b))
	if err != nil {
		return err
	}
	*kind = k
	return nil
}

// ParseServerKind returns the ServerKind with the given name.
func ParseServerKind(name string) (ServerKind, error) {
	for kind, n := range serverKindNames {
		if n == name {
			return kind, nil
		}
	}
	return Unknown, errors.Errorf("unrecognized server type %q", name)
}

// IsReplicaSetMember reports whether servers of this kind must share the
// topology's replica set name.
func (kind ServerKind) IsReplicaSetMember() bool {
	switch kind {
	case RSPrimary, RSSecondary, RSArbiter, RSOther:
		return true
	}
	return false
}
