// Copyright (C) MongoDB, Inc. 2022-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"fmt"
	"strings"

	"github.com/ikmak/mongo-sdam/address"
	"github.com/ikmak/mongo-sdam/description"
	"github.com/pkg/errors"
)

// ErrTopologyClosed is returned when a user attempts to call a method on a
// closed Topology.
var ErrTopologyClosed = errors.New("topology is closed")

// ErrTopologyConnected is returned when a user attempts to Connect to an
// already connected Topology.
var ErrTopologyConnected = errors.New("topology is connected or connecting")

// ErrServerSelectionTimeout is returned from server selection when the server
// selection process took longer than allowed by the timeout.
var ErrServerSelectionTimeout = errors.New("server selection timeout")

var (
	notPrimaryCodes   = []int32{10107, 13435, 10058}
	recoveringCodes   = []int32{11600, 11602, 13436, 189, 91}
	nodeShutdownCodes = []int32{11600, 91}
)

// ErrorKind is the coarse category of an application error.
type ErrorKind uint8

// ErrorKind constants.
const (
	NetworkError ErrorKind = iota
	TimeoutError
	CommandError
)

var errorKindNames = map[ErrorKind]string{
	NetworkError: "network",
	TimeoutError: "timeout",
	CommandError: "command",
}

// String implements the fmt.Stringer interface.
func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", uint8(k))
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ErrorKind) UnmarshalText(text []byte) error {
	for kind, name := range errorKindNames {
		if strings.EqualFold(name, string(text)) {
			*k = kind
			return nil
		}
	}
	return errors.Errorf("unknown error kind %q", string(text))
}

// ErrorWhen records whether an application error happened before or after
// the connection handshake completed.
type ErrorWhen uint8

// ErrorWhen constants.
const (
	BeforeHandshake ErrorWhen = iota
	AfterHandshake
)

// String implements the fmt.Stringer interface.
func (w ErrorWhen) String() string {
	if w == BeforeHandshake {
		return "beforeHandshake"
	}
	return "afterHandshake"
}

// UnmarshalText implements encoding.TextUnmarshaler. Both the short form and
// the "...Completes" form used by fixture files are accepted.
func (w *ErrorWhen) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "beforehandshake", "beforehandshakecompletes":
		*w = BeforeHandshake
	case "afterhandshake", "afterhandshakecompletes":
		*w = AfterHandshake
	default:
		return errors.Errorf("unknown error phase %q", string(text))
	}
	return nil
}

// ApplicationError is a failure observed by an application connection to a
// server, reported to the topology through HandleError.
type ApplicationError struct {
	Address        address.Address
	MaxWireVersion int32
	Kind           ErrorKind
	When           ErrorWhen
	Generation     uint64
	Response       *description.ErrorDocument
	Wrapped        error
}

// Error implements the error interface.
func (e ApplicationError) Error() string {
	msg := fmt.Sprintf("%s error on %s %s", e.Kind, e.Address, e.When)
	if e.Response != nil {
		msg += fmt.Sprintf(": (%d) %s", e.Response.Code, e.Response.Errmsg)
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e ApplicationError) Unwrap() error {
	return e.Wrapped
}

// topologyVersion returns the topology version carried by the error response.
func (e ApplicationError) topologyVersion() *description.TopologyVersion {
	if e.Response == nil {
		return nil
	}
	return e.Response.TopologyVersion
}

// ServerSelectionError represents a Server Selection error.
type ServerSelectionError struct {
	Desc    description.Topology
	Wrapped error
}

// Error implements the error interface.
func (e ServerSelectionError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("server selection error: %s, current topology: { %s }", e.Wrapped.Error(), e.Desc.String())
	}
	return fmt.Sprintf("server selection error: current topology: { %s }", e.Desc.String())
}

// Unwrap returns the underlying error.
func (e ServerSelectionError) Unwrap() error {
	return e.Wrapped
}

// InvariantError is returned when a server description arrives that the
// state machine has no transition for. The update is aborted.
type InvariantError struct {
	Kind   description.TopologyKind
	Server description.Server
	Reason string
}

func newInvariantError(kind description.TopologyKind, s description.Server, reason string) InvariantError {
	return InvariantError{Kind: kind, Server: s, Reason: reason}
}

// Error implements the error interface.
func (e InvariantError) Error() string {
	return fmt.Sprintf("topology invariant violated: %s: %s server %s in %s topology", e.Reason, e.Server.Kind, e.Server.Addr, e.Kind)
}

func containsCode(codes []int32, code int32) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

// isNotPrimary reports whether the error document means the server is no
// longer the primary. Message matching is only used when there is no code.
func isNotPrimary(doc *description.ErrorDocument) bool {
	if doc == nil {
		return false
	}
	if doc.Code != 0 {
		return containsCode(notPrimaryCodes, doc.Code)
	}
	if isRecoveringMessage(doc.Errmsg) {
		return false
	}
	return strings.Contains(doc.Errmsg, "not master")
}

// isRecovering reports whether the error document means the server is
// recovering or shutting down.
func isRecovering(doc *description.ErrorDocument) bool {
	if doc == nil {
		return false
	}
	if doc.Code != 0 {
		return containsCode(recoveringCodes, doc.Code)
	}
	return isRecoveringMessage(doc.Errmsg)
}

func isRecoveringMessage(msg string) bool {
	return strings.Contains(msg, "node is recovering") || strings.Contains(msg, "not master or secondary")
}

// isShutdown reports whether the error document means the server is shutting
// down. A shutdown always invalidates the pool.
func isShutdown(doc *description.ErrorDocument) bool {
	return doc != nil && containsCode(nodeShutdownCodes, doc.Code)
}

// isStateChange reports whether the error document encodes a not primary or
// node recovering condition.
func isStateChange(doc *description.ErrorDocument) bool {
	return isNotPrimary(doc) || isRecovering(doc)
}
