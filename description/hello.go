// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package description

import (
	"github.com/ikmak/mongo-sdam/bson/primitive"
)

// Hello is an already-decoded "hello" (or legacy "isMaster") handshake
// response. Decoding from the wire is the caller's responsibility; the JSON
// tags match the server's field names so fixtures decode directly.
type Hello struct {
	OK                           float64             `json:"ok"`
	IsMaster                     bool                `json:"ismaster,omitempty"`
	IsWritablePrimary            bool                `json:"isWritablePrimary,omitempty"`
	Secondary                    bool                `json:"secondary,omitempty"`
	IsReplicaSet                 bool                `json:"isreplicaset,omitempty"`
	ArbiterOnly                  bool                `json:"arbiterOnly,omitempty"`
	Hidden                       bool                `json:"hidden,omitempty"`
	MinWireVersion               int32               `json:"minWireVersion,omitempty"`
	MaxWireVersion               int32               `json:"maxWireVersion,omitempty"`
	SetName                      string              `json:"setName,omitempty"`
	Hosts                        []string            `json:"hosts,omitempty"`
	Arbiters                     []string            `json:"arbiters,omitempty"`
	Passives                     []string            `json:"passives,omitempty"`
	Me                           string              `json:"me,omitempty"`
	Primary                      string              `json:"primary,omitempty"`
	SetVersion                   *uint32             `json:"setVersion,omitempty"`
	ElectionID                   *primitive.ObjectID `json:"electionId,omitempty"`
	TopologyVersion              *TopologyVersion    `json:"topologyVersion,omitempty"`
	Msg                          string              `json:"msg,omitempty"`
	LogicalSessionTimeoutMinutes *int64              `json:"logicalSessionTimeoutMinutes,omitempty"`
}

// IsPrimary reports whether the response claims writability under either the
// current or the legacy flag.
func (h Hello) IsPrimary() bool {
	return h.IsWritablePrimary || h.IsMaster
}

// ErrorDocument is a decoded command error reply.
type ErrorDocument struct {
	OK              float64          `json:"ok"`
	Code            int32            `json:"code,omitempty"`
	CodeName        string           `json:"codeName,omitempty"`
	Errmsg          string           `json:"errmsg,omitempty"`
	TopologyVersion *TopologyVersion `json:"topologyVersion,omitempty"`
}
