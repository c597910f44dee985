// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0
//
// Based on gopkg.in/mgo.v2/bson by Gustavo Niemeyer
// See THIRD-PARTY-NOTICES for original license terms.

// Package primitive contains the opaque identifier types reported by servers in
// their handshake responses.
package primitive

import (
	"bytes"
	"encoding"
	"encoding/hex"
	"encoding/json"

	"github.com/pkg/errors"
)

// ErrInvalidHex indicates that a hex string cannot be converted to an ObjectID.
var ErrInvalidHex = errors.New("the provided hex string is not a valid ObjectID")

// ObjectID is the BSON ObjectID type. Servers use it for electionId and for the
// processId of a topologyVersion.
type ObjectID [12]byte

// NilObjectID is the zero value for ObjectID.
var NilObjectID ObjectID

var _ encoding.TextMarshaler = ObjectID{}
var _ encoding.TextUnmarshaler = &ObjectID{}

// Hex returns the hex encoding of the ObjectID as a string.
func (id ObjectID) Hex() string {
	var buf [24]byte
	hex.Encode(buf[:], id[:])
	return string(buf[:])
}

func (id ObjectID) String() string {
	return `ObjectID("` + id.Hex() + `")`
}

// IsZero returns true if id is the empty ObjectID.
func (id ObjectID) IsZero() bool {
	return id == NilObjectID
}

// Compare returns an integer comparing two ObjectIDs byte-wise. The result will
// be 0 if id == other, -1 if id < other, and +1 if id > other.
func (id ObjectID) Compare(other ObjectID) int {
	return bytes.Compare(id[:], other[:])
}

// ObjectIDFromHex creates a new ObjectID from a hex string. It returns an error if the hex string is not a
// valid ObjectID.
func ObjectIDFromHex(s string) (ObjectID, error) {
	if len(s) != 24 {
		return NilObjectID, ErrInvalidHex
	}

	var oid [12]byte
	_, err := hex.Decode(oid[:], []byte(s))
	if err != nil {
		return NilObjectID, errors.Wrap(ErrInvalidHex, err.Error())
	}

	return oid, nil
}

// MarshalText returns the ObjectID as UTF-8-encoded text.
func (id ObjectID) MarshalText() ([]byte, error) {
	var buf [24]byte
	hex.Encode(buf[:], id[:])
	return buf[:], nil
}

// UnmarshalText populates the ObjectID from its hex representation. An empty
// input decodes as NilObjectID.
func (id *ObjectID) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	oid, err := ObjectIDFromHex(string(b))
	if err != nil {
		return err
	}
	*id = oid
	return nil
}

// MarshalJSON returns the ObjectID in canonical extended JSON form:
// {"$oid": "<hex>"}.
func (id ObjectID) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"$oid":"`)
	buf.WriteString(id.Hex())
	buf.WriteString(`"}`)
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts either a hex string or an extended JSON object with a
// "$oid" key: {"$oid": "000000000000000000000001"}.
func (id *ObjectID) UnmarshalJSON(b []byte) error {
	// Keep parity with the standard library, a JSON null leaves the value
	// unchanged.
	if string(b) == "null" {
		return nil
	}

	if len(b) >= 2 && b[0] == '"' {
		return id.UnmarshalText(b[1 : len(b)-1])
	}

	var v struct {
		OID *string `json:"$oid"`
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return errors.Wrap(err, "failed to parse extended JSON ObjectID")
	}
	if v.OID == nil {
		return errors.New("not an extended JSON ObjectID")
	}
	i, err := ObjectIDFromHex(*v.OID)
	if err != nil {
		return err
	}
	*id = i
	return nil
}
