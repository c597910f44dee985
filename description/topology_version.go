// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package description

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/ikmak/mongo-sdam/bson/primitive"
	"github.com/pkg/errors"
)

// TopologyVersion is the (processId, counter) pair a server increments on
// every locally significant state change.
type TopologyVersion struct {
	ProcessID primitive.ObjectID
	Counter   int64
}

// MoreRecentThan returns if this TopologyVersion is more recent than the one
// passed in. Versions from different processes are not comparable and a nil
// version on either side is never more recent.
func (tv *TopologyVersion) MoreRecentThan(other *TopologyVersion) bool {
	if tv == nil || other == nil {
		return false
	}
	if tv.ProcessID != other.ProcessID {
		return false
	}

	return tv.Counter > other.Counter
}

// CompareTopologyVersion returns -1 if the current version is older than the
// response's, 0 if they are equal and 1 if the current one is newer. A missing
// version on either side or a differing processId compares as -1, meaning the
// response must be applied.
func CompareTopologyVersion(current, response *TopologyVersion) int {
	if current == nil || response == nil {
		return -1
	}
	if current.ProcessID != response.ProcessID {
		return -1
	}
	switch {
	case current.Counter == response.Counter:
		return 0
	case current.Counter < response.Counter:
		return -1
	}
	return 1
}

type topologyVersionJSON struct {
	ProcessID primitive.ObjectID `json:"processId"`
	Counter   numberLong         `json:"counter"`
}

// MarshalJSON emits the canonical extended JSON form used by the conformance
// fixtures.
func (tv TopologyVersion) MarshalJSON() ([]byte, error) {
	return json.Marshal(topologyVersionJSON{ProcessID: tv.ProcessID, Counter: numberLong(tv.Counter)})
}

// UnmarshalJSON accepts the counter either as a plain number or as
// {"$numberLong": "<n>"}.
func (tv *TopologyVersion) UnmarshalJSON(b []byte) error {
	var v topologyVersionJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return errors.Wrap(err, "invalid topologyVersion")
	}
	tv.ProcessID = v.ProcessID
	tv.Counter = int64(v.Counter)
	return nil
}

type numberLong int64

func (n numberLong) MarshalJSON() ([]byte, error) {
	return []byte(`{"$numberLong":"` + strconv.FormatInt(int64(n), 10) + `"}`), nil
}

func (n *numberLong) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var v struct {
			NumberLong string `json:"$numberLong"`
		}
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		i, err := strconv.ParseInt(v.NumberLong, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid $numberLong %q", v.NumberLong)
		}
		*n = numberLong(i)
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		b = b[1 : len(b)-1]
	}
	i, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return errors.Wrapf(err, "invalid counter %s", string(b))
	}
	*n = numberLong(i)
	return nil
}
