// Copyright (C) MongoDB, Inc. 2023-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package logger

import (
	"strings"
)

// DiffToInfo is the number of levels that come before the "Info" level. This
// should ensure that "Info" is the 0th level passed to the sink.
const DiffToInfo = 1

// Level is an enumeration representing the log severity levels supported by
// the topology.
//
// The order of the logging levels is important. A LogSink is expected to treat
// Info as level 0. Any additions to the Level enumeration before LevelInfo
// will need to also update the "DiffToInfo" constant.
type Level int

const (
	// LevelOff suppresses logging.
	LevelOff Level = iota

	// LevelInfo enables logging of informational messages. These logs are
	// high-level information about normal behavior. Example: the topology type
	// changing.
	LevelInfo

	// LevelDebug enables logging of debug messages. These logs can be
	// voluminous and are intended for detailed information that may be helpful
	// when debugging an application. Example: every heartbeat.
	LevelDebug
)

// LevelLiteral are the logging levels read from environment variables. See
// ParseLevel for how they map onto a Level.
type LevelLiteral string

const (
	OffLevelLiteral       LevelLiteral = "off"
	EmergencyLevelLiteral LevelLiteral = "emergency"
	AlertLevelLiteral     LevelLiteral = "alert"
	CriticalLevelLiteral  LevelLiteral = "critical"
	ErrorLevelLiteral     LevelLiteral = "error"
	WarnLevelLiteral      LevelLiteral = "warn"
	NoticeLevelLiteral    LevelLiteral = "notice"
	InfoLevelLiteral      LevelLiteral = "info"
	DebugLevelLiteral     LevelLiteral = "debug"
	TraceLevelLiteral     LevelLiteral = "trace"
)

// Level will return the Level associated with the level literal. If the
// literal is not a valid level, then LevelOff is returned.
func (llevel LevelLiteral) Level() Level {
	switch llevel {
	case ErrorLevelLiteral, WarnLevelLiteral, NoticeLevelLiteral, InfoLevelLiteral:
		return LevelInfo
	case DebugLevelLiteral, TraceLevelLiteral:
		return LevelDebug
	default:
		return LevelOff
	}
}

func (llevel LevelLiteral) equalFold(str string) bool {
	return strings.EqualFold(string(llevel), str)
}

// AllLevelLiterals returns every recognized level literal.
func AllLevelLiterals() []LevelLiteral {
	return []LevelLiteral{
		OffLevelLiteral,
		EmergencyLevelLiteral,
		AlertLevelLiteral,
		CriticalLevelLiteral,
		ErrorLevelLiteral,
		WarnLevelLiteral,
		NoticeLevelLiteral,
		InfoLevelLiteral,
		DebugLevelLiteral,
		TraceLevelLiteral,
	}
}

// ParseLevel will check if the given string is a valid literal for a logging
// severity level. If it is, then it will return the Level. The default Level
// is "Off".
func ParseLevel(level string) Level {
	for _, llevel := range AllLevelLiterals() {
		if llevel.equalFold(level) {
			return llevel.Level()
		}
	}

	return LevelOff
}
