// Copyright (C) MongoDB, Inc. 2023-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package logger

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// LogrusSink writes structured messages to a logrus logger. Sink level 0
// (Info) maps to logrus.InfoLevel and everything above it to DebugLevel.
type LogrusSink struct {
	log *logrus.Logger
}

var _ LogSink = (*LogrusSink)(nil)

// NewLogrusSink will create a LogSink backed by log. A nil log uses the
// logrus standard logger.
func NewLogrusSink(log *logrus.Logger) *LogrusSink {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LogrusSink{log: log}
}

func newLogrusLogger(out io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(logrus.DebugLevel)
	log.SetFormatter(&logrus.JSONFormatter{})
	return log
}

// Info will write the message and key-value pairs as logrus fields.
func (sink *LogrusSink) Info(level int, msg string, keysAndValues ...interface{}) {
	fields := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}

	entry := sink.log.WithFields(fields)
	if level <= 0 {
		entry.Info(msg)
		return
	}
	entry.Debug(msg)
}
