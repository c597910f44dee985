// Copyright (C) MongoDB, Inc. 2023-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package logger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/ikmak/mongo-sdam/address"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogSink struct {
	mu       sync.Mutex
	messages []string
	levels   []int
}

func (sink *mockLogSink) Info(level int, msg string, _ ...interface{}) {
	sink.mu.Lock()
	defer sink.mu.Unlock()

	sink.messages = append(sink.messages, msg)
	sink.levels = append(sink.levels, level)
}

func BenchmarkLogger(b *testing.B) {
	b.ReportAllocs()
	b.ResetTimer()

	b.Run("Print", func(b *testing.B) {
		b.ReportAllocs()
		b.ResetTimer()

		logger := New(&mockLogSink{}, map[Component]Level{
			ComponentTopology: LevelDebug,
		})

		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				logger.Print(LevelInfo, ComponentTopology, "foo", "bar", "baz")
			}
		})
	})
}

func mockKeyValues(length int) (KeyValues, map[string]interface{}) {
	keysAndValues := KeyValues{}
	m := map[string]interface{}{}

	for i := 0; i < length; i++ {
		keyName := fmt.Sprintf("key%d", i)
		valueName := fmt.Sprintf("value%d", i)

		keysAndValues.Add(keyName, valueName)
		m[keyName] = valueName
	}

	return keysAndValues, m
}

func TestLogrusSinkInfo(t *testing.T) {
	t.Parallel()

	buf := new(bytes.Buffer)
	sink := NewLogrusSink(newLogrusLogger(buf))

	keysAndValues, want := mockKeyValues(10)
	sink.Info(0, "foo", keysAndValues...)

	got := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))

	assert.Equal(t, "foo", got["msg"])
	assert.Equal(t, "info", got["level"])
	for k, v := range want {
		assert.Equal(t, v, got[k], "key %q", k)
	}
}

func TestLogrusSinkDebug(t *testing.T) {
	t.Parallel()

	buf := new(bytes.Buffer)
	sink := NewLogrusSink(newLogrusLogger(buf))
	sink.Info(1, "heartbeat")

	got := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "debug", got["level"])
}

func TestLogrusSinkDefaultLogger(t *testing.T) {
	t.Parallel()

	sink := NewLogrusSink(nil)
	assert.Same(t, logrus.StandardLogger(), sink.log)
}

func TestLoggerPrint(t *testing.T) {
	t.Parallel()

	sink := &mockLogSink{}
	logger := New(sink, map[Component]Level{ComponentTopology: LevelInfo})

	logger.Print(LevelInfo, ComponentTopology, "info")
	logger.Print(LevelDebug, ComponentTopology, "debug")
	logger.Print(LevelInfo, ComponentServerSelection, "other component")

	assert.Equal(t, []string{"info"}, sink.messages)
	assert.Equal(t, []int{0}, sink.levels)
}

func TestLoggerPrintNil(t *testing.T) {
	t.Parallel()

	var logger *Logger
	assert.NotPanics(t, func() {
		logger.Print(LevelInfo, ComponentTopology, "nothing")
	})
}

func TestLevelComponentEnabled(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		levels    map[Component]Level
		level     Level
		component Component
		want      bool
	}{
		{"off is never enabled", map[Component]Level{ComponentTopology: LevelDebug}, LevelOff, ComponentTopology, false},
		{"debug includes info", map[Component]Level{ComponentTopology: LevelDebug}, LevelInfo, ComponentTopology, true},
		{"info excludes debug", map[Component]Level{ComponentTopology: LevelInfo}, LevelDebug, ComponentTopology, false},
		{"all covers components", map[Component]Level{ComponentAll: LevelDebug}, LevelDebug, ComponentConnection, true},
		{"nil levels", nil, LevelInfo, ComponentTopology, false},
	}

	for _, tcase := range tests {
		tcase := tcase

		t.Run(tcase.name, func(t *testing.T) {
			t.Parallel()

			logger := &Logger{ComponentLevels: tcase.levels}
			assert.Equal(t, tcase.want, logger.LevelComponentEnabled(tcase.level, tcase.component))
		})
	}
}

func TestSelectComponentLevels(t *testing.T) {
	t.Run("environment", func(t *testing.T) {
		t.Setenv(mongoDBLogTopologyEnvVar, "debug")
		t.Setenv(mongoDBLogServerSelectionEnvVar, "warn")

		got := selectComponentLevels(nil)
		assert.Equal(t, LevelDebug, got[ComponentTopology])
		assert.Equal(t, LevelInfo, got[ComponentServerSelection])
		assert.Equal(t, LevelOff, got[ComponentConnection])
		assert.True(t, EnvHasComponentVariables())
	})
	t.Run("all overrides component variables", func(t *testing.T) {
		t.Setenv(mongoDBLogAllEnvVar, "trace")
		t.Setenv(mongoDBLogTopologyEnvVar, "off")

		got := selectComponentLevels(nil)
		assert.Equal(t, LevelDebug, got[ComponentTopology])
		assert.Equal(t, LevelDebug, got[ComponentConnection])
	})
	t.Run("user levels take priority", func(t *testing.T) {
		t.Setenv(mongoDBLogTopologyEnvVar, "debug")

		got := selectComponentLevels(map[Component]Level{ComponentTopology: LevelOff})
		assert.Equal(t, LevelOff, got[ComponentTopology])
	})
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	for str, want := range map[string]Level{
		"off":       LevelOff,
		"EMERGENCY": LevelOff,
		"error":     LevelInfo,
		"Notice":    LevelInfo,
		"info":      LevelInfo,
		"debug":     LevelDebug,
		"TRACE":     LevelDebug,
		"bogus":     LevelOff,
		"":          LevelOff,
	} {
		assert.Equal(t, want, ParseLevel(str), str)
	}
}

func TestSerializeServer(t *testing.T) {
	t.Parallel()

	kvs := SerializeServer(address.Address("Example.com:27018"), KeyAwaited, true)
	assert.Equal(t, KeyValues{KeyServerHost, "example.com", KeyServerPort, 27018, KeyAwaited, true}, kvs)

	kvs = SerializeServer(address.Address("/tmp/mongodb-27017.sock"))
	assert.Equal(t, KeyValues{KeyServerHost, "/tmp/mongodb-27017.sock"}, kvs)
}
