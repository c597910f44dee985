// Copyright (C) MongoDB, Inc. 2023-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package sdamtest loads and replays SDAM scenario files: a seed list, a
// series of phases of hello responses and application errors, and the
// topology each phase is expected to produce.
package sdamtest

import (
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

var scenarioExtensions = map[string]bool{
	".json": true,
	".yml":  true,
	".yaml": true,
}

// IsScenarioFile reports whether the file name has a scenario extension.
func IsScenarioFile(name string) bool {
	return scenarioExtensions[strings.ToLower(filepath.Ext(name))]
}

// FindScenarioFiles walks dir and returns the path of every JSON or YAML
// scenario file below it, sorted.
func FindScenarioFiles(dir string) ([]string, error) {
	var files []string

	err := godirwalk.Walk(dir, &godirwalk.Options{
		Unsorted: true,
		Callback: func(osPathname string, de *godirwalk.Dirent) error {
			if de.IsDir() || !IsScenarioFile(osPathname) {
				return nil
			}
			files = append(files, osPathname)
			return nil
		},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walking %s", dir)
	}

	sort.Strings(files)
	return files, nil
}

// FindScenarioFilesInDir is FindScenarioFiles for tests: it fails t on error
// and on an empty result.
func FindScenarioFilesInDir(t *testing.T, dir string) []string {
	t.Helper()

	files, err := FindScenarioFiles(dir)
	require.NoError(t, err)
	require.NotEmpty(t, files, "no scenario files found in %s", dir)

	return files
}
