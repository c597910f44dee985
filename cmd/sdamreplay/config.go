// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package main

import (
	"io/ioutil"
	"os"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

const (
	defaultConfigFile = "sdamreplay.toml"
	defaultEnvFile    = ".env"
)

// config is read from the TOML file. Command line flags override it.
type config struct {
	Check    bool   `toml:"check"`
	Verbose  bool   `toml:"verbose"`
	LogLevel string `toml:"log_level"`
}

// loadConfig reads path into a config. A missing file yields the zero config
// unless the path was given explicitly.
func loadConfig(path string, explicit bool) (config, error) {
	var cfg config

	b, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) && !explicit {
		return cfg, nil
	}
	if err != nil {
		return cfg, errors.Wrap(err, "reading config")
	}

	if err := toml.Unmarshal(b, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing config %s", path)
	}
	return cfg, nil
}

// loadEnv adds the variables of path to the environment. Variables already
// set are kept. MONGODB_LOG_* variables select the log levels.
func loadEnv(path string, explicit bool) error {
	if _, err := os.Stat(path); os.IsNotExist(err) && !explicit {
		return nil
	}
	return errors.Wrapf(godotenv.Load(path), "loading %s", path)
}
