// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/ikmak/mongo-sdam/internal/logger"
	"github.com/ikmak/mongo-sdam/internal/sdamtest"
	"github.com/ikmak/mongo-sdam/topology"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"
)

var errMismatch = errors.New("scenario outcome mismatch")

var dumper = spew.ConfigState{
	Indent:                  "  ",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

type flags struct {
	configFile string
	envFile    string
	check      bool
	verbose    bool
	logLevel   string
}

func newRootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:          "sdamreplay [flags] <scenario file or directory>...",
		Short:        "Replay SDAM scenarios and print the resulting topology descriptions",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.resolve(cmd)
			if err != nil {
				return err
			}
			r := &replayer{
				out:     cmd.OutOrStdout(),
				check:   cfg.Check,
				verbose: cfg.Verbose,
				log:     newLogger(cmd.ErrOrStderr(), cfg.LogLevel),
			}
			return r.run(args)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.configFile, "config", defaultConfigFile, "TOML config file")
	fs.StringVar(&f.envFile, "env", defaultEnvFile, "file of environment variables to load")
	fs.BoolVar(&f.check, "check", false, "compare every phase against its outcome and fail on a mismatch")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "dump every server description")
	fs.StringVar(&f.logLevel, "log-level", "", "topology log level (off, info, debug); defaults to MONGODB_LOG_TOPOLOGY")

	return cmd
}

// resolve merges the config file, the env file and the command line flags.
func (f flags) resolve(cmd *cobra.Command) (config, error) {
	fs := cmd.Flags()

	if err := loadEnv(f.envFile, fs.Changed("env")); err != nil {
		return config{}, err
	}
	cfg, err := loadConfig(f.configFile, fs.Changed("config"))
	if err != nil {
		return config{}, err
	}

	if fs.Changed("check") {
		cfg.Check = f.check
	}
	if fs.Changed("verbose") {
		cfg.Verbose = f.verbose
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	return cfg, nil
}

// newLogger writes JSON lines to w. An empty level defers to the
// MONGODB_LOG_* environment variables.
func newLogger(w io.Writer, level string) *logger.Logger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetLevel(logrus.DebugLevel)
	log.SetFormatter(&logrus.JSONFormatter{})

	var levels map[logger.Component]logger.Level
	if level != "" {
		levels = map[logger.Component]logger.Level{
			logger.ComponentTopology: logger.ParseLevel(level),
		}
	}
	return logger.New(logger.NewLogrusSink(log), levels)
}

type replayer struct {
	out     io.Writer
	check   bool
	verbose bool
	log     *logger.Logger
}

func (r *replayer) run(args []string) error {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return errors.Wrap(err, "reading scenario")
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}

		found, err := sdamtest.FindScenarioFiles(arg)
		if err != nil {
			return err
		}
		files = append(files, found...)
	}

	var failed int
	for _, file := range files {
		n, err := r.replayFile(file)
		if err != nil {
			return err
		}
		failed += n
	}

	if r.check && failed > 0 {
		return errors.Wrapf(errMismatch, "%d phase(s) failed", failed)
	}
	return nil
}

// replayFile prints every phase of file and returns how many of them did
// not produce their outcome.
func (r *replayer) replayFile(file string) (int, error) {
	s, err := sdamtest.Load(file)
	if err != nil {
		return 0, err
	}

	results, err := sdamtest.Replay(s, topology.WithLogger(r.log))
	if err != nil {
		return 0, err
	}

	fmt.Fprintf(r.out, "# %s: %s\n", file, s.Description)

	var failed int
	for _, res := range results {
		b, err := json.Marshal(res.Topology)
		if err != nil {
			return 0, errors.Wrapf(err, "encoding phase %d of %s", res.Phase, file)
		}

		fmt.Fprintf(r.out, "## phase %d: %s\n", res.Phase, res.Description)
		fmt.Fprintf(r.out, "%s", pretty.Pretty(b))

		for _, err := range res.Errors {
			fmt.Fprintf(r.out, "refused: %v\n", err)
		}
		for _, err := range res.Passthrough {
			fmt.Fprintf(r.out, "passthrough: %v\n", err)
		}
		if r.verbose {
			dumper.Fdump(r.out, res.Topology.Servers)
		}

		if !r.check {
			continue
		}
		if res.Failed() || len(res.Errors) > 0 {
			failed++
			for _, m := range res.Mismatches {
				fmt.Fprintf(r.out, "MISMATCH %s\n", m)
			}
			continue
		}
		fmt.Fprintln(r.out, "ok")
	}

	return failed, nil
}
