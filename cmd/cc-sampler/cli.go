// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-sampler.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"flag"
	"time"
)

var (
	flagGops, flagVersion, flagLogDateTime  bool
	flagConfigFile, flagLogLevel            string
	flagTimeout, flagInterval, flagBackoff  time.Duration
	flagCollectorPaths                      pathList
)

// pathList lets -path be given more than once.
type pathList []string

func (p *pathList) String() string {
	return ""
}

func (p *pathList) Set(value string) error {
	*p = append(*p, value)
	return nil
}

func cliInit() {
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.BoolVar(&flagVersion, "version", false, "Show version information and exit")
	flag.BoolVar(&flagLogDateTime, "logdate", false, "Set this flag to add date and time to log messages")
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Specify alternative path to `config.json`")
	flag.StringVar(&flagLogLevel, "loglevel", "info", "Sets the logging level: `[debug, info (default), warn, err, crit]`")
	flag.DurationVar(&flagTimeout, "timeout", 60*time.Second, "Collection round timeout")
	flag.DurationVar(&flagInterval, "interval", 120*time.Second, "Collection interval")
	flag.DurationVar(&flagBackoff, "backoff", 10*time.Second, "Sleep after a round that overran the interval")
	flag.Var(&flagCollectorPaths, "path", "Add `path` when scanning for collector definitions (repeatable)")
	flag.Parse()
}
