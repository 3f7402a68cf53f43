// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-sampler.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package taskmanager schedules the agent's background services: snapshot
// publishing to the configured sinks and periodic registry statistics. These
// run on their own cadence, decoupled from the collection rounds.
package taskmanager

import (
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/go-co-op/gocron/v2"
)

var s gocron.Scheduler

// parseDuration parses a duration string, logging the failure.
func parseDuration(str string) (time.Duration, error) {
	interval, err := time.ParseDuration(str)
	if err != nil {
		cclog.Warnf("could not parse duration '%v'", str)
		return 0, err
	}

	if interval == 0 {
		cclog.Info("TaskManager: interval is zero")
	}

	return interval, nil
}

// Init creates the scheduler. Register* calls add jobs; Start runs them.
func Init() {
	var err error
	s, err = gocron.NewScheduler()
	if err != nil {
		cclog.Abortf("TaskManager Init: could not create gocron scheduler.\nError: %s\n", err.Error())
	}
}

// Start runs all registered services.
func Start() {
	s.Start()
}

// Shutdown stops the scheduler and waits for running jobs.
func Shutdown() {
	if s != nil {
		s.Shutdown()
	}
}
