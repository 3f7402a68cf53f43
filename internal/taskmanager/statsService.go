// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-sampler.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package taskmanager

import (
	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/ClusterCockpit/cc-sampler/internal/agent"
	"github.com/go-co-op/gocron/v2"
)

// RegisterStatsService logs the agent counters every 10 minutes, giving the
// journal a heartbeat even when nothing scrapes the monitoring endpoint.
func RegisterStatsService(core *agent.Core) {
	d, err := parseDuration("10m")
	if err != nil {
		cclog.Errorf("RegisterStatsService: %v", err)
		return
	}

	cclog.Info("register stats service with 10m interval")

	s.NewJob(gocron.DurationJob(d),
		gocron.NewTask(
			func() {
				stats := core.Stats()
				snap := core.Snapshot()
				cclog.Infof("stats: rounds=%d cells=%d stragglers=%d dispatch-errors=%d failed-results=%d",
					stats.Rounds, len(snap.Metrics)+len(snap.States),
					stats.Stragglers, stats.DispatchErrors, stats.FailedResults)
			}))
}
