// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-sampler.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package taskmanager

import (
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/ClusterCockpit/cc-sampler/internal/agent"
	"github.com/ClusterCockpit/cc-sampler/internal/sinks"
	"github.com/go-co-op/gocron/v2"
)

// RegisterPublishService ships a registry snapshot to the NATS sink at the
// given frequency (a Go duration string, default 1m).
func RegisterPublishService(frequency string, core *agent.Core, sink *sinks.NatsSink) {
	if frequency == "" {
		frequency = "1m"
	}

	d, err := parseDuration(frequency)
	if err != nil {
		cclog.Errorf("RegisterPublishService: %v", err)
		return
	}

	cclog.Infof("register snapshot publish service with %s interval", frequency)

	s.NewJob(gocron.DurationJob(d),
		gocron.NewTask(
			func() {
				start := time.Now()
				if err := sink.Publish(core.Snapshot()); err != nil {
					cclog.Errorf("snapshot publish failed: %v", err)
					return
				}
				cclog.Debugf("snapshot published in %s", time.Since(start))
			}))
}
