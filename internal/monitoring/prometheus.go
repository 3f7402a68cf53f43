// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-sampler.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package monitoring serves the agent's own HTTP surface: a Prometheus view
// of the registry, the raw JSON snapshot for embedding programs, and a
// health summary over the supervisor set.
package monitoring

import (
	"sort"
	"strings"

	"github.com/ClusterCockpit/cc-sampler/internal/agent"
	"github.com/prometheus/client_golang/prometheus"
)

// snapshotCollector adapts registry snapshots to the Prometheus scrape
// model. The 'what' tag becomes the metric name, remaining tags become
// labels. It is an unchecked collector: the cell population changes whenever
// workers are recycled.
type snapshotCollector struct {
	core *agent.Core
}

func newSnapshotCollector(core *agent.Core) *snapshotCollector {
	return &snapshotCollector{core: core}
}

func (sc *snapshotCollector) Describe(chan<- *prometheus.Desc) {
	// Unchecked on purpose, see type comment.
}

func (sc *snapshotCollector) Collect(ch chan<- prometheus.Metric) {
	snap := sc.core.Snapshot()

	for _, m := range snap.Metrics {
		ch <- constMetric(m.Tags, "sample", float64(m.Value))
	}
	for _, s := range snap.States {
		v := 0.0
		if s.Ok {
			v = 1.0
		}
		ch <- constMetric(s.Tags, "state", v)
	}

	stats := sc.core.Stats()
	for name, v := range map[string]uint64{
		"rounds":          stats.Rounds,
		"dispatch_errors": stats.DispatchErrors,
		"failed_results":  stats.FailedResults,
		"stragglers":      stats.Stragglers,
	} {
		desc := prometheus.NewDesc("ccsampler_"+name+"_total", "cc-sampler agent counter", nil, nil)
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v))
	}
}

func constMetric(tags map[string]string, fallback string, v float64) prometheus.Metric {
	what, ok := tags["what"]
	if !ok || what == "" {
		what = fallback
	}

	raw := make([]string, 0, len(tags))
	for k := range tags {
		if k != "what" {
			raw = append(raw, k)
		}
	}
	sort.Strings(raw)

	keys := make([]string, 0, len(raw))
	vals := make([]string, 0, len(raw))
	for _, k := range raw {
		keys = append(keys, sanitizeName(k))
		vals = append(vals, tags[k])
	}

	desc := prometheus.NewDesc("ccsampler_"+sanitizeName(what), "cc-sampler collected sample", keys, nil)
	return prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, v, vals...)
}

// sanitizeName maps a tag or 'what' name onto the Prometheus charset.
func sanitizeName(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9' && i > 0:
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
