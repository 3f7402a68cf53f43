// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-sampler.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package sinks ships registry snapshots to downstream consumers. The wire
// format is InfluxDB line protocol, the same dialect the rest of the
// ClusterCockpit stack ingests.
package sinks

import (
	"fmt"
	"sort"
	"time"

	"github.com/ClusterCockpit/cc-sampler/internal/registry"
	"github.com/influxdata/line-protocol/v2/lineprotocol"
)

// EncodeSnapshot renders a snapshot as line protocol. The 'what' tag becomes
// the measurement name, the remaining tags ride along sorted; metric cells
// that were never written (NaN) are skipped, state cells publish 0/1.
func EncodeSnapshot(snap registry.Snapshot, ts time.Time) ([]byte, error) {
	var enc lineprotocol.Encoder
	enc.SetPrecision(lineprotocol.Millisecond)

	for _, m := range snap.Metrics {
		v, ok := lineprotocol.FloatValue(float64(m.Value))
		if !ok {
			continue
		}
		encodeLine(&enc, m.Tags, "sample", "value", v, ts)
	}

	for _, s := range snap.States {
		val := int64(0)
		if s.Ok {
			val = 1
		}
		encodeLine(&enc, s.Tags, "state", "ok", lineprotocol.IntValue(val), ts)
	}

	if err := enc.Err(); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return enc.Bytes(), nil
}

func encodeLine(enc *lineprotocol.Encoder, tags map[string]string,
	fallback, field string, v lineprotocol.Value, ts time.Time,
) {
	measurement := tags["what"]
	if measurement == "" {
		measurement = fallback
	}

	keys := make([]string, 0, len(tags))
	for k := range tags {
		if k != "what" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	enc.StartLine(measurement)
	for _, k := range keys {
		enc.AddTag(k, tags[k])
	}
	enc.AddField(field, v)
	enc.EndLine(ts)
}
