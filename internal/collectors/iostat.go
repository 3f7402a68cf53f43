// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-sampler.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package collectors

import (
	"fmt"
	"time"

	"github.com/ClusterCockpit/cc-sampler/internal/registry"
	"github.com/ClusterCockpit/cc-sampler/internal/scope"
	"github.com/prometheus/procfs/blockdevice"
)

func init() {
	Register("iostat", setupIOStat)
}

// The published fields mirror the /proc/diskstats columns. Every field is
// the raw per-second delta of its counter; no derived values (await, util)
// are computed here, downstream consumers can do that from the rates.
var iostatFields = []string{
	"rd-ios", "rd-merges", "rd-sectors", "rd-tics",
	"wr-ios", "wr-merges", "wr-sectors", "wr-tics",
	"ios-pgr", "tot-tics", "rq-tics",
}

type iostatKey struct {
	device string
	field  string
}

type iostatSampler struct {
	fs       blockdevice.FS
	iostats  map[iostatKey]registry.Metric
	last     map[string][]uint64
	lastTime time.Time
}

func setupIOStat(s *scope.Scope) (Sampler, error) {
	if err := requireLinux(s); err != nil {
		return nil, err
	}

	reg, err := requireRegistry(s)
	if err != nil {
		return nil, err
	}

	cfg := configMap(s)
	fs, err := blockdevice.NewFS(
		configString(cfg, "proc", "/proc"),
		configString(cfg, "sys", "/sys"))
	if err != nil {
		return nil, err
	}

	last, err := readDiskstats(fs)
	if err != nil {
		return nil, fmt.Errorf("read diskstats: %w", err)
	}

	io := &iostatSampler{
		fs:       fs,
		iostats:  make(map[iostatKey]registry.Metric),
		last:     last,
		lastTime: time.Now(),
	}
	for device := range last {
		for _, field := range iostatFields {
			io.iostats[iostatKey{device, field}] = reg.Metric(map[string]string{
				"what":   "iostat-" + field,
				"device": device,
			})
		}
	}
	return io, nil
}

func readDiskstats(fs blockdevice.FS) (map[string][]uint64, error) {
	stats, err := fs.ProcDiskstats()
	if err != nil {
		return nil, err
	}

	disks := make(map[string][]uint64, len(stats))
	for _, s := range stats {
		disks[s.Info.DeviceName] = []uint64{
			s.ReadIOs, s.ReadMerges, s.ReadSectors, s.ReadTicks,
			s.WriteIOs, s.WriteMerges, s.WriteSectors, s.WriteTicks,
			s.IOsInProgress, s.IOsTotalTicks, s.WeightedIOTicks,
		}
	}
	return disks, nil
}

func (io *iostatSampler) Sample() error {
	now := time.Now()
	diff := now.Sub(io.lastTime).Seconds()
	io.lastTime = now
	if diff <= 0 {
		return nil
	}

	cur, err := readDiskstats(io.fs)
	if err != nil {
		return err
	}

	for device, s1 := range cur {
		s2, ok := io.last[device]
		if !ok {
			continue
		}

		for i, field := range iostatFields {
			m, ok := io.iostats[iostatKey{device, field}]
			if !ok {
				continue
			}
			m.Update((float64(s1[i]) - float64(s2[i])) / diff)
		}
	}

	io.last = cur
	return nil
}
