// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-sampler.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package collectors

import (
	"fmt"
	"math"

	"github.com/ClusterCockpit/cc-sampler/internal/registry"
	"github.com/ClusterCockpit/cc-sampler/internal/scope"
	"github.com/prometheus/procfs"
)

func init() {
	Register("cpu", setupCPU)
}

var cpuFields = []string{
	"user", "nice", "system", "idle", "iowait",
	"irq", "softirq", "steal", "guest", "guest-nice",
}

// cpuSampler publishes the share each CPU mode had of the total time spent
// since the previous sample, from the aggregate line of /proc/stat.
type cpuSampler struct {
	fs     procfs.FS
	usages map[string]registry.Metric
	last   procfs.CPUStat
}

func setupCPU(s *scope.Scope) (Sampler, error) {
	if err := requireLinux(s); err != nil {
		return nil, err
	}

	reg, err := requireRegistry(s)
	if err != nil {
		return nil, err
	}

	cfg := configMap(s)
	fs, err := procfs.NewFS(configString(cfg, "proc", procfs.DefaultMountPoint))
	if err != nil {
		return nil, err
	}

	stat, err := fs.Stat()
	if err != nil {
		return nil, fmt.Errorf("read cpu stat: %w", err)
	}

	c := &cpuSampler{
		fs:     fs,
		usages: make(map[string]registry.Metric, len(cpuFields)),
		last:   stat.CPUTotal,
	}
	for _, field := range cpuFields {
		c.usages[field] = reg.Metric(map[string]string{
			"what": "cpu-usage-" + field,
			"unit": "%",
		})
	}
	return c, nil
}

func cpuTimes(s procfs.CPUStat) []float64 {
	return []float64{
		s.User, s.Nice, s.System, s.Idle, s.Iowait,
		s.IRQ, s.SoftIRQ, s.Steal, s.Guest, s.GuestNice,
	}
}

func (c *cpuSampler) Sample() error {
	stat, err := c.fs.Stat()
	if err != nil {
		return err
	}

	cur, prev := cpuTimes(stat.CPUTotal), cpuTimes(c.last)
	var total float64
	for i := range cur {
		total += cur[i] - prev[i]
	}
	if total <= 0 {
		return nil
	}

	for i, field := range cpuFields {
		share := (cur[i] - prev[i]) / total
		c.usages[field].Update(math.Round(share*100) / 100)
	}

	c.last = stat.CPUTotal
	return nil
}
