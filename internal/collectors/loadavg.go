// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-sampler.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package collectors

import (
	"fmt"

	"github.com/ClusterCockpit/cc-sampler/internal/registry"
	"github.com/ClusterCockpit/cc-sampler/internal/scope"
	"github.com/prometheus/procfs"
)

func init() {
	Register("loadavg", setupLoadAvg)
}

type loadavgSampler struct {
	fs     procfs.FS
	load1  registry.Metric
	load5  registry.Metric
	load15 registry.Metric
}

func setupLoadAvg(s *scope.Scope) (Sampler, error) {
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

	if _, err := fs.LoadAvg(); err != nil {
		return nil, fmt.Errorf("read loadavg: %w", err)
	}

	return &loadavgSampler{
		fs:     fs,
		load1:  reg.Metric(map[string]string{"what": "loadavg-1m"}),
		load5:  reg.Metric(map[string]string{"what": "loadavg-5m"}),
		load15: reg.Metric(map[string]string{"what": "loadavg-15m"}),
	}, nil
}

func (l *loadavgSampler) Sample() error {
	load, err := l.fs.LoadAvg()
	if err != nil {
		return err
	}

	l.load1.Update(load.Load1)
	l.load5.Update(load.Load5)
	l.load15.Update(load.Load15)
	return nil
}
