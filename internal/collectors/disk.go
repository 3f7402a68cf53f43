// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-sampler.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build linux

package collectors

import (
	"fmt"
	"math"

	"github.com/ClusterCockpit/cc-sampler/internal/registry"
	"github.com/ClusterCockpit/cc-sampler/internal/scope"
	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

func init() {
	Register("disk", setupDisk)
}

// Pseudo filesystems that never carry interesting capacity numbers.
var diskSkipFSType = map[string]bool{
	"cgroup":   true,
	"cgroup2":  true,
	"devpts":   true,
	"sysfs":    true,
	"proc":     true,
	"devtmpfs": true,
	"mqueue":   true,
	"autofs":   true,
	"overlay":  true,
	"tmpfs":    true,
}

type diskUsage struct {
	total, free, avail, rest float64
}

type diskMount struct {
	device     string
	mountpoint string
	usage      diskUsage
}

// diskSampler publishes capacity numbers per mountpoint. The set of
// mountpoints is fixed at setup; when it changes the sampler pulls the
// reload latch so the supervisor rebuilds it against the new layout.
type diskSampler struct {
	disks    map[string]map[string]registry.Metric
	lastSeen map[string]bool
	reload   func()
}

func setupDisk(s *scope.Scope) (Sampler, error) {
	if err := requireLinux(s); err != nil {
		return nil, err
	}

	reg, err := requireRegistry(s)
	if err != nil {
		return nil, err
	}

	reload, err := scope.Get[func()](s, "reload")
	if err != nil {
		return nil, err
	}

	mounts, err := readMounts()
	if err != nil {
		return nil, fmt.Errorf("read mounts: %w", err)
	}

	d := &diskSampler{
		disks:    make(map[string]map[string]registry.Metric),
		lastSeen: make(map[string]bool, len(mounts)),
		reload:   reload,
	}
	for _, m := range mounts {
		d.lastSeen[m.mountpoint] = true
		if m.usage.total <= 0 {
			continue
		}

		scoped := reg.Scoped(map[string]string{
			"mountpoint": m.mountpoint,
			"device":     m.device,
		})
		d.disks[m.mountpoint] = map[string]registry.Metric{
			"total":      scoped.Metric(map[string]string{"what": "disk-total", "unit": "B"}),
			"free":       scoped.Metric(map[string]string{"what": "disk-free", "unit": "B"}),
			"avail":      scoped.Metric(map[string]string{"what": "disk-avail", "unit": "B"}),
			"rest":       scoped.Metric(map[string]string{"what": "disk-rest", "unit": "B"}),
			"free-perc":  scoped.Metric(map[string]string{"what": "disk-free-percentage", "unit": "%"}),
			"avail-perc": scoped.Metric(map[string]string{"what": "disk-avail-percentage", "unit": "%"}),
			"rest-perc":  scoped.Metric(map[string]string{"what": "disk-rest-percentage", "unit": "%"}),
		}
	}

	d.update(mounts)
	return d, nil
}

func readMounts() ([]diskMount, error) {
	infos, err := procfs.GetMounts()
	if err != nil {
		return nil, err
	}

	mounts := make([]diskMount, 0, len(infos))
	for _, mi := range infos {
		if diskSkipFSType[mi.FSType] || mi.Source == mi.FSType {
			continue
		}

		var st unix.Statfs_t
		if err := unix.Statfs(mi.MountPoint, &st); err != nil {
			continue
		}

		frsize := float64(st.Frsize)
		free := frsize * float64(st.Bfree)
		avail := frsize * float64(st.Bavail)
		mounts = append(mounts, diskMount{
			device:     mi.Source,
			mountpoint: mi.MountPoint,
			usage: diskUsage{
				total: frsize * float64(st.Blocks),
				free:  free,
				avail: avail,
				rest:  free - avail,
			},
		})
	}
	return mounts, nil
}

func (d *diskSampler) update(mounts []diskMount) {
	for _, m := range mounts {
		disk, ok := d.disks[m.mountpoint]
		if !ok || m.usage.total <= 0 {
			continue
		}

		u := m.usage
		disk["total"].Update(u.total)
		disk["free"].Update(u.free)
		disk["avail"].Update(u.avail)
		disk["rest"].Update(u.rest)
		disk["free-perc"].Update(round2(u.free / u.total))
		disk["avail-perc"].Update(round2(u.avail / u.total))
		disk["rest-perc"].Update(round2(u.rest / u.total))
	}
}

// checkReload pulls the reload latch when the mountpoint layout changed.
func (d *diskSampler) checkReload(mounts []diskMount) {
	seen := make(map[string]bool, len(mounts))
	for _, m := range mounts {
		seen[m.mountpoint] = true
	}

	changed := len(seen) != len(d.lastSeen)
	if !changed {
		for mp := range seen {
			if !d.lastSeen[mp] {
				changed = true
				break
			}
		}
	}
	if changed {
		d.reload()
	}

	d.lastSeen = seen
}

func (d *diskSampler) Sample() error {
	mounts, err := readMounts()
	if err != nil {
		return err
	}

	d.checkReload(mounts)
	d.update(mounts)
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
