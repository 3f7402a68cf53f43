// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-sampler.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package registry holds the process-wide table of metric and state cells.
//
// Cells are identified by dense integer ids allocated from a monotonic
// counter; ids are never reused. Each cell carries an immutable tag set
// composed from the registry's base tags and the tags supplied at allocation
// time (cell-local keys win). Metric cells hold a 64-bit float, NaN until the
// first update; state cells hold ok/critical, critical until the first update.
//
// The collector workers run in separate address spaces, so their cell updates
// travel over the worker pipe and are applied here by the supervisor process.
// Within this process a cell has one writer (the goroutine draining the owning
// worker) and many readers (snapshots, sinks, HTTP handlers), so cell values
// are accessed through 64-bit atomics and Snapshot needs no registry-wide
// lock beyond the id table.
package registry

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ClusterCockpit/cc-lib/v2/schema"
)

// Metric is the write handle for a numeric cell.
type Metric interface {
	Update(v float64)
	Unset()
}

// State is the write handle for an ok/critical cell.
type State interface {
	Ok()
	Critical()
	Update(ok bool)
}

// Allocator is the surface samplers allocate their cells through. It is
// implemented by Group in this process and by the worker-side proxy that
// forwards allocations over the pipe.
type Allocator interface {
	Metric(tags map[string]string) Metric
	State(tags map[string]string) State
	Scoped(tags map[string]string) Allocator
}

type metricCell struct {
	bits atomic.Uint64
}

func (c *metricCell) load() float64     { return math.Float64frombits(c.bits.Load()) }
func (c *metricCell) store(v float64)   { c.bits.Store(math.Float64bits(v)) }
func (c *metricCell) Update(v float64)  { c.store(v) }
func (c *metricCell) Unset()            { c.store(math.NaN()) }

type stateCell struct {
	v atomic.Uint32
}

func (c *stateCell) Ok()       { c.v.Store(1) }
func (c *stateCell) Critical() { c.v.Store(0) }
func (c *stateCell) Update(ok bool) {
	if ok {
		c.v.Store(1)
	} else {
		c.v.Store(0)
	}
}

// Registry is the central cell table. One instance exists per agent setup;
// a reload builds a fresh one and drops the old together with its cells.
type Registry struct {
	mu      sync.Mutex
	next    int
	base    map[string]string
	metrics map[int]*metricCell
	states  map[int]*stateCell
	tags    map[int]map[string]string
}

// MetricSample is one metric cell in a snapshot. Value is null in JSON while
// the cell was never written.
type MetricSample struct {
	Tags  map[string]string `json:"tags"`
	Value schema.Float      `json:"value"`
}

// StateSample is one state cell in a snapshot.
type StateSample struct {
	Tags map[string]string `json:"tags"`
	Ok   bool              `json:"ok"`
}

// Snapshot is a point-in-time view of all live cells, ordered by cell id.
// Individual cell reads are atomic; the snapshot as a whole is not.
type Snapshot struct {
	Metrics []MetricSample `json:"metrics"`
	States  []StateSample  `json:"states"`
}

func New(base map[string]string) *Registry {
	r := &Registry{
		base:    make(map[string]string, len(base)),
		metrics: make(map[int]*metricCell),
		states:  make(map[int]*stateCell),
		tags:    make(map[int]map[string]string),
	}
	for k, v := range base {
		r.base[k] = v
	}
	return r
}

func (r *Registry) composeTags(tags map[string]string) map[string]string {
	t := make(map[string]string, len(r.base)+len(tags))
	for k, v := range r.base {
		t[k] = v
	}
	for k, v := range tags {
		t[k] = v
	}
	return t
}

// Metric allocates a numeric cell and returns its id and write handle.
func (r *Registry) Metric(tags map[string]string) (int, Metric) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.next
	r.next++

	c := &metricCell{}
	c.store(math.NaN())
	r.metrics[n] = c
	r.tags[n] = r.composeTags(tags)
	return n, c
}

// State allocates an ok/critical cell and returns its id and write handle.
func (r *Registry) State(tags map[string]string) (int, State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.next
	r.next++

	c := &stateCell{}
	r.states[n] = c
	r.tags[n] = r.composeTags(tags)
	return n, c
}

// Free removes the cell with the given id. Updates arriving for a freed id
// are dropped.
func (r *Registry) Free(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.metrics, n)
	delete(r.states, n)
	delete(r.tags, n)
}

// SetMetric applies a worker-reported update to a metric cell. A stale id
// (cell freed while the update was in flight) is silently ignored.
func (r *Registry) SetMetric(n int, v float64) {
	r.mu.Lock()
	c := r.metrics[n]
	r.mu.Unlock()
	if c != nil {
		c.store(v)
	}
}

// SetState applies a worker-reported update to a state cell.
func (r *Registry) SetState(n int, ok bool) {
	r.mu.Lock()
	c := r.states[n]
	r.mu.Unlock()
	if c != nil {
		c.Update(ok)
	}
}

// Snapshot returns all live cells ordered by id.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	mids := make([]int, 0, len(r.metrics))
	for n := range r.metrics {
		mids = append(mids, n)
	}
	sids := make([]int, 0, len(r.states))
	for n := range r.states {
		sids = append(sids, n)
	}
	sort.Ints(mids)
	sort.Ints(sids)

	snap := Snapshot{
		Metrics: make([]MetricSample, 0, len(mids)),
		States:  make([]StateSample, 0, len(sids)),
	}
	for _, n := range mids {
		snap.Metrics = append(snap.Metrics, MetricSample{
			Tags:  r.tags[n],
			Value: schema.Float(r.metrics[n].load()),
		})
	}
	for _, n := range sids {
		snap.States = append(snap.States, StateSample{
			Tags: r.tags[n],
			Ok:   r.states[n].v.Load() == 1,
		})
	}
	r.mu.Unlock()
	return snap
}

// Group returns a fresh sub-view owning its own set of cell ids.
func (r *Registry) Group() *Group {
	return &Group{reg: r}
}

// PerChild lets a Registry bound into a scope graft a fresh Group into every
// child scope.
func (r *Registry) PerChild() any {
	return r.Group()
}
