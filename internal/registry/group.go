// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-sampler.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package registry

import "sync"

// Group is a sub-view of the Registry bound to one collector supervisor or
// one worker instance. It records every id it allocates and frees them all
// when released. Groups nest through the scope tree: the supervisor holds a
// parent Group, each worker instance gets a child Group via PerChild, and
// recycling a worker releases only the child's cells.
type Group struct {
	reg      *Registry
	mu       sync.Mutex
	ids      []int
	released bool
}

// Metric allocates a numeric cell owned by this group.
func (g *Group) Metric(tags map[string]string) Metric {
	n, m := g.reg.Metric(tags)
	g.mu.Lock()
	g.ids = append(g.ids, n)
	g.mu.Unlock()
	return m
}

// State allocates an ok/critical cell owned by this group.
func (g *Group) State(tags map[string]string) State {
	n, s := g.reg.State(tags)
	g.mu.Lock()
	g.ids = append(g.ids, n)
	g.mu.Unlock()
	return s
}

// Scoped returns an allocator that pre-binds the given tags. Cells still
// belong to this group; per-allocation tags win over pre-bound ones.
func (g *Group) Scoped(tags map[string]string) Allocator {
	return WithTags(g, tags)
}

// IDs returns the owned cell ids in allocation order. The worker protocol
// addresses cells by this ordinal.
func (g *Group) IDs() []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]int, len(g.ids))
	copy(ids, g.ids)
	return ids
}

// PerChild creates a sibling group on the same registry for a child scope.
func (g *Group) PerChild() any {
	return g.reg.Group()
}

// Release frees every cell this group owns. Child groups are released
// separately through the scope tree.
func (g *Group) Release() {
	g.mu.Lock()
	ids := g.ids
	g.ids = nil
	g.released = true
	g.mu.Unlock()

	for _, n := range ids {
		g.reg.Free(n)
	}
}

// WithTags wraps an allocator so every allocation carries the given tags in
// addition to its own. Used for Scoped views on both the supervisor-side
// Group and the worker-side proxy.
func WithTags(next Allocator, tags map[string]string) Allocator {
	return &scopedAllocator{next: next, tags: tags}
}

type scopedAllocator struct {
	next Allocator
	tags map[string]string
}

func (s *scopedAllocator) merge(tags map[string]string) map[string]string {
	t := make(map[string]string, len(s.tags)+len(tags))
	for k, v := range s.tags {
		t[k] = v
	}
	for k, v := range tags {
		t[k] = v
	}
	return t
}

func (s *scopedAllocator) Metric(tags map[string]string) Metric {
	return s.next.Metric(s.merge(tags))
}

func (s *scopedAllocator) State(tags map[string]string) State {
	return s.next.State(s.merge(tags))
}

func (s *scopedAllocator) Scoped(tags map[string]string) Allocator {
	return WithTags(s, tags)
}
