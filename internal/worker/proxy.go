// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-sampler.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package worker

import (
	"github.com/ClusterCockpit/cc-lib/v2/schema"
	"github.com/ClusterCockpit/cc-sampler/internal/registry"
)

// proxyAllocator is the worker-side stand-in for a registry Group. It hands
// out ordinals in allocation order; the supervisor ran the same factory with
// the same config, so ordinal n here is cell n of the instance's group over
// there. Updates travel as frames on stdout.
type proxyAllocator struct {
	send func(eventFrame)
	next int
}

func newProxyAllocator(send func(eventFrame)) *proxyAllocator {
	return &proxyAllocator{send: send}
}

func (p *proxyAllocator) alloc() int {
	n := p.next
	p.next++
	return n
}

func (p *proxyAllocator) Metric(tags map[string]string) registry.Metric {
	return &proxyMetric{send: p.send, cell: p.alloc()}
}

func (p *proxyAllocator) State(tags map[string]string) registry.State {
	return &proxyState{send: p.send, cell: p.alloc()}
}

func (p *proxyAllocator) Scoped(tags map[string]string) registry.Allocator {
	return registry.WithTags(p, tags)
}

type proxyMetric struct {
	send func(eventFrame)
	cell int
}

func (m *proxyMetric) Update(v float64) {
	m.send(eventFrame{Kind: kindMetric, Cell: m.cell, Value: schema.Float(v)})
}

func (m *proxyMetric) Unset() {
	m.send(eventFrame{Kind: kindMetric, Cell: m.cell, Value: schema.NaN})
}

type proxyState struct {
	send func(eventFrame)
	cell int
}

func (s *proxyState) Ok()       { s.Update(true) }
func (s *proxyState) Critical() { s.Update(false) }

func (s *proxyState) Update(ok bool) {
	s.send(eventFrame{Kind: kindState, Cell: s.cell, OK: ok})
}
