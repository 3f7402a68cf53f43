// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-sampler.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package worker isolates one collector instance in its own OS subprocess
// and speaks the pipe protocol between the supervisor and that process.
//
// The supervisor writes JSON frames to the worker's stdin: one bootstrap
// frame, then ticks, then a shutdown sentinel. The worker answers on stdout
// with result frames (one per tick), cell update frames and reload latch
// events. Cells are addressed by allocation ordinal: the supervisor runs the
// sampler factory once in its own process to allocate the real registry
// cells, the worker runs the same factory against a proxy allocator handing
// out ordinals in the same deterministic order, and the supervisor maps
// ordinal to cell id when applying updates.
package worker

import (
	"sync/atomic"

	"github.com/ClusterCockpit/cc-lib/v2/schema"
)

// Bootstrap is the first frame a worker receives. It carries everything the
// worker needs to rebuild the sampler: the collector type, its logical name
// and the merged (definition defaults + config entry) collector config.
type Bootstrap struct {
	Type   string         `json:"type"`
	Name   string         `json:"name"`
	Config map[string]any `json:"config"`
}

// controlFrame is one supervisor-to-worker message. Exactly one of the
// fields is set.
type controlFrame struct {
	Bootstrap *Bootstrap `json:"bootstrap,omitempty"`
	Tick      *uint64    `json:"tick,omitempty"`
	Shutdown  bool       `json:"shutdown,omitempty"`
}

// Frame kinds sent by the worker.
const (
	kindResult = "result"
	kindMetric = "metric"
	kindState  = "state"
	kindReload = "reload"
)

// eventFrame is one worker-to-supervisor message. Value rides as a
// schema.Float so an Unset (NaN) survives JSON as null.
type eventFrame struct {
	Kind  string       `json:"kind"`
	Tick  uint64       `json:"tick"`
	OK    bool         `json:"ok"`
	Cell  int          `json:"cell"`
	Value schema.Float `json:"value"`
}

// Result is one completed tick, forwarded to the core's shared result queue.
type Result struct {
	Tick uint64
	OK   bool
}

// ReloadLatch is the one-shot "rebuild me" flag a sampler can set. It
// latches monotonically and is never reset; a replacement instance gets a
// fresh latch.
type ReloadLatch struct {
	v atomic.Bool
}

func (l *ReloadLatch) Set() {
	l.v.Store(true)
}

func (l *ReloadLatch) IsSet() bool {
	return l.v.Load()
}
