// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-sampler.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package agent drives the collection rounds: it dispatches one tick per
// supervisor, waits out the round timeout on the shared result queue, kills
// stragglers, paces itself to the configured interval, and rebuilds the
// whole supervisor set on reload.
package agent

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/ClusterCockpit/cc-sampler/internal/config"
	"github.com/ClusterCockpit/cc-sampler/internal/platform"
	"github.com/ClusterCockpit/cc-sampler/internal/registry"
	"github.com/ClusterCockpit/cc-sampler/internal/scope"
	"github.com/ClusterCockpit/cc-sampler/internal/supervisor"
	"github.com/ClusterCockpit/cc-sampler/internal/worker"
)

// TickMod bounds the tick identifier space. Ticks only correlate a dispatch
// with its completion, so a modest modulus is plenty.
const TickMod = 1 << 20

// resultQueueDepth buffers worker completions between rounds.
const resultQueueDepth = 1024

// Collector is what the core needs from a per-collector supervisor.
type Collector interface {
	Name() string
	Alive() bool
	Check() error
	Collect(tick uint64) error
	Errored(n int)
	Restart(graceful bool) error
	Stop(graceful bool) error
	fmt.Stringer
}

// Options configures a Core.
type Options struct {
	ConfigPath     string
	CollectorPaths []string
	// Timeout is the wall-clock limit for one collection round.
	Timeout time.Duration
	// Interval is the pacing between round starts.
	Interval time.Duration
	// Backoff is slept instead of the cooperative wait when a round overran
	// the interval.
	Backoff time.Duration
}

// Stats are the agent's own counters, exposed through the monitoring
// endpoint.
type Stats struct {
	Rounds         uint64
	DispatchErrors uint64
	FailedResults  uint64
	Stragglers     uint64
}

// Core is the collection loop. All methods except Signalled, Snapshot,
// Health and Stats must be called from the embedding program's main
// goroutine.
type Core struct {
	opts Options
	out  chan worker.Result

	mu         sync.RWMutex
	cfg        *config.Config
	reg        *registry.Registry
	rootScope  *scope.Scope
	collectors []Collector

	signalled atomic.Bool
	tick      uint64

	rounds         atomic.Uint64
	dispatchErrors atomic.Uint64
	failedResults  atomic.Uint64
	stragglers     atomic.Uint64
}

func New(opts Options) *Core {
	return &Core{
		opts: opts,
		out:  make(chan worker.Result, resultQueueDepth),
	}
}

// Signalled trips the latch that short-circuits the current round's
// cooperative waits. Safe from signal handlers and other goroutines.
func (c *Core) Signalled() {
	c.signalled.Store(true)
}

// Setup builds the initial supervisor set from the configuration. Errors
// here are configuration errors and fatal.
func (c *Core) Setup() error {
	cfg, reg, root, cols, err := c.build()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.cfg, c.reg, c.rootScope, c.collectors = cfg, reg, root, cols
	c.mu.Unlock()
	return nil
}

// build constructs a fresh (config, registry, scope, supervisors) quadruple
// from disk. Nothing of the current state is touched, so a failed build
// leaves a running agent intact.
func (c *Core) build() (*config.Config, *registry.Registry, *scope.Scope, []Collector, error) {
	cfg, err := config.Load(c.opts.ConfigPath)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	reg := registry.New(cfg.Tags)
	root := scope.New(map[string]any{
		"platform": platform.New(),
		"registry": reg,
	})

	blacklist := make(map[string]bool, len(cfg.Blacklist))
	for _, t := range cfg.Blacklist {
		blacklist[t] = true
	}

	cols := make([]Collector, 0, len(cfg.Collectors))
	seen := map[string]int{}
	for _, entry := range cfg.Collectors {
		if blacklist[entry.Type] {
			cclog.Infof("%s: blacklisted, skipping", entry.Type)
			continue
		}

		// Repeated types get distinct logical names.
		name := entry.Type
		if n := seen[entry.Type]; n > 0 {
			name = fmt.Sprintf("%s#%d", entry.Type, n)
		}
		seen[entry.Type]++

		s, err := supervisor.New(name, entry, c.opts.CollectorPaths, cfg.InstanceConfig, root, reg, c.out)
		if err != nil {
			root.Free()
			return nil, nil, nil, nil, err
		}
		cols = append(cols, s)
	}

	return cfg, reg, root, cols, nil
}

// CollectAll runs one tick-round: dispatch to every supervisor, collect
// completions for at most the round timeout, forcefully restart stragglers,
// drain orphaned completions. Only a worker refusing to die makes this
// return an error.
func (c *Core) CollectAll() error {
	c.rounds.Add(1)
	collects := make(map[uint64]Collector, len(c.collectors))

	for _, col := range c.collectors {
		tick := c.tick
		c.tick = (c.tick + 1) % TickMod

		if err := col.Collect(tick); err != nil {
			c.dispatchErrors.Add(1)
			cclog.Errorf("%s: failed to collect: %v", col, err)
			continue
		}
		collects[tick] = col
	}

	timeLeft := c.opts.Timeout
	then := time.Now()

	for len(collects) > 0 && timeLeft > 0 {
		var res worker.Result
		select {
		case res = <-c.out:
		case <-time.After(timeLeft):
			timeLeft = 0
			continue
		}

		now := time.Now()
		timeLeft -= now.Sub(then)
		then = now

		col, ok := collects[res.Tick]
		if !ok {
			cclog.Errorf("no collector associated with tick %d", res.Tick)
			continue
		}
		delete(collects, res.Tick)

		if !res.OK {
			c.failedResults.Add(1)
			col.Errored(1)
		}
	}

	// Whatever did not answer in time gets killed and replaced.
	for tick, col := range collects {
		c.stragglers.Add(1)
		cclog.Warnf("%s: timeout (tick %d)", col, tick)
		if err := col.Restart(false); err != nil {
			if isFatal(err) {
				return err
			}
			cclog.Errorf("%s: restart after timeout: %v", col, err)
		}
	}

	// Completions arriving now belong to killed workers; drop them.
	for {
		select {
		case <-c.out:
		default:
			return nil
		}
	}
}

// RunOnce runs one round and then paces to the next one, reviving dead
// workers and ticking restart back-offs in between. Returns early when the
// signalled latch trips.
func (c *Core) RunOnce() error {
	c.signalled.Store(false)
	nextRun := time.Now().Add(c.opts.Interval)

	if err := c.CollectAll(); err != nil {
		return err
	}

	if c.signalled.Load() {
		return nil
	}

	c.debugDump()

	if overrun := time.Since(nextRun); overrun > 0 {
		cclog.Warnf("run took %.2fs too long, sleeping %s", overrun.Seconds(), c.opts.Backoff)
		c.nap(c.opts.Backoff, &c.signalled)
		return nil
	}

	return c.wait(nextRun)
}

// wait sleeps until nextRun in short naps, checking the signalled latch and
// the supervisors' health on every wake.
func (c *Core) wait(nextRun time.Time) error {
	for {
		left := time.Until(nextRun)
		if left <= 0 {
			return nil
		}

		if !c.nap(min(left, time.Second), &c.signalled) {
			return nil
		}

		for _, col := range c.collectors {
			if err := col.Check(); err != nil {
				if isFatal(err) {
					return err
				}
				cclog.Errorf("%s: check: %v", col, err)
			}
		}
	}
}

// nap sleeps up to d in one-second slices. It returns false as soon as the
// given latch trips.
func (c *Core) nap(d time.Duration, latch *atomic.Bool) bool {
	deadline := time.Now().Add(d)
	for {
		left := time.Until(deadline)
		if left <= 0 {
			return true
		}
		time.Sleep(min(left, time.Second))
		if latch != nil && latch.Load() {
			return false
		}
	}
}

func (c *Core) debugDump() {
	snap := c.Snapshot()
	for _, m := range snap.Metrics {
		if m.Value.IsNaN() {
			cclog.Debugf("%v: NaN", m.Tags)
		} else {
			cclog.Debugf("%v: %0.2f", m.Tags, float64(m.Value))
		}
	}
	for _, s := range snap.States {
		cclog.Debugf("%v: ok=%t", s.Tags, s.Ok)
	}
}

// Reload rebuilds the supervisor set from the on-disk configuration. A
// failed build keeps the old set running.
func (c *Core) Reload() error {
	cclog.Info("reloading collectors")

	cfg, reg, root, cols, err := c.build()
	if err != nil {
		cclog.Errorf("reload failed, keeping current collectors: %v", err)
		return nil
	}

	old := c.collectors
	oldScope := c.rootScope
	for _, col := range old {
		cclog.Debugf("%s: deallocating", col)
		if err := col.Stop(true); err != nil {
			if isFatal(err) {
				return err
			}
			cclog.Errorf("%s: stop: %v", col, err)
		}
	}
	oldScope.Free()

	c.mu.Lock()
	c.cfg, c.reg, c.rootScope, c.collectors = cfg, reg, root, cols
	c.mu.Unlock()
	return nil
}

// Stop terminates every supervisor, newest first, and releases the root
// scope.
func (c *Core) Stop() error {
	var fatal error
	for i := len(c.collectors) - 1; i >= 0; i-- {
		if err := c.collectors[i].Stop(true); err != nil {
			if isFatal(err) {
				fatal = err
				continue
			}
			cclog.Errorf("%s: stop: %v", c.collectors[i], err)
		}
	}

	c.mu.Lock()
	if c.rootScope != nil {
		c.rootScope.Free()
	}
	c.collectors = nil
	c.mu.Unlock()
	return fatal
}

// Config returns the configuration the current supervisor set was built
// from.
func (c *Core) Config() *config.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// Snapshot returns the current registry snapshot. Safe from any goroutine.
func (c *Core) Snapshot() registry.Snapshot {
	c.mu.RLock()
	reg := c.reg
	c.mu.RUnlock()
	if reg == nil {
		return registry.Snapshot{}
	}
	return reg.Snapshot()
}

// Health reports per-collector liveness. Safe from any goroutine.
func (c *Core) Health() map[string]bool {
	c.mu.RLock()
	cols := c.collectors
	c.mu.RUnlock()

	health := make(map[string]bool, len(cols))
	for _, col := range cols {
		health[col.Name()] = col.Alive()
	}
	return health
}

// Stats returns the agent's own counters. Safe from any goroutine.
func (c *Core) Stats() Stats {
	return Stats{
		Rounds:         c.rounds.Load(),
		DispatchErrors: c.dispatchErrors.Load(),
		FailedResults:  c.failedResults.Load(),
		Stragglers:     c.stragglers.Load(),
	}
}

func isFatal(err error) bool {
	return worker.IsTerminateFailure(err)
}
