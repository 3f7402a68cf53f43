// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-sampler.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package supervisor owns the per-collector state machine: at most one live
// worker instance, crash detection, the recycle policy and the restart
// back-off against bad source revisions.
package supervisor

import (
	"fmt"
	"sync"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/ClusterCockpit/cc-sampler/internal/collectors"
	"github.com/ClusterCockpit/cc-sampler/internal/config"
	"github.com/ClusterCockpit/cc-sampler/internal/registry"
	"github.com/ClusterCockpit/cc-sampler/internal/scope"
	"github.com/ClusterCockpit/cc-sampler/internal/worker"
)

// restartBackoff is the countdown set after a replacement instance could not
// be constructed: the next nine Check calls skip recycling and the tenth
// retries, shielding a still-working instance from a broken source revision.
const restartBackoff = 10

// Supervisor drives one configured collector. The mutex only guards the
// instance pointer so the monitoring endpoint can peek at liveness; the
// back-off countdown and the state machine itself run on the core goroutine.
type Supervisor struct {
	name     string
	typ      string
	defPath  string
	entryCfg map[string]any
	limits   config.InstanceConfig
	scope    *scope.Scope
	reg      *registry.Registry
	out      chan<- worker.Result

	mu                     sync.Mutex
	inst                   *worker.Instance
	failedRestartCountdown int
}

// New builds a supervisor for one collector entry. The logical name is the
// type name, disambiguated by the caller when a type is configured more than
// once. The definition file is resolved once, here; its content is re-read
// on every instance construction.
func New(name string, entry config.CollectorEntry, paths []string, limits config.InstanceConfig,
	parent *scope.Scope, reg *registry.Registry, out chan<- worker.Result,
) (*Supervisor, error) {
	defPath, err := collectors.ResolveDefinition(paths, entry.Type)
	if err != nil {
		return nil, err
	}

	return &Supervisor{
		name:     name,
		typ:      entry.Type,
		defPath:  defPath,
		entryCfg: entry.Config,
		limits:   limits,
		scope:    parent.Child(map[string]any{"config": entry.Config}),
		reg:      reg,
		out:      out,
	}, nil
}

// Name returns the collector's logical name.
func (s *Supervisor) Name() string {
	return s.name
}

// Pid returns the current worker's process id, or 0 without an instance.
// Safe from any goroutine.
func (s *Supervisor) Pid() int {
	s.mu.Lock()
	inst := s.inst
	s.mu.Unlock()
	if inst == nil {
		return 0
	}
	return inst.Pid()
}

// Alive reports whether a live worker instance exists. Safe from any
// goroutine.
func (s *Supervisor) Alive() bool {
	s.mu.Lock()
	inst := s.inst
	s.mu.Unlock()
	return inst != nil && inst.Alive()
}

func (s *Supervisor) instance() (*worker.Instance, error) {
	def, err := collectors.LoadDefinition(s.defPath)
	if err != nil {
		return nil, err
	}

	return worker.Start(worker.Options{
		Name:     s.name,
		Type:     s.typ,
		DefPath:  s.defPath,
		Config:   collectors.MergeConfig(def, s.entryCfg),
		Limits:   s.limits,
		Registry: s.reg,
		Scope:    s.scope,
		Out:      s.out,
	})
}

func (s *Supervisor) setInstance(inst *worker.Instance) {
	s.mu.Lock()
	s.inst = inst
	s.mu.Unlock()
}

// Check ensures a healthy instance: it creates one if absent, replaces a
// dead worker without grace, ticks down the restart back-off, and soft
// restarts an instance that wants recycling.
func (s *Supervisor) Check() error {
	if s.inst == nil {
		inst, err := s.instance()
		if err != nil {
			return fmt.Errorf("%s: start: %w", s.name, err)
		}
		s.setInstance(inst)
		return nil
	}

	if !s.inst.Alive() {
		cclog.Errorf("%s: no longer alive, restarting", s.inst)
		return s.Restart(false)
	}

	if s.failedRestartCountdown > 0 {
		s.failedRestartCountdown--
		if s.failedRestartCountdown > 0 {
			return nil
		}
	}

	if s.inst.NeedsRecycling() {
		cclog.Infof("%s: recycling", s.inst)
		return s.SoftRestart()
	}

	return nil
}

// Collect dispatches one tick to the worker. A failure to send is a dispatch
// error: the core logs it and skips this supervisor for the round.
func (s *Supervisor) Collect(tick uint64) error {
	if err := s.Check(); err != nil {
		return err
	}
	return s.inst.Collect(tick)
}

// Errored counts a failed completion against the current instance.
func (s *Supervisor) Errored(n int) {
	if s.inst != nil {
		s.inst.Errored(n)
	}
}

// Restart terminates the current instance and immediately constructs a
// replacement. Used without grace for dead and straggling workers.
func (s *Supervisor) Restart(graceful bool) error {
	if s.inst != nil {
		if err := s.inst.Terminate(graceful); err != nil {
			return err
		}
		s.setInstance(nil)
	}

	inst, err := s.instance()
	if err != nil {
		return fmt.Errorf("%s: restart: %w", s.name, err)
	}
	s.setInstance(inst)
	return nil
}

// SoftRestart recycles with a safety net: the replacement is constructed
// first, and if that fails the current instance keeps serving while the
// back-off countdown suppresses further attempts.
func (s *Supervisor) SoftRestart() error {
	if s.failedRestartCountdown > 0 {
		return nil
	}

	repl, err := s.instance()
	if err != nil {
		cclog.Errorf("%s: restart failed, keeping current instance (backing off %d checks): %v",
			s.name, restartBackoff, err)
		s.failedRestartCountdown = restartBackoff
		return nil
	}

	old := s.inst
	s.setInstance(repl)
	if old != nil {
		if err := old.Terminate(true); err != nil {
			return err
		}
	}
	return nil
}

// Stop terminates the current instance and releases the collector's scope.
func (s *Supervisor) Stop(graceful bool) error {
	var err error
	if s.inst != nil {
		err = s.inst.Terminate(graceful)
		s.setInstance(nil)
	}
	s.scope.Free()
	return err
}

func (s *Supervisor) String() string {
	if s.inst != nil {
		return s.inst.String()
	}
	return s.name + ":<no instance>"
}
