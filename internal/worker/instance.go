// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-sampler.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/ClusterCockpit/cc-sampler/internal/collectors"
	"github.com/ClusterCockpit/cc-sampler/internal/config"
	"github.com/ClusterCockpit/cc-sampler/internal/registry"
	"github.com/ClusterCockpit/cc-sampler/internal/scope"
)

// ErrTerminateFailure means a worker refused to die through the whole
// termination protocol. This is fatal for the supervisor process.
var ErrTerminateFailure = errors.New("worker could not be terminated")

// IsTerminateFailure reports whether err is (or wraps) a termination
// failure.
func IsTerminateFailure(err error) bool {
	return errors.Is(err, ErrTerminateFailure)
}

// Options carries everything needed to construct one worker instance.
type Options struct {
	Name    string
	Type    string
	DefPath string
	// Config is the merged collector config (definition defaults overlaid
	// with the config entry).
	Config   map[string]any
	Limits   config.InstanceConfig
	Registry *registry.Registry
	// Scope is the collector's scope; the instance builds its own child
	// below it.
	Scope *scope.Scope
	// Out is the core's shared result queue.
	Out chan<- Result
}

// Instance is the supervisor-side handle of one running worker subprocess.
// All methods except Alive must be called from the supervisor goroutine.
type Instance struct {
	name    string
	defPath string
	limits  config.InstanceConfig
	fp      Fingerprint

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	enc    *json.Encoder
	child  *scope.Scope
	cells  []int
	latch  *ReloadLatch
	reg    *registry.Registry
	waitCh chan struct{}

	runs     int
	errors   int
	released bool
}

// Start constructs a worker instance: it fingerprints the definition file,
// builds the instance's child scope, runs the sampler factory in this
// process to validate the config and allocate the instance's cells, and then
// spawns and bootstraps the subprocess.
//
// On any construction error nothing is left behind: the child scope (and
// with it every allocated cell) is freed again.
func Start(opts Options) (*Instance, error) {
	fp, err := Stat(opts.DefPath)
	if err != nil {
		return nil, fmt.Errorf("%s: fingerprint: %w", opts.Name, err)
	}

	latch := &ReloadLatch{}
	child := opts.Scope.Child(map[string]any{
		"config": opts.Config,
		"reload": func() { latch.Set() },
	})

	if _, err := collectors.Setup(opts.Type, child); err != nil {
		child.Free()
		return nil, err
	}

	group, err := scope.Get[*registry.Group](child, "registry")
	if err != nil {
		child.Free()
		return nil, err
	}

	inst := &Instance{
		name:    opts.Name,
		defPath: opts.DefPath,
		limits:  opts.Limits,
		fp:      fp,
		child:   child,
		cells:   group.IDs(),
		latch:   latch,
		reg:     opts.Registry,
		waitCh:  make(chan struct{}),
	}

	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}
	cmd := exec.Command(exe, "worker")
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		child.Free()
		return nil, fmt.Errorf("%s: stdin pipe: %w", opts.Name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		child.Free()
		return nil, fmt.Errorf("%s: stdout pipe: %w", opts.Name, err)
	}

	if err := cmd.Start(); err != nil {
		child.Free()
		return nil, fmt.Errorf("%s: spawn worker: %w", opts.Name, err)
	}

	inst.cmd = cmd
	inst.stdin = stdin
	inst.enc = json.NewEncoder(stdin)

	go func() {
		cmd.Wait()
		close(inst.waitCh)
	}()
	go inst.drainEvents(stdout, opts.Out)

	if err := inst.enc.Encode(&controlFrame{Bootstrap: &Bootstrap{
		Type:   opts.Type,
		Name:   opts.Name,
		Config: opts.Config,
	}}); err != nil {
		inst.Terminate(false)
		return nil, fmt.Errorf("%s: bootstrap: %w", opts.Name, err)
	}

	cclog.Infof("%s: started", inst)
	return inst, nil
}

// drainEvents applies the worker's update stream to the registry and
// forwards tick results to the core. It runs until the worker's stdout
// closes.
func (inst *Instance) drainEvents(stdout io.Reader, out chan<- Result) {
	dec := json.NewDecoder(stdout)
	for {
		var ev eventFrame
		if err := dec.Decode(&ev); err != nil {
			return
		}

		switch ev.Kind {
		case kindResult:
			out <- Result{Tick: ev.Tick, OK: ev.OK}
		case kindMetric:
			if ev.Cell < 0 || ev.Cell >= len(inst.cells) {
				cclog.Warnf("%s: metric update for unknown cell %d dropped", inst.name, ev.Cell)
				continue
			}
			inst.reg.SetMetric(inst.cells[ev.Cell], float64(ev.Value))
		case kindState:
			if ev.Cell < 0 || ev.Cell >= len(inst.cells) {
				cclog.Warnf("%s: state update for unknown cell %d dropped", inst.name, ev.Cell)
				continue
			}
			inst.reg.SetState(inst.cells[ev.Cell], ev.OK)
		case kindReload:
			inst.latch.Set()
		default:
			cclog.Warnf("%s: unknown event kind '%s'", inst.name, ev.Kind)
		}
	}
}

// Alive reports whether the subprocess is still running. Safe to call from
// any goroutine.
func (inst *Instance) Alive() bool {
	select {
	case <-inst.waitCh:
		return false
	default:
		return true
	}
}

// Collect sends one tick down the control channel.
func (inst *Instance) Collect(tick uint64) error {
	if err := inst.enc.Encode(&controlFrame{Tick: &tick}); err != nil {
		return fmt.Errorf("%s: dispatch tick %d: %w", inst, tick, err)
	}
	inst.runs++
	return nil
}

// Errored counts failed completions against the recycle limit.
func (inst *Instance) Errored(n int) {
	inst.errors += n
}

// NeedsRecycling reports whether this instance should be replaced: the
// definition file changed under it, it exceeded its run or error limit, or
// its sampler asked for a rebuild through the reload latch. A definition
// file that cannot be stat'ed anymore counts as changed.
func (inst *Instance) NeedsRecycling() bool {
	if fp, err := Stat(inst.defPath); err != nil || !fp.Equal(inst.fp) {
		return true
	}
	if inst.limits.MaxRuns > 0 && inst.runs > inst.limits.MaxRuns {
		return true
	}
	if inst.errors > inst.limits.MaxErrors {
		return true
	}
	return inst.latch.IsSet()
}

// Terminate runs the shutdown protocol: optionally the graceful sentinel
// with its grace period, then up to MaxForcefulAttempts termination signals.
// A worker alive after all of that is ErrTerminateFailure. On observed exit
// the instance's scope (and so its cells) is released and the control
// channel closed.
func (inst *Instance) Terminate(graceful bool) error {
	if graceful {
		cclog.Infof("%s: terminate (graceful)", inst)
		if err := inst.enc.Encode(&controlFrame{Shutdown: true}); err == nil {
			inst.waitExit(inst.limits.GracefulWait())
		}
	} else {
		cclog.Infof("%s: terminate (forced)", inst)
	}

	attempt := 0
	for inst.Alive() {
		if attempt >= inst.limits.MaxForcefulAttempts {
			return fmt.Errorf("%w: %s still alive after %d attempts",
				ErrTerminateFailure, inst, inst.limits.MaxForcefulAttempts)
		}

		cclog.Warnf("%s: terminate (attempt %d of %d)", inst, attempt, inst.limits.MaxForcefulAttempts)
		inst.cmd.Process.Signal(syscall.SIGTERM)
		inst.waitExit(inst.limits.ForcefulWait())
		attempt++
	}

	cclog.Infof("%s: exited=%d", inst, inst.cmd.ProcessState.ExitCode())

	if !inst.released {
		inst.released = true
		inst.child.Free()
		inst.stdin.Close()
	}
	return nil
}

func (inst *Instance) waitExit(d time.Duration) {
	select {
	case <-inst.waitCh:
	case <-time.After(d):
	}
}

// Pid returns the worker's process id.
func (inst *Instance) Pid() int {
	return inst.cmd.Process.Pid
}

func (inst *Instance) String() string {
	return fmt.Sprintf("%s:%d", inst.name, inst.Pid())
}
