// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-sampler.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package agent

import (
	"errors"
	"testing"
	"time"

	"github.com/ClusterCockpit/cc-sampler/internal/worker"
)

// fakeCollector scripts a supervisor's behavior for round-semantics tests.
type fakeCollector struct {
	name string
	out  chan<- worker.Result

	// behavior
	failDispatch bool
	failResult   bool
	straggle     bool
	resultDelay  time.Duration

	// observations
	collected []uint64
	errored   int
	restarts  []bool
	checks    int
	stopped   bool
}

func (f *fakeCollector) Name() string { return f.name }
func (f *fakeCollector) Alive() bool  { return !f.stopped }
func (f *fakeCollector) Check() error { f.checks++; return nil }
func (f *fakeCollector) Errored(n int) {
	f.errored += n
}

func (f *fakeCollector) Collect(tick uint64) error {
	if f.failDispatch {
		return errors.New("dispatch failed")
	}
	f.collected = append(f.collected, tick)
	if f.straggle {
		return nil
	}

	res := worker.Result{Tick: tick, OK: !f.failResult}
	if f.resultDelay > 0 {
		go func() {
			time.Sleep(f.resultDelay)
			f.out <- res
		}()
	} else {
		f.out <- res
	}
	return nil
}

func (f *fakeCollector) Restart(graceful bool) error {
	f.restarts = append(f.restarts, graceful)
	return nil
}

func (f *fakeCollector) Stop(graceful bool) error {
	f.stopped = true
	return nil
}

func (f *fakeCollector) String() string { return f.name }

func testCore(timeout time.Duration, fakes ...*fakeCollector) *Core {
	c := New(Options{Timeout: timeout, Interval: 50 * time.Millisecond, Backoff: 50 * time.Millisecond})
	for _, f := range fakes {
		f.out = c.out
		c.collectors = append(c.collectors, f)
	}
	return c
}

func TestCollectAllHappyPath(t *testing.T) {
	f1 := &fakeCollector{name: "a"}
	f2 := &fakeCollector{name: "b"}
	c := testCore(time.Second, f1, f2)

	if err := c.CollectAll(); err != nil {
		t.Fatal(err)
	}

	if len(f1.collected) != 1 || len(f2.collected) != 1 {
		t.Fatalf("each collector must get one tick: %v / %v", f1.collected, f2.collected)
	}
	if f1.collected[0] == f2.collected[0] {
		t.Error("ticks must be unique per dispatch")
	}
	if f1.errored != 0 || f2.errored != 0 || len(f1.restarts) != 0 {
		t.Error("no errors or restarts expected")
	}
}

func TestCollectAllCountsFailedResults(t *testing.T) {
	f := &fakeCollector{name: "bad", failResult: true}
	c := testCore(time.Second, f)

	if err := c.CollectAll(); err != nil {
		t.Fatal(err)
	}

	if f.errored != 1 {
		t.Errorf("expected exactly one errored call, got %d", f.errored)
	}
	if len(f.restarts) != 0 {
		t.Error("a failed result is not a straggler")
	}
}

func TestCollectAllDispatchErrorSkipsCollector(t *testing.T) {
	broken := &fakeCollector{name: "broken", failDispatch: true}
	ok := &fakeCollector{name: "ok"}
	c := testCore(time.Second, broken, ok)

	if err := c.CollectAll(); err != nil {
		t.Fatal(err)
	}

	if len(ok.collected) != 1 {
		t.Error("healthy collector must still be dispatched")
	}
	if broken.errored != 0 || len(broken.restarts) != 0 {
		t.Error("dispatch errors are logged, not tallied")
	}
	if c.Stats().DispatchErrors != 1 {
		t.Errorf("expected one dispatch error, got %d", c.Stats().DispatchErrors)
	}
}

func TestCollectAllRestartsStragglers(t *testing.T) {
	straggler := &fakeCollector{name: "slow", straggle: true}
	fast := &fakeCollector{name: "fast"}
	c := testCore(150*time.Millisecond, straggler, fast)

	start := time.Now()
	if err := c.CollectAll(); err != nil {
		t.Fatal(err)
	}
	elapsed := time.Since(start)

	if elapsed < 150*time.Millisecond || elapsed > time.Second {
		t.Errorf("round should end at the timeout, took %v", elapsed)
	}
	if len(straggler.restarts) != 1 || straggler.restarts[0] {
		t.Errorf("straggler must be restarted without grace: %v", straggler.restarts)
	}
	if len(fast.restarts) != 0 {
		t.Error("fast collector must not be restarted")
	}
	if c.Stats().Stragglers != 1 {
		t.Errorf("straggler counter: %d", c.Stats().Stragglers)
	}
}

func TestCollectAllDrainsLateResults(t *testing.T) {
	late := &fakeCollector{name: "late", resultDelay: 200 * time.Millisecond}
	c := testCore(50*time.Millisecond, late)

	if err := c.CollectAll(); err != nil {
		t.Fatal(err)
	}

	// Wait for the late completion to arrive, then run the next round: the
	// orphan must not be matched against the new tick table.
	time.Sleep(300 * time.Millisecond)
	late.resultDelay = 0
	if err := c.CollectAll(); err != nil {
		t.Fatal(err)
	}

	if late.errored != 0 {
		t.Error("orphaned completions must not be tallied")
	}
	if len(late.restarts) != 1 {
		t.Errorf("only the first round should have restarted: %v", late.restarts)
	}
}

func TestTickWraparound(t *testing.T) {
	f := &fakeCollector{name: "wrap"}
	c := testCore(time.Second, f)
	c.tick = TickMod - 1

	if err := c.CollectAll(); err != nil {
		t.Fatal(err)
	}
	if c.tick != 0 {
		t.Errorf("tick must wrap at the modulus, got %d", c.tick)
	}
	if f.collected[0] != TickMod-1 {
		t.Errorf("dispatched tick: %d", f.collected[0])
	}
}

func TestRunOnceChecksBetweenRounds(t *testing.T) {
	f := &fakeCollector{name: "a"}
	c := testCore(time.Second, f)
	c.opts.Interval = 1500 * time.Millisecond

	done := make(chan error, 1)
	go func() { done <- c.RunOnce() }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RunOnce did not return")
	}

	if f.checks == 0 {
		t.Error("expected inter-round checks on the supervisors")
	}
}

func TestRunOnceReturnsOnSignal(t *testing.T) {
	f := &fakeCollector{name: "a"}
	c := testCore(time.Second, f)
	c.opts.Interval = 10 * time.Second

	done := make(chan error, 1)
	go func() { done <- c.RunOnce() }()

	time.Sleep(100 * time.Millisecond)
	c.Signalled()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("signal did not interrupt the inter-round wait")
	}
}

func TestStopReversesOrder(t *testing.T) {
	f1 := &fakeCollector{name: "first"}
	f2 := &fakeCollector{name: "second"}
	c := testCore(time.Second, f1, f2)

	var order []string
	f1.out, f2.out = c.out, c.out

	// wrap Stop observation via the stopped flag plus ordering through a
	// shared slice
	c.collectors = []Collector{
		stopRecorder{f1, &order},
		stopRecorder{f2, &order},
	}

	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}
	if len(order) != 2 || order[0] != "second" || order[1] != "first" {
		t.Errorf("stop must walk supervisors in reverse: %v", order)
	}
}

type stopRecorder struct {
	*fakeCollector
	order *[]string
}

func (s stopRecorder) Stop(graceful bool) error {
	*s.order = append(*s.order, s.name)
	return s.fakeCollector.Stop(graceful)
}
