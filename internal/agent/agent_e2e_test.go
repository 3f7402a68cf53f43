// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-sampler.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package agent

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/ClusterCockpit/cc-sampler/internal/worker"
)

// The test binary doubles as the worker executable, like the agent binary
// does in production.
func TestMain(m *testing.M) {
	if len(os.Args) > 1 && os.Args[1] == "worker" {
		cclog.Init("crit", false)
		os.Exit(worker.Run(os.Stdin, os.Stdout))
	}

	cclog.Init("crit", false)
	os.Exit(m.Run())
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func e2eCore(t *testing.T, configJSON string) (*Core, string) {
	t.Helper()

	dir := t.TempDir()
	defDir := filepath.Join(dir, "collectors")
	if err := os.Mkdir(defDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(defDir, "noop.json"), `{}`)

	configPath := filepath.Join(dir, "config.json")
	writeFile(t, configPath, configJSON)

	core := New(Options{
		ConfigPath:     configPath,
		CollectorPaths: []string{defDir},
		Timeout:        time.Second,
		Interval:       100 * time.Millisecond,
		Backoff:        100 * time.Millisecond,
	})
	t.Cleanup(func() { core.Stop() })
	return core, configPath
}

func TestBaselineTwoRounds(t *testing.T) {
	core, _ := e2eCore(t, `{
		"collectors": [{"type": "noop", "what": "c"}],
		"instance_config": {"graceful_timeout": 1.0, "forceful_timeout": 1.0}
	}`)

	if err := core.Setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := core.RunOnce(); err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
	}

	snap := core.Snapshot()
	if len(snap.Metrics) != 1 {
		t.Fatalf("expected one cell, got %+v", snap)
	}
	if snap.Metrics[0].Tags["what"] != "c" {
		t.Errorf("unexpected tags: %v", snap.Metrics[0].Tags)
	}
	if v := float64(snap.Metrics[0].Value); v != 2 {
		t.Errorf("expected value 2 after two rounds, got %f", v)
	}
}

func TestSetupRejectsUnknownCollector(t *testing.T) {
	core, _ := e2eCore(t, `{"collectors": [{"type": "no-such-type"}]}`)
	if err := core.Setup(); err == nil {
		t.Fatal("expected setup to fail for an unresolvable collector")
	}
}

func TestBlacklistSkipsCollector(t *testing.T) {
	core, _ := e2eCore(t, `{
		"collectors": [{"type": "noop"}],
		"blacklist": ["noop"]
	}`)

	if err := core.Setup(); err != nil {
		t.Fatal(err)
	}
	if len(core.Health()) != 0 {
		t.Errorf("blacklisted collector must not be supervised: %v", core.Health())
	}
}

func TestReloadSwapsSupervisorSet(t *testing.T) {
	core, configPath := e2eCore(t, `{
		"tags": {"gen": "one"},
		"collectors": [{"type": "noop", "what": "a"}]
	}`)

	if err := core.Setup(); err != nil {
		t.Fatal(err)
	}
	if err := core.RunOnce(); err != nil {
		t.Fatal(err)
	}

	before := core.Snapshot()
	if len(before.Metrics) != 1 || before.Metrics[0].Tags["gen"] != "one" {
		t.Fatalf("unexpected pre-reload snapshot: %+v", before)
	}

	writeFile(t, configPath, `{
		"tags": {"gen": "two"},
		"collectors": [
			{"type": "noop", "what": "a"},
			{"type": "noop", "what": "b"}
		]
	}`)

	if err := core.Reload(); err != nil {
		t.Fatal(err)
	}

	// The old registry is gone with its cells; the new supervisors have not
	// run yet.
	if snap := core.Snapshot(); len(snap.Metrics) != 0 {
		t.Fatalf("pre-existing cells must be freed on reload: %+v", snap)
	}
	if len(core.Health()) != 2 {
		t.Fatalf("expected two supervisors after reload: %v", core.Health())
	}

	if err := core.RunOnce(); err != nil {
		t.Fatal(err)
	}
	snap := core.Snapshot()
	if len(snap.Metrics) != 2 {
		t.Fatalf("expected two cells after the first post-reload round: %+v", snap)
	}
	for _, m := range snap.Metrics {
		if m.Tags["gen"] != "two" {
			t.Errorf("stale base tags after reload: %v", m.Tags)
		}
		if v := float64(m.Value); v != 1 {
			t.Errorf("expected fresh counters, got %f", v)
		}
	}
}

func TestReloadKeepsOldSetOnBrokenConfig(t *testing.T) {
	core, configPath := e2eCore(t, `{"collectors": [{"type": "noop", "what": "a"}]}`)

	if err := core.Setup(); err != nil {
		t.Fatal(err)
	}
	if err := core.RunOnce(); err != nil {
		t.Fatal(err)
	}

	writeFile(t, configPath, `{"collectors": [{"type": "noop"}], "bogus": true}`)

	if err := core.Reload(); err != nil {
		t.Fatal(err)
	}

	// Old set still serving, cells intact.
	snap := core.Snapshot()
	if len(snap.Metrics) != 1 || float64(snap.Metrics[0].Value) != 1 {
		t.Fatalf("old registry must survive a failed reload: %+v", snap)
	}
	if err := core.RunOnce(); err != nil {
		t.Fatal(err)
	}
	if v := float64(core.Snapshot().Metrics[0].Value); v != 2 {
		t.Errorf("old collectors must keep running, got %f", v)
	}
}

func TestStopLeavesNoCells(t *testing.T) {
	core, _ := e2eCore(t, `{"collectors": [{"type": "noop"}]}`)

	if err := core.Setup(); err != nil {
		t.Fatal(err)
	}
	if err := core.RunOnce(); err != nil {
		t.Fatal(err)
	}

	if err := core.Stop(); err != nil {
		t.Fatal(err)
	}
	if snap := core.Snapshot(); len(snap.Metrics) != 0 {
		t.Errorf("cells must be freed on stop: %+v", snap)
	}
}
