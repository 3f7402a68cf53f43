// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-sampler.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package registry

import (
	"testing"
)

func TestIdsAreNeverReused(t *testing.T) {
	r := New(nil)

	seen := map[int]bool{}
	for i := 0; i < 100; i++ {
		n, _ := r.Metric(map[string]string{"what": "a"})
		if seen[n] {
			t.Fatalf("id %d allocated twice", n)
		}
		seen[n] = true

		if i%3 == 0 {
			r.Free(n)
		}
	}

	n, _ := r.State(map[string]string{"what": "b"})
	if seen[n] {
		t.Fatalf("state id %d reuses a metric id", n)
	}
}

func TestTagComposition(t *testing.T) {
	tests := []struct {
		name     string
		base     map[string]string
		cell     map[string]string
		expected map[string]string
	}{
		{
			name:     "disjoint",
			base:     map[string]string{"b": "2"},
			cell:     map[string]string{"a": "1"},
			expected: map[string]string{"a": "1", "b": "2"},
		},
		{
			name:     "cell wins on conflict",
			base:     map[string]string{"a": "base", "b": "2"},
			cell:     map[string]string{"a": "cell"},
			expected: map[string]string{"a": "cell", "b": "2"},
		},
		{
			name:     "no base",
			base:     nil,
			cell:     map[string]string{"a": "1"},
			expected: map[string]string{"a": "1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(tt.base)
			r.Metric(tt.cell)

			snap := r.Snapshot()
			if len(snap.Metrics) != 1 {
				t.Fatalf("expected 1 metric, got %d", len(snap.Metrics))
			}

			got := snap.Metrics[0].Tags
			if len(got) != len(tt.expected) {
				t.Fatalf("expected tags %v, got %v", tt.expected, got)
			}
			for k, v := range tt.expected {
				if got[k] != v {
					t.Errorf("tag %s: expected %s, got %s", k, v, got[k])
				}
			}
		})
	}
}

func TestSnapshotValues(t *testing.T) {
	r := New(nil)

	_, m1 := r.Metric(map[string]string{"what": "one"})
	_, m2 := r.Metric(map[string]string{"what": "two"})
	r.Metric(map[string]string{"what": "unwritten"})

	m1.Update(1.5)
	m2.Update(-3.0)

	snap := r.Snapshot()
	if len(snap.Metrics) != 3 {
		t.Fatalf("expected 3 metrics, got %d", len(snap.Metrics))
	}

	// Snapshot is ordered by allocation id.
	if v := float64(snap.Metrics[0].Value); v != 1.5 {
		t.Errorf("expected 1.5, got %f", v)
	}
	if v := float64(snap.Metrics[1].Value); v != -3.0 {
		t.Errorf("expected -3.0, got %f", v)
	}
	if !snap.Metrics[2].Value.IsNaN() {
		t.Errorf("unwritten cell should be NaN, got %f", float64(snap.Metrics[2].Value))
	}

	m1.Unset()
	if !r.Snapshot().Metrics[0].Value.IsNaN() {
		t.Error("Unset should write NaN")
	}
}

func TestStates(t *testing.T) {
	r := New(nil)

	_, s1 := r.State(map[string]string{"what": "svc"})
	r.State(map[string]string{"what": "untouched"})

	snap := r.Snapshot()
	if snap.States[0].Ok || snap.States[1].Ok {
		t.Error("states default to critical")
	}

	s1.Ok()
	if !r.Snapshot().States[0].Ok {
		t.Error("Ok() not reflected in snapshot")
	}

	s1.Critical()
	if r.Snapshot().States[0].Ok {
		t.Error("Critical() not reflected in snapshot")
	}
}

func TestFreedCellsLeaveSnapshot(t *testing.T) {
	r := New(nil)

	n, _ := r.Metric(map[string]string{"what": "gone"})
	r.Metric(map[string]string{"what": "stays"})

	r.Free(n)

	snap := r.Snapshot()
	if len(snap.Metrics) != 1 {
		t.Fatalf("expected 1 metric after free, got %d", len(snap.Metrics))
	}
	if snap.Metrics[0].Tags["what"] != "stays" {
		t.Errorf("wrong cell survived: %v", snap.Metrics[0].Tags)
	}

	// A write to the freed id must not resurrect anything.
	r.SetMetric(n, 1.0)
	if len(r.Snapshot().Metrics) != 1 {
		t.Error("write to freed id resurrected a cell")
	}
}

func TestGroupRelease(t *testing.T) {
	r := New(nil)

	g := r.Group()
	g.Metric(map[string]string{"what": "a"})
	g.State(map[string]string{"what": "b"})

	other := r.Group()
	other.Metric(map[string]string{"what": "keep"})

	g.Release()

	snap := r.Snapshot()
	if len(snap.Metrics) != 1 || len(snap.States) != 0 {
		t.Fatalf("release freed the wrong cells: %+v", snap)
	}
	if snap.Metrics[0].Tags["what"] != "keep" {
		t.Errorf("unexpected survivor: %v", snap.Metrics[0].Tags)
	}
}

func TestGroupIDsInAllocationOrder(t *testing.T) {
	r := New(nil)
	g := r.Group()

	g.Metric(map[string]string{"what": "m0"})
	g.State(map[string]string{"what": "s1"})
	g.Scoped(map[string]string{"device": "sda"}).Metric(map[string]string{"what": "m2"})

	ids := g.IDs()
	if len(ids) != 3 {
		t.Fatalf("expected 3 ids, got %d", len(ids))
	}
	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			t.Fatalf("ids not in allocation order: %v", ids)
		}
	}
}

func TestScopedTags(t *testing.T) {
	r := New(map[string]string{"host": "n1"})
	g := r.Group()

	scoped := g.Scoped(map[string]string{"device": "sda", "what": "outer"})
	scoped.Metric(map[string]string{"what": "inner"})

	snap := r.Snapshot()
	tags := snap.Metrics[0].Tags
	if tags["host"] != "n1" || tags["device"] != "sda" {
		t.Errorf("missing composed tags: %v", tags)
	}
	if tags["what"] != "inner" {
		t.Errorf("per-allocation tag should win over pre-bound: %v", tags)
	}

	nested := scoped.Scoped(map[string]string{"mountpoint": "/"})
	nested.Metric(map[string]string{"what": "deep"})
	tags = r.Snapshot().Metrics[1].Tags
	if tags["device"] != "sda" || tags["mountpoint"] != "/" || tags["host"] != "n1" {
		t.Errorf("nested scoped tags incomplete: %v", tags)
	}
}

func TestPerChildCreatesFreshGroup(t *testing.T) {
	r := New(nil)
	g := r.Group()
	g.Metric(map[string]string{"what": "parent"})

	childAny := g.PerChild()
	child, ok := childAny.(*Group)
	if !ok {
		t.Fatalf("PerChild returned %T", childAny)
	}
	child.Metric(map[string]string{"what": "child"})

	child.Release()
	snap := r.Snapshot()
	if len(snap.Metrics) != 1 || snap.Metrics[0].Tags["what"] != "parent" {
		t.Errorf("child release must not touch parent cells: %+v", snap)
	}
}
