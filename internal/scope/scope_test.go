// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-sampler.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package scope

import (
	"errors"
	"testing"
)

type releaseRecorder struct {
	name string
	log  *[]string
}

func (r *releaseRecorder) Release() {
	*r.log = append(*r.log, r.name)
}

type childCounter struct {
	copies int
}

func (c *childCounter) PerChild() any {
	c.copies++
	return &childCounter{}
}

func TestRequireWalksParentChain(t *testing.T) {
	root := New(map[string]any{"platform": "probe", "shadowed": "root"})
	child := root.Child(map[string]any{"config": 42, "shadowed": "child"})

	if v, err := child.Require("platform"); err != nil || v != "probe" {
		t.Errorf("expected inherited binding, got %v, %v", v, err)
	}
	if v, _ := child.Require("config"); v != 42 {
		t.Errorf("expected local binding, got %v", v)
	}
	if v, _ := child.Require("shadowed"); v != "child" {
		t.Errorf("child binding must shadow parent, got %v", v)
	}
	if v, _ := root.Require("shadowed"); v != "root" {
		t.Errorf("parent binding must stay intact, got %v", v)
	}
}

func TestRequireMissing(t *testing.T) {
	root := New(nil)
	child := root.Child(nil)

	_, err := child.Require("nope")
	if !errors.Is(err, ErrMissingDependency) {
		t.Errorf("expected ErrMissingDependency, got %v", err)
	}
}

func TestGetTypeMismatch(t *testing.T) {
	root := New(map[string]any{"n": 1})

	if _, err := Get[int](root, "n"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := Get[string](root, "n"); err == nil {
		t.Error("expected type mismatch error")
	}
}

func TestChildFactoryGraft(t *testing.T) {
	counter := &childCounter{}
	root := New(map[string]any{"registry": counter, "plain": "value"})

	c1 := root.Child(nil)
	c2 := root.Child(nil)

	if counter.copies != 2 {
		t.Errorf("expected one per-child copy per Child call, got %d", counter.copies)
	}

	v1, _ := c1.Require("registry")
	v2, _ := c2.Require("registry")
	if v1 == counter || v1 == v2 {
		t.Error("children must get distinct per-child copies")
	}

	// Non-factory bindings are inherited via lookup, not copied.
	if v, _ := c1.Require("plain"); v != "value" {
		t.Errorf("expected inherited plain binding, got %v", v)
	}
}

func TestChildExtraShadowsFactory(t *testing.T) {
	counter := &childCounter{}
	root := New(map[string]any{"registry": counter})

	child := root.Child(map[string]any{"registry": "explicit"})
	if v, _ := child.Require("registry"); v != "explicit" {
		t.Errorf("explicit extra must win over per-child factory, got %v", v)
	}
}

func TestFreeIsDepthFirst(t *testing.T) {
	var log []string

	a := New(map[string]any{"a": &releaseRecorder{"a", &log}})
	b := a.Child(map[string]any{"b": &releaseRecorder{"b", &log}})
	b.Child(map[string]any{"c": &releaseRecorder{"c", &log}})

	a.Free()

	if len(log) != 3 || log[0] != "c" || log[1] != "b" || log[2] != "a" {
		t.Errorf("expected release order [c b a], got %v", log)
	}
}

func TestFreeDetachesFromParent(t *testing.T) {
	var log []string

	root := New(nil)
	child := root.Child(map[string]any{"x": &releaseRecorder{"x", &log}})
	child.Free()

	if len(log) != 1 {
		t.Fatalf("expected one release, got %v", log)
	}

	// Freeing the root again must not release the child twice.
	root.Free()
	if len(log) != 1 {
		t.Errorf("child released twice: %v", log)
	}
}

func TestFreeSubtreeOnly(t *testing.T) {
	var log []string

	root := New(map[string]any{"root": &releaseRecorder{"root", &log}})
	left := root.Child(map[string]any{"left": &releaseRecorder{"left", &log}})
	root.Child(map[string]any{"right": &releaseRecorder{"right", &log}})

	left.Free()

	if len(log) != 1 || log[0] != "left" {
		t.Fatalf("expected only left released, got %v", log)
	}
}
