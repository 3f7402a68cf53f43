// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-sampler.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package scope implements the hierarchical capability container that hands
// samplers exactly the facilities they are allowed to use: the platform
// probe, a registry group, their opaque config, and the reload latch.
//
// Lookup walks the parent chain, so a capability bound at the root (like the
// platform probe) is visible to every collector, while per-collector and
// per-instance bindings shadow it further down. Capabilities participate in
// the tree through two structural hooks: a ChildFactory is copied afresh into
// every child scope (this is how a registry Group becomes a per-worker
// Group), and a Releaser is released when its scope is freed. Free is
// transitive and depth-first: children first, then the scope's own bindings.
package scope

import (
	"errors"
	"fmt"
)

// ErrMissingDependency is returned by Require when no scope in the parent
// chain binds the requested name.
var ErrMissingDependency = errors.New("missing dependency")

// ChildFactory is the structural hook for capabilities that want a fresh
// per-child copy of themselves in every child scope.
type ChildFactory interface {
	PerChild() any
}

// Releaser is the structural hook for capabilities with a teardown.
type Releaser interface {
	Release()
}

// Scope is one node in the capability tree. All mutation happens on the
// supervisor goroutine; workers receive their bindings once, at startup.
type Scope struct {
	parent   *Scope
	bindings map[string]any
	children []*Scope
}

// New creates a root scope with the given bindings.
func New(bindings map[string]any) *Scope {
	s := &Scope{bindings: make(map[string]any, len(bindings))}
	for n, c := range bindings {
		s.bindings[n] = c
	}
	return s
}

// Require returns the capability bound at the nearest ancestor.
func (s *Scope) Require(name string) (any, error) {
	if c, ok := s.bindings[name]; ok {
		return c, nil
	}
	if s.parent != nil {
		return s.parent.Require(name)
	}
	return nil, fmt.Errorf("%w: no component named '%s' available", ErrMissingDependency, name)
}

// Get resolves name and asserts the capability to T.
func Get[T any](s *Scope, name string) (T, error) {
	var zero T
	c, err := s.Require(name)
	if err != nil {
		return zero, err
	}
	t, ok := c.(T)
	if !ok {
		return zero, fmt.Errorf("component '%s' has unexpected type %T", name, c)
	}
	return t, nil
}

// Child creates a child scope bound to extra plus, for every local capability
// implementing ChildFactory, a freshly constructed per-child copy.
func (s *Scope) Child(extra map[string]any) *Scope {
	bindings := make(map[string]any, len(extra))
	for n, c := range extra {
		bindings[n] = c
	}
	for n, c := range s.bindings {
		if f, ok := c.(ChildFactory); ok {
			if _, shadowed := bindings[n]; !shadowed {
				bindings[n] = f.PerChild()
			}
		}
	}

	child := &Scope{parent: s, bindings: bindings}
	s.children = append(s.children, child)
	return child
}

// Free releases this scope and all its descendants, depth-first. Children are
// freed before the scope's own bindings, so the deepest capabilities release
// first.
func (s *Scope) Free() {
	for len(s.children) > 0 {
		s.children[0].Free()
	}

	for _, c := range s.bindings {
		if r, ok := c.(Releaser); ok {
			r.Release()
		}
	}

	if s.parent != nil {
		for i, c := range s.parent.children {
			if c == s {
				s.parent.children = append(s.parent.children[:i], s.parent.children[i+1:]...)
				break
			}
		}
		s.parent = nil
	}
}
