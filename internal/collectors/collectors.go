// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-sampler.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package collectors defines the sampler contract and the table of built-in
// collector types.
//
// A collector type is selected by name. Its factory receives a scope exposing
// 'platform', 'registry', 'config' and 'reload' and returns a Sampler; the
// factory runs once in the supervisor process (validating the config and
// allocating the instance's cells) and once more in the spawned worker, which
// performs the actual sampling. Factories must therefore allocate their cells
// deterministically: same config, same allocation order.
//
// Each configured collector is anchored to a definition file <type>.json in
// one of the collector source directories. The file holds config defaults
// (the entry in the main config wins on conflict) and its size/mtime
// fingerprint is what triggers hot replacement: touch the file and the
// supervisor recycles the worker, re-reading the definition on the way up.
package collectors

import (
	"fmt"
	"sort"

	"github.com/ClusterCockpit/cc-sampler/internal/scope"
)

// Sampler takes one sample. It runs inside the worker subprocess, strictly
// serialized: one Sample call per received tick.
type Sampler interface {
	Sample() error
}

// Starter is implemented by samplers that need a hook before the first
// sample.
type Starter interface {
	Start() error
}

// Stopper is implemented by samplers that need a hook after the last sample.
type Stopper interface {
	Stop() error
}

// SetupFunc builds a sampler from a scope.
type SetupFunc func(s *scope.Scope) (Sampler, error)

var factories = map[string]SetupFunc{}

// Register adds a collector type to the table. Called from init functions of
// the built-in collectors; registering a duplicate name is a programming
// error.
func Register(name string, setup SetupFunc) {
	if _, ok := factories[name]; ok {
		panic(fmt.Sprintf("collector type '%s' registered twice", name))
	}
	factories[name] = setup
}

// Setup resolves the factory for the given type and runs it. A factory
// returning no sampler is a configuration error.
func Setup(name string, s *scope.Scope) (Sampler, error) {
	f, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown collector type '%s' (have: %v)", name, Names())
	}

	sampler, err := f(s)
	if err != nil {
		return nil, fmt.Errorf("%s: setup failed: %w", name, err)
	}
	if sampler == nil {
		return nil, fmt.Errorf("%s: setup returned no sampler", name)
	}
	return sampler, nil
}

// Names returns the registered collector types, sorted.
func Names() []string {
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
