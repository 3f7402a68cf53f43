// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-sampler.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package collectors

import (
	"errors"

	"github.com/ClusterCockpit/cc-sampler/internal/platform"
	"github.com/ClusterCockpit/cc-sampler/internal/registry"
	"github.com/ClusterCockpit/cc-sampler/internal/scope"
)

// ErrUnsupportedPlatform is returned by built-in factories on hosts they
// cannot sample.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

func requireLinux(s *scope.Scope) error {
	p, err := scope.Get[*platform.Platform](s, "platform")
	if err != nil {
		return err
	}
	if !p.IsLinux() {
		return ErrUnsupportedPlatform
	}
	return nil
}

func requireRegistry(s *scope.Scope) (registry.Allocator, error) {
	return scope.Get[registry.Allocator](s, "registry")
}

func configMap(s *scope.Scope) map[string]any {
	cfg, err := scope.Get[map[string]any](s, "config")
	if err != nil {
		return map[string]any{}
	}
	return cfg
}

func configString(cfg map[string]any, key, def string) string {
	if v, ok := cfg[key].(string); ok && v != "" {
		return v
	}
	return def
}
