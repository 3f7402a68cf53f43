// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-sampler.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package collectors

import (
	"github.com/ClusterCockpit/cc-sampler/internal/registry"
	"github.com/ClusterCockpit/cc-sampler/internal/scope"
)

func init() {
	Register("noop", setupNoop)
}

// noopSampler counts its own invocations. Used for smoke-testing a deployment
// before pointing real collectors at it.
type noopSampler struct {
	runs  float64
	count registry.Metric
}

func setupNoop(s *scope.Scope) (Sampler, error) {
	reg, err := requireRegistry(s)
	if err != nil {
		return nil, err
	}

	cfg := configMap(s)
	return &noopSampler{
		count: reg.Metric(map[string]string{
			"what": configString(cfg, "what", "noop-runs"),
		}),
	}, nil
}

func (n *noopSampler) Sample() error {
	n.runs++
	n.count.Update(n.runs)
	return nil
}
