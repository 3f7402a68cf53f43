// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-sampler.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package platform provides the read-only OS probe samplers use to decide
// which implementation to construct.
package platform

import "runtime"

// Platform reports the host operating system. It is bound into the root
// scope under the name "platform".
type Platform struct {
	goos string
}

func New() *Platform {
	return &Platform{goos: runtime.GOOS}
}

func (p *Platform) IsLinux() bool {
	return p.goos == "linux"
}

func (p *Platform) IsDarwin() bool {
	return p.goos == "darwin"
}
