// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-sampler.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package worker

import (
	"os"
	"time"
)

// Fingerprint identifies one revision of a collector definition file.
// Instances remember the fingerprint they were built from; a mismatch on a
// later check means the source was hot-replaced and the instance must be
// recycled.
type Fingerprint struct {
	Size    int64
	ModTime time.Time
}

func Stat(path string) (Fingerprint, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, err
	}
	return Fingerprint{Size: fi.Size(), ModTime: fi.ModTime()}, nil
}

func (f Fingerprint) Equal(other Fingerprint) bool {
	return f.Size == other.Size && f.ModTime.Equal(other.ModTime)
}
