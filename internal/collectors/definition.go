// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-sampler.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package collectors

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ResolveDefinition finds the definition file for a collector type in the
// given source directories, first match wins.
func ResolveDefinition(paths []string, typ string) (string, error) {
	for _, dir := range paths {
		p := filepath.Join(dir, typ+".json")
		if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() {
			return p, nil
		}
	}
	return "", fmt.Errorf("no definition file for collector type '%s' in %v", typ, paths)
}

// LoadDefinition reads a definition file: a JSON object of config defaults.
// It is re-read on every instance construction, so a broken file surfaces as
// a restart failure rather than going unnoticed until the next agent start.
func LoadDefinition(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition '%s': %w", path, err)
	}

	def := map[string]any{}
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("definition '%s' is not a JSON object: %w", path, err)
	}
	return def, nil
}

// MergeConfig layers the config entry over the definition defaults.
func MergeConfig(def, entry map[string]any) map[string]any {
	merged := make(map[string]any, len(def)+len(entry))
	for k, v := range def {
		merged[k] = v
	}
	for k, v := range entry {
		merged[k] = v
	}
	return merged
}
