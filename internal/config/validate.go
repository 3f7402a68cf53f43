// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-sampler.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validate checks a raw JSON document against the given schema. Validation
// failures are reported with a dotted locator into the document, like
// 'instance_config.max_runs' or 'collectors[3].type'.
func Validate(schema string, instance []byte) error {
	sch, err := jsonschema.CompileString("schema.json", schema)
	if err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	var v any
	if err := json.Unmarshal(instance, &v); err != nil {
		return fmt.Errorf("config is not valid JSON: %w", err)
	}

	if err := sch.Validate(v); err != nil {
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			return fmt.Errorf("invalid config: %s", formatValidation(verr))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	return nil
}

func formatValidation(err *jsonschema.ValidationError) string {
	leaf := err
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	return fmt.Sprintf("%s: %s", dottedPath(leaf.InstanceLocation), leaf.Message)
}

// dottedPath turns a JSON pointer like /collectors/3/type into the
// collectors[3].type form used in error messages.
func dottedPath(ptr string) string {
	if ptr == "" || ptr == "/" {
		return "(document root)"
	}

	var b strings.Builder
	for _, part := range strings.Split(strings.TrimPrefix(ptr, "/"), "/") {
		part = strings.ReplaceAll(strings.ReplaceAll(part, "~1", "/"), "~0", "~")
		if _, err := strconv.Atoi(part); err == nil {
			fmt.Fprintf(&b, "[%s]", part)
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(part)
	}
	return b.String()
}
