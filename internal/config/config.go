// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-sampler.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads and validates the agent configuration document.
//
// The document is JSON, checked against an embedded JSON schema before
// decoding, so unknown keys and wrong-typed values are rejected with a
// locator pointing into the document. A missing config file is not an error:
// the agent comes up with defaults and an empty collector set, exactly like
// running without -config.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// CollectorEntry is one entry of the "collectors" list: a required type name
// plus an arbitrary remainder that is passed opaquely to the collector as its
// config.
type CollectorEntry struct {
	Type   string
	Config map[string]any
}

func (e *CollectorEntry) UnmarshalJSON(data []byte) error {
	raw := map[string]any{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	t, ok := raw["type"].(string)
	if !ok || t == "" {
		return fmt.Errorf("collector entry: 'type' is required")
	}
	delete(raw, "type")

	e.Type = t
	e.Config = raw
	return nil
}

// InstanceConfig bounds the lifetime of one worker instance. Timeouts are
// given in seconds, matching the config document.
type InstanceConfig struct {
	MaxRuns             int     `json:"max_runs"`
	MaxErrors           int     `json:"max_errors"`
	GracefulTimeout     float64 `json:"graceful_timeout"`
	ForcefulTimeout     float64 `json:"forceful_timeout"`
	MaxForcefulAttempts int     `json:"max_forceful_attempts"`
}

func (c InstanceConfig) GracefulWait() time.Duration {
	return time.Duration(c.GracefulTimeout * float64(time.Second))
}

func (c InstanceConfig) ForcefulWait() time.Duration {
	return time.Duration(c.ForcefulTimeout * float64(time.Second))
}

// NatsSink configures snapshot publishing via NATS.
type NatsSink struct {
	Address         string `json:"address"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	CredsFilePath   string `json:"creds-file-path"`
	Subject         string `json:"subject"`
	PublishInterval string `json:"publish-interval"`
}

// Sinks collects the configured snapshot sinks.
type Sinks struct {
	Nats *NatsSink `json:"nats"`
}

// Monitoring configures the HTTP endpoint serving /metrics, /snapshot and
// /health.
type Monitoring struct {
	Addr string `json:"addr"`
}

// Config is the typed view of the configuration document.
type Config struct {
	Tags           map[string]string `json:"tags"`
	Collectors     []CollectorEntry  `json:"collectors"`
	Blacklist      []string          `json:"blacklist"`
	InstanceConfig InstanceConfig    `json:"instance_config"`
	Sinks          Sinks             `json:"sinks"`
	Monitoring     *Monitoring       `json:"monitoring"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Tags: map[string]string{},
		InstanceConfig: InstanceConfig{
			MaxRuns:             10000,
			MaxErrors:           5,
			GracefulTimeout:     2.0,
			ForcefulTimeout:     2.0,
			MaxForcefulAttempts: 5,
		},
	}
}

// Load reads, validates and decodes the configuration file. A missing file
// yields the defaults; any other failure is a configuration error (fatal at
// setup time, while a reload keeps serving the old config instead).
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config '%s': %w", path, err)
	}

	return Parse(raw)
}

// Parse validates and decodes a raw configuration document.
func Parse(raw []byte) (*Config, error) {
	cfg := Default()

	if err := Validate(configSchema, raw); err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}
