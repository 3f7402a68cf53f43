// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-sampler.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sinks

import (
	"fmt"
	"sync/atomic"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/ClusterCockpit/cc-sampler/internal/config"
	"github.com/ClusterCockpit/cc-sampler/internal/registry"
	"github.com/nats-io/nats.go"
)

// DefaultSubject is used when the sink config names none.
const DefaultSubject = "cc-sampler.samples"

// NatsSink publishes snapshots as line protocol to one NATS subject. It also
// listens on '<subject>.reload' so a reload can be requested remotely, the
// same way SIGHUP does it locally.
//
// Snapshots are periodic and each one supersedes the last, so the sink never
// buffers: while the server is unreachable, publishes are dropped and the
// next snapshot after the reconnect catches up.
type NatsSink struct {
	conn    *nats.Conn
	subject string
	dropped atomic.Int64
}

// NewNatsSink connects the sink. onReload is invoked (from the NATS delivery
// goroutine) for every message on the reload subject.
func NewNatsSink(cfg *config.NatsSink, onReload func()) (*NatsSink, error) {
	subject := cfg.Subject
	if subject == "" {
		subject = DefaultSubject
	}
	sink := &NatsSink{subject: subject}

	opts := []nats.Option{
		nats.Name("cc-sampler"),
		// The agent outlives any NATS outage; keep trying forever and let
		// Publish drop snapshots in the meantime.
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				cclog.Warnf("snapshot sink disconnected, dropping snapshots until reconnect: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			cclog.Infof("snapshot sink reconnected to %s (%d snapshots dropped)",
				nc.ConnectedUrl(), sink.dropped.Swap(0))
		}),
	}
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.CredsFilePath != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredsFilePath))
	}

	conn, err := nats.Connect(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("snapshot sink: connect to '%s': %w", cfg.Address, err)
	}
	sink.conn = conn
	cclog.Infof("snapshot sink publishing to '%s' on %s", subject, cfg.Address)

	if onReload != nil {
		if _, err := conn.Subscribe(subject+".reload", func(*nats.Msg) {
			cclog.Info("reload requested via NATS")
			onReload()
		}); err != nil {
			conn.Close()
			return nil, fmt.Errorf("snapshot sink: subscribe '%s.reload': %w", subject, err)
		}
	}

	return sink, nil
}

// Publish encodes and ships one snapshot. An empty snapshot (no written
// cells) and a down connection are both non-events.
func (s *NatsSink) Publish(snap registry.Snapshot) error {
	data, err := EncodeSnapshot(snap, time.Now())
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	if !s.conn.IsConnected() {
		n := s.dropped.Add(1)
		cclog.Debugf("snapshot sink not connected, snapshot dropped (%d so far)", n)
		return nil
	}

	if err := s.conn.Publish(s.subject, data); err != nil {
		return fmt.Errorf("snapshot sink: publish to '%s': %w", s.subject, err)
	}
	return nil
}

// Close flushes pending publishes and drops the connection. Subscriptions
// die with it.
func (s *NatsSink) Close() {
	if err := s.conn.Drain(); err != nil {
		s.conn.Close()
	}
	cclog.Info("snapshot sink closed")
}
