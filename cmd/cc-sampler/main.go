// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-sampler.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	sampleragent "github.com/ClusterCockpit/cc-sampler/internal/agent"
	"github.com/ClusterCockpit/cc-sampler/internal/monitoring"
	"github.com/ClusterCockpit/cc-sampler/internal/sinks"
	"github.com/ClusterCockpit/cc-sampler/internal/taskmanager"
	"github.com/ClusterCockpit/cc-sampler/internal/worker"
	"github.com/ClusterCockpit/cc-sampler/pkg/runtimeEnv"
	"github.com/google/gops/agent"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// The agent binary doubles as the worker executable: the supervisor
	// re-execs itself with 'worker' as first argument.
	if len(os.Args) > 1 && os.Args[1] == "worker" {
		cclog.Init("info", false)
		os.Exit(worker.Run(os.Stdin, os.Stdout))
	}

	cliInit()

	if flagVersion {
		fmt.Printf("cc-sampler %s (%s, built %s)\n", version, commit, date)
		return
	}

	cclog.Init(flagLogLevel, flagLogDateTime)

	if err := runtimeEnv.LoadEnv("./.env"); err != nil && !os.IsNotExist(err) {
		cclog.Abortf("parsing './.env' file failed: %s", err.Error())
	}

	// See https://github.com/google/gops (runtime overhead is almost zero).
	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			cclog.Abortf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	cclog.Infof("pid=%d", os.Getpid())

	paths := []string(flagCollectorPaths)
	if len(paths) == 0 {
		if exe, err := os.Executable(); err == nil {
			paths = []string{filepath.Join(filepath.Dir(exe), "..", "collectors")}
		}
	}

	core := sampleragent.New(sampleragent.Options{
		ConfigPath:     flagConfigFile,
		CollectorPaths: paths,
		Timeout:        flagTimeout,
		Interval:       flagInterval,
		Backoff:        flagBackoff,
	})

	if err := core.Setup(); err != nil {
		cclog.Abortf("setup failed: %s", err.Error())
	}

	var reloadRequested, terminateRequested atomic.Bool

	requestReload := func() {
		reloadRequested.Store(true)
		core.Signalled()
	}

	cfg := core.Config()

	var monitor *monitoring.Server
	if cfg.Monitoring != nil {
		monitor = monitoring.NewServer(cfg.Monitoring.Addr, core)
	}

	var natsSink *sinks.NatsSink
	taskmanager.Init()
	if cfg.Sinks.Nats != nil {
		sink, err := sinks.NewNatsSink(cfg.Sinks.Nats, requestReload)
		if err != nil {
			cclog.Abortf("NATS sink setup failed: %s", err.Error())
		}
		natsSink = sink
		taskmanager.RegisterPublishService(cfg.Sinks.Nats.PublishInterval, core, sink)
	}
	taskmanager.RegisterStatsService(core)
	taskmanager.Start()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		for sig := range sigs {
			switch sig {
			case syscall.SIGHUP:
				requestReload()
			default:
				terminateRequested.Store(true)
				core.Signalled()
			}
		}
	}()

	runtimeEnv.SystemdNotify(true, "running")

	exitCode := 0
	for {
		if terminateRequested.Load() {
			break
		}

		if reloadRequested.Swap(false) {
			if err := core.Reload(); err != nil {
				cclog.Errorf("reload: %s", err.Error())
				exitCode = 1
				break
			}
		}

		if err := core.RunOnce(); err != nil {
			cclog.Errorf("unrecoverable supervisor error: %s", err.Error())
			exitCode = 1
			break
		}
	}

	runtimeEnv.SystemdNotify(false, "shutting down")

	taskmanager.Shutdown()
	if monitor != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		monitor.Shutdown(ctx)
		cancel()
	}
	if natsSink != nil {
		natsSink.Close()
	}

	if err := core.Stop(); err != nil {
		cclog.Errorf("stop: %s", err.Error())
		exitCode = 1
	}

	cclog.Info("graceful shutdown completed")
	os.Exit(exitCode)
}
