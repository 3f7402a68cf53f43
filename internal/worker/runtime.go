// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-sampler.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package worker

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/ClusterCockpit/cc-sampler/internal/collectors"
	"github.com/ClusterCockpit/cc-sampler/internal/platform"
	"github.com/ClusterCockpit/cc-sampler/internal/scope"
)

// Run is the worker process entry point, invoked when the agent binary is
// re-executed with the 'worker' argv. It rebuilds the sampler from the
// bootstrap frame and then serves ticks from stdin strictly in order until
// the shutdown sentinel (or a closed pipe) arrives.
//
// Exit codes: 0 after a clean shutdown, 1 on a setup or start failure, 3
// when killed through the forced-termination signal.
func Run(stdin io.Reader, stdout io.Writer) int {
	dec := json.NewDecoder(stdin)
	enc := json.NewEncoder(stdout)
	send := func(ev eventFrame) {
		if err := enc.Encode(&ev); err != nil {
			cclog.Errorf("worker: send failed: %v", err)
		}
	}

	var first controlFrame
	if err := dec.Decode(&first); err != nil || first.Bootstrap == nil {
		cclog.Errorf("worker: no bootstrap frame: %v", err)
		return 1
	}
	boot := first.Bootstrap

	// A forced kill must not linger in sampler code.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM)
	go func() {
		<-sigs
		os.Exit(3)
	}()

	local := scope.New(map[string]any{
		"platform": platform.New(),
		"registry": newProxyAllocator(send),
		"config":   boot.Config,
		"reload": func() {
			send(eventFrame{Kind: kindReload})
		},
	})

	sampler, err := collectors.Setup(boot.Type, local)
	if err != nil {
		cclog.Errorf("%s: worker setup: %v", boot.Name, err)
		return 1
	}

	if starter, ok := sampler.(collectors.Starter); ok {
		if err := starter.Start(); err != nil {
			cclog.Errorf("%s: worker start: %v", boot.Name, err)
			return 1
		}
	}

	for {
		var frame controlFrame
		if err := dec.Decode(&frame); err != nil {
			if !errors.Is(err, io.EOF) {
				cclog.Errorf("%s: worker receive failed: %v", boot.Name, err)
			}
			break
		}

		if frame.Shutdown {
			break
		}
		if frame.Tick == nil {
			continue
		}

		if err := sampler.Sample(); err != nil {
			cclog.Errorf("%s: sample failed: %v", boot.Name, err)
			send(eventFrame{Kind: kindResult, Tick: *frame.Tick, OK: false})
		} else {
			send(eventFrame{Kind: kindResult, Tick: *frame.Tick, OK: true})
		}
	}

	if stopper, ok := sampler.(collectors.Stopper); ok {
		if err := stopper.Stop(); err != nil {
			cclog.Errorf("%s: worker stop: %v", boot.Name, err)
		}
	}

	return 0
}
