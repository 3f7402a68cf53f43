// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-sampler.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/ClusterCockpit/cc-sampler/internal/agent"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the agent's monitoring HTTP endpoint.
type Server struct {
	srv *http.Server
}

// NewServer builds the router and starts listening on addr.
func NewServer(addr string, core *agent.Core) *Server {
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(newSnapshotCollector(core))

	router := mux.NewRouter()
	router.Handle("/metrics",
		promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	router.HandleFunc("/snapshot", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Add("Content-Type", "application/json")
		if err := json.NewEncoder(rw).Encode(core.Snapshot()); err != nil {
			cclog.Errorf("monitoring: encode snapshot: %v", err)
		}
	}).Methods(http.MethodGet)

	router.HandleFunc("/health", func(rw http.ResponseWriter, r *http.Request) {
		health := core.Health()
		status := "healthy"
		for _, alive := range health {
			if !alive {
				status = "degraded"
				break
			}
		}

		rw.Header().Add("Content-Type", "application/json")
		if status != "healthy" {
			rw.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(rw).Encode(map[string]any{
			"status":     status,
			"collectors": health,
		})
	}).Methods(http.MethodGet)

	s := &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}

	go func() {
		cclog.Infof("monitoring endpoint listening at %s", addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			cclog.Errorf("monitoring endpoint failed: %v", err)
		}
	}()

	return s
}

// Shutdown stops the endpoint, waiting for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
