// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gmond-agent.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package report implements the read-only report endpoint: a second
// task that only ever reads the Host Table, routed with gorilla/mux and
// wrapped in gorilla/handlers middleware rather than a bespoke HTTP stack.
package report

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/ClusterCockpit/gmond-agent/internal/hosttable"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the read-only report endpoint. It holds no lock of its own:
// every request goes through HostTable.Snapshot or HostTable.Lookup,
// which take the table's own read lock.
type Server struct {
	table *hosttable.HostTable
	http  *http.Server
}

// New builds a report server bound to addr. metricsHandler is typically
// promhttp.HandlerFor(registry, promhttp.HandlerOpts{}); passing nil
// serves the process default registry via promhttp.Handler() on the
// /report/debug/metrics route.
func New(addr string, table *hosttable.HostTable, metricsHandler http.Handler) *Server {
	r := mux.NewRouter()
	s := &Server{table: table}

	r.HandleFunc("/report", s.listHosts).Methods(http.MethodGet)
	r.HandleFunc("/report/{host}", s.getHost).Methods(http.MethodGet)
	if metricsHandler != nil {
		r.Handle("/report/debug/metrics", metricsHandler).Methods(http.MethodGet)
	} else {
		r.Handle("/report/debug/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	handler := handlers.CompressHandler(r)
	handler = handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(handler)
	handler = handlers.CustomLoggingHandler(io.Discard, handler, func(_ io.Writer, params handlers.LogFormatterParams) {
		cclog.Debugf("%s %s (%d, %dms)", params.Request.Method, params.URL.RequestURI(),
			params.StatusCode, time.Since(params.TimeStamp).Milliseconds())
	})

	s.http = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe starts the HTTP server. It blocks until the server is
// shut down, returning nil on a clean Shutdown.
func (s *Server) ListenAndServe() error {
	cclog.Infof("report endpoint listening at %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func writeJSON(rw http.ResponseWriter, v interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	bw := bufio.NewWriter(rw)
	defer bw.Flush()
	_ = json.NewEncoder(bw).Encode(v)
}

func (s *Server) listHosts(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, s.table.Snapshot())
}

func (s *Server) getHost(rw http.ResponseWriter, r *http.Request) {
	host := mux.Vars(r)["host"]
	agg, ok := s.table.Lookup(host)
	if !ok {
		http.Error(rw, "host not found", http.StatusNotFound)
		return
	}
	writeJSON(rw, agg)
}
