// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gmond-agent.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics exposes the per-datagram failure counters the Receive
// Engine and Send Scheduler track, as Prometheus counters rather than
// log-line-only events so the report endpoint can surface them as
// published metrics of the agent itself.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Counters groups every failure-path counter the core increments. A
// single instance is shared by the Receive Engine, Send Scheduler and
// report endpoint for the lifetime of the process.
type Counters struct {
	DecodeErrors           *prometheus.CounterVec
	ACLDenied              *prometheus.CounterVec
	TransientRecvErrors    *prometheus.CounterVec
	HandleFatal            *prometheus.CounterVec
	SendErrors             *prometheus.CounterVec
	MeasurementUnavailable *prometheus.CounterVec
	DatagramsReceived      prometheus.Counter
	AnnouncementsSent      prometheus.Counter
	HostsEvicted           prometheus.Counter
}

// NewCounters builds and registers every counter against reg. Passing a
// fresh prometheus.NewRegistry() keeps tests isolated from the process
// default registry.
func NewCounters(reg prometheus.Registerer) *Counters {
	c := &Counters{
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gmond_agent",
			Name:      "decode_errors_total",
			Help:      "Datagrams rejected by the wire codec, by receive channel.",
		}, []string{"channel"}),
		ACLDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gmond_agent",
			Name:      "acl_denied_total",
			Help:      "Datagrams rejected by a receive channel's allow-subnet.",
		}, []string{"channel"}),
		TransientRecvErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gmond_agent",
			Name:      "transient_recv_errors_total",
			Help:      "Recoverable read failures on a receive channel.",
		}, []string{"channel"}),
		HandleFatal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gmond_agent",
			Name:      "handle_fatal_total",
			Help:      "Receive channels dropped after an unrecoverable socket error.",
		}, []string{"channel"}),
		SendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gmond_agent",
			Name:      "send_errors_total",
			Help:      "Announcements that failed to write on a send channel.",
		}, []string{"channel"}),
		MeasurementUnavailable: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gmond_agent",
			Name:      "measurement_unavailable_total",
			Help:      "Metric measurements skipped in a collection-group tick because the measurement provider had no value.",
		}, []string{"metric"}),
		DatagramsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gmond_agent",
			Name:      "datagrams_received_total",
			Help:      "Datagrams successfully decoded and applied to the host table.",
		}),
		AnnouncementsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gmond_agent",
			Name:      "announcements_sent_total",
			Help:      "Metric announcements successfully delivered to at least one send channel.",
		}),
		HostsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gmond_agent",
			Name:      "hosts_evicted_total",
			Help:      "Host table entries removed by the stale-host housekeeper.",
		}),
	}

	reg.MustRegister(
		c.DecodeErrors, c.ACLDenied, c.TransientRecvErrors, c.HandleFatal,
		c.SendErrors, c.MeasurementUnavailable, c.DatagramsReceived,
		c.AnnouncementsSent, c.HostsEvicted,
	)
	return c
}
