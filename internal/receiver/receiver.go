// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gmond-agent.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package receiver implements the Receive Engine: one polling cycle over
// every configured receive channel, decoding each datagram, enforcing
// its channel's ACL, and applying the result to the Host Table. No
// single datagram's failure ever stops the cycle.
package receiver

import (
	"net"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/ClusterCockpit/gmond-agent/internal/channels"
	"github.com/ClusterCockpit/gmond-agent/internal/hosttable"
	"github.com/ClusterCockpit/gmond-agent/internal/metrics"
	"github.com/ClusterCockpit/gmond-agent/pkg/schema"
	"github.com/ClusterCockpit/gmond-agent/pkg/wire"
	"golang.org/x/time/rate"
)

// fatalLogRate bounds how often this process logs a given channel's
// transient receive errors and ACL denials; a peer hammering a socket
// must not be able to flood the agent's own log. A fatal handle error is
// logged every time, since the handle is removed right after.
const fatalLogRate = rate.Limit(1.0 / 5.0) // at most once per five seconds, per channel

// ReceiveEngine is the Receive Engine component. It owns no sockets
// itself; it drives a *channels.ChannelLayer and writes into a
// *hosttable.HostTable, both supplied by the control loop.
type ReceiveEngine struct {
	channels *channels.ChannelLayer
	table    *hosttable.HostTable
	counters *metrics.Counters

	limiters map[string]*rate.Limiter
}

// New builds a ReceiveEngine over an already-constructed channel layer
// and host table.
func New(cl *channels.ChannelLayer, table *hosttable.HostTable, counters *metrics.Counters) *ReceiveEngine {
	return &ReceiveEngine{
		channels: cl,
		table:    table,
		counters: counters,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (e *ReceiveEngine) limiterFor(channel string) *rate.Limiter {
	l, ok := e.limiters[channel]
	if !ok {
		l = rate.NewLimiter(fatalLogRate, 1)
		e.limiters[channel] = l
	}
	return l
}

// Pump runs one receive cycle: it polls every live receive channel for
// up to timeout, applies every datagram it gets back to the host table,
// and handles any per-channel poll errors (transient or fatal). It
// returns the number of datagrams successfully applied.
func (e *ReceiveEngine) Pump(timeout time.Duration) int {
	datagrams, errs := e.channels.Poll(timeout)

	for _, err := range errs {
		e.handlePollError(err)
	}

	applied := 0
	for _, dg := range datagrams {
		if e.apply(dg) {
			applied++
		}
	}
	return applied
}

func (e *ReceiveEngine) handlePollError(err error) {
	switch v := err.(type) {
	case *schema.HandleFatal:
		e.counters.HandleFatal.WithLabelValues(v.Channel).Inc()
		cclog.Errorf("receive channel %s failed permanently, removing it: %s", v.Channel, v.Err)
		for _, h := range e.channels.ReceiveHandles() {
			if h.Name == v.Channel {
				h.Fatal = true
				e.channels.RemoveReceiveHandle(h)
				break
			}
		}
	case *schema.TransientRecvError:
		e.counters.TransientRecvErrors.WithLabelValues(v.Channel).Inc()
		if e.limiterFor(v.Channel).Allow() {
			cclog.Warnf("transient recv error on %s: %s", v.Channel, v.Err)
		}
	default:
		cclog.Errorf("unexpected receive engine error: %s", err)
	}
}

// apply decodes one datagram, enforces its channel's ACL, and writes the
// result into the host table. It returns false (without ever panicking or
// propagating) on any per-datagram failure, each of which is counted.
func (e *ReceiveEngine) apply(dg channels.Datagram) bool {
	if !dg.Handle.Accepts(dg.Source.IP) {
		e.counters.ACLDenied.WithLabelValues(dg.Handle.Name).Inc()
		if e.limiterFor(dg.Handle.Name).Allow() {
			cclog.Warnf("acl denied source %s on %s", dg.Source.IP, dg.Handle.Name)
		}
		return false
	}

	msg, err := wire.Decode(dg.Payload, dg.Handle.Protocol)
	if err != nil {
		e.counters.DecodeErrors.WithLabelValues(dg.Handle.Name).Inc()
		cclog.Debugf("decode error on %s from %s: %s", dg.Handle.Name, dg.Source, err)
		return false
	}

	msg.Metric.LastUpdate = time.Now()
	e.table.UpdateMetric(sourceKey(dg.Source), msg.RemoteAgentStartTime, msg.Metric)
	e.counters.DatagramsReceived.Inc()
	return true
}

// sourceKey derives the Host Table's identity key from the transport
// source address: the UDP source IP, not anything the sender claims in
// its own header, is host identity. The Host Table resolves this
// address to a display hostname itself (reverse DNS, falling back to
// the literal); msg.SourceHostname is never consulted for identity.
func sourceKey(addr *net.UDPAddr) string {
	return addr.IP.String()
}
