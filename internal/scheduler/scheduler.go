// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gmond-agent.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package scheduler implements the Send Scheduler: one cadence per
// collection group, deciding per tick which metrics have changed enough,
// or gone long enough unannounced, to be worth a new datagram.
package scheduler

import (
	"math"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/ClusterCockpit/gmond-agent/internal/channels"
	"github.com/ClusterCockpit/gmond-agent/internal/metrics"
	"github.com/ClusterCockpit/gmond-agent/pkg/schema"
	"github.com/ClusterCockpit/gmond-agent/pkg/wire"
)

// epsilon floors the denominator of the relative-change comparison so a
// last-sent value of zero does not make every subsequent reading an
// infinite relative change.
const epsilon = 1e-9

// sentinelNoDeadline is returned by NextDeadline when there is nothing to
// schedule: no collection groups configured, or the scheduler is muted.
const sentinelNoDeadline = time.Hour

// MeasurementProvider is the external collaborator that actually reads
// host metrics (procfs, a plugin, a test double). It is out of scope
// for this package.
type MeasurementProvider interface {
	Measure(metricName string) (schema.Metric, error)
}

type metricState struct {
	lastSent   schema.Metric
	lastSentAt time.Time
	announced  bool
}

type groupState struct {
	cfg          schema.CollectionGroupConfig
	nextCollectAt time.Time
	metrics      map[string]*metricState
}

// SendScheduler is the Send Scheduler component.
type SendScheduler struct {
	mute     bool
	hostname string
	startTime uint32

	channels *channels.ChannelLayer
	provider MeasurementProvider
	counters *metrics.Counters

	groups []*groupState
}

// New builds a SendScheduler for cfg's collection groups. now seeds every
// group's first deadline so the first tick fires immediately. hostname
// and startTime are carried on every outgoing message's header.
func New(cfg schema.Config, hostname string, startTime uint32, cl *channels.ChannelLayer, provider MeasurementProvider, counters *metrics.Counters, now time.Time) *SendScheduler {
	s := &SendScheduler{
		mute:      cfg.Mute,
		hostname:  hostname,
		startTime: startTime,
		channels:  cl,
		provider:  provider,
		counters:  counters,
	}

	for _, gc := range cfg.CollectionGroups {
		gs := &groupState{cfg: gc, nextCollectAt: now, metrics: make(map[string]*metricState)}
		for _, m := range gc.Metrics {
			gs.metrics[m.Name] = &metricState{}
		}
		s.groups = append(s.groups, gs)
	}

	return s
}

// NextDeadline returns the earliest deadline across every group, or
// now+1h if muted or there is nothing to schedule — the control loop
// clamps this to a [0, 1s] poll budget.
func (s *SendScheduler) NextDeadline(now time.Time) time.Time {
	if s.mute || len(s.groups) == 0 {
		return now.Add(sentinelNoDeadline)
	}

	deadline := s.groups[0].nextCollectAt
	for _, g := range s.groups[1:] {
		if g.nextCollectAt.Before(deadline) {
			deadline = g.nextCollectAt
		}
	}
	return deadline
}

// Tick fires every group whose deadline has passed: measure, decide,
// send. It is a no-op when muted.
func (s *SendScheduler) Tick(now time.Time) {
	if s.mute {
		return
	}

	for _, g := range s.groups {
		if g.nextCollectAt.After(now) {
			continue
		}
		s.fireGroup(g, now)

		interval := time.Duration(g.cfg.CollectEvery) * time.Second
		g.nextCollectAt = g.nextCollectAt.Add(interval)
		for !g.nextCollectAt.After(now) {
			g.nextCollectAt = g.nextCollectAt.Add(interval)
		}
	}
}

func (s *SendScheduler) fireGroup(g *groupState, now time.Time) {
	for _, desc := range g.cfg.Metrics {
		state := g.metrics[desc.Name]

		m, err := s.provider.Measure(desc.Name)
		if err != nil {
			cclog.Debugf("measurement unavailable for %s: %s", desc.Name, err)
			s.counters.MeasurementUnavailable.WithLabelValues(desc.Name).Inc()
			continue
		}
		m.Name = desc.Name
		m.LastUpdate = now

		if !s.shouldAnnounce(state, desc, m, now, time.Duration(g.cfg.TimeThreshold)*time.Second) {
			continue
		}

		msg := wire.Message{
			Index:                wire.CurrentIndex,
			SourceHostname:       s.hostname,
			RemoteAgentStartTime: s.startTime,
			Metric:               m,
		}

		delivered, errs := s.channels.SendAll(msg)
		for _, sendErr := range errs {
			if se, ok := sendErr.(*schema.SendError); ok {
				s.counters.SendErrors.WithLabelValues(se.Channel).Inc()
			}
			cclog.Warnf("send failed: %s", sendErr)
		}
		if delivered > 0 {
			s.counters.AnnouncementsSent.Inc()
		}

		state.lastSent = m
		state.lastSentAt = now
		state.announced = true
	}
}

// shouldAnnounce decides whether current is worth a new announcement:
// never announced, time threshold elapsed, or value change beyond the
// configured relative threshold, expressed as a percentage of the last
// announced value (string types: any change).
func (s *SendScheduler) shouldAnnounce(state *metricState, desc schema.MetricDescriptorConfig, current schema.Metric, now time.Time, timeThreshold time.Duration) bool {
	if !state.announced {
		return true
	}
	if now.Sub(state.lastSentAt) >= timeThreshold {
		return true
	}

	if current.Type == schema.ValueTypeString {
		return !current.SameValue(state.lastSent)
	}

	curVal, curOK := current.NumericValue()
	lastVal, lastOK := state.lastSent.NumericValue()
	if !curOK || !lastOK {
		return !current.SameValue(state.lastSent)
	}

	denom := math.Max(math.Abs(lastVal), epsilon)
	pctChange := 100 * math.Abs(curVal-lastVal) / denom
	return pctChange >= desc.ValueThreshold
}
