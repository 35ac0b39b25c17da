// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gmond-agent.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package agent wires the Channel Layer, Host Table, Receive Engine and
// Send Scheduler into a single cooperative control loop: one explicit
// struct threaded through Run rather than package-level state reached
// into from handlers.
package agent

import (
	"context"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/ClusterCockpit/gmond-agent/internal/channels"
	"github.com/ClusterCockpit/gmond-agent/internal/hosttable"
	"github.com/ClusterCockpit/gmond-agent/internal/metrics"
	"github.com/ClusterCockpit/gmond-agent/internal/receiver"
	"github.com/ClusterCockpit/gmond-agent/internal/scheduler"
	"github.com/ClusterCockpit/gmond-agent/pkg/schema"
	"github.com/prometheus/client_golang/prometheus"
)

// pollClampMax bounds the wait handed to poll() to [0, 1s] regardless of
// how far away the scheduler's next deadline is, so the loop always
// notices a canceled context promptly.
const pollClampMax = time.Second

// sweepFraction sets the housekeeper's sweep cadence relative to the
// stale threshold: frequent enough that no evictable host lingers much
// past its threshold, without sweeping on every tick of a long one.
const sweepFraction = 6

// minSweepEvery floors the sweep cadence derived from sweepFraction so a
// very small StaleHostThreshold cannot spin the housekeeper's job loop.
const minSweepEvery = time.Second

// CoreContext holds every component the control loop drives. It is built
// once at startup by cmd/gmond-agent/main.go and passed to Run; nothing
// in this package reaches for ambient/global state.
type CoreContext struct {
	Config      schema.Config
	Channels    *channels.ChannelLayer
	Table       *hosttable.HostTable
	Receiver    *receiver.ReceiveEngine
	Sender      *scheduler.SendScheduler
	Housekeeper *scheduler.Housekeeper
	Counters    *metrics.Counters
}

// New builds every core component from cfg and wires them together. now
// and startTime seed the Send Scheduler's first deadlines and the
// header field the current wire framing carries. The stale-host
// eviction sweep is started only when cfg is not Deaf (a deaf agent's
// host table stays empty) and cfg.StaleHostThreshold is positive.
func New(cfg schema.Config, hostname string, startTime uint32, provider scheduler.MeasurementProvider, reg prometheus.Registerer, now time.Time) (*CoreContext, error) {
	cl, err := channels.New(cfg)
	if err != nil {
		return nil, err
	}

	counters := metrics.NewCounters(reg)
	table := hosttable.New()

	var hk *scheduler.Housekeeper
	if !cfg.Deaf && cfg.StaleHostThreshold > 0 {
		threshold := time.Duration(cfg.StaleHostThreshold) * time.Second
		sweepEvery := threshold / sweepFraction
		if sweepEvery < minSweepEvery {
			sweepEvery = minSweepEvery
		}
		hk, err = scheduler.StartHousekeeper(table, threshold, sweepEvery, counters)
		if err != nil {
			cl.Close()
			return nil, err
		}
	}

	return &CoreContext{
		Config:      cfg,
		Channels:    cl,
		Table:       table,
		Receiver:    receiver.New(cl, table, counters),
		Sender:      scheduler.New(cfg, hostname, startTime, cl, provider, counters, now),
		Housekeeper: hk,
		Counters:    counters,
	}, nil
}

// Run drives the single cooperative loop until ctx is
// canceled: compute the scheduler's next deadline, poll the channel
// layer for no longer than that (clamped to one second), apply whatever
// arrived to the host table, then fire any collection groups whose
// deadline has passed. Returns nil on a clean ctx cancellation.
func (c *CoreContext) Run(ctx context.Context) error {
	cclog.Info("control loop starting")
	defer c.Channels.Close()
	if c.Housekeeper != nil {
		defer func() {
			if err := c.Housekeeper.Stop(); err != nil {
				cclog.Warnf("housekeeper shutdown: %s", err)
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			cclog.Info("control loop stopping: context canceled")
			return nil
		default:
		}

		now := time.Now()
		wait := c.Sender.NextDeadline(now).Sub(now)
		if wait < 0 {
			wait = 0
		}
		if wait > pollClampMax {
			wait = pollClampMax
		}

		c.Receiver.Pump(wait)
		c.Sender.Tick(time.Now())
	}
}
