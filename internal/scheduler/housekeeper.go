// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gmond-agent.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package scheduler

import (
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/ClusterCockpit/gmond-agent/internal/hosttable"
	"github.com/ClusterCockpit/gmond-agent/internal/metrics"
	"github.com/go-co-op/gocron/v2"
)

// Housekeeper owns the background gocron scheduler that runs the
// liveness sweep: stale-host eviction is a non-core concern, distinct
// from the per-group tick loop the control loop drives directly, so it
// gets its own cadence here, running independently of request handling.
type Housekeeper struct {
	scheduler gocron.Scheduler
}

// StartHousekeeper registers and starts the stale-host eviction sweep,
// running every sweepEvery against table, evicting anything idle past
// staleThreshold.
func StartHousekeeper(table *hosttable.HostTable, staleThreshold, sweepEvery time.Duration, counters *metrics.Counters) (*Housekeeper, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = s.NewJob(gocron.DurationJob(sweepEvery), gocron.NewTask(func() {
		removed := table.EvictStale(time.Now(), staleThreshold)
		if removed > 0 {
			cclog.Infof("stale-host sweep evicted %d host(s)", removed)
			counters.HostsEvicted.Add(float64(removed))
		}
	}))
	if err != nil {
		return nil, err
	}

	s.Start()
	return &Housekeeper{scheduler: s}, nil
}

// Stop shuts the housekeeper's scheduler down. Safe to call once.
func (h *Housekeeper) Stop() error {
	return h.scheduler.Shutdown()
}
