// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gmond-agent.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/ClusterCockpit/gmond-agent/pkg/schema"
)

// procfsProvider is the minimal built-in scheduler.MeasurementProvider:
// load average straight from /proc/loadavg, the CPU count, and the
// seconds elapsed since this provider was created. Anything richer is
// expected to arrive as a separate provider implementation.
type procfsProvider struct {
	startedAt time.Time
}

func newProcfsProvider() *procfsProvider {
	return &procfsProvider{startedAt: time.Now()}
}

func (p *procfsProvider) Measure(metricName string) (schema.Metric, error) {
	now := time.Now()

	switch metricName {
	case "cpu_num":
		return schema.Metric{
			Name: metricName, Type: schema.ValueTypeUint,
			UintValue: uint64(runtime.NumCPU()), Units: "CPUs", LastUpdate: now,
		}, nil
	case "uptime":
		return schema.Metric{
			Name: metricName, Type: schema.ValueTypeUint,
			UintValue: uint64(now.Sub(p.startedAt).Seconds()), Units: "seconds", LastUpdate: now,
		}, nil
	case "load_one", "load_five", "load_fifteen":
		loads, err := readLoadAvg()
		if err != nil {
			return schema.Metric{}, &schema.MeasurementUnavailable{Metric: metricName, Reason: err.Error()}
		}
		idx := map[string]int{"load_one": 0, "load_five": 1, "load_fifteen": 2}[metricName]
		return schema.Metric{
			Name: metricName, Type: schema.ValueTypeFloat,
			FloatValue: loads[idx], Units: "", LastUpdate: now,
		}, nil
	default:
		return schema.Metric{}, &schema.MeasurementUnavailable{Metric: metricName, Reason: "no procfs mapping for this metric"}
	}
}

// readLoadAvg parses the first three whitespace-separated fields of
// /proc/loadavg: 1, 5 and 15 minute load averages.
func readLoadAvg() ([3]float64, error) {
	var out [3]float64
	raw, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return out, err
	}
	fields := strings.Fields(string(raw))
	for i := 0; i < 3 && i < len(fields); i++ {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return out, err
		}
		out[i] = v
	}
	return out, nil
}
