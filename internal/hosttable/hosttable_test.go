// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gmond-agent.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package hosttable

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ClusterCockpit/gmond-agent/pkg/schema"
	"github.com/stretchr/testify/require"
)

// staticResolver maps addresses to names for tests, standing in for
// net.LookupAddr so the suite has no dependency on real DNS.
func staticResolver(names map[string]string) Resolver {
	return func(ip string) (string, error) {
		name, ok := names[ip]
		if !ok {
			return "", errors.New("no such host")
		}
		return name, nil
	}
}

func TestUpdateMetricCreatesHostOnFirstContact(t *testing.T) {
	ht := NewWithResolver(staticResolver(map[string]string{"10.0.0.1": "node01"}))
	now := time.Now()

	ht.UpdateMetric("10.0.0.1", 1700000000, schema.Metric{
		Name: "cpu_user", Type: schema.ValueTypeFloat, FloatValue: 12.5, LastUpdate: now,
	})

	agg, ok := ht.Lookup("10.0.0.1")
	require.True(t, ok)
	require.Equal(t, "node01", agg.Hostname)
	require.Equal(t, uint32(1700000000), agg.RemoteAgentStartTime)
	require.Equal(t, now, agg.FirstHeard)
	require.Equal(t, now, agg.LastHeard)
	require.Len(t, agg.Metrics, 1)
	require.InDelta(t, 12.5, agg.Metrics["cpu_user"].FloatValue, 0.0001)
}

func TestUpdateMetricFallsBackToAddressWhenResolutionFails(t *testing.T) {
	ht := NewWithResolver(staticResolver(nil))
	now := time.Now()

	ht.UpdateMetric("10.0.0.1", 0, schema.Metric{Name: "cpu_user", Type: schema.ValueTypeFloat, LastUpdate: now})

	agg, ok := ht.Lookup("10.0.0.1")
	require.True(t, ok)
	require.Equal(t, "10.0.0.1", agg.Hostname, "a failed reverse lookup must fall back to the address literal")
}

func TestUpdateMetricIgnoresWhateverTheSenderClaims(t *testing.T) {
	ht := NewWithResolver(staticResolver(map[string]string{"10.0.0.1": "node01"}))
	now := time.Now()

	ht.UpdateMetric("10.0.0.1", 0, schema.Metric{Name: "cpu_user", Type: schema.ValueTypeFloat, LastUpdate: now})

	agg, ok := ht.Lookup("10.0.0.1")
	require.True(t, ok)
	require.Equal(t, "node01", agg.Hostname, "identity comes from resolving the source address, never from anything the message itself carries")
}

func TestUpdateMetricResolvesOnlyOnceForARepeatHost(t *testing.T) {
	calls := 0
	resolve := func(ip string) (string, error) {
		calls++
		return "node01", nil
	}
	ht := NewWithResolver(resolve)
	now := time.Now()

	ht.UpdateMetric("10.0.0.1", 0, schema.Metric{Name: "a", Type: schema.ValueTypeFloat, LastUpdate: now})
	ht.UpdateMetric("10.0.0.1", 0, schema.Metric{Name: "b", Type: schema.ValueTypeFloat, LastUpdate: now.Add(time.Second)})

	require.Equal(t, 1, calls, "resolution only happens on first contact, not on every update")
}

func TestUpdateMetricKeysCaseInsensitively(t *testing.T) {
	ht := NewWithResolver(staticResolver(map[string]string{"10.0.0.1": "node01"}))
	now := time.Now()
	ht.UpdateMetric("10.0.0.1", 0, schema.Metric{Name: "CPU_User", Type: schema.ValueTypeFloat, FloatValue: 1, LastUpdate: now})
	ht.UpdateMetric("10.0.0.1", 0, schema.Metric{Name: "cpu_user", Type: schema.ValueTypeFloat, FloatValue: 2, LastUpdate: now.Add(time.Second)})

	agg, ok := ht.Lookup("10.0.0.1")
	require.True(t, ok)
	require.Len(t, agg.Metrics, 1, "same metric name differing only by case must overwrite, not duplicate")
	require.InDelta(t, 2, agg.Metrics["cpu_user"].FloatValue, 0.0001)
}

func TestUpdateMetricPreservesStartTimeWhenLegacyHeaderOmitsIt(t *testing.T) {
	ht := NewWithResolver(staticResolver(map[string]string{"10.0.0.1": "node01"}))
	now := time.Now()
	ht.UpdateMetric("10.0.0.1", 1700000000, schema.Metric{Name: "cpu_user", Type: schema.ValueTypeFloat, LastUpdate: now})
	ht.UpdateMetric("10.0.0.1", 0, schema.Metric{Name: "load1", Type: schema.ValueTypeFloat, LastUpdate: now.Add(time.Second)})

	agg, ok := ht.Lookup("10.0.0.1")
	require.True(t, ok)
	require.Equal(t, uint32(1700000000), agg.RemoteAgentStartTime, "a zero start time from a later legacy-framed datagram must not clobber an earlier known value")
}

func TestLookupMissingHostReturnsFalse(t *testing.T) {
	ht := New()
	_, ok := ht.Lookup("10.0.0.99")
	require.False(t, ok)
}

func TestSnapshotReturnsIndependentCopies(t *testing.T) {
	ht := NewWithResolver(staticResolver(map[string]string{"10.0.0.1": "node01"}))
	now := time.Now()
	ht.UpdateMetric("10.0.0.1", 0, schema.Metric{Name: "cpu_user", Type: schema.ValueTypeFloat, FloatValue: 1, LastUpdate: now})

	snap := ht.Snapshot()
	require.Len(t, snap, 1)

	ht.UpdateMetric("10.0.0.1", 0, schema.Metric{Name: "cpu_user", Type: schema.ValueTypeFloat, FloatValue: 99, LastUpdate: now.Add(time.Second)})

	require.InDelta(t, 1, snap["10.0.0.1"].Metrics["cpu_user"].FloatValue, 0.0001, "snapshot must not observe later mutation")
}

func TestEvictStaleRemovesOnlyHostsPastThreshold(t *testing.T) {
	ht := NewWithResolver(staticResolver(map[string]string{"10.0.0.1": "stale", "10.0.0.2": "fresh"}))
	now := time.Now()
	ht.UpdateMetric("10.0.0.1", 0, schema.Metric{Name: "cpu_user", Type: schema.ValueTypeFloat, LastUpdate: now.Add(-time.Hour)})
	ht.UpdateMetric("10.0.0.2", 0, schema.Metric{Name: "cpu_user", Type: schema.ValueTypeFloat, LastUpdate: now})

	removed := ht.EvictStale(now, time.Minute)
	require.Equal(t, 1, removed)
	require.Equal(t, 1, ht.Len())

	_, ok := ht.Lookup("10.0.0.2")
	require.True(t, ok)
	_, ok = ht.Lookup("10.0.0.1")
	require.False(t, ok)
}

func TestUpdateMetricConcurrentAccess(t *testing.T) {
	ht := NewWithResolver(staticResolver(map[string]string{"10.0.0.1": "node01"}))
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ht.UpdateMetric("10.0.0.1", 0, schema.Metric{
				Name: "counter", Type: schema.ValueTypeInt, IntValue: int64(i), LastUpdate: time.Now(),
			})
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, ht.Len())
	agg, ok := ht.Lookup("10.0.0.1")
	require.True(t, ok)
	require.Len(t, agg.Metrics, 1)
}
