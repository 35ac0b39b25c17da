// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gmond-agent.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package scheduler

import (
	"net"
	"testing"
	"time"

	"github.com/ClusterCockpit/gmond-agent/internal/channels"
	"github.com/ClusterCockpit/gmond-agent/internal/metrics"
	"github.com/ClusterCockpit/gmond-agent/pkg/schema"
	"github.com/ClusterCockpit/gmond-agent/pkg/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// constantProvider always returns the configured value for every metric
// name it is asked about.
type constantProvider struct {
	values map[string]float64
}

func (p constantProvider) Measure(name string) (schema.Metric, error) {
	return schema.Metric{Name: name, Type: schema.ValueTypeFloat, FloatValue: p.values[name]}, nil
}

func freePort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).Port
}

func newLoopbackLayer(t *testing.T, port int) *channels.ChannelLayer {
	t.Helper()
	cl, err := channels.New(schema.Config{
		SendChannels: []schema.SendChannelConfig{{Address: "127.0.0.1", Port: port, Protocol: schema.ProtocolBinary}},
		Deaf:         true,
	})
	require.NoError(t, err)
	t.Cleanup(cl.Close)
	return cl
}

func TestTickAnnouncesOnFirstFire(t *testing.T) {
	port := freePort(t)
	listener, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: port})
	require.NoError(t, err)
	defer listener.Close()

	cl := newLoopbackLayer(t, port)
	cfg := schema.Config{CollectionGroups: []schema.CollectionGroupConfig{
		{Name: "cpu", CollectEvery: 5, TimeThreshold: 60, Metrics: []schema.MetricDescriptorConfig{{Name: "cpu_user", ValueThreshold: 1.0}}},
	}}

	now := time.Now()
	s := New(cfg, "node01", 1700000000, cl, constantProvider{values: map[string]float64{"cpu_user": 12.5}}, metrics.NewCounters(prometheus.NewRegistry()), now)

	s.Tick(now)

	require.NoError(t, listener.SetReadDeadline(time.Now().Add(time.Second)))
	buf := make([]byte, wire.MaxDatagramSize)
	n, _, err := listener.ReadFromUDP(buf)
	require.NoError(t, err)

	msg, err := wire.Decode(buf[:n], schema.ProtocolBinary)
	require.NoError(t, err)
	require.Equal(t, "cpu_user", msg.Metric.Name)
	require.InDelta(t, 12.5, msg.Metric.FloatValue, 0.0001)
}

func TestTickSuppressesBelowValueThreshold(t *testing.T) {
	cfg := schema.Config{CollectionGroups: []schema.CollectionGroupConfig{
		{Name: "cpu", CollectEvery: 5, TimeThreshold: 60, Metrics: []schema.MetricDescriptorConfig{{Name: "v", ValueThreshold: 10.0}}},
	}}

	now := time.Now()
	provider := &mutableProvider{value: 100}
	cl, err := channels.New(schema.Config{Deaf: true, Mute: true})
	require.NoError(t, err)
	defer cl.Close()

	s := New(cfg, "node01", 0, cl, provider, metrics.NewCounters(prometheus.NewRegistry()), now)

	s.Tick(now) // t=0: first fire, always announces
	g := s.groups[0]
	require.True(t, g.metrics["v"].announced)
	firstSentAt := g.metrics["v"].lastSentAt

	g.nextCollectAt = now.Add(5 * time.Second)
	provider.value = 105
	s.Tick(now.Add(5 * time.Second)) // Δ=5%, below 10% threshold: suppressed
	require.Equal(t, firstSentAt, g.metrics["v"].lastSentAt, "below-threshold change must not update lastSentAt")

	g.nextCollectAt = now.Add(10 * time.Second)
	provider.value = 115
	s.Tick(now.Add(10 * time.Second)) // Δ from 100 -> 115 is 15%, above threshold
	require.NotEqual(t, firstSentAt, g.metrics["v"].lastSentAt, "above-threshold change must announce")
}

type mutableProvider struct{ value float64 }

func (p *mutableProvider) Measure(name string) (schema.Metric, error) {
	return schema.Metric{Name: name, Type: schema.ValueTypeFloat, FloatValue: p.value}, nil
}

func TestTickAnnouncesOnTimeThresholdEvenWithoutChange(t *testing.T) {
	cfg := schema.Config{CollectionGroups: []schema.CollectionGroupConfig{
		{Name: "g", CollectEvery: 1, TimeThreshold: 30, Metrics: []schema.MetricDescriptorConfig{{Name: "v", ValueThreshold: 1000}}},
	}}

	now := time.Now()
	provider := &mutableProvider{value: 42}
	cl, err := channels.New(schema.Config{Deaf: true, Mute: true})
	require.NoError(t, err)
	defer cl.Close()

	s := New(cfg, "node01", 0, cl, provider, metrics.NewCounters(prometheus.NewRegistry()), now)
	s.Tick(now)
	firstSentAt := s.groups[0].metrics["v"].lastSentAt

	s.groups[0].nextCollectAt = now.Add(30 * time.Second)
	s.Tick(now.Add(30 * time.Second))
	require.NotEqual(t, firstSentAt, s.groups[0].metrics["v"].lastSentAt, "time threshold must force an announce even with an unchanged value")
}

func TestMuteMakesTickANoOp(t *testing.T) {
	cfg := schema.Config{
		Mute: true,
		CollectionGroups: []schema.CollectionGroupConfig{
			{Name: "g", CollectEvery: 1, TimeThreshold: 1, Metrics: []schema.MetricDescriptorConfig{{Name: "v", ValueThreshold: 0}}},
		},
	}
	cl, err := channels.New(schema.Config{Deaf: true, Mute: true})
	require.NoError(t, err)
	defer cl.Close()

	now := time.Now()
	s := New(cfg, "node01", 0, cl, &mutableProvider{value: 1}, metrics.NewCounters(prometheus.NewRegistry()), now)
	s.Tick(now)
	require.False(t, s.groups[0].metrics["v"].announced)
	require.True(t, s.NextDeadline(now).After(now.Add(time.Minute)), "a muted scheduler must return a far-future deadline")
}

func TestNextDeadlineTracksEarliestGroup(t *testing.T) {
	cfg := schema.Config{CollectionGroups: []schema.CollectionGroupConfig{
		{Name: "fast", CollectEvery: 5, TimeThreshold: 60, Metrics: []schema.MetricDescriptorConfig{{Name: "a"}}},
		{Name: "slow", CollectEvery: 50, TimeThreshold: 60, Metrics: []schema.MetricDescriptorConfig{{Name: "b"}}},
	}}
	cl, err := channels.New(schema.Config{Deaf: true, Mute: true})
	require.NoError(t, err)
	defer cl.Close()

	now := time.Now()
	s := New(cfg, "node01", 0, cl, &mutableProvider{value: 1}, metrics.NewCounters(prometheus.NewRegistry()), now)
	require.Equal(t, now, s.NextDeadline(now), "both groups seed next_collect_at = now so the earliest deadline is now")
}
