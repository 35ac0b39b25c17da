// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gmond-agent.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package schema holds the data types shared by the channel layer, host
// table, receive engine and send scheduler: the already-parsed
// configuration tree, wire-level metric values and the per-host
// aggregates built from them.
package schema

import "fmt"

// Protocol tags a channel with the wire framing used on it.
type Protocol string

const (
	// ProtocolBinary is the XDR-style, 4-byte aligned binary framing.
	ProtocolBinary Protocol = "binary"
	// ProtocolSpoken is the whitespace-delimited text framing.
	ProtocolSpoken Protocol = "spoken"
)

// ReceiveChannelConfig describes one configured receive channel.
type ReceiveChannelConfig struct {
	Port               int      `json:"port"`
	BindAddress        string   `json:"bind,omitempty"`
	MulticastGroup     string   `json:"mcast_join,omitempty"`
	MulticastInterface string   `json:"mcast_if,omitempty"`
	AllowIP            string   `json:"allow_ip,omitempty"`
	AllowMask          string   `json:"allow_mask,omitempty"`
	Protocol           Protocol `json:"protocol"`
}

// HasACL reports whether this channel was configured with an allow-subnet.
func (c ReceiveChannelConfig) HasACL() bool {
	return c.AllowIP != ""
}

// SendChannelConfig describes one configured send channel.
type SendChannelConfig struct {
	Address            string   `json:"ip"`
	Port               int      `json:"port"`
	MulticastGroup     string   `json:"mcast_join,omitempty"`
	MulticastInterface string   `json:"mcast_if,omitempty"`
	Protocol           Protocol `json:"protocol"`
	// TTL is the outbound multicast hop limit. Zero means "use the default of 1".
	TTL int `json:"ttl,omitempty"`
}

// MetricDescriptorConfig names a metric measured and announced by a
// collection group, and the relative-change threshold, in percent of the
// last announced value, that triggers an early announcement for it.
type MetricDescriptorConfig struct {
	Name           string  `json:"name"`
	ValueThreshold float64 `json:"value_threshold"`
}

// CollectionGroupConfig is a set of metrics measured and announced
// together on a shared cadence.
type CollectionGroupConfig struct {
	Name string `json:"name"`
	// CollectEvery is the collection interval, in seconds.
	CollectEvery int `json:"collect_every"`
	// TimeThreshold is the maximum interval, in seconds, between two
	// announcements of the same metric regardless of value stability.
	TimeThreshold int                      `json:"time_threshold"`
	Metrics       []MetricDescriptorConfig `json:"metric"`
}

// Config is the already-parsed configuration tree the core consumes. It is
// the single input to the Channel Layer and the Send Scheduler.
type Config struct {
	// Deaf disables all receive channels.
	Deaf bool `json:"deaf"`
	// Mute disables all send channels and the scheduler.
	Mute bool `json:"mute"`

	ReceiveChannels  []ReceiveChannelConfig  `json:"udp_recv_channel"`
	SendChannels     []SendChannelConfig     `json:"udp_send_channel"`
	CollectionGroups []CollectionGroupConfig `json:"collection_group"`

	// StaleHostThreshold is the liveness-sweep threshold, in seconds: a
	// host aggregate is evicted once last-heard precedes now minus this
	// value. The housekeeper (internal/scheduler) owns this sweep.
	StaleHostThreshold int `json:"stale_host_threshold"`

	// ReportAddr, if non-empty, starts the read-only report endpoint
	// on this address.
	ReportAddr string `json:"report_addr,omitempty"`
}

// Validate enforces the configuration invariants the core refuses to start
// without: at least one of Deaf/Mute must be false, ports must be in
// range, and an allow-subnet must carry both its address and mask.
func (c Config) Validate() error {
	if c.Deaf && c.Mute {
		return &ConfigError{Reason: "both deaf and mute are set; the agent would neither send nor receive"}
	}

	for i, rc := range c.ReceiveChannels {
		if rc.Port <= 0 || rc.Port > 65535 {
			return &ConfigError{Reason: fmt.Sprintf("receive channel %d: invalid port %d", i, rc.Port)}
		}
		if (rc.AllowIP == "") != (rc.AllowMask == "") {
			return &ConfigError{Reason: fmt.Sprintf("receive channel %d: allow_ip and allow_mask must be set together", i)}
		}
	}

	for i, sc := range c.SendChannels {
		if sc.Address == "" {
			return &ConfigError{Reason: fmt.Sprintf("send channel %d: missing destination address", i)}
		}
		if sc.Port <= 0 || sc.Port > 65535 {
			return &ConfigError{Reason: fmt.Sprintf("send channel %d: invalid port %d", i, sc.Port)}
		}
	}

	for i, g := range c.CollectionGroups {
		if g.CollectEvery <= 0 {
			return &ConfigError{Reason: fmt.Sprintf("collection group %d (%s): collect_every must be positive", i, g.Name)}
		}
	}

	return nil
}
