// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gmond-agent.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

import (
	"strings"
	"time"
)

// ValueType tags the union held by a Metric.
type ValueType int

const (
	ValueTypeInt ValueType = iota
	ValueTypeUint
	ValueTypeFloat
	ValueTypeString
)

func (t ValueType) String() string {
	switch t {
	case ValueTypeInt:
		return "int"
	case ValueTypeUint:
		return "uint"
	case ValueTypeFloat:
		return "float"
	case ValueTypeString:
		return "string"
	default:
		return "unknown"
	}
}

// Metric is a single named value as carried on the wire: {name, type,
// value, units, time-of-last-update}. Equality between two readings of
// the same metric is by Name, case-insensitively, within a host.
type Metric struct {
	Name string
	Type ValueType

	IntValue    int64
	UintValue   uint64
	FloatValue  float64
	StringValue string

	Units string
	// TMax and DMax are the "current" (index >= 1024) framing's staleness
	// hints: the expected maximum seconds between updates, and the number
	// of seconds after which the value should be considered dead. Neither
	// drives eviction directly here; see CollectionGroupConfig.TimeThreshold
	// and Config.StaleHostThreshold for the mechanisms this spec actually
	// applies.
	TMax uint32
	DMax uint32

	// LastUpdate is the time this value was received or measured.
	LastUpdate time.Time
}

// Key returns the case-insensitive lookup key for this metric's name.
func (m Metric) Key() string {
	return strings.ToLower(m.Name)
}

// NumericValue returns the metric's value as a float64 along with whether
// the metric is of a numeric type at all.
func (m Metric) NumericValue() (float64, bool) {
	switch m.Type {
	case ValueTypeInt:
		return float64(m.IntValue), true
	case ValueTypeUint:
		return float64(m.UintValue), true
	case ValueTypeFloat:
		return m.FloatValue, true
	default:
		return 0, false
	}
}

// SameValue reports whether m and other carry the same value, used for the
// string-type "current != last" announce condition.
func (m Metric) SameValue(other Metric) bool {
	if m.Type != other.Type {
		return false
	}
	switch m.Type {
	case ValueTypeInt:
		return m.IntValue == other.IntValue
	case ValueTypeUint:
		return m.UintValue == other.UintValue
	case ValueTypeFloat:
		return m.FloatValue == other.FloatValue
	case ValueTypeString:
		return m.StringValue == other.StringValue
	default:
		return false
	}
}

// HostAggregate is the per-remote-node record kept in the Host Table.
type HostAggregate struct {
	// Hostname is the resolved name, or the literal source IP if reverse
	// DNS resolution failed at insertion time. Never empty.
	Hostname string
	// RemoteAgentStartTime is the remote agent's own process start time,
	// as carried by the current (>=1024) wire header.
	RemoteAgentStartTime uint32

	FirstHeard time.Time
	LastHeard  time.Time

	// Metrics is keyed by Metric.Key() (case-insensitive name).
	Metrics map[string]Metric
}

// Clone returns a deep-enough copy suitable for handing to a snapshot
// consumer without risking a concurrent mutation tearing the metrics map.
func (h HostAggregate) Clone() HostAggregate {
	c := h
	c.Metrics = make(map[string]Metric, len(h.Metrics))
	for k, v := range h.Metrics {
		c.Metrics[k] = v
	}
	return c
}
