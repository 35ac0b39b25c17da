// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gmond-agent.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package hosttable is the in-memory store of everything this agent has
// heard from its peers: one HostAggregate per source address, each
// holding the most recent value of every metric that address has
// announced. There is no persistence and no history; a restart starts
// empty.
package hosttable

import (
	"net"
	"strings"
	"sync"
	"time"

	"github.com/ClusterCockpit/gmond-agent/pkg/schema"
)

// entry pairs a schema.HostAggregate with the lock that protects its
// Metrics map. The table's own lock only protects the top-level map of
// entries; per-host updates take the entry's own lock, mirroring the
// two-level locking split used by this codebase's other in-memory store.
type entry struct {
	lock sync.RWMutex
	data schema.HostAggregate
}

// Resolver reverse-resolves a source IP literal to a hostname. It is the
// seam getOrCreate calls through on first contact from an address; tests
// supply a stub instead of depending on real DNS.
type Resolver func(ip string) (string, error)

// lookupAddr is the default Resolver, backed by net.LookupAddr. It
// returns the first name reported, with the trailing dot a PTR record
// carries stripped.
func lookupAddr(ip string) (string, error) {
	names, err := net.LookupAddr(ip)
	if err != nil || len(names) == 0 {
		return "", err
	}
	return strings.TrimSuffix(names[0], "."), nil
}

// HostTable is a concurrent map from source address to HostAggregate,
// safe for the Receive Engine to write and the Send Scheduler or report
// endpoint to read at the same time.
type HostTable struct {
	lock    sync.RWMutex
	hosts   map[string]*entry
	resolve Resolver
}

// New returns an empty HostTable that reverse-resolves new hosts via
// net.LookupAddr.
func New() *HostTable {
	return NewWithResolver(lookupAddr)
}

// NewWithResolver returns an empty HostTable using resolve instead of
// net.LookupAddr to turn a source address into a hostname on first
// contact.
func NewWithResolver(resolve Resolver) *HostTable {
	return &HostTable{hosts: make(map[string]*entry), resolve: resolve}
}

// getOrCreate finds the entry for sourceAddr, creating it on a miss.
// Mirrors the find-or-create-under-write-lock pattern this codebase's
// memorystore.Level uses: a read lock is tried first, and a write lock
// is only taken, then rechecked, on a miss. A new host's name is
// reverse-resolved from sourceAddr, falling back to the address literal
// when resolution fails: the sender's self-reported hostname is never
// trusted as identity.
func (t *HostTable) getOrCreate(sourceAddr string, now time.Time) *entry {
	t.lock.RLock()
	e, ok := t.hosts[sourceAddr]
	t.lock.RUnlock()
	if ok {
		return e
	}

	t.lock.Lock()
	defer t.lock.Unlock()
	if e, ok = t.hosts[sourceAddr]; ok {
		return e
	}

	hostname, err := t.resolve(sourceAddr)
	if err != nil || hostname == "" {
		hostname = sourceAddr
	}

	e = &entry{data: schema.HostAggregate{
		Hostname:   hostname,
		FirstHeard: now,
		LastHeard:  now,
		Metrics:    make(map[string]schema.Metric),
	}}
	t.hosts[sourceAddr] = e
	return e
}

// UpdateMetric records a single metric reading from sourceAddr, creating
// the host's aggregate on first contact. remoteAgentStartTime is only
// applied when non-zero, since the legacy wire header never carries it.
func (t *HostTable) UpdateMetric(sourceAddr string, remoteAgentStartTime uint32, m schema.Metric) {
	e := t.getOrCreate(sourceAddr, m.LastUpdate)

	e.lock.Lock()
	defer e.lock.Unlock()
	e.data.LastHeard = m.LastUpdate
	if remoteAgentStartTime != 0 {
		e.data.RemoteAgentStartTime = remoteAgentStartTime
	}
	e.data.Metrics[m.Key()] = m
}

// Lookup returns a deep-enough copy of one host's aggregate.
func (t *HostTable) Lookup(sourceAddr string) (schema.HostAggregate, bool) {
	t.lock.RLock()
	e, ok := t.hosts[sourceAddr]
	t.lock.RUnlock()
	if !ok {
		return schema.HostAggregate{}, false
	}

	e.lock.RLock()
	defer e.lock.RUnlock()
	return e.data.Clone(), true
}

// Snapshot returns a deep-enough copy of every host aggregate currently
// held, keyed by source address. Safe to range over without holding any
// table lock afterwards.
func (t *HostTable) Snapshot() map[string]schema.HostAggregate {
	t.lock.RLock()
	addrs := make([]string, 0, len(t.hosts))
	entries := make([]*entry, 0, len(t.hosts))
	for addr, e := range t.hosts {
		addrs = append(addrs, addr)
		entries = append(entries, e)
	}
	t.lock.RUnlock()

	out := make(map[string]schema.HostAggregate, len(addrs))
	for i, addr := range addrs {
		entries[i].lock.RLock()
		out[addr] = entries[i].data.Clone()
		entries[i].lock.RUnlock()
	}
	return out
}

// Len reports the number of hosts currently tracked.
func (t *HostTable) Len() int {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return len(t.hosts)
}

// EvictStale drops every host whose LastHeard precedes now minus
// threshold, returning the number of hosts removed. Grounded on the same
// sweep-and-delete shape as memorystore's buffer eviction, simplified to
// whole-host granularity since the Host Table keeps no history to free
// incrementally.
func (t *HostTable) EvictStale(now time.Time, threshold time.Duration) int {
	cutoff := now.Add(-threshold)

	t.lock.Lock()
	defer t.lock.Unlock()

	removed := 0
	for addr, e := range t.hosts {
		e.lock.RLock()
		stale := e.data.LastHeard.Before(cutoff)
		e.lock.RUnlock()
		if stale {
			delete(t.hosts, addr)
			removed++
		}
	}
	return removed
}
