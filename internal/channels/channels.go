// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gmond-agent.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package channels owns the UDP sockets used for receiving and sending
// metric datagrams: multicast membership, per-channel access control, and
// the outbound fan-out across every configured send channel.
package channels

import (
	"net"

	"github.com/ClusterCockpit/gmond-agent/pkg/schema"
)

// ReceiveHandle is one configured, opened receive channel.
type ReceiveHandle struct {
	Name     string
	Conn     *net.UDPConn
	Protocol schema.Protocol
	// ACL is nil when the channel was configured without an allow-subnet,
	// in which case every source address is accepted.
	ACL *net.IPNet
	// Fatal is set by the receive engine once this handle has reported an
	// unrecoverable error; ChannelLayer.RemoveReceiveHandle then drops it
	// from future polls.
	Fatal bool
}

// Accepts reports whether addr is allowed to mutate the host table through
// this channel.
func (h *ReceiveHandle) Accepts(addr net.IP) bool {
	return h.ACL == nil || h.ACL.Contains(addr)
}

// SendHandle is one configured, opened send channel.
type SendHandle struct {
	Name     string
	Conn     *net.UDPConn
	Protocol schema.Protocol
}

// ChannelLayer owns every UDP socket for the process lifetime.
type ChannelLayer struct {
	receive []*ReceiveHandle
	send    []*SendHandle
}

// New builds a ChannelLayer from the parsed configuration. Receive channels
// are skipped entirely when cfg.Deaf; send channels when cfg.Mute.
// Construction failures (bind, multicast join) are fatal and reported as
// schema.ChannelSetupError.
func New(cfg schema.Config) (*ChannelLayer, error) {
	cl := &ChannelLayer{}

	if !cfg.Deaf {
		for _, rc := range cfg.ReceiveChannels {
			h, err := newReceiveHandle(rc)
			if err != nil {
				cl.Close()
				return nil, err
			}
			cl.receive = append(cl.receive, h)
		}
	}

	if !cfg.Mute {
		for _, sc := range cfg.SendChannels {
			h, err := newSendHandle(sc)
			if err != nil {
				cl.Close()
				return nil, err
			}
			cl.send = append(cl.send, h)
		}
	}

	return cl, nil
}

// ReceiveHandles returns the live receive handles, in construction order.
func (cl *ChannelLayer) ReceiveHandles() []*ReceiveHandle {
	return cl.receive
}

// RemoveReceiveHandle drops a handle that reported a HandleFatal error so
// the receive engine stops polling it.
func (cl *ChannelLayer) RemoveReceiveHandle(h *ReceiveHandle) {
	for i, rh := range cl.receive {
		if rh == h {
			cl.receive = append(cl.receive[:i], cl.receive[i+1:]...)
			return
		}
	}
}

// Close releases every socket owned by the layer. Safe to call multiple
// times and on a partially constructed layer.
func (cl *ChannelLayer) Close() {
	for _, h := range cl.receive {
		h.Conn.Close()
	}
	for _, h := range cl.send {
		h.Conn.Close()
	}
	cl.receive = nil
	cl.send = nil
}
