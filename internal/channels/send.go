// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gmond-agent.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package channels

import (
	"fmt"
	"net"

	"github.com/ClusterCockpit/gmond-agent/pkg/schema"
	"github.com/ClusterCockpit/gmond-agent/pkg/wire"
	"golang.org/x/net/ipv4"
)

const defaultMulticastTTL = 1

func newSendHandle(sc schema.SendChannelConfig) (*SendHandle, error) {
	name := fmt.Sprintf("udp_send:%s:%d", sc.Address, sc.Port)

	dest, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", sc.Address, sc.Port))
	if err != nil {
		return nil, &schema.ChannelSetupError{Channel: name, Err: err}
	}

	conn, err := net.DialUDP("udp4", nil, dest)
	if err != nil {
		return nil, &schema.ChannelSetupError{Channel: name, Err: err}
	}

	if sc.MulticastGroup != "" {
		pc := ipv4.NewPacketConn(conn)

		ttl := sc.TTL
		if ttl <= 0 {
			ttl = defaultMulticastTTL
		}
		if err := pc.SetMulticastTTL(ttl); err != nil {
			conn.Close()
			return nil, &schema.ChannelSetupError{Channel: name, Err: err}
		}

		if sc.MulticastInterface != "" {
			iface, err := net.InterfaceByName(sc.MulticastInterface)
			if err != nil {
				conn.Close()
				return nil, &schema.ChannelSetupError{Channel: name, Err: err}
			}
			if err := pc.SetMulticastInterface(iface); err != nil {
				conn.Close()
				return nil, &schema.ChannelSetupError{Channel: name, Err: err}
			}
		}

		// Loopback is always enabled on multicast send channels so a
		// co-located receive channel observes this node's own
		// announcements, the behavior gmond's create_mcast_client relies on.
		if err := pc.SetMulticastLoopback(true); err != nil {
			conn.Close()
			return nil, &schema.ChannelSetupError{Channel: name, Err: err}
		}
	}

	return &SendHandle{
		Name:     name,
		Conn:     conn,
		Protocol: sc.Protocol,
	}, nil
}

// SendAll encodes msg once per distinct protocol in use and writes it to
// every configured send channel, returning the number of channels the
// write succeeded on. A failure on one channel, whether at encode or at
// write, never blocks delivery to the others: it is wrapped as the
// non-fatal SendError, counted rather than propagated.
func (cl *ChannelLayer) SendAll(msg wire.Message) (delivered int, errs []error) {
	encoded := make(map[schema.Protocol][]byte, 2)

	for _, h := range cl.send {
		payload, ok := encoded[h.Protocol]
		if !ok {
			p, err := wire.Encode(msg, h.Protocol)
			if err != nil {
				errs = append(errs, &schema.SendError{Channel: h.Name, Err: err})
				continue
			}
			payload = p
			encoded[h.Protocol] = p
		}

		if _, err := h.Conn.Write(payload); err != nil {
			errs = append(errs, &schema.SendError{Channel: h.Name, Err: err})
			continue
		}
		delivered++
	}
	return delivered, errs
}

// SendHandles returns the configured send handles, in construction order.
func (cl *ChannelLayer) SendHandles() []*SendHandle {
	return cl.send
}
