// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gmond-agent.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package channels

import (
	"fmt"
	"net"

	"github.com/ClusterCockpit/gmond-agent/pkg/schema"
)

// buildACL turns the dotted-decimal allow_ip/allow_mask pair from a
// receive channel's configuration into a *net.IPNet, built once here so
// the receive engine never allocates on the per-datagram ACL check.
func buildACL(rc schema.ReceiveChannelConfig) (*net.IPNet, error) {
	if !rc.HasACL() {
		return nil, nil
	}

	ip := net.ParseIP(rc.AllowIP)
	if ip == nil {
		return nil, &schema.ConfigError{Reason: fmt.Sprintf("allow_ip %q is not a valid address", rc.AllowIP)}
	}

	maskIP := net.ParseIP(rc.AllowMask)
	if maskIP == nil || maskIP.To4() == nil {
		return nil, &schema.ConfigError{Reason: fmt.Sprintf("allow_mask %q is not a valid dotted-decimal mask", rc.AllowMask)}
	}

	return &net.IPNet{IP: ip.To4(), Mask: net.IPMask(maskIP.To4())}, nil
}

func newReceiveHandle(rc schema.ReceiveChannelConfig) (*ReceiveHandle, error) {
	acl, err := buildACL(rc)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("udp_recv:%d", rc.Port)

	var conn *net.UDPConn
	if rc.MulticastGroup != "" {
		group := net.ParseIP(rc.MulticastGroup)
		if group == nil {
			return nil, &schema.ConfigError{Reason: fmt.Sprintf("mcast_join %q is not a valid address", rc.MulticastGroup)}
		}

		var iface *net.Interface
		if rc.MulticastInterface != "" {
			iface, err = net.InterfaceByName(rc.MulticastInterface)
			if err != nil {
				return nil, &schema.ChannelSetupError{Channel: name, Err: err}
			}
		}

		conn, err = net.ListenMulticastUDP("udp4", iface, &net.UDPAddr{IP: group, Port: rc.Port})
		if err != nil {
			return nil, &schema.ChannelSetupError{Channel: name, Err: err}
		}
		name = fmt.Sprintf("udp_recv:%s:%d", rc.MulticastGroup, rc.Port)
	} else {
		var bindIP net.IP
		if rc.BindAddress != "" {
			bindIP = net.ParseIP(rc.BindAddress)
			if bindIP == nil {
				return nil, &schema.ConfigError{Reason: fmt.Sprintf("bind address %q is not valid", rc.BindAddress)}
			}
		}

		conn, err = net.ListenUDP("udp4", &net.UDPAddr{IP: bindIP, Port: rc.Port})
		if err != nil {
			return nil, &schema.ChannelSetupError{Channel: name, Err: err}
		}
	}

	return &ReceiveHandle{
		Name:     name,
		Conn:     conn,
		Protocol: rc.Protocol,
		ACL:      acl,
	}, nil
}
