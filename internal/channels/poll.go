// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gmond-agent.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package channels

import (
	"net"
	"sync"
	"time"

	"github.com/ClusterCockpit/gmond-agent/pkg/schema"
	"github.com/ClusterCockpit/gmond-agent/pkg/wire"
)

// Datagram is one received payload, tagged with the handle it arrived on
// and the peer it came from.
type Datagram struct {
	Handle  *ReceiveHandle
	Payload []byte
	Source  *net.UDPAddr
}

// Poll reads at most one datagram from every live receive handle, waiting
// up to timeout for each. The POSIX agent this is grounded on calls
// poll(2) across every receive socket and then recvfrom(2) on whichever
// fired; Go's net package has no non-consuming multi-socket wait, so this
// collapses both steps into one deadlined ReadFromUDP per handle, run
// concurrently and fanned into a single slice. A handle that times out
// without data simply contributes nothing to the result.
func (cl *ChannelLayer) Poll(timeout time.Duration) ([]Datagram, []error) {
	type result struct {
		dg  *Datagram
		err error
	}

	handles := cl.receive
	results := make([]result, len(handles))

	var wg sync.WaitGroup
	for i, h := range handles {
		wg.Add(1)
		go func(i int, h *ReceiveHandle) {
			defer wg.Done()

			buf := make([]byte, wire.MaxDatagramSize)
			if err := h.Conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
				results[i] = result{err: &schema.HandleFatal{Channel: h.Name, Err: err}}
				return
			}

			n, addr, err := h.Conn.ReadFromUDP(buf)
			if err != nil {
				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					return
				}
				results[i] = result{err: &schema.TransientRecvError{Channel: h.Name, Err: err}}
				return
			}

			results[i] = result{dg: &Datagram{Handle: h, Payload: buf[:n], Source: addr}}
		}(i, h)
	}
	wg.Wait()

	var datagrams []Datagram
	var errs []error
	for _, r := range results {
		if r.err != nil {
			errs = append(errs, r.err)
			continue
		}
		if r.dg != nil {
			datagrams = append(datagrams, *r.dg)
		}
	}
	return datagrams, errs
}
