// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gmond-agent.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package wire implements the metric wire protocol: a binary, big-endian,
// 4-byte aligned XDR-style framing (with a read-only legacy variant) and an
// optional whitespace-delimited text framing, selected per-channel by
// schema.Protocol.
package wire

import (
	"fmt"

	"github.com/ClusterCockpit/gmond-agent/pkg/schema"
)

// MaxDatagramSize is the largest payload that fits in one UDP datagram
// without risking IP fragmentation on the networks this agent targets.
const MaxDatagramSize = 1472

// legacyIndexThreshold separates the read-only legacy header (index below
// this value) from the current one (index at or above it).
const legacyIndexThreshold = 1024

// CurrentIndex is used by Encode for every message this agent emits.
const CurrentIndex = 1024

// Message is the decoded form of one metric datagram.
type Message struct {
	// Index is the header index read off the wire. Values below 1024
	// identify the legacy (decode-only) encoding.
	Index uint32
	// SourceHostname is the hostname the sender claims for itself, as
	// carried in the header. The Receive Engine does not trust this for
	// host-table identity; it uses the transport source address instead.
	SourceHostname string
	// RemoteAgentStartTime is only populated by the current framing.
	RemoteAgentStartTime uint32
	Metric                schema.Metric
}

// Decode parses a single wire message according to the framing indicated
// by protocol. It never panics: truncation, over-length strings, unknown
// type tags and non-UTF-8 names all surface as a *schema.DecodeError.
func Decode(b []byte, protocol schema.Protocol) (Message, error) {
	switch protocol {
	case schema.ProtocolBinary, "":
		return decodeBinary(b)
	case schema.ProtocolSpoken:
		return decodeText(b)
	default:
		return Message{}, &schema.DecodeError{Reason: fmt.Sprintf("unsupported protocol %q", protocol)}
	}
}

// Encode serializes msg for transmission. Only the current framing is ever
// produced; protocol still selects between binary and text output. Encode
// fails with *schema.MessageTooLargeError if the result would not fit in
// one UDP datagram.
func Encode(msg Message, protocol schema.Protocol) ([]byte, error) {
	var b []byte
	var err error

	switch protocol {
	case schema.ProtocolBinary, "":
		b, err = encodeBinary(msg)
	case schema.ProtocolSpoken:
		b, err = encodeText(msg)
	default:
		return nil, fmt.Errorf("unsupported protocol %q", protocol)
	}
	if err != nil {
		return nil, err
	}

	if len(b) > MaxDatagramSize {
		return nil, &schema.MessageTooLargeError{Size: len(b)}
	}
	return b, nil
}
