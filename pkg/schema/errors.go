// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gmond-agent.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

import "fmt"

// ConfigError is fatal at startup: malformed subnet, unparseable address,
// or both Deaf and Mute set. The process must not start.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", e.Reason)
}

// ChannelSetupError is fatal at startup: a socket bind or multicast-join
// failure while building the Channel Layer.
type ChannelSetupError struct {
	Channel string
	Err     error
}

func (e *ChannelSetupError) Error() string {
	return fmt.Sprintf("channel setup failed for %s: %s", e.Channel, e.Err)
}

func (e *ChannelSetupError) Unwrap() error { return e.Err }

// DecodeError is per-datagram and never fatal: truncation, over-length
// strings, unknown type tags, or non-UTF-8 names.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error: %s", e.Reason)
}

// MessageTooLargeError means an encoded datagram would not fit in the
// 1472-byte UDP payload budget.
type MessageTooLargeError struct {
	Size int
}

func (e *MessageTooLargeError) Error() string {
	return fmt.Sprintf("encoded message too large: %d bytes (limit 1472)", e.Size)
}

// ACLDenied is per-datagram and never fatal: a source address was
// rejected by a receive channel's allow-subnet.
type ACLDenied struct {
	Channel string
	Source  string
}

func (e *ACLDenied) Error() string {
	return fmt.Sprintf("source %s denied by acl on %s", e.Source, e.Channel)
}

// TransientRecvError wraps a recoverable read failure on a receive
// channel (e.g. EINTR, a transient kernel buffer condition). The channel
// stays open; the engine just moves on to the next poll.
type TransientRecvError struct {
	Channel string
	Err     error
}

func (e *TransientRecvError) Error() string {
	return fmt.Sprintf("transient recv error on %s: %s", e.Channel, e.Err)
}

func (e *TransientRecvError) Unwrap() error { return e.Err }

// HandleFatal means a receive channel's socket is no longer usable and
// must be dropped from future polls.
type HandleFatal struct {
	Channel string
	Err     error
}

func (e *HandleFatal) Error() string {
	return fmt.Sprintf("receive channel %s failed permanently: %s", e.Channel, e.Err)
}

func (e *HandleFatal) Unwrap() error { return e.Err }

// SendError is per-channel, per-announce and never fatal: one send
// channel failing a write never blocks delivery on the others.
type SendError struct {
	Channel string
	Err     error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send failed on %s: %s", e.Channel, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// MeasurementUnavailable means a collection group's metric source could
// not produce a value for this tick; the scheduler skips the announce
// and retries next tick.
type MeasurementUnavailable struct {
	Metric string
	Reason string
}

func (e *MeasurementUnavailable) Error() string {
	return fmt.Sprintf("measurement %s unavailable: %s", e.Metric, e.Reason)
}
