// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gmond-agent.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package wire

import (
	"bytes"
	"encoding/binary"
	"math"
	"time"
	"unicode/utf8"

	"github.com/ClusterCockpit/gmond-agent/pkg/schema"
)

// maxStringLen bounds any single length-prefixed string on the wire; a
// length exceeding this is treated as a corrupt/hostile datagram rather
// than trusted and allocated.
const maxStringLen = 1450

const (
	tagInt uint32 = iota
	tagUint
	tagFloat
	tagString
)

// pad4 returns n rounded up to the next multiple of 4.
func pad4(n int) int {
	return (n + 3) &^ 3
}

type cursor struct {
	buf []byte
	pos int
}

func (c *cursor) remaining() int { return len(c.buf) - c.pos }

func (c *cursor) readUint32() (uint32, error) {
	if c.remaining() < 4 {
		return 0, &schema.DecodeError{Reason: "truncated: expected 4 more bytes"}
	}
	v := binary.BigEndian.Uint32(c.buf[c.pos : c.pos+4])
	c.pos += 4
	return v, nil
}

func (c *cursor) readUint64() (uint64, error) {
	if c.remaining() < 8 {
		return 0, &schema.DecodeError{Reason: "truncated: expected 8 more bytes"}
	}
	v := binary.BigEndian.Uint64(c.buf[c.pos : c.pos+8])
	c.pos += 8
	return v, nil
}

// readString reads an XDR-style length-prefixed, 4-byte padded string.
func (c *cursor) readString() (string, error) {
	n, err := c.readUint32()
	if err != nil {
		return "", err
	}
	if n > maxStringLen {
		return "", &schema.DecodeError{Reason: "string exceeds maximum length"}
	}

	padded := pad4(int(n))
	if c.remaining() < padded {
		return "", &schema.DecodeError{Reason: "truncated string"}
	}

	s := c.buf[c.pos : c.pos+int(n)]
	if !utf8.Valid(s) {
		return "", &schema.DecodeError{Reason: "non-UTF-8 string"}
	}

	c.pos += padded
	return string(s), nil
}

type writer struct {
	buf bytes.Buffer
}

func (w *writer) writeUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) writeUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) writeString(s string) error {
	if len(s) > maxStringLen {
		return &schema.MessageTooLargeError{Size: len(s)}
	}
	w.writeUint32(uint32(len(s)))
	w.buf.WriteString(s)
	if rem := pad4(len(s)) - len(s); rem > 0 {
		w.buf.Write(make([]byte, rem))
	}
	return nil
}

func metricTypeTag(t schema.ValueType) (uint32, error) {
	switch t {
	case schema.ValueTypeInt:
		return tagInt, nil
	case schema.ValueTypeUint:
		return tagUint, nil
	case schema.ValueTypeFloat:
		return tagFloat, nil
	case schema.ValueTypeString:
		return tagString, nil
	default:
		return 0, &schema.DecodeError{Reason: "unknown metric value type"}
	}
}

func (c *cursor) readValue(tag uint32) (schema.Metric, error) {
	var m schema.Metric
	switch tag {
	case tagInt:
		v, err := c.readUint64()
		if err != nil {
			return m, err
		}
		m.Type = schema.ValueTypeInt
		m.IntValue = int64(v)
	case tagUint:
		v, err := c.readUint64()
		if err != nil {
			return m, err
		}
		m.Type = schema.ValueTypeUint
		m.UintValue = v
	case tagFloat:
		v, err := c.readUint64()
		if err != nil {
			return m, err
		}
		m.Type = schema.ValueTypeFloat
		m.FloatValue = math.Float64frombits(v)
	case tagString:
		s, err := c.readString()
		if err != nil {
			return m, err
		}
		m.Type = schema.ValueTypeString
		m.StringValue = s
	default:
		return m, &schema.DecodeError{Reason: "unknown type tag"}
	}
	return m, nil
}

func (w *writer) writeValue(m schema.Metric) error {
	switch m.Type {
	case schema.ValueTypeInt:
		w.writeUint64(uint64(m.IntValue))
	case schema.ValueTypeUint:
		w.writeUint64(m.UintValue)
	case schema.ValueTypeFloat:
		w.writeUint64(math.Float64bits(m.FloatValue))
	case schema.ValueTypeString:
		return w.writeString(m.StringValue)
	default:
		return &schema.DecodeError{Reason: "unknown metric value type"}
	}
	return nil
}

// decodeBinary decodes both the legacy (index < 1024) and current
// (index >= 1024) headers. The legacy branch is read-only: this agent
// never emits it, only interoperates with it.
func decodeBinary(b []byte) (Message, error) {
	c := &cursor{buf: b}

	index, err := c.readUint32()
	if err != nil {
		return Message{}, err
	}

	hostname, err := c.readString()
	if err != nil {
		return Message{}, err
	}

	name, err := c.readString()
	if err != nil {
		return Message{}, err
	}

	msg := Message{Index: index, SourceHostname: hostname}

	if index >= legacyIndexThreshold {
		startTime, err := c.readUint32()
		if err != nil {
			return Message{}, err
		}
		msg.RemoteAgentStartTime = startTime
	}

	tag, err := c.readUint32()
	if err != nil {
		return Message{}, err
	}

	metric, err := c.readValue(tag)
	if err != nil {
		return Message{}, err
	}
	metric.Name = name

	if index >= legacyIndexThreshold {
		units, err := c.readString()
		if err != nil {
			return Message{}, err
		}
		tmax, err := c.readUint32()
		if err != nil {
			return Message{}, err
		}
		dmax, err := c.readUint32()
		if err != nil {
			return Message{}, err
		}
		metric.Units = units
		metric.TMax = tmax
		metric.DMax = dmax
	}

	metric.LastUpdate = time.Now()
	msg.Metric = metric
	return msg, nil
}

// encodeBinary always produces the current (index >= 1024) framing; the
// legacy framing is decode-only per spec.
func encodeBinary(msg Message) ([]byte, error) {
	w := &writer{}
	w.writeUint32(CurrentIndex)
	if err := w.writeString(msg.SourceHostname); err != nil {
		return nil, err
	}
	if err := w.writeString(msg.Metric.Name); err != nil {
		return nil, err
	}
	w.writeUint32(msg.RemoteAgentStartTime)

	tag, err := metricTypeTag(msg.Metric.Type)
	if err != nil {
		return nil, err
	}
	w.writeUint32(tag)
	if err := w.writeValue(msg.Metric); err != nil {
		return nil, err
	}

	if err := w.writeString(msg.Metric.Units); err != nil {
		return nil, err
	}
	w.writeUint32(msg.Metric.TMax)
	w.writeUint32(msg.Metric.DMax)

	return w.buf.Bytes(), nil
}
