// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gmond-agent.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package wire

import (
	"math"
	"testing"

	"github.com/ClusterCockpit/gmond-agent/pkg/schema"
	"github.com/stretchr/testify/require"
)

func TestBinaryRoundTrip(t *testing.T) {
	cases := []schema.Metric{
		{Name: "cpu_user", Type: schema.ValueTypeFloat, FloatValue: 12.5, Units: "%"},
		{Name: "bytes_in", Type: schema.ValueTypeUint, UintValue: 18446744073709551615},
		{Name: "load1", Type: schema.ValueTypeInt, IntValue: -42},
		{Name: "os_name", Type: schema.ValueTypeString, StringValue: "linux"},
	}

	for _, metric := range cases {
		t.Run(metric.Name, func(t *testing.T) {
			msg := Message{
				SourceHostname:       "node01",
				RemoteAgentStartTime: 1700000000,
				Metric:               metric,
			}

			encoded, err := Encode(msg, schema.ProtocolBinary)
			require.NoError(t, err)

			decoded, err := Decode(encoded, schema.ProtocolBinary)
			require.NoError(t, err)

			require.Equal(t, msg.SourceHostname, decoded.SourceHostname)
			require.Equal(t, msg.RemoteAgentStartTime, decoded.RemoteAgentStartTime)
			require.Equal(t, metric.Name, decoded.Metric.Name)
			require.Equal(t, metric.Type, decoded.Metric.Type)
			require.True(t, metric.SameValue(decoded.Metric))
			require.Equal(t, metric.Units, decoded.Metric.Units)

			reencoded, err := Encode(decoded, schema.ProtocolBinary)
			require.NoError(t, err)
			require.Equal(t, encoded, reencoded, "encode(decode(b)) must equal b for the canonical form")
		})
	}
}

func TestDecodeLegacyHeaderIsReadOnly(t *testing.T) {
	w := &writer{}
	w.writeUint32(42) // legacy index
	require.NoError(t, w.writeString("node01"))
	require.NoError(t, w.writeString("cpu_user"))
	w.writeUint32(tagFloat)
	w.writeUint64(math.Float64bits(12.5))

	msg, err := decodeBinary(w.buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, uint32(42), msg.Index)
	require.Equal(t, "cpu_user", msg.Metric.Name)
	require.Equal(t, schema.ValueTypeFloat, msg.Metric.Type)
	require.InDelta(t, 12.5, msg.Metric.FloatValue, 0.0001)
	require.Empty(t, msg.Metric.Units, "legacy framing carries no units")
}

func TestDecodeRejectsTruncatedDatagram(t *testing.T) {
	_, err := Decode([]byte{0x00, 0x00, 0x00}, schema.ProtocolBinary)
	require.Error(t, err)
	var decodeErr *schema.DecodeError
	require.ErrorAs(t, err, &decodeErr)
}

func TestDecodeRejectsUnknownTypeTag(t *testing.T) {
	w := &writer{}
	w.writeUint32(CurrentIndex)
	require.NoError(t, w.writeString("node01"))
	require.NoError(t, w.writeString("cpu_user"))
	w.writeUint32(0) // remote agent start time
	w.writeUint32(99)

	_, err := decodeBinary(w.buf.Bytes())
	require.Error(t, err)
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	huge := make([]byte, maxStringLen)
	for i := range huge {
		huge[i] = 'a'
	}
	msg := Message{
		SourceHostname: "node01",
		Metric:         schema.Metric{Name: "huge", Type: schema.ValueTypeString, StringValue: string(huge)},
	}

	_, err := Encode(msg, schema.ProtocolBinary)
	require.Error(t, err)
	var tooLarge *schema.MessageTooLargeError
	require.ErrorAs(t, err, &tooLarge)
}

func TestTextRoundTrip(t *testing.T) {
	msg := Message{
		SourceHostname: "node01",
		Metric: schema.Metric{
			Name:       "cpu_user",
			Type:       schema.ValueTypeFloat,
			FloatValue: 12.5,
			Units:      "%",
		},
	}

	encoded, err := Encode(msg, schema.ProtocolSpoken)
	require.NoError(t, err)

	decoded, err := Decode(encoded, schema.ProtocolSpoken)
	require.NoError(t, err)
	require.Equal(t, msg.SourceHostname, decoded.SourceHostname)
	require.Equal(t, msg.Metric.Name, decoded.Metric.Name)
	require.True(t, msg.Metric.SameValue(decoded.Metric))
}

func TestTextDecodeRejectsShortLine(t *testing.T) {
	_, err := Decode([]byte("node01 cpu_user"), schema.ProtocolSpoken)
	require.Error(t, err)
}
