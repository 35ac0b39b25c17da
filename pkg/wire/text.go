// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gmond-agent.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package wire

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ClusterCockpit/gmond-agent/pkg/schema"
)

// The text framing is one whitespace-delimited line per datagram:
//
//	<hostname> <metric-name> <type> <value> [units]
//
// where <type> is one of "i" (int), "u" (uint), "f" (float), "s" (string).

func decodeText(b []byte) (Message, error) {
	line := strings.TrimSpace(string(b))
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return Message{}, &schema.DecodeError{Reason: "text frame: expected at least 4 fields"}
	}

	hostname, name, typeTag, rawValue := fields[0], fields[1], fields[2], fields[3]
	units := ""
	if len(fields) >= 5 {
		units = fields[4]
	}

	metric := schema.Metric{Name: name, Units: units, LastUpdate: time.Now()}
	switch typeTag {
	case "i":
		v, err := strconv.ParseInt(rawValue, 10, 64)
		if err != nil {
			return Message{}, &schema.DecodeError{Reason: "text frame: invalid int value"}
		}
		metric.Type = schema.ValueTypeInt
		metric.IntValue = v
	case "u":
		v, err := strconv.ParseUint(rawValue, 10, 64)
		if err != nil {
			return Message{}, &schema.DecodeError{Reason: "text frame: invalid uint value"}
		}
		metric.Type = schema.ValueTypeUint
		metric.UintValue = v
	case "f":
		v, err := strconv.ParseFloat(rawValue, 64)
		if err != nil {
			return Message{}, &schema.DecodeError{Reason: "text frame: invalid float value"}
		}
		metric.Type = schema.ValueTypeFloat
		metric.FloatValue = v
	case "s":
		metric.Type = schema.ValueTypeString
		metric.StringValue = rawValue
	default:
		return Message{}, &schema.DecodeError{Reason: "text frame: unknown type tag " + typeTag}
	}

	return Message{
		Index:          CurrentIndex,
		SourceHostname: hostname,
		Metric:         metric,
	}, nil
}

func encodeText(msg Message) ([]byte, error) {
	var typeTag, rawValue string
	switch msg.Metric.Type {
	case schema.ValueTypeInt:
		typeTag = "i"
		rawValue = strconv.FormatInt(msg.Metric.IntValue, 10)
	case schema.ValueTypeUint:
		typeTag = "u"
		rawValue = strconv.FormatUint(msg.Metric.UintValue, 10)
	case schema.ValueTypeFloat:
		typeTag = "f"
		rawValue = strconv.FormatFloat(msg.Metric.FloatValue, 'g', -1, 64)
	case schema.ValueTypeString:
		if strings.ContainsAny(msg.Metric.StringValue, " \t\n") {
			return nil, &schema.DecodeError{Reason: "text frame: string value contains whitespace"}
		}
		typeTag = "s"
		rawValue = msg.Metric.StringValue
	default:
		return nil, &schema.DecodeError{Reason: "text frame: unknown metric value type"}
	}

	line := fmt.Sprintf("%s %s %s %s %s\n", msg.SourceHostname, msg.Metric.Name, typeTag, rawValue, msg.Metric.Units)
	return []byte(line), nil
}
