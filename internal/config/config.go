// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gmond-agent.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads the agent's configuration document: read the
// file, validate it against the embedded JSON Schema, then decode it
// with DisallowUnknownFields so a typo in the config file fails loudly
// instead of being silently ignored.
package config

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/ClusterCockpit/gmond-agent/pkg/schema"
)

// Defaults is returned rather than held as mutable global state:
// CoreContext is built once from whatever Load returns, and nothing
// downstream reaches back into this package afterwards.
var Defaults = schema.Config{
	StaleHostThreshold: 180,
}

// Load reads path, validates it against the configuration JSON Schema,
// and decodes it over a copy of Defaults. A missing file is not an
// error: the agent starts with Defaults alone, matching gmond's own
// behavior of running with sane built-in defaults absent a config file.
func Load(path string) (schema.Config, error) {
	cfg := Defaults

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return schema.Config{}, err
	}

	if err := schema.ValidateConfig(bytes.NewReader(raw)); err != nil {
		return schema.Config{}, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return schema.Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return schema.Config{}, err
	}
	return cfg, nil
}
