// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gmond-agent.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

import (
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"

	"github.com/ClusterCockpit/gmond-agent/log"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*
var schemaFiles embed.FS

// loadEmbedded resolves the embedFS:// scheme jsonschema.Compile uses to
// reach the document bundled into the binary.
func loadEmbedded(s string) (io.ReadCloser, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	return schemaFiles.Open(u.Path)
}

func init() {
	jsonschema.Loaders["embedFS"] = loadEmbedded
}

// ValidateConfig checks r against the configuration document schema
// before it is decoded into a Config: validate, then decode.
func ValidateConfig(r io.Reader) error {
	s, err := jsonschema.Compile("embedFS://schemas/config.schema.json")
	if err != nil {
		return err
	}

	var v interface{}
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		log.Errorf("schema.ValidateConfig() - failed to decode: %s", err)
		return err
	}

	if err := s.Validate(v); err != nil {
		return fmt.Errorf("config document failed schema validation: %w", err)
	}
	return nil
}
