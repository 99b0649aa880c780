// Copyright 2023 Kepler Network Contributors
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package orbit

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/keplernet/orbitd/errors"
)

// Metadata is the JSON document spec.md §6 names as "metadata — JSON
// document consumed by the orbit layer (schema defined there, not here)".
// This is that schema, grounded on original_source/src/orbit.rs's
// OrbitMetadata: everything authorization-shaped (Controllers,
// ReadDelegators, WriteDelegators, Revocations, AuthType) is carried as
// opaque data for the authorization collaborator (spec.md §1's "Out of
// scope") to interpret; only Hosts is consumed by this package, to seed the
// networking service's initial peer set.
type Metadata struct {
	ID              string              `json:"id"`
	Controllers     []string            `json:"controllers"`
	ReadDelegators  []string            `json:"read_delegators"`
	WriteDelegators []string            `json:"write_delegators"`
	Hosts           map[string][]string `json:"hosts"`
	Revocations     []string            `json:"revocations"`
	AuthType        string              `json:"auth"`
}

const metadataFileName = "metadata"

func loadMetadata(dir string) (*Metadata, error) {
	raw, err := os.ReadFile(filepath.Join(dir, metadataFileName))
	if err != nil {
		return nil, errors.Wrap("failed to read orbit metadata", err)
	}
	var md Metadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return nil, errors.Wrap("failed to decode orbit metadata", err)
	}
	return &md, nil
}

func (md *Metadata) write(dir string) error {
	raw, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return errors.Wrap("failed to encode orbit metadata", err)
	}
	if err := os.WriteFile(filepath.Join(dir, metadataFileName), raw, 0o644); err != nil {
		return errors.Wrap("failed to write orbit metadata", err)
	}
	return nil
}
