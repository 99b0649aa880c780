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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetadataWriteLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	md := &Metadata{
		ID:          "orbit-meta",
		Controllers: []string{"did:pkh:tz:tz1abc"},
		Hosts:       map[string][]string{"12D3KooW...": {"/ip4/1.2.3.4/tcp/4001"}},
		AuthType:    "TEZOS",
	}
	require.NoError(t, md.write(dir))

	loaded, err := loadMetadata(dir)
	require.NoError(t, err)
	require.Equal(t, md.ID, loaded.ID)
	require.Equal(t, md.Controllers, loaded.Controllers)
	require.Equal(t, md.Hosts, loaded.Hosts)
	require.Equal(t, md.AuthType, loaded.AuthType)
}

func TestLoadMetadataMissingErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := loadMetadata(dir)
	require.Error(t, err)
}
