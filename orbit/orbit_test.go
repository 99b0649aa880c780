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
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	badgerds "github.com/keplernet/orbitd/datastore/badger"
)

func TestCreateOrbitThenLoad(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	o, err := CreateOrbit(ctx, root, "orbit1", CreateOptions{
		Controllers: []string{"did:pkh:tz:tz1abc"},
		AuthType:    "TEZOS",
	})
	require.NoError(t, err)
	require.NotNil(t, o)
	require.Equal(t, "orbit1", o.ID())
	require.NotEmpty(t, o.Service().LocalPeerID().String())
	require.Equal(t, []string{"did:pkh:tz:tz1abc"}, o.Admins())
	require.NoError(t, o.Close())

	loaded, err := LoadOrbit(ctx, root, "orbit1", badgerds.Options{})
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, "orbit1", loaded.ID())
	require.NoError(t, loaded.Close())
}

// TestCreateOrbitTwiceReturnsNil mirrors original_source/src/orbit.rs's
// "Using Option to distinguish when the orbit already exists from a hard
// error": a second CreateOrbit call for the same id is a no-op, not a
// failure.
func TestCreateOrbitTwiceReturnsNil(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	first, err := CreateOrbit(ctx, root, "orbit2", CreateOptions{})
	require.NoError(t, err)
	require.NotNil(t, first)
	require.NoError(t, first.Close())

	second, err := CreateOrbit(ctx, root, "orbit2", CreateOptions{})
	require.NoError(t, err)
	require.Nil(t, second)
}

func TestLoadOrbitMissingReturnsNil(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	o, err := LoadOrbit(ctx, root, "does-not-exist", badgerds.Options{})
	require.NoError(t, err)
	require.Nil(t, o)
}

func TestURI(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	o, err := CreateOrbit(ctx, root, "orbit3", CreateOptions{})
	require.NoError(t, err)
	require.NotNil(t, o)
	defer o.Close()

	require.Equal(t, "kepler://orbit3/abc123", o.URI("abc123"))
}
