// Copyright 2023 Kepler Network Contributors
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package net

import (
	"testing"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/require"
)

func newTestPeerID(t *testing.T) peer.ID {
	t.Helper()
	id, err := loadOrCreateIdentity(t.TempDir())
	require.NoError(t, err)
	return id.ID
}

// TestNormalizeAddrAppendsSuffix covers spec.md §8.6: add_external_address on
// an address without a peer suffix results in one whose terminal component
// is the local peer identity.
func TestNormalizeAddrAppendsSuffix(t *testing.T) {
	local := newTestPeerID(t)
	addr, err := ma.NewMultiaddr("/ip4/127.0.0.1/tcp/4001")
	require.NoError(t, err)

	got := normalizeAddr(addr, local)

	id, stripped, ok := hasPeerSuffix(got)
	require.True(t, ok)
	require.Equal(t, local, id)
	require.True(t, stripped.Equal(addr))
}

// TestNormalizeAddrVerifiesExistingSuffix covers the "strip or verify" half
// of spec.md §3's Address invariant: a suffix matching local is left as-is.
func TestNormalizeAddrVerifiesExistingSuffix(t *testing.T) {
	local := newTestPeerID(t)
	base, err := ma.NewMultiaddr("/ip4/127.0.0.1/tcp/4001")
	require.NoError(t, err)
	withSuffix := withPeerSuffix(base, local)

	got := normalizeAddr(withSuffix, local)
	require.True(t, got.Equal(withSuffix))
}

// TestNormalizeAddrReplacesForeignSuffix covers the case where the terminal
// component names a different peer than local: it must be replaced, not
// trusted, since normalizeAddr "verifies" rather than accepts blindly.
func TestNormalizeAddrReplacesForeignSuffix(t *testing.T) {
	local := newTestPeerID(t)
	foreign := newTestPeerID(t)
	base, err := ma.NewMultiaddr("/ip4/127.0.0.1/tcp/4001")
	require.NoError(t, err)
	withForeignSuffix := withPeerSuffix(base, foreign)

	got := normalizeAddr(withForeignSuffix, local)

	id, stripped, ok := hasPeerSuffix(got)
	require.True(t, ok)
	require.Equal(t, local, id)
	require.True(t, stripped.Equal(base))
}

// TestStripPeerSuffixRoundTrip covers the dial adapter's strip-before-dial
// half of spec.md §4.1's "Peer-suffix adapter".
func TestStripPeerSuffixRoundTrip(t *testing.T) {
	local := newTestPeerID(t)
	base, err := ma.NewMultiaddr("/ip4/127.0.0.1/tcp/4001")
	require.NoError(t, err)
	withSuffix := withPeerSuffix(base, local)

	require.True(t, stripPeerSuffix(withSuffix).Equal(base))
	require.True(t, stripPeerSuffix(base).Equal(base))
}
