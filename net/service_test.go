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
	"context"
	"testing"
	"time"

	ds "github.com/ipfs/go-datastore"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, ctx context.Context) *NetworkService {
	t.Helper()
	addr, err := ma.NewMultiaddr("/ip4/127.0.0.1/tcp/0")
	require.NoError(t, err)

	svc, err := New(ctx, Config{
		RootDir:     t.TempDir(),
		ListenAddrs: []ma.Multiaddr{addr},
		NodeName:    t.Name(),
		Blockstore:  blockstore.NewBlockstore(ds.NewMapDatastore()),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

// TestTwoNodesConnect covers scenario S1: node B dials node A's advertised
// address, and both sides observe the connection within one drive cycle.
func TestTwoNodesConnect(t *testing.T) {
	ctx := context.Background()
	a := newTestService(t, ctx)
	b := newTestService(t, ctx)

	require.NotEmpty(t, a.Listeners())
	aAddr := a.Listeners()[0]
	aInfo := &peer.AddrInfo{ID: a.LocalPeerID(), Addrs: []ma.Multiaddr{aAddr}}
	for _, addr := range aInfo.Addrs {
		b.AddAddress(aInfo.ID, addr, AddressSourceUser)
	}

	require.NoError(t, b.Dial(ctx, a.LocalPeerID()))

	require.True(t, waitFor(t, 5*time.Second, func() bool {
		return b.IsConnected(a.LocalPeerID())
	}))

	conns := a.Connections()
	require.Len(t, conns, 1)
	require.Equal(t, b.LocalPeerID(), conns[0].Peer)
}

// TestBootstrapEmptyPeers covers scenario S2: bootstrap with an empty peer
// list resolves to Ok(()).
func TestBootstrapEmptyPeers(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, ctx)

	q := svc.Bootstrap(ctx)
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := q.Wait(waitCtx)
	require.NoError(t, err)
}

// TestGetDroppedBeforeResolutionClearsQueryMap covers scenario S3: a Get
// query dropped before resolution leaves the behaviour's in-flight query
// map empty.
func TestGetDroppedBeforeResolutionClearsQueryMap(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, ctx)

	root, err := CidForBlock([]byte("S3"), 0x55)
	require.NoError(t, err)

	q := svc.Get(ctx, root, nil)
	q.Close()

	require.True(t, waitFor(t, time.Second, func() bool {
		svc.b.mu.Lock()
		defer svc.b.mu.Unlock()
		return len(svc.b.queries) == 0
	}))
}

// TestAddExternalAddressNormalisesSuffix covers scenario S6:
// add_external_address on an address without a peer suffix results in
// external_addresses() containing one whose terminal component is the
// local peer identity.
func TestAddExternalAddressNormalisesSuffix(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, ctx)

	addr, err := ma.NewMultiaddr("/ip4/203.0.113.1/tcp/4001")
	require.NoError(t, err)
	svc.AddExternalAddress(addr)

	found := false
	for _, a := range svc.ExternalAddresses() {
		id, _, ok := hasPeerSuffix(a)
		if ok && id == svc.LocalPeerID() {
			found = true
		}
	}
	require.True(t, found)
}

// TestSubscriptionRoundTrip covers testable property 6 from §8's testable
// properties list: two mutually subscribed peers exchange a publish within
// the driver's next wake cycle.
func TestSubscriptionRoundTrip(t *testing.T) {
	ctx := context.Background()
	a := newTestService(t, ctx)
	b := newTestService(t, ctx)

	aAddr := a.Listeners()[0]
	b.AddAddress(a.LocalPeerID(), aAddr, AddressSourceUser)
	require.NoError(t, b.Dial(ctx, a.LocalPeerID()))
	require.True(t, waitFor(t, 5*time.Second, func() bool {
		return b.IsConnected(a.LocalPeerID())
	}))

	const topic = "x"
	aCh, aCancel, err := a.Subscribe(topic)
	require.NoError(t, err)
	defer aCancel()
	bCh, bCancel, err := b.Subscribe(topic)
	require.NoError(t, err)
	defer bCancel()

	require.True(t, waitFor(t, 5*time.Second, func() bool {
		select {
		case evt := <-aCh:
			return evt.Kind == GossipSubscribed
		default:
			return false
		}
	}))
	require.True(t, waitFor(t, 5*time.Second, func() bool {
		select {
		case evt := <-bCh:
			return evt.Kind == GossipSubscribed
		default:
			return false
		}
	}))

	require.True(t, waitFor(t, 10*time.Second, func() bool {
		return a.Publish(ctx, topic, []byte("hello")) == nil
	}))

	select {
	case evt := <-bCh:
		require.Equal(t, GossipMessage, evt.Kind)
		require.Equal(t, []byte("hello"), evt.Data)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for gossip message")
	}
}
