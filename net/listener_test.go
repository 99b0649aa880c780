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

	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/require"
)

// TestListenOnEmitsNewListenAddrThenClosed covers spec.md §8's testable
// property 4: a fresh ListenOn call emits a NewListenAddr event carrying the
// local peer suffix, and closing the listener emits exactly one terminal
// ListenerClosed event.
func TestListenOnEmitsNewListenAddrThenClosed(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, ctx)

	addr, err := ma.NewMultiaddr("/ip4/127.0.0.1/tcp/0")
	require.NoError(t, err)

	id, events, cancel, err := svc.ListenOn(addr)
	require.NoError(t, err)
	require.NotZero(t, id)

	var gotNewAddr bool
	timeout := time.After(5 * time.Second)
waitNewAddr:
	for {
		select {
		case evt := <-events:
			if evt.Kind == EventNewListenAddr {
				gotNewAddr = true
				require.True(t, evt.Address.HasValue())
				peerID, _, ok := hasPeerSuffix(evt.Address.Value())
				require.True(t, ok)
				require.Equal(t, svc.LocalPeerID(), peerID)
				break waitNewAddr
			}
		case <-timeout:
			t.Fatal("timed out waiting for NewListenAddr event")
		}
	}
	require.True(t, gotNewAddr)

	cancel()

	select {
	case evt := <-events:
		require.Equal(t, EventListenerClosed, evt.Kind)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for ListenerClosed event")
	}
}
