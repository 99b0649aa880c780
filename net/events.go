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
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/sourcenetwork/immutable"
)

// ListenerId is an opaque identifier returned on listen_on; stable until
// the listener is closed (spec.md §3).
type ListenerId uint64

// EventKind discriminates the variants carried by SwarmEvent.
type EventKind int

const (
	EventDiscovered EventKind = iota
	EventNewListenAddr
	EventExpiredListenAddr
	EventListenerClosed
	EventPeerConnected
	EventPeerDisconnected
)

// SwarmEvent is a single membership/listener notification, per spec.md §6
// ("Outbound interfaces to collaborators"): Discovered, NewListenAddr,
// ExpiredListenAddr, ListenerClosed, PeerConnected, PeerDisconnected.
// Address is absent for a Discovered event carrying only a peer id (e.g. a
// bare mDNS announcement with no dialable address yet), mirroring the
// teacher's immutable.Option use for optional request/event fields.
type SwarmEvent struct {
	Kind       EventKind
	Peer       peer.ID
	Address    immutable.Option[ma.Multiaddr]
	ListenerID ListenerId
}

// GossipEventKind discriminates the variants carried by GossipEvent.
type GossipEventKind int

const (
	GossipSubscribed GossipEventKind = iota
	GossipUnsubscribed
	GossipMessage
)

// GossipEvent is delivered on a Subscription's stream: topic membership
// changes and inbound messages, per spec.md §6.
type GossipEvent struct {
	Kind GossipEventKind
	From peer.ID
	Data []byte
}

// eventBroadcaster fans a single stream of events out to many subscriber
// channels. Unlike a libp2p event.Bus subscription (single consumer per
// subscription object), callers of swarm_events / subscribe each want their
// own independent stream, so the behaviour keeps a small registry here
// instead of re-subscribing to the host's bus per caller.
type eventBroadcaster[T any] struct {
	mu   sync.Mutex
	subs map[uint64]chan T
	next uint64
}

func newEventBroadcaster[T any]() *eventBroadcaster[T] {
	return &eventBroadcaster[T]{subs: make(map[uint64]chan T)}
}

// subscribe returns a buffered channel that receives every event published
// after this call, and a cancel func that unregisters it. The channel is
// closed by cancel, which is idempotent.
func (b *eventBroadcaster[T]) subscribe(buf int) (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan T, buf)
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if existing, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(existing)
			}
		})
	}
	return ch, cancel
}

// publish delivers evt to every live subscriber, dropping it for any
// subscriber whose buffer is full rather than blocking the publisher.
func (b *eventBroadcaster[T]) publish(evt T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// closeAll tears down every live subscription, e.g. on service shutdown.
func (b *eventBroadcaster[T]) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
