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
	"sync"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"

	"github.com/keplernet/orbitd/errors"
)

// pubsubBehaviour wraps the gossip pubsub sub-protocol (spec.md §4.2):
// topic subscribe/unsubscribe, best-effort publish, and flood broadcast.
type pubsubBehaviour struct {
	gs *pubsub.PubSub

	mu     sync.Mutex
	topics map[string]*topicState
}

type topicState struct {
	topic *pubsub.Topic
	sub   *pubsub.Subscription
	fanout *eventBroadcaster[GossipEvent]
}

func newPubsubBehaviour(ctx context.Context, h host.Host) (*pubsubBehaviour, error) {
	gs, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		return nil, err
	}
	return &pubsubBehaviour{gs: gs, topics: make(map[string]*topicState)}, nil
}

func (p *pubsubBehaviour) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.topics {
		t.sub.Cancel()
		t.fanout.closeAll()
		_ = t.topic.Close()
	}
}

func (p *pubsubBehaviour) ensureTopic(name string) (*topicState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.topics[name]; ok {
		return t, nil
	}
	topic, err := p.gs.Join(name)
	if err != nil {
		return nil, errors.Wrap("failed to join topic", err)
	}
	sub, err := topic.Subscribe()
	if err != nil {
		_ = topic.Close()
		return nil, errors.Wrap("failed to subscribe to topic", err)
	}
	st := &topicState{topic: topic, sub: sub, fanout: newEventBroadcaster[GossipEvent]()}
	p.topics[name] = st
	go st.pump()
	return st, nil
}

// pump reads inbound messages from the libp2p subscription and republishes
// them as GossipEvents to every local subscriber of this topic.
func (t *topicState) pump() {
	ctx := context.Background()
	for {
		msg, err := t.sub.Next(ctx)
		if err != nil {
			return
		}
		t.fanout.publish(GossipEvent{Kind: GossipMessage, From: msg.GetFrom(), Data: msg.GetData()})
	}
}

// Subscribe joins topic (if not already joined) and returns a stream of
// inbound messages and membership notifications, per spec.md §4.2 and §4.4.
func (b *Behaviour) Subscribe(topic string) (<-chan GossipEvent, func(), error) {
	t, err := b.ps.ensureTopic(topic)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := t.fanout.subscribe(64)
	t.fanout.publish(GossipEvent{Kind: GossipSubscribed})
	return ch, cancel, nil
}

// Publish best-effort fans msg out to the topic's mesh peers. Returns
// ErrInsufficientPeers if the local node has no mesh peers for topic,
// resolving the Open Question in spec.md §9 in favour of erroring.
func (b *Behaviour) Publish(ctx context.Context, topic string, msg []byte) error {
	t, err := b.ps.ensureTopic(topic)
	if err != nil {
		return err
	}
	if len(t.topic.ListPeers()) == 0 {
		return errors.ErrInsufficientPeers
	}
	if err := t.topic.Publish(ctx, msg); err != nil {
		return errors.Wrap("publish failed", err)
	}
	return nil
}

// Broadcast floods msg to every known peer in the topic, bypassing the
// gossip mesh (spec.md §4.2). Used for urgent, low-frequency announcements
// where gossip's partial-mesh fanout is too slow.
func (b *Behaviour) Broadcast(ctx context.Context, topic string, msg []byte) error {
	t, err := b.ps.ensureTopic(topic)
	if err != nil {
		return err
	}
	peers := b.host.Peerstore().PeersWithAddrs()
	var lastErr error
	sent := 0
	for _, p := range peers {
		if p == b.identity.ID {
			continue
		}
		if err := t.topic.Publish(ctx, msg, pubsub.WithReadiness(pubsub.MinTopicSize(0))); err != nil {
			lastErr = err
			continue
		}
		sent++
	}
	if sent == 0 && len(peers) > 0 {
		return errors.Wrap("broadcast failed", lastErr)
	}
	return nil
}
