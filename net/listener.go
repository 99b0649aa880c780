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
	"strings"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/sourcenetwork/immutable"

	"github.com/keplernet/orbitd/errors"
)

// ListenOn starts listening on addr and returns its ListenerId plus a
// stream of NewListenAddr events scoped to that listener, terminating with
// ListenerClosed when the returned cancel func is called or the behaviour
// closes (spec.md §3, §4.4, and testable property 4 in spec.md §8).
// ExpiredListenAddr events are not emitted, and cancel ends only the
// stream: the host keeps listening on addr.
func (b *Behaviour) ListenOn(addr ma.Multiaddr) (ListenerId, <-chan SwarmEvent, func(), error) {
	if err := b.host.Network().Listen(addr); err != nil {
		return 0, nil, nil, errors.Wrap("failed to listen", err)
	}

	b.mu.Lock()
	b.nextListener++
	id := ListenerId(b.nextListener)
	scoped, cancelSub := b.events.subscribe(16)
	closeCh := make(chan struct{})
	b.listeners[id] = &listenerState{target: addr, cancel: func() { close(closeCh) }}
	b.mu.Unlock()

	out := make(chan SwarmEvent, 16)
	go func() {
		defer close(out)
		defer cancelSub()
		for {
			select {
			case evt, ok := <-scoped:
				if !ok {
					return
				}
				if evt.ListenerID != id && evt.Kind != EventListenerClosed {
					continue
				}
				out <- evt
				if evt.Kind == EventListenerClosed {
					return
				}
			case <-closeCh:
				out <- SwarmEvent{Kind: EventListenerClosed, ListenerID: id}
				return
			case <-b.closeCh:
				out <- SwarmEvent{Kind: EventListenerClosed, ListenerID: id}
				return
			}
		}
	}()

	// announceListenAddrs appends the local identity to each freshly
	// reported listen address before handing it to callers, so the address
	// is immediately dial-able (spec.md §4.1).
	go b.announceListenAddrs(id, addr)

	cancel := func() {
		b.mu.Lock()
		st, ok := b.listeners[id]
		delete(b.listeners, id)
		b.mu.Unlock()
		if ok {
			st.cancel()
		}
	}
	return id, out, cancel, nil
}

// announceListenAddrs waits briefly for the host to report the concrete
// addresses it bound for target, then publishes a NewListenAddr event for
// each, with the local peer suffix attached.
func (b *Behaviour) announceListenAddrs(id ListenerId, target ma.Multiaddr) {
	deadline := time.Now().Add(2 * time.Second)
	seen := map[string]bool{}
	for time.Now().Before(deadline) {
		for _, a := range b.host.Addrs() {
			if seen[a.String()] {
				continue
			}
			if !addrMatchesTarget(a, target) {
				continue
			}
			seen[a.String()] = true
			full := withPeerSuffix(a, b.identity.ID)
			b.events.publish(SwarmEvent{Kind: EventNewListenAddr, Address: immutable.Some(full), ListenerID: id})
		}
		if len(seen) > 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// addrMatchesTarget reports whether the bound address a was produced by
// listening on target (e.g. target's port 0 resolved to a's concrete port).
func addrMatchesTarget(a, target ma.Multiaddr) bool {
	ta := target.String()
	aa := a.String()
	if strings.HasSuffix(ta, "/tcp/0") {
		prefix := strings.TrimSuffix(ta, "/tcp/0")
		return strings.HasPrefix(aa, prefix)
	}
	return ta == aa
}
