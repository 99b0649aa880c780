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
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

// PeerInfo is the behaviour's view of a remote peer: observed addresses
// (each tagged with the source that produced it), and the last time it was
// seen alive. Mutated solely inside the behaviour, per spec.md §3.
type PeerInfo struct {
	ID            peer.ID
	Addresses     []taggedAddr
	LastSeen      time.Time
	Banned        bool
}

// Addrs returns the peer's known addresses, de-duplicated, discarding the
// source tag.
func (p *PeerInfo) Addrs() []ma.Multiaddr {
	out := make([]ma.Multiaddr, 0, len(p.Addresses))
	for _, a := range p.Addresses {
		out = append(out, a.addr)
	}
	return out
}

// mergeAddr adds addr under source, de-duplicating by address string.
// User-sourced addresses are never displaced by a later discovered source;
// any other newer source overwrites the recorded tag for the same address,
// per spec.md §4.2's address tie-break rule.
func (p *PeerInfo) mergeAddr(addr ma.Multiaddr, source AddressSource) {
	key := addr.String()
	for i, existing := range p.Addresses {
		if existing.addr.String() == key {
			if existing.source == AddressSourceUser {
				return
			}
			p.Addresses[i].source = source
			return
		}
	}
	p.Addresses = append(p.Addresses, taggedAddr{addr: addr, source: source})
}

// removeAddr drops addr from the peer's known address set.
func (p *PeerInfo) removeAddr(addr ma.Multiaddr) {
	key := addr.String()
	filtered := p.Addresses[:0]
	for _, existing := range p.Addresses {
		if existing.addr.String() != key {
			filtered = append(filtered, existing)
		}
	}
	p.Addresses = filtered
}

// Connection is a (peer, address) pair currently carrying at least one
// substream, per spec.md §3.
type Connection struct {
	Peer    peer.ID
	Address ma.Multiaddr
}
