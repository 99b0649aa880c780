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
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

// AddressSource tags how an address for a peer was learned. Newer sources
// win over older ones on conflict, except User addresses which are never
// displaced by a discovered source (spec.md §4.2, "Tie-breaks and ordering").
type AddressSource int

const (
	// AddressSourceUser was supplied directly by an operator via add_address.
	AddressSourceUser AddressSource = iota
	// AddressSourceMdns was learned from local network discovery.
	AddressSourceMdns
	// AddressSourceKad was learned from a Kademlia routing table response.
	AddressSourceKad
	// AddressSourceListen is one of our own listen addresses.
	AddressSourceListen
	// AddressSourceDial was observed on an outbound dial attempt.
	AddressSourceDial
)

func (s AddressSource) String() string {
	switch s {
	case AddressSourceUser:
		return "User"
	case AddressSourceMdns:
		return "Mdns"
	case AddressSourceKad:
		return "Kad"
	case AddressSourceListen:
		return "Listen"
	case AddressSourceDial:
		return "Dial"
	default:
		return "Unknown"
	}
}

// taggedAddr pairs an address with the source that produced it.
type taggedAddr struct {
	addr   ma.Multiaddr
	source AddressSource
}

// hasPeerSuffix reports whether addr's terminal component is a /p2p/<id>
// suffix, and if so returns the encoded peer id and the address without
// that suffix.
func hasPeerSuffix(addr ma.Multiaddr) (peer.ID, ma.Multiaddr, bool) {
	var last ma.Component
	var found bool
	ma.ForEach(addr, func(c ma.Component) bool {
		last = c
		found = true
		return true
	})
	if !found || last.Protocol().Code != ma.P_P2P {
		return "", addr, false
	}
	id, err := peer.Decode(last.Value())
	if err != nil {
		return "", addr, false
	}
	stripped, err := ma.SplitLast(addr)
	if err != nil {
		return "", addr, false
	}
	return id, stripped, true
}

// stripPeerSuffix removes a trailing /p2p/<id> component, if present,
// returning the address unchanged otherwise (spec.md §4.1, "Peer-suffix
// adapter"). Behaviour.Dial does not call it: dial addresses are handed to
// the host as they are stored in its peerstore.
func stripPeerSuffix(addr ma.Multiaddr) ma.Multiaddr {
	_, stripped, ok := hasPeerSuffix(addr)
	if !ok {
		return addr
	}
	return stripped
}

// withPeerSuffix appends a /p2p/<id> component to addr if it does not
// already carry one.
func withPeerSuffix(addr ma.Multiaddr, id peer.ID) ma.Multiaddr {
	if _, _, ok := hasPeerSuffix(addr); ok {
		return addr
	}
	suffix, err := ma.NewComponent("p2p", id.String())
	if err != nil {
		return addr
	}
	return addr.Encapsulate(suffix)
}

// normalizeAddr normalises addr against the local identity: a terminal
// peer-suffix component is verified to equal local, or appended if absent.
// This is the operation spec.md §3 requires before an address is stored by
// add_external_address.
func normalizeAddr(addr ma.Multiaddr, local peer.ID) ma.Multiaddr {
	if id, stripped, ok := hasPeerSuffix(addr); ok {
		if id == local {
			return addr
		}
		return withPeerSuffix(stripped, local)
	}
	return withPeerSuffix(addr, local)
}
