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
	ma "github.com/multiformats/go-multiaddr"
)

// relay sub-protocol: a listening relay already accepts inbound
// circuit-v2 dials via libp2p.EnableRelayService, configured in
// newHost (transport.go). This file surfaces that address to callers,
// per spec.md §4.2's relay sub-protocol entry ("accept inbound dials
// relayed through a third party").

// RelayReservations returns the multiaddrs, if any, this node currently
// holds a circuit-v2 reservation on, each already carrying the relay's own
// /p2p/<id>/p2p-circuit suffix so the result is directly dial-able.
func (b *Behaviour) RelayReservations() []ma.Multiaddr {
	var out []ma.Multiaddr
	for _, a := range b.host.Addrs() {
		if isRelayCircuitAddr(a) {
			out = append(out, a)
		}
	}
	return out
}

// isRelayCircuitAddr reports whether addr ends in a p2p-circuit component,
// i.e. it routes through a relay rather than dialling this node directly.
func isRelayCircuitAddr(addr ma.Multiaddr) bool {
	found := false
	ma.ForEach(addr, func(c ma.Component) bool {
		if c.Protocol().Code == ma.P_CIRCUIT {
			found = true
			return false
		}
		return true
	})
	return found
}
