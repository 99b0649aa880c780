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

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	mplex "github.com/libp2p/go-libp2p/p2p/muxer/mplex"
	yamux "github.com/libp2p/go-libp2p/p2p/muxer/yamux"
	relayv2 "github.com/libp2p/go-libp2p/p2p/protocol/circuitv2/relay"
	noise "github.com/libp2p/go-libp2p/p2p/security/noise"
	tcp "github.com/libp2p/go-libp2p/p2p/transport/tcp"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/keplernet/orbitd/errors"
)

// connectTimeout is the connect-attempt timeout applied to outbound dials,
// per spec.md §4.1 ("connect-attempt timeout of 5 seconds"). DNS resolution
// of multiaddrs happens transparently inside go-libp2p's swarm dialer, so
// there is no separate DNS-wrapping layer to assemble here the way the
// rust original does with its explicit Dns::system wrapper.
const connectTimeout = 5 * time.Second

// transportConfig carries the assembly knobs the swarm needs, grounded on
// spec.md §4.1's composition order: TCP w/ nodelay+port-reuse, relay
// circuit, noise authentication, yamux-preferred/mplex-fallback muxing.
type transportConfig struct {
	identity    *PeerIdentity
	listenAddrs []ma.Multiaddr
	relayAddr   ma.Multiaddr
}

// newHost assembles the libp2p host implementing the transport stack
// described in spec.md §4.1. Construction failures here are fatal per
// spec.md §7 ("Construction errors ... surface as fatal errors and abort
// node start").
func newHost(cfg transportConfig) (host.Host, error) {
	opts := []libp2p.Option{
		libp2p.Identity(cfg.identity.PrivateKey),
		libp2p.ListenAddrs(cfg.listenAddrs...),
		libp2p.Transport(tcp.NewTCPTransport),
		libp2p.Security(noise.ID, noise.New),
		libp2p.Muxer(yamux.ID, yamux.New),
		libp2p.Muxer(mplex.ID, mplex.New),
		libp2p.EnableRelay(),
		libp2p.EnableRelayService(relayv2.WithLimit(nil)),
		libp2p.EnableNATService(),
		libp2p.EnableHolePunching(),
	}
	if cfg.relayAddr != nil {
		info, err := peer.AddrInfoFromP2pAddr(cfg.relayAddr)
		if err != nil {
			return nil, errors.Wrap("failed to parse relay address", err)
		}
		opts = append(opts, libp2p.EnableAutoRelayWithStaticRelays([]peer.AddrInfo{*info}))
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, errors.Wrap("failed to construct transport", err)
	}
	return h, nil
}
