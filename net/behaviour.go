// Copyright 2023 Kepler Network Contributors
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

// Package net implements the peer-to-peer networking service: a single
// Behaviour state machine aggregating peer routing, block exchange,
// pubsub, collaborative streams and relay, driven by one host and exposed
// through the NetworkService façade (service.go) and its query handles
// (queryhandles.go).
package net

import (
	"context"
	"sync"
	"time"

	blockstore "github.com/ipfs/go-ipfs-blockstore"
	exchange "github.com/ipfs/go-ipfs-exchange-interface"
	ipld "github.com/ipfs/go-ipld-format"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/sourcenetwork/immutable"
	"google.golang.org/grpc"

	"github.com/keplernet/orbitd/errors"
	"github.com/keplernet/orbitd/logging"
)

var log = logging.MustNewLogger("net")

// Behaviour is the aggregate peer-to-peer state machine described in
// spec.md §4.2: it owns the host, the DHT, pubsub, the block-exchange
// client and the collaborative-stream store, plus every outstanding
// query's bookkeeping. All exported methods below are safe for concurrent
// use; callers never need their own lock.
type Behaviour struct {
	host     host.Host
	identity *PeerIdentity
	nodeName string

	dht *dhtBehaviour
	ps  *pubsubBehaviour

	exch   exchange.Interface
	bstore blockstore.Blockstore
	dag    ipld.DAGService

	streams *streamStore
	rpc     *rpcServer
	grpcSrv *grpc.Server

	mu           sync.Mutex
	peers        map[peer.ID]*PeerInfo
	banned       map[peer.ID]struct{}
	queries      map[QueryId]*outstandingQuery
	listeners    map[ListenerId]*listenerState
	nextListener uint64
	externalAddr []taggedExternalAddr

	events *eventBroadcaster[SwarmEvent]

	closeOnce sync.Once
	closeCh   chan struct{}
}

// taggedExternalAddr is an address this node has advertised as reachable,
// with an Infinite score so it is never evicted (spec.md §6).
type taggedExternalAddr struct {
	addr ma.Multiaddr
}

type listenerState struct {
	target ma.Multiaddr
	cancel func()
}

// newBehaviour wires together every sub-protocol. Construction failures
// here are fatal to node start (spec.md §7).
func newBehaviour(h host.Host, identity *PeerIdentity, nodeName string, exch exchange.Interface, bstore blockstore.Blockstore, dag ipld.DAGService) (*Behaviour, error) {
	b := &Behaviour{
		host:     h,
		identity: identity,
		nodeName: nodeName,
		exch:     exch,
		bstore:   bstore,
		dag:      dag,
		streams:  newStreamStore(dag),
		peers:    make(map[peer.ID]*PeerInfo),
		banned:   make(map[peer.ID]struct{}),
		queries:  make(map[QueryId]*outstandingQuery),
		listeners: make(map[ListenerId]*listenerState),
		events:    newEventBroadcaster[SwarmEvent](),
		closeCh:   make(chan struct{}),
	}

	dhtB, err := newDHTBehaviour(context.Background(), h)
	if err != nil {
		return nil, errors.Wrap("failed to construct dht behaviour", err)
	}
	b.dht = dhtB

	psB, err := newPubsubBehaviour(context.Background(), h)
	if err != nil {
		return nil, errors.Wrap("failed to construct pubsub behaviour", err)
	}
	b.ps = psB

	b.rpc = newRPCServer(b)
	grpcSrv, err := b.rpc.serve(h)
	if err != nil {
		return nil, errors.Wrap("failed to start rpc server", err)
	}
	b.grpcSrv = grpcSrv

	b.watchConnectedness()
	return b, nil
}

// watchConnectedness subscribes to the host's connectedness notifications
// and turns them into PeerConnected/PeerDisconnected SwarmEvents, and
// Discovered notifications for newly-seen peers, per spec.md §6.
func (b *Behaviour) watchConnectedness() {
	b.host.Network().Notify(&network.NotifyBundle{
		ConnectedF: func(_ network.Network, c network.Conn) {
			p := c.RemotePeer()
			b.mu.Lock()
			_, known := b.peers[p]
			info := b.peerInfoLocked(p)
			info.LastSeen = time.Now()
			b.mu.Unlock()
			if !known {
				b.events.publish(SwarmEvent{Kind: EventDiscovered, Peer: p})
			}
			b.events.publish(SwarmEvent{Kind: EventPeerConnected, Peer: p, Address: immutable.Some(c.RemoteMultiaddr())})
		},
		DisconnectedF: func(_ network.Network, c network.Conn) {
			b.events.publish(SwarmEvent{Kind: EventPeerDisconnected, Peer: c.RemotePeer(), Address: immutable.Some(c.RemoteMultiaddr())})
		},
	})
}

func (b *Behaviour) peerInfoLocked(p peer.ID) *PeerInfo {
	info, ok := b.peers[p]
	if !ok {
		info = &PeerInfo{ID: p}
		b.peers[p] = info
	}
	return info
}

// LocalPeerID returns the node's own peer identity.
func (b *Behaviour) LocalPeerID() peer.ID { return b.identity.ID }

// LocalNodeName returns the node's human-readable name.
func (b *Behaviour) LocalNodeName() string { return b.nodeName }

// Peers returns every peer the behaviour currently has bookkeeping for.
func (b *Behaviour) Peers() []peer.ID {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]peer.ID, 0, len(b.peers))
	for p := range b.peers {
		out = append(out, p)
	}
	return out
}

// Connections enumerates every (peer, address) pair currently carrying at
// least one substream, read directly off the host's network (spec.md §3).
func (b *Behaviour) Connections() []Connection {
	conns := b.host.Network().Conns()
	out := make([]Connection, 0, len(conns))
	for _, c := range conns {
		out = append(out, Connection{Peer: c.RemotePeer(), Address: c.RemoteMultiaddr()})
	}
	return out
}

// IsConnected reports whether the host currently has an open connection to
// p.
func (b *Behaviour) IsConnected(p peer.ID) bool {
	return b.host.Network().Connectedness(p) == network.Connected
}

// Info returns the behaviour's bookkeeping record for p, if any.
func (b *Behaviour) Info(p peer.ID) (*PeerInfo, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	info, ok := b.peers[p]
	return info, ok
}

// AddAddress records addr for peer under AddressSource, merging it into the
// peer's existing known-address set (spec.md §4.2's address tie-break
// rule).
func (b *Behaviour) AddAddress(p peer.ID, addr ma.Multiaddr, source AddressSource) {
	b.mu.Lock()
	info := b.peerInfoLocked(p)
	info.mergeAddr(addr, source)
	b.mu.Unlock()
	b.host.Peerstore().AddAddr(p, addr, time.Hour)
}

// RemoveAddress drops addr from peer's known-address set.
func (b *Behaviour) RemoveAddress(p peer.ID, addr ma.Multiaddr) {
	b.mu.Lock()
	if info, ok := b.peers[p]; ok {
		info.removeAddr(addr)
	}
	b.mu.Unlock()
}

// Dial attempts to connect to peer using its known addresses.
func (b *Behaviour) Dial(ctx context.Context, p peer.ID) error {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	addrs := b.host.Peerstore().Addrs(p)
	info := peer.AddrInfo{ID: p, Addrs: addrs}
	if err := b.host.Connect(ctx, info); err != nil {
		return errors.Wrap("dial failed", err)
	}
	b.mu.Lock()
	pi := b.peerInfoLocked(p)
	for _, a := range addrs {
		pi.mergeAddr(a, AddressSourceDial)
	}
	b.mu.Unlock()
	return nil
}

// Ban blocks future connections from p and drops any existing one,
// idempotently.
func (b *Behaviour) Ban(p peer.ID) {
	b.mu.Lock()
	b.banned[p] = struct{}{}
	if info, ok := b.peers[p]; ok {
		info.Banned = true
	}
	b.mu.Unlock()
	for _, c := range b.host.Network().ConnsToPeer(p) {
		_ = c.Close()
	}
}

// Unban reverses Ban, idempotently.
func (b *Behaviour) Unban(p peer.ID) {
	b.mu.Lock()
	delete(b.banned, p)
	if info, ok := b.peers[p]; ok {
		info.Banned = false
	}
	b.mu.Unlock()
}

// IsBanned reports whether p is currently banned.
func (b *Behaviour) IsBanned(p peer.ID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.banned[p]
	return ok
}

// AddExternalAddress records addr, normalised against the local identity,
// as an externally-reachable address with an Infinite score (spec.md §4.2,
// §6). addr is stored only after peer-suffix normalisation, per spec.md §3.
func (b *Behaviour) AddExternalAddress(addr ma.Multiaddr) {
	addr = normalizeAddr(addr, b.identity.ID)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.externalAddr {
		if existing.addr.Equal(addr) {
			return
		}
	}
	b.externalAddr = append(b.externalAddr, taggedExternalAddr{addr: addr})
}

// ExternalAddresses returns every address this node currently advertises as
// externally reachable.
func (b *Behaviour) ExternalAddresses() []ma.Multiaddr {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ma.Multiaddr, 0, len(b.externalAddr))
	for _, a := range b.externalAddr {
		out = append(out, a.addr)
	}
	return out
}

// Listeners returns every address the host is currently listening on.
func (b *Behaviour) Listeners() []ma.Multiaddr {
	return b.host.Addrs()
}

// swarmEvents returns a fresh stream of every subsequent membership and
// listener event, per spec.md §4.4.
func (b *Behaviour) swarmEvents() (<-chan SwarmEvent, func()) {
	return b.events.subscribe(64)
}

// close tears down every sub-protocol and the host itself. Idempotent.
func (b *Behaviour) close() {
	b.closeOnce.Do(func() {
		close(b.closeCh)
		b.events.closeAll()
		b.grpcSrv.GracefulStop()
		b.ps.close()
		b.dht.close()
		_ = b.exch.Close()
		_ = b.host.Close()
	})
}
