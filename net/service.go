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

	"github.com/ipfs/go-bitswap"
	bsnet "github.com/ipfs/go-bitswap/network"
	blockservice "github.com/ipfs/go-blockservice"
	"github.com/ipfs/go-cid"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
	dag "github.com/ipfs/go-merkledag"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"go.opentelemetry.io/otel/metric"

	"github.com/keplernet/orbitd/errors"
	"github.com/keplernet/orbitd/logging"
)

// Config carries the knobs New needs to assemble a node's transport,
// identity and behaviour, per spec.md §4.1 and §3.
type Config struct {
	RootDir     string
	ListenAddrs []ma.Multiaddr
	RelayAddr   ma.Multiaddr
	NodeName    string
	Blockstore  blockstore.Blockstore
}

// NetworkService is the façade described in spec.md §4.4: a cheaply
// cloneable handle that serialises access to the swarm, submits queries to
// the behaviour, and hands callers owning query handles. Because Behaviour
// is already safe for concurrent use, the façade here is a thin, directly
// shareable pointer rather than a separate lock layer — see driver.go for
// the reasoning behind collapsing the rust original's waker/lock/driver
// triad into Behaviour's own internal mutex.
type NetworkService struct {
	b    *Behaviour
	d    *driver
	m    *metrics
	host host.Host
}

// New constructs the transport, identity, behaviour and driver for one
// orbit, per spec.md §5's suspension point: "NetworkService::new awaits
// identity persistence and DNS construction". Construction failures are
// fatal, per spec.md §4.1's failure model.
func New(ctx context.Context, cfg Config) (*NetworkService, error) {
	identity, err := loadOrCreateIdentity(cfg.RootDir)
	if err != nil {
		return nil, errors.Wrap("failed to load or create identity", err)
	}

	h, err := newHost(transportConfig{
		identity:    identity,
		listenAddrs: cfg.ListenAddrs,
		relayAddr:   cfg.RelayAddr,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Blockstore == nil {
		_ = h.Close()
		return nil, errors.New("NetworkService.New requires a caller-supplied blockstore")
	}

	bsNetwork := bsnet.NewFromIpfsHost(h, nil)
	exch := bitswap.New(ctx, bsNetwork, cfg.Blockstore)
	bserv := blockservice.New(cfg.Blockstore, exch)
	dagService := dag.NewDAGService(bserv)

	b, err := newBehaviour(h, identity, cfg.NodeName, exch, cfg.Blockstore, dagService)
	if err != nil {
		_ = h.Close()
		return nil, err
	}

	log.Info(ctx, "network service started", logging.NewKV("PeerID", identity.ID.String()), logging.NewKV("NodeName", cfg.NodeName))

	return &NetworkService{
		b:    b,
		d:    newDriver(b),
		host: h,
	}, nil
}

// RegisterMetrics installs the façade's instruments against provider, per
// SPEC_FULL.md's register_metrics supplement.
func (s *NetworkService) RegisterMetrics(provider metric.MeterProvider) error {
	m, err := registerMetrics(s.b, provider)
	if err != nil {
		return err
	}
	s.m = m
	return nil
}

// Close tears down the driver (which tears down the behaviour and host on
// its next and only run), per spec.md §5's "dropping the entire
// NetworkService drops the swarm driver task handle, which is abort-on-drop".
func (s *NetworkService) Close() error {
	return s.d.Close()
}

// --- reads ---

func (s *NetworkService) LocalPeerID() peer.ID                 { return s.b.LocalPeerID() }
func (s *NetworkService) LocalNodeName() string                { return s.b.LocalNodeName() }
func (s *NetworkService) Listeners() []ma.Multiaddr            { return s.b.Listeners() }
func (s *NetworkService) ExternalAddresses() []ma.Multiaddr    { return s.b.ExternalAddresses() }
func (s *NetworkService) Peers() []peer.ID                     { return s.b.Peers() }
func (s *NetworkService) Connections() []Connection            { return s.b.Connections() }
func (s *NetworkService) IsConnected(p peer.ID) bool           { return s.b.IsConnected(p) }
func (s *NetworkService) PeerInfo(p peer.ID) (*PeerInfo, bool) { return s.b.Info(p) }

// --- synchronous mutations ---

func (s *NetworkService) AddExternalAddress(addr ma.Multiaddr) {
	s.b.AddExternalAddress(addr)
	s.d.wake()
}

func (s *NetworkService) AddAddress(p peer.ID, addr ma.Multiaddr, source AddressSource) {
	s.b.AddAddress(p, addr, source)
	s.d.wake()
}

func (s *NetworkService) RemoveAddress(p peer.ID, addr ma.Multiaddr) {
	s.b.RemoveAddress(p, addr)
	s.d.wake()
}

func (s *NetworkService) Dial(ctx context.Context, p peer.ID) error {
	err := s.b.Dial(ctx, p)
	s.d.wake()
	return err
}

func (s *NetworkService) Ban(p peer.ID) {
	s.b.Ban(p)
	s.d.wake()
}

func (s *NetworkService) Unban(p peer.ID) {
	s.b.Unban(p)
	s.d.wake()
}

func (s *NetworkService) Unprovide(c cid.Cid) {
	s.b.Unprovide(c)
	s.d.wake()
}

func (s *NetworkService) RemoveRecord(key []byte) {
	s.b.RemoveRecord(key)
	s.d.wake()
}

// --- listen_on ---

// ListenOn starts listening on addr, returning its ListenerId and a live
// stream of NewListenAddr events that terminates at ListenerClosed
// (spec.md §4.4). ExpiredListenAddr is not emitted; see Behaviour.ListenOn.
func (s *NetworkService) ListenOn(addr ma.Multiaddr) (ListenerId, <-chan SwarmEvent, func(), error) {
	id, events, cancel, err := s.b.ListenOn(addr)
	s.d.wake()
	return id, events, cancel, err
}

// SwarmEvents returns a live stream of peer/listener/discovery events.
func (s *NetworkService) SwarmEvents() (<-chan SwarmEvent, func()) {
	return s.b.swarmEvents()
}

// --- async queries ---

func (s *NetworkService) Bootstrap(ctx context.Context) *GetQuery {
	id, ch := s.b.Bootstrap(ctx)
	s.d.wake()
	return newGetQuery(id, ch, s.b.Cancel)
}

func (s *NetworkService) GetClosestPeers(ctx context.Context, key []byte) *GetQuery {
	id, ch := s.b.GetClosestPeers(ctx, key)
	s.d.wake()
	return newGetQuery(id, ch, s.b.Cancel)
}

func (s *NetworkService) Providers(ctx context.Context, c cid.Cid) *GetQuery {
	id, ch := s.b.Providers(ctx, c)
	s.d.wake()
	return newGetQuery(id, ch, s.b.Cancel)
}

func (s *NetworkService) Provide(ctx context.Context, c cid.Cid) *GetQuery {
	id, ch := s.b.Provide(ctx, c)
	s.d.wake()
	return newGetQuery(id, ch, s.b.Cancel)
}

func (s *NetworkService) GetRecord(ctx context.Context, key []byte, quorum Quorum) *GetQuery {
	id, ch := s.b.GetRecord(ctx, key, quorum)
	s.d.wake()
	return newGetQuery(id, ch, s.b.Cancel)
}

func (s *NetworkService) PutRecord(ctx context.Context, key, value []byte, quorum Quorum) *GetQuery {
	id, ch := s.b.PutRecord(ctx, key, value, quorum)
	s.d.wake()
	return newGetQuery(id, ch, s.b.Cancel)
}

// --- pubsub ---

func (s *NetworkService) Subscribe(topic string) (<-chan GossipEvent, func(), error) {
	ch, cancel, err := s.b.Subscribe(topic)
	s.d.wake()
	return ch, cancel, err
}

func (s *NetworkService) Publish(ctx context.Context, topic string, msg []byte) error {
	err := s.b.Publish(ctx, topic, msg)
	s.d.wake()
	return err
}

func (s *NetworkService) Broadcast(ctx context.Context, topic string, msg []byte) error {
	err := s.b.Broadcast(ctx, topic, msg)
	s.d.wake()
	return err
}

// --- block exchange ---

// Get fetches a single block by content id from providers, yielding () once
// it is stored locally, per spec.md §4.4.
func (s *NetworkService) Get(ctx context.Context, c cid.Cid, providers []peer.ID) *GetQuery {
	id, ch := s.b.Get(ctx, c, providers)
	s.d.wake()
	return newGetQuery(id, ch, s.b.Cancel)
}

// Sync fetches each id in missing from providers; links inside the fetched
// blocks are not followed.
// Per spec.md §4.4's normative short-circuit rule, an empty missing list
// short-circuits to an already-complete success, and an empty providers
// list (with a non-empty missing list) short-circuits to an already-complete
// BlockNotFound(missing[0]) without touching the network.
func (s *NetworkService) Sync(ctx context.Context, root cid.Cid, providers []peer.ID, missing []cid.Cid) *SyncQuery {
	if len(missing) == 0 {
		return shortCircuitSync(root, nil)
	}
	if len(providers) == 0 {
		return shortCircuitSync(root, errors.BlockNotFound(missing[0].String()))
	}
	id, events := s.b.Sync(ctx, root, providers, missing)
	s.d.wake()
	return newSyncQuery(id, events, s.b.Cancel)
}

// shortCircuitSync builds an already-closed SyncQuery carrying a single
// terminal SyncComplete event, per spec.md §4.4's short-circuit rule.
func shortCircuitSync(root cid.Cid, err error) *SyncQuery {
	ch := make(chan SyncEvent, 1)
	ch <- SyncEvent{Kind: SyncComplete, Cid: root, Result: err}
	close(ch)
	q := newSyncQuery(0, ch, func(QueryId) {})
	q.closed = true
	return q
}

// --- collaborative streams ---

func (s *NetworkService) StreamDocs() []DocId                    { return s.b.streams.Docs() }
func (s *NetworkService) StreamStreams() []StreamId              { return s.b.streams.Streams() }
func (s *NetworkService) StreamSubstreams(doc DocId) []StreamId { return s.b.streams.Substreams(doc) }

func (s *NetworkService) StreamAddPeers(doc DocId, peers []peer.ID) {
	s.b.streams.AddPeers(doc, peers)
	s.d.wake()
}

func (s *NetworkService) StreamHead(id StreamId) (SignedHead, bool) { return s.b.streams.Head(id) }

func (s *NetworkService) StreamSlice(id StreamId, start, length uint64) (StreamReader, error) {
	return s.b.streams.Slice(id, start, length)
}

// StreamSliceCid returns the stable content id of a byte range of a stream,
// without pinning it, so callers (e.g. the orbit URI scheme) can reference
// a range before deciding to cache it.
func (s *NetworkService) StreamSliceCid(id StreamId, start, length uint64) (cid.Cid, error) {
	return s.b.streams.SliceSnapshotCid(id, start, length)
}

func (s *NetworkService) StreamRemove(id StreamId) error {
	err := s.b.streams.Remove(id)
	s.d.wake()
	return err
}

func (s *NetworkService) StreamUpdateHead(doc DocId, sh SignedHead) error {
	err := s.b.streams.UpdateHead(doc, sh)
	s.d.wake()
	return err
}

func (s *NetworkService) StreamSubscribeHeads() (<-chan SignedHead, func()) {
	return s.b.streams.SubscribeHeads()
}

func (s *NetworkService) StreamNewWriter(doc DocId, priv crypto.PrivKey) *LocalStreamWriter {
	return s.b.streams.NewAppendWriter(doc, s.b.LocalPeerID(), priv)
}
