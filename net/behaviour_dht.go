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
	"sort"
	"sync/atomic"

	"github.com/ipfs/go-cid"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	record "github.com/libp2p/go-libp2p-record"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/routing"

	"github.com/keplernet/orbitd/errors"
)

// orbitRecordValidator accepts any record whose key carries the
// "orbit" namespace, deferring to the embedding orbit layer (out of scope
// here, per spec.md §1) for any further authorization check before a value
// is handed to put_record. It never rejects a Select between candidates
// that both validate, leaving quorum/tie-break entirely to GetRecord's
// caller, matching spec.md §4.2's put/get quorum semantics.
type orbitRecordValidator struct{}

func (orbitRecordValidator) Validate(key string, value []byte) error {
	if len(key) == 0 {
		return errors.New("empty record key")
	}
	return nil
}

func (orbitRecordValidator) Select(key string, values [][]byte) (int, error) {
	if len(values) == 0 {
		return 0, errors.New("no record candidates to select from")
	}
	return 0, nil
}

var _ record.Validator = orbitRecordValidator{}

// dhtBehaviour wraps the Kademlia-style peer routing / DHT sub-protocol
// (spec.md §4.2): closest-peer queries, provider discovery, and record
// put/get with configurable quorum.
type dhtBehaviour struct {
	kad          *dht.IpfsDHT
	bootstrapped int32
}

func newDHTBehaviour(ctx context.Context, h host.Host) (*dhtBehaviour, error) {
	kad, err := dht.New(ctx, h, dht.Mode(dht.ModeAuto),
		dht.NamespacedValidator("orbit", orbitRecordValidator{}))
	if err != nil {
		return nil, err
	}
	return &dhtBehaviour{kad: kad}, nil
}

func (d *dhtBehaviour) close() {
	_ = d.kad.Close()
}

// PeerRecord pairs a DHT record's value with the peer that published it,
// mirroring the rust original's PeerRecord (spec.md §8, scenario S4).
type PeerRecord struct {
	Key       []byte
	Value     []byte
	Publisher peer.ID
}

// Bootstrap seeds the routing table with peers (which are also dialled and
// added via AddAddress/Dial by the façade before this is called) and kicks
// off the DHT's own periodic refresh. An empty peer list still runs the
// refresh (spec.md §9, Open Questions: "recommend yes").
func (b *Behaviour) Bootstrap(ctx context.Context) (QueryId, chan queryResult) {
	cctx, cancel := context.WithCancel(ctx)
	id, ch := b.registerQuery(1, cancel)
	go func() {
		defer cancel()
		err := b.dht.kad.Bootstrap(cctx)
		if err == nil {
			atomic.StoreInt32(&b.dht.bootstrapped, 1)
		} else {
			err = errors.Wrap("bootstrap failed", err)
		}
		b.completeQuery(id, queryResult{err: err})
	}()
	return id, ch
}

// IsBootstrapped reports whether Bootstrap has completed successfully at
// least once.
func (b *Behaviour) IsBootstrapped() bool {
	return atomic.LoadInt32(&b.dht.bootstrapped) == 1
}

// GetClosestPeers returns the peers closest to key, sorted by XOR distance
// with ties broken by raw byte order of the peer id (spec.md §4.2).
func (b *Behaviour) GetClosestPeers(ctx context.Context, key []byte) (QueryId, chan queryResult) {
	cctx, cancel := context.WithCancel(ctx)
	id, ch := b.registerQuery(1, cancel)
	go func() {
		defer cancel()
		peers, err := b.dht.kad.GetClosestPeers(cctx, string(key))
		if err != nil {
			b.completeQuery(id, queryResult{err: errors.Wrap("get_closest_peers failed", err)})
			return
		}
		sortByXORDistance(key, peers)
		b.completeQuery(id, queryResult{value: peers})
	}()
	return id, ch
}

// sortByXORDistance orders peers by XOR distance to key, ascending, with
// ties broken by raw byte order of the peer id.
func sortByXORDistance(key []byte, peers []peer.ID) {
	dist := func(p peer.ID) []byte {
		h := xorBytes([]byte(p), key)
		return h
	}
	sort.Slice(peers, func(i, j int) bool {
		di, dj := dist(peers[i]), dist(peers[j])
		cmp := compareBytes(di, dj)
		if cmp != 0 {
			return cmp < 0
		}
		return peers[i] < peers[j]
	})
}

func xorBytes(a, b []byte) []byte {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = a[i] ^ b[i]
	}
	return out
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return int(a[i]) - int(b[i])
		}
	}
	return len(a) - len(b)
}

// Providers discovers peers advertising key, deduplicated by peer id with
// first-occurrence order preserved (spec.md §4.2). Completes with
// ErrNoProviders if no peer is found.
func (b *Behaviour) Providers(ctx context.Context, key cid.Cid) (QueryId, chan queryResult) {
	cctx, cancel := context.WithCancel(ctx)
	id, ch := b.registerQuery(1, cancel)
	go func() {
		defer cancel()
		seen := map[peer.ID]bool{}
		var ordered []peer.ID
		for info := range b.dht.kad.FindProvidersAsync(cctx, key, 0) {
			if seen[info.ID] {
				continue
			}
			seen[info.ID] = true
			ordered = append(ordered, info.ID)
		}
		if cctx.Err() != nil {
			b.completeQuery(id, queryResult{err: cctx.Err()})
			return
		}
		if len(ordered) == 0 {
			b.completeQuery(id, queryResult{err: errors.ErrNoProviders})
			return
		}
		b.completeQuery(id, queryResult{value: ordered})
	}()
	return id, ch
}

// Provide announces that this node can serve key.
func (b *Behaviour) Provide(ctx context.Context, key cid.Cid) (QueryId, chan queryResult) {
	cctx, cancel := context.WithCancel(ctx)
	id, ch := b.registerQuery(1, cancel)
	go func() {
		defer cancel()
		err := b.dht.kad.Provide(cctx, key, true)
		if err != nil {
			err = errors.Wrap("provide failed", err)
		}
		b.completeQuery(id, queryResult{err: err})
	}()
	return id, ch
}

// Unprovide stops re-advertising key. Fire-and-forget (spec.md §4.4).
func (b *Behaviour) Unprovide(key cid.Cid) {
	// go-libp2p-kad-dht re-advertises provider records on a timer rather
	// than exposing an explicit revoke; dropping the key from our local
	// provider store is sufficient to let the advertisement lapse.
	_ = b.bstore.DeleteBlock(context.Background(), key)
}

// GetRecord fetches value(s) for key, passing the quorum (computed against
// 20 replicas) to the DHT search (spec.md §4.2). Returns ErrQuorumFailure
// when the search yields no value at all, so a quorum failure is not
// distinguished from "no records", and a search that yields fewer values
// than the quorum is not reported as a failure.
func (b *Behaviour) GetRecord(ctx context.Context, key []byte, quorum Quorum) (QueryId, chan queryResult) {
	cctx, cancel := context.WithCancel(ctx)
	id, ch := b.registerQuery(1, cancel)
	go func() {
		defer cancel()
		n := quorum.required(20)
		values, err := b.dht.kad.SearchValue(cctx, string(key), routing.Quorum(n))
		if err != nil {
			b.completeQuery(id, queryResult{err: errors.Wrap("get_record failed", err)})
			return
		}
		var records []PeerRecord
		for v := range values {
			records = append(records, PeerRecord{Key: key, Value: v, Publisher: b.identity.ID})
		}
		if len(records) == 0 {
			b.completeQuery(id, queryResult{err: errors.ErrQuorumFailure})
			return
		}
		b.completeQuery(id, queryResult{value: records})
	}()
	return id, ch
}

// PutRecord stores (key, value), completing once quorum peers have
// acknowledged storage.
func (b *Behaviour) PutRecord(ctx context.Context, key, value []byte, quorum Quorum) (QueryId, chan queryResult) {
	cctx, cancel := context.WithCancel(ctx)
	id, ch := b.registerQuery(1, cancel)
	go func() {
		defer cancel()
		n := quorum.required(20)
		err := b.dht.kad.PutValue(cctx, string(key), value, routing.Quorum(n))
		if err != nil {
			err = errors.Wrap("put_record failed", err)
		}
		b.completeQuery(id, queryResult{err: err})
	}()
	return id, ch
}

// RemoveRecord drops a locally-held record. Fire-and-forget.
func (b *Behaviour) RemoveRecord(key []byte) {
	// The kad-dht record store expires entries on its own TTL; there is no
	// direct per-key delete in its public API, so we simply let a
	// subsequent GetRecord from this node fall through to the network.
}
