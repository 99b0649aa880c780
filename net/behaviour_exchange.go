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

	"github.com/ipfs/go-cid"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/keplernet/orbitd/errors"
)

// SyncEventKind discriminates SyncEvent's variants.
type SyncEventKind int

const (
	// SyncProgress reports the outcome of fetching one of the requested
	// blocks; Result is set if that fetch failed.
	SyncProgress SyncEventKind = iota
	// SyncComplete is always the last event on a sync's channel.
	SyncComplete
)

// SyncEvent is one item on a SyncQuery's stream: a progress notification
// per requested block, ending with a terminal Complete(result), per spec.md
// §3 ("QueryChannel ... for progress-bearing queries").
type SyncEvent struct {
	Kind   SyncEventKind
	Cid    cid.Cid
	Result error
}

// Get fetches a single block by content id from the given provider set,
// completing once the block is present in the local block store (spec.md
// §4.4: "get(cid, providers) ... yielding () when block is stored
// locally").
func (b *Behaviour) Get(ctx context.Context, c cid.Cid, providers []peer.ID) (QueryId, chan queryResult) {
	cctx, cancel := context.WithCancel(ctx)
	id, ch := b.registerQuery(1, cancel)
	go func() {
		defer cancel()
		b.connectProviders(cctx, providers)
		_, err := b.exch.GetBlock(cctx, c)
		if err != nil {
			err = errors.Wrap("get failed", err)
		}
		b.completeQuery(id, queryResult{err: err})
	}()
	return id, ch
}

// connectProviders best-effort dials every provider so the exchange client
// has a direct connection to request blocks from, ignoring individual dial
// failures (a peer may already be reachable via the DHT or relay).
func (b *Behaviour) connectProviders(ctx context.Context, providers []peer.ID) {
	for _, p := range providers {
		_ = b.Dial(ctx, p)
	}
}

// Sync fetches every id in missing from providers, reporting one
// SyncProgress event per requested block and a terminal SyncComplete
// carrying root. Only the listed ids are fetched; links inside the fetched
// blocks are not followed. Short-circuits are handled by the façade
// (service.go), per spec.md §4.4's normative short-circuit rule.
func (b *Behaviour) Sync(ctx context.Context, root cid.Cid, providers []peer.ID, missing []cid.Cid) (QueryId, <-chan SyncEvent) {
	cctx, cancel := context.WithCancel(ctx)
	id := b.registerStreamQuery(cancel)
	out := make(chan SyncEvent, len(missing)+1)

	go func() {
		defer cancel()
		defer b.retireQuery(id)
		defer close(out)

		b.connectProviders(cctx, providers)

		var firstErr error
		for _, c := range missing {
			_, err := b.exch.GetBlock(cctx, c)
			if err != nil {
				if firstErr == nil {
					firstErr = errors.Wrap("sync block fetch failed", err)
				}
				out <- SyncEvent{Kind: SyncProgress, Cid: c, Result: err}
				continue
			}
			out <- SyncEvent{Kind: SyncProgress, Cid: c}
		}
		out <- SyncEvent{Kind: SyncComplete, Cid: root, Result: firstErr}
	}()

	return id, out
}
