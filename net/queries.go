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
	"sync/atomic"

	"github.com/keplernet/orbitd/logging"
)

// QueryId is the opaque identifier the behaviour assigns to every
// outstanding query. Exactly one reply channel exists per QueryId for the
// lifetime of that query, per spec.md §3.
type QueryId uint64

var queryIDCounter uint64

// nextQueryId allocates a process-wide unique QueryId. A single global
// counter is sufficient because QueryIds only need to be unique for the
// lifetime of their outstanding query within one behaviour instance, and
// each orbit runs its own independent NetworkService (spec.md §1 Non-goal:
// "multi-tenant isolation of network resources").
func nextQueryID() QueryId {
	return QueryId(atomic.AddUint64(&queryIDCounter, 1))
}

// QuorumKind selects how many peer acknowledgements a DHT put/get requires
// to succeed, per spec.md §4.2.
type QuorumKind int

const (
	// QuorumOne requires a single acknowledging peer.
	QuorumOne QuorumKind = iota
	// QuorumN requires exactly N acknowledging peers.
	QuorumN
	// QuorumMajority requires ⌈(replicas+1)/2⌉ acknowledging peers.
	QuorumMajority
	// QuorumAll requires every known replica to acknowledge.
	QuorumAll
)

// Quorum is the quorum configuration for a DHT put_record/get_record call.
type Quorum struct {
	Kind QuorumKind
	N    int
}

// QuorumOf builds a Quorum with the given kind and, for QuorumN, count.
func QuorumOf(kind QuorumKind, n int) Quorum {
	return Quorum{Kind: kind, N: n}
}

// required computes how many of total replicas must acknowledge for q to
// be satisfied. Mirrors the "quorum floor" testable property in spec.md §8:
// Majority on N peers succeeds iff at least ⌈(N+1)/2⌉ acknowledge.
func (q Quorum) required(total int) int {
	switch q.Kind {
	case QuorumOne:
		return 1
	case QuorumN:
		if q.N > total {
			return total
		}
		return q.N
	case QuorumMajority:
		return (total + 2) / 2
	case QuorumAll:
		return total
	default:
		return 1
	}
}

// queryResult is the internal one-shot payload delivered through a
// QueryChannel. value holds the operation-specific result; err, if set,
// carries a recoverable query error (spec.md §7).
type queryResult struct {
	value any
	err   error
}

// outstandingQuery is the behaviour's bookkeeping record for a live query:
// the channel callers read from, and the cancellation hook invoked by
// Cancel or by a query handle's drop path.
type outstandingQuery struct {
	ch     chan queryResult
	cancel func()
}

// registerQuery allocates a QueryId and stores its channel/cancel func,
// returning both to the caller, per the query-submission protocol in
// spec.md §4.2 step 2-3.
func (b *Behaviour) registerQuery(buf int, cancel func()) (QueryId, chan queryResult) {
	ch := make(chan queryResult, buf)
	id := nextQueryID()
	b.mu.Lock()
	b.queries[id] = &outstandingQuery{ch: ch, cancel: cancel}
	b.mu.Unlock()
	return id, ch
}

// completeQuery delivers result on the query's channel and retires its
// bookkeeping. A call for a query that was already completed or cancelled
// is a no-op, so query goroutines may call it after a cancel.
func (b *Behaviour) completeQuery(id QueryId, result queryResult) {
	b.mu.Lock()
	q, ok := b.queries[id]
	delete(b.queries, id)
	b.mu.Unlock()
	if !ok {
		return
	}
	q.ch <- result
	close(q.ch)
}

// registerStreamQuery allocates a QueryId whose progress is delivered
// through a caller-managed stream (e.g. SyncEvent) rather than a
// queryResult channel. Used by Sync, whose handle is both a future and a
// stream (spec.md §4.5).
func (b *Behaviour) registerStreamQuery(cancel func()) QueryId {
	id := nextQueryID()
	b.mu.Lock()
	b.queries[id] = &outstandingQuery{cancel: cancel}
	b.mu.Unlock()
	return id
}

// retireQuery drops a query's bookkeeping without touching any channel,
// for sub-protocols (like sync) that manage their own typed result stream
// instead of a queryResult channel.
func (b *Behaviour) retireQuery(id QueryId) {
	b.mu.Lock()
	delete(b.queries, id)
	b.mu.Unlock()
}

// Cancel requests best-effort cancellation of the query identified by id.
// Idempotent: a second cancel, or a cancel for a query the behaviour no
// longer tracks (already completed, or already cancelled), is a silent
// no-op, per spec.md §3's invariant and §7's "Invariant violations ...
// must never panic".
func (b *Behaviour) Cancel(id QueryId) {
	b.mu.Lock()
	q, ok := b.queries[id]
	delete(b.queries, id)
	b.mu.Unlock()
	if !ok {
		log.Debug(context.Background(), "cancel of unknown or already-completed query", logging.NewKV("QueryId", id))
		return
	}
	q.cancel()
	if q.ch != nil {
		close(q.ch)
	}
}
