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
	"runtime"
	"sync"

	"github.com/keplernet/orbitd/errors"
)

// GetQuery is a single-shot handle to an outstanding get/bootstrap/record
// query. Rust's original expresses cancel-on-drop through its Drop trait;
// Go has no destructor, so GetQuery offers an explicit Close/Cancel plus a
// runtime.SetFinalizer backstop that cancels the query if a caller forgets
// to close it, matching spec.md §3's invariant that "a QueryHandle whose
// owner stops polling it must eventually release the query's resources".
type GetQuery struct {
	id     QueryId
	ch     chan queryResult
	cancel func(QueryId)

	once sync.Once
	done bool
}

func newGetQuery(id QueryId, ch chan queryResult, cancel func(QueryId)) *GetQuery {
	q := &GetQuery{id: id, ch: ch, cancel: cancel}
	runtime.SetFinalizer(q, func(q *GetQuery) { q.Close() })
	return q
}

// ID returns the query's opaque identifier, stable for its lifetime.
func (q *GetQuery) ID() QueryId { return q.id }

// Wait blocks until the query completes, is cancelled, or ctx is done,
// whichever comes first.
func (q *GetQuery) Wait(ctx context.Context) (any, error) {
	select {
	case res, ok := <-q.ch:
		if !ok {
			return nil, errors.ErrUnknownQuery
		}
		q.once.Do(func() { q.done = true })
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close cancels the query if it has not already completed, and releases the
// finalizer. Idempotent, safe to call multiple times or after Wait has
// already returned.
func (q *GetQuery) Close() {
	q.once.Do(func() {
		if !q.done {
			q.cancel(q.id)
		}
		q.done = true
	})
	runtime.SetFinalizer(q, nil)
}

// SyncQuery is a hybrid future+stream handle: callers may read progress
// events off Events() as they arrive, and/or wait for the terminal
// SyncComplete via Wait. Cancelling it (explicitly or via the finalizer
// backstop) stops in-flight block fetches, per spec.md §4.5.
type SyncQuery struct {
	id     QueryId
	events <-chan SyncEvent
	cancel func(QueryId)

	once   sync.Once
	closed bool
}

func newSyncQuery(id QueryId, events <-chan SyncEvent, cancel func(QueryId)) *SyncQuery {
	q := &SyncQuery{id: id, events: events, cancel: cancel}
	runtime.SetFinalizer(q, func(q *SyncQuery) { q.Close() })
	return q
}

// ID returns the query's opaque identifier.
func (q *SyncQuery) ID() QueryId { return q.id }

// Events returns the raw progress+terminal event stream.
func (q *SyncQuery) Events() <-chan SyncEvent { return q.events }

// Wait drains Events() until SyncComplete arrives (or ctx ends), returning
// its carried result. Safe to call even if some events were already read
// directly off Events().
func (q *SyncQuery) Wait(ctx context.Context) error {
	for {
		select {
		case evt, ok := <-q.events:
			if !ok {
				return errors.ErrUnknownQuery
			}
			if evt.Kind == SyncComplete {
				q.once.Do(func() { q.closed = true })
				return evt.Result
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close cancels the sync if it has not reached its terminal event, and
// releases the finalizer. Idempotent.
func (q *SyncQuery) Close() {
	q.once.Do(func() {
		if !q.closed {
			q.cancel(q.id)
		}
		q.closed = true
	})
	runtime.SetFinalizer(q, nil)
}
