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
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/require"

	"github.com/keplernet/orbitd/errors"
)

func newTestBehaviour() *Behaviour {
	return &Behaviour{queries: map[QueryId]*outstandingQuery{}}
}

// TestCancelIdempotent covers spec.md §8.2: dropping a handle before
// completion never panics, and a second cancel for the same QueryId is a
// no-op, including for a QueryId the behaviour never knew about.
func TestCancelIdempotent(t *testing.T) {
	b := newTestBehaviour()
	cancelled := 0
	id, ch := b.registerQuery(1, func() { cancelled++ })

	require.NotPanics(t, func() { b.Cancel(id) })
	require.Equal(t, 1, cancelled)

	// second cancel of the same id is a silent no-op.
	require.NotPanics(t, func() { b.Cancel(id) })
	require.Equal(t, 1, cancelled)

	// the channel was closed by Cancel; reading from it must not block.
	_, ok := <-ch
	require.False(t, ok)

	// cancelling a QueryId the behaviour never tracked must not panic.
	require.NotPanics(t, func() { b.Cancel(QueryId(999999)) })
}

// TestGetQueryCloseBeforeCompletionCancels covers the same invariant from
// the query-handle side: closing a GetQuery before it resolves triggers
// exactly one cancel call, and closing it again afterward is a no-op.
func TestGetQueryCloseBeforeCompletionCancels(t *testing.T) {
	b := newTestBehaviour()
	cancelled := 0
	id, ch := b.registerQuery(1, func() { cancelled++ })
	q := newGetQuery(id, ch, func(QueryId) { b.Cancel(id) })

	q.Close()
	require.Equal(t, 1, cancelled)

	q.Close()
	require.Equal(t, 1, cancelled)
}

// TestGetQueryCloseAfterCompletionDoesNotCancel covers S3: once a query has
// completed, closing its handle must not invoke cancel again nor panic.
func TestGetQueryCloseAfterCompletionDoesNotCancel(t *testing.T) {
	b := newTestBehaviour()
	cancelled := 0
	id, ch := b.registerQuery(1, func() { cancelled++ })
	q := newGetQuery(id, ch, func(QueryId) { b.Cancel(id) })

	b.completeQuery(id, queryResult{value: "ok"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	val, err := q.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", val)

	q.Close()
	require.Equal(t, 0, cancelled)
}

// TestSyncShortCircuitEmptyMissing covers spec.md §8.3: sync(cid, providers,
// []) resolves synchronously to Ok(()) regardless of providers.
func TestSyncShortCircuitEmptyMissing(t *testing.T) {
	root, err := CidForBlock([]byte("root"), cid.Raw)
	require.NoError(t, err)

	q := shortCircuitSync(root, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, q.Wait(ctx))
}

// TestSyncShortCircuitEmptyProviders covers spec.md §8.3: sync(cid, [],
// [m, ...]) resolves synchronously to Err(BlockNotFound(m)).
func TestSyncShortCircuitEmptyProviders(t *testing.T) {
	root, err := CidForBlock([]byte("root"), cid.Raw)
	require.NoError(t, err)
	missing, err := CidForBlock([]byte("missing"), cid.Raw)
	require.NoError(t, err)

	notFound := errors.BlockNotFound(missing.String())
	q := shortCircuitSync(root, notFound)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err = q.Wait(ctx)
	require.Error(t, err)
	require.ErrorIs(t, err, errors.ErrBlockNotFound)
}

// TestSyncQueryCloseBeforeTerminalCancels mirrors TestGetQueryClose... for
// the stream-shaped handle.
func TestSyncQueryCloseBeforeTerminalCancels(t *testing.T) {
	b := newTestBehaviour()
	cancelled := 0
	id := b.registerStreamQuery(func() { cancelled++ })
	events := make(chan SyncEvent)
	q := newSyncQuery(id, events, func(QueryId) { b.Cancel(id) })

	q.Close()
	require.Equal(t, 1, cancelled)
	q.Close()
	require.Equal(t, 1, cancelled)
}
