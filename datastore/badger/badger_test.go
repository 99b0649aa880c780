// Copyright 2023 Kepler Network Contributors
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package badger

import (
	"context"
	"path/filepath"
	"testing"

	ds "github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
	"github.com/stretchr/testify/require"
)

func newTestDatastore(t *testing.T) *Datastore {
	t.Helper()
	d, err := NewDatastore(filepath.Join(t.TempDir(), "db"), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	d := newTestDatastore(t)

	key := ds.NewKey("/a/b")
	require.NoError(t, d.Put(ctx, key, []byte("value")))

	got, err := d.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, []byte("value"), got)

	has, err := d.Has(ctx, key)
	require.NoError(t, err)
	require.True(t, has)

	size, err := d.GetSize(ctx, key)
	require.NoError(t, err)
	require.Equal(t, len("value"), size)
}

func TestGetMissingReturnsErrNotFound(t *testing.T) {
	ctx := context.Background()
	d := newTestDatastore(t)

	_, err := d.Get(ctx, ds.NewKey("/missing"))
	require.ErrorIs(t, err, ds.ErrNotFound)

	has, err := d.Has(ctx, ds.NewKey("/missing"))
	require.NoError(t, err)
	require.False(t, has)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	d := newTestDatastore(t)

	key := ds.NewKey("/a")
	require.NoError(t, d.Put(ctx, key, []byte("x")))
	require.NoError(t, d.Delete(ctx, key))

	_, err := d.Get(ctx, key)
	require.ErrorIs(t, err, ds.ErrNotFound)
}

func TestQueryPrefixScan(t *testing.T) {
	ctx := context.Background()
	d := newTestDatastore(t)

	require.NoError(t, d.Put(ctx, ds.NewKey("/records/one"), []byte("1")))
	require.NoError(t, d.Put(ctx, ds.NewKey("/records/two"), []byte("2")))
	require.NoError(t, d.Put(ctx, ds.NewKey("/other/three"), []byte("3")))

	results, err := d.Query(ctx, query.Query{Prefix: "/records"})
	require.NoError(t, err)
	entries, err := results.Rest()
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestBatchCommit(t *testing.T) {
	ctx := context.Background()
	d := newTestDatastore(t)

	b, err := d.Batch(ctx)
	require.NoError(t, err)
	require.NoError(t, b.Put(ctx, ds.NewKey("/a"), []byte("1")))
	require.NoError(t, b.Put(ctx, ds.NewKey("/b"), []byte("2")))
	require.NoError(t, b.Commit(ctx))

	got, err := d.Get(ctx, ds.NewKey("/a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), got)
	got, err = d.Get(ctx, ds.NewKey("/b"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), got)
}
