// Copyright 2023 Kepler Network Contributors
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

// Package badger adapts dgraph-io/badger/v3 to the ds.Batching interface
// the rest of the networking core and the orbit layer consume, grounded on
// the teacher's datastore/badger/v3 package: the same "open, wrap errors,
// expose Batch" shape, narrowed to what an orbit's block store actually
// needs.
package badger

import (
	"context"

	badgerv3 "github.com/dgraph-io/badger/v3"
	ds "github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"

	"github.com/keplernet/orbitd/errors"
)

// Options mirrors the subset of badger.Options the teacher's config.BadgerConfig
// exposes to operators.
type Options struct {
	ValueLogFileSize int64
}

// Datastore is a ds.Batching backed by a single badger.DB. The orbit
// package wraps it as the block store of an orbit's block_store/
// directory; the orbit's metadata JSON file and the DHT's record store do
// not use it.
type Datastore struct {
	db *badgerv3.DB
}

var _ ds.Batching = (*Datastore)(nil)

// NewDatastore opens (creating if absent) a badger database rooted at path.
func NewDatastore(path string, opts Options) (*Datastore, error) {
	bopts := badgerv3.DefaultOptions(path)
	if opts.ValueLogFileSize > 0 {
		bopts = bopts.WithValueLogFileSize(opts.ValueLogFileSize)
	}
	bopts = bopts.WithLogger(nil)

	db, err := badgerv3.Open(bopts)
	if err != nil {
		return nil, errors.Wrap("failed to open badger datastore", err)
	}
	return &Datastore{db: db}, nil
}

func (d *Datastore) Get(ctx context.Context, key ds.Key) ([]byte, error) {
	var out []byte
	err := d.db.View(func(txn *badgerv3.Txn) error {
		item, err := txn.Get(key.Bytes())
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte{}, val...)
			return nil
		})
	})
	if err == badgerv3.ErrKeyNotFound {
		return nil, ds.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap("badger get failed", err)
	}
	return out, nil
}

func (d *Datastore) Has(ctx context.Context, key ds.Key) (bool, error) {
	_, err := d.Get(ctx, key)
	if err == ds.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *Datastore) GetSize(ctx context.Context, key ds.Key) (int, error) {
	val, err := d.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	return len(val), nil
}

func (d *Datastore) Put(ctx context.Context, key ds.Key, value []byte) error {
	err := d.db.Update(func(txn *badgerv3.Txn) error {
		return txn.Set(key.Bytes(), value)
	})
	if err != nil {
		return errors.Wrap("badger put failed", err)
	}
	return nil
}

func (d *Datastore) Delete(ctx context.Context, key ds.Key) error {
	err := d.db.Update(func(txn *badgerv3.Txn) error {
		return txn.Delete(key.Bytes())
	})
	if err != nil {
		return errors.Wrap("badger delete failed", err)
	}
	return nil
}

// Query performs a prefix scan, the same narrow subset of dsq.Query the
// teacher's DHT record store and orbit metadata listing need (KeysOnly,
// Prefix, no Filters/Orders beyond that).
func (d *Datastore) Query(ctx context.Context, q query.Query) (query.Results, error) {
	var entries []query.Entry
	err := d.db.View(func(txn *badgerv3.Txn) error {
		opts := badgerv3.DefaultIteratorOptions
		opts.PrefetchValues = !q.KeysOnly
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(ds.NewKey(q.Prefix).String())
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.KeyCopy(nil))
			e := query.Entry{Key: key, Size: int(item.ValueSize())}
			if !q.KeysOnly {
				val, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				e.Value = val
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap("badger query failed", err)
	}
	return query.ResultsWithEntries(q, entries), nil
}

func (d *Datastore) Sync(ctx context.Context, prefix ds.Key) error {
	return d.db.Sync()
}

func (d *Datastore) Close() error {
	return d.db.Close()
}

// Batch returns a batched writer, grounded on the teacher's use of
// badger.Txn batching for multi-key writes (e.g. persisting a DHT record
// alongside its provider set in one commit).
func (d *Datastore) Batch(ctx context.Context) (ds.Batch, error) {
	return &txnBatch{txn: d.db.NewTransaction(true)}, nil
}

type txnBatch struct {
	txn *badgerv3.Txn
}

func (b *txnBatch) Put(ctx context.Context, key ds.Key, value []byte) error {
	return b.txn.Set(key.Bytes(), value)
}

func (b *txnBatch) Delete(ctx context.Context, key ds.Key) error {
	return b.txn.Delete(key.Bytes())
}

func (b *txnBatch) Commit(ctx context.Context) error {
	if err := b.txn.Commit(); err != nil {
		return errors.Wrap("badger batch commit failed", err)
	}
	return nil
}
