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
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multihash"

	"github.com/keplernet/orbitd/errors"
)

// DefaultMhType is the multihash function used for content produced by
// this node's own writes (sha2-256), matching the teacher's block hashing
// convention in core/crdt.
const DefaultMhType = multihash.SHA2_256

// CidForBlock computes the content id for data under the given IPLD codec
// (cid.Raw, cid.DagCBOR, ...), using DefaultMhType.
func CidForBlock(data []byte, codec uint64) (cid.Cid, error) {
	mh, err := multihash.Sum(data, DefaultMhType, -1)
	if err != nil {
		return cid.Undef, errors.Wrap("failed to hash block", err)
	}
	return cid.NewCidV1(codec, mh), nil
}

// EncodeCid renders c using base32 (the default, terminal-friendly
// multibase for CIDv1), matching the orbit layer's URI scheme (orbit/orbit.go).
func EncodeCid(c cid.Cid) (string, error) {
	return c.StringOfBase(multibase.Base32)
}

// DecodeCid parses a base-encoded content id string back into a cid.Cid.
func DecodeCid(s string) (cid.Cid, error) {
	c, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, errors.Wrap("failed to decode cid", err)
	}
	return c, nil
}
