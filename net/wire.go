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
	"bytes"

	fxcbor "github.com/fxamacker/cbor/v2"
	"github.com/ugorji/go/codec"
)

// cborHandle is shared by every wire encode/decode in this package, mirroring
// core/crdt/lwwreg.go's use of a single *codec.CborHandle for delta encoding.
var cborHandle = &codec.CborHandle{}

// encodeCBOR serialises v (a DHT record value, a signed stream head, ...)
// using CBOR, the codec the teacher's CRDT layer already standardises on.
func encodeCBOR(v any) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	enc := codec.NewEncoder(buf, cborHandle)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeCBOR deserialises data into v.
func decodeCBOR(data []byte, v any) error {
	dec := codec.NewDecoder(bytes.NewReader(data), cborHandle)
	return dec.Decode(v)
}

// canonicalCBOR is the deterministic encoding mode used only for stream
// slice snapshots (streamSliceSnapshot), where byte-identical encodings of
// identical values matter because a snapshot's own content id is derived
// from its encoded bytes. ugorji's handle above does not guarantee
// canonical map-key ordering across encodes, so slice snapshots use
// fxamacker/cbor's core-deterministic-encoding mode instead.
var canonicalCBOR, _ = fxcbor.CanonicalEncOptions().EncMode()

// streamSliceSnapshot is the canonical, content-addressable form of a byte
// range read from a collaborative stream, used when a slice itself needs to
// be handed to the block store (e.g. to cache a frequently-requested
// range under its own CID rather than re-concatenating entries each time).
type streamSliceSnapshot struct {
	Stream StreamId
	Start  uint64
	Length uint64
	Data   []byte
}

// encodeSliceSnapshot canonically encodes a stream slice snapshot.
func encodeSliceSnapshot(s streamSliceSnapshot) ([]byte, error) {
	return canonicalCBOR.Marshal(s)
}

// decodeSliceSnapshot decodes bytes produced by encodeSliceSnapshot.
func decodeSliceSnapshot(data []byte) (streamSliceSnapshot, error) {
	var s streamSliceSnapshot
	err := fxcbor.Unmarshal(data, &s)
	return s, err
}
