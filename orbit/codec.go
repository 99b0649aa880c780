// Copyright 2023 Kepler Network Contributors
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package orbit

// Codec tags the IPLD multicodec a block was written with, grounded on
// original_source/src/codec.rs's SupportedCodecs. The networking core only
// deals in bytes and a Cid (spec.md §1's "Out of scope" keeps content-type
// negotiation with the HTTP surface); Codec lets the orbit layer round-trip
// that tag across a block announce without the net package knowing about
// content types at all.
type Codec uint64

const (
	CodecRaw     Codec = 0x55
	CodecJSON    Codec = 0x0200
	CodecMsgPack Codec = 0x0201
	CodecCbor    Codec = 0x51
)

func (c Codec) String() string {
	switch c {
	case CodecRaw:
		return "raw"
	case CodecJSON:
		return "json"
	case CodecMsgPack:
		return "msgpack"
	case CodecCbor:
		return "dag-cbor"
	default:
		return "unknown"
	}
}

// CodecFromContentType mirrors original_source/src/codec.rs's
// `From<&ContentType> for SupportedCodecs`, translating the HTTP surface's
// negotiated content type (passed in as its MIME string by that
// collaborator) into the Codec tag stored alongside a block.
func CodecFromContentType(mime string) Codec {
	switch mime {
	case "application/json":
		return CodecJSON
	case "application/msgpack", "application/x-msgpack":
		return CodecMsgPack
	default:
		return CodecRaw
	}
}
