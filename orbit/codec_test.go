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

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodecFromContentType(t *testing.T) {
	cases := []struct {
		mime string
		want Codec
	}{
		{"application/json", CodecJSON},
		{"application/msgpack", CodecMsgPack},
		{"application/x-msgpack", CodecMsgPack},
		{"application/octet-stream", CodecRaw},
		{"", CodecRaw},
	}
	for _, c := range cases {
		require.Equalf(t, c.want, CodecFromContentType(c.mime), "mime=%q", c.mime)
	}
}

func TestCodecString(t *testing.T) {
	require.Equal(t, "raw", CodecRaw.String())
	require.Equal(t, "json", CodecJSON.String())
	require.Equal(t, "msgpack", CodecMsgPack.String())
	require.Equal(t, "dag-cbor", CodecCbor.String())
	require.Equal(t, "unknown", Codec(0xDEAD).String())
}
