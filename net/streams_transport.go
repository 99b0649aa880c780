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
	"net"

	gostream "github.com/libp2p/go-libp2p-gostream"
	"github.com/libp2p/go-libp2p/core/host"
	corenet "github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
)

// rpcProtocol is the libp2p stream protocol the collaborative-stream and
// block-exchange RPC surface (net/rpcserver.go) runs over, mirroring the
// teacher's net/peer.go corenet.Protocol.
const rpcProtocol corenet.ProtocolID = "/orbitd/rpc/0.1.0"

// listenRPC wraps h's stream handler for rpcProtocol as a net.Listener, so a
// standard net/rpc-style server (grpc.Server in our case) can Serve() it
// exactly as it would a TCP listener, matching the teacher's
// gostream.Listen(p.host, corenet.Protocol) call in net/peer.go.
func listenRPC(h host.Host) (net.Listener, error) {
	return gostream.Listen(h, rpcProtocol)
}

// dialRPC opens a stream to p's RPC protocol handler and wraps it as a
// net.Conn, for use as a grpc.ClientConn dial target via a custom dialer.
func dialRPC(ctx context.Context, h host.Host, p peer.ID) (net.Conn, error) {
	return gostream.Dial(ctx, h, p, rpcProtocol)
}
