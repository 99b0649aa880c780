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
	"sync"

	ipld "github.com/ipfs/go-ipld-format"
	dag "github.com/ipfs/go-merkledag"
	"github.com/libp2p/go-libp2p/core/host"
	libpeer "github.com/libp2p/go-libp2p/core/peer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/keplernet/orbitd/errors"
	"github.com/keplernet/orbitd/logging"
	"github.com/keplernet/orbitd/net/pb"
)

// rpcServer implements pb's PushLog/GetHead RPCs over a grpc.Server dialed
// through the libp2p host's own rpcProtocol stream, mirroring the teacher's
// net/server.go server type and its docQueue concurrency guard.
type rpcServer struct {
	pb.UnimplementedPushLogServiceServer

	b    *Behaviour
	opts []grpc.DialOption

	mu    sync.Mutex
	conns map[libpeer.ID]*grpc.ClientConn

	docQueue *docQueue
}

// docQueue serialises concurrent PushLog handling for the same document, to
// avoid redundant DAG writes racing each other, exactly as the teacher's
// docQueue prevents concurrent processing of the same DocKey.
type docQueue struct {
	mu   sync.Mutex
	docs map[string]chan struct{}
}

func (dq *docQueue) add(doc string) {
	dq.mu.Lock()
	done, ok := dq.docs[doc]
	if !ok {
		dq.docs[doc] = make(chan struct{})
	}
	dq.mu.Unlock()
	if ok {
		<-done
		dq.add(doc)
	}
}

func (dq *docQueue) done(doc string) {
	dq.mu.Lock()
	defer dq.mu.Unlock()
	if done, ok := dq.docs[doc]; ok {
		delete(dq.docs, doc)
		close(done)
	}
}

// newRPCServer constructs the RPC server and its libp2p-stream dial options.
func newRPCServer(b *Behaviour) *rpcServer {
	s := &rpcServer{
		b:        b,
		conns:    make(map[libpeer.ID]*grpc.ClientConn),
		docQueue: &docQueue{docs: make(map[string]chan struct{})},
	}
	s.opts = []grpc.DialOption{
		s.libp2pDialer(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	return s
}

// libp2pDialer returns a grpc.DialOption that resolves a dial target (a
// peer id string) to a libp2p stream over rpcProtocol, so grpc.Dial can be
// pointed at a peer id directly instead of a host:port address.
func (s *rpcServer) libp2pDialer() grpc.DialOption {
	return grpc.WithContextDialer(func(ctx context.Context, target string) (net.Conn, error) {
		pid, err := libpeer.Decode(target)
		if err != nil {
			return nil, errors.Wrap("invalid rpc dial target", err)
		}
		return dialRPC(ctx, s.b.host, pid)
	})
}

// dialPeer returns a cached (or freshly dialed) grpc.ClientConn to p's RPC
// surface.
func (s *rpcServer) dialPeer(p libpeer.ID) (*grpc.ClientConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conns[p]; ok {
		return c, nil
	}
	c, err := grpc.Dial(p.String(), s.opts...)
	if err != nil {
		return nil, errors.Wrap("failed to dial peer rpc", err)
	}
	s.conns[p] = c
	return c, nil
}

// serve starts the grpc.Server on the host's rpcProtocol stream listener.
// Returns the grpc.Server so the caller can register additional services
// and call GracefulStop on shutdown.
func (s *rpcServer) serve(h host.Host) (*grpc.Server, error) {
	listener, err := listenRPC(h)
	if err != nil {
		return nil, errors.Wrap("failed to open rpc listener", err)
	}
	srv := grpc.NewServer()
	pb.RegisterPushLogServiceServer(srv, s)
	go func() {
		if err := srv.Serve(listener); err != nil {
			log.Debug(context.Background(), "rpc server stopped", logging.NewKV("Error", err))
		}
	}()
	return srv, nil
}

// PushLog accepts a remote collaborative-stream append announcement,
// serialising concurrent handling per document via docQueue, and adds the
// block to the local DAG before acknowledging. The stream store's entries
// and heads are not updated.
func (s *rpcServer) PushLog(ctx context.Context, req *pb.PushLogRequest) (*pb.PushLogReply, error) {
	doc := string(req.DocId)
	s.docQueue.add(doc)
	defer s.docQueue.done(doc)

	want, err := DecodeCid(string(req.Cid))
	if err != nil {
		return nil, errors.Wrap("invalid cid in push log request", err)
	}

	node := dagNodeFromBlock(req.Block)
	if !node.Cid().Equals(want) {
		return nil, errors.New("pushed block does not hash to the advertised cid")
	}
	if err := s.b.dag.Add(ctx, node); err != nil {
		return nil, errors.Wrap("failed to add pushed block to dag", err)
	}

	log.Debug(ctx, "received push log", logging.NewKV("DocId", doc), logging.NewKV("StreamId", string(req.StreamId)))
	return &pb.PushLogReply{}, nil
}

// GetHead returns the current signed head of a stream, CBOR-encoded.
func (s *rpcServer) GetHead(ctx context.Context, req *pb.GetHeadRequest) (*pb.GetHeadReply, error) {
	sh, ok := s.b.streams.Head(StreamId(req.StreamId))
	if !ok {
		return &pb.GetHeadReply{}, nil
	}
	encoded, err := encodeCBOR(sh)
	if err != nil {
		return nil, errors.Wrap("failed to encode signed head", err)
	}
	return &pb.GetHeadReply{SignedHead: encoded}, nil
}

// dagNodeFromBlock wraps raw block bytes as an ipld.Node the same way
// streamStore.append does for locally-produced blocks, so pushed and
// locally-written blocks end up with identical node construction.
func dagNodeFromBlock(block []byte) ipld.Node {
	return dag.NodeWithData(block)
}
