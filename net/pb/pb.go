// Copyright 2023 Kepler Network Contributors
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

// Package pb holds the wire messages for the RPC surface the collaborative
// stream and block-exchange sub-protocols run over (net/rpcserver.go),
// mirroring the shape of the teacher's generated net/pb package but
// hand-written against gogo/protobuf's reflection-based Marshal/Unmarshal
// (no protoc invocation is available in this environment; see DESIGN.md).
package pb

import (
	"context"

	"github.com/gogo/protobuf/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// PushLogRequest announces a newly appended collaborative-stream entry to a
// replica peer.
type PushLogRequest struct {
	DocId    []byte `protobuf:"bytes,1,opt,name=doc_id,json=docId,proto3" json:"doc_id,omitempty"`
	StreamId []byte `protobuf:"bytes,2,opt,name=stream_id,json=streamId,proto3" json:"stream_id,omitempty"`
	Cid      []byte `protobuf:"bytes,3,opt,name=cid,proto3" json:"cid,omitempty"`
	Block    []byte `protobuf:"bytes,4,opt,name=block,proto3" json:"block,omitempty"`
	Offset   uint64 `protobuf:"varint,5,opt,name=offset,proto3" json:"offset,omitempty"`
}

func (m *PushLogRequest) Reset()         { *m = PushLogRequest{} }
func (m *PushLogRequest) String() string { return proto.CompactTextString(m) }
func (*PushLogRequest) ProtoMessage()    {}

// PushLogReply acknowledges a PushLogRequest.
type PushLogReply struct{}

func (m *PushLogReply) Reset()         { *m = PushLogReply{} }
func (m *PushLogReply) String() string { return proto.CompactTextString(m) }
func (*PushLogReply) ProtoMessage()    {}

// GetHeadRequest asks a peer for the current head of a stream.
type GetHeadRequest struct {
	StreamId []byte `protobuf:"bytes,1,opt,name=stream_id,json=streamId,proto3" json:"stream_id,omitempty"`
}

func (m *GetHeadRequest) Reset()         { *m = GetHeadRequest{} }
func (m *GetHeadRequest) String() string { return proto.CompactTextString(m) }
func (*GetHeadRequest) ProtoMessage()    {}

// GetHeadReply carries the signed head bytes, or none if unknown.
type GetHeadReply struct {
	SignedHead []byte `protobuf:"bytes,1,opt,name=signed_head,json=signedHead,proto3" json:"signed_head,omitempty"`
}

func (m *GetHeadReply) Reset()         { *m = GetHeadReply{} }
func (m *GetHeadReply) String() string { return proto.CompactTextString(m) }
func (*GetHeadReply) ProtoMessage()    {}

func init() {
	proto.RegisterType((*PushLogRequest)(nil), "orbitd.net.pb.PushLogRequest")
	proto.RegisterType((*PushLogReply)(nil), "orbitd.net.pb.PushLogReply")
	proto.RegisterType((*GetHeadRequest)(nil), "orbitd.net.pb.GetHeadRequest")
	proto.RegisterType((*GetHeadReply)(nil), "orbitd.net.pb.GetHeadReply")
}

// PushLogServiceServer is the RPC surface a replica peer calls into: push a
// newly appended log entry, or ask for a stream's current head. Hand-written
// in place of a protoc-generated *_grpc.pb.go (no protoc invocation is
// available in this environment; see DESIGN.md), following the same
// service-interface shape protoc-gen-go-grpc would produce.
type PushLogServiceServer interface {
	PushLog(context.Context, *PushLogRequest) (*PushLogReply, error)
	GetHead(context.Context, *GetHeadRequest) (*GetHeadReply, error)
}

// UnimplementedPushLogServiceServer can be embedded to have forward
// compatible implementations, matching protoc-gen-go-grpc's convention.
type UnimplementedPushLogServiceServer struct{}

func (UnimplementedPushLogServiceServer) PushLog(context.Context, *PushLogRequest) (*PushLogReply, error) {
	return nil, grpcUnimplemented("PushLog")
}

func (UnimplementedPushLogServiceServer) GetHead(context.Context, *GetHeadRequest) (*GetHeadReply, error) {
	return nil, grpcUnimplemented("GetHead")
}

func grpcUnimplemented(method string) error {
	return status.Errorf(codes.Unimplemented, "method %s not implemented", method)
}

func _PushLogService_PushLog_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(PushLogRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PushLogServiceServer).PushLog(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/orbitd.net.pb.PushLogService/PushLog"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PushLogServiceServer).PushLog(ctx, req.(*PushLogRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _PushLogService_GetHead_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetHeadRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PushLogServiceServer).GetHead(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/orbitd.net.pb.PushLogService/GetHead"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PushLogServiceServer).GetHead(ctx, req.(*GetHeadRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// pushLogServiceDesc mirrors what protoc-gen-go-grpc emits as
// _PushLogService_serviceDesc.
var pushLogServiceDesc = grpc.ServiceDesc{
	ServiceName: "orbitd.net.pb.PushLogService",
	HandlerType: (*PushLogServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "PushLog", Handler: _PushLogService_PushLog_Handler},
		{MethodName: "GetHead", Handler: _PushLogService_GetHead_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "orbitd/net/pb/net.proto",
}

// RegisterPushLogServiceServer registers srv against s, mirroring
// protoc-gen-go-grpc's generated registration function.
func RegisterPushLogServiceServer(s grpc.ServiceRegistrar, srv PushLogServiceServer) {
	s.RegisterService(&pushLogServiceDesc, srv)
}
