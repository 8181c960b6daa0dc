// Package grpcstream exposes the push channel as a gRPC server stream. Messages travel as
// google.protobuf.Struct values carrying the same JSON envelope the WebSocket channel sends.
package grpcstream

import (
	"log/slog"

	"github.com/buppyai/puppy-station/internal/broadcast"
	"github.com/buppyai/puppy-station/internal/fleet"
	"github.com/buppyai/puppy-station/pkg/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName     = "puppystation.v1.FleetStream"
	SubscribeMethod = "/" + ServiceName + "/Subscribe"
)

// FleetStreamServer is the server API of puppystation.v1.FleetStream.
//
//	service FleetStream {
//	  rpc Subscribe(google.protobuf.Empty) returns (stream google.protobuf.Struct);
//	}
type FleetStreamServer interface {
	Subscribe(*emptypb.Empty, grpc.ServerStream) error
}

// ServiceDesc describes FleetStream for grpc.Server.RegisterService and ClientConn.NewStream.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FleetStreamServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			Handler:       subscribeHandler,
			ServerStreams: true,
		},
	},
	Metadata: "puppystation/v1/fleet_stream.proto",
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(FleetStreamServer).Subscribe(in, stream)
}

// Register adds srv to s.
func Register(s *grpc.Server, srv FleetStreamServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Server streams an init snapshot followed by every hub message.
type Server struct {
	Fleet         *fleet.Service
	Hub           *broadcast.Hub
	ActivityLimit int
	Log           *slog.Logger
}

var _ FleetStreamServer = (*Server)(nil)

// Subscribe follows the same protocol as the WebSocket handler: subscribe, send init, forward.
func (s *Server) Subscribe(_ *emptypb.Empty, stream grpc.ServerStream) error {
	if s.Fleet == nil || s.Hub == nil {
		return status.Error(codes.Internal, "fleet stream not configured")
	}
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	ctx := stream.Context()

	sub := s.Hub.Subscribe("grpc")
	defer s.Hub.Unsubscribe(sub)

	snap, err := s.Fleet.Snapshot(ctx, s.ActivityLimit)
	if err != nil {
		log.Error("grpc snapshot failed", "err", err)
		return status.Error(codes.Internal, "snapshot failed")
	}
	init, err := s.Hub.Encode(models.MsgInit, snap.Seq, snap)
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	if err := send(stream, init); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.C:
			if !ok {
				return status.Error(codes.Unavailable, "subscriber dropped")
			}
			if err := send(stream, msg); err != nil {
				log.Debug("grpc send failed", "subscriber", sub.ID, "err", err)
				return err
			}
		}
	}
}

func send(stream grpc.ServerStream, msg []byte) error {
	var st structpb.Struct
	if err := protojson.Unmarshal(msg, &st); err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	return stream.SendMsg(&st)
}
