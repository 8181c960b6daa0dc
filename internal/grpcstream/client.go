package grpcstream

import (
	"context"
	"encoding/json"

	"github.com/buppyai/puppy-station/pkg/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client is a FleetStream client.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to addr (e.g. "localhost:3549"). Without options the connection is plaintext.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// Stream is one open Subscribe call.
type Stream struct {
	cs     grpc.ClientStream
	cancel context.CancelFunc
}

// Subscribe opens the stream. The first message is init.
func (c *Client) Subscribe(ctx context.Context) (*Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	cs, err := c.conn.NewStream(ctx, &ServiceDesc.Streams[0], SubscribeMethod)
	if err != nil {
		cancel()
		return nil, err
	}
	if err := cs.SendMsg(&emptypb.Empty{}); err != nil {
		cancel()
		return nil, err
	}
	if err := cs.CloseSend(); err != nil {
		cancel()
		return nil, err
	}
	return &Stream{cs: cs, cancel: cancel}, nil
}

// Next blocks for the next message. The stream's lifetime is bound to the Subscribe context;
// ctx is only checked before receiving.
func (s *Stream) Next(ctx context.Context) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}
	var st structpb.Struct
	if err := s.cs.RecvMsg(&st); err != nil {
		return models.Message{}, err
	}
	b, err := protojson.Marshal(&st)
	if err != nil {
		return models.Message{}, err
	}
	var m models.Message
	err = json.Unmarshal(b, &m)
	return m, err
}

// Close cancels the call.
func (s *Stream) Close() error {
	s.cancel()
	return nil
}
