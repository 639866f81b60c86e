package transport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"
)

// ClientConfig holds gRPC client configuration
type ClientConfig struct {
	Address           string
	KeepaliveInterval time.Duration
	KeepaliveTimeout  time.Duration
}

// DefaultClientConfig returns sensible defaults
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Address:           "localhost:50070",
		KeepaliveInterval: 30 * time.Second,
		KeepaliveTimeout:  10 * time.Second,
	}
}

// Client calls a remote Bridge service.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client for cfg.Address. extra options are appended to
// the defaults.
func Dial(cfg ClientConfig, extra ...grpc.DialOption) (*Client, error) {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                cfg.KeepaliveInterval,
			Timeout:             cfg.KeepaliveTimeout,
			PermitWithoutStream: true,
		}),
	}
	conn, err := grpc.NewClient(cfg.Address, append(opts, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", cfg.Address, err)
	}
	slog.Debug("[gRPC] Client created", "address", cfg.Address)
	return &Client{conn: conn}, nil
}

// Invoke runs method with args and returns the decoded result.
func (c *Client) Invoke(ctx context.Context, method string, args map[string]any) (any, error) {
	if args == nil {
		args = map[string]any{}
	}
	req, err := structpb.NewStruct(map[string]any{"method": method, "args": args})
	if err != nil {
		return nil, fmt.Errorf("encode %s args: %w", method, err)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, InvokeMethod, req, out); err != nil {
		return nil, err
	}
	return out.GetFields()["result"].AsInterface(), nil
}

// Event is one streamed event
type Event struct {
	Type    string
	Subject string
	Body    map[string]any
}

// EventStream receives events from the server.
type EventStream struct {
	stream grpc.ClientStream
}

// Events opens an event stream. filter is a subject pattern; empty
// matches everything.
func (c *Client) Events(ctx context.Context, filter string) (*EventStream, error) {
	stream, err := c.conn.NewStream(ctx, &serviceDesc.Streams[0], EventsMethod)
	if err != nil {
		return nil, fmt.Errorf("open event stream: %w", err)
	}
	req, err := structpb.NewStruct(map[string]any{"filter": filter})
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, fmt.Errorf("send event filter: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &EventStream{stream: stream}, nil
}

// Recv blocks for the next event. It returns io.EOF when the server ends
// the stream.
func (s *EventStream) Recv() (Event, error) {
	msg := new(structpb.Struct)
	if err := s.stream.RecvMsg(msg); err != nil {
		return Event{}, err
	}
	fields := msg.GetFields()
	return Event{
		Type:    fields["event"].GetStringValue(),
		Subject: fields["subject"].GetStringValue(),
		Body:    fields["body"].GetStructValue().AsMap(),
	}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
