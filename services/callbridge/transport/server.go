package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/sebas/callbridge/services/callbridge/bridge"
	"github.com/sebas/callbridge/services/callbridge/events"
	"github.com/sebas/callbridge/services/callbridge/session"
	"github.com/sebas/callbridge/services/callbridge/settings"
)

// DefaultEventFilter matches every event.
const DefaultEventFilter = events.SubjectPrefix + ".>"

type handlerFunc func(ctx context.Context, args Args) (any, error)

// ServerConfig configures a Server
type ServerConfig struct {
	// RateLimitRPS and RateLimitBurst bound each command; zero disables limiting
	RateLimitRPS   float64
	RateLimitBurst int
	// EventBuffer is the per-stream event buffer
	EventBuffer int
}

// Server serves the Bridge service.
type Server struct {
	bridge   *bridge.Bridge
	bus      *events.Broadcaster
	limiter  *RateLimiter
	buffer   int
	handlers map[string]handlerFunc
	grpc     *grpc.Server
}

var _ BridgeServer = (*Server)(nil)

// NewServer creates a Server and its grpc.Server.
func NewServer(b *bridge.Bridge, bus *events.Broadcaster, cfg ServerConfig) *Server {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 256
	}
	s := &Server{
		bridge:  b,
		bus:     bus,
		limiter: NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		buffer:  cfg.EventBuffer,
	}
	s.handlers = s.routes()
	s.grpc = grpc.NewServer(
		grpc.UnaryInterceptor(s.limiter.UnaryInterceptor()),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{PermitWithoutStream: true}),
	)
	RegisterBridgeServer(s.grpc, s)
	return s
}

// Serve accepts connections on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	slog.Info("[gRPC] Serving", "address", lis.Addr().String())
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func (s *Server) Stop() {
	s.grpc.GracefulStop()
}

// Shutdown stops gracefully and forces open streams closed once ctx ends.
func (s *Server) Shutdown(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpc.Stop()
		<-done
	}
}

// Methods returns the supported command names.
func (s *Server) Methods() []string {
	out := make([]string, 0, len(s.handlers))
	for m := range s.handlers {
		out = append(out, m)
	}
	return out
}

func (s *Server) Invoke(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.AsMap()
	method, _ := fields["method"].(string)
	args, _ := fields["args"].(map[string]any)

	h, ok := s.handlers[method]
	if !ok {
		return nil, status.Errorf(codes.Unimplemented, "unknown method %q", method)
	}

	slog.Debug("[gRPC] Invoke", "method", method)
	result, err := h(ctx, Args(args))
	if err != nil {
		slog.Debug("[gRPC] Invoke failed", "method", method, "error", err)
		return nil, toStatus(err)
	}

	out, err := structpb.NewStruct(map[string]any{"result": normalize(result)})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode result of %s: %v", method, err)
	}
	return out, nil
}

// Events streams every event matching the request's filter until the
// client goes away or the broadcaster closes. A client that falls more than
// the stream buffer behind loses its stream with ResourceExhausted, so it
// never sees a stream with gaps; it is expected to resubscribe and resync
// through activeCalls.
func (s *Server) Events(req *structpb.Struct, stream grpc.ServerStream) error {
	filter := req.GetFields()["filter"].GetStringValue()
	if filter == "" {
		filter = DefaultEventFilter
	}

	ch := events.NewChannelPublisher(s.buffer)
	unsubscribe := s.bus.Subscribe(events.NewFilterPublisher(filter, ch))
	defer func() {
		unsubscribe()
		_ = ch.Close()
	}()
	slog.Info("[gRPC] Event stream opened", "filter", filter)

	ctx := stream.Context()
	for {
		if dropped := ch.DroppedCount(); dropped > 0 {
			slog.Warn("[gRPC] Event stream overflowed, closing", "filter", filter, "dropped", dropped)
			return status.Errorf(codes.ResourceExhausted, "event stream fell %d events behind", dropped)
		}
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch.Events():
			if !ok {
				return nil
			}
			msg, err := encodeEvent(ev)
			if err != nil {
				slog.Warn("[gRPC] Cannot encode event", "type", ev.Type(), "error", err)
				continue
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

func encodeEvent(ev events.Event) (*structpb.Struct, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	return structpb.NewStruct(map[string]any{
		"event":   string(ev.Type()),
		"subject": ev.Subject(),
		"body":    body,
	})
}

// toStatus maps command errors onto gRPC codes.
func toStatus(err error) error {
	var cerr *bridge.CommandError
	switch {
	case errors.As(err, &cerr):
		return status.Error(codes.FailedPrecondition, cerr.Code)
	case errors.Is(err, session.ErrInvalidDigit):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codes.Internal, err.Error())
}

// normalize converts results into values structpb accepts.
func normalize(v any) any {
	switch t := v.(type) {
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case settings.Settings:
		return map[string]any(t)
	}
	return v
}

func (s *Server) routes() map[string]handlerFunc {
	b := s.bridge
	uuidCmd := func(fn func(id string) error) handlerFunc {
		return func(ctx context.Context, a Args) (any, error) {
			if err := a.Require("uuid"); err != nil {
				return nil, err
			}
			return nil, fn(a.String("uuid"))
		}
	}

	return map[string]handlerFunc{
		"setup": func(ctx context.Context, a Args) (any, error) {
			return nil, b.Setup(ctx, settings.Settings(a.Map("options")))
		},
		"displayIncomingCall": func(ctx context.Context, a Args) (any, error) {
			if err := a.Require("uuid", "handle"); err != nil {
				return nil, err
			}
			return nil, b.DisplayIncomingCall(ctx, a.String("uuid"), a.String("handle"), a.String("callerName"), a.Map("additionalData"))
		},
		"startCall": func(ctx context.Context, a Args) (any, error) {
			if err := a.Require("uuid", "handle"); err != nil {
				return nil, err
			}
			return nil, b.StartCall(ctx, a.String("uuid"), a.String("handle"), a.String("callerName"), a.Map("additionalData"))
		},
		"answerIncomingCall":        uuidCmd(b.Answer),
		"endCall":                   uuidCmd(b.End),
		"rejectCall":                uuidCmd(b.Reject),
		"reportStartedCallWithUUID": uuidCmd(b.ReportExternalStart),
		"setCurrentCallActive":      uuidCmd(b.SetCurrentCallActive),
		"endAllCalls": func(ctx context.Context, a Args) (any, error) {
			return b.EndAll(), nil
		},
		"setOnHold": func(ctx context.Context, a Args) (any, error) {
			if err := a.Require("uuid"); err != nil {
				return nil, err
			}
			return nil, b.SetHold(a.String("uuid"), a.Bool("hold"))
		},
		"setMutedCall": func(ctx context.Context, a Args) (any, error) {
			if err := a.Require("uuid"); err != nil {
				return nil, err
			}
			return nil, b.SetMuted(a.String("uuid"), a.Bool("muted"))
		},
		"setCallAudio": func(ctx context.Context, a Args) (any, error) {
			if err := a.Require("uuid", "audioRoute"); err != nil {
				return nil, err
			}
			return nil, b.SetAudioRoute(a.String("uuid"), a.Int("audioRoute"))
		},
		"sendDTMF": func(ctx context.Context, a Args) (any, error) {
			if err := a.Require("uuid", "key"); err != nil {
				return nil, err
			}
			return nil, b.SendDTMF(a.String("uuid"), a.String("key"))
		},
		"updateDisplay": func(ctx context.Context, a Args) (any, error) {
			if err := a.Require("uuid"); err != nil {
				return nil, err
			}
			return nil, b.UpdateDisplay(a.String("uuid"), a.String("callerName"), a.String("handle"))
		},
		"reportEndCallWithUUID": func(ctx context.Context, a Args) (any, error) {
			if err := a.Require("uuid"); err != nil {
				return nil, err
			}
			return nil, b.ReportExternalEnd(a.String("uuid"), a.Int("reason"), a.Bool("notify"))
		},
		"hasPhoneAccount": func(ctx context.Context, a Args) (any, error) {
			return b.HasAccount(), nil
		},
		"hasOutgoingCall": func(ctx context.Context, a Args) (any, error) {
			return b.HasActiveOutgoing(), nil
		},
		"hasPermissions": func(ctx context.Context, a Args) (any, error) {
			return b.HasPermissions(), nil
		},
		"requestPermissions": func(ctx context.Context, a Args) (any, error) {
			granted, denied, err := b.RequestPermissions(ctx, a.Strings("additionalPermissions"))
			if err != nil {
				return nil, err
			}
			return map[string]any{"granted": granted, "denied": normalize(denied)}, nil
		},
		"checkDefaultPhoneAccount": func(ctx context.Context, a Args) (any, error) {
			return b.CheckDefaultAccount(ctx), nil
		},
		"setAvailable": func(ctx context.Context, a Args) (any, error) {
			b.SetAvailable(a.Bool("available"))
			return nil, nil
		},
		"setReachable": func(ctx context.Context, a Args) (any, error) {
			if a.Has("reachable") && !a.Bool("reachable") {
				return nil, nil
			}
			b.SetReachable()
			return nil, nil
		},
		"openPhoneAccounts": func(ctx context.Context, a Args) (any, error) {
			return nil, b.RequestAccountUI()
		},
		"backToForeground": func(ctx context.Context, a Args) (any, error) {
			return b.RequestForeground()
		},
		"foregroundService": func(ctx context.Context, a Args) (any, error) {
			return nil, b.UpdateForegroundSettings(ctx, settings.Settings(a.Map("settings")))
		},
		"isCallActive": func(ctx context.Context, a Args) (any, error) {
			return b.IsActive(a.String("uuid")), nil
		},
		"activeCalls": func(ctx context.Context, a Args) (any, error) {
			return normalize(b.ActiveIDs()), nil
		},
		"dispose": func(ctx context.Context, a Args) (any, error) {
			b.Dispose()
			return nil, nil
		},
	}
}
