// Package app assembles the bridge components and runs the gRPC and HTTP
// servers.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sebas/callbridge/services/callbridge/api"
	"github.com/sebas/callbridge/services/callbridge/bridge"
	"github.com/sebas/callbridge/services/callbridge/config"
	"github.com/sebas/callbridge/services/callbridge/coordinator"
	"github.com/sebas/callbridge/services/callbridge/events"
	"github.com/sebas/callbridge/services/callbridge/metrics"
	"github.com/sebas/callbridge/services/callbridge/platform"
	"github.com/sebas/callbridge/services/callbridge/procctx"
	"github.com/sebas/callbridge/services/callbridge/settings"
	"github.com/sebas/callbridge/services/callbridge/transport"
)

// ShutdownTimeout bounds how long Run waits for servers to drain
const ShutdownTimeout = 5 * time.Second

// CallBridge owns every component of a running bridge.
type CallBridge struct {
	config    *config.Config
	platform  *platform.Loopback
	pc        *procctx.Context
	coord     *coordinator.Coordinator
	bridge    *bridge.Bridge
	metrics   *metrics.Metrics
	rpcServer *transport.Server
	apiServer *api.Server
}

// New builds the bridge on the in-process loopback platform.
func New(ctx context.Context, cfg *config.Config) (*CallBridge, error) {
	store, err := NewSettingsStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	nodeID := cfg.NodeID
	if nodeID == "" {
		nodeID = uuid.NewString()[:8]
	}

	lb := platform.NewLoopback(platform.LoopbackConfig{
		APILevel:     cfg.Platform.APILevel,
		Manufacturer: cfg.Platform.Manufacturer,
		AppName:      cfg.Platform.AppName,
		Running:      cfg.Platform.Running,
		HasActivity:  cfg.Platform.HasActivity,
		HasSIM:       cfg.Platform.HasSIM,
	})

	pc := procctx.New(procctx.Options{
		Platform:            lb,
		SettingsStore:       store,
		NodeID:              nodeID,
		Component:           cfg.Component,
		ReachabilityTimeout: cfg.ReachabilityTimeout,
		WakeLease:           cfg.WakeLease,
		Publishers:          []events.Publisher{events.NewLoggingPublisher(slog.Default())},
	})

	coord := coordinator.New(pc)
	lb.Attach(coord)

	m := metrics.New(metrics.Sources{
		ActiveSessions:       pc.Registry.Len,
		Wakeups:              pc.Waker.Count,
		ReachabilityTimeouts: pc.Reachability.Timeouts,
		Subscribers:          pc.Events.SubscriberCount,
	})
	pc.Events.Subscribe(m)

	b := bridge.New(coord)
	cb := &CallBridge{
		config:   cfg,
		platform: lb,
		pc:       pc,
		coord:    coord,
		bridge:   b,
		metrics:  m,
		rpcServer: transport.NewServer(b, pc.Events, transport.ServerConfig{
			RateLimitRPS:   cfg.RateLimitRPS,
			RateLimitBurst: cfg.RateLimitBurst,
			EventBuffer:    cfg.EventBuffer,
		}),
		apiServer: api.NewServer(cfg.HTTPAddr, coord, m.Handler(), nodeID),
	}

	slog.Info("[App] Components ready",
		"node_id", nodeID,
		"settings_backend", cfg.SettingsBackend,
		"api_level", cfg.Platform.APILevel,
		"reachability_timeout", cfg.ReachabilityTimeout,
	)
	return cb, nil
}

// NewSettingsStore opens the configured settings backend.
func NewSettingsStore(ctx context.Context, cfg *config.Config) (settings.Store, error) {
	switch cfg.SettingsBackend {
	case config.BackendMemory:
		return settings.NewMemoryStore(), nil
	case config.BackendRedis:
		store, err := settings.NewRedisStore(ctx, cfg.RedisOptions())
		if err != nil {
			return nil, fmt.Errorf("open redis settings store: %w", err)
		}
		return store, nil
	case config.BackendFile, "":
		return settings.NewFileStore(cfg.SettingsPath), nil
	default:
		return nil, fmt.Errorf("unknown settings backend %q", cfg.SettingsBackend)
	}
}

func (a *CallBridge) Bridge() *bridge.Bridge                { return a.bridge }
func (a *CallBridge) Platform() *platform.Loopback           { return a.platform }
func (a *CallBridge) Context() *procctx.Context              { return a.pc }
func (a *CallBridge) Metrics() *metrics.Metrics              { return a.metrics }
func (a *CallBridge) Coordinator() *coordinator.Coordinator { return a.coord }

// ApplySetup runs the account setup with the options in the configured
// setup file. Without a file nothing happens.
func (a *CallBridge) ApplySetup(ctx context.Context) error {
	if a.config.SetupFile == "" {
		return nil
	}
	opts, err := config.LoadSetup(a.config.SetupFile)
	if err != nil {
		return err
	}
	if err := a.bridge.Setup(ctx, opts); err != nil {
		return fmt.Errorf("apply setup from %s: %w", a.config.SetupFile, err)
	}
	return nil
}

// Run listens on the configured addresses and serves until ctx ends.
func (a *CallBridge) Run(ctx context.Context) error {
	grpcLis, err := net.Listen("tcp", a.config.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc %s: %w", a.config.GRPCAddr, err)
	}
	httpLis, err := net.Listen("tcp", a.config.HTTPAddr)
	if err != nil {
		grpcLis.Close()
		return fmt.Errorf("listen http %s: %w", a.config.HTTPAddr, err)
	}
	return a.Serve(ctx, grpcLis, httpLis)
}

// Serve runs both servers on the given listeners until ctx ends or one of
// them fails. A reachability check goes out to the application first.
func (a *CallBridge) Serve(ctx context.Context, grpcLis, httpLis net.Listener) error {
	slog.Debug("[App] Checking application reachability")
	a.pc.Reachability.Ping()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.rpcServer.Serve(grpcLis)
	})
	g.Go(func() error {
		return a.apiServer.Serve(httpLis)
	})
	g.Go(func() error {
		<-gCtx.Done()
		slog.Info("[App] Shutting down servers")

		stopCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		a.rpcServer.Shutdown(stopCtx)
		return a.apiServer.Stop(stopCtx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close ends every call and releases the process context.
func (a *CallBridge) Close() error {
	if ended := a.coord.EndAll(); len(ended) > 0 {
		slog.Info("[App] Ended calls on shutdown", "count", len(ended))
	}
	return a.pc.Close()
}
