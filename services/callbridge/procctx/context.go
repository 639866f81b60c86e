// Package procctx owns the process-wide state shared by every component:
// the call registry, the account, the reachability flags, the settings
// document and the outbound event path.
package procctx

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sebas/callbridge/services/callbridge/account"
	"github.com/sebas/callbridge/services/callbridge/conference"
	"github.com/sebas/callbridge/services/callbridge/events"
	"github.com/sebas/callbridge/services/callbridge/platform"
	"github.com/sebas/callbridge/services/callbridge/reachability"
	"github.com/sebas/callbridge/services/callbridge/registry"
	"github.com/sebas/callbridge/services/callbridge/settings"
	"github.com/sebas/callbridge/services/callbridge/wake"
)

// Options configures a Context
type Options struct {
	Platform platform.Platform
	// SettingsStore persists the settings document; memory when nil
	SettingsStore settings.Store
	// Defaults apply underneath the stored settings
	Defaults            settings.Settings
	NodeID              string
	Component           string
	ReachabilityTimeout time.Duration
	WakeLease           time.Duration
	// Publishers are subscribed to the broadcaster from the start
	Publishers []events.Publisher
}

// Context is the single process-wide state owner. mu is the process mutex:
// every compound read-modify-write of the registry or the global flags runs
// under it.
type Context struct {
	mu sync.Mutex

	Platform     platform.Platform
	Registry     registry.Store
	Accounts     *account.Registrar
	Reachability *reachability.Monitor
	Settings     *settings.Manager
	Events       *events.Broadcaster
	Builder      *events.Builder
	Waker        *wake.Waker
	Conferences  *conference.Registry

	defaults settings.Settings
}

// New wires the components together.
func New(opts Options) *Context {
	if opts.NodeID == "" {
		opts.NodeID = uuid.NewString()[:8]
	}

	builder := events.NewBuilder(opts.NodeID)
	bus := events.NewBroadcaster(opts.Publishers...)
	waker := wake.New(opts.Platform, bus.PublishAsync, builder, wake.Options{LeaseTTL: opts.WakeLease})
	monitor := reachability.NewMonitor(reachability.Options{
		Timeout: opts.ReachabilityTimeout,
		Emit:    bus.PublishAsync,
		Builder: builder,
		OnTimeout: func(callID string, extras map[string]any) {
			waker.Wake(callID, extras)
		},
	})

	return &Context{
		Platform:     opts.Platform,
		Registry:     registry.New(),
		Accounts:     account.NewRegistrar(opts.Platform, opts.Component),
		Reachability: monitor,
		Settings:     settings.NewManager(opts.SettingsStore),
		Events:       bus,
		Builder:      builder,
		Waker:        waker,
		Conferences:  conference.NewRegistry(),
		defaults:     opts.Defaults.Clone(),
	}
}

// Do runs fn under the process mutex.
func (c *Context) Do(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn()
}

// Emit queues an outbound event.
func (c *Context) Emit(ev events.Event) {
	c.Events.PublishAsync(ev)
}

// Options returns the effective settings: the stored document over the
// static defaults.
func (c *Context) Options(ctx context.Context) settings.Settings {
	return c.defaults.Merge(c.Settings.Get(ctx))
}

// Reset returns the process to its pre-setup state. Sessions must already
// be disconnected; anything left in the registry is dropped.
func (c *Context) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := c.Registry.ClearAll()
	c.Accounts.Reset()
	c.Reachability.Reset()
	c.Conferences.Reset()
	c.Settings.Invalidate()
	slog.Info("[Context] Reset", "dropped_sessions", len(dropped))
}

// Close stops background work and releases held resources.
func (c *Context) Close() error {
	c.Reachability.Reset()
	c.Waker.Close()
	return errors.Join(c.Events.Close(), c.Settings.Close())
}
