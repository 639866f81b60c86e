// Package bridge is the command surface the application drives. Commands
// that affect sessions are no-ops until the connection service is
// available and an account is active.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/sebas/callbridge/services/callbridge/coordinator"
	"github.com/sebas/callbridge/services/callbridge/platform"
	"github.com/sebas/callbridge/services/callbridge/procctx"
	"github.com/sebas/callbridge/services/callbridge/session"
	"github.com/sebas/callbridge/services/callbridge/settings"
)

// Bridge executes application commands.
type Bridge struct {
	coord *coordinator.Coordinator
	pc    *procctx.Context

	mu         sync.Mutex
	setupDone  bool
	extraPerms []string
}

func New(coord *coordinator.Coordinator) *Bridge {
	return &Bridge{coord: coord, pc: coord.Context()}
}

// ready gates every session-affecting command.
func (b *Bridge) ready() bool {
	return b.pc.Accounts.ServiceAvailable() && b.pc.Accounts.HasActiveAccount()
}

// Setup stores opts, registers the account and marks the application
// available. Later calls are ignored.
func (b *Bridge) Setup(ctx context.Context, opts settings.Settings) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.setupDone {
		slog.Debug("[Bridge] Setup already done")
		return nil
	}
	if _, err := b.pc.Settings.Update(ctx, opts); err != nil {
		slog.Warn("[Bridge] Settings not persisted", "error", err)
	}
	b.extraPerms = opts.Strings(settings.KeyAdditionalPermissions)

	if !b.pc.Accounts.ServiceAvailable() {
		return ErrServiceUnavailable
	}
	b.pc.Reachability.SetAvailable(false)
	if _, err := b.pc.Accounts.Register(b.pc.Options(ctx)); err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	b.pc.Reachability.SetAvailable(true)
	b.setupDone = true
	slog.Info("[Bridge] Setup complete", "account", b.pc.Accounts.Handle().String())
	return nil
}

// UpdateForegroundSettings merges opts, typically a foregroundService
// block, into the stored settings.
func (b *Bridge) UpdateForegroundSettings(ctx context.Context, opts settings.Settings) error {
	_, err := b.pc.Settings.Update(ctx, opts)
	return err
}

// DisplayIncomingCall asks the platform to present an inbound call.
func (b *Bridge) DisplayIncomingCall(ctx context.Context, id, handle, name string, additional map[string]any) error {
	if !b.ready() {
		return nil
	}
	extras := platform.CallExtras(id, handle, name, additional)
	if err := b.pc.Platform.AddNewIncomingCall(b.pc.Accounts.Handle(), extras); err != nil {
		return fmt.Errorf("display incoming call %s: %w", id, err)
	}
	return nil
}

// StartCall asks the platform to place an outbound call to handle, using
// the configured routing scheme.
func (b *Bridge) StartCall(ctx context.Context, id, handle, name string, additional map[string]any) error {
	if !b.ready() || handle == "" {
		return nil
	}
	if !b.HasPermissions() {
		return ErrMissingPermission
	}
	addr, err := b.address(ctx, handle)
	if err != nil {
		return fmt.Errorf("start call %s: %w", id, err)
	}
	extras := platform.CallExtras(id, handle, name, additional)
	if err := b.pc.Platform.PlaceCall(addr, b.pc.Accounts.Handle(), extras); err != nil {
		return fmt.Errorf("start call %s: %w", id, err)
	}
	slog.Debug("[Bridge] Call placed", "call_id", id, "address", addr.String())
	return nil
}

func (b *Bridge) address(ctx context.Context, handle string) (platform.Address, error) {
	scheme := b.pc.Options(ctx).HandleScheme()
	switch scheme {
	case platform.SchemeSIP, platform.SchemeSIPS:
		if !strings.HasPrefix(strings.ToLower(handle), scheme+":") {
			handle = scheme + ":" + handle
		}
		return platform.ParseAddress(handle)
	default:
		return platform.NewAddress(scheme, handle), nil
	}
}

// do runs fn on a live session once the account gate passes.
func (b *Bridge) do(id string, fn func(s *session.Session) error) error {
	if !b.ready() {
		return nil
	}
	return b.coord.WithSession(id, fn)
}

func (b *Bridge) Answer(id string) error {
	return b.do(id, (*session.Session).Answer)
}

func (b *Bridge) End(id string) error {
	return b.do(id, (*session.Session).Hangup)
}

func (b *Bridge) Reject(id string) error {
	return b.do(id, (*session.Session).Reject)
}

// EndAll disconnects every session.
func (b *Bridge) EndAll() []string {
	if !b.ready() {
		return nil
	}
	return b.coord.EndAll()
}

func (b *Bridge) SetHold(id string, hold bool) error {
	return b.do(id, func(s *session.Session) error { return s.SetHold(hold) })
}

func (b *Bridge) SetMuted(id string, muted bool) error {
	return b.do(id, func(s *session.Session) error {
		s.SetMuted(muted)
		return nil
	})
}

func (b *Bridge) SetAudioRoute(id string, route int) error {
	return b.do(id, func(s *session.Session) error {
		s.SetAudioRoute(session.Route(route))
		return nil
	})
}

// SendDTMF plays the first character of key.
func (b *Bridge) SendDTMF(id, key string) error {
	if key == "" {
		return session.ErrInvalidDigit
	}
	digit := []rune(key)[0]
	return b.do(id, func(s *session.Session) error { return s.PlayDigit(digit) })
}

func (b *Bridge) UpdateDisplay(id, name, handle string) error {
	return b.do(id, func(s *session.Session) error {
		s.UpdateDisplay(name, handle)
		return nil
	})
}

// ReportExternalEnd records a disconnect that happened outside the
// platform. The end event is emitted only when notify is set.
func (b *Bridge) ReportExternalEnd(id string, reason int, notify bool) error {
	return b.do(id, func(s *session.Session) error { return s.ReportDisconnect(reason, notify) })
}

// ReportExternalStart records that an outbound call connected.
func (b *Bridge) ReportExternalStart(id string) error {
	return b.do(id, (*session.Session).Connected)
}

func (b *Bridge) SetCurrentCallActive(id string) error {
	return b.do(id, (*session.Session).SetCurrent)
}

// --- queries ---

func (b *Bridge) HasAccount() bool {
	return b.pc.Accounts.HasActiveAccount()
}

func (b *Bridge) HasActiveOutgoing() bool {
	return b.coord.HasActiveOutgoing()
}

func (b *Bridge) IsActive(id string) bool {
	if !b.ready() {
		return false
	}
	_, ok := b.coord.Lookup(id)
	return ok
}

func (b *Bridge) ActiveIDs() []string {
	if !b.ready() {
		return []string{}
	}
	return b.coord.ActiveIDs()
}

// Sessions returns a snapshot of every live session.
func (b *Bridge) Sessions() []session.Info {
	return b.coord.Snapshots()
}

func (b *Bridge) Session(id string) (session.Info, bool) {
	return b.coord.Lookup(id)
}

// CheckDefaultAccount reports whether outgoing calls can use this account
// without the user changing the default account first. Only some
// manufacturers route calls through the default SIM account.
func (b *Bridge) CheckDefaultAccount(ctx context.Context) bool {
	if !b.ready() {
		return true
	}
	if !strings.EqualFold(b.pc.Platform.Manufacturer(), "samsung") {
		return true
	}
	hasSIM := b.pc.Platform.HasSIM()
	_, hasDefault := b.pc.Platform.DefaultOutgoingAccount(b.pc.Options(ctx).HandleScheme())
	return !hasSIM || !hasDefault
}

// --- availability ---

func (b *Bridge) SetAvailable(available bool) {
	b.pc.Reachability.SetAvailable(available)
}

func (b *Bridge) SetReachable() {
	b.pc.Reachability.Confirm()
}

// --- permissions ---

func (b *Bridge) requiredPermissions(additional ...string) []string {
	b.mu.Lock()
	extra := slices.Clone(b.extraPerms)
	b.mu.Unlock()
	return b.pc.Accounts.RequiredPermissions(append(extra, additional...)...)
}

// HasPermissions reports whether every required permission is granted.
func (b *Bridge) HasPermissions() bool {
	for _, p := range b.requiredPermissions() {
		if !b.pc.Platform.Granted(p) {
			return false
		}
	}
	return true
}

// RequestPermissions prompts for the required permissions plus additional.
// It reports whether all were granted and lists the denied ones.
func (b *Bridge) RequestPermissions(ctx context.Context, additional []string) (bool, []string, error) {
	if !b.pc.Accounts.ServiceAvailable() {
		return false, nil, ErrServiceUnavailable
	}
	if !b.pc.Platform.HasActivity() {
		return false, nil, ErrNoActivity
	}
	if b.HasPermissions() {
		return true, nil, nil
	}

	perms := b.requiredPermissions(additional...)
	result, err := b.pc.Platform.Request(ctx, perms)
	if err != nil {
		return false, nil, fmt.Errorf("request permissions: %w", err)
	}
	var denied []string
	for _, p := range perms {
		if !result[p] {
			denied = append(denied, p)
		}
	}
	if len(denied) > 0 {
		slog.Warn("[Bridge] Permissions denied", "denied", denied)
	}
	return len(denied) == 0, denied, nil
}

// --- UI ---

// RequestAccountUI opens the platform's calling account settings.
func (b *Bridge) RequestAccountUI() error {
	if !b.pc.Accounts.ServiceAvailable() {
		return ErrServiceUnavailable
	}
	if !b.pc.Platform.HasActivity() {
		return ErrNoActivity
	}
	return b.pc.Platform.OpenAccountSettings()
}

// RequestForeground brings the application to the front. It reports
// whether the application was already open.
func (b *Bridge) RequestForeground() (bool, error) {
	return b.pc.Platform.BringToForeground()
}

// Dispose disconnects every session and returns the process to its
// pre-setup state.
func (b *Bridge) Dispose() {
	b.coord.EndAll()
	b.pc.Reset()

	b.mu.Lock()
	b.setupDone = false
	b.extraPerms = nil
	b.mu.Unlock()
	slog.Info("[Bridge] Disposed")
}
