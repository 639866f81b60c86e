package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"
)

// ErrNoHandler is returned when a call is requested before Attach.
var ErrNoHandler = errors.New("no connection handler attached")

// ErrAccountNotRegistered is returned for calls on an unknown account.
var ErrAccountNotRegistered = errors.New("account not registered")

// LoopbackConfig configures a Loopback platform
type LoopbackConfig struct {
	APILevel     int
	Manufacturer string
	AppName      string
	// Running is the initial foreground state of the host application
	Running bool
	// HasActivity is whether a visible UI exists
	HasActivity bool
	HasSIM      bool
	// DeniedPermissions are refused by Request
	DeniedPermissions []string
	// AccountsDisabled registers accounts in the disabled state
	AccountsDisabled bool
}

// Loopback is an in-process platform. Call requests are answered by the
// attached ConnectionHandler synchronously, and the user's actions on the
// call screen are simulated with the User* methods. It records every
// process-level side effect so callers can inspect them.
type Loopback struct {
	mu sync.Mutex

	cfg      LoopbackConfig
	handler  ConnectionHandler
	accounts map[AccountHandle]Account
	granted  map[string]bool

	running        bool
	foreground     *ForegroundOptions
	foregroundRuns int
	wakeStarts     int
	wakeLocks      int
	heldLocks      int
	voipMode       bool
	accountUIOpens int
}

var _ Platform = (*Loopback)(nil)

// NewLoopback creates a loopback platform.
func NewLoopback(cfg LoopbackConfig) *Loopback {
	if cfg.APILevel == 0 {
		cfg.APILevel = 30
	}
	if cfg.Manufacturer == "" {
		cfg.Manufacturer = "generic"
	}
	if cfg.AppName == "" {
		cfg.AppName = "callbridge"
	}
	return &Loopback{
		cfg:      cfg,
		accounts: make(map[AccountHandle]Account),
		granted:  make(map[string]bool),
		running:  cfg.Running,
	}
}

// Attach sets the handler that receives platform callbacks.
func (l *Loopback) Attach(h ConnectionHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handler = h
}

func (l *Loopback) currentHandler() ConnectionHandler {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handler
}

// --- Telecom ---

func (l *Loopback) APILevel() int           { return l.cfg.APILevel }
func (l *Loopback) Manufacturer() string    { return l.cfg.Manufacturer }
func (l *Loopback) ApplicationName() string { return l.cfg.AppName }

func (l *Loopback) RegisterAccount(acct Account) error {
	if acct.Handle.IsZero() {
		return fmt.Errorf("register account: empty handle")
	}
	acct.Enabled = !l.cfg.AccountsDisabled
	l.mu.Lock()
	l.accounts[acct.Handle] = acct
	l.mu.Unlock()
	slog.Debug("[Loopback] Account registered", "handle", acct.Handle.String(), "enabled", acct.Enabled)
	return nil
}

func (l *Loopback) Account(h AccountHandle) (Account, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct, ok := l.accounts[h]
	return acct, ok
}

// SetAccountEnabled toggles an account, as the user would in the system settings.
func (l *Loopback) SetAccountEnabled(h AccountHandle, enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if acct, ok := l.accounts[h]; ok {
		acct.Enabled = enabled
		l.accounts[h] = acct
	}
}

func (l *Loopback) AddNewIncomingCall(h AccountHandle, extras map[string]any) error {
	handler := l.currentHandler()
	if handler == nil {
		return ErrNoHandler
	}
	req := ConnectionRequest{
		Address: NewAddress(SchemeTel, StringExtra(extras, ExtraHandle)),
		Account: h,
		Extras:  maps.Clone(extras),
	}
	if acct, ok := l.Account(h); !ok || !acct.Enabled {
		handler.OnCreateIncomingConnectionFailed(req)
		return ErrAccountNotRegistered
	}
	res := handler.OnCreateIncomingConnection(req)
	if res.Failed {
		handler.OnCreateIncomingConnectionFailed(req)
	}
	return nil
}

func (l *Loopback) PlaceCall(addr Address, h AccountHandle, extras map[string]any) error {
	handler := l.currentHandler()
	if handler == nil {
		return ErrNoHandler
	}
	req := ConnectionRequest{Address: addr, Account: h, Extras: maps.Clone(extras)}
	if acct, ok := l.Account(h); !ok || !acct.Enabled {
		handler.OnCreateOutgoingConnectionFailed(req)
		return ErrAccountNotRegistered
	}
	handler.OnCreateOutgoingConnection(req)
	return nil
}

func (l *Loopback) HasSIM() bool { return l.cfg.HasSIM }

func (l *Loopback) DefaultOutgoingAccount(scheme string) (AccountHandle, bool) {
	if !l.cfg.HasSIM || scheme != SchemeTel {
		return AccountHandle{}, false
	}
	return AccountHandle{Component: "sim", ID: "0"}, true
}

// --- Services ---

func (l *Loopback) IsApplicationRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// SetRunning changes the simulated foreground state of the application.
func (l *Loopback) SetRunning(running bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.running = running
}

func (l *Loopback) StartWakeService(extras map[string]any) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.wakeStarts++
	l.running = true
	return true, nil
}

func (l *Loopback) AcquireWakeLock(tag string, d time.Duration) (func(), error) {
	l.mu.Lock()
	l.wakeLocks++
	l.heldLocks++
	l.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			l.heldLocks--
			l.mu.Unlock()
		})
	}
	time.AfterFunc(d, release)
	return release, nil
}

func (l *Loopback) StartForeground(opts ForegroundOptions) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	o := opts
	l.foreground = &o
	l.foregroundRuns++
	return nil
}

func (l *Loopback) StopForeground() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.foreground = nil
	return nil
}

func (l *Loopback) SetAudioModeVoIP() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.voipMode = true
	return nil
}

// --- Permissions ---

func (l *Loopback) Granted(perm string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.granted[perm]
}

func (l *Loopback) Request(ctx context.Context, perms []string) (map[string]bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	denied := make(map[string]bool, len(l.cfg.DeniedPermissions))
	for _, p := range l.cfg.DeniedPermissions {
		denied[p] = true
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]bool, len(perms))
	for _, p := range perms {
		ok := !denied[p]
		out[p] = ok
		if ok {
			l.granted[p] = true
		}
	}
	return out, nil
}

// --- UI ---

func (l *Loopback) HasActivity() bool { return l.cfg.HasActivity }

func (l *Loopback) OpenAccountSettings() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accountUIOpens++
	return nil
}

func (l *Loopback) BringToForeground() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	wasOpen := l.running
	l.running = true
	return wasOpen, nil
}

// --- Simulated user actions ---

func (l *Loopback) UserAnswer(callID string) {
	if h := l.currentHandler(); h != nil {
		h.OnAnswer(callID)
	}
}

func (l *Loopback) UserReject(callID string) {
	if h := l.currentHandler(); h != nil {
		h.OnReject(callID)
	}
}

func (l *Loopback) UserHangup(callID string) {
	if h := l.currentHandler(); h != nil {
		h.OnDisconnect(callID)
	}
}

func (l *Loopback) UserHold(callID string, hold bool) {
	h := l.currentHandler()
	if h == nil {
		return
	}
	if hold {
		h.OnHold(callID)
	} else {
		h.OnUnhold(callID)
	}
}

func (l *Loopback) UserDTMF(callID string, digit rune) {
	if h := l.currentHandler(); h != nil {
		h.OnPlayDTMF(callID, digit)
	}
}

func (l *Loopback) UserAudio(callID string, muted bool, route int) {
	if h := l.currentHandler(); h != nil {
		h.OnAudioStateChanged(callID, muted, route, 0)
	}
}

func (l *Loopback) UserMerge(first, second string) {
	if h := l.currentHandler(); h != nil {
		h.OnConference(first, second)
	}
}

// --- Inspection ---

// LoopbackStats is a snapshot of recorded side effects
type LoopbackStats struct {
	Foreground     *ForegroundOptions
	ForegroundRuns int
	WakeStarts     int
	WakeLocks      int
	HeldLocks      int
	VoIPMode       bool
	AccountUIOpens int
}

func (l *Loopback) Stats() LoopbackStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	var fg *ForegroundOptions
	if l.foreground != nil {
		o := *l.foreground
		fg = &o
	}
	return LoopbackStats{
		Foreground:     fg,
		ForegroundRuns: l.foregroundRuns,
		WakeStarts:     l.wakeStarts,
		WakeLocks:      l.wakeLocks,
		HeldLocks:      l.heldLocks,
		VoIPMode:       l.voipMode,
		AccountUIOpens: l.accountUIOpens,
	}
}
