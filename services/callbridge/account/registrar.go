// Package account registers the calling identity with the platform and
// derives the capabilities new sessions may claim.
package account

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/sebas/callbridge/services/callbridge/platform"
	"github.com/sebas/callbridge/services/callbridge/session"
	"github.com/sebas/callbridge/services/callbridge/settings"
)

// Capabilities is the process-wide account record
type Capabilities struct {
	SelfManaged       bool
	HoldSupported     bool
	ConnectionManager bool
	AppDisplayName    string
	RoutingScheme     string
}

// Registrar registers one account per process lifetime.
type Registrar struct {
	mu        sync.RWMutex
	telecom   platform.Telecom
	component string

	registered bool
	handle     platform.AccountHandle
	caps       Capabilities
}

// NewRegistrar creates a registrar. component names the connection-providing
// component the account is bound to.
func NewRegistrar(telecom platform.Telecom, component string) *Registrar {
	if component == "" {
		component = "callbridge.ConnectionService"
	}
	return &Registrar{telecom: telecom, component: component}
}

// ServiceAvailable reports whether the platform has a connection service.
func (r *Registrar) ServiceAvailable() bool {
	return r.telecom.APILevel() >= platform.APIConnectionService
}

// SelfManagedSupported reports whether self-managed accounts are possible.
func (r *Registrar) SelfManagedSupported() bool {
	return r.telecom.APILevel() >= platform.APISelfManaged
}

// Register registers the account using opts. It runs once; later calls
// return false and change nothing.
func (r *Registrar) Register(opts settings.Settings) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.registered {
		slog.Debug("[Account] Already registered", "handle", r.handle.String())
		return false, nil
	}
	if !r.ServiceAvailable() {
		return false, fmt.Errorf("register account: connection service unavailable at api level %d", r.telecom.APILevel())
	}

	appName := opts.String(settings.KeyAppName)
	if appName == "" {
		appName = r.telecom.ApplicationName()
	}
	selfManaged := opts.SelfManaged() && r.SelfManagedSupported()

	handle := platform.AccountHandle{Component: r.component, ID: appName}
	acct := platform.Account{
		Handle:  handle,
		Label:   appName,
		Schemes: []string{opts.HandleScheme()},
		Icon:    opts.String(settings.KeyImageName),
	}
	if selfManaged {
		acct.Capabilities = platform.AccountSelfManaged
	} else {
		acct.Capabilities = platform.AccountCallProvider
	}
	if opts.Bool(settings.KeyConnectionManager) {
		acct.Capabilities |= platform.AccountConnectionManager
	}

	if err := r.telecom.RegisterAccount(acct); err != nil {
		return false, fmt.Errorf("register account %s: %w", handle, err)
	}

	r.registered = true
	r.handle = handle
	r.caps = Capabilities{
		SelfManaged:       selfManaged,
		HoldSupported:     opts.SupportsHolding(),
		ConnectionManager: acct.Capabilities.Has(platform.AccountConnectionManager),
		AppDisplayName:    appName,
		RoutingScheme:     opts.HandleScheme(),
	}

	slog.Info("[Account] Registered",
		"handle", handle.String(),
		"self_managed", selfManaged,
		"hold", r.caps.HoldSupported,
		"scheme", r.caps.RoutingScheme,
	)
	return true, nil
}

// Registered reports whether Register has succeeded.
func (r *Registrar) Registered() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.registered
}

// Handle returns the registered account handle, or the zero handle.
func (r *Registrar) Handle() platform.AccountHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handle
}

// Capabilities returns the account record.
func (r *Registrar) Capabilities() Capabilities {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.caps
}

// HasActiveAccount reports whether the account is registered and enabled on
// the platform.
func (r *Registrar) HasActiveAccount() bool {
	r.mu.RLock()
	handle, registered := r.handle, r.registered
	r.mu.RUnlock()

	if !registered || !r.ServiceAvailable() {
		return false
	}
	acct, ok := r.telecom.Account(handle)
	return ok && acct.Enabled
}

// SessionCapabilities resolves the capabilities of a new session. Mute is
// always granted; hold when the settings or the account allow it;
// self-managed mirrors the account when the api level supports it.
func (r *Registrar) SessionCapabilities(opts settings.Settings) (session.Capability, bool) {
	r.mu.RLock()
	caps := r.caps
	r.mu.RUnlock()

	c := session.CapMute
	hold := caps.HoldSupported
	if opts.Has(settings.KeySupportsHolding) {
		hold = opts.SupportsHolding()
	}
	if hold {
		c |= session.CapHold
	}

	selfManaged := caps.SelfManaged && r.SelfManagedSupported()
	if selfManaged {
		c |= session.CapSelfManaged
	}
	return c, selfManaged
}

// RequiredPermissions lists the runtime permissions the account needs,
// followed by any extra ones.
func (r *Registrar) RequiredPermissions(extra ...string) []string {
	perms := []string{platform.PermReadPhoneState}
	if r.telecom.APILevel() >= platform.APISelfManaged {
		perms = append(perms, platform.PermReadPhoneNumbers)
	}
	if r.Capabilities().SelfManaged {
		perms = append(perms, platform.PermManageOwnCalls)
	} else {
		perms = append(perms, platform.PermCallPhone)
	}

	seen := make(map[string]bool, len(perms))
	for _, p := range perms {
		seen[p] = true
	}
	for _, p := range extra {
		if p != "" && !seen[p] {
			perms = append(perms, p)
			seen[p] = true
		}
	}
	return perms
}

// Reset forgets the account so Register can run again.
func (r *Registrar) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered = false
	r.handle = platform.AccountHandle{}
	r.caps = Capabilities{}
}
