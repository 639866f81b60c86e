// Package platform describes the telephony host the bridge runs against:
// account registration, call placement, process services, permissions and
// the foreground UI. Loopback is an in-process implementation.
package platform

import (
	"context"
	"time"
)

// API levels that gate features.
const (
	// APIConnectionService is the first level with a connection service
	APIConnectionService = 23
	// APISelfManaged is the first level that supports self-managed accounts
	APISelfManaged = 26
	// APIForegroundService is the first level that requires a foreground
	// service during calls
	APIForegroundService = 26
)

// Permissions used by the bridge.
const (
	PermReadPhoneState   = "READ_PHONE_STATE"
	PermReadPhoneNumbers = "READ_PHONE_NUMBERS"
	PermCallPhone        = "CALL_PHONE"
	PermManageOwnCalls   = "MANAGE_OWN_CALLS"
	PermRecordAudio      = "RECORD_AUDIO"
)

// AccountHandle identifies a registered account: the component that
// provides connections plus an id unique within it.
type AccountHandle struct {
	Component string `json:"component"`
	ID        string `json:"id"`
}

func (h AccountHandle) IsZero() bool {
	return h.Component == "" && h.ID == ""
}

func (h AccountHandle) String() string {
	return h.Component + "/" + h.ID
}

// AccountCapability is a bitset of account registration flags
type AccountCapability int

const (
	AccountSelfManaged AccountCapability = 1 << iota
	AccountCallProvider
	AccountConnectionManager
)

func (c AccountCapability) Has(other AccountCapability) bool {
	return c&other == other
}

// Account is an account as registered with the platform
type Account struct {
	Handle       AccountHandle
	Label        string
	Capabilities AccountCapability
	Schemes      []string
	Icon         string
	Enabled      bool
}

// ForegroundOptions describes the notification that keeps the process in
// the foreground while a call is ongoing
type ForegroundOptions struct {
	ChannelID         string `json:"channelId" yaml:"channelId"`
	ChannelName       string `json:"channelName" yaml:"channelName"`
	NotificationTitle string `json:"notificationTitle" yaml:"notificationTitle"`
	NotificationIcon  string `json:"notificationIcon,omitempty" yaml:"notificationIcon"`
	NotificationID    int    `json:"notificationId,omitempty" yaml:"notificationId"`
}

// Telecom is the platform telephony stack.
type Telecom interface {
	APILevel() int
	Manufacturer() string
	ApplicationName() string
	RegisterAccount(acct Account) error
	Account(h AccountHandle) (Account, bool)
	// AddNewIncomingCall asks the platform to create an inbound connection.
	// The platform answers through ConnectionHandler, possibly before
	// returning.
	AddNewIncomingCall(h AccountHandle, extras map[string]any) error
	// PlaceCall asks the platform to create an outbound connection.
	PlaceCall(addr Address, h AccountHandle, extras map[string]any) error
	HasSIM() bool
	DefaultOutgoingAccount(scheme string) (AccountHandle, bool)
}

// Services are the process-level primitives.
type Services interface {
	// IsApplicationRunning reports whether the host application is in the foreground
	IsApplicationRunning() bool
	// StartWakeService starts the headless service that boots the application.
	// started is false if the platform refused to start it.
	StartWakeService(extras map[string]any) (started bool, err error)
	// AcquireWakeLock keeps the CPU awake until release is called or d elapses
	AcquireWakeLock(tag string, d time.Duration) (release func(), err error)
	StartForeground(opts ForegroundOptions) error
	StopForeground() error
	// SetAudioModeVoIP switches the audio mode to in-communication
	SetAudioModeVoIP() error
}

// Permissions checks and requests runtime permissions.
type Permissions interface {
	Granted(perm string) bool
	// Request prompts for perms and returns the grant result per permission
	Request(ctx context.Context, perms []string) (map[string]bool, error)
}

// UI is the host application's visible surface.
type UI interface {
	HasActivity() bool
	OpenAccountSettings() error
	// BringToForeground returns whether the application was already visible
	BringToForeground() (wasOpen bool, err error)
}

// Platform is everything the bridge needs from its host.
type Platform interface {
	Telecom
	Services
	Permissions
	UI
}
