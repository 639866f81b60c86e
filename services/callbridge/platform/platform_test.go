package platform

import (
	"context"
	"testing"
	"time"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    Address
		wantErr bool
	}{
		{"tel:+15550001", Address{SchemeTel, "+15550001"}, false},
		{"+15550001", Address{SchemeTel, "+15550001"}, false},
		{"TEL:911", Address{SchemeTel, "911"}, false},
		{"sip:alice@example.com", Address{SchemeSIP, "alice@example.com"}, false},
		{"sip:alice@example.com:5070", Address{SchemeSIP, "alice@example.com:5070"}, false},
		{"sips:bob@secure.example.com", Address{SchemeSIPS, "bob@secure.example.com"}, false},
		{"voicemail:1", Address{"voicemail", "1"}, false},
		{"", Address{}, true},
		{"tel:", Address{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAddress(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAddress(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseAddress(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestAddressString(t *testing.T) {
	if got := NewAddress("", "+1").String(); got != "tel:+1" {
		t.Errorf("String() = %q, want tel:+1", got)
	}
	if got := (Address{}).String(); got != "" {
		t.Errorf("zero address String() = %q, want empty", got)
	}
}

func TestCallExtras(t *testing.T) {
	extras := CallExtras("id-1", "+1", "Ann", map[string]any{"k": "v"})
	if StringExtra(extras, ExtraCallID) != "id-1" || StringExtra(extras, ExtraHandle) != "+1" || StringExtra(extras, ExtraName) != "Ann" {
		t.Errorf("extras = %v", extras)
	}
	if _, ok := extras[ExtraAdditional].(map[string]any); !ok {
		t.Errorf("additional data missing: %v", extras)
	}
	if StringExtra(map[string]any{"n": 1}, "n") != "" {
		t.Error("StringExtra should ignore non-string values")
	}
}

func TestLoopbackPermissions(t *testing.T) {
	l := NewLoopback(LoopbackConfig{DeniedPermissions: []string{PermCallPhone}})

	res, err := l.Request(context.Background(), []string{PermReadPhoneState, PermCallPhone})
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if !res[PermReadPhoneState] || res[PermCallPhone] {
		t.Errorf("Request() = %v", res)
	}
	if !l.Granted(PermReadPhoneState) || l.Granted(PermCallPhone) {
		t.Error("Granted() does not reflect the request result")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Request(ctx, []string{PermRecordAudio}); err == nil {
		t.Error("Request with a cancelled context should fail")
	}
}

func TestLoopbackWakeLockReleasedOnce(t *testing.T) {
	l := NewLoopback(LoopbackConfig{})

	release, err := l.AcquireWakeLock("test", time.Hour)
	if err != nil {
		t.Fatalf("AcquireWakeLock() error = %v", err)
	}
	if got := l.Stats().HeldLocks; got != 1 {
		t.Fatalf("HeldLocks = %d, want 1", got)
	}
	release()
	release()
	if got := l.Stats().HeldLocks; got != 0 {
		t.Errorf("HeldLocks after release = %d, want 0", got)
	}
}

func TestLoopbackWithoutHandler(t *testing.T) {
	l := NewLoopback(LoopbackConfig{})
	if err := l.AddNewIncomingCall(AccountHandle{Component: "c", ID: "a"}, nil); err != ErrNoHandler {
		t.Errorf("AddNewIncomingCall() error = %v, want ErrNoHandler", err)
	}
}

func TestLoopbackBringToForeground(t *testing.T) {
	l := NewLoopback(LoopbackConfig{})
	wasOpen, _ := l.BringToForeground()
	if wasOpen {
		t.Error("first BringToForeground should report closed")
	}
	wasOpen, _ = l.BringToForeground()
	if !wasOpen {
		t.Error("second BringToForeground should report open")
	}
}
