package bridge

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/sebas/callbridge/services/callbridge/coordinator"
	"github.com/sebas/callbridge/services/callbridge/events"
	"github.com/sebas/callbridge/services/callbridge/platform"
	"github.com/sebas/callbridge/services/callbridge/procctx"
	"github.com/sebas/callbridge/services/callbridge/session"
	"github.com/sebas/callbridge/services/callbridge/settings"
)

type fixture struct {
	lb  *platform.Loopback
	pc  *procctx.Context
	b   *Bridge
	rec *events.MemoryPublisher
}

func newFixture(t *testing.T, cfg platform.LoopbackConfig) *fixture {
	t.Helper()
	lb := platform.NewLoopback(cfg)
	rec := events.NewMemoryPublisher()
	pc := procctx.New(procctx.Options{Platform: lb, Publishers: []events.Publisher{rec}})
	t.Cleanup(func() { _ = pc.Close() })

	coord := coordinator.New(pc)
	lb.Attach(coord)
	return &fixture{lb: lb, pc: pc, b: New(coord), rec: rec}
}

func (f *fixture) setup(t *testing.T, opts settings.Settings) {
	t.Helper()
	if err := f.b.Setup(context.Background(), opts); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
}

func (f *fixture) events(t *testing.T) []events.Event {
	t.Helper()
	if err := f.pc.Events.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	return f.rec.Events()
}

func TestSetupRegistersAndMarksAvailable(t *testing.T) {
	f := newFixture(t, platform.LoopbackConfig{AppName: "Phone"})
	f.setup(t, settings.Settings{settings.KeyHandleScheme: "sip"})

	if !f.b.HasAccount() {
		t.Error("HasAccount() = false after Setup")
	}
	st := f.pc.Reachability.State()
	if !st.Available || !st.Initialized {
		t.Errorf("reachability = %+v, want available and initialized", st)
	}
	if got := f.pc.Settings.Get(context.Background()).HandleScheme(); got != "sip" {
		t.Errorf("stored scheme = %q", got)
	}

	// second setup is ignored
	f.setup(t, settings.Settings{settings.KeyHandleScheme: "tel"})
	if got := f.pc.Settings.Get(context.Background()).HandleScheme(); got != "sip" {
		t.Errorf("scheme after second Setup = %q, want sip", got)
	}
}

func TestSetupServiceUnavailable(t *testing.T) {
	f := newFixture(t, platform.LoopbackConfig{APILevel: 22})
	err := f.b.Setup(context.Background(), settings.Settings{})
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("Setup() error = %v, want ErrServiceUnavailable", err)
	}
	var cerr *CommandError
	if !errors.As(err, &cerr) || cerr.Code != CodeServiceUnavailable {
		t.Errorf("error code = %v", err)
	}
}

func TestCommandsNoOpWithoutAccount(t *testing.T) {
	f := newFixture(t, platform.LoopbackConfig{})

	if err := f.b.DisplayIncomingCall(context.Background(), "A", "+1", "", nil); err != nil {
		t.Errorf("DisplayIncomingCall() error = %v", err)
	}
	if err := f.b.Answer("A"); err != nil {
		t.Errorf("Answer() error = %v", err)
	}
	if f.b.IsActive("A") || len(f.b.ActiveIDs()) != 0 || f.b.EndAll() != nil {
		t.Error("queries should report nothing without an account")
	}
	if len(f.events(t)) != 0 {
		t.Error("no events expected without an account")
	}
}

func TestStartCallNeedsPermissions(t *testing.T) {
	f := newFixture(t, platform.LoopbackConfig{Running: true, HasActivity: true})
	f.setup(t, settings.Settings{})
	f.b.SetReachable()
	ctx := context.Background()

	if err := f.b.StartCall(ctx, "A", "+15550001", "Bob", nil); !errors.Is(err, ErrMissingPermission) {
		t.Fatalf("StartCall() error = %v, want ErrMissingPermission", err)
	}

	granted, denied, err := f.b.RequestPermissions(ctx, nil)
	if err != nil || !granted || len(denied) != 0 {
		t.Fatalf("RequestPermissions() = %v, %v, %v", granted, denied, err)
	}
	if err := f.b.StartCall(ctx, "A", "+15550001", "Bob", nil); err != nil {
		t.Fatalf("StartCall() error = %v", err)
	}
	if !f.b.IsActive("A") || !f.b.HasActiveOutgoing() {
		t.Error("outbound call not registered")
	}

	if err := f.b.ReportExternalStart("A"); err != nil {
		t.Fatalf("ReportExternalStart() error = %v", err)
	}
	info, _ := f.b.Session("A")
	if info.State != session.StateActive || !info.Capabilities.Has(session.CapHold) {
		t.Errorf("session = %+v", info)
	}
}

func TestSetHoldWithoutCapabilityIsNoOp(t *testing.T) {
	f := newFixture(t, platform.LoopbackConfig{Running: true, HasActivity: true})
	f.setup(t, settings.Settings{})
	f.b.SetReachable()
	ctx := context.Background()
	if _, _, err := f.b.RequestPermissions(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if err := f.b.StartCall(ctx, "A", "+15550001", "", nil); err != nil {
		t.Fatalf("StartCall() error = %v", err)
	}

	if err := f.b.SetHold("A", true); err != nil {
		t.Errorf("SetHold() on a dialing call error = %v, want nil", err)
	}
	info, _ := f.b.Session("A")
	if info.State != session.StateDialing {
		t.Errorf("state = %v, want dialing", info.State)
	}
	for _, ev := range f.events(t) {
		if ev.Type() == events.CallHoldToggled {
			t.Errorf("unexpected %s", ev.Type())
		}
	}
}

func TestStartCallWithSIPScheme(t *testing.T) {
	f := newFixture(t, platform.LoopbackConfig{Running: true, HasActivity: true})
	f.setup(t, settings.Settings{settings.KeyHandleScheme: "sip"})
	f.b.SetReachable()
	ctx := context.Background()
	if _, _, err := f.b.RequestPermissions(ctx, nil); err != nil {
		t.Fatal(err)
	}

	if err := f.b.StartCall(ctx, "S", "alice@example.com:5060", "", nil); err != nil {
		t.Fatalf("StartCall() error = %v", err)
	}
	info, ok := f.b.Session("S")
	if !ok || info.Handle != "alice@example.com:5060" {
		t.Errorf("session = %+v, %v", info, ok)
	}
}

func TestRequestPermissionsDenied(t *testing.T) {
	f := newFixture(t, platform.LoopbackConfig{HasActivity: true, DeniedPermissions: []string{platform.PermRecordAudio}})
	f.setup(t, settings.Settings{settings.KeyAdditionalPermissions: []any{platform.PermRecordAudio}})

	granted, denied, err := f.b.RequestPermissions(context.Background(), nil)
	if err != nil {
		t.Fatalf("RequestPermissions() error = %v", err)
	}
	if granted || !slices.Equal(denied, []string{platform.PermRecordAudio}) {
		t.Errorf("RequestPermissions() = %v, %v", granted, denied)
	}
	if f.b.HasPermissions() {
		t.Error("HasPermissions() = true with a denied permission")
	}
}

func TestRequestPermissionsWithoutActivity(t *testing.T) {
	f := newFixture(t, platform.LoopbackConfig{})
	if _, _, err := f.b.RequestPermissions(context.Background(), nil); !errors.Is(err, ErrNoActivity) {
		t.Errorf("error = %v, want ErrNoActivity", err)
	}
	if err := f.b.RequestAccountUI(); !errors.Is(err, ErrNoActivity) {
		t.Errorf("RequestAccountUI() error = %v, want ErrNoActivity", err)
	}
}

func TestInboundCallCommands(t *testing.T) {
	f := newFixture(t, platform.LoopbackConfig{})
	f.setup(t, settings.Settings{})

	if err := f.b.DisplayIncomingCall(context.Background(), "B", "+15550002", "Alice", map[string]any{"room": "7"}); err != nil {
		t.Fatalf("DisplayIncomingCall() error = %v", err)
	}
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(f.b.Answer("B"))
	must(f.b.SetMuted("B", true))
	must(f.b.SetMuted("B", true))
	must(f.b.SetAudioRoute("B", int(session.RouteSpeaker)))
	must(f.b.SendDTMF("B", "5"))
	must(f.b.UpdateDisplay("B", "Alice Smith", ""))

	if err := f.b.SendDTMF("B", "x"); !errors.Is(err, session.ErrInvalidDigit) {
		t.Errorf("SendDTMF(x) error = %v", err)
	}

	info, _ := f.b.Session("B")
	if info.Name != "Alice Smith" || !info.Audio.Muted || info.Audio.Route != session.RouteSpeaker {
		t.Errorf("session = %+v", info)
	}

	var got []events.EventType
	for _, ev := range f.events(t) {
		if ev.CallID() == "B" {
			got = append(got, ev.Type())
		}
	}
	want := []events.EventType{
		events.CallShowIncoming,
		events.CallAnswered,
		events.CallAudioSessionActivated,
		events.CallMuteToggled,
		events.CallRouteChanged,
		events.CallDTMF,
	}
	if !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestReportExternalEndSilent(t *testing.T) {
	f := newFixture(t, platform.LoopbackConfig{})
	f.setup(t, settings.Settings{})
	_ = f.b.DisplayIncomingCall(context.Background(), "B", "+1", "", nil)

	if err := f.b.ReportExternalEnd("B", 4, false); err != nil {
		t.Fatalf("ReportExternalEnd() error = %v", err)
	}
	if f.b.IsActive("B") {
		t.Error("ended call still active")
	}
	for _, ev := range f.events(t) {
		if ev.Type() == events.CallEnded {
			t.Error("end event emitted with notify=false")
		}
	}
	// repeated end for a removed call is ignored
	if err := f.b.End("B"); err != nil {
		t.Errorf("End() after disconnect = %v", err)
	}
}

func TestEndAllThreeCalls(t *testing.T) {
	f := newFixture(t, platform.LoopbackConfig{})
	f.setup(t, settings.Settings{})
	for _, id := range []string{"A", "B", "C"} {
		_ = f.b.DisplayIncomingCall(context.Background(), id, "+1", "", nil)
		_ = f.b.Answer(id)
	}

	if ended := f.b.EndAll(); len(ended) != 3 {
		t.Errorf("EndAll() = %v", ended)
	}
	if ids := f.b.ActiveIDs(); len(ids) != 0 {
		t.Errorf("ActiveIDs() = %v", ids)
	}
}

func TestCheckDefaultAccount(t *testing.T) {
	tests := []struct {
		name string
		cfg  platform.LoopbackConfig
		want bool
	}{
		{"other manufacturer", platform.LoopbackConfig{Manufacturer: "pixel", HasSIM: true}, true},
		{"samsung without sim", platform.LoopbackConfig{Manufacturer: "Samsung"}, true},
		{"samsung with default sim account", platform.LoopbackConfig{Manufacturer: "samsung", HasSIM: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.cfg)
			f.setup(t, settings.Settings{})
			if got := f.b.CheckDefaultAccount(context.Background()); got != tt.want {
				t.Errorf("CheckDefaultAccount() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestForegroundAndAccountUI(t *testing.T) {
	f := newFixture(t, platform.LoopbackConfig{HasActivity: true})

	wasOpen, err := f.b.RequestForeground()
	if err != nil || wasOpen {
		t.Errorf("RequestForeground() = %v, %v, want false", wasOpen, err)
	}
	if wasOpen, _ := f.b.RequestForeground(); !wasOpen {
		t.Error("second RequestForeground() should report already open")
	}
	if err := f.b.RequestAccountUI(); err != nil {
		t.Fatalf("RequestAccountUI() error = %v", err)
	}
	if f.lb.Stats().AccountUIOpens != 1 {
		t.Error("account settings not opened")
	}
}

func TestUpdateForegroundSettings(t *testing.T) {
	f := newFixture(t, platform.LoopbackConfig{})
	fg := platform.ForegroundOptions{ChannelID: "c", ChannelName: "n", NotificationTitle: "t"}
	if err := f.b.UpdateForegroundSettings(context.Background(), settings.Settings{}.WithForeground(fg)); err != nil {
		t.Fatal(err)
	}
	got, ok := f.pc.Options(context.Background()).Foreground()
	if !ok || got != fg {
		t.Errorf("Foreground() = %+v, %v", got, ok)
	}
}

func TestDispose(t *testing.T) {
	f := newFixture(t, platform.LoopbackConfig{})
	f.setup(t, settings.Settings{})
	_ = f.b.DisplayIncomingCall(context.Background(), "A", "+1", "", nil)

	f.b.Dispose()

	if f.b.HasAccount() || f.pc.Registry.Len() != 0 {
		t.Error("Dispose left state behind")
	}
	f.setup(t, settings.Settings{})
	if !f.b.HasAccount() {
		t.Error("Setup after Dispose should register again")
	}
}
