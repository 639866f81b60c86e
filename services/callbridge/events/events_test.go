package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestEventSubjectNaming(t *testing.T) {
	builder := NewBuilder("test-node")

	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{"show incoming", builder.Call(CallShowIncoming, "call-123").Build(), "callbridge.calls.call-123.show_incoming"},
		{"ended", builder.Ended("call-123", "local", nil), "callbridge.calls.call-123.ended"},
		{"dtmf", builder.DTMF("call-123", "5", nil), "callbridge.calls.call-123.dtmf"},
		{"reachability", builder.ReachabilityCheck("call-123", nil), "callbridge.app.reachability_check"},
		{"wake", builder.Wake("", nil), "callbridge.app.wake"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.event.Subject(); got != tt.want {
				t.Errorf("Subject() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCallEventJSON(t *testing.T) {
	extras := map[string]any{"room": "42"}
	event := NewBuilder("test-node").
		Call(CallShowIncoming, "call-123").
		Handle("+15550001").
		Name("Alice").
		Direction("incoming").
		Extras(extras).
		Build()

	// the event keeps its own copy
	extras["room"] = "changed"

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}

	checks := map[string]string{
		"event_type": "call.show_incoming",
		"call_id":    "call-123",
		"node_id":    "test-node",
		"handle":     "+15550001",
		"name":       "Alice",
		"direction":  "incoming",
	}
	for k, want := range checks {
		if got, ok := m[k].(string); !ok || got != want {
			t.Errorf("m[%q] = %v, want %q", k, m[k], want)
		}
	}

	ex, ok := m["extras"].(map[string]any)
	if !ok || ex["room"] != "42" {
		t.Errorf("extras = %v, want room=42", m["extras"])
	}
	if id, _ := m["event_id"].(string); id == "" {
		t.Error("event_id should be set")
	}
}

func TestMatchSubject(t *testing.T) {
	tests := []struct {
		pattern string
		subject string
		want    bool
	}{
		{"callbridge.calls.>", "callbridge.calls.a.ended", true},
		{"callbridge.calls.>", "callbridge.calls", false},
		{"callbridge.calls.*.ended", "callbridge.calls.a.ended", true},
		{"callbridge.calls.*.ended", "callbridge.calls.a.dtmf", false},
		{"callbridge.calls.a.*", "callbridge.calls.a.dtmf", true},
		{"callbridge.calls.a.*", "callbridge.calls.b.dtmf", false},
		{"callbridge.app.wake", "callbridge.app.wake", true},
		{"", "anything", true},
		{">", "anything.at.all", true},
	}

	for _, tt := range tests {
		if got := MatchSubject(tt.pattern, tt.subject); got != tt.want {
			t.Errorf("MatchSubject(%q, %q) = %v, want %v", tt.pattern, tt.subject, got, tt.want)
		}
	}
}

func TestChannelPublisherDropsWhenFull(t *testing.T) {
	pub := NewChannelPublisher(1)
	builder := NewBuilder("n")

	pub.PublishAsync(builder.MuteToggled("a", true, nil))
	pub.PublishAsync(builder.MuteToggled("a", false, nil))

	if got := pub.DroppedCount(); got != 1 {
		t.Errorf("DroppedCount() = %d, want 1", got)
	}

	if err := pub.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	// publishing after close is a no-op
	pub.PublishAsync(builder.MuteToggled("a", true, nil))
}

func TestBroadcasterPreservesOrder(t *testing.T) {
	rec := NewMemoryPublisher()
	b := NewBroadcaster(rec)
	defer b.Close()

	builder := NewBuilder("n")
	const n = 200
	for i := 0; i < n; i++ {
		b.PublishAsync(builder.DTMF("call", string(rune('0'+i%10)), nil))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	got := rec.Events()
	if len(got) != n {
		t.Fatalf("delivered %d events, want %d", len(got), n)
	}
	for i, e := range got {
		want := string(rune('0' + i%10))
		if d := e.(*DTMFEvent).Digits; d != want {
			t.Fatalf("event %d digits = %q, want %q", i, d, want)
		}
	}
}

func TestBroadcasterConcurrentPublishNeverDrops(t *testing.T) {
	rec := NewMemoryPublisher()
	b := NewBroadcaster(rec)
	builder := NewBuilder("n")

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = b.Publish(context.Background(), builder.HoldToggled("c", i%2 == 0, nil))
			}
		}()
	}
	wg.Wait()

	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := len(rec.Events()); got != 800 {
		t.Errorf("delivered %d events, want 800", got)
	}
	if err := b.Publish(context.Background(), builder.HoldToggled("c", true, nil)); err != ErrBroadcasterClosed {
		t.Errorf("Publish after Close error = %v, want ErrBroadcasterClosed", err)
	}
}

func TestBroadcasterUnsubscribe(t *testing.T) {
	b := NewBroadcaster()
	defer b.Close()

	first := NewMemoryPublisher()
	second := NewMemoryPublisher()
	unsubscribe := b.Subscribe(first)
	b.Subscribe(second)

	builder := NewBuilder("n")
	b.PublishAsync(builder.Wake("", nil))
	_ = b.Flush(context.Background())

	unsubscribe()
	b.PublishAsync(builder.Wake("", nil))
	_ = b.Flush(context.Background())

	if got := len(first.Events()); got != 1 {
		t.Errorf("first subscriber got %d events, want 1", got)
	}
	if got := len(second.Events()); got != 2 {
		t.Errorf("second subscriber got %d events, want 2", got)
	}
	if got := b.SubscriberCount(); got != 1 {
		t.Errorf("SubscriberCount() = %d, want 1", got)
	}
}

func TestFilterPublisher(t *testing.T) {
	rec := NewMemoryPublisher()
	pub := NewFilterPublisher(AllCallEventsSubject("a"), rec)
	builder := NewBuilder("n")

	_ = pub.Publish(context.Background(), builder.MuteToggled("a", true, nil))
	_ = pub.Publish(context.Background(), builder.MuteToggled("b", true, nil))
	pub.PublishAsync(builder.Wake("a", nil))

	if got := rec.Types(); len(got) != 1 || got[0] != CallMuteToggled {
		t.Errorf("Types() = %v, want [%s]", got, CallMuteToggled)
	}
}
