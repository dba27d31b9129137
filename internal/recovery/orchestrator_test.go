package recovery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/driftnote/voicectl/internal/transport"
)

type fakeChannel struct {
	mu           sync.Mutex
	connected    bool
	reconnectErr error
	reconnects   int
	subscribes   [][]string
	resets       int
	subscribed   []string
}

func (f *fakeChannel) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeChannel) Reconnect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconnects++
	if f.reconnectErr != nil {
		return f.reconnectErr
	}
	f.connected = true
	return nil
}

func (f *fakeChannel) SubscribeChannels(names []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes = append(f.subscribes, names)
}

func (f *fakeChannel) SubscribedChannels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribed
}

func (f *fakeChannel) ResetRecording() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
}

type fakeRecorder struct {
	mu     sync.Mutex
	resets int
}

func (f *fakeRecorder) Reset() {
	f.mu.Lock()
	f.resets++
	f.mu.Unlock()
}

func (f *fakeRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	levels   []string
}

func (f *fakeNotifier) Notify(level, message string) {
	f.mu.Lock()
	f.levels = append(f.levels, level)
	f.messages = append(f.messages, message)
	f.mu.Unlock()
}

func (f *fakeNotifier) snapshot() ([]string, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.levels...), append([]string(nil), f.messages...)
}

func newTestOrchestrator(t *testing.T, ch *fakeChannel) (*Orchestrator, *fakeRecorder, *fakeNotifier) {
	t.Helper()
	rec := &fakeRecorder{}
	not := &fakeNotifier{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	o := NewOrchestrator(ch, rec, not, Config{Debounce: 10 * time.Millisecond, Timeout: time.Second}, log)
	return o, rec, not
}

func waitForRecovery(t *testing.T, o *Orchestrator) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if !o.Recovering() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("recovery sequence never finished")
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		message string
		want    bool
	}{
		{"connection lost", true},
		{"Connection failed: dial tcp refused", true},
		{"cannot start recording in state processing", true},
		{"Cannot stop recording in state idle", true},
		{"transcription service unavailable", false},
		{"voice channel unavailable after redial attempts", false},
		{"internal server error", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsTransient(tt.message); got != tt.want {
			t.Errorf("IsTransient(%q) = %v, want %v", tt.message, got, tt.want)
		}
	}
}

func TestOrchestrator_TransientResetsSilently(t *testing.T) {
	ch := &fakeChannel{connected: true}
	o, rec, not := newTestOrchestrator(t, ch)

	o.Handle(transport.ErrorEvent{Message: "connection lost"})

	if rec.count() != 1 {
		t.Errorf("transient error should reset the recorder once, got %d", rec.count())
	}
	if o.Recovering() {
		t.Error("transient error must not start a recovery sequence")
	}
	time.Sleep(30 * time.Millisecond)
	levels, _ := not.snapshot()
	if len(levels) != 0 {
		t.Errorf("transient error must not notify, got %d notifications", len(levels))
	}
}

func TestOrchestrator_CriticalRunsSequence(t *testing.T) {
	ch := &fakeChannel{connected: true}
	o, rec, not := newTestOrchestrator(t, ch)

	o.Handle(transport.ErrorEvent{Message: "internal server error"})
	if !o.Recovering() {
		t.Error("critical error should mark recovery in flight")
	}
	if rec.count() != 1 {
		t.Errorf("critical error should reset the recorder immediately, got %d", rec.count())
	}

	waitForRecovery(t, o)

	ch.mu.Lock()
	subs, resets := len(ch.subscribes), ch.resets
	ch.mu.Unlock()
	if subs != 1 {
		t.Errorf("expected 1 resubscription, got %d", subs)
	}
	if resets != 1 {
		t.Errorf("expected 1 server-side reset, got %d", resets)
	}

	levels, messages := not.snapshot()
	if len(levels) != 1 || levels[0] != LevelInfo {
		t.Fatalf("expected one info notification, got %v %v", levels, messages)
	}
	if messages[0] != "voice connection recovered" {
		t.Errorf("unexpected notification message %q", messages[0])
	}
}

func TestOrchestrator_BurstYieldsOneNotification(t *testing.T) {
	ch := &fakeChannel{connected: true}
	o, _, not := newTestOrchestrator(t, ch)

	for i := 0; i < 3; i++ {
		o.Handle(transport.ErrorEvent{Message: "internal server error"})
	}
	waitForRecovery(t, o)

	levels, _ := not.snapshot()
	if len(levels) != 1 {
		t.Errorf("error burst should yield exactly one notification, got %d", len(levels))
	}
	ch.mu.Lock()
	subs := len(ch.subscribes)
	ch.mu.Unlock()
	if subs != 1 {
		t.Errorf("error burst should run exactly one sequence, got %d resubscriptions", subs)
	}
}

func TestOrchestrator_ReconnectsWhenDisconnected(t *testing.T) {
	ch := &fakeChannel{connected: false}
	o, _, _ := newTestOrchestrator(t, ch)

	o.Handle(transport.ErrorEvent{Message: "internal server error"})
	waitForRecovery(t, o)

	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.reconnects != 1 {
		t.Errorf("expected 1 reconnect attempt, got %d", ch.reconnects)
	}
}

func TestOrchestrator_ReconnectFailureNotifiesOriginalError(t *testing.T) {
	ch := &fakeChannel{connected: false, reconnectErr: errors.New("dial tcp refused")}
	o, _, not := newTestOrchestrator(t, ch)

	o.Handle(transport.ErrorEvent{Message: "internal server error"})
	waitForRecovery(t, o)

	levels, messages := not.snapshot()
	if len(levels) != 1 || levels[0] != LevelError {
		t.Fatalf("expected one error notification, got %v %v", levels, messages)
	}
	if messages[0] != "internal server error" {
		t.Errorf("notification should carry the original message, got %q", messages[0])
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if len(ch.subscribes) != 0 {
		t.Error("failed reconnect must not proceed to resubscription")
	}
}

func TestOrchestrator_ResubscribesRememberedChannels(t *testing.T) {
	ch := &fakeChannel{connected: true, subscribed: []string{transport.ChannelSTT}}
	o, _, _ := newTestOrchestrator(t, ch)

	o.Handle(transport.ErrorEvent{Message: "internal server error"})
	waitForRecovery(t, o)

	ch.mu.Lock()
	defer ch.mu.Unlock()
	if len(ch.subscribes) != 1 || len(ch.subscribes[0]) != 1 || ch.subscribes[0][0] != transport.ChannelSTT {
		t.Errorf("expected resubscription to remembered channels, got %v", ch.subscribes)
	}
}

func TestOrchestrator_RecoverableAgainAfterSequence(t *testing.T) {
	ch := &fakeChannel{connected: true}
	o, _, not := newTestOrchestrator(t, ch)

	o.Handle(transport.ErrorEvent{Message: "internal server error"})
	waitForRecovery(t, o)
	o.Handle(transport.ErrorEvent{Message: "internal server error"})
	waitForRecovery(t, o)

	levels, _ := not.snapshot()
	if len(levels) != 2 {
		t.Errorf("a fresh incident after recovery should notify again, got %d notifications", len(levels))
	}
}
