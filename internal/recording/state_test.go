package recording

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type fakeIntents struct {
	mu     sync.Mutex
	starts int
	stops  int
}

func (f *fakeIntents) StartRecording() {
	f.mu.Lock()
	f.starts++
	f.mu.Unlock()
}

func (f *fakeIntents) StopRecording() {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
}

func (f *fakeIntents) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

func newTestMachine(t *testing.T, timeout time.Duration) (*StateMachine, *fakeIntents) {
	t.Helper()
	intents := &fakeIntents{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewStateMachine(intents, timeout, log), intents
}

func TestStateMachine_InitialState(t *testing.T) {
	sm, _ := newTestMachine(t, 0)
	if sm.State() != StateIdle {
		t.Errorf("expected initial state %s, got %s", StateIdle, sm.State())
	}
	if sm.Source() != SourceNone {
		t.Errorf("expected initial source %s, got %s", SourceNone, sm.Source())
	}
	if sm.Starting() {
		t.Error("starting latch should be unset initially")
	}
}

func TestStateMachine_Start(t *testing.T) {
	sm, intents := newTestMachine(t, 0)
	if !sm.Start(SourceHotkey) {
		t.Fatal("start from idle should succeed")
	}
	if sm.State() != StateRecording {
		t.Errorf("expected optimistic state %s, got %s", StateRecording, sm.State())
	}
	if sm.Source() != SourceHotkey {
		t.Errorf("expected source %s, got %s", SourceHotkey, sm.Source())
	}
	if !sm.Starting() {
		t.Error("starting latch should be set after start")
	}
	starts, _ := intents.counts()
	if starts != 1 {
		t.Errorf("expected 1 start intent, got %d", starts)
	}
}

func TestStateMachine_Start_AtMostOneInFlight(t *testing.T) {
	sm, intents := newTestMachine(t, 0)
	sm.Start(SourceHotkey)
	if sm.Start(SourceButton) {
		t.Error("second start while first is outstanding should be a no-op")
	}
	starts, _ := intents.counts()
	if starts != 1 {
		t.Errorf("expected exactly 1 start intent, got %d", starts)
	}
}

func TestStateMachine_Start_IgnoredWhenNotIdle(t *testing.T) {
	sm, intents := newTestMachine(t, 0)
	sm.ApplyRemote("processing")
	if sm.Start(SourceButton) {
		t.Error("start outside idle should be a no-op")
	}
	starts, _ := intents.counts()
	if starts != 0 {
		t.Errorf("expected 0 start intents, got %d", starts)
	}
}

func TestStateMachine_Stop(t *testing.T) {
	sm, intents := newTestMachine(t, 0)
	sm.Start(SourceHotkey)
	if !sm.Stop() {
		t.Fatal("stop while recording should succeed")
	}
	if sm.State() != StateProcessing {
		t.Errorf("expected state %s, got %s", StateProcessing, sm.State())
	}
	_, stops := intents.counts()
	if stops != 1 {
		t.Errorf("expected 1 stop intent, got %d", stops)
	}
}

func TestStateMachine_Stop_IgnoredWhenIdle(t *testing.T) {
	sm, intents := newTestMachine(t, 0)
	if sm.Stop() {
		t.Error("stop while idle should be a no-op")
	}
	_, stops := intents.counts()
	if stops != 0 {
		t.Errorf("expected 0 stop intents, got %d", stops)
	}
}

func TestStateMachine_RemoteIsAuthoritative(t *testing.T) {
	sm, _ := newTestMachine(t, 0)
	sm.Start(SourceHotkey)
	sm.ApplyRemote("idle")
	if sm.State() != StateIdle {
		t.Errorf("remote idle should overwrite optimistic recording, got %s", sm.State())
	}
	if sm.Starting() {
		t.Error("remote broadcast should clear the starting latch")
	}
}

func TestStateMachine_RemoteClearsLatchOnAnyState(t *testing.T) {
	sm, _ := newTestMachine(t, 0)
	sm.Start(SourceHotkey)
	sm.ApplyRemote("recording")
	if sm.Starting() {
		t.Error("latch should clear even when remote confirms recording")
	}
	if sm.State() != StateRecording {
		t.Errorf("expected state %s, got %s", StateRecording, sm.State())
	}
}

func TestStateMachine_RemoteUnknownIgnored(t *testing.T) {
	sm, _ := newTestMachine(t, 0)
	sm.ApplyRemote("exploded")
	if sm.State() != StateIdle {
		t.Errorf("unknown remote state should be ignored, got %s", sm.State())
	}
}

func TestStateMachine_StartAllowedAgainAfterRemoteIdle(t *testing.T) {
	sm, intents := newTestMachine(t, 0)
	sm.Start(SourceHotkey)
	sm.ApplyRemote("idle")
	if !sm.Start(SourceHotkey) {
		t.Error("start should be permitted again after remote idle")
	}
	starts, _ := intents.counts()
	if starts != 2 {
		t.Errorf("expected 2 start intents, got %d", starts)
	}
}

func TestStateMachine_LatchSafetyNet(t *testing.T) {
	sm, _ := newTestMachine(t, 20*time.Millisecond)
	sm.Start(SourceHotkey)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if !sm.Starting() && sm.State() == StateIdle {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("safety net never fired: starting=%v state=%s", sm.Starting(), sm.State())
}

func TestStateMachine_SafetyNetDoesNotFireAfterBroadcast(t *testing.T) {
	sm, _ := newTestMachine(t, 30*time.Millisecond)
	sm.Start(SourceHotkey)
	sm.ApplyRemote("recording")

	time.Sleep(60 * time.Millisecond)
	if sm.State() != StateRecording {
		t.Errorf("safety net must not fire once a broadcast cleared the latch, got %s", sm.State())
	}
}

func TestStateMachine_Reset(t *testing.T) {
	sm, _ := newTestMachine(t, 0)
	sm.Start(SourceButton)
	sm.Reset()
	if sm.State() != StateIdle {
		t.Errorf("expected state %s after reset, got %s", StateIdle, sm.State())
	}
	if sm.Starting() {
		t.Error("reset should clear the starting latch")
	}
	if sm.Source() != SourceNone {
		t.Errorf("reset should clear the source tag, got %s", sm.Source())
	}
}

func TestStateMachine_OnChange(t *testing.T) {
	sm, _ := newTestMachine(t, 0)

	var mu sync.Mutex
	var seen []State
	unsubscribe := sm.OnChange(func(s State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	sm.Start(SourceHotkey)
	sm.ApplyRemote("processing")
	unsubscribe()
	sm.ApplyRemote("idle")

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("expected 2 notifications, got %d: %v", len(seen), seen)
	}
	if seen[0] != StateRecording || seen[1] != StateProcessing {
		t.Errorf("unexpected notification order: %v", seen)
	}
}
