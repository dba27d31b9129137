package recording

import (
	"log/slog"
	"sync"
	"time"
)

type State string

const (
	StateIdle         State = "idle"
	StateRecording    State = "recording"
	StateProcessing   State = "processing"
	StateTranscribing State = "transcribing"
)

// Source records what triggered the active capture. Purely descriptive; it
// never affects protocol behavior.
type Source string

const (
	SourceNone   Source = "none"
	SourceHotkey Source = "hotkey"
	SourceButton Source = "button"
)

// Intents is the write side of the channel: fire-and-forget recording
// intents whose acknowledgment arrives later as a state broadcast.
type Intents interface {
	StartRecording()
	StopRecording()
}

const defaultStartTimeout = 5 * time.Second

// StateMachine is the authoritative client-side view of the capture
// lifecycle. Local Start/Stop calls mutate it optimistically; remote state
// broadcasts always win. The starting latch guarantees at most one start
// intent is in flight before the server acknowledges.
type StateMachine struct {
	intents Intents
	log     *slog.Logger

	mu           sync.Mutex
	state        State
	starting     bool
	source       Source
	startTimeout time.Duration
	latchTimer   *time.Timer
	seq          int
	subs         map[int]func(State)
}

func NewStateMachine(intents Intents, startTimeout time.Duration, log *slog.Logger) *StateMachine {
	if log == nil {
		log = slog.Default()
	}
	if startTimeout <= 0 {
		startTimeout = defaultStartTimeout
	}
	return &StateMachine{
		intents:      intents,
		log:          log.With("component", "recording"),
		state:        StateIdle,
		source:       SourceNone,
		startTimeout: startTimeout,
		subs:         make(map[int]func(State)),
	}
}

// Start requests a new capture. It is a guarded no-op unless the state is
// exactly Idle and no start is already in flight. Returns whether a start
// intent was sent.
func (sm *StateMachine) Start(source Source) bool {
	sm.mu.Lock()
	if sm.starting || sm.state != StateIdle {
		state, starting := sm.state, sm.starting
		sm.mu.Unlock()
		sm.log.Debug("start ignored", "state", state, "starting", starting)
		return false
	}
	sm.starting = true
	sm.state = StateRecording
	sm.source = source
	sm.armLatchTimer()
	cbs := sm.snapshot()
	sm.mu.Unlock()

	sm.intents.StartRecording()
	sm.log.Info("recording start requested", "source", source)
	sm.notify(cbs, StateRecording)
	return true
}

// Stop requests the end of the active capture. Only valid from Recording;
// anything else is silently ignored.
func (sm *StateMachine) Stop() bool {
	sm.mu.Lock()
	if sm.state != StateRecording {
		state := sm.state
		sm.mu.Unlock()
		sm.log.Debug("stop ignored", "state", state)
		return false
	}
	sm.state = StateProcessing
	cbs := sm.snapshot()
	sm.mu.Unlock()

	sm.intents.StopRecording()
	sm.log.Info("recording stop requested")
	sm.notify(cbs, StateProcessing)
	return true
}

// ApplyRemote applies a server state broadcast. Remote state is
// authoritative: it overwrites whatever the local optimistic state was and
// unconditionally clears the starting latch.
func (sm *StateMachine) ApplyRemote(state string) {
	parsed, ok := parseState(state)
	if !ok {
		sm.log.Warn("ignoring unknown remote state", "state", state)
		return
	}

	sm.mu.Lock()
	sm.starting = false
	sm.stopLatchTimer()
	changed := sm.state != parsed
	sm.state = parsed
	if parsed == StateIdle {
		sm.source = SourceNone
	}
	cbs := sm.snapshot()
	sm.mu.Unlock()

	if changed {
		sm.log.Debug("remote state applied", "state", parsed)
		sm.notify(cbs, parsed)
	}
}

// Reset forces the machine back to Idle and clears the latch and source tag.
// Used by the recovery orchestrator and as a redundant safety signal when a
// transcription result lands.
func (sm *StateMachine) Reset() {
	sm.mu.Lock()
	sm.starting = false
	sm.stopLatchTimer()
	changed := sm.state != StateIdle
	sm.state = StateIdle
	sm.source = SourceNone
	cbs := sm.snapshot()
	sm.mu.Unlock()

	if changed {
		sm.notify(cbs, StateIdle)
	}
}

// ClearSource drops the source tag without touching the lifecycle state.
func (sm *StateMachine) ClearSource() {
	sm.mu.Lock()
	sm.source = SourceNone
	sm.mu.Unlock()
}

func (sm *StateMachine) State() State {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.state
}

func (sm *StateMachine) Source() Source {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.source
}

func (sm *StateMachine) Starting() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.starting
}

// OnChange registers cb for state transitions and returns an unsubscribe
// func.
func (sm *StateMachine) OnChange(cb func(State)) func() {
	sm.mu.Lock()
	sm.seq++
	id := sm.seq
	sm.subs[id] = cb
	sm.mu.Unlock()

	return func() {
		sm.mu.Lock()
		delete(sm.subs, id)
		sm.mu.Unlock()
	}
}

// armLatchTimer starts the safety net that recovers from a dropped start
// acknowledgment. It must not fire once a broadcast has cleared the latch.
// Callers hold sm.mu.
func (sm *StateMachine) armLatchTimer() {
	sm.stopLatchTimer()
	sm.latchTimer = time.AfterFunc(sm.startTimeout, sm.onLatchTimeout)
}

func (sm *StateMachine) stopLatchTimer() {
	if sm.latchTimer != nil {
		sm.latchTimer.Stop()
		sm.latchTimer = nil
	}
}

func (sm *StateMachine) onLatchTimeout() {
	sm.mu.Lock()
	if !sm.starting {
		sm.mu.Unlock()
		return
	}
	sm.starting = false
	sm.latchTimer = nil
	sm.state = StateIdle
	sm.source = SourceNone
	cbs := sm.snapshot()
	sm.mu.Unlock()

	sm.log.Warn("start acknowledgment never arrived, forcing idle")
	sm.notify(cbs, StateIdle)
}

func (sm *StateMachine) snapshot() []func(State) {
	cbs := make([]func(State), 0, len(sm.subs))
	for _, cb := range sm.subs {
		cbs = append(cbs, cb)
	}
	return cbs
}

func (sm *StateMachine) notify(cbs []func(State), state State) {
	for _, cb := range cbs {
		cb(state)
	}
}

func parseState(s string) (State, bool) {
	switch State(s) {
	case StateIdle, StateRecording, StateProcessing, StateTranscribing:
		return State(s), true
	}
	return "", false
}
