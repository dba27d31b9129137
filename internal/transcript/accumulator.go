package transcript

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/driftnote/voicectl/internal/transport"
)

// Recorder is the redundant safety hook: a landed transcription result
// always forces recording state back to idle, independent of state
// broadcasts.
type Recorder interface {
	Reset()
}

const maxConsumedIDs = 128

// Accumulator merges transcription results into the active entry buffer
// with continuation semantics: results join with a single space instead of
// overwriting. Each result is consumed exactly once; a re-delivered result
// ID is dropped.
type Accumulator struct {
	recorder Recorder
	log      *slog.Logger

	mu       sync.Mutex
	buffer   string
	consumed map[string]struct{}
	order    []string
	seq      int
	subs     map[int]func(string)
}

func NewAccumulator(recorder Recorder, log *slog.Logger) *Accumulator {
	if log == nil {
		log = slog.Default()
	}
	return &Accumulator{
		recorder: recorder,
		log:      log.With("component", "transcript"),
		consumed: make(map[string]struct{}),
		subs:     make(map[int]func(string)),
	}
}

// Apply consumes one transcription result event.
func (a *Accumulator) Apply(evt transport.TranscriptionEvent) {
	text := strings.TrimSpace(evt.Text)
	if text == "" {
		return
	}

	a.mu.Lock()
	if evt.ResultID != "" {
		if _, seen := a.consumed[evt.ResultID]; seen {
			a.mu.Unlock()
			a.log.Debug("duplicate transcription result dropped", "result_id", evt.ResultID)
			return
		}
		a.markConsumed(evt.ResultID)
	}

	if a.buffer == "" {
		a.buffer = text
	} else {
		a.buffer = a.buffer + " " + text
	}
	buffer := a.buffer
	cbs := a.snapshot()
	a.mu.Unlock()

	a.log.Info("transcription merged", "result_id", evt.ResultID, "chars", len(text))

	if a.recorder != nil {
		a.recorder.Reset()
	}
	for _, cb := range cbs {
		cb(buffer)
	}
}

// Text returns the current entry buffer contents.
func (a *Accumulator) Text() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buffer
}

// SetText replaces the buffer; the UI owns the text and may edit it freely
// between results.
func (a *Accumulator) SetText(text string) {
	a.mu.Lock()
	a.buffer = text
	cbs := a.snapshot()
	buffer := a.buffer
	a.mu.Unlock()

	for _, cb := range cbs {
		cb(buffer)
	}
}

// Clear empties the buffer, typically when the owning UI surface closes.
func (a *Accumulator) Clear() {
	a.SetText("")
}

// OnUpdate registers cb for buffer changes and returns an unsubscribe func.
func (a *Accumulator) OnUpdate(cb func(text string)) func() {
	a.mu.Lock()
	a.seq++
	id := a.seq
	a.subs[id] = cb
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		delete(a.subs, id)
		a.mu.Unlock()
	}
}

// markConsumed remembers a result ID, evicting the oldest beyond the cap.
// Callers hold a.mu.
func (a *Accumulator) markConsumed(id string) {
	a.consumed[id] = struct{}{}
	a.order = append(a.order, id)
	if len(a.order) > maxConsumedIDs {
		oldest := a.order[0]
		a.order = a.order[1:]
		delete(a.consumed, oldest)
	}
}

func (a *Accumulator) snapshot() []func(string) {
	cbs := make([]func(string), 0, len(a.subs))
	for _, cb := range a.subs {
		cbs = append(cbs, cb)
	}
	return cbs
}
