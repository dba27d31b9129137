package settings

import (
	"log/slog"
	"sync"
)

// Values are the user preferences the control plane depends on. They are
// seeded from the preferences service at startup and updated via Set calls.
type Values struct {
	Hotkey        string
	MemoryEnabled bool
	VoiceEnabled  bool
}

// Store is the process-wide owner of preference values. Components subscribe
// for changes instead of sharing a mutable flag.
type Store struct {
	mu     sync.Mutex
	values Values
	seq    int
	subs   map[int]func(Values)
	log    *slog.Logger
}

func NewStore(initial Values, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		values: initial,
		subs:   make(map[int]func(Values)),
		log:    log.With("component", "settings"),
	}
}

func (s *Store) Get() Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values
}

func (s *Store) SetVoiceEnabled(enabled bool) {
	s.update(func(v *Values) { v.VoiceEnabled = enabled })
}

func (s *Store) SetMemoryEnabled(enabled bool) {
	s.update(func(v *Values) { v.MemoryEnabled = enabled })
}

func (s *Store) SetHotkey(key string) {
	s.update(func(v *Values) { v.Hotkey = key })
}

func (s *Store) update(mutate func(*Values)) {
	s.mu.Lock()
	before := s.values
	mutate(&s.values)
	after := s.values
	cbs := s.snapshot()
	s.mu.Unlock()

	if before == after {
		return
	}
	s.log.Debug("settings changed",
		"hotkey", after.Hotkey,
		"voice_enabled", after.VoiceEnabled,
		"memory_enabled", after.MemoryEnabled)
	for _, cb := range cbs {
		cb(after)
	}
}

// Subscribe registers cb for every settings change and returns an
// unsubscribe func. The current values are not replayed; call Get first.
func (s *Store) Subscribe(cb func(Values)) func() {
	s.mu.Lock()
	s.seq++
	id := s.seq
	s.subs[id] = cb
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) snapshot() []func(Values) {
	cbs := make([]func(Values), 0, len(s.subs))
	for _, cb := range s.subs {
		cbs = append(cbs, cb)
	}
	return cbs
}
