package channel

import (
	"sync"

	"github.com/driftnote/voicectl/internal/transport"
)

// subscribers is a fan-out registry for one event kind. Each add returns an
// unsubscribe func; multiple callbacks per event are supported.
type subscribers[T any] struct {
	mu   sync.Mutex
	seq  int
	subs map[int]func(T)
}

func newSubscribers[T any]() *subscribers[T] {
	return &subscribers[T]{subs: make(map[int]func(T))}
}

func (s *subscribers[T]) add(cb func(T)) func() {
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

func (s *subscribers[T]) emit(event T) {
	s.mu.Lock()
	cbs := make([]func(T), 0, len(s.subs))
	for _, cb := range s.subs {
		cbs = append(cbs, cb)
	}
	s.mu.Unlock()

	for _, cb := range cbs {
		cb(event)
	}
}

// topicSubscribers routes topic messages to per-topic and wildcard callbacks.
type topicSubscribers struct {
	mu   sync.Mutex
	seq  int
	subs map[string]map[int]func(transport.TopicEvent)
}

func newTopicSubscribers() *topicSubscribers {
	return &topicSubscribers{subs: make(map[string]map[int]func(transport.TopicEvent))}
}

func (t *topicSubscribers) add(topic string, cb func(transport.TopicEvent)) func() {
	t.mu.Lock()
	t.seq++
	id := t.seq
	if t.subs[topic] == nil {
		t.subs[topic] = make(map[int]func(transport.TopicEvent))
	}
	t.subs[topic][id] = cb
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.subs[topic], id)
		t.mu.Unlock()
	}
}

func (t *topicSubscribers) emit(event transport.TopicEvent) {
	t.mu.Lock()
	var cbs []func(transport.TopicEvent)
	for _, cb := range t.subs[event.Topic] {
		cbs = append(cbs, cb)
	}
	if event.Topic != transport.TopicWildcard {
		for _, cb := range t.subs[transport.TopicWildcard] {
			cbs = append(cbs, cb)
		}
	}
	t.mu.Unlock()

	for _, cb := range cbs {
		cb(event)
	}
}
