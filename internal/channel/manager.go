package channel

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/driftnote/voicectl/internal/shared"
	"github.com/driftnote/voicectl/internal/transport"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
	sendBufferSize = 128
)

type Config struct {
	URL     string
	Backoff shared.BackoffConfig
	Dialer  *websocket.Dialer
}

// Manager owns the single persistent channel to the journaling server. All
// recording intents are sent through it and all server events fan out from it.
type Manager struct {
	cfg Config
	log *slog.Logger

	mu         sync.Mutex
	sess       *session
	connected  bool
	connecting chan struct{}
	redialing  bool
	subscribed []string
	closed     bool

	connSubs  *subscribers[bool]
	stateSubs *subscribers[transport.StateEvent]
	transSubs *subscribers[transport.TranscriptionEvent]
	errSubs   *subscribers[transport.ErrorEvent]
	topicSubs *topicSubscribers
}

type session struct {
	ws   *websocket.Conn
	send chan *transport.Envelope
	done chan struct{}
	once sync.Once
}

func (s *session) close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.ws.Close()
	})
}

func NewManager(cfg Config, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	cfg.Backoff = cfg.Backoff.Normalize()
	return &Manager{
		cfg:       cfg,
		log:       log.With("component", "channel"),
		connSubs:  newSubscribers[bool](),
		stateSubs: newSubscribers[transport.StateEvent](),
		transSubs: newSubscribers[transport.TranscriptionEvent](),
		errSubs:   newSubscribers[transport.ErrorEvent](),
		topicSubs: newTopicSubscribers(),
	}
}

// Connect establishes the channel. It is idempotent while connected, and
// concurrent calls while a dial is outstanding are coalesced onto the one
// in-flight attempt. Expected network failures are returned to the caller
// and reported through the error subscription; they never panic.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return shared.ErrAlreadyClosed
	}
	if m.connected {
		m.mu.Unlock()
		return nil
	}
	if m.connecting != nil {
		wait := m.connecting
		m.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
		if m.IsConnected() {
			return nil
		}
		return shared.ErrNotConnected
	}
	attempt := make(chan struct{})
	m.connecting = attempt
	m.mu.Unlock()

	err := m.dial(ctx)

	m.mu.Lock()
	m.connecting = nil
	m.mu.Unlock()
	close(attempt)
	return err
}

func (m *Manager) dial(ctx context.Context) error {
	ws, _, err := m.cfg.Dialer.DialContext(ctx, m.cfg.URL, nil)
	if err != nil {
		m.log.Warn("channel dial failed", "url", m.cfg.URL, "error", err)
		m.errSubs.emit(transport.ErrorEvent{Message: "connection failed: " + err.Error()})
		return err
	}

	s := &session{
		ws:   ws,
		send: make(chan *transport.Envelope, sendBufferSize),
		done: make(chan struct{}),
	}

	m.mu.Lock()
	m.sess = s
	m.connected = true
	m.mu.Unlock()

	go m.writePump(s)
	go m.readPump(s)

	m.log.Info("channel connected", "url", m.cfg.URL)
	m.connSubs.emit(true)
	return nil
}

// Reconnect redials with exponential backoff until the channel is up or
// attempts are exhausted.
func (m *Manager) Reconnect(ctx context.Context) error {
	cfg := m.cfg.Backoff
	delay := cfg.Initial
	var err error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err = m.Connect(ctx); err == nil {
			return nil
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = cfg.Next(delay)
	}
	return err
}

func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// SubscribeChannels declares interest in the named event topics. Safe to
// call repeatedly; the server decides whether a topic exists. The names are
// remembered so recovery can replay them after a reconnect.
func (m *Manager) SubscribeChannels(names []string) {
	m.mu.Lock()
	m.subscribed = append([]string(nil), names...)
	m.mu.Unlock()

	m.enqueue(&transport.Envelope{
		Type:     transport.MessageTypeSubscribeChannels,
		Channels: names,
	})
}

// SubscribedChannels returns the most recently declared topic names.
func (m *Manager) SubscribedChannels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.subscribed...)
}

// StartRecording, StopRecording and ResetRecording are fire-and-forget
// intents. Acknowledgment arrives asynchronously as a state_update event.
func (m *Manager) StartRecording() { m.sendIntent(transport.MessageTypeStartRecording) }
func (m *Manager) StopRecording()  { m.sendIntent(transport.MessageTypeStopRecording) }
func (m *Manager) ResetRecording() { m.sendIntent(transport.MessageTypeResetRecording) }

func (m *Manager) sendIntent(t transport.MessageType) {
	m.enqueue(&transport.Envelope{
		Type:      t,
		RequestID: uuid.New().String(),
	})
}

func (m *Manager) enqueue(env *transport.Envelope) {
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now().UTC()
	}

	m.mu.Lock()
	s := m.sess
	connected := m.connected
	m.mu.Unlock()

	if !connected || s == nil {
		m.log.Warn("intent dropped, channel not connected", "type", env.Type)
		return
	}

	select {
	case s.send <- env:
	default:
		m.log.Warn("send buffer full, dropping message", "type", env.Type)
	}
}

func (m *Manager) OnConnectionChange(cb func(connected bool)) func() {
	return m.connSubs.add(cb)
}

func (m *Manager) OnStateChange(cb func(transport.StateEvent)) func() {
	return m.stateSubs.add(cb)
}

func (m *Manager) OnTranscription(cb func(transport.TranscriptionEvent)) func() {
	return m.transSubs.add(cb)
}

func (m *Manager) OnError(cb func(transport.ErrorEvent)) func() {
	return m.errSubs.add(cb)
}

// OnMessage subscribes to out-of-band topic messages. Pass
// transport.TopicWildcard to receive every topic.
func (m *Manager) OnMessage(topic string, cb func(transport.TopicEvent)) func() {
	return m.topicSubs.add(topic, cb)
}

func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	s := m.sess
	m.sess = nil
	m.connected = false
	m.mu.Unlock()

	if s != nil {
		s.close()
	}
	return nil
}

func (m *Manager) readPump(s *session) {
	defer m.handleDisconnect(s)

	s.ws.SetReadLimit(maxMessageSize)
	_ = s.ws.SetReadDeadline(time.Now().Add(pongWait))
	s.ws.SetPongHandler(func(string) error {
		_ = s.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-s.done:
			return
		default:
		}

		_, message, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.log.Error("channel read error", "error", err)
			}
			return
		}

		var env transport.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			m.log.Error("failed to unmarshal channel event", "error", err)
			continue
		}

		m.dispatch(&env)
	}
}

// dispatch delivers inbound events to subscribers in receipt order.
func (m *Manager) dispatch(env *transport.Envelope) {
	switch env.Type {
	case transport.MessageTypeStateUpdate:
		m.stateSubs.emit(transport.StateEvent{State: env.State})
	case transport.MessageTypeTranscriptionResult:
		m.transSubs.emit(transport.TranscriptionEvent{
			ResultID: env.ResultID,
			Text:     env.Text,
		})
	case transport.MessageTypeError:
		m.errSubs.emit(transport.ErrorEvent{Message: env.Message})
	case transport.MessageTypeMessage:
		m.topicSubs.emit(transport.TopicEvent{Topic: env.Topic, Data: env.Data})
	default:
		m.log.Debug("ignoring unknown channel event", "type", env.Type)
	}
}

func (m *Manager) writePump(s *session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case env, ok := <-s.send:
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(env)
			if err != nil {
				m.log.Error("failed to marshal intent", "type", env.Type, "error", err)
				continue
			}

			if err := s.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				m.log.Error("channel write error", "error", err)
				return
			}

		case <-ticker.C:
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.done:
			return
		}
	}
}

func (m *Manager) handleDisconnect(s *session) {
	s.close()

	m.mu.Lock()
	current := m.sess == s
	if current {
		m.sess = nil
		m.connected = false
	}
	closed := m.closed
	m.mu.Unlock()

	if !current {
		return
	}

	m.log.Info("channel disconnected")
	m.connSubs.emit(false)
	if !closed {
		m.errSubs.emit(transport.ErrorEvent{Message: "connection lost"})
		go m.redial()
	}
}

// redial restores a dropped channel in the background and replays the
// remembered topic subscriptions. At most one redial loop runs at a time;
// exhausting the backoff budget escalates through the error subscription so
// the recovery orchestrator takes over.
func (m *Manager) redial() {
	m.mu.Lock()
	if m.redialing || m.closed || m.connected {
		m.mu.Unlock()
		return
	}
	m.redialing = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.redialing = false
		m.mu.Unlock()
	}()

	if err := m.Reconnect(context.Background()); err != nil {
		m.mu.Lock()
		closed := m.closed
		m.mu.Unlock()
		if closed {
			return
		}
		m.log.Error("channel redial failed", "error", err)
		// Deliberately not the dial error text: that would classify as
		// routine connection churn and never reach recovery.
		m.errSubs.emit(transport.ErrorEvent{Message: "voice channel unavailable after redial attempts"})
		return
	}

	m.mu.Lock()
	names := append([]string(nil), m.subscribed...)
	m.mu.Unlock()
	if len(names) > 0 {
		m.SubscribeChannels(names)
	}
}
