package recovery

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bep/debounce"

	"github.com/driftnote/voicectl/internal/transport"
)

// Channel is the slice of the connection manager recovery needs.
type Channel interface {
	IsConnected() bool
	Reconnect(ctx context.Context) error
	SubscribeChannels(names []string)
	SubscribedChannels() []string
	ResetRecording()
}

// Recorder is the slice of the recording state machine recovery may mutate.
type Recorder interface {
	Reset()
}

// Notifier receives the single consolidated user-facing notification per
// incident.
type Notifier interface {
	Notify(level, message string)
}

// LogNotifier is the default Notifier; it only writes to the log.
type LogNotifier struct {
	Log *slog.Logger
}

func (n LogNotifier) Notify(level, message string) {
	log := n.Log
	if log == nil {
		log = slog.Default()
	}
	switch level {
	case LevelError:
		log.Error("notification", "message", message)
	default:
		log.Info("notification", "message", message)
	}
}

const (
	LevelInfo  = "info"
	LevelError = "error"
)

const defaultDebounce = 300 * time.Millisecond

// Markers of routine noise that never reaches the user: connection churn
// during reconnect cycles and start/stop races the server already rejected.
var transientMarkers = []string{
	"connection",
	"cannot start recording in state",
	"cannot stop recording in state",
}

// Orchestrator turns raw channel errors into at most one user-visible
// outcome per incident. Transient errors silently reset local recording
// state; critical errors trigger a single-flight reconnect, channel
// resubscription and server-side session reset.
type Orchestrator struct {
	ch       Channel
	recorder Recorder
	notifier Notifier
	log      *slog.Logger

	timeout   time.Duration
	debounced func(func())

	mu         sync.Mutex
	recovering bool
}

type Config struct {
	Debounce time.Duration
	// Timeout bounds one whole recovery sequence.
	Timeout time.Duration
}

func NewOrchestrator(ch Channel, recorder Recorder, notifier Notifier, cfg Config, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if notifier == nil {
		notifier = LogNotifier{Log: log}
	}
	return &Orchestrator{
		ch:        ch,
		recorder:  recorder,
		notifier:  notifier,
		log:       log.With("component", "recovery"),
		timeout:   cfg.Timeout,
		debounced: debounce.New(cfg.Debounce),
	}
}

// Handle is invoked for every channel error event.
func (o *Orchestrator) Handle(evt transport.ErrorEvent) {
	if IsTransient(evt.Message) {
		o.log.Debug("transient channel error", "message", evt.Message)
		o.recorder.Reset()
		return
	}

	o.mu.Lock()
	if o.recovering {
		o.mu.Unlock()
		o.log.Debug("recovery already in flight, ignoring error", "message", evt.Message)
		return
	}
	o.recovering = true
	o.mu.Unlock()

	o.log.Warn("critical channel error, scheduling recovery", "message", evt.Message)
	o.recorder.Reset()

	msg := evt.Message
	o.debounced(func() {
		o.runSequence(msg)
	})
}

// Recovering reports whether a recovery sequence is in flight.
func (o *Orchestrator) Recovering() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.recovering
}

func (o *Orchestrator) runSequence(originalMsg string) {
	defer func() {
		o.mu.Lock()
		o.recovering = false
		o.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	if !o.ch.IsConnected() {
		if err := o.ch.Reconnect(ctx); err != nil {
			o.log.Error("recovery reconnect failed", "error", err)
			o.notifier.Notify(LevelError, originalMsg)
			return
		}
	}

	names := o.ch.SubscribedChannels()
	if len(names) == 0 {
		names = []string{
			transport.ChannelSTT,
			transport.ChannelRecording,
			transport.ChannelTranscription,
			transport.ChannelProcessing,
		}
	}
	o.ch.SubscribeChannels(names)
	o.ch.ResetRecording()

	o.log.Info("recovery sequence complete")
	o.notifier.Notify(LevelInfo, "voice connection recovered")
}

// IsTransient reports whether an error message is routine churn that should
// be swallowed rather than recovered from.
func IsTransient(message string) bool {
	lower := strings.ToLower(message)
	for _, marker := range transientMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
