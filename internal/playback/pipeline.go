package playback

import (
	"context"
	"log/slog"
	"sync"

	"github.com/driftnote/voicectl/internal/settings"
	"github.com/driftnote/voicectl/internal/shared"
	"github.com/driftnote/voicectl/internal/synthesis"
)

// Settings is the slice of the settings store the pipeline watches.
type Settings interface {
	Get() settings.Values
	Subscribe(cb func(settings.Values)) func()
}

// Pipeline drives speech playback for response text. At most one session
// plays at a time; a second PlayResponse while one is active is rejected,
// not queued. Synthesis and decode failures degrade to no audio.
type Pipeline struct {
	prefs Settings
	synth synthesis.Synthesizer
	sinks []Sink
	log   *slog.Logger

	unsubscribe func()

	mu        sync.Mutex
	busy      bool
	cancelled bool
	active    Handle
}

// NewPipeline probes the given sinks and keeps the usable ones in order;
// the first is the primary path, the rest are fallbacks. The pipeline stops
// playback immediately when voice output is disabled.
func NewPipeline(prefs Settings, synth synthesis.Synthesizer, sinks []Sink, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "playback")

	usable := make([]Sink, 0, len(sinks))
	for _, sink := range sinks {
		if err := sink.Probe(); err != nil {
			log.Warn("playback sink unavailable", "sink", sink.Name(), "error", err)
			continue
		}
		usable = append(usable, sink)
	}

	p := &Pipeline{
		prefs: prefs,
		synth: synth,
		sinks: usable,
		log:   log,
	}

	if prefs != nil {
		p.unsubscribe = prefs.Subscribe(func(v settings.Values) {
			if !v.VoiceEnabled {
				p.Stop()
			}
		})
	}
	return p
}

// PlayResponse synthesizes and plays the given response text. Returns nil
// once a session has started (or there was nothing to say); guard
// conditions and pipeline failures come back as errors for the caller to
// log, never to surface to the user.
func (p *Pipeline) PlayResponse(ctx context.Context, text string) error {
	if p.prefs != nil && !p.prefs.Get().VoiceEnabled {
		p.log.Debug("voice output disabled, skipping playback")
		return shared.ErrVoiceDisabled
	}
	if p.synth == nil {
		return shared.ErrNoSynthesizer
	}

	p.mu.Lock()
	if p.busy {
		p.mu.Unlock()
		p.log.Debug("playback already active, rejecting")
		return shared.ErrBusy
	}
	p.busy = true
	p.mu.Unlock()

	cleaned := CleanForSpeech(text)
	if cleaned == "" {
		p.release()
		return nil
	}

	audio, err := p.synth.Synthesize(ctx, cleaned, false)
	if err != nil {
		p.release()
		p.log.Warn("synthesis failed, no audio for this response", "error", err)
		return err
	}

	// Stop or a voice-output disable may have landed while synthesis was in
	// flight; audio must not start in that case.
	p.mu.Lock()
	cancelled := p.cancelled
	p.mu.Unlock()
	if cancelled || (p.prefs != nil && !p.prefs.Get().VoiceEnabled) {
		p.release()
		p.log.Debug("playback cancelled during synthesis")
		return shared.ErrVoiceDisabled
	}

	var lastErr error = shared.ErrNoSynthesizer
	for _, sink := range p.sinks {
		handle, err := sink.Play(audio, p.onSessionDone)
		if err != nil {
			p.log.Warn("playback path failed, trying next", "sink", sink.Name(), "error", err)
			lastErr = err
			continue
		}
		p.mu.Lock()
		p.active = handle
		p.mu.Unlock()
		p.log.Info("playback started", "sink", sink.Name(), "chars", len(cleaned))
		return nil
	}

	p.release()
	p.log.Warn("all playback paths failed", "error", lastErr)
	return lastErr
}

// Stop ends the active session, if any, and releases its resources. A stop
// that lands between PlayResponse admission and the first sink write marks
// the session cancelled so the audio never starts.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	handle := p.active
	if p.busy && handle == nil {
		p.cancelled = true
	}
	p.mu.Unlock()

	if handle != nil {
		handle.Stop()
	}
}

func (p *Pipeline) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.busy
}

func (p *Pipeline) Close() {
	if p.unsubscribe != nil {
		p.unsubscribe()
	}
	p.Stop()
}

// onSessionDone fires exactly once per session, on natural completion or
// explicit stop.
func (p *Pipeline) onSessionDone() {
	p.mu.Lock()
	p.busy = false
	p.cancelled = false
	p.active = nil
	p.mu.Unlock()
	p.log.Debug("playback session released")
}

func (p *Pipeline) release() {
	p.mu.Lock()
	p.busy = false
	p.cancelled = false
	p.active = nil
	p.mu.Unlock()
}
