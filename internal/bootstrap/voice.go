package bootstrap

import (
	"context"
	"log/slog"
	"os"

	"go.uber.org/fx"

	"github.com/driftnote/voicectl/internal/api"
	"github.com/driftnote/voicectl/internal/channel"
	"github.com/driftnote/voicectl/internal/playback"
	"github.com/driftnote/voicectl/internal/prefs"
	"github.com/driftnote/voicectl/internal/recording"
	"github.com/driftnote/voicectl/internal/recovery"
	"github.com/driftnote/voicectl/internal/settings"
	"github.com/driftnote/voicectl/internal/shared"
	"github.com/driftnote/voicectl/internal/synthesis"
	"github.com/driftnote/voicectl/internal/transcript"
	"github.com/driftnote/voicectl/internal/transcription"
	"github.com/driftnote/voicectl/internal/transport"
)

func ProvideLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func ProvideChannelManager(cfg *Config, logger *slog.Logger) *channel.Manager {
	return channel.NewManager(channel.Config{
		URL: cfg.ChannelURL,
		Backoff: shared.BackoffConfig{
			Initial:     cfg.ReconnectInitial,
			MaxDelay:    cfg.ReconnectMaxDelay,
			MaxAttempts: cfg.ReconnectAttempts,
		},
	}, logger)
}

func ProvideSettingsStore(cfg *Config, logger *slog.Logger) *settings.Store {
	defaults := settings.Values{
		Hotkey:       cfg.DefaultHotkey,
		VoiceEnabled: true,
	}

	client, err := prefs.New(prefs.Config{BaseURL: cfg.APIBaseURL, Token: cfg.APIToken})
	if err != nil {
		logger.Warn("preferences client unavailable, using defaults", "error", err)
		return settings.NewStore(defaults, logger)
	}

	values, err := client.Load(context.Background())
	if err != nil {
		logger.Warn("preferences load failed, using defaults", "error", err)
		return settings.NewStore(defaults, logger)
	}
	if values.Hotkey == "" {
		values.Hotkey = cfg.DefaultHotkey
	}
	return settings.NewStore(values, logger)
}

func ProvideStateMachine(cfg *Config, manager *channel.Manager, logger *slog.Logger) *recording.StateMachine {
	return recording.NewStateMachine(manager, cfg.StartTimeout, logger)
}

func ProvideHotkeyController(fsm *recording.StateMachine, logger *slog.Logger) *recording.HotkeyController {
	return recording.NewHotkeyController(fsm, logger)
}

func ProvideOrchestrator(cfg *Config, manager *channel.Manager, fsm *recording.StateMachine, logger *slog.Logger) *recovery.Orchestrator {
	return recovery.NewOrchestrator(manager, fsm, nil, recovery.Config{
		Debounce: cfg.RecoveryDebounce,
		Timeout:  cfg.RecoveryTimeout,
	}, logger)
}

func ProvideAccumulator(fsm *recording.StateMachine, logger *slog.Logger) *transcript.Accumulator {
	return transcript.NewAccumulator(fsm, logger)
}

func ProvideSynthesizer(cfg *Config, logger *slog.Logger) synthesis.Synthesizer {
	client, err := synthesis.New(synthesis.Config{URL: cfg.SynthURL, Token: cfg.APIToken})
	if err != nil {
		logger.Warn("synthesis client unavailable, voice output degraded", "error", err)
		return nil
	}
	return client
}

func ProvideTranscriptionClient(cfg *Config, logger *slog.Logger) *transcription.Client {
	client, err := transcription.New(transcription.Config{URL: cfg.UploadURL, Token: cfg.APIToken})
	if err != nil {
		logger.Warn("transcription upload client unavailable", "error", err)
		return nil
	}
	return client
}

func ProvideAPIClient(cfg *Config, logger *slog.Logger) *api.Client {
	client, err := api.New(api.Config{BaseURL: cfg.APIBaseURL, Token: cfg.APIToken})
	if err != nil {
		logger.Warn("api client unavailable", "error", err)
		return nil
	}
	return client
}

func ProvidePipeline(cfg *Config, store *settings.Store, synth synthesis.Synthesizer, logger *slog.Logger) *playback.Pipeline {
	sinks := []playback.Sink{
		playback.NewPCMSink(logger),
		playback.NewPlayerSink(cfg.PlayerCommand, logger),
	}
	return playback.NewPipeline(store, synth, sinks, logger)
}

// WireVoice connects the event plumbing: state broadcasts into the state
// machine, transcription results into the accumulator, channel errors into
// recovery, and the hotkey binding onto the settings store.
func WireVoice(
	lc fx.Lifecycle,
	manager *channel.Manager,
	fsm *recording.StateMachine,
	orchestrator *recovery.Orchestrator,
	accumulator *transcript.Accumulator,
	hotkeys *recording.HotkeyController,
	store *settings.Store,
	pipeline *playback.Pipeline,
	logger *slog.Logger,
) {
	manager.OnStateChange(func(evt transport.StateEvent) {
		fsm.ApplyRemote(evt.State)
	})
	manager.OnTranscription(func(evt transport.TranscriptionEvent) {
		accumulator.Apply(evt)
	})
	manager.OnError(func(evt transport.ErrorEvent) {
		orchestrator.Handle(evt)
	})
	manager.OnMessage(transport.TopicWildcard, func(evt transport.TopicEvent) {
		logger.Debug("channel message", "topic", evt.Topic)
	})
	// Assistant replies arrive as processing-topic messages; read them aloud.
	manager.OnMessage(transport.ChannelProcessing, func(evt transport.TopicEvent) {
		text, ok := evt.Data["response"].(string)
		if !ok || text == "" {
			return
		}
		go func() {
			if err := pipeline.PlayResponse(context.Background(), text); err != nil {
				logger.Debug("response playback skipped", "error", err)
			}
		}()
	})

	store.Subscribe(func(v settings.Values) {
		if v.Hotkey != "" && v.Hotkey != hotkeys.Key() {
			if err := hotkeys.Bind(v.Hotkey); err != nil {
				logger.Warn("hotkey rebind failed", "key", v.Hotkey, "error", err)
			}
		}
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if key := store.Get().Hotkey; key != "" {
				if err := hotkeys.Bind(key); err != nil {
					logger.Warn("hotkey unavailable", "key", key, "error", err)
				}
			}

			go func() {
				if err := manager.Reconnect(context.Background()); err != nil {
					logger.Error("initial channel connection failed", "error", err)
					return
				}
				manager.SubscribeChannels([]string{
					transport.ChannelSTT,
					transport.ChannelRecording,
					transport.ChannelTranscription,
					transport.ChannelProcessing,
				})
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			hotkeys.Close()
			pipeline.Close()
			fsm.Reset()
			return manager.Close()
		},
	})
}

var VoiceModule = fx.Options(
	fx.Provide(
		ProvideLogger,
		ProvideChannelManager,
		ProvideSettingsStore,
		ProvideStateMachine,
		ProvideHotkeyController,
		ProvideOrchestrator,
		ProvideAccumulator,
		ProvideSynthesizer,
		ProvideTranscriptionClient,
		ProvideAPIClient,
		ProvidePipeline,
	),
	fx.Invoke(WireVoice),
)
