package bootstrap

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"

	"github.com/driftnote/voicectl/internal/api"
	"github.com/driftnote/voicectl/internal/channel"
	"github.com/driftnote/voicectl/internal/control"
	"github.com/driftnote/voicectl/internal/playback"
	"github.com/driftnote/voicectl/internal/recording"
	"github.com/driftnote/voicectl/internal/settings"
	"github.com/driftnote/voicectl/internal/transcript"
	"github.com/driftnote/voicectl/internal/transcription"
)

func NewEchoServer() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	return e
}

func ProvideControlHandler(
	manager *channel.Manager,
	fsm *recording.StateMachine,
	pipeline *playback.Pipeline,
	accumulator *transcript.Accumulator,
	store *settings.Store,
	uploader *transcription.Client,
	entries *api.Client,
	logger *slog.Logger,
) *control.Handler {
	return control.NewHandler(manager, fsm, pipeline, accumulator, store, uploader, entries, logger)
}

// StartControlServer serves the loopback control surface used by the
// journaling UI's record button and status display.
func StartControlServer(lc fx.Lifecycle, e *echo.Echo, handler *control.Handler, cfg *Config, logger *slog.Logger) {
	handler.RegisterRoutes(e)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := e.Start(cfg.ControlAddr); err != nil && err != http.ErrServerClosed {
					logger.Error("control server failed", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return e.Shutdown(ctx)
		},
	})
}

var ControlModule = fx.Options(
	fx.Provide(
		NewEchoServer,
		ProvideControlHandler,
	),
	fx.Invoke(StartControlServer),
)

func Run() {
	fx.New(
		fx.Provide(LoadConfig),
		VoiceModule,
		ControlModule,
	).Run()
}
