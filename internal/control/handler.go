package control

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/driftnote/voicectl/internal/api"
	"github.com/driftnote/voicectl/internal/playback"
	"github.com/driftnote/voicectl/internal/recording"
	"github.com/driftnote/voicectl/internal/settings"
	"github.com/driftnote/voicectl/internal/shared"
	"github.com/driftnote/voicectl/internal/transcript"
	"github.com/driftnote/voicectl/internal/transcription"
	"github.com/driftnote/voicectl/internal/transport"
)

// Channel is the slice of the connection manager the control surface reads
// and the one write path it may use.
type Channel interface {
	IsConnected() bool
	ResetRecording()
}

type StatusResponse struct {
	Connected     bool      `json:"connected"`
	State         string    `json:"state"`
	Source        string    `json:"source"`
	Starting      bool      `json:"starting"`
	Playing       bool      `json:"playing"`
	Buffer        string    `json:"buffer"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	Timestamp     time.Time `json:"timestamp"`
}

// Handler exposes the loopback control surface: the journaling UI's button
// path and a status probe. Button-triggered intents are tagged
// source=button; the tag is descriptive only.
type Handler struct {
	ch        Channel
	fsm       *recording.StateMachine
	pipeline  *playback.Pipeline
	buffer    *transcript.Accumulator
	store     *settings.Store
	uploader  *transcription.Client
	entries   *api.Client
	logger    *slog.Logger
	startTime time.Time
}

func NewHandler(
	ch Channel,
	fsm *recording.StateMachine,
	pipeline *playback.Pipeline,
	buffer *transcript.Accumulator,
	store *settings.Store,
	uploader *transcription.Client,
	entries *api.Client,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		ch:        ch,
		fsm:       fsm,
		pipeline:  pipeline,
		buffer:    buffer,
		store:     store,
		uploader:  uploader,
		entries:   entries,
		logger:    logger.With("component", "control"),
		startTime: time.Now(),
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	e.GET("/v1/status", h.Status)
	e.POST("/v1/recording/start", h.StartRecording)
	e.POST("/v1/recording/stop", h.StopRecording)
	e.POST("/v1/recording/reset", h.ResetRecording)
	e.POST("/v1/speak", h.Speak)
	e.POST("/v1/playback/stop", h.StopPlayback)
	e.PATCH("/v1/settings", h.UpdateSettings)
	e.POST("/v1/transcriptions", h.Transcribe)
	e.POST("/v1/entries", h.SaveEntry)
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, StatusResponse{
		Connected:     h.ch.IsConnected(),
		State:         string(h.fsm.State()),
		Source:        string(h.fsm.Source()),
		Starting:      h.fsm.Starting(),
		Playing:       h.pipeline.IsPlaying(),
		Buffer:        h.buffer.Text(),
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Timestamp:     time.Now().UTC(),
	})
}

func (h *Handler) StartRecording(c echo.Context) error {
	if !h.ch.IsConnected() {
		return shared.Conflict("not_connected", "voice channel is not connected")
	}
	if !h.fsm.Start(recording.SourceButton) {
		return shared.Conflict("already_recording", "a capture is already in progress")
	}
	return c.JSON(http.StatusAccepted, map[string]string{"state": string(h.fsm.State())})
}

func (h *Handler) StopRecording(c echo.Context) error {
	if !h.fsm.Stop() {
		return shared.Conflict("not_recording", "no capture in progress")
	}
	return c.JSON(http.StatusAccepted, map[string]string{"state": string(h.fsm.State())})
}

func (h *Handler) ResetRecording(c echo.Context) error {
	h.fsm.Reset()
	h.ch.ResetRecording()
	return c.JSON(http.StatusAccepted, map[string]string{"state": string(h.fsm.State())})
}

type speakRequest struct {
	Text string `json:"text"`
}

// Speak feeds response text into the playback pipeline. The UI calls this
// with assistant replies it wants read aloud.
func (h *Handler) Speak(c echo.Context) error {
	var req speakRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		return shared.BadRequest("invalid_text", "text is required")
	}

	if err := h.pipeline.PlayResponse(c.Request().Context(), req.Text); err != nil {
		switch {
		case errors.Is(err, shared.ErrVoiceDisabled):
			return shared.Conflict("voice_disabled", "voice output is disabled")
		case errors.Is(err, shared.ErrBusy):
			return shared.Conflict("playback_busy", "a playback session is already active")
		default:
			return shared.InternalError("playback_failed", err.Error())
		}
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "playing"})
}

func (h *Handler) StopPlayback(c echo.Context) error {
	h.pipeline.Stop()
	return c.JSON(http.StatusAccepted, map[string]string{"status": "stopped"})
}

type settingsRequest struct {
	Hotkey        *string `json:"hotkey"`
	VoiceEnabled  *bool   `json:"voice_enabled"`
	MemoryEnabled *bool   `json:"memory_enabled"`
}

type settingsResponse struct {
	Hotkey        string `json:"hotkey"`
	VoiceEnabled  bool   `json:"voice_enabled"`
	MemoryEnabled bool   `json:"memory_enabled"`
}

// UpdateSettings applies partial preference changes. Hotkey values are
// validated before they reach the store so a bad key never unbinds a
// working one.
func (h *Handler) UpdateSettings(c echo.Context) error {
	var req settingsRequest
	if err := c.Bind(&req); err != nil {
		return shared.BadRequest("invalid_settings", "malformed settings payload")
	}

	if req.Hotkey != nil {
		if _, _, err := recording.ParseKey(*req.Hotkey); err != nil {
			return shared.NewAPIError("invalid_hotkey", "unsupported hotkey").
				WithDetails(err.Error()).
				ToHTTP(http.StatusBadRequest)
		}
		h.store.SetHotkey(*req.Hotkey)
	}
	if req.VoiceEnabled != nil {
		h.store.SetVoiceEnabled(*req.VoiceEnabled)
	}
	if req.MemoryEnabled != nil {
		h.store.SetMemoryEnabled(*req.MemoryEnabled)
	}

	v := h.store.Get()
	return c.JSON(http.StatusOK, settingsResponse{
		Hotkey:        v.Hotkey,
		VoiceEnabled:  v.VoiceEnabled,
		MemoryEnabled: v.MemoryEnabled,
	})
}

// Transcribe uploads a finished capture for batch transcription and merges
// the result into the entry buffer. Covers captures recorded while the
// channel was down.
func (h *Handler) Transcribe(c echo.Context) error {
	if h.uploader == nil {
		return shared.InternalError("uploader_unavailable", "transcription upload is not configured")
	}

	file, err := c.FormFile("file")
	if err != nil {
		return shared.BadRequest("missing_file", "audio file is required")
	}
	src, err := file.Open()
	if err != nil {
		return shared.InternalError("read_failed", err.Error())
	}
	defer src.Close()

	result, err := h.uploader.Transcribe(c.Request().Context(), file.Filename, src)
	if err != nil {
		return shared.InternalError("transcription_failed", err.Error())
	}

	h.buffer.Apply(transport.TranscriptionEvent{
		ResultID: shared.NewID("upl_"),
		Text:     result.Transcription,
	})
	return c.JSON(http.StatusOK, result)
}

type entryRequest struct {
	Text string `json:"text"`
}

type entryResponse struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// SaveEntry persists the given text, or the current entry buffer if no text
// is supplied, as a journal entry. The buffer is cleared on success.
func (h *Handler) SaveEntry(c echo.Context) error {
	if h.entries == nil {
		return shared.InternalError("api_unavailable", "entry service is not configured")
	}

	var req entryRequest
	if err := c.Bind(&req); err != nil {
		return shared.BadRequest("invalid_entry", "malformed entry payload")
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		text = strings.TrimSpace(h.buffer.Text())
	}
	if text == "" {
		return shared.BadRequest("empty_entry", "nothing to save")
	}

	var out entryResponse
	if err := h.entries.Do(c.Request().Context(), http.MethodPost, "/api/entries", entryRequest{Text: text}, &out); err != nil {
		return shared.InternalError("save_failed", err.Error())
	}

	h.buffer.Clear()
	return c.JSON(http.StatusCreated, out)
}
