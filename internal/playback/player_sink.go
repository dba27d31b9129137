package playback

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
)

// playerCommands are probed in order when no player is configured.
var playerCommands = [][]string{
	{"ffplay", "-autoexit", "-nodisp", "-loglevel", "quiet"},
	{"mpg123", "-q"},
	{"afplay"},
}

// PlayerSink is the fallback playback path: hand the encoded bytes to an
// external media player instead of decoding them ourselves.
type PlayerSink struct {
	log  *slog.Logger
	cmd  string
	args []string
}

// NewPlayerSink builds the fallback sink. command overrides probing; when
// empty the first player found on PATH is used.
func NewPlayerSink(command string, log *slog.Logger) *PlayerSink {
	if log == nil {
		log = slog.Default()
	}
	s := &PlayerSink{log: log.With("sink", "player")}
	if command != "" {
		s.cmd = command
	}
	return s
}

func (s *PlayerSink) Name() string { return "player" }

func (s *PlayerSink) Probe() error {
	if s.cmd != "" {
		if _, err := exec.LookPath(s.cmd); err != nil {
			return fmt.Errorf("player %q not found: %w", s.cmd, err)
		}
		return nil
	}
	for _, candidate := range playerCommands {
		if _, err := exec.LookPath(candidate[0]); err == nil {
			s.cmd = candidate[0]
			s.args = candidate[1:]
			return nil
		}
	}
	return fmt.Errorf("no media player found on PATH")
}

func (s *PlayerSink) Play(audio []byte, onDone func()) (Handle, error) {
	if err := s.Probe(); err != nil {
		return nil, err
	}

	f, err := os.CreateTemp("", "voicectl-*.mp3")
	if err != nil {
		return nil, fmt.Errorf("temp audio file: %w", err)
	}
	if _, err := f.Write(audio); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("write audio file: %w", err)
	}
	f.Close()

	cmd := exec.Command(s.cmd, append(append([]string(nil), s.args...), f.Name())...)
	if err := cmd.Start(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("start player %q: %w", s.cmd, err)
	}

	s.log.Debug("player playback started", "player", s.cmd, "file", f.Name())

	h := &playerHandle{cmd: cmd}
	go func() {
		_ = cmd.Wait()
		os.Remove(f.Name())
		if onDone != nil {
			onDone()
		}
	}()
	return h, nil
}

type playerHandle struct {
	cmd      *exec.Cmd
	stopOnce sync.Once
}

func (h *playerHandle) Stop() {
	h.stopOnce.Do(func() {
		if h.cmd.Process != nil {
			_ = h.cmd.Process.Kill()
		}
	})
}
