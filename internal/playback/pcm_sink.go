package playback

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/tosone/minimp3"
)

const framesPerBuffer = 1024

// PCMSink is the primary playback path: decode the synthesized MP3 to raw
// PCM and stream it straight to the default output device.
type PCMSink struct {
	log *slog.Logger

	initOnce sync.Once
	initErr  error
}

func NewPCMSink(log *slog.Logger) *PCMSink {
	if log == nil {
		log = slog.Default()
	}
	return &PCMSink{log: log.With("sink", "pcm")}
}

func (s *PCMSink) Name() string { return "pcm" }

func (s *PCMSink) Probe() error {
	s.initOnce.Do(func() {
		s.initErr = portaudio.Initialize()
	})
	if s.initErr != nil {
		return fmt.Errorf("portaudio init: %w", s.initErr)
	}
	return nil
}

func (s *PCMSink) Play(audio []byte, onDone func()) (Handle, error) {
	if err := s.Probe(); err != nil {
		return nil, err
	}

	dec, pcm, err := minimp3.DecodeFull(audio)
	if err != nil {
		return nil, fmt.Errorf("mp3 decode: %w", err)
	}
	if dec.Channels <= 0 || dec.SampleRate <= 0 || len(pcm) == 0 {
		return nil, fmt.Errorf("mp3 decode: empty or malformed stream")
	}

	samples := bytesToSamples(pcm)

	h := &pcmHandle{
		samples:  samples,
		finished: make(chan struct{}),
		stopped:  make(chan struct{}),
	}

	stream, err := portaudio.OpenDefaultStream(0, dec.Channels, float64(dec.SampleRate), framesPerBuffer, h.fill)
	if err != nil {
		return nil, fmt.Errorf("open output stream: %w", err)
	}
	h.stream = stream

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("start output stream: %w", err)
	}

	s.log.Debug("pcm playback started",
		"channels", dec.Channels,
		"sample_rate", dec.SampleRate,
		"samples", len(samples))

	go h.monitor(onDone)
	return h, nil
}

type pcmHandle struct {
	stream  *portaudio.Stream
	samples []int16

	mu     sync.Mutex
	cursor int

	finished   chan struct{}
	finishOnce sync.Once
	stopped    chan struct{}
	stopOnce   sync.Once
}

// fill is the portaudio callback; it copies the next interleaved samples
// into the output buffer and pads the tail with silence.
func (h *pcmHandle) fill(out []int16) {
	h.mu.Lock()
	n := copy(out, h.samples[h.cursor:])
	h.cursor += n
	done := h.cursor >= len(h.samples)
	h.mu.Unlock()

	for i := n; i < len(out); i++ {
		out[i] = 0
	}
	if done {
		h.finishOnce.Do(func() { close(h.finished) })
	}
}

func (h *pcmHandle) monitor(onDone func()) {
	select {
	case <-h.finished:
	case <-h.stopped:
	}
	_ = h.stream.Stop()
	_ = h.stream.Close()
	if onDone != nil {
		onDone()
	}
}

func (h *pcmHandle) Stop() {
	h.stopOnce.Do(func() { close(h.stopped) })
}

func bytesToSamples(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}
