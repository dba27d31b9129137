package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

const defaultTimeout = 60 * time.Second

// Result is the transcription service's answer for one uploaded capture.
type Result struct {
	Transcription string  `json:"transcription"`
	Duration      float64 `json:"duration"`
}

type Config struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// Client uploads a finished audio capture for batch transcription. The
// streaming path goes over the channel; this endpoint covers captures that
// were recorded while the channel was down.
type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("transcription: missing URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Transcribe uploads the named audio file as multipart form data and
// returns the transcription and audio duration.
func (c *Client) Transcribe(ctx context.Context, filename string, audio io.Reader) (Result, error) {
	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)

	go func() {
		part, err := form.CreateFormFile("file", filename)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, audio); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(form.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, pr)
	if err != nil {
		return Result{}, fmt.Errorf("transcription: build request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("transcription: upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("transcription: unexpected status %s", resp.Status)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, fmt.Errorf("transcription: decode response: %w", err)
	}
	return result, nil
}
