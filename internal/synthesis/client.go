package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 30 * time.Second

type Config struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// Client calls the synthesis service over HTTP. The service accepts the
// response text and a streaming flag and answers with encoded audio bytes
// (MP3).
type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("synthesis: missing URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type synthesizeRequest struct {
	Text      string `json:"text"`
	Streaming bool   `json:"streaming"`
}

func (c *Client) Synthesize(ctx context.Context, text string, streaming bool) ([]byte, error) {
	body, err := json.Marshal(synthesizeRequest{Text: text, Streaming: streaming})
	if err != nil {
		return nil, fmt.Errorf("synthesis: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("synthesis: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesis: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("synthesis: unexpected status %s", resp.Status)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("synthesis: read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("synthesis: empty audio response")
	}
	return audio, nil
}
