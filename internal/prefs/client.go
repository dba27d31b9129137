package prefs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/driftnote/voicectl/internal/settings"
)

const defaultTimeout = 10 * time.Second

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client reads user preferences from the journaling server at mount time.
// Preference storage itself lives server-side; this is read-only.
type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("prefs: missing base URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type preferencesResponse struct {
	Hotkey        string `json:"hotkey"`
	MemoryEnabled bool   `json:"memory_enabled"`
	VoiceEnabled  bool   `json:"voice_enabled"`
}

// Load fetches the preference values the control plane depends on.
func (c *Client) Load(ctx context.Context) (settings.Values, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/api/preferences", nil)
	if err != nil {
		return settings.Values{}, fmt.Errorf("prefs: build request: %w", err)
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return settings.Values{}, fmt.Errorf("prefs: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return settings.Values{}, fmt.Errorf("prefs: unexpected status %s", resp.Status)
	}

	var prefs preferencesResponse
	if err := json.NewDecoder(resp.Body).Decode(&prefs); err != nil {
		return settings.Values{}, fmt.Errorf("prefs: decode response: %w", err)
	}

	return settings.Values{
		Hotkey:        prefs.Hotkey,
		MemoryEnabled: prefs.MemoryEnabled,
		VoiceEnabled:  prefs.VoiceEnabled,
	}, nil
}
