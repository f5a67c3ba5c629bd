package agent

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RimeConfig configures speech synthesis requests.
type RimeConfig struct {
	APIKey  string
	BaseURL string
	Speaker string
	ModelID string
}

// RimeTTS renders reply text to audio over Rime's HTTP API.
type RimeTTS struct {
	cfg    RimeConfig
	client *http.Client
}

func NewRimeTTS(cfg RimeConfig) *RimeTTS {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://users.rime.ai"
	}
	if strings.TrimSpace(cfg.Speaker) == "" {
		cfg.Speaker = "cove"
	}
	if strings.TrimSpace(cfg.ModelID) == "" {
		cfg.ModelID = "mist"
	}
	return &RimeTTS{
		cfg: cfg,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (p *RimeTTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return nil, fmt.Errorf("rime: api key is not configured")
	}

	payload, err := json.Marshal(map[string]any{
		"text":    text,
		"speaker": p.cfg.Speaker,
		"modelId": p.cfg.ModelID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/v1/rime-tts"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	res, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, fmt.Errorf("rime status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var out struct {
		AudioContent string `json:"audioContent"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	audio, err := base64.StdEncoding.DecodeString(out.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("decode audio: %w", err)
	}
	return audio, nil
}
