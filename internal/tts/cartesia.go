package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/plusone-ai/plusone/internal/config"
)

const (
	cartesiaURL        = "https://api.cartesia.ai/v1/tts"
	cartesiaSampleRate = 24000
)

// CartesiaClient synthesizes speech through Cartesia's TTS API.
type CartesiaClient struct {
	cfg        *config.Config
	httpClient *http.Client
	logger     zerolog.Logger
}

type cartesiaRequest struct {
	Text         string `json:"text"`
	VoiceID      string `json:"voice_id"`
	ModelID      string `json:"model_id,omitempty"`
	OutputFormat string `json:"output_format,omitempty"`
	SampleRate   int    `json:"sample_rate,omitempty"`
}

func NewCartesiaClient(cfg *config.Config, logger zerolog.Logger) *CartesiaClient {
	return &CartesiaClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// Synthesize returns 16-bit mono PCM at 24 kHz.
func (c *CartesiaClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	reqBody := cartesiaRequest{
		Text:         text,
		VoiceID:      c.cfg.CartesiaVoiceID,
		ModelID:      c.cfg.CartesiaModelID,
		OutputFormat: "pcm",
		SampleRate:   cartesiaSampleRate,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cartesiaURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.CartesiaAPIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tts API returned status %d", resp.StatusCode)
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read tts response: %w", err)
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("tts returned empty audio")
	}

	c.logger.Debug().Int("bytes", len(pcm)).Msg("Speech synthesized")
	return pcm, nil
}

func (c *CartesiaClient) SampleRate() int {
	return cartesiaSampleRate
}

var _ Client = (*CartesiaClient)(nil)
