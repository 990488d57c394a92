// Package elevenlabs implements tts.Synthesizer against the ElevenLabs
// text-to-speech API.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

type Provider struct {
	apiKey  string
	voiceID string
	client  *http.Client
}

// New builds an ElevenLabs-backed synthesizer for the given voice. The
// client timeout backstops the context deadline the cascade already
// applies per attempt (§5's "TTS stream startup 5 s").
func New(apiKey, voiceID string) *Provider {
	return &Provider{apiKey: apiKey, voiceID: voiceID, client: &http.Client{Timeout: 5 * time.Second}}
}

type requestBody struct {
	Text          string  `json:"text"`
	ModelID       string  `json:"model_id"`
	VoiceSettings *voiceCfg `json:"voice_settings,omitempty"`
}

type voiceCfg struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

func (p *Provider) Synthesize(ctx context.Context, text string) ([]byte, error) {
	url := fmt.Sprintf("https://api.elevenlabs.io/v1/text-to-speech/%s", p.voiceID)

	payload, err := json.Marshal(requestBody{
		Text:    text,
		ModelID: "eleven_turbo_v2",
		VoiceSettings: &voiceCfg{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read tts response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Warn().Int("status", resp.StatusCode).Msg("elevenlabs error response")
		return nil, fmt.Errorf("elevenlabs api error %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}
