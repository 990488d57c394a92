// Package deepgram implements stt.Transcriber against the Deepgram
// pre-recorded transcription API.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rs/zerolog/log"
)

type Transcriber struct {
	apiKey    string
	model     string
	punctuate bool
	client    *http.Client
}

type apiResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// New builds a Deepgram-backed transcriber.
func New(apiKey, model string, punctuate bool) *Transcriber {
	return &Transcriber{
		apiKey:    apiKey,
		model:     model,
		punctuate: punctuate,
		client:    &http.Client{},
	}
}

func (d *Transcriber) Transcribe(ctx context.Context, wav []byte) (string, error) {
	if len(wav) == 0 {
		return "", nil
	}

	params := url.Values{}
	if d.model != "" {
		params.Set("model", d.model)
	}
	params.Set("punctuate", strconv.FormatBool(d.punctuate))
	params.Set("smart_format", "true")
	params.Set("language", "en")

	fullURL := "https://api.deepgram.com/v1/listen?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(wav))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+d.apiKey)
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("deepgram request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Warn().Int("status", resp.StatusCode).Str("body", string(body)).Msg("deepgram error response")
		return "", fmt.Errorf("deepgram api error %d: %s", resp.StatusCode, string(body))
	}

	var result apiResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(result.Results.Channels) == 0 || len(result.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}

	alt := result.Results.Channels[0].Alternatives[0]
	log.Debug().Str("transcript", alt.Transcript).Float64("confidence", alt.Confidence).Msg("deepgram transcription completed")
	return alt.Transcript, nil
}

func (d *Transcriber) Close() error {
	return nil
}
