// Package vosk implements stt.Transcriber against a local Vosk model.
package vosk

import (
	"context"
	"encoding/json"
	"fmt"

	vosklib "github.com/alphacep/vosk-api/go"
	"github.com/rs/zerolog/log"
)

type Transcriber struct {
	model      *vosklib.VoskModel
	sampleRate int
}

type result struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// New loads a Vosk model from disk.
func New(modelPath string, sampleRate int) (*Transcriber, error) {
	log.Info().Str("model_path", modelPath).Msg("loading vosk model")

	model, err := vosklib.NewModel(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load vosk model from %s: %w", modelPath, err)
	}

	return &Transcriber{model: model, sampleRate: sampleRate}, nil
}

// Transcribe feeds the whole WAV blob's PCM data to a fresh recognizer
// and returns the final result. A new recognizer is used per utterance
// since each utterance is already silence-bounded upstream.
func (t *Transcriber) Transcribe(ctx context.Context, wav []byte) (string, error) {
	pcm := pcmFromWAV(wav)
	if len(pcm) == 0 {
		return "", nil
	}

	recognizer, err := vosklib.NewRecognizer(t.model, float64(t.sampleRate))
	if err != nil {
		return "", fmt.Errorf("failed to create vosk recognizer: %w", err)
	}
	defer recognizer.Free()

	recognizer.AcceptWaveform(pcm)
	jsonResult := recognizer.FinalResult()
	if jsonResult == "" {
		return "", nil
	}

	var r result
	if err := json.Unmarshal([]byte(jsonResult), &r); err != nil {
		log.Warn().Err(err).Str("json", jsonResult).Msg("failed to parse vosk result")
		return "", nil
	}

	log.Debug().Str("text", r.Text).Float64("confidence", r.Confidence).Msg("vosk transcription completed")
	return r.Text, nil
}

// pcmFromWAV strips the 44-byte canonical WAV header that
// internal/audio.EncodeWAV produces and returns the raw little-endian
// PCM bytes.
func pcmFromWAV(wav []byte) []byte {
	const headerSize = 44
	if len(wav) <= headerSize {
		return nil
	}
	return wav[headerSize:]
}

func (t *Transcriber) Close() error {
	if t.model != nil {
		t.model.Free()
	}
	return nil
}
