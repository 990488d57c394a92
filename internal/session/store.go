package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// DiagnosticStore appends best-effort JSONL snapshots of conversation
// turns to disk, one file per speaker. It exists purely for postmortem
// debugging — nothing in the pipeline reads it back, so write failures
// are logged and swallowed rather than propagated.
type DiagnosticStore struct {
	baseDir string
}

// NewDiagnosticStore ensures the target directory exists.
func NewDiagnosticStore(baseDir string) (*DiagnosticStore, error) {
	dir := filepath.Join(baseDir, "conversations")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create conversation diagnostics directory: %w", err)
	}
	return &DiagnosticStore{baseDir: baseDir}, nil
}

type diagnosticRecord struct {
	SpeakerID string    `json:"speaker_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	At        time.Time `json:"at"`
}

// AppendTurn best-effort appends one conversation turn for a speaker.
func (s *DiagnosticStore) AppendTurn(speakerID, role, content string) {
	path := filepath.Join(s.baseDir, "conversations", speakerID+".jsonl")

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Warn().Err(err).Str("speaker_id", speakerID).Msg("failed to open conversation diagnostics file")
		return
	}
	defer f.Close()

	rec := diagnosticRecord{SpeakerID: speakerID, Role: role, Content: content, At: time.Now()}
	if err := json.NewEncoder(f).Encode(rec); err != nil {
		log.Warn().Err(err).Str("speaker_id", speakerID).Msg("failed to encode conversation diagnostics record")
	}
}
