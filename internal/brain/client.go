// Package brain streams a reply from the external chat-completions
// agent, emitting complete sentences as they form.
package brain

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// FallbackConnectFailure is emitted when the endpoint cannot be
	// reached or returns a non-2xx status.
	FallbackConnectFailure = "I'm having trouble connecting right now. Try again?"
	// FallbackTimeout is emitted when the wall-clock timeout expires
	// before the endpoint responds.
	FallbackTimeout = "That's taking longer than expected. Try again?"

	voiceTagPrefix = "Respond for spoken output; no markdown, bullets, or code blocks; natural conversational speech."

	maxTokens  = 8192
	historyLen = 6
)

// Message is one entry of chat history or the new user turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client talks to a single chat-completions-compatible endpoint.
type Client struct {
	baseURL string
	token   string
	model   string
	http    *http.Client
}

// New builds a brain Client with the given wall-clock timeout applied
// to the underlying HTTP client.
func New(baseURL, token, model string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		model:   model,
		http:    &http.Client{Timeout: timeout},
	}
}

type requestBody struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
	User      string    `json:"user"`
	Stream    bool      `json:"stream"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Result is the outcome of a Stream call.
type Result struct {
	FullText string
	Aborted  bool
}

// Stream opens a streaming chat-completion request. As tokens arrive it
// detects sentence boundaries in a cleaned rolling buffer and calls
// onSentence for each complete sentence. It returns once the stream
// ends, is cancelled via ctx, or errors (in which case FullText carries
// whatever was already accumulated and an error fallback is not
// returned as an error but as the FullText content of a synthetic
// single-sentence reply via onSentence, matching the spec's "short
// spoken apology" behavior).
func (c *Client) Stream(ctx context.Context, history []Message, transcript, sessionUser string, onSentence func(string)) (Result, error) {
	if ctx.Err() != nil {
		return Result{Aborted: true}, ctx.Err()
	}

	msgs := trimHistory(history, historyLen)
	msgs = append(msgs, Message{Role: "user", Content: voiceTagPrefix + " " + transcript})

	body := requestBody{
		Model:     c.model,
		Messages:  msgs,
		MaxTokens: maxTokens,
		User:      sessionUser,
		Stream:    true,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal brain request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("failed to build brain request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Result{Aborted: true}, ctx.Err()
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			log.Warn().Err(err).Msg("brain request timed out")
			onSentence(FallbackTimeout)
			return Result{FullText: FallbackTimeout}, nil
		}
		log.Warn().Err(err).Msg("brain transport error")
		onSentence(FallbackConnectFailure)
		return Result{FullText: FallbackConnectFailure}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn().Int("status", resp.StatusCode).Msg("brain endpoint returned non-2xx")
		onSentence(FallbackConnectFailure)
		return Result{FullText: FallbackConnectFailure}, nil
	}

	var full strings.Builder
	var rolling strings.Builder

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return Result{FullText: full.String(), Aborted: true}, nil
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		fragment := chunk.Choices[0].Delta.Content
		if fragment == "" {
			continue
		}
		full.WriteString(fragment)
		rolling.WriteString(fragment)

		for {
			cleaned := stripFormatting(rolling.String())
			idx := findSentenceBoundary(cleaned)
			if idx < 0 {
				break
			}
			sentence := strings.TrimSpace(cleaned[:idx])
			rest := cleaned[idx:]
			rolling.Reset()
			rolling.WriteString(rest)
			if len(sentence) >= 2 {
				onSentence(sentence)
			}
		}
	}

	if ctx.Err() != nil {
		return Result{FullText: full.String(), Aborted: true}, nil
	}

	if remainder := strings.TrimSpace(stripFormatting(rolling.String())); len(remainder) >= 2 {
		onSentence(remainder)
	}

	return Result{FullText: cleanForHistory(full.String())}, nil
}

func trimHistory(history []Message, k int) []Message {
	if len(history) <= k {
		out := make([]Message, len(history))
		copy(out, history)
		return out
	}
	out := make([]Message, k)
	copy(out, history[len(history)-k:])
	return out
}

// findSentenceBoundary returns the index just past the first '.', '!',
// or '?' that is followed by whitespace or end of buffer, or -1.
func findSentenceBoundary(s string) int {
	for i, r := range s {
		if r == '.' || r == '!' || r == '?' {
			end := i + 1
			if end == len(s) {
				return end
			}
			next := s[end]
			if next == ' ' || next == '\n' || next == '\t' {
				return end
			}
		}
	}
	return -1
}
