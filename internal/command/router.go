// Package command recognizes interrupt/stop commands and other
// pre-brain fast paths before a transcript reaches the task manager.
package command

import (
	"regexp"
	"strings"
)

// Kind classifies a fast-path outcome.
type Kind int

const (
	// KindDispatch means the transcript should go to the task manager.
	KindDispatch Kind = iota
	// KindStop means an interrupt command was recognized.
	KindStop
	// KindListeningAck means the transcript was a bare wake-word with
	// no further content ("listening acknowledgment").
	KindListeningAck
)

var stopPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^stop$`),
	regexp.MustCompile(`^cancel$`),
	regexp.MustCompile(`^stop talking$`),
	regexp.MustCompile(`^that'?s enough$`),
	regexp.MustCompile(`^hold on$`),
	regexp.MustCompile(`^wait$`),
	regexp.MustCompile(`^never mind$`),
	regexp.MustCompile(`^shut up$`),
}

// Route classifies an already wake-gated (and wake-prefix-stripped)
// transcript.
func Route(transcript string) Kind {
	trimmed := trimTrailingPunctuation(strings.ToLower(strings.TrimSpace(transcript)))

	for _, pat := range stopPatterns {
		if pat.MatchString(trimmed) {
			return KindStop
		}
	}

	if meaningfulLen(trimmed) < 2 {
		return KindListeningAck
	}

	return KindDispatch
}

func trimTrailingPunctuation(s string) string {
	return strings.TrimRight(s, ".!?,;: ")
}

// meaningfulLen counts non-punctuation, non-space runes.
func meaningfulLen(s string) int {
	n := 0
	for _, r := range s {
		if strings.ContainsRune(" .,!?;:'\"", r) {
			continue
		}
		n++
	}
	return n
}
