package config

import "testing"

func TestParseList(t *testing.T) {
	got := parseList(" a, b ,c")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected parse result: %v", got)
	}
}

func TestParseListEmpty(t *testing.T) {
	if got := parseList("   "); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestIsAllowed(t *testing.T) {
	cfg := &Config{AllowedUsers: parseAllowList("111,222")}
	if !cfg.IsAllowed("111") {
		t.Fatal("expected 111 to be allowed")
	}
	if cfg.IsAllowed("999") {
		t.Fatal("expected 999 to be disallowed")
	}
}

func TestValidateRequiresWakePhrases(t *testing.T) {
	cfg := &Config{
		VoicePlatformToken: "t",
		ServerID:           "s",
		VoiceChannelID:     "v",
		BrainURL:           "http://x",
		STTProvider:        "vosk",
		WakeWordEnabled:    true,
	}
	if err := cfg.validate(); err == nil {
		t.Fatal("expected error when wake word enabled with no phrases")
	}
}
