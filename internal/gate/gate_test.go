package gate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateDisabledAlwaysAdmits(t *testing.T) {
	g := New(false, nil, time.Minute)
	admit, cleaned := g.Admit("u1", "whatever you like", time.Now())
	assert.True(t, admit)
	assert.Equal(t, "whatever you like", cleaned)
}

func TestGateWakePhraseAdmitsAndStrips(t *testing.T) {
	g := New(true, []string{"jarvis"}, time.Minute)
	admit, cleaned := g.Admit("u1", "Jarvis what time is it", time.Now())
	require.True(t, admit)
	assert.Equal(t, "what time is it", cleaned)
}

func TestGateRejectsWithoutWakePhrase(t *testing.T) {
	g := New(true, []string{"jarvis"}, time.Minute)
	admit, _ := g.Admit("u1", "what time is it", time.Now())
	assert.False(t, admit)
}

func TestGateConversationWindowBypassesWakeWord(t *testing.T) {
	g := New(true, []string{"jarvis"}, time.Minute)
	now := time.Now()
	g.MarkAssistantResponded("u1", now)
	admit, cleaned := g.Admit("u1", "and another thing", now.Add(5*time.Second))
	require.True(t, admit)
	assert.Equal(t, "and another thing", cleaned)
}

func TestGateWindowExpires(t *testing.T) {
	g := New(true, []string{"jarvis"}, 10*time.Millisecond)
	now := time.Now()
	g.MarkAssistantResponded("u1", now)
	admit, _ := g.Admit("u1", "hello there friend", now.Add(50*time.Millisecond))
	assert.False(t, admit)
}

func TestGateToleratesLeadingFillerTokens(t *testing.T) {
	g := New(true, []string{"hey jarvis"}, time.Minute)
	admit, cleaned := g.Admit("u1", "uh hey jarvis can you help", time.Now())
	require.True(t, admit)
	assert.Equal(t, "can you help", cleaned)
}
