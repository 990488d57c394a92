package tts

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSynth struct {
	audio []byte
	err   error
	calls int
}

func (s *stubSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	s.calls++
	return s.audio, s.err
}

func TestSanitizeStripsControlAndZeroWidth(t *testing.T) {
	in := "hello​world­!"
	assert.Equal(t, "helloworld!", Sanitize(in))
}

func TestCascadeSkipsPunctuationOnlyText(t *testing.T) {
	s := &stubSynth{audio: []byte("audio")}
	c := NewCascade(s)
	out, err := c.Synthesize(context.Background(), "... !!")
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Equal(t, 0, s.calls)
}

func TestCascadeFallsThroughOnFailure(t *testing.T) {
	first := &stubSynth{err: errors.New("boom")}
	second := &stubSynth{audio: []byte("ok")}
	c := NewCascade(first, second)

	out, err := c.Synthesize(context.Background(), "hello there")
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), out)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
}

func TestCascadeAllFail(t *testing.T) {
	c := NewCascade(&stubSynth{err: errors.New("a")}, &stubSynth{err: errors.New("b")})
	_, err := c.Synthesize(context.Background(), "hello")
	assert.Error(t, err)
}
