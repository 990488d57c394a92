package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlayback struct {
	playing bool
	cleared int
}

func (f *fakePlayback) IsPlaying() bool { return f.playing }
func (f *fakePlayback) Clear()          { f.cleared++; f.playing = false }

func loudPCM(n int) []int16 {
	pcm := make([]int16, n)
	for i := range pcm {
		if i%2 == 0 {
			pcm[i] = 20000
		} else {
			pcm[i] = -20000
		}
	}
	return pcm
}

func TestSegmenterDiscardsShortUtterance(t *testing.T) {
	s := NewSegmenter(nil)
	s.SpeakingStart("u1")
	s.AddSamples("u1", loudPCM(SampleRate/100)) // ~10ms, well under 300ms floor
	s.SpeakingEnd("u1")

	select {
	case <-s.Utterances():
		t.Fatal("expected no utterance for short speech")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSegmenterDiscardsQuietUtterance(t *testing.T) {
	s := NewSegmenter(nil)
	s.SpeakingStart("u1")
	s.AddSamples("u1", make([]int16, SampleRate)) // 1s of silence
	s.SpeakingEnd("u1")

	select {
	case <-s.Utterances():
		t.Fatal("expected no utterance for silent speech")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSegmenterEmitsUtterance(t *testing.T) {
	s := NewSegmenter(nil)
	s.SpeakingStart("u1")
	s.AddSamples("u1", loudPCM(SampleRate)) // 1s loud
	s.SpeakingEnd("u1")

	select {
	case u := <-s.Utterances():
		assert.Equal(t, "u1", u.SpeakerID)
		assert.GreaterOrEqual(t, u.Duration, DefaultMinDuration)
	case <-time.After(time.Second):
		t.Fatal("expected utterance")
	}
}

func TestSegmenterBargeInFiresAfterSustainedSpeech(t *testing.T) {
	pb := &fakePlayback{playing: true}
	s := NewSegmenter(pb)
	s.bargeInWindow = 20 * time.Millisecond
	s.SpeakingStart("u1")
	time.Sleep(40 * time.Millisecond)
	require.Equal(t, 1, pb.cleared)
	s.SpeakingEnd("u1")
}

func TestSegmenterBargeInCancelledOnEarlyEnd(t *testing.T) {
	pb := &fakePlayback{playing: true}
	s := NewSegmenter(pb)
	s.bargeInWindow = 50 * time.Millisecond
	s.SpeakingStart("u1")
	s.SpeakingEnd("u1")
	time.Sleep(70 * time.Millisecond)
	assert.Equal(t, 0, pb.cleared)
}

func TestDownsample48to16(t *testing.T) {
	pcm := []int16{3, 3, 3, 9, 9, 9}
	out := Downsample48to16(pcm)
	require.Len(t, out, 2)
	assert.Equal(t, int16(3), out[0])
	assert.Equal(t, int16(9), out[1])
}
