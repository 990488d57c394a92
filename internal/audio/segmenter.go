package audio

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Tunables from spec section 4.1.
const (
	DefaultSilenceWindow = 1000 * time.Millisecond
	DefaultMinDuration   = 300 * time.Millisecond
	DefaultRMSFloor      = 500.0
	DefaultBargeInWindow = 600 * time.Millisecond
)

// PlaybackState is consulted by the segmenter to decide whether a
// barge-in timer should be armed when a speaker starts talking.
type PlaybackState interface {
	IsPlaying() bool
	Clear()
}

// Segmenter accumulates decoded PCM per speaker and emits one Utterance
// per contiguous speaking span once a silence window elapses.
type Segmenter struct {
	silenceWindow time.Duration
	minDuration   time.Duration
	rmsFloor      float64
	bargeInWindow time.Duration

	playback PlaybackState

	mu       sync.Mutex
	speakers map[string]*speakerBuf
	utt      chan Utterance
}

type speakerBuf struct {
	pcm        []int16
	start      time.Time
	bargeTimer *time.Timer
}

// NewSegmenter builds a Segmenter that reports completed utterances on
// the channel returned by Utterances().
func NewSegmenter(playback PlaybackState) *Segmenter {
	return &Segmenter{
		silenceWindow: DefaultSilenceWindow,
		minDuration:   DefaultMinDuration,
		rmsFloor:      DefaultRMSFloor,
		bargeInWindow: DefaultBargeInWindow,
		playback:      playback,
		speakers:      make(map[string]*speakerBuf),
		utt:           make(chan Utterance, 8),
	}
}

// Utterances returns the channel of completed utterances.
func (s *Segmenter) Utterances() <-chan Utterance {
	return s.utt
}

// SpeakingStart opens a buffer for the speaker and arms the barge-in
// timer if the playback queue currently reports isPlaying.
func (s *Segmenter) SpeakingStart(speakerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, ok := s.speakers[speakerID]
	if !ok {
		buf = &speakerBuf{start: time.Now()}
		s.speakers[speakerID] = buf
	} else {
		buf.pcm = buf.pcm[:0]
		buf.start = time.Now()
	}

	if s.playback != nil && s.playback.IsPlaying() {
		sid := speakerID
		buf.bargeTimer = time.AfterFunc(s.bargeInWindow, func() {
			s.onBargeInFired(sid)
		})
	}
}

func (s *Segmenter) onBargeInFired(speakerID string) {
	s.mu.Lock()
	buf, ok := s.speakers[speakerID]
	stillSpeaking := ok && buf.bargeTimer != nil
	s.mu.Unlock()

	if !stillSpeaking {
		return
	}
	log.Info().Str("speaker", speakerID).Msg("barge-in threshold reached, clearing playback")
	if s.playback != nil {
		s.playback.Clear()
	}
}

// AddSamples appends decoded PCM to the speaker's open buffer.
func (s *Segmenter) AddSamples(speakerID string, pcm []int16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, ok := s.speakers[speakerID]
	if !ok {
		buf = &speakerBuf{start: time.Now()}
		s.speakers[speakerID] = buf
	}
	buf.pcm = append(buf.pcm, pcm...)
}

// SpeakingEnd finalizes the speaker's buffer after the platform's
// silence window has elapsed. Buffers shorter than minDuration or below
// the RMS floor are discarded silently.
func (s *Segmenter) SpeakingEnd(speakerID string) {
	s.mu.Lock()
	buf, ok := s.speakers[speakerID]
	if !ok {
		s.mu.Unlock()
		return
	}
	if buf.bargeTimer != nil {
		buf.bargeTimer.Stop()
		buf.bargeTimer = nil
	}
	pcm := buf.pcm
	start := buf.start
	delete(s.speakers, speakerID)
	s.mu.Unlock()

	duration := time.Duration(len(pcm)) * time.Second / time.Duration(SampleRate)
	if duration < s.minDuration {
		log.Debug().Str("speaker", speakerID).Dur("duration", duration).Msg("utterance too short, discarding")
		return
	}
	if RMS(pcm) < s.rmsFloor {
		log.Debug().Str("speaker", speakerID).Msg("utterance below RMS floor, discarding")
		return
	}

	u := Utterance{
		SpeakerID:  speakerID,
		PCM:        pcm,
		SampleRate: SampleRate,
		CapturedAt: start,
		Duration:   duration,
	}

	select {
	case s.utt <- u:
	default:
		log.Warn().Str("speaker", speakerID).Msg("utterance channel full, dropping utterance")
	}
}

// Reset clears all per-speaker state and stale timers, used on
// voice-channel reconnect.
func (s *Segmenter) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, buf := range s.speakers {
		if buf.bargeTimer != nil {
			buf.bargeTimer.Stop()
		}
	}
	s.speakers = make(map[string]*speakerBuf)
}

// Downsample48to16 averages blocks of 3 samples to convert 48kHz mono
// PCM to 16kHz mono PCM.
func Downsample48to16(pcm []int16) []int16 {
	out := make([]int16, len(pcm)/3)
	for i := range out {
		base := i * 3
		sum := int32(pcm[base]) + int32(pcm[base+1]) + int32(pcm[base+2])
		out[i] = int16(sum / 3)
	}
	return out
}
