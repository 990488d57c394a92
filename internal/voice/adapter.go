// Package voice adapts the Discord voice platform to the pipeline's
// input/output contracts (A5): per-SSRC audio capture feeding C1's
// segmenter, presence tracking feeding C9, and outbound Opus playback
// implementing C8's Player interface.
package voice

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/relaywire/voicebridge/internal/audio"
	"github.com/relaywire/voicebridge/internal/config"
	"github.com/relaywire/voicebridge/internal/stt"
)

// sttConcurrency bounds how many utterances can be in transcription at
// once, so a burst of speakers finishing together doesn't fan out an
// unbounded number of provider requests.
const sttConcurrency = 4

// voiceReadyTimeout bounds how long Start waits for the voice connection
// to report ready before failing startup (§5, §6.7).
const voiceReadyTimeout = 30 * time.Second

// reconnectBaseDelay and reconnectMaxDelay bound the exponential backoff
// used to rejoin the voice channel after an unexpected disconnect (§7).
const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
)

// Bridge is the subset of session.Handle the adapter drives: finished
// transcripts and presence transitions. Declared here (rather than
// depending on the session package's concrete type) so the adapter can
// be exercised in tests without building a full session.Handle.
type Bridge interface {
	HandleTranscript(ctx context.Context, speakerID, transcript string)
	OnPresenceChange(speakerID string, present bool)
}

// Adapter owns the Discord session, the voice connection, and the
// per-SSRC speaker/segmenter state for a single guild. The playback
// queue and task pipeline are built against an Adapter's Player/TextSink
// surfaces before the owning session.Handle exists, so the handle is
// injected after construction via SetHandle to avoid a cyclic build.
type Adapter struct {
	cfg         *config.Config
	handle      Bridge
	transcriber *stt.Cascade
	segmenter   *audio.Segmenter
	decoder     *audio.OpusDecoder
	vad         audio.VAD

	discord   *discordgo.Session
	voiceConn *discordgo.VoiceConnection

	mu         sync.RWMutex
	speakerMap map[uint32]string // SSRC -> UserID
	speaking   map[string]bool   // UserID -> currently-open utterance
	silence    map[string]*time.Timer

	sttPool *errgroup.Group

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds an Adapter. Call SetSegmenter and SetHandle before Start.
func New(cfg *config.Config, transcriber *stt.Cascade) (*Adapter, error) {
	decoder, err := audio.NewOpusDecoder()
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}
	vad, err := audio.NewWebRTCVAD()
	if err != nil {
		return nil, fmt.Errorf("failed to create voice activity detector: %w", err)
	}

	discord, err := discordgo.New("Bot " + cfg.VoicePlatformToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	discord.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMessages

	sttPool := &errgroup.Group{}
	sttPool.SetLimit(sttConcurrency)

	a := &Adapter{
		cfg:         cfg,
		transcriber: transcriber,
		decoder:     decoder,
		vad:         vad,
		discord:     discord,
		speakerMap:  make(map[uint32]string),
		speaking:    make(map[string]bool),
		silence:     make(map[string]*time.Timer),
		sttPool:     sttPool,
	}
	discord.AddHandler(a.onVoiceStateUpdate)
	return a, nil
}

// SetHandle wires the session handle that receives transcripts and
// presence changes. Must be called before Start.
func (a *Adapter) SetHandle(h Bridge) {
	a.handle = h
}

// SetSegmenter wires the audio segmenter that turns captured PCM into
// utterances. Must be called before Start.
func (a *Adapter) SetSegmenter(s *audio.Segmenter) {
	a.segmenter = s
}

// VoiceConn returns the current voice connection, or nil before Start
// has joined a channel. Used by Player to look up OpusSend lazily.
func (a *Adapter) VoiceConn() *discordgo.VoiceConnection {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.voiceConn
}

func (a *Adapter) setVoiceConn(conn *discordgo.VoiceConnection) {
	a.mu.Lock()
	a.voiceConn = conn
	a.mu.Unlock()
}

// Start opens the Discord session and joins the configured voice
// channel, then begins the capture and utterance-consumption loops.
func (a *Adapter) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	if err := a.discord.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}

	voiceConn, err := a.discord.ChannelVoiceJoin(a.cfg.ServerID, a.cfg.VoiceChannelID, false, false)
	if err != nil {
		return fmt.Errorf("failed to join voice channel: %w", err)
	}
	a.setVoiceConn(voiceConn)
	voiceConn.AddHandler(a.onSpeakingUpdate)

	if err := a.waitForVoiceReady(voiceConn); err != nil {
		return err
	}
	if err := voiceConn.Speaking(false); err != nil {
		log.Warn().Err(err).Msg("failed to send initial speaking state")
	}

	go a.captureLoop()
	go a.utteranceLoop()

	log.Info().Str("guild_id", a.cfg.ServerID).Str("channel_id", a.cfg.VoiceChannelID).Msg("voice adapter started")
	return nil
}

// waitForVoiceReady blocks until conn reports ready or voiceReadyTimeout
// elapses, whichever comes first (§5, §6.7).
func (a *Adapter) waitForVoiceReady(conn *discordgo.VoiceConnection) error {
	deadline := time.Now().Add(voiceReadyTimeout)
	for !conn.Ready {
		if time.Now().After(deadline) {
			return fmt.Errorf("voice connection not ready after %s", voiceReadyTimeout)
		}
		select {
		case <-a.ctx.Done():
			return a.ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
	return nil
}

// reconnect rejoins the voice channel with exponential backoff, retrying
// until it succeeds or the adapter is stopped. On success it clears
// stale per-speaker timers and segmenter buffers before returning.
func (a *Adapter) reconnect() error {
	delay := reconnectBaseDelay
	for {
		select {
		case <-a.ctx.Done():
			return a.ctx.Err()
		case <-time.After(delay):
		}

		log.Warn().Msg("voice connection lost, attempting to rejoin")
		conn, err := a.discord.ChannelVoiceJoin(a.cfg.ServerID, a.cfg.VoiceChannelID, false, false)
		if err != nil {
			log.Warn().Err(err).Dur("retry_in", delay).Msg("voice reconnect failed")
			delay *= 2
			if delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}
			continue
		}
		conn.AddHandler(a.onSpeakingUpdate)
		if err := a.waitForVoiceReady(conn); err != nil {
			log.Warn().Err(err).Msg("rejoined voice channel but it never became ready")
			conn.Disconnect()
			delay *= 2
			if delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}
			continue
		}

		a.setVoiceConn(conn)
		a.clearStaleState()
		log.Info().Msg("voice connection re-established")
		return nil
	}
}

// clearStaleState drops per-speaker timers and segmenter buffers that
// belonged to the previous voice connection, so a reconnect never
// resumes an utterance mid-stream against a stale SSRC mapping.
func (a *Adapter) clearStaleState() {
	a.mu.Lock()
	for _, t := range a.silence {
		t.Stop()
	}
	a.speakerMap = make(map[uint32]string)
	a.speaking = make(map[string]bool)
	a.silence = make(map[string]*time.Timer)
	a.mu.Unlock()
	a.segmenter.Reset()
}

// Stop tears down the voice connection and Discord session.
func (a *Adapter) Stop() error {
	if a.cancel != nil {
		a.cancel()
	}
	a.mu.Lock()
	for _, t := range a.silence {
		t.Stop()
	}
	a.mu.Unlock()

	if conn := a.VoiceConn(); conn != nil {
		conn.Disconnect()
	}
	a.sttPool.Wait() // in-flight transcriptions observe ctx cancellation and return promptly
	a.vad.Close()
	a.decoder.Close()
	return a.discord.Close()
}

// captureLoop reads Opus packets off the current voice connection. When
// the connection drops it triggers a backoff reconnect (§7) and resumes
// reading off the replacement once one is established.
func (a *Adapter) captureLoop() {
	for {
		conn := a.VoiceConn()
		if conn == nil {
			return
		}
		select {
		case packet, ok := <-conn.OpusRecv:
			if !ok {
				if a.reconnect() != nil {
					return
				}
				continue
			}
			a.processPacket(packet)
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *Adapter) processPacket(packet *discordgo.Packet) {
	speakerID := a.resolveSpeaker(packet.SSRC)
	if speakerID == "" || !a.cfg.IsAllowed(speakerID) {
		return
	}

	pcm, err := a.decoder.Decode(packet.Opus)
	if err != nil {
		log.Warn().Err(err).Uint32("ssrc", packet.SSRC).Msg("failed to decode opus packet")
		return
	}

	if !a.vad.IsSpeech(pcm, audio.SampleRate) {
		return
	}

	a.mu.Lock()
	active := a.speaking[speakerID]
	if !active {
		a.speaking[speakerID] = true
	}
	if t, ok := a.silence[speakerID]; ok {
		t.Stop()
	}
	a.silence[speakerID] = time.AfterFunc(audio.DefaultSilenceWindow, func() {
		a.endSpeaking(speakerID)
	})
	a.mu.Unlock()

	if !active {
		a.segmenter.SpeakingStart(speakerID)
	}
	a.segmenter.AddSamples(speakerID, pcm)
}

func (a *Adapter) endSpeaking(speakerID string) {
	a.mu.Lock()
	delete(a.speaking, speakerID)
	delete(a.silence, speakerID)
	a.mu.Unlock()
	a.segmenter.SpeakingEnd(speakerID)
}

func (a *Adapter) utteranceLoop() {
	for {
		select {
		case u, ok := <-a.segmenter.Utterances():
			if !ok {
				return
			}
			a.sttPool.Go(func() error {
				a.transcribeAndDispatch(u)
				return nil
			})
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *Adapter) transcribeAndDispatch(u audio.Utterance) {
	pcm16k := audio.Downsample48to16(u.PCM)
	wav := audio.EncodeWAV(pcm16k, 16000)

	text, err := a.transcriber.Transcribe(a.ctx, wav)
	if err != nil {
		log.Warn().Err(err).Str("speaker_id", u.SpeakerID).Msg("transcription failed, dropping utterance")
		return
	}
	if text == "" {
		return
	}

	a.handle.HandleTranscript(a.ctx, u.SpeakerID, text)
}

func (a *Adapter) onSpeakingUpdate(_ *discordgo.VoiceConnection, ev *discordgo.VoiceSpeakingUpdate) {
	if ev == nil {
		return
	}
	a.mu.Lock()
	a.speakerMap[uint32(ev.SSRC)] = ev.UserID
	a.mu.Unlock()
}

func (a *Adapter) resolveSpeaker(ssrc uint32) string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.speakerMap[ssrc]
}

// onVoiceStateUpdate feeds C9's presence tracking: an allowed user
// leaving or joining the tracked voice channel flips presence.
func (a *Adapter) onVoiceStateUpdate(_ *discordgo.Session, ev *discordgo.VoiceStateUpdate) {
	if !a.cfg.IsAllowed(ev.UserID) {
		return
	}
	present := ev.ChannelID == a.cfg.VoiceChannelID
	a.handle.OnPresenceChange(ev.UserID, present)
}

// UserInVoice reports whether any allowed user is currently in the
// tracked voice channel, for the alert ingress response body.
func (a *Adapter) UserInVoice() bool {
	guild, err := a.discord.State.Guild(a.cfg.ServerID)
	if err != nil {
		return false
	}
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID == a.cfg.VoiceChannelID && a.cfg.IsAllowed(vs.UserID) {
			return true
		}
	}
	return false
}

// PostHandoffText implements handoff.TextSink by posting to the
// configured text channel.
func (a *Adapter) PostHandoffText(speakerID string, taskID uint64, text string) error {
	if a.cfg.TextChannelID == "" {
		return fmt.Errorf("no text channel configured for handoff")
	}
	_, err := a.discord.ChannelMessageSend(a.cfg.TextChannelID, text)
	return err
}
