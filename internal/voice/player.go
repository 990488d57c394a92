package voice

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/bwmarrin/dca"

	"github.com/relaywire/voicebridge/internal/playback"
)

// Player implements playback.Player by transcoding a synthesized audio
// blob to Opus via dca and streaming frames to the active voice
// connection's OpusSend channel.
type Player struct {
	adapter *Adapter
}

// NewPlayer builds a Player bound to an Adapter's voice connection.
func NewPlayer(a *Adapter) *Player {
	return &Player{adapter: a}
}

// Play transcodes and streams one segment to completion, or returns
// promptly when ctx is cancelled (barge-in / Clear).
func (p *Player) Play(ctx context.Context, seg *playback.Segment) error {
	conn := p.adapter.VoiceConn()
	if conn == nil {
		return fmt.Errorf("no active voice connection")
	}

	opts := dca.StdEncodeOptions
	opts.RawOutput = true
	opts.Bitrate = 64
	opts.Application = "lowdelay"

	session, err := dca.EncodeMem(bytes.NewReader(seg.Audio), opts)
	if err != nil {
		return fmt.Errorf("failed to start opus encode: %w", err)
	}
	defer session.Cleanup()

	if err := conn.Speaking(true); err != nil {
		return fmt.Errorf("failed to set speaking state: %w", err)
	}
	defer conn.Speaking(false)

	for {
		frame, err := session.OpusFrame()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("opus encode error: %w", err)
		}

		select {
		case conn.OpusSend <- frame:
		case <-ctx.Done():
			return nil
		}
	}
}
