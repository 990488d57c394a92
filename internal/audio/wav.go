package audio

import (
	"bytes"
	"encoding/binary"
)

// EncodeWAV wraps 16-bit mono PCM samples in a minimal WAV container.
func EncodeWAV(pcm []int16, sampleRate int) []byte {
	buf := new(bytes.Buffer)

	buf.WriteString("RIFF")
	chunkSizePos := buf.Len()
	binary.Write(buf, binary.LittleEndian, uint32(0))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2)) // byte rate
	binary.Write(buf, binary.LittleEndian, uint16(2))            // block align
	binary.Write(buf, binary.LittleEndian, uint16(16))           // bits per sample

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)*2))
	for _, sample := range pcm {
		binary.Write(buf, binary.LittleEndian, sample)
	}

	out := buf.Bytes()
	binary.LittleEndian.PutUint32(out[chunkSizePos:chunkSizePos+4], uint32(len(out)-8))
	return out
}
