package audio

import (
	"encoding/binary"
	"math"
)

const wavHeaderLen = 44

// EncodeWAV renders float32 samples as a 16-bit mono PCM WAV byte slice,
// the upload format every provider sidecar accepts.
func EncodeWAV(samples []float32, sampleRate int) []byte {
	dataLen := len(samples) * 2
	buf := make([]byte, wavHeaderLen+dataLen)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(wavHeaderLen+dataLen-8))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2)) // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], 2)                    // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))

	for i, s := range samples {
		clamped := max(-1.0, min(1.0, s))
		binary.LittleEndian.PutUint16(buf[wavHeaderLen+i*2:], uint16(int16(clamped*math.MaxInt16)))
	}
	return buf
}

// SplitFrames cuts synthesized audio into transport-sized chunks for
// progressive push. A WAV header, if present, stays attached to the first
// chunk so the client can play it immediately.
func SplitFrames(audio []byte, frameSize int) [][]byte {
	if len(audio) == 0 {
		return nil
	}
	if frameSize <= 0 {
		return [][]byte{audio}
	}

	first := frameSize
	if len(audio) > wavHeaderLen && string(audio[0:4]) == "RIFF" {
		first += wavHeaderLen
	}

	var frames [][]byte
	cut := min(first, len(audio))
	frames = append(frames, audio[:cut])
	for off := cut; off < len(audio); off += frameSize {
		end := min(off+frameSize, len(audio))
		frames = append(frames, audio[off:end])
	}
	return frames
}
