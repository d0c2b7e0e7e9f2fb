// Package audio decodes transport audio chunks into normalized PCM,
// resamples them for provider consumption, encodes WAV uploads, and
// delimits speech with an energy VAD.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Codec names the supported chunk encodings.
type Codec string

const (
	CodecPCM16    Codec = "pcm16"
	CodecG711Ulaw Codec = "g711_ulaw"
	CodecG711Alaw Codec = "g711_alaw"
)

// Decode converts encoded chunk bytes to float32 samples in [-1, 1] and
// reports their sample rate. G.711 variants are fixed at 8 kHz; PCM16 uses
// the caller-supplied rate.
func Decode(data []byte, codec Codec, sampleRate int) ([]float32, int, error) {
	switch codec {
	case CodecPCM16, "":
		return decodePCM16(data), sampleRate, nil
	case CodecG711Ulaw:
		return decodeG711(data, ulawTable[:]), 8000, nil
	case CodecG711Alaw:
		return decodeG711(data, alawTable[:]), 8000, nil
	default:
		return nil, 0, fmt.Errorf("unsupported codec: %s", codec)
	}
}

func decodePCM16(data []byte) []float32 {
	n := len(data) / 2
	samples := make([]float32, n)
	for i := range n {
		s := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = float32(s) / math.MaxInt16
	}
	return samples
}

func decodeG711(data []byte, table []int16) []float32 {
	samples := make([]float32, len(data))
	for i, b := range data {
		samples[i] = float32(table[b]) / math.MaxInt16
	}
	return samples
}
