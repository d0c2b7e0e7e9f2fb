package audio

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pcm16Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestDecodePCM16Scaling(t *testing.T) {
	data := pcm16Bytes([]int16{0, 16384, -16384, 32767})
	samples, rate, err := Decode(data, CodecPCM16, 16000)
	require.NoError(t, err)
	assert.Equal(t, 16000, rate)
	require.Len(t, samples, 4)
	assert.InDelta(t, 0, samples[0], 1e-4)
	assert.InDelta(t, 0.5, samples[1], 1e-3)
	assert.InDelta(t, -0.5, samples[2], 1e-3)
	assert.InDelta(t, 1.0, samples[3], 1e-3)
}

func TestDecodeEmptyCodecDefaultsToPCM16(t *testing.T) {
	samples, rate, err := Decode(pcm16Bytes([]int16{100}), "", 8000)
	require.NoError(t, err)
	assert.Equal(t, 8000, rate)
	assert.Len(t, samples, 1)
}

func TestDecodeG711FixedRate(t *testing.T) {
	data := []byte{0x00, 0x7f, 0xff}
	samples, rate, err := Decode(data, CodecG711Ulaw, 44100)
	require.NoError(t, err)
	assert.Equal(t, 8000, rate)
	assert.Len(t, samples, 3)

	_, rate, err = Decode(data, CodecG711Alaw, 0)
	require.NoError(t, err)
	assert.Equal(t, 8000, rate)
}

func TestDecodeUnknownCodec(t *testing.T) {
	_, _, err := Decode([]byte{1}, "opus", 48000)
	assert.Error(t, err)
}

func TestResamplePassthroughAndRatio(t *testing.T) {
	in := []float32{0, 0.5, 1, 0.5, 0, -0.5, -1, -0.5}

	same := Resample(in, 16000, 16000)
	assert.Equal(t, in, same)

	up := Resample(in, 8000, 16000)
	assert.Len(t, up, 16)

	down := Resample(up, 16000, 8000)
	assert.Len(t, down, 8)
}

func TestEncodeWAVHeader(t *testing.T) {
	wav := EncodeWAV([]float32{0, 0.25, -0.25}, 16000)
	require.Len(t, wav, wavHeaderLen+6)
	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, uint32(16000), binary.LittleEndian.Uint32(wav[24:28]))
	assert.Equal(t, uint32(6), binary.LittleEndian.Uint32(wav[40:44]))
}

func TestSplitFramesKeepsHeaderOnFirst(t *testing.T) {
	wav := EncodeWAV(make([]float32, 4000), 16000)
	frames := SplitFrames(wav, 1024)
	require.NotEmpty(t, frames)

	assert.Equal(t, "RIFF", string(frames[0][0:4]))
	total := 0
	for _, f := range frames {
		total += len(f)
	}
	assert.Equal(t, len(wav), total)
	for _, f := range frames[1:] {
		assert.LessOrEqual(t, len(f), 1024)
	}
}

// vadConfigForTest shrinks durations so tests drive the detector with
// synthetic clock-free chunks quickly.
func vadConfigForTest() VADConfig {
	return VADConfig{
		SpeechThresholdDB: -32,
		SilenceTimeout:    30 * time.Millisecond,
		MinSpeechDuration: 1 * time.Millisecond,
		PreSpeechBuffer:   10 * time.Millisecond,
		SampleRate:        16000,
	}
}

func loudChunk(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = 0.5
	}
	return out
}

func TestVADCompletesSegmentAfterSilence(t *testing.T) {
	v := NewVAD(vadConfigForTest())

	seg := v.Feed(loudChunk(1600))
	assert.False(t, seg.Complete)
	assert.True(t, v.Active())

	// silence shorter than the timeout keeps the span open
	seg = v.Feed(make([]float32, 160))
	assert.False(t, seg.Complete)

	time.Sleep(40 * time.Millisecond)
	seg = v.Feed(make([]float32, 160))
	require.True(t, seg.Complete)
	assert.False(t, v.Active())
	assert.GreaterOrEqual(t, len(seg.Samples), 1600)
}

func TestVADFlushReturnsOpenSpan(t *testing.T) {
	v := NewVAD(vadConfigForTest())
	v.Feed(loudChunk(800))
	require.True(t, v.Active())

	flushed := v.Flush()
	assert.GreaterOrEqual(t, len(flushed), 800)
	assert.False(t, v.Active())
	assert.Nil(t, v.Flush())
}

func TestVADIgnoresPureSilence(t *testing.T) {
	v := NewVAD(vadConfigForTest())
	for i := 0; i < 10; i++ {
		seg := v.Feed(make([]float32, 160))
		assert.False(t, seg.Complete)
	}
	assert.False(t, v.Active())
	assert.Nil(t, v.Flush())
}
