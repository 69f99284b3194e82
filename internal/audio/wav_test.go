package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sine returns a mono 16-bit clip of n frames.
func sine(rate, n int) *Clip {
	samples := make([]int, n)
	for i := range samples {
		samples[i] = int(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
	}
	return &Clip{SampleRate: rate, Channels: 1, BitDepth: 16, Samples: samples}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := sine(16000, 1600)

	data, err := EncodePCM16(in)
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(data[0:4]))
	assert.Equal(t, "WAVE", string(data[8:12]))

	out, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 16000, out.SampleRate)
	assert.Equal(t, 1, out.Channels)
	assert.Equal(t, 16, out.BitDepth)
	assert.Equal(t, in.Samples, out.Samples)
}

func TestResample_Upsample(t *testing.T) {
	in := sine(22050, 2205)

	out := Resample(in, 44100)
	assert.Equal(t, 44100, out.SampleRate)
	assert.Equal(t, 4410, out.Frames())
	assert.Equal(t, in.Samples[0], out.Samples[0])
	assert.Equal(t, in.Samples[1], out.Samples[2], "even output frames land on input frames")
}

func TestResample_Stereo(t *testing.T) {
	in := &Clip{SampleRate: 8000, Channels: 2, BitDepth: 16, Samples: []int{0, 100, 10, 200, 20, 300, 30, 400}}

	out := Resample(in, 4000)
	assert.Equal(t, 2, out.Frames())
	assert.Equal(t, []int{0, 100, 20, 300}, out.Samples)
}

func TestResample_SameRate(t *testing.T) {
	in := sine(44100, 10)
	assert.Same(t, in, Resample(in, 44100))
}

func TestTo16Bit(t *testing.T) {
	c8 := &Clip{SampleRate: 8000, Channels: 1, BitDepth: 8, Samples: []int{0, 128, 255}}
	assert.Equal(t, []int{-32768, 0, 127 << 8}, To16Bit(c8).Samples)

	c24 := &Clip{SampleRate: 8000, Channels: 1, BitDepth: 24, Samples: []int{1 << 20, -(1 << 20)}}
	assert.Equal(t, []int{1 << 12, -(1 << 12)}, To16Bit(c24).Samples)

	c16 := sine(8000, 4)
	assert.Same(t, c16, To16Bit(c16))
}

func TestConvert(t *testing.T) {
	src, err := EncodePCM16(sine(16000, 1600))
	require.NoError(t, err)

	out, err := Convert(src, DefaultSampleRate)
	require.NoError(t, err)

	clip, err := Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, DefaultSampleRate, clip.SampleRate)
	assert.Equal(t, 4410, clip.Frames())
}

func TestDecode_Garbage(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("definitely not a wav file")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupported))
}

func TestEncodePCM16_PatchesChunkSizes(t *testing.T) {
	data, err := EncodePCM16(sine(8000, 100))
	require.NoError(t, err)

	// 44-byte canonical header followed by 100 16-bit mono samples.
	require.Len(t, data, 44+200)
	assert.Equal(t, uint32(len(data)-8), binary.LittleEndian.Uint32(data[4:8]), "RIFF size")
	assert.Equal(t, "data", string(data[36:40]))
	assert.Equal(t, uint32(200), binary.LittleEndian.Uint32(data[40:44]), "data size")
}
