// Package audio converts WAV files for download: it decodes PCM WAV data,
// resamples it to a target rate and re-encodes it as 16-bit PCM.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/orcaman/writerseeker"
)

// DefaultSampleRate is the rate downloads are converted to unless the
// caller asks for another.
const DefaultSampleRate = 44100

const (
	formatPCM        = 1
	formatExtensible = 0xFFFE
	outputBitDepth   = 16
)

// ErrUnsupported is returned for data that is not a PCM WAV file.
var ErrUnsupported = errors.New("unsupported wav data")

// Clip is decoded PCM audio. Samples are interleaved and scaled to
// BitDepth.
type Clip struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Samples    []int
}

// Frames returns the number of sample frames (samples per channel).
func (c *Clip) Frames() int {
	if c.Channels == 0 {
		return 0
	}
	return len(c.Samples) / c.Channels
}

// Decode reads a PCM WAV stream.
func Decode(r io.ReadSeeker) (*Clip, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: not a valid wav file", ErrUnsupported)
	}
	if d.WavAudioFormat != formatPCM && d.WavAudioFormat != formatExtensible {
		return nil, fmt.Errorf("%w: audio format %d", ErrUnsupported, d.WavAudioFormat)
	}
	switch d.BitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: bit depth %d", ErrUnsupported, d.BitDepth)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decoding pcm: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels < 1 || buf.Format.SampleRate < 1 {
		return nil, fmt.Errorf("%w: missing format chunk", ErrUnsupported)
	}

	return &Clip{
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
		BitDepth:   int(d.BitDepth),
		Samples:    buf.Data,
	}, nil
}

// To16Bit rescales samples to 16-bit signed range. 8-bit WAV samples are
// unsigned and are re-centred on zero.
func To16Bit(c *Clip) *Clip {
	if c.BitDepth == outputBitDepth {
		return c
	}
	out := make([]int, len(c.Samples))
	for i, s := range c.Samples {
		switch c.BitDepth {
		case 8:
			out[i] = (s - 128) << 8
		case 24:
			out[i] = s >> 8
		case 32:
			out[i] = s >> 16
		default:
			out[i] = s
		}
	}
	return &Clip{SampleRate: c.SampleRate, Channels: c.Channels, BitDepth: outputBitDepth, Samples: out}
}

// Resample converts the clip to rate using linear interpolation per
// channel. The clip is returned unchanged when the rates match.
func Resample(c *Clip, rate int) *Clip {
	if rate <= 0 || rate == c.SampleRate || c.Frames() == 0 {
		return c
	}

	inFrames := c.Frames()
	outFrames := int(int64(inFrames) * int64(rate) / int64(c.SampleRate))
	if outFrames < 1 {
		outFrames = 1
	}
	ratio := float64(c.SampleRate) / float64(rate)
	out := make([]int, outFrames*c.Channels)

	for f := 0; f < outFrames; f++ {
		pos := float64(f) * ratio
		i0 := int(pos)
		if i0 >= inFrames {
			i0 = inFrames - 1
		}
		i1 := i0 + 1
		if i1 >= inFrames {
			i1 = inFrames - 1
		}
		frac := pos - float64(i0)
		for ch := 0; ch < c.Channels; ch++ {
			a := float64(c.Samples[i0*c.Channels+ch])
			b := float64(c.Samples[i1*c.Channels+ch])
			out[f*c.Channels+ch] = int(a + (b-a)*frac)
		}
	}

	return &Clip{SampleRate: rate, Channels: c.Channels, BitDepth: c.BitDepth, Samples: out}
}

// EncodePCM16 writes the clip as a 16-bit PCM WAV file.
func EncodePCM16(c *Clip) ([]byte, error) {
	c = To16Bit(c)

	// The encoder seeks back to patch chunk sizes on Close.
	ws := &writerseeker.WriterSeeker{}
	enc := wav.NewEncoder(ws, c.SampleRate, outputBitDepth, c.Channels, formatPCM)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: c.Channels, SampleRate: c.SampleRate},
		Data:           c.Samples,
		SourceBitDepth: outputBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("encoding wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalizing wav: %w", err)
	}
	out, err := io.ReadAll(ws.Reader())
	if err != nil {
		return nil, fmt.Errorf("reading encoded wav: %w", err)
	}
	return out, nil
}

// Convert decodes a WAV file, resamples it to rate and re-encodes it as
// 16-bit PCM.
func Convert(data []byte, rate int) ([]byte, error) {
	clip, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return EncodePCM16(Resample(To16Bit(clip), rate))
}
