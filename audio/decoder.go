package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/wav"
	"github.com/opd-ai/trackcore/limits"
	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
)

// Decoder names used as pool keys.
const (
	DecoderWAV  = "wav"
	DecoderOpus = "opus"
)

// Decoder turns an encoded stream into planar float audio. Instances are
// pooled by name and reinitialized between tracks.
type Decoder interface {
	Name() string
	Decode(r io.ReadSeeker) (*AudioBuffer, error)
	Reinitialize() error
}

// NewDecoder constructs the decoder registered under name.
func NewDecoder(name string) (Decoder, error) {
	switch name {
	case DecoderWAV:
		return &WavDecoder{}, nil
	case DecoderOpus:
		return NewOpusDecoder(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDecoder, name)
	}
}

// WavDecoder decodes RIFF/WAVE PCM files.
type WavDecoder struct{}

// Name implements Decoder.
func (d *WavDecoder) Name() string { return DecoderWAV }

// Reinitialize implements Decoder. WavDecoder holds no state between files.
func (d *WavDecoder) Reinitialize() error { return nil }

// Decode reads the whole PCM payload of r.
func (d *WavDecoder) Decode(r io.ReadSeeker) (*AudioBuffer, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not a WAV file", ErrInvalidStream)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStream, err)
	}
	if buf.Format == nil {
		return nil, fmt.Errorf("%w: missing format chunk", ErrInvalidStream)
	}

	channels := buf.Format.NumChannels
	if err := limits.ValidateChannelCount(channels); err != nil {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChannelCount, channels)
	}
	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		return nil, fmt.Errorf("%w: unknown bit depth", ErrInvalidStream)
	}

	frames := len(buf.Data) / channels
	out := NewAudioBuffer(channels, frames, buf.Format.SampleRate)
	scale := 1 / math.Pow(2, float64(bitDepth-1))
	for f := 0; f < frames; f++ {
		for ch := 0; ch < channels; ch++ {
			out.Channels[ch][f] = float32(float64(buf.Data[f*channels+ch]) * scale)
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":    "WavDecoder.Decode",
		"channels":    channels,
		"sample_rate": buf.Format.SampleRate,
		"bit_depth":   bitDepth,
		"frames":      frames,
	}).Debug("Decoded WAV stream")

	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

const (
	// opusMaxOutput bounds one decoded packet: 120ms at 48kHz.
	opusMaxOutput = 5760
	// opusHold is how many times pion/opus repeats each SILK sample to
	// reach 48kHz.
	opusHold = 3
)

// OpusDecoder decodes a stream of SILK Opus packets, each prefixed with its
// big-endian uint16 length. Audio comes out at the SILK internal rate of the
// stream (8, 12 or 16kHz) with the 48kHz sample hold removed.
type OpusDecoder struct {
	decoder opus.Decoder
	output  []float32
}

// NewOpusDecoder creates a decoder backed by pion/opus.
func NewOpusDecoder() *OpusDecoder {
	return &OpusDecoder{
		decoder: opus.NewDecoder(),
		output:  make([]float32, opusMaxOutput),
	}
}

// Name implements Decoder.
func (d *OpusDecoder) Name() string { return DecoderOpus }

// Reinitialize resets decoder state for a new stream.
func (d *OpusDecoder) Reinitialize() error {
	d.decoder = opus.NewDecoder()
	return nil
}

// Decode reads length-prefixed packets until EOF.
func (d *OpusDecoder) Decode(r io.ReadSeeker) (*AudioBuffer, error) {
	var (
		samples    []float32
		sampleRate int
		packets    int
		header     [2]byte
	)

	for {
		if _, err := io.ReadFull(r, header[:]); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%w: packet header: %v", ErrInvalidStream, err)
		}
		packet := make([]byte, binary.BigEndian.Uint16(header[:]))
		if len(packet) == 0 {
			return nil, fmt.Errorf("%w: empty packet %d", ErrInvalidStream, packets)
		}
		if _, err := io.ReadFull(r, packet); err != nil {
			return nil, fmt.Errorf("%w: packet %d: %v", ErrInvalidStream, packets, err)
		}

		// pion/opus decodes SILK mono only and rejects stereo packets.
		bandwidth, _, err := d.decoder.DecodeFloat32(packet, d.output)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "OpusDecoder.Decode",
				"packet":   packets,
				"error":    err.Error(),
			}).Error("Opus decode failed")
			return nil, fmt.Errorf("opus decode failed: %w", err)
		}

		rate := bandwidth.SampleRate()
		if packets == 0 {
			sampleRate = rate
		} else if rate != sampleRate {
			return nil, fmt.Errorf("%w: packet %d changes rate to %dHz", ErrInvalidStream, packets, rate)
		}

		frames := min(packetSamples(packet, rate), len(d.output)/opusHold)
		for f := 0; f < frames; f++ {
			samples = append(samples, d.output[f*opusHold])
		}
		packets++
	}

	if packets == 0 {
		return nil, ErrEmptyInput
	}
	logrus.WithFields(logrus.Fields{
		"function":    "OpusDecoder.Decode",
		"packets":     packets,
		"sample_rate": sampleRate,
		"frames":      len(samples),
	}).Debug("Decoded Opus stream")
	return &AudioBuffer{SampleRate: sampleRate, Channels: [][]float32{samples}}, nil
}

// opusFrameDurations is the frame duration in microseconds per TOC config.
var opusFrameDurations = [32]int{
	10000, 20000, 40000, 60000, // SILK NB
	10000, 20000, 40000, 60000, // SILK MB
	10000, 20000, 40000, 60000, // SILK WB
	10000, 20000, // Hybrid SWB
	10000, 20000, // Hybrid FB
	2500, 5000, 10000, 20000, // CELT NB
	2500, 5000, 10000, 20000, // CELT WB
	2500, 5000, 10000, 20000, // CELT SWB
	2500, 5000, 10000, 20000, // CELT FB
}

// packetSamples derives the per-channel sample count of a packet from its
// TOC byte.
func packetSamples(packet []byte, sampleRate int) int {
	toc := packet[0]
	frames := 1
	switch toc & 0x3 {
	case 1, 2:
		frames = 2
	case 3:
		if len(packet) > 1 {
			frames = int(packet[1] & 0x3f)
		}
	}
	durationUS := opusFrameDurations[toc>>3] * frames
	return durationUS * sampleRate / 1_000_000
}

// GetBandwidthFromSampleRate maps an output rate to its Opus bandwidth.
// Unsupported rates fall back to fullband.
func GetBandwidthFromSampleRate(sampleRate uint32) opus.Bandwidth {
	switch sampleRate {
	case 8000:
		return opus.BandwidthNarrowband
	case 12000:
		return opus.BandwidthMediumband
	case 16000:
		return opus.BandwidthWideband
	case 24000:
		return opus.BandwidthSuperwideband
	case 48000:
		return opus.BandwidthFullband
	default:
		logrus.WithFields(logrus.Fields{
			"function":    "GetBandwidthFromSampleRate",
			"sample_rate": sampleRate,
		}).Warn("Unsupported sample rate, defaulting to fullband")
		return opus.BandwidthFullband
	}
}
