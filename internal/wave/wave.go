// Package wave normalizes captured audio into the canonical transmission
// format: mono 16-bit little-endian PCM in a plain 44-byte WAV container,
// kept at the source sample rate.
package wave

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/go-audio/wav"
)

// DecodeError reports that a captured clip could not be parsed as audio.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode audio: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decoded holds per-channel samples normalized to [-1, 1].
type Decoded struct {
	SampleRate int
	Channels   [][]float64
}

// Decode parses a WAV clip into per-channel float samples.
func Decode(raw []byte) (*Decoded, error) {
	dec := wav.NewDecoder(bytes.NewReader(raw))
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return nil, &DecodeError{Err: fmt.Errorf("not a valid wav stream")}
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 || buf.Format.SampleRate <= 0 {
		return nil, &DecodeError{Err: fmt.Errorf("missing format information")}
	}

	channels := buf.Format.NumChannels
	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = int(dec.BitDepth)
	}
	if bitDepth <= 0 {
		return nil, &DecodeError{Err: fmt.Errorf("unknown bit depth")}
	}
	scale := float64(int64(1) << (bitDepth - 1))

	frames := len(buf.Data) / channels
	out := make([][]float64, channels)
	for ch := range out {
		out[ch] = make([]float64, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			out[ch][i] = float64(buf.Data[i*channels+ch]) / scale
		}
	}

	return &Decoded{SampleRate: buf.Format.SampleRate, Channels: out}, nil
}

// Downmix collapses any channel count to mono by taking the arithmetic mean
// of all channels per sample index. Single-channel input passes through.
func Downmix(dec *Decoded) []float64 {
	if len(dec.Channels) == 0 {
		return nil
	}
	if len(dec.Channels) == 1 {
		return dec.Channels[0]
	}
	frames := len(dec.Channels[0])
	mono := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for _, ch := range dec.Channels {
			sum += ch[i]
		}
		mono[i] = sum / float64(len(dec.Channels))
	}
	return mono
}

// PCM16 quantizes float samples to int16. Values are clamped to [-1, 1];
// negatives scale by 32768 and non-negatives by 32767 so both ends of the
// int16 range are reachable without overflow.
func PCM16(samples []float64) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		if s < -1 {
			s = -1
		} else if s > 1 {
			s = 1
		}
		if s < 0 {
			out[i] = int16(s * 32768)
		} else {
			out[i] = int16(s * 32767)
		}
	}
	return out
}

// Encode serializes mono float samples as a canonical WAV byte stream:
// the 44-byte PCM header followed by little-endian 16-bit samples.
// Output length is always 44 + 2*len(samples).
func Encode(samples []float64, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("encode wav: sample rate must be positive, got %d", sampleRate)
	}

	pcm := PCM16(samples)
	dataLen := len(pcm) * 2

	var buf bytes.Buffer
	buf.Grow(44 + dataLen)

	buf.WriteString("RIFF")
	writeUint32(&buf, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	writeUint32(&buf, 16)                    // PCM fmt chunk size
	writeUint16(&buf, 1)                     // audio format: PCM
	writeUint16(&buf, 1)                     // channels: mono
	writeUint32(&buf, uint32(sampleRate))    // sample rate
	writeUint32(&buf, uint32(sampleRate*2))  // byte rate
	writeUint16(&buf, 2)                     // block align
	writeUint16(&buf, 16)                    // bits per sample

	buf.WriteString("data")
	writeUint32(&buf, uint32(dataLen))
	for _, s := range pcm {
		writeUint16(&buf, uint16(s))
	}

	return buf.Bytes(), nil
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}
