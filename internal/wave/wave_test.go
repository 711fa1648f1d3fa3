package wave

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func TestDownmixMeanAcrossChannelCounts(t *testing.T) {
	cases := []struct {
		name     string
		channels [][]float64
		want     []float64
	}{
		{
			name:     "mono passthrough",
			channels: [][]float64{{0.1, -0.2, 0.3}},
			want:     []float64{0.1, -0.2, 0.3},
		},
		{
			name:     "stereo mean",
			channels: [][]float64{{1, 0, -1}, {0, 0, 1}},
			want:     []float64{0.5, 0, 0},
		},
		{
			name:     "four channels",
			channels: [][]float64{{1, 1}, {0, 1}, {-1, 1}, {0, 1}},
			want:     []float64{0, 1},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Downmix(&Decoded{SampleRate: 16000, Channels: tc.channels})
			if len(got) != len(tc.channels[0]) {
				t.Fatalf("expected %d samples, got %d", len(tc.channels[0]), len(got))
			}
			for i := range got {
				if math.Abs(got[i]-tc.want[i]) > 1e-9 {
					t.Fatalf("sample %d: expected %v, got %v", i, tc.want[i], got[i])
				}
			}
		})
	}
}

func TestPCM16Endpoints(t *testing.T) {
	got := PCM16([]float64{1.0, -1.0, 0.0, 2.5, -3.0, 0.5})
	want := []int16{32767, -32768, 0, 32767, -32768, 16383}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestEncodeHeaderAndLength(t *testing.T) {
	samples := []float64{0.25, -0.25, 0.5}
	data, err := Encode(samples, 22050)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(data) != 44+2*len(samples) {
		t.Fatalf("expected %d bytes, got %d", 44+2*len(samples), len(data))
	}
	if string(data[:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatalf("missing RIFF/WAVE markers")
	}
	if ch := binary.LittleEndian.Uint16(data[22:24]); ch != 1 {
		t.Fatalf("expected mono header, got %d channels", ch)
	}
	if rate := binary.LittleEndian.Uint32(data[24:28]); rate != 22050 {
		t.Fatalf("expected sample rate 22050, got %d", rate)
	}
	if byteRate := binary.LittleEndian.Uint32(data[28:32]); byteRate != 22050*2 {
		t.Fatalf("expected byte rate %d, got %d", 22050*2, byteRate)
	}
	if align := binary.LittleEndian.Uint16(data[32:34]); align != 2 {
		t.Fatalf("expected block align 2, got %d", align)
	}
	if bits := binary.LittleEndian.Uint16(data[34:36]); bits != 16 {
		t.Fatalf("expected 16 bits per sample, got %d", bits)
	}
}

func TestEncodeDeterministic(t *testing.T) {
	samples := []float64{0.1, 0.2, -0.3, 0.9999, -0.9999}
	first, err := Encode(samples, 16000)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	second, err := Encode(samples, 16000)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("length mismatch")
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("byte %d differs between runs", i)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	samples := []float64{0, 0.5, -0.5, 1.0, -1.0}
	data, err := Encode(samples, 48000)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	dec, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dec.SampleRate != 48000 {
		t.Fatalf("expected sample rate 48000, got %d", dec.SampleRate)
	}
	if len(dec.Channels) != 1 {
		t.Fatalf("expected 1 channel, got %d", len(dec.Channels))
	}
	if len(dec.Channels[0]) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(dec.Channels[0]))
	}
	for i, s := range samples {
		if math.Abs(dec.Channels[0][i]-s) > 1.0/32767 {
			t.Fatalf("sample %d: expected ~%v, got %v", i, s, dec.Channels[0][i])
		}
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("definitely not audio"))
	if err == nil {
		t.Fatal("expected decode error")
	}
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %T", err)
	}
}
