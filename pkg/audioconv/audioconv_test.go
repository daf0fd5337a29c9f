package audioconv

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeWAV writes 16-bit PCM with a canonical 44-byte header.
func writeWAV(t *testing.T, path string, rate, channels int, samples []int16) {
	t.Helper()
	var buf bytes.Buffer
	dataLen := len(samples) * 2
	put := func(v any) {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			t.Fatal(err)
		}
	}
	buf.WriteString("RIFF")
	put(uint32(36 + dataLen))
	buf.WriteString("WAVEfmt ")
	put(uint32(16))
	put(uint16(1))
	put(uint16(channels))
	put(uint32(rate))
	put(uint32(rate * channels * 2))
	put(uint16(channels * 2))
	put(uint16(16))
	buf.WriteString("data")
	put(uint32(dataLen))
	put(samples)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDecodeFileWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	// one second of stereo at 8 kHz, left full scale positive, right silent
	samples := make([]int16, 8000*2)
	for i := 0; i < len(samples); i += 2 {
		samples[i] = 16384
	}
	writeWAV(t, path, 8000, 2, samples)

	clip, err := DecodeFile(context.Background(), path, Options{Rate: WhisperRate})
	if err != nil {
		t.Fatalf("DecodeFile: %v", err)
	}
	if clip.Rate != WhisperRate {
		t.Errorf("rate = %d", clip.Rate)
	}
	if got := clip.Duration(); got < 990*time.Millisecond || got > 1010*time.Millisecond {
		t.Errorf("duration = %v, want ~1s", got)
	}
	if v := clip.Samples[100]; math.Abs(float64(v)-0.25) > 0.01 {
		t.Errorf("sample = %v, want 0.25 after downmix", v)
	}
}

func TestDecodeFileMaxDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "long.wav")
	writeWAV(t, path, 16000, 1, make([]int16, 32000))

	clip, err := DecodeFile(context.Background(), path, Options{MaxDuration: 500 * time.Millisecond})
	if err != nil {
		t.Fatalf("DecodeFile: %v", err)
	}
	if len(clip.Samples) != 8000 {
		t.Errorf("samples = %d, want 8000", len(clip.Samples))
	}
}

func TestDecodeUnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := DecodeFile(context.Background(), path, Options{})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("DecodeFile = %v, want ErrUnsupportedFormat", err)
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path string
		head []byte
		want Format
	}{
		{"a.WAV", nil, FormatWAV},
		{"a.mp3", nil, FormatMP3},
		{"a.opus", nil, FormatOgg},
		{"noext", []byte("RIFF"), FormatWAV},
		{"noext", []byte("OggS"), FormatOgg},
		{"noext", []byte("ID3\x04"), FormatMP3},
		{"noext", []byte{0xff, 0xfb, 0x90, 0x00}, FormatMP3},
		{"noext", []byte("abcd"), FormatUnknown},
	}
	for _, tt := range tests {
		if got := DetectFormat(tt.path, tt.head); got != tt.want {
			t.Errorf("DetectFormat(%q, %q) = %v, want %v", tt.path, tt.head, got, tt.want)
		}
	}
}

func TestMono(t *testing.T) {
	got := mono([]float32{1, 0, 0.5, 0.5, -1, 1, 0.3}, 2, 1)
	want := []float32{0.5, 0.5, 0}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d (partial frame dropped)", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	ints := mono([]int16{-32768, 16384}, 1, int16Scale)
	if ints[0] != -1 || ints[1] != 0.5 {
		t.Errorf("int16 = %v, want [-1 0.5]", ints)
	}
	wide := mono([]int{1 << 23, -(1 << 23)}, 1, depthScale(24))
	if wide[0] != 1 || wide[1] != -1 {
		t.Errorf("24-bit = %v, want clamped [1 -1]", wide)
	}
}

func TestClipStreamerDrains(t *testing.T) {
	clip := Clip{Samples: []float32{0.1, 0.2, 0.3}, Rate: 44100}
	s := clip.Streamer()

	buf := make([][2]float64, 2)
	n, ok := s.Stream(buf)
	if n != 2 || !ok {
		t.Fatalf("first Stream = %d, %v", n, ok)
	}
	if buf[1][0] != buf[1][1] || float32(buf[1][0]) != 0.2 {
		t.Errorf("frame = %v, want mono 0.2 on both channels", buf[1])
	}
	if n, ok = s.Stream(buf); n != 1 || !ok {
		t.Fatalf("second Stream = %d, %v", n, ok)
	}
	if n, ok = s.Stream(buf); n != 0 || ok {
		t.Fatalf("drained Stream = %d, %v", n, ok)
	}
}

func TestResample(t *testing.T) {
	in := Clip{Samples: make([]float32, 48000), Rate: 48000}
	if got := in.Resample(16000); len(got.Samples) != 16000 || got.Rate != 16000 {
		t.Errorf("48k->16k = %d samples at %d", len(got.Samples), got.Rate)
	}
	short := Clip{Samples: in.Samples[:100], Rate: 16000}
	if got := short.Resample(32000); len(got.Samples) != 200 {
		t.Errorf("16k->32k len = %d", len(got.Samples))
	}
	same := in.Resample(48000)
	if &same.Samples[0] != &in.Samples[0] {
		t.Error("same-rate resample must return the input")
	}

	tone := Tone(440, time.Second, 48000, 0.5)
	down := tone.Resample(WhisperRate)
	mid := len(down.Samples) / 4
	level := RMS(down.Samples[mid : 3*mid])
	if want := 0.5 / math.Sqrt2; math.Abs(level-want) > 0.02 {
		t.Errorf("resampled tone RMS = %.3f, want %.3f", level, want)
	}
}

func TestRMS(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v", got)
	}
	if got := RMS([]float32{0.5, -0.5, 0.5, -0.5}); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("RMS = %v, want 0.5", got)
	}
}

func TestTone(t *testing.T) {
	c := Tone(880, 100*time.Millisecond, 44100, 0.3)
	if len(c.Samples) != 4410 {
		t.Errorf("samples = %d", len(c.Samples))
	}
	if c.Samples[0] != 0 {
		t.Errorf("tone must fade in, first sample %v", c.Samples[0])
	}
	for _, s := range c.Samples {
		if s > 0.3 || s < -0.3 {
			t.Fatalf("sample %v exceeds gain", s)
		}
	}
}
