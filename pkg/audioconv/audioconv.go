// Package audioconv decodes WAV, MP3, Ogg/Vorbis and Ogg/Opus files into
// mono float32 PCM at a chosen sample rate.
package audioconv

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// WhisperRate is the sample rate whisper models expect.
const WhisperRate = 16000

// ErrUnsupportedFormat is returned for files no decoder accepts.
var ErrUnsupportedFormat = errors.New("audioconv: unsupported format")

// Format is a container/codec pair.
type Format int

const (
	FormatUnknown Format = iota
	FormatWAV
	FormatMP3
	FormatOgg // Vorbis, falling back to Opus
)

func (f Format) String() string {
	switch f {
	case FormatWAV:
		return "wav"
	case FormatMP3:
		return "mp3"
	case FormatOgg:
		return "ogg"
	}
	return "unknown"
}

// Clip is mono PCM in [-1, 1].
type Clip struct {
	Samples []float32
	Rate    int
}

// Duration returns the playback length.
func (c Clip) Duration() time.Duration {
	if c.Rate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.Rate)
}

// Options controls decoding. A zero Rate keeps the source rate.
type Options struct {
	Rate        int
	MaxDuration time.Duration
}

// DetectFormat picks a format from the file extension, then from the
// leading magic bytes.
func DetectFormat(path string, head []byte) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return FormatWAV
	case ".mp3":
		return FormatMP3
	case ".ogg", ".oga", ".opus":
		return FormatOgg
	}
	switch {
	case bytes.HasPrefix(head, []byte("RIFF")):
		return FormatWAV
	case bytes.HasPrefix(head, []byte("OggS")):
		return FormatOgg
	case bytes.HasPrefix(head, []byte("ID3")),
		len(head) >= 2 && head[0] == 0xff && head[1]&0xe0 == 0xe0:
		return FormatMP3
	}
	return FormatUnknown
}

// DecodeFile decodes the audio file at path.
func DecodeFile(ctx context.Context, path string, opt Options) (Clip, error) {
	if err := ctx.Err(); err != nil {
		return Clip{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return Clip{}, err
	}
	defer f.Close()

	head, _ := bufio.NewReader(f).Peek(4)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Clip{}, err
	}

	format := DetectFormat(path, head)
	clip, err := Decode(f, format, opt)
	if err != nil {
		return Clip{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return clip, nil
}

// Decode decodes r as format.
func Decode(r io.ReadSeeker, format Format, opt Options) (Clip, error) {
	var (
		clip Clip
		err  error
	)
	switch format {
	case FormatWAV:
		clip, err = decodeWAV(r)
	case FormatMP3:
		clip, err = decodeMP3(r)
	case FormatOgg:
		clip, err = decodeVorbis(r)
		if err != nil {
			if _, serr := r.Seek(0, io.SeekStart); serr != nil {
				return Clip{}, serr
			}
			var oerr error
			clip, oerr = decodeOpus(r)
			if oerr != nil {
				return Clip{}, fmt.Errorf("ogg is neither vorbis (%v) nor opus: %w", err, oerr)
			}
			err = nil
		}
	default:
		return Clip{}, ErrUnsupportedFormat
	}
	if err != nil {
		return Clip{}, err
	}
	return finish(clip, opt), nil
}

func finish(c Clip, opt Options) Clip {
	if opt.Rate > 0 {
		c = c.Resample(opt.Rate)
	}
	if opt.MaxDuration > 0 {
		limit := int(opt.MaxDuration.Seconds() * float64(c.Rate))
		if len(c.Samples) > limit {
			c.Samples = c.Samples[:limit]
		}
	}
	return c
}
