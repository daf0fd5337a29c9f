package audioconv

import (
	"math"
	"time"

	"github.com/faiface/beep"
)

// resampleQuality is the interpolation window handed to beep.Resample.
const resampleQuality = 4

const int16Scale = 1.0 / 32768.0

type sample interface {
	~int | ~int16 | ~float32
}

// mono folds interleaved frames into one channel, multiplying by scale so
// integer PCM lands in [-1, 1]. A trailing partial frame is dropped.
func mono[T sample](in []T, channels int, scale float64) []float32 {
	if channels < 1 {
		channels = 1
	}
	out := make([]float32, len(in)/channels)
	k := scale / float64(channels)
	for i := range out {
		var sum float64
		for _, v := range in[i*channels : (i+1)*channels] {
			sum += float64(v)
		}
		out[i] = float32(max(-1, min(1, sum*k)))
	}
	return out
}

// depthScale maps signed integers of the given bit depth onto [-1, 1].
func depthScale(bitDepth int) float64 {
	return 1 / float64(int64(1)<<(bitDepth-1))
}

// Streamer plays the clip on both channels of a beep stream.
func (c Clip) Streamer() beep.Streamer {
	pos := 0
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if pos >= len(c.Samples) {
			return 0, false
		}
		n := copyFrames(samples, c.Samples[pos:])
		pos += n
		return n, true
	})
}

func copyFrames(dst [][2]float64, src []float32) int {
	n := min(len(dst), len(src))
	for i, v := range src[:n] {
		dst[i][0], dst[i][1] = float64(v), float64(v)
	}
	return n
}

// Resample returns the clip at rate. Clips already at rate, empty clips and
// non-positive rates come back unchanged.
func (c Clip) Resample(rate int) Clip {
	if rate <= 0 || c.Rate <= 0 || rate == c.Rate || len(c.Samples) == 0 {
		return c
	}
	want := int(math.Ceil(float64(len(c.Samples)) * float64(rate) / float64(c.Rate)))
	rs := beep.Resample(resampleQuality, beep.SampleRate(c.Rate), beep.SampleRate(rate), c.Streamer())

	out := make([]float32, 0, want)
	buf := make([][2]float64, 512)
	for len(out) < want {
		n, ok := rs.Stream(buf)
		for _, f := range buf[:n] {
			out = append(out, float32(f[0]))
		}
		if !ok || n == 0 {
			break
		}
	}
	// the resampler may stop a few frames short of the exact length
	for len(out) < want {
		out = append(out, 0)
	}
	return Clip{Samples: out[:want], Rate: rate}
}

// RMS returns the root mean square level of a frame.
func RMS(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var s float64
	for _, x := range frame {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s / float64(len(frame)))
}

// Tone synthesizes a sine tone with 5 ms fades at each end.
func Tone(freq float64, d time.Duration, rate int, gain float32) Clip {
	n := int(d.Seconds() * float64(rate))
	fade := rate / 200
	out := make([]float32, n)
	for i := range out {
		env := float32(1)
		if i < fade {
			env = float32(i) / float32(fade)
		} else if n-i < fade {
			env = float32(n-i) / float32(fade)
		}
		out[i] = gain * env * float32(math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return Clip{Samples: out, Rate: rate}
}
