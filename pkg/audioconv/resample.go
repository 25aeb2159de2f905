package audioconv

import (
	"errors"
	"fmt"
	"math"
)

var ErrResample = errors.New("resample")

const (
	// taps per side, per unit of max(up, down)
	halfLenFactor = 10
	kaiserBeta    = 5.0
)

// Resample converts buf to targetRate with a polyphase FIR resampler.
//
// The ratio targetRate/buf.SampleRate is reduced to up/down. The signal is
// conceptually zero-stuffed by up, low-passed at 1/max(up, down) of Nyquist
// and decimated by down; only the taps that land on real input samples are
// evaluated. Output length is round-half-up of len*up/down.
func Resample(buf Buffer, targetRate int) (Buffer, error) {
	if buf.SampleRate <= 0 || targetRate <= 0 {
		return Buffer{}, fmt.Errorf("%w: invalid rates %d -> %d", ErrResample, buf.SampleRate, targetRate)
	}
	if len(buf.Samples) == 0 {
		return Buffer{}, fmt.Errorf("%w: empty input", ErrResample)
	}

	up, down := Ratio(buf.SampleRate, targetRate)
	if up == 1 && down == 1 {
		out := make([]float32, len(buf.Samples))
		copy(out, buf.Samples)
		return Buffer{Samples: out, SampleRate: targetRate}, nil
	}

	h := designLowPass(up, down)
	half := (len(h) - 1) / 2
	n := len(buf.Samples)
	outN := OutputLen(n, up, down)
	out := make([]float32, outN)

	for m := 0; m < outN; m++ {
		// position in the upsampled stream, shifted by the filter delay
		t := m*down + half
		var acc float64
		for k := t % up; k < len(h); k += up {
			i := (t - k) / up
			if i < 0 {
				break
			}
			if i >= n {
				continue
			}
			acc += h[k] * float64(buf.Samples[i])
		}
		out[m] = float32(acc)
	}

	return Buffer{Samples: out, SampleRate: targetRate}, nil
}

// Ratio reduces to/from into the up/down factors used by Resample.
func Ratio(from, to int) (up, down int) {
	g := gcd(from, to)
	return to / g, from / g
}

// OutputLen is the number of samples Resample produces for n input samples.
func OutputLen(n, up, down int) int {
	return (n*up + down/2) / down
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// designLowPass returns a Kaiser-windowed sinc with DC gain up.
func designLowPass(up, down int) []float64 {
	maxRate := up
	if down > maxRate {
		maxRate = down
	}
	half := halfLenFactor * maxRate
	taps := 2*half + 1
	cutoff := 1.0 / float64(maxRate)

	h := make([]float64, taps)
	norm := besselI0(kaiserBeta)
	var sum float64
	for i := range h {
		x := float64(i - half)
		r := x / float64(half)
		w := besselI0(kaiserBeta*math.Sqrt(1-r*r)) / norm
		h[i] = cutoff * sinc(cutoff*x) * w
		sum += h[i]
	}

	scale := float64(up) / sum
	for i := range h {
		h[i] *= scale
	}
	return h
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// besselI0 is the zeroth-order modified Bessel function of the first kind.
func besselI0(x float64) float64 {
	sum, term := 1.0, 1.0
	q := x * x / 4
	for k := 1; k < 64; k++ {
		term *= q / float64(k*k)
		sum += term
		if term < sum*1e-16 {
			break
		}
	}
	return sum
}
