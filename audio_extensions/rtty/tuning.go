package rtty

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// ErrNoTones is returned when no two distinct tones are found in the search range
var ErrNoTones = errors.New("no FSK tone pair found")

// ToneEstimate is the outcome of EstimateTones
type ToneEstimate struct {
	Mark  float64 // Hz, higher tone
	Space float64 // Hz, lower tone
	Shift float64 // Hz
}

// TuneOptions bounds the tone search
type TuneOptions struct {
	FFTSize  int     // Power of two, default 8192
	MinFreq  float64 // Hz, default 300
	MaxFreq  float64 // Hz, default 3000
	MinShift float64 // Hz, default 50
}

func (o *TuneOptions) applyDefaults() {
	if o.FFTSize <= 0 {
		o.FFTSize = 8192
	}
	if o.MinFreq <= 0 {
		o.MinFreq = 300
	}
	if o.MaxFreq <= 0 {
		o.MaxFreq = 3000
	}
	if o.MinShift <= 0 {
		o.MinShift = 50
	}
}

// EstimateTones finds the two strongest spectral peaks of an FSK signal from an averaged,
// Hann-windowed power spectrum
func EstimateTones(signal []float64, sampleRate int, opts TuneOptions) (ToneEstimate, error) {
	opts.applyDefaults()
	n := opts.FFTSize
	if len(signal) < n {
		n = 1
		for n*2 <= len(signal) {
			n *= 2
		}
	}
	if n < 64 {
		return ToneEstimate{}, ErrEmptySignal
	}

	fft := fourier.NewFFT(n)
	power := make([]float64, n/2+1)
	block := make([]float64, n)
	var coeffs []complex128
	for off := 0; off+n <= len(signal); off += n / 2 {
		copy(block, signal[off:off+n])
		window.Hann(block)
		coeffs = fft.Coefficients(coeffs, block)
		for i := range power {
			re, im := real(coeffs[i]), imag(coeffs[i])
			power[i] += re*re + im*im
		}
	}

	df := float64(sampleRate) / float64(n)
	minBin := int(math.Ceil(opts.MinFreq / df))
	maxBin := int(opts.MaxFreq / df)
	if minBin < 1 {
		minBin = 1
	}
	if maxBin > len(power)-2 {
		maxBin = len(power) - 2
	}
	if maxBin <= minBin {
		return ToneEstimate{}, ErrNoTones
	}

	first := strongestBin(power, minBin, maxBin, -1, 0)
	if first < 0 {
		return ToneEstimate{}, ErrNoTones
	}
	exclude := int(math.Ceil(opts.MinShift / df))
	second := strongestBin(power, minBin, maxBin, first, exclude)
	if second < 0 || power[second] == 0 {
		return ToneEstimate{}, ErrNoTones
	}

	f1 := interpolatePeak(power, first) * df
	f2 := interpolatePeak(power, second) * df
	est := ToneEstimate{Mark: math.Max(f1, f2), Space: math.Min(f1, f2)}
	est.Shift = est.Mark - est.Space
	return est, nil
}

// strongestBin returns the highest local maximum in [lo, hi], skipping bins within
// exclude of skip
func strongestBin(power []float64, lo, hi, skip, exclude int) int {
	best := -1
	for i := lo; i <= hi; i++ {
		if skip >= 0 && i >= skip-exclude && i <= skip+exclude {
			continue
		}
		if power[i] < power[i-1] || power[i] < power[i+1] {
			continue
		}
		if best < 0 || power[i] > power[best] {
			best = i
		}
	}
	return best
}

// interpolatePeak refines a bin index with a parabola through its neighbours
func interpolatePeak(power []float64, i int) float64 {
	a, b, c := power[i-1], power[i], power[i+1]
	den := a - 2*b + c
	if den == 0 {
		return float64(i)
	}
	return float64(i) + 0.5*(a-c)/den
}
