package rtty

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/floats"
)

// Section is one second-order IIR section with A[0] == 1
type Section struct {
	B [3]float64
	A [3]float64
}

// response evaluates the section at w radians per sample
func (s Section) response(w float64) complex128 {
	z1 := cmplx.Exp(complex(0, -w))
	z2 := z1 * z1
	num := complex(s.B[0], 0) + complex(s.B[1], 0)*z1 + complex(s.B[2], 0)*z2
	den := complex(s.A[0], 0) + complex(s.A[1], 0)*z1 + complex(s.A[2], 0)*z2
	return num / den
}

// dcGain returns the section gain at 0 Hz
func (s Section) dcGain() float64 {
	return (s.B[0] + s.B[1] + s.B[2]) / (s.A[0] + s.A[1] + s.A[2])
}

// Filter is a Butterworth bandpass realized as cascaded second-order sections
type Filter struct {
	sections   []Section
	zi         [][2]float64 // Step-response steady state per section
	sampleRate float64
	low        float64
	high       float64
}

// DesignBandpass designs a digital Butterworth bandpass of the given prototype order.
// The band edges are prewarped, the analog lowpass prototype is shifted to the band and
// mapped with the bilinear transform. Each section is scaled to unit gain at the centre.
func DesignBandpass(order int, low, high, sampleRate float64) (*Filter, error) {
	if order < 1 {
		return nil, fmt.Errorf("filter order %d must be positive", order)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate %.1f must be positive", sampleRate)
	}
	if low <= 0 || high <= low || high >= sampleRate/2 {
		return nil, fmt.Errorf("band %.1f-%.1f Hz invalid for sample rate %.1f", low, high, sampleRate)
	}

	fs := sampleRate
	wl := 2 * fs * math.Tan(math.Pi*low/fs)
	wh := 2 * fs * math.Tan(math.Pi*high/fs)
	bw := wh - wl
	w0 := math.Sqrt(wl * wh)

	// Bandpass poles of the analog prototype mapped to the z plane
	k2fs := complex(2*fs, 0)
	poles := make([]complex128, 0, 2*order)
	for k := 0; k < order; k++ {
		theta := math.Pi * float64(2*k+order+1) / float64(2*order)
		a := cmplx.Exp(complex(0, theta)) * complex(bw/2, 0)
		d := cmplx.Sqrt(a*a - complex(w0*w0, 0))
		for _, s := range []complex128{a + d, a - d} {
			poles = append(poles, (k2fs+s)/(k2fs-s))
		}
	}

	sections := pairSections(poles)
	centre := 2 * math.Atan(w0/(2*fs))
	for i := range sections {
		g := cmplx.Abs(sections[i].response(centre))
		if g == 0 || math.IsNaN(g) || math.IsInf(g, 0) {
			return nil, fmt.Errorf("degenerate section %d for band %.1f-%.1f Hz", i, low, high)
		}
		for j := range sections[i].B {
			sections[i].B[j] /= g
		}
	}

	f := &Filter{
		sections:   sections,
		sampleRate: sampleRate,
		low:        low,
		high:       high,
	}
	f.zi = f.steadyState()
	return f, nil
}

// pairSections groups poles into real-coefficient sections; every section gets one zero at
// z=1 and one at z=-1
func pairSections(poles []complex128) []Section {
	var upper []complex128
	var reals []float64
	for _, p := range poles {
		tol := 1e-12 * math.Max(1, cmplx.Abs(p))
		switch {
		case imag(p) > tol:
			upper = append(upper, p)
		case imag(p) < -tol:
			// conjugate of an upper pole
		default:
			reals = append(reals, real(p))
		}
	}

	sections := make([]Section, 0, len(upper)+(len(reals)+1)/2)
	for _, p := range upper {
		sections = append(sections, Section{
			B: [3]float64{1, 0, -1},
			A: [3]float64{1, -2 * real(p), real(p)*real(p) + imag(p)*imag(p)},
		})
	}
	for i := 0; i+1 < len(reals); i += 2 {
		r1, r2 := reals[i], reals[i+1]
		sections = append(sections, Section{
			B: [3]float64{1, 0, -1},
			A: [3]float64{1, -(r1 + r2), r1 * r2},
		})
	}
	return sections
}

// steadyState computes the initial conditions that make the cascade start in the steady
// state of a unit step
func (f *Filter) steadyState() [][2]float64 {
	zi := make([][2]float64, len(f.sections))
	scale := 1.0
	for k, s := range f.sections {
		y := s.dcGain()
		z2 := s.B[2] - s.A[2]*y
		z1 := s.B[1] - s.A[1]*y + z2
		zi[k] = [2]float64{z1 * scale, z2 * scale}
		scale *= y
	}
	return zi
}

// Sections returns a copy of the second-order sections
func (f *Filter) Sections() []Section {
	out := make([]Section, len(f.sections))
	copy(out, f.sections)
	return out
}

// Gain returns the magnitude response at freq Hz
func (f *Filter) Gain(freq float64) float64 {
	w := 2 * math.Pi * freq / f.sampleRate
	g := 1.0
	for _, s := range f.sections {
		g *= cmplx.Abs(s.response(w))
	}
	return g
}

// apply runs the cascade in place, starting from the steady state for input level x0
func (f *Filter) apply(y []float64, x0 float64) {
	for k, s := range f.sections {
		z1 := f.zi[k][0] * x0
		z2 := f.zi[k][1] * x0
		for i, xi := range y {
			yi := s.B[0]*xi + z1
			z1 = s.B[1]*xi - s.A[1]*yi + z2
			z2 = s.B[2]*xi - s.A[2]*yi
			y[i] = yi
		}
	}
}

// padLength is the odd-extension length used on each side by FiltFilt
func (f *Filter) padLength() int {
	return 3 * (2*len(f.sections) + 1)
}

// FiltFilt filters x forward and backward for zero phase distortion. The signal is padded
// on both ends with its odd extension to suppress edge transients.
func (f *Filter) FiltFilt(x []float64) []float64 {
	n := len(x)
	if n == 0 {
		return nil
	}

	edge := f.padLength()
	if edge > n-1 {
		edge = n - 1
	}

	ext := make([]float64, n+2*edge)
	for i := 0; i < edge; i++ {
		ext[i] = 2*x[0] - x[edge-i]
	}
	copy(ext[edge:], x)
	for i := 0; i < edge; i++ {
		ext[edge+n+i] = 2*x[n-1] - x[n-2-i]
	}

	f.apply(ext, ext[0])
	floats.Reverse(ext)
	f.apply(ext, ext[0])
	floats.Reverse(ext)

	return ext[edge : edge+n]
}
