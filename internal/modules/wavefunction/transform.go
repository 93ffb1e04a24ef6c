package wavefunction

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// transform is a 2D DFT over an n×n row-major grid. Forward is
// unnormalized; Inverse applies the 1/n factor per dimension so that
// Inverse(Forward(x)) == x.
type transform interface {
	Forward(grid []complex128)
	Inverse(grid []complex128)
}

// fftTransform is the fast path built on gonum's complex FFT.
type fftTransform struct {
	n   int
	fft *fourier.CmplxFFT
	col []complex128
}

func newFFTTransform(n int) *fftTransform {
	return &fftTransform{
		n:   n,
		fft: fourier.NewCmplxFFT(n),
		col: make([]complex128, n),
	}
}

func (t *fftTransform) Forward(grid []complex128) {
	for r := 0; r < t.n; r++ {
		row := grid[r*t.n : (r+1)*t.n]
		t.fft.Coefficients(row, row)
	}
	for c := 0; c < t.n; c++ {
		for r := 0; r < t.n; r++ {
			t.col[r] = grid[r*t.n+c]
		}
		t.fft.Coefficients(t.col, t.col)
		for r := 0; r < t.n; r++ {
			grid[r*t.n+c] = t.col[r]
		}
	}
}

func (t *fftTransform) Inverse(grid []complex128) {
	for r := 0; r < t.n; r++ {
		row := grid[r*t.n : (r+1)*t.n]
		t.fft.Sequence(row, row)
	}
	for c := 0; c < t.n; c++ {
		for r := 0; r < t.n; r++ {
			t.col[r] = grid[r*t.n+c]
		}
		t.fft.Sequence(t.col, t.col)
		for r := 0; r < t.n; r++ {
			grid[r*t.n+c] = t.col[r]
		}
	}
	// gonum's Sequence is unnormalized: one 1/n per dimension.
	scale := complex(1/float64(t.n*t.n), 0)
	for i := range grid {
		grid[i] *= scale
	}
}

// directTransform is the O(N²)-per-line summation fallback. Identical
// convention to the FFT path, selectable through configuration when the
// FFT is suspect; correctness-preserving but not performance-equivalent.
type directTransform struct {
	n    int
	line []complex128
}

func newDirectTransform(n int) *directTransform {
	return &directTransform{n: n, line: make([]complex128, n)}
}

func (t *directTransform) Forward(grid []complex128) { t.apply(grid, -1) }

func (t *directTransform) Inverse(grid []complex128) {
	t.apply(grid, +1)
	scale := complex(1/float64(t.n*t.n), 0)
	for i := range grid {
		grid[i] *= scale
	}
}

// apply runs the 1D summation DFT over every row, then every column.
func (t *directTransform) apply(grid []complex128, sign float64) {
	for r := 0; r < t.n; r++ {
		row := grid[r*t.n : (r+1)*t.n]
		t.dft1d(row, sign)
	}
	for c := 0; c < t.n; c++ {
		for r := 0; r < t.n; r++ {
			t.line[r] = grid[r*t.n+c]
		}
		t.dft1d(t.line, sign)
		for r := 0; r < t.n; r++ {
			grid[r*t.n+c] = t.line[r]
		}
	}
}

func (t *directTransform) dft1d(line []complex128, sign float64) {
	n := len(line)
	out := make([]complex128, n)
	for k := 0; k < n; k++ {
		var sum complex128
		for j := 0; j < n; j++ {
			angle := sign * 2 * math.Pi * float64(j*k) / float64(n)
			sum += line[j] * cmplx.Exp(complex(0, angle))
		}
		out[k] = sum
	}
	copy(line, out)
}

// kFrequencies returns the angular wavenumber per grid index with the
// standard DFT ordering: zero and positive frequencies first, then the
// negative-frequency wraparound.
func kFrequencies(n int, d float64) []float64 {
	k := make([]float64, n)
	scale := 2 * math.Pi / (float64(n) * d)
	for i := 0; i < n; i++ {
		freq := float64(i)
		if i >= (n+1)/2 {
			freq = float64(i - n)
		}
		k[i] = freq * scale
	}
	return k
}
