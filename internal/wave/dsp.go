package wave

import (
	"math"
	"math/cmplx"
)

// No third-party DSP/FFT library exists anywhere in the retrieved
// reference pack (see DESIGN.md) — this file implements pitch
// tracking, STFT, harmonic extraction, and cosine synthesis directly
// on math and math/cmplx, the required stdlib fallback for this
// concern.

const (
	c2Hz = 65.406
	c7Hz = 2093.005

	frameSize = 1024 // ~128ms at 8kHz
	hopSize   = 256  // 75% overlap
	harmonics = 4
)

// pitchContour estimates f0(t) per frame using normalized
// autocorrelation, constrained to the C2-C7 range (spec §4.6 step 2).
// Unvoiced frames (no strong periodicity) are held at the previous
// voiced value; leading unvoiced frames take the first voiced value.
func pitchContour(samples []float64, sampleRate int) []float64 {
	nFrames := numFrames(len(samples))
	f0 := make([]float64, nFrames)

	minLag := int(float64(sampleRate) / c7Hz)
	maxLag := int(float64(sampleRate) / c2Hz)
	if minLag < 1 {
		minLag = 1
	}

	lastVoiced := 0.0
	for i := 0; i < nFrames; i++ {
		frame := windowed(samples, i*hopSize, frameSize)
		lag, strength := bestAutocorrelationLag(frame, minLag, maxLag)
		if strength > 0.3 && lag > 0 {
			lastVoiced = float64(sampleRate) / float64(lag)
		}
		f0[i] = lastVoiced
	}

	// Backfill any leading zeros (clip started silent) with the
	// first voiced estimate found.
	firstVoiced := 0.0
	for _, v := range f0 {
		if v > 0 {
			firstVoiced = v
			break
		}
	}
	for i := range f0 {
		if f0[i] == 0 {
			f0[i] = firstVoiced
		}
	}
	return f0
}

func bestAutocorrelationLag(frame []float64, minLag, maxLag int) (lag int, strength float64) {
	n := len(frame)
	if maxLag >= n {
		maxLag = n - 1
	}
	energy := 0.0
	for _, s := range frame {
		energy += s * s
	}
	if energy <= 0 {
		return 0, 0
	}

	bestLag, bestVal := 0, -1.0
	for l := minLag; l <= maxLag; l++ {
		sum := 0.0
		for i := 0; i+l < n; i++ {
			sum += frame[i] * frame[i+l]
		}
		norm := sum / energy
		if norm > bestVal {
			bestVal, bestLag = norm, l
		}
	}
	return bestLag, bestVal
}

func windowed(samples []float64, start, size int) []float64 {
	out := make([]float64, size)
	for i := 0; i < size; i++ {
		idx := start + i
		if idx >= 0 && idx < len(samples) {
			// Hann window to reduce spectral leakage.
			w := 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(size-1))
			out[i] = samples[idx] * w
		}
	}
	return out
}

func numFrames(nSamples int) int {
	if nSamples < frameSize {
		return 1
	}
	return 1 + (nSamples-frameSize)/hopSize
}

// stftHarmonicEnvelopes computes a short-time Fourier transform per
// frame and extracts the instantaneous amplitude of each harmonic
// k in 1..harmonics at the bin nearest k*f0(t) (spec §4.6 step 3).
// Returns envelopes[k-1][frame] for harmonic k.
func stftHarmonicEnvelopes(samples []float64, sampleRate int, f0 []float64) [][]float64 {
	nFrames := len(f0)
	envelopes := make([][]float64, harmonics)
	for k := range envelopes {
		envelopes[k] = make([]float64, nFrames)
	}

	binHz := float64(sampleRate) / float64(frameSize)
	for i := 0; i < nFrames; i++ {
		frame := windowed(samples, i*hopSize, frameSize)
		spectrum := dft(frame)
		for k := 1; k <= harmonics; k++ {
			freq := float64(k) * f0[i]
			bin := int(math.Round(freq / binHz))
			if bin < 0 {
				bin = 0
			}
			if bin >= len(spectrum)/2 {
				bin = len(spectrum)/2 - 1
			}
			envelopes[k-1][i] = cmplx.Abs(spectrum[bin]) / float64(frameSize)
		}
	}
	return envelopes
}

// dft computes a direct discrete Fourier transform. frameSize is
// fixed and small enough (1024) that a direct O(n^2) transform is
// acceptable for this offline, per-job CPU-pool workload; no FFT
// library exists anywhere in the reference pack (see DESIGN.md).
func dft(frame []float64) []complex128 {
	n := len(frame)
	out := make([]complex128, n)
	for k := 0; k < n; k++ {
		var sum complex128
		for t := 0; t < n; t++ {
			angle := -2 * math.Pi * float64(k) * float64(t) / float64(n)
			sum += complex(frame[t], 0) * cmplx.Exp(complex(0, angle))
		}
		out[k] = sum
	}
	return out
}

// mapPitchToBand rescales a pitch contour into a target band
// (spec §4.6 step 4), preserving relative pitch shape: the contour's
// own min/max map linearly onto [band.LowHz, band.HighHz].
func mapPitchToBand(f0 []float64, band FreqRange) []float64 {
	lo, hi := f0[0], f0[0]
	for _, v := range f0 {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	spread := hi - lo
	out := make([]float64, len(f0))
	for i, v := range f0 {
		var t float64
		if spread > 0 {
			t = (v - lo) / spread
		} else {
			t = 0.5
		}
		out[i] = band.LowHz + t*(band.HighHz-band.LowHz)
	}
	return out
}

// synthesizeHarmonic synthesises wave_k(t) = A_k(t) * cos(2*pi*phase(t))
// per spec §4.6 step 5, where phase accumulates the mapped frequency
// over time (so pitch changes integrate into continuous phase rather
// than producing clicks at frame boundaries).
func synthesizeHarmonic(envelope []float64, mappedFreq []float64, sampleRate, totalSamples int, harmonicNum int) []float64 {
	out := make([]float64, totalSamples)
	phase := 0.0
	for n := 0; n < totalSamples; n++ {
		frameIdx := n / hopSize
		if frameIdx >= len(mappedFreq) {
			frameIdx = len(mappedFreq) - 1
		}
		freq := mappedFreq[frameIdx] * float64(harmonicNum)
		phase += 2 * math.Pi * freq / float64(sampleRate)
		amp := envelope[frameIdx]
		out[n] = amp * math.Cos(phase)
	}
	return out
}

// sumAndGain sums the synthesised harmonics and computes a
// short-window RMS gain curve so their sum tracks the source
// envelope (spec §4.6 step 6), returning the gain-corrected mix and
// its overall RMS error against the source.
func sumAndGain(harmonicSignals [][]float64, source []float64) (mixed []float64, rmse float64) {
	n := len(source)
	mixed = make([]float64, n)
	for _, h := range harmonicSignals {
		for i := 0; i < n && i < len(h); i++ {
			mixed[i] += h[i]
		}
	}

	const window = 256
	for start := 0; start < n; start += window {
		end := start + window
		if end > n {
			end = n
		}
		srcRMS := rms(source[start:end])
		mixRMS := rms(mixed[start:end])
		gain := 1.0
		if mixRMS > 1e-9 {
			gain = srcRMS / mixRMS
		}
		for i := start; i < end; i++ {
			mixed[i] *= gain
		}
	}

	rmse = rmsError(mixed, source)
	return mixed, rmse
}

func rms(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func rmsError(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(n))
}
