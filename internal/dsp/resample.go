package dsp

import "math"

// ChunkFrames is the fixed per-call working-set size the resampler
// operates on (spec §4.2, §9 "keep the resampler fixed-input"). It is
// split into SubChunks equal windows, each resized independently via an
// FFT zero-padded-spectrum resize — the "FFT sinc" technique: padding (or
// truncating) a signal's spectrum with zeros is equivalent to ideal
// bandlimited (sinc) interpolation.
const (
	ChunkFrames = 1024
	SubChunks   = 2
	subChunkFrames = ChunkFrames / SubChunks
)

// Resample converts interleaved float samples from one sample rate to
// another. It is deterministic for a given (channels, fromRate, toRate)
// triple and returns the input unmodified (a copy) when fromRate==toRate.
func Resample(interleaved []float32, channels, fromRate, toRate int) []float32 {
	if channels <= 0 || len(interleaved) == 0 {
		out := make([]float32, len(interleaved))
		copy(out, interleaved)
		return out
	}
	if fromRate <= 0 || toRate <= 0 || fromRate == toRate {
		out := make([]float32, len(interleaved))
		copy(out, interleaved)
		return out
	}

	frames := len(interleaved) / channels
	perChannel := deinterleave(interleaved, channels, frames)

	outPerChannel := make([][]float64, channels)
	for c := 0; c < channels; c++ {
		outPerChannel[c] = resampleChannel(perChannel[c], fromRate, toRate)
	}

	return reinterleave(outPerChannel, channels)
}

func resampleChannel(in []float64, fromRate, toRate int) []float64 {
	var out []float64
	for start := 0; start < len(in); start += subChunkFrames {
		end := start + subChunkFrames
		if end > len(in) {
			end = len(in)
		}
		chunk := make([]float64, subChunkFrames) // zero-pads the final, short sub-chunk
		copy(chunk, in[start:end])

		outLen := int(math.Round(float64(subChunkFrames) * float64(toRate) / float64(fromRate)))
		out = append(out, fftResize(chunk, outLen)...)
	}
	return out
}

// fftResize resamples a real-valued window to outLen samples by resizing
// its spectrum: zero-padding the middle (upsampling) or truncating the
// high frequencies (downsampling, which is also the correct anti-alias
// filter for decimation).
func fftResize(in []float64, outLen int) []float64 {
	n := len(in)
	if n == 0 || outLen <= 0 {
		return make([]float64, outLen)
	}

	N := nextPow2(n)
	src := make([]complex128, N)
	for i, v := range in {
		src[i] = complex(v, 0)
	}
	fft(src, false)

	M := nextPow2(outLen)
	dst := make([]complex128, M)

	half := N / 2
	if M >= N {
		for i := 0; i <= half && i < M; i++ {
			dst[i] = src[i]
		}
		for i := 1; i < half; i++ {
			dst[M-i] = src[N-i]
		}
	} else {
		mhalf := M / 2
		for i := 0; i <= mhalf; i++ {
			dst[i] = src[i]
		}
		for i := 1; i < mhalf; i++ {
			dst[M-i] = src[N-i]
		}
	}

	fft(dst, true)

	// M/N length ratio times the 1/M the unnormalized inverse FFT omits.
	scale := 1 / float64(N)
	// dst holds the window on an M-point grid; map it onto outLen points
	// (M >= outLen) by linear interpolation so the whole window is kept.
	step := float64(M) / float64(outLen)
	out := make([]float64, outLen)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		frac := pos - float64(j)
		out[i] = (real(dst[j])*(1-frac) + real(dst[(j+1)%M])*frac) * scale
	}
	return out
}

func deinterleave(interleaved []float32, channels, frames int) [][]float64 {
	perChannel := make([][]float64, channels)
	for c := range perChannel {
		perChannel[c] = make([]float64, frames)
	}
	for f := 0; f < frames; f++ {
		base := f * channels
		for c := 0; c < channels; c++ {
			if base+c < len(interleaved) {
				perChannel[c][f] = float64(interleaved[base+c])
			}
		}
	}
	return perChannel
}

func reinterleave(perChannel [][]float64, channels int) []float32 {
	if channels == 0 {
		return nil
	}
	frames := len(perChannel[0])
	out := make([]float32, frames*channels)
	for f := 0; f < frames; f++ {
		base := f * channels
		for c := 0; c < channels; c++ {
			out[base+c] = float32(perChannel[c][f])
		}
	}
	return out
}
