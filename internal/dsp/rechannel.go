package dsp

// Rechannel converts interleaved float samples between channel layouts
// per spec §4.3: 1→2 duplicates, 2→1 averages, n>2→2 takes the first two
// channels, and any other n→m truncates (m<n) or zero-pads (m>n).
func Rechannel(interleaved []float32, fromCh, toCh int) []float32 {
	if fromCh <= 0 || toCh <= 0 || fromCh == toCh {
		out := make([]float32, len(interleaved))
		copy(out, interleaved)
		return out
	}

	frames := len(interleaved) / fromCh

	switch {
	case fromCh == 1 && toCh == 2:
		out := make([]float32, frames*2)
		for f := 0; f < frames; f++ {
			v := interleaved[f]
			out[f*2] = v
			out[f*2+1] = v
		}
		return out

	case fromCh == 2 && toCh == 1:
		out := make([]float32, frames)
		for f := 0; f < frames; f++ {
			l := interleaved[f*2]
			r := interleaved[f*2+1]
			out[f] = (l + r) / 2
		}
		return out

	case fromCh > 2 && toCh == 2:
		out := make([]float32, frames*2)
		for f := 0; f < frames; f++ {
			base := f * fromCh
			out[f*2] = interleaved[base]
			out[f*2+1] = interleaved[base+1]
		}
		return out

	default:
		out := make([]float32, frames*toCh)
		n := toCh
		if fromCh < n {
			n = fromCh
		}
		for f := 0; f < frames; f++ {
			srcBase := f * fromCh
			dstBase := f * toCh
			copy(out[dstBase:dstBase+n], interleaved[srcBase:srcBase+n])
			// remaining [n:toCh) stays zero-valued (zero-pad).
		}
		return out
	}
}
