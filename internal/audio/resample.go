package audio

// Resample converts samples between rates by linear interpolation. When
// downsampling, neighboring source samples are averaged first as a cheap
// anti-aliasing pass; speech intelligibility for STT is the bar here, not
// studio fidelity. Returns the input unchanged when rates match.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate == dstRate || len(samples) == 0 {
		return samples
	}

	if srcRate > dstRate {
		samples = smooth(samples, srcRate/dstRate)
	}

	ratio := float64(srcRate) / float64(dstRate)
	outLen := int(float64(len(samples)) / ratio)
	out := make([]float32, outLen)
	for i := range outLen {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx+1 >= len(samples) {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
	}
	return out
}

// smooth applies a moving average of width max(factor,2) to suppress the
// frequencies a decimation by factor would alias.
func smooth(samples []float32, factor int) []float32 {
	width := max(factor, 2)
	out := make([]float32, len(samples))
	var window float32
	for i, s := range samples {
		window += s
		if i >= width {
			window -= samples[i-width]
			out[i] = window / float32(width)
			continue
		}
		out[i] = window / float32(i+1)
	}
	return out
}
