package audio

// clampSample saturates a value to the int16 range instead of wrapping.
func clampSample(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// ApplyGain scales samples by a linear gain multiplier, saturating at the
// int16 range.
func ApplyGain(samples []int16, gain float64) []int16 {
	if gain == 1.0 {
		return samples
	}
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = clampSample(float64(s) * gain)
	}
	return out
}

// Mix sums two sample streams after applying an independent gain to each.
// The shorter stream is treated as silence-padded. The sum saturates at the
// valid range rather than wrapping, and the operation is symmetric: swapping
// (a, gainA) with (b, gainB) produces identical output.
func Mix(a, b []int16, gainA, gainB float64) []int16 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		var va, vb float64
		if i < len(a) {
			va = float64(a[i]) * gainA
		}
		if i < len(b) {
			vb = float64(b[i]) * gainB
		}
		out[i] = clampSample(va + vb)
	}
	return out
}
