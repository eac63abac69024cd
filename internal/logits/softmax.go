// Package logits turns one step of model logits into scored next-token
// proposals: penalties, n-gram blocking, temperature softmax, candidate
// selection and score accumulation.
package logits

import "math"

// Softmax writes softmax(logits / temperature) into dst and returns it.
// dst is grown when it is too small. Entries equal to -Inf get probability 0,
// and a row with no finite entry is all zeros. When any entry is +Inf the mass
// is shared evenly between the +Inf entries. A non-positive temperature is
// treated as 1.
func Softmax(dst []float64, logits []float32, temperature float64) []float64 {
	if cap(dst) < len(logits) {
		dst = make([]float64, len(logits))
	}
	dst = dst[:len(logits)]
	if len(logits) == 0 {
		return dst
	}
	if temperature <= 0 {
		temperature = 1
	}
	invTemp := 1 / temperature

	maxv := math.Inf(-1)
	for _, l := range logits {
		if v := float64(l) * invTemp; v > maxv {
			maxv = v
		}
	}
	switch {
	case math.IsInf(maxv, -1):
		for i := range dst {
			dst[i] = 0
		}
		return dst
	case math.IsInf(maxv, 1):
		return uniformInf(dst, logits)
	}

	var sum float64
	for i, l := range logits {
		v := float64(l) * invTemp
		if math.IsInf(v, -1) {
			dst[i] = 0
			continue
		}
		e := math.Exp(v - maxv)
		dst[i] = e
		sum += e
	}
	if sum > 0 {
		inv := 1 / sum
		for i := range dst {
			dst[i] *= inv
		}
	}
	return dst
}

func uniformInf(dst []float64, logits []float32) []float64 {
	n := 0
	for _, l := range logits {
		if math.IsInf(float64(l), 1) {
			n++
		}
	}
	p := 1 / float64(n)
	for i, l := range logits {
		if math.IsInf(float64(l), 1) {
			dst[i] = p
		} else {
			dst[i] = 0
		}
	}
	return dst
}

// argmax returns the index of the maximum value. Ties keep the lowest index.
func argmax(x []float64) int {
	if len(x) == 0 {
		panic("argmax: empty slice")
	}
	bestI := 0
	bestV := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > bestV {
			bestV = x[i]
			bestI = i
		}
	}
	return bestI
}
