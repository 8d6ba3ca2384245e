// Curator - Human-in-the-Loop Classification Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/curator

package strategy

import (
	"math"
	"math/rand"
)

// perceptron is a lightweight averaged binary classifier over embeddings.
// The discriminative and ensemble strategies train these as throwaway
// labeled-vs-unlabeled discriminators; averaging the weight trajectory makes
// the decision surface stable on small, noisy sets.
type perceptron struct {
	w []float64
	b float64
}

// trainPerceptron fits an averaged perceptron on positive and negative
// embedding sets. Training order is shuffled from the caller's seeded rng,
// so results are reproducible.
func trainPerceptron(rng *rand.Rand, pos, neg [][]float64, epochs int) *perceptron {
	if epochs <= 0 {
		epochs = 10
	}
	dim := 0
	if len(pos) > 0 {
		dim = len(pos[0])
	} else if len(neg) > 0 {
		dim = len(neg[0])
	}
	if dim == 0 {
		return &perceptron{w: nil}
	}

	type sample struct {
		x []float64
		y float64
	}
	samples := make([]sample, 0, len(pos)+len(neg))
	for _, x := range pos {
		samples = append(samples, sample{x: x, y: 1})
	}
	for _, x := range neg {
		samples = append(samples, sample{x: x, y: -1})
	}

	w := make([]float64, dim)
	avgW := make([]float64, dim)
	var b, avgB float64

	for e := 0; e < epochs; e++ {
		rng.Shuffle(len(samples), func(i, j int) {
			samples[i], samples[j] = samples[j], samples[i]
		})
		for _, s := range samples {
			if s.y*(dot(w, s.x)+b) <= 0 {
				for d := 0; d < dim && d < len(s.x); d++ {
					w[d] += s.y * s.x[d]
				}
				b += s.y
			}
			for d := range avgW {
				avgW[d] += w[d]
			}
			avgB += b
		}
	}

	n := float64(epochs * len(samples))
	if n > 0 {
		for d := range avgW {
			avgW[d] /= n
		}
		avgB /= n
	}
	return &perceptron{w: avgW, b: avgB}
}

// prob returns the probability of the positive class via a sigmoid over the
// margin.
func (p *perceptron) prob(x []float64) float64 {
	if len(p.w) == 0 {
		return 0.5
	}
	return sigmoid(dot(p.w, x) + p.b)
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// binaryEntropy is the Shannon entropy of a Bernoulli distribution, in bits.
func binaryEntropy(p float64) float64 {
	if p <= 0 || p >= 1 {
		return 0
	}
	return -p*math.Log2(p) - (1-p)*math.Log2(1-p)
}

// euclidean returns the Euclidean distance between two embeddings.
func euclidean(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
