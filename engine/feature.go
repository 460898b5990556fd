package engine

import (
	"errors"
	"math"
)

// Cosine returns the cosine similarity of a and b clamped to [0, 1].
// Vectors of different length or zero magnitude score 0.
func Cosine(a, b Feature) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	s := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return min(max(s, 0), 1)
}

// CosineMatcher implements Recognizer.Match with Cosine.
type CosineMatcher struct{}

func (CosineMatcher) Match(a, b Feature) float64 { return Cosine(a, b) }

// WeightedUpdate folds addCount samples averaging to add into an existing
// average old of oldCount samples.
func WeightedUpdate(old Feature, oldCount int, add Feature, addCount int) Feature {
	if oldCount <= 0 || len(old) == 0 {
		return append(Feature(nil), add...)
	}
	total := float64(oldCount + addCount)
	out := make(Feature, len(add))
	for i := range add {
		var o float64
		if i < len(old) {
			o = float64(old[i])
		}
		out[i] = float32((o*float64(oldCount) + float64(add[i])*float64(addCount)) / total)
	}
	return out
}

// Average returns the element-wise mean of features.
func Average(features []Feature) (Feature, error) {
	if len(features) == 0 {
		return nil, errors.New("engine: no features to average")
	}
	var avg Feature
	for i, f := range features {
		if len(f) != len(features[0]) {
			return nil, errors.New("engine: feature length mismatch")
		}
		avg = WeightedUpdate(avg, i, f, 1)
	}
	return avg, nil
}
