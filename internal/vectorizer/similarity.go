package vectorizer

import "math"

// CosineSimilarity returns the cosine of the angle between v1 and v2,
// clamped to [0,1]. Mismatched or zero vectors score 0.
func CosineSimilarity(v1, v2 []float32) float64 {
	if len(v1) == 0 || len(v1) != len(v2) {
		return 0
	}
	var dot, n1, n2 float64
	for i := range v1 {
		a, b := float64(v1[i]), float64(v2[i])
		dot += a * b
		n1 += a * a
		n2 += b * b
	}
	if n1 == 0 || n2 == 0 {
		return 0
	}
	return clamp01(dot / (math.Sqrt(n1) * math.Sqrt(n2)))
}

// EuclideanSimilarity converts euclidean distance to a similarity in [0,1]
// using 1 - d/√2, which maps unit-normalized vectors onto the full range.
func EuclideanSimilarity(v1, v2 []float32) float64 {
	if len(v1) == 0 || len(v1) != len(v2) {
		return 0
	}
	var sum float64
	for i := range v1 {
		d := float64(v1[i]) - float64(v2[i])
		sum += d * d
	}
	return clamp01(1 - math.Sqrt(sum)/math.Sqrt2)
}

// ManhattanSimilarity converts manhattan distance to a similarity in [0,1]
// using 1 - d/2.
func ManhattanSimilarity(v1, v2 []float32) float64 {
	if len(v1) == 0 || len(v1) != len(v2) {
		return 0
	}
	var sum float64
	for i := range v1 {
		sum += math.Abs(float64(v1[i]) - float64(v2[i]))
	}
	return clamp01(1 - sum/2)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
