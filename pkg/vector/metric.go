// Package vector provides the vector-store side of relstore: a backend
// port, metric and id normalization, payload codecs, and a brute-force
// in-memory reference store.
package vector

import (
	"fmt"
	"math"
	"strings"
)

// Metric identifies a similarity scoring function. Scores are always
// higher-is-better; distance metrics are negated.
type Metric string

const (
	// MetricCosine scores by cosine similarity.
	MetricCosine Metric = "cosine"
	// MetricDot scores by inner product.
	MetricDot Metric = "dot"
	// MetricL2 scores by negative Euclidean distance.
	MetricL2 Metric = "l2"
)

// metricAliases maps the spellings accepted on input to canonical
// metrics. Matching is case-insensitive.
var metricAliases = map[string]Metric{
	"cosine":        MetricCosine,
	"cos":           MetricCosine,
	"cosine_sim":    MetricCosine,
	"dot":           MetricDot,
	"ip":            MetricDot,
	"inner":         MetricDot,
	"inner_product": MetricDot,
	"dotproduct":    MetricDot,
	"l2":            MetricL2,
	"euclid":        MetricL2,
	"euclidean":     MetricL2,
	"l2_distance":   MetricL2,
}

// NormalizeMetric resolves a metric name case-insensitively through the
// alias table and checks it against the backend's supported set. An empty
// supported set accepts every canonical metric.
func NormalizeMetric(name string, supported []Metric) (Metric, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return "", fmt.Errorf("%w: empty metric name", ErrUnsupportedMetric)
	}
	metric, ok := metricAliases[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMetric, name)
	}
	if len(supported) == 0 {
		return metric, nil
	}
	for _, m := range supported {
		if m == metric {
			return metric, nil
		}
	}
	return "", fmt.Errorf("%w: %q is not supported by this backend", ErrUnsupportedMetric, name)
}

// SimilarityFunc scores two vectors; higher means more similar.
type SimilarityFunc func(a, b []float32) float64

// Score returns the metric's similarity function.
func (m Metric) Score() SimilarityFunc {
	switch m {
	case MetricDot:
		return dotProduct
	case MetricL2:
		return euclideanDistance
	default:
		return cosineSimilarity
	}
}

// cosineSimilarity calculates cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical direction.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	var dot, normA, normB float64
	for i := 0; i < len(a); i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	// Handle zero vectors
	if normA == 0.0 || normB == 0.0 {
		return 0.0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// dotProduct calculates the inner product between two vectors.
func dotProduct(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	var result float64
	for i := 0; i < len(a); i++ {
		result += float64(a[i]) * float64(b[i])
	}
	return result
}

// euclideanDistance calculates negative Euclidean distance so higher
// values indicate more similarity.
func euclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return -math.Inf(1)
	}

	var sum float64
	for i := 0; i < len(a); i++ {
		diff := float64(a[i]) - float64(b[i])
		sum += diff * diff
	}
	return -math.Sqrt(sum)
}
