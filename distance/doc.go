// Package distance provides vector distance calculations.
//
// # Supported Metrics
//
//   - MetricL2: Euclidean distance (ranked by squared L2)
//   - MetricCosine: 1 - cosine similarity (inputs are normalized on insert)
//
// # Usage
//
//	score := distance.SquaredL2(a, b)
//	sim := distance.Dot(a, b)
//	ok := distance.NormalizeL2InPlace(vec)
package distance
