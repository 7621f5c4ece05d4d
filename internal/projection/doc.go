// Package projection implements the fixed random projections used to shrink
// candidate sets before exact reranking.
//
// A Pipeline holds NumLayers independent Gaussian matrices (Johnson-Lindenstrauss
// projections) generated once from a seed and never retrained. A vector's
// Sketch is the concatenation of its projection through every layer.
//
// Sketch distances only prefilter: callers always rerank the survivors with
// exact distances.
package projection
