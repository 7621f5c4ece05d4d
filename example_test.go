package roargraph_test

import (
	"context"
	"fmt"
	"log"

	"github.com/hupe1980/roargraph"
)

// Example_builder demonstrates creating an index with the fluent builder.
func Example_builder() {
	idx, err := roargraph.NewBuilder[string](128).
		Cosine().
		MaxDegree(48).
		Quantized().
		Build()
	if err != nil {
		log.Fatal(err)
	}
	defer idx.Close()

	fmt.Println(idx.State())
	// Output: empty
}

// Example_search demonstrates inserting vectors and searching them.
func Example_search() {
	ctx := context.Background()

	idx, err := roargraph.New[string](2, roargraph.L2)
	if err != nil {
		log.Fatal(err)
	}
	defer idx.Close()

	_ = idx.Insert(ctx, "origin", []float32{0, 0})
	_ = idx.Insert(ctx, "east", []float32{3, 0})
	_ = idx.Insert(ctx, "north", []float32{0, 4})

	results, err := idx.Search(ctx, []float32{0.5, 0}, 2)
	if err != nil {
		log.Fatal(err)
	}
	for _, r := range results {
		fmt.Printf("%s %.1f\n", r.ID, r.Distance)
	}
	// Output:
	// origin 0.5
	// east 2.5
}

// Example_metrics demonstrates collecting operation metrics.
func Example_metrics() {
	ctx := context.Background()
	metrics := &roargraph.BasicMetricsCollector{}

	idx, err := roargraph.New[int](2, roargraph.L2, roargraph.WithMetricsCollector(metrics))
	if err != nil {
		log.Fatal(err)
	}
	defer idx.Close()

	_ = idx.Insert(ctx, 1, []float32{1, 1})
	_, _ = idx.Search(ctx, []float32{1, 1}, 1)

	stats := metrics.GetStats()
	fmt.Println(stats.InsertCount, stats.SearchCount)
	// Output: 1 1
}
