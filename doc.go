// Package vectorlite provides a lightweight, embeddable vector database
// for Go applications: packed columnar vector storage, three
// interchangeable ANN strategies (brute-force, HNSW, IVF), a boolean
// attribute filter language, and a durable WAL + snapshot persistence
// layer with epoch-based head coordination and CRUSH-style placement.
//
// # Quick start
//
//	eng, err := vectorlite.Open("mydb", 128,
//	    vectorlite.WithMetric(vectorlite.MetricCosine),
//	    vectorlite.WithHNSW(index.DefaultHNSWConfig()),
//	    vectorlite.WithDataAdapter(storage.NewMemAdapter()),
//	    vectorlite.WithIndexAdapter(storage.NewMemAdapter()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close()
//
//	eng.Add(context.Background(), 1, vec, meta)
//	hits, _ := eng.FindMany(query, vectorlite.SearchOptions{K: 10})
package vectorlite
