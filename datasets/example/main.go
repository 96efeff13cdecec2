package main

// Example command that loads one node's processed series, scales and frames
// it into windows, and converts a small batch into gomlx tensors using the
// helpers provided in the package.
//
// Usage:
//   go run ./datasets/example -dir sources/processed -node 1210005301
//
// With -node empty, the first node found under -dir is used.

import (
	"flag"
	"fmt"
	"log"

	"github.com/Noofbiz/speedCast/datasets"
)

func main() {
	dir := flag.String("dir", "sources/processed", "directory holding <nodeid>/<nodeid>.csv")
	node := flag.String("node", "", "node id (default: first node found)")
	timeStep := flag.Int("time-step", 10, "window length")
	flag.Parse()

	nodeID := *node
	if nodeID == "" {
		ids, err := datasets.FindNodeIDs(*dir)
		if err != nil {
			log.Fatalf("failed to discover nodes: %v", err)
		}
		fmt.Printf("Found %d nodes under %s\n", len(ids), *dir)
		nodeID = ids[0]
	}

	series, err := datasets.LoadNodeSeries(*dir, nodeID)
	if err != nil {
		log.Fatalf("failed to load node %s: %v", nodeID, err)
	}
	fmt.Printf("Using %s\n", datasets.NodeCSVPath(*dir, nodeID))
	fmt.Printf("Columns: %v\n", series.Columns)
	fmt.Printf("Rows: %d\n", series.Len())
	for _, r := range series.Head(5) {
		fmt.Printf("  %s  %.2f\n", r.Time.Format("2006-01-02 15:04:05"), r.Speed)
	}

	scaler := datasets.NewMinMaxScaler()
	scaled, err := scaler.FitTransform(series.Float64s())
	if err != nil {
		log.Fatalf("failed to scale speeds: %v", err)
	}
	fmt.Printf("Speed range: [%.2f, %.2f]\n", scaler.DataMin, scaler.DataMax)

	X, y := datasets.CreateDataset(scaled, *timeStep)
	ds, err := datasets.NewWindowDataset(X, y)
	if err != nil {
		log.Fatalf("failed to build window dataset: %v", err)
	}
	train := datasets.SplitIndex(ds.Len(), 0.8)
	fmt.Printf("Windows: %d (train %d, test %d)\n", ds.Len(), train, ds.Len()-train)

	// Prepare a small batch (first N examples)
	n := min(8, ds.Len())
	if n == 0 {
		fmt.Println("Series too short for a single window.")
		return
	}
	indices := make([]int, n)
	for i := range n {
		indices[i] = i
	}
	inputs, labels, err := ds.Batch(indices)
	if err != nil {
		log.Fatalf("failed to build batch: %v", err)
	}

	// Convert to flat contiguous buffers and then to gomlx tensors
	flat, err := datasets.MakeWindowBatchFlat(inputs, labels)
	if err != nil {
		log.Fatalf("failed to flatten batch: %v", err)
	}
	inT, laT, err := flat.ToGomlxTensors()
	if err != nil {
		log.Fatalf("failed to convert batch to gomlx tensors: %v", err)
	}
	fmt.Printf("Created tensors: input=%s label=%s\n", inT.Shape(), laT.Shape())
	fmt.Printf("  First window: %v\n", X[0])
	fmt.Printf("  First label:  %v (%.2f km/h)\n", labels[0], scaler.InverseTransformOne(labels[0][0]))
}
