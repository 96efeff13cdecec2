package datasets

import "github.com/gomlx/gomlx/pkg/core/tensors"

// This package turns the processed per-node CSV exports into supervised
// examples for the speed forecaster.
//
// Layout and intended usage:
//
// NodeSeries
//   - One CSV per node under <dir>/<nodeid>/<nodeid>.csv
//   - Must carry a "datetime" column and a "speed" column; other columns are
//     kept in Columns for logging only.
//
// WindowDataset
//   - Built from a min-max scaled speed series with CreateDataset.
//   - Inputs per example: timeStep consecutive speeds, shaped [timeStep][1].
//   - Labels per example: the speed right after the window, shaped [1].
//
// Batches are plain float32 slices so the pure-Go trainer in the lstm
// package can consume them directly; Tensors and Yield convert the same
// batches into gomlx tensors for the gomlx training loop.
type Dataset interface {
	Len() int
	Example(i int) (inputs [][]float32, labels []float32, err error)
	Batch(indices []int) (inputs [][][]float32, labels [][]float32, err error)
	Shuffle(seed int64)

	// To implement gomlx's train.Dataset interface
	Name() string
	Yield() (any, []*tensors.Tensor, []*tensors.Tensor, error)
	Reset()
}
