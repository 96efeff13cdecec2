package monte

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Forecast holds the Monte Carlo estimate for a single query window.
type Forecast struct {
	// Mean and StdDev summarise the sampled next values.
	Mean   float64
	StdDev float64

	// Draws are the sampled next values, one per simulation.
	Draws []float32

	// NeighborIdx are the reference windows the draws came from.
	NeighborIdx []int
}

// Dataset is a minimal interface the Monte package needs from the window
// dataset. Using an interface here avoids importing the concrete package
// type and keeps the sampler usable on any reference set.
type Dataset interface {
	// Len returns the number of examples in the dataset.
	Len() int

	// Window returns the raw history window at idx.
	Window(idx int) []float32

	// Targets returns the value that followed every window, in order.
	Targets() []float32
}

// Monte forecasts the next value of a window by analogy: it finds the K
// reference windows closest to the query and samples their observed next
// values, favouring closer neighbours.
type Monte struct {
	DS Dataset
	K  int

	// DistanceEps avoids divide-by-zero when weighting exact matches.
	DistanceEps float64

	// Workers bounds the goroutines used for scans (0 = NumCPU).
	Workers int

	// rng is used to seed the per-simulation generators.
	rng *rand.Rand
	mu  sync.Mutex
}

// NewMonte creates a new Monte object.
// ds must be non-nil and k must be >= 1.
func NewMonte(ds Dataset, k int) (*Monte, error) {
	if ds == nil {
		return nil, errors.New("dataset cannot be nil")
	}
	if k < 1 {
		return nil, fmt.Errorf("k must be >= 1, got %d", k)
	}
	return &Monte{
		DS:          ds,
		K:           k,
		DistanceEps: 1e-6,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Seed reseeds the sampler for reproducible forecasts.
func (m *Monte) Seed(seed int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rng = rand.New(rand.NewSource(seed))
}

func (m *Monte) workers(n int) int {
	w := m.Workers
	if w <= 0 {
		w = runtime.NumCPU()
	}
	return max(min(w, n), 1)
}

// Forecast runs numSims draws for window.
//
// The algorithm:
//  1. Find the K nearest reference windows in Euclidean distance.
//  2. For each draw, pick one neighbour with probability proportional to
//     the inverse distance (closer neighbours are more likely).
//  3. Use that neighbour's observed next value as the draw.
func (m *Monte) Forecast(window []float32, numSims int) (Forecast, error) {
	if m == nil {
		return Forecast{}, errors.New("Monte object is nil")
	}
	return m.forecast(window, numSims, m.nextSeed(), m.workers(m.DS.Len()))
}

// nextSeed draws a seed for one forecast from the Monte RNG (serial access).
func (m *Monte) nextSeed() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.Int63()
}

func (m *Monte) forecast(window []float32, numSims int, seed int64, scanWorkers int) (Forecast, error) {
	if len(window) == 0 {
		return Forecast{}, errors.New("window must not be empty")
	}
	if numSims <= 0 {
		return Forecast{}, fmt.Errorf("numSims must be > 0")
	}

	neighbors, err := m.knnNeighbors(window, m.K, scanWorkers)
	if err != nil {
		return Forecast{}, err
	}

	eps := m.DistanceEps
	if eps == 0 {
		eps = 1e-6
	}
	weights := make([]float64, len(neighbors))
	var totalWeight float64
	for i, nb := range neighbors {
		w := 1.0 / (float64(nb.distance) + eps)
		weights[i] = w
		totalWeight += w
	}

	rng := rand.New(rand.NewSource(seed))

	fc := Forecast{
		Draws:       make([]float32, numSims),
		NeighborIdx: make([]int, numSims),
	}
	values := make([]float64, numSims)
	for sim := range numSims {
		target := rng.Float64() * totalWeight
		acc := 0.0
		choice := len(neighbors) - 1
		for i, w := range weights {
			acc += w
			if target <= acc {
				choice = i
				break
			}
		}
		chosen := neighbors[choice]
		fc.Draws[sim] = chosen.next
		fc.NeighborIdx[sim] = chosen.idx
		values[sim] = float64(chosen.next)
	}
	fc.Mean, fc.StdDev = stat.MeanStdDev(values, nil)
	if numSims == 1 {
		fc.StdDev = 0
	}
	return fc, nil
}

// ForecastAll runs Forecast for every window using a worker pool. Results
// are returned in the order of windows.
func (m *Monte) ForecastAll(windows [][]float32, numSims int) ([]Forecast, error) {
	if m == nil {
		return nil, errors.New("Monte object is nil")
	}
	results := make([]Forecast, len(windows))
	if len(windows) == 0 {
		return results, nil
	}

	// Precompute independent seeds so results don't depend on scheduling.
	seeds := make([]int64, len(windows))
	for i := range seeds {
		seeds[i] = m.nextSeed()
	}

	workerCount := m.workers(len(windows))
	jobs := make(chan int, len(windows))
	errCh := make(chan error, workerCount)
	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				// parallel over windows, so each scan stays on this goroutine
				fc, err := m.forecast(windows[i], numSims, seeds[i], 1)
				if err != nil {
					errCh <- fmt.Errorf("window %d: %w", i, err)
					return
				}
				results[i] = fc
			}
		}()
	}

	// enqueue jobs and wait for completion
	for i := range windows {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	close(errCh)

	if err := <-errCh; err != nil {
		return nil, err
	}
	return results, nil
}

// neighbor is a reference window and its distance to the query.
type neighbor struct {
	idx      int
	distance float32
	next     float32
}

// knnNeighbors performs a simple linear scan KNN search over the dataset.
// It returns up to k neighbors sorted by increasing distance.
func (m *Monte) knnNeighbors(query []float32, k, workerCount int) ([]neighbor, error) {
	n := m.DS.Len()
	if n == 0 {
		return nil, fmt.Errorf("reference dataset is empty")
	}
	targets := m.DS.Targets()

	// Use a worker pool to compute distances concurrently.
	jobs := make(chan int, n)
	resultsCh := make(chan neighbor, n)

	workerCount = max(min(workerCount, n), 1)

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				win := m.DS.Window(i)
				if len(win) != len(query) {
					continue
				}
				dist := euclideanDistanceSquared(query, win)
				resultsCh <- neighbor{
					idx:      i,
					distance: float32(math.Sqrt(dist)),
					next:     targets[i],
				}
			}
		}()
	}

	// enqueue jobs
	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)

	// wait for workers to finish and then close results
	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	candidates := make([]neighbor, 0, n)
	for nb := range resultsCh {
		candidates = append(candidates, nb)
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("no reference window matches query length %d", len(query))
	}

	// sort by increasing distance, ties by index for determinism
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].distance != candidates[j].distance {
			return candidates[i].distance < candidates[j].distance
		}
		return candidates[i].idx < candidates[j].idx
	})

	if k > len(candidates) {
		k = len(candidates)
	}
	return candidates[:k], nil
}

// euclideanDistanceSquared computes squared Euclidean distance between two equal-length float32 slices.
func euclideanDistanceSquared(a, b []float32) float64 {
	sum := 0.0
	for i := 0; i < len(a) && i < len(b); i++ {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return sum
}
