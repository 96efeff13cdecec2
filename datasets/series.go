package datasets

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

var (
	// ErrNodeDataNotFound is returned when a node has no processed CSV.
	ErrNodeDataNotFound = errors.New("node data not found")
	// ErrMissingColumn is returned when a required column is absent.
	ErrMissingColumn = errors.New("required column missing")
)

const (
	DatetimeColumn = "datetime"
	SpeedColumn    = "speed"
)

// NodeSeries is the speed history of a single node, ordered as in the file.
type NodeSeries struct {
	NodeID string
	Path   string

	// Columns is the CSV header as found in the file.
	Columns []string

	Times  []time.Time
	Speeds []float32
}

// LoadNodeSeries reads <dir>/<nodeID>/<nodeID>.csv.
func LoadNodeSeries(dir, nodeID string) (*NodeSeries, error) {
	path := NodeCSVPath(dir, nodeID)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no processed data found for nodeid %s in %s: %w", nodeID, dir, ErrNodeDataNotFound)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Spreadsheet exports often prefix the file with a UTF-8 byte order mark.
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	colIndex := make(map[string]int, len(header))
	for i, col := range header {
		colIndex[strings.TrimSpace(strings.ToLower(col))] = i
	}
	timeCol, ok := colIndex[DatetimeColumn]
	if !ok {
		return nil, fmt.Errorf("the '%s' column is not found in the data: %w", DatetimeColumn, ErrMissingColumn)
	}
	speedCol, ok := colIndex[SpeedColumn]
	if !ok {
		return nil, fmt.Errorf("the '%s' column is not found in the data: %w", SpeedColumn, ErrMissingColumn)
	}

	// Pre-size from a row count so large exports don't regrow the slices.
	rows, err := countCSVRows(path)
	if err != nil {
		return nil, fmt.Errorf("failed to count rows in %s: %w", path, err)
	}

	s := &NodeSeries{
		NodeID:  nodeID,
		Path:    path,
		Columns: header,
		Times:   make([]time.Time, 0, rows),
		Speeds:  make([]float32, 0, rows),
	}

	for row := 0; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", row, err)
		}
		ts, err := parseDatetime(record[timeCol])
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s at row %d: %w", DatetimeColumn, row, err)
		}
		v, err := parseFloat32(record[speedCol])
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s at row %d: %w", SpeedColumn, row, err)
		}
		s.Times = append(s.Times, ts)
		s.Speeds = append(s.Speeds, v)
	}

	return s, nil
}

// Len returns the number of rows.
func (s *NodeSeries) Len() int { return len(s.Speeds) }

// Row is one (datetime, speed) pair.
type Row struct {
	Time  time.Time
	Speed float32
}

// Head returns up to the first n rows.
func (s *NodeSeries) Head(n int) []Row {
	n = min(n, len(s.Speeds))
	out := make([]Row, n)
	for i := range n {
		out[i] = Row{Time: s.Times[i], Speed: s.Speeds[i]}
	}
	return out
}

// Float64s returns the speeds widened to float64 for the scaler.
func (s *NodeSeries) Float64s() []float64 {
	out := make([]float64, len(s.Speeds))
	for i, v := range s.Speeds {
		out[i] = float64(v)
	}
	return out
}
