package datasets

import (
	"errors"

	"gonum.org/v1/gonum/floats"
)

// MinMaxScaler maps values linearly from [DataMin, DataMax] to
// [FeatureMin, FeatureMax]. A constant series is scaled with a unit range.
type MinMaxScaler struct {
	FeatureMin float64
	FeatureMax float64

	DataMin float64
	DataMax float64

	fitted bool
}

// NewMinMaxScaler returns a scaler for the (0, 1) feature range.
func NewMinMaxScaler() *MinMaxScaler {
	return &MinMaxScaler{FeatureMin: 0, FeatureMax: 1}
}

// Fit records the minimum and maximum of data.
func (s *MinMaxScaler) Fit(data []float64) error {
	if len(data) == 0 {
		return errors.New("cannot fit scaler on empty data")
	}
	if s.FeatureMax <= s.FeatureMin {
		return errors.New("feature range maximum must be greater than minimum")
	}
	s.DataMin = floats.Min(data)
	s.DataMax = floats.Max(data)
	s.fitted = true
	return nil
}

func (s *MinMaxScaler) scale() float64 {
	dataRange := s.DataMax - s.DataMin
	if dataRange == 0 {
		dataRange = 1
	}
	return (s.FeatureMax - s.FeatureMin) / dataRange
}

// Transform scales data into the feature range.
func (s *MinMaxScaler) Transform(data []float64) ([]float32, error) {
	if !s.fitted {
		return nil, errors.New("scaler is not fitted")
	}
	scale := s.scale()
	out := make([]float64, len(data))
	copy(out, data)
	floats.AddConst(-s.DataMin, out)
	floats.Scale(scale, out)
	floats.AddConst(s.FeatureMin, out)

	res := make([]float32, len(out))
	for i, v := range out {
		res[i] = float32(v)
	}
	return res, nil
}

// FitTransform is Fit followed by Transform.
func (s *MinMaxScaler) FitTransform(data []float64) ([]float32, error) {
	if err := s.Fit(data); err != nil {
		return nil, err
	}
	return s.Transform(data)
}

// InverseTransform maps scaled values back to the data range.
func (s *MinMaxScaler) InverseTransform(data []float32) []float64 {
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = s.InverseTransformOne(v)
	}
	return out
}

// InverseTransformOne maps a single scaled value back to the data range.
func (s *MinMaxScaler) InverseTransformOne(v float32) float64 {
	return (float64(v)-s.FeatureMin)/s.scale() + s.DataMin
}
