package normalize

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Offline01 rescales a materialized dataset to [0,1]. project extracts the
// value of each item; min and max are computed once over the whole list.
func Offline01[T any](items []T, project func(T) float64) []float64 {
	values := make([]float64, len(items))
	for i, item := range items {
		values[i] = project(item)
	}
	if len(values) == 0 {
		return values
	}
	lo, hi := floats.Min(values), floats.Max(values)
	for i, v := range values {
		values[i] = (v - lo) / (hi - lo + Epsilon)
	}
	return values
}

func OfflineMinusOneOne[T any](items []T, project func(T) float64) []float64 {
	values := Offline01(items, project)
	for i := range values {
		values[i] = 2*values[i] - 1
	}
	return values
}

// OfflineVectors01 rescales every column of rows independently to [0,1].
// All rows must share one length.
func OfflineVectors01(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	if len(rows) == 0 {
		return out, nil
	}
	dim := len(rows[0])
	bounds, err := NewBounds(dim)
	if err != nil {
		return nil, err
	}
	for i, row := range rows {
		if len(row) != dim {
			return nil, fmt.Errorf("row %d: %w", i, dimensionError(dim, len(row)))
		}
		bounds.absorbInPlace(row)
	}
	for i, row := range rows {
		out[i], _ = bounds.Normalize01(row)
	}
	return out, nil
}
