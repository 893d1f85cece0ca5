// Package average keeps the running mean of an unbounded number of
// repetitions.
//
// Each consume pass contributes the column mean of its batch of
// repetitions together with the batch size; the accumulator folds it
// in as a weighted update so the mean never passes through a sum of
// all samples.
package average

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

var (
	errWidth = errors.New("average: width mismatch")
	errCount = errors.New("average: negative count")
)

// Accumulator is the weighted mean of all repetitions seen so far.
// The zero value is empty and ready to use.  It is not safe for
// concurrent use.
type Accumulator struct {
	count int64
	mean  []float64
}

// Update folds in the mean of count more repetitions.  An empty
// accumulator adopts mean; otherwise each column moves towards the
// new mean by count/(total) of the difference.
func (a *Accumulator) Update(mean []float64, count int64) error {
	switch {
	case count < 0:
		return fmt.Errorf("%w: %d", errCount, count)
	case count == 0:
		return nil
	case a.count == 0:
		a.mean = append(a.mean[:0], mean...)
		a.count = count
		return nil
	case len(mean) != len(a.mean):
		return fmt.Errorf("%w: have %d columns, got %d", errWidth, len(a.mean), len(mean))
	}
	w := float64(count) / float64(a.count+count)
	diff := make([]float64, len(mean))
	floats.SubTo(diff, mean, a.mean)
	floats.AddScaled(a.mean, w, diff)
	a.count += count
	return nil
}

// Add folds in a batch of repetitions.
func (a *Accumulator) Add(rows [][]float64) error {
	m, err := BatchMean(rows)
	if err != nil {
		return err
	}
	return a.Update(m, int64(len(rows)))
}

// Count is the number of repetitions averaged.
func (a *Accumulator) Count() int64 {
	return a.count
}

// Mean returns a copy of the current mean, nil if empty.
func (a *Accumulator) Mean() []float64 {
	if a.count == 0 {
		return nil
	}
	return append([]float64(nil), a.mean...)
}

// Reset empties the accumulator.
func (a *Accumulator) Reset() {
	a.count = 0
	a.mean = a.mean[:0]
}

// BatchMean returns the column mean of rows, which must all have the
// same width.  It returns nil for no rows.
func BatchMean(rows [][]float64) ([]float64, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	sum := make([]float64, len(rows[0]))
	for i, r := range rows {
		if len(r) != len(sum) {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", errWidth, i, len(r), len(sum))
		}
		floats.Add(sum, r)
	}
	floats.Scale(1/float64(len(rows)), sum)
	return sum, nil
}

// Reshape cuts mean into rows of equal width, sharing its storage.
func Reshape(mean []float64, rows int) ([][]float64, error) {
	if rows <= 0 || len(mean)%rows != 0 {
		return nil, fmt.Errorf("%w: %d values into %d rows", errWidth, len(mean), rows)
	}
	w := len(mean) / rows
	out := make([][]float64, rows)
	for i := range out {
		out[i] = mean[i*w : (i+1)*w : (i+1)*w]
	}
	return out, nil
}
