// Package aggregate reduces run records into the bias, pull and timing
// summaries shown by the reporting commands.
package aggregate

import (
	"math"
	"math/rand/v2"

	"github.com/montanaflynn/stats"
)

// Summary holds the location and spread of a sample.
type Summary struct {
	N      int
	Mean   float64
	Median float64
	Std    float64
}

// Mean returns the arithmetic mean, NaN for an empty sample.
func Mean(data []float64) float64 {
	v, err := stats.Mean(data)
	if err != nil {
		return math.NaN()
	}
	return v
}

// Median returns the sample median, NaN for an empty sample.
func Median(data []float64) float64 {
	v, err := stats.Median(data)
	if err != nil {
		return math.NaN()
	}
	return v
}

// Std returns the population standard deviation, NaN for an empty sample.
func Std(data []float64) float64 {
	v, err := stats.StandardDeviationPopulation(data)
	if err != nil {
		return math.NaN()
	}
	return v
}

// Describe computes the summary of data.
func Describe(data []float64) Summary {
	return Summary{N: len(data), Mean: Mean(data), Median: Median(data), Std: Std(data)}
}

// Bootstrap returns the spread of statistic over n resamples of data drawn
// with replacement. Zero resamples or an empty sample give NaN.
func Bootstrap(data []float64, n int, rng *rand.Rand, statistic func([]float64) float64) float64 {
	if n <= 0 || len(data) == 0 {
		return math.NaN()
	}
	values := make([]float64, n)
	sample := make([]float64, len(data))
	for i := range values {
		for j := range sample {
			sample[j] = data[rng.IntN(len(data))]
		}
		values[i] = statistic(sample)
	}
	return Std(values)
}
