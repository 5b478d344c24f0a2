package aggregate

import (
	"biastest/domain/core"
	"biastest/domain/toys"
)

// TimeStats summarizes throughput over a set of run records.
type TimeStats struct {
	Files           int
	TotalTrials     int
	AvgProcessed    float64
	ProcessedPct    float64
	MeanRuntime     float64
	StdRuntime      float64
	MedianRuntime   float64
	RuntimePerTrial float64
	FailedTrials    int
}

// ComputeTimeStats reduces records. Processed counts retained trials;
// the percentage is relative to files times the largest per-file count.
func ComputeTimeStats(recs []*toys.RunRecord) (TimeStats, error) {
	if len(recs) == 0 {
		return TimeStats{}, core.ErrNoData
	}
	ts := TimeStats{Files: len(recs)}
	times := make([]float64, 0, len(recs))
	processed := make([]float64, 0, len(recs))
	maxProcessed := 0
	var totalTime float64
	for _, r := range recs {
		n := len(r.Statuses)
		ts.TotalTrials += n
		if n > maxProcessed {
			maxProcessed = n
		}
		for _, s := range r.Statuses {
			if toys.MaxStatus(s) > 0 {
				ts.FailedTrials++
			}
		}
		processed = append(processed, float64(n))
		times = append(times, r.Runtime)
		totalTime += r.Runtime
	}

	ts.AvgProcessed = Mean(processed)
	if maxProcessed > 0 {
		ts.ProcessedPct = 100 * float64(ts.TotalTrials) / float64(ts.Files*maxProcessed)
	}
	ts.MeanRuntime = Mean(times)
	ts.StdRuntime = Std(times)
	ts.MedianRuntime = Median(times)
	if ts.TotalTrials > 0 {
		ts.RuntimePerTrial = totalTime / float64(ts.TotalTrials)
	}
	return ts, nil
}
