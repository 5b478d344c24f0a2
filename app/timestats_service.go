package app

import (
	"context"
	"fmt"
	"io"

	"biastest/internal/aggregate"
	"biastest/internal/logging"
	"biastest/ports"
)

// TimeStatsService reports run throughput.
type TimeStatsService struct {
	logger *logging.Logger
	stdout io.Writer
}

// NewTimeStatsService wires the service.
func NewTimeStatsService(logger *logging.Logger, stdout io.Writer) *TimeStatsService {
	if logger == nil {
		logger = logging.NewNop()
	}
	if stdout == nil {
		stdout = io.Discard
	}
	return &TimeStatsService{logger: logger, stdout: stdout}
}

// Run loads the records from src and prints the timing summary.
func (s *TimeStatsService) Run(ctx context.Context, src ports.ResultSource) (aggregate.TimeStats, error) {
	recs, _, err := load(ctx, src, s.logger)
	if err != nil {
		return aggregate.TimeStats{}, err
	}
	ts, err := aggregate.ComputeTimeStats(recs)
	if err != nil {
		return ts, err
	}
	fmt.Fprintf(s.stdout, "Files: %d\n", ts.Files)
	fmt.Fprintf(s.stdout, "Total trials: %d\n", ts.TotalTrials)
	fmt.Fprintf(s.stdout, "Average processed: %.2f (%.1f%%)\n", ts.AvgProcessed, ts.ProcessedPct)
	fmt.Fprintf(s.stdout, "Runtime: mean %.2fs, std %.2fs, median %.2fs\n", ts.MeanRuntime, ts.StdRuntime, ts.MedianRuntime)
	fmt.Fprintf(s.stdout, "Time per trial: %.3fs\n", ts.RuntimePerTrial)
	fmt.Fprintf(s.stdout, "Failed trials: %d\n", ts.FailedTrials)
	return ts, nil
}
