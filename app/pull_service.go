package app

import (
	"context"
	"fmt"
	"io"

	"biastest/domain/model"
	"biastest/internal/aggregate"
	"biastest/internal/errors"
	"biastest/internal/logging"
	"biastest/ports"
)

// PullService summarizes the pull distributions of a tracked parameter.
type PullService struct {
	charts ports.ChartRenderer
	logger *logging.Logger
	stdout io.Writer
}

// PullRequest configures one pull summary.
type PullRequest struct {
	Source   ports.ResultSource
	Variable string
	// ExcludeXS defaults to aggregate.DefaultExcludedXSec when nil.
	ExcludeXS []float64
	OnlyGood  bool
	ShowAll   bool
}

// PullResult holds the per-point summaries.
type PullResult struct {
	Series   []aggregate.PullSeries
	Skips    []aggregate.SkipReport
	Charts   []string
	Warnings []ports.LoadWarning
}

// NewPullService wires the service; charts may be nil.
func NewPullService(charts ports.ChartRenderer, logger *logging.Logger, stdout io.Writer) *PullService {
	if logger == nil {
		logger = logging.NewNop()
	}
	if stdout == nil {
		stdout = io.Discard
	}
	return &PullService{charts: charts, logger: logger, stdout: stdout}
}

// Run loads the records and writes the pull summary.
func (s *PullService) Run(ctx context.Context, req PullRequest) (*PullResult, error) {
	if req.Variable == "" {
		req.Variable = model.POI
	}
	if req.ExcludeXS == nil {
		req.ExcludeXS = aggregate.DefaultExcludedXSec
	}
	recs, warnings, err := load(ctx, req.Source, s.logger)
	if err != nil {
		return nil, err
	}

	series, skips, err := aggregate.Pulls(recs, aggregate.PullOptions{
		Variable:  req.Variable,
		ExcludeXS: req.ExcludeXS,
		OnlyGood:  req.OnlyGood,
	})
	if err != nil {
		return nil, errors.WithCode(errors.CodeInvalidInput, err)
	}
	res := &PullResult{Series: series, Skips: skips, Warnings: warnings}
	for _, sk := range skips {
		fmt.Fprintln(s.stdout, sk)
	}
	for _, ser := range series {
		for _, p := range ser.Points {
			fmt.Fprintf(s.stdout, "xs=%g m=%d n=%d pull mean=%.4g std=%.4g median=%.4g | value mean=%.4g std=%.4g | err mean=%.4g\n",
				ser.XSec, p.Mass, p.Pull.N, p.Pull.Mean, p.Pull.Std, p.Pull.Median, p.Value.Mean, p.Value.Std, p.Err.Mean)
		}
	}

	if s.charts != nil {
		if res.Charts, err = s.charts.Pulls(series, req.Variable, req.ShowAll); err != nil {
			return res, errors.Wrap(err, "failed to draw pull charts")
		}
	}
	return res, nil
}
