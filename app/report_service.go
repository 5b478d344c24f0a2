package app

import (
	"context"
	"fmt"
	"io"

	"biastest/domain/core"
	"biastest/domain/toys"
	"biastest/internal/aggregate"
	"biastest/internal/errors"
	"biastest/internal/logging"
	"biastest/ports"
)

// ReportService reduces persisted runs into the bias summary.
type ReportService struct {
	charts   ports.ChartRenderer
	exporter ports.SummaryExporter
	logger   *logging.Logger
	stdout   io.Writer
}

// ReportRequest selects the inputs and the optional outputs.
type ReportRequest struct {
	Source ports.ResultSource
	// Bootstrap resamples per point; zero disables the error bars.
	Bootstrap int
	Seed      int64
	DoFit     bool
	// XLSX is the workbook path; empty disables the export.
	XLSX string
	// Saved, when set, replaces Source: the adjustments come from an
	// earlier export and only the fit outputs are produced.
	Saved ports.AdjustmentSource
}

// ReportResult holds the reductions and the files written.
type ReportResult struct {
	aggregate.Report
	Charts   []string
	Warnings []ports.LoadWarning
}

// NewReportService wires the service. charts and exporter may be nil to
// skip those outputs.
func NewReportService(charts ports.ChartRenderer, exporter ports.SummaryExporter, logger *logging.Logger, stdout io.Writer) *ReportService {
	if logger == nil {
		logger = logging.NewNop()
	}
	if stdout == nil {
		stdout = io.Discard
	}
	return &ReportService{charts: charts, exporter: exporter, logger: logger, stdout: stdout}
}

// Run loads the records and writes the report.
func (s *ReportService) Run(ctx context.Context, req ReportRequest) (*ReportResult, error) {
	if req.Saved != nil {
		return s.refit(ctx, req)
	}
	recs, warnings, err := load(ctx, req.Source, s.logger)
	if err != nil {
		return nil, err
	}
	res := &ReportResult{Warnings: warnings}

	res.Series = aggregate.Summarize(aggregate.GroupPoints(recs), req.Bootstrap, req.Seed)
	res.Medians, res.Means = aggregate.Adjustments(res.Series)
	s.printAdjustments(res.Medians)

	if s.charts != nil {
		if res.Charts, err = s.charts.Report(res.Series, res.Medians, res.Means); err != nil {
			return res, errors.Wrap(err, "failed to draw report charts")
		}
	}

	if req.DoFit {
		if err := s.fit(res); err != nil {
			return res, err
		}
	}

	return res, s.export(req.XLSX, res)
}

// refit reruns the bias fit on adjustments saved by an earlier report.
func (s *ReportService) refit(ctx context.Context, req ReportRequest) (*ReportResult, error) {
	medians, means, err := req.Saved.LoadAdjustments(ctx)
	if err != nil {
		return nil, err
	}
	if len(medians) == 0 {
		return nil, errors.WithCode(errors.CodeNotFound, core.ErrNoData)
	}
	res := &ReportResult{}
	res.Medians, res.Means = medians, means
	s.printAdjustments(res.Medians)
	if req.DoFit {
		if err := s.fit(res); err != nil {
			return res, err
		}
	}
	return res, s.export(req.XLSX, res)
}

func (s *ReportService) export(path string, res *ReportResult) error {
	if path == "" || s.exporter == nil {
		return nil
	}
	if err := s.exporter.ExportSummary(path, res.Report); err != nil {
		return err
	}
	s.logger.Info("Wrote summary workbook %s", path)
	return nil
}

func (s *ReportService) printAdjustments(medians []aggregate.Adjustment) {
	for _, a := range medians {
		fmt.Fprintf(s.stdout, "xs=%g median adjustment %.6g +- %.6g\n", a.XSec, a.Mean, a.Std)
	}
}

// fit fits the median adjustments, prints the parameters and covariance,
// and draws the fit chart.
func (s *ReportService) fit(res *ReportResult) error {
	fit, err := aggregate.FitAdjustments(res.Medians)
	if err != nil {
		return err
	}
	res.Fit = fit
	fmt.Fprintf(s.stdout, "a(1-x)^b + c: a=%.6g b=%.6g c=%.6g chi2=%.4g\n", fit.Params[0], fit.Params[1], fit.Params[2], fit.Chi2)
	n, _ := fit.Cov.Dims()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			fmt.Fprintf(s.stdout, " %12.6g", fit.Cov.At(i, j))
		}
		fmt.Fprintln(s.stdout)
	}
	if s.charts != nil {
		path, err := s.charts.FitCurve(res.Medians, fit)
		if err != nil {
			return errors.Wrap(err, "failed to draw fit chart")
		}
		res.Charts = append(res.Charts, path)
	}
	return nil
}

// load reads every record, logging skipped inputs, and fails only when
// nothing usable remains.
func load(ctx context.Context, src ports.ResultSource, logger *logging.Logger) ([]*toys.RunRecord, []ports.LoadWarning, error) {
	if src == nil {
		return nil, nil, errors.ConfigInvalid("no result source configured")
	}
	recs, warnings, err := src.LoadRecords(ctx)
	if err != nil {
		return nil, warnings, err
	}
	for _, w := range warnings {
		logger.Warn("Skipping %s: %v", w.Path, w.Err)
	}
	if len(recs) == 0 {
		return nil, warnings, errors.WithCode(errors.CodeNotFound, core.ErrNoData)
	}
	return recs, warnings, nil
}
