package ports

import (
	"context"

	"biastest/internal/aggregate"
)

// ChartRenderer draws the reporting charts and returns the written paths.
type ChartRenderer interface {
	Report(series []aggregate.XSecSeries, medians, means []aggregate.Adjustment) ([]string, error)
	FitCurve(medians []aggregate.Adjustment, fit *aggregate.CurveFit) (string, error)
	Pulls(series []aggregate.PullSeries, variable string, showAll bool) ([]string, error)
}

// SummaryExporter writes the tabular report summary.
type SummaryExporter interface {
	ExportSummary(path string, r aggregate.Report) error
}

// AdjustmentSource reads bias adjustments saved by an earlier report.
type AdjustmentSource interface {
	LoadAdjustments(ctx context.Context) (medians, means []aggregate.Adjustment, err error)
}
