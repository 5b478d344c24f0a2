package main

import (
	"context"
	"os"
	"strconv"
	"strings"

	"biastest/adapters/artifact"
	"biastest/adapters/excel"
	"biastest/adapters/ledger"
	"biastest/adapters/plot"
	"biastest/app"
	"biastest/internal/errors"
	"biastest/ports"

	"github.com/spf13/cobra"
)

// source picks the ledger when asked, otherwise the directory.
func source(ctx context.Context, e *env, useLedger bool, dirSource ports.ResultSource) (ports.ResultSource, func(), error) {
	if !useLedger {
		return dirSource, func() {}, nil
	}
	if e.cfg.Ledger.DSN == "" {
		return nil, nil, errors.ConfigInvalid("--ledger needs BIASTEST_LEDGER_DSN")
	}
	db, err := ledger.Open(e.cfg.Ledger.DSN)
	if err != nil {
		return nil, nil, err
	}
	if err := ledger.NewMigrator(db, e.logger).Up(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return ledger.New(db), func() { db.Close() }, nil
}

func chartDir(dir, out string) string {
	if out != "" {
		return out
	}
	return dir
}

func newReportCmd(e *env) *cobra.Command {
	var (
		doFit     bool
		bootstrap int
		xlsx      string
		useLedger bool
		out       string
		fromXLSX  string
	)

	cmd := &cobra.Command{
		Use:   "report [input-dir]",
		Short: "Summarize fitted signal strengths into bias charts",
		Long: `Read fits-*.npy point files (or the ledger) and reduce them per injected
cross section and mass into medians, means and bias adjustments.

Example: biastest report results/ --bootstrap 500 --do-fit --xlsx results/summary.xlsx

With --from-xlsx the adjustments are read back from an earlier summary
workbook (or a CSV with the same columns) and only the fit is redone.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			ctx := cmd.Context()
			svc := app.NewReportService(plot.NewRenderer(chartDir(dir, out), e.cfg.Report.Format, e.logger), excel.Exporter{}, e.logger, os.Stdout)
			if fromXLSX != "" {
				if useLedger {
					return errors.ConfigInvalid("--from-xlsx and --ledger are exclusive")
				}
				_, err := svc.Run(ctx, app.ReportRequest{
					Saved: excel.NewAdjustmentSource(fromXLSX),
					DoFit: doFit,
					XLSX:  xlsx,
				})
				return err
			}

			src, closeSrc, err := source(ctx, e, useLedger, artifact.NewPointsSource(dir))
			if err != nil {
				return err
			}
			defer closeSrc()

			_, err = svc.Run(ctx, app.ReportRequest{
				Source:    src,
				Bootstrap: bootstrap,
				Seed:      e.cfg.Report.BootstrapSeed,
				DoFit:     doFit,
				XLSX:      xlsx,
			})
			return err
		},
	}

	cmd.Flags().BoolVar(&doFit, "do-fit", false, "Do a fit of bias vs. injected")
	cmd.Flags().IntVar(&bootstrap, "bootstrap", 0, "Compute errorbars using N resamples")
	cmd.Flags().StringVar(&xlsx, "xlsx", "", "Also write the summary to this xlsx workbook")
	cmd.Flags().BoolVar(&useLedger, "ledger", false, "Read runs from the SQL ledger instead of the directory")
	cmd.Flags().StringVar(&out, "charts", "", "Chart output directory (default: the input directory)")
	cmd.Flags().StringVar(&fromXLSX, "from-xlsx", "", "Refit the adjustments saved in this summary workbook")
	return cmd
}

func newPullsCmd(e *env) *cobra.Command {
	var (
		variable  string
		onlyGood  bool
		showAll   bool
		excludeXS string
		useLedger bool
		out       string
	)

	cmd := &cobra.Command{
		Use:   "pulls [directory]",
		Short: "Summarize pull distributions of a tracked parameter",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			var exclude []float64
			if cmd.Flags().Changed("exclude-xs") {
				var err error
				if exclude, err = parseFloats(excludeXS); err != nil {
					return err
				}
			}
			ctx := cmd.Context()
			src, closeSrc, err := source(ctx, e, useLedger, artifact.NewRecordSource(dir))
			if err != nil {
				return err
			}
			defer closeSrc()

			svc := app.NewPullService(plot.NewRenderer(chartDir(dir, out), e.cfg.Report.Format, e.logger), e.logger, os.Stdout)
			_, err = svc.Run(ctx, app.PullRequest{
				Source:    src,
				Variable:  variable,
				ExcludeXS: exclude,
				OnlyGood:  onlyGood,
				ShowAll:   showAll,
			})
			return err
		},
	}

	cmd.Flags().StringVar(&variable, "var", "npbBSM", "The variable to plot pulls for")
	cmd.Flags().BoolVar(&onlyGood, "only-good", false, "Only keep trials with all-zero status")
	cmd.Flags().BoolVar(&showAll, "show-all", false, "Write all individual pull histograms")
	cmd.Flags().StringVar(&excludeXS, "exclude-xs", "0.75", "Comma-separated injected cross sections to skip")
	cmd.Flags().BoolVar(&useLedger, "ledger", false, "Read runs from the SQL ledger instead of the directory")
	cmd.Flags().StringVar(&out, "charts", "", "Chart output directory (default: the input directory)")
	return cmd
}

func newTimeStatsCmd(e *env) *cobra.Command {
	var useLedger bool
	cmd := &cobra.Command{
		Use:   "timestats [directory]",
		Short: "Report run throughput from the result records",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			ctx := cmd.Context()
			src, closeSrc, err := source(ctx, e, useLedger, artifact.NewRecordSource(dir))
			if err != nil {
				return err
			}
			defer closeSrc()
			_, err = app.NewTimeStatsService(e.logger, os.Stdout).Run(ctx, src)
			return err
		},
	}
	cmd.Flags().BoolVar(&useLedger, "ledger", false, "Read runs from the SQL ledger instead of the directory")
	return cmd
}

// parseFloats splits a comma-separated list; an empty string gives an
// empty, non-nil list.
func parseFloats(s string) ([]float64, error) {
	out := []float64{}
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		v, err := strconv.ParseFloat(item, 64)
		if err != nil {
			return nil, errors.InvalidInput("bad cross section " + strconv.Quote(item))
		}
		out = append(out, v)
	}
	return out, nil
}
