package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"biastest/adapters/artifact"
	"biastest/adapters/fit"
	"biastest/adapters/ledger"
	"biastest/adapters/rng"
	"biastest/adapters/workspace"
	"biastest/app"
	"biastest/domain/toys"
	"biastest/internal/errors"
	"biastest/ports"

	"github.com/spf13/cobra"
)

func newToysCmd(e *env) *cobra.Command {
	o := toys.DefaultOptions()
	var (
		poiMin      float64
		biasAdj     float64
		biasAdjFunc int
		subtract    bool
	)

	cmd := &cobra.Command{
		Use:   "toys",
		Short: "Inject a signal, generate pseudo-datasets and refit them",
		Long: `Inject a signal of known cross section at a resonance mass, draw
pseudo-datasets from the workspace and refit each one, recording the fitted
signal strength, tracked nuisances, their errors and the fit statuses.

Example: biastest toys --ws combination.yaml --xsec 0.5 --mX 400 --ntrial 200 --out fits-x0.5-m400`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("poi-min") {
				o.POIMin = &poiMin
			}
			sign := toys.SignAdd
			if subtract {
				sign = toys.SignSubtract
			}
			switch {
			case flags.Changed("bias-adj") && flags.Changed("bias-adj-function"):
				return errors.ConfigInvalid("--bias-adj and --bias-adj-function are exclusive")
			case flags.Changed("bias-adj"):
				o.Adjust = toys.OffsetAdjust(biasAdj, sign)
			case flags.Changed("bias-adj-function"):
				o.Adjust = toys.FunctionAdjust(biasAdjFunc, sign)
			}
			return runToys(cmd.Context(), e, o, os.Args)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.Workspace, "ws", "", "The workspace file")
	f.Int64Var(&o.Seed, "seed", o.Seed, "The random seed")
	f.StringVar(&o.Out, "out", "", "Output filename; nothing is written when empty")
	f.IntVar(&o.NTrial, "ntrial", o.NTrial, "The number of trials to generate")
	f.IntVar(&o.Mass, "mX", o.Mass, "The resonance mass [GeV]")
	f.Float64Var(&o.XSec, "xsec", o.XSec, "The signal cross section to inject [pb]")
	f.Float64Var(&poiMin, "poi-min", 0, "Minimum POI value")
	f.BoolVar(&o.FreezeBias, "freeze-bias", false, "Fix the BIAS NP at zero")
	f.BoolVar(&o.FreezeSS, "freeze-ss", false, "Fix the spurious signal NPs at zero")
	f.BoolVar(&o.FreeShape, "free-shape", false, "Use free-floating shape params")
	f.BoolVar(&o.FreezeShape, "freeze-shape", false, "Fix the shape params to constant values")
	f.BoolVar(&o.FreeNorm, "free-norm", false, "Use free-floating norm params")
	f.Float64Var(&biasAdj, "bias-adj", 0, "Apply a bias adjust offset")
	f.IntVar(&biasAdjFunc, "bias-adj-function", 0, "Apply a parametric bias adjust function")
	f.BoolVar(&subtract, "bias-adj-subtract", false, "Subtract the bias adjust from the POI instead of adding it")
	f.BoolVar(&o.Poisson, "poisson", false, "Randomize number of generated events by poisson sampling")
	f.BoolVar(&o.Reinit, "reinit", false, "Reinitialize NPs and POI before fits")
	f.BoolVar(&o.Offset, "offset", false, "Offset the NLL by its initial value")
	f.BoolVar(&o.OnlyGood, "only-good", false, "Only write out fits that had all-zero status")
	f.BoolVar(&o.SkipMinos, "skip-minos", false, "Do not run minos, only migrad")
	f.BoolVar(&o.Hesse, "hesse", false, "Run Hesse after Migrad")
	_ = cmd.MarkFlagRequired("ws")
	return cmd
}

func runToys(ctx context.Context, e *env, o toys.Options, argv []string) error {
	settings := fit.DefaultSettings()
	settings.MaxCalls = e.cfg.Fit.MaxCalls
	settings.Tolerance = e.cfg.Fit.Tolerance
	settings.MinosMaxIter = e.cfg.Fit.MinosMaxIter

	ws, err := workspace.Load(o.Workspace, workspace.WithFitSettings(settings), workspace.WithLogger(e.logger))
	if err != nil {
		return err
	}

	var sinks app.MultiSink
	if o.Out != "" {
		sinks = append(sinks, artifact.NewWriter(o.Out))
	}
	if e.cfg.Ledger.DSN != "" {
		db, err := ledger.Open(e.cfg.Ledger.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := ledger.NewMigrator(db, e.logger).Up(ctx); err != nil {
			return err
		}
		sinks = append(sinks, ledger.New(db))
	}
	var sink ports.ResultSink = sinks

	svc := app.NewToyStudyService(ws, sink, rng.New(), e.logger, os.Stdout)
	_, err = svc.Run(ctx, app.ToyStudyRequest{
		Options: o,
		Key:     artifactKey(o.Out),
		Argv:    argv,
		JobID:   e.cfg.JobID(),
	})
	return err
}

// artifactKey is the prefix of a key-x<xs>-m<mass> output name.
func artifactKey(out string) string {
	if out == "" {
		return "fits"
	}
	if info, err := toys.ParseArtifactName(out); err == nil {
		return info.Prefix
	}
	return strings.TrimSuffix(filepath.Base(out), toys.PointsExt)
}
