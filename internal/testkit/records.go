package testkit

import (
	"time"

	"biastest/domain/core"
	"biastest/domain/toys"
)

// FixedTime is the creation time stamped on synthetic records.
var FixedTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// Record builds a run record with one tracked key (npbBSM) per trial.
// errLo and errHi are applied to every trial.
func Record(xs float64, mass int, pois []float64, errLo, errHi float64) *toys.RunRecord {
	opts := toys.DefaultOptions()
	opts.XSec, opts.Mass = xs, mass
	h := toys.Header{
		Version:   toys.RecordVersion,
		RunID:     core.RunID("run-" + toys.ArtifactKey("fits", xs, mass)),
		Key:       "fits",
		XSec:      xs,
		Mass:      mass,
		Seed:      opts.Seed,
		Requested: len(pois),
		Options:   opts,
		CreatedAt: FixedTime,
	}
	rec := toys.NewRunRecord(h, []string{"npbBSM"}, []string{"biastest", "toys"}, nil)
	for i, v := range pois {
		rec.Append(toys.TrialResult{
			Index:    i,
			POI:      v,
			Values:   []float64{v},
			ErrLo:    []float64{errLo},
			ErrHi:    []float64{errHi},
			Statuses: []int{0, 0},
		})
	}
	return rec
}

// WithStatuses overwrites the per-trial statuses of rec.
func WithStatuses(rec *toys.RunRecord, statuses ...[]int) *toys.RunRecord {
	for i := range rec.Statuses {
		if i < len(statuses) {
			rec.Statuses[i] = append([]int(nil), statuses[i]...)
		}
	}
	return rec
}
