package ports

import (
	"math/rand/v2"

	"biastest/domain/model"
	"biastest/domain/toys"
)

// Workspace is the handle on a loaded statistical model. The toy study only
// reads and toggles parameter attributes on it, draws datasets from it and
// asks it for fitters. Every name lookup fails with core.ErrParameterNotFound
// when the name is absent.
type Workspace interface {
	toys.ParameterSetter

	// Parameter returns a snapshot of a named parameter.
	Parameter(name string) (model.Parameter, error)

	// NuisanceParameters lists the constrained nuisance parameters.
	NuisanceParameters() []string

	// ExpectedEvents is the total expected event count at current parameters.
	ExpectedEvents() float64

	// Generate draws a dataset of n events, or of the rounded expected count
	// when n is negative.
	Generate(rng *rand.Rand, n int) (*model.Dataset, error)

	// NewFitter binds a negative log-likelihood to the dataset and the
	// model's current parameter state.
	NewFitter(ds *model.Dataset, opts model.NLLOptions) (Fitter, error)
}

// Fitter runs the minimization stages on one NLL. Non-convergence is
// reported through StageResult.Status, never as an error. Fitted values and
// errors are written back to the workspace parameters.
type Fitter interface {
	Migrad() model.StageResult
	Hesse() model.StageResult
	// Minos computes profiled intervals for the named floating parameters.
	Minos(names ...string) model.StageResult
}
