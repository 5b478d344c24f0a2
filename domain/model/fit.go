package model

// Fit stage names.
const (
	StageMigrad = "migrad"
	StageHesse  = "hesse"
	StageMinos  = "minos"
)

// Status codes shared by every stage. Zero means success.
const (
	StatusOK             = 0
	StatusNotPosDef      = 1
	StatusEDMAboveMax    = 3
	StatusCallLimit      = 4
	StatusFailed         = 5
	StatusProfileFailure = 1
)

// StageResult is the outcome of one minimization stage.
type StageResult struct {
	Stage      string
	Status     int
	InvalidNLL int
	MinNLL     float64
	EDM        float64
	Calls      int
}

// NLLOptions are passed to likelihood construction.
type NLLOptions struct {
	// Offset subtracts the initial NLL value from every evaluation.
	Offset bool
}

// Parameter is a snapshot of one named model parameter.
type Parameter struct {
	Name     string
	Value    float64
	Min      float64
	Max      float64
	Constant bool
	Error    float64
	ErrLo    float64
	ErrHi    float64
}
