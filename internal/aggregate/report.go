package aggregate

// Report bundles the reductions written by the summary export. Fit and
// Pulls are optional.
type Report struct {
	Series  []XSecSeries
	Medians []Adjustment
	Means   []Adjustment
	Fit     *CurveFit
	Pulls   []PullSeries
}
