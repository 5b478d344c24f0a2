package toys

import (
	"math"
	"time"

	"biastest/domain/core"
)

// RecordVersion is bumped whenever the record layout changes meaning.
const RecordVersion = 1

// TrialResult is the fixed-width outcome of one retained pseudo-experiment.
type TrialResult struct {
	Index      int       `json:"index"`
	POI        float64   `json:"poi"`
	Values     []float64 `json:"values"`
	ErrLo      []float64 `json:"errs_lo"`
	ErrHi      []float64 `json:"errs_hi"`
	Statuses   []int     `json:"statuses"`
	InvalidNLL int       `json:"nll_invalid"`
}

// MaxStatus returns the worst status code across stages.
func (t TrialResult) MaxStatus() int {
	return MaxStatus(t.Statuses)
}

// MaxStatus returns the largest code, or zero for an empty list.
func MaxStatus(statuses []int) int {
	worst := 0
	for _, s := range statuses {
		if s > worst {
			worst = s
		}
	}
	return worst
}

// Header is the explicit run metadata written with every checkpoint. It
// carries what older artifacts only encoded in their file names.
type Header struct {
	Version      int        `json:"version"`
	RunID        core.RunID `json:"run_id"`
	Key          string     `json:"key"`
	XSec         float64    `json:"xsec"`
	Mass         int        `json:"mass"`
	Seed         int64      `json:"seed"`
	Requested    int        `json:"ntrial"`
	Options      Options    `json:"options"`
	Setup        Plan       `json:"setup"`
	SettingsHash core.Hash  `json:"settings_hash"`
	CreatedAt    time.Time  `json:"created_at"`
}

// RunRecord is the structured result artifact. Per-trial sequences are
// index-aligned; tuple slots follow Keys.
type RunRecord struct {
	Header     Header      `json:"header"`
	Keys       []string    `json:"keys"`
	POIs       []float64   `json:"poi_vals"`
	Vals       [][]float64 `json:"vals"`
	ErrsLo     [][]float64 `json:"errs_lo"`
	ErrsHi     [][]float64 `json:"errs_hi"`
	Statuses   [][]int     `json:"statuses"`
	NLLInvalid []int       `json:"nll_invalid"`
	Argv       []string    `json:"argv"`
	JobID      *string     `json:"jobid"`
	Runtime    float64     `json:"runtime"`
	Skipped    int         `json:"skipped"`
}

// NewRunRecord starts an empty record.
func NewRunRecord(h Header, keys []string, argv []string, jobID *string) *RunRecord {
	return &RunRecord{
		Header:     h,
		Keys:       append([]string(nil), keys...),
		POIs:       []float64{},
		Vals:       [][]float64{},
		ErrsLo:     [][]float64{},
		ErrsHi:     [][]float64{},
		Statuses:   [][]int{},
		NLLInvalid: []int{},
		Argv:       append([]string(nil), argv...),
		JobID:      jobID,
	}
}

// Append adds a retained trial. Non-finite numbers are clamped so the
// record always encodes as JSON: NaN becomes zero and infinities become
// the largest float of the same sign.
func (r *RunRecord) Append(t TrialResult) {
	r.POIs = append(r.POIs, Finite(t.POI))
	r.Vals = append(r.Vals, finiteCopy(t.Values))
	r.ErrsLo = append(r.ErrsLo, finiteCopy(t.ErrLo))
	r.ErrsHi = append(r.ErrsHi, finiteCopy(t.ErrHi))
	r.Statuses = append(r.Statuses, append([]int(nil), t.Statuses...))
	r.NLLInvalid = append(r.NLLInvalid, t.InvalidNLL)
}

// Len returns the number of retained trials.
func (r *RunRecord) Len() int { return len(r.POIs) }

// Trial reconstructs the i-th retained trial. Index is the position in the
// record, not the generation index.
func (r *RunRecord) Trial(i int) TrialResult {
	t := TrialResult{
		Index:    i,
		POI:      r.POIs[i],
		Values:   append([]float64(nil), r.Vals[i]...),
		ErrLo:    append([]float64(nil), r.ErrsLo[i]...),
		ErrHi:    append([]float64(nil), r.ErrsHi[i]...),
		Statuses: append([]int(nil), r.Statuses[i]...),
	}
	if i < len(r.NLLInvalid) {
		t.InvalidNLL = r.NLLInvalid[i]
	}
	return t
}

// Clone returns a deep copy.
func (r *RunRecord) Clone() *RunRecord {
	c := NewRunRecord(r.Header, r.Keys, r.Argv, r.JobID)
	c.Header.Setup = append(Plan(nil), r.Header.Setup...)
	c.Runtime = r.Runtime
	c.Skipped = r.Skipped
	for i := 0; i < r.Len(); i++ {
		c.Append(r.Trial(i))
	}
	return c
}

// Finite clamps v into the range JSON can carry.
func Finite(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case math.IsInf(v, 1):
		return math.MaxFloat64
	case math.IsInf(v, -1):
		return -math.MaxFloat64
	}
	return v
}

func finiteCopy(xs []float64) []float64 {
	if len(xs) == 0 {
		return nil
	}
	out := make([]float64, len(xs))
	for i, v := range xs {
		out[i] = Finite(v)
	}
	return out
}
