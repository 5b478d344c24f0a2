package artifact

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"biastest/domain/core"
	"biastest/domain/toys"
	"biastest/internal/errors"
	"biastest/ports"

	"github.com/sbinet/npyio"
	"golang.org/x/sync/errgroup"
)

// Default discovery patterns.
const (
	DefaultPointsPattern = "fits-*" + toys.PointsExt
	DefaultRecordPattern = "*" + toys.PointsExt + toys.RecordExt
)

const defaultWorkers = 8

// PointsSource reads point-estimate arrays for the bias report. Run
// metadata comes from the sibling record when one is readable, otherwise
// from the file name.
type PointsSource struct {
	Dir     string
	Pattern string
	Workers int
}

// NewPointsSource discovers fits-*.npy files in dir.
func NewPointsSource(dir string) *PointsSource {
	return &PointsSource{Dir: dir, Pattern: DefaultPointsPattern, Workers: defaultWorkers}
}

// LoadRecords implements ports.ResultSource.
func (s *PointsSource) LoadRecords(ctx context.Context) ([]*toys.RunRecord, []ports.LoadWarning, error) {
	return loadAll(ctx, s.Dir, s.Pattern, s.Workers, loadPoints)
}

// RecordSource reads JSON run records for pull and timing summaries.
type RecordSource struct {
	Dir     string
	Pattern string
	Workers int
}

// NewRecordSource discovers *.npy.json records in dir.
func NewRecordSource(dir string) *RecordSource {
	return &RecordSource{Dir: dir, Pattern: DefaultRecordPattern, Workers: defaultWorkers}
}

// LoadRecords implements ports.ResultSource.
func (s *RecordSource) LoadRecords(ctx context.Context) ([]*toys.RunRecord, []ports.LoadWarning, error) {
	return loadAll(ctx, s.Dir, s.Pattern, s.Workers, loadRecord)
}

var (
	_ ports.ResultSource = (*PointsSource)(nil)
	_ ports.ResultSource = (*RecordSource)(nil)
)

// loadAll reads every match in parallel. Results keep the sorted path order.
func loadAll(ctx context.Context, dir, pattern string, workers int, load func(string) (*toys.RunRecord, error)) ([]*toys.RunRecord, []ports.LoadWarning, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, nil, errors.IOError(dir, err)
	}
	files, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, nil, errors.WithCode(errors.CodeInvalidInput, fmt.Errorf("bad pattern %q: %w", pattern, err))
	}
	sort.Strings(files)

	recs := make([]*toys.RunRecord, len(files))
	errs := make([]error, len(files))
	g, ctx := errgroup.WithContext(ctx)
	if workers <= 0 {
		workers = defaultWorkers
	}
	g.SetLimit(workers)
	for i, path := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			recs[i], errs[i] = load(path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var out []*toys.RunRecord
	var warnings []ports.LoadWarning
	for i, path := range files {
		if errs[i] != nil {
			warnings = append(warnings, ports.LoadWarning{Path: path, Err: errs[i]})
			continue
		}
		out = append(out, recs[i])
	}
	return out, warnings, nil
}

func corrupt(path string, cause error) error {
	return errors.ArtifactCorrupt(path, fmt.Errorf("%w: %v", core.ErrArtifactCorrupt, cause))
}

func loadPoints(path string) (*toys.RunRecord, error) {
	points, err := readPoints(path)
	if err != nil {
		return nil, err
	}

	rec, err := readRecordFile(path + toys.RecordExt)
	if err != nil {
		info, perr := toys.ParseArtifactName(path)
		if perr != nil {
			return nil, perr
		}
		rec = toys.NewRunRecord(toys.Header{Key: info.Prefix, XSec: info.XSec, Mass: info.Mass}, nil, nil, nil)
	}
	rec.POIs = points
	return rec, nil
}

func readPoints(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.IOError(path, err)
	}
	defer f.Close()

	var points []float64
	if err := npyio.Read(f, &points); err != nil {
		return nil, corrupt(path, err)
	}
	return points, nil
}

func loadRecord(path string) (*toys.RunRecord, error) {
	rec, err := readRecordFile(path)
	if err != nil {
		return nil, err
	}
	if rec.Header.Mass == 0 {
		if info, perr := toys.ParseArtifactName(path); perr == nil {
			rec.Header.Key, rec.Header.XSec, rec.Header.Mass = info.Prefix, info.XSec, info.Mass
		}
	}
	return rec, nil
}

func readRecordFile(path string) (*toys.RunRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.WithCode(errors.CodeNotFound, err)
		}
		return nil, errors.IOError(path, err)
	}
	var rec toys.RunRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, corrupt(path, err)
	}
	if err := validate(&rec); err != nil {
		return nil, corrupt(path, err)
	}
	return &rec, nil
}

func validate(rec *toys.RunRecord) error {
	if rec.Header.Version > toys.RecordVersion {
		return fmt.Errorf("unsupported record version %d", rec.Header.Version)
	}
	n := len(rec.POIs)
	if len(rec.Vals) != n || len(rec.ErrsLo) != n || len(rec.ErrsHi) != n || len(rec.Statuses) != n {
		return fmt.Errorf("per-trial sequences have unequal lengths")
	}
	if len(rec.NLLInvalid) != 0 && len(rec.NLLInvalid) != n {
		return fmt.Errorf("nll_invalid has %d entries for %d trials", len(rec.NLLInvalid), n)
	}
	for i := 0; i < n; i++ {
		if len(rec.Vals[i]) != len(rec.Keys) || len(rec.ErrsLo[i]) != len(rec.Keys) || len(rec.ErrsHi[i]) != len(rec.Keys) {
			return fmt.Errorf("trial %d does not match %d tracked keys", i, len(rec.Keys))
		}
	}
	return nil
}
