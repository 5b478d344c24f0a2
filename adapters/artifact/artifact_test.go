package artifact

import (
	"context"
	stderrors "errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"biastest/domain/core"
	"biastest/domain/toys"
	"biastest/internal/testkit"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(filepath.Join(dir, "fits-x0.5-m300"))
	rec := testkit.Record(0.5, 300, []float64{0.4, 0.6, 0.55}, -0.2, 0.3)

	require.NoError(t, w.Checkpoint(context.Background(), rec))

	points, err := readPoints(w.PointsPath())
	require.NoError(t, err)
	assert.Equal(t, rec.POIs, points)

	got, err := readRecordFile(w.RecordPath())
	require.NoError(t, err)
	if diff := cmp.Diff(rec, got); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckpointWithInfiniteErrors(t *testing.T) {
	w := NewWriter(filepath.Join(t.TempDir(), "fits-x1-m300"))
	rec := testkit.Record(1, 300, []float64{0.9, 1.1}, math.Inf(-1), math.Inf(1))

	require.NoError(t, w.Checkpoint(context.Background(), rec))
	got, err := readRecordFile(w.RecordPath())
	require.NoError(t, err)
	assert.Equal(t, []float64{math.MaxFloat64}, got.ErrsHi[1])
	assert.Equal(t, []float64{-math.MaxFloat64}, got.ErrsLo[0])
}

func TestCheckpointReplacesWholesale(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(filepath.Join(dir, "fits-x1-m400.npy"))
	ctx := context.Background()

	require.NoError(t, w.Checkpoint(ctx, testkit.Record(1, 400, []float64{1, 2, 3}, -1, 1)))
	require.NoError(t, w.Checkpoint(ctx, testkit.Record(1, 400, []float64{7}, -1, 1)))

	points, err := readPoints(w.PointsPath())
	require.NoError(t, err)
	assert.Equal(t, []float64{7}, points)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"fits-x1-m400.npy", "fits-x1-m400.npy.json"}, names)
}

func TestCheckpointEmptyRecord(t *testing.T) {
	w := NewWriter(filepath.Join(t.TempDir(), "fits-x0-m300"))
	require.NoError(t, w.Checkpoint(context.Background(), testkit.Record(0, 300, nil, 0, 0)))

	points, err := readPoints(w.PointsPath())
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestPointsSourceSkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	require.NoError(t, NewWriter(filepath.Join(dir, "fits-x0.5-m300")).Checkpoint(ctx, testkit.Record(0.5, 300, []float64{0.4, 0.6}, -0.1, 0.1)))

	// Legacy array without a record: metadata comes from the file name.
	legacy := NewWriter(filepath.Join(dir, "fits-x1-m260"))
	require.NoError(t, legacy.Checkpoint(ctx, testkit.Record(1, 260, []float64{0.9}, -0.1, 0.1)))
	require.NoError(t, os.Remove(legacy.RecordPath()))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "fits-x2-m300.npy"), []byte("not numpy"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fits-nometa.npy"), nil, 0644))

	recs, warnings, err := NewPointsSource(dir).LoadRecords(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Len(t, warnings, 2)

	byMass := map[int]*toys.RunRecord{}
	for _, r := range recs {
		byMass[r.Header.Mass] = r
	}
	assert.Equal(t, []float64{0.4, 0.6}, byMass[300].POIs)
	assert.Equal(t, 1.0, byMass[260].Header.XSec)
	assert.Equal(t, []float64{0.9}, byMass[260].POIs)
}

func TestRecordSourceRejectsInconsistentRecords(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	require.NoError(t, NewWriter(filepath.Join(dir, "fits-x0.5-m300")).Checkpoint(ctx, testkit.Record(0.5, 300, []float64{0.4}, -0.1, 0.1)))

	bad := testkit.Record(0.5, 320, []float64{0.4, 0.5}, -0.1, 0.1)
	bad.Statuses = bad.Statuses[:1]
	require.NoError(t, NewWriter(filepath.Join(dir, "fits-x0.5-m320")).Checkpoint(ctx, bad))

	recs, warnings, err := NewRecordSource(dir).LoadRecords(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Len(t, warnings, 1)
	assert.True(t, stderrors.Is(warnings[0].Err, core.ErrArtifactCorrupt))
	assert.Contains(t, warnings[0].Path, "m320")
}

func TestLoadMissingDirectory(t *testing.T) {
	_, _, err := NewRecordSource(filepath.Join(t.TempDir(), "absent")).LoadRecords(context.Background())
	assert.Error(t, err)
}
