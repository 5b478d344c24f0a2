// Package ledger mirrors run checkpoints into a SQL database (SQLite or
// PostgreSQL) and serves them back for reporting.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"biastest/domain/core"
	"biastest/domain/toys"
	"biastest/internal/errors"
	"biastest/ports"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Open connects to a ledger DSN. "sqlite://<path>" (":memory:" allowed)
// selects SQLite; "postgres://" and "postgresql://" select PostgreSQL.
func Open(dsn string) (*sqlx.DB, error) {
	var driver, source string
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		driver, source = "sqlite", strings.TrimPrefix(dsn, "sqlite://")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		driver, source = "postgres", dsn
	default:
		return nil, errors.ConfigInvalid(fmt.Sprintf("unsupported ledger DSN %q", dsn))
	}
	db, err := sqlx.Open(driver, source)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open ledger")
	}
	if driver == "sqlite" {
		// One connection keeps an in-memory database alive and serializes writers.
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// Ledger stores run records keyed by run ID.
type Ledger struct {
	db  *sqlx.DB
	now func() time.Time
}

var (
	_ ports.ResultSink   = (*Ledger)(nil)
	_ ports.ResultSource = (*Ledger)(nil)
)

// New wraps an open, migrated database.
func New(db *sqlx.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

type runRow struct {
	RunID       string         `db:"run_id"`
	Key         string         `db:"run_key"`
	XSec        float64        `db:"xsec"`
	Mass        int            `db:"mass"`
	Seed        int64          `db:"seed"`
	Header      string         `db:"header"`
	TrackedKeys string         `db:"tracked_keys"`
	Argv        string         `db:"argv"`
	JobID       sql.NullString `db:"jobid"`
	Runtime     float64        `db:"runtime"`
	Skipped     int            `db:"skipped"`
	UpdatedAt   string         `db:"updated_at"`
}

type trialRow struct {
	RunID      string  `db:"run_id"`
	Position   int     `db:"position"`
	POI        float64 `db:"poi"`
	Vals       string  `db:"vals"`
	ErrsLo     string  `db:"errs_lo"`
	ErrsHi     string  `db:"errs_hi"`
	Statuses   string  `db:"statuses"`
	NLLInvalid int     `db:"nll_invalid"`
}

func encode(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}

// Checkpoint replaces the stored record of the run wholesale.
func (l *Ledger) Checkpoint(ctx context.Context, rec *toys.RunRecord) error {
	run, trials, err := toRows(rec, l.now())
	if err != nil {
		return errors.Wrap(err, "failed to encode run record")
	}

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin ledger transaction")
	}
	defer tx.Rollback()

	upsert := `INSERT INTO runs (run_id, run_key, xsec, mass, seed, header, tracked_keys, argv, jobid, runtime, skipped, updated_at)
		VALUES (:run_id, :run_key, :xsec, :mass, :seed, :header, :tracked_keys, :argv, :jobid, :runtime, :skipped, :updated_at)
		ON CONFLICT (run_id) DO UPDATE SET
			run_key = excluded.run_key, xsec = excluded.xsec, mass = excluded.mass, seed = excluded.seed,
			header = excluded.header, tracked_keys = excluded.tracked_keys, argv = excluded.argv,
			jobid = excluded.jobid, runtime = excluded.runtime, skipped = excluded.skipped,
			updated_at = excluded.updated_at`
	if _, err := tx.NamedExecContext(ctx, upsert, run); err != nil {
		return errors.Wrap(err, "failed to upsert run")
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM trials WHERE run_id = ?"), run.RunID); err != nil {
		return errors.Wrap(err, "failed to clear trials")
	}
	insert := `INSERT INTO trials (run_id, position, poi, vals, errs_lo, errs_hi, statuses, nll_invalid)
		VALUES (:run_id, :position, :poi, :vals, :errs_lo, :errs_hi, :statuses, :nll_invalid)`
	for _, t := range trials {
		if _, err := tx.NamedExecContext(ctx, insert, t); err != nil {
			return errors.Wrap(err, "failed to insert trial")
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit checkpoint")
	}
	return nil
}

func toRows(rec *toys.RunRecord, now time.Time) (runRow, []trialRow, error) {
	header, err := encode(rec.Header)
	if err != nil {
		return runRow{}, nil, err
	}
	keys, err := encode(rec.Keys)
	if err != nil {
		return runRow{}, nil, err
	}
	argv, err := encode(rec.Argv)
	if err != nil {
		return runRow{}, nil, err
	}
	run := runRow{
		RunID:       rec.Header.RunID.String(),
		Key:         rec.Header.Key,
		XSec:        rec.Header.XSec,
		Mass:        rec.Header.Mass,
		Seed:        rec.Header.Seed,
		Header:      header,
		TrackedKeys: keys,
		Argv:        argv,
		Runtime:     rec.Runtime,
		Skipped:     rec.Skipped,
		UpdatedAt:   now.UTC().Format(time.RFC3339Nano),
	}
	if rec.JobID != nil {
		run.JobID = sql.NullString{String: *rec.JobID, Valid: true}
	}

	trials := make([]trialRow, rec.Len())
	for i := range trials {
		t := rec.Trial(i)
		row := trialRow{RunID: run.RunID, Position: i, POI: t.POI, NLLInvalid: t.InvalidNLL}
		if row.Vals, err = encode(t.Values); err != nil {
			return runRow{}, nil, err
		}
		if row.ErrsLo, err = encode(t.ErrLo); err != nil {
			return runRow{}, nil, err
		}
		if row.ErrsHi, err = encode(t.ErrHi); err != nil {
			return runRow{}, nil, err
		}
		if row.Statuses, err = encode(t.Statuses); err != nil {
			return runRow{}, nil, err
		}
		trials[i] = row
	}
	return run, trials, nil
}

// LoadRecords returns every stored run ordered by cross section, mass and
// run ID. Rows that fail to decode are returned as warnings.
func (l *Ledger) LoadRecords(ctx context.Context) ([]*toys.RunRecord, []ports.LoadWarning, error) {
	var runs []runRow
	if err := l.db.SelectContext(ctx, &runs, "SELECT * FROM runs ORDER BY xsec, mass, run_id"); err != nil {
		return nil, nil, errors.Wrap(err, "failed to query runs")
	}

	var out []*toys.RunRecord
	var warnings []ports.LoadWarning
	for _, run := range runs {
		var trials []trialRow
		q := l.db.Rebind("SELECT * FROM trials WHERE run_id = ? ORDER BY position")
		if err := l.db.SelectContext(ctx, &trials, q, run.RunID); err != nil {
			return nil, nil, errors.Wrap(err, "failed to query trials")
		}
		rec, err := fromRows(run, trials)
		if err != nil {
			warnings = append(warnings, ports.LoadWarning{Path: "ledger:" + run.RunID, Err: errors.ArtifactCorrupt(run.RunID, err)})
			continue
		}
		out = append(out, rec)
	}
	return out, warnings, nil
}

func fromRows(run runRow, trials []trialRow) (*toys.RunRecord, error) {
	var h toys.Header
	var keys, argv []string
	if err := json.Unmarshal([]byte(run.Header), &h); err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	id, err := core.ParseRunID(run.RunID)
	if err != nil {
		return nil, err
	}
	if id != h.RunID {
		return nil, fmt.Errorf("run_id %q does not match header run %q", id, h.RunID)
	}
	if err := json.Unmarshal([]byte(run.TrackedKeys), &keys); err != nil {
		return nil, fmt.Errorf("tracked keys: %w", err)
	}
	if err := json.Unmarshal([]byte(run.Argv), &argv); err != nil {
		return nil, fmt.Errorf("argv: %w", err)
	}
	var jobID *string
	if run.JobID.Valid {
		s := run.JobID.String
		jobID = &s
	}

	rec := toys.NewRunRecord(h, keys, argv, jobID)
	rec.Runtime, rec.Skipped = run.Runtime, run.Skipped
	for _, row := range trials {
		t := toys.TrialResult{Index: row.Position, POI: row.POI, InvalidNLL: row.NLLInvalid}
		for _, f := range []struct {
			src string
			dst interface{}
		}{
			{row.Vals, &t.Values}, {row.ErrsLo, &t.ErrLo}, {row.ErrsHi, &t.ErrHi}, {row.Statuses, &t.Statuses},
		} {
			if err := json.Unmarshal([]byte(f.src), f.dst); err != nil {
				return nil, fmt.Errorf("trial %d: %w", row.Position, err)
			}
		}
		rec.Append(t)
	}
	return rec, nil
}
