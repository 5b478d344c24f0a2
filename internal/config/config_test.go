package config

import (
	"testing"

	"biastest/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"LOG_LEVEL", "BIASTEST_JOBID_ENV", "BIASTEST_FIT_MAX_CALLS",
		"BIASTEST_FIT_TOLERANCE", "BIASTEST_MINOS_MAX_ITER", "BIASTEST_LEDGER_DSN",
		"BIASTEST_REPORT_FORMAT", "BIASTEST_BOOTSTRAP_SEED"} {
		t.Setenv(k, "")
	}

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "INFO", cfg.Log.Level)
	assert.Equal(t, "SLURM_JOBID", cfg.Run.JobIDEnv)
	assert.Equal(t, 20000, cfg.Fit.MaxCalls)
	assert.Equal(t, 1.0, cfg.Fit.Tolerance)
	assert.Equal(t, 40, cfg.Fit.MinosMaxIter)
	assert.Equal(t, "pdf", cfg.Report.Format)
	assert.Equal(t, int64(1), cfg.Report.BootstrapSeed)
	assert.Empty(t, cfg.Ledger.DSN)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("BIASTEST_FIT_MAX_CALLS", "500")
	t.Setenv("BIASTEST_REPORT_FORMAT", "PNG")
	t.Setenv("BIASTEST_LEDGER_DSN", "sqlite://:memory:")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Fit.MaxCalls)
	assert.Equal(t, "png", cfg.Report.Format)
	assert.Equal(t, "sqlite://:memory:", cfg.Ledger.DSN)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero calls", func(c *Config) { c.Fit.MaxCalls = 0 }},
		{"negative tolerance", func(c *Config) { c.Fit.Tolerance = -1 }},
		{"zero minos iterations", func(c *Config) { c.Fit.MinosMaxIter = 0 }},
		{"unknown format", func(c *Config) { c.Report.Format = "gif" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Fit:    FitConfig{MaxCalls: 10, Tolerance: 1, MinosMaxIter: 5},
				Report: ReportConfig{Format: "pdf"},
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
		})
	}
}

func TestJobID(t *testing.T) {
	cfg := &Config{Run: RunConfig{JobIDEnv: "BIASTEST_TEST_JOB"}}
	t.Setenv("BIASTEST_TEST_JOB", "12345")
	if id := cfg.JobID(); assert.NotNil(t, id) {
		assert.Equal(t, "12345", *id)
	}

	cfg.Run.JobIDEnv = "BIASTEST_TEST_JOB_UNSET_XYZ"
	assert.Nil(t, cfg.JobID())
}
