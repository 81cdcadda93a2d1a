package types

import (
	stderrors "errors"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestConfigValidate(t *testing.T) {
	valid := DefaultConfig()

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{
			name:    "empty backend returns ErrBackendEmpty",
			mutate:  func(c *Config) { c.Backend = "" },
			wantErr: ErrBackendEmpty,
		},
		{
			name:    "unknown backend returns ErrBackendUnknown",
			mutate:  func(c *Config) { c.Backend = "postgres" },
			wantErr: ErrBackendUnknown,
		},
		{
			name:   "default config is valid",
			mutate: func(c *Config) {},
		},
		{
			name:   "empty DataDir is valid at config level",
			mutate: func(c *Config) { c.DataDir = "" },
		},
		{
			name:    "zero threshold rejected",
			mutate:  func(c *Config) { c.Scan.Threshold = 0 },
			wantErr: ErrThresholdInvalid,
		},
		{
			name:    "threshold above one rejected",
			mutate:  func(c *Config) { c.Scan.Threshold = 1.2 },
			wantErr: ErrThresholdInvalid,
		},
		{
			name:   "threshold of exactly one accepted",
			mutate: func(c *Config) { c.Scan.Threshold = 1 },
		},
		{
			name:    "non-positive sample rejected",
			mutate:  func(c *Config) { c.Scan.SampleN = 0 },
			wantErr: ErrSampleInvalid,
		},
		{
			name:    "negative workers rejected",
			mutate:  func(c *Config) { c.Scan.Workers = -1 },
			wantErr: ErrWorkersInvalid,
		},
		{
			name:    "unknown pattern rejected",
			mutate:  func(c *Config) { c.Scan.Patterns = []string{TypeEmail, "PASSPORT"} },
			wantErr: ErrPatternUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			c.Scan.Patterns = append([]string(nil), valid.Scan.Patterns...)
			tt.mutate(&c)

			err := c.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestMarkPersistence(t *testing.T) {
	assert.NoError(t, MarkPersistence(nil, "ignored"))

	cause := ErrInvalidID
	err := MarkPersistence(cause, "writing entity")
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, ErrInvalidID)
	assert.Contains(t, err.Error(), "writing entity")
}

func TestMarkPersistenceSurvivesWrapping(t *testing.T) {
	err := errors.Wrap(MarkPersistence(errors.New("disk I/O error"), "erasing entity"), "erase E-000001")

	assert.True(t, stderrors.Is(err, ErrPersistence))
	assert.True(t, errors.Is(err, ErrPersistence))
	assert.True(t, errors.IsAny(err, ErrEntityNotFound, ErrPersistence))
	assert.False(t, stderrors.Is(err, ErrEntityNotFound))
	assert.Contains(t, err.Error(), "erasing entity: disk I/O error")
}
