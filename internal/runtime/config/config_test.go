package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rterrors "github.com/drblury/kerneltest/internal/runtime/errors"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "channel", cfg.GetEventsTransport())
	assert.Contains(t, cfg.String(), "Format:json")
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := &Config{EventsTransport: "io", MetricsNamespace: "bad-name", LogLevel: "loud"}
	err := ValidateConfig(cfg)
	require.Error(t, err)

	var validationErr rterrors.ConfigValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.ErrorContains(t, err, "format")
	assert.ErrorContains(t, err, "events_file")
	assert.ErrorContains(t, err, "bad-name")
	assert.ErrorContains(t, err, "loud")

	assert.ErrorIs(t, ValidateConfig(nil), rterrors.ErrConfigRequired)
}

func TestLoadLayers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kerneltest.yaml")
	require.NoError(t, os.WriteFile(path, []byte("format: yaml\npersist: true\nlog_level: debug\n"), 0o600))

	t.Setenv("KERNELTEST_FORMAT", "cbor")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("controller-factory", "", "")
	fs.String("log-level", "", "")
	require.NoError(t, fs.Parse([]string{"--controller-factory=legacy"}))

	cfg, err := Load(path, fs)
	require.NoError(t, err)
	assert.Equal(t, "cbor", cfg.Format)
	assert.True(t, cfg.Persist)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "legacy", cfg.ControllerFactory)
	assert.Equal(t, DefaultMetricsNamespace, cfg.MetricsNamespace)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultFormat, cfg.Format)
	assert.Equal(t, DefaultEventsTransport, cfg.EventsTransport)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", (&Config{LogLevel: "debug"}).SlogLevel().String())
	assert.Equal(t, "INFO", (&Config{LogLevel: "nonsense"}).SlogLevel().String())
}
