package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 60, cfg.Server.TimeoutSecs)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "process", cfg.OCR.Provider)
	assert.Equal(t, "python3", cfg.OCR.Command)
	assert.Equal(t, []string{"ocr_service.py"}, cfg.OCR.Args)
	assert.Equal(t, 120, cfg.OCR.TimeoutSecs)
	assert.InDelta(t, 2, cfg.OCR.RateLimit, 0.001)
	assert.Equal(t, 3, cfg.OCR.MaxAttempts)
	assert.Equal(t, ".json", cfg.OCR.SidecarSuffix)
	assert.Empty(t, cfg.Fields.RegistryPath)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
log:
  level: debug
  format: console
server:
  port: 9090
ocr:
  provider: file
  sidecar_suffix: .ocr.json
fields:
  registry_path: fields.yaml
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "file", cfg.OCR.Provider)
	assert.Equal(t, ".ocr.json", cfg.OCR.SidecarSuffix)
	assert.Equal(t, "fields.yaml", cfg.Fields.RegistryPath)
	// Defaults still apply for unset values
	assert.Equal(t, "python3", cfg.OCR.Command)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))
	t.Setenv("VERIFY_SERVER_PORT", "7070")
	t.Setenv("VERIFY_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestInitLogger(t *testing.T) {
	t.Run("json format", func(t *testing.T) {
		require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
		assert.NotNil(t, zap.L())
	})

	t.Run("console format", func(t *testing.T) {
		require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
		assert.NotNil(t, zap.L())
	})

	t.Run("bad level", func(t *testing.T) {
		assert.Error(t, InitLogger(LogConfig{Level: "shouting", Format: "json"}))
	})
}
