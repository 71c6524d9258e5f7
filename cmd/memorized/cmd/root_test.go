package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvedConfigOverlaysDataDirFlag(t *testing.T) {
	root := NewRootCmd()
	require.NoError(t, root.ParseFlags([]string{"--data-dir=/tmp/memorized-test"}))

	cfg := resolvedConfig(root)

	assert.Equal(t, "/tmp/memorized-test", cfg.DataDir)
	assert.Equal(t, "/tmp/memorized-test/backups", cfg.BackupDir)
	assert.Equal(t, "/tmp/memorized-test/export", cfg.ExportDir)
}

func TestResolvedConfigOverlaysHTTPBindFlag(t *testing.T) {
	root := NewRootCmd()
	require.NoError(t, root.ParseFlags([]string{"--http-bind=127.0.0.1:9090"}))

	cfg := resolvedConfig(root)

	assert.Equal(t, "127.0.0.1:9090", cfg.HTTPBind)
}

func TestResolvedConfigDefaultsWithoutFlags(t *testing.T) {
	root := NewRootCmd()
	require.NoError(t, root.ParseFlags(nil))

	cfg := resolvedConfig(root)

	assert.NotEmpty(t, cfg.DataDir)
	assert.NotEmpty(t, cfg.HTTPBind)
}

func TestLoopbackURL(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:8080", loopbackURL(":8080"))
	assert.Equal(t, "http://127.0.0.1:8080", loopbackURL("127.0.0.1:8080"))
	assert.Equal(t, "http://127.0.0.1:8080", loopbackURL("0.0.0.0:8080"))
}
