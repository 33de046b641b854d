package detect

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ezrahel/auto-deploy-hng/internal/exitcode"
	"github.com/Ezrahel/auto-deploy-hng/internal/logger"
)

var testLog = logger.New(nil, nil, logger.LevelError)

func write(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestInspectPrefersDockerfile(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "Dockerfile", "FROM alpine\n")
	write(t, dir, "docker-compose.yml", "services:\n  web:\n    image: alpine\n")

	desc, err := Inspect(dir, testLog)
	require.NoError(t, err)
	assert.Equal(t, SingleImage, desc.Mode)
	assert.Equal(t, "Dockerfile", desc.File)
	assert.Empty(t, desc.Services)
}

func TestInspectComposeSpellings(t *testing.T) {
	for _, name := range []string{"docker-compose.yml", "docker-compose.yaml"} {
		dir := t.TempDir()
		write(t, dir, name, "services:\n  web:\n    image: alpine\n  db:\n    image: postgres\n")

		desc, err := Inspect(dir, testLog)
		require.NoError(t, err, name)
		assert.Equal(t, ComposeStack, desc.Mode)
		assert.Equal(t, name, desc.File)
		assert.Equal(t, []string{"db", "web"}, desc.Services)
	}
}

func TestInspectNoDescriptorIsFatal(t *testing.T) {
	_, err := Inspect(t.TempDir(), testLog)
	require.Error(t, err)
	var perr *exitcode.PipelineError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, exitcode.NoBuildDescriptor, perr.Code)
}

func TestInspectEmptyComposeIsFatal(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "docker-compose.yml", "version: '3'\n")

	_, err := Inspect(dir, testLog)
	var perr *exitcode.PipelineError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, exitcode.NoBuildDescriptor, perr.Code)
}

func TestInspectMalformedComposeIsFatal(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "docker-compose.yaml", "services: [broken\n")

	_, err := Inspect(dir, testLog)
	var perr *exitcode.PipelineError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, exitcode.NoBuildDescriptor, perr.Code)
}

func TestInspectIgnoresDockerfileDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "Dockerfile"), 0o755))
	write(t, dir, "docker-compose.yml", "services:\n  web:\n    image: alpine\n")

	desc, err := Inspect(dir, testLog)
	require.NoError(t, err)
	assert.Equal(t, ComposeStack, desc.Mode)
}
