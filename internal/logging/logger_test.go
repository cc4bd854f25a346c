package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDisabledLoggerIsNoOp(t *testing.T) {
	require.NoError(t, Initialize(Config{Enabled: false}))

	l := Get(CategoryEngine)
	// Must not panic with a nil backend.
	l.Info("cycle %d", 1)
	l.Debug("noop")
	l.With("task", "t1").Warn("noop")
}

func TestFileLoggingWritesCategoryField(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(Config{Enabled: true, Level: "debug", Dir: dir, JSON: true}))
	defer func() { _ = Initialize(Config{}) }()

	Get(CategoryAgent).Info("backend %s selected", "gemini")
	Sync()

	entries, err := os.ReadDir(filepath.Join(dir, "logs"))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(dir, "logs", entries[0].Name()))
	require.NoError(t, err)
	require.True(t, strings.Contains(string(data), `"cat":"agent"`), "log output: %s", data)
	require.True(t, strings.Contains(string(data), "backend gemini selected"))
}

func TestGetCachesPerCategory(t *testing.T) {
	require.NoError(t, Initialize(Config{Enabled: true, Level: "info"}))
	defer func() { _ = Initialize(Config{}) }()

	a := Get(CategoryResidue)
	b := Get(CategoryResidue)
	require.Same(t, a, b)
}
