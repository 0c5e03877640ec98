package common

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCrashFile(t *testing.T) {
	previous := CrashLogDir
	t.Cleanup(func() { CrashLogDir = previous })

	InstallCrashHandler(t.TempDir())
	path := WriteCrashFile("boom", "main.go:1")
	require.NotEmpty(t, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "HARVESTD CRASH REPORT")
	assert.Contains(t, string(data), "boom")
	assert.Contains(t, string(data), "=== ALL GOROUTINES ===")
}
