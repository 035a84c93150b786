// Package testutil provides shared helpers for exercising the registry
// stack in tests: descriptor builders and an end-to-end manifest harness.
package testutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/typegrid/internal/app"
	"github.com/vk/typegrid/internal/config"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// HarnessResult holds the outcomes of an end-to-end manifest run.
type HarnessResult struct {
	Output string
	Err    error
	App    *app.App
}

// RunManifestTest writes the given .hcl manifest files to a temporary
// directory, loads them through a fresh App, and returns the combined
// output and error. File names are relative paths within the manifest
// directory.
func RunManifestTest(t *testing.T, files map[string]string) *HarnessResult {
	return RunManifestTestWithConfig(t, files, config.Config{})
}

// RunManifestTestWithConfig is RunManifestTest with explicit arbitration
// knobs.
func RunManifestTestWithConfig(t *testing.T, files map[string]string, cfg config.Config) *HarnessResult {
	t.Helper()

	tmpDir := t.TempDir()
	for name, content := range files {
		filePath := filepath.Join(tmpDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(filePath), 0755))
		require.NoError(t, os.WriteFile(filePath, []byte(content), 0644))
	}

	cfg.ManifestPath = tmpDir
	if cfg.LogLevel == "" {
		cfg.LogLevel = "debug"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	appConfig, err := config.New(cfg)
	require.NoError(t, err)

	out := &SafeBuffer{}
	testApp := app.New(out, appConfig)
	runErr := testApp.Run(context.Background())

	return &HarnessResult{
		Output: out.String(),
		Err:    runErr,
		App:    testApp,
	}
}
