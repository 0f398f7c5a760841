package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(args ...string) (string, error) {
	functorName, functionName = "", "peak"
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(args...)
	require.NoError(t, err)
	return out
}

func TestRefineThenInfo(t *testing.T) {
	dir := t.TempDir()

	out := execute(t, "--data-dir", dir, "--log-level", "error", "refine", "--passes", "2")
	assert.Contains(t, out, "pass 1: refined 1, created 4, size 5")
	assert.Contains(t, out, "pass 2:")

	out = execute(t, "--data-dir", dir, "--log-level", "error", "info")
	assert.Contains(t, out, "dimension: 2")
	assert.Contains(t, out, "refinable_points:")
	assert.NotContains(t, out, "size: 1\n")

	out = execute(t, "--data-dir", dir, "--log-level", "error", "export")
	assert.NotEmpty(t, out)
}

func TestTestFunctions(t *testing.T) {
	for _, name := range []string{"peak", "parabola", "corner"} {
		fn, err := testFunction(name)
		require.NoError(t, err, name)
		assert.Greater(t, fn([]float64{0.5, 0.5}), 0.0, name)
	}
	peak, _ := testFunction("peak")
	assert.InDelta(t, 1.0, peak([]float64{0.5, 0.5}), 1e-12)

	_, err := testFunction("saddle")
	assert.Error(t, err)
}

func TestRefineImpurityVariant(t *testing.T) {
	dir := t.TempDir()
	config := filepath.Join(dir, "sparsegrid.yaml")
	require.NoError(t, os.WriteFile(config, []byte("variant: impurity\ninitial_level: 2\n"), 0o644))
	common := []string{"--config", config, "--data-dir", filepath.Join(dir, "data"), "--log-level", "error"}

	_, err := run(append(common, "refine", "--functor", "surplus", "--passes", "1")...)
	assert.ErrorContains(t, err, "gini")

	out := execute(t, append(common, "refine", "--function", "corner", "--passes", "1")...)
	assert.Contains(t, out, "pass 1: refined 2,")
}
