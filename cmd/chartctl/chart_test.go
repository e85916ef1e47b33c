package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	color.NoColor = true

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		chartX, chartY, chartQuery = "", "", ""
		chartType = "scatter"
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestChartCommand_FromFlags(t *testing.T) {
	path := writeTemp(t, "genes.csv", "id,ACOX2,KCNE4\nr1,1.5,2.0\nr2,3.0,4.0\n")

	stdout, stderr, err := execute(t, "chart", path, "--x", "acox 2", "--y", "kcne4", "--type", "scater")
	require.NoError(t, err)

	assert.Contains(t, stdout, `"x_axis_column": "ACOX2"`)
	assert.Contains(t, stdout, `"plot_type": "scatter"`)
	assert.Contains(t, stderr, "ACOX2 vs KCNE4")
	assert.Contains(t, stderr, "2 points")
}

func TestChartCommand_RequiresIntent(t *testing.T) {
	path := writeTemp(t, "genes.csv", "id,a\nr1,1\n")

	_, _, err := execute(t, "chart", path, "--x", "a")
	assert.Error(t, err)
}

func TestColumnsCommand(t *testing.T) {
	path := writeTemp(t, "genes.csv", "id,ACOX2,tissue\nr1,1.5,liver\n")

	stdout, _, err := execute(t, "columns", path)
	require.NoError(t, err)

	assert.Contains(t, stdout, "genes.csv: 1 rows")
	assert.Regexp(t, `ACOX2\s+numeric`, stdout)
	assert.Regexp(t, `tissue\s+categorical`, stdout)
	assert.Regexp(t, `id\s+key`, stdout)
}
