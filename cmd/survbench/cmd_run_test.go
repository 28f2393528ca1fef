package main

import (
	"bytes"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeCohortCSV writes a small cohort where higher egfr means longer
// survival, so the Cox family has real signal to find.
func writeCohortCSV(t *testing.T, dir string, n int) string {
	t.Helper()
	rng := rand.New(rand.NewSource(11))
	var b strings.Builder
	b.WriteString("pid,months,event,egfr,age\n")
	for i := 0; i < n; i++ {
		egfr := 20 + 80*rng.Float64()
		months := egfr*1.2 + rng.Float64()
		event := 1
		if rng.Float64() < 0.3 {
			event = 0
		}
		age := 30 + rng.Float64()*40
		fmt.Fprintf(&b, "p%03d,%.2f,%d,%.2f,%.1f\n", i, months, event, egfr, age)
	}
	path := filepath.Join(dir, "cohort.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func writeExperimentYAML(t *testing.T, dir, csvPath, extra string) string {
	t.Helper()
	content := fmt.Sprintf(`
dataset:
  label: graft
  path: %s
  time_column: months
  status_column: event
  id_column: pid
splits:
  count: 4
  seed: 7
  strata: event
models:
  - name: cox
    kind: cox
engine:
  workers: 2
  permutation:
    enabled: true
    seed: 3
output:
  dir: %s
%s`, csvPath, filepath.Join(dir, "results"), extra)
	path := filepath.Join(dir, "experiment.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRunCommandEndToEnd(t *testing.T) {
	dir := t.TempDir()
	csvPath := writeCohortCSV(t, dir, 120)
	expPath := writeExperimentYAML(t, dir, csvPath, "")

	out, err := runCLI(t, "run", expPath)
	require.NoError(t, err)

	// terminal report includes the summary table and the decision
	assert.Contains(t, out, "cox")
	assert.Contains(t, out, "Chosen model: cox")

	resultsDir := filepath.Join(dir, "results")
	for _, name := range []string{
		"graft.metrics.jsonl",
		"graft_metrics.csv",
		"graft_summary.csv",
		"graft_selection.json",
		"progress.json",
	} {
		_, statErr := os.Stat(filepath.Join(resultsDir, name))
		assert.NoError(t, statErr, name)
	}
}

func TestRunCommandResumeThenReport(t *testing.T) {
	dir := t.TempDir()
	csvPath := writeCohortCSV(t, dir, 120)
	expPath := writeExperimentYAML(t, dir, csvPath, "")

	_, err := runCLI(t, "run", expPath, "--max-splits", "2", "--no-report")
	require.NoError(t, err)
	_, err = runCLI(t, "run", expPath, "--start-at", "3", "--no-report")
	require.NoError(t, err)

	out, err := runCLI(t, "report", expPath)
	require.NoError(t, err)
	assert.Contains(t, out, "cox")
	// all four splits contribute after the resumed range
	assert.Contains(t, out, "4")
}

func TestRunCommandExportSplits(t *testing.T) {
	dir := t.TempDir()
	csvPath := writeCohortCSV(t, dir, 120)
	expPath := writeExperimentYAML(t, dir, csvPath, "")
	planPath := filepath.Join(dir, "plan.json")

	_, err := runCLI(t, "run", expPath, "--no-report", "--export-splits", planPath)
	require.NoError(t, err)
	_, statErr := os.Stat(planPath)
	assert.NoError(t, statErr)
}

func TestRelativePathsResolveAgainstExperimentDir(t *testing.T) {
	// relative paths in the experiment file bind to its directory, not the
	// working directory, for run and report and progress alike
	root := t.TempDir()
	sub := filepath.Join(root, "exp")
	require.NoError(t, os.Mkdir(sub, 0o755))
	writeCohortCSV(t, sub, 120)
	content := `
dataset:
  label: graft
  path: cohort.csv
  time_column: months
  status_column: event
  id_column: pid
splits:
  count: 2
  seed: 7
  strata: event
models:
  - name: cox
    kind: cox
engine:
  workers: 2
output:
  dir: results
`
	expPath := filepath.Join(sub, "experiment.yaml")
	require.NoError(t, os.WriteFile(expPath, []byte(content), 0o644))

	t.Chdir(root)

	_, err := runCLI(t, "run", filepath.Join("exp", "experiment.yaml"), "--no-report")
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(sub, "results", "graft.metrics.jsonl"))
	require.NoError(t, statErr, "records must land next to the experiment file")
	_, statErr = os.Stat(filepath.Join(root, "results"))
	assert.True(t, os.IsNotExist(statErr), "nothing may be written under the working directory")

	out, err := runCLI(t, "report", filepath.Join("exp", "experiment.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "Chosen model: cox")

	out, err = runCLI(t, "progress", filepath.Join("exp", "experiment.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "Dataset:  graft")
}

func TestReportCommandWithoutRecords(t *testing.T) {
	dir := t.TempDir()
	csvPath := writeCohortCSV(t, dir, 30)
	expPath := writeExperimentYAML(t, dir, csvPath, "")

	_, err := runCLI(t, "report", expPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no metric records")
}

func TestProgressCommandReadsSnapshot(t *testing.T) {
	dir := t.TempDir()
	csvPath := writeCohortCSV(t, dir, 120)
	expPath := writeExperimentYAML(t, dir, csvPath, "")

	_, err := runCLI(t, "run", expPath, "--no-report")
	require.NoError(t, err)

	out, err := runCLI(t, "progress", expPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Dataset:  graft")
	assert.Contains(t, out, "complete")
}

func TestProgressCommandRequiresSource(t *testing.T) {
	_, err := runCLI(t, "progress")
	assert.Error(t, err)
}

func TestRunCommandRejectsBadExperiment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "experiment.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dataset: {}\n"), 0o644))

	_, err := runCLI(t, "run", path)
	assert.Error(t, err)
}
