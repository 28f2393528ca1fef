package adapters

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/graftlab/survbench/internal/dataset"
)

// External trains a model by invoking a separate executable with a CSV
// handoff: train and test tables are written to a scratch directory, the
// process is run with explicit time/status/category-column arguments, and a
// predictions table (plus optional importance table) is read back. A
// non-zero exit or timeout degrades this model's result for the split to
// unavailable; it never aborts the split.
//
// CLI contract (matching the original catboost bridge):
//
//	<command> [args...] --train <csv> --test <csv> --time-col <name>
//	          --status-col <name> --cat-cols <a,b,c> --threads <n>
//	          --outdir <dir>
//
// Expected outputs in outdir: predictions.csv with a "prediction" column
// (one row per test row, larger = longer predicted survival) and optionally
// importance.csv with "feature,importance" rows.
type External struct {
	name    string
	command string
	args    []string
	workDir string
	threads int
	timeout time.Duration
}

const (
	externPredictionsFile = "predictions.csv"
	externImportanceFile  = "importance.csv"
	externDefaultTimeout  = 15 * time.Minute
)

// NewExternal builds an external-process adapter from config.
func NewExternal(cfg Config) (*External, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("adapters: extern %q needs a command", cfg.Name)
	}
	timeout := externDefaultTimeout
	if cfg.TimeoutSec > 0 {
		timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}
	name := cfg.Name
	if name == "" {
		name = "extern"
	}
	return &External{
		name:    name,
		command: cfg.Command,
		args:    cfg.Args,
		workDir: cfg.WorkDir,
		threads: cfg.Threads,
		timeout: timeout,
	}, nil
}

func (e *External) Name() string             { return e.name }
func (e *External) SupportsImportance() bool { return true }

// PermutationUnitCost marks per-feature rescoring as prohibitive: each
// permutation would be a full subprocess round trip, so the worker relies
// on the importance table the process emits instead.
func (e *External) PermutationUnitCost() float64 { return 1000 }

// Fit is unsupported standalone: an external model needs train and test
// together (it scores during training). The worker detects BatchScorer and
// calls FitScore instead.
func (e *External) Fit(context.Context, *dataset.Dataset, []string) (FittedModel, error) {
	return nil, &AdapterError{Kind: KindInternal, Model: e.name,
		Err: fmt.Errorf("external adapter requires FitScore")}
}

// Score is unsupported standalone; see Fit.
func (e *External) Score(context.Context, FittedModel, *dataset.Dataset, float64) ([]float64, error) {
	return nil, &AdapterError{Kind: KindInternal, Model: e.name,
		Err: fmt.Errorf("external adapter requires FitScore")}
}

// FitScore runs the full file-transfer protocol for one split.
func (e *External) FitScore(ctx context.Context, train, test *dataset.Dataset, features []string, _ float64) ([]float64, map[string]float64, error) {
	scratch, err := os.MkdirTemp(e.workDir, "survbench-extern-")
	if err != nil {
		return nil, nil, &AdapterError{Kind: KindInternal, Model: e.name, Err: err}
	}
	defer os.RemoveAll(scratch) //nolint:errcheck

	columns := append([]string{train.TimeColumn, train.StatusColumn}, features...)
	trainPath := filepath.Join(scratch, "train.csv")
	testPath := filepath.Join(scratch, "test.csv")
	if err := dataset.WriteCSV(train.Frame, trainPath, columns, train.IDColumn); err != nil {
		return nil, nil, &AdapterError{Kind: KindInternal, Model: e.name, Err: err}
	}
	if err := dataset.WriteCSV(test.Frame, testPath, columns, test.IDColumn); err != nil {
		return nil, nil, &AdapterError{Kind: KindInternal, Model: e.name, Err: err}
	}

	var catCols []string
	for _, f := range features {
		if train.Frame.IsFactor(f) {
			catCols = append(catCols, f)
		}
	}

	args := append([]string{}, e.args...)
	args = append(args,
		"--train", trainPath,
		"--test", testPath,
		"--time-col", train.TimeColumn,
		"--status-col", train.StatusColumn,
		"--outdir", scratch,
	)
	if len(catCols) > 0 {
		args = append(args, "--cat-cols", strings.Join(catCols, ","))
	}
	if e.threads > 0 {
		args = append(args, "--threads", strconv.Itoa(e.threads))
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.command, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		kind := KindUnavailable
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			kind = KindTimeout
		}
		slog.Warn("extern: subprocess failed",
			"model", e.name, "command", e.command, "kind", kind.String(),
			"output", tail(string(output), 500), "err", err)
		return nil, nil, &AdapterError{Kind: kind, Model: e.name, Err: err}
	}

	scores, err := e.readPredictions(filepath.Join(scratch, externPredictionsFile), test.Frame.Len())
	if err != nil {
		return nil, nil, &AdapterError{Kind: KindUnavailable, Model: e.name, Err: err}
	}

	// importance table is optional output
	importance, err := e.readImportance(filepath.Join(scratch, externImportanceFile))
	if err != nil {
		slog.Debug("extern: no importance table", "model", e.name, "err", err)
		importance = nil
	}

	return scores, importance, nil
}

// readPredictions parses the predictions file and negates the values so that
// higher means higher risk (the process predicts time-to-event).
func (e *External) readPredictions(path string, wantRows int) ([]float64, error) {
	records, err := readCSVFile(path)
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("predictions file %s has no data rows", path)
	}

	col := columnIndex(records[0], "prediction")
	if col < 0 {
		return nil, fmt.Errorf("predictions file %s lacks a prediction column", path)
	}

	rows := records[1:]
	if len(rows) != wantRows {
		return nil, fmt.Errorf("predictions file %s has %d rows, expected %d", path, len(rows), wantRows)
	}

	scores := make([]float64, len(rows))
	for i, rec := range rows {
		v, err := strconv.ParseFloat(rec[col], 64)
		if err != nil {
			return nil, fmt.Errorf("predictions row %d: %w", i+1, err)
		}
		scores[i] = -v
	}
	return scores, nil
}

func (e *External) readImportance(path string) (map[string]float64, error) {
	records, err := readCSVFile(path)
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("importance file %s has no data rows", path)
	}

	fCol := columnIndex(records[0], "feature")
	iCol := columnIndex(records[0], "importance")
	if fCol < 0 || iCol < 0 {
		return nil, fmt.Errorf("importance file %s lacks feature/importance columns", path)
	}

	out := make(map[string]float64, len(records)-1)
	for _, rec := range records[1:] {
		v, err := strconv.ParseFloat(rec[iCol], 64)
		if err != nil {
			continue
		}
		out[rec[fCol]] = v
	}
	return out, nil
}

func readCSVFile(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck
	return csv.NewReader(f).ReadAll()
}

func columnIndex(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "…" + s[len(s)-n:]
}
