// Package store archives planning runs as Parquet files.
package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

// PlanStepRow is one action of a discovered plan together with the world
// as it stands after that action.
//
// Target is the tile the action is aimed at: the destination of a move, the
// resource of a harvest, the townhall for deposits and builds. ResourceID is
// -1 when the action has no resource.
type PlanStepRow struct {
	RunID    string `parquet:"run_id,dict"`
	Scenario string `parquet:"scenario,dict"`
	Step     int32  `parquet:"step"`
	Kind     string `parquet:"kind,dict"`
	Action   string `parquet:"action"`

	WorkerIDs  []int32 `parquet:"worker_ids"`
	TargetX    int32   `parquet:"target_x"`
	TargetY    int32   `parquet:"target_y"`
	ResourceID int32   `parquet:"resource_id"`

	StepCost float64 `parquet:"step_cost"`
	CumCost  float64 `parquet:"cum_cost"`

	Gold    int32 `parquet:"gold"`
	Wood    int32 `parquet:"wood"`
	Food    int32 `parquet:"food"`
	Workers int32 `parquet:"workers"`

	// StateJSON holds workers and resource stock after the step so a run can
	// be replayed without the planner.
	StateJSON []byte `parquet:"state_json,optional,zstd"`
}

// PlanFileName is the archive name for a run.
func PlanFileName(runID string) string {
	return "plan_" + runID + ".parquet"
}

// WritePlanParquet writes a run's rows into outDir/tmp and then atomically
// moves the file into outDir, so readers never see a partial plan. The
// returned path is the final file.
func WritePlanParquet(outDir, runID string, rows []PlanStepRow) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	tmpDir := filepath.Join(outDir, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return "", fmt.Errorf("create tmp dir: %w", err)
	}

	name := PlanFileName(runID)
	finalPath := filepath.Join(outDir, name)
	tmpPath := filepath.Join(tmpDir, name+".tmp")
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.SkipPageBounds("state_json"),
		parquet.KeyValueMetadata("schema", "plan_step_v1"),
		parquet.KeyValueMetadata("run_id", runID),
	); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write parquet: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("rename parquet: %w", err)
	}
	return finalPath, nil
}

// ReadPlanParquet loads every row of an archived plan.
func ReadPlanParquet(path string) ([]PlanStepRow, error) {
	return readRows[PlanStepRow](path)
}

func readRows[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[T](pf)
	defer reader.Close()

	out := make([]T, 0, int(reader.NumRows()))
	buf := make([]T, 256)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read parquet: %w", err)
		}
	}
}
