package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"

	"github.com/erikjearl/SEPIA-Environments/search"
)

// ProgressRow is one search progress sample.
type ProgressRow struct {
	RunID        string  `parquet:"run_id,dict"`
	Expanded     int64   `parquet:"expanded"`
	Generated    int64   `parquet:"generated"`
	Duplicates   int64   `parquet:"duplicates"`
	Frontier     int64   `parquet:"frontier"`
	BestPriority float64 `parquet:"best_priority"`
	BestGold     int32   `parquet:"best_gold"`
	BestWood     int32   `parquet:"best_wood"`
	BestWorkers  int32   `parquet:"best_workers"`
	ElapsedMs    int64   `parquet:"elapsed_ms"`
	Done         bool    `parquet:"done"`
}

// TraceFileName is the progress trace name for a run.
func TraceFileName(runID string) string {
	return "trace_" + runID + ".parquet"
}

// TraceWriter streams search progress into a Parquet file under outDir/tmp
// and moves it into outDir on Finalize.
//
// It is not safe for concurrent use. search.Planner calls OnProgress from the
// planning goroutine only, so Observe can be passed straight through.
type TraceWriter struct {
	runID   string
	tmpPath string
	outPath string

	file   *os.File
	writer *parquet.GenericWriter[ProgressRow]

	rows int
	err  error
}

func NewTraceWriter(outDir, runID string) (*TraceWriter, error) {
	if outDir == "" {
		return nil, fmt.Errorf("outDir is required")
	}
	if runID == "" {
		return nil, fmt.Errorf("run id is required")
	}

	absOut, err := filepath.Abs(outDir)
	if err != nil {
		absOut = outDir
	}
	tmpDir := filepath.Join(absOut, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("create tmp dir: %w", err)
	}

	name := TraceFileName(runID)
	tmpPath := filepath.Join(tmpDir, name+".tmp")
	outPath := filepath.Join(absOut, name)

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open tmp parquet: %w", err)
	}

	w := parquet.NewGenericWriter[ProgressRow](
		f,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
	)
	w.SetKeyValueMetadata("schema", "search_progress_v1")
	w.SetKeyValueMetadata("run_id", runID)

	return &TraceWriter{
		runID:   runID,
		tmpPath: tmpPath,
		outPath: outPath,
		file:    f,
		writer:  w,
	}, nil
}

func (t *TraceWriter) OutPath() string { return t.outPath }

// Write appends one sample.
func (t *TraceWriter) Write(p search.Progress) error {
	if t.writer == nil || t.file == nil {
		return fmt.Errorf("trace writer is closed")
	}
	row := ProgressRow{
		RunID:        t.runID,
		Expanded:     int64(p.Expanded),
		Generated:    int64(p.Generated),
		Duplicates:   int64(p.Duplicates),
		Frontier:     int64(p.Frontier),
		BestPriority: p.BestPriority,
		BestGold:     int32(p.BestGold),
		BestWood:     int32(p.BestWood),
		BestWorkers:  int32(p.BestWorkers),
		ElapsedMs:    p.Elapsed.Milliseconds(),
		Done:         p.Done,
	}
	if _, err := t.writer.Write([]ProgressRow{row}); err != nil {
		return err
	}
	t.rows++
	return nil
}

// Observe has the search.Options.OnProgress signature. The first write error
// is kept and reported by Finalize.
func (t *TraceWriter) Observe(p search.Progress) {
	if t.err != nil {
		return
	}
	t.err = t.Write(p)
}

// Finalize closes the writer and moves the file from tmp/ to outDir.
// If no rows were written, the tmp file is removed and outPath is empty.
func (t *TraceWriter) Finalize() (outPath string, rows int, err error) {
	if t.writer == nil && t.file == nil {
		return "", 0, nil
	}

	var closeErr error
	if t.writer != nil {
		closeErr = t.writer.Close()
		t.writer = nil
	}
	var fileErr error
	if t.file != nil {
		_ = t.file.Sync()
		fileErr = t.file.Close()
		t.file = nil
	}
	if t.err != nil {
		_ = os.Remove(t.tmpPath)
		return "", 0, fmt.Errorf("write progress: %w", t.err)
	}
	if closeErr != nil {
		return "", 0, fmt.Errorf("close parquet writer: %w", closeErr)
	}
	if fileErr != nil {
		return "", 0, fmt.Errorf("close parquet file: %w", fileErr)
	}

	if t.rows == 0 {
		_ = os.Remove(t.tmpPath)
		return "", 0, nil
	}
	if err := os.Rename(t.tmpPath, t.outPath); err != nil {
		return "", 0, fmt.Errorf("rename parquet: %w", err)
	}
	return t.outPath, t.rows, nil
}

// ReadTraceParquet loads every progress sample of a trace file.
func ReadTraceParquet(path string) ([]ProgressRow, error) {
	return readRows[ProgressRow](path)
}
