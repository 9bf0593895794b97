package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/AradIT/voipprov/internal/provisioning/domain"
)

// Reader parses CSV files into domain.Table. Implements domain.TableReader.
type Reader struct {
	logger *slog.Logger
}

func NewReader(logger *slog.Logger) *Reader {
	return &Reader{logger: logger.With("component", "csv_reader")}
}

// ReadTable reads the whole file; the first row is the header row.
func (r *Reader) ReadTable(ctx context.Context, path string) (*domain.Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	csvReader := csv.NewReader(file)
	csvReader.FieldsPerRecord = -1 // ragged rows are tolerated; columns are matched by index
	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("file %s has no header row", path)
	}

	r.logger.DebugContext(ctx, "Table read", "path", path, "rows", len(records)-1)
	return &domain.Table{Headers: records[0], Rows: records[1:]}, nil
}

// Writer serializes tables as CSV files. Implements domain.TableWriter.
type Writer struct {
	logger *slog.Logger
}

func NewWriter(logger *slog.Logger) *Writer {
	return &Writer{logger: logger.With("component", "csv_writer")}
}

// WriteTable writes headers plus rows to path, creating parent directories as
// needed.
func (w *Writer) WriteTable(ctx context.Context, path string, headers []string, rows [][]string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("creating directory for %s: %w", path, err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer file.Close()

	csvWriter := csv.NewWriter(file)
	defer csvWriter.Flush()

	if err := csvWriter.Write(headers); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("writing header to %s: %w", path, err)
	}
	for _, row := range rows {
		if err := csvWriter.Write(row); err != nil {
			w.logger.ErrorContext(ctx, "Failed to write CSV row", "path", path, "error", err)
		}
	}

	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("flushing %s: %w", path, err)
	}

	w.logger.DebugContext(ctx, "Table written", "path", path, "rows", len(rows))
	return nil
}
