package extraction

import (
	"encoding/csv"
	"fmt"

	"go.uber.org/zap"

	"scraper/logger"
	"scraper/utils/helpers"
)

// WriteOutput appends the extracted rows to the extraction's sink.
// Rows containing an invalid-sentinel cell are dropped; when nothing
// valid remains, the sink file is left untouched. Directories are
// created on demand. Unknown output types are logged and skipped.
func WriteOutput(name string, rows []Row, outputType OutputType, outputFile string) error {
	if len(rows) == 0 {
		logger.Info("no data to write", zap.String("target", name), zap.String("output_file", outputFile))
		return nil
	}

	valid := rows[:0:0]
	for _, row := range rows {
		if !row.Invalid {
			valid = append(valid, row)
		}
	}
	if len(valid) == 0 {
		logger.Info("no valid data to write", zap.String("target", name), zap.String("output_file", outputFile))
		return nil
	}

	switch outputType {
	case CSV:
		if err := appendCSV(outputFile, valid); err != nil {
			return err
		}
	default:
		logger.Error("unsupported output type",
			zap.String("target", name),
			zap.String("output_type", string(outputType)))
		return nil
	}

	logger.Info("output written",
		zap.String("target", name),
		zap.String("output_type", string(outputType)),
		zap.String("output_file", outputFile),
		zap.Int("rows", len(valid)))
	return nil
}

// appendCSV appends rows to the file without a header.
func appendCSV(path string, rows []Row) error {
	if err := helpers.EnsureParent(path); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	f, err := helpers.AppendFile(path)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	for _, row := range rows {
		if err := w.Write(row.Cells); err != nil {
			return fmt.Errorf("write output row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}
