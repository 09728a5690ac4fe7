// Package importer bulk-loads lookup history from spreadsheet files, so an
// existing word list can seed the engine. Excel (.xlsx) and CSV are
// supported; each row contributes one looked-up word with an optional
// example context.
package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/example/wordflow/internal/history"
	"github.com/example/wordflow/pkg/models"
)

// Config defines which columns hold which fields.
type Config struct {
	FilePath      string
	WordColumn    int    // 0-based column with the word
	ContextColumn int    // 0-based column with the example context
	SheetName     string // Excel only
	StartRow      int    // 1-based first data row (2 skips a header)
}

// DefaultConfig reads words from column A and contexts from column B of
// Sheet1, skipping one header row.
func DefaultConfig(path string) Config {
	return Config{
		FilePath:      path,
		WordColumn:    0,
		ContextColumn: 1,
		SheetName:     "Sheet1",
		StartRow:      2,
	}
}

// Result holds the outcome of an import run. Row-level problems are
// collected, not fatal.
type Result struct {
	TotalProcessed int
	Imported       int
	Skipped        int
	Errors         []string
}

// Import loads lookups from an Excel or CSV file into the history provider.
func Import(cfg Config, hist *history.Provider) (*Result, error) {
	if strings.EqualFold(filepath.Ext(cfg.FilePath), ".csv") {
		return importCSV(cfg, hist)
	}
	return importExcel(cfg, hist)
}

func importExcel(cfg Config, hist *history.Provider) (*Result, error) {
	f, err := excelize.OpenFile(cfg.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(cfg.SheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", cfg.SheetName, err)
	}

	result := &Result{}
	for i, row := range rows {
		if i < cfg.StartRow-1 {
			continue
		}
		result.TotalProcessed++
		if err := importRow(row, cfg, hist, result); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", i+1, err))
		}
	}
	return result, nil
}

func importCSV(cfg Config, hist *history.Provider) (*Result, error) {
	file, err := os.Open(cfg.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	result := &Result{}
	for line := 1; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", line, err))
			continue
		}
		if line < cfg.StartRow {
			continue
		}
		result.TotalProcessed++
		if err := importRow(row, cfg, hist, result); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", line, err))
		}
	}
	return result, nil
}

func importRow(row []string, cfg Config, hist *history.Provider, result *Result) error {
	var word, context string
	if cfg.WordColumn < len(row) {
		word = models.NormalizeWord(row[cfg.WordColumn])
	}
	if cfg.ContextColumn >= 0 && cfg.ContextColumn < len(row) {
		context = strings.TrimSpace(row[cfg.ContextColumn])
	}
	if word == "" {
		result.Skipped++
		return nil
	}
	if err := hist.RecordLookup(word, context); err != nil {
		return err
	}
	result.Imported++
	return nil
}
