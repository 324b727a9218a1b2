package dataset

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xuri/excelize/v2"

	"urlsentry/pkg/metadata"
)

// LabelColumn is the name of the trailing label column in written tables.
const LabelColumn = "label"

// SheetName is the worksheet written by SaveXLSX.
const SheetName = "features"

// Row is one extracted, labeled feature vector.
type Row struct {
	URL    string
	Vector []float64
	Label  int
}

func header(schema []string) []string {
	return append(append(make([]string, 0, len(schema)+1), schema...), LabelColumn)
}

func checkWidth(schema []string, row Row, i int) error {
	if len(row.Vector) != len(schema) {
		return fmt.Errorf("row %d has %d values, schema has %d", i, len(row.Vector), len(schema))
	}

	return nil
}

// WriteCSV writes a header of schema names plus "label", then one line per row.
func WriteCSV(w io.Writer, schema []string, rows []Row) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(header(schema)); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	record := make([]string, len(schema)+1)

	for i, row := range rows {
		if err := checkWidth(schema, row, i); err != nil {
			return err
		}

		for j, v := range row.Vector {
			record[j] = strconv.FormatFloat(v, 'f', -1, 64)
		}

		record[len(schema)] = strconv.Itoa(row.Label)

		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	cw.Flush()

	return cw.Error()
}

// SaveCSV writes the table to path.
func SaveCSV(path string, schema []string, rows []Row) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := WriteCSV(f, schema, rows); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}

// SaveXLSX writes the table to a single-sheet workbook at path.
func SaveXLSX(path string, schema []string, rows []Row) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return fmt.Errorf("failed to open sheet writer: %w", err)
	}

	cols := header(schema)
	headerCells := make([]any, len(cols))

	for i, name := range cols {
		headerCells[i] = name
	}

	if err := sw.SetRow("A1", headerCells); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, row := range rows {
		if err := checkWidth(schema, row, i); err != nil {
			return err
		}

		cells := make([]any, 0, len(cols))
		for _, v := range row.Vector {
			cells = append(cells, v)
		}

		cells = append(cells, row.Label)

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to address row %d: %w", i, err)
		}

		if err := sw.SetRow(cell, cells); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet: %w", err)
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}

	return nil
}

func ensureDir(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	return nil
}

// SaveMetadata writes the schema fingerprint of a table to path.
func SaveMetadata(path string, schema []string, version string) error {
	data, err := json.MarshalIndent(metadata.Sign(schema, version), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	return nil
}

// LoadMetadata reads a file written by SaveMetadata and verifies it against schema.
func LoadMetadata(path string, schema []string) (*metadata.Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var meta metadata.Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}

	if err := metadata.Verify(&meta, schema); err != nil {
		return nil, err
	}

	return &meta, nil
}

// ReadSchema returns the feature columns of a table written by SaveCSV.
func ReadSchema(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	cols, err := csv.NewReader(f).Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyDataset
		}

		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	if len(cols) == 0 || cols[len(cols)-1] != LabelColumn {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, LabelColumn)
	}

	return cols[:len(cols)-1], nil
}
