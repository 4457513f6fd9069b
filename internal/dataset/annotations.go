package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Annotation is one row of an ESC metadata table.
type Annotation struct {
	Filename string
	Target   int32
	Category string // empty when the table has no category column
	Fold     int    // 0 when the table has no fold column
	ESC10    bool
}

// ReadAnnotations loads an ESC metadata CSV.
//
// The header must contain "filename" and "target"; "category", "fold" and
// "esc10" are read when present. Example (meta/esc50.csv):
//
//	filename,fold,target,category,esc10,src_file,take
//	1-100032-A-0.wav,1,0,dog,True,100032,A
func ReadAnnotations(path string) ([]Annotation, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open annotations: %w", err)
	}
	defer file.Close()

	return parseAnnotations(file)
}

func parseAnnotations(r io.Reader) ([]Annotation, error) {
	reader := csv.NewReader(r)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: missing header", ErrAnnotations)
	}

	columns := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		columns[strings.TrimSpace(strings.ToLower(name))] = i
	}
	filenameCol, ok := columns["filename"]
	if !ok {
		return nil, fmt.Errorf("%w: no filename column", ErrAnnotations)
	}
	targetCol, ok := columns["target"]
	if !ok {
		return nil, fmt.Errorf("%w: no target column", ErrAnnotations)
	}
	categoryCol, hasCategory := columns["category"]
	foldCol, hasFold := columns["fold"]
	esc10Col, hasESC10 := columns["esc10"]

	rows := make([]Annotation, 0, len(records)-1)
	for i, record := range records[1:] {
		line := i + 2
		target, err := strconv.ParseInt(strings.TrimSpace(record[targetCol]), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid target at line %d: %w", ErrAnnotations, line, err)
		}

		row := Annotation{
			Filename: strings.TrimSpace(record[filenameCol]),
			Target:   int32(target),
		}
		if hasCategory {
			row.Category = record[categoryCol]
		}
		if hasFold {
			if row.Fold, err = strconv.Atoi(strings.TrimSpace(record[foldCol])); err != nil {
				return nil, fmt.Errorf("%w: invalid fold at line %d: %w", ErrAnnotations, line, err)
			}
		}
		if hasESC10 {
			// pandas writes booleans as True/False.
			if row.ESC10, err = strconv.ParseBool(strings.TrimSpace(record[esc10Col])); err != nil {
				return nil, fmt.Errorf("%w: invalid esc10 flag at line %d: %w", ErrAnnotations, line, err)
			}
		}
		rows = append(rows, row)
	}

	return rows, nil
}
