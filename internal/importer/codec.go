// Package importer reads and writes student sheets and reconciles imported
// rows against the records already stored.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Row maps canonical column names to cell text.
type Row map[string]string

// Canonical column names.
const (
	ColAdmissionNo      = "admission_no"
	ColName             = "name"
	ColClassName        = "class_name"
	ColSemester         = "semester"
	ColGrandTotal       = "grand_total"
	ColAverage          = "average"
	ColRank             = "rank"
	ColPerformanceLevel = "performance_level"
)

// Per-subject column suffixes: "<subjectID>.ta" and so on.
const (
	SuffixTA     = "ta"
	SuffixCE     = "ce"
	SuffixTotal  = "total"
	SuffixStatus = "status"
)

var headerAliases = map[string]string{
	"admission_no":      ColAdmissionNo,
	"admission_number":  ColAdmissionNo,
	"admission":         ColAdmissionNo,
	"adm_no":            ColAdmissionNo,
	"admno":             ColAdmissionNo,
	"name":              ColName,
	"student_name":      ColName,
	"full_name":         ColName,
	"class":             ColClassName,
	"class_name":        ColClassName,
	"classname":         ColClassName,
	"semester":          ColSemester,
	"sem":               ColSemester,
	"grand_total":       ColGrandTotal,
	"average":           ColAverage,
	"rank":              ColRank,
	"performance":       ColPerformanceLevel,
	"performance_level": ColPerformanceLevel,
}

// NormalizeHeader maps a header cell to its canonical column name. Subject
// columns keep the subject id as written and lower-case the suffix.
func NormalizeHeader(raw string) string {
	h := strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff"))
	if i := strings.LastIndex(h, "."); i > 0 {
		return strings.TrimSpace(h[:i]) + "." + strings.ToLower(strings.TrimSpace(h[i+1:]))
	}
	key := strings.ToLower(h)
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if canonical, ok := headerAliases[key]; ok {
		return canonical
	}
	return key
}

// SubjectColumn splits "<subjectID>.<suffix>".
func SubjectColumn(column string) (subjectID, suffix string, ok bool) {
	i := strings.LastIndex(column, ".")
	if i <= 0 || i == len(column)-1 {
		return "", "", false
	}
	return column[:i], column[i+1:], true
}

type Codec interface {
	Decode(r io.Reader) ([]Row, error)
	Encode(w io.Writer, header []string, rows []Row) error
}

type CSVCodec struct {
	Comma rune
}

var ErrNoHeader = errors.New("sheet has no header row")

// Decode reads the header and every non-blank data row.
func (c CSVCodec) Decode(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	if c.Comma != 0 {
		reader.Comma = c.Comma
	}

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = NormalizeHeader(h)
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", len(rows)+1, err)
		}

		row := make(Row, len(columns))
		blank := true
		for i, column := range columns {
			if i >= len(record) || column == "" {
				continue
			}
			value := strings.TrimSpace(record[i])
			row[column] = value
			if value != "" {
				blank = false
			}
		}
		if !blank {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (c CSVCodec) Encode(w io.Writer, header []string, rows []Row) error {
	writer := csv.NewWriter(w)
	if c.Comma != 0 {
		writer.Comma = c.Comma
	}

	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	record := make([]string, len(header))
	for i, row := range rows {
		for j, column := range header {
			record[j] = row[column]
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}
	writer.Flush()
	return writer.Error()
}
