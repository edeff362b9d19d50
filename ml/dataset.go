package ml

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Dataset is a labeled feature matrix. X rows follow Columns order.
type Dataset struct {
	Columns []string
	X       [][]float64
	Y       []int
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return len(d.Y)
}

// Positives returns the number of samples labeled 1.
func (d *Dataset) Positives() int {
	n := 0
	for _, y := range d.Y {
		n += y
	}
	return n
}

// MissingColumnsError reports required columns absent from a table header.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Columns, ", "))
}

// CharsetReader wraps r with a decoder producing UTF-8. An empty charset is
// treated as UTF-8 with an optional byte order mark.
func CharsetReader(r io.Reader, charset string) (io.Reader, error) {
	var enc encoding.Encoding
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "", "utf-8", "utf8":
		return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())), nil
	case "gbk":
		enc = simplifiedchinese.GBK
	case "latin1", "iso-8859-1":
		enc = charmap.ISO8859_1
	case "windows-1252", "cp1252":
		enc = charmap.Windows1252
	default:
		return nil, fmt.Errorf("unsupported charset %q", charset)
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

// OpenDataset reads a training CSV from path.
func OpenDataset(path, charset string, featureCols []string, labelCol string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := CharsetReader(f, charset)
	if err != nil {
		return nil, err
	}
	ds, err := ReadDataset(r, featureCols, labelCol)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return ds, nil
}

// ReadDataset parses a CSV table, projecting featureCols in the given order.
// Absent columns produce a *MissingColumnsError before any row is parsed.
func ReadDataset(r io.Reader, featureCols []string, labelCol string) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("dataset is empty")
	}
	if err != nil {
		return nil, err
	}
	index := HeaderIndex(header)

	required := append(append([]string(nil), featureCols...), labelCol)
	var missing []string
	for _, col := range required {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Columns: missing}
	}

	ds := &Dataset{Columns: append([]string(nil), featureCols...)}
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, err
		}
		row := make([]float64, len(featureCols))
		for j, col := range featureCols {
			v, err := parseCell(record, index[col])
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, col, err)
			}
			row[j] = v
		}
		label, err := parseCell(record, index[labelCol])
		if err != nil {
			return nil, fmt.Errorf("line %d column %s: %w", line, labelCol, err)
		}
		if label != 0 && label != 1 {
			return nil, fmt.Errorf("line %d column %s: label %v is not 0 or 1", line, labelCol, label)
		}
		ds.X = append(ds.X, row)
		ds.Y = append(ds.Y, int(label))
	}
	if ds.Len() == 0 {
		return nil, fmt.Errorf("dataset has no rows")
	}
	return ds, nil
}

// HeaderIndex maps trimmed column names to their positions.
func HeaderIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(h)] = i
	}
	return index
}

func parseCell(record []string, idx int) (float64, error) {
	if idx >= len(record) {
		return 0, fmt.Errorf("value missing")
	}
	raw := strings.TrimSpace(record[idx])
	if raw == "" {
		return 0, fmt.Errorf("value missing")
	}
	return ParseNumber(raw)
}

// ParseNumber parses a finite decimal value. NaN and infinities are rejected.
func ParseNumber(raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite number %q", raw)
	}
	return v, nil
}
