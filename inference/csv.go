package inference

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"heartrisk/ml"
)

// ReadRecords parses a patients table. The "name" column, when present, is the
// display name; every other non-empty cell must be numeric. Empty cells leave
// the field absent so validation reports it.
func ReadRecords(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("patients table is empty")
	}
	if err != nil {
		return nil, err
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var records []Record
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, err
		}
		rec := Record{Fields: make(map[string]float64, len(header))}
		for i, col := range header {
			cell := strings.TrimSpace(row[i])
			if col == ml.NameColumn {
				rec.Name = cell
				continue
			}
			if cell == "" {
				continue
			}
			v, err := ml.ParseNumber(cell)
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, col, err)
			}
			rec.Fields[col] = v
		}
		records = append(records, rec)
	}
	return records, nil
}

// WriteResults writes results as patient_name,prediction,probability,risk_level.
func WriteResults(w io.Writer, results []Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"patient_name", "prediction", "probability", "risk_level"}); err != nil {
		return err
	}
	for _, r := range results {
		if err := cw.Write([]string{
			r.PatientName,
			strconv.Itoa(r.Prediction),
			strconv.FormatFloat(r.Probability, 'f', -1, 64),
			r.RiskLevel.String(),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
