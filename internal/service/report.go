package service

import (
	"bytes"
	"encoding/csv"

	"leadpipe/internal/core/domain"
)

// reportHeader is the column order of the verification report.
var reportHeader = []string{"email", "firstName", "status", "details"}

// Report renders verification records as an RFC 4180 CSV document, one
// row per unique input record.
func Report(records []domain.VerificationRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(reportHeader); err != nil {
		return nil, err
	}
	for _, r := range records {
		row := []string{r.Email, r.FirstName, string(r.Status), r.Details}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
