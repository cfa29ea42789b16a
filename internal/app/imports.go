package app

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/marksheet/internal/batch"
	"github.com/shrimpsizemoose/marksheet/internal/importer"
	"github.com/shrimpsizemoose/marksheet/internal/metrics"
	"github.com/shrimpsizemoose/marksheet/internal/models"
	"github.com/shrimpsizemoose/marksheet/internal/store"
)

type ImportReport struct {
	Rows       int                 `json:"rows"`
	Imported   int                 `json:"imported"`
	BatchStart int64               `json:"batch_start"`
	Errors     []importer.RowError `json:"errors"`
	Batch      *batch.Result       `json:"batch,omitempty"`
}

// ImportStudents reads a sheet, reconciles it against stored students and
// inserts the accepted rows. Rejected rows are reported and never stop the
// rest of the file.
func (s *Service) ImportStudents(ctx context.Context, r io.Reader) (*ImportReport, error) {
	rows, err := s.Codec.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet: %w", err)
	}

	snap, err := s.Cache.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	outcome := s.Importer.Reconcile(rows, snap.Students, snap.Catalogue())

	report := &ImportReport{
		Rows:       len(rows),
		BatchStart: outcome.BatchStart,
		Errors:     outcome.Errors,
	}

	if len(outcome.Accepted) > 0 {
		ops := make([]store.Op, len(outcome.Accepted))
		for i, c := range outcome.Accepted {
			ops[i] = store.InsertStudent(c.Student)
		}
		result, err := s.Batch.Apply(ctx, ops)
		if err != nil {
			return nil, fmt.Errorf("failed to import students: %w", err)
		}
		report.Batch = result
		report.Imported = result.SuccessCount

		failed := make(map[int]bool, len(result.Errors))
		for _, e := range result.Errors {
			failed[e.Position] = true
			c := outcome.Accepted[e.Position]
			report.Errors = append(report.Errors, importer.RowError{
				Row:         c.Row,
				AdmissionNo: c.Student.AdmissionNo,
				Message:     e.Message,
				Err:         e.Err,
			})
		}

		enrolErrors, err := s.enrolImported(ctx, outcome.Accepted, failed, snap.Catalogue())
		if err != nil {
			return nil, err
		}
		report.Errors = append(report.Errors, enrolErrors...)
		sort.SliceStable(report.Errors, func(i, j int) bool { return report.Errors[i].Row < report.Errors[j].Row })
	}

	metrics.ImportRows.WithLabelValues("imported").Add(float64(report.Imported))
	metrics.ImportRows.WithLabelValues("rejected").Add(float64(len(report.Errors)))
	logger.Info.Printf("Imported %d of %d rows, %d rejected", report.Imported, report.Rows, len(report.Errors))
	return report, nil
}

// enrolImported enrols inserted students in the electives their rows carry
// marks for. A failed enrolment is reported on every row it covered.
func (s *Service) enrolImported(ctx context.Context, accepted []importer.Candidate, failed map[int]bool, catalogue models.Catalogue) ([]importer.RowError, error) {
	bySubject := make(map[string][]importer.Candidate)
	for i, c := range accepted {
		if failed[i] {
			continue
		}
		for _, subjectID := range c.Electives {
			bySubject[subjectID] = append(bySubject[subjectID], c)
		}
	}
	if len(bySubject) == 0 {
		return nil, nil
	}

	subjectIDs := make([]string, 0, len(bySubject))
	ops := make([]store.Op, 0, len(bySubject))
	for _, subjectID := range catalogue.IDs() {
		candidates, ok := bySubject[subjectID]
		if !ok {
			continue
		}
		ids := make([]string, len(candidates))
		for i, c := range candidates {
			ids[i] = c.Student.ID
		}
		enrolled, err := catalogue[subjectID].Enroll(ids...)
		if err != nil {
			return nil, err
		}
		subjectIDs = append(subjectIDs, subjectID)
		ops = append(ops, store.UpdateSubject(enrolled))
	}

	result, err := s.Batch.Apply(ctx, ops)
	if err != nil {
		return nil, fmt.Errorf("failed to enrol imported students: %w", err)
	}

	var errs []importer.RowError
	for _, e := range result.Errors {
		subject := catalogue[subjectIDs[e.Position]]
		for _, c := range bySubject[subject.ID] {
			errs = append(errs, importer.RowError{
				Row:         c.Row,
				AdmissionNo: c.Student.AdmissionNo,
				Message:     fmt.Sprintf("imported but not enrolled in %s: %s", subject.Name, e.Message),
				Err:         e.Err,
			})
		}
	}
	return errs, nil
}

// ExportStudents writes one class, or every student when class is empty.
func (s *Service) ExportStudents(ctx context.Context, w io.Writer, class string) error {
	students, err := s.ListStudents(ctx, class)
	if err != nil {
		return err
	}
	catalogue, err := s.Cache.Catalogue(ctx)
	if err != nil {
		return fmt.Errorf("failed to load subjects: %w", err)
	}

	header, rows := importer.Export(students, catalogue)
	if err := s.Codec.Encode(w, header, rows); err != nil {
		return fmt.Errorf("failed to write sheet: %w", err)
	}
	return nil
}
