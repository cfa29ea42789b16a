package app

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/shrimpsizemoose/marksheet/internal/batch"
	"github.com/shrimpsizemoose/marksheet/internal/models"
	"github.com/shrimpsizemoose/marksheet/internal/scoring"
	"github.com/shrimpsizemoose/marksheet/internal/store"
)

// ListStudents returns students of one class, or all students grouped by
// class when class is empty, in display order.
func (s *Service) ListStudents(ctx context.Context, class string) ([]models.StudentRecord, error) {
	students, err := s.Cache.Students(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}

	out := students[:0]
	for _, st := range students {
		if class == "" || st.ClassName == class {
			out = append(out, st)
		}
	}
	scoring.SortForDisplay(out)
	slices.SortStableFunc(out, func(a, b models.StudentRecord) int {
		return cmp.Compare(a.ClassName, b.ClassName)
	})
	return out, nil
}

func (s *Service) GetStudent(ctx context.Context, id string) (*models.StudentRecord, error) {
	students, err := s.Cache.Students(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get student: %w", err)
	}
	for _, st := range students {
		if st.ID == id {
			return &st, nil
		}
	}
	return nil, &models.NotFoundError{Kind: "student", ID: id}
}

// FindByAdmissionNo looks a student up by admission number.
func (s *Service) FindByAdmissionNo(ctx context.Context, admissionNo string) (*models.StudentRecord, error) {
	students, err := s.Cache.Students(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find student: %w", err)
	}
	for _, st := range students {
		if st.AdmissionNo == admissionNo {
			return &st, nil
		}
	}
	return nil, &models.NotFoundError{Kind: "student", ID: admissionNo}
}

// ClassRanklist ranks the class from the current records, so it is correct
// even before the follow-up rank write has landed.
func (s *Service) ClassRanklist(ctx context.Context, class string) ([]models.StudentRecord, error) {
	if !s.Classes.Known(class) {
		return nil, &models.NotFoundError{Kind: "class", ID: class}
	}
	students, err := s.ListStudents(ctx, class)
	if err != nil {
		return nil, err
	}
	return scoring.AssignRanks(students), nil
}

func (s *Service) CreateStudent(ctx context.Context, in models.StudentInput) (*models.StudentRecord, error) {
	student, err := models.NewStudentRecord(in)
	if err != nil {
		return nil, err
	}
	if !s.Classes.Known(student.ClassName) {
		return nil, models.NewValidationError("class_name", "unknown class %q", student.ClassName)
	}

	result, err := s.Batch.Apply(ctx, []store.Op{store.InsertStudent(student)})
	if err != nil {
		return nil, fmt.Errorf("failed to create student: %w", err)
	}
	if err := singleItem(result); err != nil {
		return nil, err
	}
	return s.stored(ctx, student)
}

// stored re-reads a record after a write so callers see derived fields and
// the recomputed rank.
func (s *Service) stored(ctx context.Context, fallback models.StudentRecord) (*models.StudentRecord, error) {
	got, err := s.Store.GetStudent(ctx, fallback.ID)
	if err != nil || got == nil {
		return &fallback, nil
	}
	return got, nil
}

// UpdateStudent replaces the editable identity fields of a student.
func (s *Service) UpdateStudent(ctx context.Context, id string, in models.StudentInput) (*models.StudentRecord, error) {
	current, err := s.GetStudent(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := current.Clone()
	edited, err := models.NewStudentRecord(in)
	if err != nil {
		return nil, err
	}
	if !s.Classes.Known(edited.ClassName) {
		return nil, models.NewValidationError("class_name", "unknown class %q", edited.ClassName)
	}
	updated.AdmissionNo = edited.AdmissionNo
	updated.Name = edited.Name
	updated.ClassName = edited.ClassName
	updated.Semester = edited.Semester

	result, err := s.Batch.Apply(ctx, []store.Op{store.UpdateStudent(updated)})
	if err != nil {
		return nil, fmt.Errorf("failed to update student: %w", err)
	}
	if err := singleItem(result); err != nil {
		return nil, err
	}
	return s.stored(ctx, updated)
}

func (s *Service) DeleteStudent(ctx context.Context, id string) error {
	result, err := s.DeleteStudents(ctx, []string{id})
	if err != nil {
		return err
	}
	return singleItem(result)
}

// DeleteStudents removes students and drops them from elective enrolments.
func (s *Service) DeleteStudents(ctx context.Context, ids []string) (*batch.Result, error) {
	ops := make([]store.Op, len(ids))
	for i, id := range ids {
		ops[i] = store.DeleteStudent(id, "")
	}
	result, err := s.Batch.Apply(ctx, ops)
	if err != nil {
		return nil, fmt.Errorf("failed to delete students: %w", err)
	}

	deleted := make(map[string]bool, len(ids))
	for _, chunk := range result.Chunks {
		if !chunk.Committed {
			continue
		}
		for _, pos := range chunk.Positions {
			deleted[ids[pos]] = true
		}
	}
	if err := s.dropEnrolments(ctx, deleted); err != nil {
		return result, err
	}
	return result, nil
}

func (s *Service) dropEnrolments(ctx context.Context, deleted map[string]bool) error {
	if len(deleted) == 0 {
		return nil
	}
	subjects, err := s.Cache.Subjects(ctx)
	if err != nil {
		return fmt.Errorf("failed to load subjects: %w", err)
	}

	var ops []store.Op
	for _, subject := range subjects {
		kept := slices.DeleteFunc(slices.Clone(subject.EnrolledStudents), func(id string) bool { return deleted[id] })
		if len(kept) == len(subject.EnrolledStudents) {
			continue
		}
		subject.EnrolledStudents = kept
		ops = append(ops, store.UpdateSubject(subject))
	}
	if len(ops) == 0 {
		return nil
	}

	result, err := s.Batch.Apply(ctx, ops)
	if err != nil {
		return fmt.Errorf("failed to update enrolments: %w", err)
	}
	return firstFailure(result)
}
