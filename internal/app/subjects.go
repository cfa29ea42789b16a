package app

import (
	"context"
	"fmt"

	"github.com/shrimpsizemoose/marksheet/internal/models"
	"github.com/shrimpsizemoose/marksheet/internal/scoring"
	"github.com/shrimpsizemoose/marksheet/internal/store"
)

func (s *Service) ListSubjects(ctx context.Context) ([]models.SubjectConfig, error) {
	catalogue, err := s.Cache.Catalogue(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list subjects: %w", err)
	}
	out := make([]models.SubjectConfig, 0, len(catalogue))
	for _, id := range catalogue.IDs() {
		out = append(out, catalogue[id])
	}
	return out, nil
}

func (s *Service) GetSubject(ctx context.Context, id string) (*models.SubjectConfig, error) {
	catalogue, err := s.Cache.Catalogue(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get subject: %w", err)
	}
	subject, ok := catalogue[id]
	if !ok {
		return nil, &models.NotFoundError{Kind: "subject", ID: id}
	}
	return &subject, nil
}

func (s *Service) checkTargetClasses(subject models.SubjectConfig) error {
	for _, class := range subject.TargetClasses {
		if !s.Classes.Known(class) {
			return models.NewValidationError("target_classes", "unknown class %q", class)
		}
	}
	return nil
}

func (s *Service) CreateSubject(ctx context.Context, in models.SubjectInput) (*models.SubjectConfig, error) {
	subject, err := models.NewSubjectConfig(in)
	if err != nil {
		return nil, err
	}
	if err := s.checkTargetClasses(subject); err != nil {
		return nil, err
	}

	op := store.UpdateSubject(subject)
	op.Kind = store.OpInsert
	result, err := s.Batch.Apply(ctx, []store.Op{op})
	if err != nil {
		return nil, fmt.Errorf("failed to create subject: %w", err)
	}
	if err := singleItem(result); err != nil {
		return nil, err
	}
	return &subject, nil
}

// UpdateSubject replaces the editable fields. Stored marks keep their
// status until RecalculateAll runs. Limits that would leave a stored mark
// out of range are rejected before anything is written.
func (s *Service) UpdateSubject(ctx context.Context, id string, in models.SubjectInput) (*models.SubjectConfig, error) {
	snap, err := s.Cache.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}

	current, ok := snap.Catalogue()[id]
	if !ok {
		return nil, &models.NotFoundError{Kind: "subject", ID: id}
	}
	updated, err := current.WithInput(in)
	if err != nil {
		return nil, err
	}
	if err := s.checkTargetClasses(updated); err != nil {
		return nil, err
	}

	for _, student := range snap.Students {
		mark, ok := student.Mark(id)
		if !ok {
			continue
		}
		if err := scoring.CheckRange(updated, mark.TA, mark.CE); err != nil {
			return nil, &models.ConsistencyError{
				Reason: fmt.Sprintf("stored marks of %s do not fit the new limits: %v", student.AdmissionNo, err),
			}
		}
	}

	result, err := s.Batch.Apply(ctx, []store.Op{store.UpdateSubject(updated)})
	if err != nil {
		return nil, fmt.Errorf("failed to update subject: %w", err)
	}
	if err := singleItem(result); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteSubject removes the subject and its marks from every student.
func (s *Service) DeleteSubject(ctx context.Context, id string) error {
	snap, err := s.Cache.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to load records: %w", err)
	}
	catalogue := snap.Catalogue()
	if _, ok := catalogue[id]; !ok {
		return &models.NotFoundError{Kind: "subject", ID: id}
	}
	delete(catalogue, id)

	ops := []store.Op{store.DeleteSubject(id)}
	for _, student := range snap.Students {
		if _, ok := student.Mark(id); !ok {
			continue
		}
		ops = append(ops, store.UpdateStudent(scoring.Recompute(student.WithoutMark(id), catalogue)))
	}

	result, err := s.Batch.Apply(ctx, ops)
	if err != nil {
		return fmt.Errorf("failed to delete subject: %w", err)
	}
	return firstFailure(result)
}

// EnrollStudents adds students to an elective. Every student must exist and
// belong to a class the elective targets.
func (s *Service) EnrollStudents(ctx context.Context, subjectID string, studentIDs []string) (*models.SubjectConfig, error) {
	snap, err := s.Cache.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	subject, ok := snap.Catalogue()[subjectID]
	if !ok {
		return nil, &models.NotFoundError{Kind: "subject", ID: subjectID}
	}

	classOf := make(map[string]string, len(snap.Students))
	for _, st := range snap.Students {
		classOf[st.ID] = st.ClassName
	}
	for _, id := range studentIDs {
		class, ok := classOf[id]
		if !ok {
			return nil, &models.NotFoundError{Kind: "student", ID: id}
		}
		if !subject.TargetsClass(class) {
			return nil, &models.ConsistencyError{
				Reason: fmt.Sprintf("elective %s is not offered to class %s", subject.Name, class),
			}
		}
	}

	enrolled, err := subject.Enroll(studentIDs...)
	if err != nil {
		return nil, err
	}

	result, err := s.Batch.Apply(ctx, []store.Op{store.UpdateSubject(enrolled)})
	if err != nil {
		return nil, fmt.Errorf("failed to save enrolment: %w", err)
	}
	if err := singleItem(result); err != nil {
		return nil, err
	}
	return &enrolled, nil
}
