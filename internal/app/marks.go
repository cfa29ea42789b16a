package app

import (
	"context"
	"fmt"
	"reflect"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/marksheet/internal/batch"
	"github.com/shrimpsizemoose/marksheet/internal/metrics"
	"github.com/shrimpsizemoose/marksheet/internal/models"
	"github.com/shrimpsizemoose/marksheet/internal/scoring"
	"github.com/shrimpsizemoose/marksheet/internal/store"
)

// MarkUpdate carries the components to change. Nil keeps the stored value;
// at least one component must be set. Clearing both removes the mark.
type MarkUpdate struct {
	TA *models.Score `json:"ta,omitempty"`
	CE *models.Score `json:"ce,omitempty"`
}

// MarkEntry is one row of a bulk mark update for a single subject.
type MarkEntry struct {
	StudentID string        `json:"student_id"`
	TA        *models.Score `json:"ta,omitempty"`
	CE        *models.Score `json:"ce,omitempty"`
}

// UpdateMarks changes one subject mark of one student and returns the
// stored record.
func (s *Service) UpdateMarks(ctx context.Context, studentID, subjectID string, upd MarkUpdate) (*models.StudentRecord, error) {
	snap, err := s.Cache.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	catalogue := snap.Catalogue()

	subject, ok := catalogue[subjectID]
	if !ok {
		return nil, &models.NotFoundError{Kind: "subject", ID: subjectID}
	}
	var student *models.StudentRecord
	for i := range snap.Students {
		if snap.Students[i].ID == studentID {
			student = &snap.Students[i]
			break
		}
	}
	if student == nil {
		return nil, &models.NotFoundError{Kind: "student", ID: studentID}
	}

	updated, err := markOp(subject, catalogue, *student, upd.TA, upd.CE)
	if err != nil {
		return nil, err
	}

	result, err := s.Batch.Apply(ctx, []store.Op{store.UpdateStudent(updated)})
	if err != nil {
		return nil, fmt.Errorf("failed to save marks: %w", err)
	}
	if err := singleItem(result); err != nil {
		return nil, err
	}
	observe(subject, updated)
	return s.stored(ctx, updated)
}

// BulkUpdateMarks records marks of one subject for many students. Entries
// are reported by their position in entries.
func (s *Service) BulkUpdateMarks(ctx context.Context, subjectID string, entries []MarkEntry) (*batch.Result, error) {
	snap, err := s.Cache.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	catalogue := snap.Catalogue()

	subject, ok := catalogue[subjectID]
	if !ok {
		return nil, &models.NotFoundError{Kind: "subject", ID: subjectID}
	}
	students := make(map[string]models.StudentRecord, len(snap.Students))
	for _, st := range snap.Students {
		students[st.ID] = st
	}

	ops := make([]store.Op, len(entries))
	rejected := make(map[int]error)
	for i, entry := range entries {
		ops[i] = store.Op{Kind: store.OpUpdate, Collection: store.Students, ID: entry.StudentID}

		student, ok := students[entry.StudentID]
		if !ok {
			rejected[i] = &models.NotFoundError{Kind: "student", ID: entry.StudentID}
			continue
		}
		updated, err := markOp(subject, catalogue, student, entry.TA, entry.CE)
		if err != nil {
			rejected[i] = err
			continue
		}
		// later entries for the same student build on this one
		students[updated.ID] = updated
		ops[i] = store.UpdateStudent(updated)
	}

	result, err := s.applyWithRejections(ctx, ops, rejected)
	if err != nil {
		return nil, fmt.Errorf("failed to save marks: %w", err)
	}
	logger.Info.Printf("Bulk marks for %s: %d saved, %d rejected", subject.Name, result.SuccessCount, len(result.Errors))
	return result, nil
}

func markOp(subject models.SubjectConfig, catalogue models.Catalogue, student models.StudentRecord, ta, ce *models.Score) (models.StudentRecord, error) {
	if !subject.AppliesTo(student) {
		reason := fmt.Sprintf("subject %s is not taught to class %s", subject.Name, student.ClassName)
		if subject.IsElective() {
			reason = fmt.Sprintf("student %s is not enrolled in elective %s", student.AdmissionNo, subject.Name)
		}
		return models.StudentRecord{}, &models.ConsistencyError{Reason: reason}
	}

	if ta == nil && ce == nil {
		return models.StudentRecord{}, models.NewValidationError("marks", "ta or ce is required")
	}

	prev, _ := student.Mark(subject.ID)
	newTA, newCE := prev.TA, prev.CE
	if ta != nil {
		newTA = *ta
	}
	if ce != nil {
		newCE = *ce
	}
	if newTA.IsEmpty() && newCE.IsEmpty() {
		return scoring.Recompute(student.WithoutMark(subject.ID), catalogue), nil
	}
	if err := scoring.CheckRange(subject, newTA, newCE); err != nil {
		return models.StudentRecord{}, err
	}

	mark := scoring.Evaluate(subject, newTA, newCE)
	return scoring.Recompute(student.WithMark(subject.ID, mark), catalogue), nil
}

func observe(subject models.SubjectConfig, student models.StudentRecord) {
	if mark, ok := student.Mark(subject.ID); ok {
		metrics.MarkStatuses.WithLabelValues(subject.ID, string(mark.Status)).Inc()
	}
	metrics.StudentAverage.WithLabelValues(student.ClassName).Observe(student.Average)
}

// RecalculateAll re-evaluates every stored mark with the current subject
// configs, rewrites records whose derived fields drifted and re-ranks every
// class.
func (s *Service) RecalculateAll(ctx context.Context) (*batch.Result, error) {
	snap, err := s.Cache.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	catalogue := snap.Catalogue()

	var ops []store.Op
	classes := make(map[string]bool)
	for _, student := range snap.Students {
		classes[student.ClassName] = true
		fresh := scoring.Reevaluate(student, catalogue)
		if derivedEqual(student, fresh) {
			continue
		}
		ops = append(ops, store.UpdateStudent(fresh))
	}

	result := &batch.Result{}
	if len(ops) > 0 {
		result, err = s.Batch.Apply(ctx, ops)
		if err != nil {
			return nil, fmt.Errorf("failed to save recalculated records: %w", err)
		}
	}

	var all []string
	for _, class := range s.Classes.All() {
		if classes[class] {
			all = append(all, class)
			delete(classes, class)
		}
	}
	// classes no longer registered still get ranked
	for class := range classes {
		all = append(all, class)
	}
	if err := s.Batch.RecomputeClasses(ctx, all); err != nil {
		result.RankingError = err.Error()
	}
	result.ClassesRanked = all

	logger.Info.Printf("Recalculated %d of %d records, ranked %d classes", len(ops), len(snap.Students), len(all))
	return result, nil
}

func derivedEqual(a, b models.StudentRecord) bool {
	return a.GrandTotal == b.GrandTotal &&
		a.Average == b.Average &&
		a.PerformanceLevel == b.PerformanceLevel &&
		reflect.DeepEqual(a.Marks, b.Marks)
}
