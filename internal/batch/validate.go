package batch

import (
	"fmt"
	"strings"

	"github.com/shrimpsizemoose/marksheet/internal/cache"
	"github.com/shrimpsizemoose/marksheet/internal/models"
	"github.com/shrimpsizemoose/marksheet/internal/scoring"
	"github.com/shrimpsizemoose/marksheet/internal/store"
)

// validator checks ops against the current records and against earlier ops
// of the same batch.
type validator struct {
	catalogue models.Catalogue
	students  map[string]models.StudentRecord
	subjects  map[string]bool

	// admission number -> student id, kept current as ops are accepted
	admissions map[string]string
	classes    map[string]string
}

func newValidator(snap *cache.Snapshot) *validator {
	v := &validator{
		catalogue:  snap.Catalogue(),
		students:   make(map[string]models.StudentRecord, len(snap.Students)),
		subjects:   make(map[string]bool, len(snap.Subjects)),
		admissions: make(map[string]string, len(snap.Students)),
		classes:    make(map[string]string, len(snap.Students)),
	}
	for _, s := range snap.Students {
		v.students[s.ID] = s
		v.admissions[s.AdmissionNo] = s.ID
		v.classes[s.ID] = s.ClassName
	}
	for _, s := range snap.Subjects {
		v.subjects[s.ID] = true
	}
	return v
}

// classOf is the class the student had before the batch.
func (v *validator) classOf(id string) string {
	return v.classes[id]
}

// check returns the op to commit, with derived student fields recomputed.
func (v *validator) check(op store.Op) (store.Op, error) {
	if strings.TrimSpace(op.ID) == "" {
		return op, models.NewValidationError("id", "id is required")
	}
	switch op.Collection {
	case store.Students:
		return v.checkStudent(op)
	case store.Subjects:
		return v.checkSubject(op)
	default:
		return op, models.NewValidationError("collection", "unknown collection %q", op.Collection)
	}
}

func (v *validator) checkStudent(op store.Op) (store.Op, error) {
	prev, exists := v.students[op.ID]

	switch op.Kind {
	case store.OpDelete:
		if !exists {
			return op, &models.NotFoundError{Kind: "student", ID: op.ID}
		}
		if op.ClassName == "" {
			op.ClassName = prev.ClassName
		}
		delete(v.students, op.ID)
		delete(v.admissions, prev.AdmissionNo)
		return op, nil
	case store.OpInsert:
		if exists {
			return op, &models.ConsistencyError{Reason: fmt.Sprintf("student %s already exists", op.ID)}
		}
	case store.OpUpdate:
		if !exists {
			return op, &models.NotFoundError{Kind: "student", ID: op.ID}
		}
	default:
		return op, models.NewValidationError("kind", "unknown op kind %q", op.Kind)
	}

	if op.Student == nil {
		return op, models.NewValidationError("student", "record is required for %s", op.Kind)
	}
	if op.Student.ID != op.ID {
		return op, models.NewValidationError("id", "record id %q does not match op id %q", op.Student.ID, op.ID)
	}
	if err := op.Student.Validate(); err != nil {
		return op, err
	}
	if owner, taken := v.admissions[op.Student.AdmissionNo]; taken && owner != op.ID {
		return op, models.NewValidationError("admission_no", "admission number %s is already in use", op.Student.AdmissionNo)
	}
	for subjectID, mark := range op.Student.Marks {
		subject, ok := v.catalogue[subjectID]
		if !ok {
			continue
		}
		if err := scoring.CheckRange(subject, mark.TA, mark.CE); err != nil {
			return op, fmt.Errorf("%s: %w", subjectID, err)
		}
	}

	var stored *models.StudentRecord
	if exists {
		stored = &prev
	}
	record := settleMarks(*op.Student, stored, v.catalogue)
	op.Student = &record
	op.ClassName = record.ClassName

	if exists {
		delete(v.admissions, prev.AdmissionNo)
	}
	v.admissions[record.AdmissionNo] = record.ID
	v.students[record.ID] = record
	return op, nil
}

func (v *validator) checkSubject(op store.Op) (store.Op, error) {
	switch op.Kind {
	case store.OpDelete:
		if !v.subjects[op.ID] {
			return op, &models.NotFoundError{Kind: "subject", ID: op.ID}
		}
		delete(v.subjects, op.ID)
		delete(v.catalogue, op.ID)
		return op, nil
	case store.OpInsert, store.OpUpdate:
	default:
		return op, models.NewValidationError("kind", "unknown op kind %q", op.Kind)
	}

	if op.Subject == nil {
		return op, models.NewValidationError("subject", "config is required for %s", op.Kind)
	}
	if op.Subject.ID != op.ID {
		return op, models.NewValidationError("id", "config id %q does not match op id %q", op.Subject.ID, op.ID)
	}
	if err := op.Subject.Validate(); err != nil {
		return op, err
	}
	v.subjects[op.ID] = true
	v.catalogue[op.ID] = *op.Subject
	return op, nil
}

// settleMarks evaluates every mark whose components differ from the stored
// record and recomputes the aggregate. Marks with unchanged components keep
// the status the writer supplied, so a subject edit reaches them only
// through an explicit recompute pass.
func settleMarks(record models.StudentRecord, stored *models.StudentRecord, catalogue models.Catalogue) models.StudentRecord {
	out := record.Clone()
	for subjectID, mark := range out.Marks {
		subject, known := catalogue[subjectID]
		var prev models.SubjectMark
		var had bool
		if stored != nil {
			prev, had = stored.Mark(subjectID)
		}
		if known && (!had || prev.TA != mark.TA || prev.CE != mark.CE) {
			out.Marks[subjectID] = scoring.Evaluate(subject, mark.TA, mark.CE)
			continue
		}
		mark.Total = mark.TA.Value() + mark.CE.Value()
		out.Marks[subjectID] = mark
	}
	return scoring.Recompute(out, catalogue)
}
