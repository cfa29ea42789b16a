package importer

import (
	"fmt"
	"strings"
	"time"

	"github.com/shrimpsizemoose/marksheet/internal/models"
	"github.com/shrimpsizemoose/marksheet/internal/scoring"
)

// Candidate is an accepted row turned into a new student record.
// Electives lists the elective subjects the row carries marks for; the
// student must be enrolled in them alongside the insert.
type Candidate struct {
	Row       int
	Student   models.StudentRecord
	Electives []string
}

// RowError explains why a row was rejected. Row is 1-based and counts data
// rows only.
type RowError struct {
	Row         int    `json:"row"`
	AdmissionNo string `json:"admission_no,omitempty"`
	Message     string `json:"message"`
	Err         error  `json:"-"`
}

type Outcome struct {
	Accepted   []Candidate
	Errors     []RowError
	BatchStart int64
}

type Reconciler struct {
	classes *models.ClassRegistry
	now     func() time.Time
}

type ReconcilerOption func(*Reconciler)

func WithNow(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) { r.now = now }
}

func NewReconciler(classes *models.ClassRegistry, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{classes: classes, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// BatchStart is the first import row number of a new batch: the current
// time in milliseconds, raised past every number already stored so a new
// batch never interleaves with an earlier one.
func BatchStart(now time.Time, existing []models.StudentRecord) int64 {
	start := now.UnixMilli()
	for _, s := range existing {
		if s.ImportRowNumber >= start {
			start = s.ImportRowNumber + 1
		}
	}
	return start
}

// Reconcile validates rows against the stored students and each other.
// Rejected rows never abort the rest of the file. Admission numbers go to
// the first row that is accepted with them: a rejected row reserves
// nothing, and later repeats of an accepted number are rejected with the
// row that holds it.
func (r *Reconciler) Reconcile(rows []Row, existing []models.StudentRecord, catalogue models.Catalogue) Outcome {
	out := Outcome{BatchStart: BatchStart(r.now(), existing)}

	// admission number -> accepted row, 0 for stored students
	taken := make(map[string]int, len(existing)+len(rows))
	for _, s := range existing {
		taken[s.AdmissionNo] = 0
	}

	for i, row := range rows {
		student, electives, err := r.student(row, catalogue)
		if err == nil {
			if holder, dup := taken[student.AdmissionNo]; dup {
				err = duplicateError(student.AdmissionNo, holder)
			}
		}
		if err != nil {
			out.Errors = append(out.Errors, RowError{
				Row:         i + 1,
				AdmissionNo: row[ColAdmissionNo],
				Message:     err.Error(),
				Err:         err,
			})
			continue
		}

		taken[student.AdmissionNo] = i + 1
		student.ImportRowNumber = out.BatchStart + int64(i)
		out.Accepted = append(out.Accepted, Candidate{Row: i + 1, Student: student, Electives: electives})
	}
	return out
}

func duplicateError(admissionNo string, holder int) error {
	if holder == 0 {
		return models.NewValidationError(ColAdmissionNo, "admission number %s already exists", admissionNo)
	}
	return models.NewValidationError(ColAdmissionNo, "admission number %s is already used by row %d", admissionNo, holder)
}

func (r *Reconciler) student(row Row, catalogue models.Catalogue) (models.StudentRecord, []string, error) {
	for _, column := range []string{ColAdmissionNo, ColName, ColClassName} {
		if strings.TrimSpace(row[column]) == "" {
			return models.StudentRecord{}, nil, models.NewValidationError(column, "%s is required", column)
		}
	}

	class := strings.TrimSpace(row[ColClassName])
	if r.classes != nil && !r.classes.Known(class) {
		return models.StudentRecord{}, nil, models.NewValidationError(ColClassName, "unknown class %q", class)
	}

	student, err := models.NewStudentRecord(models.StudentInput{
		AdmissionNo: row[ColAdmissionNo],
		Name:        row[ColName],
		ClassName:   class,
		Semester:    row[ColSemester],
	})
	if err != nil {
		return models.StudentRecord{}, nil, err
	}

	marks, err := parseMarks(row, catalogue)
	if err != nil {
		return models.StudentRecord{}, nil, err
	}

	var electives []string
	for _, subjectID := range catalogue.IDs() {
		if _, ok := marks[subjectID]; !ok {
			continue
		}
		subject := catalogue[subjectID]
		if !subject.TargetsClass(class) {
			return models.StudentRecord{}, nil, &models.ConsistencyError{
				Reason: fmt.Sprintf("subject %s is not taught to class %s", subject.Name, class),
			}
		}
		if subject.IsElective() {
			electives = append(electives, subjectID)
		}
	}

	student.Marks = marks
	return scoring.Recompute(student, catalogue), electives, nil
}

// parseMarks reads the ta and ce columns of every subject and evaluates
// them. Subjects with both cells blank get no mark.
func parseMarks(row Row, catalogue models.Catalogue) (map[string]models.SubjectMark, error) {
	type pair struct{ ta, ce models.Score }
	pairs := make(map[string]pair)

	for column, value := range row {
		subjectID, suffix, ok := SubjectColumn(column)
		if !ok || (suffix != SuffixTA && suffix != SuffixCE) || value == "" {
			continue
		}
		if _, known := catalogue[subjectID]; !known {
			return nil, models.NewValidationError(column, "unknown subject %q", subjectID)
		}
		score, err := models.ParseScore(value)
		if err != nil {
			return nil, models.NewValidationError(column, "%v", err)
		}
		p := pairs[subjectID]
		if suffix == SuffixTA {
			p.ta = score
		} else {
			p.ce = score
		}
		pairs[subjectID] = p
	}

	marks := make(map[string]models.SubjectMark, len(pairs))
	for subjectID, p := range pairs {
		subject := catalogue[subjectID]
		if err := scoring.CheckRange(subject, p.ta, p.ce); err != nil {
			return nil, fmt.Errorf("%s: %w", subject.Name, err)
		}
		marks[subjectID] = scoring.Evaluate(subject, p.ta, p.ce)
	}
	return marks, nil
}
