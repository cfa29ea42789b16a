package models

import (
	"maps"
	"strings"

	"github.com/google/uuid"
)

type Semester string

const (
	SemesterOdd  Semester = "Odd"
	SemesterEven Semester = "Even"
)

// NormalizeSemester maps free text onto a semester: Even only on an explicit
// match, Odd otherwise.
func NormalizeSemester(raw string) Semester {
	if strings.EqualFold(strings.TrimSpace(raw), string(SemesterEven)) {
		return SemesterEven
	}
	return SemesterOdd
}

func (s Semester) Valid() bool {
	return s == SemesterOdd || s == SemesterEven
}

type MarkStatus string

const (
	StatusPending MarkStatus = "Pending"
	StatusPassed  MarkStatus = "Passed"
	StatusFailed  MarkStatus = "Failed"
)

// SubjectMark is produced by the mark evaluator only.
type SubjectMark struct {
	TA     Score      `json:"ta" bson:"ta"`
	CE     Score      `json:"ce" bson:"ce"`
	Total  float64    `json:"total" bson:"total"`
	Status MarkStatus `json:"status" bson:"status"`
}

type PerformanceLevel string

const (
	LevelOutstanding PerformanceLevel = "Outstanding"
	LevelExcellent   PerformanceLevel = "Excellent"
	LevelVeryGood    PerformanceLevel = "Very Good"
	LevelBPlusGood   PerformanceLevel = "B+ Good"
	LevelBGood       PerformanceLevel = "B Good"
	LevelAverage     PerformanceLevel = "Average"
	LevelFailed      PerformanceLevel = "Failed"
)

type StudentRecord struct {
	ID               string                 `json:"id" bson:"_id" validate:"required"`
	AdmissionNo      string                 `json:"admission_no" bson:"admission_no" validate:"required"`
	Name             string                 `json:"name" bson:"name" validate:"required"`
	ClassName        string                 `json:"class_name" bson:"class_name" validate:"required"`
	Semester         Semester               `json:"semester" bson:"semester" validate:"oneof=Odd Even"`
	Marks            map[string]SubjectMark `json:"marks" bson:"marks"`
	GrandTotal       float64                `json:"grand_total" bson:"grand_total"`
	Average          float64                `json:"average" bson:"average"`
	Rank             int                    `json:"rank,omitempty" bson:"rank,omitempty"`
	PerformanceLevel PerformanceLevel       `json:"performance_level" bson:"performance_level"`
	ImportRowNumber  int64                  `json:"import_row_number,omitempty" bson:"import_row_number,omitempty"`
}

type StudentInput struct {
	AdmissionNo string `json:"admission_no"`
	Name        string `json:"name"`
	ClassName   string `json:"class_name"`
	Semester    string `json:"semester"`
}

// NewStudentRecord builds a validated record with no marks. Derived fields
// hold the aggregate of an empty mark sheet.
func NewStudentRecord(in StudentInput) (StudentRecord, error) {
	s := StudentRecord{
		ID:               uuid.NewString(),
		AdmissionNo:      strings.TrimSpace(in.AdmissionNo),
		Name:             strings.TrimSpace(in.Name),
		ClassName:        strings.TrimSpace(in.ClassName),
		Semester:         NormalizeSemester(in.Semester),
		Marks:            map[string]SubjectMark{},
		PerformanceLevel: LevelFailed,
	}
	if err := s.Validate(); err != nil {
		return StudentRecord{}, err
	}
	return s, nil
}

func (s *StudentRecord) Validate() error {
	return validateStruct(s)
}

// Clone returns a copy that shares no mark map with s.
func (s StudentRecord) Clone() StudentRecord {
	out := s
	out.Marks = maps.Clone(s.Marks)
	if out.Marks == nil {
		out.Marks = map[string]SubjectMark{}
	}
	return out
}

// WithMark returns a copy with the subject mark replaced. Derived totals are
// not refreshed here; the caller must recompute before persisting.
func (s StudentRecord) WithMark(subjectID string, mark SubjectMark) StudentRecord {
	out := s.Clone()
	out.Marks[subjectID] = mark
	return out
}

func (s StudentRecord) WithoutMark(subjectID string) StudentRecord {
	out := s.Clone()
	delete(out.Marks, subjectID)
	return out
}

func (s StudentRecord) Mark(subjectID string) (SubjectMark, bool) {
	m, ok := s.Marks[subjectID]
	return m, ok
}
