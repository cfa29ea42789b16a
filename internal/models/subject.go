package models

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
)

type SubjectType string

const (
	SubjectGeneral  SubjectType = "general"
	SubjectElective SubjectType = "elective"
)

type SubjectConfig struct {
	ID               string      `json:"id" bson:"_id" validate:"required"`
	Name             string      `json:"name" bson:"name" validate:"required"`
	MaxTA            float64     `json:"max_ta" bson:"max_ta" validate:"gte=0"`
	MaxCE            float64     `json:"max_ce" bson:"max_ce" validate:"gte=0"`
	PassingTotal     float64     `json:"passing_total" bson:"passing_total" validate:"gte=0"`
	Type             SubjectType `json:"subject_type" bson:"subject_type" validate:"oneof=general elective"`
	TargetClasses    []string    `json:"target_classes" bson:"target_classes"`
	EnrolledStudents []string    `json:"enrolled_students,omitempty" bson:"enrolled_students,omitempty"`
}

// SubjectInput carries the administrator-editable fields of a subject.
type SubjectInput struct {
	Name          string      `json:"name"`
	MaxTA         float64     `json:"max_ta"`
	MaxCE         float64     `json:"max_ce"`
	PassingTotal  float64     `json:"passing_total"`
	Type          SubjectType `json:"subject_type"`
	TargetClasses []string    `json:"target_classes"`
}

// NewSubjectConfig builds a validated subject with a fresh id.
func NewSubjectConfig(in SubjectInput) (SubjectConfig, error) {
	return SubjectConfig{ID: uuid.NewString()}.WithInput(in)
}

// WithInput returns a copy of the subject with the editable fields replaced.
// Enrolment is kept as is.
func (s SubjectConfig) WithInput(in SubjectInput) (SubjectConfig, error) {
	out := s
	out.Name = strings.TrimSpace(in.Name)
	out.MaxTA = in.MaxTA
	out.MaxCE = in.MaxCE
	out.PassingTotal = in.PassingTotal
	out.Type = in.Type
	if out.Type == "" {
		out.Type = SubjectGeneral
	}
	out.TargetClasses = normalizeSet(in.TargetClasses)
	if out.Type != SubjectElective {
		out.EnrolledStudents = nil
	}
	if err := out.Validate(); err != nil {
		return SubjectConfig{}, err
	}
	return out, nil
}

func (s *SubjectConfig) Validate() error {
	return validateStruct(s)
}

func (s SubjectConfig) IsElective() bool {
	return s.Type == SubjectElective
}

func (s SubjectConfig) TargetsClass(className string) bool {
	if len(s.TargetClasses) == 0 {
		return true
	}
	return slices.Contains(s.TargetClasses, className)
}

func (s SubjectConfig) IsEnrolled(studentID string) bool {
	return slices.Contains(s.EnrolledStudents, studentID)
}

// AppliesTo tells whether marks for this subject may be recorded for the student.
func (s SubjectConfig) AppliesTo(student StudentRecord) bool {
	if s.IsElective() {
		return s.IsEnrolled(student.ID)
	}
	return s.TargetsClass(student.ClassName)
}

// Enroll returns a copy with the students added. Only elective subjects
// take enrolments.
func (s SubjectConfig) Enroll(studentIDs ...string) (SubjectConfig, error) {
	if !s.IsElective() {
		return SubjectConfig{}, &ConsistencyError{
			Reason: fmt.Sprintf("subject %s (%s) is not an elective", s.ID, s.Name),
		}
	}
	out := s
	out.EnrolledStudents = normalizeSet(append(slices.Clone(s.EnrolledStudents), studentIDs...))
	return out, nil
}

// Catalogue indexes subjects by id.
type Catalogue map[string]SubjectConfig

func NewCatalogue(subjects []SubjectConfig) Catalogue {
	c := make(Catalogue, len(subjects))
	for _, s := range subjects {
		c[s.ID] = s
	}
	return c
}

// IDs returns subject ids sorted by subject name, then id.
func (c Catalogue) IDs() []string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		if n := strings.Compare(c[a].Name, c[b].Name); n != 0 {
			return n
		}
		return strings.Compare(a, b)
	})
	return ids
}

func normalizeSet(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
