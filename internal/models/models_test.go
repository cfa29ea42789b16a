package models

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScore(t *testing.T) {
	tests := []struct {
		raw     string
		want    Score
		wantErr bool
	}{
		{"", Empty(), false},
		{"   ", Empty(), false},
		{"17", Numeric(17), false},
		{" 12.5 ", Numeric(12.5), false},
		{"Absent", Absent(), false},
		{"ab", Absent(), false},
		{"A", Absent(), false},
		{"seventeen", Empty(), true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseScore(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScoreJSON(t *testing.T) {
	var mark SubjectMark
	require.NoError(t, json.Unmarshal([]byte(`{"ta":15,"ce":"Absent","total":15,"status":"Failed"}`), &mark))
	assert.Equal(t, Numeric(15), mark.TA)
	assert.True(t, mark.CE.IsAbsent())
	assert.Equal(t, 0.0, mark.CE.Value())

	var empty SubjectMark
	require.NoError(t, json.Unmarshal([]byte(`{"ta":null,"ce":""}`), &empty))
	assert.True(t, empty.TA.IsEmpty())
	assert.True(t, empty.CE.IsEmpty())

	data, err := json.Marshal(SubjectMark{TA: Numeric(7.5), CE: Absent(), Status: StatusFailed})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ta":7.5,"ce":"Absent","total":0,"status":"Failed"}`, string(data))

	var bad Score
	assert.Error(t, json.Unmarshal([]byte(`true`), &bad))
}

func TestNewStudentRecord(t *testing.T) {
	s, err := NewStudentRecord(StudentInput{AdmissionNo: " A1 ", Name: "Asha", ClassName: "I BA", Semester: "even"})
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "A1", s.AdmissionNo)
	assert.Equal(t, SemesterEven, s.Semester)
	assert.Equal(t, LevelFailed, s.PerformanceLevel)

	_, err = NewStudentRecord(StudentInput{Name: "Asha", ClassName: "I BA"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestWithMarkDoesNotShareMarks(t *testing.T) {
	s, err := NewStudentRecord(StudentInput{AdmissionNo: "A1", Name: "Asha", ClassName: "I BA"})
	require.NoError(t, err)

	updated := s.WithMark("eng", SubjectMark{TA: Numeric(10)})
	_, ok := s.Mark("eng")
	assert.False(t, ok)
	_, ok = updated.Mark("eng")
	assert.True(t, ok)
	assert.Empty(t, updated.WithoutMark("eng").Marks)
}

func TestSubjectAppliesTo(t *testing.T) {
	general, err := NewSubjectConfig(SubjectInput{Name: "English", MaxTA: 20, MaxCE: 80, TargetClasses: []string{"I BA", " I BA "}})
	require.NoError(t, err)
	assert.Equal(t, []string{"I BA"}, general.TargetClasses)

	student := StudentRecord{ID: "s1", ClassName: "I BA"}
	other := StudentRecord{ID: "s2", ClassName: "II BA"}
	assert.True(t, general.AppliesTo(student))
	assert.False(t, general.AppliesTo(other))

	_, err = general.Enroll("s1")
	assert.True(t, errors.Is(err, ErrConsistency))

	elective, err := NewSubjectConfig(SubjectInput{Name: "Music", MaxTA: 10, MaxCE: 40, Type: SubjectElective})
	require.NoError(t, err)
	assert.False(t, elective.AppliesTo(student))
	elective, err = elective.Enroll("s1", "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, elective.EnrolledStudents)
	assert.True(t, elective.AppliesTo(student))
}

func TestCatalogueIDsOrderedByName(t *testing.T) {
	c := NewCatalogue([]SubjectConfig{
		{ID: "3", Name: "Zoology"},
		{ID: "2", Name: "English"},
		{ID: "1", Name: "English"},
	})
	assert.Equal(t, []string{"1", "2", "3"}, c.IDs())
}

func TestClassRegistry(t *testing.T) {
	r := NewClassRegistry(nil, []string{"MA Music"})
	assert.True(t, r.Known("I BA"))
	assert.True(t, r.Known(" MA Music "))
	assert.False(t, r.Known(""))
	assert.False(t, r.Known("Mars"))

	assert.True(t, r.AddCustom("Mars"))
	assert.False(t, r.AddCustom("Mars"))
	assert.False(t, r.AddCustom("I BA"))
	assert.Equal(t, []string{"MA Music", "Mars"}, r.Custom())
	assert.Len(t, r.All(), len(DefaultStandardClasses)+2)
}
