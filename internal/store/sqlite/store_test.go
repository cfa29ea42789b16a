// internal/store/sqlite/store_test.go
package sqlite

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrimpsizemoose/marksheet/internal/models"
	"github.com/shrimpsizemoose/marksheet/internal/store"
)

// setupTestDB creates an in-memory SQLite database with the real migrations
func setupTestDB(t *testing.T) (*SQLiteStore, func()) {
	s, err := NewSQLiteStore(":memory:", "../../../migrations")
	require.NoError(t, err, "Failed to create store")

	cleanup := func() {
		err := s.Close()
		require.NoError(t, err, "Failed to close database")
	}

	return s, cleanup
}

func newStudent(id, admissionNo, className string) models.StudentRecord {
	return models.StudentRecord{
		ID:          id,
		AdmissionNo: admissionNo,
		Name:        "Student " + id,
		ClassName:   className,
		Semester:    models.SemesterOdd,
		Marks: map[string]models.SubjectMark{
			"eng": {TA: models.Numeric(60), CE: models.Absent(), Total: 60, Status: models.StatusFailed},
		},
		GrandTotal:       60,
		Average:          60,
		PerformanceLevel: models.LevelBGood,
	}
}

func TestMain(m *testing.M) {
	log.Println("Starting SQLite store tests...")
	code := m.Run()
	log.Println("Finished SQLite store tests")
	os.Exit(code)
}

func TestStudentRoundTrip(t *testing.T) {
	s, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	student := newStudent("s1", "A-001", "I BA")

	t.Run("put student", func(t *testing.T) {
		require.NoError(t, s.PutStudent(ctx, student))
	})

	t.Run("get student", func(t *testing.T) {
		got, err := s.GetStudent(ctx, "s1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, student, *got)
		assert.True(t, got.Marks["eng"].CE.IsAbsent())
	})

	t.Run("get missing student", func(t *testing.T) {
		got, err := s.GetStudent(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("put overwrites", func(t *testing.T) {
		student.Rank = 3
		require.NoError(t, s.PutStudent(ctx, student))
		got, err := s.GetStudent(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, 3, got.Rank)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.DeleteStudent(ctx, "s1"))
		got, err := s.GetStudent(ctx, "s1")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestFindStudents(t *testing.T) {
	s, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, s.PutStudent(ctx, newStudent("s1", "A-001", "I BA")))
	require.NoError(t, s.PutStudent(ctx, newStudent("s2", "A-002", "I BA")))
	require.NoError(t, s.PutStudent(ctx, newStudent("s3", "A-003", "II BA")))

	t.Run("by class", func(t *testing.T) {
		got, err := s.FindStudents(ctx, store.FieldClassName, "I BA")
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("by admission number", func(t *testing.T) {
		got, err := s.FindStudents(ctx, store.FieldAdmissionNo, "A-003")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "s3", got[0].ID)
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := s.FindStudents(ctx, "doc", "x")
		assert.Error(t, err)
	})
}

func TestSubjectOperations(t *testing.T) {
	s, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	subject := models.SubjectConfig{
		ID: "music", Name: "Music", MaxTA: 80, MaxCE: 20,
		Type: models.SubjectElective, TargetClasses: []string{"I BA"}, EnrolledStudents: []string{"s1"},
	}
	require.NoError(t, s.PutSubject(ctx, subject))

	got, err := s.GetSubject(ctx, "music")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, subject, *got)

	all, err := s.ListSubjects(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, s.DeleteSubject(ctx, "music"))
	got, err = s.GetSubject(ctx, "music")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCommitBatch(t *testing.T) {
	s, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	t.Run("commits all ops", func(t *testing.T) {
		ops := []store.Op{
			store.InsertStudent(newStudent("s1", "A-001", "I BA")),
			store.InsertStudent(newStudent("s2", "A-002", "I BA")),
		}
		require.NoError(t, s.CommitBatch(ctx, ops))

		all, err := s.ListStudents(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("rolls back the whole chunk on failure", func(t *testing.T) {
		ops := []store.Op{
			store.InsertStudent(newStudent("s3", "A-003", "I BA")),
			// duplicate primary key
			store.InsertStudent(newStudent("s1", "A-099", "I BA")),
		}
		require.Error(t, s.CommitBatch(ctx, ops))

		got, err := s.GetStudent(ctx, "s3")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("rejects oversized batches", func(t *testing.T) {
		ops := make([]store.Op, store.MaxBatchOps+1)
		for i := range ops {
			ops[i] = store.InsertStudent(newStudent(fmt.Sprintf("x%d", i), fmt.Sprintf("X-%d", i), "I BA"))
		}
		assert.ErrorIs(t, s.CommitBatch(ctx, ops), store.ErrBatchTooLarge)
	})

	t.Run("deletes", func(t *testing.T) {
		require.NoError(t, s.CommitBatch(ctx, []store.Op{store.DeleteStudent("s1", "I BA"), store.DeleteStudent("s2", "I BA")}))
		all, err := s.ListStudents(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
	})
}
