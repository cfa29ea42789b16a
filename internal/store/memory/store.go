// Package memory keeps both collections in process memory. It backs tests
// and "memory://" development runs.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/shrimpsizemoose/marksheet/internal/models"
	"github.com/shrimpsizemoose/marksheet/internal/store"
)

type MemoryStore struct {
	mu       sync.RWMutex
	students map[string]models.StudentRecord
	subjects map[string]models.SubjectConfig
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		students: make(map[string]models.StudentRecord),
		subjects: make(map[string]models.SubjectConfig),
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) ListStudents(ctx context.Context) ([]models.StudentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedStudents(func(models.StudentRecord) bool { return true }), nil
}

func (s *MemoryStore) GetStudent(ctx context.Context, id string) (*models.StudentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	student, ok := s.students[id]
	if !ok {
		return nil, nil
	}
	out := student.Clone()
	return &out, nil
}

func (s *MemoryStore) FindStudents(ctx context.Context, field, value string) ([]models.StudentRecord, error) {
	var match func(models.StudentRecord) bool
	switch field {
	case store.FieldAdmissionNo:
		match = func(st models.StudentRecord) bool { return st.AdmissionNo == value }
	case store.FieldClassName:
		match = func(st models.StudentRecord) bool { return st.ClassName == value }
	case store.FieldSemester:
		match = func(st models.StudentRecord) bool { return string(st.Semester) == value }
	default:
		return nil, fmt.Errorf("students cannot be queried by %q", field)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedStudents(match), nil
}

func (s *MemoryStore) PutStudent(ctx context.Context, student models.StudentRecord) error {
	return s.CommitBatch(ctx, []store.Op{store.UpdateStudent(student)})
}

func (s *MemoryStore) DeleteStudent(ctx context.Context, id string) error {
	return s.CommitBatch(ctx, []store.Op{store.DeleteStudent(id, "")})
}

func (s *MemoryStore) ListSubjects(ctx context.Context) ([]models.SubjectConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.SubjectConfig, 0, len(s.subjects))
	for _, subject := range s.subjects {
		out = append(out, subject)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetSubject(ctx context.Context, id string) (*models.SubjectConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subject, ok := s.subjects[id]
	if !ok {
		return nil, nil
	}
	return &subject, nil
}

func (s *MemoryStore) PutSubject(ctx context.Context, subject models.SubjectConfig) error {
	return s.CommitBatch(ctx, []store.Op{store.UpdateSubject(subject)})
}

func (s *MemoryStore) DeleteSubject(ctx context.Context, id string) error {
	return s.CommitBatch(ctx, []store.Op{store.DeleteSubject(id)})
}

// CommitBatch applies the ops to copies of both collections and swaps them
// in only when every op succeeded.
func (s *MemoryStore) CommitBatch(ctx context.Context, ops []store.Op) error {
	if len(ops) > store.MaxBatchOps {
		return fmt.Errorf("%w: %d > %d", store.ErrBatchTooLarge, len(ops), store.MaxBatchOps)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	students := maps.Clone(s.students)
	subjects := maps.Clone(s.subjects)

	for i, op := range ops {
		if err := applyOp(students, subjects, op); err != nil {
			return fmt.Errorf("batch op %d: %w", i, err)
		}
	}

	s.students = students
	s.subjects = subjects
	return nil
}

func applyOp(students map[string]models.StudentRecord, subjects map[string]models.SubjectConfig, op store.Op) error {
	switch {
	case op.Collection == store.Students && op.Kind == store.OpDelete:
		delete(students, op.ID)
	case op.Collection == store.Subjects && op.Kind == store.OpDelete:
		delete(subjects, op.ID)
	case op.Collection == store.Students && op.Student != nil:
		if _, exists := students[op.ID]; exists && op.Kind == store.OpInsert {
			return fmt.Errorf("student %s already exists", op.ID)
		}
		for id, other := range students {
			if id != op.ID && other.AdmissionNo == op.Student.AdmissionNo {
				return fmt.Errorf("admission number %s already in use", op.Student.AdmissionNo)
			}
		}
		students[op.ID] = op.Student.Clone()
	case op.Collection == store.Subjects && op.Subject != nil:
		if _, exists := subjects[op.ID]; exists && op.Kind == store.OpInsert {
			return fmt.Errorf("subject %s already exists", op.ID)
		}
		subjects[op.ID] = *op.Subject
	default:
		return fmt.Errorf("malformed %s op on %s %q", op.Kind, op.Collection, op.ID)
	}
	return nil
}

func (s *MemoryStore) sortedStudents(match func(models.StudentRecord) bool) []models.StudentRecord {
	out := make([]models.StudentRecord, 0, len(s.students))
	for _, st := range s.students {
		if match(st) {
			out = append(out, st.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ClassName != out[j].ClassName {
			return out[i].ClassName < out[j].ClassName
		}
		return out[i].ID < out[j].ID
	})
	return out
}
