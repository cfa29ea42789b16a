package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/shrimpsizemoose/marksheet/internal/models"
)

// DocumentStore is the persistent collection store behind the engine. Get
// methods return nil, nil for missing documents.
type DocumentStore interface {
	Close() error

	ListStudents(ctx context.Context) ([]models.StudentRecord, error)
	GetStudent(ctx context.Context, id string) (*models.StudentRecord, error)
	FindStudents(ctx context.Context, field, value string) ([]models.StudentRecord, error)
	PutStudent(ctx context.Context, student models.StudentRecord) error
	DeleteStudent(ctx context.Context, id string) error

	ListSubjects(ctx context.Context) ([]models.SubjectConfig, error)
	GetSubject(ctx context.Context, id string) (*models.SubjectConfig, error)
	PutSubject(ctx context.Context, subject models.SubjectConfig) error
	DeleteSubject(ctx context.Context, id string) error

	// CommitBatch applies up to MaxBatchOps operations as one atomic unit.
	CommitBatch(ctx context.Context, ops []Op) error
}

var studentColumns = map[string]string{
	FieldAdmissionNo: "admission_no",
	FieldClassName:   "class_name",
	FieldSemester:    "semester",
}

type documentRow struct {
	ID  string `db:"id"`
	Doc string `db:"doc"`
}

// BaseStore provides common functionality for different DB implementations
type BaseStore struct {
	DB        *sqlx.DB
	Converter func(string) string
}

func (s *BaseStore) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

// ApplyMigrations applies SQL migrations from a directory in name order,
// translating dialect if needed
func (s *BaseStore) ApplyMigrations(dir string, translateSQL func(string) string) error {
	files, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	names := make([]string, 0, len(files))
	for _, file := range files {
		if strings.HasSuffix(file.Name(), ".sql") {
			names = append(names, file.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}

		sql := string(content)
		if translateSQL != nil {
			sql = translateSQL(sql)
		}

		if _, err := s.DB.Exec(sql); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", name, err)
		}
	}

	return nil
}

func (s *BaseStore) ListStudents(ctx context.Context) ([]models.StudentRecord, error) {
	var rows []documentRow
	err := s.DB.SelectContext(ctx, &rows, `SELECT id, doc FROM students ORDER BY class_name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	return decodeAll[models.StudentRecord](rows)
}

func (s *BaseStore) GetStudent(ctx context.Context, id string) (*models.StudentRecord, error) {
	var row documentRow
	err := s.DB.GetContext(ctx, &row, s.Converter(`SELECT id, doc FROM students WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get student %s: %w", id, err)
	}
	var student models.StudentRecord
	if err := json.Unmarshal([]byte(row.Doc), &student); err != nil {
		return nil, fmt.Errorf("failed to decode student %s: %w", id, err)
	}
	return &student, nil
}

func (s *BaseStore) FindStudents(ctx context.Context, field, value string) ([]models.StudentRecord, error) {
	column, ok := studentColumns[field]
	if !ok {
		return nil, fmt.Errorf("students cannot be queried by %q", field)
	}
	var rows []documentRow
	query := s.Converter(fmt.Sprintf(`SELECT id, doc FROM students WHERE %s = ? ORDER BY id`, column))
	if err := s.DB.SelectContext(ctx, &rows, query, value); err != nil {
		return nil, fmt.Errorf("failed to find students by %s: %w", field, err)
	}
	return decodeAll[models.StudentRecord](rows)
}

func (s *BaseStore) PutStudent(ctx context.Context, student models.StudentRecord) error {
	return s.exec(ctx, s.DB, UpdateStudent(student))
}

func (s *BaseStore) DeleteStudent(ctx context.Context, id string) error {
	return s.exec(ctx, s.DB, DeleteStudent(id, ""))
}

func (s *BaseStore) ListSubjects(ctx context.Context) ([]models.SubjectConfig, error) {
	var rows []documentRow
	if err := s.DB.SelectContext(ctx, &rows, `SELECT id, doc FROM subjects ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list subjects: %w", err)
	}
	return decodeAll[models.SubjectConfig](rows)
}

func (s *BaseStore) GetSubject(ctx context.Context, id string) (*models.SubjectConfig, error) {
	var row documentRow
	err := s.DB.GetContext(ctx, &row, s.Converter(`SELECT id, doc FROM subjects WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subject %s: %w", id, err)
	}
	var subject models.SubjectConfig
	if err := json.Unmarshal([]byte(row.Doc), &subject); err != nil {
		return nil, fmt.Errorf("failed to decode subject %s: %w", id, err)
	}
	return &subject, nil
}

func (s *BaseStore) PutSubject(ctx context.Context, subject models.SubjectConfig) error {
	return s.exec(ctx, s.DB, UpdateSubject(subject))
}

func (s *BaseStore) DeleteSubject(ctx context.Context, id string) error {
	return s.exec(ctx, s.DB, DeleteSubject(id))
}

func (s *BaseStore) CommitBatch(ctx context.Context, ops []Op) error {
	if len(ops) > MaxBatchOps {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(ops), MaxBatchOps)
	}

	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin batch: %w", err)
	}
	for i, op := range ops {
		if err := s.exec(ctx, tx, op); err != nil {
			tx.Rollback()
			return fmt.Errorf("batch op %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

func (s *BaseStore) exec(ctx context.Context, db sqlx.ExecerContext, op Op) error {
	var (
		query string
		args  []interface{}
	)

	switch {
	case op.Collection == Students && op.Kind == OpDelete:
		query, args = `DELETE FROM students WHERE id = ?`, []interface{}{op.ID}
	case op.Collection == Subjects && op.Kind == OpDelete:
		query, args = `DELETE FROM subjects WHERE id = ?`, []interface{}{op.ID}
	case op.Collection == Students && op.Student != nil:
		doc, err := json.Marshal(op.Student)
		if err != nil {
			return fmt.Errorf("failed to encode student %s: %w", op.ID, err)
		}
		query = `
			INSERT INTO students (id, admission_no, class_name, semester, doc)
			VALUES (?, ?, ?, ?, ?)`
		if op.Kind == OpUpdate {
			query += `
			ON CONFLICT (id) DO UPDATE SET
			admission_no = excluded.admission_no,
			class_name = excluded.class_name,
			semester = excluded.semester,
			doc = excluded.doc`
		}
		args = []interface{}{op.Student.ID, op.Student.AdmissionNo, op.Student.ClassName, string(op.Student.Semester), string(doc)}
	case op.Collection == Subjects && op.Subject != nil:
		doc, err := json.Marshal(op.Subject)
		if err != nil {
			return fmt.Errorf("failed to encode subject %s: %w", op.ID, err)
		}
		query = `INSERT INTO subjects (id, doc) VALUES (?, ?)`
		if op.Kind == OpUpdate {
			query += ` ON CONFLICT (id) DO UPDATE SET doc = excluded.doc`
		}
		args = []interface{}{op.Subject.ID, string(doc)}
	default:
		return fmt.Errorf("malformed %s op on %s %q", op.Kind, op.Collection, op.ID)
	}

	if _, err := db.ExecContext(ctx, s.Converter(query), args...); err != nil {
		return fmt.Errorf("failed to %s %s %s: %w", op.Kind, op.Collection, op.ID, err)
	}
	return nil
}

func decodeAll[T any](rows []documentRow) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		var doc T
		if err := json.Unmarshal([]byte(row.Doc), &doc); err != nil {
			return nil, fmt.Errorf("failed to decode document %s: %w", row.ID, err)
		}
		out = append(out, doc)
	}
	return out, nil
}
