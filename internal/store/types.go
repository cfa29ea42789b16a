package store

import (
	"errors"

	"github.com/shrimpsizemoose/marksheet/internal/models"
)

type DatabaseType string

const (
	DBTypePostgres DatabaseType = "postgres"
	DBTypeSQLite   DatabaseType = "sqlite"
	DBTypeMongo    DatabaseType = "mongodb"
	DBTypeMemory   DatabaseType = "memory"
)

type DBConfig struct {
	DSN           string
	Type          DatabaseType
	MigrationsDir string
	Database      string
}

type Collection string

const (
	Students Collection = "students"
	Subjects Collection = "subjects"
)

// MaxBatchOps is the largest number of operations one CommitBatch accepts.
const MaxBatchOps = 500

var ErrBatchTooLarge = errors.New("batch exceeds the operation limit")

// Fields that FindStudents can match on.
const (
	FieldAdmissionNo = "admission_no"
	FieldClassName   = "class_name"
	FieldSemester    = "semester"
)

type OpKind string

const (
	OpInsert OpKind = "insert"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// Op is one write inside a batch. Exactly one of Student and Subject is set
// for inserts and updates; deletes only need ID.
type Op struct {
	Kind       OpKind
	Collection Collection
	ID         string
	Student    *models.StudentRecord
	Subject    *models.SubjectConfig

	// ClassName of the student the op touches, used to find classes that
	// need re-ranking after a delete.
	ClassName string
}

func InsertStudent(s models.StudentRecord) Op {
	return Op{Kind: OpInsert, Collection: Students, ID: s.ID, Student: &s, ClassName: s.ClassName}
}

func UpdateStudent(s models.StudentRecord) Op {
	return Op{Kind: OpUpdate, Collection: Students, ID: s.ID, Student: &s, ClassName: s.ClassName}
}

func DeleteStudent(id, className string) Op {
	return Op{Kind: OpDelete, Collection: Students, ID: id, ClassName: className}
}

func UpdateSubject(s models.SubjectConfig) Op {
	return Op{Kind: OpUpdate, Collection: Subjects, ID: s.ID, Subject: &s}
}

func DeleteSubject(id string) Op {
	return Op{Kind: OpDelete, Collection: Subjects, ID: id}
}
