package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shrimpsizemoose/trekker/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shrimpsizemoose/marksheet/internal/models"
	"github.com/shrimpsizemoose/marksheet/internal/store"
)

const connectTimeout = 10 * time.Second

// MongoStore keeps students and subjects as documents. A batch is one
// multi-document transaction, so the server must run as a replica set.
type MongoStore struct {
	client   *mongo.Client
	students *mongo.Collection
	subjects *mongo.Collection
}

func NewMongoStore(uri, database string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client:   client,
		students: db.Collection(string(store.Students)),
		subjects: db.Collection(string(store.Subjects)),
	}

	_, err = s.students.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: store.FieldAdmissionNo, Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: store.FieldClassName, Value: 1}}},
	})
	if err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create student indexes: %w", err)
	}

	logger.Info.Printf("Connected to mongo database %s", database)
	return s, nil
}

func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}

func (s *MongoStore) ListStudents(ctx context.Context) ([]models.StudentRecord, error) {
	return s.findStudents(ctx, bson.M{})
}

func (s *MongoStore) GetStudent(ctx context.Context, id string) (*models.StudentRecord, error) {
	var student models.StudentRecord
	err := s.students.FindOne(ctx, bson.M{"_id": id}).Decode(&student)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get student %s: %w", id, err)
	}
	return &student, nil
}

func (s *MongoStore) FindStudents(ctx context.Context, field, value string) ([]models.StudentRecord, error) {
	switch field {
	case store.FieldAdmissionNo, store.FieldClassName, store.FieldSemester:
	default:
		return nil, fmt.Errorf("students cannot be queried by %q", field)
	}
	return s.findStudents(ctx, bson.M{field: value})
}

func (s *MongoStore) findStudents(ctx context.Context, filter bson.M) ([]models.StudentRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: store.FieldClassName, Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.students.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query students: %w", err)
	}
	defer cursor.Close(ctx)

	var out []models.StudentRecord
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode students: %w", err)
	}
	return out, nil
}

func (s *MongoStore) PutStudent(ctx context.Context, student models.StudentRecord) error {
	_, err := s.students.ReplaceOne(ctx, bson.M{"_id": student.ID}, student, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to put student %s: %w", student.ID, err)
	}
	return nil
}

func (s *MongoStore) DeleteStudent(ctx context.Context, id string) error {
	if _, err := s.students.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete student %s: %w", id, err)
	}
	return nil
}

func (s *MongoStore) ListSubjects(ctx context.Context) ([]models.SubjectConfig, error) {
	cursor, err := s.subjects.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list subjects: %w", err)
	}
	defer cursor.Close(ctx)

	var out []models.SubjectConfig
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode subjects: %w", err)
	}
	return out, nil
}

func (s *MongoStore) GetSubject(ctx context.Context, id string) (*models.SubjectConfig, error) {
	var subject models.SubjectConfig
	err := s.subjects.FindOne(ctx, bson.M{"_id": id}).Decode(&subject)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subject %s: %w", id, err)
	}
	return &subject, nil
}

func (s *MongoStore) PutSubject(ctx context.Context, subject models.SubjectConfig) error {
	_, err := s.subjects.ReplaceOne(ctx, bson.M{"_id": subject.ID}, subject, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to put subject %s: %w", subject.ID, err)
	}
	return nil
}

func (s *MongoStore) DeleteSubject(ctx context.Context, id string) error {
	if _, err := s.subjects.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete subject %s: %w", id, err)
	}
	return nil
}

func (s *MongoStore) CommitBatch(ctx context.Context, ops []store.Op) error {
	if len(ops) > store.MaxBatchOps {
		return fmt.Errorf("%w: %d > %d", store.ErrBatchTooLarge, len(ops), store.MaxBatchOps)
	}

	var studentWrites, subjectWrites []mongo.WriteModel
	for i, op := range ops {
		model, err := writeModel(op)
		if err != nil {
			return fmt.Errorf("batch op %d: %w", i, err)
		}
		if op.Collection == store.Students {
			studentWrites = append(studentWrites, model)
		} else {
			subjectWrites = append(subjectWrites, model)
		}
	}

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	ordered := options.BulkWrite().SetOrdered(true)
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if len(studentWrites) > 0 {
			if _, err := s.students.BulkWrite(sc, studentWrites, ordered); err != nil {
				return nil, fmt.Errorf("students: %w", err)
			}
		}
		if len(subjectWrites) > 0 {
			if _, err := s.subjects.BulkWrite(sc, subjectWrites, ordered); err != nil {
				return nil, fmt.Errorf("subjects: %w", err)
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

func writeModel(op store.Op) (mongo.WriteModel, error) {
	filter := bson.M{"_id": op.ID}

	var doc interface{}
	switch {
	case op.Student != nil:
		doc = op.Student
	case op.Subject != nil:
		doc = op.Subject
	}

	switch {
	case op.Kind == store.OpDelete:
		return mongo.NewDeleteOneModel().SetFilter(filter), nil
	case doc == nil:
		return nil, fmt.Errorf("malformed %s op on %s %q", op.Kind, op.Collection, op.ID)
	case op.Kind == store.OpInsert:
		return mongo.NewInsertOneModel().SetDocument(doc), nil
	default:
		return mongo.NewReplaceOneModel().SetFilter(filter).SetReplacement(doc).SetUpsert(true), nil
	}
}
