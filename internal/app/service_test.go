package app

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrimpsizemoose/marksheet/internal/cache"
	"github.com/shrimpsizemoose/marksheet/internal/importer"
	"github.com/shrimpsizemoose/marksheet/internal/models"
	"github.com/shrimpsizemoose/marksheet/internal/store"
	"github.com/shrimpsizemoose/marksheet/internal/store/memory"
)

func testConfig() *Config {
	cfg := &Config{}
	cfg.Server.Port = ":0"
	cfg.Database.DSN = "memory"
	return cfg
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewServiceWith(context.Background(), testConfig(), memory.NewMemoryStore(), cache.NewMemoryFallback())
	require.NoError(t, err)
	return svc
}

func score(v float64) *models.Score {
	s := models.Numeric(v)
	return &s
}

func mustStudent(t *testing.T, svc *Service, admissionNo, class string) *models.StudentRecord {
	t.Helper()
	s, err := svc.CreateStudent(context.Background(), models.StudentInput{
		AdmissionNo: admissionNo, Name: "Student " + admissionNo, ClassName: class,
	})
	require.NoError(t, err)
	return s
}

func mustSubject(t *testing.T, svc *Service, in models.SubjectInput) *models.SubjectConfig {
	t.Helper()
	s, err := svc.CreateSubject(context.Background(), in)
	require.NoError(t, err)
	return s
}

var english = models.SubjectInput{Name: "English", MaxTA: 20, MaxCE: 80}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
[server]
port = ":8080"

[database]
dsn = "memory"

[cache]
ttl = "45s"

[batch]
chunk_size = 200
`))
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.Cache.TTL.Duration)
	assert.Equal(t, "./migrations", cfg.Database.MigrationsDir)
	assert.Equal(t, "marksheet", cfg.Cache.KeyPrefix)
	assert.Equal(t, 200, cfg.Batch.ChunkSize)
}

func TestParseConfigEnvOverride(t *testing.T) {
	t.Setenv(EnvDSN, "postgres://localhost/marks")
	cfg, err := ParseConfig([]byte("[server]\nport = \":8080\"\n[database]\ndsn = \"memory\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/marks", cfg.Database.DSN)
}

func TestParseConfigRejects(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{"no port", "[database]\ndsn = \"memory\"\n"},
		{"no dsn", "[server]\nport = \":1\"\n"},
		{"chunk too large", "[server]\nport = \":1\"\n[database]\ndsn = \"memory\"\n[batch]\nchunk_size = 501\n"},
		{"bad ttl", "[server]\nport = \":1\"\n[database]\ndsn = \"memory\"\n[cache]\nttl = \"soon\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.toml))
			assert.Error(t, err)
		})
	}
}

func TestDetectDatabaseType(t *testing.T) {
	assert.Equal(t, store.DBTypePostgres, DetectDatabaseType("postgres://u@h/db"))
	assert.Equal(t, store.DBTypeMongo, DetectDatabaseType("mongodb://h:27017"))
	assert.Equal(t, store.DBTypeMemory, DetectDatabaseType("memory"))
	assert.Equal(t, store.DBTypeSQLite, DetectDatabaseType("marks.db"))
}

func TestCreateStudent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	s := mustStudent(t, svc, "A1", "I BA")
	assert.Equal(t, models.SemesterOdd, s.Semester)
	assert.Equal(t, 1, s.Rank)

	_, err := svc.CreateStudent(ctx, models.StudentInput{AdmissionNo: "A2", Name: "X", ClassName: "IV BA"})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = svc.CreateStudent(ctx, models.StudentInput{AdmissionNo: "A1", Name: "Again", ClassName: "I BA"})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = svc.CreateStudent(ctx, models.StudentInput{AdmissionNo: "A3", ClassName: "I BA"})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestUpdateMarksPartially(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	eng := mustSubject(t, svc, english)
	s := mustStudent(t, svc, "A1", "I BA")

	got, err := svc.UpdateMarks(ctx, s.ID, eng.ID, MarkUpdate{TA: score(15)})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Marks[eng.ID].Status)
	assert.Equal(t, 15.0, got.GrandTotal)

	got, err = svc.UpdateMarks(ctx, s.ID, eng.ID, MarkUpdate{CE: score(50)})
	require.NoError(t, err)
	mark := got.Marks[eng.ID]
	assert.Equal(t, models.Numeric(15), mark.TA)
	assert.Equal(t, models.StatusPassed, mark.Status)
	assert.Equal(t, 65.0, got.GrandTotal)
	assert.Equal(t, models.LevelBPlusGood, got.PerformanceLevel)

	_, err = svc.UpdateMarks(ctx, s.ID, eng.ID, MarkUpdate{TA: score(21)})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = svc.UpdateMarks(ctx, "missing", eng.ID, MarkUpdate{TA: score(1)})
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = svc.UpdateMarks(ctx, s.ID, "missing", MarkUpdate{TA: score(1)})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUpdateMarksNeedsAComponent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	eng := mustSubject(t, svc, english)
	hist := mustSubject(t, svc, models.SubjectInput{Name: "History", MaxTA: 20, MaxCE: 80})
	s := mustStudent(t, svc, "A1", "I BA")
	_, err := svc.UpdateMarks(ctx, s.ID, eng.ID, MarkUpdate{TA: score(16), CE: score(80)})
	require.NoError(t, err)

	_, err = svc.UpdateMarks(ctx, s.ID, hist.ID, MarkUpdate{})
	assert.ErrorIs(t, err, models.ErrValidation)

	got, err := svc.GetStudent(ctx, s.ID)
	require.NoError(t, err)
	assert.NotContains(t, got.Marks, hist.ID)
	assert.Equal(t, 96.0, got.Average)

	_, err = svc.UpdateMarks(ctx, s.ID, hist.ID, MarkUpdate{TA: score(10)})
	require.NoError(t, err)
	empty := models.Empty()
	got, err = svc.UpdateMarks(ctx, s.ID, hist.ID, MarkUpdate{TA: &empty, CE: &empty})
	require.NoError(t, err)
	assert.NotContains(t, got.Marks, hist.ID)
	assert.Equal(t, 96.0, got.Average)

	result, err := svc.BulkUpdateMarks(ctx, eng.ID, []MarkEntry{{StudentID: s.ID}})
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.ErrorIs(t, result.Errors[0].Err, models.ErrValidation)
}

func TestSubjectTargetClasses(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	bsc := mustSubject(t, svc, models.SubjectInput{Name: "Physics", MaxTA: 20, MaxCE: 80, TargetClasses: []string{"I BSc"}})
	s := mustStudent(t, svc, "A1", "I BA")

	_, err := svc.UpdateMarks(ctx, s.ID, bsc.ID, MarkUpdate{TA: score(10)})
	assert.ErrorIs(t, err, models.ErrConsistency)

	_, err = svc.CreateSubject(ctx, models.SubjectInput{Name: "Ghost", MaxTA: 20, MaxCE: 80, TargetClasses: []string{"IX"}})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestElectiveEnrolment(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	eng := mustSubject(t, svc, english)
	music := mustSubject(t, svc, models.SubjectInput{
		Name: "Music", MaxTA: 20, MaxCE: 80, Type: models.SubjectElective, TargetClasses: []string{"I BA"},
	})
	s := mustStudent(t, svc, "A1", "I BA")
	other := mustStudent(t, svc, "B1", "II BA")

	_, err := svc.UpdateMarks(ctx, s.ID, music.ID, MarkUpdate{TA: score(20), CE: score(50)})
	assert.ErrorIs(t, err, models.ErrConsistency)

	_, err = svc.EnrollStudents(ctx, eng.ID, []string{s.ID})
	assert.ErrorIs(t, err, models.ErrConsistency)
	_, err = svc.EnrollStudents(ctx, music.ID, []string{other.ID})
	assert.ErrorIs(t, err, models.ErrConsistency)
	_, err = svc.EnrollStudents(ctx, music.ID, []string{"missing"})
	assert.ErrorIs(t, err, models.ErrNotFound)

	enrolled, err := svc.EnrollStudents(ctx, music.ID, []string{s.ID})
	require.NoError(t, err)
	assert.True(t, enrolled.IsEnrolled(s.ID))

	_, err = svc.UpdateMarks(ctx, s.ID, eng.ID, MarkUpdate{TA: score(15), CE: score(50)})
	require.NoError(t, err)
	got, err := svc.UpdateMarks(ctx, s.ID, music.ID, MarkUpdate{TA: score(20), CE: score(50)})
	require.NoError(t, err)
	assert.Equal(t, 135.0, got.GrandTotal)
	assert.Equal(t, 67.5, got.Average)
}

func TestClassRanklistSharesTies(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	eng := mustSubject(t, svc, english)

	totals := map[string][2]float64{"A1": {10, 60}, "A2": {20, 50}, "A3": {15, 45}}
	ids := map[string]string{}
	for _, adm := range []string{"A1", "A2", "A3"} {
		s := mustStudent(t, svc, adm, "II BCom")
		ids[adm] = s.ID
		m := totals[adm]
		_, err := svc.UpdateMarks(ctx, s.ID, eng.ID, MarkUpdate{TA: score(m[0]), CE: score(m[1])})
		require.NoError(t, err)
	}

	ranked, err := svc.ClassRanklist(ctx, "II BCom")
	require.NoError(t, err)
	ranks := map[string]int{}
	for _, s := range ranked {
		ranks[s.AdmissionNo] = s.Rank
	}
	assert.Equal(t, map[string]int{"A1": 1, "A2": 1, "A3": 3}, ranks)

	stored, err := svc.Store.GetStudent(ctx, ids["A3"])
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Rank)

	_, err = svc.ClassRanklist(ctx, "Nowhere")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestBulkUpdateMarks(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	eng := mustSubject(t, svc, english)
	s1 := mustStudent(t, svc, "A1", "I BA")
	s2 := mustStudent(t, svc, "A2", "I BA")
	s3 := mustStudent(t, svc, "A3", "I BA")

	result, err := svc.BulkUpdateMarks(ctx, eng.ID, []MarkEntry{
		{StudentID: s1.ID, TA: score(10), CE: score(60)},
		{StudentID: "missing", TA: score(10)},
		{StudentID: s2.ID, TA: score(30)},
		{StudentID: s3.ID, TA: score(20), CE: score(50)},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.SuccessCount)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, 1, result.Errors[0].Position)
	assert.ErrorIs(t, result.Errors[0].Err, models.ErrNotFound)
	assert.Equal(t, 2, result.Errors[1].Position)
	assert.ErrorIs(t, result.Errors[1].Err, models.ErrValidation)

	got, err := svc.Store.GetStudent(ctx, s3.ID)
	require.NoError(t, err)
	assert.Equal(t, 70.0, got.GrandTotal)
	assert.Equal(t, 1, got.Rank)

	_, err = svc.BulkUpdateMarks(ctx, "missing", nil)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUpdateSubjectLeavesStatusesUntilRecalculated(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	eng := mustSubject(t, svc, english)
	s := mustStudent(t, svc, "A1", "I BA")
	_, err := svc.UpdateMarks(ctx, s.ID, eng.ID, MarkUpdate{TA: score(8), CE: score(40)})
	require.NoError(t, err)

	_, err = svc.UpdateSubject(ctx, eng.ID, models.SubjectInput{Name: "English", MaxTA: 5, MaxCE: 80})
	assert.ErrorIs(t, err, models.ErrConsistency)

	updated, err := svc.UpdateSubject(ctx, eng.ID, models.SubjectInput{Name: "English", MaxTA: 30, MaxCE: 80})
	require.NoError(t, err)
	assert.Equal(t, 30.0, updated.MaxTA)

	got, err := svc.GetStudent(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPassed, got.Marks[eng.ID].Status)

	renamed, err := svc.UpdateStudent(ctx, s.ID, models.StudentInput{AdmissionNo: "A1", Name: "Asha", ClassName: "I BA"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPassed, renamed.Marks[eng.ID].Status)

	result, err := svc.RecalculateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount)

	got, err = svc.GetStudent(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Marks[eng.ID].Status, "TA 8 is below the new minimum of 12")

	_, err = svc.UpdateSubject(ctx, "missing", english)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDeleteSubjectDropsMarks(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	eng := mustSubject(t, svc, english)
	hist := mustSubject(t, svc, models.SubjectInput{Name: "History", MaxTA: 20, MaxCE: 80})
	s := mustStudent(t, svc, "A1", "I BA")
	_, err := svc.UpdateMarks(ctx, s.ID, eng.ID, MarkUpdate{TA: score(15), CE: score(50)})
	require.NoError(t, err)
	_, err = svc.UpdateMarks(ctx, s.ID, hist.ID, MarkUpdate{TA: score(20), CE: score(80)})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteSubject(ctx, eng.ID))

	got, err := svc.GetStudent(ctx, s.ID)
	require.NoError(t, err)
	assert.NotContains(t, got.Marks, eng.ID)
	assert.Equal(t, 100.0, got.GrandTotal)
	assert.Equal(t, 100.0, got.Average)
	assert.Equal(t, models.LevelOutstanding, got.PerformanceLevel)

	subjects, err := svc.ListSubjects(ctx)
	require.NoError(t, err)
	assert.Len(t, subjects, 1)

	assert.ErrorIs(t, svc.DeleteSubject(ctx, eng.ID), models.ErrNotFound)
}

func TestDeleteStudent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	music := mustSubject(t, svc, models.SubjectInput{Name: "Music", MaxTA: 20, MaxCE: 80, Type: models.SubjectElective})
	s := mustStudent(t, svc, "A1", "I BA")
	_, err := svc.EnrollStudents(ctx, music.ID, []string{s.ID})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteStudent(ctx, s.ID))
	assert.ErrorIs(t, svc.DeleteStudent(ctx, s.ID), models.ErrNotFound)

	subject, err := svc.GetSubject(ctx, music.ID)
	require.NoError(t, err)
	assert.Empty(t, subject.EnrolledStudents)
}

func TestDeleteStudentsReportsPositions(t *testing.T) {
	svc := newTestService(t)
	a := mustStudent(t, svc, "A1", "I BA")
	b := mustStudent(t, svc, "A2", "I BA")

	result, err := svc.DeleteStudents(context.Background(), []string{a.ID, "missing", b.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, result.SuccessCount)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 1, result.Errors[0].Position)
}

func TestRecalculateAll(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	eng := mustSubject(t, svc, english)

	// a record written without derived fields
	require.NoError(t, svc.Store.PutStudent(ctx, models.StudentRecord{
		ID: "raw", AdmissionNo: "R1", Name: "Raw", ClassName: "I BA", Semester: models.SemesterOdd,
		Marks: map[string]models.SubjectMark{
			eng.ID: {TA: models.Numeric(15), CE: models.Numeric(50), Status: models.StatusPending},
		},
	}))
	svc.Cache.Invalidate()

	result, err := svc.RecalculateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount)
	assert.Contains(t, result.ClassesRanked, "I BA")

	got, err := svc.Store.GetStudent(ctx, "raw")
	require.NoError(t, err)
	assert.Equal(t, 65.0, got.GrandTotal)
	assert.Equal(t, models.StatusPassed, got.Marks[eng.ID].Status)
	assert.Equal(t, 1, got.Rank)

	again, err := svc.RecalculateAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.SuccessCount)
}

func TestCustomClassesPersist(t *testing.T) {
	fallback := cache.NewMemoryFallback()
	ctx := context.Background()
	svc, err := NewServiceWith(ctx, testConfig(), memory.NewMemoryStore(), fallback)
	require.NoError(t, err)

	added, err := svc.AddCustomClass(ctx, "PG Diploma")
	require.NoError(t, err)
	assert.True(t, added)
	added, err = svc.AddCustomClass(ctx, "PG Diploma")
	require.NoError(t, err)
	assert.False(t, added)
	_, err = svc.AddCustomClass(ctx, "")
	assert.ErrorIs(t, err, models.ErrValidation)

	restarted, err := NewServiceWith(ctx, testConfig(), memory.NewMemoryStore(), fallback)
	require.NoError(t, err)
	assert.Contains(t, restarted.ListClasses(), "PG Diploma")
	mustStudent(t, restarted, "P1", "PG Diploma")
}

func TestImportThenExport(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	eng := mustSubject(t, svc, english)

	sheet := fmt.Sprintf("Admission No,Name,Class,Semester,%[1]s.ta,%[1]s.ce\n"+
		"A1,Asha,I BA,Even,15,50\n"+
		"A2,,I BA,,,\n"+
		"A3,Ravi,I BA,,10,60\n", eng.ID)

	report, err := svc.ImportStudents(ctx, strings.NewReader(sheet))
	require.NoError(t, err)
	assert.Equal(t, 3, report.Rows)
	assert.Equal(t, 2, report.Imported)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, 2, report.Errors[0].Row)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportStudents(ctx, &buf, "I BA"))
	rows, err := importer.CSVCodec{}.Decode(&buf)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "A3", rows[0][importer.ColAdmissionNo])
	assert.Equal(t, "1", rows[0][importer.ColRank])
	assert.Equal(t, "A1", rows[1][importer.ColAdmissionNo])
	assert.Equal(t, "Even", rows[1][importer.ColSemester])
	assert.Equal(t, "Passed", rows[1][eng.ID+".status"])

	// importing the same sheet again only produces duplicates
	report, err = svc.ImportStudents(ctx, strings.NewReader(sheet))
	require.NoError(t, err)
	assert.Zero(t, report.Imported)
	assert.Len(t, report.Errors, 3)
}

func TestImportEnrolsElectives(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	music := mustSubject(t, svc, models.SubjectInput{
		Name: "Music", MaxTA: 20, MaxCE: 80, Type: models.SubjectElective, TargetClasses: []string{"I BA"},
	})

	sheet := fmt.Sprintf("Admission No,Name,Class,%[1]s.ta,%[1]s.ce\n"+
		"A1,Asha,I BA,15,60\n"+
		"A2,Ravi,II BA,15,60\n", music.ID)
	report, err := svc.ImportStudents(ctx, strings.NewReader(sheet))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Imported)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, 2, report.Errors[0].Row)
	assert.ErrorIs(t, report.Errors[0].Err, models.ErrConsistency)

	asha, err := svc.FindByAdmissionNo(ctx, "A1")
	require.NoError(t, err)
	subject, err := svc.GetSubject(ctx, music.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{asha.ID}, subject.EnrolledStudents)
	assert.Equal(t, 75.0, asha.Marks[music.ID].Total)

	_, err = svc.UpdateMarks(ctx, asha.ID, music.ID, MarkUpdate{CE: score(70)})
	assert.NoError(t, err)
}

func TestRuntimeClassesNeedRedisToSurviveRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
port = ":0"

[database]
dsn = "memory"

[classes]
custom = ["PG Diploma"]
`), 0o644))

	svc, err := NewService(path)
	require.NoError(t, err)
	assert.IsType(t, &cache.MemoryFallback{}, svc.fallback)
	added, err := svc.AddCustomClass(context.Background(), "MA Music")
	require.NoError(t, err)
	assert.True(t, added)
	require.NoError(t, svc.Close())

	restarted, err := NewService(path)
	require.NoError(t, err)
	defer restarted.Close()
	assert.Contains(t, restarted.ListClasses(), "PG Diploma")
	assert.NotContains(t, restarted.ListClasses(), "MA Music")
}
