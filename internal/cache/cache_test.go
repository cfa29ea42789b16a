package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrimpsizemoose/marksheet/internal/models"
	"github.com/shrimpsizemoose/marksheet/internal/store"
	"github.com/shrimpsizemoose/marksheet/internal/store/memory"
)

// countingStore counts list calls and can be switched to fail.
type countingStore struct {
	*memory.MemoryStore
	studentLists int
	fail         bool
}

func (s *countingStore) ListStudents(ctx context.Context) ([]models.StudentRecord, error) {
	s.studentLists++
	if s.fail {
		return nil, errors.New("store unreachable")
	}
	return s.MemoryStore.ListStudents(ctx)
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func setup(t *testing.T) (*Cache, *countingStore, *fakeClock, *MemoryFallback) {
	st := &countingStore{MemoryStore: memory.NewMemoryStore()}
	require.NoError(t, st.PutStudent(context.Background(), models.StudentRecord{
		ID: "s1", AdmissionNo: "A1", Name: "Asha", ClassName: "I BA", Semester: models.SemesterOdd,
	}))
	clock := &fakeClock{t: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
	fallback := NewMemoryFallback()
	return New(st, fallback, WithClock(clock.now)), st, clock, fallback
}

func TestReadsWithinTTLAreServedFromCache(t *testing.T) {
	c, st, clock, _ := setup(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.Students(ctx)
		require.NoError(t, err)
		clock.advance(10 * time.Second)
	}
	assert.Equal(t, 1, st.studentLists)
}

func TestReadAfterTTLRefetchesOnce(t *testing.T) {
	c, st, clock, _ := setup(t)
	ctx := context.Background()

	_, err := c.Students(ctx)
	require.NoError(t, err)

	clock.advance(31 * time.Second)
	_, err = c.Students(ctx)
	require.NoError(t, err)
	_, err = c.Students(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, st.studentLists)
}

func TestInvalidateMakesWritesVisible(t *testing.T) {
	c, st, _, _ := setup(t)
	ctx := context.Background()

	_, err := c.Students(ctx)
	require.NoError(t, err)

	require.NoError(t, st.PutStudent(ctx, models.StudentRecord{
		ID: "s2", AdmissionNo: "A2", Name: "Ravi", ClassName: "I BA", Semester: models.SemesterOdd,
	}))
	c.Invalidate()

	students, err := c.Students(ctx)
	require.NoError(t, err)
	assert.Len(t, students, 2)
}

func TestFallbackOnStoreFailure(t *testing.T) {
	c, st, clock, _ := setup(t)
	ctx := context.Background()

	_, err := c.Snapshot(ctx)
	require.NoError(t, err)

	st.fail = true
	clock.advance(time.Minute)

	snap, err := c.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.Stale)
	require.Len(t, snap.Students, 1)
	assert.Equal(t, "s1", snap.Students[0].ID)

	// stale data is never cached as fresh
	st.fail = false
	snap, err = c.Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, snap.Stale)
	assert.Equal(t, 3, st.studentLists)
}

func TestStoreErrorWithoutFallbackSnapshot(t *testing.T) {
	st := &countingStore{MemoryStore: memory.NewMemoryStore(), fail: true}
	c := New(st, NewMemoryFallback())

	_, err := c.Snapshot(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrStore)
}

func TestSnapshotsAreIsolatedCopies(t *testing.T) {
	c, _, _, _ := setup(t)
	ctx := context.Background()

	first, err := c.Students(ctx)
	require.NoError(t, err)
	first[0].Name = "changed"
	first[0].Marks = map[string]models.SubjectMark{"x": {}}

	second, err := c.Students(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Asha", second[0].Name)
	assert.Empty(t, second[0].Marks)
}

func TestCatalogue(t *testing.T) {
	c, st, _, _ := setup(t)
	ctx := context.Background()
	require.NoError(t, st.CommitBatch(ctx, []store.Op{store.UpdateSubject(models.SubjectConfig{ID: "eng", Name: "English"})}))

	catalogue, err := c.Catalogue(ctx)
	require.NoError(t, err)
	assert.Contains(t, catalogue, "eng")
}
