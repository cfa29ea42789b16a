// Package cache is the read-through layer over the document store. It holds
// one snapshot of both collections for a fixed TTL, drops it on every write
// and falls back to the last locally persisted snapshot when the store
// cannot be read.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/marksheet/internal/metrics"
	"github.com/shrimpsizemoose/marksheet/internal/models"
	"github.com/shrimpsizemoose/marksheet/internal/store"
)

const DefaultTTL = 30 * time.Second

const (
	studentsKey = "students"
	subjectsKey = "subjects"
)

// Snapshot is a copy of both collections. Stale snapshots come from the
// fallback and may be arbitrarily old.
type Snapshot struct {
	Students  []models.StudentRecord
	Subjects  []models.SubjectConfig
	FetchedAt time.Time
	Stale     bool
}

func (s *Snapshot) Catalogue() models.Catalogue {
	return models.NewCatalogue(s.Subjects)
}

func (s *Snapshot) copy() *Snapshot {
	out := *s
	out.Students = make([]models.StudentRecord, len(s.Students))
	for i, st := range s.Students {
		out.Students[i] = st.Clone()
	}
	out.Subjects = append([]models.SubjectConfig(nil), s.Subjects...)
	return &out
}

type Option func(*Cache)

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

type Cache struct {
	mu       sync.Mutex
	store    store.DocumentStore
	fallback Fallback
	ttl      time.Duration
	now      func() time.Time
	current  *Snapshot
}

func New(st store.DocumentStore, fallback Fallback, opts ...Option) *Cache {
	c := &Cache{
		store:    st,
		fallback: fallback,
		ttl:      DefaultTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns the cached collections, refetching them when the TTL has
// run out or a write invalidated the cache.
func (c *Cache) Snapshot(ctx context.Context) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil && c.now().Sub(c.current.FetchedAt) < c.ttl {
		metrics.CacheEvents.WithLabelValues("hit").Inc()
		return c.current.copy(), nil
	}

	snap, err := c.refresh(ctx)
	if err == nil {
		c.current = snap
		return snap.copy(), nil
	}

	logger.Error.Printf("Store read failed, trying local snapshot: %v", err)
	stale, ferr := c.loadFallback(ctx)
	if ferr != nil {
		logger.Debug.Printf("No usable local snapshot: %v", ferr)
		return nil, &models.StoreError{Op: "read", Err: err}
	}
	metrics.CacheEvents.WithLabelValues("fallback").Inc()
	return stale, nil
}

func (c *Cache) Students(ctx context.Context) ([]models.StudentRecord, error) {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Students, nil
}

func (c *Cache) Subjects(ctx context.Context) ([]models.SubjectConfig, error) {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Subjects, nil
}

func (c *Cache) Catalogue(ctx context.Context) (models.Catalogue, error) {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Catalogue(), nil
}

// Invalidate forces the next read to refetch. Called after every successful
// write.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = nil
	metrics.CacheEvents.WithLabelValues("invalidate").Inc()
}

func (c *Cache) refresh(ctx context.Context) (*Snapshot, error) {
	metrics.CacheEvents.WithLabelValues("refetch").Inc()

	students, err := c.store.ListStudents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch students: %w", err)
	}
	subjects, err := c.store.ListSubjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch subjects: %w", err)
	}

	snap := &Snapshot{Students: students, Subjects: subjects, FetchedAt: c.now()}
	c.persist(ctx, snap)
	return snap, nil
}

func (c *Cache) persist(ctx context.Context, snap *Snapshot) {
	if c.fallback == nil {
		return
	}
	for key, value := range map[string]interface{}{studentsKey: snap.Students, subjectsKey: snap.Subjects} {
		data, err := json.Marshal(value)
		if err != nil {
			logger.Error.Printf("Failed to encode %s snapshot: %v", key, err)
			continue
		}
		if err := c.fallback.Save(ctx, key, data); err != nil {
			logger.Error.Printf("Failed to persist %s snapshot: %v", key, err)
		}
	}
}

func (c *Cache) loadFallback(ctx context.Context) (*Snapshot, error) {
	if c.fallback == nil {
		return nil, ErrNoSnapshot
	}
	snap := &Snapshot{Stale: true}

	data, err := c.fallback.Load(ctx, studentsKey)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &snap.Students); err != nil {
		return nil, fmt.Errorf("failed to decode students snapshot: %w", err)
	}

	data, err = c.fallback.Load(ctx, subjectsKey)
	if err != nil && !errors.Is(err, ErrNoSnapshot) {
		return nil, err
	}
	if err == nil {
		if err := json.Unmarshal(data, &snap.Subjects); err != nil {
			return nil, fmt.Errorf("failed to decode subjects snapshot: %w", err)
		}
	}
	return snap, nil
}
