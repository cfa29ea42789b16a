// Package batch splits bulk writes into store-sized chunks, commits them in
// order and keeps a log of which chunks landed so a failed run can be
// resumed. Ranks of every class touched by a batch are recomputed
// afterwards.
package batch

import (
	"context"
	"fmt"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/marksheet/internal/cache"
	"github.com/shrimpsizemoose/marksheet/internal/metrics"
	"github.com/shrimpsizemoose/marksheet/internal/models"
	"github.com/shrimpsizemoose/marksheet/internal/scoring"
	"github.com/shrimpsizemoose/marksheet/internal/store"
)

// Cache is the part of the cache layer the orchestrator needs.
type Cache interface {
	Snapshot(ctx context.Context) (*cache.Snapshot, error)
	Invalidate()
}

type Orchestrator struct {
	store     store.DocumentStore
	cache     Cache
	chunkSize int
}

type Option func(*Orchestrator)

// WithChunkSize lowers the chunk size below the store limit.
func WithChunkSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 && n <= store.MaxBatchOps {
			o.chunkSize = n
		}
	}
}

func New(st store.DocumentStore, c Cache, opts ...Option) *Orchestrator {
	o := &Orchestrator{store: st, cache: c, chunkSize: store.MaxBatchOps}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type item struct {
	pos int
	op  store.Op
}

// Apply validates, chunks and commits ops. Per-item problems and failed
// chunks are reported in the result; the returned error is only set when
// the batch could not start at all.
func (o *Orchestrator) Apply(ctx context.Context, ops []store.Op) (*Result, error) {
	items := make([]item, len(ops))
	for i, op := range ops {
		items[i] = item{pos: i, op: op}
	}
	return o.run(ctx, items)
}

// Resume re-attempts only the chunks that prev recorded as uncommitted.
// ops must be the same list that produced prev.
func (o *Orchestrator) Resume(ctx context.Context, ops []store.Op, prev *Result) (*Result, error) {
	var items []item
	for _, chunk := range prev.Pending() {
		for _, pos := range chunk.Positions {
			if pos < 0 || pos >= len(ops) {
				return nil, fmt.Errorf("resume position %d is outside the %d ops given", pos, len(ops))
			}
			items = append(items, item{pos: pos, op: ops[pos]})
		}
	}
	if len(items) == 0 {
		return &Result{}, nil
	}
	logger.Info.Printf("Resuming batch from chunk %d with %d ops", prev.ResumePoint(), len(items))
	return o.run(ctx, items)
}

func (o *Orchestrator) run(ctx context.Context, items []item) (*Result, error) {
	snap, err := o.cache.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load records for validation: %w", err)
	}

	result := &Result{}
	v := newValidator(snap)
	var valid []item
	for _, it := range items {
		op, err := v.check(it.op)
		if err != nil {
			result.addError(it.pos, it.op.ID, err)
			metrics.BatchOps.WithLabelValues("invalid").Inc()
			continue
		}
		valid = append(valid, item{pos: it.pos, op: op})
	}

	for start, index := 0, 0; start < len(valid); start, index = start+o.chunkSize, index+1 {
		end := min(start+o.chunkSize, len(valid))
		chunk := valid[start:end]

		ops := make([]store.Op, len(chunk))
		positions := make([]int, len(chunk))
		for i, it := range chunk {
			ops[i] = it.op
			positions[i] = it.pos
		}

		cr := ChunkResult{Index: index, Positions: positions}
		if err := o.store.CommitBatch(ctx, ops); err != nil {
			logger.Error.Printf("Chunk %d (%d ops) failed: %v", index, len(ops), err)
			cr.Err = &models.StoreError{Op: "commit", Err: err}
			for _, it := range chunk {
				result.addError(it.pos, it.op.ID, fmt.Errorf("chunk %d not committed: %w", index, cr.Err))
			}
			metrics.BatchChunks.WithLabelValues("failed").Inc()
			metrics.BatchOps.WithLabelValues("failed").Add(float64(len(ops)))
		} else {
			cr.Committed = true
			result.SuccessCount += len(ops)
			metrics.BatchChunks.WithLabelValues("committed").Inc()
			metrics.BatchOps.WithLabelValues("committed").Add(float64(len(ops)))
		}
		result.Chunks = append(result.Chunks, cr)
	}

	if result.SuccessCount == 0 {
		return result, nil
	}
	o.cache.Invalidate()

	classes := touchedClasses(result, valid, v.classOf)
	if err := o.RecomputeClasses(ctx, classes); err != nil {
		logger.Error.Printf("Rank recompute after batch failed: %v", err)
		result.RankingError = err.Error()
	}
	result.ClassesRanked = classes
	return result, nil
}

// RecomputeClasses re-ranks each class and writes back records whose rank
// changed.
func (o *Orchestrator) RecomputeClasses(ctx context.Context, classes []string) error {
	var errs []error
	for _, class := range classes {
		students, err := o.store.FindStudents(ctx, store.FieldClassName, class)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", class, err))
			continue
		}

		changed := scoring.RankChanges(students)
		if len(changed) == 0 {
			continue
		}
		ops := make([]store.Op, len(changed))
		for i, s := range changed {
			ops[i] = store.UpdateStudent(s)
		}
		for start := 0; start < len(ops); start += o.chunkSize {
			end := min(start+o.chunkSize, len(ops))
			if err := o.store.CommitBatch(ctx, ops[start:end]); err != nil {
				errs = append(errs, fmt.Errorf("%s ranks: %w", class, err))
				break
			}
		}
		logger.Debug.Printf("Re-ranked class %s: %d of %d ranks changed", class, len(changed), len(students))
	}

	o.cache.Invalidate()
	if len(errs) > 0 {
		return fmt.Errorf("failed to recompute ranks: %v", errs)
	}
	return nil
}

func touchedClasses(result *Result, valid []item, classOf func(id string) string) []string {
	committed := make(map[int]bool)
	for _, chunk := range result.Chunks {
		if !chunk.Committed {
			continue
		}
		for _, pos := range chunk.Positions {
			committed[pos] = true
		}
	}

	seen := make(map[string]bool)
	var classes []string
	add := func(class string) {
		if class != "" && !seen[class] {
			seen[class] = true
			classes = append(classes, class)
		}
	}
	for _, it := range valid {
		if !committed[it.pos] || it.op.Collection != store.Students {
			continue
		}
		add(classOf(it.op.ID))
		add(it.op.ClassName)
	}
	return classes
}
