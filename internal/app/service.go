package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/marksheet/internal/batch"
	"github.com/shrimpsizemoose/marksheet/internal/cache"
	"github.com/shrimpsizemoose/marksheet/internal/importer"
	"github.com/shrimpsizemoose/marksheet/internal/models"
	"github.com/shrimpsizemoose/marksheet/internal/store"
)

const customClassesKey = "classes"

type Service struct {
	Config   *Config
	Store    store.DocumentStore
	Cache    *cache.Cache
	Batch    *batch.Orchestrator
	Classes  *models.ClassRegistry
	Importer *importer.Reconciler
	Codec    importer.Codec

	fallback cache.Fallback
}

func NewService(configPath string) (*Service, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	st, err := NewStore(store.DBConfig{
		DSN:           config.Database.DSN,
		MigrationsDir: config.Database.MigrationsDir,
		Database:      config.Database.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init store: %w", err)
	}

	var fallback cache.Fallback = cache.NewMemoryFallback()
	if config.Cache.RedisURL == "" {
		logger.Info.Printf("No redis_url set: fallback snapshots and custom classes added at runtime are kept in memory and lost on restart")
	} else {
		redisFallback, err := cache.NewRedisFallback(config.Cache.RedisURL, config.Cache.KeyPrefix)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to init local snapshot store: %w", err)
		}
		fallback = redisFallback
	}

	return NewServiceWith(context.Background(), config, st, fallback)
}

// NewServiceWith wires a service around an already opened store.
func NewServiceWith(ctx context.Context, config *Config, st store.DocumentStore, fallback cache.Fallback) (*Service, error) {
	var cacheOpts []cache.Option
	if config.Cache.TTL.Duration > 0 {
		cacheOpts = append(cacheOpts, cache.WithTTL(config.Cache.TTL.Duration))
	}
	c := cache.New(st, fallback, cacheOpts...)

	var batchOpts []batch.Option
	if config.Batch.ChunkSize > 0 {
		batchOpts = append(batchOpts, batch.WithChunkSize(config.Batch.ChunkSize))
	}

	classes := models.NewClassRegistry(config.Classes.Standard, config.Classes.Custom)
	s := &Service{
		Config:   config,
		Store:    st,
		Cache:    c,
		Batch:    batch.New(st, c, batchOpts...),
		Classes:  classes,
		Importer: importer.NewReconciler(classes),
		Codec:    importer.CSVCodec{},
		fallback: fallback,
	}

	if err := s.loadCustomClasses(ctx); err != nil {
		return nil, fmt.Errorf("failed to load custom classes: %w", err)
	}
	return s, nil
}

func (s *Service) loadCustomClasses(ctx context.Context) error {
	data, err := s.fallback.Load(ctx, customClassesKey)
	if errors.Is(err, cache.ErrNoSnapshot) {
		return nil
	}
	if err != nil {
		return err
	}

	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return fmt.Errorf("failed to decode custom classes: %w", err)
	}
	for _, name := range names {
		s.Classes.AddCustom(name)
	}
	logger.Debug.Printf("Loaded %d custom classes", len(names))
	return nil
}

// AddCustomClass registers a class name and persists the custom list. It
// reports whether the class was new.
func (s *Service) AddCustomClass(ctx context.Context, name string) (bool, error) {
	if name == "" {
		return false, models.NewValidationError("class_name", "class name is required")
	}
	if !s.Classes.AddCustom(name) {
		return false, nil
	}

	data, err := json.Marshal(s.Classes.Custom())
	if err != nil {
		return true, fmt.Errorf("failed to encode custom classes: %w", err)
	}
	if err := s.fallback.Save(ctx, customClassesKey, data); err != nil {
		return true, fmt.Errorf("failed to save custom classes: %w", err)
	}
	logger.Info.Printf("Added custom class %q", name)
	return true, nil
}

func (s *Service) ListClasses() []string {
	return s.Classes.All()
}

func (s *Service) Close() error {
	var errs []error

	if err := s.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}
	if closer, ok := s.fallback.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("fallback: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors while closing: %v", errs)
	}
	return nil
}

// singleItem turns a one-op batch result into a plain error.
func singleItem(result *batch.Result) error {
	if len(result.Errors) == 0 {
		return nil
	}
	return result.Errors[0].Err
}

// firstFailure summarises a multi-op result for operations that report a
// single error.
func firstFailure(result *batch.Result) error {
	if len(result.Errors) == 0 {
		return nil
	}
	first := result.Errors[0]
	return fmt.Errorf("%d of %d writes failed, first at %d: %w",
		len(result.Errors), result.SuccessCount+len(result.Errors), first.Position, first.Err)
}

// applyWithRejections runs the ops that passed caller-side checks and
// reports the rejected ones under their original positions.
func (s *Service) applyWithRejections(ctx context.Context, ops []store.Op, rejected map[int]error) (*batch.Result, error) {
	var (
		valid   []store.Op
		origPos []int
	)
	for i, op := range ops {
		if _, bad := rejected[i]; bad {
			continue
		}
		valid = append(valid, op)
		origPos = append(origPos, i)
	}

	result := &batch.Result{}
	if len(valid) > 0 {
		var err error
		result, err = s.Batch.Apply(ctx, valid)
		if err != nil {
			return nil, err
		}
		for i := range result.Errors {
			result.Errors[i].Position = origPos[result.Errors[i].Position]
		}
		for i := range result.Chunks {
			for j, pos := range result.Chunks[i].Positions {
				result.Chunks[i].Positions[j] = origPos[pos]
			}
		}
	}

	for pos, err := range rejected {
		result.Errors = append(result.Errors, batch.ItemError{
			Position: pos,
			ID:       ops[pos].ID,
			Message:  err.Error(),
			Err:      err,
		})
	}
	batch.SortErrors(result.Errors)
	return result, nil
}
