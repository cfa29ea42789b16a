package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/marksheet/internal/batch"
)

// DefaultRecomputeCron runs the verification pass nightly.
const DefaultRecomputeCron = "0 2 * * *"

const runTimeout = 10 * time.Minute

type Recalculator interface {
	RecalculateAll(ctx context.Context) (*batch.Result, error)
}

// Verifier periodically re-evaluates every stored mark against the current
// subject configuration and re-ranks all classes.
type Verifier struct {
	service   Recalculator
	scheduler *gocron.Scheduler

	mu      sync.Mutex
	lastRun *Run
}

type Run struct {
	StartedAt time.Time
	Duration  time.Duration
	Updated   int
	Failed    int
	Classes   int
	Err       error
}

func NewVerifier(service Recalculator, cron string) (*Verifier, error) {
	if cron == "" {
		cron = DefaultRecomputeCron
	}

	v := &Verifier{
		service:   service,
		scheduler: gocron.NewScheduler(time.UTC),
	}
	v.scheduler.SingletonModeAll()

	_, err := v.scheduler.Cron(cron).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		v.RunOnce(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule verification %q: %w", cron, err)
	}
	return v, nil
}

func (v *Verifier) Start() {
	v.scheduler.StartAsync()
}

func (v *Verifier) Stop() {
	v.scheduler.Stop()
}

// RunOnce performs one verification pass and records its outcome.
func (v *Verifier) RunOnce(ctx context.Context) Run {
	run := Run{StartedAt: time.Now()}

	result, err := v.service.RecalculateAll(ctx)
	run.Duration = time.Since(run.StartedAt)
	switch {
	case err != nil:
		run.Err = err
		logger.Error.Printf("Verification failed: %v", err)
	default:
		run.Updated = result.SuccessCount
		run.Failed = len(result.Errors)
		run.Classes = len(result.ClassesRanked)
		logger.Info.Printf("Verification done in %s: %d updated, %d failed, %d classes ranked",
			run.Duration.Round(time.Millisecond), run.Updated, run.Failed, run.Classes)
		for _, e := range result.Errors {
			logger.Error.Printf("  %s: %s", e.ID, e.Message)
		}
		if result.RankingError != "" {
			logger.Error.Printf("Ranking failed: %s", result.RankingError)
		}
	}

	v.mu.Lock()
	v.lastRun = &run
	v.mu.Unlock()
	return run
}

func (v *Verifier) LastRun() (Run, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.lastRun == nil {
		return Run{}, false
	}
	return *v.lastRun, true
}
