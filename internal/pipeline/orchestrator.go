package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Orchestrator manages the background goroutines: the lifecycle sweeper, the
// catalog refresher, and cold-storage archival.
type Orchestrator struct {
	sweeper          *Sweeper
	catalogRefresher *CatalogRefresher
	archiver         *Archiver
	sweepInterval    time.Duration
	catalogInterval  time.Duration
	archiveCron      string
	logger           *slog.Logger
}

// NewOrchestrator creates a new Orchestrator. catalogRefresher and archiver
// may be nil; their loops are skipped.
func NewOrchestrator(
	sweeper *Sweeper,
	catalogRefresher *CatalogRefresher,
	archiver *Archiver,
	sweepInterval time.Duration,
	catalogInterval time.Duration,
	archiveCron string,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		sweeper:          sweeper,
		catalogRefresher: catalogRefresher,
		archiver:         archiver,
		sweepInterval:    sweepInterval,
		catalogInterval:  catalogInterval,
		archiveCron:      archiveCron,
		logger:           logger,
	}
}

// Run starts all background loops as concurrent goroutines using an errgroup.
// Each goroutine respects ctx cancellation. If any goroutine returns a
// non-context error, the errgroup cancels the shared context and Run returns
// that error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline orchestrator starting",
		slog.Duration("sweep_interval", o.sweepInterval),
		slog.String("archive_cron", o.archiveCron),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		o.logger.Info("starting sweeper loop")
		err := o.sweeper.RunLoop(ctx, o.sweepInterval)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("sweeper: %w", err)
	})

	if o.catalogRefresher != nil {
		g.Go(func() error {
			o.logger.Info("starting catalog refresher loop")
			err := o.catalogRefresher.RunLoop(ctx, o.catalogInterval)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("catalog refresher: %w", err)
		})
	}

	if o.archiver != nil {
		g.Go(func() error {
			o.logger.Info("starting archiver cron")
			err := o.archiver.RunCron(ctx, o.archiveCron)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	err := g.Wait()
	if err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}
