package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/blockmart/marketd/internal/pipeline"
	"github.com/blockmart/marketd/internal/server"
	"github.com/blockmart/marketd/internal/server/handler"
	"github.com/blockmart/marketd/internal/server/ws"
	"github.com/blockmart/marketd/internal/service"
)

// shutdownTimeout bounds graceful HTTP shutdown on context cancellation.
const shutdownTimeout = 10 * time.Second

// services bundles the constructed service layer for a running mode.
type services struct {
	settlement *service.SettlementService
	listing    *service.ListingService
	ledger     *service.LedgerService
	activity   *service.ActivityService
	catalog    *service.CatalogService
}

// buildServices constructs the service layer on top of the wired
// dependencies. hub may be nil for modes without a WebSocket feed.
func (a *App) buildServices(deps *Dependencies, hub *ws.Hub) *services {
	var broadcaster service.Broadcaster
	if hub != nil {
		broadcaster = hub
	}

	settlement := service.NewSettlementService(service.SettlementDeps{
		Listings: deps.Listings,
		Bids:     deps.Bids,
		Offers:   deps.Offers,
		Settle:   deps.Settlements,
		Sales:    deps.Sales,
		Activity: deps.Activity,
		Locks:    deps.LockManager,
		Payments: deps.Payments,
		Registry: deps.Registry,
		Notifier: deps.Notifier,
		Hub:      broadcaster,
		Logger:   a.logger,
	})

	return &services{
		settlement: settlement,
		listing:    service.NewListingService(deps.Listings, deps.Settlements, deps.Activity, broadcaster, a.logger),
		ledger:     service.NewLedgerService(deps.Listings, deps.Bids, deps.Offers, settlement, deps.Activity, deps.LockManager, broadcaster, a.logger),
		activity:   service.NewActivityService(deps.Listings, deps.Sales, deps.Activity, deps.StatsCache, a.logger),
		catalog:    service.NewCatalogService(deps.Catalog, deps.AssetCache, a.logger),
	}
}

// newOrchestrator assembles the background pipeline for the given
// dependencies: the lifecycle sweeper, the optional catalog refresher, and
// the optional archival cron.
func (a *App) newOrchestrator(deps *Dependencies, svcs *services) *pipeline.Orchestrator {
	sweeper := pipeline.NewSweeper(deps.Listings, deps.Offers, svcs.settlement, a.logger)

	var refresher *pipeline.CatalogRefresher
	if deps.Catalog != nil && deps.AssetCache != nil {
		refresher = pipeline.NewCatalogRefresher(svcs.catalog, a.logger)
	}

	var archiver *pipeline.Archiver
	if a.cfg.Pipeline.ArchiveEnabled && deps.Archiver != nil {
		archiver = pipeline.NewArchiver(deps.Archiver, a.logger)
	}

	return pipeline.NewOrchestrator(
		sweeper,
		refresher,
		archiver,
		a.cfg.Pipeline.SweepInterval.Duration,
		a.cfg.Catalog.RefreshInterval.Duration,
		a.cfg.Pipeline.ArchiveCron,
		a.logger,
	)
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to the
// given errgroup. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services, hub *ws.Hub) {
	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(a.logger),
		Listings: handler.NewListingHandler(svcs.listing, svcs.listing, svcs.ledger, svcs.settlement, svcs.catalog, a.logger),
		Offers:   handler.NewOfferHandler(svcs.ledger, svcs.settlement, a.logger),
		Activity: handler.NewActivityHandler(svcs.activity, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return hub.Run(ctx)
	})

	g.Go(func() error {
		err := srv.Start()
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// warmCatalog bulk-loads the storefront catalog at startup. Failures degrade
// asset metadata to placeholders, so they only warn.
func (a *App) warmCatalog(ctx context.Context, svcs *services) {
	warmed, err := svcs.catalog.WarmCatalog(ctx)
	if err != nil {
		a.logger.WarnContext(ctx, "catalog warm-up failed",
			slog.String("error", err.Error()),
		)
		return
	}
	if warmed > 0 {
		a.logger.InfoContext(ctx, "catalog warmed", slog.Int("assets", warmed))
	}
}

// ServeMode runs the HTTP API and WebSocket feed without the background
// pipeline. Pair it with a separate sweep-mode instance in multi-process
// deployments.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	hub := ws.NewHub(a.logger)
	svcs := a.buildServices(deps, hub)
	a.warmCatalog(ctx, svcs)

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, svcs, hub)
	return g.Wait()
}

// SweepMode runs only the background pipeline: listing lifecycle sweeps,
// offer expiry, transfer retries, catalog refresh, and archival.
func (a *App) SweepMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting sweep mode")

	svcs := a.buildServices(deps, nil)
	return a.newOrchestrator(deps, svcs).Run(ctx)
}

// ArchiveMode performs a single archival pass of the previous UTC day and
// exits. Intended for external schedulers.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	if deps.Archiver == nil {
		return fmt.Errorf("app: archive mode requires s3 configuration")
	}
	return pipeline.NewArchiver(deps.Archiver, a.logger).Run(ctx)
}

// FullMode runs everything in one process: the HTTP API, the WebSocket feed,
// and the background pipeline.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	hub := ws.NewHub(a.logger)
	svcs := a.buildServices(deps, hub)
	a.warmCatalog(ctx, svcs)

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, svcs, hub)

	g.Go(func() error {
		err := a.newOrchestrator(deps, svcs).Run(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return err
	})

	return g.Wait()
}
