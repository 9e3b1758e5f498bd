package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/bbernstein/velobot/internal/api"
	"github.com/bbernstein/velobot/internal/cache"
	"github.com/bbernstein/velobot/internal/config"
	"github.com/bbernstein/velobot/internal/feed"
	"github.com/bbernstein/velobot/internal/handler"
	"github.com/bbernstein/velobot/internal/models"
	"github.com/bbernstein/velobot/internal/refresher"
	"github.com/bbernstein/velobot/internal/storage"
	"github.com/bbernstein/velobot/internal/subscription"
	"github.com/bbernstein/velobot/pkg/http/client"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 5 * time.Second
	tableWait       = 30 * time.Second
)

var (
	lambdaStart = lambda.Start // Allow mocking of lambda.Start in tests

	// Allow swapping AWS clients in tests
	newDynamoClient = func(ctx context.Context) (storage.DynamoDBClient, error) { return storage.NewDynamoClient(ctx) }
	newS3Client     = func(ctx context.Context) (cache.S3Client, error) { return storage.NewS3Client(ctx) }
)

type app struct {
	store     *cache.Store
	matches   *cache.MatchCache
	refresher *refresher.Refresher
	service   *subscription.Service
	handler   *handler.SubscriptionsHandler
}

// newApp wires every component and seeds the caches. Subscriptions must load
// before any request is served; the station snapshot is best effort.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	httpClient := client.New(client.Options{
		Timeout:    cfg.HTTPTimeout,
		MaxRetries: cfg.MaxRetries,
	})
	stationFeed := feed.NewVelobikeFeed(httpClient, cfg.VelobikeURL)

	repo, err := newRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var snapshots models.StationSnapshotStore
	if cfg.SnapshotBucket != "" {
		s3Client, err := newS3Client(ctx)
		if err != nil {
			return nil, fmt.Errorf("creating S3 client: %w", err)
		}
		snapshots = cache.NewS3StationSnapshotStore(s3Client, cfg.SnapshotBucket, cfg.SnapshotTTL)
	}

	matches, err := cache.NewMatchCache(cfg)
	if err != nil {
		return nil, err
	}

	store := cache.NewStore()
	a := &app{
		store:     store,
		matches:   matches,
		refresher: refresher.NewRefresher(stationFeed, store, snapshots, cfg.RefreshInterval),
		service:   subscription.NewService(cache.NewCoordinator(store), repo, matches, cfg.PersistenceTimeout),
	}
	a.handler = handler.NewSubscriptionsHandler(a.service, a.status)

	if err := a.service.Load(ctx); err != nil {
		return nil, err
	}
	if err := a.refresher.WarmStart(ctx); err != nil {
		log.Warn().Err(err).Msg("Station warm start failed, waiting for first refresh")
	}

	return a, nil
}

func newRepository(ctx context.Context, cfg *config.Config) (models.SubscriptionRepository, error) {
	if cfg.UsesMemoryStore() {
		log.Warn().Msg("Using in-memory subscription store, subscriptions will not survive a restart")
		return storage.NewMemoryRepository(), nil
	}

	dynamoClient, err := newDynamoClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating DynamoDB client: %w", err)
	}
	repo := storage.NewDynamoSubscriptionRepository(dynamoClient, cfg.SubscriptionsTable)

	if cfg.IsLocal() {
		if err := repo.EnsureTable(ctx, tableWait); err != nil {
			return nil, err
		}
	}
	return repo, nil
}

func (a *app) status() *api.StatusResponse {
	snap := a.store.Snapshot()
	return &api.StatusResponse{
		APIResponse:  api.APIResponse{ResponseType: "status"},
		Refresher:    a.refresher.Status(),
		StationCount: len(snap.Stations),
		UserCount:    len(snap.Subscriptions),
		Generation:   snap.Generation,
		MatchCache:   a.matches.Stats(),
	}
}

// run starts the refresher alongside the request surface and returns once
// ctx is cancelled or either of them fails
func run(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.refresher.Run(ctx)
	})

	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		log.Info().Msg("Starting Lambda handler")
		lambdaStart(a.handler.HandleRequest)
		return g.Wait()
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.NewHTTPHandler(a.handler.HandleRequest),
		ReadHeaderTimeout: cfg.HTTPTimeout,
	}

	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func main() {
	cfg := config.LoadFromEnv()
	cfg.InitializeLogging()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("velobot stopped")
	}
}
