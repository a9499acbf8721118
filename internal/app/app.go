// Package app builds the long-lived services of a pipeline run and owns their
// shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/cefr-dataset/internal/analyzer/lexicon"
	"github.com/JakeFAU/cefr-dataset/internal/api"
	"github.com/JakeFAU/cefr-dataset/internal/cache"
	"github.com/JakeFAU/cefr-dataset/internal/checkpoint"
	"github.com/JakeFAU/cefr-dataset/internal/clock/system"
	"github.com/JakeFAU/cefr-dataset/internal/config"
	"github.com/JakeFAU/cefr-dataset/internal/coordinator"
	collyfetcher "github.com/JakeFAU/cefr-dataset/internal/fetcher/colly"
	"github.com/JakeFAU/cefr-dataset/internal/id/uuid"
	"github.com/JakeFAU/cefr-dataset/internal/output"
	"github.com/JakeFAU/cefr-dataset/internal/policy/ratelimit"
	"github.com/JakeFAU/cefr-dataset/internal/progress"
	progresssinks "github.com/JakeFAU/cefr-dataset/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/cefr-dataset/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/cefr-dataset/internal/publisher/pubsub"
	"github.com/JakeFAU/cefr-dataset/internal/source"
	"github.com/JakeFAU/cefr-dataset/internal/storage"
	gcsstorage "github.com/JakeFAU/cefr-dataset/internal/storage/gcs"
	localstorage "github.com/JakeFAU/cefr-dataset/internal/storage/local"
	memorystorage "github.com/JakeFAU/cefr-dataset/internal/storage/memory"
	pgstore "github.com/JakeFAU/cefr-dataset/internal/storage/postgres"
	"github.com/JakeFAU/cefr-dataset/internal/telemetry"
	"github.com/JakeFAU/cefr-dataset/internal/vocab"
)

const defaultTopic = "cefr-progress"

// App contains the dependencies of one pipeline run.
type App struct {
	cfg         config.Config
	logger      *zap.Logger
	registry    *prometheus.Registry
	status      *progresssinks.StatusSink
	progressHub *progress.Hub
	coordinator *coordinator.Coordinator
	apiServer   *api.Server

	storage   *gcstorage.Client
	db        *pgxpool.Pool
	publisher *gcppublisher.Publisher
	tracer    *sdktrace.TracerProvider
}

// state bundles the durable cache and cursor stores.
type state struct {
	cache    cache.Backend
	progress checkpoint.Store
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		status:   progresssinks.NewStatusSink(),
	}
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if err := app.build(ctx); err != nil {
		if cerr := app.Close(context.WithoutCancel(ctx)); cerr != nil {
			logger.Warn("cleanup after failed build", zap.Error(cerr))
		}
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	var err error
	a.logger.Info("building pipeline dependencies",
		zap.Int("batch_size", a.cfg.Pipeline.BatchSize),
		zap.Int("workers", a.cfg.Pipeline.Workers),
		zap.Int("max_items", a.cfg.Pipeline.MaxItems),
		zap.String("output", a.cfg.Output.Path),
	)

	a.tracer, err = telemetry.InitTracerProvider(ctx, telemetry.Options{
		ServiceName: a.cfg.Telemetry.ServiceName,
		ProjectID:   a.cfg.Telemetry.TraceProjectID,
	})
	if err != nil {
		return fmt.Errorf("tracing init failed: %w", err)
	}

	st, err := a.setupState(ctx)
	if err != nil {
		return err
	}
	resultCache, err := cache.Open(ctx, st.cache, a.logger.Named("cache"))
	if err != nil {
		return fmt.Errorf("cache init failed: %w", err)
	}

	lx, err := lexicon.Load(a.cfg.Analyzer.LevelsPath, a.cfg.Analyzer.DictionaryPath)
	if err != nil {
		return fmt.Errorf("analyzer init failed: %w", err)
	}
	a.logger.Info("lexicon loaded",
		zap.String("levels", a.cfg.Analyzer.LevelsPath),
		zap.Int("words", lx.Len()),
	)

	emitter, err := a.setupProgress(ctx)
	if err != nil {
		return err
	}

	runID, err := uuid.New().NewRunID()
	if err != nil {
		return err
	}

	providers := a.setupProviders()
	maxItems := a.cfg.Pipeline.MaxItems
	a.coordinator, err = coordinator.New(
		coordinator.Config{BatchSize: a.cfg.Pipeline.BatchSize, Workers: a.cfg.Pipeline.Workers},
		coordinator.Deps{
			Items: coordinator.ItemSourceFunc(func(ctx context.Context) ([]string, error) {
				return source.Build(ctx, providers, maxItems, a.logger)
			}),
			Cache:    resultCache,
			Progress: st.progress,
			Output: func(fresh bool) (coordinator.Output, error) {
				sink, err := output.OpenCSV(a.cfg.Output.Path, fresh)
				if err != nil {
					return nil, err
				}
				return sink, nil
			},
			Analyzer: lexicon.Factory(a.cfg.Analyzer.LevelsPath, a.cfg.Analyzer.DictionaryPath),
			Events:   emitter,
			Clock:    system.New(),
			RunID:    runID,
			Logger:   a.logger,
		},
	)
	if err != nil {
		return fmt.Errorf("coordinator init failed: %w", err)
	}

	if a.cfg.Metrics.Addr != "" {
		a.apiServer, err = api.NewServer(api.Options{
			Status:   a.status,
			Registry: a.registry,
			Logger:   a.logger,
		})
		if err != nil {
			return fmt.Errorf("status server init failed: %w", err)
		}
	}
	return nil
}

func (a *App) setupBlobs(ctx context.Context) (storage.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.BackendGCS:
		a.logger.Info("using GCS storage backend", zap.String("bucket", a.cfg.Storage.GCSBucket))
		var err error
		a.storage, err = gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		blobs, err := gcsstorage.New(a.storage, gcsstorage.Config{
			Bucket: a.cfg.Storage.GCSBucket,
			Prefix: a.cfg.Storage.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return blobs, nil
	case config.BackendLocal:
		a.logger.Info("using local storage backend", zap.String("path", a.cfg.Storage.BaseDir))
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return blobs, nil
	default:
		a.logger.Warn("using in-memory storage backend; cache and progress will not survive restarts")
		return memorystorage.NewBlobStore(), nil
	}
}

func (a *App) setupState(ctx context.Context) (state, error) {
	if a.cfg.DB.DSN != "" {
		return a.setupDatabase(ctx)
	}
	blobs, err := a.setupBlobs(ctx)
	if err != nil {
		return state{}, err
	}
	backend, err := cache.NewBlobBackend(blobs, a.cfg.Storage.CacheObject)
	if err != nil {
		return state{}, fmt.Errorf("cache backend init failed: %w", err)
	}
	store, err := checkpoint.NewBlobStore(blobs, a.cfg.Storage.ProgressObject, a.logger.Named("checkpoint"))
	if err != nil {
		return state{}, fmt.Errorf("progress store init failed: %w", err)
	}
	return state{cache: backend, progress: store}, nil
}

func (a *App) setupDatabase(ctx context.Context) (state, error) {
	var err error
	a.db, err = pgstore.NewPool(ctx, pgstore.PoolConfig{
		DSN:             a.cfg.DB.DSN,
		MaxConns:        a.cfg.DB.MaxConns,
		MaxConnLifetime: time.Hour,
	})
	if err != nil {
		return state{}, fmt.Errorf("database init failed: %w", err)
	}
	cacheStore, err := pgstore.NewCacheStore(a.db, a.cfg.DB.CacheTable)
	if err != nil {
		return state{}, err
	}
	progressStore, err := pgstore.NewProgressStore(a.db, a.cfg.DB.ProgressTable, a.cfg.Pipeline.JobName)
	if err != nil {
		return state{}, err
	}
	if err := cacheStore.EnsureSchema(ctx); err != nil {
		return state{}, err
	}
	if err := progressStore.EnsureSchema(ctx); err != nil {
		return state{}, err
	}
	a.logger.Info("using postgres for cache and progress",
		zap.String("cache_table", a.cfg.DB.CacheTable),
		zap.String("progress_table", a.cfg.DB.ProgressTable),
		zap.String("job", a.cfg.Pipeline.JobName),
	)
	return state{cache: cacheStore, progress: progressStore}, nil
}

func (a *App) setupPublisher(ctx context.Context) (progresssinks.Publisher, string, error) {
	if a.cfg.PubSub.ProjectID == "" || a.cfg.PubSub.TopicName == "" {
		a.logger.Debug("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), defaultTopic, nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, "", fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.publisher = gcppublisher.New(client)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return a.publisher, a.cfg.PubSub.TopicName, nil
}

func (a *App) setupProgress(ctx context.Context) (progress.Emitter, error) {
	promSink, err := progresssinks.NewPrometheusSink(a.registry)
	if err != nil {
		return nil, fmt.Errorf("prometheus sink init failed: %w", err)
	}
	publisher, topic, err := a.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}
	pubSink, err := progresssinks.NewPubSubSink(publisher, topic, a.logger.Named("progress_pubsub"))
	if err != nil {
		return nil, fmt.Errorf("pubsub sink init failed: %w", err)
	}
	a.progressHub = progress.NewHub(progress.Config{
		BaseContext: context.WithoutCancel(ctx),
		Logger:      a.logger.Named("progress_hub"),
	},
		progresssinks.NewLogSink(a.logger.Named("progress")),
		promSink,
		a.status,
		pubSink,
	)
	return a.progressHub, nil
}

func (a *App) setupProviders() []vocab.Provider {
	src := a.cfg.Sources
	var providers []vocab.Provider
	if len(src.Words) > 0 {
		providers = append(providers, source.NewStatic("config", src.Words))
	}
	for _, path := range src.Files {
		providers = append(providers, source.NewFile(path))
	}
	if len(src.URLs) > 0 {
		fetcher := collyfetcher.New(collyfetcher.Config{
			UserAgent:   src.UserAgent,
			Timeout:     a.cfg.SourceTimeout(),
			MaxAttempts: src.MaxAttempts,
		}, ratelimit.New(ratelimit.Config{DefaultRPS: src.RatePerSecond}), a.logger.Named("fetcher"))
		for _, url := range src.URLs {
			providers = append(providers, source.NewWeb(url, fetcher))
		}
	}
	a.logger.Info("word providers configured",
		zap.Int("static_words", len(src.Words)),
		zap.Int("files", len(src.Files)),
		zap.Int("urls", len(src.URLs)),
	)
	return providers
}

// Status exposes the live run snapshot.
func (a *App) Status() progresssinks.Snapshot {
	return a.status.Snapshot()
}

// Run executes the pipeline, serving status while it runs when configured.
func (a *App) Run(ctx context.Context) (coordinator.Summary, error) {
	serveCtx, stopServe := context.WithCancel(context.WithoutCancel(ctx))
	serveDone := make(chan error, 1)
	if a.apiServer != nil {
		go func() {
			serveDone <- api.Serve(serveCtx, a.cfg.Metrics.Addr, a.apiServer.Handler(), a.logger)
		}()
	} else {
		close(serveDone)
	}

	sum, err := a.coordinator.Run(ctx)

	stopServe()
	if serr, ok := <-serveDone; ok && serr != nil {
		a.logger.Warn("status server stopped with error", zap.Error(serr))
	}
	return sum, err
}

// Close flushes progress sinks and releases clients.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("progress hub close: %w", err))
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("pubsub close: %w", err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("gcs close: %w", err))
		}
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}
