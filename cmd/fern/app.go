package main

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/database"
	"github.com/Ramsey-B/fern/internal/repositories/decision"
	"github.com/Ramsey-B/fern/internal/startup"
	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/candidates"
	"github.com/Ramsey-B/fern/pkg/catalog"
	"github.com/Ramsey-B/fern/pkg/engine"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/sinks"
)

// base is the configuration and logging every command needs
type base struct {
	cfg     *config.Config
	logger  ectologger.Logger
	cleanup []func(context.Context) error
}

func newBase(ctx context.Context, opts *rootOptions) (*base, error) {
	cfg, err := config.Load(opts.envFile)
	if err != nil {
		return nil, err
	}
	if opts.scoringModel != "" {
		cfg.ScoringModelPath = opts.scoringModel
	}
	if len(opts.catalogs) > 0 {
		cfg.CatalogPaths = opts.catalogs
	}
	if opts.concurrency > 0 {
		cfg.EngineConcurrency = opts.concurrency
	}
	if opts.continueOn {
		cfg.EngineContinueOnError = true
	}

	logger, sync, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	b := &base{cfg: cfg, logger: logger}
	b.cleanup = append(b.cleanup, func(context.Context) error {
		sync()
		return nil
	})

	shutdown, err := tracing.Setup(ctx, tracing.Config{
		Enabled:     cfg.TracingEnabled,
		ServiceName: cfg.AppName,
		Endpoint:    cfg.TracingEndpoint,
		Protocol:    cfg.TracingProtocol,
		Insecure:    cfg.TracingInsecure,
		Timeout:     cfg.TracingTimeout,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to set up tracing")
	}
	b.cleanup = append(b.cleanup, shutdown)

	return b, nil
}

func (b *base) close(ctx context.Context) {
	for i := len(b.cleanup) - 1; i >= 0; i-- {
		if err := b.cleanup[i](ctx); err != nil {
			b.logger.WithContext(ctx).WithError(err).Warn("Shutdown step failed")
		}
	}
}

func (b *base) databaseConfig() database.Config {
	return database.Config{
		Driver:          b.cfg.DatabaseDriver,
		Host:            b.cfg.DatabaseHost,
		Port:            b.cfg.DatabasePort,
		UserName:        b.cfg.DatabaseUserName,
		Password:        b.cfg.DatabasePassword,
		Name:            b.cfg.DatabaseName,
		SSLMode:         b.cfg.DatabaseSSLMode,
		MaxOpenConns:    b.cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    b.cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: b.cfg.DatabaseConnMaxLifetime,
	}
}

// app holds the engine and every optional backend behind it
type app struct {
	*base

	model    *config.ScoringModel
	catalogs catalog.Set
	startup  *startup.Startup
	// output is the JSONL decision destination; "" writes none
	output string

	db     *database.DatabaseInstance
	redis  *redis.Client
	graph  *graph.Client
	repo   *decision.Repository
	sink   *sinks.FanOut
	engine *engine.Engine
}

// newApp loads the scoring model and catalogs and registers the startup dependencies
func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	b, err := newBase(ctx, opts)
	if err != nil {
		return nil, err
	}

	model, err := config.LoadScoringModelFile(b.cfg.ScoringModelPath)
	if err != nil {
		b.close(ctx)
		return nil, err
	}
	catalogs, err := catalog.LoadFiles(b.cfg.CatalogPaths...)
	if err != nil {
		b.close(ctx)
		return nil, err
	}

	a := &app{
		base:     b,
		model:    model,
		catalogs: catalogs,
		startup:  startup.New(b.logger, b.cfg.StartupMaxAttempts),
		sink:     sinks.NewFanOut(b.logger),
	}
	a.register()
	return a, nil
}

// writeDecisionsTo sets the JSONL decision output: the flag, then OUTPUT_PATH, then stdout
func (a *app) writeDecisionsTo(flag string) {
	switch {
	case flag != "":
		a.output = flag
	case a.cfg.OutputPath != "":
		a.output = a.cfg.OutputPath
	default:
		a.output = "-"
	}
}

func (a *app) register() {
	cfg := a.cfg
	sinkDeps := []string{}
	engineDeps := []string{"sinks"}

	if cfg.DatabaseEnabled {
		sinkDeps = append(sinkDeps, "database")
		a.startup.Add(startup.Func{
			ID: "database",
			StartFunc: func(ctx context.Context) error {
				db, err := database.Connect(ctx, a.databaseConfig(), a.logger)
				if err != nil {
					return err
				}
				a.db = db
				a.repo = decision.NewRepository(db, a.logger)
				return nil
			},
			StopFunc: func(context.Context) error {
				if a.db == nil {
					return nil
				}
				return a.db.Close()
			},
		})
	}

	if cfg.RedisEnabled {
		engineDeps = append(engineDeps, "redis")
		a.startup.Add(startup.Func{
			ID: "redis",
			StartFunc: func(ctx context.Context) error {
				client, err := redis.NewClient(ctx, redis.Config{
					Host:     cfg.RedisHost,
					Port:     cfg.RedisPort,
					Password: cfg.RedisPassword,
					DB:       cfg.RedisDB,
				}, a.logger)
				if err != nil {
					return err
				}
				a.redis = client
				return nil
			},
			StopFunc: func(context.Context) error {
				if a.redis == nil {
					return nil
				}
				return a.redis.Close()
			},
		})
	}

	if cfg.GraphEnabled {
		sinkDeps = append(sinkDeps, "graph")
		a.startup.Add(startup.Func{
			ID: "graph",
			StartFunc: func(ctx context.Context) error {
				client, err := graph.NewClient(graph.Config{
					Host:     cfg.GraphDBHost,
					Port:     cfg.GraphDBPort,
					Username: cfg.GraphDBUser,
					Password: cfg.GraphDBPassword,
				}, a.logger)
				if err != nil {
					return err
				}
				if err := client.VerifyConnectivity(ctx); err != nil {
					_ = client.Close(ctx)
					return errors.Wrap(err, "graph database unreachable")
				}
				a.graph = client
				return nil
			},
		})
	}

	a.startup.Add(startup.Func{
		ID:        "sinks",
		Requires:  sinkDeps,
		StartFunc: func(context.Context) error { return a.openSinks() },
		StopFunc:  func(context.Context) error { return a.sink.Close() },
	})

	a.startup.Add(startup.Func{
		ID:        "engine",
		Requires:  engineDeps,
		StartFunc: a.buildEngine,
	})
}

// openSinks adds every enabled sink to the fan-out. The graph sink closes the graph client.
func (a *app) openSinks() error {
	if a.sink.Len() > 0 {
		return nil
	}
	cfg := a.cfg

	if a.output != "" {
		jsonl, err := sinks.OpenJSONLFile(a.output)
		if err != nil {
			return err
		}
		a.sink.Add(jsonl)
	}
	if a.repo != nil {
		a.sink.Add(a.repo)
	}
	if cfg.KafkaEnabled {
		a.sink.Add(kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaOutputTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, a.logger))
	}
	if a.graph != nil {
		a.sink.Add(graph.NewLinkWriter(a.graph, a.logger))
	}
	return nil
}

func (a *app) buildEngine(context.Context) error {
	cfg := a.cfg

	var cache candidates.Cache
	if a.redis != nil {
		cache = candidates.NewRedisCache(a.redis)
	} else {
		cache = candidates.NewMemoryCache(cfg.CandidateCacheSize)
	}

	services := engine.Services{}
	if cfg.CandidatesURL != "" || cfg.StructuredURL != "" {
		client, err := a.candidateClient(config.ServiceCandidates,
			candidates.Endpoint{URL: cfg.CandidatesURL, RetryBudget: cfg.CandidatesRetryBudget, RetryInterval: cfg.CandidatesRetryInterval},
			candidates.Endpoint{URL: cfg.StructuredURL, RetryBudget: cfg.StructuredRetryBudget, RetryInterval: cfg.StructuredRetryInterval},
			cache)
		if err != nil {
			return err
		}
		if cfg.CandidatesURL != "" {
			services.Candidates = client
		}
		if cfg.StructuredURL != "" {
			services.Structured = client
		}
	}
	if cfg.PlacesURL != "" {
		client, err := a.candidateClient(config.ServicePlaces,
			candidates.Endpoint{URL: cfg.PlacesURL, RetryBudget: cfg.PlacesRetryBudget, RetryInterval: cfg.PlacesRetryInterval},
			candidates.Endpoint{},
			cache)
		if err != nil {
			return err
		}
		services.Places = client
	}

	var sink sinks.Sink
	if a.sink.Len() > 0 {
		sink = a.sink
	}

	e, err := engine.New(engine.Config{
		Concurrency:     cfg.EngineConcurrency,
		ContinueOnError: cfg.EngineContinueOnError,
	}, a.model, a.catalogs, services, sink, a.logger)
	if err != nil {
		return errors.Wrap(err, "failed to build engine")
	}
	a.engine = e
	return nil
}

func (a *app) candidateClient(service string, query, structured candidates.Endpoint, cache candidates.Cache) (*candidates.Client, error) {
	httpCfg := httpclient.DefaultConfig(service)
	httpCfg.Timeout = a.cfg.RemoteTimeout

	cfg := candidates.DefaultConfig(service)
	cfg.Candidates = query
	cfg.Structured = structured
	cfg.ResultsPath = a.cfg.CandidatesResultsPath
	cfg.CacheTTL = a.cfg.CandidateCacheTTL

	return candidates.NewClient(cfg, httpclient.NewClient(httpCfg, a.logger), cache, a.logger)
}

// start brings every dependency up; close tears them down again
func (a *app) start(ctx context.Context) error {
	return a.startup.Start(ctx)
}

func (a *app) close(ctx context.Context) {
	if err := a.startup.Stop(ctx); err != nil {
		a.logger.WithContext(ctx).WithError(err).Warn("Failed to stop dependencies")
	}
	a.base.close(ctx)
}
