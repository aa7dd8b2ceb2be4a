package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	libCommons "github.com/LerianStudio/lib-commons/v2/commons"
	libLog "github.com/LerianStudio/lib-commons/v2/commons/log"
	libOpenTelemetry "github.com/LerianStudio/lib-commons/v2/commons/opentelemetry"
	libZap "github.com/LerianStudio/lib-commons/v2/commons/zap"
	"github.com/google/uuid"

	"github.com/whizbang-io/whizbang/internal/coordinator"
	"github.com/whizbang-io/whizbang/internal/dedup"
	"github.com/whizbang-io/whizbang/internal/perspective"
	"github.com/whizbang-io/whizbang/internal/policy"
	"github.com/whizbang-io/whizbang/internal/transport"
	"github.com/whizbang-io/whizbang/internal/worker"
	"github.com/whizbang-io/whizbang/pkg/assert"
	"github.com/whizbang-io/whizbang/pkg/retry"
)

// PerspectiveSpec wires one perspective name to the event fetcher and
// pure Apply function that projects its read model. The
// embedding application owns both — the event store reader is specific
// to however it queries internal/coordinator's event_store table.
type PerspectiveSpec struct {
	Name  string
	Fetch worker.EventFetcher
	Apply perspective.Apply
}

// Subscription wires one inbound destination to the transport that
// delivers it. Which transport+destination pairs a deployment listens
// on is an application concern, not something the policy engine's
// per-message routing can infer statically.
type Subscription struct {
	Transport   string
	Destination string
	Mode        transport.SubscriptionMode
}

// Application bundles everything specific to the embedding service:
// its policy configuration, its receptors, and its perspectives. Only
// infrastructure wiring (connections, transports, workers) is generic
// to bootstrap.
type Application struct {
	PolicyEngine  *policy.Engine
	Associations  []coordinator.MessageAssociationRow
	Receptors     map[string]worker.Receptor
	Subscriptions []Subscription
	Perspectives  []PerspectiveSpec
}

// Service is the composed whizbang runtime: the coordinator, every
// configured worker loop, and the health server, all started through a
// single libCommons.Launcher the way every other component in this
// tree starts its runnables.
type Service struct {
	Logger       libLog.Logger
	Coordinator  *coordinator.Coordinator
	PolicyEngine *policy.Engine
	Publisher    *worker.Publisher
	Consumer     *worker.Consumer
	Perspectives []*worker.Perspective
	HealthServer *Server
	Telemetry    *libOpenTelemetry.Telemetry

	transports    worker.TransportResolver
	subscriptions []transport.Subscription
}

// New wires the full runtime from Config and an Application. It opens
// every configured infrastructure connection, so callers should treat
// a non-nil error as fatal at startup.
func New(cfg *Config, app Application, logger libLog.Logger) (*Service, error) {
	assert.NotNil(app.PolicyEngine, "bootstrap: Application.PolicyEngine must not be nil")

	if logger == nil {
		var err error

		logger, err = libZap.InitializeLoggerWithError()
		if err != nil {
			return nil, fmt.Errorf("bootstrap: failed to initialize logger: %w", err)
		}
	}

	telemetry, err := libOpenTelemetry.InitializeTelemetryWithError(&libOpenTelemetry.TelemetryConfig{
		LibraryName:               cfg.OtelLibraryName,
		ServiceName:               cfg.OtelServiceName,
		ServiceVersion:            cfg.OtelServiceVersion,
		DeploymentEnv:             cfg.OtelDeploymentEnv,
		CollectorExporterEndpoint: cfg.OtelColExporterEndpoint,
		EnableTelemetry:           cfg.EnableTelemetry,
		Logger:                    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: failed to initialize telemetry: %w", err)
	}

	db, err := openPostgres(cfg)
	if err != nil {
		return nil, err
	}

	repo := coordinator.NewPostgresRepository(db)
	coord := coordinator.New(db, repo, app.Associations, logger)

	dbReady := func() bool { return db.Ping() == nil }

	ctx := context.Background()

	transports, err := buildTransports(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	dedupCache := dedup.New(dedup.Config{ConnectionString: cfg.RedisURI, TTL: cfg.dedupTTL()}, logger)

	identity := coordinator.Identity{
		InstanceID: uuid.Must(uuid.NewV7()).String(),
		ServiceName: cfg.OtelServiceName,
		ProcessID:  os.Getpid(),
	}
	if identity.ServiceName == "" {
		identity.ServiceName = ApplicationName
	}

	hostname, _ := os.Hostname()
	identity.HostName = hostname

	workerCfg := worker.Config{
		PollingInterval:      cfg.pollingInterval(),
		IdleThresholdPolls:   cfg.IdleThresholdPolls,
		LeaseSeconds:         cfg.LeaseSeconds,
		DebugMode:            cfg.DebugMode,
		PartitionCount:       cfg.PartitionCount,
		MaxConcurrentStreams: cfg.MaxConcurrentStreams,
	}

	publisher := worker.NewPublisher(workerCfg, coord, transports, identity, dbReady, logger)
	consumer := worker.NewConsumer(workerCfg, coord, identity, dedupCache, dbReady, logger)

	for payloadType, receptor := range app.Receptors {
		consumer.RegisterReceptor(payloadType, receptor)
	}

	var perspectives []*worker.Perspective

	if len(app.Perspectives) > 0 {
		mongoClient, err := openMongo(cfg)
		if err != nil {
			return nil, err
		}

		store := perspective.New(mongoClient, cfg.MongoDBName, logger)

		for _, spec := range app.Perspectives {
			strategy := worker.NewBatchedCompletionStrategy(retry.DefaultPerspectiveConfig())
			perspectives = append(perspectives, worker.NewPerspective(workerCfg, coord, identity, store, spec.Fetch, spec.Apply, strategy, logger))
		}
	}

	health := NewServer(cfg, logger, dbReady)

	svc := &Service{
		Logger:       logger,
		Coordinator:  coord,
		PolicyEngine: app.PolicyEngine,
		Publisher:    publisher,
		Consumer:     consumer,
		Perspectives: perspectives,
		HealthServer: health,
		Telemetry:    telemetry,
		transports:   transports,
	}

	for _, sub := range app.Subscriptions {
		t, ok := transports[sub.Transport]
		if !ok {
			return nil, fmt.Errorf("bootstrap: subscription references unregistered transport %q", sub.Transport)
		}

		subscription, err := consumer.Subscribe(ctx, t, sub.Destination, sub.Mode)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: failed to subscribe to %s/%s: %w", sub.Transport, sub.Destination, err)
		}

		svc.subscriptions = append(svc.subscriptions, subscription)
	}

	return svc, nil
}

// Run starts every worker loop and the health server under one
// Launcher, blocking until SIGINT/SIGTERM.
func (s *Service) Run() {
	if s.Telemetry != nil {
		defer s.Telemetry.ShutdownTelemetry()
	}

	opts := []libCommons.LauncherOption{
		libCommons.WithLogger(s.Logger),
		libCommons.RunApp("Health Server", s.HealthServer),
		libCommons.RunApp("Publisher", runnableFunc(s.Publisher.Run)),
		libCommons.RunApp("Consumer Report Loop", runnableFunc(s.Consumer.ReportLoop)),
	}

	for i, p := range s.Perspectives {
		opts = append(opts, libCommons.RunApp(fmt.Sprintf("Perspective Worker %d", i), runnableFunc(p.Run)))
	}

	libCommons.NewLauncher(opts...).Run()

	for _, sub := range s.subscriptions {
		_ = sub.Close(context.Background())
	}
}

// runnableFunc adapts a ctx-driven loop (the shape every worker in
// internal/worker exposes) into the libCommons.Launcher Runnable this
// tree's Run(l *libCommons.Launcher) error signature expects, the same
// way RedisQueueConsumer.Run ignores its Launcher argument and derives
// its own signal-driven context.
type runnableFunc func(ctx context.Context) error

func (f runnableFunc) Run(_ *libCommons.Launcher) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return f(ctx)
}
