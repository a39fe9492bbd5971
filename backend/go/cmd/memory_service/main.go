package main

import (
	"ai_mem/backend/go/internal/config"
	"ai_mem/backend/go/internal/database/kafka"
	"ai_mem/backend/go/internal/database/milvus"
	"ai_mem/backend/go/internal/database/postgres"
	"ai_mem/backend/go/internal/database/redis"
	"ai_mem/backend/go/internal/discovery/etcd"
	"ai_mem/backend/go/internal/embedding"
	"ai_mem/backend/go/internal/llm"
	"ai_mem/backend/go/internal/memory/api"
	"ai_mem/backend/go/internal/memory/consumer"
	"ai_mem/backend/go/internal/memory/diagnostics"
	"ai_mem/backend/go/internal/memory/extractor"
	"ai_mem/backend/go/internal/memory/service"
	"ai_mem/backend/go/internal/memory/store"
	"ai_mem/backend/go/pkg/circuitbreaker"
	httpserver "ai_mem/backend/go/pkg/http"
	"ai_mem/backend/go/pkg/logger"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Initialize logger
	logCloser, err := logger.Init(logger.Options{
		Level:      cfg.Logger.Level,
		Dir:        cfg.Logger.Dir,
		File:       cfg.Logger.File,
		MaxSizeMB:  cfg.Logger.MaxSizeMB,
		MaxBackups: cfg.Logger.MaxBackups,
	})
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logCloser.Close()
	appLogger := logger.New("memory_service", "", "")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, appLogger); err != nil {
		appLogger.WithErr(err).Error("Memory service stopped with error")
		os.Exit(1)
	}
	appLogger.Info("Memory service stopped")
}

func run(ctx context.Context, cfg *config.AppConfig, appLogger *logger.Logger) error {
	// Initialize LLM and embedding clients
	model, closeLLM, err := newLLM(ctx, cfg, appLogger)
	if err != nil {
		return err
	}
	defer closeLLM()

	embedder, closeEmbedder, err := newEmbedder(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeEmbedder()

	// Initialize vector store
	vecStore, health, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	appLogger.Info("Vector store ready: " + cfg.VectorStore.Provider + "/" + cfg.VectorStore.Collection)

	// Empty-extraction diagnostics
	var sink diagnostics.Sink = diagnostics.Noop{}
	if cfg.EmptyFacts.Enabled {
		emptyFacts, err := diagnostics.NewEmptyFactsLogger(cfg.EmptyFacts)
		if err != nil {
			return err
		}
		defer emptyFacts.Close()
		sink = emptyFacts
	}

	// Initialize memory service
	callTimeout, err := cfg.MemoryService.CallTimeoutDuration()
	if err != nil {
		return err
	}
	memoryService := service.NewMemoryService(
		extractor.NewLLMExtractor(model), embedder, vecStore, sink, appLogger,
		service.WithWorkers(cfg.MemoryService.Workers),
		service.WithCallTimeout(callTimeout),
	)

	// Setup HTTP server
	router := api.NewRouter(api.NewAPI(memoryService, health, appLogger))
	srv, err := httpserver.NewServer(cfg, router,
		httpserver.WithAddress(cfg.MemoryService.ServerAddress),
		httpserver.WithLogger(appLogger),
	)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)

	if cfg.MemoryService.Kafka.Enabled {
		kafkaConsumer, closeKafka, err := newConsumer(ctx, cfg, memoryService, appLogger)
		if err != nil {
			return err
		}
		defer closeKafka()
		g.Go(func() error { return kafkaConsumer.Run(gctx) })
		appLogger.Info("Kafka consumer started on topic " + cfg.MemoryService.Kafka.Topic)
	}

	if cfg.MemoryService.Registry.Enabled {
		deregister, err := register(ctx, cfg, srv.Addr())
		if err != nil {
			return err
		}
		defer deregister()
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		appLogger.Info("Shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	appLogger.Info("Memory service started")
	return g.Wait()
}

func newBreaker(cfg *config.AppConfig) (circuitbreaker.CircuitBreaker, error) {
	return circuitbreaker.FromConfig(cfg.Middleware.CircuitBreaker, circuitbreaker.WithIgnoredErrors(func(err error) bool {
		return errors.Is(err, context.Canceled) || errors.Is(err, llm.ErrEmptyResponse)
	}))
}

// closerOf returns a func closing v when it holds resources.
func closerOf(v any) func() {
	if c, ok := v.(io.Closer); ok {
		return func() { _ = c.Close() }
	}
	return func() {}
}

func newLLM(ctx context.Context, cfg *config.AppConfig, appLogger *logger.Logger) (llm.LLM, func(), error) {
	model, err := llm.NewLLM(ctx, cfg.LLM)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	closeFn := closerOf(model)

	if ollama, ok := model.(*llm.Ollama); ok && cfg.LLM.Ollama.PullMissing {
		pulled, err := ollama.EnsureModel(ctx)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		if pulled {
			appLogger.Info("Pulled Ollama model " + cfg.LLM.Ollama.Model)
		}
	}

	if !cfg.Middleware.CircuitBreaker.Enabled {
		return model, closeFn, nil
	}
	cb, err := newBreaker(cfg)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return llm.WithCircuitBreaker(model, cb), closeFn, nil
}

func newEmbedder(ctx context.Context, cfg *config.AppConfig) (embedding.Embedding, func(), error) {
	embedder, err := embedding.New(ctx, cfg.Embedding)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create embedding client: %w", err)
	}
	closeFn := closerOf(embedder)
	if !cfg.Middleware.CircuitBreaker.Enabled {
		return embedder, closeFn, nil
	}
	cb, err := newBreaker(cfg)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return embedding.WithCircuitBreaker(embedder, cb), closeFn, nil
}

func newStore(ctx context.Context, cfg *config.AppConfig) (store.Store, store.HealthChecker, func(), error) {
	vs := cfg.VectorStore
	switch vs.Provider {
	case "milvus":
		mc, err := milvus.GetClient(ctx, &cfg.Databases.Milvus)
		if err != nil {
			return nil, nil, nil, err
		}
		if vs.EnsureSchema {
			schema := milvus.MemorySchema{
				IDField:      store.MilvusFieldID,
				VectorField:  store.MilvusFieldVector,
				PayloadField: store.MilvusFieldPayload,
			}
			if err := mc.EnsureCollection(ctx, vs.Collection, vs.Dimension, schema); err != nil {
				mc.Close()
				return nil, nil, nil, err
			}
		}
		s, err := store.NewMilvusStore(mc.Client, vs.Collection, vs.Dimension, mc.HealthCheck)
		if err != nil {
			mc.Close()
			return nil, nil, nil, err
		}
		return s, s, func() { _ = mc.Close() }, nil

	default:
		pg := &cfg.Databases.Postgres
		if vs.EnsureSchema {
			if err := postgres.EnsureExtension(ctx, pg); err != nil {
				return nil, nil, nil, err
			}
		}
		pool, err := postgres.GetPool(ctx, pg)
		if err != nil {
			return nil, nil, nil, err
		}
		s, err := store.NewPgVectorStore(store.PgxPool{Pool: pool}, vs.Collection, vs.Dimension)
		if err != nil {
			postgres.Close()
			return nil, nil, nil, err
		}
		if vs.EnsureSchema {
			if err := s.EnsureSchema(ctx); err != nil {
				postgres.Close()
				return nil, nil, nil, err
			}
		}
		return s, s, postgres.Close, nil
	}
}

func newConsumer(ctx context.Context, cfg *config.AppConfig, svc consumer.MemoryCreator, appLogger *logger.Logger) (*consumer.KafkaConsumer, func(), error) {
	kcfg := cfg.MemoryService.Kafka
	kc, err := kafka.GetClient(&cfg.Databases.Kafka, kafka.Subscription{Topic: kcfg.Topic, GroupID: kcfg.GroupID})
	if err != nil {
		return nil, nil, err
	}
	closeAll := func() { _ = kc.Close() }

	var opts []consumer.Option
	if kcfg.ResultTopic != "" {
		opts = append(opts, consumer.WithPublisher(kafka.NewResultPublisher(kc.Writer, kcfg.ResultTopic)))
	}

	ttl, err := kcfg.DedupeTTLDuration()
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	if ttl > 0 {
		rdb, err := redis.GetClient(ctx, &cfg.Databases.Redis)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		opts = append(opts, consumer.WithDeduplicator(consumer.NewRedisDeduplicator(rdb, "ai_mem:kafka:", ttl)))
		closeAll = func() {
			_ = kc.Close()
			_ = redis.Close()
		}
	}

	return consumer.NewKafkaConsumer(kc.Reader, svc, appLogger, opts...), closeAll, nil
}

func register(ctx context.Context, cfg *config.AppConfig, listenAddr string) (func(), error) {
	sd, err := etcd.NewServiceDiscovery(&cfg.Databases.Etcd)
	if err != nil {
		return nil, err
	}
	addr, err := advertiseAddr(listenAddr)
	if err != nil {
		sd.Close()
		return nil, err
	}
	reg, err := sd.Register(ctx, cfg.MemoryService.Registry.Name, addr, cfg.MemoryService.Registry.TTL)
	if err != nil {
		sd.Close()
		return nil, err
	}
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = reg.Close(shutdownCtx)
		_ = sd.Close()
	}, nil
}

// advertiseAddr fills in the hostname when the listen address has no host.
func advertiseAddr(listenAddr string) (string, error) {
	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return "", fmt.Errorf("invalid server address %q: %w", listenAddr, err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		if host, err = os.Hostname(); err != nil {
			return "", err
		}
	}
	return net.JoinHostPort(host, port), nil
}
