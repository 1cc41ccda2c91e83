// Command gateway wires the inference core's packages into one running
// process. HTTP transport, TLS termination, and auth are explicitly out
// of scope (spec §1) - this binary exists to prove the wiring, not to
// serve traffic; an operator embeds inference.Gateway behind whatever
// transport their deployment needs.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tensorzero/gateway/config"
	"github.com/tensorzero/gateway/embedding"
	"github.com/tensorzero/gateway/feedback"
	"github.com/tensorzero/gateway/function"
	"github.com/tensorzero/gateway/inference"
	"github.com/tensorzero/gateway/internal/metrics"
	"github.com/tensorzero/gateway/llm"
	"github.com/tensorzero/gateway/llm/cache"
	"github.com/tensorzero/gateway/persistence"
	"github.com/tensorzero/gateway/template"
	"github.com/tensorzero/gateway/variant"
)

func main() {
	configPath := flag.String("config", "gateway.yaml", "path to the gateway function/model/metric document")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	shutdownTelemetry := initTelemetry()
	defer shutdownTelemetry()

	gw, err := build(*configPath, logger)
	if err != nil {
		logger.Fatal("gateway wiring failed", zap.Error(err))
	}

	logger.Info("gateway wired and ready", zap.String("config", *configPath))
	_ = gw
}

// build performs spec §4.H's startup wiring: load config, construct every
// collaborator the façade needs, and hand back one ready-to-use Gateway.
func build(configPath string, logger *zap.Logger) (*inference.Gateway, error) {
	cfg, err := config.LoadGatewayConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading gateway config: %w", err)
	}

	registry, err := cfg.BuildRegistry(logger)
	if err != nil {
		return nil, fmt.Errorf("building function registry: %w", err)
	}

	if dsn := os.Getenv("TENSORZERO_POSTGRES_DSN"); dsn != "" {
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres shorthand-model mirror: %w", err)
		}
		shorthandStore, err := function.NewShorthandStore(db, logger)
		if err != nil {
			return nil, fmt.Errorf("migrating shorthand-model table: %w", err)
		}
		registry = registry.WithShorthandStore(shorthandStore)
	}

	metricRegistry, err := cfg.BuildMetricRegistry()
	if err != nil {
		return nil, fmt.Errorf("building metric registry: %w", err)
	}

	collector := metrics.NewCollector("tensorzero", logger)

	rdb := redis.NewClient(&redis.Options{Addr: envOr("TENSORZERO_REDIS_ADDR", "localhost:6379")})
	modelCache := cache.NewModelCacheAdapter(cache.NewMultiLevelCache(rdb, cache.DefaultCacheConfig(), logger), logger)

	adapters := config.BuildAdapterRegistry(logger)
	router := llm.NewRouter(adapters, modelCache, logger, collector)

	renderer, err := template.NewRenderer(nil)
	if err != nil {
		return nil, fmt.Errorf("building template renderer: %w", err)
	}

	var embedder variant.Embedder
	if embeddingKey := os.Getenv("TENSORZERO_EMBEDDING_API_KEY"); embeddingKey != "" {
		embedder = embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
			BaseURL: os.Getenv("TENSORZERO_EMBEDDING_BASE_URL"),
			APIKey:  embeddingKey,
			Model:   os.Getenv("TENSORZERO_EMBEDDING_MODEL"),
		})
	}

	dispatcher := &variant.Dispatcher{
		Router:   router,
		Renderer: renderer,
		Registry: registry,
		Logger:   logger,
		Embedder: embedder,
	}

	chAddr := os.Getenv("TENSORZERO_CLICKHOUSE_ADDR")
	if chAddr == "" {
		chAddr = "localhost:9000"
	}
	sink, err := persistence.NewSink(persistence.ClickHouseConfig{
		Addr:     strings.Split(chAddr, ","),
		Database: envOr("TENSORZERO_CLICKHOUSE_DATABASE", "tensorzero"),
		Username: envOr("TENSORZERO_CLICKHOUSE_USER", "default"),
		Password: os.Getenv("TENSORZERO_CLICKHOUSE_PASSWORD"),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("starting persistence sink: %w", err)
	}

	store := persistence.NewStore(sink.Conn())
	correlator := feedback.NewCorrelator(metricRegistry, store, sink, logger)

	return inference.NewGateway(registry, dispatcher, sink, correlator, logger), nil
}

// initTelemetry installs in-process tracer and meter providers so the
// spans/counters recorded in inference.Gateway (one span per inference,
// one counter increment per outcome) have somewhere to land. No OTLP
// exporter is wired - standing up a collector endpoint is out of scope
// here - so both providers just retain their data in-process; an operator
// wanting the data exported attaches an exporter to these providers before
// they're registered.
func initTelemetry() func() {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)

	mp := sdkmetric.NewMeterProvider()
	otel.SetMeterProvider(mp)

	return func() {
		ctx := context.Background()
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
