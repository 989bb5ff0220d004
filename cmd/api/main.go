package main

import (
	"context"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ariefcatur/flower-shop.git/internal/config"
	"github.com/ariefcatur/flower-shop.git/internal/httpx"
	kafkax "github.com/ariefcatur/flower-shop.git/internal/kafka"
	"github.com/ariefcatur/flower-shop.git/internal/memstore"
	"github.com/ariefcatur/flower-shop.git/internal/postgres"
	"github.com/ariefcatur/flower-shop.git/internal/redisx"
	"github.com/ariefcatur/flower-shop.git/internal/shop"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := newLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	replenish := shop.Replenisher(rand.New(rand.NewSource(time.Now().UnixNano())))

	var store shop.Store
	switch cfg.StoreDriver {
	case "memory":
		store = memstore.New(shop.DefaultCatalog(), replenish)
	case "postgres":
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("db connect")
		}
		defer db.Close()
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			log.Fatal().Err(err).Msg("db schema")
		}
		store = postgres.NewStore(db, replenish)
	default:
		log.Fatal().Str("driver", cfg.StoreDriver).Msg("unknown STORE_DRIVER")
	}

	// Pin the business date to today and drop orders that expired while
	// the process was down.
	today := shop.Today()
	if err := store.Init(ctx, today); err != nil {
		log.Fatal().Err(err).Msg("store init")
	}
	log.Info().Str("current_date", today.String()).Str("store", cfg.StoreDriver).Msg("store ready")

	var cache *redis.Client
	if cfg.RedisAddr != "" {
		cache = redisx.New(cfg.RedisAddr)
		defer cache.Close()
	}

	var prod *kafkax.Producer
	if len(cfg.KafkaBrokers) > 0 {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
		prod.Start(ctx)
	}

	router := httpx.NewRouter()
	h := &httpx.Handler{
		Store:    store,
		Cache:    cache,
		Producer: prod,
		Service:  cfg.ServiceName,
		Log:      log,
	}
	h.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	if prod != nil {
		prod.Close() // close inbox -> flush & close writer
		cancel()
		prod.WaitClosed()
	}
}

func newLogger(cfg config.Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(level).With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Logger()
}
