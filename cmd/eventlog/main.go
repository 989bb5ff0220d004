// eventlog tails the shop topics and writes an audit line per event.
// Mostly useful when poking at the API by hand: it shows what the shop
// thinks happened, in order, deduplicated across restarts.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/flower-shop.git/internal/config"
	kafkax "github.com/ariefcatur/flower-shop.git/internal/kafka"
	"github.com/ariefcatur/flower-shop.git/internal/redisx"
	"github.com/ariefcatur/flower-shop.git/internal/shop"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	zerolog.TimeFieldFormat = time.RFC3339
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.ServiceName+"-eventlog").Logger()

	if len(cfg.KafkaBrokers) == 0 {
		log.Fatal().Msg("KAFKA_BROKERS is required")
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redisx.New(cfg.RedisAddr)
		defer rdb.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group := getenv("EVENTLOG_GROUP", "shop-eventlog")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, shop.Topics(), log)
	log.Info().Str("group", group).Strs("topics", shop.Topics()).Msg("eventlog started")

	handler := func(ctx context.Context, m kafkago.Message) error {
		var env shop.Envelope
		if err := json.Unmarshal(m.Value, &env); err != nil {
			// Poison message; log it and move on.
			log.Warn().Err(err).Str("topic", m.Topic).Int64("offset", m.Offset).Msg("undecodable event")
			return nil
		}

		if rdb != nil {
			key := fmt.Sprintf(redisx.KeyDedup, "eventlog", env.EventID)
			seen, err := rdb.Exists(ctx, key).Result()
			if err == nil && seen > 0 {
				return nil
			}
			_ = rdb.Set(ctx, key, "1", redisx.TTLDedup).Err()
		}

		line := log.Info().
			Str("topic", m.Topic).
			Str("event", env.EventType).
			Str("event_id", env.EventID).
			Str("correlation_id", env.CorrelationID).
			Str("producer", env.Producer).
			Time("occurred_at", env.OccurredAt).
			RawJSON("payload", env.Payload)
		if env.EventType == shop.EventDayAdvanced {
			if p, err := kafkax.UnwrapPayload[shop.DayAdvancedPayload](env.Payload); err == nil {
				line = line.Int("orders_shipped", len(p.PurgedOrders)).Int("items_shipped", len(p.Shipped))
			}
		}
		line.Msg("event")
		return nil
	}

	if err := cons.Run(ctx, handler); err != nil {
		log.Error().Err(err).Msg("consumer exit")
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
