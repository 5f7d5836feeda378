// Command settlement consumes matched-orders and settles each fill
// against the database: order status updates, balance transfers, and
// the idempotency-guarded trades ledger. A pool of workers settles
// independent trades concurrently; Postgres's serializable isolation
// keeps conflicting updates to a shared balance row correct.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"cex/internal/bus"
	"cex/internal/config"
	"cex/internal/domain"
	"cex/internal/settlement"
	"cex/internal/store"
)

const poolSize = 8

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("loading configuration")
	}

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("connecting to database")
	}
	defer db.Close()
	if err := db.ApplySchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("applying schema")
	}

	consumer := bus.NewConsumer(cfg.KafkaBootstrapServers, bus.TopicMatchedOrders, cfg.ConsumerGroup)
	defer consumer.Close()

	processor := settlement.NewProcessor(db)
	pool := settlement.NewPool(poolSize)

	t, ctx := tomb.WithContext(ctx)
	t.Go(func() error {
		pool.Setup(t, settleOne(processor))
		return nil
	})
	t.Go(func() error {
		return dispatch(ctx, consumer, pool)
	})

	log.Info().Strs("brokers", cfg.KafkaBootstrapServers).Int("workers", poolSize).Msg("settlement running")

	<-ctx.Done()
	log.Info().Msg("settlement shutting down")
	if err := t.Wait(); err != nil {
		log.Error().Err(err).Msg("settlement exited with error")
	}
}

// dispatch pulls messages off the bus and hands them to the worker
// pool. It is the only goroutine calling Recv, so input offsets are
// requested in order even though settlement itself happens out of
// order across workers.
func dispatch(ctx context.Context, consumer bus.Consumer, pool *settlement.Pool) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msg, ok, err := consumer.Recv(ctx)
		if err != nil {
			log.Error().Err(err).Msg("bus receive failed")
			continue
		}
		if !ok {
			continue
		}
		pool.AddTask(msg)
	}
}

// settleOne builds the per-message work function a Pool worker runs:
// parse, settle, and commit only on success. A failure here is logged
// and swallowed, never returned, so one bad trade never tears down the
// whole pool.
func settleOne(processor *settlement.Processor) settlement.WorkFunc {
	return func(ctx context.Context, msg bus.Message) error {
		var matched domain.MatchedOrder
		if err := json.Unmarshal(msg.Value, &matched); err != nil {
			log.Error().Err(err).Msg("malformed matched order, dropping")
			if err := msg.Commit(ctx); err != nil {
				log.Error().Err(err).Msg("commit offset after drop")
			}
			return nil
		}

		if err := processor.Settle(ctx, matched); err != nil {
			if errors.Is(err, domain.ErrOrderMissing) {
				log.Error().Err(err).
					Str("buy_order_id", matched.BuyOrderID.String()).
					Str("sell_order_id", matched.SellOrderID.String()).
					Msg("referenced order missing, skipping settlement")
				if err := msg.Commit(ctx); err != nil {
					log.Error().Err(err).Msg("commit offset after skipped settlement")
				}
				return nil
			}
			log.Error().Err(err).
				Str("buy_order_id", matched.BuyOrderID.String()).
				Str("sell_order_id", matched.SellOrderID.String()).
				Msg("settlement failed, will not advance offset")
			return nil
		}

		if err := msg.Commit(ctx); err != nil {
			log.Error().Err(err).Msg("commit input offset")
		}
		return nil
	}
}
