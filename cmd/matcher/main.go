// Command matcher consumes the orders topic, runs each message through
// the in-memory matching engine, and publishes the resulting fills to
// matched-orders.
package main

import (
	"context"
	"encoding/json"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"cex/internal/bus"
	"cex/internal/config"
	"cex/internal/domain"
	"cex/internal/matching"
)

const sendRetryBackoff = 500 * time.Millisecond

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("loading configuration")
	}

	consumer := bus.NewConsumer(cfg.KafkaBootstrapServers, bus.TopicOrders, cfg.ConsumerGroup)
	producer := bus.NewProducer(cfg.KafkaBootstrapServers, bus.TopicMatchedOrders)
	defer consumer.Close()
	defer producer.Close()

	engine := matching.NewEngine(nil)

	t, ctx := tomb.WithContext(ctx)
	t.Go(func() error {
		return run(ctx, engine, consumer, producer)
	})

	log.Info().Strs("brokers", cfg.KafkaBootstrapServers).Msg("matcher running")

	<-ctx.Done()
	log.Info().Msg("matcher shutting down")
	if err := t.Wait(); err != nil {
		log.Error().Err(err).Msg("matcher exited with error")
	}
}

// run is the matcher's suspension-point loop: recv, match
// (synchronous, non-suspending), send the batch in order, then commit
// the input offset. A message that fails to parse or validate is
// logged and its offset is still committed — a malformed order can
// never be retried into validity.
func run(ctx context.Context, engine *matching.Engine, consumer bus.Consumer, producer bus.Producer) error {
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

		var order domain.OrderMessage
		if err := json.Unmarshal(msg.Value, &order); err != nil {
			log.Error().Err(err).Msg("malformed order message, dropping")
			if err := msg.Commit(ctx); err != nil {
				log.Error().Err(err).Msg("commit offset after drop")
			}
			continue
		}

		fills, err := engine.Match(order)
		if err != nil {
			log.Error().Err(err).Str("order_id", order.OrderID.String()).Msg("rejecting order")
			if err := msg.Commit(ctx); err != nil {
				log.Error().Err(err).Msg("commit offset after rejection")
			}
			continue
		}

		sendFailed := false
		for _, fill := range fills {
			payload, err := json.Marshal(fill)
			if err != nil {
				log.Error().Err(err).Msg("marshal matched order")
				sendFailed = true
				break
			}
			err = producer.Send(ctx, []byte(fill.Key()), payload)
			for err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("publish matched order, retrying")
				time.Sleep(sendRetryBackoff)
				err = producer.Send(ctx, []byte(fill.Key()), payload)
			}
			if err != nil {
				sendFailed = true
				break
			}
		}
		if sendFailed {
			// Do not commit: the batch was not fully published (a fill
			// failed to marshal, or shutdown began while a send was failing).
			continue
		}

		if err := msg.Commit(ctx); err != nil {
			log.Error().Err(err).Msg("commit input offset")
		}
	}
}
