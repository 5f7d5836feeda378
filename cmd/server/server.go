// Command server runs the HTTP intake/query adapter: it accepts new
// orders onto the orders topic and serves read-only views of the book
// and trade history out of the database.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"cex/internal/bus"
	"cex/internal/config"
	"cex/internal/httpapi"
	"cex/internal/intake"
	"cex/internal/queryapi"
	"cex/internal/store"
)

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

	producer := bus.NewProducer(cfg.KafkaBootstrapServers, bus.TopicOrders)
	defer producer.Close()

	srv := httpapi.New(intake.New(db, producer), queryapi.New(db))

	httpSrv := &http.Server{
		Addr:    cfg.ServerAddress,
		Handler: srv.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		log.Info().Msg("server shutting down")
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown failed")
		}
	}()

	log.Info().Str("address", cfg.ServerAddress).Msg("server running")
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server failed")
	}
}
