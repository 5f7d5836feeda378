package settlement

import (
	"context"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"cex/internal/bus"
)

const taskChanSize = 100

// WorkFunc settles one bus message, returning an error only for a
// fault that should kill the pool (the settle-and-commit failures
// that just mean "retry later" are handled, and logged, inside the
// function itself, never propagated here).
type WorkFunc = func(ctx context.Context, msg bus.Message) error

// Pool runs a fixed number of concurrent settlement workers pulling
// from a shared task channel — the concurrency half of "horizontally
// scaled settlement with serializable isolation": independent trades
// settle in parallel, and Postgres's serializable mode is what keeps
// conflicting updates to the same balance row correct.
type Pool struct {
	n     int
	tasks chan bus.Message
}

func NewPool(size int) *Pool {
	return &Pool{n: size, tasks: make(chan bus.Message, taskChanSize)}
}

// AddTask enqueues a received message for some worker to settle. It
// blocks if the pool is saturated, applying backpressure to the
// dispatcher rather than buffering unboundedly.
func (p *Pool) AddTask(msg bus.Message) {
	p.tasks <- msg
}

// Setup launches exactly p.n long-lived workers under t, each pulling
// tasks off the shared channel for as long as t lives. Unlike a
// self-replenishing scheduler that polls for a free slot, every
// worker is started once and simply loops until shutdown, so the pool
// never spins a goroutine checking for work to dispatch.
func (p *Pool) Setup(t *tomb.Tomb, work WorkFunc) {
	log.Info().Int("workers", p.n).Msg("settlement pool starting")
	for i := 0; i < p.n; i++ {
		t.Go(func() error {
			return p.worker(t, work)
		})
	}
}

func (p *Pool) worker(t *tomb.Tomb, work WorkFunc) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case msg := <-p.tasks:
			if err := work(t.Context(nil), msg); err != nil {
				log.Error().Err(err).Msg("settlement worker exiting")
				return err
			}
		}
	}
}
