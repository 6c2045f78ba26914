package ingestion_engine

import (
	"context"
	"log"
	"time"
)

// Sweeper periodically reclaims running jobs that never reached a terminal
// state (process crash, network partition), freeing the document's
// single-flight slot so a retry can proceed.
type Sweeper struct {
	engine   *JobEngine
	staleAge time.Duration
	interval time.Duration
}

func NewSweeper(engine *JobEngine, staleAge, interval time.Duration) *Sweeper {
	return &Sweeper{engine: engine, staleAge: staleAge, interval: interval}
}

// Run blocks until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Sweeper: shutting down.")
			return
		case <-ticker.C:
			n, err := s.engine.SweepStale(ctx, s.staleAge)
			if err != nil {
				log.Printf("Sweeper: sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("Sweeper: force-failed %d stale running job(s)", n)
			}
		}
	}
}
