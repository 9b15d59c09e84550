// cleanup.go - Residual-ciphertext sweeper.
//
// The download path purges blobs best-effort; a failed purge or an
// expired-but-never-downloaded record leaves ciphertext behind. This
// background loop reconciles the content store against the ledger.
// Off by default (SSR_SWEEP_ENABLED).
package server

import (
	"context"
	"log"
	"time"
)

// SweeperConfig holds configuration for the purge sweeper.
type SweeperConfig struct {
	Enabled  bool
	Interval time.Duration
	Ledger   RecordLedger
	Store    ContentStore
}

// StartPurgeSweeper runs the reconciliation loop until ctx is done.
func StartPurgeSweeper(ctx context.Context, cfg SweeperConfig) {
	if !cfg.Enabled {
		log.Printf("service=sweeper msg=%q", "disabled")
		return
	}

	log.Printf("service=sweeper msg=%q interval=%s", "starting", cfg.Interval)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	// Run immediately on start
	runSweep(ctx, cfg)

	for {
		select {
		case <-ctx.Done():
			log.Printf("service=sweeper msg=%q", "shutting_down")
			return
		case <-ticker.C:
			runSweep(ctx, cfg)
		}
	}
}

func runSweep(ctx context.Context, cfg SweeperConfig) {
	start := time.Now()

	candidates, err := cfg.Ledger.PurgeCandidates(ctx, time.Now().UTC(), 100)
	if err != nil {
		log.Printf("service=sweeper msg=%q err=%v", "query_failed", err)
		return
	}

	purged := 0
	for _, c := range candidates {
		exists, err := cfg.Store.Exists(ctx, c.StorageKey)
		if err != nil {
			log.Printf("service=sweeper msg=%q id=%s err=%v", "exists_check_failed", c.ID, err)
			continue
		}
		if !exists {
			continue
		}

		if err := cfg.Store.Delete(ctx, c.StorageKey); err != nil {
			log.Printf("service=sweeper msg=%q id=%s err=%v", "blob_delete_failed", c.ID, err)
			GetMetrics().RecordPurgeFailure()
			continue
		}
		purged++
	}

	log.Printf("service=sweeper msg=%q candidates=%d purged=%d duration_ms=%d",
		"sweep_complete", len(candidates), purged, time.Since(start).Milliseconds())
}
