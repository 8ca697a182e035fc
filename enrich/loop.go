package enrich

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// LoopConfig bounds one pass of the background enrichment loop.
type LoopConfig struct {
	Interval     time.Duration
	RefreshLimit int
	HydrateLimit int
	EmbedLimit   int
	CutoffWindow time.Duration
}

// StartLoop runs refresh/hydrate/embed passes on a fixed cadence until the
// context is canceled. It is the in-process stand-in for an external
// scheduler; each pass is just the same idempotent jobs.
func (o *Orchestrator) StartLoop(ctx context.Context, cfg LoopConfig) {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Minute
	}
	if cfg.RefreshLimit <= 0 {
		cfg.RefreshLimit = 1000
	}
	if cfg.HydrateLimit <= 0 {
		cfg.HydrateLimit = 100
	}
	if cfg.CutoffWindow <= 0 {
		cfg.CutoffWindow = 24 * time.Hour
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	log.Infof("enrichment loop started, interval %s", cfg.Interval)

	for {
		o.runPass(ctx, cfg)
		select {
		case <-ctx.Done():
			log.Info("enrichment loop stopped")
			return
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) runPass(ctx context.Context, cfg LoopConfig) {
	if _, err := o.ResetStale(ctx); err != nil {
		log.Errorf("reset stale: %v", err)
	}

	cutoff := time.Now().Add(-cfg.CutoffWindow)
	for source := range o.cfg.Incremental {
		report, err := o.Refresh(ctx, source, cfg.RefreshLimit, &cutoff)
		if err != nil {
			log.Errorf("refresh %s: %v", source, err)
		} else {
			log.Infof("refresh %s: fetched=%d", source, report.Fetched)
		}
	}

	for source := range o.cfg.Detail {
		report, err := o.Hydrate(ctx, source, cfg.HydrateLimit)
		if err != nil {
			log.Errorf("hydrate %s: %v", source, err)
		} else if report.Fetched > 0 {
			log.Infof("hydrate %s: enriched=%d failed=%d", source, report.Enriched, report.Failed)
		}
	}

	if o.cfg.Encoder != nil {
		report, err := o.Embed(ctx, cfg.EmbedLimit)
		if err != nil {
			log.Errorf("embed: %v", err)
		} else if report.Fetched > 0 {
			log.Infof("embed: written=%d failed=%d", report.Enriched, report.Failed)
		}
	}
}
