package broadcast

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"whatsapp-crm/internal/store"
	"whatsapp-crm/internal/ws"
)

// Sweeper recomputes stats for campaigns still processing. It catches
// campaigns whose last job settled while the per-job rollup failed.
type Sweeper struct {
	store *store.Store
	pub   ws.Publisher
}

func NewSweeper(s *store.Store, pub ws.Publisher) *Sweeper {
	return &Sweeper{store: s, pub: pub}
}

// Run performs one sweep and returns how many campaigns left processing.
func (s *Sweeper) Run(ctx context.Context) int {
	ids, err := s.store.ProcessingCampaignIDs(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Campaign sweep: listing campaigns failed")
		return 0
	}

	finished := 0
	for _, id := range ids {
		c, err := s.store.RollupCampaign(ctx, id)
		if err != nil {
			log.Error().Err(err).Str("campaign_id", id).Msg("Campaign sweep: rollup failed")
			continue
		}
		if c.CompletedAt != nil {
			finished++
			s.pub.Publish(c.TenantID, ws.EventCampaignUpdated, c)
		}
	}
	if finished > 0 {
		log.Info().Int("campaigns", finished).Msg("Campaign sweep finished campaigns")
	}
	return finished
}

// Job adapts Run to a cron func with a bounded run time.
func (s *Sweeper) Job() func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		s.Run(ctx)
	}
}
