/**
 * @description
 * Cron scheduler for background maintenance: re-driving stale pending receipt
 * verifications through the pipeline (typically ones parked on a recognition
 * outage) and lapsing expired companion codes.
 *
 * @dependencies
 * - github.com/robfig/cron/v3: Job scheduling.
 */

package app

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Poller owns the cron instance and the maintenance jobs.
type Poller struct {
	cron    *cron.Cron
	service *Service
}

// NewPoller creates the maintenance scheduler.
func NewPoller(service *Service) *Poller {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	return &Poller{cron: c, service: service}
}

// Start registers the jobs and starts the scheduler.
func (p *Poller) Start() {
	schedule := p.service.cfg.ReceiptRedriveCron
	if _, err := p.cron.AddFunc(schedule, p.runMaintenance); err != nil {
		log.Printf("level=error component=poller msg=\"failed to schedule maintenance job\" schedule=%q err=%v", schedule, err)
		return
	}
	log.Printf("level=info component=poller msg=\"maintenance job scheduled\" schedule=%q", schedule)
	p.cron.Start()
}

// Stop gracefully stops the scheduler and returns a context that is done once
// running jobs have finished.
func (p *Poller) Stop() context.Context {
	return p.cron.Stop()
}

func (p *Poller) runMaintenance() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	p.service.RedriveStaleReceipts(ctx)

	lapsed, err := p.service.repo.LapseExpiredCompanionCodes(ctx, p.service.now().UTC())
	if err != nil {
		log.Printf("level=warn component=poller msg=\"failed to lapse expired codes\" err=%v", err)
	} else if lapsed > 0 {
		log.Printf("level=info component=poller msg=\"expired codes lapsed\" count=%d", lapsed)
	}
}

// RedriveStaleReceipts runs one verification pass over pending records older
// than the re-drive threshold. Each record's outcome stands on its own; one
// failure does not stop the batch.
func (s *Service) RedriveStaleReceipts(ctx context.Context) {
	cutoff := s.now().UTC().Add(-time.Duration(s.cfg.ReceiptRedriveAfterMin) * time.Minute)
	stale, err := s.repo.ListStalePendingReceipts(ctx, cutoff, s.cfg.ReceiptRedriveBatchLimit)
	if err != nil {
		log.Printf("level=warn component=poller msg=\"failed to list stale receipts\" err=%v", err)
		return
	}
	if len(stale) == 0 {
		return
	}

	log.Printf("level=info component=poller msg=\"re-driving stale receipts\" count=%d", len(stale))
	for i := range stale {
		rv := stale[i]
		if _, err := s.runVerification(ctx, &rv); err != nil {
			log.Printf("level=warn component=poller msg=\"re-drive failed\" verification_id=%s err=%v", rv.ID, err)
		}
	}
}
