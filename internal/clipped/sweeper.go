package clipped

import (
	"context"
	"log"

	"github.com/robfig/cron/v3"
)

// Sweeper runs scheduled sweeps of the entitlement cache.
type Sweeper struct {
	cache *Cache
	cron  *cron.Cron
}

func NewSweeper(cache *Cache) *Sweeper {
	return &Sweeper{cache: cache, cron: cron.New()}
}

// Start schedules sweeps with the given cron expression. An empty
// schedule disables scheduled sweeping.
func (s *Sweeper) Start(schedule string) error {
	if schedule == "" {
		log.Printf("[clipped] scheduled sweep disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(schedule, func() {
		if err := s.cache.Sweep(context.Background()); err != nil {
			log.Printf("[clipped] scheduled sweep: %v", err)
		}
	}); err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("[clipped] scheduled sweep: %s", schedule)
	return nil
}

func (s *Sweeper) Stop() {
	s.cron.Stop()
}
