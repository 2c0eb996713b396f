// services/scheduler.go
package services

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartDeadlineSweep runs a per-minute job flagging registry entries whose
// deadline has passed. The flag is advisory for clients; deadline
// enforcement itself happens at call time and money never moves here.
func (s *RegistryService) StartDeadlineSweep() {
	sched, err := gocron.NewScheduler()
	if err != nil {
		log.Printf("[Scheduler] init failed: %v", err)
		return
	}
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			n, err := s.SweepExpired(time.Now())
			if err != nil {
				log.Printf("[Scheduler] expiry sweep failed: %v", err)
				return
			}
			if n > 0 {
				log.Printf("⏰ Marked %d quest(s) expired in registry", n)
			}
		}),
	)
}
