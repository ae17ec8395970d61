package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

// Poller is a periodic check, such as the connectivity probe.
type Poller interface {
	Poll(ctx context.Context)
}

// Scheduler runs its pollers at a fixed interval.
type Scheduler struct {
	scheduler *gocron.Scheduler
	pollers   []Poller
	interval  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Scheduler.
func New(interval time.Duration, pollers ...Poller) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	// A slow poll must not overlap with the next one.
	s.SingletonModeAll()

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: s,
		pollers:   pollers,
		interval:  interval,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start schedules the polling job and starts the underlying scheduler.
// The first run happens immediately.
func (s *Scheduler) Start() error {
	if len(s.pollers) == 0 {
		log.Println("scheduler: no pollers configured; nothing to schedule")
		return nil
	}
	if s.interval <= 0 {
		return errors.New("scheduler: interval must be positive")
	}

	_, err := s.scheduler.Every(s.interval).Do(s.runOnce)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) runOnce() {
	var wg sync.WaitGroup
	for _, p := range s.pollers {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Poll(s.ctx)
		}()
	}
	wg.Wait()
}

// Stop cancels running polls and stops future runs.
func (s *Scheduler) Stop() {
	s.cancel()
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
