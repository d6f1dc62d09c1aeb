package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler runs the three sync loops concurrently, each on its own
// interval. The loops are fully independent: no ordering is guaranteed
// between them and no state is shared across them.
type Scheduler struct {
	chat     *ChatRelay
	presence *PresenceDiff
	status   *StatusAggregator

	chatInterval     time.Duration
	presenceInterval time.Duration
	statusInterval   time.Duration

	log      *slog.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewScheduler wires the three loops with their intervals.
func NewScheduler(chat *ChatRelay, presence *PresenceDiff, status *StatusAggregator,
	chatInterval, presenceInterval, statusInterval time.Duration, log *slog.Logger) *Scheduler {
	return &Scheduler{
		chat:             chat,
		presence:         presence,
		status:           status,
		chatInterval:     chatInterval,
		presenceInterval: presenceInterval,
		statusInterval:   statusInterval,
		log:              log,
		stopChan:         make(chan struct{}),
	}
}

// Start launches the three loops. They stop together when ctx is cancelled
// or Stop is called; in-flight requests are abandoned through the client's
// request timeout rather than forcibly killed.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info("starting sync loops",
		"chat", s.chatInterval, "presence", s.presenceInterval, "status", s.statusInterval)

	s.run(ctx, "chat relay", s.chatInterval, s.chat.RunCycle)
	s.run(ctx, "presence diff", s.presenceInterval, s.presence.RunCycle)
	s.run(ctx, "status aggregator", s.statusInterval, s.status.RunCycle)
}

func (s *Scheduler) run(ctx context.Context, name string, interval time.Duration, cycle func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		// Initial cycle
		cycle(ctx)

		for {
			select {
			case <-ctx.Done():
				s.log.Info("sync loop stopped (context cancelled)", "loop", name)
				return
			case <-s.stopChan:
				s.log.Info("sync loop stopped", "loop", name)
				return
			case <-ticker.C:
				cycle(ctx)
			}
		}
	}()
}

// Stop signals all loops to stop and waits for them to finish their
// current cycle.
func (s *Scheduler) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}
