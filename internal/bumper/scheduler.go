package bumper

import (
	"context"
	"fmt"

	"forumbump/internal/components/assert"
	"forumbump/internal/components/chrono"
	"forumbump/internal/components/telemetry"
	"forumbump/internal/config"
	"forumbump/pkg/textutil"
)

const (
	report_scheduler_resolve = "scheduler.resolve"
	report_scheduler_reply   = "scheduler.reply"
	report_count_posts       = "posts"
	report_count_bumps       = "bumps"
)

// Forum is what the scheduler needs from a logged in forum session.
type Forum interface {
	ResolveThread(ctx context.Context, ref string) (string, error)
	Reply(ctx context.Context, tid, message string) error
}

// Scheduler bumps every configured thread in order, forever.
type Scheduler struct {
	forum Forum
	store *config.Store
	stats *Stats
	sleep chrono.SleepAPI
	tel   telemetry.API
}

func NewScheduler(
	forum Forum,
	store *config.Store,
	stats *Stats,
	sleep chrono.SleepAPI,
	tel telemetry.API,
) *Scheduler {
	assert.NotNil(forum)
	assert.NotNil(store)
	assert.NotNil(stats)
	assert.NotNil(sleep)
	assert.NotNil(tel)

	return &Scheduler{
		forum: forum,
		store: store,
		stats: stats,
		sleep: sleep,
		tel:   telemetry.NewScopedAPI("bumper", tel),
	}
}

// Cycle posts to every thread of the current configuration once, sleeping
// post_delay between two posts. Changes made to the configuration during a
// cycle apply to the next one.
func (s *Scheduler) Cycle(ctx context.Context) error {
	cfg := s.store.Snapshot()

	for i, thread := range cfg.Threads {
		message := cfg.MessageFor(thread)

		tid := thread.Id
		if !textutil.IsDigits(tid) {
			resolved, err := s.forum.ResolveThread(ctx, tid)
			if err != nil {
				s.tel.ReportBroken(report_scheduler_resolve, err, tid)
				return fmt.Errorf("resolve thread '%s': %w", tid, err)
			}
			// resolution only ever happens once per thread
			s.store.SetThreadID(tid, resolved)
			thread.Id = resolved
			tid = resolved
		}

		err := s.forum.Reply(ctx, tid, message)
		if err != nil {
			s.tel.ReportBroken(report_scheduler_reply, err, tid)
			return fmt.Errorf("reply to thread '%s': %w", tid, err)
		}

		posts := s.stats.recordPost()
		s.tel.ReportInfo(fmt.Sprintf("Bumped %s", thread.DisplayName()))
		s.tel.ReportCount(report_count_posts, posts)

		if i == len(cfg.Threads)-1 {
			break
		}
		err = s.sleep.Sleep(ctx, cfg.PostInterval())
		if err != nil {
			return err
		}
	}

	bumps := s.stats.recordBump()
	s.tel.ReportCount(report_count_bumps, bumps)
	return nil
}

// Run repeats Cycle with a bump_delay wait in between. It only returns when
// a cycle fails or ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.tel.ReportInfo("Started running the bumper")
	for {
		err := s.Cycle(ctx)
		if err != nil {
			return err
		}

		cfg := s.store.Snapshot()
		s.tel.ReportInfo(fmt.Sprintf(
			"Bumped all threads successfully, waiting %g minutes",
			cfg.BumpDelay,
		))
		err = s.sleep.Sleep(ctx, cfg.BumpInterval())
		if err != nil {
			return err
		}
	}
}
