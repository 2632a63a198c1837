package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/oshokin/presence-alarm/internal/config"
	"github.com/oshokin/presence-alarm/internal/logger"
	"github.com/oshokin/presence-alarm/internal/repository/store"
	"github.com/oshokin/presence-alarm/internal/service/alarm"
	"github.com/oshokin/presence-alarm/internal/service/common"
)

// Scheduler periodically sweeps every network and opens or closes alarms
// according to freshness and device operation modes.
type Scheduler struct {
	// repo is read and written inside one transaction per network.
	repo store.Repository
	// alarms implements the open/close contract and provides the clock.
	alarms *alarm.Service
	// locker serializes work per network with the diff engine.
	locker *common.KeyedLocker
	// settings holds the sweep cadence and fan-out.
	settings config.Scheduler
	// timeout bounds the work on one network.
	timeout time.Duration
}

// New creates a scheduler.
func New(
	repo store.Repository,
	alarms *alarm.Service,
	locker *common.KeyedLocker,
	settings config.Scheduler,
	timeout time.Duration,
) *Scheduler {
	if settings.Workers <= 0 {
		settings.Workers = config.DefaultWorkers
	}

	if settings.Interval <= 0 {
		settings.Interval = config.DefaultInterval
	}

	return &Scheduler{
		repo:     repo,
		alarms:   alarms,
		locker:   locker,
		settings: settings,
		timeout:  timeout,
	}
}

// Run waits for the initial delay, sweeps once, then sweeps every interval
// until ctx is canceled. Overlapping ticks are skipped. On shutdown it waits
// for the running sweep to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "scheduler")

	logger.InfoKV(ctx, "Alarm scheduler starting",
		"initial_delay", s.settings.InitialDelay,
		"interval", s.settings.Interval,
		"workers", s.settings.Workers)

	// Wait for the initial delay unless shutdown comes first.
	timer := time.NewTimer(s.settings.InitialDelay)

	select {
	case <-ctx.Done():
		timer.Stop()

		return nil
	case <-timer.C:
	}

	cronLogger := logger.NewCronLogger(ctx, zap.WarnLevel)
	job := cron.NewChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	).Then(cron.FuncJob(func() {
		s.tick(ctx)
	}))

	c := cron.New(cron.WithLogger(cronLogger))
	c.Schedule(cron.Every(s.settings.Interval), job)
	c.Start()

	// The first sweep runs right after the initial delay.
	job.Run()

	<-ctx.Done()
	logger.Info(ctx, "Stopping alarm scheduler")

	// Stop accepting ticks and wait for the running sweep.
	<-c.Stop().Done()
	logger.Info(ctx, "Alarm scheduler stopped")

	return nil
}

func (s *Scheduler) tick(ctx context.Context) {
	started := time.Now()

	if err := s.Sweep(ctx); err != nil {
		logger.ErrorKV(ctx, "Alarm sweep finished with errors", "error", err, "took", time.Since(started))

		return
	}

	logger.DebugKV(ctx, "Alarm sweep finished", "took", time.Since(started))
}

// Sweep checks every network once. Networks are swept concurrently up to the
// configured number of workers; a failing network does not stop the others.
// Cancellation is only checked between networks.
func (s *Scheduler) Sweep(ctx context.Context) error {
	networks, err := s.repo.ListNetworks(ctx)
	if err != nil {
		return fmt.Errorf("list networks: %w", err)
	}

	var (
		group errgroup.Group
		mu    sync.Mutex
		errs  []error
	)

	group.SetLimit(s.settings.Workers)

	for _, network := range networks {
		if ctx.Err() != nil {
			logger.Info(ctx, "Sweep interrupted by shutdown")

			break
		}

		name := network.Name

		group.Go(func() error {
			if sweepErr := s.SweepNetwork(ctx, name); sweepErr != nil {
				mu.Lock()
				errs = append(errs, sweepErr)
				mu.Unlock()
			}

			return nil
		})
	}

	_ = group.Wait()

	return errors.Join(errs...)
}

// SweepNetwork applies the lifecycle rules to one network in a single
// transaction inside the network's critical section. Once started it is not
// interrupted by cancellation of ctx.
func (s *Scheduler) SweepNetwork(ctx context.Context, name string) error {
	ctx = logger.WithKV(ctx, "network", name)

	workCtx := context.WithoutCancel(ctx)

	if s.timeout > 0 {
		var cancel context.CancelFunc

		workCtx, cancel = context.WithTimeout(workCtx, s.timeout)
		defer cancel()
	}

	unlock, err := s.locker.Lock(workCtx, name)
	if err != nil {
		return err
	}

	defer unlock()

	batch := s.alarms.NewBatch()

	err = s.repo.InTx(workCtx, func(tx store.Repository) error {
		return s.sweep(workCtx, tx, batch, name)
	})
	if err != nil {
		logger.ErrorKV(ctx, "Failed to sweep network", "error", err)

		return fmt.Errorf("sweep network %q: %w", name, err)
	}

	if err = batch.Deliver(workCtx); err != nil {
		return fmt.Errorf("sweep network %q: %w", name, err)
	}

	return nil
}
