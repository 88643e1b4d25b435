package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/glebk/weather-bot/internal/dialog"
	"github.com/glebk/weather-bot/internal/domain"
	"github.com/glebk/weather-bot/internal/observability"
	"github.com/glebk/weather-bot/internal/weather"
)

// Subscribers lists users that opted into periodic updates
type Subscribers interface {
	ListSubscribed(ctx context.Context) ([]domain.Subscriber, error)
}

// CurrentWeather fetches the current conditions at a point
type CurrentWeather interface {
	CurrentByCoordinate(ctx context.Context, c domain.Coordinate) (*weather.Current, error)
}

// Sender pushes a message to a chat
type Sender interface {
	Send(ctx context.Context, chatID int64, r dialog.Reply) (dialog.MessageRef, error)
}

// Pruner removes stale cache rows
type Pruner interface {
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Options configures a Notifier
type Options struct {
	Interval    time.Duration
	Concurrency int
	// SweepAge is the cache row age removed by the sweep job; 0 disables it.
	SweepAge time.Duration
	// NotifyHour reports whether a cycle may deliver at t; nil means always.
	NotifyHour func(t time.Time) bool
}

// CycleReport summarizes one notification cycle
type CycleReport struct {
	ID        string
	Delivered int
	Failed    int
	Skipped   int
}

// Notifier pushes weather updates to subscribers on a fixed period
// and sweeps the response cache.
type Notifier struct {
	subscribers Subscribers
	weather     CurrentWeather
	out         Sender
	cache       Pruner
	opts        Options
	logger      *zap.Logger
	cron        *cron.Cron
	now         func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// NewNotifier creates a new Notifier. cache may be nil when no sweep is wanted.
func NewNotifier(subs Subscribers, w CurrentWeather, out Sender, cache Pruner, opts Options, logger *zap.Logger) (*Notifier, error) {
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("notification interval must be positive, got %v", opts.Interval)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	n := &Notifier{
		subscribers: subs,
		weather:     w,
		out:         out,
		cache:       cache,
		opts:        opts,
		logger:      logger,
		now:         time.Now,
	}

	cl := cronLogger{logger.Sugar()}
	n.cron = cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))

	if _, err := n.cron.AddFunc("@every "+opts.Interval.String(), n.notifyJob); err != nil {
		return nil, fmt.Errorf("failed to schedule notifications: %w", err)
	}
	if cache != nil && opts.SweepAge > 0 {
		if _, err := n.cron.AddFunc("@every 1h", n.sweepJob); err != nil {
			return nil, fmt.Errorf("failed to schedule cache sweep: %w", err)
		}
	}
	return n, nil
}

// Start runs the scheduled jobs in the background until Stop
func (n *Notifier) Start(ctx context.Context) {
	n.ctx, n.cancel = context.WithCancel(ctx)
	n.cron.Start()
	n.logger.Info("notifier started",
		zap.Duration("interval", n.opts.Interval),
		zap.Int("concurrency", n.opts.Concurrency),
		zap.Duration("sweep_age", n.opts.SweepAge))
}

// Stop prevents new runs and waits for a running cycle. If ctx expires
// first the running cycle is cancelled.
func (n *Notifier) Stop(ctx context.Context) error {
	stopped := n.cron.Stop()
	defer func() {
		if n.cancel != nil {
			n.cancel()
		}
	}()

	select {
	case <-stopped.Done():
		n.logger.Info("notifier stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *Notifier) baseContext() context.Context {
	if n.ctx != nil {
		return n.ctx
	}
	return context.Background()
}

func (n *Notifier) notifyJob() {
	n.RunCycle(n.baseContext())
}

func (n *Notifier) sweepJob() {
	ctx, cancel := context.WithTimeout(n.baseContext(), time.Minute)
	defer cancel()

	removed, err := n.cache.Prune(ctx, n.opts.SweepAge)
	if err != nil {
		n.logger.Warn("cache sweep failed", zap.Error(err))
		return
	}
	n.logger.Info("cache sweep completed", zap.Int64("removed", removed))
}

// RunCycle delivers one round of updates. Failures are isolated per user
// and only reported.
func (n *Notifier) RunCycle(ctx context.Context) CycleReport {
	report := CycleReport{ID: uuid.NewString()}
	logger := n.logger.With(zap.String("cycle_id", report.ID))
	start := n.now()
	defer func() {
		observability.NotificationCycleDuration.Observe(time.Since(start).Seconds())
	}()

	subs, err := n.subscribers.ListSubscribed(ctx)
	if err != nil {
		logger.Warn("failed to list subscribers", zap.Error(err))
		return report
	}

	if n.opts.NotifyHour != nil && !n.opts.NotifyHour(start) {
		report.Skipped = len(subs)
		observability.NotificationsTotal.WithLabelValues("skipped").Add(float64(len(subs)))
		logger.Info("outside notification hours, cycle skipped", zap.Int("subscribers", len(subs)))
		return report
	}

	var delivered, failed int64
	var g errgroup.Group
	g.SetLimit(n.opts.Concurrency)

	for _, sub := range subs {
		sub := sub
		g.Go(func() error {
			if err := n.notify(ctx, sub); err != nil {
				atomic.AddInt64(&failed, 1)
				observability.NotificationsTotal.WithLabelValues("failed").Inc()
				logger.Warn("notification failed",
					zap.Int64("user_id", sub.UserID),
					zap.Error(err))
				return nil
			}
			atomic.AddInt64(&delivered, 1)
			observability.NotificationsTotal.WithLabelValues("delivered").Inc()
			return nil
		})
	}
	_ = g.Wait()

	report.Delivered = int(delivered)
	report.Failed = int(failed)
	logger.Info("notification cycle completed",
		zap.Int("subscribers", len(subs)),
		zap.Int("delivered", report.Delivered),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", time.Since(start)))
	return report
}

func (n *Notifier) notify(ctx context.Context, sub domain.Subscriber) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	current, err := n.weather.CurrentByCoordinate(ctx, sub.Location)
	if err != nil {
		return err
	}
	if _, err := n.out.Send(ctx, sub.UserID, dialog.Reply{Text: dialog.NotificationText(current)}); err != nil {
		return fmt.Errorf("failed to send update: %w", err)
	}
	return nil
}

// cronLogger routes cron's own logging through zap
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
