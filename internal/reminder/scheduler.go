// Package reminder runs the periodic birthday sweep: it finds follow edges
// whose birthday is 14, 7 or 3 days away and delivers each reminder once per
// edge, threshold and year.
package reminder

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pathakanu/birthdaybot/internal/apperr"
	"github.com/pathakanu/birthdaybot/internal/calendar"
	"github.com/pathakanu/birthdaybot/internal/chat"
	"github.com/pathakanu/birthdaybot/internal/store"
)

// ErrSweepInProgress is returned by Sweep while another sweep is running.
var ErrSweepInProgress = errors.New("reminder: sweep already in progress")

// EdgeSource lists follow edges whose watched user has a birthday.
type EdgeSource interface {
	Edges(ctx context.Context) ([]store.Edge, error)
}

// Ledger records delivered reminders. RecordSent must insert atomically and
// report a DuplicateRecord error when the key already exists.
type Ledger interface {
	HasSent(ctx context.Context, key store.ReminderKey) (bool, error)
	RecordSent(ctx context.Context, key store.ReminderKey) error
}

// Notifier delivers a text message to a user.
type Notifier interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts *chat.Options) (int, error)
}

// Options tunes a Scheduler. Zero values pick the defaults.
type Options struct {
	// Schedule is a cron spec; defaults to "@every 1h".
	Schedule string
	// Location decides which calendar day "today" is; defaults to time.Local.
	Location *time.Location
	// Concurrency bounds parallel deliveries within one sweep; defaults to 1.
	Concurrency int
	Now         func() time.Time
}

// Report summarises one sweep.
type Report struct {
	Edges      int `json:"edges"`
	Candidates int `json:"candidates"`
	Sent       int `json:"sent"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// Scheduler owns the sweep and the cron timer that drives it.
type Scheduler struct {
	edges    EdgeSource
	ledger   Ledger
	notifier Notifier
	log      *zap.Logger
	opts     Options

	cron    *cron.Cron
	cronLog cronLogger
	running atomic.Bool
	cancel  context.CancelFunc
	initial sync.WaitGroup
}

// New builds a Scheduler; call Start to begin sweeping on a timer.
func New(edges EdgeSource, ledger Ledger, notifier Notifier, log *zap.Logger, opts Options) *Scheduler {
	if opts.Schedule == "" {
		opts.Schedule = "@every 1h"
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	cronLog := cronLogger{log.Sugar()}
	return &Scheduler{
		edges:    edges,
		ledger:   ledger,
		notifier: notifier,
		log:      log,
		opts:     opts,
		cronLog:  cronLog,
		cron: cron.New(
			cron.WithLocation(opts.Location),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
	}
}

// Start registers the sweep job and starts the timer. It also runs one sweep
// right away so a restart does not wait a full interval.
func (s *Scheduler) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	job := cron.FuncJob(func() {
		report, err := s.Sweep(ctx)
		if err != nil {
			s.log.Warn("reminder: sweep did not run", zap.Error(err))
			return
		}
		s.log.Info("reminder: sweep finished",
			zap.Int("edges", report.Edges),
			zap.Int("candidates", report.Candidates),
			zap.Int("sent", report.Sent),
			zap.Int("skipped", report.Skipped),
			zap.Int("failed", report.Failed))
	})
	if _, err := s.cron.AddJob(s.opts.Schedule, job); err != nil {
		cancel()
		return err
	}
	s.cancel = cancel
	s.cron.Start()
	s.initial.Add(1)
	go func() {
		defer s.initial.Done()
		cron.NewChain(cron.Recover(s.cronLog)).Then(job).Run()
	}()
	return nil
}

// Stop halts the timer, abandons any in-flight sweep and waits for every
// running sweep, including the one launched by Start, to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.initial.Wait()
}

// Today returns the reference calendar day of the sweep.
func (s *Scheduler) Today() calendar.Date {
	return calendar.FromTime(s.opts.Now().In(s.opts.Location))
}

// Sweep runs one pass over every edge. Only storage failures listing the edges
// are returned; per-edge failures are logged, counted and retried next sweep.
func (s *Scheduler) Sweep(ctx context.Context) (Report, error) {
	if !s.running.CompareAndSwap(false, true) {
		return Report{}, ErrSweepInProgress
	}
	defer s.running.Store(false)

	today := s.Today()
	edges, err := s.edges.Edges(ctx)
	if err != nil {
		return Report{}, err
	}

	var (
		mu     sync.Mutex
		report = Report{Edges: len(edges)}
	)
	count := func(field *int) {
		mu.Lock()
		*field++
		mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for _, edge := range edges {
		c, due, err := candidateFor(edge, today)
		if err != nil {
			s.log.Error("reminder: compute next birthday",
				zap.Int64("watcher", edge.WatcherID),
				zap.Int64("watched", edge.WatchedID),
				zap.Error(err))
			count(&report.Failed)
			continue
		}
		if !due {
			continue
		}
		count(&report.Candidates)

		g.Go(func() error {
			switch s.deliverRecovered(ctx, c) {
			case outcomeSent:
				count(&report.Sent)
			case outcomeSkipped:
				count(&report.Skipped)
			default:
				count(&report.Failed)
			}
			return nil
		})
	}
	_ = g.Wait()
	return report, nil
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeSkipped
	outcomeFailed
)

// deliverRecovered runs deliver, reporting a panic as a failed outcome.
func (s *Scheduler) deliverRecovered(ctx context.Context, c Candidate) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("reminder: delivery panicked",
				zap.Int64("watcher", c.Edge.WatcherID),
				zap.Int64("watched", c.Edge.WatchedID),
				zap.Any("panic", r),
				zap.Stack("stack"))
			out = outcomeFailed
		}
	}()
	return s.deliver(ctx, c)
}

// deliver sends one reminder and records it. The ledger row is written only
// after the message went out, so a failed send is retried next sweep.
func (s *Scheduler) deliver(ctx context.Context, c Candidate) outcome {
	key := c.Key()
	fields := []zap.Field{
		zap.Int64("watcher", key.WatcherID),
		zap.Int64("watched", key.WatchedID),
		zap.String("threshold", key.Type),
		zap.Int("year", key.Year),
	}

	sent, err := s.ledger.HasSent(ctx, key)
	if err != nil {
		s.log.Error("reminder: check ledger", append(fields, zap.Error(err))...)
		return outcomeFailed
	}
	if sent {
		return outcomeSkipped
	}

	if _, err := s.notifier.SendMessage(ctx, key.WatcherID, c.Message(), nil); err != nil {
		err = apperr.TransientDeliveryFailure(key.WatcherID, err)
		s.log.Warn("reminder: delivery failed, will retry next sweep", append(fields, zap.Error(err))...)
		return outcomeFailed
	}

	if err := s.ledger.RecordSent(ctx, key); err != nil {
		if apperr.Is(err, apperr.KindDuplicateRecord) {
			s.log.Debug("reminder: already recorded by a concurrent sweep", fields...)
			return outcomeSent
		}
		s.log.Error("reminder: delivered but not recorded", append(fields, zap.Error(err))...)
		return outcomeFailed
	}
	s.log.Info("reminder: delivered", fields...)
	return outcomeSent
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
