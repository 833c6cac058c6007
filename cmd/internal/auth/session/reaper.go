package session

import (
	"context"
	"log/slog"
	"time"
)

// Reaper periodically deletes session rows that have not been touched for a full refresh
// lifetime. A row renewed within that window is never removed.
type Reaper struct {
	store     Store
	retention time.Duration
	interval  time.Duration
	log       *slog.Logger
	now       func() time.Time
	observe   func(deleted int64, err error)
}

// ReaperOption configures a Reaper.
type ReaperOption func(*Reaper)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ReaperOption {
	return func(r *Reaper) { r.now = now }
}

// WithPassObserver is called after every pass.
func WithPassObserver(fn func(deleted int64, err error)) ReaperOption {
	return func(r *Reaper) { r.observe = fn }
}

// NewReaper builds a Reaper whose retention is cfg.RefreshTokenTTL.
func NewReaper(store Store, cfg Config, log *slog.Logger, opts ...ReaperOption) *Reaper {
	if log == nil {
		log = slog.Default()
	}
	r := &Reaper{
		store:     store,
		retention: cfg.RefreshTokenTTL,
		interval:  max(cfg.ReaperInterval, cfg.RefreshTokenTTL),
		log:       log,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Cutoff is the oldest updated_at that survives a pass at now.
func (r *Reaper) Cutoff(now time.Time) time.Time {
	return now.Add(-r.retention)
}

// RunOnce purges rows stale at now.
func (r *Reaper) RunOnce(ctx context.Context, now time.Time) (int64, error) {
	return r.PurgeBefore(ctx, r.Cutoff(now))
}

// PurgeBefore purges rows with updated_at strictly before cutoff.
func (r *Reaper) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := r.store.PurgeStaleSince(ctx, cutoff)
	if r.observe != nil {
		r.observe(n, err)
	}
	if err != nil {
		r.log.Error("session.reaper.fail", "err", err, "cutoff", cutoff)
		return 0, err
	}
	r.log.Info("session.reaper.pass", "deleted", n, "cutoff", cutoff)
	return n, nil
}

// Run performs a pass immediately and then every interval until ctx is done.
// Pass failures are logged and do not stop the loop.
func (r *Reaper) Run(ctx context.Context) error {
	r.log.Info("session.reaper.start", "interval", r.interval, "retention", r.retention)

	_, _ = r.RunOnce(ctx, r.now())

	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("session.reaper.stop")
			return nil
		case <-t.C:
			_, _ = r.RunOnce(ctx, r.now())
		}
	}
}
