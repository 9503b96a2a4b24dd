package polling

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/sagecreek/internal/logger"
	"github.com/yoockh/sagecreek/internal/models"
	"github.com/yoockh/sagecreek/internal/utils"
)

const (
	defaultInitialInterval = 2 * time.Second
	defaultMaxInterval     = 15 * time.Second
	defaultMultiplier      = 2.0
	defaultWarnAfter       = 60 * time.Second
	defaultDeadline        = 10 * time.Minute
	defaultMaxFetchErrors  = 3
)

// Config controls backoff and limits. Zero values fall back to defaults.
type Config struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	WarnAfter       time.Duration
	Deadline        time.Duration
	MaxFetchErrors  int
}

func DefaultConfig() Config {
	return Config{
		InitialInterval: defaultInitialInterval,
		MaxInterval:     defaultMaxInterval,
		Multiplier:      defaultMultiplier,
		WarnAfter:       defaultWarnAfter,
		Deadline:        defaultDeadline,
		MaxFetchErrors:  defaultMaxFetchErrors,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.InitialInterval <= 0 {
		c.InitialInterval = d.InitialInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = d.MaxInterval
	}
	if c.MaxInterval < c.InitialInterval {
		c.MaxInterval = c.InitialInterval
	}
	if c.Multiplier < 1 {
		c.Multiplier = d.Multiplier
	}
	if c.WarnAfter < 0 {
		c.WarnAfter = 0
	}
	if c.Deadline <= 0 {
		c.Deadline = d.Deadline
	}
	if c.MaxFetchErrors <= 0 {
		c.MaxFetchErrors = d.MaxFetchErrors
	}
	return c
}

// FetchFunc returns the current vendor view of the named file.
type FetchFunc func(ctx context.Context, name string) (models.VideoHandle, error)

// Observer receives progress callbacks. Both fields are optional.
type Observer struct {
	OnTransition func(from, to State, h models.VideoHandle)
	OnWarn       func(elapsed time.Duration)
}

type Outcome struct {
	State    State
	Handle   models.VideoHandle
	Attempts int // status fetches issued after the initial handle
	Elapsed  time.Duration
	Warned   bool
}

type Poller struct {
	cfg    Config
	logger *logrus.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
}

type Option func(*Poller)

// WithSleeper replaces the timer-based wait (tests drive a fake clock through it).
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Poller) {
		if sleep != nil {
			p.sleep = sleep
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Poller) {
		if now != nil {
			p.now = now
		}
	}
}

func WithLogger(l *logrus.Logger) Option {
	return func(p *Poller) {
		if l != nil {
			p.logger = l
		}
	}
}

func New(cfg Config, opts ...Option) *Poller {
	p := &Poller{
		cfg:    cfg.normalized(),
		logger: logger.Discard(),
		sleep:  sleepContext,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Poller) Config() Config { return p.cfg }

// Wait drives h to a terminal state. It returns a nil error only for ready.
func (p *Poller) Wait(ctx context.Context, h models.VideoHandle, fetch FetchFunc, obs Observer) (Outcome, error) {
	const op = "Poller.Wait"

	if fetch == nil {
		return Outcome{State: StateQueued, Handle: h}, utils.E(utils.CodeInternal, op, "fetch func is required", nil)
	}

	start := p.now()
	out := Outcome{State: StateQueued, Handle: h}
	log := p.logger.WithField("file", h.Name)

	move := func(to State) {
		if to == out.State {
			return
		}
		from := out.State
		out.State = to
		log.WithFields(logrus.Fields{"from": from, "to": to, "vendor_state": out.Handle.State}).Debug("poll transition")
		if obs.OnTransition != nil {
			obs.OnTransition(from, to, out.Handle)
		}
	}
	finish := func(err error) (Outcome, error) {
		out.Elapsed = p.now().Sub(start)
		return out, err
	}

	move(Classify(h.State))

	interval := p.cfg.InitialInterval
	fetchErrs := 0
	for {
		if out.State.Terminal() {
			if out.State == StateFailed {
				return finish(utils.E(utils.CodeUpstreamFailed, op, "video processing failed on the provider", nil))
			}
			return finish(nil)
		}

		elapsed := p.now().Sub(start)
		if !out.Warned && p.cfg.WarnAfter > 0 && elapsed >= p.cfg.WarnAfter {
			out.Warned = true
			log.WithField("elapsed_ms", elapsed.Milliseconds()).Warn("video still processing")
			if obs.OnWarn != nil {
				obs.OnWarn(elapsed)
			}
		}

		remaining := p.cfg.Deadline - elapsed
		if remaining <= 0 {
			move(StateTimedOut)
			return finish(utils.E(utils.CodeTimeout, op, "video processing did not finish in time", nil))
		}

		delay := interval
		if delay > remaining {
			delay = remaining
		}
		if err := p.sleep(ctx, delay); err != nil {
			return finish(err)
		}
		interval = p.nextInterval(interval)

		next, err := fetch(ctx, out.Handle.Name)
		out.Attempts++
		if err != nil {
			if ctx.Err() != nil {
				return finish(ctx.Err())
			}
			fetchErrs++
			log.WithError(err).WithField("consecutive", fetchErrs).Warn("file status fetch failed")
			if fetchErrs >= p.cfg.MaxFetchErrors {
				return finish(utils.E(utils.CodeUnavailable, op, "could not read video processing status", err))
			}
			continue
		}
		fetchErrs = 0
		if next.Name == "" {
			next.Name = out.Handle.Name
		}
		out.Handle = next
		move(Classify(next.State))
	}
}

func (p *Poller) nextInterval(cur time.Duration) time.Duration {
	next := time.Duration(float64(cur) * p.cfg.Multiplier)
	if next > p.cfg.MaxInterval || next <= 0 {
		return p.cfg.MaxInterval
	}
	return next
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
