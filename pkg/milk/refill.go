package milk

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	mfcontext "github.com/vnykmshr/milkflow/pkg/common/context"
	mferrors "github.com/vnykmshr/milkflow/pkg/common/errors"
	"github.com/vnykmshr/milkflow/pkg/common/validation"
	"github.com/vnykmshr/milkflow/pkg/metrics"
	"github.com/vnykmshr/milkflow/pkg/milk/unit"
)

// RefillRate describes "add Amount every Period".
type RefillRate struct {
	Amount unit.Liters
	Period time.Duration
}

// PerSecond returns a rate adding amount once per second.
func PerSecond(amount unit.Liters) RefillRate {
	return RefillRate{Amount: amount, Period: time.Second}
}

// Validate checks that the rate adds a positive, finite amount on a positive period.
func (r RefillRate) Validate() error {
	if err := validation.ValidateFinite("refill", "amount", float64(r.Amount)); err != nil {
		return err
	}
	if err := validation.ValidatePositiveFloat("refill", "amount", float64(r.Amount)); err != nil {
		return err
	}
	return validation.ValidatePositiveDuration("refill", "period", r.Period)
}

func (r RefillRate) String() string {
	return fmt.Sprintf("%gL/%s", float64(r.Amount), r.Period)
}

// Ticker delivers refill ticks. *time.Ticker is adapted by NewIntervalTicker.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type intervalTicker struct {
	t *time.Ticker
}

// NewIntervalTicker returns a Ticker firing every period.
func NewIntervalTicker(period time.Duration) Ticker {
	return intervalTicker{t: time.NewTicker(period)}
}

func (it intervalTicker) C() <-chan time.Time { return it.t.C }
func (it intervalTicker) Stop()               { it.t.Stop() }

// cronParser accepts five or six field expressions and descriptors such as
// "@every 2s" or "@hourly".
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseCron parses a refill schedule expression.
func ParseCron(expr string) (cron.Schedule, error) {
	if err := validation.ValidateNotEmpty("refill", "cron", expr); err != nil {
		return nil, err
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, mferrors.NewValidationError("refill", "cron", expr, err.Error()).
			WithHint("use a cron expression such as \"*/5 * * * * *\" or \"@every 1s\"")
	}
	return schedule, nil
}

type cronTicker struct {
	ch   chan time.Time
	done chan struct{}
	stop atomic.Bool
}

// NewCronTicker returns a Ticker firing at the activation times of schedule.
func NewCronTicker(schedule cron.Schedule, loc *time.Location) Ticker {
	if loc == nil {
		loc = time.Local
	}
	ct := &cronTicker{
		ch:   make(chan time.Time, 1),
		done: make(chan struct{}),
	}
	go ct.run(schedule, loc)
	return ct
}

func (ct *cronTicker) run(schedule cron.Schedule, loc *time.Location) {
	for {
		now := time.Now().In(loc)
		next := schedule.Next(now)
		if next.IsZero() {
			return
		}

		timer := time.NewTimer(next.Sub(now))
		select {
		case t := <-timer.C:
			// Drop the tick if the consumer is still busy with the previous one.
			select {
			case ct.ch <- t:
			default:
			}
		case <-ct.done:
			timer.Stop()
			return
		}
	}
}

func (ct *cronTicker) C() <-chan time.Time { return ct.ch }

func (ct *cronTicker) Stop() {
	if ct.stop.CompareAndSwap(false, true) {
		close(ct.done)
	}
}

// RefillConfig configures a Refiller.
type RefillConfig struct {
	// Rate is the amount added per tick and, without Cron or Ticker, the tick period.
	Rate RefillRate

	// Cron, when set, replaces Rate.Period as the tick schedule.
	Cron string

	// Location is used to evaluate Cron. Defaults to time.Local.
	Location *time.Location

	// Ticker, when set, is used as the tick source as is. Run never stops it;
	// the caller owns it.
	Ticker Ticker

	// Name labels log records and metrics. Defaults to "milk".
	Name string

	// Logger receives tick records. If nil, slog.Default() is used.
	Logger *slog.Logger

	// Metrics, when set, counts applied and failed ticks.
	Metrics *metrics.Registry
}

// Refiller adds a fixed amount to a bucket on every tick. It only touches
// the bucket through FillBy.
type Refiller struct {
	bucket    Bucket
	amount    unit.Liters
	newTicker func() Ticker
	ownTicker bool
	name      string
	logger    *slog.Logger
	metrics   *metrics.Registry

	running atomic.Bool
	ticks   atomic.Int64
}

// NewRefiller validates config and returns a Refiller bound to bucket.
// No goroutine is started until Run is called.
func NewRefiller(bucket Bucket, config RefillConfig) (*Refiller, error) {
	if bucket == nil {
		return nil, validation.ValidateNotNil("refill", "bucket", nil)
	}
	if err := validation.ValidateFinite("refill", "amount", float64(config.Rate.Amount)); err != nil {
		return nil, err
	}
	if err := validation.ValidatePositiveFloat("refill", "amount", float64(config.Rate.Amount)); err != nil {
		return nil, err
	}

	var newTicker func() Ticker
	ownTicker := config.Ticker == nil
	switch {
	case config.Ticker != nil:
		ticker := config.Ticker
		newTicker = func() Ticker { return ticker }
	case config.Cron != "":
		schedule, err := ParseCron(config.Cron)
		if err != nil {
			return nil, err
		}
		loc := config.Location
		newTicker = func() Ticker { return NewCronTicker(schedule, loc) }
	default:
		if err := config.Rate.Validate(); err != nil {
			return nil, err
		}
		period := config.Rate.Period
		newTicker = func() Ticker { return NewIntervalTicker(period) }
	}

	name := config.Name
	if name == "" {
		name = "milk"
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Refiller{
		bucket:    bucket,
		amount:    config.Rate.Amount,
		newTicker: newTicker,
		ownTicker: ownTicker,
		name:      name,
		logger:    logger.With("bucket", name, "component", "refill"),
		metrics:   config.Metrics,
	}, nil
}

// Run fills the bucket once immediately and then on every tick until ctx is
// done, returning ctx.Err(). A failed fill is logged and the loop continues.
func (r *Refiller) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return fmt.Errorf("refiller %q is already running", r.name)
	}
	defer r.running.Store(false)

	ticker := r.newTicker()
	if r.ownTicker {
		defer ticker.Stop()
	}

	r.logger.Info("refill started", "amount", float64(r.amount))
	r.fill(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("refill stopped", "ticks", r.ticks.Load())
			return ctx.Err()
		case <-ticker.C():
			r.fill(ctx)
		}
	}
}

// Ticks returns the number of fills applied so far.
func (r *Refiller) Ticks() int64 {
	return r.ticks.Load()
}

// Running reports whether Run is in progress.
func (r *Refiller) Running() bool {
	return r.running.Load()
}

func (r *Refiller) fill(ctx context.Context) {
	if err := r.bucket.FillBy(ctx, r.amount); err != nil {
		if mfcontext.IsCancellation(err) {
			return
		}
		r.logger.Warn("refill tick failed", "err", err)
		if r.metrics != nil {
			r.metrics.RefillFailures.WithLabelValues(r.name).Inc()
		}
		return
	}

	r.ticks.Add(1)
	if r.metrics != nil {
		r.metrics.RefillTicks.WithLabelValues(r.name).Inc()
	}
	r.logger.Debug("tick")
}
