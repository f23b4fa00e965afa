package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"inventory-service/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Safety tells the coordinator whether an operation may be re-run after a
// version conflict. Idempotent operations re-read and re-apply their patch,
// so a retry cannot double count. NonIdempotent operations carry a
// caller-supplied version and the conflict belongs to the caller.
type Safety int

const (
	Idempotent Safety = iota
	NonIdempotent
)

func (s Safety) String() string {
	if s == Idempotent {
		return "idempotent"
	}
	return "non_idempotent"
}

// ErrTimeout reports that an attempt exceeded its deadline. The outcome of
// the write is unknown and the caller must re-read before deciding.
var ErrTimeout = errors.New("store operation timed out, outcome unknown")

type Config struct {
	MaxRetries   int
	RetryBackoff time.Duration
	StoreTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		RetryBackoff: 10 * time.Millisecond,
		StoreTimeout: 5 * time.Second,
	}
}

// Coordinator runs store operations under the retry policy.
type Coordinator struct {
	cfg    Config
	logger *zap.Logger

	conflicts metric.Int64Counter
	retries   metric.Int64Counter
	exhausted metric.Int64Counter
}

// New creates a coordinator recording metrics on meter. A nil meter uses the
// global meter provider.
func New(cfg Config, logger *zap.Logger, meter metric.Meter) (*Coordinator, error) {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultConfig().RetryBackoff
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultConfig().StoreTimeout
	}
	if meter == nil {
		meter = otel.Meter("inventory-service/coordinator")
	}

	c := &Coordinator{cfg: cfg, logger: logger}
	var err error
	if c.conflicts, err = meter.Int64Counter("consistency.version_conflicts",
		metric.WithDescription("Version conflicts observed by store operations")); err != nil {
		return nil, fmt.Errorf("failed to create conflict counter: %w", err)
	}
	if c.retries, err = meter.Int64Counter("consistency.retries",
		metric.WithDescription("Retries of idempotent store operations")); err != nil {
		return nil, fmt.Errorf("failed to create retry counter: %w", err)
	}
	if c.exhausted, err = meter.Int64Counter("consistency.retries_exhausted",
		metric.WithDescription("Idempotent operations that ran out of retries")); err != nil {
		return nil, fmt.Errorf("failed to create exhausted counter: %w", err)
	}
	return c, nil
}

// Run executes fn with a per-attempt timeout. On VersionConflict an
// Idempotent fn is run again, up to MaxRetries times, with exponential
// backoff; fn must perform its own fresh read. Every other error, and every
// conflict of a NonIdempotent fn, is returned as is.
func (c *Coordinator) Run(ctx context.Context, op string, safety Safety, fn func(ctx context.Context) error) error {
	attrs := metric.WithAttributes(attribute.String("operation", op), attribute.String("safety", safety.String()))
	backoff := c.cfg.RetryBackoff

	for attempt := 0; ; attempt++ {
		err := c.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return err
		}

		c.conflicts.Add(ctx, 1, attrs)
		if safety != Idempotent {
			return err
		}
		if attempt >= c.cfg.MaxRetries {
			c.exhausted.Add(ctx, 1, attrs)
			c.logger.Warn("Retries exhausted",
				zap.String("operation", op),
				zap.Int("attempts", attempt+1),
				zap.Error(err),
			)
			return err
		}

		c.retries.Add(ctx, 1, attrs)
		c.logger.Debug("Retrying after version conflict",
			zap.String("operation", op),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func (c *Coordinator) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	actx, cancel := context.WithTimeout(ctx, c.cfg.StoreTimeout)
	defer cancel()

	err := fn(actx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
