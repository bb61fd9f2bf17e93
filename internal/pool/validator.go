package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/koustreak/querypool/internal/errs"
)

// DefaultRevalidateInterval matches MySQL's default wait_timeout.
const DefaultRevalidateInterval = 8 * time.Hour

// Validator decides whether an idle connection must be checked, and
// repaired, before it is handed out again.
//
// Validate is called on the reuse path only, after the connection has been
// taken off the idle stack, so the caller owns it exclusively. Deregister is
// called whenever the pool discards a connection; stateful validators must
// drop everything they keep for that id.
type Validator interface {
	Validate(ctx context.Context, id ConnID, c Checker) error
	Deregister(id ConnID)
}

// ValidatorKind names one of the built-in validators.
type ValidatorKind string

const (
	ValidatorNone      ValidatorKind = "none"
	ValidatorAutomatic ValidatorKind = "automatic"
	ValidatorPeriodic  ValidatorKind = "periodic"
)

// NewValidator builds the validator named by kind. interval only applies
// to ValidatorPeriodic; zero selects DefaultRevalidateInterval.
func NewValidator(kind ValidatorKind, interval time.Duration) (Validator, error) {
	switch kind {
	case ValidatorNone:
		return NoneValidator{}, nil
	case ValidatorAutomatic, "":
		return AutomaticValidator{}, nil
	case ValidatorPeriodic:
		return NewPeriodicValidator(interval), nil
	default:
		return nil, errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("unknown validator %q", kind))
	}
}

// NoneValidator trusts every idle connection.
type NoneValidator struct{}

func (NoneValidator) Validate(context.Context, ConnID, Checker) error { return nil }
func (NoneValidator) Deregister(ConnID)                              {}

// AutomaticValidator checks every reused connection and reconnects it once
// if the check fails. It keeps no state.
type AutomaticValidator struct{}

func (AutomaticValidator) Validate(ctx context.Context, _ ConnID, c Checker) error {
	return checkAndRepair(ctx, c)
}

func (AutomaticValidator) Deregister(ConnID) {}

// PeriodicValidator checks a reused connection only when Interval has
// passed since its last successful check. A connection it has never seen
// is checked on first reuse.
type PeriodicValidator struct {
	interval time.Duration
	now      func() time.Time

	mu          sync.Mutex
	lastChecked map[ConnID]time.Time
}

// NewPeriodicValidator returns a validator that rechecks each connection at
// most once per interval. A non-positive interval selects
// DefaultRevalidateInterval.
func NewPeriodicValidator(interval time.Duration) *PeriodicValidator {
	if interval <= 0 {
		interval = DefaultRevalidateInterval
	}
	return &PeriodicValidator{
		interval:    interval,
		now:         time.Now,
		lastChecked: make(map[ConnID]time.Time),
	}
}

// Interval returns the revalidation interval.
func (v *PeriodicValidator) Interval() time.Duration {
	return v.interval
}

func (v *PeriodicValidator) Validate(ctx context.Context, id ConnID, c Checker) error {
	now := v.now()

	v.mu.Lock()
	last, seen := v.lastChecked[id]
	v.mu.Unlock()

	if seen && now.Sub(last) < v.interval {
		return nil
	}
	if err := checkAndRepair(ctx, c); err != nil {
		return err
	}

	v.mu.Lock()
	v.lastChecked[id] = now
	v.mu.Unlock()
	return nil
}

func (v *PeriodicValidator) Deregister(id ConnID) {
	v.mu.Lock()
	delete(v.lastChecked, id)
	v.mu.Unlock()
}

// Tracked returns how many connections currently have a timestamp.
func (v *PeriodicValidator) Tracked() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.lastChecked)
}

func checkAndRepair(ctx context.Context, c Checker) error {
	if c.IsValid(ctx) {
		return nil
	}
	if err := c.Reconnect(ctx); err != nil {
		return errs.Wrap(errs.ErrKindReconnectFailed, "failed to reconnect to database", err)
	}
	return nil
}
