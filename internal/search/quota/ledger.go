// internal/search/quota/ledger.go
package quota

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"carsearch/internal/common/config"
	"carsearch/internal/common/logger"

	"github.com/google/uuid"
)

var (
	ErrQuotaExhausted = errors.New("QUOTA_EXHAUSTED")
	ErrUnknownAction  = errors.New("UNKNOWN_QUOTA_ACTION")
)

// periodTTL keeps monthly counters alive slightly past the longest month.
const periodTTL = 32 * 24 * time.Hour

type reservationState int

const (
	statePending reservationState = iota
	stateCommitted
	stateReleased
)

// Reservation is one provisional unit of quota usage. It is taken before the
// expensive orchestration work starts; a completed run commits it, a
// zero-value failure releases it so the user is not charged.
type Reservation struct {
	ID        string
	UserID    string
	Action    string
	Unlimited bool

	key   string
	state reservationState
}

// Ledger enforces per-user monthly allowances per action. Usage counters
// live in the injected Store; reserve is a single atomic check-and-increment
// so concurrent requests cannot share the last remaining unit.
type Ledger struct {
	store          Store
	allowances     map[string]int
	unlimitedTiers map[string]bool
	logger         logger.Logger
	now            func() time.Time
}

func NewLedger(store Store, cfg config.QuotasConfig, log logger.Logger) *Ledger {
	unlimited := make(map[string]bool, len(cfg.UnlimitedTiers))
	for _, tier := range cfg.UnlimitedTiers {
		unlimited[strings.ToLower(tier)] = true
	}
	return &Ledger{
		store:          store,
		allowances:     cfg.Actions,
		unlimitedTiers: unlimited,
		logger:         log.WithFields(map[string]interface{}{"component": "quota"}),
		now:            time.Now,
	}
}

// Reserve takes one unit of the user's allowance for action. Unlimited tiers
// always succeed without touching the store and report Unlimited=true.
func (l *Ledger) Reserve(ctx context.Context, userID, tier, action string) (*Reservation, error) {
	allowance, ok := l.allowances[action]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownAction, action)
	}

	if l.unlimitedTiers[strings.ToLower(tier)] {
		return &Reservation{
			ID:        uuid.NewString(),
			UserID:    userID,
			Action:    action,
			Unlimited: true,
			state:     statePending,
		}, nil
	}

	key := l.periodKey(userID, action)
	count, err := l.store.Incr(ctx, key, periodTTL)
	if err != nil {
		return nil, fmt.Errorf("quota store: %w", err)
	}

	if count > int64(allowance) {
		// Undo the provisional unit; the denial must not eat quota.
		if _, derr := l.store.Decr(ctx, key); derr != nil {
			l.logger.Error("failed to roll back quota increment", map[string]interface{}{
				"userId": userID,
				"action": action,
				"error":  derr.Error(),
			})
		}
		return nil, fmt.Errorf("%w: action '%s'", ErrQuotaExhausted, action)
	}

	return &Reservation{
		ID:     uuid.NewString(),
		UserID: userID,
		Action: action,
		key:    key,
		state:  statePending,
	}, nil
}

// Commit finalizes a reservation after a run that produced value. The unit
// was already counted at reserve time, so commit only seals the state.
func (l *Ledger) Commit(_ context.Context, r *Reservation) {
	if r == nil || r.state != statePending {
		return
	}
	r.state = stateCommitted
}

// Release returns the reserved unit after a run that produced nothing
// (e.g. all sources unreachable). Idempotent; committed reservations are
// never released.
func (l *Ledger) Release(ctx context.Context, r *Reservation) {
	if r == nil || r.state != statePending {
		return
	}
	r.state = stateReleased

	if r.Unlimited {
		return
	}
	if _, err := l.store.Decr(ctx, r.key); err != nil {
		l.logger.Error("failed to release quota reservation", map[string]interface{}{
			"reservationId": r.ID,
			"userId":        r.UserID,
			"action":        r.Action,
			"error":         err.Error(),
		})
	}
}

// periodKey scopes usage counters to the calendar month.
func (l *Ledger) periodKey(userID, action string) string {
	return fmt.Sprintf("quota:%s:%s:%s", action, userID, l.now().UTC().Format("2006-01"))
}
