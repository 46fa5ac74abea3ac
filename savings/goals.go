/*
Package savings owns every mutation of savings goals.

PURPOSE:
  Goals is the goal store: the single writer of goal records and of the
  cached CurrentAmount. Service is the boundary callers talk to; it does
  structural validation and derives the dashboard view fields.

ATOMIC UNIT (deposit/withdraw):
  1. Validate amount                      -> ErrInvalidAmount
  2. Take the per-goal lock               -> ErrLockTimeout
  3. store.WithTx:
     a. load goal for update              -> ErrNotFound
     b. check active                      -> ErrInactiveGoal
     c. check balance (withdraw only)     -> InsufficientBalanceError
     d. ledger.Append                     -> ErrDuplicateIdempotencyKey
     e. cached balance += delta, version CAS
  4. Commit, or roll back everything on any error

RETRIES:
  A version conflict rolls the unit back entirely, so it is retried up to
  three times with 2ms/4ms/8ms backoff. Business errors are returned as is.

SEE ALSO:
  - generic/ledger.go: Append-only ledger
  - service.go: Boundary validation and view derivation
  - reconciler.go: Periodic ledger/balance verification
*/
package savings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/savings-engine/generic"
	"github.com/warp/savings-engine/pkg/logger"
)

// Options configures Goals. Zero values pick defaults.
type Options struct {
	Locker  Locker
	Clock   generic.Clock
	Metrics *Metrics

	// AllowTargetBelowBalance lets an update lower the target below the
	// amount already saved.
	AllowTargetBelowBalance bool

	MaxRetries     int
	RetryBaseDelay time.Duration
}

// Entry is one deposit or withdrawal request.
type Entry struct {
	Amount         decimal.Decimal
	Description    string
	Date           time.Time // zero = now
	IdempotencyKey string
}

type Goals struct {
	store generic.TxStore
	opts  Options
}

func NewGoals(store generic.TxStore, opts Options) *Goals {
	if opts.Locker == nil {
		opts.Locker = NewKeyedLocker(0)
	}
	if opts.Clock == nil {
		opts.Clock = generic.SystemClock{}
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 2 * time.Millisecond
	}
	return &Goals{store: store, opts: opts}
}

// Clock returns the clock used for timestamps.
func (g *Goals) Clock() generic.Clock {
	return g.opts.Clock
}

func (g *Goals) now() time.Time {
	return g.opts.Clock.Now().UTC().Truncate(time.Microsecond)
}

// =============================================================================
// CREATE / UPDATE / DELETE
// =============================================================================

func (g *Goals) Create(ctx context.Context, in generic.NewGoal) (goal *generic.Goal, err error) {
	defer func() { g.opts.Metrics.operation("create", err) }()

	if err := validateTarget(in.TargetAmount); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, &generic.ValidationError{Field: "name", Message: "is required"}
	}
	priority := in.Priority
	if priority == "" {
		priority = generic.PriorityMedium
	}
	if !priority.Valid() {
		return nil, &generic.ValidationError{Field: "priority", Message: fmt.Sprintf("unknown priority %q", priority)}
	}

	now := g.now()
	created := generic.Goal{
		ID:            generic.NewGoalID(),
		Name:          strings.TrimSpace(in.Name),
		Description:   in.Description,
		Category:      in.Category,
		TargetAmount:  in.TargetAmount,
		CurrentAmount: decimal.Zero,
		Priority:      priority,
		IsActive:      true,
		Color:         in.Color,
		Icon:          in.Icon,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if in.Deadline != nil {
		d := generic.DateOf(*in.Deadline)
		created.Deadline = &d
	}

	if err := g.store.InsertGoal(ctx, created); err != nil {
		return nil, err
	}

	logger.Info("goal created", "goal_id", created.ID, "name", created.Name, "target", created.TargetAmount)
	return &created, nil
}

// Update applies patch to display metadata and the target. It never touches
// the balance or the ledger.
func (g *Goals) Update(ctx context.Context, id generic.GoalID, patch generic.GoalPatch) (goal *generic.Goal, err error) {
	defer func() { g.opts.Metrics.operation("update", err) }()

	if patch.TargetAmount != nil {
		if err := validateTarget(*patch.TargetAmount); err != nil {
			return nil, err
		}
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, &generic.ValidationError{Field: "name", Message: "must not be empty"}
	}
	if patch.Priority != nil && !patch.Priority.Valid() {
		return nil, &generic.ValidationError{Field: "priority", Message: fmt.Sprintf("unknown priority %q", *patch.Priority)}
	}

	unlock, err := g.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = g.withRetry(ctx, func() error {
		return g.store.WithTx(ctx, func(s generic.Store) error {
			current, err := s.GetGoalForUpdate(ctx, id)
			if err != nil {
				return err
			}

			patch.Apply(current)
			if patch.TargetAmount != nil &&
				current.TargetAmount.LessThan(current.CurrentAmount) &&
				!g.opts.AllowTargetBelowBalance && !patch.OverrideTarget {
				return &generic.TargetBelowBalanceError{
					GoalID:  id,
					Target:  current.TargetAmount,
					Balance: current.CurrentAmount,
				}
			}
			current.UpdatedAt = g.now()

			if err := s.UpdateGoal(ctx, current); err != nil {
				return err
			}
			goal = current
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info("goal updated", "goal_id", id, "version", goal.Version)
	return goal, nil
}

// Delete removes a goal together with its whole ledger.
func (g *Goals) Delete(ctx context.Context, id generic.GoalID) (err error) {
	defer func() { g.opts.Metrics.operation("delete", err) }()

	unlock, err := g.lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	if err := g.store.DeleteGoal(ctx, id); err != nil {
		return err
	}
	logger.Info("goal deleted", "goal_id", id)
	return nil
}

func validateTarget(target decimal.Decimal) error {
	if !target.IsPositive() {
		return fmt.Errorf("%w: target must be greater than zero", generic.ErrInvalidTarget)
	}
	if !generic.InMoneyRange(target) {
		return fmt.Errorf("%w: target exceeds %s", generic.ErrInvalidTarget, generic.MaxAmount)
	}
	if !generic.HasMoneyScale(target) {
		return fmt.Errorf("%w: target has more than %d decimal places", generic.ErrInvalidTarget, generic.MoneyScale)
	}
	return nil
}

// =============================================================================
// DEPOSIT / WITHDRAW
// =============================================================================

// Deposit records a deposit and raises the cached balance in one unit.
func (g *Goals) Deposit(ctx context.Context, id generic.GoalID, e Entry) (*generic.Goal, error) {
	return g.post(ctx, id, generic.TxDeposit, e)
}

// Withdraw records a withdrawal and lowers the cached balance in one unit.
// The balance never goes below zero.
func (g *Goals) Withdraw(ctx context.Context, id generic.GoalID, e Entry) (*generic.Goal, error) {
	return g.post(ctx, id, generic.TxWithdraw, e)
}

func (g *Goals) post(ctx context.Context, id generic.GoalID, txType generic.TransactionType, e Entry) (goal *generic.Goal, err error) {
	defer func() {
		g.opts.Metrics.entry(txType, e.Amount, err)
		g.opts.Metrics.operation(string(txType), err)
	}()

	if err := generic.ValidateEntry(txType, e.Amount); err != nil {
		return nil, err
	}

	unlock, err := g.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var recorded generic.Transaction
	err = g.withRetry(ctx, func() error {
		return g.store.WithTx(ctx, func(s generic.Store) error {
			current, err := s.GetGoalForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if !current.IsActive {
				return fmt.Errorf("%w: goal %s", generic.ErrInactiveGoal, id)
			}
			if txType == generic.TxWithdraw && e.Amount.GreaterThan(current.CurrentAmount) {
				return &generic.InsufficientBalanceError{
					GoalID:    id,
					Available: current.CurrentAmount,
					Requested: e.Amount,
				}
			}

			if txType == generic.TxDeposit && current.CurrentAmount.Add(e.Amount).GreaterThan(generic.MaxAmount) {
				return fmt.Errorf("%w: balance would exceed %s", generic.ErrInvalidAmount, generic.MaxAmount)
			}

			now := g.now()
			tx := generic.NewTransaction(id, txType, e.Amount, e.Description, now)
			if !e.Date.IsZero() {
				tx.Date = e.Date.UTC().Truncate(time.Microsecond)
			}
			tx.IdempotencyKey = e.IdempotencyKey

			if err := generic.NewLedger(s).Append(ctx, tx); err != nil {
				return err
			}

			current.CurrentAmount = current.CurrentAmount.Add(tx.Delta())
			current.UpdatedAt = now
			if err := s.UpdateGoal(ctx, current); err != nil {
				return err
			}

			goal = current
			recorded = tx
			return nil
		})
	})
	if err != nil {
		if !generic.IsClientError(err) && !generic.IsConflict(err) && !generic.IsNotFound(err) {
			logger.Error("ledger entry failed", "goal_id", id, "type", txType, "amount", e.Amount, "error", err)
		}
		return nil, err
	}

	logger.Info("ledger entry recorded",
		"goal_id", id,
		"transaction_id", recorded.ID,
		"type", txType,
		"amount", recorded.Amount,
		"balance", goal.CurrentAmount,
	)
	return goal, nil
}

// =============================================================================
// RECONCILE / VERIFY
// =============================================================================

// Reconcile recomputes the cached balance from the ledger and overwrites it
// if they differ. A negative ledger sum cannot be repaired.
func (g *Goals) Reconcile(ctx context.Context, id generic.GoalID) (goal *generic.Goal, err error) {
	defer func() { g.opts.Metrics.operation("reconcile", err) }()

	unlock, err := g.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var drift *generic.ConsistencyError
	err = g.withRetry(ctx, func() error {
		drift = nil
		return g.store.WithTx(ctx, func(s generic.Store) error {
			current, err := s.GetGoalForUpdate(ctx, id)
			if err != nil {
				return err
			}
			txs, err := s.LoadTransactions(ctx, id)
			if err != nil {
				return err
			}
			sum := generic.Sum(txs)

			if sum.IsNegative() {
				return &generic.ConsistencyError{
					GoalID:    id,
					Cached:    current.CurrentAmount,
					LedgerSum: sum,
					Reason:    "ledger sum is negative",
				}
			}
			if sum.Equal(current.CurrentAmount) {
				goal = current
				return nil
			}

			drift = &generic.ConsistencyError{GoalID: id, Cached: current.CurrentAmount, LedgerSum: sum}
			current.CurrentAmount = sum
			current.UpdatedAt = g.now()
			if err := s.UpdateGoal(ctx, current); err != nil {
				return err
			}
			goal = current
			return nil
		})
	})
	if err != nil {
		if generic.NeedsOperatorAttention(err) {
			g.opts.Metrics.consistencyFailure()
			logger.Error("goal ledger cannot be reconciled", "goal_id", id, "error", err)
		}
		return nil, err
	}

	if drift != nil {
		g.opts.Metrics.repaired()
		logger.Warn("cached balance repaired from ledger",
			"goal_id", id,
			"cached", drift.Cached,
			"ledger_sum", drift.LedgerSum,
		)
	}
	return goal, nil
}

// Verify compares the cached balance with the ledger sum and returns a
// *generic.ConsistencyError when they disagree. It never writes.
func (g *Goals) Verify(ctx context.Context, id generic.GoalID) (err error) {
	defer func() { g.opts.Metrics.operation("verify", err) }()

	unlock, err := g.lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	err = g.store.WithTx(ctx, func(s generic.Store) error {
		current, err := s.GetGoalForUpdate(ctx, id)
		if err != nil {
			return err
		}
		txs, err := s.LoadTransactions(ctx, id)
		if err != nil {
			return err
		}
		sum := generic.Sum(txs)

		switch {
		case !sum.Equal(current.CurrentAmount):
			return &generic.ConsistencyError{GoalID: id, Cached: current.CurrentAmount, LedgerSum: sum}
		case sum.IsNegative():
			return &generic.ConsistencyError{GoalID: id, Cached: current.CurrentAmount, LedgerSum: sum, Reason: "negative balance"}
		}
		return nil
	})
	if generic.NeedsOperatorAttention(err) {
		g.opts.Metrics.consistencyFailure()
		logger.Error("goal balance disagrees with ledger", "goal_id", id, "error", err)
	}
	return err
}

// =============================================================================
// READS
// =============================================================================

func (g *Goals) Get(ctx context.Context, id generic.GoalID) (*generic.Goal, error) {
	return g.store.GetGoal(ctx, id)
}

// List returns goals in creation order, never nil.
func (g *Goals) List(ctx context.Context, activeOnly bool) ([]generic.Goal, error) {
	goals, err := g.store.ListGoals(ctx, generic.GoalFilter{ActiveOnly: activeOnly})
	if err != nil {
		return nil, err
	}
	if goals == nil {
		goals = []generic.Goal{}
	}
	return goals, nil
}

// Transactions returns the goal's ledger in insertion order.
func (g *Goals) Transactions(ctx context.Context, id generic.GoalID) ([]generic.Transaction, error) {
	if _, err := g.store.GetGoal(ctx, id); err != nil {
		return nil, err
	}
	return generic.NewLedger(g.store).ListFor(ctx, id)
}

// =============================================================================
// HELPERS
// =============================================================================

func (g *Goals) lock(ctx context.Context, id generic.GoalID) (func(), error) {
	start := time.Now()
	unlock, err := g.opts.Locker.Lock(ctx, id)
	g.opts.Metrics.observeLockWait(time.Since(start))
	if err != nil {
		logger.Warn("goal lock not acquired", "goal_id", id, "error", err)
		return nil, err
	}
	return unlock, nil
}

// withRetry reruns fn on a version conflict with exponential backoff.
func (g *Goals) withRetry(ctx context.Context, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || !errors.Is(err, generic.ErrConcurrentModification) {
			return err
		}
		if attempt >= g.opts.MaxRetries {
			return fmt.Errorf("failed after %d attempts: %w", attempt+1, err)
		}

		delay := g.opts.RetryBaseDelay * time.Duration(1<<attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
