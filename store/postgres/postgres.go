/*
Package postgres provides a PostgreSQL-backed implementation of the storage
interfaces, built on gorm.

PURPOSE:
  Implements generic.TxStore for multi-instance deployments. Reads go to
  the read handle and writes to the write handle; inside WithTx both are
  the same transaction.

ROW LOCKING:
  GetGoalForUpdate issues SELECT ... FOR UPDATE so two instances cannot
  interleave a balance check with a write. UpdateGoal is version-checked
  on top of that.

SCHEMA:
  Managed by goose migrations embedded in this package (migrate.go).
  Tests use AutoMigrate on the entities against SQLite instead.

SEE ALSO:
  - store/sqlite: Single-node backend with the same contract
  - generic/store.go: Interface definitions
*/
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/warp/savings-engine/generic"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

type Config struct {
	User     string
	Host     string
	Port     string
	Password string
	Database string
}

func (c Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		c.Host, c.User, c.Password, c.Database, c.Port)
}

// Open connects gorm to one PostgreSQL endpoint.
func Open(config Config, withDebug bool) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(config.DSN()), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	if withDebug {
		db = db.Debug()
	}
	return db, nil
}

// Store implements generic.TxStore using PostgreSQL.
type Store struct {
	handle
}

// New opens the read and write endpoints. They may be the same server.
func New(readConfig, writeConfig Config, withDebug bool) (*Store, error) {
	read, err := Open(readConfig, withDebug)
	if err != nil {
		return nil, fmt.Errorf("open read database: %w", err)
	}
	write, err := Open(writeConfig, withDebug)
	if err != nil {
		return nil, fmt.Errorf("open write database: %w", err)
	}
	return FromGorm(read, write), nil
}

// FromGorm wraps existing gorm handles.
func FromGorm(read, write *gorm.DB) *Store {
	return &Store{handle{read: read, write: write}}
}

// Close closes both connection pools.
func (s *Store) Close() error {
	var errs []error
	for _, db := range []*gorm.DB{s.read, s.write} {
		sqlDB, err := db.DB()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		errs = append(errs, sqlDB.Close())
	}
	return errors.Join(errs...)
}

// WithTx executes fn within one database transaction on the write handle.
func (s *Store) WithTx(ctx context.Context, fn func(generic.Store) error) error {
	return s.write.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&handle{read: tx, write: tx})
	})
}

// handle carries the queries. Outside WithTx read and write are the two
// pools; inside they are the same *gorm.DB transaction.
type handle struct {
	read  *gorm.DB
	write *gorm.DB
}

// =============================================================================
// TRANSACTION STORE
// =============================================================================

func (h *handle) AppendTransaction(ctx context.Context, tx generic.Transaction) error {
	var count int64
	err := h.write.WithContext(ctx).Model(&GoalEntity{}).Where("id = ?", tx.GoalID).Count(&count).Error
	if err != nil {
		return fmt.Errorf("failed to check goal: %w", err)
	}
	if count == 0 {
		return generic.ErrNotFound
	}

	entity := transactionToEntity(tx)
	if err := h.write.WithContext(ctx).Create(&entity).Error; err != nil {
		switch {
		case errors.Is(err, gorm.ErrDuplicatedKey) && tx.IdempotencyKey != "":
			return generic.ErrDuplicateIdempotencyKey
		case errors.Is(err, gorm.ErrForeignKeyViolated):
			return generic.ErrNotFound
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

func (h *handle) LoadTransactions(ctx context.Context, goalID generic.GoalID) ([]generic.Transaction, error) {
	var entities []TransactionEntity
	err := h.read.WithContext(ctx).
		Where("goal_id = ?", goalID).
		Order("seq ASC").
		Find(&entities).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}

	txs := make([]generic.Transaction, 0, len(entities))
	for _, e := range entities {
		txs = append(txs, entityToTransaction(e))
	}
	return txs, nil
}

func (h *handle) IdempotencyKeyExists(ctx context.Context, key string) (bool, error) {
	var count int64
	err := h.read.WithContext(ctx).Model(&TransactionEntity{}).Where("idempotency_key = ?", key).Count(&count).Error
	return count > 0, err
}

// =============================================================================
// GOAL STORE
// =============================================================================

func (h *handle) InsertGoal(ctx context.Context, goal generic.Goal) error {
	entity := goalToEntity(goal)
	if err := h.write.WithContext(ctx).Create(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("goal %s already exists: %w", goal.ID, generic.ErrConcurrentModification)
		}
		return fmt.Errorf("failed to insert goal: %w", err)
	}
	return nil
}

func (h *handle) GetGoal(ctx context.Context, id generic.GoalID) (*generic.Goal, error) {
	return h.getGoal(h.read.WithContext(ctx), id)
}

func (h *handle) GetGoalForUpdate(ctx context.Context, id generic.GoalID) (*generic.Goal, error) {
	return h.getGoal(h.write.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (h *handle) getGoal(db *gorm.DB, id generic.GoalID) (*generic.Goal, error) {
	var entity GoalEntity
	if err := db.Where("id = ?", id).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, generic.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query goal: %w", err)
	}
	g := entityToGoal(entity)
	return &g, nil
}

func (h *handle) ListGoals(ctx context.Context, filter generic.GoalFilter) ([]generic.Goal, error) {
	q := h.read.WithContext(ctx).Order("created_at ASC").Order("id ASC")
	if filter.ActiveOnly {
		q = q.Where("is_active = ?", true)
	}

	var entities []GoalEntity
	if err := q.Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}

	goals := make([]generic.Goal, 0, len(entities))
	for _, e := range entities {
		goals = append(goals, entityToGoal(e))
	}
	return goals, nil
}

func (h *handle) UpdateGoal(ctx context.Context, goal *generic.Goal) error {
	e := goalToEntity(*goal)
	var deadline any
	if e.Deadline != nil {
		deadline = *e.Deadline
	}

	result := h.write.WithContext(ctx).
		Model(&GoalEntity{}).
		Where("id = ? AND version = ?", goal.ID, goal.Version).
		Updates(map[string]any{
			"name":           e.Name,
			"description":    e.Description,
			"category":       e.Category,
			"target_amount":  e.TargetAmount,
			"current_amount": e.CurrentAmount,
			"deadline":       deadline,
			"priority":       e.Priority,
			"is_active":      e.IsActive,
			"color":          e.Color,
			"icon":           e.Icon,
			"updated_at":     e.UpdatedAt,
			"version":        gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update goal: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := h.getGoal(h.write.WithContext(ctx), goal.ID); err != nil {
			return err
		}
		return generic.ErrConcurrentModification
	}
	goal.Version++
	return nil
}

func (h *handle) DeleteGoal(ctx context.Context, id generic.GoalID) error {
	return h.write.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("goal_id = ?", id).Delete(&TransactionEntity{}).Error; err != nil {
			return fmt.Errorf("failed to delete transactions: %w", err)
		}
		result := tx.Where("id = ?", id).Delete(&GoalEntity{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete goal: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return generic.ErrNotFound
		}
		return nil
	})
}
