package postgres

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/savings-engine/generic"
)

// Timestamps are set by the goal store, never by gorm.

type GoalEntity struct {
	ID            string          `gorm:"primaryKey;type:uuid"`
	Name          string          `gorm:"not null"`
	Description   string          `gorm:"not null"`
	Category      string          `gorm:"not null"`
	TargetAmount  decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	CurrentAmount decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Deadline      *time.Time      `gorm:"type:date"`
	Priority      string          `gorm:"size:16;not null"`
	IsActive      bool            `gorm:"not null;index:idx_goals_active_created,priority:1"`
	Color         string          `gorm:"not null"`
	Icon          string          `gorm:"not null"`
	Version       int64           `gorm:"not null"`
	CreatedAt     time.Time       `gorm:"not null;autoCreateTime:false;index:idx_goals_active_created,priority:2"`
	UpdatedAt     time.Time       `gorm:"not null;autoUpdateTime:false"`
}

func (GoalEntity) TableName() string { return "goals" }

// TransactionEntity is append-only. Seq preserves insertion order.
type TransactionEntity struct {
	Seq            int64           `gorm:"primaryKey;autoIncrement"`
	ID             string          `gorm:"type:uuid;uniqueIndex;not null"`
	GoalID         string          `gorm:"type:uuid;not null;index:idx_goal_transactions_goal_seq,priority:1"`
	Type           string          `gorm:"column:tx_type;size:16;not null"`
	Amount         decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Description    *string
	EffectiveAt    time.Time `gorm:"not null"`
	IdempotencyKey *string   `gorm:"uniqueIndex"`
	CreatedAt      time.Time `gorm:"not null;autoCreateTime:false"`
}

func (TransactionEntity) TableName() string { return "goal_transactions" }

func goalToEntity(g generic.Goal) GoalEntity {
	e := GoalEntity{
		ID:            string(g.ID),
		Name:          g.Name,
		Description:   g.Description,
		Category:      g.Category,
		TargetAmount:  g.TargetAmount,
		CurrentAmount: g.CurrentAmount,
		Priority:      string(g.Priority),
		IsActive:      g.IsActive,
		Color:         g.Color,
		Icon:          g.Icon,
		Version:       g.Version,
		CreatedAt:     g.CreatedAt.UTC(),
		UpdatedAt:     g.UpdatedAt.UTC(),
	}
	if g.Deadline != nil {
		d := generic.DateOf(*g.Deadline)
		e.Deadline = &d
	}
	return e
}

func entityToGoal(e GoalEntity) generic.Goal {
	g := generic.Goal{
		ID:            generic.GoalID(e.ID),
		Name:          e.Name,
		Description:   e.Description,
		Category:      e.Category,
		TargetAmount:  e.TargetAmount,
		CurrentAmount: e.CurrentAmount,
		Priority:      generic.Priority(e.Priority),
		IsActive:      e.IsActive,
		Color:         e.Color,
		Icon:          e.Icon,
		Version:       e.Version,
		CreatedAt:     e.CreatedAt.UTC(),
		UpdatedAt:     e.UpdatedAt.UTC(),
	}
	if e.Deadline != nil {
		// date columns may come back in the session time zone
		d := generic.NewDate(e.Deadline.Year(), e.Deadline.Month(), e.Deadline.Day())
		g.Deadline = &d
	}
	return g
}

func transactionToEntity(tx generic.Transaction) TransactionEntity {
	return TransactionEntity{
		ID:             string(tx.ID),
		GoalID:         string(tx.GoalID),
		Type:           string(tx.Type),
		Amount:         tx.Amount,
		Description:    optional(tx.Description),
		EffectiveAt:    tx.Date.UTC(),
		IdempotencyKey: optional(tx.IdempotencyKey),
		CreatedAt:      tx.CreatedAt.UTC(),
	}
}

func entityToTransaction(e TransactionEntity) generic.Transaction {
	tx := generic.Transaction{
		ID:        generic.TransactionID(e.ID),
		GoalID:    generic.GoalID(e.GoalID),
		Type:      generic.TransactionType(e.Type),
		Amount:    e.Amount,
		Date:      e.EffectiveAt.UTC(),
		CreatedAt: e.CreatedAt.UTC(),
	}
	if e.Description != nil {
		tx.Description = *e.Description
	}
	if e.IdempotencyKey != nil {
		tx.IdempotencyKey = *e.IdempotencyKey
	}
	return tx
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
