// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/savings-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	goals        map[generic.GoalID]generic.Goal
	transactions map[generic.GoalID][]generic.Transaction
	idempotency  map[string]bool
}

func NewMemory() *Memory {
	return &Memory{
		goals:        make(map[generic.GoalID]generic.Goal),
		transactions: make(map[generic.GoalID][]generic.Transaction),
		idempotency:  make(map[string]bool),
	}
}

// AppendTransaction adds a single transaction. Append-only.
func (m *Memory) AppendTransaction(_ context.Context, tx generic.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(tx)
}

func (m *Memory) appendLocked(tx generic.Transaction) error {
	if _, ok := m.goals[tx.GoalID]; !ok {
		return generic.ErrNotFound
	}
	if tx.IdempotencyKey != "" {
		if m.idempotency[tx.IdempotencyKey] {
			return generic.ErrDuplicateIdempotencyKey
		}
		m.idempotency[tx.IdempotencyKey] = true
	}
	m.transactions[tx.GoalID] = append(m.transactions[tx.GoalID], tx)
	return nil
}

func (m *Memory) LoadTransactions(_ context.Context, goalID generic.GoalID) ([]generic.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadLocked(goalID), nil
}

func (m *Memory) loadLocked(goalID generic.GoalID) []generic.Transaction {
	result := make([]generic.Transaction, len(m.transactions[goalID]))
	copy(result, m.transactions[goalID])
	return result
}

func (m *Memory) IdempotencyKeyExists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[key], nil
}

// =============================================================================
// GOALS
// =============================================================================

func (m *Memory) InsertGoal(_ context.Context, goal generic.Goal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(goal)
}

func (m *Memory) insertLocked(goal generic.Goal) error {
	if _, exists := m.goals[goal.ID]; exists {
		return generic.ErrConcurrentModification
	}
	m.goals[goal.ID] = goal
	return nil
}

func (m *Memory) GetGoal(_ context.Context, id generic.GoalID) (*generic.Goal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLocked(id)
}

// GetGoalForUpdate is GetGoal; WithTx already holds the write lock.
func (m *Memory) GetGoalForUpdate(ctx context.Context, id generic.GoalID) (*generic.Goal, error) {
	return m.GetGoal(ctx, id)
}

func (m *Memory) getLocked(id generic.GoalID) (*generic.Goal, error) {
	g, ok := m.goals[id]
	if !ok {
		return nil, generic.ErrNotFound
	}
	return &g, nil
}

func (m *Memory) ListGoals(_ context.Context, filter generic.GoalFilter) ([]generic.Goal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(filter), nil
}

func (m *Memory) listLocked(filter generic.GoalFilter) []generic.Goal {
	result := make([]generic.Goal, 0, len(m.goals))
	for _, g := range m.goals {
		if filter.ActiveOnly && !g.IsActive {
			continue
		}
		result = append(result, g)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

func (m *Memory) UpdateGoal(_ context.Context, goal *generic.Goal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(goal)
}

func (m *Memory) updateLocked(goal *generic.Goal) error {
	stored, ok := m.goals[goal.ID]
	if !ok {
		return generic.ErrNotFound
	}
	if stored.Version != goal.Version {
		return generic.ErrConcurrentModification
	}
	goal.Version++
	m.goals[goal.ID] = *goal
	return nil
}

func (m *Memory) DeleteGoal(_ context.Context, id generic.GoalID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteLocked(id)
}

func (m *Memory) deleteLocked(id generic.GoalID) error {
	if _, ok := m.goals[id]; !ok {
		return generic.ErrNotFound
	}
	for _, tx := range m.transactions[id] {
		if tx.IdempotencyKey != "" {
			delete(m.idempotency, tx.IdempotencyKey)
		}
	}
	delete(m.transactions, id)
	delete(m.goals, id)
	return nil
}

// =============================================================================
// TRANSACTIONS (generic.TxStore)
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(generic.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()

	if err := fn(&txMemoryView{parent: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	goals        map[generic.GoalID]generic.Goal
	transactions map[generic.GoalID][]generic.Transaction
	idempotency  map[string]bool
}

func (m *Memory) snapshot() memorySnapshot {
	goals := make(map[generic.GoalID]generic.Goal, len(m.goals))
	for k, v := range m.goals {
		goals[k] = v
	}
	txs := make(map[generic.GoalID][]generic.Transaction, len(m.transactions))
	for k, v := range m.transactions {
		txs[k] = append([]generic.Transaction{}, v...)
	}
	idem := make(map[string]bool, len(m.idempotency))
	for k, v := range m.idempotency {
		idem[k] = v
	}
	return memorySnapshot{goals: goals, transactions: txs, idempotency: idem}
}

func (m *Memory) restore(s memorySnapshot) {
	m.goals = s.goals
	m.transactions = s.transactions
	m.idempotency = s.idempotency
}

// txMemoryView runs with the parent's write lock already held.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) AppendTransaction(_ context.Context, tx generic.Transaction) error {
	return tv.parent.appendLocked(tx)
}

func (tv *txMemoryView) LoadTransactions(_ context.Context, goalID generic.GoalID) ([]generic.Transaction, error) {
	return tv.parent.loadLocked(goalID), nil
}

func (tv *txMemoryView) IdempotencyKeyExists(_ context.Context, key string) (bool, error) {
	return tv.parent.idempotency[key], nil
}

func (tv *txMemoryView) InsertGoal(_ context.Context, goal generic.Goal) error {
	return tv.parent.insertLocked(goal)
}

func (tv *txMemoryView) GetGoal(_ context.Context, id generic.GoalID) (*generic.Goal, error) {
	return tv.parent.getLocked(id)
}

func (tv *txMemoryView) GetGoalForUpdate(_ context.Context, id generic.GoalID) (*generic.Goal, error) {
	return tv.parent.getLocked(id)
}

func (tv *txMemoryView) ListGoals(_ context.Context, filter generic.GoalFilter) ([]generic.Goal, error) {
	return tv.parent.listLocked(filter), nil
}

func (tv *txMemoryView) UpdateGoal(_ context.Context, goal *generic.Goal) error {
	return tv.parent.updateLocked(goal)
}

func (tv *txMemoryView) DeleteGoal(_ context.Context, id generic.GoalID) error {
	return tv.parent.deleteLocked(id)
}
