package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"wayfind/api/internal/order"
)

// MoveItem swaps an item with its neighbor in the requested direction.
// The whole read-plan-swap sequence runs in one transaction with the parent
// roadmap row locked, so concurrent moves on the same roadmap serialize and
// the dense 1..N position sequence survives. Either both position writes
// commit or neither does.
//
// Lock order is roadmap first, then item rows: every position mutation
// (insert, delete, move) takes the roadmap lock before touching items, so
// two movers can never hold pieces of each other's lock set.
//
// Returns sql.ErrNoRows when the item is absent or owned by someone else,
// order.ErrAlreadyFirst / order.ErrAlreadyLast at the boundaries, and
// order.ErrOutOfSequence when the stored positions violate density.
func (s *PostgresStore) MoveItem(ctx context.Context, ownerID, itemID string, dir order.Direction) (Item, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Item{}, fmt.Errorf("begin move tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Unlocked read just to learn which roadmap lock to take.
	var roadmapID string
	err = tx.QueryRowContext(ctx, `
		SELECT roadmap_id FROM items WHERE owner_id=$1 AND id=$2
	`, ownerID, itemID).Scan(&roadmapID)
	if err != nil {
		return Item{}, err
	}

	// Per-roadmap critical section: every position mutation takes this lock.
	var lockedRoadmap string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM roadmaps WHERE owner_id=$1 AND id=$2 FOR UPDATE
	`, ownerID, roadmapID).Scan(&lockedRoadmap)
	if errors.Is(err, sql.ErrNoRows) {
		// Roadmap deleted while we waited; its items cascaded with it.
		return Item{}, sql.ErrNoRows
	}
	if err != nil {
		return Item{}, fmt.Errorf("lock roadmap for move: %w", err)
	}

	// Re-read under the lock: the item may have moved or vanished while we
	// waited for the critical section.
	var current int
	err = tx.QueryRowContext(ctx, `
		SELECT position FROM items WHERE owner_id=$1 AND id=$2
	`, ownerID, itemID).Scan(&current)
	if err != nil {
		return Item{}, err
	}

	var bounds order.Bounds
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MIN(position), 0), COALESCE(MAX(position), 0), COUNT(*)
		FROM items
		WHERE owner_id=$1 AND roadmap_id=$2
	`, ownerID, roadmapID).Scan(&bounds.Min, &bounds.Max, &bounds.Count)
	if err != nil {
		return Item{}, fmt.Errorf("read position bounds: %w", err)
	}

	target, err := order.Plan(current, dir, bounds)
	if err != nil {
		return Item{}, err
	}

	// Density guarantees exactly one occupant at the target position; a miss
	// here means the invariant broke outside this code path.
	var occupantID string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM items
		WHERE owner_id=$1 AND roadmap_id=$2 AND position=$3
	`, ownerID, roadmapID, target).Scan(&occupantID)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, fmt.Errorf("%w: no occupant at position %d in roadmap %s", order.ErrOutOfSequence, target, roadmapID)
	}
	if err != nil {
		return Item{}, fmt.Errorf("find occupant: %w", err)
	}

	// The UNIQUE(roadmap_id, position) constraint is deferred, so the two
	// writes may land in either order within the transaction.
	if _, err := tx.ExecContext(ctx, `
		UPDATE items SET position=$3, modified_at=NOW() WHERE owner_id=$1 AND id=$2
	`, ownerID, occupantID, current); err != nil {
		return Item{}, fmt.Errorf("move occupant: %w", err)
	}

	var moved Item
	err = tx.QueryRowContext(ctx, `
		UPDATE items SET position=$3, modified_at=NOW()
		WHERE owner_id=$1 AND id=$2
		RETURNING id, owner_id, roadmap_id, title, description, position, is_finished, created_at, modified_at
	`, ownerID, itemID, target).Scan(
		&moved.ID,
		&moved.OwnerID,
		&moved.RoadmapID,
		&moved.Title,
		&moved.Description,
		&moved.Position,
		&moved.IsFinished,
		&moved.CreatedAt,
		&moved.ModifiedAt,
	)
	if err != nil {
		return Item{}, fmt.Errorf("move item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Item{}, fmt.Errorf("commit move: %w", err)
	}
	return moved, nil
}
