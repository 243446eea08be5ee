package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// InsertItem appends an item to the end of its roadmap. The parent roadmap
// row is locked for the duration so two concurrent inserts cannot compute
// the same next position.
func (s *PostgresStore) InsertItem(ctx context.Context, ownerID, roadmapID, itemID, title, description string) (Item, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Item{}, fmt.Errorf("begin insert item tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var parentOwner string
	err = tx.QueryRowContext(ctx, `
		SELECT owner_id FROM roadmaps WHERE owner_id=$1 AND id=$2 FOR UPDATE
	`, ownerID, roadmapID).Scan(&parentOwner)
	if err != nil {
		return Item{}, err
	}

	var item Item
	err = tx.QueryRowContext(ctx, `
		INSERT INTO items (id, owner_id, roadmap_id, title, description, position)
		VALUES ($1, $2, $3, $4, $5,
			(SELECT COALESCE(MAX(position), 0) + 1 FROM items WHERE owner_id=$2 AND roadmap_id=$3))
		RETURNING id, owner_id, roadmap_id, title, description, position, is_finished, created_at, modified_at
	`, itemID, parentOwner, roadmapID, title, description).Scan(
		&item.ID,
		&item.OwnerID,
		&item.RoadmapID,
		&item.Title,
		&item.Description,
		&item.Position,
		&item.IsFinished,
		&item.CreatedAt,
		&item.ModifiedAt,
	)
	if err != nil {
		return Item{}, fmt.Errorf("insert item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Item{}, fmt.Errorf("commit insert item: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) GetItem(ctx context.Context, ownerID, itemID string) (Item, error) {
	var item Item
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, roadmap_id, title, description, position, is_finished, created_at, modified_at
		FROM items
		WHERE owner_id=$1 AND id=$2
	`, ownerID, itemID).Scan(
		&item.ID,
		&item.OwnerID,
		&item.RoadmapID,
		&item.Title,
		&item.Description,
		&item.Position,
		&item.IsFinished,
		&item.CreatedAt,
		&item.ModifiedAt,
	)
	if err != nil {
		return Item{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListRoadmapItems(ctx context.Context, ownerID, roadmapID string) ([]Item, error) {
	return s.listItems(ctx, `
		SELECT id, owner_id, roadmap_id, title, description, position, is_finished, created_at, modified_at
		FROM items
		WHERE owner_id=$1 AND roadmap_id=$2
		ORDER BY position ASC
	`, ownerID, roadmapID)
}

func (s *PostgresStore) ListOwnerItems(ctx context.Context, ownerID string) ([]Item, error) {
	return s.listItems(ctx, `
		SELECT id, owner_id, roadmap_id, title, description, position, is_finished, created_at, modified_at
		FROM items
		WHERE owner_id=$1
		ORDER BY roadmap_id ASC, position ASC
	`, ownerID)
}

func (s *PostgresStore) listItems(ctx context.Context, query string, args ...any) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		var item Item
		if err := rows.Scan(
			&item.ID,
			&item.OwnerID,
			&item.RoadmapID,
			&item.Title,
			&item.Description,
			&item.Position,
			&item.IsFinished,
			&item.CreatedAt,
			&item.ModifiedAt,
		); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateItem(ctx context.Context, ownerID, itemID, title, description string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE items
		SET title=$3, description=$4, modified_at=NOW()
		WHERE owner_id=$1 AND id=$2
	`, ownerID, itemID, title, description)
	if err != nil {
		return false, fmt.Errorf("update item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update item rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ToggleItemFinished(ctx context.Context, ownerID, itemID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE items
		SET is_finished = NOT is_finished, modified_at=NOW()
		WHERE owner_id=$1 AND id=$2
	`, ownerID, itemID)
	if err != nil {
		return false, fmt.Errorf("toggle item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("toggle item rows: %w", err)
	}
	return affected > 0, nil
}

// DeleteItem removes an item and renumbers everything above it down by one,
// all in one transaction, so positions stay dense 1..N.
func (s *PostgresStore) DeleteItem(ctx context.Context, ownerID, itemID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin delete item tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Unlocked read to find the roadmap, then the roadmap lock, then the
	// position re-read. Taking the roadmap lock first keeps the lock order
	// identical across insert, delete, and move.
	var roadmapID string
	err = tx.QueryRowContext(ctx, `
		SELECT roadmap_id FROM items WHERE owner_id=$1 AND id=$2
	`, ownerID, itemID).Scan(&roadmapID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup item for delete: %w", err)
	}

	var lockedRoadmap string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM roadmaps WHERE owner_id=$1 AND id=$2 FOR UPDATE
	`, ownerID, roadmapID).Scan(&lockedRoadmap)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lock roadmap for delete: %w", err)
	}

	var position int
	err = tx.QueryRowContext(ctx, `
		SELECT position FROM items WHERE owner_id=$1 AND id=$2
	`, ownerID, itemID).Scan(&position)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup item for delete: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM items WHERE owner_id=$1 AND id=$2
	`, ownerID, itemID); err != nil {
		return false, fmt.Errorf("delete item: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE items
		SET position = position - 1
		WHERE owner_id=$1 AND roadmap_id=$2 AND position > $3
	`, ownerID, roadmapID, position); err != nil {
		return false, fmt.Errorf("renumber items after delete: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete item: %w", err)
	}
	return true, nil
}
