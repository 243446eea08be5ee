package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) InsertRoadmap(ctx context.Context, roadmap Roadmap) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO roadmaps (id, owner_id, name, description, category, slug)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, roadmap.ID, roadmap.OwnerID, roadmap.Name, roadmap.Description, roadmap.Category, roadmap.Slug)
	if isUniqueViolation(err) {
		return fmt.Errorf("insert roadmap: %w", ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("insert roadmap: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRoadmap(ctx context.Context, ownerID, roadmapID string) (Roadmap, error) {
	var roadmap Roadmap
	err := s.db.QueryRowContext(ctx, `
		SELECT r.id, r.owner_id, r.name, r.description, r.category, r.slug,
			(SELECT COUNT(*) FROM items i WHERE i.roadmap_id = r.id) AS item_count,
			r.created_at
		FROM roadmaps r
		WHERE r.owner_id=$1 AND r.id=$2
	`, ownerID, roadmapID).Scan(&roadmap.ID, &roadmap.OwnerID, &roadmap.Name, &roadmap.Description, &roadmap.Category, &roadmap.Slug, &roadmap.ItemCount, &roadmap.CreatedAt)
	if err != nil {
		return Roadmap{}, err
	}
	return roadmap, nil
}

func (s *PostgresStore) GetRoadmapBySlug(ctx context.Context, ownerID, slug string) (Roadmap, error) {
	var roadmap Roadmap
	err := s.db.QueryRowContext(ctx, `
		SELECT r.id, r.owner_id, r.name, r.description, r.category, r.slug,
			(SELECT COUNT(*) FROM items i WHERE i.roadmap_id = r.id) AS item_count,
			r.created_at
		FROM roadmaps r
		WHERE r.owner_id=$1 AND r.slug=$2
	`, ownerID, slug).Scan(&roadmap.ID, &roadmap.OwnerID, &roadmap.Name, &roadmap.Description, &roadmap.Category, &roadmap.Slug, &roadmap.ItemCount, &roadmap.CreatedAt)
	if err != nil {
		return Roadmap{}, err
	}
	return roadmap, nil
}

func (s *PostgresStore) ListRoadmaps(ctx context.Context, ownerID string) ([]Roadmap, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.owner_id, r.name, r.description, r.category, r.slug,
			(SELECT COUNT(*) FROM items i WHERE i.roadmap_id = r.id) AS item_count,
			r.created_at
		FROM roadmaps r
		WHERE r.owner_id=$1
		ORDER BY r.category ASC, r.name ASC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list roadmaps: %w", err)
	}
	defer rows.Close()

	roadmaps := make([]Roadmap, 0)
	for rows.Next() {
		var roadmap Roadmap
		if err := rows.Scan(&roadmap.ID, &roadmap.OwnerID, &roadmap.Name, &roadmap.Description, &roadmap.Category, &roadmap.Slug, &roadmap.ItemCount, &roadmap.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan roadmap: %w", err)
		}
		roadmaps = append(roadmaps, roadmap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roadmaps: %w", err)
	}
	return roadmaps, nil
}

// UpdateRoadmap edits name, category, and description. The slug is never
// regenerated so saved links stay stable.
func (s *PostgresStore) UpdateRoadmap(ctx context.Context, ownerID, roadmapID, name, category, description string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE roadmaps
		SET name=$3, category=$4, description=$5
		WHERE owner_id=$1 AND id=$2
	`, ownerID, roadmapID, name, category, description)
	if err != nil {
		return false, fmt.Errorf("update roadmap: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update roadmap rows: %w", err)
	}
	return affected > 0, nil
}

// DeleteRoadmap removes a roadmap; its items go with it via the
// ON DELETE CASCADE referential action.
func (s *PostgresStore) DeleteRoadmap(ctx context.Context, ownerID, roadmapID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM roadmaps WHERE owner_id=$1 AND id=$2
	`, ownerID, roadmapID)
	if err != nil {
		return false, fmt.Errorf("delete roadmap: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete roadmap rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) SlugExists(ctx context.Context, ownerID, slug string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM roadmaps WHERE owner_id=$1 AND slug=$2)
	`, ownerID, slug).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check slug: %w", err)
	}
	return exists, nil
}
