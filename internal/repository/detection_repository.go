package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"thermascan/api/internal/models"
)

var ErrRecordNotFound = errors.New("detection record not found")

type DetectionRepository struct {
	pool *pgxpool.Pool
}

func NewDetectionRepository(pool *pgxpool.Pool) *DetectionRepository {
	return &DetectionRepository{pool: pool}
}

// Create inserts a record and reads back the generated id and
// timestamp in the same statement.
func (r *DetectionRepository) Create(ctx context.Context, record models.DetectionRecord) (models.DetectionRecord, error) {
	payload, err := json.Marshal(record.Detections)
	if err != nil {
		return models.DetectionRecord{}, fmt.Errorf("encode detections: %w", err)
	}

	const query = `
		INSERT INTO detections (user_id, image_path, detections, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, created_at
	`

	row := r.pool.QueryRow(ctx, query, record.UserID, record.ImagePath, payload)
	if err := row.Scan(&record.ID, &record.CreatedAt); err != nil {
		return models.DetectionRecord{}, err
	}
	return record, nil
}

// GetByID and the other read/delete operations carry the owning user
// in their predicates, mirroring the ownership policy on the table.
func (r *DetectionRepository) GetByID(ctx context.Context, id, userID string) (models.DetectionRecord, error) {
	const query = `
		SELECT id, user_id, image_path, detections, created_at
		FROM detections
		WHERE id = $1 AND user_id = $2
	`

	row := r.pool.QueryRow(ctx, query, id, userID)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.DetectionRecord{}, ErrRecordNotFound
		}
		return models.DetectionRecord{}, err
	}
	return record, nil
}

func (r *DetectionRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.DetectionRecord, error) {
	const query = `
		SELECT id, user_id, image_path, detections, created_at
		FROM detections
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.DetectionRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (r *DetectionRepository) Delete(ctx context.Context, id, userID string) error {
	const query = `DELETE FROM detections WHERE id = $1 AND user_id = $2`

	tag, err := r.pool.Exec(ctx, query, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// ExistsByImagePath reports whether any record references the given
// storage key. Used by the orphan janitor.
func (r *DetectionRepository) ExistsByImagePath(ctx context.Context, imagePath string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM detections WHERE image_path = $1)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, imagePath).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func scanRecord(row pgx.Row) (models.DetectionRecord, error) {
	var (
		record  models.DetectionRecord
		payload []byte
	)
	if err := row.Scan(
		&record.ID,
		&record.UserID,
		&record.ImagePath,
		&payload,
		&record.CreatedAt,
	); err != nil {
		return models.DetectionRecord{}, err
	}
	if err := json.Unmarshal(payload, &record.Detections); err != nil {
		return models.DetectionRecord{}, fmt.Errorf("decode detections: %w", err)
	}
	return record, nil
}
