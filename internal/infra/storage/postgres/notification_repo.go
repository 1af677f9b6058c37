package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sidereal-labs/opskit/internal/core/domain"
	"github.com/sidereal-labs/opskit/internal/infra/storage"
)

// NotificationRepo is the Postgres notification history repository.
type NotificationRepo struct {
	db *DB
}

// NewNotificationRepo creates a new NotificationRepo.
func NewNotificationRepo(db *DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

func (r *NotificationRepo) Record(ctx context.Context, n *domain.Notification) error {
	query := `
		INSERT INTO notifications (level, message, payload, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	err := r.db.QueryRowContext(ctx, query, n.Level, n.Message, n.Payload, n.CreatedAt).
		Scan(&n.ID)
	if err != nil {
		return fmt.Errorf("failed to record notification: %w", err)
	}
	return nil
}

func (r *NotificationRepo) Recent(
	ctx context.Context,
	limit int,
) ([]*domain.Notification, error) {
	query := `
		SELECT id, level, message, payload, created_at
		FROM notifications
		ORDER BY created_at DESC
		LIMIT $1`

	var rows []*domain.Notification
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return rows, nil
}

func (r *NotificationRepo) DeleteOlderThan(
	ctx context.Context,
	cutoff time.Time,
) (int64, error) {
	res, err := r.db.ExecContext(
		ctx,
		`DELETE FROM notifications WHERE created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune notifications: %w", err)
	}
	return res.RowsAffected()
}

// notFound maps sql.ErrNoRows to the storage sentinel.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}
