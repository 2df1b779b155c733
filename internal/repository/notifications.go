package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mmeshcher/campaign-ledger/internal/model"
)

// CreateNotification сохраняет уведомление пользователя.
func (r *PostgresRepository) CreateNotification(ctx context.Context, n *model.Notification) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO notifications (id, user_id, type, message)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		n.ID, n.UserID, string(n.Type), n.Message,
	).Scan(&n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListNotifications возвращает последние уведомления пользователя.
func (r *PostgresRepository) ListNotifications(ctx context.Context, userID uuid.UUID, limit int) ([]model.Notification, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, type, message, is_read, created_at
		 FROM notifications
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select notifications: %w", err)
	}
	defer rows.Close()

	var res []model.Notification
	for rows.Next() {
		var (
			n   model.Notification
			typ string
		)
		if err := rows.Scan(&n.ID, &typ, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.UserID = userID
		n.Type = model.NotificationType(typ)
		res = append(res, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
