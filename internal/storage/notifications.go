package storage

import (
	"context"
	"fmt"

	"ledger/internal/core"
)

const notificationColumns = `id, company_id, user_id, kind, title, message, link, read, created_at`

// CreateNotification stores n. A notification whose DedupeKey the user
// already has is skipped; the result reports whether a row was written.
func (r *Repository) CreateNotification(ctx context.Context, n *core.Notification) (bool, error) {
	if n.ID == "" {
		n.ID = newID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = r.now()
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO notifications (`+notificationColumns+`, dedupe_key) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.CompanyID, n.UserID, string(n.Kind), n.Title, n.Message, n.Link, n.Read, n.CreatedAt.Unix(), n.DedupeKey)
	if err != nil {
		return false, fmt.Errorf("insert notification: %w", mapError(err))
	}
	written, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return written > 0, nil
}

// ListNotifications returns the user's notifications, newest first.
func (r *Repository) ListNotifications(ctx context.Context, userID string, limit int) ([]core.Notification, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE user_id = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []core.Notification
	for rows.Next() {
		var n core.Notification
		var kind string
		var created int64
		if err := rows.Scan(&n.ID, &n.CompanyID, &n.UserID, &kind, &n.Title, &n.Message,
			&n.Link, &n.Read, &created); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Kind = core.NotificationKind(kind)
		n.CreatedAt = fromUnix(created)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *Repository) CountUnread(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND read = 0`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}

func (r *Repository) MarkNotificationRead(ctx context.Context, userID, id string) error {
	return checkAffected(r.db.ExecContext(ctx,
		`UPDATE notifications SET read = 1 WHERE id = ? AND user_id = ?`, id, userID))
}

// MarkAllNotificationsRead returns how many notifications changed.
func (r *Repository) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read = 1 WHERE user_id = ? AND read = 0`, userID)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return res.RowsAffected()
}
