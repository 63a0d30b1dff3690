package notifications

import (
	"context"

	"github.com/fieldlabs/hydrosync/internal/client/models"
)

// Repository stores conflict notifications shown to the field user.
type Repository interface {
	// Add appends a notification.
	Add(ctx context.Context, n *models.Notification) error

	// ListUnread returns unread notifications, oldest first.
	ListUnread(ctx context.Context) ([]*models.Notification, error)

	// MarkRead flags a notification as seen.
	MarkRead(ctx context.Context, id int64) error
}
