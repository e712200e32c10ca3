// Package notify records user visible outcomes of asynchronous work.
//
// Notifications are tenant scoped. Every operation taking a notification ID
// checks that it belongs to the calling tenant.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/docket/core"
	"github.com/poiesic/docket/storage"
)

// DefaultListLimit is the page size of List when none is given.
const DefaultListLimit = 50

// ErrRepositoryRequired is returned when a notification repository is not provided.
var ErrRepositoryRequired = errors.New("notification repository required")

// Sink is the narrow interface coordinators use to report outcomes.
type Sink interface {
	Create(ctx context.Context, tenantID string, typ core.NotificationType, title, message, documentRef string) (*core.Notification, error)
	DeleteForDocument(ctx context.Context, tenantID, documentRef string) (int, error)
}

// Service implements notification create, list and housekeeping operations.
type Service struct {
	repo   storage.NotificationRepository
	logger *slog.Logger
}

var _ Sink = (*Service)(nil)

// Option configures a Service.
type Option func(*Service) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewService creates a notification service over repo.
func NewService(repo storage.NotificationRepository, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}

	s := &Service{repo: repo, logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "notify")
	return s, nil
}

// Create stores a new unread notification.
func (s *Service) Create(ctx context.Context, tenantID string, typ core.NotificationType, title, message, documentRef string) (*core.Notification, error) {
	n, err := s.repo.AddNotification(ctx, &core.Notification{
		TenantID:    tenantID,
		Type:        typ,
		Title:       title,
		Message:     message,
		DocumentRef: documentRef,
	})
	if err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	s.logger.Debug("notification created", "tenant", tenantID, "type", typ, "document", documentRef)
	return n, nil
}

// List returns a tenant's notifications, newest first.
// A limit <= 0 uses DefaultListLimit.
func (s *Service) List(ctx context.Context, tenantID string, limit int) ([]*core.Notification, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return s.repo.GetNotificationsByTenant(ctx, tenantID, limit)
}

// UnreadCount returns how many of a tenant's notifications are unread.
func (s *Service) UnreadCount(ctx context.Context, tenantID string) (int, error) {
	all, err := s.repo.GetNotificationsByTenant(ctx, tenantID, 0)
	if err != nil {
		return 0, err
	}
	unread := 0
	for _, n := range all {
		if !n.Read {
			unread++
		}
	}
	return unread, nil
}

// ListByDocument returns a tenant's notifications about one document, newest first.
func (s *Service) ListByDocument(ctx context.Context, tenantID, documentRef string) ([]*core.Notification, error) {
	all, err := s.repo.GetNotificationsByTenant(ctx, tenantID, 0)
	if err != nil {
		return nil, err
	}
	var matched []*core.Notification
	for _, n := range all {
		if n.DocumentRef == documentRef {
			matched = append(matched, n)
		}
	}
	return matched, nil
}

// MarkRead marks one notification read.
func (s *Service) MarkRead(ctx context.Context, tenantID string, id core.ID) error {
	if _, err := s.owned(ctx, tenantID, id); err != nil {
		return err
	}
	return s.repo.MarkRead(ctx, id)
}

// MarkAllRead marks every unread notification of a tenant read and returns how many changed.
func (s *Service) MarkAllRead(ctx context.Context, tenantID string) (int, error) {
	all, err := s.repo.GetNotificationsByTenant(ctx, tenantID, 0)
	if err != nil {
		return 0, err
	}
	var ids []core.ID
	for _, n := range all {
		if !n.Read {
			ids = append(ids, n.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return len(ids), s.repo.MarkRead(ctx, ids...)
}

// Delete removes one notification.
func (s *Service) Delete(ctx context.Context, tenantID string, id core.ID) error {
	if _, err := s.owned(ctx, tenantID, id); err != nil {
		return err
	}
	return s.repo.DeleteNotifications(ctx, id)
}

// DeleteAll removes every notification of a tenant and returns how many were removed.
func (s *Service) DeleteAll(ctx context.Context, tenantID string) (int, error) {
	all, err := s.repo.GetNotificationsByTenant(ctx, tenantID, 0)
	if err != nil {
		return 0, err
	}
	return len(all), s.repo.DeleteNotifications(ctx, ids(all)...)
}

// DeleteForDocument removes every notification of a tenant about documentRef.
func (s *Service) DeleteForDocument(ctx context.Context, tenantID, documentRef string) (int, error) {
	matched, err := s.ListByDocument(ctx, tenantID, documentRef)
	if err != nil {
		return 0, err
	}
	if len(matched) == 0 {
		return 0, nil
	}
	return len(matched), s.repo.DeleteNotifications(ctx, ids(matched)...)
}

// owned loads a notification and checks it belongs to tenantID.
func (s *Service) owned(ctx context.Context, tenantID string, id core.ID) (*core.Notification, error) {
	n, err := s.repo.GetNotification(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: notification %s", core.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if n.TenantID != tenantID {
		return nil, fmt.Errorf("%w: notification %s", core.ErrPermissionDenied, id)
	}
	return n, nil
}

func ids(notifications []*core.Notification) []core.ID {
	out := make([]core.ID, len(notifications))
	for i, n := range notifications {
		out[i] = n.ID
	}
	return out
}
