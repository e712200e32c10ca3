package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docket/core"
	"github.com/poiesic/docket/storage"
)

// NotificationRepository implements storage.NotificationRepository for BadgerDB.
// IDs come from a sequence, so key order within a tenant is creation order.
type NotificationRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.NotificationRepository = (*NotificationRepository)(nil)

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(backend *Backend) (*NotificationRepository, error) {
	if backend == nil {
		return nil, ErrBackendRequired
	}

	idSeq, err := backend.GetSequence(notificationIDSeq)
	if err != nil {
		return nil, err
	}

	return &NotificationRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *NotificationRepository) Close() error {
	return r.idSeq.Release()
}

// AddNotification stores a notification, assigning ID and CreatedAt.
func (r *NotificationRepository) AddNotification(ctx context.Context, n *core.Notification) (*core.Notification, error) {
	if err := core.ValidateNotification(n); err != nil {
		return nil, err
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		id, err := nextID(r.idSeq)
		if err != nil {
			return err
		}
		n.ID = core.ID(id)
		n.CreatedAt = time.Now().UTC()

		if err := tx.Set(makeNotificationKey(n.TenantID, n.ID), storage.MarshalNotification(n)); err != nil {
			return err
		}
		if err := tx.Set(makeNotificationReverseKey(n.ID), []byte(n.TenantID)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}

	return n, nil
}

// GetNotification retrieves a notification by ID.
func (r *NotificationRepository) GetNotification(ctx context.Context, id core.ID) (*core.Notification, error) {
	var n *core.Notification
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key, err := notificationKeyByID(tx, id)
		if err != nil {
			return err
		}
		if key == nil {
			return storage.ErrNotFound
		}
		n, err = readNotification(tx, key)
		if err != nil {
			return err
		}
		if n == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return n, err
}

// GetNotificationsByTenant returns a tenant's notifications, newest first.
func (r *NotificationRepository) GetNotificationsByTenant(ctx context.Context, tenantID string, limit int) ([]*core.Notification, error) {
	prefix := makeNotificationTenantPrefix(tenantID)

	var notifications []*core.Notification
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = true
		iter := tx.NewIterator(opts)
		defer iter.Close()

		// Reverse iteration seeks from the largest key carrying the prefix.
		seek := append(append([]byte{}, prefix...), 0xFF)
		for iter.Seek(seek); iter.Valid(); iter.Next() {
			if limit > 0 && len(notifications) == limit {
				break
			}
			var n *core.Notification
			err := iter.Item().Value(func(val []byte) error {
				var err error
				n, err = storage.UnmarshalNotification(val)
				return err
			})
			if err != nil {
				return err
			}
			notifications = append(notifications, n)
		}
		return nil
	}, false)

	return notifications, err
}

// MarkRead sets Read on the given notifications.
func (r *NotificationRepository) MarkRead(ctx context.Context, ids ...core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			key, err := notificationKeyByID(tx, id)
			if err != nil {
				return err
			}
			if key == nil {
				continue
			}
			n, err := readNotification(tx, key)
			if err != nil {
				return err
			}
			if n == nil || n.Read {
				continue
			}
			n.Read = true
			if err := tx.Set(key, storage.MarshalNotification(n)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// DeleteNotifications removes notifications by ID.
func (r *NotificationRepository) DeleteNotifications(ctx context.Context, ids ...core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			key, err := notificationKeyByID(tx, id)
			if err != nil {
				return err
			}
			if key == nil {
				continue
			}
			if err := tx.Delete(key); err != nil {
				return err
			}
			if err := tx.Delete(makeNotificationReverseKey(id)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// notificationKeyByID resolves the primary key of a notification through
// its reverse index. Returns nil, nil if the notification doesn't exist.
func notificationKeyByID(tx *badger.Txn, id core.ID) ([]byte, error) {
	item, err := tx.Get(makeNotificationReverseKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	tenantID, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	return makeNotificationKey(string(tenantID), id), nil
}

func readNotification(tx *badger.Txn, key []byte) (*core.Notification, error) {
	item, err := tx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var n *core.Notification
	err = item.Value(func(val []byte) error {
		var err error
		n, err = storage.UnmarshalNotification(val)
		return err
	})
	return n, err
}
