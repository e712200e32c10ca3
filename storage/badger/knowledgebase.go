package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docket/core"
	"github.com/poiesic/docket/storage"
)

// KnowledgeBaseRepository implements storage.KnowledgeBaseRepository for BadgerDB.
type KnowledgeBaseRepository struct {
	backend *Backend
}

var _ storage.KnowledgeBaseRepository = (*KnowledgeBaseRepository)(nil)

// NewKnowledgeBaseRepository creates a new KnowledgeBaseRepository.
func NewKnowledgeBaseRepository(backend *Backend) (*KnowledgeBaseRepository, error) {
	if backend == nil {
		return nil, ErrBackendRequired
	}
	return &KnowledgeBaseRepository{backend: backend}, nil
}

// AddKnowledgeBase stores a new knowledge base and its tenant index entry.
func (r *KnowledgeBaseRepository) AddKnowledgeBase(ctx context.Context, kb *core.KnowledgeBase) (*core.KnowledgeBase, error) {
	if err := core.ValidateKnowledgeBase(kb); err != nil {
		return nil, err
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeKnowledgeBaseKey(kb.ID)
		existing, err := readKnowledgeBase(tx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			return storage.ErrDuplicateKey
		}

		kb.CreatedAt = time.Now().UTC()
		kb.UpdatedAt = kb.CreatedAt

		if err := tx.Set(key, storage.MarshalKnowledgeBase(kb)); err != nil {
			return err
		}
		if err := tx.Set(makeKnowledgeBaseTenantKey(kb.TenantID, kb.ID), []byte{}); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}

	return kb, nil
}

// UpdateKnowledgeBase replaces an existing knowledge base.
// Tenant, namespace and creation time are immutable and kept from the stored record.
func (r *KnowledgeBaseRepository) UpdateKnowledgeBase(ctx context.Context, kb *core.KnowledgeBase) (*core.KnowledgeBase, error) {
	if err := core.ValidateKnowledgeBase(kb); err != nil {
		return nil, err
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeKnowledgeBaseKey(kb.ID)
		old, err := readKnowledgeBase(tx, key)
		if err != nil {
			return err
		}
		if old == nil {
			return storage.ErrNotFound
		}

		kb.TenantID = old.TenantID
		kb.Namespace = old.Namespace
		kb.CreatedAt = old.CreatedAt
		kb.UpdatedAt = time.Now().UTC()

		if err := tx.Set(key, storage.MarshalKnowledgeBase(kb)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}

	return kb, nil
}

// GetKnowledgeBase retrieves a knowledge base by ID.
func (r *KnowledgeBaseRepository) GetKnowledgeBase(ctx context.Context, id string) (*core.KnowledgeBase, error) {
	var kb *core.KnowledgeBase
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		kb, err = readKnowledgeBase(tx, makeKnowledgeBaseKey(id))
		if err != nil {
			return err
		}
		if kb == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return kb, err
}

// GetKnowledgeBasesByTenant lists a tenant's knowledge bases ordered by ID.
func (r *KnowledgeBaseRepository) GetKnowledgeBasesByTenant(ctx context.Context, tenantID string) ([]*core.KnowledgeBase, error) {
	prefix := makeKnowledgeBaseTenantPrefix(tenantID)

	var kbs []*core.KnowledgeBase
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			id := string(iter.Item().Key()[len(prefix):])
			kb, err := readKnowledgeBase(tx, makeKnowledgeBaseKey(id))
			if err != nil {
				return err
			}
			if kb != nil {
				kbs = append(kbs, kb)
			}
		}
		return nil
	}, false)

	return kbs, err
}

// DeleteKnowledgeBase removes a knowledge base and its tenant index entry.
func (r *KnowledgeBaseRepository) DeleteKnowledgeBase(ctx context.Context, id string) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeKnowledgeBaseKey(id)
		kb, err := readKnowledgeBase(tx, key)
		if err != nil {
			return err
		}
		if kb == nil {
			return storage.ErrNotFound
		}

		if err := tx.Delete(makeKnowledgeBaseTenantKey(kb.TenantID, kb.ID)); err != nil {
			return err
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

func readKnowledgeBase(tx *badger.Txn, key []byte) (*core.KnowledgeBase, error) {
	item, err := tx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var kb *core.KnowledgeBase
	err = item.Value(func(val []byte) error {
		var err error
		kb, err = storage.UnmarshalKnowledgeBase(val)
		return err
	})
	return kb, err
}
