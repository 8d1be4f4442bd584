package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
)

// BadgerRepository implements LedgerRepository using BadgerDB.
type BadgerRepository struct {
	db  *badger.DB
	log logrus.FieldLogger
}

// NewBadgerRepository opens the database at dbPath.
func NewBadgerRepository(dbPath string, logger logrus.FieldLogger) (*BadgerRepository, error) {
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = &badgerLogger{logger.WithField("component", "badgerdb")}

	db, err := badger.Open(opts)
	if err != nil {
		logger.WithError(err).Error("Failed to open BadgerDB")
		return nil, fmt.Errorf("failed to open badger db at %s: %w", dbPath, err)
	}
	logger.Info("BadgerDB opened successfully at path: ", dbPath)

	return &BadgerRepository{
		db:  db,
		log: logger.WithField("component", "ledger_repository"),
	}, nil
}

// Close closes the BadgerDB database connection.
func (r *BadgerRepository) Close() error {
	r.log.Info("Closing BadgerDB...")
	if err := r.db.Close(); err != nil {
		r.log.WithError(err).Error("Error closing BadgerDB")
		return err
	}
	r.log.Info("BadgerDB closed.")
	return nil
}

// ledgerKey builds the storage key.
// Format: {namespace}:{key}, or just {key} for the default namespace.
func ledgerKey(namespace, key string) []byte {
	if namespace == "" {
		return []byte(key)
	}
	return []byte(namespace + ":" + key)
}

// LoadIDs reads a JSON-encoded identifier list.
func (r *BadgerRepository) LoadIDs(ctx context.Context, namespace, key string) ([]string, error) {
	log := r.log.WithFields(logrus.Fields{
		"namespace": namespace,
		"key":       key,
	})

	var raw []byte
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(ledgerKey(namespace, key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return []string{}, nil
	}
	if err != nil {
		log.WithError(err).Error("Failed to read ledger from BadgerDB")
		return nil, fmt.Errorf("failed to load %s: %w", key, err)
	}

	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		// Corrupt content resets to empty.
		log.WithError(err).Warn("Malformed ledger value, treating as empty")
		return []string{}, nil
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// SaveIDs stores ids as a JSON array, overwriting any previous value.
func (r *BadgerRepository) SaveIDs(ctx context.Context, namespace, key string, ids []string) error {
	log := r.log.WithFields(logrus.Fields{
		"namespace": namespace,
		"key":       key,
		"count":     len(ids),
	})

	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		log.WithError(err).Error("Failed to marshal ledger to JSON")
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(ledgerKey(namespace, key), data))
	})
	if err != nil {
		log.WithError(err).Error("Failed to save ledger to BadgerDB")
		return fmt.Errorf("failed to save %s: %w", key, err)
	}

	log.Debug("Ledger saved")
	return nil
}

// SaveLedger stores the liked and disliked lists in a single transaction.
func (r *BadgerRepository) SaveLedger(ctx context.Context, namespace string, liked, disliked []string) error {
	log := r.log.WithFields(logrus.Fields{
		"namespace": namespace,
		"liked":     len(liked),
		"disliked":  len(disliked),
	})

	entries := make([]*badger.Entry, 0, 2)
	for _, kv := range []struct {
		key string
		ids []string
	}{
		{LikedKey, liked},
		{DislikedKey, disliked},
	} {
		ids := kv.ids
		if ids == nil {
			ids = []string{}
		}
		data, err := json.Marshal(ids)
		if err != nil {
			log.WithError(err).Error("Failed to marshal ledger to JSON")
			return fmt.Errorf("failed to marshal %s: %w", kv.key, err)
		}
		entries = append(entries, badger.NewEntry(ledgerKey(namespace, kv.key), data))
	}

	err := r.db.Update(func(txn *badger.Txn) error {
		for _, e := range entries {
			if err := txn.SetEntry(e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.WithError(err).Error("Failed to save ledger to BadgerDB")
		return fmt.Errorf("failed to save ledger: %w", err)
	}

	log.Debug("Ledger saved")
	return nil
}

// badgerLogger adapts logrus.FieldLogger to Badger's logger interface.
type badgerLogger struct {
	logger logrus.FieldLogger
}

func (l *badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Errorf(f, v...)
}
func (l *badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warningf(f, v...)
}
func (l *badgerLogger) Infof(f string, v ...interface{}) {
	l.logger.Debugf(f, v...)
}
func (l *badgerLogger) Debugf(f string, v ...interface{}) {
	l.logger.Debugf(f, v...)
}
