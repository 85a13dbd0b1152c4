package store

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
	"github.com/tinylib/msgp/msgp"

	"github.com/accountd/accountd/internal/logging"
)

var (
	ErrKeyNotFound = badger.ErrKeyNotFound
	ErrNoRewrite   = badger.ErrNoRewrite
	ErrConflict    = errors.New("trying to update an entry that got updated already")
)

type encodable interface {
	msgp.Marshaler
}

type Ptr[T encodable] interface {
	*T
	msgp.Unmarshaler
}

// Entry wraps a stored value with the version badger assigned to it. Save
// and Delete refuse to touch an entry that was rewritten since it was read,
// which makes the store the final authority for write conflicts.
type Entry[T any] struct {
	Value   T
	version uint64
}

type Database[T encodable, TPtr Ptr[T]] struct {
	db *badger.DB
}

func NewDatabase[T encodable, TPtr Ptr[T]](
	path string,
	logger *zerolog.Logger,
) (*Database[T, TPtr], error) {
	badgerDB, err := badger.Open(
		badger.DefaultOptions(path).WithLogger(logging.NewLoggerAdapter(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to open the database, it might be corrupted: %w", err)
	}

	return &Database[T, TPtr]{badgerDB}, nil
}

func (d *Database[T, TPtr]) Close() error {
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("unable to close the database, it might be corrupted: %w", err)
	}
	return nil
}

func (d *Database[T, TPtr]) Get(key string) (*Entry[T], error) {
	var entry Entry[T]

	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if errors.Is(err, ErrKeyNotFound) {
				return ErrKeyNotFound
			}
			return fmt.Errorf("unexpected error loading key: %w", err)
		}

		val, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("unexpected error extracting value: %w", err)
		}

		var value TPtr = new(T)
		_, err = value.UnmarshalMsg(val)
		if err != nil {
			return fmt.Errorf(
				"entry in the database is not of the correct format, this should not happen: %w",
				err,
			)
		}

		entry.Value = *value
		entry.version = item.Version()
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("unable to load key: %w", err)
	}

	return &entry, nil
}

func (d *Database[T, TPtr]) Save(key string, entry *Entry[T]) error {
	data, err := entry.Value.MarshalMsg(nil)
	if err != nil {
		return fmt.Errorf(
			"entry in the database is not of the correct format, this should not happen: %w",
			err,
		)
	}

	err = d.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("unable to check for previous entry with same key: %w", err)
			}
		} else if item.Version() != entry.version {
			return ErrConflict
		}

		return txn.Set([]byte(key), data)
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return ErrConflict
		}
		return fmt.Errorf("unable to save entry in database: %w", err)
	}
	return nil
}

func (d *Database[T, TPtr]) New(key string, value T) error {
	return d.Save(key, &Entry[T]{Value: value})
}

func (d *Database[T, TPtr]) Delete(key string, entry *Entry[T]) error {
	err := d.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrKeyNotFound
			}
			return fmt.Errorf("unable to check for entry to delete: %w", err)
		}
		if item.Version() != entry.version {
			return ErrConflict
		}

		return txn.Delete([]byte(key))
	})
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) || errors.Is(err, ErrConflict) {
			return err
		}
		return fmt.Errorf("unable to delete entry from database: %w", err)
	}
	return nil
}

// Iterate walks all entries in key order. The callback receives a private
// copy it may keep or mutate freely.
func (d *Database[T, TPtr]) Iterate(fn func(key string, entry *Entry[T]) error) error {
	return d.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			val, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("unexpected error extracting value: %w", err)
			}

			var value TPtr = new(T)
			if _, err := value.UnmarshalMsg(val); err != nil {
				return fmt.Errorf(
					"entry in the database is not of the correct format, this should not happen: %w",
					err,
				)
			}

			entry := Entry[T]{Value: *value, version: item.Version()}
			if err := fn(string(item.Key()), &entry); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *Database[T, TPtr]) RunGarbageCollector() error {
	return d.db.RunValueLogGC(0.5)
}
