package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// Index keys live outside every collection prefix so that prefix scans only
// see records.
const indexPrefix = "idx:"

// Collection provides keyed record operations for one record type. Each
// operation runs in its own transaction.
type Collection[T any] struct {
	db      *badger.DB
	prefix  string
	idOf    func(*T) string
	indexes []index[T]
}

type index[T any] struct {
	name   string
	keyGen func(*T) []string
}

func newCollection[T any](db *badger.DB, prefix string, idOf func(*T) string) *Collection[T] {
	return &Collection[T]{db: db, prefix: prefix, idOf: idOf}
}

// withIndex adds a non-unique secondary index. keyGen returns the index
// values the record should be listed under.
func (c *Collection[T]) withIndex(name string, keyGen func(*T) []string) *Collection[T] {
	c.indexes = append(c.indexes, index[T]{name: name, keyGen: keyGen})
	return c
}

func (c *Collection[T]) key(id string) []byte {
	return []byte(c.prefix + id)
}

func (c *Collection[T]) indexScanPrefix(name, value string) string {
	return indexPrefix + c.prefix + name + ":" + value + ":"
}

// Get returns the record with id or ErrNotFound.
func (c *Collection[T]) Get(ctx context.Context, id string) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out *T
	err := c.db.View(func(txn *badger.Txn) error {
		v, err := c.getTxn(txn, id)
		out = v
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Put inserts or replaces v under its id.
func (c *Collection[T]) Put(ctx context.Context, v *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return c.putTxn(txn, v)
	})
}

// Delete removes the record with id. Deleting a missing record is not an error.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return c.deleteTxn(txn, id)
	})
}

// GetAll returns every record in key order.
func (c *Collection[T]) GetAll(ctx context.Context) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []T
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(c.prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var v T
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &v)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetAllKeysByIndex returns the ids of records listed under value in the
// named index.
func (c *Collection[T]) GetAllKeysByIndex(ctx context.Context, name, value string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scan := c.indexScanPrefix(name, value)
	var ids []string
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(scan)
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			ids = append(ids, strings.TrimPrefix(string(it.Item().Key()), scan))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (c *Collection[T]) getTxn(txn *badger.Txn, id string) (*T, error) {
	item, err := txn.Get(c.key(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s%s: %w", c.prefix, id, err)
	}

	var v T
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &v)
	}); err != nil {
		return nil, fmt.Errorf("decode %s%s: %w", c.prefix, id, err)
	}
	return &v, nil
}

func (c *Collection[T]) putTxn(txn *badger.Txn, v *T) error {
	id := c.idOf(v)
	if id == "" {
		return fmt.Errorf("put %s: empty id", c.prefix)
	}

	if old, err := c.getTxn(txn, id); err == nil {
		if err := c.deleteIndexes(txn, id, old); err != nil {
			return err
		}
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s%s: %w", c.prefix, id, err)
	}
	if err := txn.Set(c.key(id), data); err != nil {
		return fmt.Errorf("set %s%s: %w", c.prefix, id, err)
	}

	for _, idx := range c.indexes {
		for _, value := range idx.keyGen(v) {
			if err := txn.Set([]byte(c.indexScanPrefix(idx.name, value)+id), []byte(id)); err != nil {
				return fmt.Errorf("set index %s: %w", idx.name, err)
			}
		}
	}
	return nil
}

func (c *Collection[T]) deleteTxn(txn *badger.Txn, id string) error {
	old, err := c.getTxn(txn, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := c.deleteIndexes(txn, id, old); err != nil {
		return err
	}
	if err := txn.Delete(c.key(id)); err != nil {
		return fmt.Errorf("delete %s%s: %w", c.prefix, id, err)
	}
	return nil
}

func (c *Collection[T]) deleteIndexes(txn *badger.Txn, id string, old *T) error {
	for _, idx := range c.indexes {
		for _, value := range idx.keyGen(old) {
			if err := txn.Delete([]byte(c.indexScanPrefix(idx.name, value) + id)); err != nil {
				return fmt.Errorf("delete index %s: %w", idx.name, err)
			}
		}
	}
	return nil
}
