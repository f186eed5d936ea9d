// Package leveldb provides a ledger store backed by an embedded LevelDB
// database.
package leveldb

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/cryptotran/client-go"
)

// Key layout:
//
//	tx/<id>         -> transaction record
//	seq/<%020d>     -> id, in append order
//	meta/tail       -> current hash of the last transaction
//	meta/len        -> number of transactions, big-endian uint64
var (
	txPrefix  = []byte("tx/")
	seqPrefix = []byte("seq/")
	tailKey   = []byte("meta/tail")
	lenKey    = []byte("meta/len")
)

// recordCodec stores amounts as exact decimals so a round trip through
// the store never loses precision.
var recordCodec = cryptotran.Codec{Amount: cryptotran.AmountDecimal}

// Store is a cryptotran.Store on top of LevelDB.
type Store struct {
	db *leveldb.DB

	// mu serializes the tail check and the batch write in Append.
	mu sync.Mutex
}

var _ cryptotran.Store = (*Store)(nil)

// Open opens or creates a database in the directory at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{})
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// OpenStorage opens a database on an arbitrary goleveldb storage, such as
// storage.NewMemStorage().
func OpenStorage(stor storage.Storage) (*Store, error) {
	db, err := leveldb.Open(stor, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return &Store{db: db}, nil
}

func txKey(id string) []byte {
	return append(append([]byte{}, txPrefix...), id...)
}

func seqKey(n uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", seqPrefix, n))
}

// TailHash returns the current hash of the last transaction, or
// cryptotran.SentinelHash when the store is empty.
func (s *Store) TailHash(ctx context.Context) (string, error) {
	tail, err := s.db.Get(tailKey, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return cryptotran.SentinelHash, nil
	}
	if err != nil {
		return "", err
	}
	return string(tail), nil
}

func (s *Store) length() (uint64, error) {
	v, err := s.db.Get(lenKey, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(v) != 8 {
		return 0, fmt.Errorf("corrupt length record: %d bytes", len(v))
	}
	return binary.BigEndian.Uint64(v), nil
}

// Append writes tx, its sequence entry and the new tail in one batch.
func (s *Store) Append(ctx context.Context, tx *cryptotran.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tail, err := s.TailHash(ctx)
	if err != nil {
		return err
	}
	var exists bool
	if tx != nil {
		if exists, err = s.db.Has(txKey(tx.ID), nil); err != nil {
			return err
		}
	}
	if err := cryptotran.CheckAppend(tx, tail, exists); err != nil {
		return err
	}

	record, err := recordCodec.Encode(tx)
	if err != nil {
		return err
	}
	n, err := s.length()
	if err != nil {
		return err
	}

	lenBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(lenBuf, n+1)

	batch := new(leveldb.Batch)
	batch.Put(txKey(tx.ID), record)
	batch.Put(seqKey(n), []byte(tx.ID))
	batch.Put(tailKey, []byte(*tx.CurrentHash))
	batch.Put(lenKey, lenBuf)
	return s.db.Write(batch, nil)
}

// Get returns the transaction with the given id.
func (s *Store) Get(ctx context.Context, id string) (*cryptotran.Transaction, error) {
	record, err := s.db.Get(txKey(id), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", cryptotran.ErrTransactionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return recordCodec.Decode(record)
}

// All returns every transaction in append order.
func (s *Store) All(ctx context.Context) ([]*cryptotran.Transaction, error) {
	snap, err := s.db.GetSnapshot()
	if err != nil {
		return nil, err
	}
	defer snap.Release()

	iter := snap.NewIterator(util.BytesPrefix(seqPrefix), nil)
	defer iter.Release()

	var txs []*cryptotran.Transaction
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := string(iter.Value())
		record, err := snap.Get(txKey(id), nil)
		if err != nil {
			return nil, fmt.Errorf("sequence entry %s: %w", id, err)
		}
		tx, err := recordCodec.Decode(record)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return txs, nil
}

// Len returns the number of stored transactions.
func (s *Store) Len(ctx context.Context) (int, error) {
	n, err := s.length()
	return int(n), err
}

// DB exposes the underlying database.
func (s *Store) DB() *leveldb.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
