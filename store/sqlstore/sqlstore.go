// Package sqlstore provides a relational ledger store on GORM. Open uses
// the pure-Go SQLite driver; New accepts any GORM connection.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cryptotran/client-go"
)

// transactionRow is one completed transaction. Seq records append order,
// which is the chain order; timestamps may repeat or go backwards.
type transactionRow struct {
	TxID        string `gorm:"column:id;primaryKey"`
	Seq         int64  `gorm:"uniqueIndex;not null"`
	SenderID    string `gorm:"not null"`
	RecipientID string `gorm:"not null"`
	Amount      string `gorm:"not null"`
	Timestamp   int64  `gorm:"not null;index"`
	Signature   *string
	PrevHash    *string
	CurrentHash *string
}

func (transactionRow) TableName() string { return "transactions" }

func toRow(tx *cryptotran.Transaction, seq int64) *transactionRow {
	return &transactionRow{
		TxID:        tx.ID,
		Seq:         seq,
		SenderID:    tx.SenderID,
		RecipientID: tx.RecipientID,
		Amount:      tx.Amount.String(),
		Timestamp:   tx.Timestamp,
		Signature:   tx.Signature,
		PrevHash:    tx.PrevHash,
		CurrentHash: tx.CurrentHash,
	}
}

func (r *transactionRow) transaction() (*cryptotran.Transaction, error) {
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return nil, fmt.Errorf("row %s: amount %q: %w", r.TxID, r.Amount, err)
	}
	return &cryptotran.Transaction{
		ID:          r.TxID,
		SenderID:    r.SenderID,
		RecipientID: r.RecipientID,
		Amount:      amount,
		Timestamp:   r.Timestamp,
		Signature:   r.Signature,
		PrevHash:    r.PrevHash,
		CurrentHash: r.CurrentHash,
	}, nil
}

// Store is a cryptotran.Store backed by a GORM database.
type Store struct {
	db *gorm.DB
	mu sync.Mutex
}

var _ cryptotran.Store = (*Store)(nil)

// Open connects to the SQLite database named by dsn and migrates the
// schema. dsn is a file path or a "file:" URI; a "sqlite://" prefix is
// accepted and stripped.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("sqlstore: empty database URL")
	}
	dsn = strings.TrimPrefix(dsn, "sqlite://")

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", dsn, err)
	}

	// SQLite allows one writer at a time.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	return New(db)
}

// New wraps an existing GORM connection and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&transactionRow{}); err != nil {
		return nil, fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func tailHash(db *gorm.DB) (string, int64, error) {
	var rows []transactionRow
	if err := db.Order("seq desc").Limit(1).Find(&rows).Error; err != nil {
		return "", 0, err
	}
	if len(rows) == 0 {
		return cryptotran.SentinelHash, 0, nil
	}
	last := rows[0]
	if last.CurrentHash == nil {
		return "", 0, fmt.Errorf("tail transaction %s has no current hash", last.TxID)
	}
	return *last.CurrentHash, last.Seq + 1, nil
}

// TailHash returns the current hash of the last appended transaction, or
// cryptotran.SentinelHash when the table is empty.
func (s *Store) TailHash(ctx context.Context) (string, error) {
	tail, _, err := tailHash(s.db.WithContext(ctx))
	return tail, err
}

// Append inserts tx inside a database transaction after checking it
// extends the current tail.
func (s *Store) Append(ctx context.Context, tx *cryptotran.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		tail, next, err := tailHash(db)
		if err != nil {
			return err
		}

		var exists bool
		if tx != nil {
			var n int64
			if err := db.Model(&transactionRow{}).Where("id = ?", tx.ID).Count(&n).Error; err != nil {
				return err
			}
			exists = n > 0
		}
		if err := cryptotran.CheckAppend(tx, tail, exists); err != nil {
			return err
		}

		return db.Create(toRow(tx, next)).Error
	})
	if isUniqueViolation(err) {
		return s.conflictError(ctx, tx, err)
	}
	return err
}

// conflictError maps a unique constraint failure raised by a writer in
// another process. A clash on id is a duplicate transaction; a clash on
// seq means the tail moved under us.
func (s *Store) conflictError(ctx context.Context, tx *cryptotran.Transaction, cause error) error {
	var n int64
	err := s.db.WithContext(ctx).Model(&transactionRow{}).Where("id = ?", tx.ID).Count(&n).Error
	if err == nil && n > 0 {
		return fmt.Errorf("%w: %s: %v", cryptotran.ErrDuplicateTransaction, tx.ID, cause)
	}
	return fmt.Errorf("%w: %v", cryptotran.ErrChainConflict, cause)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Get returns the transaction with the given id.
func (s *Store) Get(ctx context.Context, id string) (*cryptotran.Transaction, error) {
	var rows []transactionRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", cryptotran.ErrTransactionNotFound, id)
	}
	return rows[0].transaction()
}

// All returns every transaction in append order.
func (s *Store) All(ctx context.Context) ([]*cryptotran.Transaction, error) {
	var rows []transactionRow
	if err := s.db.WithContext(ctx).Order("seq asc").Find(&rows).Error; err != nil {
		return nil, err
	}

	txs := make([]*cryptotran.Transaction, 0, len(rows))
	for i := range rows {
		tx, err := rows[i].transaction()
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// Len returns the number of stored transactions.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&transactionRow{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

// DB exposes the underlying GORM connection.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
