package cryptotran

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// shortIDLength is the length of identifiers produced by WithShortID.
const shortIDLength = 8

var hashPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Transaction is a single transfer of value between two principals.
//
// Signature, PrevHash and CurrentHash are nil until the corresponding
// protocol step fills them in: Sign sets Signature, Link sets PrevHash
// and CurrentHash.
type Transaction struct {
	ID          string          `json:"id"`
	SenderID    string          `json:"sender_id"`
	RecipientID string          `json:"recipient_id"`
	Amount      decimal.Decimal `json:"amount"`
	Timestamp   int64           `json:"timestamp"` // seconds since the Unix epoch
	Signature   *string         `json:"signature"`
	PrevHash    *string         `json:"prev_hash"`
	CurrentHash *string         `json:"current_hash"`
}

// transactionConfig holds configuration for transaction creation.
type transactionConfig struct {
	id        string
	shortID   bool
	timestamp *int64
	now       func() time.Time
}

// TransactionOption configures NewTransaction.
type TransactionOption func(*transactionConfig)

// WithID sets an explicit transaction identifier.
func WithID(id string) TransactionOption {
	return func(c *transactionConfig) {
		c.id = id
	}
}

// WithShortID uses the first eight characters of a random UUID as the
// identifier instead of the full UUID.
func WithShortID() TransactionOption {
	return func(c *transactionConfig) {
		c.shortID = true
	}
}

// WithTimestamp sets the creation time in seconds since the Unix epoch.
func WithTimestamp(ts int64) TransactionOption {
	return func(c *transactionConfig) {
		c.timestamp = &ts
	}
}

// NewTransaction creates an unsigned, unchained transaction with a fresh
// UUID v4 identifier stamped with the current time.
func NewTransaction(senderID, recipientID string, amount decimal.Decimal, opts ...TransactionOption) *Transaction {
	cfg := &transactionConfig{now: time.Now}
	for _, opt := range opts {
		opt(cfg)
	}

	id := cfg.id
	if id == "" {
		id = uuid.New().String()
		if cfg.shortID {
			id = id[:shortIDLength]
		}
	}

	ts := cfg.now().Unix()
	if cfg.timestamp != nil {
		ts = *cfg.timestamp
	}

	return &Transaction{
		ID:          id,
		SenderID:    senderID,
		RecipientID: recipientID,
		Amount:      amount,
		Timestamp:   ts,
	}
}

// IsSigned reports whether the transaction carries a signature.
func (t *Transaction) IsSigned() bool {
	return t.Signature != nil
}

// IsChained reports whether the previous-hash link has been set.
func (t *Transaction) IsChained() bool {
	return t.PrevHash != nil
}

// IsComplete reports whether signature, previous hash and current hash are
// all set. Only complete transactions may be persisted.
func (t *Transaction) IsComplete() bool {
	return t.Signature != nil && t.PrevHash != nil && t.CurrentHash != nil
}

// Time returns the creation time.
func (t *Transaction) Time() time.Time {
	return time.Unix(t.Timestamp, 0).UTC()
}

// Clone returns a deep copy of the transaction.
func (t *Transaction) Clone() *Transaction {
	c := *t
	c.Signature = cloneString(t.Signature)
	c.PrevHash = cloneString(t.PrevHash)
	c.CurrentHash = cloneString(t.CurrentHash)
	return &c
}

// Validate checks the transaction's fields. It returns a *ValidationError
// listing every problem found.
func (t *Transaction) Validate() error {
	var errs []string

	if strings.TrimSpace(t.ID) == "" {
		errs = append(errs, "id is required")
	}
	if strings.TrimSpace(t.SenderID) == "" {
		errs = append(errs, "sender_id is required")
	}
	if strings.TrimSpace(t.RecipientID) == "" {
		errs = append(errs, "recipient_id is required")
	}
	if t.Timestamp < 0 {
		errs = append(errs, "timestamp must not be negative")
	}
	if t.Signature != nil && *t.Signature == "" {
		errs = append(errs, "signature must not be empty when set")
	}
	if t.PrevHash != nil && !IsHash(*t.PrevHash) {
		errs = append(errs, "prev_hash must be 64 lowercase hex characters")
	}
	if t.CurrentHash != nil && !IsHash(*t.CurrentHash) {
		errs = append(errs, "current_hash must be 64 lowercase hex characters")
	}
	if t.CurrentHash != nil && t.PrevHash == nil {
		errs = append(errs, "current_hash set without prev_hash")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// MarshalJSON encodes the transaction in its wire form using DefaultCodec.
func (t Transaction) MarshalJSON() ([]byte, error) {
	return DefaultCodec.Encode(&t)
}

// UnmarshalJSON decodes the wire form. Amounts may be JSON numbers or
// decimal strings.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	decoded, err := DefaultCodec.Decode(data)
	if err != nil {
		return err
	}
	*t = *decoded
	return nil
}

// ParseAmount parses a decimal amount such as "100.50".
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: amount %q", ErrInvalidTransaction, s)
	}
	return d, nil
}

// MustAmount is like ParseAmount but panics on error.
func MustAmount(s string) decimal.Decimal {
	d, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return d
}

// IsHash reports whether s is a lowercase hex SHA-256 digest.
func IsHash(s string) bool {
	return hashPattern.MatchString(s)
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func stringPtr(s string) *string {
	return &s
}
