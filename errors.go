package cryptotran

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cryptotran/client-go/internal/crypto"
)

// Sentinel errors for errors.Is() checks
var (
	// ErrInvalidTransaction is returned when a transaction fails validation.
	ErrInvalidTransaction = errors.New("invalid transaction")

	// ErrAlreadySigned is returned when signing a transaction that already
	// carries a signature.
	ErrAlreadySigned = errors.New("transaction already signed")

	// ErrSignatureInvalid is returned when a signature does not verify.
	ErrSignatureInvalid = errors.New("signature verification failed")

	// ErrSignatureMalformed is returned when a stored signature cannot be decoded.
	ErrSignatureMalformed = errors.New("signature malformed")

	// ErrDecryptionFailed is returned when an envelope cannot be opened.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrAuthenticationFailed is returned when the AES-GCM tag does not match.
	ErrAuthenticationFailed = crypto.ErrDecryptionFailed

	// ErrKeyUnwrapFailed is returned when the wrapped key cannot be recovered.
	ErrKeyUnwrapFailed = crypto.ErrUnwrapFailed

	// ErrKeyWrapFailed is returned when the symmetric key cannot be wrapped.
	ErrKeyWrapFailed = crypto.ErrWrapFailed

	// ErrInvalidKeySize is returned when a symmetric key has the wrong length.
	ErrInvalidKeySize = crypto.ErrInvalidKeySize

	// ErrInvalidNonceSize is returned when a nonce has the wrong length.
	ErrInvalidNonceSize = crypto.ErrInvalidNonceSize

	// ErrPayloadTooLarge is returned when key material exceeds what the
	// wrap scheme can carry.
	ErrPayloadTooLarge = crypto.ErrPayloadTooLarge

	// ErrNilKey is returned when a nil key is supplied.
	ErrNilKey = crypto.ErrNilKey

	// ErrKeyTooSmall is returned for RSA keys below 2048 bits.
	ErrKeyTooSmall = crypto.ErrKeyTooSmall

	// ErrInvalidPEM is returned when PEM data does not hold the expected key.
	ErrInvalidPEM = crypto.ErrInvalidPEM

	// ErrUnsupportedScheme is returned for an unknown key-wrap scheme.
	ErrUnsupportedScheme = crypto.ErrUnsupportedScheme

	// ErrInvalidEnvelope is returned when an envelope is structurally malformed.
	ErrInvalidEnvelope = errors.New("invalid envelope")

	// ErrUnrepresentable is returned when a field value has no canonical encoding.
	ErrUnrepresentable = errors.New("value has no canonical encoding")

	// ErrPreviousHashMissing is returned when computing a current hash before
	// the previous hash is set.
	ErrPreviousHashMissing = errors.New("previous hash not set")

	// ErrCurrentHashAlreadySet is returned when computing a current hash for a
	// transaction that already has one.
	ErrCurrentHashAlreadySet = errors.New("current hash already set")

	// ErrAlreadyChained is returned when linking a transaction whose previous
	// hash is already set.
	ErrAlreadyChained = errors.New("transaction already chained")

	// ErrIncompleteTransaction is returned when persisting a transaction
	// without signature, previous hash and current hash.
	ErrIncompleteTransaction = errors.New("transaction incomplete")

	// ErrChainBroken is returned when a chain fails its integrity check.
	ErrChainBroken = errors.New("hash chain broken")

	// ErrChainConflict is returned when a transaction's previous hash is not
	// the current ledger tail.
	ErrChainConflict = errors.New("previous hash does not match ledger tail")

	// ErrDuplicateTransaction is returned when a transaction id is already stored.
	ErrDuplicateTransaction = errors.New("transaction already stored")

	// ErrTransactionNotFound is returned when a transaction id is unknown.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrKeyNotFound is returned when no public key is known for a principal.
	ErrKeyNotFound = errors.New("key not found")
)

// CryptoTranError is implemented by all typed errors of this package.
type CryptoTranError interface {
	error
	CryptoTranError() // marker method
}

// ValidationError contains multiple validation failures.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Errors, "; "))
}

// Is implements errors.Is for sentinel error matching.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidTransaction
}

// CryptoTranError implements the CryptoTranError interface.
func (e *ValidationError) CryptoTranError() {}

// Decryption stages reported by DecryptionError.
const (
	StageUnwrap = "unwrap"
	StageAEAD   = "aead"
	StageDecode = "decode"
)

// DecryptionError represents a failure to open an envelope.
type DecryptionError struct {
	Stage string // "unwrap", "aead", "decode"
	Err   error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("decryption failed at %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *DecryptionError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for sentinel error matching.
func (e *DecryptionError) Is(target error) bool {
	return target == ErrDecryptionFailed
}

// CryptoTranError implements the CryptoTranError interface.
func (e *DecryptionError) CryptoTranError() {}

// SignatureVerificationError indicates potential tampering.
type SignatureVerificationError struct {
	TransactionID string
	Message       string
	Err           error
}

func (e *SignatureVerificationError) Error() string {
	if e.TransactionID != "" {
		return fmt.Sprintf("signature verification failed for %s: %s", e.TransactionID, e.Message)
	}
	return fmt.Sprintf("signature verification failed: %s", e.Message)
}

// Unwrap returns the underlying error, if any.
func (e *SignatureVerificationError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for sentinel error matching.
func (e *SignatureVerificationError) Is(target error) bool {
	return target == ErrSignatureInvalid
}

// CryptoTranError implements the CryptoTranError interface.
func (e *SignatureVerificationError) CryptoTranError() {}

// SequenceError reports a call made out of protocol order, such as hashing
// before linking or persisting an incomplete transaction.
type SequenceError struct {
	Op  string
	Err error
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *SequenceError) Unwrap() error {
	return e.Err
}

// CryptoTranError implements the CryptoTranError interface.
func (e *SequenceError) CryptoTranError() {}

// ChainError identifies the first entry at which a chain fails verification.
type ChainError struct {
	Index  int
	ID     string
	Reason string
	Err    error
}

func (e *ChainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("chain broken at index %d (%s): %s: %v", e.Index, e.ID, e.Reason, e.Err)
	}
	return fmt.Sprintf("chain broken at index %d (%s): %s", e.Index, e.ID, e.Reason)
}

// Unwrap returns the underlying error.
func (e *ChainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for sentinel error matching.
func (e *ChainError) Is(target error) bool {
	return target == ErrChainBroken
}

// CryptoTranError implements the CryptoTranError interface.
func (e *ChainError) CryptoTranError() {}
