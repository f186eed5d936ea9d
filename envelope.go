package cryptotran

import (
	"crypto/rsa"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cryptotran/client-go/internal/crypto"
)

const (
	// EnvelopeVersion is the envelope format version written by Seal.
	EnvelopeVersion = 1

	// ContentTypeTransaction is the media type of a sealed transaction.
	ContentTypeTransaction = "application/json"
)

// Key-wrap schemes recorded in Envelope.Scheme.
const (
	SchemeRSAOAEP     = crypto.SchemeRSAOAEP
	SchemeRSAPKCS1v15 = crypto.SchemeRSAPKCS1v15
	SchemeMLKEM768    = crypto.SchemeMLKEM768
)

// KeyWrapper encrypts the per-envelope symmetric key for a recipient.
type KeyWrapper = crypto.KeyWrapper

// KeyUnwrapper recovers the per-envelope symmetric key.
type KeyUnwrapper = crypto.KeyUnwrapper

// KEMKeyPair is an ML-KEM-768 key pair for the post-quantum wrap scheme.
type KEMKeyPair = crypto.KEMKeypair

// RSAKeyWrap wraps keys for pub with RSA-OAEP/SHA-256.
func RSAKeyWrap(pub *rsa.PublicKey) KeyWrapper {
	return crypto.NewRSAOAEPWrapper(pub)
}

// RSAKeyUnwrap is the counterpart of RSAKeyWrap.
func RSAKeyUnwrap(priv *rsa.PrivateKey) KeyUnwrapper {
	return crypto.NewRSAOAEPUnwrapper(priv)
}

// RSALegacyKeyWrap wraps keys with RSAES-PKCS1-v1_5 padding, for peers
// that do not support OAEP.
func RSALegacyKeyWrap(pub *rsa.PublicKey) KeyWrapper {
	return crypto.NewRSAPKCS1v15Wrapper(pub)
}

// RSALegacyKeyUnwrap is the counterpart of RSALegacyKeyWrap.
func RSALegacyKeyUnwrap(priv *rsa.PrivateKey) KeyUnwrapper {
	return crypto.NewRSAPKCS1v15Unwrapper(priv)
}

// GenerateKEMKeyPair creates an ML-KEM-768 key pair.
func GenerateKEMKeyPair() (*KEMKeyPair, error) {
	return crypto.GenerateKEMKeypair()
}

// KEMKeyPairFromSecretKey rebuilds a key pair from a stored raw
// ML-KEM-768 secret key, which embeds the public key.
func KEMKeyPairFromSecretKey(secretKey []byte) (*KEMKeyPair, error) {
	return crypto.KEMKeypairFromSecretKey(secretKey)
}

// MLKEMKeyWrap wraps keys for a raw ML-KEM-768 public key.
func MLKEMKeyWrap(publicKey []byte) (KeyWrapper, error) {
	w, err := crypto.NewMLKEMWrapper(publicKey)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// MLKEMKeyUnwrap is the counterpart of MLKEMKeyWrap.
func MLKEMKeyUnwrap(kp *KEMKeyPair) (KeyUnwrapper, error) {
	u, err := crypto.NewMLKEMUnwrapper(kp)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Envelope carries one encrypted transaction. Byte fields are base64
// encoded in JSON.
type Envelope struct {
	Version     int    `json:"version"`
	Scheme      string `json:"scheme"`
	ContentType string `json:"content_type"`
	Ciphertext  []byte `json:"ciphertext"`
	Nonce       []byte `json:"nonce"`
	WrappedKey  []byte `json:"wrapped_key"`
}

// Validate checks the envelope's structure without touching any key.
func (e *Envelope) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil envelope", ErrInvalidEnvelope)
	}
	if e.Version != EnvelopeVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidEnvelope, e.Version)
	}
	switch e.Scheme {
	case SchemeRSAOAEP, SchemeRSAPKCS1v15, SchemeMLKEM768:
	default:
		return fmt.Errorf("%w: %w: %q", ErrInvalidEnvelope, ErrUnsupportedScheme, e.Scheme)
	}
	if len(e.Nonce) != crypto.AESNonceSize {
		return fmt.Errorf("%w: %w: got %d, want %d", ErrInvalidEnvelope, ErrInvalidNonceSize, len(e.Nonce), crypto.AESNonceSize)
	}
	if len(e.Ciphertext) < crypto.AESTagSize {
		return fmt.Errorf("%w: ciphertext shorter than the authentication tag", ErrInvalidEnvelope)
	}
	if len(e.WrappedKey) == 0 {
		return fmt.Errorf("%w: wrapped key is empty", ErrInvalidEnvelope)
	}
	return nil
}

// Encode returns the JSON form of the envelope.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEnvelope parses and validates the JSON form of an envelope.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if env.ContentType == "" {
		env.ContentType = ContentTypeTransaction
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

// Hex returns the ciphertext, nonce and wrapped key as lowercase hex.
func (e *Envelope) Hex() (ciphertext, nonce, wrappedKey string) {
	return hex.EncodeToString(e.Ciphertext), hex.EncodeToString(e.Nonce), hex.EncodeToString(e.WrappedKey)
}

// EnvelopeFromHex rebuilds an envelope from its hex triple. An empty scheme
// means SchemeRSAPKCS1v15, the padding used by peers that exchange bare
// triples.
func EnvelopeFromHex(ciphertext, nonce, wrappedKey, scheme string) (*Envelope, error) {
	if scheme == "" {
		scheme = SchemeRSAPKCS1v15
	}

	ct, err := hex.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext: %v", ErrInvalidEnvelope, err)
	}
	n, err := hex.DecodeString(nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", ErrInvalidEnvelope, err)
	}
	wk, err := hex.DecodeString(wrappedKey)
	if err != nil {
		return nil, fmt.Errorf("%w: wrapped key: %v", ErrInvalidEnvelope, err)
	}

	env := &Envelope{
		Version:     EnvelopeVersion,
		Scheme:      scheme,
		ContentType: ContentTypeTransaction,
		Ciphertext:  ct,
		Nonce:       n,
		WrappedKey:  wk,
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return env, nil
}

// Seal seals tx for recipientPub with DefaultCodec and RSA-OAEP key wrap.
func Seal(tx *Transaction, senderPriv *rsa.PrivateKey, recipientPub *rsa.PublicKey) (*Envelope, error) {
	return DefaultCodec.Seal(tx, senderPriv, recipientPub)
}

// Open opens env with DefaultCodec. See Codec.Open.
func Open(env *Envelope, recipientPriv *rsa.PrivateKey, senderPub *rsa.PublicKey) (*Transaction, error) {
	return DefaultCodec.Open(env, recipientPriv, senderPub)
}

// Seal signs tx, encrypts its full encoding under a fresh AES-256 key and
// wraps that key for recipientPub with RSA-OAEP.
func (c Codec) Seal(tx *Transaction, senderPriv *rsa.PrivateKey, recipientPub *rsa.PublicKey) (*Envelope, error) {
	if recipientPub == nil {
		return nil, ErrNilKey
	}
	return c.SealWith(tx, senderPriv, RSAKeyWrap(recipientPub))
}

// SealWith is Seal with an explicit key-wrap scheme.
//
// tx must be unsigned and unchained. Its Signature field is the only state
// modified, and only when sealing succeeds.
func (c Codec) SealWith(tx *Transaction, senderPriv *rsa.PrivateKey, wrapper KeyWrapper) (*Envelope, error) {
	if tx == nil {
		return nil, fmt.Errorf("%w: nil transaction", ErrInvalidTransaction)
	}
	if wrapper == nil {
		return nil, ErrNilKey
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	if tx.PrevHash != nil || tx.CurrentHash != nil {
		return nil, &SequenceError{Op: "seal", Err: ErrAlreadyChained}
	}

	signed := tx.Clone()
	if err := c.Sign(signed, senderPriv); err != nil {
		return nil, err
	}

	plaintext, err := c.Encode(signed)
	if err != nil {
		return nil, err
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	defer clear(key)

	ciphertext, nonce, err := crypto.Encrypt(key, plaintext)
	if err != nil {
		return nil, err
	}

	wrapped, err := wrapper.Wrap(key)
	if err != nil {
		return nil, err
	}

	tx.Signature = signed.Signature
	return &Envelope{
		Version:     EnvelopeVersion,
		Scheme:      wrapper.Scheme(),
		ContentType: ContentTypeTransaction,
		Ciphertext:  ciphertext,
		Nonce:       nonce,
		WrappedKey:  wrapped,
	}, nil
}

// Open reverses Seal for the RSA schemes: the unwrap padding is taken from
// env.Scheme. Use OpenWith for ML-KEM envelopes.
func (c Codec) Open(env *Envelope, recipientPriv *rsa.PrivateKey, senderPub *rsa.PublicKey) (*Transaction, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	if recipientPriv == nil {
		return nil, ErrNilKey
	}

	var unwrapper KeyUnwrapper
	switch env.Scheme {
	case SchemeRSAOAEP:
		unwrapper = RSAKeyUnwrap(recipientPriv)
	case SchemeRSAPKCS1v15:
		unwrapper = RSALegacyKeyUnwrap(recipientPriv)
	default:
		return nil, &DecryptionError{
			Stage: StageUnwrap,
			Err:   fmt.Errorf("%w: %w: %s needs an explicit unwrapper", ErrKeyUnwrapFailed, ErrUnsupportedScheme, env.Scheme),
		}
	}
	return c.OpenWith(env, unwrapper, senderPub)
}

// OpenWith unwraps the symmetric key, decrypts and decodes the transaction
// and verifies its signature against senderPub.
//
// Errors are reported as:
//   - *DecryptionError with Stage "unwrap" (matches ErrKeyUnwrapFailed)
//   - *DecryptionError with Stage "aead" (matches ErrAuthenticationFailed)
//   - *DecryptionError with Stage "decode" (matches ErrInvalidTransaction)
//   - *ValidationError for a decoded transaction with invalid fields
//   - *SignatureVerificationError when the signature is missing or wrong
func (c Codec) OpenWith(env *Envelope, unwrapper KeyUnwrapper, senderPub *rsa.PublicKey) (*Transaction, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	if unwrapper == nil || senderPub == nil {
		return nil, ErrNilKey
	}
	if unwrapper.Scheme() != env.Scheme {
		return nil, &DecryptionError{
			Stage: StageUnwrap,
			Err:   fmt.Errorf("%w: envelope uses %s, unwrapper expects %s", ErrKeyUnwrapFailed, env.Scheme, unwrapper.Scheme()),
		}
	}

	key, err := unwrapper.Unwrap(env.WrappedKey)
	if err != nil {
		if !errors.Is(err, ErrKeyUnwrapFailed) {
			err = fmt.Errorf("%w: %w", ErrKeyUnwrapFailed, err)
		}
		return nil, &DecryptionError{Stage: StageUnwrap, Err: err}
	}
	defer clear(key)
	if len(key) != crypto.AESKeySize {
		return nil, &DecryptionError{
			Stage: StageUnwrap,
			Err:   fmt.Errorf("%w: %w: got %d bytes", ErrKeyUnwrapFailed, ErrInvalidKeySize, len(key)),
		}
	}

	plaintext, err := crypto.Decrypt(key, env.Nonce, env.Ciphertext)
	if err != nil {
		return nil, &DecryptionError{Stage: StageAEAD, Err: err}
	}

	tx, err := c.Decode(plaintext)
	if err != nil {
		return nil, &DecryptionError{Stage: StageDecode, Err: err}
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	if tx.PrevHash != nil || tx.CurrentHash != nil {
		return nil, &SequenceError{Op: "open", Err: ErrAlreadyChained}
	}

	ok, err := c.Verify(tx, senderPub)
	if err != nil {
		return nil, &SignatureVerificationError{TransactionID: tx.ID, Message: "signature cannot be decoded", Err: err}
	}
	if !ok {
		msg := "signature does not match sender key"
		if tx.Signature == nil {
			msg = "transaction is not signed"
		}
		return nil, &SignatureVerificationError{TransactionID: tx.ID, Message: msg}
	}
	return tx, nil
}
