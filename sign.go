package cryptotran

import (
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/cryptotran/client-go/internal/crypto"
)

// Sign signs tx with DefaultCodec. See Codec.Sign.
func Sign(tx *Transaction, priv *rsa.PrivateKey) error {
	return DefaultCodec.Sign(tx, priv)
}

// Verify verifies tx with DefaultCodec. See Codec.Verify.
func Verify(tx *Transaction, pub *rsa.PublicKey) (bool, error) {
	return DefaultCodec.Verify(tx, pub)
}

// Sign computes an RSASSA-PKCS1-v1_5/SHA-256 signature over the content
// encoding of tx and stores it, base64 encoded, in tx.Signature.
//
// tx must be unsigned; ErrAlreadySigned is returned otherwise. On error tx
// is left unchanged.
func (c Codec) Sign(tx *Transaction, priv *rsa.PrivateKey) error {
	if tx == nil {
		return fmt.Errorf("%w: nil transaction", ErrInvalidTransaction)
	}
	if tx.Signature != nil {
		return ErrAlreadySigned
	}

	content, err := c.ContentBytes(tx)
	if err != nil {
		return err
	}

	sig, err := crypto.Sign(priv, content)
	if err != nil {
		return err
	}

	tx.Signature = stringPtr(crypto.ToBase64(sig))
	return nil
}

// Verify checks tx.Signature against the content encoding of tx.
//
// It returns false with a nil error when tx is unsigned or the signature
// does not match pub. An error is returned only when the signature cannot
// be decoded (ErrSignatureMalformed) or the content cannot be encoded.
func (c Codec) Verify(tx *Transaction, pub *rsa.PublicKey) (bool, error) {
	if tx == nil {
		return false, fmt.Errorf("%w: nil transaction", ErrInvalidTransaction)
	}
	if pub == nil {
		return false, ErrNilKey
	}
	if tx.Signature == nil {
		return false, nil
	}

	sig, err := crypto.FromBase64(*tx.Signature)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrSignatureMalformed, err)
	}

	content, err := c.ContentBytes(tx)
	if err != nil {
		return false, err
	}

	if err := crypto.Verify(pub, content, sig); err != nil {
		if errors.Is(err, crypto.ErrSignatureVerificationFailed) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
