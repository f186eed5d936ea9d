package crypto

import (
	stdcrypto "crypto"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
)

// Digest returns the SHA-256 digest signatures are computed over.
func Digest(message []byte) [sha256.Size]byte {
	return sha256.Sum256(message)
}

// Sign produces an RSASSA-PKCS1-v1_5 signature over the SHA-256 digest of
// message. The signature is deterministic for a given key and message.
func Sign(priv *rsa.PrivateKey, message []byte) ([]byte, error) {
	if priv == nil {
		return nil, ErrNilKey
	}
	if priv.N.BitLen() < MinRSAKeyBits {
		return nil, fmt.Errorf("%w: %d bits", ErrKeyTooSmall, priv.N.BitLen())
	}

	digest := Digest(message)
	sig, err := rsa.SignPKCS1v15(random(), priv, stdcrypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	return sig, nil
}

// Verify checks an RSASSA-PKCS1-v1_5/SHA-256 signature over message.
// Returns ErrSignatureVerificationFailed when the signature does not match.
func Verify(pub *rsa.PublicKey, message, signature []byte) error {
	if pub == nil {
		return ErrNilKey
	}

	digest := Digest(message)
	if err := rsa.VerifyPKCS1v15(pub, stdcrypto.SHA256, digest[:], signature); err != nil {
		return ErrSignatureVerificationFailed
	}
	return nil
}
