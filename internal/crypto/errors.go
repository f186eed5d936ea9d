package crypto

import "errors"

var (
	// ErrInvalidSecretKeySize is returned when an ML-KEM secret key has the wrong size.
	ErrInvalidSecretKeySize = errors.New("invalid secret key size")

	// ErrInvalidPublicKeySize is returned when an ML-KEM public key has the wrong size.
	ErrInvalidPublicKeySize = errors.New("invalid public key size")

	// ErrInvalidCiphertextSize is returned when a wrapped key or ciphertext is too short.
	ErrInvalidCiphertextSize = errors.New("invalid ciphertext size")

	// ErrSignatureVerificationFailed is returned when a signature does not match.
	ErrSignatureVerificationFailed = errors.New("signature verification failed")

	// ErrDecryptionFailed is returned when AES-GCM authentication fails.
	// It is deliberately generic: a wrong key, a wrong nonce and a tampered
	// ciphertext are indistinguishable.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrInvalidKeySize is returned when the AES key size is invalid.
	ErrInvalidKeySize = errors.New("invalid key size")

	// ErrInvalidNonceSize is returned when the nonce size is invalid.
	ErrInvalidNonceSize = errors.New("invalid nonce size")

	// ErrWrapFailed is returned when a symmetric key cannot be wrapped.
	ErrWrapFailed = errors.New("key wrap failed")

	// ErrUnwrapFailed is returned when a wrapped key cannot be recovered,
	// either because it is malformed or because it was wrapped for another key.
	ErrUnwrapFailed = errors.New("key unwrap failed")

	// ErrPayloadTooLarge is returned when key material exceeds the maximum
	// payload of the asymmetric scheme for the given key size.
	ErrPayloadTooLarge = errors.New("payload too large for key")

	// ErrKeyTooSmall is returned when an RSA key is below MinRSAKeyBits.
	ErrKeyTooSmall = errors.New("rsa key too small")

	// ErrNilKey is returned when a nil key is passed to a primitive.
	ErrNilKey = errors.New("nil key")

	// ErrInvalidPEM is returned when PEM data cannot be decoded into the expected key type.
	ErrInvalidPEM = errors.New("invalid PEM key")

	// ErrUnsupportedScheme is returned for an unknown key-wrap scheme.
	ErrUnsupportedScheme = errors.New("unsupported key-wrap scheme")
)
