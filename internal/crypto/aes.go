package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// randReader is the random source used for keys, nonces and padding.
// It defaults to nil (which uses crypto/rand) but can be overridden for testing.
var randReader io.Reader

func random() io.Reader {
	if randReader != nil {
		return randReader
	}
	return rand.Reader
}

// GenerateKey returns a fresh AES-256 key drawn from the secure random source.
func GenerateKey() ([]byte, error) {
	key := make([]byte, AESKeySize)
	if _, err := io.ReadFull(random(), key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// GenerateNonce returns a fresh 96-bit AES-GCM nonce.
func GenerateNonce() ([]byte, error) {
	nonce := make([]byte, AESNonceSize)
	if _, err := io.ReadFull(random(), nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return nonce, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// decryptAESGCM decrypts data using AES-256-GCM.
func decryptAESGCM(key, nonce, aad, ciphertext []byte) ([]byte, error) {
	if len(key) != AESKeySize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidKeySize, len(key), AESKeySize)
	}

	if len(nonce) != AESNonceSize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidNonceSize, len(nonce), AESNonceSize)
	}

	aesGCM, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}

// encryptAESGCM encrypts data using AES-256-GCM under an explicit nonce.
// Returns ciphertext || tag (16 bytes).
func encryptAESGCM(key, nonce, aad, plaintext []byte) ([]byte, error) {
	if len(key) != AESKeySize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidKeySize, len(key), AESKeySize)
	}

	if len(nonce) != AESNonceSize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidNonceSize, len(nonce), AESNonceSize)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	return gcm.Seal(nil, nonce, plaintext, aad), nil
}

// Encrypt encrypts plaintext with AES-256-GCM under a freshly drawn nonce.
// Returns: ciphertext || tag (16 bytes), and the 12-byte nonce that was used.
//
// Every call draws a new nonce from the secure random source; callers never
// supply one.
func Encrypt(key, plaintext []byte) (ciphertext, nonce []byte, err error) {
	if len(key) != AESKeySize {
		return nil, nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidKeySize, len(key), AESKeySize)
	}

	nonce, err = GenerateNonce()
	if err != nil {
		return nil, nil, err
	}

	ciphertext, err = encryptAESGCM(key, nonce, nil, plaintext)
	if err != nil {
		return nil, nil, err
	}
	return ciphertext, nonce, nil
}

// Decrypt verifies the authentication tag and decrypts ciphertext || tag.
// On any authentication failure it returns ErrDecryptionFailed and no plaintext.
func Decrypt(key, nonce, ciphertext []byte) ([]byte, error) {
	if len(key) != AESKeySize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidKeySize, len(key), AESKeySize)
	}

	if len(nonce) != AESNonceSize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidNonceSize, len(nonce), AESNonceSize)
	}

	if len(ciphertext) < AESTagSize {
		return nil, fmt.Errorf("%w: got %d, want at least %d", ErrInvalidCiphertextSize, len(ciphertext), AESTagSize)
	}

	return decryptAESGCM(key, nonce, nil, ciphertext)
}
