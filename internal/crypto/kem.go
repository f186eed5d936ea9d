package crypto

import (
	"fmt"

	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
)

// KEMKeypair represents an ML-KEM-768 keypair used by the post-quantum
// key-wrap scheme.
type KEMKeypair struct {
	// PublicKey is the raw ML-KEM-768 public key bytes.
	PublicKey []byte
	// SecretKey is the raw ML-KEM-768 secret key bytes.
	SecretKey []byte
}

// GenerateKEMKeypair creates a new ML-KEM-768 keypair.
func GenerateKEMKeypair() (*KEMKeypair, error) {
	pub, priv, err := mlkem768.GenerateKeyPair(random())
	if err != nil {
		return nil, err
	}

	// MarshalBinary never fails for valid keys from GenerateKeyPair
	pubBytes, _ := pub.MarshalBinary()
	privBytes, _ := priv.MarshalBinary()

	return &KEMKeypair{
		PublicKey: pubBytes,
		SecretKey: privBytes,
	}, nil
}

// KEMKeypairFromSecretKey reconstructs a keypair from the secret key.
// The public key is embedded in the secret key at offset 1152.
func KEMKeypairFromSecretKey(secretKey []byte) (*KEMKeypair, error) {
	if len(secretKey) != MLKEMSecretKeySize {
		return nil, ErrInvalidSecretKeySize
	}

	publicKey := make([]byte, MLKEMPublicKeySize)
	copy(publicKey, secretKey[PublicKeyOffset:PublicKeyOffset+MLKEMPublicKeySize])

	return &KEMKeypair{
		PublicKey: publicKey,
		SecretKey: secretKey,
	}, nil
}

// Decapsulate recovers the shared secret from a KEM ciphertext.
func (k *KEMKeypair) Decapsulate(encapsulatedKey []byte) ([]byte, error) {
	if len(encapsulatedKey) != MLKEMCiphertextSize {
		return nil, ErrInvalidCiphertextSize
	}

	var privKey mlkem768.PrivateKey
	if err := privKey.Unpack(k.SecretKey); err != nil {
		return nil, err
	}

	sharedSecret := make([]byte, MLKEMSharedKeySize)
	privKey.DecapsulateTo(sharedSecret, encapsulatedKey)

	return sharedSecret, nil
}

// MLKEMWrapper wraps symmetric keys for an ML-KEM-768 public key.
//
// Wire format: KEM ciphertext (1088 bytes) || nonce (12 bytes) || AES-GCM(key) || tag.
type MLKEMWrapper struct {
	publicKey []byte
}

// MLKEMUnwrapper unwraps keys produced by MLKEMWrapper.
type MLKEMUnwrapper struct {
	keypair *KEMKeypair
}

// NewMLKEMWrapper returns a wrapper for the given raw ML-KEM-768 public key.
func NewMLKEMWrapper(publicKey []byte) (*MLKEMWrapper, error) {
	if len(publicKey) != MLKEMPublicKeySize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidPublicKeySize, len(publicKey), MLKEMPublicKeySize)
	}
	return &MLKEMWrapper{publicKey: publicKey}, nil
}

// NewMLKEMUnwrapper returns an unwrapper for keypair.
func NewMLKEMUnwrapper(keypair *KEMKeypair) (*MLKEMUnwrapper, error) {
	if keypair == nil {
		return nil, ErrNilKey
	}
	if len(keypair.SecretKey) != MLKEMSecretKeySize {
		return nil, ErrInvalidSecretKeySize
	}
	return &MLKEMUnwrapper{keypair: keypair}, nil
}

// Scheme returns the key-wrap scheme identifier.
func (w *MLKEMWrapper) Scheme() string { return SchemeMLKEM768 }

// Scheme returns the key-wrap scheme identifier.
func (u *MLKEMUnwrapper) Scheme() string { return SchemeMLKEM768 }

// Wrap encapsulates a fresh shared secret, derives a key-encryption key
// from it and seals key under that KEK.
func (w *MLKEMWrapper) Wrap(key []byte) ([]byte, error) {
	if len(key) != AESKeySize {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrPayloadTooLarge, len(key), AESKeySize)
	}

	scheme := mlkem768.Scheme()
	pk, err := scheme.UnmarshalBinaryPublicKey(w.publicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: unmarshal public key: %v", ErrWrapFailed, err)
	}

	ctKem, sharedSecret, err := scheme.Encapsulate(pk)
	if err != nil {
		return nil, fmt.Errorf("%w: encapsulate: %v", ErrWrapFailed, err)
	}

	aad := []byte(SchemeMLKEM768)
	kek, err := deriveKEK(sharedSecret, aad, ctKem)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrapFailed, err)
	}

	nonce, err := GenerateNonce()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrapFailed, err)
	}

	sealed, err := encryptAESGCM(kek, nonce, aad, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrapFailed, err)
	}

	wrapped := make([]byte, 0, len(ctKem)+len(nonce)+len(sealed))
	wrapped = append(wrapped, ctKem...)
	wrapped = append(wrapped, nonce...)
	wrapped = append(wrapped, sealed...)
	return wrapped, nil
}

// Unwrap reverses Wrap.
func (u *MLKEMUnwrapper) Unwrap(wrapped []byte) ([]byte, error) {
	if len(wrapped) < MLKEMCiphertextSize+AESNonceSize+AESTagSize {
		return nil, fmt.Errorf("%w: %v", ErrUnwrapFailed, ErrInvalidCiphertextSize)
	}

	ctKem := wrapped[:MLKEMCiphertextSize]
	nonce := wrapped[MLKEMCiphertextSize : MLKEMCiphertextSize+AESNonceSize]
	sealed := wrapped[MLKEMCiphertextSize+AESNonceSize:]

	sharedSecret, err := u.keypair.Decapsulate(ctKem)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnwrapFailed, err)
	}

	aad := []byte(SchemeMLKEM768)
	kek, err := deriveKEK(sharedSecret, aad, ctKem)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnwrapFailed, err)
	}

	key, err := decryptAESGCM(kek, nonce, aad, sealed)
	if err != nil {
		return nil, ErrUnwrapFailed
	}
	return key, nil
}
