package crypto

import (
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
)

// KeyWrapper encrypts a short symmetric key for one recipient.
type KeyWrapper interface {
	// Wrap encrypts key. Repeated calls with the same key produce
	// different outputs.
	Wrap(key []byte) ([]byte, error)
	// Scheme returns the identifier recorded alongside the wrapped key.
	Scheme() string
}

// KeyUnwrapper recovers a symmetric key wrapped by the matching KeyWrapper.
type KeyUnwrapper interface {
	Unwrap(wrapped []byte) ([]byte, error)
	Scheme() string
}

// RSAWrapper wraps keys under an RSA public key.
type RSAWrapper struct {
	pub    *rsa.PublicKey
	scheme string
}

// RSAUnwrapper unwraps keys with an RSA private key.
type RSAUnwrapper struct {
	priv   *rsa.PrivateKey
	scheme string
}

// NewRSAOAEPWrapper returns a wrapper using RSA-OAEP with SHA-256.
func NewRSAOAEPWrapper(pub *rsa.PublicKey) *RSAWrapper {
	return &RSAWrapper{pub: pub, scheme: SchemeRSAOAEP}
}

// NewRSAPKCS1v15Wrapper returns a wrapper using RSAES-PKCS1-v1_5 padding.
// Kept for interoperability with peers that only speak the legacy padding.
func NewRSAPKCS1v15Wrapper(pub *rsa.PublicKey) *RSAWrapper {
	return &RSAWrapper{pub: pub, scheme: SchemeRSAPKCS1v15}
}

// NewRSAOAEPUnwrapper returns the unwrapper matching NewRSAOAEPWrapper.
func NewRSAOAEPUnwrapper(priv *rsa.PrivateKey) *RSAUnwrapper {
	return &RSAUnwrapper{priv: priv, scheme: SchemeRSAOAEP}
}

// NewRSAPKCS1v15Unwrapper returns the unwrapper matching NewRSAPKCS1v15Wrapper.
func NewRSAPKCS1v15Unwrapper(priv *rsa.PrivateKey) *RSAUnwrapper {
	return &RSAUnwrapper{priv: priv, scheme: SchemeRSAPKCS1v15}
}

// Scheme returns the key-wrap scheme identifier.
func (w *RSAWrapper) Scheme() string { return w.scheme }

// Scheme returns the key-wrap scheme identifier.
func (u *RSAUnwrapper) Scheme() string { return u.scheme }

// MaxWrapPayload returns the largest key, in bytes, that scheme can wrap
// under pub.
func MaxWrapPayload(pub *rsa.PublicKey, scheme string) (int, error) {
	if pub == nil {
		return 0, ErrNilKey
	}
	k := pub.Size()
	switch scheme {
	case SchemeRSAOAEP:
		return k - 2*sha256.Size - 2, nil
	case SchemeRSAPKCS1v15:
		return k - 11, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedScheme, scheme)
	}
}

// Wrap encrypts key under the recipient's public key.
func (w *RSAWrapper) Wrap(key []byte) ([]byte, error) {
	if w == nil || w.pub == nil {
		return nil, ErrNilKey
	}
	if w.pub.N.BitLen() < MinRSAKeyBits {
		return nil, fmt.Errorf("%w: %d bits", ErrKeyTooSmall, w.pub.N.BitLen())
	}

	limit, err := MaxWrapPayload(w.pub, w.scheme)
	if err != nil {
		return nil, err
	}
	if len(key) > limit {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrPayloadTooLarge, len(key), limit)
	}

	var wrapped []byte
	switch w.scheme {
	case SchemeRSAOAEP:
		wrapped, err = rsa.EncryptOAEP(sha256.New(), random(), w.pub, key, nil)
	case SchemeRSAPKCS1v15:
		wrapped, err = rsa.EncryptPKCS1v15(random(), w.pub, key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrapFailed, err)
	}
	return wrapped, nil
}

// Unwrap decrypts a wrapped key. Malformed input and a key mismatch both
// yield ErrUnwrapFailed.
func (u *RSAUnwrapper) Unwrap(wrapped []byte) ([]byte, error) {
	if u == nil || u.priv == nil {
		return nil, ErrNilKey
	}
	if len(wrapped) != u.priv.Size() {
		return nil, fmt.Errorf("%w: %v: got %d, want %d", ErrUnwrapFailed, ErrInvalidCiphertextSize, len(wrapped), u.priv.Size())
	}

	var (
		key []byte
		err error
	)
	switch u.scheme {
	case SchemeRSAOAEP:
		key, err = rsa.DecryptOAEP(sha256.New(), nil, u.priv, wrapped, nil)
	case SchemeRSAPKCS1v15:
		key, err = rsa.DecryptPKCS1v15(nil, u.priv, wrapped)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.scheme)
	}
	if err != nil {
		return nil, ErrUnwrapFailed
	}
	return key, nil
}
