package cryptotran

import (
	"crypto/rsa"
	"fmt"
	"os"

	"github.com/cryptotran/client-go/internal/crypto"
)

// KeyBits is the RSA modulus size used by GenerateKeyPair.
const KeyBits = crypto.RSAKeyBits

// KeyPairPEM is a PEM-encoded RSA key pair.
type KeyPairPEM struct {
	PrivateKeyPEM string `json:"private_key_pem"`
	PublicKeyPEM  string `json:"public_key_pem"`
}

// GenerateKeyPair creates an RSA-2048 key pair for signing and key wrap.
func GenerateKeyPair() (*rsa.PrivateKey, *rsa.PublicKey, error) {
	priv, err := crypto.GenerateRSAKey(KeyBits)
	if err != nil {
		return nil, nil, fmt.Errorf("generate key pair: %w", err)
	}
	return priv, &priv.PublicKey, nil
}

// GenerateKeyPairPEM creates a key pair and returns it PEM encoded.
func GenerateKeyPairPEM() (*KeyPairPEM, error) {
	priv, _, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return EncodeKeyPairPEM(priv)
}

// EncodeKeyPairPEM encodes priv and its public key.
func EncodeKeyPairPEM(priv *rsa.PrivateKey) (*KeyPairPEM, error) {
	privPEM, err := crypto.EncodePrivateKeyPEM(priv)
	if err != nil {
		return nil, err
	}
	pubPEM, err := crypto.EncodePublicKeyPEM(&priv.PublicKey)
	if err != nil {
		return nil, err
	}
	return &KeyPairPEM{PrivateKeyPEM: string(privPEM), PublicKeyPEM: string(pubPEM)}, nil
}

// EncodePrivateKeyPEM encodes priv as a PKCS#8 PEM block.
func EncodePrivateKeyPEM(priv *rsa.PrivateKey) ([]byte, error) {
	return crypto.EncodePrivateKeyPEM(priv)
}

// EncodePublicKeyPEM encodes pub as a SubjectPublicKeyInfo PEM block.
func EncodePublicKeyPEM(pub *rsa.PublicKey) ([]byte, error) {
	return crypto.EncodePublicKeyPEM(pub)
}

// ParsePrivateKeyPEM decodes a PKCS#8 or PKCS#1 RSA private key.
func ParsePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	return crypto.ParsePrivateKeyPEM(data)
}

// ParsePublicKeyPEM decodes a SubjectPublicKeyInfo or PKCS#1 RSA public key.
func ParsePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	return crypto.ParsePublicKeyPEM(data)
}

// WritePEMFile writes PEM data to path with the given permissions.
func WritePEMFile(path string, data []byte, perm os.FileMode) error {
	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// WritePrivateKeyFile writes priv to path readable only by the owner.
func WritePrivateKeyFile(path string, priv *rsa.PrivateKey) error {
	data, err := EncodePrivateKeyPEM(priv)
	if err != nil {
		return err
	}
	return WritePEMFile(path, data, 0o600)
}

// WritePublicKeyFile writes pub to path.
func WritePublicKeyFile(path string, pub *rsa.PublicKey) error {
	data, err := EncodePublicKeyPEM(pub)
	if err != nil {
		return err
	}
	return WritePEMFile(path, data, 0o644)
}

// ReadPrivateKeyFile reads a PEM private key from path.
func ReadPrivateKeyFile(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, err := ParsePrivateKeyPEM(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return key, nil
}

// ReadPublicKeyFile reads a PEM public key from path.
func ReadPublicKeyFile(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, err := ParsePublicKeyPEM(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return key, nil
}
