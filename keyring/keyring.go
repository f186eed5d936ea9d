// Package keyring stores RSA key pairs as PEM files, one pair per
// principal, and resolves public keys for signature verification.
//
// File names follow private_key_<name>.pem and public_key_<name>.pem.
// Principals that receive with the ML-KEM-768 wrap scheme also keep
// kem_private_key_<name>.pem and kem_public_key_<name>.pem.
package keyring

import (
	"context"
	"crypto/rsa"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru"

	"github.com/cryptotran/client-go"
)

const (
	privatePrefix = "private_key_"
	publicPrefix  = "public_key_"
	pemSuffix     = ".pem"
	kemPrefix     = "kem_"

	kemPrivateBlock = "ML-KEM-768 PRIVATE KEY"
	kemPublicBlock  = "ML-KEM-768 PUBLIC KEY"

	defaultCacheSize = 128
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Dir is a directory of PEM key files.
type Dir struct {
	path  string
	cache *lru.Cache // principal -> *rsa.PublicKey
}

var _ cryptotran.KeyResolver = (*Dir)(nil)

// Open returns a keyring rooted at path, creating the directory if needed.
func Open(path string) (*Dir, error) {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("keyring: %w", err)
	}
	cache, err := lru.New(defaultCacheSize)
	if err != nil {
		return nil, err
	}
	return &Dir{path: path, cache: cache}, nil
}

// Path returns the keyring directory.
func (d *Dir) Path() string { return d.path }

func validName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("keyring: invalid principal name %q", name)
	}
	return nil
}

// PrivateKeyPath returns the file holding name's private key.
func (d *Dir) PrivateKeyPath(name string) string {
	return filepath.Join(d.path, privatePrefix+name+pemSuffix)
}

// PublicKeyPath returns the file holding name's public key.
func (d *Dir) PublicKeyPath(name string) string {
	return filepath.Join(d.path, publicPrefix+name+pemSuffix)
}

// Generate creates and saves a new key pair for name.
func (d *Dir) Generate(name string) (*rsa.PrivateKey, error) {
	priv, _, err := cryptotran.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	if err := d.SaveKeyPair(name, priv); err != nil {
		return nil, err
	}
	return priv, nil
}

// SaveKeyPair writes priv and its public key for name, replacing any
// existing files.
func (d *Dir) SaveKeyPair(name string, priv *rsa.PrivateKey) error {
	if err := validName(name); err != nil {
		return err
	}
	if priv == nil {
		return cryptotran.ErrNilKey
	}
	if err := cryptotran.WritePrivateKeyFile(d.PrivateKeyPath(name), priv); err != nil {
		return err
	}
	if err := d.SavePublicKey(name, &priv.PublicKey); err != nil {
		return err
	}
	return nil
}

// SavePublicKey imports a peer's public key.
func (d *Dir) SavePublicKey(name string, pub *rsa.PublicKey) error {
	if err := validName(name); err != nil {
		return err
	}
	if err := cryptotran.WritePublicKeyFile(d.PublicKeyPath(name), pub); err != nil {
		return err
	}
	d.cache.Remove(name)
	return nil
}

// PrivateKey loads name's private key. Private keys are never cached.
func (d *Dir) PrivateKey(name string) (*rsa.PrivateKey, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	key, err := cryptotran.ReadPrivateKeyFile(d.PrivateKeyPath(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: private key for %s", cryptotran.ErrKeyNotFound, name)
	}
	return key, err
}

// PublicKey returns name's public key, loading it from disk on first use.
func (d *Dir) PublicKey(ctx context.Context, name string) (*rsa.PublicKey, error) {
	if v, ok := d.cache.Get(name); ok {
		return v.(*rsa.PublicKey), nil
	}
	if err := validName(name); err != nil {
		return nil, err
	}

	key, err := cryptotran.ReadPublicKeyFile(d.PublicKeyPath(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: public key for %s", cryptotran.ErrKeyNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	d.cache.Add(name, key)
	return key, nil
}

// Principals lists every name with a public key in the directory.
func (d *Dir) Principals() ([]string, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || !strings.HasPrefix(n, publicPrefix) || !strings.HasSuffix(n, pemSuffix) {
			continue
		}
		names = append(names, strings.TrimSuffix(strings.TrimPrefix(n, publicPrefix), pemSuffix))
	}
	sort.Strings(names)
	return names, nil
}

// KEMPrivateKeyPath returns the file holding name's ML-KEM-768 secret key.
func (d *Dir) KEMPrivateKeyPath(name string) string {
	return filepath.Join(d.path, kemPrefix+privatePrefix+name+pemSuffix)
}

// KEMPublicKeyPath returns the file holding name's ML-KEM-768 public key.
func (d *Dir) KEMPublicKeyPath(name string) string {
	return filepath.Join(d.path, kemPrefix+publicPrefix+name+pemSuffix)
}

// GenerateKEM creates and saves a new ML-KEM-768 key pair for name.
func (d *Dir) GenerateKEM(name string) (*cryptotran.KEMKeyPair, error) {
	kp, err := cryptotran.GenerateKEMKeyPair()
	if err != nil {
		return nil, err
	}
	if err := d.SaveKEMKeyPair(name, kp); err != nil {
		return nil, err
	}
	return kp, nil
}

// SaveKEMKeyPair writes kp's secret and public keys for name.
func (d *Dir) SaveKEMKeyPair(name string, kp *cryptotran.KEMKeyPair) error {
	if err := validName(name); err != nil {
		return err
	}
	if kp == nil {
		return cryptotran.ErrNilKey
	}
	block := pem.EncodeToMemory(&pem.Block{Type: kemPrivateBlock, Bytes: kp.SecretKey})
	if err := cryptotran.WritePEMFile(d.KEMPrivateKeyPath(name), block, 0o600); err != nil {
		return err
	}
	return d.SaveKEMPublicKey(name, kp.PublicKey)
}

// SaveKEMPublicKey imports a peer's raw ML-KEM-768 public key.
func (d *Dir) SaveKEMPublicKey(name string, publicKey []byte) error {
	if err := validName(name); err != nil {
		return err
	}
	if _, err := cryptotran.MLKEMKeyWrap(publicKey); err != nil {
		return err
	}
	block := pem.EncodeToMemory(&pem.Block{Type: kemPublicBlock, Bytes: publicKey})
	return cryptotran.WritePEMFile(d.KEMPublicKeyPath(name), block, 0o644)
}

// KEMKeyPair loads name's ML-KEM-768 key pair from its secret key file.
func (d *Dir) KEMKeyPair(name string) (*cryptotran.KEMKeyPair, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	secret, err := readPEMBlock(d.KEMPrivateKeyPath(name), kemPrivateBlock)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: ML-KEM private key for %s", cryptotran.ErrKeyNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return cryptotran.KEMKeyPairFromSecretKey(secret)
}

// KEMPublicKey loads name's raw ML-KEM-768 public key.
func (d *Dir) KEMPublicKey(name string) ([]byte, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	pub, err := readPEMBlock(d.KEMPublicKeyPath(name), kemPublicBlock)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: ML-KEM public key for %s", cryptotran.ErrKeyNotFound, name)
	}
	return pub, err
}

// ReadKEMPublicKeyFile reads a raw ML-KEM-768 public key from a PEM file
// written by SaveKEMPublicKey.
func ReadKEMPublicKeyFile(path string) ([]byte, error) {
	return readPEMBlock(path, kemPublicBlock)
}

func readPEMBlock(path, blockType string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != blockType {
		return nil, fmt.Errorf("%w: %s is not a %s", cryptotran.ErrInvalidPEM, path, blockType)
	}
	return block.Bytes, nil
}
