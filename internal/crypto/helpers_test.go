package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"sync"
	"testing"
)

var (
	testKeyOnce sync.Once
	testKeyA    *rsa.PrivateKey
	testKeyB    *rsa.PrivateKey
	testKeyErr  error
)

// testKeys returns two RSA-2048 keys shared across the package tests.
func testKeys(tb testing.TB) (*rsa.PrivateKey, *rsa.PrivateKey) {
	tb.Helper()
	testKeyOnce.Do(func() {
		testKeyA, testKeyErr = rsa.GenerateKey(rand.Reader, RSAKeyBits)
		if testKeyErr != nil {
			return
		}
		testKeyB, testKeyErr = rsa.GenerateKey(rand.Reader, RSAKeyBits)
	})
	if testKeyErr != nil {
		tb.Fatalf("GenerateKey() error = %v", testKeyErr)
	}
	return testKeyA, testKeyB
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errFailingReader }

var errFailingReader = errors.New("entropy exhausted")
