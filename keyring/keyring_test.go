package keyring

import (
	"context"
	"crypto/rsa"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptotran/client-go"
)

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
)

func sharedKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		var err error
		testKey, _, err = cryptotran.GenerateKeyPair()
		if err != nil {
			panic(err)
		}
	})
	return testKey
}

func TestSaveAndLoad(t *testing.T) {
	d, err := Open(t.TempDir())
	require.NoError(t, err)
	priv := sharedKey(t)

	require.NoError(t, d.SaveKeyPair("offerer", priv))

	info, err := os.Stat(d.PrivateKeyPath("offerer"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := d.PrivateKey("offerer")
	require.NoError(t, err)
	assert.True(t, loaded.Equal(priv))

	pub, err := d.PublicKey(context.Background(), "offerer")
	require.NoError(t, err)
	assert.True(t, pub.Equal(&priv.PublicKey))
}

func TestPublicKeyCached(t *testing.T) {
	d, err := Open(t.TempDir())
	require.NoError(t, err)
	priv := sharedKey(t)
	require.NoError(t, d.SavePublicKey("answerer", &priv.PublicKey))

	first, err := d.PublicKey(context.Background(), "answerer")
	require.NoError(t, err)

	require.NoError(t, os.Remove(d.PublicKeyPath("answerer")))

	second, err := d.PublicKey(context.Background(), "answerer")
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestMissingKeys(t *testing.T) {
	d, err := Open(t.TempDir())
	require.NoError(t, err)

	_, err = d.PrivateKey("nobody")
	assert.ErrorIs(t, err, cryptotran.ErrKeyNotFound)

	_, err = d.PublicKey(context.Background(), "nobody")
	assert.ErrorIs(t, err, cryptotran.ErrKeyNotFound)
}

func TestInvalidNames(t *testing.T) {
	d, err := Open(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"", "../escape", "a/b", "with space"} {
		assert.Error(t, d.SaveKeyPair(name, sharedKey(t)), "name %q", name)
	}
}

func TestPrincipals(t *testing.T) {
	d, err := Open(t.TempDir())
	require.NoError(t, err)
	priv := sharedKey(t)

	require.NoError(t, d.SavePublicKey("zed", &priv.PublicKey))
	require.NoError(t, d.SaveKeyPair("amy", priv))

	names, err := d.Principals()
	require.NoError(t, err)
	assert.Equal(t, []string{"amy", "zed"}, names)
}

func TestVerifyChainWithKeyring(t *testing.T) {
	ctx := context.Background()
	d, err := Open(t.TempDir())
	require.NoError(t, err)
	priv := sharedKey(t)
	require.NoError(t, d.SaveKeyPair("alice", priv))

	tx := cryptotran.NewTransaction("alice", "bob", cryptotran.MustAmount("10"))
	require.NoError(t, cryptotran.Sign(tx, priv))
	require.NoError(t, cryptotran.Link(ctx, tx, cryptotran.TailFunc(func(context.Context) (string, error) {
		return cryptotran.SentinelHash, nil
	})))

	assert.NoError(t, cryptotran.VerifyChain(ctx, []*cryptotran.Transaction{tx}, cryptotran.VerifySignatures(d)))

	tx.SenderID = "mallory"
	assert.Error(t, cryptotran.VerifyChain(ctx, []*cryptotran.Transaction{tx}, cryptotran.VerifySignatures(d)))
}

func TestKEMKeyPair(t *testing.T) {
	d, err := Open(t.TempDir())
	require.NoError(t, err)

	_, err = d.KEMKeyPair("answerer")
	assert.ErrorIs(t, err, cryptotran.ErrKeyNotFound)
	_, err = d.KEMPublicKey("answerer")
	assert.ErrorIs(t, err, cryptotran.ErrKeyNotFound)

	generated, err := d.GenerateKEM("answerer")
	require.NoError(t, err)

	info, err := os.Stat(d.KEMPrivateKeyPath("answerer"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// The pair is rebuilt from the secret key file alone.
	loaded, err := d.KEMKeyPair("answerer")
	require.NoError(t, err)
	assert.Equal(t, generated.SecretKey, loaded.SecretKey)
	assert.Equal(t, generated.PublicKey, loaded.PublicKey)

	pub, err := d.KEMPublicKey("answerer")
	require.NoError(t, err)
	assert.Equal(t, generated.PublicKey, pub)

	fromFile, err := ReadKEMPublicKeyFile(d.KEMPublicKeyPath("answerer"))
	require.NoError(t, err)
	assert.Equal(t, pub, fromFile)

	// KEM keys are not RSA principals.
	names, err := d.Principals()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestKEMKeyRoundTripThroughEnvelope(t *testing.T) {
	d, err := Open(t.TempDir())
	require.NoError(t, err)
	sender := sharedKey(t)

	_, err = d.GenerateKEM("answerer")
	require.NoError(t, err)
	pub, err := d.KEMPublicKey("answerer")
	require.NoError(t, err)
	wrapper, err := cryptotran.MLKEMKeyWrap(pub)
	require.NoError(t, err)

	tx := cryptotran.NewTransaction("offerer", "answerer", cryptotran.MustAmount("7.5"))
	env, err := cryptotran.DefaultCodec.SealWith(tx, sender, wrapper)
	require.NoError(t, err)

	kp, err := d.KEMKeyPair("answerer")
	require.NoError(t, err)
	unwrapper, err := cryptotran.MLKEMKeyUnwrap(kp)
	require.NoError(t, err)
	opened, err := cryptotran.DefaultCodec.OpenWith(env, unwrapper, &sender.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, tx.ID, opened.ID)
}

func TestKEMKeyErrors(t *testing.T) {
	d, err := Open(t.TempDir())
	require.NoError(t, err)

	assert.ErrorIs(t, d.SaveKEMKeyPair("answerer", nil), cryptotran.ErrNilKey)
	assert.Error(t, d.SaveKEMPublicKey("answerer", []byte("short")))
	assert.Error(t, d.SaveKEMPublicKey("../escape", make([]byte, 1184)))

	// An RSA key file is not an ML-KEM key.
	require.NoError(t, d.SaveKeyPair("offerer", sharedKey(t)))
	_, err = ReadKEMPublicKeyFile(d.PublicKeyPath("offerer"))
	assert.ErrorIs(t, err, cryptotran.ErrInvalidPEM)

	// A truncated secret key is rejected when the pair is rebuilt.
	require.NoError(t, os.WriteFile(d.KEMPrivateKeyPath("broken"),
		[]byte("-----BEGIN ML-KEM-768 PRIVATE KEY-----\nAAAA\n-----END ML-KEM-768 PRIVATE KEY-----\n"), 0o600))
	_, err = d.KEMKeyPair("broken")
	assert.Error(t, err)
}
