package cryptotran

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/cryptotran/client-go/internal/crypto"
)

// sealRaw encrypts tx as is, bypassing the checks Seal applies.
func sealRaw(t *testing.T, tx *Transaction, wrapper KeyWrapper) *Envelope {
	t.Helper()
	data, err := DefaultCodec.Encode(tx)
	if err != nil {
		t.Fatal(err)
	}
	return sealBytes(t, data, wrapper)
}

func sealBytes(t *testing.T, plaintext []byte, wrapper KeyWrapper) *Envelope {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	ciphertext, nonce, err := crypto.Encrypt(key, plaintext)
	if err != nil {
		t.Fatal(err)
	}
	wrapped, err := wrapper.Wrap(key)
	if err != nil {
		t.Fatal(err)
	}
	return &Envelope{
		Version:     EnvelopeVersion,
		Scheme:      wrapper.Scheme(),
		ContentType: ContentTypeTransaction,
		Ciphertext:  ciphertext,
		Nonce:       nonce,
		WrappedKey:  wrapped,
	}
}

func TestSealOpen(t *testing.T) {
	alice, bob, _ := testKeys(t)
	tx := fixedTransaction()

	env, err := Seal(tx, alice, &bob.PublicKey)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if !tx.IsSigned() {
		t.Error("Seal() did not sign the caller's transaction")
	}
	if env.Version != EnvelopeVersion || env.Scheme != SchemeRSAOAEP || env.ContentType != ContentTypeTransaction {
		t.Errorf("envelope header = %d %q %q", env.Version, env.Scheme, env.ContentType)
	}
	if len(env.Nonce) != 12 {
		t.Errorf("nonce length = %d, want 12", len(env.Nonce))
	}
	if len(env.WrappedKey) != 256 {
		t.Errorf("wrapped key length = %d, want 256", len(env.WrappedKey))
	}
	if bytes.Contains(env.Ciphertext, []byte("Alice")) {
		t.Error("ciphertext contains plaintext")
	}

	got, err := Open(env, bob, &alice.PublicKey)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if got.ID != tx.ID || got.SenderID != "Alice" || got.RecipientID != "Bob" || !got.Amount.Equal(MustAmount("100.0")) {
		t.Errorf("Open() = %+v", got)
	}
	if *got.Signature != *tx.Signature {
		t.Error("opened signature differs from the sealed one")
	}
	if got.IsChained() {
		t.Error("opened transaction must not be chained")
	}
}

func TestSeal_FreshKeyPerEnvelope(t *testing.T) {
	alice, bob, _ := testKeys(t)

	a, err := Seal(fixedTransaction(), alice, &bob.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Seal(fixedTransaction(), alice, &bob.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a.Nonce, b.Nonce) || bytes.Equal(a.Ciphertext, b.Ciphertext) || bytes.Equal(a.WrappedKey, b.WrappedKey) {
		t.Error("sealing the same transaction twice must not reuse key, nonce or ciphertext")
	}
}

func TestSeal_Preconditions(t *testing.T) {
	alice, bob, _ := testKeys(t)

	signed := fixedTransaction()
	if err := Sign(signed, alice); err != nil {
		t.Fatal(err)
	}
	if _, err := Seal(signed, alice, &bob.PublicKey); !errors.Is(err, ErrAlreadySigned) {
		t.Errorf("Seal(signed) error = %v, want ErrAlreadySigned", err)
	}

	chained := fixedTransaction()
	chained.PrevHash = stringPtr(SentinelHash)
	_, err := Seal(chained, alice, &bob.PublicKey)
	var seqErr *SequenceError
	if !errors.As(err, &seqErr) || !errors.Is(err, ErrAlreadyChained) {
		t.Errorf("Seal(chained) error = %v, want SequenceError(ErrAlreadyChained)", err)
	}
	if chained.IsSigned() {
		t.Error("failed Seal() signed the caller's transaction")
	}

	invalid := fixedTransaction()
	invalid.SenderID = ""
	if _, err := Seal(invalid, alice, &bob.PublicKey); !errors.Is(err, ErrInvalidTransaction) {
		t.Errorf("Seal(invalid) error = %v, want ErrInvalidTransaction", err)
	}

	if _, err := Seal(fixedTransaction(), alice, nil); !errors.Is(err, ErrNilKey) {
		t.Errorf("Seal(nil recipient) error = %v, want ErrNilKey", err)
	}

	unsigned := fixedTransaction()
	if _, err := Seal(unsigned, nil, &bob.PublicKey); !errors.Is(err, ErrNilKey) {
		t.Errorf("Seal(nil sender) error = %v, want ErrNilKey", err)
	}
	if unsigned.IsSigned() {
		t.Error("failed Seal() modified the caller's transaction")
	}
}

func TestOpen_Failures(t *testing.T) {
	alice, bob, mallory := testKeys(t)

	seal := func(t *testing.T) *Envelope {
		t.Helper()
		env, err := Seal(fixedTransaction(), alice, &bob.PublicKey)
		if err != nil {
			t.Fatal(err)
		}
		return env
	}

	t.Run("corrupted wrapped key", func(t *testing.T) {
		env := seal(t)
		env.WrappedKey[10] ^= 0x01
		_, err := Open(env, bob, &alice.PublicKey)
		assertDecryptionStage(t, err, StageUnwrap)
		if !errors.Is(err, ErrKeyUnwrapFailed) {
			t.Errorf("error = %v, want ErrKeyUnwrapFailed", err)
		}
	})

	t.Run("wrong recipient key", func(t *testing.T) {
		_, err := Open(seal(t), mallory, &alice.PublicKey)
		assertDecryptionStage(t, err, StageUnwrap)
	})

	t.Run("tampered ciphertext", func(t *testing.T) {
		env := seal(t)
		env.Ciphertext[0] ^= 0xff
		_, err := Open(env, bob, &alice.PublicKey)
		assertDecryptionStage(t, err, StageAEAD)
		if !errors.Is(err, ErrAuthenticationFailed) {
			t.Errorf("error = %v, want ErrAuthenticationFailed", err)
		}
	})

	t.Run("tampered tag", func(t *testing.T) {
		env := seal(t)
		env.Ciphertext[len(env.Ciphertext)-1] ^= 0x01
		_, err := Open(env, bob, &alice.PublicKey)
		assertDecryptionStage(t, err, StageAEAD)
	})

	t.Run("tampered nonce", func(t *testing.T) {
		env := seal(t)
		env.Nonce[0] ^= 0x01
		_, err := Open(env, bob, &alice.PublicKey)
		assertDecryptionStage(t, err, StageAEAD)
	})

	t.Run("wrong sender key", func(t *testing.T) {
		_, err := Open(seal(t), bob, &mallory.PublicKey)
		if !errors.Is(err, ErrSignatureInvalid) {
			t.Fatalf("error = %v, want ErrSignatureInvalid", err)
		}
		var sigErr *SignatureVerificationError
		if !errors.As(err, &sigErr) || sigErr.TransactionID == "" {
			t.Errorf("error = %#v, want SignatureVerificationError with transaction id", err)
		}
		if errors.Is(err, ErrDecryptionFailed) {
			t.Error("signature failure must be distinct from decryption failure")
		}
	})

	t.Run("bad nonce size", func(t *testing.T) {
		env := seal(t)
		env.Nonce = env.Nonce[:8]
		_, err := Open(env, bob, &alice.PublicKey)
		if !errors.Is(err, ErrInvalidEnvelope) || !errors.Is(err, ErrInvalidNonceSize) {
			t.Errorf("error = %v, want ErrInvalidEnvelope and ErrInvalidNonceSize", err)
		}
	})

	t.Run("unknown scheme", func(t *testing.T) {
		env := seal(t)
		env.Scheme = "ROT13"
		if _, err := Open(env, bob, &alice.PublicKey); !errors.Is(err, ErrUnsupportedScheme) {
			t.Errorf("error = %v, want ErrUnsupportedScheme", err)
		}
	})

	t.Run("nil keys", func(t *testing.T) {
		if _, err := Open(seal(t), nil, &alice.PublicKey); !errors.Is(err, ErrNilKey) {
			t.Errorf("Open(nil recipient) error = %v", err)
		}
		if _, err := Open(seal(t), bob, nil); !errors.Is(err, ErrNilKey) {
			t.Errorf("Open(nil sender) error = %v", err)
		}
	})
}

func assertDecryptionStage(t *testing.T, err error, stage string) {
	t.Helper()
	var decErr *DecryptionError
	if !errors.As(err, &decErr) {
		t.Fatalf("error = %v (%T), want *DecryptionError", err, err)
	}
	if decErr.Stage != stage {
		t.Errorf("stage = %q, want %q (error: %v)", decErr.Stage, stage, err)
	}
	if !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("error = %v, want it to match ErrDecryptionFailed", err)
	}
}

func TestOpen_RejectsChainedPayload(t *testing.T) {
	alice, bob, _ := testKeys(t)

	// A sender that seals an already linked transaction.
	tx := fixedTransaction()
	if err := Sign(tx, alice); err != nil {
		t.Fatal(err)
	}
	tx.PrevHash = stringPtr(SentinelHash)
	env := sealRaw(t, tx, RSAKeyWrap(&bob.PublicKey))

	_, err := Open(env, bob, &alice.PublicKey)
	var seqErr *SequenceError
	if !errors.As(err, &seqErr) || !errors.Is(err, ErrAlreadyChained) {
		t.Errorf("Open() error = %v, want SequenceError(ErrAlreadyChained)", err)
	}
}

func TestOpen_UnsignedPayload(t *testing.T) {
	alice, bob, _ := testKeys(t)
	env := sealRaw(t, fixedTransaction(), RSAKeyWrap(&bob.PublicKey))

	_, err := Open(env, bob, &alice.PublicKey)
	var sigErr *SignatureVerificationError
	if !errors.As(err, &sigErr) {
		t.Fatalf("Open() error = %v, want *SignatureVerificationError", err)
	}
	if sigErr.Message != "transaction is not signed" {
		t.Errorf("message = %q", sigErr.Message)
	}
}

func TestOpen_GarbagePayload(t *testing.T) {
	alice, bob, _ := testKeys(t)
	env := sealBytes(t, []byte("not a transaction"), RSAKeyWrap(&bob.PublicKey))

	_, err := Open(env, bob, &alice.PublicKey)
	assertDecryptionStage(t, err, StageDecode)
	if !errors.Is(err, ErrInvalidTransaction) {
		t.Errorf("error = %v, want ErrInvalidTransaction", err)
	}
}

func TestSealOpen_LegacyScheme(t *testing.T) {
	alice, bob, _ := testKeys(t)

	env, err := DefaultCodec.SealWith(fixedTransaction(), alice, RSALegacyKeyWrap(&bob.PublicKey))
	if err != nil {
		t.Fatalf("SealWith() error = %v", err)
	}
	if env.Scheme != SchemeRSAPKCS1v15 {
		t.Errorf("scheme = %q", env.Scheme)
	}

	// Open picks the padding from the envelope.
	if _, err := Open(env, bob, &alice.PublicKey); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	// An explicit unwrapper for a different scheme is rejected before any
	// RSA operation.
	_, err = DefaultCodec.OpenWith(env, RSAKeyUnwrap(bob), &alice.PublicKey)
	assertDecryptionStage(t, err, StageUnwrap)
	if !errors.Is(err, ErrKeyUnwrapFailed) {
		t.Errorf("error = %v, want ErrKeyUnwrapFailed", err)
	}
}

func TestSealOpen_MLKEM(t *testing.T) {
	alice, bob, _ := testKeys(t)

	kp, err := GenerateKEMKeyPair()
	if err != nil {
		t.Fatalf("GenerateKEMKeyPair() error = %v", err)
	}
	wrapper, err := MLKEMKeyWrap(kp.PublicKey)
	if err != nil {
		t.Fatalf("MLKEMKeyWrap() error = %v", err)
	}
	unwrapper, err := MLKEMKeyUnwrap(kp)
	if err != nil {
		t.Fatalf("MLKEMKeyUnwrap() error = %v", err)
	}

	tx := fixedTransaction()
	env, err := DefaultCodec.SealWith(tx, alice, wrapper)
	if err != nil {
		t.Fatalf("SealWith() error = %v", err)
	}
	if env.Scheme != SchemeMLKEM768 {
		t.Errorf("scheme = %q", env.Scheme)
	}

	got, err := DefaultCodec.OpenWith(env, unwrapper, &alice.PublicKey)
	if err != nil {
		t.Fatalf("OpenWith() error = %v", err)
	}
	if got.ID != tx.ID {
		t.Errorf("OpenWith() id = %q", got.ID)
	}

	// The RSA convenience path cannot open ML-KEM envelopes.
	_, err = Open(env, bob, &alice.PublicKey)
	assertDecryptionStage(t, err, StageUnwrap)

	if _, err := MLKEMKeyWrap([]byte("short")); err == nil {
		t.Error("MLKEMKeyWrap(short key) succeeded")
	}
	if _, err := MLKEMKeyUnwrap(nil); err == nil {
		t.Error("MLKEMKeyUnwrap(nil) succeeded")
	}
}

func TestEnvelope_EncodeDecode(t *testing.T) {
	alice, bob, _ := testKeys(t)
	env, err := Seal(fixedTransaction(), alice, &bob.PublicKey)
	if err != nil {
		t.Fatal(err)
	}

	data, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	decoded, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("DecodeEnvelope() error = %v", err)
	}
	if !bytes.Equal(decoded.Ciphertext, env.Ciphertext) || !bytes.Equal(decoded.WrappedKey, env.WrappedKey) ||
		!bytes.Equal(decoded.Nonce, env.Nonce) || decoded.Scheme != env.Scheme {
		t.Error("DecodeEnvelope() does not match the encoded envelope")
	}
	if _, err := Open(decoded, bob, &alice.PublicKey); err != nil {
		t.Errorf("Open(decoded) error = %v", err)
	}

	bad := []string{
		`not json`,
		`{"version":2,"scheme":"RSA-OAEP-SHA256"}`,
		`{"version":1,"scheme":"RSA-OAEP-SHA256","nonce":"AAAA","ciphertext":"AAAAAAAAAAAAAAAAAAAAAA==","wrapped_key":"AA=="}`,
	}
	for _, s := range bad {
		if _, err := DecodeEnvelope([]byte(s)); !errors.Is(err, ErrInvalidEnvelope) {
			t.Errorf("DecodeEnvelope(%s) error = %v, want ErrInvalidEnvelope", s, err)
		}
	}
}

func TestEnvelope_Hex(t *testing.T) {
	alice, bob, _ := testKeys(t)
	env, err := DefaultCodec.SealWith(fixedTransaction(), alice, RSALegacyKeyWrap(&bob.PublicKey))
	if err != nil {
		t.Fatal(err)
	}

	ct, nonce, wk := env.Hex()
	if len(nonce) != 24 || len(wk) != 512 {
		t.Errorf("hex lengths: nonce %d, wrapped key %d", len(nonce), len(wk))
	}

	// A bare triple defaults to the legacy padding.
	rebuilt, err := EnvelopeFromHex(ct, nonce, wk, "")
	if err != nil {
		t.Fatalf("EnvelopeFromHex() error = %v", err)
	}
	if rebuilt.Scheme != SchemeRSAPKCS1v15 {
		t.Errorf("scheme = %q", rebuilt.Scheme)
	}
	if _, err := Open(rebuilt, bob, &alice.PublicKey); err != nil {
		t.Errorf("Open(rebuilt) error = %v", err)
	}

	if _, err := EnvelopeFromHex("zz", nonce, wk, ""); !errors.Is(err, ErrInvalidEnvelope) {
		t.Errorf("EnvelopeFromHex(bad hex) error = %v", err)
	}
	if _, err := EnvelopeFromHex(ct, "00", wk, ""); !errors.Is(err, ErrInvalidNonceSize) {
		t.Errorf("EnvelopeFromHex(short nonce) error = %v", err)
	}
}

func ExampleSeal() {
	alice, _, _ := GenerateKeyPair()
	bob, _, _ := GenerateKeyPair()

	tx := NewTransaction("Alice", "Bob", MustAmount("100.0"))
	env, err := Seal(tx, alice, &bob.PublicKey)
	if err != nil {
		panic(err)
	}

	opened, err := Open(env, bob, &alice.PublicKey)
	if err != nil {
		panic(err)
	}
	fmt.Println(opened.SenderID, "->", opened.RecipientID, opened.Amount)
	// Output: Alice -> Bob 100
}

func BenchmarkSealOpen(b *testing.B) {
	alice, bob, _ := testKeys(b)
	for i := 0; i < b.N; i++ {
		env, err := Seal(fixedTransaction(), alice, &bob.PublicKey)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := Open(env, bob, &alice.PublicKey); err != nil {
			b.Fatal(err)
		}
	}
}
