package crypto

const (
	// HKDFContext is the context string used when deriving a key-encryption
	// key from an ML-KEM shared secret.
	HKDFContext = "cryptotran:keywrap:v1"

	// RSAKeyBits is the modulus size used for generated key pairs.
	RSAKeyBits = 2048
	// MinRSAKeyBits is the smallest modulus accepted for signing or key-wrap.
	MinRSAKeyBits = 2048

	// MLKEMPublicKeySize is the size of an ML-KEM-768 public key in bytes.
	MLKEMPublicKeySize = 1184
	// MLKEMSecretKeySize is the size of an ML-KEM-768 secret key in bytes.
	MLKEMSecretKeySize = 2400
	// MLKEMCiphertextSize is the size of an ML-KEM-768 ciphertext in bytes.
	MLKEMCiphertextSize = 1088
	// MLKEMSharedKeySize is the size of the shared secret from ML-KEM-768 in bytes.
	MLKEMSharedKeySize = 32

	// AESKeySize is the size of an AES-256 key in bytes.
	AESKeySize = 32
	// AESNonceSize is the size of an AES-GCM nonce in bytes.
	AESNonceSize = 12
	// AESTagSize is the size of an AES-GCM authentication tag in bytes.
	AESTagSize = 16

	// PublicKeyOffset is the byte offset where the public key is embedded
	// within an ML-KEM-768 secret key.
	PublicKeyOffset = 1152
)

// Key-wrap scheme identifiers recorded in envelopes.
const (
	SchemeRSAOAEP     = "RSA-OAEP-SHA256"
	SchemeRSAPKCS1v15 = "RSA-PKCS1v15"
	SchemeMLKEM768    = "ML-KEM-768:HKDF-SHA-512:AES-256-GCM"
)

