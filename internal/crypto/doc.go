// Package crypto provides the cryptographic primitives behind transaction
// signing and envelope encryption.
//
// # Algorithm Suite
//
//   - RSASSA-PKCS1-v1_5 with SHA-256: signatures over the canonical
//     transaction encoding. Signing is deterministic.
//
//   - AES-256-GCM: authenticated encryption of the serialized transaction.
//     Every call to [Encrypt] draws a fresh 96-bit nonce.
//
//   - RSA-OAEP with SHA-256: default wrap of the per-envelope AES key.
//     RSAES-PKCS1-v1_5 is available through [NewRSAPKCS1v15Wrapper] for
//     peers that only accept the legacy padding.
//
//   - ML-KEM-768 with HKDF-SHA-512: optional post-quantum key wrap. The
//     KEM shared secret is expanded into a key-encryption key which then
//     seals the AES key with AES-256-GCM.
//
// # Key Management
//
// Use [GenerateRSAKey] for signing and wrapping keys and [GenerateKEMKeypair]
// for the post-quantum scheme. RSA keys are exchanged as PEM: PKCS#8 for
// private keys and SubjectPublicKeyInfo for public keys. PKCS#1 blocks are
// accepted on input.
//
// Keys below [MinRSAKeyBits] are refused for signing and wrapping.
//
// # Errors
//
// Authentication failures are reported with generic sentinels
// ([ErrDecryptionFailed], [ErrUnwrapFailed]) that do not reveal which
// check failed.
package crypto
