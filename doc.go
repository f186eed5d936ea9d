// Package cryptotran exchanges tamper-evident financial transactions
// between two parties and appends them to a hash-chained ledger.
//
// A sender signs a [Transaction] and seals it into an [Envelope]: the
// signed transaction is encrypted with AES-256-GCM under a fresh key, and
// that key is wrapped for the recipient's RSA public key. The recipient
// opens the envelope, which verifies the sender's signature, and commits
// the transaction to a [Ledger]. Committing links the transaction to the
// ledger tail by its previous hash and seals its content with a current
// hash, so altering any stored transaction breaks the chain.
//
// Basic usage:
//
//	tx := cryptotran.NewTransaction("alice", "bob", decimal.NewFromInt(100))
//	env, err := cryptotran.Seal(tx, alicePriv, bobPub)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// On the recipient's side
//	ledger := cryptotran.NewLedger(memory.New())
//	received, err := ledger.Receive(ctx, env, bobPriv, alicePub)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := ledger.Verify(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Canonical encoding
//
// Signatures and hashes are computed over a compact JSON object with the
// fields id, sender_id, recipient_id, amount, timestamp, signature,
// prev_hash and current_hash in that order. Signatures cover the content
// with the last three fields null; the current hash covers the content
// and prev_hash. See [Codec].
//
// # Errors
//
// Failures are reported with sentinel errors for errors.Is and typed
// errors ([DecryptionError], [SignatureVerificationError],
// [ValidationError], [SequenceError], [ChainError]) for errors.As. The
// package never retries and never logs outside [Ledger].
package cryptotran
