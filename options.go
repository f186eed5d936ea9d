package cryptotran

import (
	"io"
	"log/slog"
)

// ledgerConfig holds configuration for a Ledger.
type ledgerConfig struct {
	codec    Codec
	resolver KeyResolver
	logger   *slog.Logger
}

// LedgerOption configures a Ledger.
type LedgerOption func(*ledgerConfig)

// WithCodec sets the codec used for hashing, signing and envelopes.
// Default: DefaultCodec.
func WithCodec(codec Codec) LedgerOption {
	return func(c *ledgerConfig) {
		c.codec = codec
	}
}

// WithKeyResolver makes Ledger.Verify re-check every signature against the
// sender's public key.
func WithKeyResolver(resolver KeyResolver) LedgerOption {
	return func(c *ledgerConfig) {
		c.resolver = resolver
	}
}

// WithLogger sets the logger for commit and verification events.
// Default: a logger that discards everything.
func WithLogger(logger *slog.Logger) LedgerOption {
	return func(c *ledgerConfig) {
		c.logger = logger
	}
}

func newLedgerConfig(opts []LedgerOption) *ledgerConfig {
	cfg := &ledgerConfig{codec: DefaultCodec}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return cfg
}
