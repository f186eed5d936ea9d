package main

import (
	"crypto/rsa"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/pterm/pterm"
	"github.com/urfave/cli/v2"

	"github.com/cryptotran/client-go"
	"github.com/cryptotran/client-go/keyring"
	"github.com/cryptotran/client-go/store/leveldb"
	"github.com/cryptotran/client-go/store/memory"
	"github.com/cryptotran/client-go/store/sqlstore"
	"github.com/cryptotran/client-go/transport/filedrop"
)

const metadataSettings = "settings"

// runtime bundles the collaborators a command works with.
type runtime struct {
	settings *settings
	codec    cryptotran.Codec
	out      io.Writer
	logger   *slog.Logger
}

func newRuntime(c *cli.Context) (*runtime, error) {
	s, ok := c.App.Metadata[metadataSettings].(*settings)
	if !ok {
		return nil, fmt.Errorf("settings not resolved")
	}
	codec, err := s.codec()
	if err != nil {
		return nil, err
	}
	out := c.App.Writer
	setupStyling(out)
	return &runtime{
		settings: s,
		codec:    codec,
		out:      out,
		logger:   newLogger(c.App.ErrWriter, s.Verbose),
	}, nil
}

// setupStyling turns colors off when output is not a terminal.
func setupStyling(w io.Writer) {
	f, ok := w.(*os.File)
	if ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		pterm.EnableColor()
		return
	}
	pterm.DisableColor()
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := pterm.LogLevelInfo
	if verbose {
		level = pterm.LogLevelDebug
	}
	logger := pterm.DefaultLogger.WithWriter(w).WithLevel(level)
	return slog.New(pterm.NewSlogHandler(logger))
}

func (r *runtime) keyring() (*keyring.Dir, error) {
	return keyring.Open(r.settings.KeyDir)
}

func (r *runtime) drop() (*filedrop.Drop, error) {
	return filedrop.New(r.settings.DropDir, filedrop.Config{})
}

func (r *runtime) openStore() (cryptotran.Store, error) {
	switch r.settings.Store {
	case storeMemory:
		return memory.New(), nil
	case storeLevelDB:
		return leveldb.Open(strings.TrimPrefix(r.settings.DatabaseURL, "leveldb://"))
	case storeSQLite:
		return sqlstore.Open(r.settings.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown store %q", r.settings.Store)
	}
}

// openLedger opens the configured store. With a non-nil resolver the
// ledger also re-verifies signatures in Verify.
func (r *runtime) openLedger(resolver cryptotran.KeyResolver) (*cryptotran.Ledger, error) {
	store, err := r.openStore()
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", r.settings.Store, err)
	}
	opts := []cryptotran.LedgerOption{
		cryptotran.WithCodec(r.codec),
		cryptotran.WithLogger(r.logger),
	}
	if resolver != nil {
		opts = append(opts, cryptotran.WithKeyResolver(resolver))
	}
	r.logger.Debug("ledger opened", "store", r.settings.Store, "amount", r.codec.Amount.String())
	return cryptotran.NewLedger(store, opts...), nil
}

// keyWrapper returns the configured wrap scheme for recipient to. The
// ML-KEM scheme needs the recipient's KEM public key in the keyring.
func (r *runtime) keyWrapper(ring *keyring.Dir, to string, pub *rsa.PublicKey) (cryptotran.KeyWrapper, error) {
	switch r.settings.WrapScheme {
	case cryptotran.SchemeRSAPKCS1v15:
		return cryptotran.RSALegacyKeyWrap(pub), nil
	case cryptotran.SchemeMLKEM768:
		kemPub, err := ring.KEMPublicKey(to)
		if err != nil {
			return nil, fmt.Errorf("recipient ML-KEM key: %w", err)
		}
		return cryptotran.MLKEMKeyWrap(kemPub)
	default:
		return cryptotran.RSAKeyWrap(pub), nil
	}
}

func (r *runtime) success(format string, args ...any) {
	pterm.Fprint(r.out, pterm.Success.Sprintfln(format, args...))
}

func (r *runtime) info(format string, args ...any) {
	pterm.Fprint(r.out, pterm.Info.Sprintfln(format, args...))
}
