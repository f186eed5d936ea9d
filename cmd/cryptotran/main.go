// Command cryptotran exchanges signed, encrypted transactions between two
// parties through a shared drop directory and records them in a hash-chained
// ledger.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
)

// Config holds the streams the CLI reads from and writes to.
type Config struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// DefaultConfig returns a Config bound to the process streams.
func DefaultConfig() Config {
	return Config{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Commonly used command line flags.
var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	envFileFlag = &cli.StringFlag{
		Name:  "env-file",
		Usage: "dotenv file loaded before reading the environment",
		Value: ".env",
	}
	keyDirFlag = &cli.StringFlag{
		Name:  "key-dir",
		Usage: "directory holding private_key_<name>.pem and public_key_<name>.pem",
	}
	dropDirFlag = &cli.StringFlag{
		Name:  "drop-dir",
		Usage: "directory shared with the peer for envelope exchange",
	}
	storeFlag = &cli.StringFlag{
		Name:  "store",
		Usage: "ledger backend (`memory`, `leveldb` or `sqlite`)",
	}
	databaseURLFlag = &cli.StringFlag{
		Name:  "database-url",
		Usage: "ledger location: SQLite DSN or LevelDB directory",
	}
	amountEncodingFlag = &cli.StringFlag{
		Name:  "amount-encoding",
		Usage: "canonical amount form (`float64` or `decimal`)",
	}
	wrapSchemeFlag = &cli.StringFlag{
		Name:  "wrap-scheme",
		Usage: "key-wrap scheme for sent envelopes (RSA-OAEP-SHA256, RSA-PKCS1v15 or ML-KEM-768:HKDF-SHA-512:AES-256-GCM)",
	}
	shortIDsFlag = &cli.BoolFlag{
		Name:  "short-ids",
		Usage: "generate 8-character transaction ids",
	}
	verboseFlag = &cli.BoolFlag{
		Name:  "verbose",
		Usage: "enable debug logging",
	}
)

func newApp(cfg Config) *cli.App {
	return &cli.App{
		Name:      "cryptotran",
		Usage:     "sign, encrypt and chain transactions between two parties",
		Reader:    cfg.Stdin,
		Writer:    cfg.Stdout,
		ErrWriter: cfg.Stderr,
		Flags: []cli.Flag{
			configFlag,
			envFileFlag,
			keyDirFlag,
			dropDirFlag,
			storeFlag,
			databaseURLFlag,
			amountEncodingFlag,
			wrapSchemeFlag,
			shortIDsFlag,
			verboseFlag,
		},
		Commands: []*cli.Command{
			commandKeygen,
			commandSend,
			commandReceive,
			commandVerify,
			commandList,
			commandShow,
		},
		Before: func(c *cli.Context) error {
			s, err := resolveSettings(c)
			if err != nil {
				return err
			}
			c.App.Metadata = map[string]interface{}{metadataSettings: s}
			return nil
		},
		HideHelpCommand: true,
	}
}

func run(args []string, cfg Config) error {
	return newApp(cfg).Run(args)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
