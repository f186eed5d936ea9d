package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/naoina/toml"
	"github.com/urfave/cli/v2"

	"github.com/cryptotran/client-go"
)

// Environment variables read by the CLI.
const (
	envDatabaseURL    = "DATABASE_URL"
	envKeyDir         = "CRYPTOTRAN_KEY_DIR"
	envDropDir        = "CRYPTOTRAN_DROP_DIR"
	envStore          = "CRYPTOTRAN_STORE"
	envAmountEncoding = "CRYPTOTRAN_AMOUNT_ENCODING"
	envWrapScheme     = "CRYPTOTRAN_WRAP_SCHEME"
	envShortIDs       = "CRYPTOTRAN_SHORT_IDS"
)

// Ledger backends.
const (
	storeMemory  = "memory"
	storeLevelDB = "leveldb"
	storeSQLite  = "sqlite"
)

// settings is the resolved CLI configuration. Sources are applied in order:
// defaults, TOML file, .env file, process environment, command-line flags.
type settings struct {
	KeyDir         string `toml:"key_dir"`
	DropDir        string `toml:"drop_dir"`
	Store          string `toml:"store"`
	DatabaseURL    string `toml:"database_url"`
	AmountEncoding string `toml:"amount_encoding"`
	WrapScheme     string `toml:"wrap_scheme"`
	ShortIDs       bool   `toml:"short_ids"`
	Verbose        bool   `toml:"verbose"`
}

func defaultSettings() *settings {
	return &settings{
		KeyDir:         "keys",
		DropDir:        "drop",
		Store:          storeSQLite,
		DatabaseURL:    "cryptotran.db",
		AmountEncoding: cryptotran.AmountFloat64.String(),
		WrapScheme:     cryptotran.SchemeRSAOAEP,
	}
}

// loadTOML overlays the values present in the file at path.
func (s *settings) loadTOML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, s); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// loadDotEnv populates the process environment from path. Variables that
// are already set win. A missing default file is not an error.
func loadDotEnv(path string, explicit bool) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func (s *settings) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str(envKeyDir, &s.KeyDir)
	str(envDropDir, &s.DropDir)
	str(envStore, &s.Store)
	str(envDatabaseURL, &s.DatabaseURL)
	str(envAmountEncoding, &s.AmountEncoding)
	str(envWrapScheme, &s.WrapScheme)

	if v, ok := lookup(envShortIDs); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envShortIDs, err)
		}
		s.ShortIDs = b
	}
	return nil
}

func (s *settings) applyFlags(c *cli.Context) {
	if c.IsSet(keyDirFlag.Name) {
		s.KeyDir = c.String(keyDirFlag.Name)
	}
	if c.IsSet(dropDirFlag.Name) {
		s.DropDir = c.String(dropDirFlag.Name)
	}
	if c.IsSet(storeFlag.Name) {
		s.Store = c.String(storeFlag.Name)
	}
	if c.IsSet(databaseURLFlag.Name) {
		s.DatabaseURL = c.String(databaseURLFlag.Name)
	}
	if c.IsSet(amountEncodingFlag.Name) {
		s.AmountEncoding = c.String(amountEncodingFlag.Name)
	}
	if c.IsSet(wrapSchemeFlag.Name) {
		s.WrapScheme = c.String(wrapSchemeFlag.Name)
	}
	if c.IsSet(shortIDsFlag.Name) {
		s.ShortIDs = c.Bool(shortIDsFlag.Name)
	}
	if c.IsSet(verboseFlag.Name) {
		s.Verbose = c.Bool(verboseFlag.Name)
	}
}

func (s *settings) validate() error {
	switch strings.ToLower(s.Store) {
	case storeMemory, storeLevelDB, storeSQLite:
		s.Store = strings.ToLower(s.Store)
	default:
		return fmt.Errorf("unknown store %q (want memory, leveldb or sqlite)", s.Store)
	}
	if s.Store != storeMemory && s.DatabaseURL == "" {
		return fmt.Errorf("%s store needs a database URL", s.Store)
	}
	if _, err := s.codec(); err != nil {
		return err
	}
	switch s.WrapScheme {
	case cryptotran.SchemeRSAOAEP, cryptotran.SchemeRSAPKCS1v15, cryptotran.SchemeMLKEM768:
	default:
		return fmt.Errorf("%w: %q", cryptotran.ErrUnsupportedScheme, s.WrapScheme)
	}
	return nil
}

func (s *settings) codec() (cryptotran.Codec, error) {
	enc, err := cryptotran.ParseAmountEncoding(s.AmountEncoding)
	if err != nil {
		return cryptotran.Codec{}, err
	}
	return cryptotran.Codec{Amount: enc}, nil
}

// resolveSettings builds the settings for one invocation.
func resolveSettings(c *cli.Context) (*settings, error) {
	s := defaultSettings()
	if path := c.String(configFlag.Name); path != "" {
		if err := s.loadTOML(path); err != nil {
			return nil, err
		}
	}
	if err := loadDotEnv(c.String(envFileFlag.Name), c.IsSet(envFileFlag.Name)); err != nil {
		return nil, err
	}
	if err := s.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	s.applyFlags(c)
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}
