package filedrop

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/cryptotran/client-go"
)

const (
	// Suffix is appended to the envelope name to form its file name.
	Suffix = ".envelope.json"

	DefaultInitialInterval   = 500 * time.Millisecond
	DefaultMaxBackoff        = 10 * time.Second
	DefaultBackoffMultiplier = 1.5
	DefaultJitterFactor      = 0.3
)

// ErrNotFound is returned when no envelope with the given name exists.
var ErrNotFound = errors.New("envelope not found")

var namePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Config holds polling configuration. Zero fields take the defaults.
type Config struct {
	InitialInterval   time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	JitterFactor      float64
}

func (c Config) withDefaults() Config {
	if c.InitialInterval <= 0 {
		c.InitialInterval = DefaultInitialInterval
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.MaxBackoff < c.InitialInterval {
		c.MaxBackoff = c.InitialInterval
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = DefaultBackoffMultiplier
	}
	if c.JitterFactor < 0 {
		c.JitterFactor = 0
	}
	return c
}

// next returns the interval after a poll that found nothing.
func (c Config) next(interval time.Duration) time.Duration {
	n := time.Duration(float64(interval) * c.BackoffMultiplier)
	if n > c.MaxBackoff {
		n = c.MaxBackoff
	}
	return n
}

// wait adds jitter to prevent synchronized polling.
func (c Config) wait(interval time.Duration) time.Duration {
	jitter := time.Duration(rand.Float64() * c.JitterFactor * float64(interval))
	return interval + jitter
}

// Drop is a directory used as an envelope mailbox.
type Drop struct {
	dir string
	cfg Config
}

// New returns a Drop on dir, creating the directory if needed.
func New(dir string, cfg Config) (*Drop, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("filedrop: %w", err)
	}
	return &Drop{dir: dir, cfg: cfg.withDefaults()}, nil
}

// Dir returns the drop directory.
func (d *Drop) Dir() string { return d.dir }

// Path returns the file an envelope called name is stored in.
func (d *Drop) Path(name string) string {
	return filepath.Join(d.dir, name+Suffix)
}

func validName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("filedrop: invalid envelope name %q", name)
	}
	return nil
}

// Send writes env under name, replacing any existing envelope of that
// name. The file appears atomically.
func (d *Drop) Send(ctx context.Context, name string, env *cryptotran.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validName(name); err != nil {
		return err
	}
	if err := env.Validate(); err != nil {
		return err
	}

	data, err := env.Encode()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(d.dir, ".tmp-"+name+"-*")
	if err != nil {
		return fmt.Errorf("filedrop: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("filedrop: write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("filedrop: sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("filedrop: close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, d.Path(name)); err != nil {
		return fmt.Errorf("filedrop: publish %s: %w", name, err)
	}
	return nil
}

// Load reads the envelope called name.
func (d *Drop) Load(name string) (*cryptotran.Envelope, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(d.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	env, err := cryptotran.DecodeEnvelope(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return env, nil
}

// Wait polls until an envelope called name exists and returns it.
func (d *Drop) Wait(ctx context.Context, name string) (*cryptotran.Envelope, error) {
	interval := d.cfg.InitialInterval
	for {
		env, err := d.Load(name)
		if err == nil {
			return env, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d.cfg.wait(interval)):
		}
		interval = d.cfg.next(interval)
	}
}

// Pending lists the names of all envelopes in the drop, sorted.
func (d *Drop) Pending() ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || strings.HasPrefix(n, ".") || !strings.HasSuffix(n, Suffix) {
			continue
		}
		names = append(names, strings.TrimSuffix(n, Suffix))
	}
	sort.Strings(names)
	return names, nil
}

// Remove deletes the envelope called name. Removing a missing envelope is
// not an error.
func (d *Drop) Remove(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	if err := os.Remove(d.Path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
