package filedrop

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptotran/client-go"
)

var fastConfig = Config{
	InitialInterval:   5 * time.Millisecond,
	MaxBackoff:        20 * time.Millisecond,
	BackoffMultiplier: 2,
	JitterFactor:      0.1,
}

func testEnvelope(fill byte) *cryptotran.Envelope {
	return &cryptotran.Envelope{
		Version:     cryptotran.EnvelopeVersion,
		Scheme:      cryptotran.SchemeRSAOAEP,
		ContentType: cryptotran.ContentTypeTransaction,
		Ciphertext:  bytes.Repeat([]byte{fill}, 48),
		Nonce:       bytes.Repeat([]byte{fill}, 12),
		WrappedKey:  bytes.Repeat([]byte{fill}, 256),
	}
}

func TestSendLoad(t *testing.T) {
	d, err := New(t.TempDir(), fastConfig)
	require.NoError(t, err)

	env := testEnvelope(0x01)
	require.NoError(t, d.Send(context.Background(), "offer", env))

	got, err := d.Load("offer")
	require.NoError(t, err)
	assert.Equal(t, env, got)

	entries, err := os.ReadDir(d.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not remain")
	assert.Equal(t, "offer"+Suffix, entries[0].Name())
}

func TestLoadMissing(t *testing.T) {
	d, err := New(t.TempDir(), fastConfig)
	require.NoError(t, err)

	_, err = d.Load("nothing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadCorrupt(t *testing.T) {
	d, err := New(t.TempDir(), fastConfig)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(d.Path("bad"), []byte("{not json"), 0o600))

	_, err = d.Load("bad")
	assert.ErrorIs(t, err, cryptotran.ErrInvalidEnvelope)
}

func TestSendRejectsInvalid(t *testing.T) {
	d, err := New(t.TempDir(), fastConfig)
	require.NoError(t, err)
	ctx := context.Background()

	assert.Error(t, d.Send(ctx, "../escape", testEnvelope(1)))

	bad := testEnvelope(1)
	bad.Nonce = bad.Nonce[:8]
	assert.ErrorIs(t, d.Send(ctx, "short-nonce", bad), cryptotran.ErrInvalidNonceSize)
}

func TestWaitArrivesLater(t *testing.T) {
	d, err := New(t.TempDir(), fastConfig)
	require.NoError(t, err)

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = d.Send(context.Background(), "answer", testEnvelope(0x02))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	env, err := d.Wait(ctx, "answer")
	require.NoError(t, err)
	assert.Equal(t, testEnvelope(0x02), env)
}

func TestWaitTimeout(t *testing.T) {
	d, err := New(t.TempDir(), fastConfig)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()

	_, err = d.Wait(ctx, "never")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPendingAndRemove(t *testing.T) {
	d, err := New(t.TempDir(), fastConfig)
	require.NoError(t, err)
	ctx := context.Background()

	for _, name := range []string{"b", "a", "c"} {
		require.NoError(t, d.Send(ctx, name, testEnvelope(3)))
	}
	require.NoError(t, os.WriteFile(filepath.Join(d.Dir(), "notes.txt"), []byte("x"), 0o600))

	names, err := d.Pending()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, names)

	require.NoError(t, d.Remove("b"))
	require.NoError(t, d.Remove("b"))

	names, err = d.Pending()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, names)
}

func TestConfigBackoff(t *testing.T) {
	cfg := Config{InitialInterval: time.Second, MaxBackoff: 3 * time.Second, BackoffMultiplier: 2}.withDefaults()

	assert.Equal(t, 2*time.Second, cfg.next(time.Second))
	assert.Equal(t, 3*time.Second, cfg.next(2*time.Second))
	assert.Equal(t, 3*time.Second, cfg.next(3*time.Second))

	defaults := Config{}.withDefaults()
	assert.Equal(t, DefaultInitialInterval, defaults.InitialInterval)
	assert.Equal(t, DefaultMaxBackoff, defaults.MaxBackoff)
	assert.Equal(t, DefaultBackoffMultiplier, defaults.BackoffMultiplier)

	for i := 0; i < 100; i++ {
		w := Config{JitterFactor: 0.3}.wait(time.Second)
		assert.GreaterOrEqual(t, w, time.Second)
		assert.LessOrEqual(t, w, 1300*time.Millisecond)
	}
}

func TestWatcherDeliversOnce(t *testing.T) {
	d, err := New(t.TempDir(), fastConfig)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, d.Send(ctx, "early", testEnvelope(4)))

	var (
		mu        sync.Mutex
		delivered []string
	)
	got := make(chan struct{}, 8)
	w := NewWatcher(d, func(ctx context.Context, name string, env *cryptotran.Envelope) error {
		mu.Lock()
		delivered = append(delivered, name)
		mu.Unlock()
		got <- struct{}{}
		return nil
	})
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	waitFor(t, got)
	require.NoError(t, d.Send(ctx, "late", testEnvelope(5)))
	waitFor(t, got)

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, w.Stop())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"early", "late"}, delivered)
}

func TestWatcherRemoveOnSuccessAndErrors(t *testing.T) {
	d, err := New(t.TempDir(), fastConfig)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, d.Send(ctx, "good", testEnvelope(6)))
	require.NoError(t, os.WriteFile(d.Path("broken"), []byte("garbage"), 0o600))

	failed := make(chan string, 4)
	handled := make(chan struct{}, 4)
	w := NewWatcher(d,
		func(ctx context.Context, name string, env *cryptotran.Envelope) error {
			handled <- struct{}{}
			return nil
		},
		RemoveOnSuccess(),
		OnError(func(name string, err error) { failed <- name }),
	)
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	waitFor(t, handled)
	select {
	case name := <-failed:
		assert.Equal(t, "broken", name)
	case <-time.After(5 * time.Second):
		t.Fatal("error handler not called")
	}

	require.NoError(t, w.Stop())
	names, err := d.Pending()
	require.NoError(t, err)
	assert.Equal(t, []string{"broken"}, names)
}

func TestWatcherStopIdempotent(t *testing.T) {
	d, err := New(t.TempDir(), fastConfig)
	require.NoError(t, err)
	w := NewWatcher(d, func(context.Context, string, *cryptotran.Envelope) error { return nil })

	assert.NoError(t, w.Stop())
	require.NoError(t, w.Start(context.Background()))
	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}
