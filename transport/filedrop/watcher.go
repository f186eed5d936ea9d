package filedrop

import (
	"context"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set"

	"github.com/cryptotran/client-go"
)

// Handler is called once for every new envelope. Returning nil
// acknowledges the envelope; with RemoveOnSuccess it is then deleted.
type Handler func(ctx context.Context, name string, env *cryptotran.Envelope) error

// ErrorHandler receives envelopes that could not be loaded or were
// rejected by the Handler. Such envelopes are not delivered again.
type ErrorHandler func(name string, err error)

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// RemoveOnSuccess deletes envelopes whose handler returned nil.
func RemoveOnSuccess() WatcherOption {
	return func(w *Watcher) {
		w.removeOnSuccess = true
	}
}

// OnError sets the callback for envelopes that failed.
func OnError(fn ErrorHandler) WatcherOption {
	return func(w *Watcher) {
		w.onError = fn
	}
}

// Watcher delivers envelopes from a Drop as they appear.
type Watcher struct {
	drop            *Drop
	handler         Handler
	onError         ErrorHandler
	removeOnSuccess bool

	seen   mapset.Set // envelope names already delivered
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
}

// NewWatcher returns a Watcher that calls handler for each new envelope.
func NewWatcher(drop *Drop, handler Handler, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		drop:    drop,
		handler: handler,
		seen:    mapset.NewSet(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins polling in a background goroutine. Envelopes already in
// the drop are delivered on the first poll.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return nil
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go w.pollLoop(ctx)
	return nil
}

// Stop stops polling and waits for an in-flight handler to return.
// Stop is idempotent.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}

func (w *Watcher) pollLoop(ctx context.Context) {
	defer close(w.done)

	cfg := w.drop.cfg
	interval := cfg.InitialInterval
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if delivered := w.poll(ctx); delivered > 0 {
			interval = cfg.InitialInterval
		} else {
			interval = cfg.next(interval)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(cfg.wait(interval)):
		}
	}
}

// poll delivers every unseen envelope and returns how many there were.
func (w *Watcher) poll(ctx context.Context) int {
	names, err := w.drop.Pending()
	if err != nil {
		w.fail("", err)
		return 0
	}

	var delivered int
	for _, name := range names {
		if ctx.Err() != nil {
			return delivered
		}
		if w.seen.Contains(name) {
			continue
		}
		w.seen.Add(name)
		delivered++

		env, err := w.drop.Load(name)
		if err != nil {
			w.fail(name, err)
			continue
		}
		if err := w.handler(ctx, name, env); err != nil {
			w.fail(name, err)
			continue
		}
		if w.removeOnSuccess {
			if err := w.drop.Remove(name); err != nil {
				w.fail(name, err)
				continue
			}
			w.seen.Remove(name)
		}
	}
	return delivered
}

func (w *Watcher) fail(name string, err error) {
	if w.onError != nil {
		w.onError(name, err)
	}
}
