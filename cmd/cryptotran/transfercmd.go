package main

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/cryptotran/client-go"
	"github.com/cryptotran/client-go/transport/filedrop"
)

var (
	fromFlag = &cli.StringFlag{
		Name:     "from",
		Usage:    "sending principal",
		Required: true,
	}
	toFlag = &cli.StringFlag{
		Name:     "to",
		Usage:    "receiving principal",
		Required: true,
	}
	asFlag = &cli.StringFlag{
		Name:     "as",
		Usage:    "receiving principal whose private key opens the envelopes",
		Required: true,
	}
	amountFlag = &cli.StringFlag{
		Name:     "amount",
		Usage:    "amount to transfer",
		Required: true,
	}
	idFlag = &cli.StringFlag{
		Name:  "id",
		Usage: "transaction id (generated when empty)",
	}
	nameFlag = &cli.StringFlag{
		Name:  "name",
		Usage: "envelope name in the drop directory (defaults to the transaction id)",
	}
	waitFlag = &cli.DurationFlag{
		Name:  "wait",
		Usage: "wait up to this long for the named envelope to appear",
	}
	watchFlag = &cli.BoolFlag{
		Name:  "watch",
		Usage: "keep receiving envelopes until interrupted",
	}
	keepFlag = &cli.BoolFlag{
		Name:  "keep",
		Usage: "leave envelopes in the drop directory after receiving",
	}
)

var commandSend = &cli.Command{
	Name:  "send",
	Usage: "sign, encrypt and drop a transaction for the recipient",
	Flags: []cli.Flag{
		fromFlag,
		toFlag,
		amountFlag,
		idFlag,
		nameFlag,
	},
	Action: send,
}

var commandReceive = &cli.Command{
	Name:  "receive",
	Usage: "open envelopes from the drop directory and commit them to the ledger",
	Description: `
Open, verify and commit envelopes sent by --from to --as.

Without --name every pending envelope is processed once. With --name only
that envelope is read, optionally waiting for it with --wait. With --watch
the command keeps polling until interrupted.
`,
	Flags: []cli.Flag{
		asFlag,
		fromFlag,
		nameFlag,
		waitFlag,
		watchFlag,
		keepFlag,
	},
	Action: receive,
}

func send(c *cli.Context) error {
	r, err := newRuntime(c)
	if err != nil {
		return err
	}
	amount, err := cryptotran.ParseAmount(c.String(amountFlag.Name))
	if err != nil {
		return err
	}
	ring, err := r.keyring()
	if err != nil {
		return err
	}
	from, to := c.String(fromFlag.Name), c.String(toFlag.Name)
	priv, err := ring.PrivateKey(from)
	if err != nil {
		return fmt.Errorf("sender key: %w", err)
	}
	pub, err := ring.PublicKey(c.Context, to)
	if err != nil {
		return fmt.Errorf("recipient key: %w", err)
	}

	var opts []cryptotran.TransactionOption
	switch {
	case c.String(idFlag.Name) != "":
		opts = append(opts, cryptotran.WithID(c.String(idFlag.Name)))
	case r.settings.ShortIDs:
		opts = append(opts, cryptotran.WithShortID())
	}
	tx := cryptotran.NewTransaction(from, to, amount, opts...)

	wrapper, err := r.keyWrapper(ring, to, pub)
	if err != nil {
		return err
	}
	env, err := r.codec.SealWith(tx, priv, wrapper)
	if err != nil {
		return err
	}
	drop, err := r.drop()
	if err != nil {
		return err
	}
	name := c.String(nameFlag.Name)
	if name == "" {
		name = tx.ID
	}
	if err := drop.Send(c.Context, name, env); err != nil {
		return err
	}
	r.logger.Debug("envelope sent", "id", tx.ID, "scheme", env.Scheme, "path", drop.Path(name))
	r.success("sent %s: %s -> %s amount %s", tx.ID, from, to, tx.Amount.String())
	return nil
}

// receiver opens envelopes for one principal and commits them.
type receiver struct {
	r      *runtime
	ledger *cryptotran.Ledger
	drop   *filedrop.Drop
	priv   *rsa.PrivateKey
	kem    *cryptotran.KEMKeyPair // nil when the principal has no ML-KEM key
	pub    *rsa.PublicKey
	keep   bool
}

func (rc *receiver) handle(ctx context.Context, name string, env *cryptotran.Envelope) error {
	var (
		tx  *cryptotran.Transaction
		err error
	)
	if env.Scheme == cryptotran.SchemeMLKEM768 {
		tx, err = rc.receiveKEM(ctx, env)
	} else {
		tx, err = rc.ledger.Receive(ctx, env, rc.priv, rc.pub)
	}
	if err != nil {
		return err
	}
	rc.r.success("received %s: %s -> %s amount %s (hash %s)",
		tx.ID, tx.SenderID, tx.RecipientID, tx.Amount.String(), shortHash(tx.CurrentHash))
	return nil
}

func (rc *receiver) receiveKEM(ctx context.Context, env *cryptotran.Envelope) (*cryptotran.Transaction, error) {
	if rc.kem == nil {
		return nil, fmt.Errorf("%w: ML-KEM envelope but no ML-KEM key pair", cryptotran.ErrKeyNotFound)
	}
	unwrapper, err := cryptotran.MLKEMKeyUnwrap(rc.kem)
	if err != nil {
		return nil, err
	}
	return rc.ledger.ReceiveWith(ctx, env, unwrapper, rc.pub)
}

func (rc *receiver) handleAndRemove(ctx context.Context, name string, env *cryptotran.Envelope) error {
	if err := rc.handle(ctx, name, env); err != nil {
		return err
	}
	if rc.keep {
		return nil
	}
	return rc.drop.Remove(name)
}

func receive(c *cli.Context) error {
	r, err := newRuntime(c)
	if err != nil {
		return err
	}
	ring, err := r.keyring()
	if err != nil {
		return err
	}
	as := c.String(asFlag.Name)
	priv, err := ring.PrivateKey(as)
	if err != nil {
		return fmt.Errorf("recipient key: %w", err)
	}
	kem, err := ring.KEMKeyPair(as)
	if err != nil && !errors.Is(err, cryptotran.ErrKeyNotFound) {
		return fmt.Errorf("recipient ML-KEM key: %w", err)
	}
	pub, err := ring.PublicKey(c.Context, c.String(fromFlag.Name))
	if err != nil {
		return fmt.Errorf("sender key: %w", err)
	}
	drop, err := r.drop()
	if err != nil {
		return err
	}
	ledger, err := r.openLedger(nil)
	if err != nil {
		return err
	}
	defer ledger.Close()

	rc := &receiver{r: r, ledger: ledger, drop: drop, priv: priv, kem: kem, pub: pub, keep: c.Bool(keepFlag.Name)}

	switch {
	case c.Bool(watchFlag.Name):
		return rc.watch(c.Context)
	case c.String(nameFlag.Name) != "":
		return rc.one(c.Context, c.String(nameFlag.Name), c.Duration(waitFlag.Name))
	default:
		return rc.pending(c.Context)
	}
}

func (rc *receiver) one(ctx context.Context, name string, wait time.Duration) error {
	var (
		env *cryptotran.Envelope
		err error
	)
	if wait > 0 {
		ctx, cancel := context.WithTimeout(ctx, wait)
		defer cancel()
		env, err = rc.drop.Wait(ctx, name)
	} else {
		env, err = rc.drop.Load(name)
	}
	if err != nil {
		return err
	}
	return rc.handleAndRemove(ctx, name, env)
}

func (rc *receiver) pending(ctx context.Context) error {
	names, err := rc.drop.Pending()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		rc.r.info("no pending envelopes in %s", rc.drop.Dir())
		return nil
	}
	var failed int
	for _, name := range names {
		env, err := rc.drop.Load(name)
		if err == nil {
			err = rc.handleAndRemove(ctx, name, env)
		}
		if err != nil {
			failed++
			rc.r.logger.Error("envelope rejected", "name", name, "error", err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d envelopes rejected", failed, len(names))
	}
	return nil
}

func (rc *receiver) watch(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []filedrop.WatcherOption{
		filedrop.OnError(func(name string, err error) {
			rc.r.logger.Error("envelope rejected", "name", name, "error", err)
		}),
	}
	if !rc.keep {
		opts = append(opts, filedrop.RemoveOnSuccess())
	}
	w := filedrop.NewWatcher(rc.drop, rc.handle, opts...)
	if err := w.Start(ctx); err != nil {
		return err
	}
	rc.r.info("watching %s, press Ctrl+C to stop", rc.drop.Dir())
	<-ctx.Done()
	return w.Stop()
}

func shortHash(h *string) string {
	if h == nil {
		return "-"
	}
	if len(*h) > 12 {
		return (*h)[:12]
	}
	return *h
}
