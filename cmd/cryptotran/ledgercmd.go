package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	"github.com/cryptotran/client-go"
)

var (
	signaturesFlag = &cli.BoolFlag{
		Name:  "signatures",
		Usage: "also re-verify every signature against the key directory",
	}
	compactFlag = &cli.BoolFlag{
		Name:  "compact",
		Usage: "print the canonical encoding without indentation",
	}
)

var commandVerify = &cli.Command{
	Name:  "verify",
	Usage: "check the integrity of the stored hash chain",
	Flags: []cli.Flag{
		signaturesFlag,
	},
	Action: verify,
}

var commandList = &cli.Command{
	Name:   "list",
	Usage:  "list stored transactions in chain order",
	Action: list,
}

var commandShow = &cli.Command{
	Name:      "show",
	Usage:     "print one stored transaction",
	ArgsUsage: "<id>",
	Flags: []cli.Flag{
		compactFlag,
	},
	Action: show,
}

func verify(c *cli.Context) error {
	r, err := newRuntime(c)
	if err != nil {
		return err
	}
	var resolver cryptotran.KeyResolver
	if c.Bool(signaturesFlag.Name) {
		ring, err := r.keyring()
		if err != nil {
			return err
		}
		resolver = ring
	}
	ledger, err := r.openLedger(resolver)
	if err != nil {
		return err
	}
	defer ledger.Close()

	if err := ledger.Verify(c.Context); err != nil {
		return err
	}
	n, err := ledger.Len(c.Context)
	if err != nil {
		return err
	}
	r.success("chain of %d transactions verified", n)
	return nil
}

func list(c *cli.Context) error {
	r, err := newRuntime(c)
	if err != nil {
		return err
	}
	ledger, err := r.openLedger(nil)
	if err != nil {
		return err
	}
	defer ledger.Close()

	txs, err := ledger.Transactions(c.Context)
	if err != nil {
		return err
	}
	if len(txs) == 0 {
		r.info("ledger is empty")
		return nil
	}

	table := tablewriter.NewWriter(r.out)
	table.SetHeader([]string{"#", "ID", "Sender", "Recipient", "Amount", "Time", "Hash"})
	table.SetAutoWrapText(false)
	for i, tx := range txs {
		table.Append([]string{
			strconv.Itoa(i),
			tx.ID,
			tx.SenderID,
			tx.RecipientID,
			tx.Amount.String(),
			tx.Time().UTC().Format(time.RFC3339),
			shortHash(tx.CurrentHash),
		})
	}
	table.Render()
	return nil
}

func show(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: %s show <id>", c.App.Name)
	}
	r, err := newRuntime(c)
	if err != nil {
		return err
	}
	ledger, err := r.openLedger(nil)
	if err != nil {
		return err
	}
	defer ledger.Close()

	tx, err := ledger.Get(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	data, err := r.codec.Encode(tx)
	if err != nil {
		return err
	}
	if !c.Bool(compactFlag.Name) {
		var buf bytes.Buffer
		if err := json.Indent(&buf, data, "", "  "); err != nil {
			return err
		}
		data = buf.Bytes()
	}
	fmt.Fprintln(r.out, string(data))
	return nil
}
