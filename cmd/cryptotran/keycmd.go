package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/cryptotran/client-go"
	"github.com/cryptotran/client-go/keyring"
)

var (
	forceFlag = &cli.BoolFlag{
		Name:  "force",
		Usage: "overwrite an existing key pair",
	}
	importFlag = &cli.StringFlag{
		Name:  "import",
		Usage: "store the peer public key from this PEM file instead of generating a pair",
	}
	kemFlag = &cli.BoolFlag{
		Name:  "kem",
		Usage: "also generate an ML-KEM-768 key pair for receiving post-quantum envelopes",
	}
	importKEMFlag = &cli.StringFlag{
		Name:  "import-kem",
		Usage: "store the peer ML-KEM-768 public key from this PEM file",
	}
)

var commandKeygen = &cli.Command{
	Name:      "keygen",
	Usage:     "generate an RSA key pair for a principal",
	ArgsUsage: "<name>",
	Description: `
Generate a 2048-bit RSA key pair and store it in the key directory as
private_key_<name>.pem and public_key_<name>.pem.

With --kem an ML-KEM-768 key pair is generated as well and stored as
kem_private_key_<name>.pem and kem_public_key_<name>.pem.

With --import the public key of a peer is copied into the key directory
under <name> instead; --import-kem does the same for its ML-KEM key.
`,
	Flags: []cli.Flag{
		forceFlag,
		importFlag,
		kemFlag,
		importKEMFlag,
	},
	Action: keygen,
}

func keygen(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: %s keygen <name>", c.App.Name)
	}
	name := c.Args().First()

	r, err := newRuntime(c)
	if err != nil {
		return err
	}
	ring, err := r.keyring()
	if err != nil {
		return err
	}

	importPath, importKEMPath := c.String(importFlag.Name), c.String(importKEMFlag.Name)
	if importPath != "" || importKEMPath != "" {
		if importPath != "" {
			pub, err := cryptotran.ReadPublicKeyFile(importPath)
			if err != nil {
				return err
			}
			if err := ring.SavePublicKey(name, pub); err != nil {
				return err
			}
			r.success("imported public key for %s into %s", name, ring.PublicKeyPath(name))
		}
		if importKEMPath != "" {
			pub, err := keyring.ReadKEMPublicKeyFile(importKEMPath)
			if err != nil {
				return err
			}
			if err := ring.SaveKEMPublicKey(name, pub); err != nil {
				return err
			}
			r.success("imported ML-KEM public key for %s into %s", name, ring.KEMPublicKeyPath(name))
		}
		return nil
	}

	if !c.Bool(forceFlag.Name) {
		if _, err := os.Stat(ring.PrivateKeyPath(name)); err == nil {
			return fmt.Errorf("key pair for %s already exists (use --force to replace it)", name)
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	if _, err := ring.Generate(name); err != nil {
		return err
	}
	r.logger.Debug("key pair generated", "name", name, "bits", cryptotran.KeyBits)
	r.success("generated key pair for %s", name)
	r.info("private key: %s", ring.PrivateKeyPath(name))
	r.info("public key:  %s", ring.PublicKeyPath(name))

	if c.Bool(kemFlag.Name) {
		if _, err := ring.GenerateKEM(name); err != nil {
			return err
		}
		r.success("generated ML-KEM-768 key pair for %s", name)
		r.info("private key: %s", ring.KEMPrivateKeyPath(name))
		r.info("public key:  %s", ring.KEMPublicKeyPath(name))
	}
	return nil
}
