package main

import (
	"fmt"
	"strings"

	"github.com/lysyi3m/atf-feed/app/security"
)

type keygenCommand struct {
	cli *cli

	Dir  string `short:"d" long:"dir" default:"./keys" description:"Directory for private.pem and public.pem"`
	Bits int    `long:"bits" default:"2048" description:"RSA key size"`
}

func (cmd *keygenCommand) Execute(_ []string) error {
	privatePath, publicPath, err := security.WriteKeyPair(cmd.Dir, cmd.Bits)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.cli.stdout, "Private key: %s\nPublic key: %s\n", privatePath, publicPath)
	return nil
}

type signCommand struct {
	cli *cli

	Key string `short:"k" long:"key" required:"yes" description:"PEM private key"`

	Args struct {
		File string `positional-arg-name:"FILE" required:"yes"`
	} `positional-args:"yes"`
}

func (cmd *signCommand) Execute(_ []string) error {
	key, err := security.LoadPrivateKey(cmd.Key)
	if err != nil {
		return err
	}

	data, err := cmd.cli.readInput(cmd.Args.File)
	if err != nil {
		return err
	}

	signature, err := security.NewSigner(key).Sign(data)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.cli.stdout, signature)
	return nil
}

type verifyCommand struct {
	cli *cli

	Key           string `short:"k" long:"key" required:"yes" description:"PEM public key"`
	Signature     string `short:"s" long:"signature" description:"Hex signature"`
	SignatureFile string `long:"signature-file" description:"File holding the hex signature"`

	Args struct {
		File string `positional-arg-name:"FILE" required:"yes"`
	} `positional-args:"yes"`
}

func (cmd *verifyCommand) Execute(_ []string) error {
	if err := singleStdin(cmd.Args.File, cmd.SignatureFile); err != nil {
		return err
	}

	signature := cmd.Signature
	if cmd.SignatureFile != "" {
		raw, err := cmd.cli.readInput(cmd.SignatureFile)
		if err != nil {
			return err
		}
		signature = strings.TrimSpace(string(raw))
	}
	if signature == "" {
		return fmt.Errorf("either --signature or --signature-file is required")
	}

	key, err := security.LoadPublicKey(cmd.Key)
	if err != nil {
		return err
	}

	data, err := cmd.cli.readInput(cmd.Args.File)
	if err != nil {
		return err
	}

	if err := security.Verify(key, data, signature); err != nil {
		fmt.Fprintf(cmd.cli.stdout, "%s: signature invalid\n", cmd.Args.File)
		return errInvalid
	}

	fmt.Fprintf(cmd.cli.stdout, "%s: signature valid\n", cmd.Args.File)
	return nil
}
